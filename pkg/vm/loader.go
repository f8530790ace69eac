package vm

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// ReadImage reads a big-endian LC-3 object image from r and returns its
// load origin and body words, without touching any VM's memory. It is
// the basis for LoadImage and is also used directly by tooling (the
// disassembler) that wants the image's words without a VM instance.
// The same truncation rules as LoadImage apply.
func ReadImage(r io.Reader) (origin uint16, words []uint16, err error) {
	var originBuf [2]byte
	if _, err := io.ReadFull(r, originBuf[:]); err != nil {
		return 0, nil, fmt.Errorf("%w: %s", ErrImageLoad, err)
	}
	origin = binary.BigEndian.Uint16(originBuf[:])

	maxWords := MemorySize - int(origin)
	var word [2]byte
	for i := 0; i < maxWords; i++ {
		n, err := io.ReadFull(r, word[:])
		if err == io.EOF {
			break
		}
		if err == io.ErrUnexpectedEOF {
			// A single trailing byte with no pair: ignore it.
			break
		}
		if err != nil {
			return 0, nil, fmt.Errorf("%w: %s", ErrImageLoad, err)
		}
		if n < 2 {
			break
		}
		words = append(words, binary.BigEndian.Uint16(word[:]))
	}
	return origin, words, nil
}

// LoadImage reads a big-endian LC-3 object image from r and places it
// in memory. The first word read is the load origin; subsequent words
// are stored contiguously starting at that origin. Loading stops at
// end-of-stream or once (MemorySize - origin) words have been read,
// discarding anything further so the image can never wrap past
// 0xFFFF. A truncated final byte is silently ignored, matching the
// historical C implementation's fread semantics.
func (m *VM) LoadImage(r io.Reader) error {
	origin, words, err := ReadImage(r)
	if err != nil {
		return err
	}
	for i, w := range words {
		m.Mem[origin+uint16(i)] = w
	}
	return nil
}

// LoadImageFile opens path and loads it via LoadImage. It wraps
// ErrImageLoad on any failure to open or read the file, matching the
// CLI's contract of exit code 1 on a failed image load.
func (m *VM) LoadImageFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %s", ErrImageLoad, path, err)
	}
	defer f.Close()
	if err := m.LoadImage(f); err != nil {
		return fmt.Errorf("%w: %s: %s", ErrImageLoad, path, err)
	}
	return nil
}

// swap16 swaps the two bytes of a 16-bit word, converting between
// big-endian and little-endian representations of the same value.
// swap16(swap16(x)) == x for every x; this is exercised by
// TestSwap16RoundTrip.
func swap16(x uint16) uint16 {
	return (x << 8) | (x >> 8)
}
