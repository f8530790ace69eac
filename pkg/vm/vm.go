// Package vm contains the LC-3 virtual machine.
//
// The LC-3 (Little Computer 3) is a 16-bit instruction-set architecture
// used for teaching computer organization. Memory is a flat, word
// addressed space of 65,536 16-bit cells. There are eight general
// purpose registers (R0-R7), a program counter (PC), and a three-bit
// condition code register (COND) that always holds exactly one of N
// (negative), Z (zero), or P (positive).
//
// Instruction format
//
// Every instruction is 16 bits wide. Bits [15:12] select the opcode;
// the remaining 12 bits are opcode-specific operand fields (register
// indices, immediates, and PC-relative offsets). Immediate and offset
// fields are two's-complement and must be sign-extended before use.
//
// Image file format
//
// An image is a big-endian byte stream. The first word is the load
// origin; the remaining words are code/data placed contiguously at
// that origin. See LoadImage.
//
// Memory-mapped I/O
//
// Two memory cells are virtualized on read: KBSR (0xFE00) and KBDR
// (0xFE02), the keyboard status and data registers. Reading KBSR polls
// the attached Console and updates both cells as a side effect; this is
// the only sanctioned polling point, so a program that busy-waits on
// KBSR makes forward progress. See VM.read.
package vm

import (
	"errors"
	"fmt"
)

// Register names the ten entries of the register file: the eight
// general-purpose registers, the program counter, and the condition
// code register.
type Register int

// The following constants index the register file.
const (
	R0 Register = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	RPC
	RCOND
	RCOUNT
)

// The following constants define the condition-code flags. Exactly one
// is set in RCOND at any time.
const (
	FlagPOS uint16 = 1 << 0 // P: positive
	FlagZRO uint16 = 1 << 1 // Z: zero
	FlagNEG uint16 = 1 << 2 // N: negative
)

const (
	// MemorySize is the number of addressable 16-bit cells.
	MemorySize = 1 << 16

	// PCStart is the address execution begins at on a fresh VM.
	PCStart uint16 = 0x3000
)

// The following addresses are virtualized on read.
const (
	MRKBSR uint16 = 0xFE00 // keyboard status register
	MRKBDR uint16 = 0xFE02 // keyboard data register
)

// The following errors may be returned by Execute or surfaced by a
// caller driving the fetch-execute loop.
var (
	// ErrHalted indicates that a TRAP HALT instruction executed.
	ErrHalted = errors.New("vm: halted")

	// ErrImageLoad indicates that an image could not be read.
	ErrImageLoad = errors.New("vm: image load failed")

	// ErrUsage indicates that the caller supplied no image arguments.
	ErrUsage = errors.New("vm: usage error")
)

// Console is the terminal adapter this VM depends on for trap I/O and
// for the memory-mapped keyboard registers. Implementations live
// outside this package (see internal/console); the VM never touches a
// terminal directly.
type Console interface {
	// KeyAvailable reports whether at least one input byte is ready
	// without blocking past the given attempt. It is the only
	// sanctioned polling point: it is called exclusively from a read
	// of MRKBSR.
	KeyAvailable() bool

	// ReadByte performs a blocking read of one raw input byte.
	ReadByte() (byte, error)

	// WriteByte writes one output byte.
	WriteByte(b byte) error

	// Flush flushes buffered output.
	Flush() error
}

// VM is an LC-3 virtual machine instance. A VM is not safe for
// concurrent use; a single goroutine drives the fetch-execute loop.
type VM struct {
	Reg [RCOUNT]uint16
	Mem [MemorySize]uint16

	// Console is consulted by the TRAP handlers and by reads of
	// MRKBSR/MRKBDR. It may be nil, in which case trap I/O and the
	// keyboard poll are no-ops (useful for tests that only exercise
	// arithmetic and memory instructions).
	Console Console
}

// New returns a freshly reset VM: COND = Z, PC = PCStart, all other
// registers and all of memory zeroed.
func New(console Console) *VM {
	m := &VM{Console: console}
	m.Reset()
	return m
}

// Reset restores the VM to its initial state without touching the
// Console field. Memory is zeroed; PC is set to PCStart; COND is set
// to Z.
func (m *VM) Reset() {
	for i := range m.Reg {
		m.Reg[i] = 0
	}
	for i := range m.Mem {
		m.Mem[i] = 0
	}
	m.Reg[RPC] = PCStart
	m.Reg[RCOND] = FlagZRO
}

// read reads a word from memory. Reading MRKBSR polls the console: if
// a key is available, KBSR is set to 0x8000 and KBDR receives the next
// input byte (read synchronously); otherwise KBSR is set to 0. All
// other addresses, including KBDR itself, are read as ordinary cells.
func (m *VM) read(addr uint16) uint16 {
	if addr == MRKBSR {
		if m.Console != nil && m.Console.KeyAvailable() {
			b, err := m.Console.ReadByte()
			if err == nil {
				m.Mem[MRKBSR] = 0x8000
				m.Mem[MRKBDR] = uint16(b)
			} else {
				m.Mem[MRKBSR] = 0
			}
		} else {
			m.Mem[MRKBSR] = 0
		}
	}
	return m.Mem[addr]
}

// write unconditionally stores a word into memory. Writes to KBSR or
// KBDR are legal but have no I/O effect.
func (m *VM) write(addr, value uint16) {
	m.Mem[addr] = value
}

// updateFlags sets RCOND to reflect the two's-complement sign of
// m.Reg[r]: N if bit 15 is set, Z if the value is zero, else P.
func (m *VM) updateFlags(r uint16) {
	switch {
	case m.Reg[r] == 0:
		m.Reg[RCOND] = FlagZRO
	case m.Reg[r]>>15 == 1:
		m.Reg[RCOND] = FlagNEG
	default:
		m.Reg[RCOND] = FlagPOS
	}
}

// Fetch reads the word at PC and advances PC by one, wrapping modulo
// 2^16.
func (m *VM) Fetch() uint16 {
	instr := m.read(m.Reg[RPC])
	m.Reg[RPC]++
	return instr
}

// Step fetches and executes a single instruction. It returns
// ErrHalted when the instruction was TRAP HALT; the caller should stop
// looping in that case. Any other non-nil error is an implementation
// bug (see the documentation on Execute).
func (m *VM) Step() error {
	instr := m.Fetch()
	return m.Execute(instr)
}

// Run executes instructions until ErrHalted is returned or ctx-style
// external cancellation happens via the stop function returning true.
// Run is a convenience wrapper around Step for callers that don't need
// per-instruction control; the CLI front end in cmd/lc3vm calls Fetch
// and Execute directly so it can trace instructions between the two.
func (m *VM) Run(stop func() bool) error {
	for {
		if stop != nil && stop() {
			return nil
		}
		if err := m.Step(); err != nil {
			if errors.Is(err, ErrHalted) {
				return nil
			}
			return err
		}
	}
}

// String renders a compact dump of register state.
func (m *VM) String() string {
	return fmt.Sprintf(
		"{PC:%#04x COND:%03b R0:%#04x R1:%#04x R2:%#04x R3:%#04x R4:%#04x R5:%#04x R6:%#04x R7:%#04x}",
		m.Reg[RPC], m.Reg[RCOND], m.Reg[R0], m.Reg[R1], m.Reg[R2], m.Reg[R3],
		m.Reg[R4], m.Reg[R5], m.Reg[R6], m.Reg[R7],
	)
}
