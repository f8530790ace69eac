// Package console adapts a real terminal to the vm.Console interface.
// It puts stdin into raw mode for the lifetime of a run so that the
// guest program sees every keystroke immediately and unbuffered, and
// guarantees the terminal is restored on every exit path.
package console

import (
	"bufio"
	"os"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Console drives a real terminal on behalf of the LC-3 VM. It implements
// vm.Console without importing pkg/vm, keeping the dependency direction
// from cmd/lc3vm downward.
type Console struct {
	in     *os.File
	out    *bufio.Writer
	fd     int
	state  *term.State
	isTerm bool
}

// Open puts in into raw mode, if it is a terminal, and returns a Console
// that reads from in and writes through a buffered wrapper around out.
// When in is not a terminal (for example a pipe in a test harness),
// Open skips raw-mode handling and KeyAvailable always reports false
// until a byte is actually buffered for ReadByte, matching how the
// historical implementation degrades outside an interactive shell.
func Open(in *os.File, out *os.File) (*Console, error) {
	c := &Console{
		in:  in,
		out: bufio.NewWriter(out),
		fd:  int(in.Fd()),
	}
	if term.IsTerminal(c.fd) {
		state, err := term.MakeRaw(c.fd)
		if err != nil {
			return nil, err
		}
		c.state = state
		c.isTerm = true
	}
	return c, nil
}

// Restore returns the terminal to its original mode. It is safe to call
// more than once and safe to call when in was never a terminal.
func (c *Console) Restore() error {
	if !c.isTerm || c.state == nil {
		return nil
	}
	err := term.Restore(c.fd, c.state)
	c.state = nil
	return err
}

// KeyAvailable polls the input file descriptor with a zero timeout,
// reporting whether at least one byte is ready to be read without
// blocking. This is the only sanctioned poll: it is called exclusively
// from a read of the keyboard status register.
func (c *Console) KeyAvailable() bool {
	fds := []unix.PollFd{{Fd: int32(c.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, 0)
	if err != nil || n <= 0 {
		return false
	}
	return fds[0].Revents&unix.POLLIN != 0
}

// ReadByte performs a blocking read of one raw byte from the terminal.
func (c *Console) ReadByte() (byte, error) {
	var b [1]byte
	if _, err := c.in.Read(b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// WriteByte buffers one output byte.
func (c *Console) WriteByte(b byte) error {
	return c.out.WriteByte(b)
}

// Flush writes any buffered output to the underlying file.
func (c *Console) Flush() error {
	return c.out.Flush()
}

// WaitKey blocks, with the given timeout, until KeyAvailable would
// report true or the timeout elapses, for callers that want to throttle
// a busy-wait loop on a raw terminal rather than spin. Neither VM.read
// nor cmd/lc3vm calls it.
func (c *Console) WaitKey(timeout time.Duration) bool {
	fds := []unix.PollFd{{Fd: int32(c.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(timeout.Milliseconds()))
	return err == nil && n > 0
}
