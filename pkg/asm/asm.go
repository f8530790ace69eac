// Package asm assembles LC-3 assembly source into the big-endian object
// image format pkg/vm.LoadImage reads: a two-byte origin followed by
// one two-byte word per instruction or pseudo-op, all big-endian.
//
// Assembly runs in two passes. Pass one walks the parsed statements in
// order, assigning each instruction an address starting at the
// .ORIG value and recording every label's address; pass two asks each
// Instruction to encode itself against the now-complete label table.
// Lexing and parsing each run on their own goroutine, piped together
// through channels, so a large source file is tokenized while earlier
// lines are still being turned into instructions.
package asm

import (
	"encoding/binary"
	"fmt"
	"io"
)

// InstructionOrError is one parsed-and-address-assigned instruction, or
// the error encountered producing it.
type InstructionOrError struct {
	Instr Instruction
	Addr  uint16
	Err   error
}

// Result is a fully assembled image.
type Result struct {
	Origin uint16
	Words  []uint16
}

// Bytes renders the result as the big-endian object image pkg/vm.LoadImage
// expects: the origin, then each word, all big-endian.
func (r Result) Bytes() []byte {
	out := make([]byte, 2+2*len(r.Words))
	binary.BigEndian.PutUint16(out[0:2], r.Origin)
	for i, w := range r.Words {
		binary.BigEndian.PutUint16(out[2+2*i:4+2*i], w)
	}
	return out
}

// StartAssembler wires StartLexing and StartParsing together and
// returns the resulting statement stream. It is exported so callers
// that want streaming diagnostics (an editor's linter, say) can consume
// statements as they're produced rather than waiting for Assemble's
// full two-pass result.
func StartAssembler(r io.Reader) <-chan StatementOrError {
	return StartParsing(StartLexing(r))
}

// Assemble runs both passes over r and returns the assembled image. It
// returns every diagnostic encountered, not just the first, so a
// caller can report them all at once; the Result is only meaningful
// when errs is empty.
func Assemble(r io.Reader) (Result, []error) {
	var errs []error
	var origin uint16
	haveOrigin := false
	var instrs []Instruction

	for soe := range StartAssembler(r) {
		if soe.Err != nil {
			errs = append(errs, soe.Err)
			continue
		}
		switch soe.Stmt.Kind {
		case stmtOrig:
			if haveOrigin {
				errs = append(errs, fmt.Errorf("duplicate .ORIG directive"))
				continue
			}
			origin = soe.Stmt.Origin
			haveOrigin = true
		case stmtInstr:
			if !haveOrigin {
				errs = append(errs, fmt.Errorf("instruction before .ORIG"))
				continue
			}
			instrs = append(instrs, soe.Stmt.Instr)
		case stmtEnd:
			// Nothing to record; StartParsing already stopped.
		}
	}
	if !haveOrigin {
		errs = append(errs, fmt.Errorf("missing .ORIG directive"))
	}
	if len(errs) > 0 {
		return Result{}, errs
	}

	labels := make(map[string]uint16, len(instrs))
	addr := origin
	for _, ins := range instrs {
		if lbl := ins.Label(); lbl != "" {
			if _, dup := labels[lbl]; dup {
				errs = append(errs, fmt.Errorf("line %d: duplicate label %q", ins.Line(), lbl))
			}
			labels[lbl] = addr
		}
		addr += uint16(ins.Size())
	}
	if len(errs) > 0 {
		return Result{}, errs
	}

	var words []uint16
	addr = origin
	for _, ins := range instrs {
		w, err := ins.Encode(labels, addr)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		words = append(words, w...)
		addr += uint16(ins.Size())
	}
	if len(errs) > 0 {
		return Result{}, errs
	}
	return Result{Origin: origin, Words: words}, nil
}
