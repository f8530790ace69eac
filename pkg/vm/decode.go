package vm

// The following constants define the opcodes. Bits [15:12] of every
// instruction word select one of these sixteen slots.
const (
	OpBR   uint16 = 0x0 // branch
	OpADD  uint16 = 0x1 // add
	OpLD   uint16 = 0x2 // load
	OpST   uint16 = 0x3 // store
	OpJSR  uint16 = 0x4 // jump to subroutine / jump register
	OpAND  uint16 = 0x5 // bitwise and
	OpLDR  uint16 = 0x6 // load register
	OpSTR  uint16 = 0x7 // store register
	OpRTI  uint16 = 0x8 // return from interrupt (unused)
	OpNOT  uint16 = 0x9 // bitwise not
	OpLDI  uint16 = 0xA // load indirect
	OpSTI  uint16 = 0xB // store indirect
	OpJMP  uint16 = 0xC // jump / return
	OpRES  uint16 = 0xD // reserved (unused)
	OpLEA  uint16 = 0xE // load effective address
	OpTRAP uint16 = 0xF // system trap
)

// The following constants define the trap vectors dispatched by
// TRAP (bits [7:0] of the instruction).
const (
	TrapGETC  uint16 = 0x20 // read one byte, no echo
	TrapOUT   uint16 = 0x21 // write low byte of R0
	TrapPUTS  uint16 = 0x22 // write a null-terminated word string
	TrapIN    uint16 = 0x23 // prompt, read and echo one byte
	TrapPUTSP uint16 = 0x24 // write a null-terminated packed-byte string
	TrapHALT  uint16 = 0x25 // stop the interpreter
)

// decodeOpcode extracts the opcode from bits [15:12].
func decodeOpcode(instr uint16) uint16 {
	return instr >> 12
}

// signExtend extends the sign of a bitCount-bit two's-complement field
// held in the low bits of x to the full 16 bits.
func signExtend(x uint16, bitCount uint) uint16 {
	if (x>>(bitCount-1))&1 != 0 {
		x |= 0xFFFF << bitCount
	}
	return x
}

// Execute executes the already-fetched instruction word instr. PC must
// already have been advanced past instr (Fetch does this) before
// Execute runs, since PC-relative offsets are relative to the next
// instruction. Execute returns ErrHalted for TRAP HALT; all other
// instructions return nil.
func (m *VM) Execute(instr uint16) error {
	op := decodeOpcode(instr)
	switch op {
	case OpBR:
		nzp := (instr >> 9) & 0x7
		pcOffset9 := signExtend(instr&0x1FF, 9)
		if nzp&m.Reg[RCOND] != 0 {
			m.Reg[RPC] += pcOffset9
		}

	case OpADD:
		dr := (instr >> 9) & 0x7
		sr1 := (instr >> 6) & 0x7
		if (instr>>5)&0x1 != 0 {
			imm5 := signExtend(instr&0x1F, 5)
			m.Reg[dr] = m.Reg[sr1] + imm5
		} else {
			sr2 := instr & 0x7
			m.Reg[dr] = m.Reg[sr1] + m.Reg[sr2]
		}
		m.updateFlags(dr)

	case OpLD:
		dr := (instr >> 9) & 0x7
		pcOffset9 := signExtend(instr&0x1FF, 9)
		m.Reg[dr] = m.read(m.Reg[RPC] + pcOffset9)
		m.updateFlags(dr)

	case OpST:
		sr := (instr >> 9) & 0x7
		pcOffset9 := signExtend(instr&0x1FF, 9)
		m.write(m.Reg[RPC]+pcOffset9, m.Reg[sr])

	case OpJSR:
		m.Reg[R7] = m.Reg[RPC]
		if (instr>>11)&0x1 != 0 {
			pcOffset11 := signExtend(instr&0x7FF, 11)
			m.Reg[RPC] += pcOffset11
		} else {
			base := (instr >> 6) & 0x7
			m.Reg[RPC] = m.Reg[base]
		}

	case OpAND:
		dr := (instr >> 9) & 0x7
		sr1 := (instr >> 6) & 0x7
		if (instr>>5)&0x1 != 0 {
			imm5 := signExtend(instr&0x1F, 5)
			m.Reg[dr] = m.Reg[sr1] & imm5
		} else {
			sr2 := instr & 0x7
			m.Reg[dr] = m.Reg[sr1] & m.Reg[sr2]
		}
		m.updateFlags(dr)

	case OpLDR:
		dr := (instr >> 9) & 0x7
		base := (instr >> 6) & 0x7
		offset6 := signExtend(instr&0x3F, 6)
		m.Reg[dr] = m.read(m.Reg[base] + offset6)
		m.updateFlags(dr)

	case OpSTR:
		sr := (instr >> 9) & 0x7
		base := (instr >> 6) & 0x7
		offset6 := signExtend(instr&0x3F, 6)
		m.write(m.Reg[base]+offset6, m.Reg[sr])

	case OpRTI:
		// Unused: this VM does not model privileged mode.

	case OpNOT:
		dr := (instr >> 9) & 0x7
		sr := (instr >> 6) & 0x7
		m.Reg[dr] = ^m.Reg[sr]
		m.updateFlags(dr)

	case OpLDI:
		dr := (instr >> 9) & 0x7
		pcOffset9 := signExtend(instr&0x1FF, 9)
		m.Reg[dr] = m.read(m.read(m.Reg[RPC] + pcOffset9))
		m.updateFlags(dr)

	case OpSTI:
		sr := (instr >> 9) & 0x7
		pcOffset9 := signExtend(instr&0x1FF, 9)
		m.write(m.read(m.Reg[RPC]+pcOffset9), m.Reg[sr])

	case OpJMP:
		base := (instr >> 6) & 0x7
		m.Reg[RPC] = m.Reg[base]

	case OpRES:
		// Reserved: no effect.

	case OpLEA:
		dr := (instr >> 9) & 0x7
		pcOffset9 := signExtend(instr&0x1FF, 9)
		m.Reg[dr] = m.Reg[RPC] + pcOffset9
		m.updateFlags(dr)

	case OpTRAP:
		m.Reg[R7] = m.Reg[RPC]
		return m.trap(instr & 0xFF)
	}
	return nil
}
