package vm

import "fmt"

// trap dispatches on an 8-bit trap vector. R7 has already been set to
// the return address by the caller (Execute). Unknown vectors have no
// effect, matching the historical LC-3 behavior this VM preserves.
func (m *VM) trap(vector uint16) error {
	switch vector {
	case TrapGETC:
		b := m.readByteBlocking()
		m.Reg[R0] = uint16(b)
		m.updateFlags(uint16(R0))

	case TrapOUT:
		m.writeByte(byte(m.Reg[R0]))
		m.flush()

	case TrapPUTS:
		addr := m.Reg[R0]
		for {
			word := m.Mem[addr]
			if word == 0 {
				break
			}
			m.writeByte(byte(word))
			addr++
		}
		m.flush()

	case TrapIN:
		m.writeString("Enter a character... ")
		b := m.readByteBlocking()
		m.writeByte(b)
		m.flush()
		m.Reg[R0] = uint16(b)
		m.updateFlags(uint16(R0))

	case TrapPUTSP:
		addr := m.Reg[R0]
		for {
			word := m.Mem[addr]
			if word == 0 {
				break
			}
			lo := byte(word & 0xFF)
			hi := byte(word >> 8)
			m.writeByte(lo)
			if hi != 0 {
				m.writeByte(hi)
			}
			addr++
		}
		m.flush()

	case TrapHALT:
		m.writeString("HALT\n")
		m.flush()
		return ErrHalted

	default:
		// Unknown trap vector: no effect, per the historical contract.
	}
	return nil
}

// readByteBlocking performs a blocking read through Console. With no
// Console attached it returns 0, which keeps arithmetic-only tests
// usable without a terminal.
func (m *VM) readByteBlocking() byte {
	if m.Console == nil {
		return 0
	}
	b, err := m.Console.ReadByte()
	if err != nil {
		return 0
	}
	return b
}

func (m *VM) writeByte(b byte) {
	if m.Console == nil {
		return
	}
	_ = m.Console.WriteByte(b)
}

func (m *VM) writeString(s string) {
	for i := 0; i < len(s); i++ {
		m.writeByte(s[i])
	}
}

func (m *VM) flush() {
	if m.Console == nil {
		return
	}
	_ = m.Console.Flush()
}

// formatForDebug renders an instruction word in binary alongside its
// disassembly, in the same layout as the CLI's verbose trace line.
func formatForDebug(instr uint16) string {
	return fmt.Sprintf("%#016b %s", instr, Disassemble(instr))
}
