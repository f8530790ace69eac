package vm

import "fmt"

// Disassemble renders a single LC-3 instruction word as assembly text.
// It never fails: every 4-bit opcode slot is covered, and an unused
// opcode (RTI, RES) renders as its mnemonic with no operands.
func Disassemble(instr uint16) string {
	op := decodeOpcode(instr)
	switch op {
	case OpBR:
		nzp := (instr >> 9) & 0x7
		offset := int16(signExtend(instr&0x1FF, 9))
		return fmt.Sprintf("br%s%s%s %d", flagLetter(nzp, 0x4, "n"), flagLetter(nzp, 0x2, "z"), flagLetter(nzp, 0x1, "p"), offset)
	case OpADD:
		dr, sr1 := (instr>>9)&0x7, (instr>>6)&0x7
		if (instr>>5)&0x1 != 0 {
			imm5 := int16(signExtend(instr&0x1F, 5))
			return fmt.Sprintf("add r%d r%d %d", dr, sr1, imm5)
		}
		sr2 := instr & 0x7
		return fmt.Sprintf("add r%d r%d r%d", dr, sr1, sr2)
	case OpLD:
		dr := (instr >> 9) & 0x7
		offset := int16(signExtend(instr&0x1FF, 9))
		return fmt.Sprintf("ld r%d %d", dr, offset)
	case OpST:
		sr := (instr >> 9) & 0x7
		offset := int16(signExtend(instr&0x1FF, 9))
		return fmt.Sprintf("st r%d %d", sr, offset)
	case OpJSR:
		if (instr>>11)&0x1 != 0 {
			offset := int16(signExtend(instr&0x7FF, 11))
			return fmt.Sprintf("jsr %d", offset)
		}
		base := (instr >> 6) & 0x7
		return fmt.Sprintf("jsrr r%d", base)
	case OpAND:
		dr, sr1 := (instr>>9)&0x7, (instr>>6)&0x7
		if (instr>>5)&0x1 != 0 {
			imm5 := int16(signExtend(instr&0x1F, 5))
			return fmt.Sprintf("and r%d r%d %d", dr, sr1, imm5)
		}
		sr2 := instr & 0x7
		return fmt.Sprintf("and r%d r%d r%d", dr, sr1, sr2)
	case OpLDR:
		dr, base := (instr>>9)&0x7, (instr>>6)&0x7
		offset := int16(signExtend(instr&0x3F, 6))
		return fmt.Sprintf("ldr r%d r%d %d", dr, base, offset)
	case OpSTR:
		sr, base := (instr>>9)&0x7, (instr>>6)&0x7
		offset := int16(signExtend(instr&0x3F, 6))
		return fmt.Sprintf("str r%d r%d %d", sr, base, offset)
	case OpRTI:
		return "rti"
	case OpNOT:
		dr, sr := (instr>>9)&0x7, (instr>>6)&0x7
		return fmt.Sprintf("not r%d r%d", dr, sr)
	case OpLDI:
		dr := (instr >> 9) & 0x7
		offset := int16(signExtend(instr&0x1FF, 9))
		return fmt.Sprintf("ldi r%d %d", dr, offset)
	case OpSTI:
		sr := (instr >> 9) & 0x7
		offset := int16(signExtend(instr&0x1FF, 9))
		return fmt.Sprintf("sti r%d %d", sr, offset)
	case OpJMP:
		base := (instr >> 6) & 0x7
		if base == 7 {
			return "ret"
		}
		return fmt.Sprintf("jmp r%d", base)
	case OpRES:
		return "res"
	case OpLEA:
		dr := (instr >> 9) & 0x7
		offset := int16(signExtend(instr&0x1FF, 9))
		return fmt.Sprintf("lea r%d %d", dr, offset)
	case OpTRAP:
		return trapMnemonic(instr & 0xFF)
	default:
		return fmt.Sprintf("<unknown instruction: %#04x>", instr)
	}
}

func flagLetter(nzp, bit uint16, letter string) string {
	if nzp&bit != 0 {
		return letter
	}
	return ""
}

func trapMnemonic(vector uint16) string {
	switch vector {
	case TrapGETC:
		return "trap getc"
	case TrapOUT:
		return "trap out"
	case TrapPUTS:
		return "trap puts"
	case TrapIN:
		return "trap in"
	case TrapPUTSP:
		return "trap putsp"
	case TrapHALT:
		return "trap halt"
	default:
		return fmt.Sprintf("trap %#02x", vector)
	}
}
