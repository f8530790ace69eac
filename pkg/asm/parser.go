package asm

import (
	"fmt"
	"strconv"
	"strings"
)

// stmtKind distinguishes the three shapes a parsed line can take.
type stmtKind int

const (
	stmtOrig stmtKind = iota
	stmtInstr
	stmtEnd
)

// Statement is one parsed source line.
type Statement struct {
	Kind   stmtKind
	Origin uint16      // valid when Kind == stmtOrig
	Instr  Instruction // valid when Kind == stmtInstr
}

// StatementOrError is what StartParsing sends: exactly one of Stmt or
// Err is meaningful.
type StatementOrError struct {
	Stmt Statement
	Err  error
}

// StartParsing consumes lines from StartLexing on its own goroutine and
// emits one StatementOrError per line, stopping after a .END directive
// or when lines is closed. A label may share a line with an
// instruction or directive ("LOOP ADD R0 R0 R1"); it may also appear
// alone, in which case it binds to the address of the following line.
func StartParsing(lines <-chan Line) <-chan StatementOrError {
	out := make(chan StatementOrError)
	go func() {
		defer close(out)
		pendingLabel := ""
		for ln := range lines {
			fields := tokenize(ln.Text)
			if len(fields) == 0 {
				continue
			}
			label := ""
			if !isMnemonicOrDirective(fields[0]) {
				label = fields[0]
				fields = fields[1:]
				if len(fields) == 0 {
					// Label-only line: carry it forward to the next
					// instruction or directive.
					pendingLabel = label
					continue
				}
			}
			if label == "" {
				label = pendingLabel
			}
			pendingLabel = ""

			stmt, err := parseStatement(label, ln.Num, fields)
			out <- StatementOrError{Stmt: stmt, Err: err}
			if err == nil && stmt.Kind == stmtEnd {
				return
			}
		}
	}()
	return out
}

func isMnemonicOrDirective(tok string) bool {
	if strings.HasPrefix(tok, ".") {
		return true
	}
	_, ok := mnemonics[strings.ToUpper(tok)]
	return ok
}

// tokenize splits a line into fields on whitespace and commas.
func tokenize(text string) []string {
	replaced := strings.ReplaceAll(text, ",", " ")
	return strings.Fields(replaced)
}

var mnemonics = map[string]bool{
	"ADD": true, "AND": true, "NOT": true, "BR": true, "BRN": true, "BRZ": true,
	"BRP": true, "BRNZ": true, "BRNP": true, "BRZP": true, "BRNZP": true,
	"LD": true, "ST": true, "LDI": true, "STI": true, "LDR": true, "STR": true,
	"LEA": true, "JMP": true, "RET": true, "JSR": true, "JSRR": true,
	"TRAP": true, "GETC": true, "OUT": true, "PUTS": true, "IN": true,
	"PUTSP": true, "HALT": true, "RTI": true,
}

func parseStatement(label string, lineNo int, fields []string) (Statement, error) {
	op := strings.ToUpper(fields[0])
	args := fields[1:]
	b := base{label: label, line: lineNo}

	if strings.HasPrefix(op, ".") {
		return parseDirective(b, op, args)
	}
	instr, err := parseInstruction(b, op, args)
	if err != nil {
		return Statement{}, err
	}
	return Statement{Kind: stmtInstr, Instr: instr}, nil
}

func parseDirective(b base, op string, args []string) (Statement, error) {
	switch op {
	case ".ORIG":
		if len(args) != 1 {
			return Statement{}, fmt.Errorf("line %d: .ORIG wants one operand", b.line)
		}
		v, err := parseLiteral(args[0])
		if err != nil {
			return Statement{}, fmt.Errorf("line %d: %w", b.line, err)
		}
		return Statement{Kind: stmtOrig, Origin: v}, nil

	case ".END":
		return Statement{Kind: stmtEnd}, nil

	case ".FILL":
		if len(args) != 1 {
			return Statement{}, fmt.Errorf("line %d: .FILL wants one operand", b.line)
		}
		opnd, err := parseOperand(args[0])
		if err != nil {
			return Statement{}, fmt.Errorf("line %d: %w", b.line, err)
		}
		return Statement{Kind: stmtInstr, Instr: &fillOp{base: b, value: opnd}}, nil

	case ".BLKW":
		if len(args) != 1 {
			return Statement{}, fmt.Errorf("line %d: .BLKW wants one operand", b.line)
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			return Statement{}, fmt.Errorf("line %d: bad .BLKW count %q", b.line, args[0])
		}
		return Statement{Kind: stmtInstr, Instr: &blkwOp{base: b, count: n}}, nil

	case ".STRINGZ":
		text, err := unquote(strings.Join(args, " "))
		if err != nil {
			return Statement{}, fmt.Errorf("line %d: %w", b.line, err)
		}
		return Statement{Kind: stmtInstr, Instr: &stringzOp{base: b, text: text}}, nil

	default:
		return Statement{}, fmt.Errorf("line %d: unknown directive %q", b.line, op)
	}
}

func parseInstruction(b base, op string, args []string) (Instruction, error) {
	reg := func(s string) (uint8, error) {
		s = strings.ToUpper(s)
		if len(s) != 2 || s[0] != 'R' || s[1] < '0' || s[1] > '7' {
			return 0, fmt.Errorf("line %d: bad register %q", b.line, s)
		}
		return uint8(s[1] - '0'), nil
	}
	need := func(n int) error {
		if len(args) != n {
			return fmt.Errorf("line %d: %s wants %d operand(s), got %d", b.line, op, n, len(args))
		}
		return nil
	}

	switch op {
	case "ADD", "AND":
		if err := need(3); err != nil {
			return nil, err
		}
		dr, err := reg(args[0])
		if err != nil {
			return nil, err
		}
		sr1, err := reg(args[1])
		if err != nil {
			return nil, err
		}
		opcode := uint16(0x1)
		if op == "AND" {
			opcode = 0x5
		}
		if sr2, err := reg(args[2]); err == nil {
			return &regOp{base: b, opcode: opcode, dr: dr, sr1: sr1, sr2: sr2}, nil
		}
		v, err := strconv.ParseInt(strings.TrimPrefix(args[2], "#"), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad third operand %q", b.line, args[2])
		}
		return &regOp{base: b, opcode: opcode, dr: dr, sr1: sr1, imm: v, useImm: true}, nil

	case "NOT":
		if err := need(2); err != nil {
			return nil, err
		}
		dr, err := reg(args[0])
		if err != nil {
			return nil, err
		}
		sr, err := reg(args[1])
		if err != nil {
			return nil, err
		}
		return &notOp{base: b, dr: dr, sr: sr}, nil

	case "BR", "BRN", "BRZ", "BRP", "BRNZ", "BRNP", "BRZP", "BRNZP":
		if err := need(1); err != nil {
			return nil, err
		}
		nzp := branchFlags(op)
		opnd, err := parseOperand(args[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", b.line, err)
		}
		return &pcRelOp{base: b, opcode: 0x0, nzpOrR: nzp, target: opnd}, nil

	case "LD", "LDI", "STI", "LEA", "ST":
		if err := need(2); err != nil {
			return nil, err
		}
		r, err := reg(args[0])
		if err != nil {
			return nil, err
		}
		opnd, err := parseOperand(args[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", b.line, err)
		}
		opcode := map[string]uint16{"LD": 0x2, "ST": 0x3, "LDI": 0xA, "STI": 0xB, "LEA": 0xE}[op]
		return &pcRelOp{base: b, opcode: opcode, nzpOrR: uint16(r), target: opnd}, nil

	case "LDR", "STR":
		if err := need(3); err != nil {
			return nil, err
		}
		r, err := reg(args[0])
		if err != nil {
			return nil, err
		}
		br, err := reg(args[1])
		if err != nil {
			return nil, err
		}
		v, err := strconv.ParseInt(strings.TrimPrefix(args[2], "#"), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad offset %q", b.line, args[2])
		}
		opcode := uint16(0x6)
		if op == "STR" {
			opcode = 0x7
		}
		return &ldrStrOp{base: b, opcode: opcode, reg: r, baseR: br, offset6: v}, nil

	case "JMP":
		if err := need(1); err != nil {
			return nil, err
		}
		br, err := reg(args[0])
		if err != nil {
			return nil, err
		}
		return &baseRegOp{base: b, opcode: 0xC, baseR: br}, nil

	case "RET":
		if err := need(0); err != nil {
			return nil, err
		}
		return &baseRegOp{base: b, opcode: 0xC, baseR: 7}, nil

	case "JSRR":
		if err := need(1); err != nil {
			return nil, err
		}
		br, err := reg(args[0])
		if err != nil {
			return nil, err
		}
		return &baseRegOp{base: b, opcode: 0x4, baseR: br}, nil

	case "JSR":
		if err := need(1); err != nil {
			return nil, err
		}
		opnd, err := parseOperand(args[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", b.line, err)
		}
		return &jsrOp{base: b, target: opnd}, nil

	case "TRAP":
		if err := need(1); err != nil {
			return nil, err
		}
		v, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimPrefix(args[0], "x"), "X"), 16, 32)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad trap vector %q", b.line, args[0])
		}
		return &trapOp{base: b, vector: uint16(v)}, nil

	case "GETC":
		return &trapOp{base: b, vector: 0x20}, nil
	case "OUT":
		return &trapOp{base: b, vector: 0x21}, nil
	case "PUTS":
		return &trapOp{base: b, vector: 0x22}, nil
	case "IN":
		return &trapOp{base: b, vector: 0x23}, nil
	case "PUTSP":
		return &trapOp{base: b, vector: 0x24}, nil
	case "HALT":
		return &haltOp{base: b}, nil

	case "RTI":
		return &trapOp{base: b, vector: 0}, fmt.Errorf("line %d: RTI is not assemblable; this VM runs unprivileged", b.line)

	default:
		return nil, fmt.Errorf("line %d: unknown mnemonic %q", b.line, op)
	}
}

func branchFlags(op string) uint16 {
	switch op {
	case "BR", "BRNZP":
		return 0x7
	case "BRN":
		return 0x4
	case "BRZ":
		return 0x2
	case "BRP":
		return 0x1
	case "BRNZ":
		return 0x6
	case "BRNP":
		return 0x5
	case "BRZP":
		return 0x3
	default:
		return 0x7
	}
}

func parseLiteral(s string) (uint16, error) {
	opnd, err := parseOperand(s)
	if err != nil {
		return 0, err
	}
	if opnd.isLabel {
		return 0, fmt.Errorf("expected a literal, got label %q", opnd.label)
	}
	return uint16(opnd.literal), nil
}

func unquote(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", fmt.Errorf("expected a quoted string, got %q", s)
	}
	unescaped, err := strconv.Unquote(s)
	if err != nil {
		return "", fmt.Errorf("bad string literal %q: %w", s, err)
	}
	return unescaped, nil
}
