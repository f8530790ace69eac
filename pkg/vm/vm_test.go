package vm

import (
	"bytes"
	"strings"
	"testing"
)

// testConsole is a minimal in-memory Console used by tests that need
// trap I/O without a real terminal.
type testConsole struct {
	in  *bytes.Reader
	out bytes.Buffer
}

func newTestConsole(input string) *testConsole {
	return &testConsole{in: bytes.NewReader([]byte(input))}
}

func (c *testConsole) KeyAvailable() bool { return c.in.Len() > 0 }

func (c *testConsole) ReadByte() (byte, error) { return c.in.ReadByte() }

func (c *testConsole) WriteByte(b byte) error { return c.out.WriteByte(b) }

func (c *testConsole) Flush() error { return nil }

// loadWords places a sequence of words at origin directly into memory,
// bypassing LoadImage, so tests can build tiny programs inline.
func loadWords(m *VM, origin uint16, words ...uint16) {
	for i, w := range words {
		m.Mem[origin+uint16(i)] = w
	}
}

func TestAddImmediatePositive(t *testing.T) {
	m := New(nil)
	// ADD R0, R0, #3 ; TRAP HALT
	loadWords(m, PCStart, 0x1023, 0xF025)
	if err := m.Run(nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if m.Reg[R0] != 3 {
		t.Errorf("R0 = %#04x, want 0x0003", m.Reg[R0])
	}
	if m.Reg[RCOND] != FlagPOS {
		t.Errorf("COND = %03b, want P", m.Reg[RCOND])
	}
}

func TestAddOverflowWraps(t *testing.T) {
	m := New(nil)
	m.Reg[R0] = 0x7FFF
	// ADD R0, R0, #1 ; TRAP HALT
	loadWords(m, PCStart, 0x1021, 0xF025)
	if err := m.Run(nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if m.Reg[R0] != 0x8000 {
		t.Errorf("R0 = %#04x, want 0x8000", m.Reg[R0])
	}
	if m.Reg[RCOND] != FlagNEG {
		t.Errorf("COND = %03b, want N", m.Reg[RCOND])
	}
}

func TestLeaAndPuts(t *testing.T) {
	con := newTestConsole("")
	m := New(con)
	// LEA R0, #2 ; TRAP PUTS ; TRAP HALT ; 'H' ; 'I' ; 0
	//
	// PUTS does not redirect control flow, so the string must live after
	// the HALT that follows it, not fall through into it.
	loadWords(m, PCStart, 0xE002, 0xF022, 0xF025, 0x0048, 0x0049, 0x0000)
	if err := m.Run(nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	got := con.out.String()
	want := "HIHALT\n"
	if got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestBrTakenOnZero(t *testing.T) {
	m := New(nil)
	// AND R0, R0, #0 (COND=Z) ; BRz +2 ; <skipped> ; <skipped> ; TRAP HALT
	loadWords(m, PCStart,
		0x5020, // AND R0, R0, #0
		0x0402, // BRz #2
		0xF025, // would HALT if not skipped
		0xF025, // would HALT if not skipped
		0xF025, // actual HALT
	)
	startPC := m.Reg[RPC]
	if err := m.Step(); err != nil {
		t.Fatalf("and step: %v", err)
	}
	if m.Reg[RCOND] != FlagZRO {
		t.Fatalf("COND = %03b, want Z", m.Reg[RCOND])
	}
	if err := m.Step(); err != nil {
		t.Fatalf("br step: %v", err)
	}
	wantPC := startPC + 2 + 2 // past AND, past BR, plus offset 2
	if m.Reg[RPC] != wantPC {
		t.Errorf("PC = %#04x, want %#04x", m.Reg[RPC], wantPC)
	}
	if err := m.Run(nil); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestJsrThenRet(t *testing.T) {
	m := New(nil)
	m.Reg[R0] = 0x00FF
	// JSR sub ; TRAP HALT ; sub: NOT R0 R0 ; JMP R7 (RET)
	// sub is one word past the incremented PC, so pcOffset11 = 1.
	loadWords(m, PCStart,
		0x4801, // JSR #1
		0xF025, // HALT (return lands here)
		0x903F, // NOT R0 R0
		0xC1C0, // JMP R7 (base register 7)
	)
	returnAddr := PCStart + 1
	if err := m.Step(); err != nil { // JSR
		t.Fatalf("jsr step: %v", err)
	}
	if m.Reg[R7] != returnAddr {
		t.Errorf("R7 = %#04x, want %#04x", m.Reg[R7], returnAddr)
	}
	if err := m.Step(); err != nil { // NOT
		t.Fatalf("not step: %v", err)
	}
	if m.Reg[R0] != ^uint16(0x00FF) {
		t.Errorf("R0 = %#04x, want %#04x", m.Reg[R0], ^uint16(0x00FF))
	}
	if err := m.Step(); err != nil { // JMP R7
		t.Fatalf("jmp step: %v", err)
	}
	if m.Reg[RPC] != returnAddr {
		t.Errorf("PC = %#04x after RET, want %#04x", m.Reg[RPC], returnAddr)
	}
	if err := m.Run(nil); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestLdiIndirection(t *testing.T) {
	m := New(nil)
	// LDI R1, (0x3050 - PC_after_advance) ; TRAP HALT
	pcAfterFetch := PCStart + 1
	offset := uint16(0x3050 - pcAfterFetch)
	instr := uint16(0xA000) | (1 << 9) | (offset & 0x1FF)
	loadWords(m, PCStart, instr, 0xF025)
	m.Mem[0x3050] = 0x4000
	m.Mem[0x4000] = 0x1234
	if err := m.Run(nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if m.Reg[R1] != 0x1234 {
		t.Errorf("R1 = %#04x, want 0x1234", m.Reg[R1])
	}
	if m.Reg[RCOND] != FlagPOS {
		t.Errorf("COND = %03b, want P", m.Reg[RCOND])
	}
}

func TestPcWrapsAtTopOfMemory(t *testing.T) {
	m := New(nil)
	m.Reg[RPC] = 0xFFFF
	m.Mem[0xFFFF] = 0xF025 // TRAP HALT
	if err := m.Step(); err != ErrHalted {
		t.Fatalf("step err = %v, want ErrHalted", err)
	}
	if m.Reg[RPC] != 0x0000 {
		t.Errorf("PC = %#04x after wrap, want 0x0000", m.Reg[RPC])
	}
}

func TestOffsetWrapOnLoad(t *testing.T) {
	m := New(nil)
	m.Reg[RPC] = 0xFFF0
	// LD R0, #0x10 relative to PC after advance (0xFFF1): target address
	// 0xFFF1 + 0x10 = 0x10001, which wraps modulo 2^16 to 0x0001.
	instr := uint16(0x2000) | (0x10 & 0x1FF)
	m.Mem[0xFFF0] = instr
	m.Mem[0x0001] = 0x00AB
	if err := m.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	if m.Reg[R0] != 0x00AB {
		t.Errorf("R0 = %#04x, want 0x00AB", m.Reg[R0])
	}
}

func TestKbsrNoKeyYieldsZeroAndLeavesKbdr(t *testing.T) {
	con := newTestConsole("")
	m := New(con)
	m.Mem[MRKBDR] = 0x0042
	got := m.read(MRKBSR)
	if got != 0 {
		t.Errorf("KBSR = %#04x, want 0", got)
	}
	if m.Mem[MRKBDR] != 0x0042 {
		t.Errorf("KBDR mutated to %#04x, want unchanged 0x0042", m.Mem[MRKBDR])
	}
}

func TestKbsrKeyAvailableSetsStatusAndData(t *testing.T) {
	con := newTestConsole("A")
	m := New(con)
	got := m.read(MRKBSR)
	if got != 0x8000 {
		t.Errorf("KBSR = %#04x, want 0x8000", got)
	}
	if m.Mem[MRKBDR] != uint16('A') {
		t.Errorf("KBDR = %#04x, want %#04x", m.Mem[MRKBDR], uint16('A'))
	}
}

func TestNotNotIsIdentityUnderUpdateFlags(t *testing.T) {
	m := New(nil)
	m.Reg[R0] = 0x1234
	// NOT R1 R0 ; NOT R2 R1
	loadWords(m, PCStart, 0x923F, 0x947F)
	if err := m.Step(); err != nil {
		t.Fatalf("step1: %v", err)
	}
	if err := m.Step(); err != nil {
		t.Fatalf("step2: %v", err)
	}
	if m.Reg[R2] != m.Reg[R0] {
		t.Errorf("NOT(NOT(x)) = %#04x, want %#04x", m.Reg[R2], m.Reg[R0])
	}
	wantCond := FlagPOS
	if m.Reg[RCOND] != uint16(wantCond) {
		t.Errorf("COND after NOT(NOT(x)) = %03b, want %03b", m.Reg[RCOND], wantCond)
	}
}

func TestSignExtend(t *testing.T) {
	tests := []struct {
		name     string
		value    uint16
		bits     uint
		expected uint16
	}{
		{"5-bit positive", 0x0F, 5, 0x000F},
		{"5-bit negative", 0x1F, 5, 0xFFFF},
		{"9-bit positive top-bit-clear", 0x0FF, 9, 0x00FF},
		{"9-bit negative", 0x1FF, 9, 0xFFFF},
		{"11-bit negative", 0x7FF, 11, 0xFFFF},
		{"11-bit positive", 0x3FF, 11, 0x03FF},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := signExtend(tc.value, tc.bits); got != tc.expected {
				t.Errorf("signExtend(%#x, %d) = %#04x, want %#04x", tc.value, tc.bits, got, tc.expected)
			}
		})
	}
}

func TestSwap16RoundTrip(t *testing.T) {
	values := []uint16{0x0000, 0xFFFF, 0x1234, 0x00FF, 0xFF00, 0x3000}
	for _, v := range values {
		if got := swap16(swap16(v)); got != v {
			t.Errorf("swap16(swap16(%#04x)) = %#04x, want %#04x", v, got, v)
		}
	}
}

func TestLoadImageOrigin(t *testing.T) {
	m := New(nil)
	// Origin 0x3000, then two words 0x1023 and 0xF025 big-endian.
	raw := []byte{0x30, 0x00, 0x10, 0x23, 0xF0, 0x25}
	if err := m.LoadImage(bytes.NewReader(raw)); err != nil {
		t.Fatalf("load: %v", err)
	}
	if m.Mem[0x3000] != 0x1023 {
		t.Errorf("mem[0x3000] = %#04x, want 0x1023", m.Mem[0x3000])
	}
	if m.Mem[0x3001] != 0xF025 {
		t.Errorf("mem[0x3001] = %#04x, want 0xF025", m.Mem[0x3001])
	}
}

func TestLoadImageTruncatesAtMemoryBoundary(t *testing.T) {
	m := New(nil)
	origin := []byte{0xFF, 0xFF} // origin 0xFFFF: room for exactly one word
	body := []byte{0x11, 0x11, 0x22, 0x22}
	raw := append(append([]byte{}, origin...), body...)
	if err := m.LoadImage(bytes.NewReader(raw)); err != nil {
		t.Fatalf("load: %v", err)
	}
	if m.Mem[0xFFFF] != 0x1111 {
		t.Errorf("mem[0xFFFF] = %#04x, want 0x1111", m.Mem[0xFFFF])
	}
}

func TestLoadImageTruncatedTrailingByteIgnored(t *testing.T) {
	m := New(nil)
	raw := []byte{0x30, 0x00, 0x10, 0x23, 0xFF}
	if err := m.LoadImage(bytes.NewReader(raw)); err != nil {
		t.Fatalf("load: %v", err)
	}
	if m.Mem[0x3000] != 0x1023 {
		t.Errorf("mem[0x3000] = %#04x, want 0x1023", m.Mem[0x3000])
	}
	if m.Mem[0x3001] != 0 {
		t.Errorf("mem[0x3001] = %#04x, want 0 (truncated trailing byte ignored)", m.Mem[0x3001])
	}
}

func TestDisassembleCoversAllOpcodes(t *testing.T) {
	for op := uint16(0); op < 16; op++ {
		instr := op << 12
		got := Disassemble(instr)
		if strings.Contains(got, "unknown") {
			t.Errorf("Disassemble(%#04x) = %q, opcode %d has no case", instr, got, op)
		}
	}
}

func TestCondAlwaysExactlyOneFlag(t *testing.T) {
	m := New(nil)
	programs := [][]uint16{
		{0x1023, 0xF025}, // ADD positive
		{0x5020, 0xF025}, // AND zero
		{0x1FFF, 0xF025}, // ADD producing negative
	}
	for _, words := range programs {
		m.Reset()
		loadWords(m, PCStart, words...)
		if err := m.Run(nil); err != nil {
			t.Fatalf("run: %v", err)
		}
		cond := m.Reg[RCOND]
		count := 0
		for _, f := range []uint16{FlagNEG, FlagZRO, FlagPOS} {
			if cond&f != 0 {
				count++
			}
		}
		if count != 1 {
			t.Errorf("COND = %03b has %d flags set, want exactly 1", cond, count)
		}
	}
}
