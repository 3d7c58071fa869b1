package cpu

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/go-test/deep"

	"github.com/jmchacon/i8080/irq"
	"github.com/jmchacon/i8080/memory"
)

func newChip(t *testing.T) (*Chip, *memory.Flat) {
	t.Helper()
	m := memory.NewFlat()
	c, err := Init(&ChipDef{Mem: m})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return c, m
}

func step(t *testing.T, c *Chip) {
	t.Helper()
	if err := c.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
}

func TestInitRequiresMem(t *testing.T) {
	if _, err := Init(&ChipDef{}); err == nil {
		t.Fatal("Init with nil Mem should have errored")
	}
}

func TestRegisterPairRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		set    func(c *Chip, v uint16)
		get    func(c *Chip) uint16
		hi, lo *uint8
	}{}
	c, _ := newChip(t)
	tests = []struct {
		name   string
		set    func(c *Chip, v uint16)
		get    func(c *Chip) uint16
		hi, lo *uint8
	}{
		{"BC", (*Chip).SetBC, (*Chip).GetBC, &c.B, &c.C},
		{"DE", (*Chip).SetDE, (*Chip).GetDE, &c.D, &c.E},
		{"HL", (*Chip).SetHL, (*Chip).GetHL, &c.H, &c.L},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			test.set(c, 0xBEEF)
			if got, want := *test.hi, uint8(0xBE); got != want {
				t.Errorf("hi byte = %02X, want %02X", got, want)
			}
			if got, want := *test.lo, uint8(0xEF); got != want {
				t.Errorf("lo byte = %02X, want %02X", got, want)
			}
			if got := test.get(c); got != 0xBEEF {
				t.Errorf("get = %04X, want BEEF", got)
			}
		})
	}
}

func TestPSWRoundTrip(t *testing.T) {
	c, _ := newChip(t)
	c.A = 0x42
	c.S, c.Z, c.AC, c.P, c.CY = true, false, true, false, true
	want := c.PSW()

	c2, _ := newChip(t)
	c2.SetPSW(want)
	if diff := deep.Equal(c.flagsByte(), c2.flagsByte()); diff != nil {
		t.Errorf("flags mismatch after round trip: %v\n%s", diff, spew.Sdump(c2))
	}
	if c2.A != 0x42 {
		t.Errorf("A after round trip = %02X, want 42", c2.A)
	}
	// Bit 1 always reads 1, bits 3/5 always read 0.
	f := uint8(want)
	if f&0x02 == 0 {
		t.Error("bit 1 of packed PSW must be 1")
	}
	if f&0x28 != 0 {
		t.Error("bits 3/5 of packed PSW must be 0")
	}
}

func TestPushPopRoundTrip(t *testing.T) {
	c, _ := newChip(t)
	c.SP = 0x2000
	c.push(0xCAFE)
	if got, want := c.SP, uint16(0x1FFE); got != want {
		t.Errorf("SP after push = %04X, want %04X", got, want)
	}
	if got := c.pop(); got != 0xCAFE {
		t.Errorf("pop = %04X, want CAFE", got)
	}
	if got, want := c.SP, uint16(0x2000); got != want {
		t.Errorf("SP after pop = %04X, want %04X", got, want)
	}
}

func TestParity(t *testing.T) {
	tests := []struct {
		v    uint8
		even bool
	}{
		{0x00, true},
		{0x01, false},
		{0x03, true},
		{0xFF, true},
		{0x80, false},
	}
	for _, test := range tests {
		if got := parityEven(test.v); got != test.even {
			t.Errorf("parityEven(%02X) = %v, want %v", test.v, got, test.even)
		}
	}
}

func TestINRDoesNotTouchCY(t *testing.T) {
	c, _ := newChip(t)
	c.A = 0xFF
	c.CY = true
	c.A = c.inr(c.A)
	if !c.CY {
		t.Error("INR must not clear CY")
	}
	if c.A != 0x00 || !c.Z {
		t.Errorf("INR 0xFF -> A=%02X Z=%v, want A=00 Z=true", c.A, c.Z)
	}
}

func TestDCRDoesNotTouchCY(t *testing.T) {
	c, _ := newChip(t)
	c.CY = true
	c.A = c.dcr(0x00)
	if !c.CY {
		t.Error("DCR must not clear CY")
	}
	if c.A != 0xFF || !c.S {
		t.Errorf("DCR 0x00 -> A=%02X S=%v, want A=FF S=true", c.A, c.S)
	}
}

func TestLogicalOpsClearCYAndAC(t *testing.T) {
	c, _ := newChip(t)
	c.CY = true
	c.A = 0x0F
	c.iOra(0xF0)
	if c.CY || c.AC {
		t.Errorf("ORA must clear CY/AC, got CY=%v AC=%v", c.CY, c.AC)
	}
	c.CY = true
	c.A = 0xFF
	c.iXra(0xFF)
	if c.CY || c.AC || c.A != 0 {
		t.Errorf("XRA A,A must give 0 with CY/AC clear, got A=%02X CY=%v AC=%v", c.A, c.CY, c.AC)
	}
}

func TestDADOnlyTouchesCY(t *testing.T) {
	c, _ := newChip(t)
	c.S, c.Z, c.AC, c.P = true, true, true, true
	c.SetHL(0xFFFF)
	c.dad(1)
	if !c.CY {
		t.Error("DAD HL+1 with HL=FFFF must set CY")
	}
	if !c.S || !c.Z || !c.AC || !c.P {
		t.Error("DAD must not touch S/Z/AC/P")
	}
	if c.GetHL() != 0 {
		t.Errorf("HL after DAD overflow = %04X, want 0000", c.GetHL())
	}
}

func TestRotates(t *testing.T) {
	c, _ := newChip(t)
	c.A = 0x85
	c.rlc()
	if c.A != 0x0B || !c.CY {
		t.Errorf("RLC 85 -> A=%02X CY=%v, want A=0B CY=true", c.A, c.CY)
	}

	c, _ = newChip(t)
	c.A = 0x85
	c.rrc()
	if c.A != 0xC2 || !c.CY {
		t.Errorf("RRC 85 -> A=%02X CY=%v, want A=C2 CY=true", c.A, c.CY)
	}

	c, _ = newChip(t)
	c.A = 0x80
	c.CY = false
	c.ral()
	if c.A != 0x00 || !c.CY {
		t.Errorf("RAL 80 (CY=0) -> A=%02X CY=%v, want A=00 CY=true", c.A, c.CY)
	}

	c, _ = newChip(t)
	c.A = 0x01
	c.CY = false
	c.rar()
	if c.A != 0x00 || !c.CY {
		t.Errorf("RAR 01 (CY=0) -> A=%02X CY=%v, want A=00 CY=true", c.A, c.CY)
	}
}

func TestDAA(t *testing.T) {
	tests := []struct {
		name        string
		a           uint8
		cy, ac      bool
		wantA       uint8
		wantCY      bool
	}{
		{"no adjust needed", 0x00, false, false, 0x00, false},
		{"low nibble over 9", 0x0A, false, false, 0x10, false},
		{"AC forces low adjust", 0x0F, false, true, 0x15, false},
		{"high nibble over 9", 0xA0, false, false, 0x00, true},
		{"both nibbles need adjust", 0x9A, false, false, 0x00, true},
		{"CY forces high adjust", 0x05, true, false, 0x65, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c, _ := newChip(t)
			c.A = test.a
			c.CY = test.cy
			c.AC = test.ac
			c.daa()
			if c.A != test.wantA {
				t.Errorf("A = %02X, want %02X", c.A, test.wantA)
			}
			if c.CY != test.wantCY {
				t.Errorf("CY = %v, want %v", c.CY, test.wantCY)
			}
		})
	}
}

func TestPCWraparound(t *testing.T) {
	c, m := newChip(t)
	c.PC = 0xFFFF
	m.Write(0xFFFF, 0x00) // NOP
	step(t, c)
	if c.PC != 0x0000 {
		t.Errorf("PC after fetch at FFFF = %04X, want 0000", c.PC)
	}
}

func TestSPWraparound(t *testing.T) {
	c, _ := newChip(t)
	c.SP = 0x0001
	c.push(0x1234)
	if c.SP != 0xFFFF {
		t.Errorf("SP after push from 0001 = %04X, want FFFF", c.SP)
	}
}

func TestHaltStopsAdvancingPC(t *testing.T) {
	c, m := newChip(t)
	m.Write(0x0000, 0x76) // HLT
	step(t, c)
	if !c.Halted() {
		t.Fatal("expected halted after HLT")
	}
	pc := c.PC
	cycles := c.Cycles
	step(t, c)
	if c.PC != pc {
		t.Errorf("PC advanced while halted: %04X -> %04X", pc, c.PC)
	}
	if c.Cycles != cycles+4 {
		t.Errorf("Cycles while halted = %d, want %d", c.Cycles, cycles+4)
	}
}

// TestCallRetHaltScenario reproduces spec.md §8 scenario 6 literally: CALL
// 0x0006, which is RET back to 0x0003, then HLT; stepping once more from
// HLT leaves PC at 0x0003 and advances Cycles by the idle-halt amount.
func TestCallRetHaltScenario(t *testing.T) {
	c, m := newChip(t)
	c.SP = 0x2000
	prog := []uint8{0xCD, 0x06, 0x00, 0x76, 0x00, 0x00, 0xC9}
	for i, b := range prog {
		m.Write(uint16(i), b)
	}
	step(t, c) // CALL 0x0006
	if c.PC != 0x0006 {
		t.Fatalf("PC after CALL = %04X, want 0006", c.PC)
	}
	step(t, c) // RET, back to 0x0003
	if c.PC != 0x0003 {
		t.Fatalf("PC after RET = %04X, want 0003", c.PC)
	}
	step(t, c) // HLT
	if !c.Halted() {
		t.Fatal("expected halted after HLT")
	}
	if c.PC != 0x0003 {
		t.Fatalf("PC after HLT = %04X, want 0003", c.PC)
	}
	cycles := c.Cycles
	step(t, c) // idle tick while halted
	if c.PC != 0x0003 {
		t.Errorf("PC advanced while halted: want 0003, got %04X", c.PC)
	}
	if c.Cycles != cycles+4 {
		t.Errorf("Cycles while halted = %d, want %d", c.Cycles, cycles+4)
	}
}

// TestHaltIgnoresDisabledInterrupt covers the case a disabled (non-IE)
// pending interrupt must NOT lift HALT or execute anything: per spec.md
// §4.6/§4.7, only an *accepted* (IE-enabled) interrupt clears halted.
func TestHaltIgnoresDisabledInterrupt(t *testing.T) {
	c, m := newChip(t)
	m.Write(0x0000, 0x76) // HLT
	m.Write(0x0001, 0x3E) // MVI A,0xFF (must NOT execute)
	m.Write(0x0002, 0xFF)
	c.IE = false
	step(t, c) // HLT
	if !c.Halted() {
		t.Fatal("expected halted after HLT")
	}
	c.Interrupt(0xC7) // RST 0, posted while IE is false
	pc := c.PC
	a := c.A
	cycles := c.Cycles
	step(t, c)
	if !c.Halted() {
		t.Error("a disabled (IE=false) pending interrupt must not clear halted")
	}
	if c.PC != pc {
		t.Errorf("PC advanced while halted with a disabled pending interrupt: %04X -> %04X", pc, c.PC)
	}
	if c.A != a {
		t.Errorf("A changed while halted with a disabled pending interrupt: %02X -> %02X", a, c.A)
	}
	if c.Cycles != cycles+4 {
		t.Errorf("Cycles = %d, want %d (idle tick)", c.Cycles, cycles+4)
	}
}

func TestHaltResumesOnInterrupt(t *testing.T) {
	c, m := newChip(t)
	m.Write(0x0000, 0x76) // HLT
	c.IE = true
	step(t, c)
	if !c.Halted() {
		t.Fatal("expected halted after HLT")
	}
	c.Interrupt(0xC7) // RST 0
	step(t, c)
	if c.Halted() {
		t.Error("expected halt cleared once interrupt serviced")
	}
	if c.PC != 0x0000 {
		t.Errorf("PC after RST 0 = %04X, want 0000", c.PC)
	}
}

func TestIrqSenderPolledEachStep(t *testing.T) {
	m := memory.NewFlat()
	m.Write(0x0000, 0x00) // NOP
	src := irq.NewFixed(0xCF)
	c, err := Init(&ChipDef{Mem: m, Irq: src})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	c.IE = true
	src.Arm()
	step(t, c)
	if c.PC != 0x0008 {
		t.Errorf("PC after polled RST 1 = %04X, want 0008", c.PC)
	}
}

func TestEIDelaysOneInstruction(t *testing.T) {
	c, m := newChip(t)
	m.Write(0x0000, 0xFB) // EI
	m.Write(0x0001, 0x00) // NOP
	m.Write(0x0002, 0x00) // NOP
	step(t, c)             // executes EI
	if c.IE {
		t.Error("IE must not be set immediately after EI")
	}
	step(t, c) // executes first NOP after EI
	if !c.IE {
		t.Error("IE must be set after the instruction following EI completes")
	}
}

func TestConditionalCallTakenSurcharge(t *testing.T) {
	c, m := newChip(t)
	c.SP = 0x2000
	m.Write(0x0000, 0xC4) // CNZ a16
	m.Write(0x0001, 0x00)
	m.Write(0x0002, 0x10)
	c.Z = false
	step(t, c)
	if c.Cycles != 11+6 {
		t.Errorf("Cycles after taken CNZ = %d, want 17", c.Cycles)
	}
	if c.PC != 0x1000 {
		t.Errorf("PC after taken CNZ = %04X, want 1000", c.PC)
	}
}

func TestConditionalCallNotTakenNoSurcharge(t *testing.T) {
	c, m := newChip(t)
	m.Write(0x0000, 0xC4) // CNZ a16
	m.Write(0x0001, 0x00)
	m.Write(0x0002, 0x10)
	c.Z = true
	step(t, c)
	if c.Cycles != 11 {
		t.Errorf("Cycles after not-taken CNZ = %d, want 11", c.Cycles)
	}
	if c.PC != 0x0003 {
		t.Errorf("PC after not-taken CNZ = %04X, want 0003", c.PC)
	}
}

func TestUnconditionalCallNoSurcharge(t *testing.T) {
	for _, op := range []uint8{0xCD, 0xDD, 0xED, 0xFD} {
		c, m := newChip(t)
		c.SP = 0x2000
		m.Write(0x0000, op) // CALL a16 (or alias)
		m.Write(0x0001, 0x00)
		m.Write(0x0002, 0x10)
		step(t, c)
		if c.Cycles != 17 {
			t.Errorf("opcode 0x%02X: Cycles = %d, want 17 (no taken surcharge on unconditional CALL)", op, c.Cycles)
		}
		if c.PC != 0x1000 {
			t.Errorf("opcode 0x%02X: PC = %04X, want 1000", op, c.PC)
		}
	}
}

func TestConditionalJumpNeverSurcharged(t *testing.T) {
	c, m := newChip(t)
	m.Write(0x0000, 0xCA) // JZ a16
	m.Write(0x0001, 0x00)
	m.Write(0x0002, 0x10)
	c.Z = true
	step(t, c)
	if c.Cycles != 10 {
		t.Errorf("Cycles after taken JZ = %d, want 10 (no surcharge)", c.Cycles)
	}
	if c.PC != 0x1000 {
		t.Errorf("PC after taken JZ = %04X, want 1000", c.PC)
	}
}

func TestUndocumentedAliases(t *testing.T) {
	tests := []struct {
		name string
		op   uint8
	}{
		{"NOP 08", 0x08},
		{"NOP 10", 0x10},
		{"NOP 18", 0x18},
		{"NOP 20", 0x20},
		{"NOP 28", 0x28},
		{"NOP 30", 0x30},
		{"NOP 38", 0x38},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c, m := newChip(t)
			m.Write(0x0000, test.op)
			before := *c
			step(t, c)
			before.PC = c.PC
			before.Cycles = c.Cycles
			if diff := deep.Equal(*c, before); diff != nil {
				t.Errorf("undocumented NOP 0x%02X changed state: %v", test.op, diff)
			}
		})
	}

	c, m := newChip(t)
	c.SP = 0x2000
	m.Write(0x0000, 0xC3) // JMP 0x0200
	m.Write(0x0001, 0x00)
	m.Write(0x0002, 0x02)
	m.Write(0x0200, 0xD9) // RET (alias)
	c.push(0x9999)
	step(t, c)
	step(t, c)
	if c.PC != 0x9999 {
		t.Errorf("0xD9 alias RET -> PC = %04X, want 9999", c.PC)
	}

	for _, op := range []uint8{0xCB, 0xDD, 0xED, 0xFD} {
		c, m := newChip(t)
		m.Write(0x0000, op)
		m.Write(0x0001, 0x34)
		m.Write(0x0002, 0x12)
		step(t, c)
		if c.PC != 0x1234 {
			t.Errorf("alias opcode 0x%02X -> PC = %04X, want 1234", op, c.PC)
		}
	}
}

// TestEndToEndLoop exercises a small self-contained program: load an
// immediate, loop decrementing B until zero, counting iterations in C.
func TestEndToEndLoop(t *testing.T) {
	c, m := newChip(t)
	prog := []uint8{
		0x06, 0x05, // MVI B,5
		0x0E, 0x00, // MVI C,0
		// loop:
		0x0C,       // INR C
		0x05,       // DCR B
		0xC2, 0x04, 0x00, // JNZ loop
		0x76, // HLT
	}
	for i, b := range prog {
		m.Write(uint16(i), b)
	}
	for i := 0; i < 100 && !c.Halted(); i++ {
		step(t, c)
	}
	if !c.Halted() {
		t.Fatal("program did not halt")
	}
	if c.C != 5 {
		t.Errorf("C = %d, want 5 iterations", c.C)
	}
	if c.B != 0 {
		t.Errorf("B = %d, want 0", c.B)
	}
}

func TestUnhandledOpcodeUnreachableButTyped(t *testing.T) {
	var err error = UnhandledOpcode{Opcode: 0xFF}
	if err.Error() == "" {
		t.Error("UnhandledOpcode.Error() should not be empty")
	}
	var err2 error = InvalidState{Reason: "test"}
	if err2.Error() == "" {
		t.Error("InvalidState.Error() should not be empty")
	}
}
