// Copyright 2025 the NB65C02 authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpu_test

import (
	"testing"

	"github.com/MadFly-Team/NB65C02/asm"
	"github.com/MadFly-Team/NB65C02/cpu"
)

func loadCPU(t *testing.T, asmString string) *cpu.CPU {
	t.Helper()

	assembly, _, err := asm.Assemble(asmString, "test.asm", nil, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if assembly.Origin == nil {
		t.Fatal("assembly has no origin")
	}

	mem := cpu.NewFlatMemory()
	c := cpu.New(mem)
	mem.StoreBytes(*assembly.Origin, assembly.Bytes())
	c.Reset(*assembly.Origin)
	return c
}

func loadBytes(start uint16, code []byte) *cpu.CPU {
	mem := cpu.NewFlatMemory()
	c := cpu.New(mem)
	mem.StoreBytes(start, code)
	c.Reset(start)
	return c
}

func stepCPU(c *cpu.CPU, steps int) {
	for i := 0; i < steps; i++ {
		c.Step()
	}
}

func runCPU(t *testing.T, asmString string, steps int) *cpu.CPU {
	t.Helper()
	c := loadCPU(t, asmString)
	stepCPU(c, steps)
	return c
}

func expectPC(t *testing.T, c *cpu.CPU, pc uint16) {
	t.Helper()
	if c.Reg.PC != pc {
		t.Errorf("PC incorrect. exp: $%04X, got: $%04X", pc, c.Reg.PC)
	}
}

func expectCycles(t *testing.T, c *cpu.CPU, cycles uint64) {
	t.Helper()
	if c.Cycles != cycles {
		t.Errorf("Cycles incorrect. exp: %d, got: %d", cycles, c.Cycles)
	}
}

func expectACC(t *testing.T, c *cpu.CPU, acc byte) {
	t.Helper()
	if c.Reg.A != acc {
		t.Errorf("Accumulator incorrect. exp: $%02X, got: $%02X", acc, c.Reg.A)
	}
}

func expectSP(t *testing.T, c *cpu.CPU, sp byte) {
	t.Helper()
	if c.Reg.SP != sp {
		t.Errorf("stack pointer incorrect. exp: $%02X, got: $%02X", sp, c.Reg.SP)
	}
}

func expectMem(t *testing.T, c *cpu.CPU, addr uint16, v byte) {
	t.Helper()
	got := c.Mem.LoadByte(addr)
	if got != v {
		t.Errorf("Memory at $%04X incorrect. exp: $%02X, got: $%02X", addr, v, got)
	}
}

func TestReset(t *testing.T) {
	c := loadBytes(0x1900, []byte{0xea})
	c.Reg.A, c.Reg.X, c.Reg.Y = 1, 2, 3
	c.Reg.Carry = true
	stepCPU(c, 5)

	c.Reset(0x1234)
	if c.Cycles != 0 {
		t.Errorf("cycles not cleared: %d", c.Cycles)
	}
	if c.Halted {
		t.Error("halted not cleared")
	}
	expectSP(t, c, 0xfd)
	expectPC(t, c, 0x1234)
	if c.Reg.A != 0 || c.Reg.X != 0 || c.Reg.Y != 0 {
		t.Error("registers not cleared")
	}
	if c.Reg.Carry || c.Reg.Zero || c.Reg.InterruptDisable ||
		c.Reg.Decimal || c.Reg.Overflow || c.Reg.Sign {
		t.Error("flags not cleared")
	}
}

func TestStepHelloWorld(t *testing.T) {
	// LDA #'A' / JSR $FFEE / RTS loaded at $1900.
	c := loadBytes(0x1900, []byte{0xa9, 0x41, 0x20, 0xee, 0xff, 0x60})

	if n := c.Step(); n != 2 {
		t.Errorf("LDA cycles incorrect: %d", n)
	}
	expectACC(t, c, 0x41)
	expectPC(t, c, 0x1902)
	expectCycles(t, c, 2)

	// The JSR targets the MOS region, so it is skipped: no control
	// transfer, no push.
	if n := c.Step(); n != 6 {
		t.Errorf("JSR cycles incorrect: %d", n)
	}
	expectPC(t, c, 0x1905)
	expectSP(t, c, 0xfd)
	expectCycles(t, c, 8)
}

func TestOSCallSkip(t *testing.T) {
	// JMP $FFF7 / JMP ($2000) with vector $C000 / JSR $C000.
	c := loadBytes(0x1000, []byte{0x4c, 0xf7, 0xff})
	c.Step()
	expectPC(t, c, 0x1003)

	c = loadBytes(0x1000, []byte{0x6c, 0x00, 0x20})
	c.Mem.StoreByte(0x2000, 0x00)
	c.Mem.StoreByte(0x2001, 0xc0)
	c.Step()
	expectPC(t, c, 0x1003)

	c = loadBytes(0x1000, []byte{0x20, 0x00, 0xc0})
	c.Step()
	expectPC(t, c, 0x1003)
	expectSP(t, c, 0xfd)
}

func TestJSRBelowOSBase(t *testing.T) {
	c := loadBytes(0x1000, []byte{0x20, 0x00, 0x20}) // JSR $2000
	c.Mem.StoreByte(0x2000, 0x60)                    // RTS
	c.Step()
	expectPC(t, c, 0x2000)
	expectSP(t, c, 0xfb)
	c.Step()
	expectPC(t, c, 0x1003)
	expectSP(t, c, 0xfd)
}

func TestBRKHalts(t *testing.T) {
	c := loadBytes(0x1900, []byte{0x00, 0x00})
	c.Mem.StoreByte(0xfffe, 0x34)
	c.Mem.StoreByte(0xffff, 0x12)

	if n := c.Step(); n != 7 {
		t.Errorf("BRK cycles incorrect: %d", n)
	}
	if !c.Halted {
		t.Error("BRK did not halt the CPU")
	}
	expectPC(t, c, 0x1234)
	if !c.Reg.InterruptDisable {
		t.Error("BRK did not set I")
	}

	// PC+2 pushed high then low, then P with break and reserved bits.
	expectMem(t, c, 0x01fd, 0x19)
	expectMem(t, c, 0x01fc, 0x02)
	expectMem(t, c, 0x01fb, 0x30)

	// A halted CPU consumes nothing.
	if n := c.Step(); n != 0 {
		t.Errorf("halted Step returned %d", n)
	}
	expectCycles(t, c, 7)
}

func TestAccumulatorStores(t *testing.T) {
	asm := `
	.org $1000
	LDA #$5E
	STA $15
	STA $1500`

	c := runCPU(t, asm, 3)
	expectPC(t, c, 0x1007)
	expectCycles(t, c, 9)
	expectACC(t, c, 0x5e)
	expectMem(t, c, 0x15, 0x5e)
	expectMem(t, c, 0x1500, 0x5e)
}

func TestStack(t *testing.T) {
	asm := `
	.org $1000
	LDA #$11
	PHA
	LDA #$12
	PHA
	LDA #$13
	PHA

	PLA
	STA $2000
	PLA
	STA $2001
	PLA
	STA $2002`

	c := loadCPU(t, asm)
	stepCPU(c, 6)

	expectSP(t, c, 0xfa)
	expectACC(t, c, 0x13)
	expectMem(t, c, 0x1fd, 0x11)
	expectMem(t, c, 0x1fc, 0x12)
	expectMem(t, c, 0x1fb, 0x13)

	stepCPU(c, 6)
	expectACC(t, c, 0x11)
	expectSP(t, c, 0xfd)
	expectMem(t, c, 0x2000, 0x13)
	expectMem(t, c, 0x2001, 0x12)
	expectMem(t, c, 0x2002, 0x11)
}

func TestIndexedAndIndirect(t *testing.T) {
	asm := `
	.org $1000
	LDX #$80
	LDY #$40
	LDA #$EE
	STA $2000,X
	STA $2000,Y

	LDA #$11
	STA $06
	LDA #$05
	STA $07
	LDX #$01
	LDY #$01
	LDA #$BB
	STA ($05,X)
	STA ($06),Y
	STA ($06)`

	c := runCPU(t, asm, 15)
	expectMem(t, c, 0x2080, 0xee)
	expectMem(t, c, 0x2040, 0xee)
	expectMem(t, c, 0x0511, 0xbb)
	expectMem(t, c, 0x0512, 0xbb)
	expectMem(t, c, 0x0511, 0xbb)
}

func TestIndirectJMPPageWrap(t *testing.T) {
	// JMP ($12FF) reads the low byte from $12FF and the high byte from
	// $1200, not $1300.
	c := loadBytes(0x1000, []byte{0x6c, 0xff, 0x12})
	c.Mem.StoreByte(0x12ff, 0x34)
	c.Mem.StoreByte(0x1200, 0x21)
	c.Mem.StoreByte(0x1300, 0x99)
	c.Step()
	expectPC(t, c, 0x2134)
}

func TestJMPIndexedIndirect(t *testing.T) {
	// JMP ($2000,X) with X=4 reads the vector at $2004.
	c := loadBytes(0x1000, []byte{0x7c, 0x00, 0x20})
	c.Reg.X = 4
	c.Mem.StoreByte(0x2004, 0x00)
	c.Mem.StoreByte(0x2005, 0x30)
	c.Step()
	expectPC(t, c, 0x3000)
}

func TestBranchTakenAndNot(t *testing.T) {
	asm := `
	.org $1000
	LDX #$02
loop:
	DEX
	BNE loop
	RTS`

	c := loadCPU(t, asm)
	stepCPU(c, 2) // LDX, DEX
	expectPC(t, c, 0x1003)
	c.Step() // BNE taken
	expectPC(t, c, 0x1002)
	stepCPU(c, 2) // DEX, BNE not taken
	expectPC(t, c, 0x1005)
}

func TestADCOverflowEnumeration(t *testing.T) {
	mem := cpu.NewFlatMemory()
	c := cpu.New(mem)
	mem.StoreBytes(0x1000, []byte{0x69, 0x00}) // ADC #imm

	for a := 0; a < 256; a++ {
		for v := 0; v < 256; v++ {
			for carry := 0; carry < 2; carry++ {
				c.Reset(0x1000)
				c.Reg.A = byte(a)
				c.Reg.Carry = carry == 1
				mem.StoreByte(0x1001, byte(v))
				c.Step()

				sum := a + v + carry
				wantC := sum > 0xff
				signed := int(int8(byte(a))) + int(int8(byte(v))) + carry
				wantV := signed < -128 || signed > 127

				if c.Reg.A != byte(sum) {
					t.Fatalf("ADC %d+%d+%d: A=%02X want %02X", a, v, carry, c.Reg.A, byte(sum))
				}
				if c.Reg.Carry != wantC {
					t.Fatalf("ADC %d+%d+%d: C=%v want %v", a, v, carry, c.Reg.Carry, wantC)
				}
				if c.Reg.Overflow != wantV {
					t.Fatalf("ADC %d+%d+%d: V=%v want %v", a, v, carry, c.Reg.Overflow, wantV)
				}
			}
		}
	}
}

func TestSBCIsADCOfComplement(t *testing.T) {
	asm := `
	.org $1000
	SEC
	LDA #$50
	SBC #$10`

	c := runCPU(t, asm, 3)
	expectACC(t, c, 0x40)
	if !c.Reg.Carry {
		t.Error("SBC should set carry on no borrow")
	}
}

func TestDecimalModeIgnored(t *testing.T) {
	asm := `
	.org $1000
	SED
	SEC
	LDA #$19
	ADC #$01`

	// Binary result, not BCD: $19 + $01 + 1 = $1B.
	c := runCPU(t, asm, 4)
	expectACC(t, c, 0x1b)
	if !c.Reg.Decimal {
		t.Error("D flag should remain set")
	}
}

func TestCompareCarry(t *testing.T) {
	asm := `
	.org $1000
	LDA #$40
	CMP #$40`

	c := runCPU(t, asm, 2)
	if !c.Reg.Carry || !c.Reg.Zero {
		t.Errorf("CMP equal: C=%v Z=%v", c.Reg.Carry, c.Reg.Zero)
	}

	asm2 := `
	.org $1000
	LDA #$10
	CMP #$40`

	c = runCPU(t, asm2, 2)
	if c.Reg.Carry || c.Reg.Zero {
		t.Errorf("CMP less: C=%v Z=%v", c.Reg.Carry, c.Reg.Zero)
	}
	if !c.Reg.Sign {
		t.Error("CMP less should set N from the subtraction")
	}
}

func TestBITImmediateLeavesNV(t *testing.T) {
	asm := `
	.org $1000
	LDA #$01
	BIT #$C0`

	c := runCPU(t, asm, 2)
	if !c.Reg.Zero {
		t.Error("BIT # should set Z")
	}
	if c.Reg.Sign || c.Reg.Overflow {
		t.Error("BIT # must not touch N or V")
	}

	asm2 := `
	.org $1000
	LDA #$01
	STA $20
	LDA #$C0
	STA $21
	LDA #$01
	BIT $21`

	c = runCPU(t, asm2, 6)
	if !c.Reg.Sign || !c.Reg.Overflow {
		t.Error("BIT zp should copy bits 7 and 6 into N and V")
	}
}

func TestTRBAndTSB(t *testing.T) {
	asm := `
	.org $1000
	LDA #$F0
	STA $20
	LDA #$30
	TRB $20
	LDA #$0F
	TSB $20`

	c := runCPU(t, asm, 6)
	expectMem(t, c, 0x20, 0xcf)
}

func TestZeroPageIndexWrap(t *testing.T) {
	asm := `
	.org $1000
	LDX #$10
	LDA #$AA
	STA $F8,X`

	c := runCPU(t, asm, 3)
	expectMem(t, c, 0x08, 0xaa)
}

func TestIllegalOpcodeIsNop(t *testing.T) {
	c := loadBytes(0x1000, []byte{0x02, 0xea})
	if n := c.Step(); n != 2 {
		t.Errorf("illegal opcode cycles incorrect: %d", n)
	}
	expectPC(t, c, 0x1001)
	if c.Halted {
		t.Error("illegal opcode must not halt")
	}
}

func TestRTI(t *testing.T) {
	c := loadBytes(0x1000, []byte{0x40})
	// Hand-build an interrupt frame: P, then return address $1234.
	c.Mem.StoreByte(0x01fb, cpu.CarryBit|cpu.ReservedBit)
	c.Mem.StoreByte(0x01fc, 0x34)
	c.Mem.StoreByte(0x01fd, 0x12)
	c.Reg.SP = 0xfa
	c.Step()
	expectPC(t, c, 0x1234)
	if !c.Reg.Carry {
		t.Error("RTI did not restore flags")
	}
}

type recordingHandler struct {
	hits []uint16
}

func (h *recordingHandler) OnBreakpoint(c *cpu.CPU, b *cpu.Breakpoint) {
	h.hits = append(h.hits, b.Address)
}

func (h *recordingHandler) OnDataBreakpoint(c *cpu.CPU, b *cpu.DataBreakpoint) {
	h.hits = append(h.hits, b.Address)
}

func TestDebuggerBreakpoints(t *testing.T) {
	asm := `
	.org $1000
	NOP
	LDA #$55
	STA $2000
	RTS`

	c := loadCPU(t, asm)
	handler := &recordingHandler{}
	dbg := cpu.NewDebugger(handler)
	dbg.AddBreakpoint(0x1001)
	dbg.AddDataBreakpoint(0x2000)
	c.AttachDebugger(dbg)

	stepCPU(c, 3)
	if len(handler.hits) != 2 || handler.hits[0] != 0x1001 || handler.hits[1] != 0x2000 {
		t.Errorf("breakpoint hits incorrect: %04X", handler.hits)
	}

	if got := dbg.GetBreakpoints(); len(got) != 1 || got[0].Address != 0x1001 {
		t.Errorf("GetBreakpoints incorrect: %v", got)
	}
}
