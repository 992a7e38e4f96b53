// Copyright 2025 the NB65C02 authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cpu implements a 65C02 instruction set and a cycle-accounted
// single-stepping emulator over a flat 64K address space.
package cpu

// OSCallBase is the lowest address treated as a BBC MOS entry point.
// JMP abs, JMP (abs) and JSR abs whose target is at or above this
// address are silently skipped instead of transferring control, since
// the MOS ROM is not present in the emulated machine. A skipped JSR does
// not push a return address.
const OSCallBase = 0xc000

// Interrupt vectors
const (
	vectorNMI   = 0xfffa
	vectorReset = 0xfffc
	vectorIRQ   = 0xfffe
	vectorBRK   = 0xfffe
)

// CPU represents a single 65C02 CPU bound to a flat 64K memory.
type CPU struct {
	Reg       Registers       // CPU registers
	Mem       *FlatMemory     // assigned memory
	Cycles    uint64          // total executed CPU cycles
	Halted    bool            // set by BRK; Step is a no-op until Reset
	LastPC    uint16          // previous program counter
	InstSet   *InstructionSet // instruction set used by the CPU
	debugger  *Debugger
	storeByte func(cpu *CPU, addr uint16, v byte)
}

// New creates an emulated 65C02 CPU bound to the specified memory.
func New(m *FlatMemory) *CPU {
	cpu := &CPU{
		Mem:       m,
		InstSet:   GetInstructionSet(),
		storeByte: (*CPU).storeByteNormal,
	}

	cpu.Reg.Init()
	return cpu
}

// Reset initializes the CPU for a debug session starting at 'start'.
// A, X and Y are cleared, SP is set to $FD, all flags are cleared, the
// cycle counter restarts at zero and the halted state is cleared.
func (cpu *CPU) Reset(start uint16) {
	cpu.Reg.Init()
	cpu.Reg.PC = start
	cpu.Cycles = 0
	cpu.Halted = false
	cpu.LastPC = start
}

// GetInstruction returns the instruction at the requested address.
func (cpu *CPU) GetInstruction(addr uint16) *Instruction {
	opcode := cpu.Mem.LoadByte(addr)
	return cpu.InstSet.Lookup(opcode)
}

// NextAddr returns the address of the instruction following the
// instruction at addr.
func (cpu *CPU) NextAddr(addr uint16) uint16 {
	opcode := cpu.Mem.LoadByte(addr)
	inst := cpu.InstSet.Lookup(opcode)
	return addr + uint16(inst.Length)
}

// Step runs exactly one instruction to completion and returns the number
// of cycles it consumed. A halted CPU consumes nothing and returns 0.
func (cpu *CPU) Step() uint64 {
	if cpu.Halted {
		return 0
	}

	// Grab the next opcode at the current PC.
	opcode := cpu.Mem.LoadByte(cpu.Reg.PC)
	inst := cpu.InstSet.Lookup(opcode)

	// Fetch the operand (if any) and advance the PC.
	var buf [2]byte
	operand := buf[:inst.Length-1]
	cpu.Mem.LoadBytes(cpu.Reg.PC+1, operand)
	cpu.LastPC = cpu.Reg.PC
	cpu.Reg.PC += uint16(inst.Length)

	// Execute the instruction. Only base cycles are accumulated;
	// page-crossing and branch-taken penalties are not modeled.
	inst.fn(cpu, inst, operand)
	cpu.Cycles += uint64(inst.Cycles)

	// Let an attached debugger handle breakpoints.
	if cpu.debugger != nil {
		cpu.debugger.onUpdatePC(cpu, cpu.Reg.PC)
	}

	return uint64(inst.Cycles)
}

// AttachDebugger attaches a debugger to the CPU. The debugger receives
// notifications whenever the CPU executes an instruction or stores a byte
// to memory.
func (cpu *CPU) AttachDebugger(debugger *Debugger) {
	cpu.debugger = debugger
	cpu.storeByte = (*CPU).storeByteDebugger
}

// DetachDebugger detaches the currently attached debugger from the CPU.
func (cpu *CPU) DetachDebugger() {
	cpu.debugger = nil
	cpu.storeByte = (*CPU).storeByteNormal
}

// Load a byte value using the requested addressing mode and the operand
// to determine where to load it from.
func (cpu *CPU) load(mode Mode, operand []byte) byte {
	switch mode {
	case IMM:
		return operand[0]
	case ZPG:
		return cpu.Mem.LoadByte(operandToAddress(operand))
	case ZPX:
		return cpu.Mem.LoadByte(offsetZeroPage(operandToAddress(operand), cpu.Reg.X))
	case ZPY:
		return cpu.Mem.LoadByte(offsetZeroPage(operandToAddress(operand), cpu.Reg.Y))
	case ABS:
		return cpu.Mem.LoadByte(operandToAddress(operand))
	case ABX:
		return cpu.Mem.LoadByte(operandToAddress(operand) + uint16(cpu.Reg.X))
	case ABY:
		return cpu.Mem.LoadByte(operandToAddress(operand) + uint16(cpu.Reg.Y))
	case IDX:
		zpaddr := offsetZeroPage(operandToAddress(operand), cpu.Reg.X)
		return cpu.Mem.LoadByte(cpu.Mem.LoadAddress(zpaddr))
	case IDY:
		addr := cpu.Mem.LoadAddress(operandToAddress(operand))
		return cpu.Mem.LoadByte(addr + uint16(cpu.Reg.Y))
	case ZPI:
		return cpu.Mem.LoadByte(cpu.Mem.LoadAddress(operandToAddress(operand)))
	case ACC:
		return cpu.Reg.A
	default:
		panic("invalid addressing mode")
	}
}

// Store a byte value using the specified addressing mode and the operand
// to determine where to store it.
func (cpu *CPU) store(mode Mode, operand []byte, v byte) {
	switch mode {
	case ZPG:
		cpu.storeByte(cpu, operandToAddress(operand), v)
	case ZPX:
		cpu.storeByte(cpu, offsetZeroPage(operandToAddress(operand), cpu.Reg.X), v)
	case ZPY:
		cpu.storeByte(cpu, offsetZeroPage(operandToAddress(operand), cpu.Reg.Y), v)
	case ABS:
		cpu.storeByte(cpu, operandToAddress(operand), v)
	case ABX:
		cpu.storeByte(cpu, operandToAddress(operand)+uint16(cpu.Reg.X), v)
	case ABY:
		cpu.storeByte(cpu, operandToAddress(operand)+uint16(cpu.Reg.Y), v)
	case IDX:
		zpaddr := offsetZeroPage(operandToAddress(operand), cpu.Reg.X)
		cpu.storeByte(cpu, cpu.Mem.LoadAddress(zpaddr), v)
	case IDY:
		addr := cpu.Mem.LoadAddress(operandToAddress(operand))
		cpu.storeByte(cpu, addr+uint16(cpu.Reg.Y), v)
	case ZPI:
		cpu.storeByte(cpu, cpu.Mem.LoadAddress(operandToAddress(operand)), v)
	case ACC:
		cpu.Reg.A = v
	default:
		panic("invalid addressing mode")
	}
}

// Resolve the jump target for a JMP or JSR instruction.
func (cpu *CPU) jumpTarget(mode Mode, operand []byte) uint16 {
	switch mode {
	case ABS:
		return operandToAddress(operand)
	case IND:
		// High byte read keeps the NMOS page wrap.
		return cpu.Mem.LoadAddress(operandToAddress(operand))
	case IAX:
		return cpu.Mem.LoadAddress(operandToAddress(operand) + uint16(cpu.Reg.X))
	default:
		panic("invalid addressing mode")
	}
}

// Execute a branch using the instruction's relative operand.
func (cpu *CPU) branch(operand []byte) {
	offset := operandToAddress(operand)
	if offset < 0x80 {
		cpu.Reg.PC += offset
	} else {
		cpu.Reg.PC -= 0x100 - offset
	}
}

// Store the byte value 'v' at the address 'addr'.
func (cpu *CPU) storeByteNormal(addr uint16, v byte) {
	cpu.Mem.StoreByte(addr, v)
}

// Store the byte value 'v' at the address 'addr', notifying the debugger.
func (cpu *CPU) storeByteDebugger(addr uint16, v byte) {
	cpu.debugger.onDataStore(cpu, addr, v)
	cpu.Mem.StoreByte(addr, v)
}

// Push a value 'v' onto the stack.
func (cpu *CPU) push(v byte) {
	cpu.storeByte(cpu, stackAddress(cpu.Reg.SP), v)
	cpu.Reg.SP--
}

// Push the address 'addr' onto the stack, high byte first.
func (cpu *CPU) pushAddress(addr uint16) {
	cpu.push(byte(addr >> 8))
	cpu.push(byte(addr))
}

// Pop a value from the stack and return it.
func (cpu *CPU) pop() byte {
	cpu.Reg.SP++
	return cpu.Mem.LoadByte(stackAddress(cpu.Reg.SP))
}

// Pop a 16-bit address off the stack.
func (cpu *CPU) popAddress() uint16 {
	lo := cpu.pop()
	hi := cpu.pop()
	return uint16(lo) | (uint16(hi) << 8)
}

// Update the Zero and Sign flags based on the value of 'v'.
func (cpu *CPU) updateNZ(v byte) {
	cpu.Reg.Zero = (v == 0)
	cpu.Reg.Sign = ((v & 0x80) != 0)
}

// Add the value 'v' plus carry into the accumulator. Decimal mode is
// ignored.
func (cpu *CPU) addToAccumulator(v byte) {
	acc := uint32(cpu.Reg.A)
	add := uint32(v)
	var carry uint32
	if cpu.Reg.Carry {
		carry = 1
	}

	sum := acc + add + carry
	cpu.Reg.Carry = (sum > 0xff)
	cpu.Reg.Overflow = ((^(acc ^ add)) & (acc ^ sum) & 0x80) != 0
	cpu.Reg.A = byte(sum)
	cpu.updateNZ(cpu.Reg.A)
}

// Add with carry
func (cpu *CPU) adc(inst *Instruction, operand []byte) {
	cpu.addToAccumulator(cpu.load(inst.Mode, operand))
}

// Subtract with carry; equivalent to adding the complement.
func (cpu *CPU) sbc(inst *Instruction, operand []byte) {
	cpu.addToAccumulator(^cpu.load(inst.Mode, operand))
}

// Boolean AND
func (cpu *CPU) and(inst *Instruction, operand []byte) {
	cpu.Reg.A &= cpu.load(inst.Mode, operand)
	cpu.updateNZ(cpu.Reg.A)
}

// Arithmetic Shift Left
func (cpu *CPU) asl(inst *Instruction, operand []byte) {
	v := cpu.load(inst.Mode, operand)
	cpu.Reg.Carry = ((v & 0x80) == 0x80)
	v = v << 1
	cpu.updateNZ(v)
	cpu.store(inst.Mode, operand, v)
}

// Branch if Carry Clear
func (cpu *CPU) bcc(inst *Instruction, operand []byte) {
	if !cpu.Reg.Carry {
		cpu.branch(operand)
	}
}

// Branch if Carry Set
func (cpu *CPU) bcs(inst *Instruction, operand []byte) {
	if cpu.Reg.Carry {
		cpu.branch(operand)
	}
}

// Branch if EQual (to zero)
func (cpu *CPU) beq(inst *Instruction, operand []byte) {
	if cpu.Reg.Zero {
		cpu.branch(operand)
	}
}

// Bit Test. The immediate form updates only the Zero flag.
func (cpu *CPU) bit(inst *Instruction, operand []byte) {
	v := cpu.load(inst.Mode, operand)
	cpu.Reg.Zero = ((v & cpu.Reg.A) == 0)
	if inst.Mode != IMM {
		cpu.Reg.Sign = ((v & 0x80) != 0)
		cpu.Reg.Overflow = ((v & 0x40) != 0)
	}
}

// Branch if MInus (negative)
func (cpu *CPU) bmi(inst *Instruction, operand []byte) {
	if cpu.Reg.Sign {
		cpu.branch(operand)
	}
}

// Branch if Not Equal (not zero)
func (cpu *CPU) bne(inst *Instruction, operand []byte) {
	if !cpu.Reg.Zero {
		cpu.branch(operand)
	}
}

// Branch if PLus (positive)
func (cpu *CPU) bpl(inst *Instruction, operand []byte) {
	if !cpu.Reg.Sign {
		cpu.branch(operand)
	}
}

// Branch always
func (cpu *CPU) bra(inst *Instruction, operand []byte) {
	cpu.branch(operand)
}

// Break. Pushes the PC and the status byte with the break bit set, loads
// the BRK vector and halts the CPU until the next Reset.
func (cpu *CPU) brk(inst *Instruction, operand []byte) {
	cpu.Reg.PC++
	cpu.pushAddress(cpu.Reg.PC)
	cpu.push(cpu.Reg.SavePS(true))
	cpu.Reg.InterruptDisable = true
	cpu.Reg.PC = cpu.Mem.LoadAddress(vectorBRK)
	cpu.Halted = true
}

// Branch if oVerflow Clear
func (cpu *CPU) bvc(inst *Instruction, operand []byte) {
	if !cpu.Reg.Overflow {
		cpu.branch(operand)
	}
}

// Branch if oVerflow Set
func (cpu *CPU) bvs(inst *Instruction, operand []byte) {
	if cpu.Reg.Overflow {
		cpu.branch(operand)
	}
}

// Clear Carry flag
func (cpu *CPU) clc(inst *Instruction, operand []byte) {
	cpu.Reg.Carry = false
}

// Clear Decimal flag
func (cpu *CPU) cld(inst *Instruction, operand []byte) {
	cpu.Reg.Decimal = false
}

// Clear InterruptDisable flag
func (cpu *CPU) cli(inst *Instruction, operand []byte) {
	cpu.Reg.InterruptDisable = false
}

// Clear oVerflow flag
func (cpu *CPU) clv(inst *Instruction, operand []byte) {
	cpu.Reg.Overflow = false
}

// Compare to accumulator
func (cpu *CPU) cmp(inst *Instruction, operand []byte) {
	v := cpu.load(inst.Mode, operand)
	cpu.Reg.Carry = (cpu.Reg.A >= v)
	cpu.updateNZ(cpu.Reg.A - v)
}

// Compare to X register
func (cpu *CPU) cpx(inst *Instruction, operand []byte) {
	v := cpu.load(inst.Mode, operand)
	cpu.Reg.Carry = (cpu.Reg.X >= v)
	cpu.updateNZ(cpu.Reg.X - v)
}

// Compare to Y register
func (cpu *CPU) cpy(inst *Instruction, operand []byte) {
	v := cpu.load(inst.Mode, operand)
	cpu.Reg.Carry = (cpu.Reg.Y >= v)
	cpu.updateNZ(cpu.Reg.Y - v)
}

// Decrement memory or accumulator
func (cpu *CPU) dec(inst *Instruction, operand []byte) {
	v := cpu.load(inst.Mode, operand) - 1
	cpu.updateNZ(v)
	cpu.store(inst.Mode, operand, v)
}

// Decrement X register
func (cpu *CPU) dex(inst *Instruction, operand []byte) {
	cpu.Reg.X--
	cpu.updateNZ(cpu.Reg.X)
}

// Decrement Y register
func (cpu *CPU) dey(inst *Instruction, operand []byte) {
	cpu.Reg.Y--
	cpu.updateNZ(cpu.Reg.Y)
}

// Boolean XOR
func (cpu *CPU) eor(inst *Instruction, operand []byte) {
	cpu.Reg.A ^= cpu.load(inst.Mode, operand)
	cpu.updateNZ(cpu.Reg.A)
}

// Increment memory or accumulator
func (cpu *CPU) inc(inst *Instruction, operand []byte) {
	v := cpu.load(inst.Mode, operand) + 1
	cpu.updateNZ(v)
	cpu.store(inst.Mode, operand, v)
}

// Increment X register
func (cpu *CPU) inx(inst *Instruction, operand []byte) {
	cpu.Reg.X++
	cpu.updateNZ(cpu.Reg.X)
}

// Increment Y register
func (cpu *CPU) iny(inst *Instruction, operand []byte) {
	cpu.Reg.Y++
	cpu.updateNZ(cpu.Reg.Y)
}

// Jump to memory address. Absolute and absolute-indirect targets at or
// above OSCallBase are skipped.
func (cpu *CPU) jmp(inst *Instruction, operand []byte) {
	addr := cpu.jumpTarget(inst.Mode, operand)
	if inst.Mode != IAX && addr >= OSCallBase {
		return
	}
	cpu.Reg.PC = addr
}

// Jump to subroutine. Targets at or above OSCallBase are skipped without
// pushing a return address.
func (cpu *CPU) jsr(inst *Instruction, operand []byte) {
	addr := cpu.jumpTarget(inst.Mode, operand)
	if addr >= OSCallBase {
		return
	}
	cpu.pushAddress(cpu.Reg.PC - 1)
	cpu.Reg.PC = addr
}

// Load Accumulator
func (cpu *CPU) lda(inst *Instruction, operand []byte) {
	cpu.Reg.A = cpu.load(inst.Mode, operand)
	cpu.updateNZ(cpu.Reg.A)
}

// Load the X register
func (cpu *CPU) ldx(inst *Instruction, operand []byte) {
	cpu.Reg.X = cpu.load(inst.Mode, operand)
	cpu.updateNZ(cpu.Reg.X)
}

// Load the Y register
func (cpu *CPU) ldy(inst *Instruction, operand []byte) {
	cpu.Reg.Y = cpu.load(inst.Mode, operand)
	cpu.updateNZ(cpu.Reg.Y)
}

// Logical Shift Right
func (cpu *CPU) lsr(inst *Instruction, operand []byte) {
	v := cpu.load(inst.Mode, operand)
	cpu.Reg.Carry = ((v & 1) == 1)
	v = v >> 1
	cpu.updateNZ(v)
	cpu.store(inst.Mode, operand, v)
}

// No-operation
func (cpu *CPU) nop(inst *Instruction, operand []byte) {
	// Do nothing
}

// Boolean OR
func (cpu *CPU) ora(inst *Instruction, operand []byte) {
	cpu.Reg.A |= cpu.load(inst.Mode, operand)
	cpu.updateNZ(cpu.Reg.A)
}

// Push Accumulator
func (cpu *CPU) pha(inst *Instruction, operand []byte) {
	cpu.push(cpu.Reg.A)
}

// Push Processor flags
func (cpu *CPU) php(inst *Instruction, operand []byte) {
	cpu.push(cpu.Reg.SavePS(true))
}

// Push X register
func (cpu *CPU) phx(inst *Instruction, operand []byte) {
	cpu.push(cpu.Reg.X)
}

// Push Y register
func (cpu *CPU) phy(inst *Instruction, operand []byte) {
	cpu.push(cpu.Reg.Y)
}

// Pull (pop) Accumulator
func (cpu *CPU) pla(inst *Instruction, operand []byte) {
	cpu.Reg.A = cpu.pop()
	cpu.updateNZ(cpu.Reg.A)
}

// Pull (pop) Processor flags
func (cpu *CPU) plp(inst *Instruction, operand []byte) {
	cpu.Reg.RestorePS(cpu.pop())
}

// Pull (pop) X register
func (cpu *CPU) plx(inst *Instruction, operand []byte) {
	cpu.Reg.X = cpu.pop()
	cpu.updateNZ(cpu.Reg.X)
}

// Pull (pop) Y register
func (cpu *CPU) ply(inst *Instruction, operand []byte) {
	cpu.Reg.Y = cpu.pop()
	cpu.updateNZ(cpu.Reg.Y)
}

// Rotate Left
func (cpu *CPU) rol(inst *Instruction, operand []byte) {
	tmp := cpu.load(inst.Mode, operand)
	v := (tmp << 1) | boolToByte(cpu.Reg.Carry)
	cpu.Reg.Carry = ((tmp & 0x80) != 0)
	cpu.updateNZ(v)
	cpu.store(inst.Mode, operand, v)
}

// Rotate Right
func (cpu *CPU) ror(inst *Instruction, operand []byte) {
	tmp := cpu.load(inst.Mode, operand)
	v := (tmp >> 1) | (boolToByte(cpu.Reg.Carry) << 7)
	cpu.Reg.Carry = ((tmp & 1) != 0)
	cpu.updateNZ(v)
	cpu.store(inst.Mode, operand, v)
}

// Return from Interrupt
func (cpu *CPU) rti(inst *Instruction, operand []byte) {
	cpu.Reg.RestorePS(cpu.pop())
	cpu.Reg.PC = cpu.popAddress()
}

// Return from Subroutine
func (cpu *CPU) rts(inst *Instruction, operand []byte) {
	cpu.Reg.PC = cpu.popAddress() + 1
}

// Set Carry flag
func (cpu *CPU) sec(inst *Instruction, operand []byte) {
	cpu.Reg.Carry = true
}

// Set Decimal flag
func (cpu *CPU) sed(inst *Instruction, operand []byte) {
	cpu.Reg.Decimal = true
}

// Set InterruptDisable flag
func (cpu *CPU) sei(inst *Instruction, operand []byte) {
	cpu.Reg.InterruptDisable = true
}

// Store Accumulator
func (cpu *CPU) sta(inst *Instruction, operand []byte) {
	cpu.store(inst.Mode, operand, cpu.Reg.A)
}

// Store X register
func (cpu *CPU) stx(inst *Instruction, operand []byte) {
	cpu.store(inst.Mode, operand, cpu.Reg.X)
}

// Store Y register
func (cpu *CPU) sty(inst *Instruction, operand []byte) {
	cpu.store(inst.Mode, operand, cpu.Reg.Y)
}

// Store Zero
func (cpu *CPU) stz(inst *Instruction, operand []byte) {
	cpu.store(inst.Mode, operand, 0)
}

// Transfer Accumulator to X register
func (cpu *CPU) tax(inst *Instruction, operand []byte) {
	cpu.Reg.X = cpu.Reg.A
	cpu.updateNZ(cpu.Reg.X)
}

// Transfer Accumulator to Y register
func (cpu *CPU) tay(inst *Instruction, operand []byte) {
	cpu.Reg.Y = cpu.Reg.A
	cpu.updateNZ(cpu.Reg.Y)
}

// Test and Reset Bits
func (cpu *CPU) trb(inst *Instruction, operand []byte) {
	v := cpu.load(inst.Mode, operand)
	cpu.Reg.Zero = ((v & cpu.Reg.A) == 0)
	cpu.store(inst.Mode, operand, v&^cpu.Reg.A)
}

// Test and Set Bits
func (cpu *CPU) tsb(inst *Instruction, operand []byte) {
	v := cpu.load(inst.Mode, operand)
	cpu.Reg.Zero = ((v & cpu.Reg.A) == 0)
	cpu.store(inst.Mode, operand, v|cpu.Reg.A)
}

// Transfer stack pointer to X register
func (cpu *CPU) tsx(inst *Instruction, operand []byte) {
	cpu.Reg.X = cpu.Reg.SP
	cpu.updateNZ(cpu.Reg.X)
}

// Transfer X register to Accumulator
func (cpu *CPU) txa(inst *Instruction, operand []byte) {
	cpu.Reg.A = cpu.Reg.X
	cpu.updateNZ(cpu.Reg.A)
}

// Transfer X register to the stack pointer
func (cpu *CPU) txs(inst *Instruction, operand []byte) {
	cpu.Reg.SP = cpu.Reg.X
}

// Transfer Y register to the Accumulator
func (cpu *CPU) tya(inst *Instruction, operand []byte) {
	cpu.Reg.A = cpu.Reg.Y
	cpu.updateNZ(cpu.Reg.A)
}

// Unassigned opcode: consumes its cycles and does nothing else.
func (cpu *CPU) illegal(inst *Instruction, operand []byte) {
	// Do nothing
}
