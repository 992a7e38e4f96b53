// Copyright 2025 the NB65C02 authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package disasm implements a 65C02 instruction set disassembler. It
// shares the cpu package's instruction table and annotates skipped MOS
// calls with the vector name when one is recognized.
package disasm

import (
	"fmt"

	"github.com/MadFly-Team/NB65C02/cpu"
)

// Disassembler formatting for addressing modes
var modeFormat = []string{
	"#$%s",    // IMM
	"%s",      // IMP
	"$%s",     // REL
	"$%s",     // ZPG
	"$%s,X",   // ZPX
	"$%s,Y",   // ZPY
	"$%s",     // ABS
	"$%s,X",   // ABX
	"$%s,Y",   // ABY
	"($%s)",   // IND
	"($%s,X)", // IDX
	"($%s),Y", // IDY
	"($%s)",   // ZPI
	"($%s,X)", // IAX
	"A%s",     // ACC
}

// Named MOS entry points at the top of the address space. Calls into
// these are skipped by the emulator and labeled by the disassembler.
var mosVectors = map[uint16]string{
	0xffb9: "OSDRM",
	0xffbc: "VDUCHR",
	0xffbf: "OSEVEN",
	0xffc2: "OSINIT",
	0xffc5: "OSREAD",
	0xffc8: "GSINIT",
	0xffcb: "GSREAD",
	0xffce: "NVRDCH",
	0xffd1: "NVWRCH",
	0xffd4: "OSFIND",
	0xffd7: "OSGBPB",
	0xffda: "OSBPUT",
	0xffdd: "OSBGET",
	0xffe0: "OSARGS",
	0xffe3: "OSASCI",
	0xffe7: "OSNEWL",
	0xffee: "OSWRCH",
	0xfff1: "OSWORD",
	0xfff4: "OSBYTE",
	0xfff7: "OSCLI",
	0xfffa: "NMI",
	0xfffc: "RESET",
	0xfffe: "IRQ",
}

var hex = "0123456789ABCDEF"

// Return an uppercase hexadecimal string representation of the
// little-endian byte slice.
func hexString(b []byte) string {
	hexlen := len(b) * 2
	hexbuf := make([]byte, hexlen)
	j := hexlen - 1
	for _, n := range b {
		hexbuf[j] = hex[n&0xf]
		hexbuf[j-1] = hex[n>>4]
		j -= 2
	}
	return string(hexbuf)
}

// VectorName returns the name of the MOS entry point at addr, or "OS"
// for any other address within the MOS region.
func VectorName(addr uint16) string {
	if name, ok := mosVectors[addr]; ok {
		return name
	}
	return "OS"
}

// Disassemble the machine code in memory 'm' at address 'addr'. Return
// a 'line' string representing the disassembled instruction and a
// 'next' address that starts the following line of machine code.
func Disassemble(m *cpu.FlatMemory, addr uint16) (line string, next uint16) {
	opcode := m.LoadByte(addr)
	set := cpu.GetInstructionSet()
	inst := set.Lookup(opcode)
	next = addr + uint16(inst.Length)

	if inst.Illegal() {
		return fmt.Sprintf("%s  ($%02X)", cpu.IllegalName, opcode), next
	}

	operand := make([]byte, inst.Length-1)
	m.LoadBytes(addr+1, operand)

	switch inst.Mode {
	case cpu.IMP:
		line = inst.Name

	case cpu.REL:
		// Convert the relative offset to the absolute target address.
		target := int(addr) + int(inst.Length) + int(operand[0])
		if operand[0] > 0x7f {
			target -= 256
		}
		resolved := []byte{byte(target), byte(target >> 8)}
		line = fmt.Sprintf("%s "+modeFormat[inst.Mode], inst.Name, hexString(resolved))

	default:
		line = fmt.Sprintf("%s "+modeFormat[inst.Mode], inst.Name, hexString(operand))
	}

	// Label JSR and JMP operands at or above OSCallBase with the MOS
	// vector name, or OS when the address has no name.
	if (inst.Name == "JSR" || inst.Name == "JMP") && len(operand) == 2 {
		if target := uint16(operand[0]) | uint16(operand[1])<<8; target >= cpu.OSCallBase {
			line += fmt.Sprintf("  [%s]", VectorName(target))
		}
	}

	return line, next
}
