// Copyright 2025 the NB65C02 authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpu

// FlatMemory represents the entire 16-bit address space as a single
// 64K buffer. It is exclusively owned by the CPU instance it is bound to;
// external inspection should either snapshot it or read while the CPU is
// stopped.
type FlatMemory struct {
	b [64 * 1024]byte
}

// NewFlatMemory creates a new 16-bit memory space.
func NewFlatMemory() *FlatMemory {
	return &FlatMemory{}
}

// LoadByte loads a single byte from the address and returns it.
func (m *FlatMemory) LoadByte(addr uint16) byte {
	return m.b[addr]
}

// LoadBytes loads multiple bytes from the address and stores them into
// the buffer 'b'.
func (m *FlatMemory) LoadBytes(addr uint16, b []byte) {
	if int(addr)+len(b) <= len(m.b) {
		copy(b, m.b[addr:])
	} else {
		r0 := len(m.b) - int(addr)
		r1 := len(b) - r0
		copy(b, m.b[addr:])
		copy(b[r0:], make([]byte, r1))
	}
}

// LoadAddress loads a 16-bit address value from the requested address and
// returns it.
//
// When the address spans 2 pages (i.e., address ends in 0xff), the high
// byte of the loaded address comes from a page-wrapped address. For
// example, LoadAddress on $12FF reads the low byte from $12FF and the high
// byte from $1200. This reproduces the NMOS behavior, which this toolchain
// keeps even for the indirect JMP. It also covers zero-page pointer wrap:
// a pointer at $FF reads its high byte from $00.
func (m *FlatMemory) LoadAddress(addr uint16) uint16 {
	if (addr & 0xff) == 0xff {
		return uint16(m.b[addr]) | uint16(m.b[addr-0xff])<<8
	}
	return uint16(m.b[addr]) | uint16(m.b[addr+1])<<8
}

// StoreByte stores a byte at the requested address.
func (m *FlatMemory) StoreByte(addr uint16, v byte) {
	m.b[addr] = v
}

// StoreBytes stores multiple bytes to the requested address.
func (m *FlatMemory) StoreBytes(addr uint16, b []byte) {
	copy(m.b[addr:], b)
}

// Offset a zero-page address 'addr' by 'offset'. If the address
// exceeds the zero-page address space, wrap it.
func offsetZeroPage(addr uint16, offset byte) uint16 {
	addr += uint16(offset)
	if addr >= 0x100 {
		addr -= 0x100
	}
	return addr
}

// Convert a 1- or 2-byte operand into an address.
func operandToAddress(operand []byte) uint16 {
	switch {
	case len(operand) == 1:
		return uint16(operand[0])
	case len(operand) == 2:
		return uint16(operand[0]) | uint16(operand[1])<<8
	}
	return 0
}

// Given a 1-byte stack pointer register, return the corresponding
// stack memory address.
func stackAddress(offset byte) uint16 {
	return uint16(0x100) + uint16(offset)
}
