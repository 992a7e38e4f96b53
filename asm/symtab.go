// Copyright 2025 the NB65C02 authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"errors"
	"strings"

	"github.com/beevik/prefixtree/v2"
)

// Errors returned by SymbolTable.Find.
var (
	ErrSymbolNotFound  = errors.New("symbol not found")
	ErrSymbolAmbiguous = errors.New("symbol is ambiguous")
)

// A SymbolTable maps case-insensitive identifiers to 16-bit addresses.
// It is populated by label definitions and constant assignments during
// the assembler's passes; .org only moves the program counter that
// labels bind to and adds no symbol of its own. Alongside the
// map it maintains a prefix tree so debugger front ends can resolve a
// symbol from a shortest unambiguous prefix.
type SymbolTable struct {
	values map[string]uint16
	names  *prefixtree.Tree[string]
}

// NewSymbolTable creates an empty symbol table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		values: make(map[string]uint16),
		names:  prefixtree.New[string](),
	}
}

func symbolKey(name string) string {
	return strings.ToUpper(name)
}

// Set binds the identifier to an address. Within a collection pass the
// last write wins; redefinition is not an error.
func (st *SymbolTable) Set(name string, addr uint16) {
	key := symbolKey(name)
	if _, ok := st.values[key]; !ok {
		st.names.Add(strings.ToLower(name), key)
	}
	st.values[key] = addr
}

// Get looks up the identifier, ignoring case.
func (st *SymbolTable) Get(name string) (uint16, bool) {
	addr, ok := st.values[symbolKey(name)]
	return addr, ok
}

// Len returns the number of defined symbols.
func (st *SymbolTable) Len() int {
	return len(st.values)
}

// Names returns all defined symbol names in their canonical
// (upper-case) form, in unspecified order.
func (st *SymbolTable) Names() []string {
	names := make([]string, 0, len(st.values))
	for name := range st.values {
		names = append(names, name)
	}
	return names
}

// Find resolves a symbol from a shortest unambiguous prefix, ignoring
// case, and returns the canonical name and its address.
func (st *SymbolTable) Find(prefix string) (string, uint16, error) {
	key, err := st.names.FindValue(strings.ToLower(prefix))
	switch err {
	case prefixtree.ErrPrefixAmbiguous:
		return "", 0, ErrSymbolAmbiguous
	case prefixtree.ErrPrefixNotFound:
		return "", 0, ErrSymbolNotFound
	}
	return key, st.values[key], nil
}
