// Copyright 2025 the NB65C02 authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package asm implements a multi-pass 65C02 macro assembler producing a
// sparse address-to-byte map.
//
// Assembly runs in three passes over the token stream. The first
// collection pass records labels at whatever addresses it reaches,
// sizing operands with the symbols known so far and assuming absolute
// addressing for forward references. The second collection pass is
// seeded with the first pass's symbol table, which settles zero-page
// versus absolute sizing globally and recomputes every label address.
// The final pass emits bytes; by then every symbol must resolve.
package asm

import (
	"fmt"
	"io"
	"strings"

	"github.com/MadFly-Team/NB65C02/cpu"
)

// Option type used by the Assemble function.
type Option uint

// Options for the Assemble function.
const (
	OptVerbose Option = 1 << iota // verbose output during assembly
)

// forwardValue is substituted for symbols that are not yet known during
// a collection pass. It does not fit in a byte, which forces absolute
// sizing for forward references.
const forwardValue = 0x100

// Branch mnemonics always use relative addressing, regardless of the
// operand's value.
var branchMnemonics = map[string]bool{
	"BCC": true,
	"BCS": true,
	"BEQ": true,
	"BMI": true,
	"BNE": true,
	"BPL": true,
	"BVC": true,
	"BVS": true,
	"BRA": true,
}

// An Assembly is the result of assembling a source stream: the origin
// fixed by the first .org directive, an optional output path recorded
// by .output, and the sparse address-to-byte map of the emitted code.
type Assembly struct {
	Origin     *uint16         // address set by the first .org
	OutputPath string          // output path override from .output, if any
	Code       map[uint16]byte // sparse address-to-byte map
}

// Bytes flattens the sparse code map into a contiguous slice spanning
// [min address, max address]. Positions not present in the map are
// zero. An empty assembly returns nil.
func (a *Assembly) Bytes() []byte {
	if len(a.Code) == 0 {
		return nil
	}

	min, max := uint16(0xffff), uint16(0)
	for addr := range a.Code {
		if addr < min {
			min = addr
		}
		if addr > max {
			max = addr
		}
	}

	b := make([]byte, int(max)-int(min)+1)
	for addr, v := range a.Code {
		b[addr-min] = v
	}
	return b
}

// WriteTo writes the flattened object bytes to an output stream.
func (a *Assembly) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(a.Bytes())
	return int64(n), err
}

// Assemble translates source text into an Assembly. The file name and
// source map are used to report errors against original source
// locations; sm may be nil when the text was not produced by the
// include expander. The returned symbol table holds the final address
// of every label and constant.
func Assemble(src, file string, sm *SourceMap, out io.Writer, options Option) (*Assembly, *SymbolTable, error) {
	if out == nil {
		out = io.Discard
	}

	tokens, err := Tokenize(src, file, sm)
	if err != nil {
		return nil, nil, err
	}

	a := &assembler{
		tokens:  tokens,
		file:    file,
		sm:      sm,
		out:     out,
		verbose: (options & OptVerbose) != 0,
	}

	a.logSection("Pass 1a: collecting labels")
	p1, err := a.runPass(nil, false)
	if err != nil {
		return nil, nil, err
	}

	a.logSection("Pass 1b: settling operand sizes")
	p2, err := a.runPass(p1.syms, false)
	if err != nil {
		return nil, nil, err
	}

	a.logSection("Pass 2: emitting code")
	p3, err := a.runPass(p2.syms, true)
	if err != nil {
		return nil, nil, err
	}

	assembly := &Assembly{
		Origin:     p3.origin,
		OutputPath: p3.outputPath,
		Code:       p3.code,
	}
	return assembly, p3.syms, nil
}

// AssembleFile expands the include directives of the file at path and
// assembles the result.
func AssembleFile(path string, out io.Writer, options Option) (*Assembly, *SymbolTable, error) {
	src, sm, err := ExpandIncludes(path, nil)
	if err != nil {
		return nil, nil, err
	}
	return Assemble(src, path, sm, out, options)
}

// The assembler is the state shared by all passes over a single token
// stream.
type assembler struct {
	tokens  []Token
	file    string
	sm      *SourceMap
	out     io.Writer
	verbose bool
}

// A pass walks the token stream once. Collection passes record labels
// and track the program counter; the emit pass additionally produces
// bytes and treats undefined symbols as fatal.
type pass struct {
	a          *assembler
	syms       *SymbolTable // symbols recorded during this pass
	prev       *SymbolTable // symbols carried over from the previous pass
	emit       bool
	pos        int
	pc         int // -1 until the first .org
	origin     *uint16
	outputPath string
	code       map[uint16]byte
}

func (a *assembler) runPass(prev *SymbolTable, emit bool) (*pass, error) {
	p := &pass{
		a:    a,
		syms: NewSymbolTable(),
		prev: prev,
		emit: emit,
		pc:   -1,
	}
	if emit {
		p.code = make(map[uint16]byte)
	}

	for {
		tok := p.cur()
		if tok.Kind == TokenEOF {
			return p, nil
		}
		if err := p.parseLine(); err != nil {
			return nil, err
		}
	}
}

func (p *pass) cur() Token {
	return p.tokens()[p.pos]
}

func (p *pass) tokens() []Token {
	return p.a.tokens
}

func (p *pass) advance() Token {
	tok := p.cur()
	if tok.Kind != TokenEOF {
		p.pos++
	}
	return tok
}

func (p *pass) errorf(tok Token, format string, args ...any) *Error {
	return errorAt(p.a.sm, p.a.file, tok.Line, tok.Col, format, args...)
}

func (p *pass) expect(kind TokenKind) (Token, *Error) {
	tok := p.cur()
	if tok.Kind != kind {
		return tok, p.errorf(tok, "expected %s, found %s", kind, tok.Kind)
	}
	return p.advance(), nil
}

// expectEndOfLine consumes the EOL terminating the current statement.
func (p *pass) expectEndOfLine() error {
	tok := p.cur()
	switch tok.Kind {
	case TokenEOF:
		return nil
	case TokenEOL:
		p.advance()
		return nil
	}
	return p.errorf(tok, "unexpected %s at end of statement", tok.Kind)
}

// parseLine processes one source line: any number of label
// definitions, optionally followed by a constant assignment, a
// directive or an instruction.
func (p *pass) parseLine() error {
	for {
		tok := p.cur()
		switch tok.Kind {
		case TokenEOF:
			return nil

		case TokenEOL:
			p.advance()
			return nil

		case TokenDot:
			p.advance()
			ident, err := p.expect(TokenIdent)
			if err != nil {
				return err
			}
			if p.cur().Kind == TokenColon {
				p.advance()
				if err := p.defineLabel(ident); err != nil {
					return err
				}
				continue
			}
			return p.parseDirective(ident)

		case TokenIdent:
			next := p.tokens()[p.pos+1]
			switch next.Kind {
			case TokenColon:
				p.advance()
				p.advance()
				if err := p.defineLabel(tok); err != nil {
					return err
				}
				continue
			case TokenEquals:
				return p.parseConstant()
			}
			p.advance()
			return p.parseInstruction(tok)

		default:
			return p.errorf(tok, "unexpected %s", tok.Kind)
		}
	}
}

// defineLabel binds a label to the current program counter.
func (p *pass) defineLabel(tok Token) *Error {
	if p.pc < 0 {
		return p.errorf(tok, "label '%s' defined before .org", tok.Text)
	}
	p.syms.Set(tok.Text, uint16(p.pc))
	p.log("%04X  label %s", p.pc, tok.Text)
	return nil
}

// parseConstant handles a NAME = expr assignment.
func (p *pass) parseConstant() error {
	name := p.advance()
	p.advance() // '='
	v, err := p.parseExpr()
	if err != nil {
		return err
	}
	p.syms.Set(name.Text, uint16(v&0xffff))
	p.log("      %s = $%X", name.Text, v)
	return p.expectEndOfLine()
}

// parseDirective dispatches a directive by its identifier.
func (p *pass) parseDirective(ident Token) error {
	switch strings.ToLower(ident.Text) {
	case "org":
		return p.parseOrg(ident)
	case "byte":
		return p.parseData(ident, 1)
	case "word":
		return p.parseData(ident, 2)
	case "text":
		return p.parseText(ident)
	case "output":
		return p.parseOutput(ident)
	case "include":
		return p.errorf(ident, "unresolved .include; includes must be expanded before assembly")
	}
	return p.errorf(ident, "unknown directive '.%s'", ident.Text)
}

// parseOrg sets the program counter. The first .org fixes the result
// origin; later ones only move the program counter, leaving a gap in
// the address map.
func (p *pass) parseOrg(ident Token) error {
	v, err := p.parseExpr()
	if err != nil {
		return err
	}
	p.pc = v & 0xffff
	if p.origin == nil {
		origin := uint16(p.pc)
		p.origin = &origin
	}
	p.log("%04X  .org", p.pc)
	return p.expectEndOfLine()
}

// parseData handles .byte and .word lists. Words are emitted
// little-endian.
func (p *pass) parseData(ident Token, unit int) error {
	if p.pc < 0 {
		return p.errorf(ident, "missing .org before code")
	}
	for {
		v, err := p.parseExpr()
		if err != nil {
			return err
		}
		p.emitByte(byte(v))
		if unit == 2 {
			p.emitByte(byte(v >> 8))
		}
		if p.cur().Kind != TokenComma {
			break
		}
		p.advance()
	}
	return p.expectEndOfLine()
}

// parseText emits the ASCII bytes of a string literal.
func (p *pass) parseText(ident Token) error {
	if p.pc < 0 {
		return p.errorf(ident, "missing .org before code")
	}
	str, err := p.expect(TokenString)
	if err != nil {
		return err
	}
	for i := 0; i < len(str.Text); i++ {
		p.emitByte(str.Text[i])
	}
	return p.expectEndOfLine()
}

// parseOutput records an output-path override.
func (p *pass) parseOutput(ident Token) error {
	str, err := p.expect(TokenString)
	if err != nil {
		return err
	}
	p.outputPath = str.Text
	return p.expectEndOfLine()
}

// emitByte appends a byte at the current program counter. Collection
// passes only advance the counter.
func (p *pass) emitByte(v byte) {
	if p.emit {
		p.code[uint16(p.pc&0xffff)] = v
	}
	p.pc++
}

//
// expressions
//

// lookup resolves an identifier. Both labels and constants share one
// case-insensitive namespace; symbols recorded earlier in the current
// pass shadow values carried over from the previous pass. Unknown
// symbols evaluate to a byte-overflowing placeholder during collection
// passes and are fatal during the emit pass.
func (p *pass) lookup(tok Token) (int, *Error) {
	if v, ok := p.syms.Get(tok.Text); ok {
		return int(v), nil
	}
	if p.prev != nil {
		if v, ok := p.prev.Get(tok.Text); ok {
			return int(v), nil
		}
	}
	if p.emit {
		return 0, p.errorf(tok, "undefined symbol '%s'", tok.Text)
	}
	return forwardValue, nil
}

// parseExpr evaluates an additive expression. '+' and '-' are
// left-associative with equal precedence.
func (p *pass) parseExpr() (int, *Error) {
	v, err := p.parsePrimary()
	if err != nil {
		return 0, err
	}
	return p.continueAdditive(v)
}

func (p *pass) continueAdditive(v int) (int, *Error) {
	for {
		switch p.cur().Kind {
		case TokenPlus:
			p.advance()
			rhs, err := p.parsePrimary()
			if err != nil {
				return 0, err
			}
			v += rhs
		case TokenMinus:
			p.advance()
			rhs, err := p.parsePrimary()
			if err != nil {
				return 0, err
			}
			v -= rhs
		default:
			return v, nil
		}
	}
}

func (p *pass) parsePrimary() (int, *Error) {
	tok := p.cur()
	switch tok.Kind {
	case TokenNumber:
		p.advance()
		v, ok := parseNumber(tok.Text)
		if !ok {
			return 0, p.errorf(tok, "invalid number '%s'", tok.Text)
		}
		return v, nil

	case TokenChar:
		p.advance()
		v, ok := charValue(tok.Text)
		if !ok {
			return 0, p.errorf(tok, "invalid character literal")
		}
		return v, nil

	case TokenIdent:
		p.advance()
		return p.lookup(tok)

	case TokenDot:
		// A dotted identifier resolves in the same namespace as the
		// undotted form.
		p.advance()
		ident, err := p.expect(TokenIdent)
		if err != nil {
			return 0, err
		}
		return p.lookup(ident)

	case TokenLParen:
		p.advance()
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return 0, err
		}
		return v, nil
	}
	return 0, p.errorf(tok, "expected expression, found %s", tok.Kind)
}

//
// instructions
//

// An operand class captures the syntactic shape of an instruction
// operand before a concrete addressing mode is selected.
type operandClass byte

const (
	opNone operandClass = iota // no operand, or 'A'
	opImm                      // #expr
	opPlain                    // expr
	opIdxX                     // expr,X
	opIdxY                     // expr,Y
	opIndX                     // (expr,X)
	opIndY                     // (expr),Y
	opInd                      // (expr)
)

type operand struct {
	class operandClass
	value int
}

// parseInstruction assembles one mnemonic plus operand.
func (p *pass) parseInstruction(mn Token) error {
	name := strings.ToUpper(mn.Text)
	variants := cpu.GetInstructionSet().GetInstructions(name)
	if variants == nil {
		return p.errorf(mn, "unknown instruction '%s'", mn.Text)
	}
	if p.pc < 0 {
		return p.errorf(mn, "missing .org before code")
	}

	o, err := p.parseOperand()
	if err != nil {
		return err
	}

	inst := p.selectInstruction(name, variants, o)
	if inst == nil {
		return p.errorf(mn, "invalid addressing mode for instruction '%s'", mn.Text)
	}

	if p.emit {
		if err := p.encode(mn, inst, o); err != nil {
			return err
		}
	}
	p.log("%04X  %s len=%d opcode=%02X", p.pc, name, inst.Length, inst.Opcode)
	p.pc += int(inst.Length)

	return p.expectEndOfLine()
}

// parseOperand determines the syntactic operand class and evaluates the
// embedded expression.
func (p *pass) parseOperand() (operand, *Error) {
	tok := p.cur()
	switch {
	case tok.Kind == TokenEOL || tok.Kind == TokenEOF:
		return operand{class: opNone}, nil

	case tok.Kind == TokenIdent && strings.EqualFold(tok.Text, "A") && isLineEnd(p.tokens()[p.pos+1].Kind):
		// Explicit accumulator operand.
		p.advance()
		return operand{class: opNone}, nil

	case tok.Kind == TokenHash:
		p.advance()
		v, err := p.parseExpr()
		if err != nil {
			return operand{}, err
		}
		return operand{class: opImm, value: v}, nil

	case tok.Kind == TokenLParen:
		p.advance()
		v, err := p.parseExpr()
		if err != nil {
			return operand{}, err
		}

		if p.cur().Kind == TokenComma {
			p.advance()
			if err := p.expectRegister("X"); err != nil {
				return operand{}, err
			}
			if _, err := p.expect(TokenRParen); err != nil {
				return operand{}, err
			}
			return operand{class: opIndX, value: v}, nil
		}

		if _, err := p.expect(TokenRParen); err != nil {
			return operand{}, err
		}
		switch p.cur().Kind {
		case TokenComma:
			p.advance()
			if err := p.expectRegister("Y"); err != nil {
				return operand{}, err
			}
			return operand{class: opIndY, value: v}, nil
		case TokenPlus, TokenMinus:
			// A parenthesized subexpression, not an indirect operand.
			v, err := p.continueAdditive(v)
			if err != nil {
				return operand{}, err
			}
			return p.parseIndexSuffix(v)
		}
		return operand{class: opInd, value: v}, nil
	}

	v, err := p.parseExpr()
	if err != nil {
		return operand{}, err
	}
	return p.parseIndexSuffix(v)
}

// parseIndexSuffix handles the optional ,X or ,Y after a plain operand
// expression.
func (p *pass) parseIndexSuffix(v int) (operand, *Error) {
	if p.cur().Kind != TokenComma {
		return operand{class: opPlain, value: v}, nil
	}
	p.advance()
	reg, err := p.expect(TokenIdent)
	if err != nil {
		return operand{}, err
	}
	switch strings.ToUpper(reg.Text) {
	case "X":
		return operand{class: opIdxX, value: v}, nil
	case "Y":
		return operand{class: opIdxY, value: v}, nil
	}
	return operand{}, p.errorf(reg, "expected index register X or Y, found '%s'", reg.Text)
}

func (p *pass) expectRegister(name string) *Error {
	reg, err := p.expect(TokenIdent)
	if err != nil {
		return err
	}
	if !strings.EqualFold(reg.Text, name) {
		return p.errorf(reg, "expected index register %s, found '%s'", name, reg.Text)
	}
	return nil
}

func isLineEnd(kind TokenKind) bool {
	return kind == TokenEOL || kind == TokenEOF
}

// pick returns the instruction variant with the requested addressing
// mode, if any.
func pick(variants []*cpu.Instruction, mode cpu.Mode) *cpu.Instruction {
	for _, inst := range variants {
		if inst.Mode == mode {
			return inst
		}
	}
	return nil
}

// selectInstruction maps the operand's syntactic class and value to a
// concrete addressing-mode variant. Operands that fit in a byte prefer
// the zero-page encodings; branch mnemonics always select relative
// addressing.
func (p *pass) selectInstruction(name string, variants []*cpu.Instruction, o operand) *cpu.Instruction {
	zp := o.value >= 0 && o.value <= 0xff

	switch o.class {
	case opNone:
		if inst := pick(variants, cpu.IMP); inst != nil {
			return inst
		}
		return pick(variants, cpu.ACC)

	case opImm:
		return pick(variants, cpu.IMM)

	case opPlain:
		if branchMnemonics[name] {
			return pick(variants, cpu.REL)
		}
		if zp {
			if inst := pick(variants, cpu.ZPG); inst != nil {
				return inst
			}
		}
		return pick(variants, cpu.ABS)

	case opIdxX:
		if zp {
			if inst := pick(variants, cpu.ZPX); inst != nil {
				return inst
			}
		}
		return pick(variants, cpu.ABX)

	case opIdxY:
		if zp {
			if inst := pick(variants, cpu.ZPY); inst != nil {
				return inst
			}
		}
		return pick(variants, cpu.ABY)

	case opIndX:
		if zp {
			if inst := pick(variants, cpu.IDX); inst != nil {
				return inst
			}
		}
		if inst := pick(variants, cpu.IAX); inst != nil {
			return inst
		}
		return pick(variants, cpu.IDX)

	case opIndY:
		return pick(variants, cpu.IDY)

	case opInd:
		if zp {
			if inst := pick(variants, cpu.ZPI); inst != nil {
				return inst
			}
		}
		return pick(variants, cpu.IND)
	}
	return nil
}

// encode produces the bytes for a selected instruction. Only called
// during the emit pass, when operand values are final.
func (p *pass) encode(mn Token, inst *cpu.Instruction, o operand) *Error {
	opcodeAddr := p.pc
	p.code[uint16(opcodeAddr&0xffff)] = inst.Opcode

	switch {
	case inst.Length == 1:
		// Opcode only.

	case inst.Mode == cpu.REL:
		delta := o.value - (opcodeAddr + 2)
		if delta < -128 || delta > 127 {
			return p.errorf(mn, "branch target out of range (%d bytes)", delta)
		}
		p.code[uint16((opcodeAddr+1)&0xffff)] = byte(delta)

	case inst.Length == 2:
		// Low 8 bits, unchecked wrap.
		p.code[uint16((opcodeAddr+1)&0xffff)] = byte(o.value)

	case inst.Length == 3:
		p.code[uint16((opcodeAddr+1)&0xffff)] = byte(o.value)
		p.code[uint16((opcodeAddr+2)&0xffff)] = byte(o.value >> 8)
	}
	return nil
}

//
// verbose logging
//

func (a *assembler) log(format string, args ...any) {
	if a.verbose {
		fmt.Fprintf(a.out, format, args...)
		fmt.Fprintln(a.out)
	}
}

func (p *pass) log(format string, args ...any) {
	p.a.log(format, args...)
}

func (a *assembler) logSection(name string) {
	if a.verbose {
		fmt.Fprintln(a.out, strings.Repeat("-", len(name)+6))
		fmt.Fprintf(a.out, "-- %s --\n", name)
		fmt.Fprintln(a.out, strings.Repeat("-", len(name)+6))
	}
}
