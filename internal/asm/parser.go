package asm

import (
	"strings"

	"jupiter/internal/vm"
)

// opnd is one parsed-but-not-yet-semantically-typed operand: either an
// integer/float register, a literal immediate, or a symbol reference. The
// parser never sets addend: an operand such as `label+4` is not accepted.
type opnd struct {
	isReg, isFReg bool
	reg           int

	isImm bool
	imm   int64

	isSym  bool
	sym    string
	addend int64

	// isMem marks a `disp(reg)` or `symbol(reg)` memory operand: disp/sym
	// carries the displacement/symbol, baseReg carries the parenthesized
	// register.
	isMem   bool
	baseReg int
}

// Parser drives everything past lexing: parsing raw statements/directives,
// pseudo-expansion, local symbol collection, segment assembly, and
// relocation recording. One Parser assembles one file into one
// TranslationUnit.
type Parser struct {
	file string
	lex  *Lexer
	diag *Diagnostics

	tok Token

	unit *TranslationUnit
	seg  Segment

	consts map[string]int64

	bareMachine bool
}

// NewParser builds a parser for one file's source text.
func NewParser(file, src string, diag *Diagnostics, bareMachine bool) *Parser {
	p := &Parser{
		file:        file,
		lex:         NewLexer(file, src),
		diag:        diag,
		unit:        newTranslationUnit(file),
		seg:         SegText,
		consts:      make(map[string]int64),
		bareMachine: bareMachine,
	}
	p.advance()
	return p
}

func (p *Parser) advance() {
	t, err := p.lex.Next()
	if err != nil {
		if le, ok := err.(*lexError); ok {
			p.diag.Errorf(KindLex, p.dbgAt(le.line, ""), "%s", le.msg)
		}
		// Resynchronize by skipping to the next newline/EOF byte-by-byte is
		// handled by Lexer internally advancing past the bad byte; just
		// retry.
		p.advance()
		return
	}
	p.tok = t
}

func (p *Parser) dbg() DebugInfo { return p.dbgAt(p.tok.Line, "") }

func (p *Parser) dbgAt(line int, src string) DebugInfo {
	return DebugInfo{File: p.file, Line: line, Source: src}
}

func (p *Parser) errorf(format string, args ...any) {
	p.diag.Errorf(KindParse, p.dbg(), format, args...)
}

// Parse runs the parser to completion, mutating and returning the
// TranslationUnit. Errors are accumulated into the Diagnostics sink passed
// to NewParser, not returned directly.
func (p *Parser) Parse() *TranslationUnit {
	for p.tok.Kind != TokEOF {
		if p.tok.Kind == TokNewline {
			p.advance()
			continue
		}
		p.parseLine()
	}
	return p.unit
}

func (p *Parser) skipToNewline() {
	for p.tok.Kind != TokNewline && p.tok.Kind != TokEOF {
		p.advance()
	}
}

func (p *Parser) parseLine() {
	switch p.tok.Kind {
	case TokDirective:
		p.parseDirective()
	case TokIdent:
		name := p.tok.Text
		// Peek for a label (`name:`).
		save := p.tok
		p.advance()
		if p.tok.Kind == TokColon {
			p.defineLabel(name, save.Line)
			p.advance()
			// A label may be followed by more on the same line.
			if p.tok.Kind == TokNewline || p.tok.Kind == TokEOF {
				return
			}
			p.parseLine()
			return
		}
		p.parseInstruction(name, save.Line)
	default:
		p.errorf("unexpected token %s", p.tok)
		p.skipToNewline()
	}
	if p.tok.Kind == TokNewline {
		p.advance()
	}
}

func (p *Parser) defineLabel(name string, line int) {
	if _, exists := p.unit.Locals[name]; exists {
		p.diag.Errorf(KindSemantic, p.dbgAt(line, name+":"), "duplicate local label %q", name)
		return
	}
	offset := p.segCursor()
	p.unit.Locals[name] = LocalSymbol{Segment: p.seg, Offset: offset}
}

func (p *Parser) segCursor() uint32 {
	switch p.seg {
	case SegText:
		return uint32(len(p.unit.Statements)) * vm.InstructionBytes
	case SegRodata:
		return uint32(len(p.unit.Rodata))
	case SegBss:
		return p.unit.BssLen
	case SegData:
		return uint32(len(p.unit.Data))
	}
	return 0
}

func (p *Parser) parseDirective() {
	name := strings.ToLower(p.tok.Text)
	line := p.tok.Line
	p.advance()

	switch name {
	case ".text":
		p.seg = SegText
	case ".data":
		p.seg = SegData
	case ".rodata":
		p.seg = SegRodata
	case ".bss":
		p.seg = SegBss
	case ".section":
		p.parseSection()
	case ".globl", ".global":
		if p.tok.Kind != TokIdent {
			p.errorf("expected symbol after .globl")
			p.skipToNewline()
			return
		}
		p.unit.Globals = append(p.unit.Globals, p.tok.Text)
		p.advance()
	case ".align":
		n := p.parseConstExpr()
		p.alignSegment(uint32(1) << uint(n))
	case ".byte":
		p.emitIntList(1, line)
	case ".half":
		p.alignSegment(2)
		p.emitIntList(2, line)
	case ".word":
		p.alignSegment(4)
		p.emitWordList(line)
	case ".float":
		p.alignSegment(4)
		p.emitFloatList(line)
	case ".ascii":
		p.emitString(false)
	case ".asciiz", ".string":
		p.emitString(true)
	case ".space":
		n := p.parseConstExpr()
		p.emitZeros(uint32(n))
	case ".equ":
		p.parseEqu()
	default:
		p.errorf("unknown directive %q", name)
		p.skipToNewline()
	}
}

func (p *Parser) parseSection() {
	if p.tok.Kind != TokIdent && p.tok.Kind != TokDirective {
		p.errorf("expected section name")
		p.skipToNewline()
		return
	}
	name := strings.TrimPrefix(strings.ToLower(p.tok.Text), ".")
	p.advance()
	switch {
	case strings.HasPrefix(name, "text"):
		p.seg = SegText
	case strings.HasPrefix(name, "rodata"):
		p.seg = SegRodata
	case strings.HasPrefix(name, "bss"):
		p.seg = SegBss
	case strings.HasPrefix(name, "data"):
		p.seg = SegData
	default:
		p.errorf("unknown section %q", name)
	}
}

func (p *Parser) parseEqu() {
	if p.tok.Kind != TokIdent {
		p.errorf("expected symbol name after .equ")
		p.skipToNewline()
		return
	}
	name := p.tok.Text
	p.advance()
	if p.tok.Kind == TokComma {
		p.advance()
	}
	v := p.parseConstExpr()
	p.consts[name] = v
}

// parseConstExpr parses a signed integer literal or a previously-.equ'd
// name. Jupiter doesn't evaluate general arithmetic expressions; directive
// arguments are literals or equ aliases; none of the supported
// directives needs more.
func (p *Parser) parseConstExpr() int64 {
	neg := int64(1)
	if p.tok.Kind == TokIdent && p.tok.Text == "-" {
		neg = -1
		p.advance()
	}
	switch p.tok.Kind {
	case TokInt:
		v := p.tok.Int
		p.advance()
		return v * neg
	case TokIdent:
		if v, ok := p.consts[p.tok.Text]; ok {
			p.advance()
			return v * neg
		}
		p.errorf("undefined constant %q", p.tok.Text)
		p.advance()
		return 0
	default:
		p.errorf("expected integer constant, got %s", p.tok)
		return 0
	}
}

func (p *Parser) alignSegment(align uint32) {
	if p.seg == SegText {
		return // statements are always 4-byte aligned already
	}
	for p.segCursor()%align != 0 {
		p.emitByte(0)
	}
}

func (p *Parser) emitByte(b byte) {
	switch p.seg {
	case SegRodata:
		p.unit.Rodata = append(p.unit.Rodata, b)
	case SegData:
		p.unit.Data = append(p.unit.Data, b)
	case SegBss:
		p.unit.BssLen++
	default:
		p.errorf("data directive used in .text segment")
	}
}

func (p *Parser) emitIntList(width int, line int) {
	for {
		v := p.parseConstExpr()
		for i := 0; i < width; i++ {
			p.emitByte(byte(v >> (8 * i)))
		}
		if p.tok.Kind != TokComma {
			break
		}
		p.advance()
	}
}

// emitWordList handles `.word` operands that may be integer literals or a
// symbol reference (the latter produces a RelocDefault relocation into the
// data/rodata bytes).
func (p *Parser) emitWordList(line int) {
	for {
		if p.tok.Kind == TokIdent {
			if _, isConst := p.consts[p.tok.Text]; !isConst {
				sym := p.tok.Text
				off := p.segCursor()
				p.unit.Relocations = append(p.unit.Relocations, Relocation{
					Kind: RelocDefault, Symbol: sym, Segment: p.seg, Offset: off,
					Debug: p.dbgAt(line, sym),
				})
				for i := 0; i < 4; i++ {
					p.emitByte(0)
				}
				p.advance()
				if p.tok.Kind != TokComma {
					return
				}
				p.advance()
				continue
			}
		}
		v := p.parseConstExpr()
		for i := 0; i < 4; i++ {
			p.emitByte(byte(v >> (8 * i)))
		}
		if p.tok.Kind != TokComma {
			return
		}
		p.advance()
	}
}

func (p *Parser) emitFloatList(line int) {
	for {
		var bits uint32
		switch p.tok.Kind {
		case TokFloat:
			bits = floatBits(p.tok.Flt)
			p.advance()
		case TokInt:
			bits = floatBits(float32(p.tok.Int))
			p.advance()
		default:
			p.errorf("expected float literal, got %s", p.tok)
			p.advance()
			return
		}
		for i := 0; i < 4; i++ {
			p.emitByte(byte(bits >> (8 * i)))
		}
		if p.tok.Kind != TokComma {
			return
		}
		p.advance()
	}
}

func (p *Parser) emitString(nulTerminate bool) {
	if p.tok.Kind != TokString {
		p.errorf("expected string literal, got %s", p.tok)
		p.skipToNewline()
		return
	}
	for _, b := range []byte(p.tok.Str) {
		p.emitByte(b)
	}
	if nulTerminate {
		p.emitByte(0)
	}
	p.advance()
}

func (p *Parser) emitZeros(n uint32) {
	for i := uint32(0); i < n; i++ {
		p.emitByte(0)
	}
}
