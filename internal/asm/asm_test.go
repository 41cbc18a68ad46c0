package asm

import (
	"fmt"
	"testing"

	"jupiter/internal/vm"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(fmt.Sprintf("%v %s", cond, format), args...)
	}
}

func assembleOne(t *testing.T, src string) (*TranslationUnit, *Diagnostics) {
	t.Helper()
	diag := &Diagnostics{}
	unit := Assemble("test.s", src, diag, false)
	return unit, diag
}

func assembleClean(t *testing.T, src string) *TranslationUnit {
	t.Helper()
	unit, diag := assembleOne(t, src)
	assert(t, !diag.HasErrors(), "unexpected diagnostics: %v", diag.Error())
	return unit
}

func TestLexerNumericBases(t *testing.T) {
	lex := NewLexer("t.s", "10 0x1F 0b101 0o17 017 -42 3.5 'A' '\\n'")
	want := []int64{10, 0x1F, 5, 15, 15, -42}
	for i, w := range want {
		tok, err := lex.Next()
		assert(t, err == nil, "lex error: %v", err)
		assert(t, tok.Kind == TokInt && tok.Int == w, "token %d = %v (%d), want %d", i, tok.Kind, tok.Int, w)
	}
	tok, _ := lex.Next()
	assert(t, tok.Kind == TokFloat && tok.Flt == 3.5, "float literal")
	tok, _ = lex.Next()
	assert(t, tok.Kind == TokChar && tok.Int == 'A', "char literal")
	tok, _ = lex.Next()
	assert(t, tok.Kind == TokChar && tok.Int == '\n', "escaped char literal")
}

func TestLexerCommentsAndErrors(t *testing.T) {
	lex := NewLexer("t.s", "add # comment to eol\n; full-line comment\nsub")
	tok, _ := lex.Next()
	assert(t, tok.Kind == TokIdent && tok.Text == "add", "first token")
	tok, _ = lex.Next()
	assert(t, tok.Kind == TokNewline, "comment runs to end of line")

	lex = NewLexer("t.s", `"unterminated`)
	_, err := lex.Next()
	assert(t, err != nil, "unterminated string must error")
}

func TestLiExpansion(t *testing.T) {
	unit := assembleClean(t, "li x1, 10")
	assert(t, len(unit.Statements) == 1, "small li is one addi, got %d", len(unit.Statements))
	s := unit.Statements[0]
	assert(t, s.Mnemonic == "addi" && s.Rd == 1 && s.Rs1 == 0 && s.Imm == 10, "li 10 -> %+v", s)

	unit = assembleClean(t, "li x1, 0x12345678")
	assert(t, len(unit.Statements) == 2, "large li is lui+addi")
	assert(t, unit.Statements[0].Mnemonic == "lui" && unit.Statements[0].Imm == 0x12345, "upper half %x", unit.Statements[0].Imm)
	assert(t, unit.Statements[1].Mnemonic == "addi" && unit.Statements[1].Imm == 0x678, "lower half %x", unit.Statements[1].Imm)
}

func TestLiUpperHalfAdjustment(t *testing.T) {
	// Low 12 bits of 0xDEADBEEF read as a negative signed value, so the
	// lui operand must pre-add 0x1000 for the addi's sign extension to
	// cancel exactly.
	unit := assembleClean(t, "li x1, 0xDEADBEEF")
	lui, addi := unit.Statements[0], unit.Statements[1]
	assert(t, lui.Imm == 0xDEADC, "adjusted upper half = %x, want deadc", lui.Imm)
	assert(t, addi.Imm == -0x111, "lower half = %d, want %d", addi.Imm, -0x111)
	sum := uint32(lui.Imm)<<12 + uint32(addi.Imm)
	assert(t, sum == 0xDEADBEEF, "halves must sum to the target, got %08x", sum)
}

func TestLaRelocationPair(t *testing.T) {
	unit := assembleClean(t, "la x5, foo")
	assert(t, len(unit.Statements) == 2, "la is auipc+addi")
	auipc, addi := unit.Statements[0], unit.Statements[1]
	assert(t, auipc.Mnemonic == "auipc" && auipc.Rd == 5, "first half %+v", auipc)
	assert(t, addi.Mnemonic == "addi" && addi.Rd == 5 && addi.Rs1 == 5, "second half %+v", addi)

	assert(t, auipc.Reloc != nil && auipc.Reloc.Kind == RelocPCRelHi20, "auipc carries PCREL_HI20")
	assert(t, addi.Reloc != nil && addi.Reloc.Kind == RelocPCRelLo12, "addi carries PCREL_LO12")
	assert(t, addi.Reloc.HiOffset == auipc.Offset, "lo12 must anchor to the auipc site")
	assert(t, auipc.Reloc.Symbol == "foo" && addi.Reloc.Symbol == "foo", "both halves name the symbol")
}

func TestCallAndTail(t *testing.T) {
	unit := assembleClean(t, "call f\ntail g")
	assert(t, len(unit.Statements) == 4, "call and tail are two statements each")
	call := unit.Statements[1]
	assert(t, call.Mnemonic == "jalr" && call.Rd == 1 && call.Rs1 == 6, "call links through ra: %+v", call)
	tail := unit.Statements[3]
	assert(t, tail.Mnemonic == "jalr" && tail.Rd == 0 && tail.Rs1 == 6, "tail discards the link: %+v", tail)
}

func TestBranchPseudos(t *testing.T) {
	unit := assembleClean(t, `
loop:
	beqz x5, loop
	blez x5, loop
	bgt x5, x6, loop
`)
	beq := unit.Statements[0]
	assert(t, beq.Mnemonic == "beq" && beq.Rs1 == 5 && beq.Rs2 == 0, "beqz -> beq rs, x0: %+v", beq)
	bge := unit.Statements[1]
	assert(t, bge.Mnemonic == "bge" && bge.Rs1 == 0 && bge.Rs2 == 5, "blez -> bge x0, rs: %+v", bge)
	blt := unit.Statements[2]
	assert(t, blt.Mnemonic == "blt" && blt.Rs1 == 6 && blt.Rs2 == 5, "bgt swaps operands: %+v", blt)
}

func TestSimplePseudos(t *testing.T) {
	unit := assembleClean(t, "nop\nmv x1, x2\nnot x3, x4\nneg x5, x6\nseqz x7, x8\nret\nj 8\njr x9")
	ms := []struct {
		mnemonic string
		rd, rs1  int
	}{
		{"addi", 0, 0},
		{"addi", 1, 2},
		{"xori", 3, 4},
		{"sub", 5, 0},
		{"sltiu", 7, 8},
		{"jalr", 0, 1},
		{"jal", 0, 0},
		{"jalr", 0, 9},
	}
	assert(t, len(unit.Statements) == len(ms), "statement count %d", len(unit.Statements))
	for i, m := range ms {
		s := unit.Statements[i]
		assert(t, s.Mnemonic == m.mnemonic && s.Rd == m.rd && s.Rs1 == m.rs1,
			"pseudo %d -> %+v, want %+v", i, s, m)
	}
}

func TestLabelsAndSegments(t *testing.T) {
	unit := assembleClean(t, `
.data
val: .word 42
.text
start:
	lw x5, 0(x3)
after:
`)
	v, ok := unit.Locals["val"]
	assert(t, ok && v.Segment == SegData && v.Offset == 0, "val -> %+v", v)
	s, ok := unit.Locals["start"]
	assert(t, ok && s.Segment == SegText && s.Offset == 0, "start -> %+v", s)
	a, ok := unit.Locals["after"]
	assert(t, ok && a.Offset == 4, "after -> %+v", a)
	assert(t, len(unit.Data) == 4 && unit.Data[0] == 42, "data bytes %v", unit.Data)
}

func TestDataDirectives(t *testing.T) {
	unit := assembleClean(t, `
.data
.byte 1, 2
.half 0x1234
.word 0xCAFEBABE
.asciiz "hi"
.align 2
.space 3
`)
	// .byte 1,2 then .half aligns to offset 2.
	assert(t, unit.Data[0] == 1 && unit.Data[1] == 2, "bytes")
	assert(t, unit.Data[2] == 0x34 && unit.Data[3] == 0x12, "half is little-endian")
	assert(t, unit.Data[4] == 0xBE && unit.Data[7] == 0xCA, "word is little-endian")
	assert(t, unit.Data[8] == 'h' && unit.Data[9] == 'i' && unit.Data[10] == 0, "asciiz is NUL-terminated")
	assert(t, len(unit.Data) == 15, ".align 2 pads to 12, .space adds 3, got %d", len(unit.Data))
}

func TestRodataAndBss(t *testing.T) {
	unit := assembleClean(t, `
.rodata
msg: .ascii "ab"
.bss
buf: .space 16
.globl msg
`)
	assert(t, len(unit.Rodata) == 2, "rodata bytes %v", unit.Rodata)
	assert(t, unit.BssLen == 16, "bss length %d", unit.BssLen)
	m := unit.Locals["msg"]
	assert(t, m.Segment == SegRodata, "msg segment %v", m.Segment)
	b := unit.Locals["buf"]
	assert(t, b.Segment == SegBss, "buf segment %v", b.Segment)
	assert(t, len(unit.Globals) == 1 && unit.Globals[0] == "msg", "globals %v", unit.Globals)
}

func TestWordLabelRelocation(t *testing.T) {
	unit := assembleClean(t, `
.data
ptr: .word target
.text
target:
`)
	assert(t, len(unit.Relocations) == 1, "one data relocation expected")
	r := unit.Relocations[0]
	assert(t, r.Kind == RelocDefault && r.Symbol == "target" && r.Segment == SegData && r.Offset == 0,
		"relocation %+v", r)
}

func TestEquConstants(t *testing.T) {
	unit := assembleClean(t, `
.equ SIZE, 12
.data
.word SIZE
.text
	addi x1, x0, SIZE
`)
	assert(t, unit.Data[0] == 12, "equ value in .word")
	assert(t, unit.Statements[0].Imm == 12, "equ value as an immediate")
}

func TestDuplicateLabelIsError(t *testing.T) {
	_, diag := assembleOne(t, "a:\na:\n")
	assert(t, diag.HasErrors(), "duplicate label must be an error")
}

func TestUnknownMnemonicIsError(t *testing.T) {
	_, diag := assembleOne(t, "frobnicate x1, x2")
	assert(t, diag.HasErrors(), "unknown mnemonic must be an error")
}

func TestImmediateRangeIsChecked(t *testing.T) {
	_, diag := assembleOne(t, "addi x1, x0, 4096")
	assert(t, diag.HasErrors(), "13-bit addi immediate must be rejected")
	_, diag = assembleOne(t, "slli x1, x1, 32")
	assert(t, diag.HasErrors(), "shift amount 32 must be rejected")
}

func TestBareMachineRejectsPseudos(t *testing.T) {
	diag := &Diagnostics{}
	Assemble("t.s", "li x1, 5", diag, true)
	assert(t, diag.HasErrors(), "bare-machine mode must reject pseudos")

	diag = &Diagnostics{}
	Assemble("t.s", "addi x1, x0, 5", diag, true)
	assert(t, !diag.HasErrors(), "bare-machine mode still accepts base encodings")
}

func TestExtrictPromotesWarnings(t *testing.T) {
	relaxed := &Diagnostics{}
	relaxed.Warnf(KindSemantic, DebugInfo{}, "suspicious")
	assert(t, !relaxed.HasErrors(), "a warning alone is not an error")

	extrict := &Diagnostics{Extrict: true}
	extrict.Warnf(KindSemantic, DebugInfo{}, "suspicious")
	assert(t, extrict.HasErrors(), "extrict mode promotes warnings")
}

func TestAllFilesAssembleDespiteErrors(t *testing.T) {
	units, diag := AssembleAll([]Source{
		{File: "bad.s", Text: "bogus x1"},
		{File: "good.s", Text: "addi x1, x0, 1"},
	}, false, false)
	assert(t, diag.HasErrors(), "the bad file must report")
	assert(t, len(units) == 2, "every unit is still produced")
	assert(t, len(units[1].Statements) == 1, "the good file assembled fully")
}

// TestDisassembleRoundTrip re-assembles the canonical text of encoded
// instructions and checks the machine word survives unchanged.
func TestDisassembleRoundTrip(t *testing.T) {
	lines := []string{
		"add x3, x1, x2",
		"addi x5, x6, -100",
		"slli x5, x6, 13",
		"srai x5, x6, 4",
		"lw x5, 8(x6)",
		"lbu x5, -1(x6)",
		"sw x5, 12(x6)",
		"sb x5, -3(x6)",
		"beq x1, x2, -8",
		"bgeu x1, x2, 4094",
		"jal x1, 2048",
		"jalr x1, 16(x6)",
		"lui x5, 74565",
		"auipc x5, 1",
		"mul x3, x1, x2",
		"divu x3, x1, x2",
		"flw f5, 4(x6)",
		"fsw f5, 8(x6)",
		"fadd.s f1, f2, f3",
		"fsgnjx.s f1, f2, f3",
		"fmadd.s f1, f2, f3, f4",
		"fcvt.w.s x5, f6",
		"fcvt.s.wu f5, x6",
		"fmv.x.w x5, f6",
		"ecall",
		"ebreak",
	}
	for _, line := range lines {
		unit := assembleClean(t, line)
		assert(t, len(unit.Statements) == 1, "%q is one statement", line)
		s := unit.Statements[0]
		word, err := vm.Encode(s.Mnemonic, s.Rd, s.Rs1, s.Rs2, s.Rs3, s.Imm)
		assert(t, err == nil, "encode %q: %v", line, err)

		dec, ok := vm.Decode(word)
		assert(t, ok, "decode %q (%08x)", line, word)
		text := vm.Disassemble(dec)

		unit2 := assembleClean(t, text)
		assert(t, len(unit2.Statements) == 1, "disassembly %q is one statement", text)
		s2 := unit2.Statements[0]
		word2, err := vm.Encode(s2.Mnemonic, s2.Rd, s2.Rs1, s2.Rs2, s2.Rs3, s2.Imm)
		assert(t, err == nil, "re-encode %q: %v", text, err)
		assert(t, word2 == word, "%q: %08x -> %q -> %08x", line, word, text, word2)
	}
}
