package asm

import (
	"strings"

	"jupiter/internal/vm"
)

func (p *Parser) parseInstruction(mnemonic string, line int) {
	ops := p.parseOperands()
	p.buildInstruction(strings.ToLower(mnemonic), ops, line)
}

func (p *Parser) parseOperands() []opnd {
	var ops []opnd
	if p.tok.Kind == TokNewline || p.tok.Kind == TokEOF {
		return ops
	}
	for {
		ops = append(ops, p.parseOperand())
		if p.tok.Kind != TokComma {
			break
		}
		p.advance()
	}
	return ops
}

func (p *Parser) parseOperand() opnd {
	switch p.tok.Kind {
	case TokInt:
		v := p.tok.Int
		p.advance()
		if p.tok.Kind == TokLParen {
			return p.parseMemOperandAfterDisp(v, "")
		}
		return opnd{isImm: true, imm: v}
	case TokFloat:
		v := p.tok.Flt
		p.advance()
		return opnd{isImm: true, imm: int64(floatBits(v))}
	case TokChar:
		v := p.tok.Int
		p.advance()
		return opnd{isImm: true, imm: v}
	case TokLParen:
		return p.parseMemOperandAfterDisp(0, "")
	case TokIdent:
		name := p.tok.Text
		p.advance()
		if idx, ok := lookupIntRegister(name); ok {
			return opnd{isReg: true, reg: idx}
		}
		if idx, ok := lookupFloatRegister(name); ok {
			return opnd{isFReg: true, reg: idx}
		}
		if v, ok := p.consts[name]; ok {
			if p.tok.Kind == TokLParen {
				return p.parseMemOperandAfterDisp(v, "")
			}
			return opnd{isImm: true, imm: v}
		}
		if p.tok.Kind == TokLParen {
			return p.parseMemOperandAfterDisp(0, name)
		}
		return opnd{isSym: true, sym: name}
	default:
		p.errorf("unexpected operand token %s", p.tok)
		p.advance()
		return opnd{}
	}
}

// parseMemOperandAfterDisp parses the `(reg)` tail of a `disp(reg)` or
// `symbol(reg)` memory operand.
func (p *Parser) parseMemOperandAfterDisp(disp int64, sym string) opnd {
	if p.tok.Kind != TokLParen {
		p.errorf("expected ( in memory operand")
		return opnd{}
	}
	p.advance()
	if p.tok.Kind != TokIdent {
		p.errorf("expected base register in memory operand")
		return opnd{}
	}
	base, ok := lookupIntRegister(p.tok.Text)
	if !ok {
		p.errorf("unknown base register %q", p.tok.Text)
	}
	p.advance()
	if p.tok.Kind != TokRParen {
		p.errorf("expected ) in memory operand")
	} else {
		p.advance()
	}
	if sym != "" {
		return opnd{isMem: true, isSym: true, sym: sym, baseReg: base}
	}
	return opnd{isMem: true, isImm: true, imm: disp, baseReg: base}
}

// emitStatement appends a built statement to the current text segment and
// returns its offset within that segment.
func (p *Parser) emitStatement(mnemonic string, rd, rs1, rs2, rs3 int, imm int32, reloc *Relocation, line int, src string) uint32 {
	off := uint32(len(p.unit.Statements)) * vm.InstructionBytes
	p.unit.Statements = append(p.unit.Statements, RawStatement{
		Mnemonic: mnemonic, Rd: rd, Rs1: rs1, Rs2: rs2, Rs3: rs3, Imm: imm,
		Offset: off, Reloc: reloc, Debug: p.dbgAt(line, src),
	})
	if reloc != nil {
		reloc.Segment = SegText
		reloc.Offset = off
	}
	return off
}

func (p *Parser) buildInstruction(mnemonic string, ops []opnd, line int) {
	if exp, ok := pseudoTable[mnemonic]; ok {
		if p.bareMachine {
			p.errorf("pseudo-instruction %q not allowed in bare-machine mode", mnemonic)
			return
		}
		exp(p, ops, line)
		return
	}

	def, ok := vm.Lookup(mnemonic)
	if !ok {
		p.errorf("unknown mnemonic %q", mnemonic)
		return
	}

	switch def.Format {
	case vm.FormatR:
		p.buildFormatR(mnemonic, ops, line)
	case vm.FormatR4:
		p.require(ops, 4, mnemonic, line)
		if len(ops) == 4 {
			p.emitStatement(mnemonic, ops[0].reg, ops[1].reg, ops[2].reg, ops[3].reg, 0, nil, line, "")
		}
	case vm.FormatI:
		p.buildFormatI(mnemonic, ops, line)
	case vm.FormatS:
		p.buildFormatS(mnemonic, ops, line)
	case vm.FormatB:
		p.buildFormatB(mnemonic, ops, line)
	case vm.FormatU:
		p.require(ops, 2, mnemonic, line)
		if len(ops) == 2 {
			if ops[1].imm < 0 || ops[1].imm > 0xFFFFF {
				p.diag.Errorf(KindSemantic, p.dbgAt(line, ""), "%s: immediate %d out of 20-bit range", mnemonic, ops[1].imm)
				return
			}
			p.emitStatement(mnemonic, ops[0].reg, 0, 0, 0, int32(ops[1].imm), nil, line, "")
		}
	case vm.FormatJ:
		p.buildFormatJ(mnemonic, ops, line)
	}
}

func (p *Parser) require(ops []opnd, n int, mnemonic string, line int) {
	if len(ops) != n {
		p.errorf("%s expects %d operands, got %d", mnemonic, n, len(ops))
	}
}

func (p *Parser) buildFormatR(mnemonic string, ops []opnd, line int) {
	switch mnemonic {
	case "fcvt.w.s", "fcvt.wu.s", "fmv.x.w", "fclass.s":
		if len(ops) != 2 {
			p.errorf("%s expects 2 operands", mnemonic)
			return
		}
		p.emitStatement(mnemonic, ops[0].reg, ops[1].reg, 0, 0, 0, nil, line, "")
	case "fcvt.s.w", "fcvt.s.wu", "fmv.w.x":
		if len(ops) != 2 {
			p.errorf("%s expects 2 operands", mnemonic)
			return
		}
		p.emitStatement(mnemonic, ops[0].reg, ops[1].reg, 0, 0, 0, nil, line, "")
	case "fsqrt.s":
		if len(ops) != 2 {
			p.errorf("%s expects 2 operands", mnemonic)
			return
		}
		p.emitStatement(mnemonic, ops[0].reg, ops[1].reg, 0, 0, 0, nil, line, "")
	case "feq.s", "flt.s", "fle.s":
		if len(ops) != 3 {
			p.errorf("%s expects 3 operands", mnemonic)
			return
		}
		p.emitStatement(mnemonic, ops[0].reg, ops[1].reg, ops[2].reg, 0, 0, nil, line, "")
	default:
		if len(ops) != 3 {
			p.errorf("%s expects 3 operands", mnemonic)
			return
		}
		p.emitStatement(mnemonic, ops[0].reg, ops[1].reg, ops[2].reg, 0, 0, nil, line, "")
	}
}

func (p *Parser) buildFormatI(mnemonic string, ops []opnd, line int) {
	switch mnemonic {
	case "ecall", "ebreak", "fence":
		p.emitStatement(mnemonic, 0, 0, 0, 0, 0, nil, line, "")
	case "jalr":
		p.buildJalr(ops, line)
	case "lb", "lh", "lw", "lbu", "lhu", "flw":
		p.buildLoad(mnemonic, ops, line)
	default: // addi/slti/.../slli/srli/srai
		if len(ops) != 3 || !ops[2].isImm {
			p.errorf("%s expects rd, rs1, imm", mnemonic)
			return
		}
		imm := ops[2].imm
		switch mnemonic {
		case "slli", "srli", "srai":
			if imm < 0 || imm > 31 {
				p.diag.Errorf(KindSemantic, p.dbgAt(line, ""), "%s: shift amount %d out of range", mnemonic, imm)
				return
			}
		default:
			if !fitsSigned(imm, 12) {
				p.diag.Errorf(KindSemantic, p.dbgAt(line, ""), "%s: immediate %d out of 12-bit range", mnemonic, imm)
				return
			}
		}
		p.emitStatement(mnemonic, ops[0].reg, ops[1].reg, 0, 0, int32(imm), nil, line, "")
	}
}

func (p *Parser) buildJalr(ops []opnd, line int) {
	switch len(ops) {
	case 1: // jalr rs1 (rd defaults to ra, imm 0)
		p.emitStatement("jalr", 1, ops[0].reg, 0, 0, 0, nil, line, "")
	case 2: // jalr rd, offset(rs1) or jalr rd, rs1 (imm 0)
		if ops[1].isMem {
			p.emitStatement("jalr", ops[0].reg, ops[1].baseReg, 0, 0, int32(ops[1].imm), nil, line, "")
			return
		}
		p.emitStatement("jalr", ops[0].reg, ops[1].reg, 0, 0, 0, nil, line, "")
	case 3:
		if ops[1].isMem {
			p.emitStatement("jalr", ops[0].reg, ops[1].baseReg, 0, 0, int32(ops[1].imm), nil, line, "")
			return
		}
		p.emitStatement("jalr", ops[0].reg, ops[1].reg, 0, 0, int32(ops[2].imm), nil, line, "")
	default:
		p.errorf("jalr: unexpected operand count %d", len(ops))
	}
}

func (p *Parser) buildLoad(mnemonic string, ops []opnd, line int) {
	if len(ops) != 2 {
		p.errorf("%s expects rd, offset(rs1)", mnemonic)
		return
	}
	rd := ops[0].reg
	mem := ops[1]
	if mem.isMem && mem.isSym {
		p.loadStoreLabelWithBase(mnemonic, rd, mem.sym, mem.baseReg, line)
		return
	}
	if mem.isMem {
		p.emitStatement(mnemonic, rd, mem.baseReg, 0, 0, int32(mem.imm), nil, line, "")
		return
	}
	if mem.isSym {
		p.loadStoreLabel(mnemonic, rd, mem.sym, line)
		return
	}
	p.errorf("%s: expected memory operand", mnemonic)
}

func (p *Parser) buildFormatS(mnemonic string, ops []opnd, line int) {
	if len(ops) != 2 {
		p.errorf("%s expects rs2, offset(rs1)", mnemonic)
		return
	}
	src := ops[0].reg
	mem := ops[1]
	if mem.isMem && mem.isSym {
		p.storeLabelWithBase(mnemonic, src, mem.sym, mem.baseReg, line)
		return
	}
	if mem.isMem {
		p.emitStatement(mnemonic, 0, mem.baseReg, src, 0, int32(mem.imm), nil, line, "")
		return
	}
	if mem.isSym {
		p.storeLabel(mnemonic, src, mem.sym, line)
		return
	}
	p.errorf("%s: expected memory operand", mnemonic)
}

func (p *Parser) buildFormatB(mnemonic string, ops []opnd, line int) {
	if len(ops) != 3 {
		p.errorf("%s expects rs1, rs2, target", mnemonic)
		return
	}
	if ops[2].isSym {
		reloc := &Relocation{Kind: RelocPCRel, Symbol: ops[2].sym, Debug: p.dbgAt(line, "")}
		p.emitStatement(mnemonic, 0, ops[0].reg, ops[1].reg, 0, 0, reloc, line, "")
		return
	}
	p.emitStatement(mnemonic, 0, ops[0].reg, ops[1].reg, 0, int32(ops[2].imm), nil, line, "")
}

func (p *Parser) buildFormatJ(mnemonic string, ops []opnd, line int) {
	var rd int
	var target opnd
	switch len(ops) {
	case 1:
		rd, target = 1, ops[0]
	case 2:
		rd, target = ops[0].reg, ops[1]
	default:
		p.errorf("%s: unexpected operand count %d", mnemonic, len(ops))
		return
	}
	if target.isSym {
		reloc := &Relocation{Kind: RelocPCRel, Symbol: target.sym, Debug: p.dbgAt(line, "")}
		p.emitStatement(mnemonic, rd, 0, 0, 0, 0, reloc, line, "")
		return
	}
	p.emitStatement(mnemonic, rd, 0, 0, 0, int32(target.imm), nil, line, "")
}
