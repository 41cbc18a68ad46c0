package asm

// pseudoExpander expands one pseudo-instruction line into one or more base
// statements. Each pseudo is deterministic given its
// operands alone.
type pseudoExpander func(p *Parser, ops []opnd, line int)

var pseudoTable map[string]pseudoExpander

func init() {
	pseudoTable = map[string]pseudoExpander{
		"li":   expandLi,
		"la":   expandLa,
		"call": expandCall,
		"tail": expandTail,
		"j":    expandJ,
		"jr":   expandJr,
		"ret":  expandRet,
		"mv":   expandMv,
		"not":  expandNot,
		"neg":  expandNeg,
		"nop":  expandNop,

		"seqz": expandSeqz,
		"snez": expandSnez,
		"sltz": expandSltz,
		"sgtz": expandSgtz,

		"beqz": expandBranchZero("beq"),
		"bnez": expandBranchZero("bne"),
		"blez": expandBranchZero("ble_swap"),
		"bgez": expandBranchZero("bge"),
		"bltz": expandBranchZero("blt"),
		"bgtz": expandBranchZero("bgt_swap"),

		"bgt":  expandReversedBranch("blt"),
		"ble":  expandReversedBranch("bge"),
		"bgtu": expandReversedBranch("bltu"),
		"bleu": expandReversedBranch("bgeu"),
	}
}

// expandLi implements `li rd, imm`: one addi if the immediate fits 12
// signed bits, else a lui+addi pair with the canonical hi/lo split.
func expandLi(p *Parser, ops []opnd, line int) {
	if len(ops) != 2 || !ops[1].isImm {
		p.errorf("li expects rd, imm")
		return
	}
	rd := ops[0].reg
	imm := ops[1].imm
	if fitsSigned(imm, 12) {
		p.emitStatement("addi", rd, 0, 0, 0, int32(imm), nil, line, "")
		return
	}
	hi, lo := splitHiLo(imm)
	p.emitStatement("lui", rd, 0, 0, 0, hi, nil, line, "")
	p.emitStatement("addi", rd, rd, 0, 0, lo, nil, line, "")
}

// emitPCRelPair emits the auipc+<tail> sequence shared by la/call/tail and
// the load/store-of-label forms: PCREL_HI20 on the auipc, PCREL_LO12 on
// the tail instruction, linked by the auipc's own site offset.
func (p *Parser) emitPCRelPair(hiReg int, sym string, line int, tail func(hiOffset uint32)) {
	hiReloc := &Relocation{Kind: RelocPCRelHi20, Symbol: sym, Debug: p.dbgAt(line, "")}
	hiOff := p.emitStatement("auipc", hiReg, 0, 0, 0, 0, hiReloc, line, "")
	tail(hiOff)
}

func expandLa(p *Parser, ops []opnd, line int) {
	if len(ops) != 2 || !ops[1].isSym {
		p.errorf("la expects rd, symbol")
		return
	}
	rd := ops[0].reg
	p.emitPCRelPair(rd, ops[1].sym, line, func(hiOff uint32) {
		reloc := &Relocation{Kind: RelocPCRelLo12, Symbol: ops[1].sym, HiOffset: hiOff, Debug: p.dbgAt(line, "")}
		p.emitStatement("addi", rd, rd, 0, 0, 0, reloc, line, "")
	})
}

// callTempReg is the scratch register (x6/t1) the RISC-V convention
// reserves for far-call sequences; the linker's bootstrap far-call uses
// the same register.
const callTempReg = 6

func expandCall(p *Parser, ops []opnd, line int) {
	if len(ops) != 1 || !ops[0].isSym {
		p.errorf("call expects a symbol")
		return
	}
	sym := ops[0].sym
	p.emitPCRelPair(callTempReg, sym, line, func(hiOff uint32) {
		reloc := &Relocation{Kind: RelocPCRelLo12, Symbol: sym, HiOffset: hiOff, Debug: p.dbgAt(line, "")}
		p.emitStatement("jalr", 1, callTempReg, 0, 0, 0, reloc, line, "")
	})
}

func expandTail(p *Parser, ops []opnd, line int) {
	if len(ops) != 1 || !ops[0].isSym {
		p.errorf("tail expects a symbol")
		return
	}
	sym := ops[0].sym
	p.emitPCRelPair(callTempReg, sym, line, func(hiOff uint32) {
		reloc := &Relocation{Kind: RelocPCRelLo12, Symbol: sym, HiOffset: hiOff, Debug: p.dbgAt(line, "")}
		p.emitStatement("jalr", 0, callTempReg, 0, 0, 0, reloc, line, "")
	})
}

func expandJ(p *Parser, ops []opnd, line int) {
	if len(ops) != 1 {
		p.errorf("j expects a target")
		return
	}
	if ops[0].isSym {
		reloc := &Relocation{Kind: RelocPCRel, Symbol: ops[0].sym, Debug: p.dbgAt(line, "")}
		p.emitStatement("jal", 0, 0, 0, 0, 0, reloc, line, "")
		return
	}
	p.emitStatement("jal", 0, 0, 0, 0, int32(ops[0].imm), nil, line, "")
}

func expandJr(p *Parser, ops []opnd, line int) {
	if len(ops) != 1 || !ops[0].isReg {
		p.errorf("jr expects a register")
		return
	}
	p.emitStatement("jalr", 0, ops[0].reg, 0, 0, 0, nil, line, "")
}

func expandRet(p *Parser, ops []opnd, line int) {
	if len(ops) != 0 {
		p.errorf("ret takes no operands")
		return
	}
	p.emitStatement("jalr", 0, 1, 0, 0, 0, nil, line, "")
}

func expandMv(p *Parser, ops []opnd, line int) {
	if len(ops) != 2 {
		p.errorf("mv expects rd, rs")
		return
	}
	p.emitStatement("addi", ops[0].reg, ops[1].reg, 0, 0, 0, nil, line, "")
}

func expandNot(p *Parser, ops []opnd, line int) {
	if len(ops) != 2 {
		p.errorf("not expects rd, rs")
		return
	}
	p.emitStatement("xori", ops[0].reg, ops[1].reg, 0, 0, -1, nil, line, "")
}

func expandNeg(p *Parser, ops []opnd, line int) {
	if len(ops) != 2 {
		p.errorf("neg expects rd, rs")
		return
	}
	p.emitStatement("sub", ops[0].reg, 0, ops[1].reg, 0, 0, nil, line, "")
}

func expandNop(p *Parser, ops []opnd, line int) {
	p.emitStatement("addi", 0, 0, 0, 0, 0, nil, line, "")
}

func expandSeqz(p *Parser, ops []opnd, line int) {
	if len(ops) != 2 {
		p.errorf("seqz expects rd, rs")
		return
	}
	p.emitStatement("sltiu", ops[0].reg, ops[1].reg, 0, 0, 1, nil, line, "")
}

func expandSnez(p *Parser, ops []opnd, line int) {
	if len(ops) != 2 {
		p.errorf("snez expects rd, rs")
		return
	}
	p.emitStatement("sltu", ops[0].reg, 0, ops[1].reg, 0, 0, nil, line, "")
}

func expandSltz(p *Parser, ops []opnd, line int) {
	if len(ops) != 2 {
		p.errorf("sltz expects rd, rs")
		return
	}
	p.emitStatement("slt", ops[0].reg, ops[1].reg, 0, 0, 0, nil, line, "")
}

func expandSgtz(p *Parser, ops []opnd, line int) {
	if len(ops) != 2 {
		p.errorf("sgtz expects rd, rs")
		return
	}
	p.emitStatement("slt", ops[0].reg, 0, ops[1].reg, 0, 0, nil, line, "")
}

// expandBranchZero builds `bXX rs, target` (compare against x0) pseudos.
// "ble_swap"/"bgt_swap" are internal markers telling the emitter to swap
// rs1/rs2 so `blez rs,L` becomes `bge x0, rs, L` and `bgtz rs,L` becomes
// `blt x0, rs, L`.
func expandBranchZero(base string) pseudoExpander {
	return func(p *Parser, ops []opnd, line int) {
		if len(ops) != 2 {
			p.errorf("branch-zero pseudo expects rs, target")
			return
		}
		rs := ops[0].reg
		target := ops[1]
		swap := false
		real := base
		if base == "ble_swap" {
			real, swap = "bge", true
		} else if base == "bgt_swap" {
			real, swap = "blt", true
		}
		rs1, rs2 := rs, 0
		if swap {
			rs1, rs2 = 0, rs
		}
		emitBranch(p, real, rs1, rs2, target, line)
	}
}

// expandReversedBranch builds `bgt rs,rt,target` style pseudos by swapping
// operand order onto the base instruction.
func expandReversedBranch(base string) pseudoExpander {
	return func(p *Parser, ops []opnd, line int) {
		if len(ops) != 3 {
			p.errorf("%s expects rs, rt, target", base)
			return
		}
		emitBranch(p, base, ops[1].reg, ops[0].reg, ops[2], line)
	}
}

func emitBranch(p *Parser, mnemonic string, rs1, rs2 int, target opnd, line int) {
	if target.isSym {
		reloc := &Relocation{Kind: RelocPCRel, Symbol: target.sym, Debug: p.dbgAt(line, "")}
		p.emitStatement(mnemonic, 0, rs1, rs2, 0, 0, reloc, line, "")
		return
	}
	p.emitStatement(mnemonic, 0, rs1, rs2, 0, int32(target.imm), nil, line, "")
}

// loadStoreLabel handles loads of labels:
// `lw rd, symbol` (no base register given) expands to an auipc+load pair
// sharing rd as scratch, mirroring la's PCREL_HI20/PCREL_LO12 pairing.
func (p *Parser) loadStoreLabel(mnemonic string, rd int, sym string, line int) {
	p.emitPCRelPair(rd, sym, line, func(hiOff uint32) {
		reloc := &Relocation{Kind: RelocPCRelLo12, Symbol: sym, HiOffset: hiOff, Debug: p.dbgAt(line, "")}
		p.emitStatement(mnemonic, rd, rd, 0, 0, 0, reloc, line, "")
	})
}

// loadStoreLabelWithBase handles `lw rd, symbol(rs1)`: rs1 is an explicit
// scratch the caller is trusting the assembler to clobber with the
// symbol's address before indexing through it (rare; most source uses the
// bare-symbol form above).
func (p *Parser) loadStoreLabelWithBase(mnemonic string, rd int, sym string, base int, line int) {
	p.emitPCRelPair(base, sym, line, func(hiOff uint32) {
		reloc := &Relocation{Kind: RelocPCRelLo12, Symbol: sym, HiOffset: hiOff, Debug: p.dbgAt(line, "")}
		p.emitStatement(mnemonic, rd, base, 0, 0, 0, reloc, line, "")
	})
}

func (p *Parser) storeLabel(mnemonic string, src int, sym string, line int) {
	scratch := callTempReg
	p.emitPCRelPair(scratch, sym, line, func(hiOff uint32) {
		reloc := &Relocation{Kind: RelocPCRelLo12, Symbol: sym, HiOffset: hiOff, Debug: p.dbgAt(line, "")}
		p.emitStatement(mnemonic, 0, scratch, src, 0, 0, reloc, line, "")
	})
}

func (p *Parser) storeLabelWithBase(mnemonic string, src int, sym string, base int, line int) {
	p.emitPCRelPair(base, sym, line, func(hiOff uint32) {
		reloc := &Relocation{Kind: RelocPCRelLo12, Symbol: sym, HiOffset: hiOff, Debug: p.dbgAt(line, "")}
		p.emitStatement(mnemonic, 0, base, src, 0, 0, reloc, line, "")
	})
}
