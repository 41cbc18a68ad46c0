package vm

// registerIntegerInstructions installs the RV32I base and M-extension
// entries into the mnemonic registry.
func registerIntegerInstructions() {
	register(
		InstrDef{Mnemonic: "lui", Format: FormatU, Opcode: opLUI, Execute: execLui},
		InstrDef{Mnemonic: "auipc", Format: FormatU, Opcode: opAUIPC, Execute: execAuipc},
		InstrDef{Mnemonic: "jal", Format: FormatJ, Opcode: opJAL, Execute: execJal},
		InstrDef{Mnemonic: "jalr", Format: FormatI, Opcode: opJALR, Funct3: 0x0, Execute: execJalr},

		InstrDef{Mnemonic: "beq", Format: FormatB, Opcode: opBranch, Funct3: 0x0, Execute: makeBranch(func(a, b uint32) bool { return a == b })},
		InstrDef{Mnemonic: "bne", Format: FormatB, Opcode: opBranch, Funct3: 0x1, Execute: makeBranch(func(a, b uint32) bool { return a != b })},
		InstrDef{Mnemonic: "blt", Format: FormatB, Opcode: opBranch, Funct3: 0x4, Execute: makeBranch(func(a, b uint32) bool { return int32(a) < int32(b) })},
		InstrDef{Mnemonic: "bge", Format: FormatB, Opcode: opBranch, Funct3: 0x5, Execute: makeBranch(func(a, b uint32) bool { return int32(a) >= int32(b) })},
		InstrDef{Mnemonic: "bltu", Format: FormatB, Opcode: opBranch, Funct3: 0x6, Execute: makeBranch(func(a, b uint32) bool { return a < b })},
		InstrDef{Mnemonic: "bgeu", Format: FormatB, Opcode: opBranch, Funct3: 0x7, Execute: makeBranch(func(a, b uint32) bool { return a >= b })},

		InstrDef{Mnemonic: "lb", Format: FormatI, Opcode: opLoad, Funct3: 0x0, Execute: execLb},
		InstrDef{Mnemonic: "lh", Format: FormatI, Opcode: opLoad, Funct3: 0x1, Execute: execLh},
		InstrDef{Mnemonic: "lw", Format: FormatI, Opcode: opLoad, Funct3: 0x2, Execute: execLw},
		InstrDef{Mnemonic: "lbu", Format: FormatI, Opcode: opLoad, Funct3: 0x4, Execute: execLbu},
		InstrDef{Mnemonic: "lhu", Format: FormatI, Opcode: opLoad, Funct3: 0x5, Execute: execLhu},

		InstrDef{Mnemonic: "sb", Format: FormatS, Opcode: opStore, Funct3: 0x0, Execute: execSb},
		InstrDef{Mnemonic: "sh", Format: FormatS, Opcode: opStore, Funct3: 0x1, Execute: execSh},
		InstrDef{Mnemonic: "sw", Format: FormatS, Opcode: opStore, Funct3: 0x2, Execute: execSw},

		InstrDef{Mnemonic: "addi", Format: FormatI, Opcode: opOpImm, Funct3: 0x0, Execute: makeAluImm(func(a uint32, imm int32) uint32 { return a + uint32(imm) })},
		InstrDef{Mnemonic: "slti", Format: FormatI, Opcode: opOpImm, Funct3: 0x2, Execute: makeAluImm(func(a uint32, imm int32) uint32 { return boolToWord(int32(a) < imm) })},
		InstrDef{Mnemonic: "sltiu", Format: FormatI, Opcode: opOpImm, Funct3: 0x3, Execute: makeAluImm(func(a uint32, imm int32) uint32 { return boolToWord(a < uint32(imm)) })},
		InstrDef{Mnemonic: "xori", Format: FormatI, Opcode: opOpImm, Funct3: 0x4, Execute: makeAluImm(func(a uint32, imm int32) uint32 { return a ^ uint32(imm) })},
		InstrDef{Mnemonic: "ori", Format: FormatI, Opcode: opOpImm, Funct3: 0x6, Execute: makeAluImm(func(a uint32, imm int32) uint32 { return a | uint32(imm) })},
		InstrDef{Mnemonic: "andi", Format: FormatI, Opcode: opOpImm, Funct3: 0x7, Execute: makeAluImm(func(a uint32, imm int32) uint32 { return a & uint32(imm) })},

		InstrDef{Mnemonic: "slli", Format: FormatI, Opcode: opOpImm, Funct3: 0x1, Funct7: 0x00, IsShiftImm: true, Execute: makeShiftImm(func(a uint32, sh uint) uint32 { return a << sh })},
		InstrDef{Mnemonic: "srli", Format: FormatI, Opcode: opOpImm, Funct3: 0x5, Funct7: 0x00, IsShiftImm: true, Execute: makeShiftImm(func(a uint32, sh uint) uint32 { return a >> sh })},
		InstrDef{Mnemonic: "srai", Format: FormatI, Opcode: opOpImm, Funct3: 0x5, Funct7: 0x20, IsShiftImm: true, Execute: makeShiftImm(func(a uint32, sh uint) uint32 { return uint32(int32(a) >> sh) })},

		InstrDef{Mnemonic: "add", Format: FormatR, Opcode: opOp, Funct3: 0x0, Funct7: 0x00, Execute: makeAluReg(func(a, b uint32) uint32 { return a + b })},
		InstrDef{Mnemonic: "sub", Format: FormatR, Opcode: opOp, Funct3: 0x0, Funct7: 0x20, Execute: makeAluReg(func(a, b uint32) uint32 { return a - b })},
		InstrDef{Mnemonic: "sll", Format: FormatR, Opcode: opOp, Funct3: 0x1, Funct7: 0x00, Execute: makeAluReg(func(a, b uint32) uint32 { return a << (b & 0x1F) })},
		InstrDef{Mnemonic: "slt", Format: FormatR, Opcode: opOp, Funct3: 0x2, Funct7: 0x00, Execute: makeAluReg(func(a, b uint32) uint32 { return boolToWord(int32(a) < int32(b)) })},
		InstrDef{Mnemonic: "sltu", Format: FormatR, Opcode: opOp, Funct3: 0x3, Funct7: 0x00, Execute: makeAluReg(func(a, b uint32) uint32 { return boolToWord(a < b) })},
		InstrDef{Mnemonic: "xor", Format: FormatR, Opcode: opOp, Funct3: 0x4, Funct7: 0x00, Execute: makeAluReg(func(a, b uint32) uint32 { return a ^ b })},
		InstrDef{Mnemonic: "srl", Format: FormatR, Opcode: opOp, Funct3: 0x5, Funct7: 0x00, Execute: makeAluReg(func(a, b uint32) uint32 { return a >> (b & 0x1F) })},
		InstrDef{Mnemonic: "sra", Format: FormatR, Opcode: opOp, Funct3: 0x5, Funct7: 0x20, Execute: makeAluReg(func(a, b uint32) uint32 { return uint32(int32(a) >> (b & 0x1F)) })},
		InstrDef{Mnemonic: "or", Format: FormatR, Opcode: opOp, Funct3: 0x6, Funct7: 0x00, Execute: makeAluReg(func(a, b uint32) uint32 { return a | b })},
		InstrDef{Mnemonic: "and", Format: FormatR, Opcode: opOp, Funct3: 0x7, Funct7: 0x00, Execute: makeAluReg(func(a, b uint32) uint32 { return a & b })},

		InstrDef{Mnemonic: "fence", Format: FormatI, Opcode: opMiscMem, Funct3: 0x0, Execute: execNop},

		InstrDef{Mnemonic: "ecall", Format: FormatI, Opcode: opSystem, Funct3: 0x0, HasImmOverride: true, ImmOverride: 0, Execute: execEcall},
		InstrDef{Mnemonic: "ebreak", Format: FormatI, Opcode: opSystem, Funct3: 0x0, HasImmOverride: true, ImmOverride: 1, Execute: execEbreak},

		InstrDef{Mnemonic: "mul", Format: FormatR, Opcode: opOp, Funct3: 0x0, Funct7: 0x01, Execute: makeAluReg(func(a, b uint32) uint32 { return a * b })},
		InstrDef{Mnemonic: "mulh", Format: FormatR, Opcode: opOp, Funct3: 0x1, Funct7: 0x01, Execute: makeAluReg(execMulh)},
		InstrDef{Mnemonic: "mulhsu", Format: FormatR, Opcode: opOp, Funct3: 0x2, Funct7: 0x01, Execute: makeAluReg(execMulhsu)},
		InstrDef{Mnemonic: "mulhu", Format: FormatR, Opcode: opOp, Funct3: 0x3, Funct7: 0x01, Execute: makeAluReg(execMulhu)},
		InstrDef{Mnemonic: "div", Format: FormatR, Opcode: opOp, Funct3: 0x4, Funct7: 0x01, Execute: makeAluReg(execDiv)},
		InstrDef{Mnemonic: "divu", Format: FormatR, Opcode: opOp, Funct3: 0x5, Funct7: 0x01, Execute: makeAluReg(execDivu)},
		InstrDef{Mnemonic: "rem", Format: FormatR, Opcode: opOp, Funct3: 0x6, Funct7: 0x01, Execute: makeAluReg(execRem)},
		InstrDef{Mnemonic: "remu", Format: FormatR, Opcode: opOp, Funct3: 0x7, Funct7: 0x01, Execute: makeAluReg(execRemu)},
	)
}

func boolToWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func makeAluReg(f func(a, b uint32) uint32) Executor {
	return func(c *Core, d Decoded, addr uint32) error {
		c.SetInt(d.Rd, f(c.GetInt(d.Rs1), c.GetInt(d.Rs2)))
		return nil
	}
}

func makeAluImm(f func(a uint32, imm int32) uint32) Executor {
	return func(c *Core, d Decoded, addr uint32) error {
		c.SetInt(d.Rd, f(c.GetInt(d.Rs1), d.Imm))
		return nil
	}
}

func makeShiftImm(f func(a uint32, sh uint) uint32) Executor {
	return func(c *Core, d Decoded, addr uint32) error {
		c.SetInt(d.Rd, f(c.GetInt(d.Rs1), uint(d.Imm)&0x1F))
		return nil
	}
}

func makeBranch(taken func(a, b uint32) bool) Executor {
	return func(c *Core, d Decoded, addr uint32) error {
		if taken(c.GetInt(d.Rs1), c.GetInt(d.Rs2)) {
			c.PC = addr + uint32(d.Imm)
		}
		return nil
	}
}

func execLui(c *Core, d Decoded, addr uint32) error {
	c.SetInt(d.Rd, uint32(d.Imm)<<12)
	return nil
}

func execAuipc(c *Core, d Decoded, addr uint32) error {
	c.SetInt(d.Rd, addr+uint32(d.Imm)<<12)
	return nil
}

func execJal(c *Core, d Decoded, addr uint32) error {
	c.SetInt(d.Rd, addr+4)
	c.PC = addr + uint32(d.Imm)
	return nil
}

func execJalr(c *Core, d Decoded, addr uint32) error {
	target := (c.GetInt(d.Rs1) + uint32(d.Imm)) &^ 1
	c.SetInt(d.Rd, addr+4)
	c.PC = target
	return nil
}

func execLb(c *Core, d Decoded, addr uint32) error {
	ea := c.GetInt(d.Rs1) + uint32(d.Imm)
	v, err := c.Mem.LoadByte(ea)
	if err != nil {
		return err
	}
	c.SetInt(d.Rd, signExtend(uint32(v), 8))
	return nil
}

func execLbu(c *Core, d Decoded, addr uint32) error {
	ea := c.GetInt(d.Rs1) + uint32(d.Imm)
	v, err := c.Mem.LoadByte(ea)
	if err != nil {
		return err
	}
	c.SetInt(d.Rd, uint32(v))
	return nil
}

func execLh(c *Core, d Decoded, addr uint32) error {
	ea := c.GetInt(d.Rs1) + uint32(d.Imm)
	v, err := c.Mem.LoadHalf(ea)
	if err != nil {
		return err
	}
	c.SetInt(d.Rd, signExtend(uint32(v), 16))
	return nil
}

func execLhu(c *Core, d Decoded, addr uint32) error {
	ea := c.GetInt(d.Rs1) + uint32(d.Imm)
	v, err := c.Mem.LoadHalf(ea)
	if err != nil {
		return err
	}
	c.SetInt(d.Rd, uint32(v))
	return nil
}

func execLw(c *Core, d Decoded, addr uint32) error {
	ea := c.GetInt(d.Rs1) + uint32(d.Imm)
	v, err := c.Mem.LoadWord(ea)
	if err != nil {
		return err
	}
	c.SetInt(d.Rd, v)
	return nil
}

func execSb(c *Core, d Decoded, addr uint32) error {
	ea := c.GetInt(d.Rs1) + uint32(d.Imm)
	return c.Mem.StoreByte(ea, byte(c.GetInt(d.Rs2)))
}

func execSh(c *Core, d Decoded, addr uint32) error {
	ea := c.GetInt(d.Rs1) + uint32(d.Imm)
	return c.Mem.StoreHalf(ea, uint16(c.GetInt(d.Rs2)))
}

func execSw(c *Core, d Decoded, addr uint32) error {
	ea := c.GetInt(d.Rs1) + uint32(d.Imm)
	return c.Mem.StoreWord(ea, c.GetInt(d.Rs2))
}

func execNop(c *Core, d Decoded, addr uint32) error { return nil }

func execEcall(c *Core, d Decoded, addr uint32) error {
	if c.Syscall == nil {
		return illegalInstructionFault()
	}
	return c.Syscall(c)
}

func execEbreak(c *Core, d Decoded, addr uint32) error {
	return breakpointFault()
}

func execMulh(a, b uint32) uint32 {
	prod := int64(int32(a)) * int64(int32(b))
	return uint32(prod >> 32)
}

func execMulhu(a, b uint32) uint32 {
	prod := uint64(a) * uint64(b)
	return uint32(prod >> 32)
}

func execMulhsu(a, b uint32) uint32 {
	prod := int64(int32(a)) * int64(uint64(b))
	return uint32(prod >> 32)
}

func execDiv(a, b uint32) uint32 {
	sa, sb := int32(a), int32(b)
	if sb == 0 {
		return 0xFFFFFFFF
	}
	if sa == -(1<<31) && sb == -1 {
		return a
	}
	return uint32(sa / sb)
}

func execDivu(a, b uint32) uint32 {
	if b == 0 {
		return 0xFFFFFFFF
	}
	return a / b
}

func execRem(a, b uint32) uint32 {
	sa, sb := int32(a), int32(b)
	if sb == 0 {
		return a
	}
	if sa == -(1<<31) && sb == -1 {
		return 0
	}
	return uint32(sa % sb)
}

func execRemu(a, b uint32) uint32 {
	if b == 0 {
		return a
	}
	return a % b
}
