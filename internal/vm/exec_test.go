package vm

import (
	"math"
	"testing"
)

func TestDivRemEdgeCases(t *testing.T) {
	assert(t, execDiv(0x80000000, 0xFFFFFFFF) == 0x80000000, "INT_MIN / -1 must yield INT_MIN")
	assert(t, execRem(0x80000000, 0xFFFFFFFF) == 0, "INT_MIN %% -1 must yield 0")
	assert(t, execDiv(7, 0) == 0xFFFFFFFF, "div by zero must yield -1")
	assert(t, execDivu(7, 0) == 0xFFFFFFFF, "divu by zero must yield 2^32-1")
	assert(t, execRem(7, 0) == 7, "rem by zero must yield the dividend")
	assert(t, execRemu(7, 0) == 7, "remu by zero must yield the dividend")
	assert(t, execDiv(uint32(0xFFFFFFF9), 2) == uint32(0xFFFFFFFD), "-7/2 must truncate toward zero")
	assert(t, execRem(uint32(0xFFFFFFF9), 2) == uint32(0xFFFFFFFF), "-7%%2 must be -1")
}

func TestMulhFamily(t *testing.T) {
	assert(t, execMulh(0x80000000, 0x80000000) == 0x40000000, "mulh of INT_MIN^2")
	assert(t, execMulhu(0xFFFFFFFF, 0xFFFFFFFF) == 0xFFFFFFFE, "mulhu of UINT_MAX^2")
	assert(t, execMulhsu(0xFFFFFFFF, 0xFFFFFFFF) == 0xFFFFFFFF, "mulhsu of -1 * UINT_MAX")
	assert(t, execMulh(2, 3) == 0, "small mulh has empty high half")
}

func TestFloatToIntConversions(t *testing.T) {
	nan := float32(math.NaN())
	assert(t, floatToInt32Saturate(nan) == math.MaxInt32, "fcvt.w.s(NaN) must be INT_MAX")
	assert(t, floatToInt32Saturate(2.5) == 2, "fcvt.w.s rounds half to even (2.5 -> 2)")
	assert(t, floatToInt32Saturate(3.5) == 4, "fcvt.w.s rounds half to even (3.5 -> 4)")
	assert(t, floatToInt32Saturate(-2.5) == -2, "fcvt.w.s rounds half to even (-2.5 -> -2)")
	assert(t, floatToInt32Saturate(1e10) == math.MaxInt32, "fcvt.w.s saturates high")
	assert(t, floatToInt32Saturate(-1e10) == math.MinInt32, "fcvt.w.s saturates low")

	assert(t, floatToUint32Saturate(nan) == math.MaxUint32, "fcvt.wu.s(NaN) must be UINT_MAX")
	assert(t, floatToUint32Saturate(-3) == 0, "fcvt.wu.s of negative must be 0")
	assert(t, floatToUint32Saturate(1e20) == math.MaxUint32, "fcvt.wu.s saturates high")
	assert(t, floatToUint32Saturate(2.5) == 2, "fcvt.wu.s rounds half to even")
}

func execOn(t *testing.T, c *Core, mnemonic string, d Decoded, addr uint32) {
	t.Helper()
	def, ok := Lookup(mnemonic)
	assert(t, ok, "unknown mnemonic %s", mnemonic)
	d.Mnemonic = mnemonic
	err := def.Execute(c, d, addr)
	assert(t, err == nil, "%s faulted: %v", mnemonic, err)
}

func TestSignInjection(t *testing.T) {
	c := NewCore(NewMemory())
	c.SetFloat(1, -1.5)
	c.SetFloat(2, 2.0)

	execOn(t, c, "fsgnj.s", Decoded{Rd: 3, Rs1: 1, Rs2: 2}, 0)
	assert(t, c.GetFloat(3) == 1.5, "fsgnj.s takes rs2's sign")

	execOn(t, c, "fsgnjn.s", Decoded{Rd: 3, Rs1: 1, Rs2: 2}, 0)
	assert(t, c.GetFloat(3) == -1.5, "fsgnjn.s takes rs2's inverted sign")

	execOn(t, c, "fsgnjx.s", Decoded{Rd: 3, Rs1: 1, Rs2: 1}, 0)
	assert(t, c.GetFloat(3) == 1.5, "fsgnjx.s xors the signs")
}

func TestLuiAuipcJal(t *testing.T) {
	c := NewCore(NewMemory())

	execOn(t, c, "lui", Decoded{Rd: 1, Imm: 0x12345}, 0x10000)
	assert(t, c.GetInt(1) == 0x12345000, "lui shifts the immediate up 12")

	execOn(t, c, "auipc", Decoded{Rd: 2, Imm: 1}, 0x10000)
	assert(t, c.GetInt(2) == 0x11000, "auipc adds the shifted immediate to its own address")

	c.PC = 0x10004
	execOn(t, c, "jal", Decoded{Rd: 1, Imm: 0x20}, 0x10000)
	assert(t, c.GetInt(1) == 0x10004, "jal writes the return address")
	assert(t, c.PC == 0x10020, "jal targets PC+imm")

	c.SetInt(5, 0x10051)
	execOn(t, c, "jalr", Decoded{Rd: 1, Rs1: 5, Imm: 0}, 0x10020)
	assert(t, c.PC == 0x10050, "jalr clears the target's low bit")
}

func TestShiftAmountMasking(t *testing.T) {
	c := NewCore(NewMemory())
	c.SetInt(1, 0xFFFFFFFF)
	c.SetInt(2, 33) // only the low 5 bits count
	execOn(t, c, "srl", Decoded{Rd: 3, Rs1: 1, Rs2: 2}, 0)
	assert(t, c.GetInt(3) == 0x7FFFFFFF, "srl masks the shift amount to 5 bits")

	execOn(t, c, "sra", Decoded{Rd: 4, Rs1: 1, Rs2: 2}, 0)
	assert(t, c.GetInt(4) == 0xFFFFFFFF, "sra keeps the sign")
}

func TestX0IsHardwired(t *testing.T) {
	c := NewCore(NewMemory())
	c.SetInt(0, 99)
	assert(t, c.GetInt(0) == 0, "x0 must read 0 after a direct write")
	execOn(t, c, "addi", Decoded{Rd: 0, Rs1: 0, Imm: 42}, 0)
	assert(t, c.GetInt(0) == 0, "x0 must read 0 after an executor write")
}

func TestFloatCompareNaN(t *testing.T) {
	c := NewCore(NewMemory())
	c.SetFloat(1, float32(math.NaN()))
	c.SetFloat(2, 1.0)
	execOn(t, c, "feq.s", Decoded{Rd: 5, Rs1: 1, Rs2: 2}, 0)
	assert(t, c.GetInt(5) == 0, "comparisons against NaN are false")
	execOn(t, c, "flt.s", Decoded{Rd: 5, Rs1: 1, Rs2: 2}, 0)
	assert(t, c.GetInt(5) == 0, "comparisons against NaN are false")
}

func TestFclass(t *testing.T) {
	c := NewCore(NewMemory())
	c.SetFloat(1, float32(math.Inf(-1)))
	execOn(t, c, "fclass.s", Decoded{Rd: 5, Rs1: 1}, 0)
	assert(t, c.GetInt(5) == 1<<0, "-inf classifies to bit 0")

	c.SetFloat(1, 1.0)
	execOn(t, c, "fclass.s", Decoded{Rd: 5, Rs1: 1}, 0)
	assert(t, c.GetInt(5) == 1<<6, "positive normal classifies to bit 6")

	c.SetFloatBits(1, 0x80000000)
	execOn(t, c, "fclass.s", Decoded{Rd: 5, Rs1: 1}, 0)
	assert(t, c.GetInt(5) == 1<<3, "-0 classifies to bit 3")
}
