package vm

import "math"

// registerFloatInstructions installs the RV32F single-precision entries
// into the mnemonic registry.
func registerFloatInstructions() {
	register(
		InstrDef{Mnemonic: "flw", Format: FormatI, Opcode: opLoadFP, Funct3: 0x2, Execute: execFlw},
		InstrDef{Mnemonic: "fsw", Format: FormatS, Opcode: opStoreFP, Funct3: 0x2, Execute: execFsw},

		InstrDef{Mnemonic: "fmadd.s", Format: FormatR4, Opcode: opMadd, Funct3: 0x0, Funct7: 0x0, Execute: makeFMA(1, 1)},
		InstrDef{Mnemonic: "fmsub.s", Format: FormatR4, Opcode: opMsub, Funct3: 0x0, Funct7: 0x0, Execute: makeFMA(1, -1)},
		InstrDef{Mnemonic: "fnmsub.s", Format: FormatR4, Opcode: opNmsub, Funct3: 0x0, Funct7: 0x0, Execute: makeFMA(-1, 1)},
		InstrDef{Mnemonic: "fnmadd.s", Format: FormatR4, Opcode: opNmadd, Funct3: 0x0, Funct7: 0x0, Execute: makeFMA(-1, -1)},

		InstrDef{Mnemonic: "fadd.s", Format: FormatR, Opcode: opOpFP, Funct7: 0x00, Execute: makeFloatAlu(func(a, b float32) float32 { return a + b })},
		InstrDef{Mnemonic: "fsub.s", Format: FormatR, Opcode: opOpFP, Funct7: 0x04, Execute: makeFloatAlu(func(a, b float32) float32 { return a - b })},
		InstrDef{Mnemonic: "fmul.s", Format: FormatR, Opcode: opOpFP, Funct7: 0x08, Execute: makeFloatAlu(func(a, b float32) float32 { return a * b })},
		InstrDef{Mnemonic: "fdiv.s", Format: FormatR, Opcode: opOpFP, Funct7: 0x0C, Execute: makeFloatAlu(func(a, b float32) float32 { return a / b })},
		InstrDef{Mnemonic: "fsqrt.s", Format: FormatR, Opcode: opOpFP, Funct7: 0x2C, Execute: execFsqrtS},

		InstrDef{Mnemonic: "fsgnj.s", Format: FormatR, Opcode: opOpFP, Funct3: 0x0, Funct7: 0x10, Execute: makeSignInject(func(s1, s2 uint32) uint32 { return s2 })},
		InstrDef{Mnemonic: "fsgnjn.s", Format: FormatR, Opcode: opOpFP, Funct3: 0x1, Funct7: 0x10, Execute: makeSignInject(func(s1, s2 uint32) uint32 { return s2 ^ 1 })},
		InstrDef{Mnemonic: "fsgnjx.s", Format: FormatR, Opcode: opOpFP, Funct3: 0x2, Funct7: 0x10, Execute: makeSignInject(func(s1, s2 uint32) uint32 { return s1 ^ s2 })},

		InstrDef{Mnemonic: "fmin.s", Format: FormatR, Opcode: opOpFP, Funct3: 0x0, Funct7: 0x14, Execute: makeFloatAlu(fminS)},
		InstrDef{Mnemonic: "fmax.s", Format: FormatR, Opcode: opOpFP, Funct3: 0x1, Funct7: 0x14, Execute: makeFloatAlu(fmaxS)},

		InstrDef{Mnemonic: "fcvt.w.s", Format: FormatR, Opcode: opOpFP, Funct7: 0x60, HasRs2Disc: true, Rs2Disc: 0, Execute: execFcvtWS},
		InstrDef{Mnemonic: "fcvt.wu.s", Format: FormatR, Opcode: opOpFP, Funct7: 0x60, HasRs2Disc: true, Rs2Disc: 1, Execute: execFcvtWuS},

		InstrDef{Mnemonic: "fmv.x.w", Format: FormatR, Opcode: opOpFP, Funct3: 0x0, Funct7: 0x70, Execute: execFmvXW},
		InstrDef{Mnemonic: "fclass.s", Format: FormatR, Opcode: opOpFP, Funct3: 0x1, Funct7: 0x70, Execute: execFclassS},

		InstrDef{Mnemonic: "feq.s", Format: FormatR, Opcode: opOpFP, Funct3: 0x2, Funct7: 0x50, Execute: makeFloatCompare(func(a, b float32) bool { return a == b })},
		InstrDef{Mnemonic: "flt.s", Format: FormatR, Opcode: opOpFP, Funct3: 0x1, Funct7: 0x50, Execute: makeFloatCompare(func(a, b float32) bool { return a < b })},
		InstrDef{Mnemonic: "fle.s", Format: FormatR, Opcode: opOpFP, Funct3: 0x0, Funct7: 0x50, Execute: makeFloatCompare(func(a, b float32) bool { return a <= b })},

		InstrDef{Mnemonic: "fcvt.s.w", Format: FormatR, Opcode: opOpFP, Funct7: 0x68, HasRs2Disc: true, Rs2Disc: 0, Execute: execFcvtSW},
		InstrDef{Mnemonic: "fcvt.s.wu", Format: FormatR, Opcode: opOpFP, Funct7: 0x68, HasRs2Disc: true, Rs2Disc: 1, Execute: execFcvtSWu},

		InstrDef{Mnemonic: "fmv.w.x", Format: FormatR, Opcode: opOpFP, Funct3: 0x0, Funct7: 0x78, Execute: execFmvWX},
	)
}

func f32(bits uint32) float32 { return math.Float32frombits(bits) }

func execFlw(c *Core, d Decoded, addr uint32) error {
	ea := c.GetInt(d.Rs1) + uint32(d.Imm)
	v, err := c.Mem.LoadWord(ea)
	if err != nil {
		return err
	}
	c.SetFloatBits(d.Rd, v)
	return nil
}

func execFsw(c *Core, d Decoded, addr uint32) error {
	ea := c.GetInt(d.Rs1) + uint32(d.Imm)
	return c.Mem.StoreWord(ea, c.GetFloatBits(d.Rs2))
}

func makeFloatAlu(f func(a, b float32) float32) Executor {
	return func(c *Core, d Decoded, addr uint32) error {
		c.SetFloat(d.Rd, f(c.GetFloat(d.Rs1), c.GetFloat(d.Rs2)))
		return nil
	}
}

func makeFloatCompare(f func(a, b float32) bool) Executor {
	return func(c *Core, d Decoded, addr uint32) error {
		a, b := c.GetFloat(d.Rs1), c.GetFloat(d.Rs2)
		if math.IsNaN(float64(a)) || math.IsNaN(float64(b)) {
			c.SetInt(d.Rd, 0)
			return nil
		}
		c.SetInt(d.Rd, boolToWord(f(a, b)))
		return nil
	}
}

// makeFMA builds the four fused multiply-add variants: rs1*rs2 +/- rs3,
// with each product/addend sign flipped per (signProduct, signAddend).
func makeFMA(signProduct, signAddend float32) Executor {
	return func(c *Core, d Decoded, addr uint32) error {
		prod := signProduct * c.GetFloat(d.Rs1) * c.GetFloat(d.Rs2)
		addend := signAddend * c.GetFloat(d.Rs3)
		c.SetFloat(d.Rd, prod+addend)
		return nil
	}
}

func execFsqrtS(c *Core, d Decoded, addr uint32) error {
	c.SetFloat(d.Rd, float32(math.Sqrt(float64(c.GetFloat(d.Rs1)))))
	return nil
}

// makeSignInject builds fsgnj.s/fsgnjn.s/fsgnjx.s: keep rs1's magnitude,
// replace its sign bit per combine(rs1 sign, rs2 sign).
func makeSignInject(combine func(s1, s2 uint32) uint32) Executor {
	return func(c *Core, d Decoded, addr uint32) error {
		a, b := c.GetFloatBits(d.Rs1), c.GetFloatBits(d.Rs2)
		s1, s2 := a>>31&1, b>>31&1
		sign := combine(s1, s2) & 1
		c.SetFloatBits(d.Rd, sign<<31|a&0x7FFFFFFF)
		return nil
	}
}

func fminS(a, b float32) float32 {
	if math.IsNaN(float64(a)) {
		return b
	}
	if math.IsNaN(float64(b)) {
		return a
	}
	if a < b {
		return a
	}
	return b
}

func fmaxS(a, b float32) float32 {
	if math.IsNaN(float64(a)) {
		return b
	}
	if math.IsNaN(float64(b)) {
		return a
	}
	if a > b {
		return a
	}
	return b
}

func execFcvtWS(c *Core, d Decoded, addr uint32) error {
	c.SetInt(d.Rd, uint32(floatToInt32Saturate(c.GetFloat(d.Rs1))))
	return nil
}

func execFcvtWuS(c *Core, d Decoded, addr uint32) error {
	c.SetInt(d.Rd, floatToUint32Saturate(c.GetFloat(d.Rs1)))
	return nil
}

func execFcvtSW(c *Core, d Decoded, addr uint32) error {
	c.SetFloat(d.Rd, float32(int32(c.GetInt(d.Rs1))))
	return nil
}

func execFcvtSWu(c *Core, d Decoded, addr uint32) error {
	c.SetFloat(d.Rd, float32(c.GetInt(d.Rs1)))
	return nil
}

func execFmvXW(c *Core, d Decoded, addr uint32) error {
	c.SetInt(d.Rd, c.GetFloatBits(d.Rs1))
	return nil
}

func execFmvWX(c *Core, d Decoded, addr uint32) error {
	c.SetFloatBits(d.Rd, c.GetInt(d.Rs1))
	return nil
}

// floatToInt32Saturate implements fcvt.w.s: NaN maps to the maximum
// positive value, finite inputs round to nearest-even, out-of-range
// saturates.
func floatToInt32Saturate(v float32) int32 {
	if math.IsNaN(float64(v)) {
		return math.MaxInt32
	}
	r := math.RoundToEven(float64(v))
	if r >= float64(math.MaxInt32) {
		return math.MaxInt32
	}
	if r <= float64(math.MinInt32) {
		return math.MinInt32
	}
	return int32(r)
}

func floatToUint32Saturate(v float32) uint32 {
	if math.IsNaN(float64(v)) {
		return math.MaxUint32
	}
	r := math.RoundToEven(float64(v))
	if r <= 0 {
		return 0
	}
	if r >= float64(math.MaxUint32) {
		return math.MaxUint32
	}
	return uint32(r)
}

// execFclassS reports the IEEE 754 class of rs1 as a one-hot bitmask,
// bit layout per the RISC-V fclass definition.
func execFclassS(c *Core, d Decoded, addr uint32) error {
	bits := c.GetFloatBits(d.Rs1)
	v := f32(bits)
	sign := bits>>31&1 == 1

	var class uint32
	switch {
	case math.IsNaN(float64(v)):
		if bits&0x00400000 != 0 {
			class = 1 << 9 // quiet NaN
		} else {
			class = 1 << 8 // signaling NaN
		}
	case math.IsInf(float64(v), 0):
		if sign {
			class = 1 << 0
		} else {
			class = 1 << 7
		}
	case v == 0:
		if sign {
			class = 1 << 3
		} else {
			class = 1 << 4
		}
	case isSubnormal32(bits):
		if sign {
			class = 1 << 2
		} else {
			class = 1 << 5
		}
	default:
		if sign {
			class = 1 << 1
		} else {
			class = 1 << 6
		}
	}
	c.SetInt(d.Rd, class)
	return nil
}

func isSubnormal32(bits uint32) bool {
	exp := bits >> 23 & 0xFF
	mant := bits & 0x7FFFFF
	return exp == 0 && mant != 0
}
