package vm

import (
	"fmt"
	"strings"
)

// Decoded is a built instruction: a
// decoded form plus whatever the encoder produced as a 32-bit word.
type Decoded struct {
	Mnemonic string
	Format   Format
	Rd       int
	Rs1      int
	Rs2      int
	Rs3      int
	Imm      int32
	Raw      uint32
}

// Executor runs one decoded instruction against architectural state.
// instrAddr is the address the instruction itself was fetched from (needed
// by auipc/jal/branches, since the driver has already advanced core.PC to
// the default fall-through address before calling Execute).
type Executor func(c *Core, d Decoded, instrAddr uint32) error

// InstrDef is one entry in the instruction set registry: its
// format, its opcode/funct3/funct7 fields, an encoder, and an executor.
type InstrDef struct {
	Mnemonic string
	Format   Format

	Opcode uint32
	Funct3 uint32
	Funct7 uint32 // also used as funct2(fmt) for R4, and as the I-type shift-imm funct7

	HasImmOverride bool
	ImmOverride    int32 // ecall=0, ebreak=1 (discriminates an otherwise-identical I-type encoding)

	IsShiftImm bool // slli/srli/srai: imm carries (funct7<<5 | shamt)

	HasRs2Disc bool
	Rs2Disc    int // fcvt.w.s vs fcvt.wu.s etc: rs2 field selects the variant

	Execute Executor
}

var (
	registryByMnemonic = map[string]*InstrDef{}

	// Decode lookup tables, built once in init() from registryByMnemonic.
	decodeRType   = map[[3]uint32]*InstrDef{} // opcode,funct3,funct7
	decodeIType   = map[[2]uint32]*InstrDef{} // opcode,funct3 (plain I, S, B all keyed this way)
	decodeUJType  = map[uint32]*InstrDef{}    // opcode (U/J: unambiguous by opcode alone)
	decodeImmDisc = map[[3]uint32]*InstrDef{} // opcode,funct3,imm (ecall/ebreak)
	decodeRs2Disc = map[[4]uint32]*InstrDef{} // opcode,funct3,funct7,rs2 (fcvt family)
)

func register(defs ...InstrDef) {
	for i := range defs {
		d := defs[i]
		registryByMnemonic[d.Mnemonic] = &d
	}
}

// Lookup returns the registry entry for a mnemonic (case-insensitive).
func Lookup(mnemonic string) (*InstrDef, bool) {
	d, ok := registryByMnemonic[strings.ToLower(mnemonic)]
	return d, ok
}

func init() {
	registerIntegerInstructions()
	registerFloatInstructions()
	buildDecodeTables()
}

func buildDecodeTables() {
	for _, d := range registryByMnemonic {
		switch d.Format {
		case FormatR:
			if d.HasRs2Disc {
				decodeRs2Disc[[4]uint32{d.Opcode, d.Funct3, d.Funct7, uint32(d.Rs2Disc)}] = d
			} else {
				decodeRType[[3]uint32{d.Opcode, d.Funct3, d.Funct7}] = d
			}
		case FormatR4:
			decodeRType[[3]uint32{d.Opcode, d.Funct3, d.Funct7}] = d
		case FormatI:
			if d.HasImmOverride {
				decodeImmDisc[[3]uint32{d.Opcode, d.Funct3, uint32(d.ImmOverride)}] = d
			} else if d.IsShiftImm {
				decodeRType[[3]uint32{d.Opcode, d.Funct3, d.Funct7}] = d
			} else {
				decodeIType[[2]uint32{d.Opcode, d.Funct3}] = d
			}
		case FormatS, FormatB:
			decodeIType[[2]uint32{d.Opcode, d.Funct3}] = d
		case FormatU, FormatJ:
			decodeUJType[d.Opcode] = d
		}
	}
}

// Encode looks up mnemonic and builds its 32-bit machine word from the
// given operand fields. Unused fields for a given format are ignored.
func Encode(mnemonic string, rd, rs1, rs2, rs3 int, imm int32) (uint32, error) {
	d, ok := Lookup(mnemonic)
	if !ok {
		return 0, fmt.Errorf("unknown mnemonic: %s", mnemonic)
	}
	switch d.Format {
	case FormatR:
		if d.HasRs2Disc {
			// fcvt family: the rs2 field is the variant selector, not an
			// operand.
			rs2 = d.Rs2Disc
		}
		return encodeR(d.Opcode, d.Funct3, d.Funct7, rd, rs1, rs2), nil
	case FormatR4:
		return encodeR4(d.Opcode, d.Funct3, d.Funct7, rd, rs1, rs2, rs3), nil
	case FormatI:
		switch {
		case d.HasImmOverride:
			return encodeI(d.Opcode, d.Funct3, rd, rs1, d.ImmOverride), nil
		case d.IsShiftImm:
			shamt := imm & 0x1F
			packed := int32(d.Funct7<<5) | shamt
			return encodeI(d.Opcode, d.Funct3, rd, rs1, packed), nil
		default:
			return encodeI(d.Opcode, d.Funct3, rd, rs1, imm), nil
		}
	case FormatS:
		return encodeS(d.Opcode, d.Funct3, rs1, rs2, imm), nil
	case FormatB:
		return encodeB(d.Opcode, d.Funct3, rs1, rs2, imm), nil
	case FormatU:
		return encodeU(d.Opcode, rd, imm), nil
	case FormatJ:
		return encodeJ(d.Opcode, rd, imm), nil
	default:
		return 0, fmt.Errorf("unsupported format for %s", mnemonic)
	}
}

// Decode extracts a Decoded instruction from a raw 32-bit word, or reports
// that no registry entry matches (an illegal/unknown instruction).
func Decode(word uint32) (Decoded, bool) {
	opcode := decodeOpcode(word)
	funct3 := decodeFunct3(word)

	switch opcode {
	case opLUI, opAUIPC:
		d, ok := decodeUJType[opcode]
		if !ok {
			return Decoded{}, false
		}
		return Decoded{Mnemonic: d.Mnemonic, Format: FormatU, Rd: decodeRd(word), Imm: decodeImmU(word), Raw: word}, true
	case opJAL:
		d, ok := decodeUJType[opcode]
		if !ok {
			return Decoded{}, false
		}
		return Decoded{Mnemonic: d.Mnemonic, Format: FormatJ, Rd: decodeRd(word), Imm: decodeImmJ(word), Raw: word}, true
	}

	// System instructions (ecall/ebreak) are discriminated by their I-type
	// immediate field, not a register operand.
	if opcode == opSystem {
		imm := decodeImmI(word) & 0xFFF
		if d, ok := decodeImmDisc[[3]uint32{opcode, funct3, uint32(imm)}]; ok {
			return Decoded{Mnemonic: d.Mnemonic, Format: FormatI, Rd: decodeRd(word), Rs1: decodeRs1(word), Imm: imm, Raw: word}, true
		}
	}

	funct7 := decodeFunct7(word)

	// fcvt.{w,wu}.s / fcvt.s.{w,wu} share opcode+funct7, discriminated by rs2.
	if opcode == opOpFP {
		rs2 := decodeRs2(word)
		if d, ok := decodeRs2Disc[[4]uint32{opcode, funct3, funct7, uint32(rs2)}]; ok {
			return Decoded{Mnemonic: d.Mnemonic, Format: FormatR, Rd: decodeRd(word), Rs1: decodeRs1(word), Rs2: rs2, Raw: word}, true
		}
	}

	if opcode == opMadd || opcode == opMsub || opcode == opNmsub || opcode == opNmadd {
		funct2 := decodeFunct2(word)
		if d, ok := decodeRType[[3]uint32{opcode, funct3, funct2}]; ok {
			return Decoded{
				Mnemonic: d.Mnemonic, Format: FormatR4,
				Rd: decodeRd(word), Rs1: decodeRs1(word), Rs2: decodeRs2(word), Rs3: decodeRs3(word),
				Raw: word,
			}, true
		}
		return Decoded{}, false
	}

	if opcode == opOpImm && (funct3 == 0x1 || funct3 == 0x5) {
		// slli/srli/srai: funct7 lives in imm[11:5].
		shiftFunct7 := funct7
		if d, ok := decodeRType[[3]uint32{opcode, funct3, shiftFunct7}]; ok {
			shamt := int32(word >> 20 & 0x1F)
			return Decoded{Mnemonic: d.Mnemonic, Format: FormatI, Rd: decodeRd(word), Rs1: decodeRs1(word), Imm: shamt, Raw: word}, true
		}
	}

	if d, ok := decodeRType[[3]uint32{opcode, funct3, funct7}]; ok {
		switch d.Format {
		case FormatR:
			return Decoded{Mnemonic: d.Mnemonic, Format: FormatR, Rd: decodeRd(word), Rs1: decodeRs1(word), Rs2: decodeRs2(word), Raw: word}, true
		}
	}

	if d, ok := decodeIType[[2]uint32{opcode, funct3}]; ok {
		switch d.Format {
		case FormatI:
			return Decoded{Mnemonic: d.Mnemonic, Format: FormatI, Rd: decodeRd(word), Rs1: decodeRs1(word), Imm: decodeImmI(word), Raw: word}, true
		case FormatS:
			return Decoded{Mnemonic: d.Mnemonic, Format: FormatS, Rs1: decodeRs1(word), Rs2: decodeRs2(word), Imm: decodeImmS(word), Raw: word}, true
		case FormatB:
			return Decoded{Mnemonic: d.Mnemonic, Format: FormatB, Rs1: decodeRs1(word), Rs2: decodeRs2(word), Imm: decodeImmB(word), Raw: word}, true
		}
	}

	return Decoded{}, false
}

// Disassemble renders a decoded instruction back to assembly text in the
// canonical form the assembler re-encodes to the same word.
func Disassemble(d Decoded) string {
	reg := func(i int) string { return fmt.Sprintf("x%d", i) }
	freg := func(i int) string { return fmt.Sprintf("f%d", i) }

	switch d.Format {
	case FormatR:
		if strings.HasPrefix(d.Mnemonic, "f") {
			switch d.Mnemonic {
			case "fcvt.w.s", "fcvt.wu.s":
				return fmt.Sprintf("%s %s, %s", d.Mnemonic, reg(d.Rd), freg(d.Rs1))
			case "fcvt.s.w", "fcvt.s.wu":
				return fmt.Sprintf("%s %s, %s", d.Mnemonic, freg(d.Rd), reg(d.Rs1))
			case "fmv.x.w", "fclass.s":
				return fmt.Sprintf("%s %s, %s", d.Mnemonic, reg(d.Rd), freg(d.Rs1))
			case "fmv.w.x":
				return fmt.Sprintf("%s %s, %s", d.Mnemonic, freg(d.Rd), reg(d.Rs1))
			case "fsqrt.s":
				return fmt.Sprintf("%s %s, %s", d.Mnemonic, freg(d.Rd), freg(d.Rs1))
			case "feq.s", "flt.s", "fle.s":
				return fmt.Sprintf("%s %s, %s, %s", d.Mnemonic, reg(d.Rd), freg(d.Rs1), freg(d.Rs2))
			default:
				return fmt.Sprintf("%s %s, %s, %s", d.Mnemonic, freg(d.Rd), freg(d.Rs1), freg(d.Rs2))
			}
		}
		return fmt.Sprintf("%s %s, %s, %s", d.Mnemonic, reg(d.Rd), reg(d.Rs1), reg(d.Rs2))
	case FormatR4:
		return fmt.Sprintf("%s %s, %s, %s, %s", d.Mnemonic, freg(d.Rd), freg(d.Rs1), freg(d.Rs2), freg(d.Rs3))
	case FormatI:
		switch d.Mnemonic {
		case "ecall", "ebreak":
			return d.Mnemonic
		case "jalr":
			return fmt.Sprintf("%s %s, %d(%s)", d.Mnemonic, reg(d.Rd), d.Imm, reg(d.Rs1))
		case "lb", "lh", "lw", "lbu", "lhu":
			return fmt.Sprintf("%s %s, %d(%s)", d.Mnemonic, reg(d.Rd), d.Imm, reg(d.Rs1))
		case "flw":
			return fmt.Sprintf("%s %s, %d(%s)", d.Mnemonic, freg(d.Rd), d.Imm, reg(d.Rs1))
		default:
			return fmt.Sprintf("%s %s, %s, %d", d.Mnemonic, reg(d.Rd), reg(d.Rs1), d.Imm)
		}
	case FormatS:
		if d.Mnemonic == "fsw" {
			return fmt.Sprintf("%s %s, %d(%s)", d.Mnemonic, freg(d.Rs2), d.Imm, reg(d.Rs1))
		}
		return fmt.Sprintf("%s %s, %d(%s)", d.Mnemonic, reg(d.Rs2), d.Imm, reg(d.Rs1))
	case FormatB:
		return fmt.Sprintf("%s %s, %s, %d", d.Mnemonic, reg(d.Rs1), reg(d.Rs2), d.Imm)
	case FormatU:
		return fmt.Sprintf("%s %s, %d", d.Mnemonic, reg(d.Rd), d.Imm)
	case FormatJ:
		return fmt.Sprintf("%s %s, %d", d.Mnemonic, reg(d.Rd), d.Imm)
	default:
		return d.Mnemonic
	}
}
