package asm

// Segment is one of the four placement regions a translation unit's bytes
// or statements belong to.
type Segment int

const (
	SegText Segment = iota
	SegRodata
	SegBss
	SegData
)

func (s Segment) String() string {
	switch s {
	case SegText:
		return "text"
	case SegRodata:
		return "rodata"
	case SegBss:
		return "bss"
	case SegData:
		return "data"
	default:
		return "?"
	}
}

// LocalSymbol is a label's (segment, address) binding within one
// translation unit's own coordinate system:
// the address is an offset from the start of its segment, since the unit
// doesn't know its segment's final base until the linker places it.
type LocalSymbol struct {
	Segment Segment
	Offset  uint32
}

// RelocKind enumerates the supported relocation kinds.
type RelocKind int

const (
	RelocPCRelHi20 RelocKind = iota
	RelocPCRelLo12
	RelocHi20
	RelocLo12
	RelocDefault
	RelocPCRel
)

// Relocation is a deferred immediate-field computation, recorded
// by the assembler and resolved by the linker once every unit has a final
// base address. Symbol is resolved first against the defining unit's own
// local symbol table, then against the global symbol table.
type Relocation struct {
	Kind   RelocKind
	Symbol string

	// Segment/Offset locate the site whose encoded word (if Segment==SegText)
	// or raw bytes (if Segment==SegData, the `.word label` case) the
	// linker patches once it has evaluated the target address.
	Segment Segment
	Offset  uint32

	// HiOffset is valid only for RelocPCRelLo12: the text-segment offset of
	// the paired auipc statement whose address anchors the PC-relative
	// delta.
	HiOffset uint32

	Debug DebugInfo
}

// RawStatement is a not-yet-built text-segment entry: a mnemonic plus
// resolved operand fields, with a pending Reloc if any operand still needs
// a symbol address filled in. The true machine word isn't encoded until
// the linker evaluates relocations at a known address.
type RawStatement struct {
	Mnemonic          string
	Rd, Rs1, Rs2, Rs3 int
	Imm               int32
	Offset            uint32 // offset from this unit's text-segment base
	Reloc             *Relocation
	Debug             DebugInfo
}

// TranslationUnit is the assembler's output for one source file.
type TranslationUnit struct {
	File string

	Statements []RawStatement
	Locals     map[string]LocalSymbol
	Globals    []string

	Rodata []byte
	BssLen uint32
	Data   []byte

	Relocations []Relocation
}

func newTranslationUnit(file string) *TranslationUnit {
	return &TranslationUnit{
		File:   file,
		Locals: make(map[string]LocalSymbol),
	}
}
