package vm

// Address-space layout. All regions are fixed by convention;
// the linker never moves them.
const (
	ReservedLowBegin uint32 = 0x00000000
	ReservedLowEnd   uint32 = 0x0000FFFF

	TextBegin uint32 = 0x00010000
	TextEnd   uint32 = 0x0FFFFFFF // 256 MiB ceiling

	StaticBegin uint32 = 0x10000000
	StaticEnd   uint32 = 0x7FFEFFFF

	StackTop uint32 = 0x7FFFFFF0

	ReservedHighBegin uint32 = 0xFFFF0000
	ReservedHighEnd   uint32 = 0xFFFFFFFF

	// InstructionBytes is the fixed width of a RISC-V base instruction word.
	InstructionBytes uint32 = 4
)

// DefaultEntrySymbol is the label the linker looks for when no entry point
// is configured explicitly.
const DefaultEntrySymbol = "__start"
