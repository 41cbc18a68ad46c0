// Package link lays a set of translation units out in the simulated
// address space, resolves cross-unit symbols, and emits the final
// in-memory program image.
package link

import (
	"jupiter/internal/asm"
	"jupiter/internal/vm"
)

// unitLayout records the absolute base each of a unit's segments ended up
// at after placement.
type unitLayout struct {
	unit *asm.TranslationUnit

	textBase   uint32
	rodataBase uint32
	bssBase    uint32
	dataBase   uint32
}

// Linker resolves an ordered list of translation units into a runnable
// program. Diagnostics accumulate; the caller checks HasErrors before
// using the result.
type Linker struct {
	EntrySymbol string

	diag *asm.Diagnostics

	layouts []unitLayout
	globals map[string]globalSym
}

type globalSym struct {
	addr    uint32
	segment asm.Segment
	unit    string
}

// New returns a linker resolving the given entry symbol (pass "" for the
// default).
func New(entrySymbol string) *Linker {
	if entrySymbol == "" {
		entrySymbol = vm.DefaultEntrySymbol
	}
	return &Linker{EntrySymbol: entrySymbol}
}

// bootstrapSlots is the number of instruction words reserved at the start
// of text for the far-call into the entry symbol.
const bootstrapSlots = 2

func alignUp(addr, align uint32) uint32 {
	return (addr + align - 1) &^ (align - 1)
}

// splitHiLo computes the (hi20, lo12) pair such that
// (hi20 << 12) + signExtend(lo12) equals delta exactly. When the low 12
// bits read as a negative signed value, the upper half absorbs the
// compensating +0x1000.
func splitHiLo(delta uint32) (hi20 int32, lo12 int32) {
	lo := int32(delta<<20) >> 20
	hi := (delta - uint32(lo)) >> 12
	return int32(hi), lo
}

// Link places every unit, merges symbol tables, builds each statement at
// its final address, and stores the image into a fresh memory. On any
// accumulated error the returned program is nil.
func (l *Linker) Link(units []*asm.TranslationUnit, diag *asm.Diagnostics) *vm.Program {
	l.diag = diag
	mem := vm.NewMemory()
	prog := vm.NewProgram(mem)

	l.placeStatic(units, prog)
	l.placeText(units, prog)
	l.mergeSymbols(units)
	if diag.HasErrors() {
		return nil
	}

	entryAddr, ok := l.resolveEntry()
	if !ok {
		return nil
	}

	l.emitBootstrap(mem, entryAddr)
	l.buildStatements(mem, prog)
	l.applyDataRelocations(mem)
	if diag.HasErrors() {
		return nil
	}

	prog.EntryAddress = vm.TextBegin
	prog.InitialImage = mem.CloneImage()
	return prog
}

// placeStatic runs the rodata, bss, and data placement passes in order
// over one shared cursor, word-aligning between units, and fixes the heap
// base (and so gp) to the cursor left after the last data byte.
func (l *Linker) placeStatic(units []*asm.TranslationUnit, prog *vm.Program) {
	l.layouts = make([]unitLayout, len(units))
	for i, u := range units {
		l.layouts[i].unit = u
	}

	cursor := vm.StaticBegin

	rodataBegin := cursor
	rodataTotal := uint32(0)
	for i, u := range units {
		cursor = alignUp(cursor, 4)
		l.layouts[i].rodataBase = cursor
		cursor += uint32(len(u.Rodata))
		rodataTotal += uint32(len(u.Rodata))
	}
	if rodataTotal > 0 {
		prog.Mem.SetRodataRange(rodataBegin, cursor)
	}

	for i, u := range units {
		cursor = alignUp(cursor, 4)
		l.layouts[i].bssBase = cursor
		cursor += u.BssLen
	}

	for i, u := range units {
		cursor = alignUp(cursor, 4)
		l.layouts[i].dataBase = cursor
		cursor += uint32(len(u.Data))
	}

	prog.InitialHeapPtr = cursor

	for _, lay := range l.layouts {
		for j, b := range lay.unit.Rodata {
			prog.Mem.PrivilegedStoreByte(lay.rodataBase+uint32(j), b)
		}
		for j, b := range lay.unit.Data {
			prog.Mem.PrivilegedStoreByte(lay.dataBase+uint32(j), b)
		}
	}
}

// placeText assigns each unit's text base past the reserved bootstrap
// slots and checks the overall text size ceiling.
func (l *Linker) placeText(units []*asm.TranslationUnit, prog *vm.Program) {
	cursor := vm.TextBegin + bootstrapSlots*vm.InstructionBytes
	for i, u := range units {
		l.layouts[i].textBase = cursor
		cursor += uint32(len(u.Statements)) * vm.InstructionBytes
	}
	if cursor > vm.TextEnd {
		l.diag.Errorf(asm.KindLink, asm.DebugInfo{}, "program too large: text ends at 0x%08x", cursor)
	}
	prog.TextEnd = cursor
	prog.Mem.SetTextEnd(cursor)
}

// mergeSymbols exports each unit's .globl labels into the global table,
// erroring on collisions and on exports with no local definition.
func (l *Linker) mergeSymbols(units []*asm.TranslationUnit) {
	l.globals = make(map[string]globalSym)
	for i, u := range units {
		for _, name := range u.Globals {
			local, ok := u.Locals[name]
			if !ok {
				l.diag.Errorf(asm.KindLink, asm.DebugInfo{File: u.File}, "global symbol %q is declared but never defined", name)
				continue
			}
			if prev, exists := l.globals[name]; exists {
				l.diag.Errorf(asm.KindLink, asm.DebugInfo{File: u.File}, "duplicate global symbol %q (also defined in %s)", name, prev.unit)
				continue
			}
			l.globals[name] = globalSym{
				addr:    l.symbolAddress(i, local),
				segment: local.Segment,
				unit:    u.File,
			}
		}
	}
}

func (l *Linker) symbolAddress(unitIdx int, s asm.LocalSymbol) uint32 {
	lay := l.layouts[unitIdx]
	switch s.Segment {
	case asm.SegText:
		return lay.textBase + s.Offset
	case asm.SegRodata:
		return lay.rodataBase + s.Offset
	case asm.SegBss:
		return lay.bssBase + s.Offset
	default:
		return lay.dataBase + s.Offset
	}
}

// resolve finds a symbol's absolute address for a relocation in unit
// unitIdx: the unit's own locals win, then the global table.
func (l *Linker) resolve(unitIdx int, name string) (uint32, bool) {
	if local, ok := l.layouts[unitIdx].unit.Locals[name]; ok {
		return l.symbolAddress(unitIdx, local), true
	}
	if g, ok := l.globals[name]; ok {
		return g.addr, true
	}
	return 0, false
}

// resolveEntry locates the entry symbol and checks it lives in text. A
// symbol never exported with .globl still resolves if exactly one unit
// defines it, so single-file programs don't need the directive.
func (l *Linker) resolveEntry() (uint32, bool) {
	if g, ok := l.globals[l.EntrySymbol]; ok {
		if g.segment != asm.SegText {
			l.diag.Errorf(asm.KindLink, asm.DebugInfo{}, "entry symbol %q is not in the text segment", l.EntrySymbol)
			return 0, false
		}
		return g.addr, true
	}

	found := -1
	var sym asm.LocalSymbol
	for i, lay := range l.layouts {
		if local, ok := lay.unit.Locals[l.EntrySymbol]; ok {
			if found >= 0 {
				l.diag.Errorf(asm.KindLink, asm.DebugInfo{}, "entry symbol %q defined in more than one unit", l.EntrySymbol)
				return 0, false
			}
			found, sym = i, local
		}
	}
	if found < 0 {
		l.diag.Errorf(asm.KindLink, asm.DebugInfo{}, "entry symbol %q not found", l.EntrySymbol)
		return 0, false
	}
	if sym.Segment != asm.SegText {
		l.diag.Errorf(asm.KindLink, asm.DebugInfo{}, "entry symbol %q is not in the text segment", l.EntrySymbol)
		return 0, false
	}
	return l.symbolAddress(found, sym), true
}

// emitBootstrap writes the reserved far-call pair at the very start of
// text: auipc x6 with the entry delta's upper half, then jalr x1 through
// x6 with the lower half.
func (l *Linker) emitBootstrap(mem *vm.Memory, entryAddr uint32) {
	hi, lo := splitHiLo(entryAddr - vm.TextBegin)
	auipc, _ := vm.Encode("auipc", 6, 0, 0, 0, hi)
	jalr, _ := vm.Encode("jalr", 1, 6, 0, 0, lo)
	mem.PrivilegedStoreWord(vm.TextBegin, auipc)
	mem.PrivilegedStoreWord(vm.TextBegin+vm.InstructionBytes, jalr)
}

// buildStatements encodes every unit's statements at their final
// addresses, evaluating each pending relocation against the now-known
// symbol table, and stores the words through the privileged path.
func (l *Linker) buildStatements(mem *vm.Memory, prog *vm.Program) {
	for i, lay := range l.layouts {
		img := vm.UnitImage{File: lay.unit.File, TextStart: lay.textBase}
		for _, stmt := range lay.unit.Statements {
			addr := lay.textBase + stmt.Offset
			imm := stmt.Imm
			if stmt.Reloc != nil {
				v, ok := l.evalTextReloc(i, stmt.Reloc, addr, stmt.Mnemonic)
				if !ok {
					continue
				}
				imm = v
			}
			word, err := vm.Encode(stmt.Mnemonic, stmt.Rd, stmt.Rs1, stmt.Rs2, stmt.Rs3, imm)
			if err != nil {
				l.diag.Errorf(asm.KindLink, stmt.Debug, "%v", err)
				continue
			}
			mem.PrivilegedStoreWord(addr, word)
			img.Words = append(img.Words, word)
		}
		prog.Units = append(prog.Units, img)
	}

	for name, g := range l.globals {
		prog.Globals[name] = vm.Symbol{Name: name, Address: g.addr}
	}
}

// evalTextReloc computes the immediate a text-segment relocation feeds
// into its statement's encoder, checking the delta against the window the
// statement's encoding can actually hold.
func (l *Linker) evalTextReloc(unitIdx int, r *asm.Relocation, siteAddr uint32, mnemonic string) (int32, bool) {
	target, ok := l.resolve(unitIdx, r.Symbol)
	if !ok {
		l.diag.Errorf(asm.KindLink, r.Debug, "undefined symbol %q", r.Symbol)
		return 0, false
	}

	switch r.Kind {
	case asm.RelocPCRel:
		delta := int64(int32(target - siteAddr))
		// Branches carry a 13-bit signed offset, jal a 21-bit one.
		limit := int64(1) << 20
		if def, ok := vm.Lookup(mnemonic); ok && def.Format == vm.FormatB {
			limit = 1 << 12
		}
		if delta < -limit || delta >= limit {
			l.diag.Errorf(asm.KindLink, r.Debug, "relocation overflow: %q is 0x%x bytes away", r.Symbol, delta)
			return 0, false
		}
		return int32(delta), true
	case asm.RelocPCRelHi20:
		hi, _ := splitHiLo(target - siteAddr)
		return hi, true
	case asm.RelocPCRelLo12:
		hiSite := l.layouts[unitIdx].textBase + r.HiOffset
		_, lo := splitHiLo(target - hiSite)
		return lo, true
	case asm.RelocHi20:
		hi, _ := splitHiLo(target)
		return hi, true
	case asm.RelocLo12:
		_, lo := splitHiLo(target)
		return lo, true
	default: // absolute
		return int32(target), true
	}
}

// applyDataRelocations patches `.word label` sites in rodata/data with the
// absolute addresses their symbols resolved to.
func (l *Linker) applyDataRelocations(mem *vm.Memory) {
	for i, lay := range l.layouts {
		for _, r := range lay.unit.Relocations {
			if r.Segment == asm.SegText {
				continue
			}
			target, ok := l.resolve(i, r.Symbol)
			if !ok {
				l.diag.Errorf(asm.KindLink, r.Debug, "undefined symbol %q", r.Symbol)
				continue
			}
			var base uint32
			switch r.Segment {
			case asm.SegRodata:
				base = lay.rodataBase
			case asm.SegBss:
				base = lay.bssBase
			default:
				base = lay.dataBase
			}
			mem.PrivilegedStoreWord(base+r.Offset, target)
		}
	}
}
