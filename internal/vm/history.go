package vm

// diffRecorder is implemented by History so Core and Memory can report the
// pre-write value of a register or memory byte exactly once per step,
// before it's overwritten.
type diffRecorder interface {
	recordReg(file RegisterFileKind, idx int, old uint32)
	recordMem(addr uint32, old byte)
}

type regSlot struct {
	file RegisterFileKind
	idx  int
}

// Diff is one History Entry: everything needed to undo a single
// committed instruction.
type Diff struct {
	priorPC      uint32
	priorHeapPtr uint32
	priorCache   *cacheSnapshot

	regOld map[regSlot]uint32
	memOld map[uint32]byte
}

func newDiff(priorPC, priorHeapPtr uint32, cacheBackup *cacheSnapshot) *Diff {
	return &Diff{
		priorPC:      priorPC,
		priorHeapPtr: priorHeapPtr,
		priorCache:   cacheBackup,
		regOld:       make(map[regSlot]uint32),
		memOld:       make(map[uint32]byte),
	}
}

func (d *Diff) recordReg(file RegisterFileKind, idx int, old uint32) {
	slot := regSlot{file, idx}
	if _, seen := d.regOld[slot]; !seen {
		d.regOld[slot] = old
	}
}

func (d *Diff) recordMem(addr uint32, old byte) {
	if _, seen := d.memOld[addr]; !seen {
		d.memOld[addr] = old
	}
}

// History is the reversible back-step log. MaxDepth bounds how
// many diffs are retained; exceeding it drops the oldest.
type History struct {
	diffs    []*Diff
	maxDepth int
	pending  *Diff
}

// NewHistory creates a history with the given maximum depth, clamped to
// at least 1.
func NewHistory(maxDepth int) *History {
	if maxDepth < 1 {
		maxDepth = 1
	}
	return &History{maxDepth: maxDepth}
}

// Len reports how many diffs are currently retained.
func (h *History) Len() int { return len(h.diffs) }

// Begin opens a new diff ahead of executing one instruction, capturing the
// state a back-step would need to restore, and installs itself as the
// active recorder on core/mem so subsequent writes get captured.
func (h *History) Begin(core *Core, heapPtr uint32) {
	var backup *cacheSnapshot
	if core.Mem.Cache() != nil {
		backup = core.Mem.Cache().Snapshot()
	}
	h.pending = newDiff(core.PC, heapPtr, backup)
	core.attachRecorder(h.pending)
}

func (h *History) recordReg(file RegisterFileKind, idx int, old uint32) {
	if h.pending != nil {
		h.pending.recordReg(file, idx, old)
	}
}

func (h *History) recordMem(addr uint32, old byte) {
	if h.pending != nil {
		h.pending.recordMem(addr, old)
	}
}

// Commit pushes the pending diff onto the history stack, truncating the
// oldest entry if it would exceed MaxDepth.
func (h *History) Commit(core *Core) {
	core.attachRecorder(nil)
	if h.pending == nil {
		return
	}
	h.diffs = append(h.diffs, h.pending)
	if len(h.diffs) > h.maxDepth {
		h.diffs = h.diffs[len(h.diffs)-h.maxDepth:]
	}
	h.pending = nil
}

// Discard abandons the pending diff without committing it. A step that
// faults goes through Rollback instead, which also undoes its effects.
func (h *History) Discard(core *Core) {
	core.attachRecorder(nil)
	h.pending = nil
}

// Rollback applies the pending diff in reverse and drops it, undoing the
// partial effects of a step that faulted mid-instruction so the visible
// state matches the pre-step snapshot.
func (h *History) Rollback(core *Core, setHeapPtr func(uint32)) {
	core.attachRecorder(nil)
	d := h.pending
	h.pending = nil
	if d == nil {
		return
	}
	restoreDiff(core, d, setHeapPtr)
}

// Backstep pops the most recent diff and restores PC, heap pointer,
// registers, memory, and cache to their pre-step values. Returns false if
// there is nothing to undo.
func (h *History) Backstep(core *Core, setHeapPtr func(uint32)) bool {
	if len(h.diffs) == 0 {
		return false
	}
	d := h.diffs[len(h.diffs)-1]
	h.diffs = h.diffs[:len(h.diffs)-1]
	restoreDiff(core, d, setHeapPtr)
	return true
}

func restoreDiff(core *Core, d *Diff, setHeapPtr func(uint32)) {
	core.PC = d.priorPC
	if setHeapPtr != nil {
		setHeapPtr(d.priorHeapPtr)
	}

	for slot, old := range d.regOld {
		switch slot.file {
		case IntRegisterFileKind:
			core.Int.Set(slot.idx, old)
		case FloatRegisterFileKind:
			core.Float.SetBits(slot.idx, old)
		}
	}

	for addr, old := range d.memOld {
		core.Mem.rawStoreByte(addr, old)
	}

	if core.Mem.Cache() != nil {
		core.Mem.Cache().Restore(d.priorCache)
	}
}

// Reset drops every retained diff (used by the Simulator's reset
// operation).
func (h *History) Reset() {
	h.diffs = nil
	h.pending = nil
}
