package vm

import "testing"

func TestDirectMappedConflictSequence(t *testing.T) {
	c := NewCache(CacheConfig{BlockSize: 4, NumBlocks: 4, Associativity: 1, Policy: LRU}, 1)

	addrs := []uint32{0x100, 0x104, 0x100, 0x200, 0x300, 0x400, 0x100}
	want := []bool{false, false, true, false, false, false, false}
	for i, a := range addrs {
		hit := c.Access(a, false)
		assert(t, hit == want[i], "access %d (0x%x): hit=%v, want %v", i, a, hit, want[i])
	}
	assert(t, c.Accesses() == uint64(len(addrs)), "accesses = %d, want %d", c.Accesses(), len(addrs))
	assert(t, c.Hits() == 1, "hits = %d, want 1", c.Hits())
}

func TestHitRateAndReset(t *testing.T) {
	c := NewCache(CacheConfig{BlockSize: 4, NumBlocks: 4, Associativity: 1, Policy: LRU}, 1)
	c.Access(0x100, false)
	c.Access(0x100, false)
	assert(t, c.HitRate() == 0.5, "hit rate = %v, want 0.5", c.HitRate())

	c.Reset()
	assert(t, c.Accesses() == 0 && c.Hits() == 0, "counters must clear on reset")
	for _, set := range c.sets {
		for _, b := range set.blocks {
			assert(t, !b.valid, "all blocks must be empty after reset")
		}
	}
}

func TestLRUEvictsOldest(t *testing.T) {
	// One set, two ways.
	c := NewCache(CacheConfig{BlockSize: 4, NumBlocks: 2, Associativity: 2, Policy: LRU}, 1)
	c.Access(0x000, false) // A
	c.Access(0x100, false) // B
	c.Access(0x000, false) // touch A, making B the LRU
	c.Access(0x200, false) // C evicts B
	assert(t, c.Access(0x000, false), "A must still be resident")
	assert(t, !c.Access(0x100, false), "B must have been evicted")
}

func TestFIFOIgnoresRecency(t *testing.T) {
	c := NewCache(CacheConfig{BlockSize: 4, NumBlocks: 2, Associativity: 2, Policy: FIFO}, 1)
	c.Access(0x000, false) // A filled first
	c.Access(0x100, false) // B
	c.Access(0x000, false) // hit A; FIFO ignores the touch
	c.Access(0x200, false) // C evicts A, the oldest fill
	assert(t, !c.Access(0x000, false), "A must have been evicted despite being recently used")
}

func TestFIFOWriteFillDoesNotRotate(t *testing.T) {
	c := NewCache(CacheConfig{BlockSize: 4, NumBlocks: 2, Associativity: 2, Policy: FIFO}, 1)
	c.Access(0x000, false) // A, queue [A]
	c.Access(0x100, false) // B, queue [A B]
	c.Access(0x200, false) // C evicts A, queue [B C]
	c.Access(0x300, true)  // write miss: D replaces B but the queue stays [B C]
	// The next read miss targets the same way D just filled.
	c.Access(0x000, false)
	assert(t, !c.Access(0x300, false), "a write-filled block is not protected by the fill queue")
}

func TestRandIsSeedDeterministic(t *testing.T) {
	run := func() []bool {
		c := NewCache(CacheConfig{BlockSize: 4, NumBlocks: 4, Associativity: 4, Policy: RAND}, 42)
		var hits []bool
		for _, a := range []uint32{0x0, 0x100, 0x200, 0x300, 0x400, 0x0, 0x100, 0x500} {
			hits = append(hits, c.Access(a, false))
		}
		return hits
	}
	a, b := run(), run()
	for i := range a {
		assert(t, a[i] == b[i], "RAND with a pinned seed must replay identically (access %d)", i)
	}
}

func TestSnapshotRestore(t *testing.T) {
	c := NewCache(CacheConfig{BlockSize: 4, NumBlocks: 4, Associativity: 2, Policy: LRU}, 1)
	c.Access(0x100, false)
	c.Access(0x200, false)
	snap := c.Snapshot()

	c.Access(0x300, false)
	c.Access(0x100, false)
	c.Restore(snap)

	assert(t, c.Accesses() == 2, "accesses after restore = %d, want 2", c.Accesses())
	assert(t, c.Hits() == 0, "hits after restore = %d, want 0", c.Hits())
}

func TestMultiByteAccessCountsOnce(t *testing.T) {
	mem := NewMemory()
	c := NewCache(CacheConfig{BlockSize: 4, NumBlocks: 4, Associativity: 1, Policy: LRU}, 1)
	mem.AttachCache(c)
	mem.SetTextEnd(TextBegin) // empty text, everything else writable

	err := mem.StoreWord(StaticBegin, 0xDEADBEEF)
	assert(t, err == nil, "store failed: %v", err)
	assert(t, c.Accesses() == 1, "a word store is one access, got %d", c.Accesses())
	assert(t, c.Hits() == 0, "byte 0 missed, so the whole operation is a miss, got %d hits", c.Hits())

	err = mem.StoreWord(StaticBegin, 0xCAFEBABE)
	assert(t, err == nil, "store failed: %v", err)
	assert(t, c.Accesses() == 2, "two operations, got %d accesses", c.Accesses())
	assert(t, c.Hits() == 1, "every byte resident counts as one hit, got %d", c.Hits())
}

func TestStraddlingAccessIsNotAHit(t *testing.T) {
	c := NewCache(CacheConfig{BlockSize: 4, NumBlocks: 4, Associativity: 1, Policy: LRU}, 1)
	c.AccessRange(0x100, 4, false)
	// A word straddling two blocks: the first block is resident, the
	// second is not, so the operation is a miss.
	assert(t, !c.AccessRange(0x102, 4, false), "a partially resident operation is a miss")
	assert(t, c.Accesses() == 2 && c.Hits() == 0, "counters = %d/%d, want 2/0", c.Accesses(), c.Hits())
	assert(t, c.AccessRange(0x102, 4, false), "both blocks now resident")
	assert(t, c.Hits() == 1, "hits = %d, want 1", c.Hits())
}

func TestConfigValidate(t *testing.T) {
	bad := []CacheConfig{
		{BlockSize: 3, NumBlocks: 4, Associativity: 1},
		{BlockSize: 4, NumBlocks: 6, Associativity: 1},
		{BlockSize: 4, NumBlocks: 4, Associativity: 3},
		{BlockSize: 4, NumBlocks: 2, Associativity: 4},
	}
	for i, cfg := range bad {
		cfg.Policy = LRU
		assert(t, cfg.Validate() != nil, "config %d must be rejected", i)
	}
	good := CacheConfig{BlockSize: 4, NumBlocks: 4, Associativity: 4, Policy: FIFO}
	assert(t, good.Validate() == nil, "fully associative shape must validate")
}
