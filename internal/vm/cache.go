package vm

import "fmt"

// ReplacementPolicy selects how a cache set picks a victim block on a
// miss.
type ReplacementPolicy int

const (
	LRU ReplacementPolicy = iota
	FIFO
	RAND
)

func (p ReplacementPolicy) String() string {
	switch p {
	case LRU:
		return "lru"
	case FIFO:
		return "fifo"
	case RAND:
		return "rand"
	default:
		return "unknown"
	}
}

// CacheConfig describes a cache's block/set/associativity shape. All of
// BlockSize, NumBlocks and Associativity must be powers of two, and
// Associativity must not exceed NumBlocks.
type CacheConfig struct {
	BlockSize     uint32
	NumBlocks     uint32
	Associativity uint32
	Policy        ReplacementPolicy
}

// Validate checks the power-of-two and associativity constraints.
func (c CacheConfig) Validate() error {
	if !isPowerOfTwo(c.BlockSize) {
		return fmt.Errorf("cache block size %d is not a power of two", c.BlockSize)
	}
	if !isPowerOfTwo(c.NumBlocks) {
		return fmt.Errorf("cache block count %d is not a power of two", c.NumBlocks)
	}
	if !isPowerOfTwo(c.Associativity) {
		return fmt.Errorf("cache associativity %d is not a power of two", c.Associativity)
	}
	if c.Associativity > c.NumBlocks {
		return fmt.Errorf("cache associativity %d exceeds block count %d", c.Associativity, c.NumBlocks)
	}
	return nil
}

type cacheBlock struct {
	valid bool
	tag   uint32
	age   uint64 // LRU: higher is more recently used
}

type cacheSet struct {
	blocks []cacheBlock
	// fifo holds way-indices in fill order; the head is the next eviction
	// victim. Only reads rotate it into "filled" position.
	fifo []int
}

// Cache sits in front of a Memory and models hits/misses for block/set/
// associativity configurations.
type Cache struct {
	cfg  CacheConfig
	sets []cacheSet

	offsetBits uint
	indexBits  uint

	accesses uint64
	hits     uint64

	clock uint64 // monotonic tick for LRU ages

	rng *lcgRand

	sinks []ChangeSink
}

// NewCache builds a cache simulator for the given configuration. The caller
// must validate cfg first; NewCache panics on an invalid shape since it is
// only ever called after Validate succeeds.
func NewCache(cfg CacheConfig, seed uint64) *Cache {
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	numSets := cfg.NumBlocks / cfg.Associativity
	c := &Cache{
		cfg:        cfg,
		sets:       make([]cacheSet, numSets),
		offsetBits: log2(cfg.BlockSize),
		indexBits:  log2(numSets),
		rng:        newLCGRand(seed),
	}
	for i := range c.sets {
		c.sets[i].blocks = make([]cacheBlock, cfg.Associativity)
	}
	return c
}

func (c *Cache) AddSink(s ChangeSink) { c.sinks = append(c.sinks, s) }

func (c *Cache) Config() CacheConfig { return c.cfg }

// setIndexAndTag splits addr into (set index, tag): offset is the low
// log2(blockSize) bits, index the next log2(numSets) bits, tag whatever
// remains above them.
func (c *Cache) setIndexAndTag(addr uint32) (uint32, uint32) {
	rest := addr >> c.offsetBits
	idx := rest & maskBits(c.indexBits)
	tag := rest >> c.indexBits
	return idx, tag
}

// Access records a single-byte memory operation, returning true on a hit.
func (c *Cache) Access(addr uint32, isWrite bool) bool {
	return c.AccessRange(addr, 1, isWrite)
}

// AccessRange records one memory operation spanning [addr, addr+size).
// Block state updates per constituent byte, but the access counter bumps
// once per operation, and the operation counts as a hit only when every
// byte hit. isWrite matters only for FIFO's read-only rotation quirk.
func (c *Cache) AccessRange(addr, size uint32, isWrite bool) bool {
	c.accesses++
	allHit := true
	for i := uint32(0); i < size; i++ {
		if !c.touchByte(addr+i, isWrite) {
			allHit = false
		}
	}
	if allHit {
		c.hits++
	}
	return allHit
}

// touchByte updates block state for one byte address, reporting whether it
// was resident. Counters are the caller's business.
func (c *Cache) touchByte(addr uint32, isWrite bool) bool {
	c.clock++

	idx, tag := c.setIndexAndTag(addr)
	set := &c.sets[idx]

	for way := range set.blocks {
		b := &set.blocks[way]
		if b.valid && b.tag == tag {
			b.age = c.clock
			c.notify(int(idx), way, CacheBlockHit)
			return true
		}
	}

	// Miss: choose a victim and fill. The FIFO fill queue only rotates on
	// reads; a write-triggered fill replaces the block in place but leaves
	// the queue alone, so the next eviction still targets the same way.
	// Deliberate quirk, kept for trace compatibility.
	way := c.chooseVictim(set)
	set.blocks[way] = cacheBlock{valid: true, tag: tag, age: c.clock}
	if c.cfg.Policy == FIFO && !isWrite {
		c.fillFIFO(set, way)
	}
	c.notify(int(idx), way, CacheBlockMiss)
	return false
}

// fillFIFO moves a just-filled way to the back of the fill-order queue.
func (c *Cache) fillFIFO(set *cacheSet, way int) {
	for i, w := range set.fifo {
		if w == way {
			set.fifo = append(set.fifo[:i], set.fifo[i+1:]...)
			break
		}
	}
	set.fifo = append(set.fifo, way)
}

func (c *Cache) chooseVictim(set *cacheSet) int {
	for way := range set.blocks {
		if !set.blocks[way].valid {
			return way
		}
	}

	switch c.cfg.Policy {
	case FIFO:
		if len(set.fifo) > 0 {
			return set.fifo[0]
		}
		return 0
	case RAND:
		return int(c.rng.Next() % uint64(len(set.blocks)))
	default: // LRU
		oldest := 0
		for way := 1; way < len(set.blocks); way++ {
			if set.blocks[way].age < set.blocks[oldest].age {
				oldest = way
			}
		}
		return oldest
	}
}

func (c *Cache) notify(setIdx, wayIdx int, state CacheBlockState) {
	for _, s := range c.sinks {
		s.CacheBlockStateChanged(setIdx, wayIdx, state)
	}
}

// Accesses and Hits report the running totals behind HitRate.
func (c *Cache) Accesses() uint64 { return c.accesses }
func (c *Cache) Hits() uint64     { return c.hits }

func (c *Cache) HitRate() float64 {
	if c.accesses == 0 {
		return 0
	}
	return float64(c.hits) / float64(c.accesses)
}

// cacheSnapshot is a deep copy of a cache's mutable state, used as the
// "prior cache backup" a history diff carries.
type cacheSnapshot struct {
	sets           []cacheSet
	accesses, hits uint64
	clock          uint64
}

// Snapshot deep-copies the cache's current state.
func (c *Cache) Snapshot() *cacheSnapshot {
	sets := make([]cacheSet, len(c.sets))
	for i, s := range c.sets {
		sets[i] = cacheSet{
			blocks: append([]cacheBlock(nil), s.blocks...),
			fifo:   append([]int(nil), s.fifo...),
		}
	}
	return &cacheSnapshot{sets: sets, accesses: c.accesses, hits: c.hits, clock: c.clock}
}

// Restore replaces the cache's state with a previously captured snapshot.
func (c *Cache) Restore(snap *cacheSnapshot) {
	if snap == nil {
		return
	}
	c.sets = snap.sets
	c.accesses = snap.accesses
	c.hits = snap.hits
	c.clock = snap.clock
}

// Reset clears all blocks to empty and zeroes the counters.
func (c *Cache) Reset() {
	for i := range c.sets {
		c.sets[i] = cacheSet{blocks: make([]cacheBlock, c.cfg.Associativity)}
	}
	c.accesses, c.hits, c.clock = 0, 0, 0
}

// lcgRand is a tiny deterministic linear-congruential generator used for
// the RAND replacement policy. A process-global math/rand would also
// satisfy "seeded once at startup", but RAND's behavior needs to stay
// reproducible independent of whatever else in the process consumes the
// shared global source, so Jupiter gives each cache its own stream.
type lcgRand struct {
	state uint64
}

func newLCGRand(seed uint64) *lcgRand {
	if seed == 0 {
		seed = 0x9E3779B97F4A7C15
	}
	return &lcgRand{state: seed}
}

func (r *lcgRand) Next() uint64 {
	// Constants from Knuth's MMIX LCG.
	r.state = r.state*6364136223846793005 + 1442695040888963407
	return r.state >> 33
}
