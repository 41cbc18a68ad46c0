// Package config holds Jupiter's configuration surface and the precedence
// rule for it: compiled-in default, overridden by environment variable,
// overridden by an explicit CLI flag.
package config

import (
	"github.com/xyproto/env/v2"

	"jupiter/internal/vm"
)

// Config bundles every tunable the toolchain and simulator expose.
type Config struct {
	// BareMachine disables pseudo-instruction expansion in the assembler.
	BareMachine bool
	// Extrict promotes every assembler/linker warning to an error.
	Extrict bool
	// SelfModifying inverts the text-segment write-protection rule and
	// relaxes misaligned half/word access.
	SelfModifying bool
	// Debug records the debug-mode option; neither the driver nor the CLI
	// produces trace output from it.
	Debug bool
	// EntrySymbol is the label the linker treats as the program's start.
	EntrySymbol string
	// HistorySize bounds how many back-step diffs the history retains.
	HistorySize int

	Cache CacheConfig
}

// CacheConfig is the flag/env-facing shape of the cache parameters,
// translated into vm.CacheConfig by ToVM.
type CacheConfig struct {
	BlockSize     uint32
	NumBlocks     uint32
	Associativity uint32
	Policy        string // "lru" | "fifo" | "rand"
}

// ToVM converts the config's cache section into the vm package's native
// CacheConfig type.
func (c CacheConfig) ToVM() vm.CacheConfig {
	policy := vm.LRU
	switch c.Policy {
	case "fifo":
		policy = vm.FIFO
	case "rand":
		policy = vm.RAND
	}
	return vm.CacheConfig{
		BlockSize:     c.BlockSize,
		NumBlocks:     c.NumBlocks,
		Associativity: c.Associativity,
		Policy:        policy,
	}
}

// Defaults returns the compiled-in defaults, unmodified by environment or
// flags.
func Defaults() Config {
	return Config{
		BareMachine:   false,
		Extrict:       true,
		SelfModifying: false,
		Debug:         false,
		EntrySymbol:   vm.DefaultEntrySymbol,
		HistorySize:   2000,
		Cache: CacheConfig{
			BlockSize:     4,
			NumBlocks:     4,
			Associativity: 1,
			Policy:        "lru",
		},
	}
}

// FromEnvironment starts from Defaults() and applies any JUPITER_* override
// present in the process environment. Recognized variables: JUPITER_BARE,
// JUPITER_EXTRICT, JUPITER_SELF_MODIFYING, JUPITER_DEBUG, JUPITER_ENTRY,
// JUPITER_HISTORY_SIZE, JUPITER_CACHE_BLOCK_SIZE, JUPITER_CACHE_NUM_BLOCKS,
// JUPITER_CACHE_ASSOCIATIVITY, JUPITER_CACHE_POLICY.
func FromEnvironment() Config {
	c := Defaults()

	c.BareMachine = env.Bool("JUPITER_BARE")
	c.Extrict = envBoolOr("JUPITER_EXTRICT", c.Extrict)
	c.SelfModifying = env.Bool("JUPITER_SELF_MODIFYING")
	c.Debug = env.Bool("JUPITER_DEBUG")
	c.EntrySymbol = env.Str("JUPITER_ENTRY", c.EntrySymbol)
	c.HistorySize = env.Int("JUPITER_HISTORY_SIZE", c.HistorySize)

	c.Cache.BlockSize = uint32(env.Int("JUPITER_CACHE_BLOCK_SIZE", int(c.Cache.BlockSize)))
	c.Cache.NumBlocks = uint32(env.Int("JUPITER_CACHE_NUM_BLOCKS", int(c.Cache.NumBlocks)))
	c.Cache.Associativity = uint32(env.Int("JUPITER_CACHE_ASSOCIATIVITY", int(c.Cache.Associativity)))
	c.Cache.Policy = env.Str("JUPITER_CACHE_POLICY", c.Cache.Policy)

	return c
}

// envBoolOr reads a boolean env var, falling back to deflt when the
// variable is unset — env.Bool alone can't distinguish "unset" from
// "explicitly false", so options whose default is true need this helper.
func envBoolOr(name string, deflt bool) bool {
	if !env.Has(name) {
		return deflt
	}
	return env.Bool(name)
}
