package asm

import "math"

func floatBits(f float32) uint32 { return math.Float32bits(f) }

// fitsSigned reports whether v fits in `bits` bits of two's-complement,
// used to decide whether `li` expands to one addi or a lui+addi pair.
func fitsSigned(v int64, bits uint) bool {
	lo := -(int64(1) << (bits - 1))
	hi := (int64(1) << (bits - 1)) - 1
	return v >= lo && v <= hi
}

// splitHiLo computes the canonical (hi20, lo12) split of a 32-bit delta so
// that `(hi20 << 12) + signExtend(lo12, 12) == delta` exactly, pre-adding
// 0x1000 to the upper half whenever the low 12 bits, read as a signed
// value, are negative.
func splitHiLo(delta int64) (hi20 int32, lo12 int32) {
	v := uint32(delta)
	lo := int32(int32(v<<20) >> 20) // sign-extend low 12 bits
	hi := (v - uint32(lo)) >> 12
	return int32(hi), lo
}
