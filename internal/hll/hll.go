// Package hll implements HyperLogLog, a probabilistic cardinality
// estimator: ADD-ing elements costs constant memory per register, and
// COUNT approximates the number of distinct elements added so far within
// a small relative error.
//
// Hashing uses github.com/spaolacci/murmur3 (MurmurHash3, 32-bit, seed 0),
// ported register-for-register from the reference algorithm: the top
// precision bits of the hash select a register, and the register stores
// the position of the least-significant set bit among the remaining bits
// (the "rho" value), saturating to the max of what it has seen.
package hll

import (
	"math"

	"github.com/spaolacci/murmur3"
)

// DefaultPrecision matches the reference implementation's default: m = 2^14
// registers.
const DefaultPrecision = 14

// HLL is a HyperLogLog sketch over a fixed number of registers.
type HLL struct {
	precision uint
	m         uint32
	registers []uint8
	alphaM    float64
}

// New creates a sketch with 2^precision registers.
func New(precision uint) *HLL {
	m := uint32(1) << precision
	return &HLL{
		precision: precision,
		m:         m,
		registers: make([]uint8, m),
		alphaM:    alphaFor(m),
	}
}

func alphaFor(m uint32) float64 {
	switch m {
	case 16:
		return 0.673
	case 32:
		return 0.697
	case 64:
		return 0.709
	default:
		return 0.7213 / (1.0 + 1.079/float64(m))
	}
}

// Add records element in the sketch.
func (h *HLL) Add(element string) {
	hash := murmur3.Sum32WithSeed([]byte(element), 0)
	k := h.registerIndex(hash)
	rho := h.leadingRho(hash)
	if rho > h.registers[k] {
		h.registers[k] = rho
	}
}

// registerIndex returns the register selected by the top precision bits of
// hash.
func (h *HLL) registerIndex(hash uint32) uint32 {
	return hash >> (32 - h.precision)
}

// leadingRho returns the position (1-based) of the least-significant set
// bit among the bits of hash not consumed by registerIndex, or 255 if none
// of them are set.
func (h *HLL) leadingRho(hash uint32) uint8 {
	mask := uint32(1)<<(32-h.precision) - 1
	value := hash & mask
	if value == 0 {
		return math.MaxUint8
	}
	var rho uint8 = 1
	for value&1 == 0 {
		rho++
		value >>= 1
	}
	return rho
}

// Count returns the estimated number of distinct elements added, applying
// the small-range and large-range bias corrections from the canonical
// HyperLogLog algorithm.
func (h *HLL) Count() int64 {
	sumInverses := 0.0
	for _, reg := range h.registers {
		sumInverses += 1.0 / float64(uint64(1)<<reg)
	}
	m := float64(h.m)
	estimate := h.alphaM * m * m / sumInverses

	if estimate <= 2.5*m {
		zeroRegisters := 0
		for _, reg := range h.registers {
			if reg == 0 {
				zeroRegisters++
			}
		}
		if zeroRegisters != 0 {
			estimate = m * math.Log(m/float64(zeroRegisters))
		}
	}

	const twoPow32 = 1 << 32
	if estimate > (1.0/30.0)*twoPow32 {
		estimate = -twoPow32 * math.Log(1.0-estimate/twoPow32)
	}

	return int64(estimate)
}

// Registers returns a copy of the register array, for snapshot encoding.
func (h *HLL) Registers() []uint8 {
	out := make([]uint8, len(h.registers))
	copy(out, h.registers)
	return out
}

// SetRegisters replaces the register array wholesale, used by snapshot
// restore. len(registers) must equal 2^precision of the receiver's
// construction; a mismatched length is ignored.
func (h *HLL) SetRegisters(registers []uint8) {
	if uint32(len(registers)) != h.m {
		return
	}
	copy(h.registers, registers)
}
