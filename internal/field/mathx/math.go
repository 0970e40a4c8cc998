package mathx

import (
	"math"
	rand "math/rand/v2"
)

const goldenRatio64 = 0x9e3779b97f4a7c15

// Lattice bounds. One cell of headroom on each side keeps the 3x3
// neighbourhood of an edge cell from wrapping.
const (
	MinCell = math.MinInt32 + 1
	MaxCell = math.MaxInt32 - 1
)

// FloorCell returns the integer lattice cell owning v. Values outside
// [MinCell, MaxCell] saturate at the lattice edge.
func FloorCell(v float64) int32 {
	f := math.Floor(v)
	if f < MinCell {
		return MinCell
	}
	if f > MaxCell {
		return MaxCell
	}
	return int32(f)
}

func mix64(z uint64) uint64 {
	z += goldenRatio64
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Hash2 maps (seed, x, z) to a well mixed 64-bit value. It is stable across
// versions; recorded seeds depend on it.
func Hash2(seed uint64, x, z int32) uint64 {
	ux := uint64(uint32(x))
	uz := uint64(uint32(z))
	v := seed ^ (ux * goldenRatio64) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

// murmurMix is the MurmurHash3 fmix64 finalizer. It is used for PRNG seeding
// so that cell streams do not line up with Hash2.
func murmurMix(k uint64) uint64 {
	k ^= k >> 33
	k *= 0xff51afd7ed558ccd
	k ^= k >> 33
	k *= 0xc4ceb9fe1a85ec53
	k ^= k >> 33
	return k
}

// CellRand returns a PRNG seeded from the seed and cell coordinates.
func CellRand(seed uint64, x, z int32) *rand.Rand {
	combined := seed ^ (uint64(uint32(x)) << 32) ^ uint64(uint32(z))
	return rand.New(rand.NewPCG(murmurMix(combined), murmurMix(combined+goldenRatio64)))
}

// Unit16 maps the low 16 bits of h into [0, 1).
func Unit16(h uint64) float64 {
	return float64(h&0xFFFF) / 65536.0
}
