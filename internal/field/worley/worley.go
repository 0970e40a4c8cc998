// Package worley samples a cellular biome field: every lattice cell owns one
// feature point and one biome, and a query blends the k nearest cells.
package worley

import (
	"fmt"
	"math"

	"worleybiomes.ai/internal/field/biome"
	"worleybiomes.ai/internal/field/distance"
	"worleybiomes.ai/internal/field/mathx"
	"worleybiomes.ai/internal/field/warp"
)

const (
	// NeighborhoodSize is the number of candidate cells per query (3x3).
	NeighborhoodSize = 9

	DefaultZoom      = 100.0
	DefaultK         = 1
	DefaultSharpness = 20.0

	// CoincidentEpsilon is the distance below which a query is treated as
	// sitting on a feature point.
	CoincidentEpsilon = 1e-9
	// CoincidentWeight is the raw weight of a coincident candidate. Other
	// raw weights are at most 1.
	CoincidentWeight = 100.0

	featureSaltX uint64 = 1337
	featureSaltZ uint64 = 7331
)

// neighborOffsets is the fixed enumeration order; ties resolve to the
// earlier entry.
var neighborOffsets = [NeighborhoodSize][2]int32{
	{-1, -1}, {-1, 0}, {-1, 1},
	{0, -1}, {0, 0}, {0, 1},
	{1, -1}, {1, 0}, {1, 1},
}

type Config struct {
	Zoom      float64         `json:"zoom" yaml:"zoom"`
	K         int             `json:"k" yaml:"k"`
	Sharpness float64         `json:"sharpness" yaml:"sharpness"`
	Metric    distance.Metric `json:"distance_metric" yaml:"distance_metric"`
	Warp      warp.Config     `json:"warp" yaml:"warp"`
}

func DefaultConfig() Config {
	return Config{
		Zoom:      DefaultZoom,
		K:         DefaultK,
		Sharpness: DefaultSharpness,
		Metric:    distance.Euclidean,
	}
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Normalize clamps K into [1, 9] and replaces an unusable zoom with the
// default. Sharpness and warp problems are left for Validate or the
// query-time invariant checks.
func (c *Config) Normalize() {
	if c == nil {
		return
	}
	if c.K < 1 {
		c.K = 1
	}
	if c.K > NeighborhoodSize {
		c.K = NeighborhoodSize
	}
	if !finite(c.Zoom) || c.Zoom <= 0 {
		c.Zoom = DefaultZoom
	}
	if !c.Metric.Valid() {
		c.Metric = distance.Euclidean
	}
}

func (c Config) Validate() error {
	if !finite(c.Zoom) || c.Zoom <= 0 {
		return fmt.Errorf("zoom must be finite and > 0, got %v", c.Zoom)
	}
	if c.K < 1 {
		return fmt.Errorf("k must be >= 1, got %d", c.K)
	}
	if !finite(c.Sharpness) {
		return fmt.Errorf("sharpness must be finite, got %v", c.Sharpness)
	}
	if !c.Metric.Valid() {
		return fmt.Errorf("invalid distance metric %d", uint8(c.Metric))
	}
	if err := c.Warp.Validate(); err != nil {
		return err
	}
	return nil
}

// Weighted is one entry of a query result.
type Weighted[B comparable] struct {
	Weight float64 `json:"weight"`
	Biome  B       `json:"biome"`
}

// FeaturePoint is the pseudo-random point owned by a cell.
type FeaturePoint struct {
	CellX, CellZ int32
	X, Z         float64
}

// FeaturePointAt derives the feature point of cell (cx, cz). The point lies
// in [cx, cx+1) x [cz, cz+1).
func FeaturePointAt(seed uint64, cx, cz int32) FeaturePoint {
	h1 := mathx.Hash2(seed+featureSaltX, cx, cz)
	h2 := mathx.Hash2(seed+featureSaltZ, cx, cz)
	return FeaturePoint{
		CellX: cx,
		CellZ: cz,
		X:     float64(cx) + mathx.Unit16(h1),
		Z:     float64(cz) + mathx.Unit16(h2),
	}
}

// Sampler is safe for concurrent Sample calls. Configure and SetGenerator
// must not race with queries.
type Sampler[B comparable] struct {
	cfg    Config
	dist   distance.Func
	warper *warp.Warper
	picker biome.Picker[B]
}

// New validates cfg and builds a sampler.
func New[B comparable](cfg Config, picker biome.Picker[B]) (*Sampler[B], error) {
	if picker == nil {
		return nil, fmt.Errorf("nil biome picker")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Sampler[B]{picker: picker}
	s.Configure(cfg)
	return s, nil
}

// Configure installs cfg after Normalize. It never fails.
func (s *Sampler[B]) Configure(cfg Config) {
	cfg.Normalize()
	s.cfg = cfg
	s.dist = cfg.Metric.Func()
	s.warper = warp.New(cfg.Warp)
}

func (s *Sampler[B]) SetGenerator(picker biome.Picker[B]) {
	s.picker = picker
}

func (s *Sampler[B]) Config() Config { return s.cfg }

func (s *Sampler[B]) Generator() biome.Picker[B] { return s.picker }

type candidate[B comparable] struct {
	dist  float64
	order int
	biome B
}

func (a candidate[B]) less(b candidate[B]) bool {
	if a.dist != b.dist {
		return a.dist < b.dist
	}
	return a.order < b.order
}

// selectNearest moves the k smallest candidates to the front in ascending
// order. Only the first k positions are sorted.
func selectNearest[B comparable](c *[NeighborhoodSize]candidate[B], k int) {
	for i := 0; i < k; i++ {
		best := i
		for j := i + 1; j < NeighborhoodSize; j++ {
			if c[j].less(c[best]) {
				best = j
			}
		}
		c[i], c[best] = c[best], c[i]
	}
}

// Sample returns the biome mixture at (x, z).
func (s *Sampler[B]) Sample(seed uint64, x, z float64) []Weighted[B] {
	return s.SampleInto(make([]Weighted[B], 0, s.k()), seed, x, z)
}

func (s *Sampler[B]) k() int {
	k := s.cfg.K
	if k > NeighborhoodSize {
		k = NeighborhoodSize
	}
	if k < 1 {
		k = 1
	}
	return k
}

// SampleInto appends the mixture at (x, z) to dst.
//
// It panics if the warped coordinate or the weight sum is not finite; both
// mean the configuration is broken and retrying cannot help.
func (s *Sampler[B]) SampleInto(dst []Weighted[B], seed uint64, x, z float64) []Weighted[B] {
	sx, sz := x/s.cfg.Zoom, z/s.cfg.Zoom
	wx, wz := s.warper.Warp(float32(sx), float32(sz))
	if !finite(wx) || !finite(wz) {
		panic(fmt.Sprintf("worley: warped coordinate not finite: (%v, %v) from (%v, %v)", wx, wz, x, z))
	}

	cellX := mathx.FloorCell(wx)
	cellZ := mathx.FloorCell(wz)

	var cands [NeighborhoodSize]candidate[B]
	for i, off := range neighborOffsets {
		cx := cellX + off[0]
		cz := cellZ + off[1]
		fp := FeaturePointAt(seed, cx, cz)
		cands[i] = candidate[B]{
			dist:  s.dist(wx-fp.X, wz-fp.Z),
			order: i,
			biome: s.picker.Pick(seed, cx, cz),
		}
	}

	k := s.k()
	selectNearest(&cands, k)
	return appendWeights(dst, cands[:k], s.cfg.Sharpness)
}

// appendWeights turns sorted distances into normalized weights.
//
// Raw weights are 1/d^sharpness scaled by ref^sharpness. The scale cancels
// in normalization. ref is the nearest distance for non-negative sharpness
// and the farthest selected one for negative sharpness (clamped to
// CoincidentEpsilon), which keeps every non-coincident raw weight in (0, 1]
// and the ref candidate at exactly 1, so large exponents neither overflow
// nor underflow the sum.
func appendWeights[B comparable](dst []Weighted[B], nearest []candidate[B], sharpness float64) []Weighted[B] {
	refDist := nearest[0].dist
	if sharpness < 0 {
		refDist = nearest[len(nearest)-1].dist
	}
	ref := math.Max(refDist, CoincidentEpsilon)

	start := len(dst)
	var sum float64
	for _, c := range nearest {
		var w float64
		if c.dist < CoincidentEpsilon {
			w = CoincidentWeight
		} else {
			w = math.Pow(ref/c.dist, sharpness)
		}
		sum += w
		dst = append(dst, Weighted[B]{Weight: w, Biome: c.biome})
	}

	if !finite(sum) || sum <= 0 {
		panic(fmt.Sprintf("worley: invalid weight sum %v (sharpness %v)", sum, sharpness))
	}
	for i := start; i < len(dst); i++ {
		dst[i].Weight /= sum
	}
	return dst
}
