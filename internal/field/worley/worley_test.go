package worley

import (
	"math"
	"strings"
	"testing"

	"worleybiomes.ai/internal/field/biome"
	"worleybiomes.ai/internal/field/distance"
	"worleybiomes.ai/internal/field/mathx"
	"worleybiomes.ai/internal/field/warp"
)

type terrain uint8

const (
	desert terrain = iota
	forest
	snow
	plains
)

func uniform(t *testing.T) *biome.Generator[terrain] {
	t.Helper()
	g, err := biome.Uniform(desert, forest, snow, plains)
	if err != nil {
		t.Fatalf("Uniform: %v", err)
	}
	return g
}

func warped() warp.Config {
	return warp.Config{
		Strength: 0.6,
		Field: warp.NoiseConfig{
			Seed:       3,
			Frequency:  0.7,
			Octaves:    5,
			Gain:       0.6,
			Lacunarity: 2,
			Fractal:    warp.FractalFBM,
			Noise:      warp.Perlin,
		},
	}
}

func newSampler(t *testing.T, cfg Config) *Sampler[terrain] {
	t.Helper()
	s, err := New[terrain](cfg, uniform(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func weightSum[B comparable](ws []Weighted[B]) float64 {
	var sum float64
	for _, w := range ws {
		sum += w.Weight
	}
	return sum
}

func TestSampleDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.K = 3
	cfg.Warp = warped()
	a := newSampler(t, cfg)
	b := newSampler(t, cfg)
	for i := 0; i < 200; i++ {
		x := float64(i)*13.7 - 900
		z := float64(i)*-7.3 + 400
		ra := a.Sample(77, x, z)
		rb := b.Sample(77, x, z)
		if len(ra) != len(rb) {
			t.Fatalf("length mismatch at %d", i)
		}
		for j := range ra {
			if math.Float64bits(ra[j].Weight) != math.Float64bits(rb[j].Weight) || ra[j].Biome != rb[j].Biome {
				t.Fatalf("sample %d entry %d differs: %+v vs %+v", i, j, ra[j], rb[j])
			}
		}
	}
}

func TestSampleWeightsNormalized(t *testing.T) {
	for _, m := range distance.All() {
		for k := 1; k <= NeighborhoodSize; k++ {
			for _, sharp := range []float64{0, 1, 5, 20, 80} {
				cfg := Config{Zoom: 40, K: k, Sharpness: sharp, Metric: m, Warp: warped()}
				s := newSampler(t, cfg)
				for i := 0; i < 40; i++ {
					x := float64(i)*31.1 - 600
					z := float64(i*i)*0.7 - 300
					got := s.Sample(5, x, z)
					if len(got) != k {
						t.Fatalf("%s k=%d: expected %d entries, got %d", m, k, k, len(got))
					}
					if sum := weightSum(got); math.Abs(sum-1) > 1e-9 {
						t.Fatalf("%s k=%d sharpness=%v: weights sum to %v", m, k, sharp, sum)
					}
					for _, w := range got {
						if !(w.Weight >= 0 && w.Weight <= 1) {
							t.Fatalf("%s k=%d: weight out of range: %v", m, k, w.Weight)
						}
					}
				}
			}
		}
	}
}

func TestSampleClampsK(t *testing.T) {
	s := newSampler(t, DefaultConfig())
	cfg := DefaultConfig()
	cfg.K = 12
	s.Configure(cfg)
	if s.Config().K != NeighborhoodSize {
		t.Fatalf("expected k clamped to %d, got %d", NeighborhoodSize, s.Config().K)
	}
	if got := len(s.Sample(1, 10, 10)); got != NeighborhoodSize {
		t.Fatalf("expected %d entries, got %d", NeighborhoodSize, got)
	}
}

func TestSampleNearestFirst(t *testing.T) {
	cfg := DefaultConfig()
	cfg.K = 4
	cfg.Sharpness = 3
	s := newSampler(t, cfg)
	for i := 0; i < 100; i++ {
		got := s.Sample(11, float64(i)*17, float64(i)*-29)
		for j := 1; j < len(got); j++ {
			if got[j].Weight > got[j-1].Weight+1e-12 {
				t.Fatalf("weights not in nearest-first order: %+v", got)
			}
		}
	}
}

func TestSampleEndToEnd(t *testing.T) {
	gen := uniform(t)
	s, err := New[terrain](Config{Zoom: 100, K: 1, Sharpness: 20, Metric: distance.Euclidean}, gen)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got := s.Sample(0, 0, 0)
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	if got[0].Weight != 1 {
		t.Fatalf("expected weight 1.0, got %v", got[0].Weight)
	}

	best := math.Inf(1)
	var want terrain
	for _, off := range neighborOffsets {
		fp := FeaturePointAt(0, off[0], off[1])
		d := math.Sqrt(fp.X*fp.X + fp.Z*fp.Z)
		if d < best {
			best = d
			want = gen.Pick(0, off[0], off[1])
		}
	}
	if got[0].Biome != want {
		t.Fatalf("expected biome %d, got %d", want, got[0].Biome)
	}
}

func TestSampleCoincidentFeaturePoint(t *testing.T) {
	gen := uniform(t)
	cfg := Config{Zoom: 1, K: 3, Sharpness: 2, Metric: distance.Euclidean}
	s, err := New[terrain](cfg, gen)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	fp := FeaturePointAt(21, 2, 3)
	got := s.Sample(21, fp.X, fp.Z)
	for _, w := range got {
		if math.IsNaN(w.Weight) || math.IsInf(w.Weight, 0) {
			t.Fatalf("non-finite weight: %+v", got)
		}
	}
	if got[0].Biome != gen.Pick(21, 2, 3) {
		t.Fatalf("expected coincident cell biome first, got %+v", got)
	}
	if got[0].Weight < 0.9 {
		t.Fatalf("expected dominant weight, got %v", got[0].Weight)
	}
	if sum := weightSum(got); math.Abs(sum-1) > 1e-9 {
		t.Fatalf("weights sum to %v", sum)
	}
}

func TestSampleHighSharpnessDoesNotOverflow(t *testing.T) {
	cfg := Config{Zoom: 10, K: 5, Sharpness: 400, Metric: distance.Manhattan}
	s := newSampler(t, cfg)
	for i := 0; i < 100; i++ {
		got := s.Sample(8, float64(i)*3.3, float64(i)*1.7)
		if sum := weightSum(got); math.Abs(sum-1) > 1e-9 {
			t.Fatalf("weights sum to %v", sum)
		}
	}
}

func TestSampleNegativeSharpnessNearFeaturePoint(t *testing.T) {
	cfg := Config{Zoom: 1, K: 9, Sharpness: -60, Metric: distance.Euclidean}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	s := newSampler(t, cfg)
	fp := FeaturePointAt(0, 2, 2)
	got := s.Sample(0, fp.X+1e-6, fp.Z)
	if len(got) != 9 {
		t.Fatalf("expected 9 entries, got %d", len(got))
	}
	if sum := weightSum(got); math.Abs(sum-1) > 1e-9 {
		t.Fatalf("weights sum to %v", sum)
	}
	// Inverted falloff: weight grows with distance.
	for i := 1; i < len(got); i++ {
		if got[i].Weight < got[i-1].Weight {
			t.Fatalf("expected non-decreasing weights, got %+v", got)
		}
	}
	for i := 0; i < 50; i++ {
		got := s.Sample(4, float64(i)*0.37, float64(i)*-1.9)
		if sum := weightSum(got); math.Abs(sum-1) > 1e-9 {
			t.Fatalf("weights sum to %v at step %d", sum, i)
		}
	}
}

func TestSampleSaturatesAtLatticeEdge(t *testing.T) {
	gen := uniform(t)
	cfg := Config{Zoom: 1, K: 1, Sharpness: 20, Metric: distance.Euclidean}
	s, err := New[terrain](cfg, gen)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	x, z := 5e9, -5e9
	wx, wz := float64(float32(x)), float64(float32(z))
	edgeX, edgeZ := int32(mathx.MaxCell), int32(mathx.MinCell)
	want := gen.Pick(7, edgeX, edgeZ)
	best := math.Inf(1)
	for _, off := range neighborOffsets {
		fp := FeaturePointAt(7, edgeX+off[0], edgeZ+off[1])
		if d := math.Hypot(wx-fp.X, wz-fp.Z); d < best {
			best = d
			want = gen.Pick(7, fp.CellX, fp.CellZ)
		}
	}

	got := s.Sample(7, x, z)
	if len(got) != 1 || got[0].Weight != 1 {
		t.Fatalf("expected a single full-weight entry, got %+v", got)
	}
	if got[0].Biome != want {
		t.Fatalf("expected edge cell biome %d, got %d", want, got[0].Biome)
	}
}

func TestSelectNearestTieBreaksByEnumerationOrder(t *testing.T) {
	var c [NeighborhoodSize]candidate[terrain]
	for i := range c {
		c[i] = candidate[terrain]{dist: 5, order: i, biome: plains}
	}
	// later neighbour stored first; enumeration order must still win.
	c[1] = candidate[terrain]{dist: 0.25, order: 6, biome: snow}
	c[7] = candidate[terrain]{dist: 0.25, order: 2, biome: forest}

	for run := 0; run < 3; run++ {
		cp := c
		selectNearest(&cp, 1)
		if cp[0].biome != forest || cp[0].order != 2 {
			t.Fatalf("expected order 2 to win tie, got %+v", cp[0])
		}
		cp = c
		selectNearest(&cp, 2)
		if cp[0].order != 2 || cp[1].order != 6 {
			t.Fatalf("expected orders 2,6 got %d,%d", cp[0].order, cp[1].order)
		}
	}
}

func TestSelectNearestPartial(t *testing.T) {
	var c [NeighborhoodSize]candidate[terrain]
	dists := []float64{0.9, 0.1, 0.8, 0.3, 0.7, 0.2, 0.6, 0.4, 0.5}
	for i, d := range dists {
		c[i] = candidate[terrain]{dist: d, order: i}
	}
	selectNearest(&c, 3)
	want := []float64{0.1, 0.2, 0.3}
	for i, w := range want {
		if c[i].dist != w {
			t.Fatalf("position %d: expected %v, got %v", i, w, c[i].dist)
		}
	}
}

func TestFeaturePointInsideCell(t *testing.T) {
	for cz := int32(-20); cz < 20; cz++ {
		for cx := int32(-20); cx < 20; cx++ {
			fp := FeaturePointAt(1234, cx, cz)
			if fp.X < float64(cx) || fp.X >= float64(cx)+1 || fp.Z < float64(cz) || fp.Z >= float64(cz)+1 {
				t.Fatalf("feature point %+v outside cell", fp)
			}
		}
	}
}

func expectPanic(t *testing.T, contains string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected panic")
		}
		msg, _ := r.(string)
		if !strings.Contains(msg, contains) {
			t.Fatalf("expected panic containing %q, got %v", contains, r)
		}
	}()
	fn()
}

func TestSamplePanicsOnNonFiniteWarp(t *testing.T) {
	s := newSampler(t, DefaultConfig())
	expectPanic(t, "not finite", func() { s.Sample(1, math.NaN(), 0) })

	cfg := DefaultConfig()
	cfg.Warp = warped()
	cfg.Warp.Strength = float32(math.Inf(1))
	s.Configure(cfg)
	expectPanic(t, "not finite", func() { s.Sample(1, 12.5, 40.25) })
}

func TestSamplePanicsOnBrokenSharpness(t *testing.T) {
	s := newSampler(t, DefaultConfig())
	cfg := DefaultConfig()
	cfg.K = 4
	cfg.Sharpness = math.NaN()
	s.Configure(cfg)
	expectPanic(t, "invalid weight sum", func() { s.Sample(1, 123, 456) })
}

func TestNewRejectsBadConfig(t *testing.T) {
	gen := uniform(t)
	bad := []Config{
		{Zoom: 0, K: 1},
		{Zoom: -5, K: 1},
		{Zoom: 100, K: 0},
		{Zoom: 100, K: 1, Sharpness: math.Inf(1)},
		{Zoom: 100, K: 1, Metric: distance.Metric(42)},
	}
	for i, cfg := range bad {
		if _, err := New[terrain](cfg, gen); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
	if _, err := New[terrain](DefaultConfig(), nil); err == nil {
		t.Fatalf("expected error for nil picker")
	}
}

func TestConfigureNormalizesZoom(t *testing.T) {
	s := newSampler(t, DefaultConfig())
	s.Configure(Config{Zoom: 0, K: 0})
	cfg := s.Config()
	if cfg.Zoom != DefaultZoom || cfg.K != 1 {
		t.Fatalf("unexpected normalized config: %+v", cfg)
	}
}

func TestSetGenerator(t *testing.T) {
	s := newSampler(t, DefaultConfig())
	only, _ := biome.Uniform(snow)
	s.SetGenerator(only)
	for i := 0; i < 20; i++ {
		if got := s.Sample(2, float64(i)*50, 0); got[0].Biome != snow {
			t.Fatalf("expected snow after SetGenerator, got %d", got[0].Biome)
		}
	}
}

func TestSampleGridMatchesSample(t *testing.T) {
	cfg := DefaultConfig()
	cfg.K = 3
	cfg.Zoom = 20
	cfg.Warp = warped()
	s := newSampler(t, cfg)
	g := Grid{X0: -50, Z0: 25, Step: 3.5, Width: 37, Height: 21}
	out, err := s.SampleGrid(4, g)
	if err != nil {
		t.Fatalf("SampleGrid: %v", err)
	}
	if len(out) != g.Width*g.Height {
		t.Fatalf("expected %d cells, got %d", g.Width*g.Height, len(out))
	}
	for i := range out {
		x, z := g.Point(i)
		want := s.Sample(4, x, z)
		if len(want) != len(out[i]) {
			t.Fatalf("cell %d length mismatch", i)
		}
		for j := range want {
			if want[j] != out[i][j] {
				t.Fatalf("cell %d entry %d: expected %+v, got %+v", i, j, want[j], out[i][j])
			}
		}
	}
}

func TestSampleGridRejectsBadGrid(t *testing.T) {
	s := newSampler(t, DefaultConfig())
	if _, err := s.SampleGrid(1, Grid{Step: 1, Width: 0, Height: 3}); err == nil {
		t.Fatalf("expected error for empty grid")
	}
	if _, err := s.SampleGrid(1, Grid{Step: 0, Width: 2, Height: 2}); err == nil {
		t.Fatalf("expected error for zero step")
	}
}
