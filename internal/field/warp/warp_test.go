package warp

import (
	"math"
	"testing"
)

func testConfig(noise NoiseType, fractal FractalType) Config {
	return Config{
		Strength: 0.6,
		Field: NoiseConfig{
			Seed:       7,
			Frequency:  0.7,
			Octaves:    5,
			Gain:       0.6,
			Lacunarity: 2,
			Fractal:    fractal,
			Noise:      noise,
		},
	}
}

func TestWarpDeterministic(t *testing.T) {
	for _, nt := range []NoiseType{Simplex, Perlin} {
		for _, ft := range []FractalType{FractalNone, FractalFBM, FractalBillow, FractalRigid} {
			a := New(testConfig(nt, ft))
			b := New(testConfig(nt, ft))
			for i := 0; i < 50; i++ {
				x := float32(i)*0.37 - 9
				z := float32(i)*-0.21 + 4
				ax, az := a.Warp(x, z)
				bx, bz := b.Warp(x, z)
				if ax != bx || az != bz {
					t.Fatalf("%s/%s: warp not deterministic at (%v,%v)", nt, ft, x, z)
				}
				if math.IsNaN(ax) || math.IsInf(ax, 0) || math.IsNaN(az) || math.IsInf(az, 0) {
					t.Fatalf("%s/%s: non-finite warp at (%v,%v)", nt, ft, x, z)
				}
				if math.Abs(ax-float64(x)) > 2 || math.Abs(az-float64(z)) > 2 {
					t.Fatalf("%s/%s: displacement too large at (%v,%v): (%v,%v)", nt, ft, x, z, ax, az)
				}
			}
		}
	}
}

func TestWarpZeroStrengthIsIdentity(t *testing.T) {
	cfg := testConfig(Simplex, FractalFBM)
	cfg.Strength = 0
	w := New(cfg)
	x, z := w.Warp(1.25, -3.5)
	if x != 1.25 || z != -3.5 {
		t.Fatalf("expected identity, got (%v,%v)", x, z)
	}
}

func TestWarpUsesFixedAxisOffset(t *testing.T) {
	cfg := testConfig(Simplex, FractalFBM)
	cfg.Strength = 1
	w := New(cfg)
	x, z := w.Warp(2, 3)
	nx := w.Noise(2, 3)
	nz := w.Noise(2+103, 3)
	if x != float64(float32(2)+nx) || z != float64(float32(3)+nz) {
		t.Fatalf("expected (%v,%v), got (%v,%v)", 2+nx, 3+nz, x, z)
	}
}

func TestWarpSeedMatters(t *testing.T) {
	a := New(testConfig(Simplex, FractalFBM))
	cfg := testConfig(Simplex, FractalFBM)
	cfg.Field.Seed = 8
	b := New(cfg)
	same := 0
	for i := 0; i < 20; i++ {
		x := float32(i) * 0.53
		if a.Noise(x, 1.1) == b.Noise(x, 1.1) {
			same++
		}
	}
	if same == 20 {
		t.Fatalf("different seeds produced identical noise")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := testConfig(Perlin, FractalRigid).Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
	bad := testConfig(Simplex, FractalFBM)
	bad.Strength = float32(math.Inf(1))
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for infinite strength")
	}
	bad = testConfig(Simplex, FractalFBM)
	bad.Field.Octaves = MaxOctaves + 1
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for too many octaves")
	}
	bad = testConfig(Simplex, FractalType(9))
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for unknown fractal")
	}
}

func TestParseNames(t *testing.T) {
	if f, err := ParseFractalType("FBM"); err != nil || f != FractalFBM {
		t.Fatalf("ParseFractalType: %v %v", f, err)
	}
	if n, err := ParseNoiseType("perlin"); err != nil || n != Perlin {
		t.Fatalf("ParseNoiseType: %v %v", n, err)
	}
	if _, err := ParseNoiseType("value"); err == nil {
		t.Fatalf("expected error for unknown noise")
	}
}
