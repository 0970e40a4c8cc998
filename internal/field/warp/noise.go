package warp

import (
	"fmt"
	"math"
	"strings"

	"github.com/aquilax/go-perlin"
	"github.com/ojrac/opensimplex-go"
)

// NoiseType selects the base coherent noise.
type NoiseType uint8

const (
	Simplex NoiseType = iota
	Perlin
)

// FractalType selects how octaves are layered.
type FractalType uint8

const (
	FractalNone FractalType = iota
	FractalFBM
	FractalBillow
	FractalRigid
)

var noiseNames = [...]string{Simplex: "simplex", Perlin: "perlin"}

var fractalNames = [...]string{
	FractalNone:   "none",
	FractalFBM:    "fbm",
	FractalBillow: "billow",
	FractalRigid:  "rigid",
}

func (n NoiseType) Valid() bool { return int(n) < len(noiseNames) }

func (n NoiseType) String() string {
	if !n.Valid() {
		return fmt.Sprintf("noise(%d)", uint8(n))
	}
	return noiseNames[n]
}

func ParseNoiseType(s string) (NoiseType, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for i, name := range noiseNames {
		if name == key {
			return NoiseType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown noise type %q", s)
}

func (n NoiseType) MarshalText() ([]byte, error) {
	if !n.Valid() {
		return nil, fmt.Errorf("invalid noise type %d", uint8(n))
	}
	return []byte(noiseNames[n]), nil
}

func (n *NoiseType) UnmarshalText(b []byte) error {
	v, err := ParseNoiseType(string(b))
	if err != nil {
		return err
	}
	*n = v
	return nil
}

func (f FractalType) Valid() bool { return int(f) < len(fractalNames) }

func (f FractalType) String() string {
	if !f.Valid() {
		return fmt.Sprintf("fractal(%d)", uint8(f))
	}
	return fractalNames[f]
}

func ParseFractalType(s string) (FractalType, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for i, name := range fractalNames {
		if name == key {
			return FractalType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown fractal type %q", s)
}

func (f FractalType) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("invalid fractal type %d", uint8(f))
	}
	return []byte(fractalNames[f]), nil
}

func (f *FractalType) UnmarshalText(b []byte) error {
	v, err := ParseFractalType(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

type source interface {
	eval(x, z float64) float64
}

type simplexSource struct{ n opensimplex.Noise }

func (s simplexSource) eval(x, z float64) float64 { return s.n.Eval2(x, z) }

// perlinSource uses a single go-perlin octave; layering happens in field.
type perlinSource struct{ p *perlin.Perlin }

func (s perlinSource) eval(x, z float64) float64 { return s.p.Noise2D(x, z) }

func newSource(kind NoiseType, seed int64) source {
	if kind == Perlin {
		return perlinSource{p: perlin.NewPerlin(2, 2, 1, seed)}
	}
	return simplexSource{n: opensimplex.New(seed)}
}

// field is one fractal noise field. Output stays within roughly [-1, 1].
type field struct {
	src        source
	frequency  float64
	octaves    int
	gain       float64
	lacunarity float64
	fractal    FractalType
	bounding   float64
}

func newField(n NoiseConfig) *field {
	f := &field{
		src:        newSource(n.Noise, n.Seed),
		frequency:  float64(n.Frequency),
		octaves:    n.Octaves,
		gain:       float64(n.Gain),
		lacunarity: float64(n.Lacunarity),
		fractal:    n.Fractal,
	}
	if f.fractal == FractalNone || f.octaves < 1 {
		f.octaves = 1
	}
	amp, total := 1.0, 0.0
	for i := 0; i < f.octaves; i++ {
		total += amp
		amp *= math.Abs(f.gain)
	}
	f.bounding = 1
	if total > 0 {
		f.bounding = 1 / total
	}
	return f
}

func (f *field) eval(x, z float64) float64 {
	x *= f.frequency
	z *= f.frequency
	if f.fractal == FractalNone {
		return f.src.eval(x, z)
	}

	var sum float64
	amp := 1.0
	for i := 0; i < f.octaves; i++ {
		n := f.src.eval(x, z)
		switch f.fractal {
		case FractalBillow:
			n = math.Abs(n)*2 - 1
		case FractalRigid:
			n = 1 - math.Abs(n)
		}
		sum += n * amp
		amp *= f.gain
		x *= f.lacunarity
		z *= f.lacunarity
	}
	sum *= f.bounding
	if f.fractal == FractalRigid {
		// rigid octaves are in [0, 1]; recentre.
		sum = sum*2 - 1
	}
	return sum
}
