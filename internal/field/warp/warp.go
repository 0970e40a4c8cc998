// Package warp perturbs query coordinates with a coherent noise field before
// the cell lookup so that cell borders do not follow the lattice.
package warp

import (
	"fmt"
	"math"
)

// axisOffset decorrelates the z displacement from the x displacement while
// reading the same noise field. Recorded configurations depend on it.
const axisOffset float32 = 103

// NoiseConfig describes the single noise field read by the warp.
type NoiseConfig struct {
	Seed       int64       `json:"seed" yaml:"seed"`
	Frequency  float32     `json:"frequency" yaml:"frequency"`
	Octaves    int         `json:"octaves" yaml:"octaves"`
	Gain       float32     `json:"gain" yaml:"gain"`
	Lacunarity float32     `json:"lacunarity" yaml:"lacunarity"`
	Fractal    FractalType `json:"fractal" yaml:"fractal"`
	Noise      NoiseType   `json:"noise" yaml:"noise"`
}

type Config struct {
	Strength float32     `json:"strength" yaml:"strength"`
	Field    NoiseConfig `json:"field" yaml:"field"`
}

const MaxOctaves = 16

func finite32(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func (c Config) Validate() error {
	if !finite32(c.Strength) {
		return fmt.Errorf("warp strength must be finite")
	}
	n := c.Field
	if !finite32(n.Frequency) {
		return fmt.Errorf("warp frequency must be finite")
	}
	if !finite32(n.Gain) || !finite32(n.Lacunarity) {
		return fmt.Errorf("warp gain and lacunarity must be finite")
	}
	if n.Octaves < 0 || n.Octaves > MaxOctaves {
		return fmt.Errorf("warp octaves must be in [0, %d]", MaxOctaves)
	}
	if !n.Fractal.Valid() {
		return fmt.Errorf("invalid fractal type %d", uint8(n.Fractal))
	}
	if !n.Noise.Valid() {
		return fmt.Errorf("invalid noise type %d", uint8(n.Noise))
	}
	return nil
}

// Warper is immutable once built and safe for concurrent use.
type Warper struct {
	strength float32
	field    *field
}

func New(cfg Config) *Warper {
	return &Warper{strength: cfg.Strength, field: newField(cfg.Field)}
}

// Noise samples the underlying field at (x, z).
func (w *Warper) Noise(x, z float32) float32 {
	return float32(w.field.eval(float64(x), float64(z)))
}

// Warp displaces (x, z) by strength * noise on each axis. The result may be
// non-finite for degenerate inputs; callers decide how to treat that.
func (w *Warper) Warp(x, z float32) (float64, float64) {
	if w == nil || w.strength == 0 {
		return float64(x), float64(z)
	}
	nx := w.Noise(x, z)
	nz := w.Noise(x+axisOffset, z)
	return float64(x + nx*w.strength), float64(z + nz*w.strength)
}
