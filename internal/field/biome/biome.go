// Package biome resolves the biome owning a lattice cell. It is generic over
// the caller's biome taxonomy: any comparable value type works.
package biome

import (
	"fmt"
	"math"
	"strings"

	"worleybiomes.ai/internal/field/mathx"
)

// Picker produces one value from a fixed finite set for a cell.
type Picker[B comparable] interface {
	Pick(seed uint64, cellX, cellZ int32) B
}

// Kind tags the selection strategy of a Generator.
type Kind string

const (
	KindUniform  Kind = "uniform"
	KindWeighted Kind = "weighted"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindUniform, KindWeighted:
		return k, nil
	case "":
		return KindUniform, nil
	default:
		return "", fmt.Errorf("unknown generator kind %q", s)
	}
}

type Entry[B comparable] struct {
	Biome  B
	Weight float64
}

// Generator is either uniform over Variants or weighted over Entries.
// It is read-only after construction.
type Generator[B comparable] struct {
	kind     Kind
	variants []B
	entries  []Entry[B]
}

// Uniform gives every variant the same odds.
func Uniform[B comparable](variants ...B) (*Generator[B], error) {
	if len(variants) == 0 {
		return nil, fmt.Errorf("uniform generator needs at least one variant")
	}
	return &Generator[B]{
		kind:     KindUniform,
		variants: append([]B(nil), variants...),
	}, nil
}

// Weighted picks entries proportionally to their weights. Weights need not
// sum to 1; a roll that runs past the cumulative total lands on the last
// entry.
func Weighted[B comparable](entries ...Entry[B]) (*Generator[B], error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("weighted generator needs at least one entry")
	}
	for i, e := range entries {
		if math.IsNaN(e.Weight) || math.IsInf(e.Weight, 0) || e.Weight < 0 {
			return nil, fmt.Errorf("entry %d weight must be finite and >= 0, got %v", i, e.Weight)
		}
	}
	return &Generator[B]{
		kind:    KindWeighted,
		entries: append([]Entry[B](nil), entries...),
	}, nil
}

func (g *Generator[B]) Kind() Kind { return g.kind }

func (g *Generator[B]) Variants() []B { return append([]B(nil), g.variants...) }

func (g *Generator[B]) Entries() []Entry[B] { return append([]Entry[B](nil), g.entries...) }

func (g *Generator[B]) Pick(seed uint64, cellX, cellZ int32) B {
	if g.kind == KindWeighted {
		roll := mathx.CellRand(seed, cellX, cellZ).Float64()
		return pickWeighted(g.entries, roll)
	}
	idx := mathx.Hash2(seed, cellX, cellZ) % uint64(len(g.variants))
	return g.variants[idx]
}

func pickWeighted[B comparable](entries []Entry[B], roll float64) B {
	var cumulative float64
	for _, e := range entries {
		cumulative += e.Weight
		if roll < cumulative {
			return e.Biome
		}
	}
	return entries[len(entries)-1].Biome
}
