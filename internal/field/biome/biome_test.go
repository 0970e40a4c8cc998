package biome

import (
	"math"
	"testing"
)

type terrain uint8

const (
	desert terrain = iota
	forest
	snow
	plains
)

func frequencies[B comparable](p Picker[B], seed uint64, size int32) (map[B]int, int) {
	counts := map[B]int{}
	total := 0
	for z := -size; z < size; z++ {
		for x := -size; x < size; x++ {
			counts[p.Pick(seed, x, z)]++
			total++
		}
	}
	return counts, total
}

func TestUniformCoverage(t *testing.T) {
	g, err := Uniform(desert, forest, snow, plains)
	if err != nil {
		t.Fatalf("Uniform: %v", err)
	}
	counts, total := frequencies[terrain](g, 12345, 100)
	for _, b := range []terrain{desert, forest, snow, plains} {
		share := float64(counts[b]) / float64(total)
		if math.Abs(share-0.25) > 0.02 {
			t.Fatalf("variant %d: expected ~25%%, got %.2f%%", b, share*100)
		}
	}
}

func TestWeightedFidelity(t *testing.T) {
	g, err := Weighted(Entry[string]{Biome: "A", Weight: 0.7}, Entry[string]{Biome: "B", Weight: 0.3})
	if err != nil {
		t.Fatalf("Weighted: %v", err)
	}
	counts, total := frequencies[string](g, 99, 100)
	share := float64(counts["A"]) / float64(total)
	if math.Abs(share-0.7) > 0.02 {
		t.Fatalf("expected A ~70%%, got %.2f%%", share*100)
	}
	if counts["A"]+counts["B"] != total {
		t.Fatalf("unexpected biome in output: %v", counts)
	}
}

func TestPickDeterministic(t *testing.T) {
	u, _ := Uniform(desert, forest, snow)
	w, _ := Weighted(Entry[terrain]{desert, 1}, Entry[terrain]{snow, 2})
	for i := int32(-20); i < 20; i++ {
		if u.Pick(3, i, -i) != u.Pick(3, i, -i) {
			t.Fatalf("uniform pick changed for cell %d", i)
		}
		if w.Pick(3, i, -i) != w.Pick(3, i, -i) {
			t.Fatalf("weighted pick changed for cell %d", i)
		}
	}
}

// Roll exhaustion is defined behaviour: mis-normalized weights fall back to
// the last declared entry instead of failing.
func TestWeightedRollExhaustionFallsBackToLast(t *testing.T) {
	entries := []Entry[terrain]{{forest, 0.2}, {snow, 0.2}, {plains, 0}}
	if got := pickWeighted(entries, 0.9); got != plains {
		t.Fatalf("expected last entry on exhaustion, got %d", got)
	}
	if got := pickWeighted(entries, 0.1); got != forest {
		t.Fatalf("expected first entry, got %d", got)
	}
	if got := pickWeighted(entries, 0.3); got != snow {
		t.Fatalf("expected second entry, got %d", got)
	}

	g, err := Weighted(Entry[terrain]{forest, 0}, Entry[terrain]{desert, 0})
	if err != nil {
		t.Fatalf("Weighted: %v", err)
	}
	for x := int32(0); x < 64; x++ {
		if got := g.Pick(1, x, 0); got != desert {
			t.Fatalf("all-zero weights: expected last entry, got %d", got)
		}
	}
}

func TestGeneratorRejectsBadConfig(t *testing.T) {
	if _, err := Uniform[terrain](); err == nil {
		t.Fatalf("expected error for empty variant set")
	}
	if _, err := Weighted[terrain](); err == nil {
		t.Fatalf("expected error for empty weight list")
	}
	if _, err := Weighted(Entry[terrain]{forest, -0.1}); err == nil {
		t.Fatalf("expected error for negative weight")
	}
	if _, err := Weighted(Entry[terrain]{forest, math.NaN()}); err == nil {
		t.Fatalf("expected error for NaN weight")
	}
}

func TestGeneratorCopiesInput(t *testing.T) {
	vs := []terrain{desert, forest}
	g, _ := Uniform(vs...)
	vs[0] = snow
	if g.Variants()[0] != desert {
		t.Fatalf("generator aliased caller slice")
	}
}

func TestParseKind(t *testing.T) {
	if k, err := ParseKind("Weighted"); err != nil || k != KindWeighted {
		t.Fatalf("ParseKind: %v %v", k, err)
	}
	if k, err := ParseKind(""); err != nil || k != KindUniform {
		t.Fatalf("ParseKind empty: %v %v", k, err)
	}
	if _, err := ParseKind("zipf"); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}
