// Package distance holds the closed set of metrics used to measure the gap
// between a query point and a cell's feature point.
package distance

import (
	"fmt"
	"math"
	"strings"
)

// Metric names a distance function. It is the only persisted identity of a
// metric; the function itself is resolved with Func.
type Metric uint8

const (
	Euclidean Metric = iota
	// EuclideanSquared preserves ordering but not magnitude. Using it for
	// blend weights doubles the effective sharpness.
	EuclideanSquared
	Manhattan
	Chebyshev
	// Hybrid averages Euclidean and Manhattan.
	Hybrid
)

// Func measures an offset.
type Func func(dx, dz float64) float64

var names = [...]string{
	Euclidean:        "euclidean",
	EuclideanSquared: "euclidean_squared",
	Manhattan:        "manhattan",
	Chebyshev:        "chebyshev",
	Hybrid:           "hybrid",
}

// All lists every metric in declaration order.
func All() []Metric {
	return []Metric{Euclidean, EuclideanSquared, Manhattan, Chebyshev, Hybrid}
}

func (m Metric) Valid() bool { return int(m) < len(names) }

func (m Metric) String() string {
	if !m.Valid() {
		return fmt.Sprintf("metric(%d)", uint8(m))
	}
	return names[m]
}

// Parse resolves a metric name, ignoring case and treating '-' like '_'.
func Parse(s string) (Metric, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for i, n := range names {
		if n == key {
			return Metric(i), nil
		}
	}
	return 0, fmt.Errorf("unknown distance metric %q", s)
}

func (m Metric) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid distance metric %d", uint8(m))
	}
	return []byte(names[m]), nil
}

func (m *Metric) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Distance evaluates metric m on (dx, dz).
func Distance(dx, dz float64, m Metric) float64 {
	switch m {
	case EuclideanSquared:
		return dx*dx + dz*dz
	case Manhattan:
		return math.Abs(dx) + math.Abs(dz)
	case Chebyshev:
		return math.Max(math.Abs(dx), math.Abs(dz))
	case Hybrid:
		return (math.Sqrt(dx*dx+dz*dz) + math.Abs(dx) + math.Abs(dz)) / 2
	default:
		return math.Sqrt(dx*dx + dz*dz)
	}
}

func euclidean(dx, dz float64) float64 { return math.Sqrt(dx*dx + dz*dz) }

func euclideanSquared(dx, dz float64) float64 { return dx*dx + dz*dz }

func manhattan(dx, dz float64) float64 { return math.Abs(dx) + math.Abs(dz) }

func chebyshev(dx, dz float64) float64 { return math.Max(math.Abs(dx), math.Abs(dz)) }

func hybrid(dx, dz float64) float64 {
	return (math.Sqrt(dx*dx+dz*dz) + math.Abs(dx) + math.Abs(dz)) / 2
}

// Func returns the function for m. Unknown metrics fall back to Euclidean.
func (m Metric) Func() Func {
	switch m {
	case EuclideanSquared:
		return euclideanSquared
	case Manhattan:
		return manhattan
	case Chebyshev:
		return chebyshev
	case Hybrid:
		return hybrid
	default:
		return euclidean
	}
}
