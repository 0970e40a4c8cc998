package worley

import (
	"fmt"
	"runtime"
	"sync"
)

// Grid is a row-major lattice of query points starting at (X0, Z0).
type Grid struct {
	X0, Z0 float64
	Step   float64
	Width  int
	Height int
}

func (g Grid) Validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("grid size must be positive, got %dx%d", g.Width, g.Height)
	}
	if !finite(g.Step) || g.Step <= 0 {
		return fmt.Errorf("grid step must be finite and > 0, got %v", g.Step)
	}
	if !finite(g.X0) || !finite(g.Z0) {
		return fmt.Errorf("grid origin must be finite")
	}
	return nil
}

// Point returns the coordinate of cell i (row-major).
func (g Grid) Point(i int) (float64, float64) {
	col := i % g.Width
	row := i / g.Width
	return g.X0 + float64(col)*g.Step, g.Z0 + float64(row)*g.Step
}

// SampleGrid samples every grid point concurrently. The result equals calling
// Sample for each point in row-major order.
func (s *Sampler[B]) SampleGrid(seed uint64, g Grid) ([][]Weighted[B], error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	total := g.Width * g.Height
	out := make([][]Weighted[B], total)
	k := s.k()
	// one backing array keeps allocations flat for large grids
	backing := make([]Weighted[B], total*k)

	var (
		panicOnce sync.Once
		panicVal  any
	)
	kickOffChunkWorkers(total, func(start, end int) {
		defer func() {
			if r := recover(); r != nil {
				panicOnce.Do(func() { panicVal = r })
			}
		}()
		for i := start; i < end; i++ {
			x, z := g.Point(i)
			buf := backing[i*k : i*k : (i+1)*k]
			out[i] = s.SampleInto(buf, seed, x, z)
		}
	})
	if panicVal != nil {
		panic(panicVal)
	}
	return out, nil
}

func kickOffChunkWorkers(totalItems int, fn func(start, end int)) {
	numWorkers := runtime.GOMAXPROCS(0)

	var wg sync.WaitGroup
	var chunkStart int
	chunkSize := (totalItems / numWorkers) + 1
	for i := 0; i < numWorkers; i++ {
		curChunk := chunkSize
		if rem := totalItems - chunkStart; rem < curChunk {
			curChunk = rem
		}
		if curChunk <= 0 {
			break
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			fn(start, end)
		}(chunkStart, chunkStart+curChunk)
		chunkStart += curChunk
	}
	wg.Wait()
}
