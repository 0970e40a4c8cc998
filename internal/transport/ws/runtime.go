package ws

import (
	"fmt"
	"sync"

	"worleybiomes.ai/internal/field/biome"
	"worleybiomes.ai/internal/field/tuning"
	"worleybiomes.ai/internal/field/worley"
)

// Runtime is a live-tunable sampler. Queries take the read lock, so a
// configuration change never overlaps a query. The reported record is always
// read back from the sampler itself.
type Runtime struct {
	mu      sync.RWMutex
	sampler *worley.Sampler[string]
	digest  string
}

func NewRuntime(rec tuning.Record) (*Runtime, error) {
	rec.Normalize()
	s, err := rec.Build()
	if err != nil {
		return nil, err
	}
	r := &Runtime{sampler: s}
	r.digest = r.recordLocked().Digest()
	return r, nil
}

// recordLocked captures the installed configuration. The sampler only ever
// holds generators built by tuning.Record.
func (r *Runtime) recordLocked() tuning.Record {
	gen, _ := r.sampler.Generator().(*biome.Generator[string])
	return tuning.FromRuntime(r.sampler.Config(), gen)
}

// Apply validates rec and installs it into the running sampler.
func (r *Runtime) Apply(rec tuning.Record) (string, error) {
	rec.Normalize()
	if err := rec.Validate(); err != nil {
		return "", err
	}
	gen, err := rec.BiomeGenerator()
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sampler.Configure(rec.SamplerConfig())
	r.sampler.SetGenerator(gen)
	r.digest = r.recordLocked().Digest()
	return r.digest, nil
}

func (r *Runtime) Current() (tuning.Record, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recordLocked(), r.digest
}

// FatalQueryError carries a sampler invariant failure recovered at the
// request boundary.
type FatalQueryError struct {
	Reason any
}

func (e *FatalQueryError) Error() string {
	return fmt.Sprintf("sampler invariant violated: %v", e.Reason)
}

func recoverFatal(err *error) {
	if r := recover(); r != nil {
		*err = &FatalQueryError{Reason: r}
	}
}

// Sample evaluates every point against one consistent configuration.
func (r *Runtime) Sample(seed uint64, points [][2]float64) (out [][]worley.Weighted[string], digest string, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defer recoverFatal(&err)

	out = make([][]worley.Weighted[string], len(points))
	for i, p := range points {
		out[i] = r.sampler.Sample(seed, p[0], p[1])
	}
	return out, r.digest, nil
}

func (r *Runtime) SampleGrid(seed uint64, g worley.Grid) (out [][]worley.Weighted[string], digest string, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defer recoverFatal(&err)

	out, err = r.sampler.SampleGrid(seed, g)
	return out, r.digest, err
}
