package tuning

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"worleybiomes.ai/internal/field/biome"
	"worleybiomes.ai/internal/field/distance"
	"worleybiomes.ai/internal/field/warp"
	"worleybiomes.ai/internal/field/worley"
)

//go:embed sampler_config.schema.json
var schemaJSON string

const schemaURL = "https://worleybiomes.ai/schemas/sampler_config.schema.json"

// Record is the persisted form of a sampler configuration. The distance
// function is stored by name only and resolved again on load.
type Record struct {
	Zoom      float64         `json:"zoom" yaml:"zoom"`
	K         int             `json:"k" yaml:"k"`
	Sharpness float64         `json:"sharpness" yaml:"sharpness"`
	Metric    distance.Metric `json:"distance_metric" yaml:"distance_metric"`
	Warp      warp.Config     `json:"warp" yaml:"warp"`
	Generator GeneratorRecord `json:"generator" yaml:"generator"`
}

type GeneratorRecord struct {
	Kind     biome.Kind     `json:"kind" yaml:"kind"`
	Variants []string       `json:"variants,omitempty" yaml:"variants,omitempty"`
	Weights  []WeightRecord `json:"weights,omitempty" yaml:"weights,omitempty"`
}

type WeightRecord struct {
	Biome  string  `json:"biome" yaml:"biome"`
	Weight float64 `json:"weight" yaml:"weight"`
}

func Defaults() Record {
	return Record{
		Zoom:      worley.DefaultZoom,
		K:         3,
		Sharpness: worley.DefaultSharpness,
		Metric:    distance.Euclidean,
		Warp: warp.Config{
			Strength: 0.6,
			Field: warp.NoiseConfig{
				Seed:       0,
				Frequency:  0.7,
				Octaves:    5,
				Gain:       0.6,
				Lacunarity: 2,
				Fractal:    warp.FractalFBM,
				Noise:      warp.Perlin,
			},
		},
		Generator: GeneratorRecord{
			Kind:     biome.KindUniform,
			Variants: []string{"DESERT", "FOREST", "SNOW", "PLAINS"},
		},
	}
}

// Load reads a yaml record. An empty path yields the defaults.
func Load(path string) (Record, error) {
	r := Defaults()
	if strings.TrimSpace(path) == "" {
		r.Normalize()
		return r, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return r, err
	}
	r.Generator = GeneratorRecord{}
	if err := yaml.Unmarshal(b, &r); err != nil {
		return r, fmt.Errorf("sampler.yaml: %w", err)
	}
	if r.Generator.Kind == "" && len(r.Generator.Variants) == 0 && len(r.Generator.Weights) == 0 {
		r.Generator = Defaults().Generator
	}
	r.Normalize()
	if err := r.Validate(); err != nil {
		return r, fmt.Errorf("sampler.yaml: %w", err)
	}
	return r, nil
}

func (r *Record) Normalize() {
	if r == nil {
		return
	}
	cfg := r.SamplerConfig()
	cfg.Normalize()
	r.Zoom, r.K, r.Metric = cfg.Zoom, cfg.K, cfg.Metric

	g := &r.Generator
	for i := range g.Variants {
		g.Variants[i] = strings.TrimSpace(g.Variants[i])
	}
	for i := range g.Weights {
		g.Weights[i].Biome = strings.TrimSpace(g.Weights[i].Biome)
	}
	if strings.TrimSpace(string(g.Kind)) == "" {
		if len(g.Weights) > 0 {
			g.Kind = biome.KindWeighted
		} else {
			g.Kind = biome.KindUniform
		}
	}
	if k, err := biome.ParseKind(string(g.Kind)); err == nil {
		g.Kind = k
	}
}

func (r Record) Validate() error {
	if err := r.SamplerConfig().Validate(); err != nil {
		return err
	}
	_, err := r.BiomeGenerator()
	return err
}

func (r Record) SamplerConfig() worley.Config {
	return worley.Config{
		Zoom:      r.Zoom,
		K:         r.K,
		Sharpness: r.Sharpness,
		Metric:    r.Metric,
		Warp:      r.Warp,
	}
}

// BiomeGenerator builds the generator described by the record. Biomes are
// identified by name.
func (r Record) BiomeGenerator() (*biome.Generator[string], error) {
	g := r.Generator
	kind, err := biome.ParseKind(string(g.Kind))
	if err != nil {
		return nil, err
	}
	switch kind {
	case biome.KindWeighted:
		entries := make([]biome.Entry[string], 0, len(g.Weights))
		for i, w := range g.Weights {
			if w.Biome == "" {
				return nil, fmt.Errorf("generator weights[%d] has empty biome", i)
			}
			entries = append(entries, biome.Entry[string]{Biome: w.Biome, Weight: w.Weight})
		}
		return biome.Weighted(entries...)
	default:
		for i, v := range g.Variants {
			if v == "" {
				return nil, fmt.Errorf("generator variants[%d] is empty", i)
			}
		}
		return biome.Uniform(g.Variants...)
	}
}

// Build validates the record and returns a ready sampler.
func (r Record) Build() (*worley.Sampler[string], error) {
	gen, err := r.BiomeGenerator()
	if err != nil {
		return nil, err
	}
	return worley.New[string](r.SamplerConfig(), gen)
}

// FromRuntime captures the live configuration of a sampler and generator.
func FromRuntime(cfg worley.Config, gen *biome.Generator[string]) Record {
	r := Record{
		Zoom:      cfg.Zoom,
		K:         cfg.K,
		Sharpness: cfg.Sharpness,
		Metric:    cfg.Metric,
		Warp:      cfg.Warp,
		Generator: GeneratorRecord{Kind: gen.Kind()},
	}
	if gen.Kind() == biome.KindWeighted {
		for _, e := range gen.Entries() {
			r.Generator.Weights = append(r.Generator.Weights, WeightRecord{Biome: e.Biome, Weight: e.Weight})
		}
	} else {
		r.Generator.Variants = gen.Variants()
	}
	return r
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

// Schema returns the compiled JSON schema for Record.
func Schema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString(schemaURL, schemaJSON)
	})
	return schema, schemaErr
}

// DecodeJSON validates b against the schema and decodes it.
func DecodeJSON(b []byte) (Record, error) {
	var r Record
	s, err := Schema()
	if err != nil {
		return r, fmt.Errorf("compile schema: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return r, fmt.Errorf("decode config: %w", err)
	}
	if err := s.Validate(raw); err != nil {
		return r, fmt.Errorf("config schema: %w", err)
	}
	if err := json.Unmarshal(b, &r); err != nil {
		return r, fmt.Errorf("decode config: %w", err)
	}
	r.Normalize()
	if err := r.Validate(); err != nil {
		return r, err
	}
	return r, nil
}

func (r Record) EncodeJSON() ([]byte, error) {
	if !finiteRecord(r) {
		return nil, fmt.Errorf("config has non-finite values")
	}
	return json.Marshal(r)
}

// Digest identifies a record by the sha256 of its JSON encoding.
func (r Record) Digest() string {
	b, err := r.EncodeJSON()
	if err != nil {
		return ""
	}
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

func finiteRecord(r Record) bool {
	for _, v := range []float64{r.Zoom, r.Sharpness, float64(r.Warp.Strength), float64(r.Warp.Field.Frequency), float64(r.Warp.Field.Gain), float64(r.Warp.Field.Lacunarity)} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
