package preset

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"worleybiomes.ai/internal/field/tuning"
)

const Version = 1

var ErrNotFound = errors.New("preset not found")

type Header struct {
	Version   int       `json:"version"`
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Digest    string    `json:"digest"`
}

// Preset is a named sampler configuration.
type Preset struct {
	Header Header
	Config tuning.Record
}

type Info struct {
	Header
	Size int
}

// Store persists presets by name. Saving an existing name replaces it.
type Store interface {
	Save(ctx context.Context, p Preset) error
	Load(ctx context.Context, name string) (Preset, error)
	List(ctx context.Context) ([]Info, error)
	Delete(ctx context.Context, name string) error
	Close() error
}

// New stamps a fresh header for rec.
func New(name string, rec tuning.Record) (Preset, error) {
	name = strings.TrimSpace(name)
	if err := ValidateName(name); err != nil {
		return Preset{}, err
	}
	return Preset{
		Header: Header{
			Version:   Version,
			ID:        uuid.New().String(),
			Name:      name,
			CreatedAt: time.Now().UTC().Truncate(time.Second),
			Digest:    rec.Digest(),
		},
		Config: rec,
	}, nil
}

func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("empty preset name")
	}
	if len(name) > 128 {
		return fmt.Errorf("preset name too long")
	}
	if strings.ContainsAny(name, "/\\\n") {
		return fmt.Errorf("preset name %q contains invalid characters", name)
	}
	return nil
}

// Encode writes the zstd stream: one JSON header line, then the config.
func Encode(w io.Writer, p Preset) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(enc)

	hb, err := json.Marshal(p.Header)
	if err != nil {
		_ = enc.Close()
		return err
	}
	body, err := p.Config.EncodeJSON()
	if err != nil {
		_ = enc.Close()
		return err
	}
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if _, err := bw.Write(body); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

// Decode reads a stream written by Encode. The config is schema checked.
func Decode(r io.Reader) (Preset, error) {
	var p Preset
	dec, err := zstd.NewReader(r)
	if err != nil {
		return p, err
	}
	defer dec.Close()

	br := bufio.NewReader(dec)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return p, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &p.Header); err != nil {
		return p, fmt.Errorf("decode header: %w", err)
	}
	if p.Header.Version != Version {
		return p, fmt.Errorf("unsupported preset version %d", p.Header.Version)
	}
	body, err := io.ReadAll(br)
	if err != nil {
		return p, fmt.Errorf("read body: %w", err)
	}
	rec, err := tuning.DecodeJSON(body)
	if err != nil {
		return p, err
	}
	p.Config = rec
	return p, nil
}

func Write(path string, p Preset) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := Encode(f, p); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func Read(path string) (Preset, error) {
	f, err := os.Open(path)
	if err != nil {
		return Preset{}, err
	}
	defer f.Close()
	return Decode(f)
}
