package presetkv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"worleybiomes.ai/internal/field/tuning"
	"worleybiomes.ai/internal/persistence/preset"
)

const keyPrefix = "preset/"

// LevelStore keeps presets in a leveldb directory, one key per name.
type LevelStore struct {
	db *leveldb.DB
}

var _ preset.Store = (*LevelStore)(nil)

type entry struct {
	Header preset.Header   `json:"header"`
	Config json.RawMessage `json:"config"`
}

func Open(dir string) (*LevelStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("empty db path")
	}
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return &LevelStore{db: db}, nil
}

func key(name string) []byte { return []byte(keyPrefix + name) }

func (s *LevelStore) Close() error { return s.db.Close() }

func (s *LevelStore) Save(_ context.Context, p preset.Preset) error {
	if err := preset.ValidateName(p.Header.Name); err != nil {
		return err
	}
	body, err := p.Config.EncodeJSON()
	if err != nil {
		return err
	}
	b, err := json.Marshal(entry{Header: p.Header, Config: body})
	if err != nil {
		return err
	}
	if err := s.db.Put(key(p.Header.Name), b, nil); err != nil {
		return fmt.Errorf("save preset %s: %w", p.Header.Name, err)
	}
	return nil
}

func decodeEntry(b []byte) (entry, error) {
	var e entry
	if err := json.Unmarshal(b, &e); err != nil {
		return e, err
	}
	return e, nil
}

func (s *LevelStore) Load(_ context.Context, name string) (preset.Preset, error) {
	var p preset.Preset
	b, err := s.db.Get(key(name), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return p, fmt.Errorf("%w: %s", preset.ErrNotFound, name)
		}
		return p, err
	}
	e, err := decodeEntry(b)
	if err != nil {
		return p, fmt.Errorf("preset %s: %w", name, err)
	}
	rec, err := tuning.DecodeJSON(e.Config)
	if err != nil {
		return p, fmt.Errorf("preset %s: %w", name, err)
	}
	p.Header = e.Header
	p.Config = rec
	return p, nil
}

// List returns presets in name order (leveldb keys are sorted).
func (s *LevelStore) List(_ context.Context) ([]preset.Info, error) {
	it := s.db.NewIterator(util.BytesPrefix([]byte(keyPrefix)), nil)
	defer it.Release()

	var out []preset.Info
	for it.Next() {
		e, err := decodeEntry(it.Value())
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", it.Key(), err)
		}
		out = append(out, preset.Info{Header: e.Header, Size: len(e.Config)})
	}
	return out, it.Error()
}

func (s *LevelStore) Delete(_ context.Context, name string) error {
	ok, err := s.db.Has(key(name), nil)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", preset.ErrNotFound, name)
	}
	return s.db.Delete(key(name), nil)
}
