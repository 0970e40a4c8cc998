package presetdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"worleybiomes.ai/internal/field/tuning"
	"worleybiomes.ai/internal/persistence/preset"
)

// SQLiteStore keeps presets in a single sqlite table keyed by name.
type SQLiteStore struct {
	db *sql.DB
}

var _ preset.Store = (*SQLiteStore)(nil)

func Open(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS presets (
			name TEXT PRIMARY KEY,
			id TEXT NOT NULL,
			version INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			digest TEXT NOT NULL,
			config_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS presets_created ON presets(created_at);`,
		`INSERT OR IGNORE INTO meta(key, value) VALUES ('schema_version', '1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Save(ctx context.Context, p preset.Preset) error {
	if err := preset.ValidateName(p.Header.Name); err != nil {
		return err
	}
	body, err := p.Config.EncodeJSON()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO presets(name,id,version,created_at,digest,config_json)
		VALUES(?,?,?,?,?,?)
		ON CONFLICT(name) DO UPDATE SET
			id=excluded.id,
			version=excluded.version,
			created_at=excluded.created_at,
			digest=excluded.digest,
			config_json=excluded.config_json`,
		p.Header.Name, p.Header.ID, p.Header.Version, p.Header.CreatedAt.Unix(), p.Header.Digest, string(body))
	if err != nil {
		return fmt.Errorf("save preset %s: %w", p.Header.Name, err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, name string) (preset.Preset, error) {
	var (
		p       preset.Preset
		created int64
		body    string
	)
	row := s.db.QueryRowContext(ctx, `SELECT name,id,version,created_at,digest,config_json FROM presets WHERE name=?`, name)
	if err := row.Scan(&p.Header.Name, &p.Header.ID, &p.Header.Version, &created, &p.Header.Digest, &body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, fmt.Errorf("%w: %s", preset.ErrNotFound, name)
		}
		return p, err
	}
	p.Header.CreatedAt = time.Unix(created, 0).UTC()
	rec, err := tuning.DecodeJSON([]byte(body))
	if err != nil {
		return p, fmt.Errorf("preset %s: %w", name, err)
	}
	p.Config = rec
	return p, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]preset.Info, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name,id,version,created_at,digest,length(config_json) FROM presets ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []preset.Info
	for rows.Next() {
		var (
			info    preset.Info
			created int64
		)
		if err := rows.Scan(&info.Name, &info.ID, &info.Version, &created, &info.Digest, &info.Size); err != nil {
			return nil, err
		}
		info.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, info)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM presets WHERE name=?`, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", preset.ErrNotFound, name)
	}
	return nil
}
