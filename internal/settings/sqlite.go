package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);
`

// SQLiteStore keeps the settings record as one row of a key-value table.
type SQLiteStore struct {
	db *sqlx.DB
	mu sync.Mutex
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, eris.Wrap(err, "open sqlite")
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "create schema")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context) (CaseSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var raw string
	err := s.db.GetContext(ctx, &raw, `SELECT value FROM kv WHERE key = ?`, Key)
	if errors.Is(err, sql.ErrNoRows) {
		def := Defaults()
		if err := s.put(ctx, def); err != nil {
			return CaseSettings{}, err
		}
		return def, nil
	}
	if err != nil {
		return CaseSettings{}, eris.Wrap(err, "read settings")
	}
	return decode([]byte(raw))
}

func (s *SQLiteStore) Save(ctx context.Context, cs CaseSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(ctx, cs)
}

func (s *SQLiteStore) put(ctx context.Context, cs CaseSettings) error {
	blob, err := json.Marshal(cs)
	if err != nil {
		return eris.Wrap(err, "encode settings")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		Key, string(blob))
	if err != nil {
		return eris.Wrap(err, "write settings")
	}
	return nil
}

func decode(blob []byte) (CaseSettings, error) {
	var cs CaseSettings
	if err := json.Unmarshal(blob, &cs); err != nil {
		return CaseSettings{}, eris.Wrap(err, "decode settings")
	}
	if cs.Charges == nil {
		cs.Charges = []string{}
	}
	if cs.CaseType == "" {
		cs.CaseType = CaseCriminal
	}
	return cs, nil
}
