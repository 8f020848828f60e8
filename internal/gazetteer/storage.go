package gazetteer

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no payload exists for the requested version.
var ErrNotFound = eris.New("gazetteer: payload not found")

// Storage is the pluggable catalog persistence backend.
type Storage interface {
	Load(ctx context.Context, version string) (*Payload, error)
	Save(ctx context.Context, version string, payload *Payload) error
}

// SQLiteStorage persists catalog payloads in a SQLite database, one row per
// version.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (or creates) the catalog database at dsn.
func NewSQLiteStorage(dsn string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "gazetteer: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "gazetteer: exec %s", pragma)
		}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS catalog_payloads (
			version    TEXT PRIMARY KEY,
			payload    TEXT NOT NULL,
			checksum   TEXT NOT NULL,
			saved_at   DATETIME NOT NULL DEFAULT (datetime('now'))
		)`)
	if err != nil {
		db.Close()
		return nil, eris.Wrap(err, "gazetteer: create catalog table")
	}
	return &SQLiteStorage{db: db}, nil
}

// Load implements Storage.
func (s *SQLiteStorage) Load(ctx context.Context, version string) (*Payload, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM catalog_payloads WHERE version = ?`, version,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "gazetteer: load payload %s", version)
	}

	var payload Payload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, eris.Wrapf(err, "gazetteer: decode payload %s", version)
	}
	return &payload, nil
}

// Save implements Storage. Empty payloads are skipped rather than clobbering
// a previously saved snapshot.
func (s *SQLiteStorage) Save(ctx context.Context, version string, payload *Payload) error {
	if payload == nil || len(payload.Data) == 0 {
		return nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrapf(err, "gazetteer: encode payload %s", version)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO catalog_payloads (version, payload, checksum, saved_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (version) DO UPDATE SET
			payload = excluded.payload,
			checksum = excluded.checksum,
			saved_at = excluded.saved_at`,
		version, string(raw), payload.Metadata.Checksum, time.Now().UTC(),
	)
	return eris.Wrapf(err, "gazetteer: save payload %s", version)
}

// Close closes the underlying database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// MemoryStorage is an in-memory Storage used in tests and single-run tools.
type MemoryStorage struct {
	mu       sync.RWMutex
	payloads map[string]*Payload
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{payloads: make(map[string]*Payload)}
}

// Load implements Storage.
func (m *MemoryStorage) Load(_ context.Context, version string) (*Payload, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	payload, ok := m.payloads[version]
	if !ok {
		return nil, ErrNotFound
	}
	return payload, nil
}

// Save implements Storage.
func (m *MemoryStorage) Save(_ context.Context, version string, payload *Payload) error {
	if payload == nil || len(payload.Data) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads[version] = payload
	return nil
}
