package state

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// KV persists named state blobs. SaveBlobs must write the whole set
// atomically.
type KV interface {
	LoadBlobs(ctx context.Context, names []string) (map[string][]byte, error)
	SaveBlobs(ctx context.Context, blobs map[string][]byte) error
}

type SQLiteKV struct {
	db *sql.DB
}

// NewSQLiteKV wraps a store opened with storage.Open.
func NewSQLiteKV(db *sql.DB) *SQLiteKV {
	return &SQLiteKV{db: db}
}

func (s *SQLiteKV) LoadBlobs(ctx context.Context, names []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(names))
	for _, name := range names {
		var value string
		err := s.db.QueryRowContext(ctx, `SELECT value FROM state_blobs WHERE name = ?`, name).Scan(&value)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load state blob %s: %w", name, err)
		}
		out[name] = []byte(value)
	}
	return out, nil
}

func (s *SQLiteKV) SaveBlobs(ctx context.Context, blobs map[string][]byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save state begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for name, value := range blobs {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO state_blobs(name, value, updated_at_ms)
VALUES(?, ?, ?)
ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at_ms = excluded.updated_at_ms`, name, string(value), now); err != nil {
			return fmt.Errorf("save state blob %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save state commit: %w", err)
	}
	return nil
}

// MemoryKV keeps blobs in process memory. Used by tests and dry runs.
type MemoryKV struct {
	mu    sync.Mutex
	blobs map[string][]byte
	saves int
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{blobs: make(map[string][]byte)}
}

func (m *MemoryKV) LoadBlobs(_ context.Context, names []string) (map[string][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]byte, len(names))
	for _, name := range names {
		if v, ok := m.blobs[name]; ok {
			out[name] = append([]byte(nil), v...)
		}
	}
	return out, nil
}

func (m *MemoryKV) SaveBlobs(_ context.Context, blobs map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, v := range blobs {
		m.blobs[name] = append([]byte(nil), v...)
	}
	m.saves++
	return nil
}

// Saves reports how many times SaveBlobs ran.
func (m *MemoryKV) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
