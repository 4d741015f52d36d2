// Package sqlitestore persists the in-memory store to a single SQLite
// file as JSON snapshots. It suits single-process deployments that want
// durability across restarts without running Postgres.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"torrens/internal/domain"
	"torrens/internal/infra/memstore"
	"torrens/internal/usecase"
)

// Store keeps working state in memory and snapshots the full state to a
// bucketed SQLite table after every successful write. Reads are served
// from memory.
type Store struct {
	*memstore.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

var (
	_ usecase.WorkflowStore = (*Store)(nil)
	_ usecase.AuditStore    = (*Store)(nil)
)

var snapshotBuckets = []string{"entities", "transitions", "entries"}

// Open opens or creates the SQLite file at path and loads any previous
// snapshot into memory.
func Open(path string) (*Store, error) {
	if path == "" {
		path = "torrens.db"
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{Store: memstore.New(), db: db, path: path}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snap memstore.Snapshot
	found := false
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan state: %w", err)
		}
		found = true
		switch bucket {
		case "entities":
			if err := json.Unmarshal(payload, &snap.Entities); err != nil {
				return fmt.Errorf("decode entities: %w", err)
			}
		case "transitions":
			if err := json.Unmarshal(payload, &snap.Transitions); err != nil {
				return fmt.Errorf("decode transitions: %w", err)
			}
		case "entries":
			if err := json.Unmarshal(payload, &snap.Entries); err != nil {
				return fmt.Errorf("decode entries: %w", err)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read state: %w", err)
	}
	if found {
		s.Store.Import(snap)
	}
	return nil
}

func (s *Store) persist() (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.Store.Export()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range snapshotBuckets {
		var data []byte
		switch bucket {
		case "entities":
			data, err = json.Marshal(snap.Entities)
		case "transitions":
			data, err = json.Marshal(snap.Transitions)
		case "entries":
			data, err = json.Marshal(snap.Entries)
		}
		if err != nil {
			retErr = fmt.Errorf("encode %s: %w", bucket, err)
			return retErr
		}
		if _, err = tx.Exec(
			`INSERT INTO state(bucket, payload) VALUES(?, ?)
			 ON CONFLICT(bucket) DO UPDATE SET payload = excluded.payload`,
			bucket, data,
		); err != nil {
			retErr = fmt.Errorf("upsert %s: %w", bucket, err)
			return retErr
		}
	}
	return tx.Commit()
}

// CommitTransition applies the write in memory, then snapshots to disk.
// A snapshot failure is reported to the caller; the next successful
// snapshot carries the full state regardless.
func (s *Store) CommitTransition(ctx context.Context, rec domain.TransitionRecord, expectedVersion int64) (domain.EntityWorkflowRecord, error) {
	updated, err := s.Store.CommitTransition(ctx, rec, expectedVersion)
	if err != nil {
		return updated, err
	}
	if err := s.persist(); err != nil {
		return updated, domain.SystemError("SNAPSHOT_FAILED", err)
	}
	return updated, nil
}

func (s *Store) AppendEntry(ctx context.Context, resourceType, resourceID string, build usecase.AppendFunc) (domain.AuditLogEntry, error) {
	entry, err := s.Store.AppendEntry(ctx, resourceType, resourceID, build)
	if err != nil {
		return entry, err
	}
	if err := s.persist(); err != nil {
		return entry, domain.SystemError("SNAPSHOT_FAILED", err)
	}
	return entry, nil
}

func (s *Store) MarkArchived(ctx context.Context, eventTypes []domain.EventType, olderThan, at time.Time) (int64, error) {
	n, err := s.Store.MarkArchived(ctx, eventTypes, olderThan, at)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, nil
	}
	if err := s.persist(); err != nil {
		return n, domain.SystemError("SNAPSHOT_FAILED", err)
	}
	return n, nil
}

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close closes the underlying SQLite handle. In-memory state stays
// usable but further writes will fail to snapshot.
func (s *Store) Close() error { return s.db.Close() }
