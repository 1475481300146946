package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SandboxRecord binds a thread to its live sandbox.
type SandboxRecord struct {
	ThreadID   string
	SandboxID  string
	Workdir    string
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// SyncRecord tracks the reconcile state of one object-store key that has
// been materialized into a sandbox. Dirty records are local edits that have
// not yet been pushed back to the store.
type SyncRecord struct {
	Key       string
	ThreadID  string
	ETag      string
	Size      int64
	LocalPath string
	Dirty     bool
	SyncedAt  time.Time
}

// Store wraps the state database.
type Store struct {
	db *sql.DB
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetSandbox returns the sandbox bound to threadID, or nil when none is
// recorded.
func (s *Store) GetSandbox(threadID string) (*SandboxRecord, error) {
	row := s.db.QueryRow(
		`SELECT thread_id, sandbox_id, workdir, created_at, last_used_at
		 FROM sandboxes WHERE thread_id = ?`, threadID)

	var rec SandboxRecord
	err := row.Scan(&rec.ThreadID, &rec.SandboxID, &rec.Workdir, &rec.CreatedAt, &rec.LastUsedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sandbox for %s: %w", threadID, err)
	}
	return &rec, nil
}

// PutSandbox records (or replaces) the sandbox binding for a thread.
func (s *Store) PutSandbox(rec SandboxRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO sandboxes (thread_id, sandbox_id, workdir, created_at, last_used_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(thread_id) DO UPDATE SET
		   sandbox_id = excluded.sandbox_id,
		   workdir = excluded.workdir,
		   created_at = excluded.created_at,
		   last_used_at = excluded.last_used_at`,
		rec.ThreadID, rec.SandboxID, rec.Workdir, rec.CreatedAt, rec.LastUsedAt)
	if err != nil {
		return fmt.Errorf("put sandbox for %s: %w", rec.ThreadID, err)
	}
	return nil
}

// TouchSandbox updates the last-used timestamp for a thread's sandbox.
func (s *Store) TouchSandbox(threadID string, at time.Time) error {
	_, err := s.db.Exec(
		`UPDATE sandboxes SET last_used_at = ? WHERE thread_id = ?`, at, threadID)
	if err != nil {
		return fmt.Errorf("touch sandbox for %s: %w", threadID, err)
	}
	return nil
}

// DeleteSandbox removes the binding for a thread.
func (s *Store) DeleteSandbox(threadID string) error {
	_, err := s.db.Exec(`DELETE FROM sandboxes WHERE thread_id = ?`, threadID)
	if err != nil {
		return fmt.Errorf("delete sandbox for %s: %w", threadID, err)
	}
	return nil
}

// ListIdleSandboxes returns bindings whose last use is before the cutoff.
func (s *Store) ListIdleSandboxes(cutoff time.Time) ([]SandboxRecord, error) {
	rows, err := s.db.Query(
		`SELECT thread_id, sandbox_id, workdir, created_at, last_used_at
		 FROM sandboxes WHERE last_used_at < ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list idle sandboxes: %w", err)
	}
	defer rows.Close()

	var recs []SandboxRecord
	for rows.Next() {
		var rec SandboxRecord
		if err := rows.Scan(&rec.ThreadID, &rec.SandboxID, &rec.Workdir, &rec.CreatedAt, &rec.LastUsedAt); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// GetSync returns the sync record for a key, or nil when untracked.
func (s *Store) GetSync(key string) (*SyncRecord, error) {
	row := s.db.QueryRow(
		`SELECT key, thread_id, etag, size, local_path, dirty, synced_at
		 FROM sync_state WHERE key = ?`, key)

	var rec SyncRecord
	var dirty int
	var syncedAt sql.NullTime
	err := row.Scan(&rec.Key, &rec.ThreadID, &rec.ETag, &rec.Size, &rec.LocalPath, &dirty, &syncedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sync state for %s: %w", key, err)
	}
	rec.Dirty = dirty == 1
	if syncedAt.Valid {
		rec.SyncedAt = syncedAt.Time
	}
	return &rec, nil
}

// UpsertSync records the state of a key after a pull or push.
func (s *Store) UpsertSync(rec SyncRecord) error {
	dirty := 0
	if rec.Dirty {
		dirty = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO sync_state (key, thread_id, etag, size, local_path, dirty, synced_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   thread_id = excluded.thread_id,
		   etag = excluded.etag,
		   size = excluded.size,
		   local_path = excluded.local_path,
		   dirty = excluded.dirty,
		   synced_at = excluded.synced_at`,
		rec.Key, rec.ThreadID, rec.ETag, rec.Size, rec.LocalPath, dirty, rec.SyncedAt)
	if err != nil {
		return fmt.Errorf("upsert sync state for %s: %w", rec.Key, err)
	}
	return nil
}

// MarkDirty flags a key as locally modified and not yet pushed.
func (s *Store) MarkDirty(key string) error {
	_, err := s.db.Exec(`UPDATE sync_state SET dirty = 1 WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("mark dirty %s: %w", key, err)
	}
	return nil
}

// ListDirty returns every record awaiting a push, across all threads.
func (s *Store) ListDirty() ([]SyncRecord, error) {
	return s.listSync(`SELECT key, thread_id, etag, size, local_path, dirty, synced_at
		 FROM sync_state WHERE dirty = 1`)
}

// ListSyncForThread returns every record tracked for one thread.
func (s *Store) ListSyncForThread(threadID string) ([]SyncRecord, error) {
	return s.listSync(`SELECT key, thread_id, etag, size, local_path, dirty, synced_at
		 FROM sync_state WHERE thread_id = ?`, threadID)
}

func (s *Store) listSync(query string, args ...any) ([]SyncRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sync state: %w", err)
	}
	defer rows.Close()

	var recs []SyncRecord
	for rows.Next() {
		var rec SyncRecord
		var dirty int
		var syncedAt sql.NullTime
		if err := rows.Scan(&rec.Key, &rec.ThreadID, &rec.ETag, &rec.Size, &rec.LocalPath, &dirty, &syncedAt); err != nil {
			return nil, err
		}
		rec.Dirty = dirty == 1
		if syncedAt.Valid {
			rec.SyncedAt = syncedAt.Time
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// DeleteSyncForThread drops all records for a thread (sandbox teardown).
func (s *Store) DeleteSyncForThread(threadID string) error {
	_, err := s.db.Exec(`DELETE FROM sync_state WHERE thread_id = ?`, threadID)
	if err != nil {
		return fmt.Errorf("delete sync state for %s: %w", threadID, err)
	}
	return nil
}
