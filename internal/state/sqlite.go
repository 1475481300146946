// Package state persists what must survive a process restart: which sandbox
// is bound to which thread, and which locally edited files have not yet been
// pushed back to the object store.
package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO

	"github.com/driftworks/workbench/internal/logging"
	"github.com/driftworks/workbench/internal/state/migrations"
)

// Open creates (if needed) and migrates the state database at path, and
// returns a Store over it.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}

	// SQLite handles concurrent writers poorly: serialize all access
	// through a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping state database: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		return nil, fmt.Errorf("migrate state database: %w", err)
	}

	logging.Infof("[state] database ready at %s", path)
	return &Store{db: db}, nil
}
