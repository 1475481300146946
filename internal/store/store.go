// Package store provides the object-store abstraction the workspace
// filesystem is built on: a flat key/value namespace with list, get, put,
// delete and stat. Implementations exist for S3-compatible services and
// for in-process memory (tests, development).
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("object not found")

// ObjectInfo describes a stored object without its body.
type ObjectInfo struct {
	Key     string
	Size    int64
	ETag    string
	ModTime time.Time
}

// ObjectStore is the durable backend for workspace files. Keys are
// slash-separated paths with no leading slash (e.g. "threads/t1/notes.md").
type ObjectStore interface {
	// List returns info for every object whose key starts with prefix,
	// sorted by key.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Get returns the object body, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores the body under key, overwriting any existing object, and
	// returns the resulting object info.
	Put(ctx context.Context, key string, body []byte) (ObjectInfo, error)

	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Stat returns info for a single key, or ErrNotFound.
	Stat(ctx context.Context, key string) (ObjectInfo, error)
}
