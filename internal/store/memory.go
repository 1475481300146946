package store

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process ObjectStore used by tests and by development
// deployments that have no bucket configured. Bodies are copied on put and
// get so callers cannot mutate internal buffers.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memObject
}

type memObject struct {
	body    []byte
	etag    string
	modTime time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memObject)}
}

// List returns objects under prefix sorted by key.
func (m *MemoryStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]ObjectInfo, 0)
	for key, obj := range m.objects {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, ObjectInfo{
				Key:     key,
				Size:    int64(len(obj.body)),
				ETag:    obj.etag,
				ModTime: obj.modTime,
			})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// Get returns a copy of the stored body or ErrNotFound.
func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(obj.body))
	copy(cp, obj.body)
	return cp, nil
}

// Put stores a copy of body under key.
func (m *MemoryStore) Put(ctx context.Context, key string, body []byte) (ObjectInfo, error) {
	cp := make([]byte, len(body))
	copy(cp, body)

	sum := md5.Sum(cp)
	obj := memObject{
		body:    cp,
		etag:    hex.EncodeToString(sum[:]),
		modTime: time.Now().UTC(),
	}

	m.mu.Lock()
	m.objects[key] = obj
	m.mu.Unlock()

	return ObjectInfo{
		Key:     key,
		Size:    int64(len(cp)),
		ETag:    obj.etag,
		ModTime: obj.modTime,
	}, nil
}

// Delete removes key if present.
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// Stat returns info for key or ErrNotFound.
func (m *MemoryStore) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return ObjectInfo{}, ErrNotFound
	}
	return ObjectInfo{
		Key:     key,
		Size:    int64(len(obj.body)),
		ETag:    obj.etag,
		ModTime: obj.modTime,
	}, nil
}
