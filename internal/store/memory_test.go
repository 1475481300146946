package store

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"testing"
)

func TestMemoryStorePutGet(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	info, err := m.Put(ctx, "threads/t1/notes.md", []byte("hello"))
	if err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if info.Key != "threads/t1/notes.md" || info.Size != 5 {
		t.Errorf("Put info = %+v", info)
	}
	sum := md5.Sum([]byte("hello"))
	if info.ETag != hex.EncodeToString(sum[:]) {
		t.Errorf("ETag = %q, want md5 of body", info.ETag)
	}

	body, err := m.Get(ctx, "threads/t1/notes.md")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if string(body) != "hello" {
		t.Errorf("Get = %q", body)
	}
}

func TestMemoryStoreNotFound(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	if _, err := m.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
	if _, err := m.Stat(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Stat missing = %v, want ErrNotFound", err)
	}
	// Deleting a missing key is not an error.
	if err := m.Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete missing = %v", err)
	}
}

func TestMemoryStoreList(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	for _, key := range []string{"threads/t1/b.md", "threads/t1/a.md", "threads/t2/c.md"} {
		if _, err := m.Put(ctx, key, []byte("x")); err != nil {
			t.Fatalf("Put %s: %v", key, err)
		}
	}

	infos, err := m.List(ctx, "threads/t1/")
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("List = %d objects, want 2", len(infos))
	}
	// Sorted by key.
	if infos[0].Key != "threads/t1/a.md" || infos[1].Key != "threads/t1/b.md" {
		t.Errorf("List order = %s, %s", infos[0].Key, infos[1].Key)
	}
}

func TestMemoryStoreCopiesBodies(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	body := []byte("original")
	if _, err := m.Put(ctx, "k", body); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	body[0] = 'X' // caller mutation must not leak in

	got, _ := m.Get(ctx, "k")
	if string(got) != "original" {
		t.Errorf("stored body mutated: %q", got)
	}

	got[0] = 'Y' // returned buffer mutation must not leak back
	again, _ := m.Get(ctx, "k")
	if string(again) != "original" {
		t.Errorf("internal buffer mutated via Get result: %q", again)
	}
}

func TestMemoryStoreOverwrite(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	first, _ := m.Put(ctx, "k", []byte("one"))
	second, _ := m.Put(ctx, "k", []byte("two"))
	if first.ETag == second.ETag {
		t.Error("overwrite should change the etag")
	}

	body, _ := m.Get(ctx, "k")
	if string(body) != "two" {
		t.Errorf("Get after overwrite = %q", body)
	}
}
