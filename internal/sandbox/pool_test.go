package sandbox

import (
	"context"
	"testing"
	"time"
)

func TestPoolWarmsAndClaims(t *testing.T) {
	r := testRuntime(t)
	p := NewPool(r, PoolConfig{Size: 2, RefillInterval: 20 * time.Millisecond})
	ctx := context.Background()

	p.Start(ctx)
	defer p.Stop()

	// The first refill runs synchronously inside the loop start; give it a
	// moment to complete.
	deadline := time.Now().Add(2 * time.Second)
	for p.WarmCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if p.WarmCount() != 2 {
		t.Fatalf("WarmCount = %d, want 2", p.WarmCount())
	}

	info, err := p.Create(ctx)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if !r.Alive(ctx, info.ID) {
		t.Error("claimed sandbox should exist")
	}
	if p.WarmCount() != 1 {
		t.Errorf("WarmCount after claim = %d, want 1", p.WarmCount())
	}

	// Refill loop restores the warm set.
	deadline = time.Now().Add(2 * time.Second)
	for p.WarmCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if p.WarmCount() != 2 {
		t.Errorf("WarmCount after refill = %d, want 2", p.WarmCount())
	}
}

func TestPoolColdCreateWithoutStart(t *testing.T) {
	r := testRuntime(t)
	p := NewPool(r, PoolConfig{Size: 1})
	ctx := context.Background()

	// Never started: no warm sandboxes, Create falls back to the runtime.
	info, err := p.Create(ctx)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if !r.Alive(ctx, info.ID) {
		t.Error("cold-created sandbox should exist")
	}
}

func TestPoolStopDestroysWarm(t *testing.T) {
	r := testRuntime(t)
	p := NewPool(r, PoolConfig{Size: 1, RefillInterval: 20 * time.Millisecond})
	ctx := context.Background()

	p.Start(ctx)
	deadline := time.Now().Add(2 * time.Second)
	for p.WarmCount() < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	warm, ok := p.claim()
	if !ok {
		t.Fatal("expected a warm sandbox")
	}
	// Put it back so Stop owns it.
	p.mu.Lock()
	p.warm = append(p.warm, warm)
	p.mu.Unlock()

	p.Stop()
	if r.Alive(ctx, warm.ID) {
		t.Error("Stop should destroy warm sandboxes")
	}
}
