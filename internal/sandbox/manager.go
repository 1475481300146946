package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/driftworks/workbench/internal/logging"
	"github.com/driftworks/workbench/internal/state"
	"github.com/driftworks/workbench/internal/vfs"
)

// ManagerConfig tunes sandbox lifecycle behavior.
type ManagerConfig struct {
	// ExecTimeout bounds each command (default 2m).
	ExecTimeout time.Duration
	// IdleTimeout is how long an unused sandbox survives before the reaper
	// tears it down (default 30m).
	IdleTimeout time.Duration
}

// Manager binds sandboxes to conversation threads. Each thread gets at most
// one sandbox: Acquire reconnects to the live one recorded in state,
// recreates it when it has expired, and seeds it from the object store.
type Manager struct {
	runtime Runtime
	states  *state.Store
	syncer  *Syncer
	cfg     ManagerConfig

	mu      sync.Mutex
	threads map[string]*sync.Mutex // per-thread serialization
}

// NewManager returns a Manager over the given runtime and state store.
func NewManager(runtime Runtime, states *state.Store, syncer *Syncer, cfg ManagerConfig) *Manager {
	if cfg.ExecTimeout <= 0 {
		cfg.ExecTimeout = 2 * time.Minute
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	return &Manager{
		runtime: runtime,
		states:  states,
		syncer:  syncer,
		cfg:     cfg,
		threads: make(map[string]*sync.Mutex),
	}
}

func (m *Manager) threadLock(threadID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.threads[threadID]
	if !ok {
		lock = &sync.Mutex{}
		m.threads[threadID] = lock
	}
	return lock
}

// Acquire finds or creates the sandbox for scope's thread, pulls the latest
// store contents into it, and returns it. Concurrent acquires for the same
// thread are serialized.
func (m *Manager) Acquire(ctx context.Context, scope vfs.Scope) (Info, error) {
	if scope.ThreadID == "" {
		return Info{}, fmt.Errorf("sandbox requires a thread id")
	}

	lock := m.threadLock(scope.ThreadID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now().UTC()

	rec, err := m.states.GetSandbox(scope.ThreadID)
	if err != nil {
		return Info{}, err
	}
	if rec != nil {
		if m.runtime.Alive(ctx, rec.SandboxID) {
			if err := m.states.TouchSandbox(scope.ThreadID, now); err != nil {
				return Info{}, err
			}
			info := Info{ID: rec.SandboxID, Workdir: rec.Workdir}
			if err := m.syncer.Pull(ctx, scope, info.ID); err != nil {
				return Info{}, fmt.Errorf("refresh sandbox: %w", err)
			}
			return info, nil
		}
		// Recorded sandbox expired out from under us; forget it and its
		// journal before creating a replacement.
		logging.Infof("[sandbox] recorded sandbox %s for thread %s is gone, recreating", rec.SandboxID, scope.ThreadID)
		if err := m.states.DeleteSandbox(scope.ThreadID); err != nil {
			return Info{}, err
		}
		if err := m.states.DeleteSyncForThread(scope.ThreadID); err != nil {
			return Info{}, err
		}
	}

	info, err := m.runtime.Create(ctx)
	if err != nil {
		return Info{}, fmt.Errorf("create sandbox: %w", err)
	}
	if err := m.states.PutSandbox(state.SandboxRecord{
		ThreadID:   scope.ThreadID,
		SandboxID:  info.ID,
		Workdir:    info.Workdir,
		CreatedAt:  now,
		LastUsedAt: now,
	}); err != nil {
		return Info{}, err
	}

	if err := m.syncer.Pull(ctx, scope, info.ID); err != nil {
		return Info{}, fmt.Errorf("seed sandbox: %w", err)
	}
	logging.Infof("[sandbox] created %s for thread %s", info.ID, scope.ThreadID)
	return info, nil
}

// Execute runs a command in the thread's sandbox: acquire (which pulls),
// exec, then push local edits back to the store.
func (m *Manager) Execute(ctx context.Context, scope vfs.Scope, command string) (ExecResult, error) {
	info, err := m.Acquire(ctx, scope)
	if err != nil {
		return ExecResult{}, err
	}

	result, err := m.runtime.Exec(ctx, info.ID, command, m.cfg.ExecTimeout)
	if err != nil {
		return result, err
	}

	if err := m.syncer.Push(ctx, scope, info.ID); err != nil {
		// The edit journal has the failed entries; the reconcile sweep
		// retries them.
		logging.Warnf("[sandbox] push after exec failed for thread %s: %v", scope.ThreadID, err)
	}
	_ = m.states.TouchSandbox(scope.ThreadID, time.Now().UTC())
	return result, nil
}

// Stream runs a command and returns its output lines as they appear. The
// returned finish function pushes local edits back to the store and must be
// called after the scanner is drained.
func (m *Manager) Stream(ctx context.Context, scope vfs.Scope, command string) (LineScanner, func() error, error) {
	info, err := m.Acquire(ctx, scope)
	if err != nil {
		return nil, nil, err
	}

	sc, err := m.runtime.ExecStream(ctx, info.ID, command)
	if err != nil {
		return nil, nil, err
	}

	finish := func() error {
		defer m.states.TouchSandbox(scope.ThreadID, time.Now().UTC())
		return m.syncer.Push(ctx, scope, info.ID)
	}
	return sc, finish, nil
}

// Release pushes pending edits, destroys the thread's sandbox and forgets
// its state.
func (m *Manager) Release(ctx context.Context, scope vfs.Scope) error {
	lock := m.threadLock(scope.ThreadID)
	lock.Lock()
	defer lock.Unlock()

	rec, err := m.states.GetSandbox(scope.ThreadID)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}

	if m.runtime.Alive(ctx, rec.SandboxID) {
		if err := m.syncer.Push(ctx, scope, rec.SandboxID); err != nil {
			logging.Warnf("[sandbox] final push for thread %s failed: %v", scope.ThreadID, err)
		}
		if err := m.runtime.Destroy(ctx, rec.SandboxID); err != nil {
			return fmt.Errorf("destroy sandbox %s: %w", rec.SandboxID, err)
		}
	}
	if err := m.states.DeleteSandbox(scope.ThreadID); err != nil {
		return err
	}
	return m.states.DeleteSyncForThread(scope.ThreadID)
}

// ReapIdle releases every sandbox whose last use is older than the idle
// timeout. Called periodically by the maintenance scheduler.
func (m *Manager) ReapIdle(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-m.cfg.IdleTimeout)
	recs, err := m.states.ListIdleSandboxes(cutoff)
	if err != nil {
		logging.Errorf("[sandbox] reaper: %v", err)
		return
	}
	for _, rec := range recs {
		if m.hasDirtyEdits(rec.ThreadID) {
			// Destroying the sandbox now would lose edits the store has not
			// accepted yet; leave it for the reconcile sweep to drain first.
			logging.Infof("[sandbox] not reaping %s (thread %s): unpushed edits pending", rec.SandboxID, rec.ThreadID)
			continue
		}
		logging.Infof("[sandbox] reaping idle sandbox %s (thread %s)", rec.SandboxID, rec.ThreadID)
		if err := m.Release(ctx, vfs.Scope{ThreadID: rec.ThreadID}); err != nil {
			logging.Warnf("[sandbox] reap %s: %v", rec.SandboxID, err)
		}
	}
}

func (m *Manager) hasDirtyEdits(threadID string) bool {
	journal, err := m.states.ListSyncForThread(threadID)
	if err != nil {
		logging.Warnf("[sandbox] reaper journal check for thread %s: %v", threadID, err)
		return true // treat an unreadable journal as pending
	}
	for _, e := range journal {
		if e.Dirty {
			return true
		}
	}
	return false
}
