package cli

import (
	"fmt"
	"time"

	"github.com/driftworks/workbench/internal/config"
	"github.com/driftworks/workbench/internal/logging"
	"github.com/driftworks/workbench/internal/sandbox"
	"github.com/driftworks/workbench/internal/state"
	"github.com/driftworks/workbench/internal/store"
	"github.com/driftworks/workbench/internal/vfs"
)

// env bundles the wired components shared by the CLI commands.
type env struct {
	objects store.ObjectStore
	states  *state.Store
	runtime sandbox.Runtime
	syncer  *sandbox.Syncer
	manager *sandbox.Manager
	backend *vfs.Backend
	policy  vfs.WritePolicy
}

// newObjectStore picks the store backend from config: S3 when a bucket is
// configured, in-memory otherwise.
func newObjectStore(cfg config.StoreConfig) store.ObjectStore {
	if cfg.Bucket == "" {
		logging.Warn("[cli] no bucket configured, using in-memory store (data is not persisted)")
		return store.NewMemoryStore()
	}
	return store.NewS3Store(store.S3Config{
		Bucket:       cfg.Bucket,
		Region:       cfg.Region,
		Endpoint:     cfg.Endpoint,
		PathStyle:    cfg.PathStyle,
		AccessKey:    cfg.AccessKey,
		SecretKey:    cfg.SecretKey,
		CreateBucket: cfg.CreateBucket,
	})
}

// buildEnv wires the component graph from configuration. The caller owns
// the returned state store and must Close it.
func buildEnv(c *config.Config) (*env, error) {
	objects := newObjectStore(c.Store)

	states, err := state.Open(c.State.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}

	runtime, err := sandbox.NewLocalRuntime(c.Sandbox.RootDir)
	if err != nil {
		states.Close()
		return nil, fmt.Errorf("init sandbox runtime: %w", err)
	}

	policy := vfs.DefaultWritePolicy()
	syncer := sandbox.NewSyncer(objects, states, runtime, policy)
	manager := sandbox.NewManager(runtime, states, syncer, sandbox.ManagerConfig{
		ExecTimeout: time.Duration(c.Sandbox.ExecTimeout) * time.Second,
		IdleTimeout: time.Duration(c.Sandbox.IdleMinutes) * time.Minute,
	})

	return &env{
		objects: objects,
		states:  states,
		runtime: runtime,
		syncer:  syncer,
		manager: manager,
		backend: vfs.NewBackend(objects, policy),
		policy:  policy,
	}, nil
}
