package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftworks/workbench/internal/config"
	"github.com/driftworks/workbench/internal/logging"
	"github.com/driftworks/workbench/internal/maintenance"
	"github.com/driftworks/workbench/internal/sandbox"
	"github.com/driftworks/workbench/internal/server"
	"github.com/driftworks/workbench/internal/skills"
	"github.com/driftworks/workbench/internal/state"
	"github.com/driftworks/workbench/internal/vfs"
)

// ServeCmd creates the serve command
func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the workbench HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(Cfg)
		},
	}
}

func runServe(c *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Infof("[cli] received %v, shutting down", sig)
		cancel()
	}()

	objects := newObjectStore(c.Store)

	states, err := state.Open(c.State.SQLitePath)
	if err != nil {
		return fmt.Errorf("open state db: %w", err)
	}
	defer states.Close()

	local, err := sandbox.NewLocalRuntime(c.Sandbox.RootDir)
	if err != nil {
		return fmt.Errorf("init sandbox runtime: %w", err)
	}

	pool := sandbox.NewPool(local, sandbox.PoolConfig{Size: c.Sandbox.PoolSize})
	pool.Start(ctx)
	defer pool.Stop()

	policy := vfs.DefaultWritePolicy()
	backend := vfs.NewBackend(objects, policy)
	syncer := sandbox.NewSyncer(objects, states, pool, policy)
	manager := sandbox.NewManager(pool, states, syncer, sandbox.ManagerConfig{
		ExecTimeout: time.Duration(c.Sandbox.ExecTimeout) * time.Second,
		IdleTimeout: time.Duration(c.Sandbox.IdleMinutes) * time.Minute,
	})

	loader := skills.NewLoader(c.Skills.CacheDir)
	if err := loader.SyncAll(ctx, objects); err != nil {
		// Serve whatever the cache already has; the maintenance sweep
		// retries the store sync.
		logging.Warnf("[cli] skill sync: %v", err)
		if err := loader.LoadAll(); err != nil {
			logging.Warnf("[cli] skill load: %v", err)
		}
	}
	if err := loader.Watch(ctx); err != nil {
		logging.Warnf("[cli] skill watch: %v", err)
	}
	defer loader.Stop()

	sched, err := maintenance.New(syncer, manager, loader, objects)
	if err != nil {
		return fmt.Errorf("init maintenance: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(c.Server, c.Auth, backend, manager, loader)
	return srv.Start(ctx)
}
