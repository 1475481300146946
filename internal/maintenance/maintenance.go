// Package maintenance runs the periodic background jobs that keep the
// workspace healthy: retrying dirty sync journal entries, tearing down idle
// sandboxes, and refreshing the skill cache from the object store.
package maintenance

import (
	"context"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/driftworks/workbench/internal/logging"
	"github.com/driftworks/workbench/internal/sandbox"
	"github.com/driftworks/workbench/internal/skills"
	"github.com/driftworks/workbench/internal/store"
)

// Schedules for the background jobs. Dirty entries are retried often since
// they represent agent writes not yet durable in the object store; reaping
// and the skill refresh are cheap and can run less frequently.
const (
	reconcileSchedule = "@every 1m"
	reapSchedule      = "@every 5m"
	skillSchedule     = "@every 5m"
)

// Scheduler owns the cron runner for maintenance jobs.
type Scheduler struct {
	cron    *cronlib.Cron
	syncer  *sandbox.Syncer
	manager *sandbox.Manager
	loader  *skills.Loader
	objects store.ObjectStore
}

// New creates a Scheduler. Jobs are registered but not running until Start.
func New(syncer *sandbox.Syncer, manager *sandbox.Manager, loader *skills.Loader, objects store.ObjectStore) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cronlib.New(),
		syncer:  syncer,
		manager: manager,
		loader:  loader,
		objects: objects,
	}

	if _, err := s.cron.AddFunc(reconcileSchedule, s.reconcile); err != nil {
		return nil, err
	}
	if _, err := s.cron.AddFunc(reapSchedule, s.reap); err != nil {
		return nil, err
	}
	if _, err := s.cron.AddFunc(skillSchedule, s.refreshSkills); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins running the scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	logging.Info("[maintenance] scheduler started")
}

// Stop halts the scheduler and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(30 * time.Second):
		logging.Warn("[maintenance] timed out waiting for jobs to finish")
	}
}

func (s *Scheduler) reconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pushed, err := s.syncer.ReconcileDirty(ctx)
	if err != nil {
		logging.Warnf("[maintenance] reconcile: %v", err)
	}
	if pushed > 0 {
		logging.Infof("[maintenance] reconciled %d dirty file(s)", pushed)
	}
}

func (s *Scheduler) reap() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	s.manager.ReapIdle(ctx)
}

// refreshSkills picks up skills uploaded to the object store since the last
// sweep, so the catalog does not depend on operator-driven syncs.
func (s *Scheduler) refreshSkills() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := s.loader.SyncAll(ctx, s.objects); err != nil {
		logging.Warnf("[maintenance] skill refresh: %v", err)
	}
}
