package sandbox

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/driftworks/workbench/internal/logging"
	"github.com/driftworks/workbench/internal/state"
	"github.com/driftworks/workbench/internal/store"
	"github.com/driftworks/workbench/internal/vfs"
)

// Syncer reconciles a sandbox's local files with the object store. Files are
// laid out inside the sandbox at their virtual path without the leading
// slash (workspace/notes.md, skills/review/SKILL.md, ...).
//
// Pull materializes store objects into the sandbox; Push writes local edits
// back, gated by the write policy. Outcomes are journaled in the state
// database so a restarted process can finish interrupted pushes.
type Syncer struct {
	objects store.ObjectStore
	states  *state.Store
	runtime Runtime
	policy  vfs.WritePolicy
}

// NewSyncer returns a Syncer over the given collaborators.
func NewSyncer(objects store.ObjectStore, states *state.Store, runtime Runtime, policy vfs.WritePolicy) *Syncer {
	return &Syncer{objects: objects, states: states, runtime: runtime, policy: policy}
}

// Pull downloads every object visible to scope into the sandbox. Objects
// whose journaled ETag already matches are skipped, and files with unpushed
// local edits are never overwritten.
func (s *Syncer) Pull(ctx context.Context, scope vfs.Scope, sandboxID string) error {
	for _, mount := range vfs.Mounts() {
		prefix, err := scope.Prefix(mount)
		if err != nil {
			// Mount not addressable with this scope (e.g. no user id);
			// nothing to materialize.
			continue
		}
		infos, err := s.objects.List(ctx, prefix)
		if err != nil {
			return fmt.Errorf("list %s: %w", prefix, err)
		}

		for _, info := range infos {
			vpath, ok := scope.VirtualPath(info.Key)
			if !ok {
				continue
			}
			rel := strings.TrimPrefix(vpath, "/")

			rec, err := s.states.GetSync(info.Key)
			if err != nil {
				return err
			}
			if rec != nil && rec.Dirty {
				logging.Debugf("[sync] keeping local edit of %s (push pending)", vpath)
				continue
			}
			if rec != nil && rec.ETag == info.ETag && s.localMatches(ctx, sandboxID, rel, rec) {
				continue
			}

			body, err := s.objects.Get(ctx, info.Key)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					continue // deleted between list and get
				}
				return fmt.Errorf("get %s: %w", info.Key, err)
			}
			if err := s.runtime.WriteFile(ctx, sandboxID, rel, body); err != nil {
				return fmt.Errorf("materialize %s: %w", vpath, err)
			}

			if err := s.states.UpsertSync(state.SyncRecord{
				Key:       info.Key,
				ThreadID:  scope.ThreadID,
				ETag:      contentETag(body),
				Size:      int64(len(body)),
				LocalPath: rel,
				SyncedAt:  time.Now().UTC(),
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// localMatches reports whether the sandbox copy of rel still has the
// journaled content hash.
func (s *Syncer) localMatches(ctx context.Context, sandboxID, rel string, rec *state.SyncRecord) bool {
	body, err := s.runtime.ReadFile(ctx, sandboxID, rel)
	if err != nil {
		return false
	}
	return contentETag(body) == rec.ETag
}

// Push uploads changed sandbox files back to the object store. Files the
// write policy rejects stay local-only. A failed upload is journaled dirty
// so ReconcileDirty can retry it later (including after a restart).
func (s *Syncer) Push(ctx context.Context, scope vfs.Scope, sandboxID string) error {
	var firstErr error
	for _, mount := range vfs.Mounts() {
		files, err := s.runtime.ListFiles(ctx, sandboxID, mount)
		if err != nil {
			return fmt.Errorf("list sandbox files under %s: %w", mount, err)
		}

		for _, f := range files {
			vpath := "/" + f.Path
			m, rel, err := vfs.Split(vpath)
			if err != nil {
				continue
			}
			if err := s.policy.CheckWrite(m, rel); err != nil {
				logging.Debugf("[sync] not pushing %s: %v", vpath, err)
				continue
			}
			key, err := scope.Key(m, rel)
			if err != nil {
				continue
			}

			body, err := s.runtime.ReadFile(ctx, sandboxID, f.Path)
			if err != nil {
				continue
			}
			etag := contentETag(body)

			rec, err := s.states.GetSync(key)
			if err != nil {
				return err
			}
			if rec != nil && rec.ETag == etag && !rec.Dirty {
				continue // unchanged since last sync
			}

			newRec := state.SyncRecord{
				Key:       key,
				ThreadID:  scope.ThreadID,
				ETag:      etag,
				Size:      int64(len(body)),
				LocalPath: f.Path,
				SyncedAt:  time.Now().UTC(),
			}

			if _, err := s.objects.Put(ctx, key, body); err != nil {
				logging.Warnf("[sync] push %s failed, journaling for retry: %v", vpath, err)
				if firstErr == nil {
					firstErr = err
				}
				if rec != nil {
					// Already journaled from an earlier sync; flagging is
					// enough, the retry re-reads the local file.
					if err := s.states.MarkDirty(key); err != nil {
						return err
					}
					continue
				}
				newRec.Dirty = true
			}
			if err := s.states.UpsertSync(newRec); err != nil {
				return err
			}
		}
	}
	return firstErr
}

// ReconcileDirty retries every journaled push that has not completed yet.
// It is called at startup and periodically by the maintenance scheduler, so
// local edits survive process restarts until they reach durable storage.
func (s *Syncer) ReconcileDirty(ctx context.Context) (pushed int, err error) {
	dirty, err := s.states.ListDirty()
	if err != nil {
		return 0, err
	}

	for _, rec := range dirty {
		sb, err := s.states.GetSandbox(rec.ThreadID)
		if err != nil {
			return pushed, err
		}
		if sb == nil || !s.runtime.Alive(ctx, sb.SandboxID) {
			logging.Warnf("[sync] dropping stale dirty entry %s: sandbox gone", rec.Key)
			rec.Dirty = false
			rec.SyncedAt = time.Now().UTC()
			if err := s.states.UpsertSync(rec); err != nil {
				return pushed, err
			}
			continue
		}

		body, err := s.runtime.ReadFile(ctx, sb.SandboxID, rec.LocalPath)
		if err != nil {
			logging.Warnf("[sync] dirty file %s unreadable: %v", rec.LocalPath, err)
			continue
		}
		if _, err := s.objects.Put(ctx, rec.Key, body); err != nil {
			logging.Warnf("[sync] retry push %s failed: %v", rec.Key, err)
			continue
		}

		rec.ETag = contentETag(body)
		rec.Size = int64(len(body))
		rec.Dirty = false
		rec.SyncedAt = time.Now().UTC()
		if err := s.states.UpsertSync(rec); err != nil {
			return pushed, err
		}
		pushed++
	}
	return pushed, nil
}

// contentETag is the content hash used for change detection. It matches the
// ETag S3 computes for single-part uploads, so journal entries compare
// cleanly against List results.
func contentETag(body []byte) string {
	sum := md5.Sum(body)
	return hex.EncodeToString(sum[:])
}
