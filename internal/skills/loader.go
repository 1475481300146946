package skills

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/driftworks/workbench/internal/logging"
	"github.com/driftworks/workbench/internal/store"
)

// Loader keeps the skill libraries parsed and current. Skills are synced
// from the object store into a local cache directory laid out per user
// (dir/{userID}/{skill}/SKILL.md), loaded from there, and hot-reloaded when
// the cache changes. Lookups are always scoped to one user: a caller never
// sees another user's library.
type Loader struct {
	mu      sync.RWMutex
	skills  map[string]*Skill // "{owner}/{name}" -> skill
	dir     string
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
}

// NewLoader creates a loader over the given cache directory.
func NewLoader(dir string) *Loader {
	return &Loader{
		skills: make(map[string]*Skill),
		dir:    dir,
	}
}

// Sync downloads every SKILL.md under the user's store prefix into the
// cache directory, then reloads. Objects other than SKILL.md (supporting
// files in a skill bundle) are cached alongside.
func (l *Loader) Sync(ctx context.Context, objects store.ObjectStore, userID string) error {
	return l.syncPrefix(ctx, objects, "skills/"+userID+"/")
}

// SyncAll downloads every user's skills from the object store. The server
// runs this at startup and periodically so the catalog is populated without
// per-user CLI syncs.
func (l *Loader) SyncAll(ctx context.Context, objects store.ObjectStore) error {
	return l.syncPrefix(ctx, objects, "skills/")
}

func (l *Loader) syncPrefix(ctx context.Context, objects store.ObjectStore, prefix string) error {
	infos, err := objects.List(ctx, prefix)
	if err != nil {
		return fmt.Errorf("list skills: %w", err)
	}

	for _, info := range infos {
		// The cache mirrors the store layout below the skills/ root, so the
		// first path segment is always the owning user.
		rel := strings.TrimPrefix(info.Key, "skills/")
		dst := filepath.Join(l.dir, filepath.FromSlash(rel))

		// Skip unchanged cached files by size; SKILL.md files are small and
		// re-parsed on load regardless.
		if st, err := os.Stat(dst); err == nil && st.Size() == info.Size && path.Base(rel) != SkillFileName {
			continue
		}

		body, err := objects.Get(ctx, info.Key)
		if err != nil {
			return fmt.Errorf("get %s: %w", info.Key, err)
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return fmt.Errorf("create cache dir: %w", err)
		}
		if err := os.WriteFile(dst, body, 0644); err != nil {
			return fmt.Errorf("cache %s: %w", info.Key, err)
		}
	}

	return l.LoadAll()
}

// LoadAll loads every SKILL.md under the cache directory. The directory
// above each skill names its owner:
//
//	skills/
//	├── u1/ticket-triage/SKILL.md
//	└── u2/code-review/SKILL.md
func (l *Loader) LoadAll() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.skills = make(map[string]*Skill)

	if _, err := os.Stat(l.dir); os.IsNotExist(err) {
		return nil // no cache yet, no skills
	}

	err := filepath.Walk(l.dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.EqualFold(filepath.Base(p), SkillFileName) {
			return nil
		}
		if err := l.loadFile(p); err != nil {
			// A malformed skill should not take down the library.
			logging.Warnf("[skills] skipping %s: %v", p, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("load skills: %w", err)
	}

	logging.Infof("[skills] loaded %d skills from %s", len(l.skills), l.dir)
	return nil
}

// loadFile loads a single SKILL.md (caller holds the lock).
func (l *Loader) loadFile(p string) error {
	owner, err := l.ownerOf(p)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return err
	}
	skill, err := Parse(data)
	if err != nil {
		return err
	}
	if skill.Version == "" {
		skill.Version = "1.0.0"
	}
	skill.FilePath = p
	skill.Owner = owner
	if err := skill.Validate(); err != nil {
		return err
	}
	l.skills[skillKey(owner, skill.Name)] = skill
	logging.Debugf("[skills] loaded %s for %s", skill.Name, owner)
	return nil
}

// ownerOf derives the owning user from a cache path: the first directory
// segment under the cache root.
func (l *Loader) ownerOf(p string) (string, error) {
	rel, err := filepath.Rel(l.dir, p)
	if err != nil {
		return "", err
	}
	parts := strings.SplitN(filepath.ToSlash(rel), "/", 2)
	if len(parts) < 2 {
		return "", fmt.Errorf("%s is not inside a user directory", p)
	}
	return parts[0], nil
}

func skillKey(owner, name string) string {
	return owner + "/" + name
}

// Watch starts hot-reloading the cache directory.
func (l *Loader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	l.watcher = watcher

	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	go l.watchLoop(ctx)

	return filepath.Walk(l.dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if err := watcher.Add(p); err != nil {
				logging.Debugf("[skills] cannot watch %s: %v", p, err)
			}
		}
		return nil
	})
}

func (l *Loader) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			l.handleEvent(event)
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			logging.Errorf("[skills] watch error: %v", err)
		}
	}
}

func (l *Loader) handleEvent(event fsnotify.Event) {
	if !strings.EqualFold(filepath.Base(event.Name), SkillFileName) {
		return
	}

	switch {
	case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
		l.mu.Lock()
		if err := l.loadFile(event.Name); err != nil {
			logging.Warnf("[skills] reload %s: %v", event.Name, err)
		}
		l.mu.Unlock()
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		l.mu.Lock()
		for key, skill := range l.skills {
			if skill.FilePath == event.Name {
				delete(l.skills, key)
				logging.Infof("[skills] unloaded %s", key)
				break
			}
		}
		l.mu.Unlock()
	}
}

// Stop ends watching.
func (l *Loader) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	if l.watcher != nil {
		l.watcher.Close()
	}
}

// Get returns one of the user's skills by name.
func (l *Loader) Get(userID, name string) (*Skill, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	skill, ok := l.skills[skillKey(userID, name)]
	return skill, ok
}

// List returns the user's skills sorted by priority (highest first), then
// name.
func (l *Loader) List(userID string) []*Skill {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*Skill
	for _, s := range l.skills {
		if s.Owner == userID {
			out = append(out, s)
		}
	}
	sortSkills(out)
	return out
}

// All returns every loaded skill across users, for operator tooling. Request
// surfaces use List.
func (l *Loader) All() []*Skill {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*Skill, 0, len(l.skills))
	for _, s := range l.skills {
		out = append(out, s)
	}
	sortSkills(out)
	return out
}

func sortSkills(out []*Skill) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Owner < out[j].Owner
	})
}

// Count returns the number of loaded skills across all users.
func (l *Loader) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.skills)
}
