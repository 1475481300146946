package vfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/driftworks/workbench/internal/store"
)

var (
	// ErrNoMatch is returned by Edit when old_string is not in the file.
	ErrNoMatch = errors.New("string not found in file")
)

// AmbiguousMatchError is returned by Edit when old_string occurs more than
// once and replace-all was not requested.
type AmbiguousMatchError struct {
	Count int
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("string occurs %d times; narrow the match or replace all", e.Count)
}

// Entry is one row of a directory listing.
type Entry struct {
	Path    string    `json:"path"` // virtual path
	Dir     bool      `json:"dir"`
	Size    int64     `json:"size,omitempty"`
	ModTime time.Time `json:"mod_time,omitzero"`
}

// Match is one grep hit.
type Match struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// GrepOptions controls a Grep call.
type GrepOptions struct {
	Pattern         string // regular expression, required
	Path            string // virtual directory or file to search, default "/"
	Glob            string // base-name filter, e.g. "*.md"
	CaseInsensitive bool
	Limit           int // max matches, default 100
}

// maxGrepFileSize skips objects larger than this during search.
const maxGrepFileSize = 4 << 20

// Backend is the virtual-filesystem adapter exposed to the agent tools and
// the HTTP API. Every operation takes the caller's Scope; the backend holds
// no per-thread state of its own.
type Backend struct {
	store  store.ObjectStore
	policy WritePolicy
}

// NewBackend returns a Backend over the given object store with the given
// write policy.
func NewBackend(s store.ObjectStore, policy WritePolicy) *Backend {
	return &Backend{store: s, policy: policy}
}

// Ls lists the immediate children of a virtual directory. The root lists
// the mount points. Directories are synthesized from key structure: object
// stores have no real directories.
func (b *Backend) Ls(ctx context.Context, scope Scope, vpath string) ([]Entry, error) {
	mount, rel, err := Split(vpath)
	if errors.Is(err, ErrIsRoot) {
		entries := make([]Entry, 0, len(Mounts()))
		for _, m := range Mounts() {
			entries = append(entries, Entry{Path: "/" + m, Dir: true})
		}
		return entries, nil
	}
	if err != nil {
		return nil, err
	}

	prefix, err := scope.Key(mount, rel)
	if err != nil {
		return nil, err
	}
	prefix += "/"

	infos, err := b.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	dir := "/" + mount
	if rel != "" {
		dir += "/" + rel
	}

	seen := make(map[string]bool)
	var entries []Entry
	for _, info := range infos {
		rest := strings.TrimPrefix(info.Key, prefix)
		if rest == "" {
			continue
		}
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			// Descendant of a subdirectory: emit the subdirectory once.
			name := rest[:i]
			if !seen[name] {
				seen[name] = true
				entries = append(entries, Entry{Path: dir + "/" + name, Dir: true})
			}
			continue
		}
		entries = append(entries, Entry{
			Path:    dir + "/" + rest,
			Size:    info.Size,
			ModTime: info.ModTime,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// Tree lists every file under a virtual directory (or the whole scope for
// "/"), recursively.
func (b *Backend) Tree(ctx context.Context, scope Scope, vpath string) ([]Entry, error) {
	mount, rel, err := Split(vpath)
	if errors.Is(err, ErrIsRoot) {
		var all []Entry
		for _, m := range Mounts() {
			sub, err := b.Tree(ctx, scope, "/"+m)
			if err != nil {
				return nil, err
			}
			all = append(all, sub...)
		}
		return all, nil
	}
	if err != nil {
		return nil, err
	}

	prefix, err := scope.Key(mount, rel)
	if err != nil {
		return nil, err
	}
	prefix += "/"

	infos, err := b.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		vp, ok := scope.VirtualPath(info.Key)
		if !ok {
			continue
		}
		entries = append(entries, Entry{Path: vp, Size: info.Size, ModTime: info.ModTime})
	}
	return entries, nil
}

// Stat returns the entry for a single file.
func (b *Backend) Stat(ctx context.Context, scope Scope, vpath string) (Entry, error) {
	key, err := scope.KeyFor(vpath)
	if err != nil {
		return Entry{}, err
	}
	info, err := b.store.Stat(ctx, key)
	if err != nil {
		return Entry{}, err
	}
	vp, _ := scope.VirtualPath(info.Key)
	return Entry{Path: vp, Size: info.Size, ModTime: info.ModTime}, nil
}

// Read returns the full contents of a file.
func (b *Backend) Read(ctx context.Context, scope Scope, vpath string) ([]byte, error) {
	key, err := scope.KeyFor(vpath)
	if err != nil {
		return nil, err
	}
	return b.store.Get(ctx, key)
}

// Write stores content at a virtual path after the write policy allows it.
// With appendTo set, content is appended to the existing file (a missing
// file is treated as empty).
func (b *Backend) Write(ctx context.Context, scope Scope, vpath string, content []byte, appendTo bool) (Entry, error) {
	mount, rel, err := Split(vpath)
	if err != nil {
		return Entry{}, err
	}
	if err := b.policy.CheckWrite(mount, rel); err != nil {
		return Entry{}, err
	}
	key, err := scope.Key(mount, rel)
	if err != nil {
		return Entry{}, err
	}

	if appendTo {
		existing, err := b.store.Get(ctx, key)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return Entry{}, err
		}
		content = append(existing, content...)
	}

	info, err := b.store.Put(ctx, key, content)
	if err != nil {
		return Entry{}, err
	}
	vp, _ := scope.VirtualPath(info.Key)
	return Entry{Path: vp, Size: info.Size, ModTime: info.ModTime}, nil
}

// Edit replaces oldStr with newStr in the file at vpath and returns how many
// occurrences were replaced. Without replaceAll, exactly one occurrence must
// exist: zero returns ErrNoMatch, several return an AmbiguousMatchError so
// the caller can tell the model to disambiguate.
func (b *Backend) Edit(ctx context.Context, scope Scope, vpath, oldStr, newStr string, replaceAll bool) (int, error) {
	mount, rel, err := Split(vpath)
	if err != nil {
		return 0, err
	}
	if err := b.policy.CheckWrite(mount, rel); err != nil {
		return 0, err
	}
	key, err := scope.Key(mount, rel)
	if err != nil {
		return 0, err
	}

	body, err := b.store.Get(ctx, key)
	if err != nil {
		return 0, err
	}

	content := string(body)
	count := strings.Count(content, oldStr)
	switch {
	case count == 0:
		return 0, ErrNoMatch
	case count > 1 && !replaceAll:
		return 0, &AmbiguousMatchError{Count: count}
	}

	var updated string
	if replaceAll {
		updated = strings.ReplaceAll(content, oldStr, newStr)
	} else {
		updated = strings.Replace(content, oldStr, newStr, 1)
	}

	if _, err := b.store.Put(ctx, key, []byte(updated)); err != nil {
		return 0, err
	}
	if replaceAll {
		return count, nil
	}
	return 1, nil
}

// Delete removes a file, subject to the write policy.
func (b *Backend) Delete(ctx context.Context, scope Scope, vpath string) error {
	mount, rel, err := Split(vpath)
	if err != nil {
		return err
	}
	if err := b.policy.CheckWrite(mount, rel); err != nil {
		return err
	}
	key, err := scope.Key(mount, rel)
	if err != nil {
		return err
	}
	if _, err := b.store.Stat(ctx, key); err != nil {
		return err
	}
	return b.store.Delete(ctx, key)
}

// Glob returns files whose virtual path matches pattern, searched under
// base ("/" for everything). Patterns support "**" for any number of path
// segments, otherwise path.Match semantics per segment.
func (b *Backend) Glob(ctx context.Context, scope Scope, base, pattern string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 1000
	}
	entries, err := b.Tree(ctx, scope, base)
	if err != nil {
		return nil, err
	}

	baseDir := path.Clean("/" + strings.TrimSpace(base))

	var matched []Entry
	for _, e := range entries {
		rel := strings.TrimPrefix(strings.TrimPrefix(e.Path, baseDir), "/")
		ok, err := matchGlob(pattern, rel)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, e)
			if len(matched) >= limit {
				break
			}
		}
	}
	return matched, nil
}

// matchGlob matches rel against pattern, where "**" spans path segments.
func matchGlob(pattern, rel string) (bool, error) {
	if !strings.Contains(pattern, "**") {
		ok, err := path.Match(pattern, rel)
		if err != nil {
			return false, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		if ok {
			return true, nil
		}
		// Also try matching the base name, so "*.md" finds nested files.
		return path.Match(pattern, path.Base(rel))
	}

	parts := strings.SplitN(pattern, "**", 2)
	prefix := strings.TrimSuffix(parts[0], "/")
	suffix := strings.TrimPrefix(parts[1], "/")

	if prefix != "" {
		if !strings.HasPrefix(rel, prefix+"/") && rel != prefix {
			return false, nil
		}
		rel = strings.TrimPrefix(strings.TrimPrefix(rel, prefix), "/")
	}
	if suffix == "" {
		return true, nil
	}
	if ok, err := path.Match(suffix, path.Base(rel)); err != nil || ok {
		return ok, err
	}
	return path.Match(suffix, rel)
}

// Grep searches file contents under opts.Path for a regular expression.
// Binary-looking and oversized objects are skipped.
func (b *Backend) Grep(ctx context.Context, scope Scope, opts GrepOptions) ([]Match, error) {
	if opts.Pattern == "" {
		return nil, fmt.Errorf("grep pattern is required")
	}
	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	if opts.Path == "" {
		opts.Path = "/"
	}

	expr := opts.Pattern
	if opts.CaseInsensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}

	// A file path searches just that file; a directory searches the subtree.
	var files []Entry
	if st, err := b.Stat(ctx, scope, opts.Path); err == nil {
		files = []Entry{st}
	} else {
		files, err = b.Tree(ctx, scope, opts.Path)
		if err != nil {
			return nil, err
		}
	}

	var matches []Match
	for _, f := range files {
		if len(matches) >= opts.Limit {
			break
		}
		if f.Size > maxGrepFileSize {
			continue
		}
		if opts.Glob != "" {
			ok, err := path.Match(opts.Glob, path.Base(f.Path))
			if err != nil {
				return nil, fmt.Errorf("invalid glob %q: %w", opts.Glob, err)
			}
			if !ok {
				continue
			}
		}

		body, err := b.Read(ctx, scope, f.Path)
		if err != nil {
			continue
		}
		if bytes.IndexByte(body, 0) >= 0 {
			continue
		}

		for i, line := range strings.Split(string(body), "\n") {
			if len(matches) >= opts.Limit {
				break
			}
			if re.MatchString(line) {
				if len(line) > 500 {
					line = line[:500] + "..."
				}
				matches = append(matches, Match{Path: f.Path, Line: i + 1, Text: line})
			}
		}
	}
	return matches, nil
}
