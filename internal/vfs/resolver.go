// Package vfs implements the virtual workspace filesystem the agent tools
// operate on. Agent-visible paths live under a small set of mount points
// (/workspace, /skills, /artifacts); the resolver maps them to object-store
// keys scoped to the current thread and user, and back again for listings.
package vfs

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// Mount names. These are the only top-level directories the agent sees.
const (
	MountWorkspace = "workspace"
	MountSkills    = "skills"
	MountArtifacts = "artifacts"
)

var (
	// ErrUnknownMount is returned for paths outside the mount table.
	ErrUnknownMount = errors.New("unknown mount")

	// ErrTraversal is returned for paths that escape their mount.
	ErrTraversal = errors.New("path escapes mount")

	// ErrIsRoot is returned when an operation needs a file path but got "/".
	ErrIsRoot = errors.New("path is the filesystem root")
)

// Scope identifies whose workspace a path resolves into. ThreadID scopes
// /workspace and /artifacts; UserID scopes /skills.
type Scope struct {
	ThreadID string
	UserID   string
}

// Mounts lists the mount points in display order.
func Mounts() []string {
	return []string{MountWorkspace, MountSkills, MountArtifacts}
}

// Split cleans a virtual path and splits it into (mount, relpath). The
// relpath is empty for the mount root. Traversal outside the mount and
// unknown mounts are rejected.
func Split(vpath string) (mount, rel string, err error) {
	cleaned := path.Clean("/" + strings.TrimSpace(vpath))
	if cleaned == "/" {
		return "", "", ErrIsRoot
	}
	// path.Clean resolves ".." segments; anything left means the path tried
	// to climb above the root.
	if strings.Contains(cleaned, "..") {
		return "", "", fmt.Errorf("%w: %s", ErrTraversal, vpath)
	}

	parts := strings.SplitN(strings.TrimPrefix(cleaned, "/"), "/", 2)
	mount = parts[0]
	if !validMount(mount) {
		return "", "", fmt.Errorf("%w: /%s", ErrUnknownMount, mount)
	}
	if len(parts) == 2 {
		rel = parts[1]
	}
	return mount, rel, nil
}

func validMount(name string) bool {
	switch name {
	case MountWorkspace, MountSkills, MountArtifacts:
		return true
	}
	return false
}

// Key maps a (mount, relpath) pair to its object-store key for the scope.
//
//	/workspace/x → threads/{thread}/x
//	/artifacts/x → threads/{thread}/artifacts/x
//	/skills/x    → skills/{user}/x
func (s Scope) Key(mount, rel string) (string, error) {
	switch mount {
	case MountWorkspace:
		if s.ThreadID == "" {
			return "", fmt.Errorf("workspace mount requires a thread id")
		}
		return joinKey("threads", s.ThreadID, rel), nil
	case MountArtifacts:
		if s.ThreadID == "" {
			return "", fmt.Errorf("artifacts mount requires a thread id")
		}
		return joinKey("threads", s.ThreadID, "artifacts", rel), nil
	case MountSkills:
		if s.UserID == "" {
			return "", fmt.Errorf("skills mount requires a user id")
		}
		return joinKey("skills", s.UserID, rel), nil
	}
	return "", fmt.Errorf("%w: /%s", ErrUnknownMount, mount)
}

// KeyFor resolves a full virtual path to its object-store key.
func (s Scope) KeyFor(vpath string) (string, error) {
	mount, rel, err := Split(vpath)
	if err != nil {
		return "", err
	}
	return s.Key(mount, rel)
}

// Prefix returns the object-store key prefix covering an entire mount,
// ending in "/".
func (s Scope) Prefix(mount string) (string, error) {
	key, err := s.Key(mount, "")
	if err != nil {
		return "", err
	}
	return key + "/", nil
}

// VirtualPath maps an object-store key back to an agent-visible path. The
// second return is false when the key is outside every mount of this scope.
// Artifact keys must be checked before workspace keys: the artifacts prefix
// nests inside the thread prefix.
func (s Scope) VirtualPath(key string) (string, bool) {
	if s.ThreadID != "" {
		artifactPrefix := joinKey("threads", s.ThreadID, "artifacts") + "/"
		if strings.HasPrefix(key, artifactPrefix) {
			return "/" + MountArtifacts + "/" + strings.TrimPrefix(key, artifactPrefix), true
		}
		threadPrefix := joinKey("threads", s.ThreadID) + "/"
		if strings.HasPrefix(key, threadPrefix) {
			return "/" + MountWorkspace + "/" + strings.TrimPrefix(key, threadPrefix), true
		}
	}
	if s.UserID != "" {
		skillPrefix := joinKey("skills", s.UserID) + "/"
		if strings.HasPrefix(key, skillPrefix) {
			return "/" + MountSkills + "/" + strings.TrimPrefix(key, skillPrefix), true
		}
	}
	return "", false
}

// joinKey joins key segments, dropping empty ones.
func joinKey(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "/")
}
