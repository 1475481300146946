package vfs

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	// ErrReadOnlyMount is returned when a write targets a read-only mount.
	ErrReadOnlyMount = errors.New("mount is read-only")

	// ErrFileType is returned when a write targets a disallowed extension.
	ErrFileType = errors.New("file type not allowed")
)

// WritePolicy gates which virtual paths the agent surface may create or
// modify. The default policy restricts writes to markdown files under the
// writable mounts; /skills is read-only through the agent (skills are
// published out of band).
type WritePolicy struct {
	// WritableMounts is the set of mounts accepting writes.
	WritableMounts map[string]bool

	// Extensions is the set of allowed file extensions (with dot,
	// lowercase). Empty means any extension.
	Extensions map[string]bool
}

// DefaultWritePolicy returns the markdown-only policy over /workspace and
// /artifacts.
func DefaultWritePolicy() WritePolicy {
	return WritePolicy{
		WritableMounts: map[string]bool{
			MountWorkspace: true,
			MountArtifacts: true,
		},
		Extensions: map[string]bool{".md": true},
	}
}

// CheckWrite returns nil when a write to (mount, rel) is allowed.
func (p WritePolicy) CheckWrite(mount, rel string) error {
	if !p.WritableMounts[mount] {
		return fmt.Errorf("%w: /%s", ErrReadOnlyMount, mount)
	}
	if rel == "" {
		return fmt.Errorf("cannot write to mount root /%s", mount)
	}
	if len(p.Extensions) > 0 {
		ext := strings.ToLower(path.Ext(rel))
		if !p.Extensions[ext] {
			allowed := make([]string, 0, len(p.Extensions))
			for e := range p.Extensions {
				allowed = append(allowed, e)
			}
			return fmt.Errorf("%w: %q (allowed: %s)", ErrFileType, ext, strings.Join(allowed, ", "))
		}
	}
	return nil
}
