// Package sandbox manages the ephemeral execution environments that agent
// commands run in. A Runtime provides create/exec/file-transfer primitives;
// the Manager binds sandboxes to conversation threads, keeps the sandbox
// filesystem in sync with the object store, and tears down idle instances.
package sandbox

import (
	"context"
	"errors"
	"time"
)

// ErrNotRunning is returned when an operation targets a sandbox that no
// longer exists.
var ErrNotRunning = errors.New("sandbox is not running")

// Info identifies a live sandbox.
type Info struct {
	ID      string
	Workdir string // host-side path for local runtimes, informational otherwise
}

// ExecResult is the outcome of one command.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// FileStat describes one file inside a sandbox.
type FileStat struct {
	Path    string // relative to the sandbox working directory
	Size    int64
	ModTime time.Time
}

// LineScanner yields command output line by line. Close releases the
// underlying process resources; it is safe to call after Scan returns false.
type LineScanner interface {
	Scan() bool
	Text() string
	Err() error
	Close() error
}

// Runtime is the control surface for an execution environment. The local
// implementation runs commands as host processes inside a throwaway
// directory; remote implementations can plug in behind the same interface.
type Runtime interface {
	// Create provisions a new empty sandbox.
	Create(ctx context.Context) (Info, error)

	// Exec runs a shell command in the sandbox working directory and
	// collects its output. The command is killed at the timeout.
	Exec(ctx context.Context, id, command string, timeout time.Duration) (ExecResult, error)

	// ExecStream runs a shell command and streams interleaved output lines.
	ExecStream(ctx context.Context, id, command string) (LineScanner, error)

	// WriteFile uploads data to a path relative to the working directory,
	// creating parent directories.
	WriteFile(ctx context.Context, id, rel string, data []byte) error

	// ReadFile downloads a file relative to the working directory.
	ReadFile(ctx context.Context, id, rel string) ([]byte, error)

	// ListFiles walks all regular files under dir (relative to the working
	// directory; "" for the whole sandbox).
	ListFiles(ctx context.Context, id, dir string) ([]FileStat, error)

	// Alive reports whether the sandbox still exists.
	Alive(ctx context.Context, id string) bool

	// Destroy tears the sandbox down. Destroying a missing sandbox is not
	// an error.
	Destroy(ctx context.Context, id string) error
}
