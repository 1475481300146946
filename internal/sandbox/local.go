package sandbox

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocalRuntime runs sandboxes as plain directories on the host, executing
// commands with bash. It is the default runtime for self-hosted deployments
// and for tests; per-sandbox isolation is the directory boundary only.
type LocalRuntime struct {
	root string
}

// NewLocalRuntime returns a runtime keeping sandbox directories under root.
func NewLocalRuntime(root string) (*LocalRuntime, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create sandbox root: %w", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve sandbox root: %w", err)
	}
	return &LocalRuntime{root: abs}, nil
}

// Create provisions a fresh sandbox directory.
func (r *LocalRuntime) Create(ctx context.Context) (Info, error) {
	id := "sbx-" + uuid.NewString()[:8]
	workdir := filepath.Join(r.root, id)
	if err := os.MkdirAll(workdir, 0755); err != nil {
		return Info{}, fmt.Errorf("create sandbox %s: %w", id, err)
	}
	return Info{ID: id, Workdir: workdir}, nil
}

func (r *LocalRuntime) workdir(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, "/\\") {
		return "", fmt.Errorf("invalid sandbox id %q", id)
	}
	dir := filepath.Join(r.root, id)
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotRunning, id)
	}
	return dir, nil
}

// Exec runs command with bash inside the sandbox directory.
func (r *LocalRuntime) Exec(ctx context.Context, id, command string, timeout time.Duration) (ExecResult, error) {
	dir, err := r.workdir(id)
	if err != nil {
		return ExecResult{}, err
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "bash", "-c", command)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	result := ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			result.ExitCode = -1
			return result, fmt.Errorf("command timed out after %v", timeout)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, fmt.Errorf("run command: %w", err)
	}
	return result, nil
}

// ExecStream runs command and yields interleaved stdout/stderr lines.
func (r *LocalRuntime) ExecStream(ctx context.Context, id, command string) (LineScanner, error) {
	dir, err := r.workdir(id)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, "bash", "-c", command)
	cmd.Dir = dir

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("start command: %w", err)
	}

	go func() {
		pw.CloseWithError(cmd.Wait())
	}()

	return &pipeScanner{scanner: bufio.NewScanner(pr), closer: pr}, nil
}

type pipeScanner struct {
	scanner *bufio.Scanner
	closer  io.Closer
}

func (p *pipeScanner) Scan() bool   { return p.scanner.Scan() }
func (p *pipeScanner) Text() string { return p.scanner.Text() }
func (p *pipeScanner) Err() error   { return p.scanner.Err() }
func (p *pipeScanner) Close() error { return p.closer.Close() }

// WriteFile uploads data into the sandbox.
func (r *LocalRuntime) WriteFile(ctx context.Context, id, rel string, data []byte) error {
	dir, err := r.workdir(id)
	if err != nil {
		return err
	}
	dst, err := securePath(dir, rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create parent for %s: %w", rel, err)
	}
	return os.WriteFile(dst, data, 0644)
}

// ReadFile downloads a file from the sandbox.
func (r *LocalRuntime) ReadFile(ctx context.Context, id, rel string) ([]byte, error) {
	dir, err := r.workdir(id)
	if err != nil {
		return nil, err
	}
	src, err := securePath(dir, rel)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(src)
}

// ListFiles walks regular files under dir.
func (r *LocalRuntime) ListFiles(ctx context.Context, id, dir string) ([]FileStat, error) {
	workdir, err := r.workdir(id)
	if err != nil {
		return nil, err
	}
	base := workdir
	if dir != "" {
		base, err = securePath(workdir, dir)
		if err != nil {
			return nil, err
		}
	}

	var stats []FileStat
	err = filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// The subtree may not exist yet; treat as empty.
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != base {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(workdir, path)
		if err != nil {
			return nil
		}
		stats = append(stats, FileStat{
			Path:    filepath.ToSlash(rel),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	return stats, err
}

// Alive reports whether the sandbox directory still exists.
func (r *LocalRuntime) Alive(ctx context.Context, id string) bool {
	_, err := r.workdir(id)
	return err == nil
}

// Destroy removes the sandbox directory.
func (r *LocalRuntime) Destroy(ctx context.Context, id string) error {
	dir, err := r.workdir(id)
	if err != nil {
		return nil
	}
	return os.RemoveAll(dir)
}

// securePath joins rel under root and rejects escapes.
func securePath(root, rel string) (string, error) {
	joined := filepath.Join(root, filepath.FromSlash(rel))
	if joined != root && !strings.HasPrefix(joined, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes sandbox", rel)
	}
	return joined, nil
}
