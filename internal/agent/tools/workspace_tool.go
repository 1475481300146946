package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/driftworks/workbench/internal/store"
	"github.com/driftworks/workbench/internal/vfs"
)

// WorkspaceTool provides file operations over the virtual workspace
// filesystem: ls, read, write, edit, glob, grep.
type WorkspaceTool struct {
	backend *vfs.Backend
}

// WorkspaceInput is the consolidated input for all workspace actions.
type WorkspaceInput struct {
	Action string `json:"action"` // ls, read, write, edit, glob, grep

	// Common
	Path string `json:"path,omitempty"` // virtual path

	// Read
	Offset int `json:"offset,omitempty"` // line number to start from (1-based)
	Limit  int `json:"limit,omitempty"`  // max lines/files/matches

	// Write
	Content string `json:"content,omitempty"`
	Append  bool   `json:"append,omitempty"`

	// Edit
	OldString  string `json:"old_string,omitempty"`
	NewString  string `json:"new_string,omitempty"`
	ReplaceAll bool   `json:"replace_all,omitempty"`

	// Glob
	Pattern string `json:"pattern,omitempty"`

	// Grep
	Regex           string `json:"regex,omitempty"`
	Glob            string `json:"glob,omitempty"`
	CaseInsensitive bool   `json:"case_insensitive,omitempty"`
}

// NewWorkspaceTool creates the workspace file tool over a backend.
func NewWorkspaceTool(backend *vfs.Backend) *WorkspaceTool {
	return &WorkspaceTool{backend: backend}
}

// Name returns the tool name.
func (t *WorkspaceTool) Name() string {
	return "workspace"
}

// Description returns the tool description.
func (t *WorkspaceTool) Description() string {
	return `Workspace file operations: ls, read, write, edit, glob, grep.

Paths are virtual: /workspace (your files for this thread), /skills (your
skill library, read-only), /artifacts (thread outputs). Writes accept
markdown (.md) files only.

Actions:
- ls: list a directory
- read: read file contents with optional line range
- write: write (or append) content to a file
- edit: exact find-and-replace in a file
- glob: find files matching a pattern (supports **)
- grep: search file contents for a regex

Examples:
  workspace(action: "ls", path: "/workspace")
  workspace(action: "read", path: "/workspace/notes.md", offset: 100, limit: 50)
  workspace(action: "write", path: "/workspace/plan.md", content: "# Plan")
  workspace(action: "edit", path: "/workspace/plan.md", old_string: "draft", new_string: "final")
  workspace(action: "glob", pattern: "**/*.md")
  workspace(action: "grep", regex: "TODO", path: "/workspace")`
}

// Schema returns the JSON schema for the tool input.
func (t *WorkspaceTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {
				"type": "string",
				"description": "Workspace action: ls, read, write, edit, glob, grep",
				"enum": ["ls", "read", "write", "edit", "glob", "grep"]
			},
			"path": {
				"type": "string",
				"description": "Virtual path (required for read, write, edit; optional for ls, glob, grep)"
			},
			"offset": {
				"type": "integer",
				"description": "Line number to start reading from (1-based, default: 1)"
			},
			"limit": {
				"type": "integer",
				"description": "Max lines (read: 2000), files (glob: 1000), or matches (grep: 100)"
			},
			"content": {
				"type": "string",
				"description": "Content to write (required for write)"
			},
			"append": {
				"type": "boolean",
				"description": "Append to the file instead of overwriting (for write)"
			},
			"old_string": {
				"type": "string",
				"description": "Exact string to find (required for edit)"
			},
			"new_string": {
				"type": "string",
				"description": "Replacement string (required for edit)"
			},
			"replace_all": {
				"type": "boolean",
				"description": "Replace all occurrences (for edit, default: false)"
			},
			"pattern": {
				"type": "string",
				"description": "Glob pattern (required for glob)"
			},
			"regex": {
				"type": "string",
				"description": "Regular expression (required for grep)"
			},
			"glob": {
				"type": "string",
				"description": "File name filter for grep (e.g. '*.md')"
			},
			"case_insensitive": {
				"type": "boolean",
				"description": "Case-insensitive search (for grep)"
			}
		},
		"required": ["action"]
	}`)
}

// RequiresApproval returns false: every action is scoped to the caller's
// mounts and writes are policy-gated.
func (t *WorkspaceTool) RequiresApproval() bool {
	return false
}

// Execute routes to the action handler.
func (t *WorkspaceTool) Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error) {
	var in WorkspaceInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	scope, ok := vfs.ScopeFrom(ctx)
	if !ok {
		return &ToolResult{Content: "Error: no workspace scope in request", IsError: true}, nil
	}

	switch in.Action {
	case "ls":
		return t.handleLs(ctx, scope, in)
	case "read":
		return t.handleRead(ctx, scope, in)
	case "write":
		return t.handleWrite(ctx, scope, in)
	case "edit":
		return t.handleEdit(ctx, scope, in)
	case "glob":
		return t.handleGlob(ctx, scope, in)
	case "grep":
		return t.handleGrep(ctx, scope, in)
	default:
		return &ToolResult{
			Content: fmt.Sprintf("Unknown action: %s (valid: ls, read, write, edit, glob, grep)", in.Action),
			IsError: true,
		}, nil
	}
}

func (t *WorkspaceTool) handleLs(ctx context.Context, scope vfs.Scope, in WorkspaceInput) (*ToolResult, error) {
	path := in.Path
	if path == "" {
		path = "/"
	}

	entries, err := t.backend.Ls(ctx, scope, path)
	if err != nil {
		return errResult(path, err), nil
	}
	if len(entries) == 0 {
		return &ToolResult{Content: fmt.Sprintf("(empty directory: %s)", path)}, nil
	}

	var sb strings.Builder
	for _, e := range entries {
		if e.Dir {
			sb.WriteString(e.Path + "/\n")
		} else {
			sb.WriteString(fmt.Sprintf("%s  (%d bytes)\n", e.Path, e.Size))
		}
	}
	return &ToolResult{Content: strings.TrimSpace(sb.String())}, nil
}

func (t *WorkspaceTool) handleRead(ctx context.Context, scope vfs.Scope, in WorkspaceInput) (*ToolResult, error) {
	if in.Path == "" {
		return &ToolResult{Content: "Error: path is required", IsError: true}, nil
	}
	if in.Offset <= 0 {
		in.Offset = 1
	}
	if in.Limit <= 0 {
		in.Limit = 2000
	}

	body, err := t.backend.Read(ctx, scope, in.Path)
	if err != nil {
		return errResult(in.Path, err), nil
	}

	lines := strings.Split(string(body), "\n")
	if in.Offset > len(lines) {
		return &ToolResult{Content: fmt.Sprintf("(file has only %d lines)", len(lines))}, nil
	}

	end := in.Offset - 1 + in.Limit
	truncated := false
	if end > len(lines) {
		end = len(lines)
	} else if end < len(lines) {
		truncated = true
	}

	var sb strings.Builder
	for i := in.Offset - 1; i < end; i++ {
		line := lines[i]
		const maxLineLen = 2000
		if len(line) > maxLineLen {
			line = line[:maxLineLen] + "..."
		}
		sb.WriteString(fmt.Sprintf("%6d\t%s\n", i+1, line))
	}
	if truncated {
		sb.WriteString(fmt.Sprintf("... (showing lines %d-%d of %d)", in.Offset, end, len(lines)))
	}

	content := strings.TrimRight(sb.String(), "\n")
	if content == "" {
		content = "(file is empty)"
	}
	return &ToolResult{Content: content}, nil
}

func (t *WorkspaceTool) handleWrite(ctx context.Context, scope vfs.Scope, in WorkspaceInput) (*ToolResult, error) {
	if in.Path == "" {
		return &ToolResult{Content: "Error: path is required", IsError: true}, nil
	}

	entry, err := t.backend.Write(ctx, scope, in.Path, []byte(in.Content), in.Append)
	if err != nil {
		return errResult(in.Path, err), nil
	}

	verb := "Wrote"
	if in.Append {
		verb = "Appended"
	}
	return &ToolResult{Content: fmt.Sprintf("%s %d bytes to %s", verb, len(in.Content), entry.Path)}, nil
}

func (t *WorkspaceTool) handleEdit(ctx context.Context, scope vfs.Scope, in WorkspaceInput) (*ToolResult, error) {
	if in.Path == "" {
		return &ToolResult{Content: "Error: path is required", IsError: true}, nil
	}
	if in.OldString == "" {
		return &ToolResult{Content: "Error: old_string is required", IsError: true}, nil
	}
	if in.OldString == in.NewString {
		return &ToolResult{Content: "Error: old_string and new_string are identical", IsError: true}, nil
	}

	count, err := t.backend.Edit(ctx, scope, in.Path, in.OldString, in.NewString, in.ReplaceAll)
	if err != nil {
		var ambiguous *vfs.AmbiguousMatchError
		switch {
		case errors.Is(err, vfs.ErrNoMatch):
			return &ToolResult{
				Content: fmt.Sprintf("Error: old_string not found in %s.\n\nSearched for:\n```\n%s\n```\n\nMake sure the string matches exactly, including whitespace.", in.Path, in.OldString),
				IsError: true,
			}, nil
		case errors.As(err, &ambiguous):
			return &ToolResult{
				Content: fmt.Sprintf("Error: old_string appears %d times in %s. Use replace_all=true or make the search string more specific.", ambiguous.Count, in.Path),
				IsError: true,
			}, nil
		}
		return errResult(in.Path, err), nil
	}

	if count > 1 {
		return &ToolResult{Content: fmt.Sprintf("Replaced %d occurrences in %s", count, in.Path)}, nil
	}
	return &ToolResult{Content: fmt.Sprintf("Edited %s", in.Path)}, nil
}

func (t *WorkspaceTool) handleGlob(ctx context.Context, scope vfs.Scope, in WorkspaceInput) (*ToolResult, error) {
	if in.Pattern == "" {
		return &ToolResult{Content: "Error: pattern is required", IsError: true}, nil
	}
	base := in.Path
	if base == "" {
		base = "/"
	}

	entries, err := t.backend.Glob(ctx, scope, base, in.Pattern, in.Limit)
	if err != nil {
		return errResult(base, err), nil
	}
	if len(entries) == 0 {
		return &ToolResult{Content: fmt.Sprintf("No files found matching pattern: %s", in.Pattern)}, nil
	}

	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString(e.Path + "\n")
	}
	return &ToolResult{Content: strings.TrimSpace(sb.String())}, nil
}

func (t *WorkspaceTool) handleGrep(ctx context.Context, scope vfs.Scope, in WorkspaceInput) (*ToolResult, error) {
	if in.Regex == "" {
		return &ToolResult{Content: "Error: regex is required", IsError: true}, nil
	}

	matches, err := t.backend.Grep(ctx, scope, vfs.GrepOptions{
		Pattern:         in.Regex,
		Path:            in.Path,
		Glob:            in.Glob,
		CaseInsensitive: in.CaseInsensitive,
		Limit:           in.Limit,
	})
	if err != nil {
		return errResult(in.Path, err), nil
	}
	if len(matches) == 0 {
		return &ToolResult{Content: fmt.Sprintf("No matches found for pattern: %s", in.Regex)}, nil
	}

	limit := in.Limit
	if limit <= 0 {
		limit = 100
	}

	var sb strings.Builder
	for _, m := range matches {
		sb.WriteString(fmt.Sprintf("%s:%d: %s\n", m.Path, m.Line, m.Text))
	}
	if len(matches) >= limit {
		sb.WriteString(fmt.Sprintf("\n... (showing first %d matches)", limit))
	}
	return &ToolResult{Content: strings.TrimSpace(sb.String())}, nil
}

// errResult renders backend errors as model-readable strings.
func errResult(path string, err error) *ToolResult {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return &ToolResult{Content: fmt.Sprintf("File not found: %s", path), IsError: true}
	case errors.Is(err, vfs.ErrUnknownMount):
		return &ToolResult{
			Content: fmt.Sprintf("Error: %s is outside the workspace. Valid top-level directories: /workspace, /skills, /artifacts", path),
			IsError: true,
		}
	case errors.Is(err, vfs.ErrReadOnlyMount):
		return &ToolResult{Content: fmt.Sprintf("Error: %s is read-only", path), IsError: true}
	case errors.Is(err, vfs.ErrFileType):
		return &ToolResult{Content: fmt.Sprintf("Error: only markdown (.md) files can be written: %s", path), IsError: true}
	}
	return &ToolResult{Content: fmt.Sprintf("Error: %v", err), IsError: true}
}
