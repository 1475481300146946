// Package tools exposes the workspace filesystem and sandbox to the agent
// runtime as a small set of schema-described tools. Tool failures are
// returned as readable strings in the result (IsError) rather than Go
// errors, so the model can see what went wrong and self-correct.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/driftworks/workbench/internal/logging"
)

// ToolResult is the outcome of a tool execution.
type ToolResult struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// Definition is the shape handed to the model provider.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Tool is implemented by every agent-callable tool.
type Tool interface {
	// Name returns the tool's unique name.
	Name() string

	// Description returns a description for the model.
	Description() string

	// Schema returns the JSON schema for the tool's input.
	Schema() json.RawMessage

	// Execute runs the tool with the given input.
	Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error)

	// RequiresApproval returns true if this tool needs user approval.
	RequiresApproval() bool
}

// Registry manages available tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, replacing any tool with the same name.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[tool.Name()]; ok {
		logging.Warnf("[tools] %q already registered, overwriting", tool.Name())
	}
	r.tools[tool.Name()] = tool
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns definitions for every registered tool, sorted by name.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, Definition{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.Schema(),
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute runs the named tool. Unknown names return an error result listing
// the available tools, with a correction hint for common hallucinated names.
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) *ToolResult {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		r.mu.RLock()
		available := make([]string, 0, len(r.tools))
		for n := range r.tools {
			available = append(available, n)
		}
		r.mu.RUnlock()
		sort.Strings(available)

		return &ToolResult{
			Content: fmt.Sprintf("TOOL ERROR: %q does not exist. %s\nAvailable tools: %s",
				name, toolCorrection(name), strings.Join(available, ", ")),
			IsError: true,
		}
	}

	logging.Debugf("[tools] executing %s", name)
	result, err := tool.Execute(ctx, input)
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("Error: %v", err), IsError: true}
	}
	return result
}

// toolCorrection maps known hallucinated names to the real tool call.
func toolCorrection(name string) string {
	switch strings.ToLower(name) {
	case "read", "cat", "view":
		return `INSTEAD USE: workspace(action: "read", path: "/workspace/file.md")`
	case "write", "create_file":
		return `INSTEAD USE: workspace(action: "write", path: "/workspace/file.md", content: "...")`
	case "edit", "str_replace":
		return `INSTEAD USE: workspace(action: "edit", path: "...", old_string: "...", new_string: "...")`
	case "ls", "list", "list_dir":
		return `INSTEAD USE: workspace(action: "ls", path: "/workspace")`
	case "glob", "find":
		return `INSTEAD USE: workspace(action: "glob", pattern: "**/*.md")`
	case "grep", "search":
		return `INSTEAD USE: workspace(action: "grep", regex: "...", path: "/workspace")`
	case "bash", "shell", "exec", "run":
		return `INSTEAD USE: execute(command: "...")`
	case "skill", "skills", "load_skill":
		return `INSTEAD USE: skill(action: "list") or skill(action: "load", name: "...")`
	default:
		return "Check your available tools and use the correct name."
	}
}
