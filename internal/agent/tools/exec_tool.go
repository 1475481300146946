package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/driftworks/workbench/internal/sandbox"
	"github.com/driftworks/workbench/internal/vfs"
)

// ExecTool runs shell commands in the thread's sandbox. The sandbox is
// seeded from the workspace before the command runs and changed markdown
// files are synced back afterwards.
type ExecTool struct {
	manager *sandbox.Manager
}

// ExecInput is the tool input.
type ExecInput struct {
	Command string `json:"command"`
}

// NewExecTool creates the execute tool over a sandbox manager.
func NewExecTool(manager *sandbox.Manager) *ExecTool {
	return &ExecTool{manager: manager}
}

// Name returns the tool name.
func (t *ExecTool) Name() string {
	return "execute"
}

// Description returns the tool description.
func (t *ExecTool) Description() string {
	return `Execute a shell command in your sandbox.

The sandbox working directory mirrors your virtual filesystem: workspace/,
skills/ and artifacts/ contain the same files the workspace tool sees.
Markdown files you create or change under workspace/ and artifacts/ are
saved back automatically. The sandbox persists across commands within a
conversation.`
}

// Schema returns the JSON schema for the tool input.
func (t *ExecTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {
				"type": "string",
				"description": "The shell command to execute (bash)"
			}
		},
		"required": ["command"]
	}`)
}

// RequiresApproval returns true: arbitrary commands run in the sandbox.
func (t *ExecTool) RequiresApproval() bool {
	return true
}

// Execute runs the command.
func (t *ExecTool) Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error) {
	var in ExecInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if in.Command == "" {
		return &ToolResult{Content: "Error: command is required", IsError: true}, nil
	}

	scope, ok := vfs.ScopeFrom(ctx)
	if !ok || scope.ThreadID == "" {
		return &ToolResult{Content: "Error: no thread scope in request", IsError: true}, nil
	}

	result, err := t.manager.Execute(ctx, scope, in.Command)
	if err != nil {
		return &ToolResult{
			Content: fmt.Sprintf("Error: %v\n%s", err, combineOutput(result)),
			IsError: true,
		}, nil
	}

	output := combineOutput(result)
	if result.ExitCode != 0 {
		return &ToolResult{
			Content: fmt.Sprintf("Command exited with code %d\n%s", result.ExitCode, output),
			IsError: true,
		}, nil
	}
	if output == "" {
		output = "(no output)"
	}

	const maxOutput = 50000
	if len(output) > maxOutput {
		output = output[:maxOutput] + "\n... (output truncated)"
	}
	return &ToolResult{Content: output}, nil
}

func combineOutput(result sandbox.ExecResult) string {
	var sb strings.Builder
	if result.Stdout != "" {
		sb.WriteString(result.Stdout)
	}
	if result.Stderr != "" {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("STDERR:\n")
		sb.WriteString(result.Stderr)
	}
	return strings.TrimSpace(sb.String())
}
