package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/driftworks/workbench/internal/skills"
	"github.com/driftworks/workbench/internal/vfs"
)

// SkillTool lets the agent browse and load its skill library.
type SkillTool struct {
	loader *skills.Loader
}

// SkillInput is the tool input.
type SkillInput struct {
	Action string `json:"action"` // list, load
	Name   string `json:"name,omitempty"`
}

// NewSkillTool creates the skill tool over a loader.
func NewSkillTool(loader *skills.Loader) *SkillTool {
	return &SkillTool{loader: loader}
}

// Name returns the tool name.
func (t *SkillTool) Name() string {
	return "skill"
}

// Description returns the tool description.
func (t *SkillTool) Description() string {
	return `Browse and load skills: markdown instruction bundles that
specialize your behavior for a task.

Actions:
- list: show the skill catalog (name, description, outline)
- load: return the full instructions of one skill

Load a skill when the user's request matches its description or triggers.`
}

// Schema returns the JSON schema for the tool input.
func (t *SkillTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {
				"type": "string",
				"description": "Skill action: list, load",
				"enum": ["list", "load"]
			},
			"name": {
				"type": "string",
				"description": "Skill name (required for load)"
			}
		},
		"required": ["action"]
	}`)
}

// RequiresApproval returns false: skills are read-only instructions.
func (t *SkillTool) RequiresApproval() bool {
	return false
}

// Execute routes to the action handler. Only the scoped user's library is
// visible.
func (t *SkillTool) Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error) {
	var in SkillInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	scope, ok := vfs.ScopeFrom(ctx)
	if !ok || scope.UserID == "" {
		return &ToolResult{Content: "Error: no user scope in request", IsError: true}, nil
	}

	switch in.Action {
	case "list":
		return t.handleList(scope.UserID), nil
	case "load":
		return t.handleLoad(scope.UserID, in.Name), nil
	default:
		return &ToolResult{
			Content: fmt.Sprintf("Unknown action: %s (valid: list, load)", in.Action),
			IsError: true,
		}, nil
	}
}

func (t *SkillTool) handleList(userID string) *ToolResult {
	all := t.loader.List(userID)
	if len(all) == 0 {
		return &ToolResult{Content: "No skills installed."}
	}

	var sb strings.Builder
	for _, s := range all {
		sb.WriteString(fmt.Sprintf("## %s\n%s\n", s.Name, s.Description))
		if outline := skills.Outline(s.Body); len(outline) > 0 {
			sb.WriteString("Covers: " + strings.Join(outline, "; ") + "\n")
		}
		if len(s.Triggers) > 0 {
			sb.WriteString("Triggers: " + strings.Join(s.Triggers, ", ") + "\n")
		}
		sb.WriteString("\n")
	}
	return &ToolResult{Content: strings.TrimSpace(sb.String())}
}

func (t *SkillTool) handleLoad(userID, name string) *ToolResult {
	if name == "" {
		return &ToolResult{Content: "Error: name is required", IsError: true}
	}
	skill, ok := t.loader.Get(userID, name)
	if !ok {
		return &ToolResult{
			Content: fmt.Sprintf("Skill not found: %s. Use skill(action: \"list\") to see what is installed.", name),
			IsError: true,
		}
	}
	return &ToolResult{Content: fmt.Sprintf("# Skill: %s\n\n%s", skill.Name, skill.Body)}
}
