package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/driftworks/workbench/internal/skills"
	"github.com/driftworks/workbench/internal/store"
	"github.com/driftworks/workbench/internal/vfs"
)

func scopedCtx() context.Context {
	return vfs.WithScope(context.Background(), vfs.Scope{ThreadID: "t1", UserID: "u1"})
}

func newWorkspaceTool(t *testing.T) (*WorkspaceTool, *vfs.Backend) {
	t.Helper()
	backend := vfs.NewBackend(store.NewMemoryStore(), vfs.DefaultWritePolicy())
	return NewWorkspaceTool(backend), backend
}

func run(t *testing.T, tool Tool, input string) *ToolResult {
	t.Helper()
	result, err := tool.Execute(scopedCtx(), json.RawMessage(input))
	if err != nil {
		t.Fatalf("Execute(%s) error: %v", input, err)
	}
	return result
}

func TestWorkspaceWriteAndRead(t *testing.T) {
	tool, _ := newWorkspaceTool(t)

	result := run(t, tool, `{"action":"write","path":"/workspace/notes.md","content":"alpha\nbeta\ngamma"}`)
	if result.IsError {
		t.Fatalf("write failed: %s", result.Content)
	}
	if !strings.Contains(result.Content, "Wrote") {
		t.Errorf("write result = %q", result.Content)
	}

	result = run(t, tool, `{"action":"read","path":"/workspace/notes.md"}`)
	if result.IsError {
		t.Fatalf("read failed: %s", result.Content)
	}
	// Line-numbered output.
	if !strings.Contains(result.Content, "1\talpha") || !strings.Contains(result.Content, "3\tgamma") {
		t.Errorf("read result = %q", result.Content)
	}
}

func TestWorkspaceReadOffsetLimit(t *testing.T) {
	tool, _ := newWorkspaceTool(t)
	run(t, tool, `{"action":"write","path":"/workspace/long.md","content":"l1\nl2\nl3\nl4\nl5"}`)

	result := run(t, tool, `{"action":"read","path":"/workspace/long.md","offset":2,"limit":2}`)
	if strings.Contains(result.Content, "l1") || !strings.Contains(result.Content, "l2") ||
		!strings.Contains(result.Content, "l3") || strings.Contains(result.Content, "l4\n") {
		t.Errorf("windowed read = %q", result.Content)
	}
	if !strings.Contains(result.Content, "showing lines 2-3 of 5") {
		t.Errorf("missing truncation note: %q", result.Content)
	}
}

func TestWorkspaceReadMissingFile(t *testing.T) {
	tool, _ := newWorkspaceTool(t)
	result := run(t, tool, `{"action":"read","path":"/workspace/nope.md"}`)
	if !result.IsError || !strings.Contains(result.Content, "File not found") {
		t.Errorf("missing-file read = %+v", result)
	}
}

func TestWorkspacePolicyErrors(t *testing.T) {
	tool, _ := newWorkspaceTool(t)

	result := run(t, tool, `{"action":"write","path":"/workspace/code.py","content":"x"}`)
	if !result.IsError || !strings.Contains(result.Content, "markdown") {
		t.Errorf("non-markdown write = %+v", result)
	}

	result = run(t, tool, `{"action":"write","path":"/skills/s/SKILL.md","content":"x"}`)
	if !result.IsError || !strings.Contains(result.Content, "read-only") {
		t.Errorf("skills write = %+v", result)
	}

	result = run(t, tool, `{"action":"read","path":"/etc/passwd"}`)
	if !result.IsError || !strings.Contains(result.Content, "outside the workspace") {
		t.Errorf("bad mount read = %+v", result)
	}
}

func TestWorkspaceEdit(t *testing.T) {
	tool, _ := newWorkspaceTool(t)
	run(t, tool, `{"action":"write","path":"/workspace/doc.md","content":"one two one"}`)

	result := run(t, tool, `{"action":"edit","path":"/workspace/doc.md","old_string":"one","new_string":"three"}`)
	if !result.IsError || !strings.Contains(result.Content, "2 times") {
		t.Errorf("ambiguous edit = %+v", result)
	}

	result = run(t, tool, `{"action":"edit","path":"/workspace/doc.md","old_string":"one","new_string":"three","replace_all":true}`)
	if result.IsError || !strings.Contains(result.Content, "Replaced 2 occurrences") {
		t.Errorf("replace-all edit = %+v", result)
	}

	result = run(t, tool, `{"action":"edit","path":"/workspace/doc.md","old_string":"absent","new_string":"x"}`)
	if !result.IsError || !strings.Contains(result.Content, "not found") {
		t.Errorf("no-match edit = %+v", result)
	}
}

func TestWorkspaceLsGlobGrep(t *testing.T) {
	tool, _ := newWorkspaceTool(t)
	run(t, tool, `{"action":"write","path":"/workspace/a.md","content":"find the needle here"}`)
	run(t, tool, `{"action":"write","path":"/workspace/sub/b.md","content":"nothing"}`)

	result := run(t, tool, `{"action":"ls","path":"/workspace"}`)
	if result.IsError || !strings.Contains(result.Content, "/workspace/a.md") || !strings.Contains(result.Content, "/workspace/sub/") {
		t.Errorf("ls = %+v", result)
	}

	result = run(t, tool, `{"action":"glob","pattern":"**/*.md"}`)
	if result.IsError || !strings.Contains(result.Content, "/workspace/sub/b.md") {
		t.Errorf("glob = %+v", result)
	}

	result = run(t, tool, `{"action":"grep","regex":"needle"}`)
	if result.IsError || !strings.Contains(result.Content, "/workspace/a.md:1:") {
		t.Errorf("grep = %+v", result)
	}

	result = run(t, tool, `{"action":"grep","regex":"zebra"}`)
	if result.IsError || !strings.Contains(result.Content, "No matches") {
		t.Errorf("empty grep = %+v", result)
	}
}

func TestWorkspaceUnknownAction(t *testing.T) {
	tool, _ := newWorkspaceTool(t)
	result := run(t, tool, `{"action":"delete","path":"/workspace/a.md"}`)
	if !result.IsError || !strings.Contains(result.Content, "Unknown action") {
		t.Errorf("unknown action = %+v", result)
	}
}

func TestWorkspaceRequiresScope(t *testing.T) {
	tool, _ := newWorkspaceTool(t)
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"action":"ls"}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !result.IsError || !strings.Contains(result.Content, "scope") {
		t.Errorf("scope-less call = %+v", result)
	}
}

func TestRegistryExecute(t *testing.T) {
	reg := NewRegistry()
	tool, _ := newWorkspaceTool(t)
	reg.Register(tool)

	result := reg.Execute(scopedCtx(), "workspace", json.RawMessage(`{"action":"ls"}`))
	if result.IsError {
		t.Errorf("registry dispatch failed: %s", result.Content)
	}

	// Unknown tool gets a correction hint and the available list.
	result = reg.Execute(scopedCtx(), "bash", json.RawMessage(`{}`))
	if !result.IsError {
		t.Fatal("unknown tool should be an error result")
	}
	if !strings.Contains(result.Content, "execute(command:") {
		t.Errorf("missing correction hint: %s", result.Content)
	}
	if !strings.Contains(result.Content, "Available tools: workspace") {
		t.Errorf("missing available list: %s", result.Content)
	}
}

func TestRegistryList(t *testing.T) {
	reg := NewRegistry()
	wsTool, _ := newWorkspaceTool(t)
	reg.Register(wsTool)
	reg.Register(NewSkillTool(skills.NewLoader(t.TempDir())))

	defs := reg.List()
	if len(defs) != 2 {
		t.Fatalf("List = %d definitions, want 2", len(defs))
	}
	// Sorted by name.
	if defs[0].Name != "skill" || defs[1].Name != "workspace" {
		t.Errorf("List order = %s, %s", defs[0].Name, defs[1].Name)
	}
	for _, d := range defs {
		if !json.Valid(d.InputSchema) {
			t.Errorf("%s schema is not valid JSON", d.Name)
		}
	}
}

func writeTestSkill(t *testing.T, dir, rel, content string) {
	t.Helper()
	skillDir := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(skillDir, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(skillDir, skills.SkillFileName), []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestSkillTool(t *testing.T) {
	dir := t.TempDir()
	writeTestSkill(t, dir, "u1/triage",
		"---\nname: triage\ndescription: Route tickets\ntriggers: [triage]\n---\n# Steps\n\nDo the thing.\n")
	writeTestSkill(t, dir, "u2/hidden",
		"---\nname: hidden\ndescription: Another user's skill\n---\nnot yours\n")

	loader := skills.NewLoader(dir)
	if err := loader.LoadAll(); err != nil {
		t.Fatalf("LoadAll error: %v", err)
	}
	tool := NewSkillTool(loader)

	// scopedCtx carries user u1; only u1's library is visible.
	result := run(t, tool, `{"action":"list"}`)
	if result.IsError || !strings.Contains(result.Content, "triage") || !strings.Contains(result.Content, "Covers: Steps") {
		t.Errorf("list = %+v", result)
	}
	if strings.Contains(result.Content, "hidden") {
		t.Errorf("another user's skill listed: %s", result.Content)
	}

	result = run(t, tool, `{"action":"load","name":"triage"}`)
	if result.IsError || !strings.Contains(result.Content, "Do the thing.") {
		t.Errorf("load = %+v", result)
	}

	result = run(t, tool, `{"action":"load","name":"hidden"}`)
	if !result.IsError || !strings.Contains(result.Content, "Skill not found") {
		t.Errorf("cross-user load = %+v", result)
	}

	result = run(t, tool, `{"action":"load","name":"nope"}`)
	if !result.IsError || !strings.Contains(result.Content, "Skill not found") {
		t.Errorf("load missing = %+v", result)
	}
}

func TestSkillToolRequiresScope(t *testing.T) {
	tool := NewSkillTool(skills.NewLoader(t.TempDir()))
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"action":"list"}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !result.IsError || !strings.Contains(result.Content, "scope") {
		t.Errorf("scope-less call = %+v", result)
	}
}

func TestRequiresApproval(t *testing.T) {
	wsTool, _ := newWorkspaceTool(t)
	tests := []struct {
		tool Tool
		want bool
	}{
		{wsTool, false},
		{NewSkillTool(skills.NewLoader(t.TempDir())), false},
		{NewExecTool(nil), true},
	}
	for _, tt := range tests {
		if got := tt.tool.RequiresApproval(); got != tt.want {
			t.Errorf("%s.RequiresApproval() = %v, want %v", tt.tool.Name(), got, tt.want)
		}
	}
}
