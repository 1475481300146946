package vfs

import (
	"errors"
	"testing"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		vpath     string
		wantMount string
		wantRel   string
		wantErr   error
	}{
		{"/workspace/notes.md", "workspace", "notes.md", nil},
		{"/workspace/a/b/c.md", "workspace", "a/b/c.md", nil},
		{"/workspace", "workspace", "", nil},
		{"/workspace/", "workspace", "", nil},
		{"workspace/notes.md", "workspace", "notes.md", nil}, // leading slash optional
		{"/artifacts/report.md", "artifacts", "report.md", nil},
		{"/skills/research/SKILL.md", "skills", "research/SKILL.md", nil},
		{"/workspace/a/./b.md", "workspace", "a/b.md", nil},
		{"/workspace/a/../b.md", "workspace", "b.md", nil}, // stays inside mount
		{"/", "", "", ErrIsRoot},
		{"", "", "", ErrIsRoot},
		{"/etc/passwd", "", "", ErrUnknownMount},
		{"/workspace/../../etc/passwd", "", "", ErrUnknownMount}, // climbs out of the mount
	}

	for _, tt := range tests {
		mount, rel, err := Split(tt.vpath)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Split(%q) error = %v, want %v", tt.vpath, err, tt.wantErr)
			}
			continue
		}
		if err != nil {
			t.Errorf("Split(%q) unexpected error: %v", tt.vpath, err)
			continue
		}
		if mount != tt.wantMount || rel != tt.wantRel {
			t.Errorf("Split(%q) = (%q, %q), want (%q, %q)", tt.vpath, mount, rel, tt.wantMount, tt.wantRel)
		}
	}
}

func TestScopeKey(t *testing.T) {
	scope := Scope{ThreadID: "t1", UserID: "u1"}

	tests := []struct {
		vpath string
		want  string
	}{
		{"/workspace/notes.md", "threads/t1/notes.md"},
		{"/workspace/a/b.md", "threads/t1/a/b.md"},
		{"/artifacts/report.md", "threads/t1/artifacts/report.md"},
		{"/skills/research/SKILL.md", "skills/u1/research/SKILL.md"},
	}

	for _, tt := range tests {
		got, err := scope.KeyFor(tt.vpath)
		if err != nil {
			t.Errorf("KeyFor(%q) error: %v", tt.vpath, err)
			continue
		}
		if got != tt.want {
			t.Errorf("KeyFor(%q) = %q, want %q", tt.vpath, got, tt.want)
		}
	}
}

func TestScopeKeyMissingIDs(t *testing.T) {
	if _, err := (Scope{}).KeyFor("/workspace/x.md"); err == nil {
		t.Error("KeyFor with empty thread id should fail for /workspace")
	}
	if _, err := (Scope{ThreadID: "t1"}).KeyFor("/skills/x.md"); err == nil {
		t.Error("KeyFor with empty user id should fail for /skills")
	}
}

func TestScopePrefix(t *testing.T) {
	scope := Scope{ThreadID: "t1", UserID: "u1"}

	tests := []struct {
		mount string
		want  string
	}{
		{MountWorkspace, "threads/t1/"},
		{MountArtifacts, "threads/t1/artifacts/"},
		{MountSkills, "skills/u1/"},
	}
	for _, tt := range tests {
		got, err := scope.Prefix(tt.mount)
		if err != nil {
			t.Fatalf("Prefix(%q) error: %v", tt.mount, err)
		}
		if got != tt.want {
			t.Errorf("Prefix(%q) = %q, want %q", tt.mount, got, tt.want)
		}
	}
}

func TestScopeVirtualPath(t *testing.T) {
	scope := Scope{ThreadID: "t1", UserID: "u1"}

	tests := []struct {
		key    string
		want   string
		wantOK bool
	}{
		{"threads/t1/notes.md", "/workspace/notes.md", true},
		// artifacts nest inside the thread prefix and must win
		{"threads/t1/artifacts/report.md", "/artifacts/report.md", true},
		{"skills/u1/research/SKILL.md", "/skills/research/SKILL.md", true},
		{"threads/other/notes.md", "", false},
		{"skills/other/SKILL.md", "", false},
		{"unrelated/key", "", false},
	}

	for _, tt := range tests {
		got, ok := scope.VirtualPath(tt.key)
		if ok != tt.wantOK {
			t.Errorf("VirtualPath(%q) ok = %v, want %v", tt.key, ok, tt.wantOK)
			continue
		}
		if got != tt.want {
			t.Errorf("VirtualPath(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestKeyRoundTrip(t *testing.T) {
	scope := Scope{ThreadID: "thread-42", UserID: "user-7"}
	paths := []string{
		"/workspace/notes.md",
		"/workspace/deep/nested/file.md",
		"/artifacts/out.md",
		"/skills/writing/SKILL.md",
	}
	for _, p := range paths {
		key, err := scope.KeyFor(p)
		if err != nil {
			t.Fatalf("KeyFor(%q) error: %v", p, err)
		}
		back, ok := scope.VirtualPath(key)
		if !ok || back != p {
			t.Errorf("round trip %q → %q → (%q, %v)", p, key, back, ok)
		}
	}
}
