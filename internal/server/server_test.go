package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/driftworks/workbench/internal/config"
	"github.com/driftworks/workbench/internal/sandbox"
	"github.com/driftworks/workbench/internal/skills"
	"github.com/driftworks/workbench/internal/state"
	"github.com/driftworks/workbench/internal/store"
	"github.com/driftworks/workbench/internal/vfs"
)

func newTestServer(t *testing.T, auth config.AuthConfig) (*Server, *store.MemoryStore) {
	return newTestServerWithSkills(t, auth, nil)
}

// newTestServerWithSkills seeds the skill cache from seed, keyed by
// cache-relative path ("user/skill/SKILL.md").
func newTestServerWithSkills(t *testing.T, auth config.AuthConfig, seed map[string]string) (*Server, *store.MemoryStore) {
	t.Helper()

	states, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("state.Open error: %v", err)
	}
	t.Cleanup(func() { states.Close() })

	runtime, err := sandbox.NewLocalRuntime(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalRuntime error: %v", err)
	}

	skillsDir := t.TempDir()
	for rel, content := range seed {
		p := filepath.Join(skillsDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	loader := skills.NewLoader(skillsDir)
	if err := loader.LoadAll(); err != nil {
		t.Fatalf("LoadAll error: %v", err)
	}

	objects := store.NewMemoryStore()
	policy := vfs.DefaultWritePolicy()
	syncer := sandbox.NewSyncer(objects, states, runtime, policy)
	manager := sandbox.NewManager(runtime, states, syncer, sandbox.ManagerConfig{})
	backend := vfs.NewBackend(objects, policy)

	return New(config.ServerConfig{}, auth, backend, manager, loader), objects
}

func doJSON(t *testing.T, handler http.Handler, method, target string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, config.AuthConfig{})
	rec := doJSON(t, srv.Router(), http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
}

func TestFSWriteReadList(t *testing.T) {
	srv, _ := newTestServer(t, config.AuthConfig{})
	router := srv.Router()
	headers := map[string]string{"X-Thread-ID": "t1"}

	rec := doJSON(t, router, http.MethodPost, "/v1/fs/write",
		map[string]any{"path": "/workspace/notes.md", "content": "hello world"}, headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("write = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/v1/fs/read?path=/workspace/notes.md", nil, headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("read = %d: %s", rec.Code, rec.Body.String())
	}
	var readResp struct {
		Content string `json:"content"`
	}
	json.Unmarshal(rec.Body.Bytes(), &readResp)
	if readResp.Content != "hello world" {
		t.Errorf("read content = %q", readResp.Content)
	}

	rec = doJSON(t, router, http.MethodGet, "/v1/fs/list?path=/workspace", nil, headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("list = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "/workspace/notes.md") {
		t.Errorf("list body = %s", rec.Body.String())
	}
}

func TestFSErrorsMapToStatuses(t *testing.T) {
	srv, _ := newTestServer(t, config.AuthConfig{})
	router := srv.Router()
	headers := map[string]string{"X-Thread-ID": "t1"}

	tests := []struct {
		name   string
		method string
		target string
		body   any
		want   int
	}{
		{"missing file", http.MethodGet, "/v1/fs/read?path=/workspace/nope.md", nil, http.StatusNotFound},
		{"unknown mount", http.MethodGet, "/v1/fs/read?path=/etc/passwd", nil, http.StatusBadRequest},
		{"read-only mount", http.MethodPost, "/v1/fs/write",
			map[string]any{"path": "/skills/x/SKILL.md", "content": "x"}, http.StatusForbidden},
		{"bad extension", http.MethodPost, "/v1/fs/write",
			map[string]any{"path": "/workspace/x.py", "content": "x"}, http.StatusForbidden},
		{"missing path", http.MethodPost, "/v1/fs/write", map[string]any{"content": "x"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		rec := doJSON(t, router, tt.method, tt.target, tt.body, headers)
		if rec.Code != tt.want {
			t.Errorf("%s = %d, want %d (%s)", tt.name, rec.Code, tt.want, rec.Body.String())
		}
	}
}

func TestFSEditConflict(t *testing.T) {
	srv, _ := newTestServer(t, config.AuthConfig{})
	router := srv.Router()
	headers := map[string]string{"X-Thread-ID": "t1"}

	doJSON(t, router, http.MethodPost, "/v1/fs/write",
		map[string]any{"path": "/workspace/d.md", "content": "x y x"}, headers)

	rec := doJSON(t, router, http.MethodPost, "/v1/fs/edit",
		map[string]any{"path": "/workspace/d.md", "old_string": "x", "new_string": "z"}, headers)
	if rec.Code != http.StatusConflict {
		t.Errorf("ambiguous edit = %d, want 409", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/fs/edit",
		map[string]any{"path": "/workspace/d.md", "old_string": "x", "new_string": "z", "replace_all": true}, headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("replace-all edit = %d: %s", rec.Code, rec.Body.String())
	}
	var editResp struct {
		Replaced int `json:"replaced"`
	}
	json.Unmarshal(rec.Body.Bytes(), &editResp)
	if editResp.Replaced != 2 {
		t.Errorf("replaced = %d, want 2", editResp.Replaced)
	}
}

func TestExecEndpoint(t *testing.T) {
	srv, objects := newTestServer(t, config.AuthConfig{})
	router := srv.Router()
	headers := map[string]string{"X-Thread-ID": "t1"}

	rec := doJSON(t, router, http.MethodPost, "/v1/exec",
		map[string]any{"command": "echo from-sandbox > workspace/out.md && echo ok"}, headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("exec = %d: %s", rec.Code, rec.Body.String())
	}
	var resp execResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if strings.TrimSpace(resp.Stdout) != "ok" || resp.ExitCode != 0 {
		t.Errorf("exec response = %+v", resp)
	}

	// The command's markdown output was pushed to the store.
	body, err := objects.Get(context.Background(), "threads/t1/out.md")
	if err != nil {
		t.Fatalf("pushed file missing: %v", err)
	}
	if strings.TrimSpace(string(body)) != "from-sandbox" {
		t.Errorf("pushed content = %q", body)
	}

	// Missing thread scope is rejected.
	rec = doJSON(t, router, http.MethodPost, "/v1/exec", map[string]any{"command": "true"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("exec without thread = %d, want 400", rec.Code)
	}
}

func TestJWTAuth(t *testing.T) {
	secret := "test-secret"
	srv, objects := newTestServer(t, config.AuthConfig{JWTSecret: secret})
	router := srv.Router()

	objects.Put(context.Background(), "threads/t1/notes.md", []byte("private"))

	// No token.
	rec := doJSON(t, router, http.MethodGet, "/v1/fs/read?path=/workspace/notes.md&thread=t1", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", rec.Code)
	}

	// Garbage token.
	rec = doJSON(t, router, http.MethodGet, "/v1/fs/read?path=/workspace/notes.md&thread=t1", nil,
		map[string]string{"Authorization": "Bearer not.a.token"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token = %d, want 401", rec.Code)
	}

	// Token signed with the wrong key.
	wrong := signToken(t, "other-secret", "u1")
	rec = doJSON(t, router, http.MethodGet, "/v1/fs/read?path=/workspace/notes.md&thread=t1", nil,
		map[string]string{"Authorization": "Bearer " + wrong})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong-key token = %d, want 401", rec.Code)
	}

	// Valid token.
	good := signToken(t, secret, "u1")
	rec = doJSON(t, router, http.MethodGet, "/v1/fs/read?path=/workspace/notes.md&thread=t1", nil,
		map[string]string{"Authorization": "Bearer " + good})
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "private") {
		t.Errorf("read body = %s", rec.Body.String())
	}
}

func TestSkillsEndpoints(t *testing.T) {
	srv, _ := newTestServerWithSkills(t, config.AuthConfig{}, map[string]string{
		"u1/weekly-report/SKILL.md": "---\nname: weekly-report\ndescription: Summarize the week\n---\nbody\n",
		"u2/standup-notes/SKILL.md": "---\nname: standup-notes\ndescription: Capture standups\n---\nbody\n",
	})
	router := srv.Router()
	asU2 := map[string]string{"X-User-ID": "u2"}

	// The catalog only shows the caller's own library.
	rec := doJSON(t, router, http.MethodGet, "/v1/skills", nil, asU2)
	if rec.Code != http.StatusOK {
		t.Fatalf("skills = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "standup-notes") {
		t.Errorf("own skill missing from catalog: %s", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "weekly-report") {
		t.Errorf("another user's skill in catalog: %s", rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/v1/skills/standup-notes", nil, asU2)
	if rec.Code != http.StatusOK {
		t.Fatalf("own skill = %d: %s", rec.Code, rec.Body.String())
	}
	// Another user's skill name is indistinguishable from a missing one.
	rec = doJSON(t, router, http.MethodGet, "/v1/skills/weekly-report", nil, asU2)
	if rec.Code != http.StatusNotFound {
		t.Errorf("cross-user skill = %d, want 404", rec.Code)
	}
	rec = doJSON(t, router, http.MethodGet, "/v1/skills/nope", nil, asU2)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing skill = %d, want 404", rec.Code)
	}

	// No user identity means an empty catalog, not everyone's skills.
	rec = doJSON(t, router, http.MethodGet, "/v1/skills", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("anonymous skills = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "weekly-report") || strings.Contains(rec.Body.String(), "standup-notes") {
		t.Errorf("anonymous catalog leaked skills: %s", rec.Body.String())
	}
}

func signToken(t *testing.T, secret, sub string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

