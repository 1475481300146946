package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromBytesDefaults(t *testing.T) {
	c, err := LoadFromBytes([]byte(""))
	if err != nil {
		t.Fatalf("LoadFromBytes error: %v", err)
	}
	if c.Server.Port != 8632 {
		t.Errorf("default port = %d", c.Server.Port)
	}
	if c.Sandbox.PoolSize != 2 || c.Sandbox.IdleMinutes != 30 || c.Sandbox.ExecTimeout != 120 {
		t.Errorf("sandbox defaults = %+v", c.Sandbox)
	}
	if c.Store.Region != "us-east-1" {
		t.Errorf("default region = %q", c.Store.Region)
	}
	if !c.Store.CreateBucket {
		t.Error("create_bucket should default to true")
	}
}

func TestLoadFromBytesOverrides(t *testing.T) {
	yaml := `
server:
  host: 127.0.0.1
  port: 9000
store:
  bucket: my-bucket
  path_style: true
sandbox:
  pool_size: 5
`
	c, err := LoadFromBytes([]byte(yaml))
	if err != nil {
		t.Fatalf("LoadFromBytes error: %v", err)
	}
	if c.Server.Addr() != "127.0.0.1:9000" {
		t.Errorf("Addr = %q", c.Server.Addr())
	}
	if c.Store.Bucket != "my-bucket" || !c.Store.PathStyle {
		t.Errorf("store = %+v", c.Store)
	}
	if c.Sandbox.PoolSize != 5 {
		t.Errorf("pool_size = %d", c.Sandbox.PoolSize)
	}
	// Untouched sections keep their defaults.
	if c.Sandbox.IdleMinutes != 30 {
		t.Errorf("idle_minutes = %d", c.Sandbox.IdleMinutes)
	}
}

func TestLoadFromBytesExpandsEnv(t *testing.T) {
	t.Setenv("TEST_WB_BUCKET", "env-bucket")
	t.Setenv("TEST_WB_SECRET", "env-secret")

	yaml := `
store:
  bucket: ${TEST_WB_BUCKET}
auth:
  jwt_secret: ${TEST_WB_SECRET}
`
	c, err := LoadFromBytes([]byte(yaml))
	if err != nil {
		t.Fatalf("LoadFromBytes error: %v", err)
	}
	if c.Store.Bucket != "env-bucket" {
		t.Errorf("bucket = %q", c.Store.Bucket)
	}
	if c.Auth.JWTSecret != "env-secret" {
		t.Errorf("jwt_secret = %q", c.Auth.JWTSecret)
	}
}

func TestLoadFromBytesUnsetEnvKeepsRegionDefault(t *testing.T) {
	c, err := LoadFromBytes([]byte("store:\n  region: ${UNSET_WB_REGION_VAR}\n"))
	if err != nil {
		t.Fatalf("LoadFromBytes error: %v", err)
	}
	if c.Store.Region != "us-east-1" {
		t.Errorf("region = %q, want default restored", c.Store.Region)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad port", "server:\n  port: -1\n"},
		{"bad pool size", "sandbox:\n  pool_size: -3\n"},
		{"bad bucket", "store:\n  bucket: \"has space\"\n"},
	}
	for _, tt := range tests {
		if _, err := LoadFromBytes([]byte(tt.yaml)); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wb.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 7777\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}
	if c.Server.Port != 7777 {
		t.Errorf("port = %d", c.Server.Port)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFile on missing path should fail")
	}
}
