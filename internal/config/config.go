// Package config loads workbench configuration from YAML with environment
// variable expansion, so deployments can keep secrets out of the file and
// inject them via the environment (or a .env file loaded at startup).
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the full workbench configuration tree.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Sandbox SandboxConfig `yaml:"sandbox"`
	State   StateConfig   `yaml:"state"`
	Skills  SkillsConfig  `yaml:"skills"`
	Auth    AuthConfig    `yaml:"auth"`
	Verbose bool          `yaml:"verbose"`
}

// ServerConfig configures the HTTP API listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StoreConfig configures the object-store backend. When Bucket is empty the
// service runs on the in-memory store (useful for development and tests).
type StoreConfig struct {
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`      // custom S3-compatible endpoint, optional
	PathStyle    bool   `yaml:"path_style"`    // required by MinIO and most compatibles
	AccessKey    string `yaml:"access_key"`    // optional, falls back to default chain
	SecretKey    string `yaml:"secret_key"`
	CreateBucket bool   `yaml:"create_bucket"` // best-effort bucket auto-creation
}

// SandboxConfig configures sandbox lifecycle management.
type SandboxConfig struct {
	RootDir     string `yaml:"root_dir"`     // where local sandboxes keep their workdirs
	PoolSize    int    `yaml:"pool_size"`    // warm sandboxes to keep ready
	IdleMinutes int    `yaml:"idle_minutes"` // teardown after this much inactivity
	ExecTimeout int    `yaml:"exec_timeout"` // per-command timeout, seconds
}

// StateConfig configures the durable state database.
type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// SkillsConfig configures the skill cache.
type SkillsConfig struct {
	CacheDir string `yaml:"cache_dir"`
}

// AuthConfig configures API authentication. An empty secret disables auth
// (development only; serve logs a warning).
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// LoadFromBytes parses YAML configuration with ${VAR} environment expansion
// applied first.
func LoadFromBytes(data []byte) (Config, error) {
	c := defaults()
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &c); err != nil {
		return c, fmt.Errorf("parse config: %w", err)
	}
	// Unset ${VAR} references expand to "", which would otherwise wipe the
	// defaults they shadow.
	if c.Store.Region == "" {
		c.Store.Region = "us-east-1"
	}
	return c, c.validate()
}

// LoadFile reads and parses a configuration file.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return LoadFromBytes(data)
}

func defaults() Config {
	return Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8632},
		Store:  StoreConfig{Region: "us-east-1", CreateBucket: true},
		Sandbox: SandboxConfig{
			RootDir:     "./data/sandboxes",
			PoolSize:    2,
			IdleMinutes: 30,
			ExecTimeout: 120,
		},
		State:  StateConfig{SQLitePath: "./data/workbench.db"},
		Skills: SkillsConfig{CacheDir: "./data/skills"},
	}
}

func (c Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Sandbox.PoolSize < 0 {
		return fmt.Errorf("sandbox pool_size must not be negative")
	}
	if c.Store.Bucket != "" && strings.ContainsAny(c.Store.Bucket, " /") {
		return fmt.Errorf("invalid bucket name %q", c.Store.Bucket)
	}
	return nil
}

// Addr returns the host:port the server listens on.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
