package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNormalizeDefaults(t *testing.T) {
	var cfg Config
	cfg.General.Listen = "9000"
	cfg.Normalize()
	if cfg.General.Listen != ":9000" {
		t.Fatalf("expected listen :9000, got %q", cfg.General.Listen)
	}
	if cfg.Sessions.Backend != "memory" || cfg.Reports.Backend != "memory" {
		t.Fatalf("expected memory backends, got %q / %q", cfg.Sessions.Backend, cfg.Reports.Backend)
	}
	if cfg.Reports.Renderer != "chrome" {
		t.Fatalf("expected chrome renderer, got %q", cfg.Reports.Renderer)
	}
	if cfg.General.PipelineTimeout != 15*time.Minute {
		t.Fatalf("unexpected pipeline timeout %v", cfg.General.PipelineTimeout)
	}
	if cfg.LLM.Model == "" || cfg.LLM.BaseURL == "" {
		t.Fatalf("expected llm defaults, got %+v", cfg.LLM)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate defaults: %v", err)
	}
}

func TestValidateRejectsRedisWithoutHost(t *testing.T) {
	cfg := Config{Sessions: SessionsConfig{Backend: "redis"}}
	cfg.Normalize()
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for redis backend without host")
	}
	cfg.Redis = RedisConfig{Host: "localhost", Port: "6379"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPostgresDSN(t *testing.T) {
	dsn, err := PostgresConfig{Host: "db", User: "u", Password: "p", DBName: "reports"}.DSN()
	if err != nil {
		t.Fatalf("dsn: %v", err)
	}
	if dsn != "postgres://u:p@db:5432/reports?sslmode=disable" {
		t.Fatalf("unexpected dsn %q", dsn)
	}
	if _, err := (PostgresConfig{}).DSN(); err == nil {
		t.Fatalf("expected error for empty postgres config")
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{"general":{"listen":":8100"},"llm":{"model":"test-model"},"reports":{"renderer":"html"}}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PHARMAVERSE_CAPABILITY_BASE_URL", "http://providers:9000/")

	cfg := LoadConfig(path)
	if cfg.General.Listen != ":8100" {
		t.Fatalf("expected listen from file, got %q", cfg.General.Listen)
	}
	if cfg.LLM.Model != "test-model" {
		t.Fatalf("expected model from file, got %q", cfg.LLM.Model)
	}
	if cfg.Reports.Renderer != "html" {
		t.Fatalf("expected html renderer, got %q", cfg.Reports.Renderer)
	}
	if cfg.Capability.BaseURL != "http://providers:9000" {
		t.Fatalf("expected env override with trimmed slash, got %q", cfg.Capability.BaseURL)
	}
}

func TestLoadConfigPanicsOnInvalidBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"sessions":{"backend":"etcd"}}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for unsupported session backend")
		}
	}()
	LoadConfig(path)
}
