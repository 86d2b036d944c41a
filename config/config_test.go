package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("expected sqlite, got %s", cfg.Storage.Backend)
	}
	if cfg.Scheduler.Hour != 3 || cfg.Scheduler.Minute != 0 {
		t.Errorf("expected 03:00, got %02d:%02d", cfg.Scheduler.Hour, cfg.Scheduler.Minute)
	}
	if cfg.Embedding.Dimensions != 768 {
		t.Errorf("expected 768, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.RateLimit.FailOpen {
		t.Error("expected fail-closed by default")
	}
	if cfg.WorkingMemory.MaxConversations != 5 {
		t.Errorf("expected MaxConversations 5, got %d", cfg.WorkingMemory.MaxConversations)
	}
	if cfg.WorkingMemory.TTL() != 7*24*time.Hour {
		t.Errorf("expected TTL 7 days, got %v", cfg.WorkingMemory.TTL())
	}
}

func TestLoadFromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	os.WriteFile(path, []byte(`
[storage]
backend = "postgres"
postgres_dsn = "postgres://localhost/vesper"

[scheduler]
hour = 4
minute = 30
`), 0644)

	cfg := Load(path)
	if cfg.Storage.Backend != "postgres" {
		t.Errorf("expected postgres, got %s", cfg.Storage.Backend)
	}
	if cfg.Scheduler.Hour != 4 || cfg.Scheduler.Minute != 30 {
		t.Errorf("expected 04:30, got %02d:%02d", cfg.Scheduler.Hour, cfg.Scheduler.Minute)
	}
	// Defaults preserved for untouched sections
	if cfg.Embedding.Provider != "gemini" {
		t.Errorf("default should be preserved, got %s", cfg.Embedding.Provider)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("VESPER_STORAGE_BACKEND", "postgres")
	t.Setenv("VESPER_EMBEDDING_API_KEY", "env-key")
	t.Setenv("VESPER_RATE_LIMIT_FAIL_OPEN", "true")

	cfg := Load("/nonexistent/path.toml")
	if cfg.Storage.Backend != "postgres" {
		t.Errorf("expected postgres from env, got %s", cfg.Storage.Backend)
	}
	if cfg.Embedding.APIKey != "env-key" {
		t.Errorf("expected env-key, got %s", cfg.Embedding.APIKey)
	}
	if !cfg.RateLimit.FailOpen {
		t.Error("expected fail-open from env override")
	}
}

func TestWorkingMemoryEnvOverride(t *testing.T) {
	t.Setenv("VESPER_WORKING_MEMORY_MAX_CONVERSATIONS", "10")
	t.Setenv("VESPER_WORKING_MEMORY_TTL_SECONDS", "3600")

	cfg := Load("/nonexistent/path.toml")
	if cfg.WorkingMemory.MaxConversations != 10 {
		t.Errorf("expected MaxConversations 10 from env, got %d", cfg.WorkingMemory.MaxConversations)
	}
	if cfg.WorkingMemory.TTL() != time.Hour {
		t.Errorf("expected TTL 1h from env, got %v", cfg.WorkingMemory.TTL())
	}
}

func TestEnsureStorageRootWarnsOnHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		t.Skip("no home directory available")
	}
	cfg := Default()
	cfg.Storage.Root = home
	warning, err := EnsureStorageRoot(cfg)
	if err != nil {
		t.Fatalf("EnsureStorageRoot: %v", err)
	}
	if warning == "" {
		t.Error("expected a warning when storage root is the home directory")
	}
}

func TestEnsureStorageRootCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "vesper")
	cfg := Default()
	cfg.Storage.Root = dir
	if _, err := EnsureStorageRoot(cfg); err != nil {
		t.Fatalf("EnsureStorageRoot: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if !info.IsDir() {
		t.Error("expected storage root to be created as a directory")
	}
}
