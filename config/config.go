// Package config loads vesper-memory's runtime configuration: storage
// backend selection, scheduler timing, rate-limit tier defaults, and
// embedding settings. Adapted from the teacher's config package —
// same defaults-then-TOML-then-env layering, same BurntSushi/toml
// loader.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration object.
type Config struct {
	Storage      StorageConfig      `toml:"storage"`
	Embedding    EmbeddingConfig    `toml:"embedding"`
	Scheduler    SchedulerConfig    `toml:"scheduler"`
	RateLimit    RateLimitConfig    `toml:"rate_limit"`
	Consolidation ConsolidationConfig `toml:"consolidation"`
	Observer     ObserverConfig     `toml:"observer"`
	MCP          MCPConfig          `toml:"mcp"`
	WorkingMemory WorkingMemoryConfig `toml:"working_memory"`
}

// StorageConfig selects and configures the C1/C2/C3 backing stores.
type StorageConfig struct {
	// Backend is "sqlite" or "postgres".
	Backend string `toml:"backend"`
	// Root is the directory vesper-memory's sqlite database files live
	// under (cache.db, graph.db, skill.db). Created with 0700.
	Root string `toml:"root"`
	// PostgresDSN is used when Backend == "postgres".
	PostgresDSN string `toml:"postgres_dsn"`
}

// EmbeddingConfig configures the C9 embedder.
type EmbeddingConfig struct {
	Provider   string `toml:"provider"`
	Model      string `toml:"model"`
	Dimensions int    `toml:"dimensions"`
	APIKey     string `toml:"api_key"`
}

// SchedulerConfig configures C6's daily consolidation fire time.
type SchedulerConfig struct {
	Hour   int `toml:"hour"`
	Minute int `toml:"minute"`
}

// ConsolidationConfig holds C5's per-cycle read cap and pruning
// thresholds. Package consolidation does not read these fields; it uses
// its own constants, which have the same values as these defaults.
type ConsolidationConfig struct {
	MaxConversationsPerCycle int     `toml:"max_conversations_per_cycle"`
	PruneMinStrength         float64 `toml:"prune_min_strength"`
	PruneMinAccessCount      int64   `toml:"prune_min_access_count"`
}

// RateLimitConfig configures C8's fail-open/fail-closed behavior.
type RateLimitConfig struct {
	FailOpen bool `toml:"fail_open"`
}

// ObserverConfig toggles C10's OTEL instrumentation.
type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
}

// MCPConfig configures the stdio JSON-RPC transport.
type MCPConfig struct {
	ServerName    string `toml:"server_name"`
	ServerVersion string `toml:"server_version"`
}

// WorkingMemoryConfig configures C1's retention window (§4.1): the
// per-namespace recency cap and the TTL every cached key carries.
type WorkingMemoryConfig struct {
	MaxConversations int `toml:"max_conversations"`
	TTLSeconds       int `toml:"ttl_seconds"`
}

// TTL returns the configured TTL as a time.Duration.
func (w WorkingMemoryConfig) TTL() time.Duration {
	return time.Duration(w.TTLSeconds) * time.Second
}

// Default returns a Config with every field at its documented default.
func Default() Config {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "/tmp"
	}
	return Config{
		Storage: StorageConfig{
			Backend: "sqlite",
			Root:    filepath.Join(home, ".vesper-memory"),
		},
		Embedding: EmbeddingConfig{
			Provider:   "gemini",
			Model:      "text-embedding-004",
			Dimensions: 768,
		},
		Scheduler: SchedulerConfig{Hour: 3, Minute: 0},
		Consolidation: ConsolidationConfig{
			MaxConversationsPerCycle: 100,
			PruneMinStrength:         0.05,
			PruneMinAccessCount:      3,
		},
		RateLimit: RateLimitConfig{FailOpen: false},
		Observer:  ObserverConfig{Enabled: false},
		MCP:       MCPConfig{ServerName: "vesper-memory", ServerVersion: "0.1.0"},
		WorkingMemory: WorkingMemoryConfig{
			MaxConversations: 5,
			TTLSeconds:       7 * 24 * 3600,
		},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins). path
// defaults to "vesper.toml" in the working directory; a missing file is
// not an error, since Default() already populated every field.
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "vesper.toml"
	}
	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	if v := os.Getenv("VESPER_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("VESPER_STORAGE_ROOT"); v != "" {
		cfg.Storage.Root = v
	}
	if v := os.Getenv("VESPER_POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv("VESPER_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if os.Getenv("VESPER_RATE_LIMIT_FAIL_OPEN") == "true" || os.Getenv("VESPER_RATE_LIMIT_FAIL_OPEN") == "1" {
		cfg.RateLimit.FailOpen = true
	}
	if os.Getenv("VESPER_OBSERVER_ENABLED") == "true" || os.Getenv("VESPER_OBSERVER_ENABLED") == "1" {
		cfg.Observer.Enabled = true
	}
	if v := os.Getenv("VESPER_WORKING_MEMORY_MAX_CONVERSATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WorkingMemory.MaxConversations = n
		}
	}
	if v := os.Getenv("VESPER_WORKING_MEMORY_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WorkingMemory.TTLSeconds = n
		}
	}

	return cfg
}

// EnsureStorageRoot creates cfg.Storage.Root with 0700 permissions and
// returns a warning string (not an error — callers log it) if the root
// resolves to a system directory or the user's home directory itself,
// since consolidation backups and sqlite WAL files should not be mixed
// into either.
func EnsureStorageRoot(cfg Config) (warning string, err error) {
	root := cfg.Storage.Root
	if err := os.MkdirAll(root, 0o700); err != nil {
		return "", fmt.Errorf("config: create storage root %q: %w", root, err)
	}
	home, _ := os.UserHomeDir()
	abs, absErr := filepath.Abs(root)
	if absErr == nil {
		switch abs {
		case "/", "/root", "/home", home:
			warning = fmt.Sprintf("storage root %q resolves to a system or home directory", abs)
		}
	}
	return warning, nil
}
