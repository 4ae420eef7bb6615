// Package config provides configuration for the coordination memory store.
// Settings load from environment variables with the OPSCOORD_ prefix; a
// .env file in the working directory is read first when present, and the
// retention policy can be overridden by a YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/johnohhh1/opscoord/pkg/types"
)

// Config holds all settings for the coordination memory subsystem.
type Config struct {
	Storage   StorageConfig
	Retention RetentionConfig
	Context   ContextConfig
}

// StorageConfig selects and configures the backend.
type StorageConfig struct {
	Engine        string // Storage engine: sqlite, postgres (default: sqlite)
	SQLitePath    string // SQLite database file (default: ./data/opscoord.db)
	PostgresDSN   string // PostgreSQL connection string
	MigrationsDir string // Optional migrations directory; empty uses the embedded schema
}

// RetentionConfig tunes the lifecycle sweeps.
type RetentionConfig struct {
	PolicyFile         string // Optional YAML policy file
	ResolvedGraceDays  int    // Days resolved records stay before cleanup (default: 3)
	DedupWindowMinutes int    // Duplicate window in minutes (default: 60)
}

// ContextConfig tunes digest assembly.
type ContextConfig struct {
	WindowHours int // Context window in hours (default: 24)
	PerProducer int // Items per producer section (default: 10)
}

// LoadConfig loads configuration from the environment. A .env file in the
// working directory is applied first; real environment variables win.
func LoadConfig() (*Config, error) {
	// Best effort: absence of a .env file is the normal case.
	_ = godotenv.Load()

	return &Config{
		Storage: StorageConfig{
			Engine:        getEnv("OPSCOORD_STORAGE_ENGINE", "sqlite"),
			SQLitePath:    getEnv("OPSCOORD_SQLITE_PATH", "./data/opscoord.db"),
			PostgresDSN:   getEnv("OPSCOORD_POSTGRES_DSN", ""),
			MigrationsDir: getEnv("OPSCOORD_MIGRATIONS_DIR", ""),
		},
		Retention: RetentionConfig{
			PolicyFile:         getEnv("OPSCOORD_RETENTION_POLICY_FILE", ""),
			ResolvedGraceDays:  getEnvInt("OPSCOORD_RESOLVED_GRACE_DAYS", 3),
			DedupWindowMinutes: getEnvInt("OPSCOORD_DEDUP_WINDOW_MINUTES", 60),
		},
		Context: ContextConfig{
			WindowHours: getEnvInt("OPSCOORD_CONTEXT_WINDOW_HOURS", 24),
			PerProducer: getEnvInt("OPSCOORD_CONTEXT_PER_PRODUCER", 10),
		},
	}, nil
}

// ResolvedGrace returns the resolved-record grace period as a duration.
func (r RetentionConfig) ResolvedGrace() time.Duration {
	return time.Duration(r.ResolvedGraceDays) * 24 * time.Hour
}

// DedupWindow returns the dedup window as a duration.
func (r RetentionConfig) DedupWindow() time.Duration {
	return time.Duration(r.DedupWindowMinutes) * time.Minute
}

// retentionFile is the YAML shape of a retention policy file:
//
//	retention_days:
//	  email_analyzed: 14
//	  question_answered: 7
//	resolved_grace_days: 3
//	dedup_window_minutes: 60
type retentionFile struct {
	RetentionDays      map[string]int `yaml:"retention_days"`
	ResolvedGraceDays  int            `yaml:"resolved_grace_days"`
	DedupWindowMinutes int            `yaml:"dedup_window_minutes"`
}

// RetentionPolicy holds the parsed contents of a retention policy file.
type RetentionPolicy struct {
	MaxAge        map[types.EventKind]time.Duration
	ResolvedGrace time.Duration
	DedupWindow   time.Duration
}

// LoadRetentionPolicy parses the YAML policy file named by the config.
// Returns nil when no policy file is configured. Unknown event kinds and
// non-positive ages are rejected rather than silently dropped.
func (c *Config) LoadRetentionPolicy() (*RetentionPolicy, error) {
	path := c.Retention.PolicyFile
	if path == "" {
		return nil, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read retention policy file: %w", err)
	}

	var f retentionFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("config: failed to parse retention policy file: %w", err)
	}

	policy := &RetentionPolicy{
		MaxAge:        make(map[types.EventKind]time.Duration, len(f.RetentionDays)),
		ResolvedGrace: c.Retention.ResolvedGrace(),
		DedupWindow:   c.Retention.DedupWindow(),
	}

	for name, days := range f.RetentionDays {
		kind := types.EventKind(name)
		if !types.IsValidEventKind(kind) {
			return nil, fmt.Errorf("config: unknown event kind %q in retention policy", name)
		}
		if days <= 0 {
			return nil, fmt.Errorf("config: non-positive retention for %q", name)
		}
		policy.MaxAge[kind] = time.Duration(days) * 24 * time.Hour
	}

	if f.ResolvedGraceDays > 0 {
		policy.ResolvedGrace = time.Duration(f.ResolvedGraceDays) * 24 * time.Hour
	}
	if f.DedupWindowMinutes > 0 {
		policy.DedupWindow = time.Duration(f.DedupWindowMinutes) * time.Minute
	}

	return policy, nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
