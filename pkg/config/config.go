package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all runtime configuration for the engine. Values are read
// from config.yaml when present, with environment variables taking
// precedence. Secrets are env-only and never read from the file.
type Config struct {
	Env     string `yaml:"env" env:"ENGINE_ENV" env-default:"development"`
	Port    string `yaml:"port" env:"PORT" env-default:"8080"`
	Version string `yaml:"-"`

	Store    StoreConfig    `yaml:"store"`
	Query    QueryConfig    `yaml:"query"`
	Metadata MetadataConfig `yaml:"metadata"`
	Export   ExportConfig   `yaml:"export"`
	LLM      LLMConfig      `yaml:"llm"`
	MCP      MCPConfig      `yaml:"mcp"`
}

// StoreConfig locates the local SQLite store that keeps registered
// connections, metadata snapshots, and query history.
type StoreConfig struct {
	Path           string `yaml:"path" env:"ENGINE_STORE_PATH" env-default:"dbscope.db"`
	MigrationsPath string `yaml:"migrations_path" env:"ENGINE_MIGRATIONS_PATH" env-default:"migrations"`
}

// QueryConfig bounds ad-hoc query execution against registered databases.
type QueryConfig struct {
	DefaultLimit int           `yaml:"default_limit" env:"ENGINE_QUERY_DEFAULT_LIMIT" env-default:"1000"`
	Timeout      time.Duration `yaml:"timeout" env:"ENGINE_QUERY_TIMEOUT" env-default:"30s"`
	HistoryLimit int           `yaml:"history_limit" env:"ENGINE_QUERY_HISTORY_LIMIT" env-default:"50"`
	PoolMinConns int32         `yaml:"pool_min_conns" env:"ENGINE_QUERY_POOL_MIN_CONNS" env-default:"1"`
	PoolMaxConns int32         `yaml:"pool_max_conns" env:"ENGINE_QUERY_POOL_MAX_CONNS" env-default:"10"`
}

// MetadataConfig controls schema snapshot caching.
type MetadataConfig struct {
	TTL time.Duration `yaml:"ttl" env:"ENGINE_METADATA_TTL" env-default:"24h"`
}

// ExportConfig controls signed export links. Secret is env-only; when unset
// outside production a per-process secret is generated, which invalidates
// outstanding links on restart.
type ExportConfig struct {
	Secret   string        `yaml:"-" env:"ENGINE_EXPORT_SECRET"`
	TokenTTL time.Duration `yaml:"token_ttl" env:"ENGINE_EXPORT_TOKEN_TTL" env-default:"5m"`
	BaseURL  string        `yaml:"base_url" env:"ENGINE_BASE_URL"`
}

// LLMConfig selects and tunes the model used for SQL generation.
type LLMConfig struct {
	Provider    string  `yaml:"provider" env:"ENGINE_LLM_PROVIDER" env-default:"openai"`
	Endpoint    string  `yaml:"endpoint" env:"ENGINE_LLM_ENDPOINT"`
	Model       string  `yaml:"model" env:"ENGINE_LLM_MODEL" env-default:"gpt-4o-mini"`
	APIKey      string  `yaml:"-" env:"ENGINE_LLM_API_KEY"`
	Temperature float64 `yaml:"temperature" env:"ENGINE_LLM_TEMPERATURE" env-default:"0.1"`
	MaxTokens   int     `yaml:"max_tokens" env:"ENGINE_LLM_MAX_TOKENS" env-default:"500"`
}

// MCPConfig toggles the MCP endpoint that exposes read-only tools.
type MCPConfig struct {
	Enabled bool `yaml:"enabled" env:"ENGINE_MCP_ENABLED" env-default:"true"`
}

// Load reads configuration from ENGINE_CONFIG_PATH (default config.yaml)
// when the file exists, falling back to environment variables alone.
func Load(version string) (*Config, error) {
	cfg := &Config{}

	path := os.Getenv("ENGINE_CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	cfg.Version = version

	if err := cfg.resolveExportSecret(); err != nil {
		return nil, err
	}
	if cfg.Export.BaseURL == "" {
		cfg.Export.BaseURL = fmt.Sprintf("http://localhost:%s", cfg.Port)
	}

	return cfg, nil
}

// resolveExportSecret requires an explicit secret in production and
// generates a per-process one everywhere else.
func (c *Config) resolveExportSecret() error {
	if c.Export.Secret != "" {
		return nil
	}
	if c.Env == "production" {
		return fmt.Errorf("ENGINE_EXPORT_SECRET is required when ENGINE_ENV=production")
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("failed to generate export secret: %w", err)
	}
	c.Export.Secret = hex.EncodeToString(buf)
	return nil
}

// IsDevelopment reports whether the engine runs with development defaults.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
