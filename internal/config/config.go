package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the faqd service configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Redis      RedisConfig      `yaml:"redis"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generative GenerativeConfig `yaml:"generative"`
	Routing    RoutingConfig    `yaml:"routing"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// PostgresConfig holds corpus database connection settings.
type PostgresConfig struct {
	DSN              string `yaml:"dsn"`
	MaxConns         int    `yaml:"max_conns"`
	ReadinessTimeout int    `yaml:"readiness_timeout_sec"`
}

// RedisConfig holds enrichment queue connection settings.
type RedisConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	Stream           string   `yaml:"stream"`
	Group            string   `yaml:"group"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"` // inputs longer than this are truncated
	TimeoutSec int    `yaml:"timeout_sec"`
	CacheSize  int    `yaml:"cache_size"` // bounded LRU of previously embedded texts
}

// GenerativeConfig holds generative fallback settings.
type GenerativeConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
	TimeoutSec  int     `yaml:"timeout_sec"`
}

// RoutingConfig holds the corpus-vs-fallback decision settings.
type RoutingConfig struct {
	// SimilarityThreshold is the minimum score at which a corpus match is
	// trusted. Tuning parameter, not part of the API contract.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	DefaultCollection   string  `yaml:"default_collection"`
}

// EnrichmentConfig holds async corpus write-back settings.
type EnrichmentConfig struct {
	MaxAttempts int `yaml:"max_attempts"` // deliveries per task before it is dropped
	BlockMsec   int `yaml:"block_msec"`   // XREADGROUP block interval
	ClaimSec    int `yaml:"claim_min_idle_sec"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Postgres.MaxConns <= 0 {
		c.Postgres.MaxConns = 8
	}
	if c.Postgres.ReadinessTimeout <= 0 {
		c.Postgres.ReadinessTimeout = 10
	}
	if c.Redis.Stream == "" {
		c.Redis.Stream = "faqd:enrichment"
	}
	if c.Redis.Group == "" {
		c.Redis.Group = "enrichers"
	}
	if c.Redis.ReadinessTimeout <= 0 {
		c.Redis.ReadinessTimeout = 10
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Embedding.MaxTokens <= 0 {
		c.Embedding.MaxTokens = 512
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 15
	}
	if c.Embedding.CacheSize <= 0 {
		c.Embedding.CacheSize = 4096
	}
	if c.Generative.Model == "" {
		c.Generative.Model = "gpt-4o-mini"
	}
	if c.Generative.MaxTokens <= 0 {
		c.Generative.MaxTokens = 200
	}
	if c.Generative.Temperature <= 0 {
		c.Generative.Temperature = 0.3
	}
	if c.Generative.TimeoutSec <= 0 {
		c.Generative.TimeoutSec = 30
	}
	if c.Routing.SimilarityThreshold <= 0 {
		c.Routing.SimilarityThreshold = 0.85
	}
	if c.Routing.DefaultCollection == "" {
		c.Routing.DefaultCollection = "faq"
	}
	if c.Enrichment.MaxAttempts <= 0 {
		c.Enrichment.MaxAttempts = 3
	}
	if c.Enrichment.BlockMsec <= 0 {
		c.Enrichment.BlockMsec = 5000
	}
	if c.Enrichment.ClaimSec <= 0 {
		c.Enrichment.ClaimSec = 60
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required")
	}
	if len(c.Redis.Addrs) == 0 {
		return fmt.Errorf("redis.addrs is required")
	}
	if c.Routing.SimilarityThreshold > 1 {
		return fmt.Errorf("routing.similarity_threshold must be at most 1, got %g",
			c.Routing.SimilarityThreshold)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
