// Package config provides configuration file support for bookrec.
// It handles loading, validation, and environment variable interpolation
// for bookrec.yaml configuration files.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the full bookrec configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Retriever RetrieverConfig `mapstructure:"retriever"`
	Search    SearchConfig    `mapstructure:"search"`
	History   HistoryConfig   `mapstructure:"history"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// CatalogConfig holds the book catalog location.
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model"`
	BatchSize   int           `mapstructure:"batch_size"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	MaxWait     time.Duration `mapstructure:"max_wait"`
}

// RateLimitConfig holds the provider request budget.
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	RequestsPerDay    int `mapstructure:"requests_per_day"`
}

// RetrieverConfig holds vector DB settings.
type RetrieverConfig struct {
	Backend   string `mapstructure:"backend"`
	Index     string `mapstructure:"index"`
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
}

// SearchConfig holds pipeline sizing settings.
type SearchConfig struct {
	TopK     int           `mapstructure:"top_k"`
	FinalK   int           `mapstructure:"final_k"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// HistoryConfig holds the user data store settings.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	APIKeys []string `mapstructure:"api_keys"`
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Tracing TracingConfig `mapstructure:"tracing"`
}

// TracingConfig holds OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Exporter   string  `mapstructure:"exporter"`
	Endpoint   string  `mapstructure:"endpoint"`
	SampleRate float64 `mapstructure:"sample_rate"`
	Insecure   bool    `mapstructure:"insecure"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Catalog: CatalogConfig{
			Path: "books_with_emotions.csv",
		},
		Embedding: EmbeddingConfig{
			Provider:    "openai",
			Model:       "text-embedding-3-small",
			BatchSize:   100,
			MaxAttempts: 3,
			RetryDelay:  time.Second,
			MaxWait:     time.Minute,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 3000,
			RequestsPerDay:    1000000,
		},
		Retriever: RetrieverConfig{
			Backend: "pinecone",
		},
		Search: SearchConfig{
			TopK:     50,
			FinalK:   16,
			CacheTTL: time.Hour,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    "bookrec.db",
		},
		Auth: AuthConfig{
			APIKeys: []string{},
		},
		Telemetry: TelemetryConfig{
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "otlp",
				Endpoint:   "localhost:4317",
				SampleRate: 1.0,
				Insecure:   true,
			},
		},
	}
}

// Load reads configuration from the given viper instance and returns
// a validated Config. Environment variables in string values are
// interpolated using ${VAR} syntax.
func Load(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Interpolate environment variables in string fields
	interpolateConfig(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile reads a specific config file and returns a validated Config.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return Load(v)
}

// Validate checks the configuration for errors and returns a descriptive
// error if any field is invalid.
func Validate(cfg *Config) error {
	var errs []string

	// Server validation
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port: must be between 0 and 65535, got %d", cfg.Server.Port))
	}
	if cfg.Server.ReadTimeout < 0 {
		errs = append(errs, "server.read_timeout: must be non-negative")
	}
	if cfg.Server.WriteTimeout < 0 {
		errs = append(errs, "server.write_timeout: must be non-negative")
	}

	// Embedding validation
	validProviders := map[string]bool{"openai": true, "": true}
	if !validProviders[cfg.Embedding.Provider] {
		errs = append(errs, fmt.Sprintf("embedding.provider: unsupported provider %q (supported: openai)", cfg.Embedding.Provider))
	}
	if cfg.Embedding.BatchSize < 0 {
		errs = append(errs, "embedding.batch_size: must be non-negative")
	}
	if cfg.Embedding.MaxAttempts < 0 {
		errs = append(errs, "embedding.max_attempts: must be non-negative")
	}
	if cfg.Embedding.RetryDelay < 0 {
		errs = append(errs, "embedding.retry_delay: must be non-negative")
	}

	// Rate limit validation
	if cfg.RateLimit.RequestsPerMinute < 0 {
		errs = append(errs, "ratelimit.requests_per_minute: must be non-negative")
	}
	if cfg.RateLimit.RequestsPerDay < 0 {
		errs = append(errs, "ratelimit.requests_per_day: must be non-negative")
	}

	// Retriever validation
	validBackends := map[string]bool{"pinecone": true, "qdrant": true, "memory": true, "": true}
	if !validBackends[cfg.Retriever.Backend] {
		errs = append(errs, fmt.Sprintf("retriever.backend: unsupported backend %q (supported: pinecone, qdrant, memory)", cfg.Retriever.Backend))
	}

	// Search validation
	if cfg.Search.TopK < 0 {
		errs = append(errs, "search.top_k: must be non-negative")
	}
	if cfg.Search.FinalK < 0 {
		errs = append(errs, "search.final_k: must be non-negative")
	}
	if cfg.Search.TopK > 0 && cfg.Search.FinalK > cfg.Search.TopK {
		errs = append(errs, fmt.Sprintf("search.final_k: must not exceed search.top_k, got %d > %d", cfg.Search.FinalK, cfg.Search.TopK))
	}
	if cfg.Search.CacheTTL < 0 {
		errs = append(errs, "search.cache_ttl: must be non-negative")
	}

	// Telemetry validation
	validExporters := map[string]bool{"otlp": true, "stdout": true, "none": true, "": true}
	if !validExporters[cfg.Telemetry.Tracing.Exporter] {
		errs = append(errs, fmt.Sprintf("telemetry.tracing.exporter: unsupported exporter %q (supported: otlp, stdout, none)", cfg.Telemetry.Tracing.Exporter))
	}
	if cfg.Telemetry.Tracing.SampleRate < 0 || cfg.Telemetry.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Sprintf("telemetry.tracing.sample_rate: must be between 0 and 1, got %f", cfg.Telemetry.Tracing.SampleRate))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// envVarPattern matches ${VAR} or ${VAR:-default} syntax.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// InterpolateEnv replaces ${VAR} and ${VAR:-default} patterns in a string
// with the corresponding environment variable values.
func InterpolateEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		if defaultVal != "" {
			return defaultVal
		}
		return match
	})
}

// interpolateConfig applies environment variable interpolation to all
// string fields in the config.
func interpolateConfig(cfg *Config) {
	cfg.Server.Host = InterpolateEnv(cfg.Server.Host)
	cfg.Catalog.Path = InterpolateEnv(cfg.Catalog.Path)
	cfg.Embedding.Provider = InterpolateEnv(cfg.Embedding.Provider)
	cfg.Embedding.Model = InterpolateEnv(cfg.Embedding.Model)
	cfg.Retriever.Backend = InterpolateEnv(cfg.Retriever.Backend)
	cfg.Retriever.Index = InterpolateEnv(cfg.Retriever.Index)
	cfg.Retriever.Host = InterpolateEnv(cfg.Retriever.Host)
	cfg.Retriever.Namespace = InterpolateEnv(cfg.Retriever.Namespace)
	cfg.History.Path = InterpolateEnv(cfg.History.Path)

	for i, key := range cfg.Auth.APIKeys {
		cfg.Auth.APIKeys[i] = InterpolateEnv(key)
	}

	cfg.Telemetry.Tracing.Exporter = InterpolateEnv(cfg.Telemetry.Tracing.Exporter)
	cfg.Telemetry.Tracing.Endpoint = InterpolateEnv(cfg.Telemetry.Tracing.Endpoint)
}

// GenerateTemplate returns a YAML template string with all available
// configuration options and their defaults, suitable for writing to
// a bookrec.yaml file.
func GenerateTemplate() string {
	return `# bookrec Configuration
# See: https://github.com/ShreyashSoni/llm-semantic-book-recommender

server:
  port: 8080
  host: 0.0.0.0
  read_timeout: 30s
  write_timeout: 60s

catalog:
  path: books_with_emotions.csv

embedding:
  provider: openai
  model: text-embedding-3-small
  batch_size: 100
  max_attempts: 3
  retry_delay: 1s
  max_wait: 1m

ratelimit:
  requests_per_minute: 3000
  requests_per_day: 1000000

retriever:
  backend: pinecone    # pinecone, qdrant or memory
  index: ""
  host: ""             # required for qdrant
  namespace: ""

search:
  top_k: 50            # candidates fetched from the vector store
  final_k: 16          # recommendations returned
  cache_ttl: 1h

history:
  enabled: true
  path: bookrec.db

auth:
  api_keys:
    # - ${BOOKREC_API_KEY}

telemetry:
  tracing:
    enabled: false
    exporter: otlp       # otlp, stdout, or none
    endpoint: localhost:4317
    sample_rate: 1.0     # 0.0 to 1.0
    insecure: true
`
}
