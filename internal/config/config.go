// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.ragline/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: generation model, router classifier model, embedder
//   - Retrieval: topK bounds, per-adapter timeouts, confidence threshold
//   - Storage: PostgreSQL connection (vector store + structured corpus)
//   - Session: Redis connection and idle TTL
//   - Documents: S3 bucket and presign window for citation resolution
//   - Server: listen address, rate limiting, proxy trust
//   - Observability: OTLP trace exporter
//
// Sensitive values (passwords, secret keys) are masked in MarshalJSON and
// never logged. Validation is fail-fast with sentinel errors usable via
// errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidModelName indicates the generation model name is empty.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidTopK indicates the retrieval topK is out of range.
	ErrInvalidTopK = errors.New("invalid topK")

	// ErrInvalidThreshold indicates the routing confidence threshold is out of range.
	ErrInvalidThreshold = errors.New("invalid confidence threshold")

	// ErrInvalidTimeout indicates a timeout value is non-positive.
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrInvalidRetries indicates the retry count is out of range.
	ErrInvalidRetries = errors.New("invalid max retries")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidRedisAddr indicates the Redis address is empty while sessions are enabled.
	ErrInvalidRedisAddr = errors.New("invalid Redis address")

	// ErrInvalidSessionTTL indicates the session idle TTL is non-positive.
	ErrInvalidSessionTTL = errors.New("invalid session TTL")

	// ErrMissingBucket indicates the document bucket is not configured.
	ErrMissingBucket = errors.New("missing document bucket")

	// ErrInvalidPresignTTL indicates the presign expiry window is out of range.
	ErrInvalidPresignTTL = errors.New("invalid presign TTL")
)

// Default bounds for retrieval and routing.
const (
	// DefaultTopK is the default number of chunks retrieved per query.
	DefaultTopK = 5

	// MaxTopK caps retrieval size so prompts stay bounded.
	MaxTopK = 10

	// DefaultConfidenceThreshold routes to both adapters below this score.
	DefaultConfidenceThreshold = 0.6
)

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// AI model configuration
	Provider      string  `mapstructure:"provider" json:"provider"`             // "gemini" (default), "ollama"
	ModelName     string  `mapstructure:"model_name" json:"model_name"`         // generation model
	RouterModel   string  `mapstructure:"router_model" json:"router_model"`     // classifier model (empty = heuristic only)
	EmbedderModel string  `mapstructure:"embedder_model" json:"embedder_model"` // embedder for vector retrieval
	Temperature   float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens" json:"max_tokens"`
	OllamaHost    string  `mapstructure:"ollama_host" json:"ollama_host"`

	// Routing and retrieval
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" json:"confidence_threshold"`
	TopK                int     `mapstructure:"top_k" json:"top_k"`
	RetrievalTimeoutMs  int     `mapstructure:"retrieval_timeout_ms" json:"retrieval_timeout_ms"`
	GenerationTimeoutMs int     `mapstructure:"generation_timeout_ms" json:"generation_timeout_ms"`
	MaxRetries          int     `mapstructure:"max_retries" json:"max_retries"`

	// Prompt budget (tokens available for evidence in the composed prompt)
	EvidenceTokenBudget int `mapstructure:"evidence_token_budget" json:"evidence_token_budget"`

	// PostgreSQL (vector store + structured corpus)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Session memory (Redis). Empty addr disables session memory.
	RedisAddr     string `mapstructure:"redis_addr" json:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" json:"redis_password"` // SENSITIVE: masked in MarshalJSON
	RedisDB       int    `mapstructure:"redis_db" json:"redis_db"`
	SessionTTLMin int    `mapstructure:"session_ttl_min" json:"session_ttl_min"`

	// Document store (citation resolution)
	DocumentBucket  string `mapstructure:"document_bucket" json:"document_bucket"`
	DocumentRegion  string `mapstructure:"document_region" json:"document_region"`
	S3Endpoint      string `mapstructure:"s3_endpoint" json:"s3_endpoint"` // optional, for MinIO/localstack
	S3AccessKey     string `mapstructure:"s3_access_key" json:"s3_access_key"`
	S3SecretKey     string `mapstructure:"s3_secret_key" json:"s3_secret_key"` // SENSITIVE: masked in MarshalJSON
	PresignTTLMin   int    `mapstructure:"presign_ttl_min" json:"presign_ttl_min"`

	// Server
	ListenAddr string  `mapstructure:"listen_addr" json:"listen_addr"`
	RatePerSec float64 `mapstructure:"rate_per_sec" json:"rate_per_sec"` // per-client sustained rate, 0 disables limiting
	RateBurst  int     `mapstructure:"rate_burst" json:"rate_burst"`
	TrustProxy bool    `mapstructure:"trust_proxy" json:"trust_proxy"`

	// Observability
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name" json:"service_name"`
	Environment  string `mapstructure:"environment" json:"environment"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".ragline")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	viper.SetDefault("provider", "gemini")
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("router_model", "") // empty = deterministic heuristic routing
	viper.SetDefault("embedder_model", "gemini-embedding-001")
	viper.SetDefault("temperature", 0.2)
	viper.SetDefault("max_tokens", 2048)
	viper.SetDefault("ollama_host", "http://localhost:11434")

	viper.SetDefault("confidence_threshold", DefaultConfidenceThreshold)
	viper.SetDefault("top_k", DefaultTopK)
	viper.SetDefault("retrieval_timeout_ms", 10000)
	viper.SetDefault("generation_timeout_ms", 60000)
	viper.SetDefault("max_retries", 2)
	viper.SetDefault("evidence_token_budget", 6000)

	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "ragline")
	viper.SetDefault("postgres_password", "ragline_dev_password")
	viper.SetDefault("postgres_db_name", "ragline")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("redis_addr", "localhost:6379")
	viper.SetDefault("redis_db", 0)
	viper.SetDefault("session_ttl_min", 30)

	viper.SetDefault("document_region", "us-east-1")
	viper.SetDefault("presign_ttl_min", 15)

	viper.SetDefault("listen_addr", ":8080")
	viper.SetDefault("rate_per_sec", 10)
	viper.SetDefault("rate_burst", 60)
	viper.SetDefault("trust_proxy", false)

	viper.SetDefault("otlp_endpoint", "")
	viper.SetDefault("service_name", "ragline")
	viper.SetDefault("environment", "dev")
}

// bindEnvVariables binds environment variables explicitly.
// GEMINI_API_KEY is read directly by Genkit, not via Viper.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "RAGLINE_PROVIDER")
	mustBind("model_name", "RAGLINE_MODEL_NAME")
	mustBind("router_model", "RAGLINE_ROUTER_MODEL")
	mustBind("embedder_model", "RAGLINE_EMBEDDER_MODEL")
	mustBind("ollama_host", "RAGLINE_OLLAMA_HOST")

	mustBind("postgres_host", "RAGLINE_POSTGRES_HOST")
	mustBind("postgres_port", "RAGLINE_POSTGRES_PORT")
	mustBind("postgres_user", "RAGLINE_POSTGRES_USER")
	mustBind("postgres_password", "RAGLINE_POSTGRES_PASSWORD")
	mustBind("postgres_db_name", "RAGLINE_POSTGRES_DB")

	mustBind("redis_addr", "RAGLINE_REDIS_ADDR")
	mustBind("redis_password", "RAGLINE_REDIS_PASSWORD")

	mustBind("document_bucket", "RAGLINE_DOCUMENT_BUCKET")
	mustBind("document_region", "AWS_REGION")
	mustBind("s3_endpoint", "RAGLINE_S3_ENDPOINT")
	mustBind("s3_access_key", "AWS_ACCESS_KEY_ID")
	mustBind("s3_secret_key", "AWS_SECRET_ACCESS_KEY")

	mustBind("listen_addr", "RAGLINE_LISTEN_ADDR")
	mustBind("trust_proxy", "RAGLINE_TRUST_PROXY")

	mustBind("otlp_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
	mustBind("service_name", "OTEL_SERVICE_NAME")
}

// PostgresURL returns a postgres:// connection URL for migrations and pooling.
func (c *Config) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.PostgresUser),
		url.QueryEscape(c.PostgresPassword),
		c.PostgresHost, c.PostgresPort, c.PostgresDBName, c.PostgresSSLMode)
}

// RetrievalTimeout returns the per-adapter retrieval timeout.
func (c *Config) RetrievalTimeout() time.Duration {
	return time.Duration(c.RetrievalTimeoutMs) * time.Millisecond
}

// GenerationTimeout returns the generation call timeout.
func (c *Config) GenerationTimeout() time.Duration {
	return time.Duration(c.GenerationTimeoutMs) * time.Millisecond
}

// SessionTTL returns the session idle eviction window.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMin) * time.Minute
}

// PresignTTL returns the presigned URL validity window.
func (c *Config) PresignTTL() time.Duration {
	return time.Duration(c.PresignTTLMin) * time.Minute
}

// SessionsEnabled reports whether session memory is configured.
func (c *Config) SessionsEnabled() bool {
	return c.RedisAddr != ""
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Short secrets are fully masked to prevent substring matching.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
// When adding new secrets (passwords, API keys), mask them here.
func (c *Config) MarshalJSON() ([]byte, error) {
	type alias Config // avoid recursion
	masked := alias(*c)
	masked.PostgresPassword = maskSecret(c.PostgresPassword)
	masked.RedisPassword = maskSecret(c.RedisPassword)
	masked.S3SecretKey = maskSecret(c.S3SecretKey)
	return json.Marshal(masked)
}
