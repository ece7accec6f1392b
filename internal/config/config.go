// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (./config.yaml or /etc/policyfaq/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - AI: Provider, model and embedder selection
//   - Storage: PostgreSQL connection (see storage.go)
//   - Ingestion: Chunk size and overlap for document splitting
//   - Retrieval: Top-K for similarity search
//   - Session: Idle eviction threshold and sweep interval
//   - Server: Listen address, CORS, rate limiting
//   - Observability: OTLP trace export (see observability.go)
//
// Security: Sensitive data (passwords) are never logged.
// Validation: Range checks in validation.go with clear error messages.
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidChunking indicates chunk size or overlap is out of range.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrInvalidTopK indicates the retrieval top-k value is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval top-k")

	// ErrInvalidSessionTTL indicates the session idle threshold or sweep interval is invalid.
	ErrInvalidSessionTTL = errors.New("invalid session lifetime settings")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidServerAddr indicates the HTTP listen address is invalid.
	ErrInvalidServerAddr = errors.New("invalid server address")

	// ErrInvalidRateLimit indicates the rate limit settings are out of range.
	ErrInvalidRateLimit = errors.New("invalid rate limit settings")
)

const (
	// DefaultGeminiEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 outputs 3072 dimensions by default, but supports
	// truncation to 768 via OutputDimensionality. Our pgvector schema uses
	// 768 dimensions; see vecstore.VectorDimension.
	DefaultGeminiEmbedderModel = "gemini-embedding-001"

	// DefaultChunkSize is the default maximum chunk length in characters.
	DefaultChunkSize = 500

	// DefaultChunkOverlap is the default overlap between adjacent chunks.
	DefaultChunkOverlap = 50

	// DefaultTopK is the default number of chunks retrieved per question.
	DefaultTopK = 6

	// DefaultSessionIdle is the default idle threshold before a session
	// and its indexed documents are evicted.
	DefaultSessionIdle = 30 * time.Minute

	// DefaultSweepInterval is how often expired sessions are swept.
	DefaultSweepInterval = 5 * time.Minute
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderOllama   = "ollama"
	ProviderGoogleAI = "googleai"
)

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys, tokens), update MarshalJSON.
type Config struct {
	// AI provider and model configuration
	Provider      string  `mapstructure:"provider" json:"provider"`     // "gemini" (default), "ollama"
	ModelName     string  `mapstructure:"model_name" json:"model_name"` // Model identifier (e.g. "gemini-2.5-flash", "llama3.3")
	Temperature   float32 `mapstructure:"temperature" json:"temperature"`
	EmbedderModel string  `mapstructure:"embedder_model" json:"embedder_model"`

	// Ollama configuration (only used when provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// Ingestion configuration
	ChunkSize    int `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap" json:"chunk_overlap"`

	// Retrieval configuration
	TopK int `mapstructure:"top_k" json:"top_k"`

	// Session lifecycle configuration
	SessionIdle   time.Duration `mapstructure:"session_idle" json:"session_idle"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" json:"sweep_interval"`

	// Storage configuration (see storage.go for documentation)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// HTTP server configuration
	ServerAddr     string   `mapstructure:"server_addr" json:"server_addr"`
	CORSOrigins    []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy     bool     `mapstructure:"trust_proxy" json:"trust_proxy"` // Trust X-Real-IP/X-Forwarded-For headers (set true behind reverse proxy)
	RateLimitRPS   float64  `mapstructure:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst" json:"rate_limit_burst"`

	// Observability configuration (see observability.go for type definition)
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/policyfaq")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{".", "/etc/policyfaq"},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// Parse DATABASE_URL if set (highest priority for PostgreSQL config)
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	// CRITICAL: Validate immediately (fail-fast)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// AI defaults
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("temperature", 0.2)
	viper.SetDefault("embedder_model", DefaultGeminiEmbedderModel)

	// Ollama defaults
	viper.SetDefault("ollama_host", "http://localhost:11434")

	// Ingestion defaults
	viper.SetDefault("chunk_size", DefaultChunkSize)
	viper.SetDefault("chunk_overlap", DefaultChunkOverlap)

	// Retrieval defaults
	viper.SetDefault("top_k", DefaultTopK)

	// Session defaults
	viper.SetDefault("session_idle", DefaultSessionIdle)
	viper.SetDefault("sweep_interval", DefaultSweepInterval)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "policyfaq")
	viper.SetDefault("postgres_password", "policyfaq_dev_password")
	viper.SetDefault("postgres_db_name", "policyfaq")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Server defaults
	viper.SetDefault("server_addr", ":8080")
	viper.SetDefault("cors_origins", []string{"http://localhost:5173"})
	viper.SetDefault("trust_proxy", false)
	viper.SetDefault("rate_limit_rps", 10.0)
	viper.SetDefault("rate_limit_burst", 20)

	// Tracing defaults
	viper.SetDefault("tracing.endpoint", "localhost:4318")
	viper.SetDefault("tracing.environment", "dev")
	viper.SetDefault("tracing.service_name", "policyfaq")
}

// bindEnvVariables binds environment variables explicitly.
// GEMINI_API_KEY is read directly by Genkit (not via Viper); its presence
// is checked in cfg.Validate() when the provider requires it.
func bindEnvVariables() {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail).
	// If this panics, it's a BUG in our code, not a runtime error.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	// AI provider and model overrides
	mustBind("provider", "POLICYFAQ_PROVIDER")
	mustBind("model_name", "POLICYFAQ_MODEL_NAME")
	mustBind("embedder_model", "POLICYFAQ_EMBEDDER_MODEL")
	mustBind("ollama_host", "POLICYFAQ_OLLAMA_HOST")

	// Server overrides
	mustBind("server_addr", "POLICYFAQ_SERVER_ADDR")
	mustBind("cors_origins", "POLICYFAQ_CORS_ORIGINS")
	mustBind("trust_proxy", "POLICYFAQ_TRUST_PROXY")

	// Session overrides
	mustBind("session_idle", "POLICYFAQ_SESSION_IDLE")
	mustBind("sweep_interval", "POLICYFAQ_SWEEP_INTERVAL")

	// Tracing endpoint override
	mustBind("tracing.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")

	// NOTE: DATABASE_URL is parsed separately in parseDatabaseURL()
}

// maskedValue is the placeholder for masked sensitive data.
// Using ████████ (full-width blocks U+2588) to avoid substring matching
// against passwords that contain ASCII mask characters.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Shows first 2 and last 2 characters, masks the rest.
// SECURITY: For secrets <=8 chars, fully masks to prevent substring attacks.
//
// THREAT MODEL: This defends against accidental logging of real secrets.
// It is NOT cryptographically secure - if logs are compromised, rotate secrets.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	prefix := make([]byte, 2)
	suffix := make([]byte, 2)
	copy(prefix, s[:2])
	copy(suffix, s[len(s)-2:])
	return string(prefix) + "<" + maskedValue + ">" + string(suffix)
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked:
//   - PostgresPassword
//
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// FullModelName returns the provider-qualified model name for Genkit.
// Examples: "googleai/gemini-2.5-flash", "ollama/llama3.3".
// If ModelName already contains a "/", it is returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	switch c.Provider {
	case ProviderOllama:
		return ProviderOllama + "/" + c.ModelName
	default:
		return ProviderGoogleAI + "/" + c.ModelName
	}
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
