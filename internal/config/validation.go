package config

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// 1. API Key validation (Gemini provider only; Ollama runs locally)
	if c.Provider != ProviderOllama && os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
			"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
			ErrMissingAPIKey)
	}

	// 2. Model configuration validation
	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}

	// Temperature range: 0.0 (deterministic) to 2.0 (maximum creativity)
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	// 3. Ingestion configuration validation
	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size), got %d for chunk_size %d",
			ErrInvalidChunking, c.ChunkOverlap, c.ChunkSize)
	}

	// 4. Retrieval configuration validation
	if c.TopK < 1 || c.TopK > 50 {
		return fmt.Errorf("%w: must be between 1 and 50, got %d", ErrInvalidTopK, c.TopK)
	}

	// 5. Session lifecycle validation
	if c.SessionIdle < time.Minute {
		return fmt.Errorf("%w: session_idle must be at least 1 minute, got %s",
			ErrInvalidSessionTTL, c.SessionIdle)
	}
	if c.SweepInterval < time.Second {
		return fmt.Errorf("%w: sweep_interval must be at least 1 second, got %s",
			ErrInvalidSessionTTL, c.SweepInterval)
	}
	if c.SweepInterval > c.SessionIdle {
		return fmt.Errorf("%w: sweep_interval %s exceeds session_idle %s",
			ErrInvalidSessionTTL, c.SweepInterval, c.SessionIdle)
	}

	// 6. PostgreSQL configuration validation
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}

	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set in config.yaml",
			ErrInvalidPostgresPassword)
	}

	// Warn if using default dev password (but don't block - user might be in dev)
	if c.PostgresPassword == "policyfaq_dev_password" {
		slog.Warn("Using default development password for PostgreSQL",
			"warning", "Change postgres_password in config.yaml for production deployments")
	}

	if len(c.PostgresPassword) < 8 {
		return fmt.Errorf("%w: postgres_password must be at least 8 characters (got %d)",
			ErrInvalidPostgresPassword, len(c.PostgresPassword))
	}

	// 7. PostgreSQL SSL mode validation
	// Modern SSL modes only - exclude deprecated allow/prefer (MITM vulnerable)
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if c.PostgresSSLMode == "" {
		return fmt.Errorf("%w: postgres_ssl_mode is empty (should have default from setDefaults)",
			ErrInvalidPostgresSSLMode)
	}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v\n"+
			"Note: 'allow' and 'prefer' modes are deprecated (vulnerable to MITM attacks)",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	// 8. Server configuration validation
	if c.ServerAddr == "" || !strings.Contains(c.ServerAddr, ":") {
		return fmt.Errorf("%w: %q must be in host:port form", ErrInvalidServerAddr, c.ServerAddr)
	}

	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("%w: rate_limit_rps must be positive, got %g", ErrInvalidRateLimit, c.RateLimitRPS)
	}
	if c.RateLimitBurst < 1 {
		return fmt.Errorf("%w: rate_limit_burst must be at least 1, got %d", ErrInvalidRateLimit, c.RateLimitBurst)
	}

	return nil
}
