package config

// TracingConfig holds OTLP trace export settings.
// Endpoint is the OTLP/HTTP collector address (host:port, no scheme).
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"`
	Environment string `mapstructure:"environment" json:"environment"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
}
