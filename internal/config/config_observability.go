package config

import (
	"io"

	"github.com/agentcore/nexus/internal/observability"
)

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Endpoint       string  `yaml:"endpoint"`
	ServiceName    string  `yaml:"service_name"`
	ServiceVersion string  `yaml:"service_version"`
	Environment    string  `yaml:"environment"`
	SamplingRate   float64 `yaml:"sampling_rate"`
	Insecure       bool    `yaml:"insecure"`
}

// LogConfig builds an observability.LogConfig from the configured level and
// format, writing to out (typically os.Stderr).
func (c LoggingConfig) LogConfig(out io.Writer) observability.LogConfig {
	return observability.LogConfig{
		Level:  c.Level,
		Format: c.Format,
		Output: out,
	}
}

// TraceConfig builds an observability.TraceConfig from the configured
// tracing settings. Tracing stays disabled (Endpoint == "") unless Enabled
// is set.
func (c TracingConfig) TraceConfig() observability.TraceConfig {
	cfg := observability.TraceConfig{
		ServiceName:    c.ServiceName,
		ServiceVersion: c.ServiceVersion,
		Environment:    c.Environment,
		SamplingRate:   c.SamplingRate,
		EnableInsecure: c.Insecure,
	}
	if c.Enabled {
		cfg.Endpoint = c.Endpoint
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "agentcore"
	}
	if cfg.SamplingRate == 0 {
		cfg.SamplingRate = 1.0
	}
	return cfg
}
