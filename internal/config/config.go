// Package config provides environment configuration for the chat client.
package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the application.
type Config struct {
	// Gateway settings
	GatewayURL     string        `env:"CHAT_GATEWAY_URL,required"`
	SessionToken   string        `env:"CHAT_SESSION_TOKEN"`
	RequestTimeout time.Duration `env:"CHAT_REQUEST_TIMEOUT" envDefault:"120s"`
	DefaultModel   string        `env:"CHAT_DEFAULT_MODEL" envDefault:"google/gemini-2.5-flash-lite"`

	// Persistence: when empty, conversations live in memory only.
	DatabaseURL string `env:"DATABASE_URL"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Metrics: address for the debug/metrics listener, empty to disable.
	MetricsAddr string `env:"METRICS_ADDR"`

	// Tracing
	TracingEnabled  bool   `env:"TRACING_ENABLED" envDefault:"false"`
	TracingEndpoint string `env:"TRACING_ENDPOINT" envDefault:"localhost:4318"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
