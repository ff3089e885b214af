// Package config provides hierarchical configuration loading for Helmsman.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the Helmsman service.
type Config struct {
	Server    Server    `yaml:"server"`
	Agent     Agent     `yaml:"agent"`
	Logging   Logging   `yaml:"logging"`
	Breaker   Breaker   `yaml:"breaker"`
	Cache     Cache     `yaml:"cache"`
	Stream    Stream    `yaml:"stream"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// Agent holds the agent backend connection configuration.
type Agent struct {
	BaseURL string `yaml:"base_url"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Breaker holds circuit breaker configuration for the agent backend.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Cooldown    time.Duration `yaml:"cooldown"`
}

// Cache holds in-process cache configuration.
type Cache struct {
	MaxSizeMB int64         `yaml:"max_size_mb"`
	DedupeTTL time.Duration `yaml:"dedupe_ttl"`
}

// Stream holds turn streaming behavior.
type Stream struct {
	// Dwell is the pause between a turn's terminal event and draining the
	// next queued input. Cosmetic, not correctness-bearing.
	Dwell time.Duration `yaml:"dwell"`
	// HeartbeatTimeout resets on every received event; 0 disables the
	// stalled-stream watchdog entirely.
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`
}

// Telemetry holds OpenTelemetry export configuration. An empty endpoint
// disables export.
type Telemetry struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8080",
			CORSOrigin: "http://localhost:5173",
		},
		Agent: Agent{
			BaseURL: "http://localhost:4096",
		},
		Logging: Logging{
			Level:   "info",
			Service: "helmsman",
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Cooldown:    30 * time.Second,
		},
		Cache: Cache{
			MaxSizeMB: 64,
			DedupeTTL: 5 * time.Minute,
		},
		Stream: Stream{
			Dwell: 500 * time.Millisecond,
		},
	}
}
