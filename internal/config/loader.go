package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "helmsman.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "HELMSMAN_PORT")
	setString(&cfg.Server.CORSOrigin, "HELMSMAN_CORS_ORIGIN")
	setString(&cfg.Agent.BaseURL, "HELMSMAN_AGENT_URL")
	setString(&cfg.Logging.Level, "HELMSMAN_LOG_LEVEL")
	setString(&cfg.Logging.Service, "HELMSMAN_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "HELMSMAN_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "HELMSMAN_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Cooldown, "HELMSMAN_BREAKER_COOLDOWN")
	setInt64(&cfg.Cache.MaxSizeMB, "HELMSMAN_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.DedupeTTL, "HELMSMAN_CACHE_DEDUPE_TTL")
	setDuration(&cfg.Stream.Dwell, "HELMSMAN_STREAM_DWELL")
	setDuration(&cfg.Stream.HeartbeatTimeout, "HELMSMAN_STREAM_HEARTBEAT_TIMEOUT")
	setString(&cfg.Telemetry.OTLPEndpoint, "HELMSMAN_OTLP_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Agent.BaseURL == "" {
		return errors.New("agent.base_url is required")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Cache.MaxSizeMB < 1 {
		return errors.New("cache.max_size_mb must be >= 1")
	}
	if cfg.Stream.Dwell < 0 {
		return errors.New("stream.dwell must not be negative")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
