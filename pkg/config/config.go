// Package config provides configuration structures and loading logic for the
// gateway.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the global configuration for the gateway.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Upstream   UpstreamConfig   `yaml:"upstream"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Database   DatabaseConfig   `yaml:"database"`
	Audit      AuditConfig      `yaml:"audit"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Logging    LoggingConfig    `yaml:"logging"`
	CORS       CORSConfig       `yaml:"cors"`
}

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// UpstreamConfig holds configuration for the proxied chat-completion
// provider.
type UpstreamConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// ClassifierConfig holds configuration for the external risk scorer.
type ClassifierConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxConcurrent  int    `yaml:"max_concurrent"`
}

// DatabaseConfig holds configuration for policy and audit persistence.
// An empty Path selects the in-memory store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuditConfig holds configuration for the async audit logger.
type AuditConfig struct {
	QueueSize int `yaml:"queue_size"`
}

// TelemetryConfig holds configuration for OpenTelemetry.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// CORSConfig holds the allowed origins for the browser dashboard.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Load reads configuration from a file and applies environment variable
// overrides. A missing path yields pure defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{
		// Defaults
		Server: ServerConfig{Address: ":8000"},
		Upstream: UpstreamConfig{
			BaseURL:        "https://api.openai.com/v1",
			TimeoutSeconds: 60,
		},
		Classifier: ClassifierConfig{
			BaseURL:        "http://localhost:9010",
			TimeoutSeconds: 30,
			MaxConcurrent:  4,
		},
		Database: DatabaseConfig{Path: "gateway.db"},
		Audit:    AuditConfig{QueueSize: 256},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
	}

	if path != "" {
		//nolint:gosec // Config file path is controlled by admin/operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("GATEWAY_LISTEN_ADDR"); val != "" {
		cfg.Server.Address = val
	}
	if val := os.Getenv("UPSTREAM_API_BASE"); val != "" {
		cfg.Upstream.BaseURL = val
	}
	if val := os.Getenv("UPSTREAM_API_KEY"); val != "" {
		cfg.Upstream.APIKey = val
	}
	if val := os.Getenv("CLASSIFIER_API_BASE"); val != "" {
		cfg.Classifier.BaseURL = val
	}
	if val := os.Getenv("GATEWAY_DB_PATH"); val != "" {
		cfg.Database.Path = val
	}
	if val := os.Getenv("GATEWAY_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("GATEWAY_OTLP_INSECURE"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Insecure = b
		}
	}
	if val := os.Getenv("GATEWAY_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("GATEWAY_CLASSIFIER_MAX_CONCURRENT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			cfg.Classifier.MaxConcurrent = n
		}
	}
	if val := os.Getenv("GATEWAY_CORS_ORIGINS"); val != "" {
		cfg.CORS.AllowedOrigins = strings.Split(val, ",")
	}
}

// Validate verifies the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url must not be empty")
	}
	if c.Classifier.BaseURL == "" {
		return fmt.Errorf("classifier.base_url must not be empty")
	}
	if c.Upstream.TimeoutSeconds < 0 || c.Classifier.TimeoutSeconds < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.Classifier.MaxConcurrent < 0 {
		return fmt.Errorf("classifier.max_concurrent must not be negative")
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}
	return nil
}
