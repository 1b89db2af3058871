package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// LoadConfig loads and parses a configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := ParseConfigYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// validateConfig performs validation on the configuration
func validateConfig(cfg *Config) error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return fmt.Errorf("invalid log_format: %s (must be json or text)", cfg.LogFormat)
	}

	if cfg.LogFile != nil {
		if cfg.LogFile.Path == "" {
			return fmt.Errorf("log_file path cannot be empty")
		}
		if cfg.LogFile.MaxSizeMB < 0 || cfg.LogFile.MaxBackups < 0 || cfg.LogFile.MaxAgeDays < 0 {
			return fmt.Errorf("log_file rotation limits cannot be negative")
		}
	}

	if err := validateServer(&cfg.Server); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}

	if err := validateStorage(&cfg.Storage); err != nil {
		return fmt.Errorf("storage validation failed: %w", err)
	}

	if cfg.Notify != nil {
		if err := validateNotify(cfg.Notify); err != nil {
			return fmt.Errorf("notify validation failed: %w", err)
		}
	}

	if err := cfg.Generator.Validate(); err != nil {
		return fmt.Errorf("generator validation failed: %w", err)
	}

	return nil
}

// validateServer validates the listener configuration
func validateServer(s *ServerConfig) error {
	if s.HTTPAddr == "" {
		return fmt.Errorf("http_addr cannot be empty")
	}
	if s.GRPCAddr != "" && s.GRPCAddr == s.HTTPAddr {
		return fmt.Errorf("grpc_addr must differ from http_addr")
	}
	d, err := s.GetShutdownTimeout()
	if err != nil {
		return fmt.Errorf("invalid shutdown_timeout %s: %w", s.ShutdownTimeout, err)
	}
	if d <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive, got %s", s.ShutdownTimeout)
	}
	return nil
}

// validateStorage validates the storage configuration
func validateStorage(s *StorageConfig) error {
	switch s.Driver {
	case DriverMemory:
		return nil
	case DriverSQLite:
		if s.Path == "" {
			return fmt.Errorf("sqlite driver requires a path")
		}
		return nil
	default:
		return fmt.Errorf("invalid driver: %s (must be memory or sqlite)", s.Driver)
	}
}

// validateNotify validates the webhook configuration
func validateNotify(n *NotifyConfig) error {
	u, err := url.Parse(strings.ReplaceAll(n.URL, "{experiment_id}", "x"))
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", n.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", n.URL)
	}
	if n.MaxRetries < 0 || n.BaseDelayMs < 0 || n.MaxDelayMs < 0 || n.TimeoutMs < 0 {
		return fmt.Errorf("retry limits and delays cannot be negative")
	}
	switch n.Backoff {
	case "", "constant", "exponential":
	default:
		return fmt.Errorf("invalid backoff: %s (must be constant or exponential)", n.Backoff)
	}
	return nil
}
