package config

import (
	"time"

	"github.com/GoSim-25-26J-441/medvision-sim/internal/synth"
)

// Storage drivers
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Config represents the daemon configuration
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"` // json or text
	LogFile   *LogFileConfig  `yaml:"log_file,omitempty"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Notify    *NotifyConfig   `yaml:"notify,omitempty"`
	Generator synth.Catalogue `yaml:"generator"`
}

// LogFileConfig enables a rotating log file in addition to stdout
type LogFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// ServerConfig holds listener settings for the HTTP and gRPC APIs
type ServerConfig struct {
	HTTPAddr        string   `yaml:"http_addr"`
	GRPCAddr        string   `yaml:"grpc_addr"` // empty disables gRPC
	CORSOrigins     []string `yaml:"cors_origins"`
	ShutdownTimeout string   `yaml:"shutdown_timeout"` // e.g., "10s"
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	Driver string `yaml:"driver"` // memory or sqlite
	Path   string `yaml:"path"`   // sqlite database file
}

// NotifyConfig enables a webhook called when an experiment completes or fails
type NotifyConfig struct {
	URL         string `yaml:"url"` // may contain {experiment_id}
	Secret      string `yaml:"secret"`
	MaxRetries  int    `yaml:"max_retries"`
	Backoff     string `yaml:"backoff"` // constant or exponential
	BaseDelayMs int    `yaml:"base_delay_ms"`
	MaxDelayMs  int    `yaml:"max_delay_ms"`
	TimeoutMs   int    `yaml:"timeout_ms"`
}

// GetShutdownTimeout parses the shutdown timeout string to time.Duration
func (s *ServerConfig) GetShutdownTimeout() (time.Duration, error) {
	return time.ParseDuration(s.ShutdownTimeout)
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Server: ServerConfig{
			HTTPAddr:        ":8001",
			GRPCAddr:        ":9001",
			CORSOrigins:     []string{"*"},
			ShutdownTimeout: "10s",
		},
		Storage: StorageConfig{
			Driver: DriverMemory,
		},
		Generator: synth.DefaultCatalogue(),
	}
}
