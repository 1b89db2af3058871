package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/GoSim-25-26J-441/medvision-sim/pkg/config"
	"github.com/GoSim-25-26J-441/medvision-sim/pkg/logger"
)

// --- Global flags ---
var (
	configPath string
	logLevel   string

	rootCmd = &cobra.Command{
		Use:   "medsimd",
		Short: "Synthetic training and evaluation metrics for the MedVision SSL dashboard",
		Long: `medsimd simulates self-supervised pretraining runs on medical imaging datasets.
It serves experiment lifecycle, evaluation and visualization data over HTTP and gRPC.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config YAML (defaults are used when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd, seedCmd, curveCmd)
}

// loadConfig reads --config, or the built-in defaults, and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

// setupLogging installs the configured logger as the package default.
func setupLogging(cfg *config.Config) (io.Closer, error) {
	opts := logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat}
	if f := cfg.LogFile; f != nil {
		opts.File = f.Path
		opts.MaxSizeMB = f.MaxSizeMB
		opts.MaxBackups = f.MaxBackups
		opts.MaxAgeDays = f.MaxAgeDays
	}
	l, closer, err := logger.Setup(opts, os.Stdout)
	if err != nil {
		return nil, fmt.Errorf("set up logging: %w", err)
	}
	logger.SetDefault(l)
	return closer, nil
}
