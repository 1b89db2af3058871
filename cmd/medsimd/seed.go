package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/GoSim-25-26J-441/medvision-sim/internal/lab"
	"github.com/GoSim-25-26J-441/medvision-sim/pkg/logger"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Reset the configured store and load the demo datasets, models and experiments",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logCloser, err := setupLogging(cfg)
		if err != nil {
			return err
		}
		defer logCloser.Close()

		l, cleanup, err := openLab(cfg, lab.Options{})
		if err != nil {
			return err
		}
		defer cleanup()

		sum, err := l.Seed(cmd.Context())
		if err != nil {
			return err
		}
		logger.Info("demo data seeded", "storage", cfg.Storage.Driver, "path", cfg.Storage.Path)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	},
}
