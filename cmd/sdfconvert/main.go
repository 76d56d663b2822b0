package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/zhongsheng-chen/SDF-Converter/internal/config"
)

var (
	// Global flags
	cfgPath string
	verbose bool

	cfg    *config.Config
	logger *zap.Logger
)

const defaultConfigPath = "sdfconvert.yaml"

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "sdfconvert",
	Short: "SDF-Converter - repair and convert structure-data files",
	Long: `sdfconvert repairs structure-data (SDF) files whose records lost their
V2000 counts line or "M  END" terminator, a defect common in spectral
library exports.

Each record is classified against the V2000 layout, repaired when the
fix is unambiguous, verified by re-parsing the molfile, and written to a
converted copy. Records that cannot be repaired safely are collected in
a side file instead of being guessed at.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath())
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		zapCfg := zap.NewProductionConfig()
		level, parseErr := zapcore.ParseLevel(cfg.Logging.Level)
		if parseErr != nil {
			level = zapcore.InfoLevel
		}
		if verbose {
			level = zapcore.DebugLevel
		}
		zapCfg.Level = zap.NewAtomicLevelAt(level)

		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// configPath resolves the config file location: flag, then environment,
// then the working directory default.
func configPath() string {
	if cfgPath != "" {
		return cfgPath
	}
	if env := os.Getenv("SDFCONVERT_CONFIG"); env != "" {
		return env
	}
	return defaultConfigPath
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file (default sdfconvert.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	// Add commands to root
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(initCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
