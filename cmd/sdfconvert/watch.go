package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhongsheng-chen/SDF-Converter/internal/pipeline"
	"github.com/zhongsheng-chen/SDF-Converter/internal/watch"
)

var (
	watchDebounce time.Duration
	watchScan     bool
)

// watchCmd converts files dropped into a directory
var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Watch a drop directory and convert incoming SDF files",
	Long: `Monitors a directory for new or changed SDF files and converts each
one after it has stopped changing. Converted copies land in the usual
output directory, so the watched directory itself is left alone.

Runs until interrupted. Completed conversions are recorded in the
catalog when one is configured.

Example:
  sdfconvert watch /data/dropbox
  sdfconvert watch --scan --debounce 2s /data/dropbox`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 0, "Quiet period before a file is converted")
	watchCmd.Flags().BoolVar(&watchScan, "scan", false, "Convert files already in the directory before watching")
}

func runWatch(cmd *cobra.Command, args []string) error {
	dir := cfg.Watch.Dir
	if len(args) == 1 {
		dir = args[0]
	}
	if dir == "" {
		return fmt.Errorf("no drop directory: pass one or set watch.dir in the config")
	}

	debounce := cfg.GetDebounce()
	if cmd.Flags().Changed("debounce") {
		debounce = watchDebounce
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cat, err := openCatalog()
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	if cat != nil {
		defer cat.Close()
	}

	rc := &recordingConverter{
		conv:   pipeline.NewConverter(cfg, logger),
		cat:    cat,
		logger: logger,
	}

	w, err := watch.New(rc, watch.Options{
		Dir:        dir,
		Debounce:   debounce,
		Extensions: cfg.Watch.Extensions,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	if watchScan {
		if err := w.TriggerScan(ctx); err != nil {
			logger.Warn("Initial scan failed", zap.Error(err))
		}
	}

	fmt.Printf("Watching %s (Ctrl+C to stop)\n", dir)

	// Block until interrupted
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("Received shutdown signal")

	w.Stop()

	stats := w.GetStats()
	fmt.Printf("Converted %d files (%d failures)\n", stats.Conversions, stats.Failures)
	return nil
}
