package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhongsheng-chen/SDF-Converter/cmd/sdfconvert/ui"
	"github.com/zhongsheng-chen/SDF-Converter/internal/catalog"
	"github.com/zhongsheng-chen/SDF-Converter/internal/pipeline"
)

var (
	convertOutputDir  string
	convertFailedFile string
	convertCatalogDB  string
	convertWorkers    int
	convertMaxAtoms   int
	convertNoVerify   bool
	convertVerifyAll  bool
	convertNoFailed   bool
	convertNoCatalog  bool
)

// convertCmd repairs and converts SDF files
var convertCmd = &cobra.Command{
	Use:   "convert [file...]",
	Short: "Repair and convert one or more SDF files",
	Long: `Runs each file through the repair pipeline and writes the converted
copy into the output directory ("converted" beside the input unless
configured otherwise). Unrepairable records land in a *_failed.sdf file
next to the converted output, each tagged with a FAILURE_REASON data
item.

Example:
  sdfconvert convert library.sdf
  sdfconvert convert -j 8 -o /data/clean exports/*.sdf`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().StringVarP(&convertOutputDir, "output", "o", "", "Output directory (default: \"converted\" beside each input)")
	convertCmd.Flags().StringVar(&convertFailedFile, "failed-output", "", "File collecting unrepairable records (default: \"<name>_failed.sdf\" beside the output)")
	convertCmd.Flags().StringVar(&convertCatalogDB, "catalog", "", "Catalog database recording the run")
	convertCmd.Flags().IntVarP(&convertWorkers, "workers", "j", 0, "Concurrent repair workers")
	convertCmd.Flags().IntVar(&convertMaxAtoms, "max-atoms", 0, "Atom-count ceiling when inferring a counts line")
	convertCmd.Flags().BoolVar(&convertNoVerify, "no-verify", false, "Skip re-parsing repaired records")
	convertCmd.Flags().BoolVar(&convertVerifyAll, "verify-well-formed", false, "Also re-parse records that needed no repair")
	convertCmd.Flags().BoolVar(&convertNoFailed, "no-failed", false, "Discard unrepairable records instead of writing a failures file")
	convertCmd.Flags().BoolVar(&convertNoCatalog, "no-catalog", false, "Do not record the run in the catalog")
}

// recordingConverter wraps a Converter so every completed run lands in
// the catalog. With a nil catalog it just converts.
type recordingConverter struct {
	conv   *pipeline.Converter
	cat    *catalog.Catalog
	logger *zap.Logger
}

func (r *recordingConverter) Convert(ctx context.Context, path string) (pipeline.Summary, error) {
	if r.cat == nil {
		return r.conv.Convert(ctx, path)
	}

	var outcomes []pipeline.Outcome
	r.conv.SetObserver(func(o pipeline.Outcome) {
		outcomes = append(outcomes, o)
	})

	sum, err := r.conv.Convert(ctx, path)
	if err != nil {
		return sum, err
	}
	if recErr := r.cat.Record(sum, outcomes); recErr != nil {
		r.logger.Warn("Failed to record run",
			zap.String("run_id", sum.RunID),
			zap.Error(recErr))
	}
	return sum, nil
}

// openCatalog opens the configured catalog, or returns nil when the
// catalog is disabled.
func openCatalog() (*catalog.Catalog, error) {
	if cfg.Catalog.DatabasePath == "" {
		return nil, nil
	}
	return catalog.Open(cfg.Catalog.DatabasePath, logger)
}

func runConvert(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("output") {
		cfg.Output.Dir = convertOutputDir
	}
	if cmd.Flags().Changed("failed-output") {
		cfg.Output.FailedFile = convertFailedFile
	}
	if cmd.Flags().Changed("catalog") {
		cfg.Catalog.DatabasePath = convertCatalogDB
	}
	if cmd.Flags().Changed("workers") {
		cfg.Repair.Workers = convertWorkers
	}
	if cmd.Flags().Changed("max-atoms") {
		cfg.Repair.MaxAtoms = convertMaxAtoms
	}
	if convertNoVerify {
		cfg.Repair.Verify = false
	}
	if convertVerifyAll {
		cfg.Repair.VerifyWellFormed = true
	}
	if convertNoFailed {
		cfg.Output.WriteFailed = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	var cat *catalog.Catalog
	if !convertNoCatalog {
		var err error
		cat, err = openCatalog()
		if err != nil {
			return fmt.Errorf("failed to open catalog: %w", err)
		}
		if cat != nil {
			defer cat.Close()
		}
	}

	rc := &recordingConverter{
		conv:   pipeline.NewConverter(cfg, logger),
		cat:    cat,
		logger: logger,
	}

	styles := ui.DefaultStyles()
	var failedFiles int
	for _, input := range args {
		sum, err := rc.Convert(ctx, input)
		if err != nil {
			failedFiles++
			fmt.Println(styles.Error.Render(fmt.Sprintf("✗ %s: %v", input, err)))
			continue
		}
		printSummary(styles, sum)
	}

	if failedFiles > 0 {
		return fmt.Errorf("%d of %d files failed", failedFiles, len(args))
	}
	return nil
}

func printSummary(styles ui.Styles, sum pipeline.Summary) {
	headline := fmt.Sprintf("%s: %d of %d blocks converted", sum.Input, sum.Converted(), sum.Total)
	if sum.Failed == 0 {
		fmt.Println(styles.Success.Render("✓ " + headline))
	} else {
		fmt.Println(styles.Warning.Render("! " + headline))
	}

	detail := func(label, value string) {
		fmt.Printf("  %s %s\n", styles.Muted.Render(fmt.Sprintf("%-13s", label)), value)
	}

	detail("run", sum.RunID)
	detail("output", sum.Output)
	if sum.FailedOutput != "" {
		detail("failures", sum.FailedOutput)
	}
	detail("well-formed", strconv.Itoa(sum.WellFormed))
	if sum.Repaired() > 0 {
		detail("repaired", fmt.Sprintf("%d (counts %d, end %d, both %d)",
			sum.Repaired(), sum.RepairedCounts, sum.RepairedEnd, sum.RepairedBoth))
	}
	if sum.Failed > 0 {
		detail("failed", strconv.Itoa(sum.Failed))
	}
	if sum.Discarded > 0 {
		detail("discarded", fmt.Sprintf("%d partial trailing lines", sum.Discarded))
	}
	if sum.Annotated > 0 {
		detail("inchi added", strconv.Itoa(sum.Annotated))
	}
	if sum.Incomplete > 0 {
		detail("missing tags", fmt.Sprintf("%d records", sum.Incomplete))
	}
	if sum.MaxAtomsSeen > 0 {
		detail("largest", fmt.Sprintf("%d atoms", sum.MaxAtomsSeen))
	}
	detail("took", sum.Duration.Round(time.Millisecond).String())
}
