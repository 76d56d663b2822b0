package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhongsheng-chen/SDF-Converter/cmd/sdfconvert/ui"
	"github.com/zhongsheng-chen/SDF-Converter/internal/catalog"
)

var reportLimit int

// reportCmd shows conversion history
var reportCmd = &cobra.Command{
	Use:   "report [run-id]",
	Short: "Show conversion history from the catalog",
	Long: `Lists recent conversion runs, or the details of one run when a run ID
(or unique ID prefix) is given. Run details include the status
breakdown and every failed record with its reason.

Example:
  sdfconvert report
  sdfconvert report -n 25
  sdfconvert report 3f2a91c8`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReport,
}

func init() {
	reportCmd.Flags().IntVarP(&reportLimit, "limit", "n", 10, "How many runs to list")
}

func runReport(cmd *cobra.Command, args []string) error {
	if cfg.Catalog.DatabasePath == "" {
		return fmt.Errorf("no catalog configured: set catalog.database_path or SDFCONVERT_CATALOG")
	}

	cat, err := openCatalog()
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	defer cat.Close()

	styles := ui.DefaultStyles()
	if len(args) == 1 {
		return reportRun(cat, styles, args[0])
	}
	return reportRuns(cat, styles)
}

func reportRuns(cat *catalog.Catalog, styles ui.Styles) error {
	runs, err := cat.Runs(reportLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println(styles.Muted.Render("No runs recorded yet."))
		return nil
	}

	table := ui.NewTable("Recent Runs", "RUN", "STARTED", "INPUT", "TOTAL", "REPAIRED", "FAILED", "TOOK")
	for _, r := range runs {
		table.AddRow(
			shortID(r.ID),
			r.StartedAt.Format("2006-01-02 15:04:05"),
			filepath.Base(r.Input),
			strconv.Itoa(r.Total),
			strconv.Itoa(r.RepairedCounts+r.RepairedEnd+r.RepairedBoth),
			strconv.Itoa(r.Failed),
			r.Duration.Round(time.Millisecond).String(),
		)
	}
	fmt.Print(table.View(styles))
	return nil
}

func reportRun(cat *catalog.Catalog, styles ui.Styles, id string) error {
	run, err := cat.FindRun(id)
	if err != nil {
		return err
	}

	fmt.Println(styles.Title.Render("Run " + run.ID))
	fmt.Printf("  %s %s\n", styles.Muted.Render("input    "), run.Input)
	fmt.Printf("  %s %s\n", styles.Muted.Render("output   "), run.Output)
	fmt.Printf("  %s %s\n", styles.Muted.Render("started  "), run.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("  %s %s\n", styles.Muted.Render("took     "), run.Duration.Round(time.Millisecond).String())
	fmt.Println()

	counts, err := cat.StatusCounts(run.ID)
	if err != nil {
		return err
	}
	statusTable := ui.NewTable("Blocks", "STATUS", "COUNT")
	for _, status := range []string{"well_formed", "missing_counts", "missing_end", "missing_both", "unrepairable"} {
		if n, ok := counts[status]; ok {
			statusTable.AddRow(status, strconv.Itoa(n))
		}
	}
	fmt.Print(statusTable.View(styles))

	failures, err := cat.Failures(run.ID)
	if err != nil {
		return err
	}
	if len(failures) == 0 {
		fmt.Println(styles.Success.Render("No failed blocks."))
		return nil
	}

	fmt.Println()
	failTable := ui.NewTable("Failed Blocks", "SEQ", "TITLE", "REASON")
	for _, f := range failures {
		failTable.AddRow(strconv.Itoa(f.Seq), f.Title, f.Failure)
	}
	fmt.Print(failTable.View(styles))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
