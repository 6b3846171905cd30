package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"trendpulse/services/runner"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run one ingestion pass over the active keyword registry",
	Long: `Fetches the interest provider for every active keyword group, stitches
the overlapping windows into consistent daily series, and persists the
rows that are new since the last run. Partial success (some slugs or
windows skipped) still exits 0; the skips are in the run report.`,
	RunE: runIngestCmd,
}

func init() {
	ingestCmd.Flags().IntVar(&budgetSeconds, "budget", 0,
		"run budget in seconds, overrides RUN_BUDGET_SECONDS (0 = unbounded)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngestCmd(cmd *cobra.Command, _ []string) error {
	cfg, db, err := setupRun(true)
	if err != nil {
		return err
	}

	ctx, cancel := runContext(cfg)
	defer cancel()

	report, err := runner.RunIngest(ctx, cfg, db)
	if err != nil {
		return fmt.Errorf("ingest run: %w", err)
	}
	cmd.Println(report.Summary())
	return nil
}
