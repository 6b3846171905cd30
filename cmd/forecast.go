package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"trendpulse/services/runner"
)

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Train models and persist forecasts for every known keyword",
	Long: `Loads the persisted daily history for every keyword group seen in this
geo, trains one model per group, and upserts the predicted horizon.
Groups with too little history are reported as skips, not failures.`,
	RunE: runForecastCmd,
}

func init() {
	forecastCmd.Flags().IntVar(&budgetSeconds, "budget", 0,
		"run budget in seconds, overrides RUN_BUDGET_SECONDS (0 = unbounded)")
	rootCmd.AddCommand(forecastCmd)
}

func runForecastCmd(cmd *cobra.Command, _ []string) error {
	cfg, db, err := setupRun(false)
	if err != nil {
		return err
	}

	ctx, cancel := runContext(cfg)
	defer cancel()

	report, err := runner.RunForecast(ctx, cfg, db)
	if err != nil {
		return fmt.Errorf("forecast run: %w", err)
	}
	cmd.Println(report.Summary())
	return nil
}
