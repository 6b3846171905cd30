// Package cmd wires the trendpulse entry points: the one-shot ingest and
// forecast runs used by external schedulers, and the self-scheduling
// serve mode with health and metrics endpoints.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"trendpulse/config"
	"trendpulse/models"
)

var rootCmd = &cobra.Command{
	Use:   "trendpulse",
	Short: "Keyword interest ingestion and forecasting",
	Long: `trendpulse maintains daily search-interest series for a registry of
keyword groups and trains short-horizon forecasts on them.

ingest    fetch, stitch and persist new daily interest rows
forecast  train per-keyword models and persist the predicted horizon
serve     run both jobs on a daily schedule with health endpoints`,
	SilenceUsage: true,
}

// budgetSeconds overrides RUN_BUDGET_SECONDS for one-shot runs. Shared by
// the ingest and forecast commands; only one of them runs per process.
var budgetSeconds int

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setupRun loads configuration, connects to the database and migrates the
// schema. Every command starts here; ingest additionally needs the
// interest provider endpoint configured.
func setupRun(needProvider bool) (*config.Config, *gorm.DB, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	if needProvider {
		err = cfg.ValidateIngest()
	} else {
		err = cfg.Validate()
	}
	if err != nil {
		return nil, nil, err
	}

	db, err := config.InitDB()
	if err != nil {
		return nil, nil, err
	}
	if err := models.MigrateTrendModels(db); err != nil {
		return nil, nil, fmt.Errorf("migrations failed: %w", err)
	}
	return cfg, db, nil
}

// runContext maps the effective run budget onto a context deadline. The
// --budget flag wins over RUN_BUDGET_SECONDS; zero means unbounded.
func runContext(cfg *config.Config) (context.Context, context.CancelFunc) {
	budget := cfg.RunBudget
	if budgetSeconds > 0 {
		budget = time.Duration(budgetSeconds) * time.Second
	}
	if budget > 0 {
		return context.WithTimeout(context.Background(), budget)
	}
	return context.WithCancel(context.Background())
}
