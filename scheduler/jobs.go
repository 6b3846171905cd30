package scheduler

import (
	"context"
	"log"

	"trendpulse/services/runner"
)

// budgetContext builds the per-run context. With RUN_BUDGET_SECONDS set,
// the run gets a hard deadline and gives up remaining slugs or windows
// cleanly when it expires; otherwise the run is unbounded.
func (s *Scheduler) budgetContext() (context.Context, context.CancelFunc) {
	if s.cfg.RunBudget > 0 {
		return context.WithTimeout(context.Background(), s.cfg.RunBudget)
	}
	return context.WithCancel(context.Background())
}

func (s *Scheduler) runIngest() {
	ctx, cancel := s.budgetContext()
	defer cancel()

	if _, err := runner.RunIngest(ctx, s.cfg, s.db); err != nil {
		log.Printf("[scheduler] ingest run failed: %v", err)
	}
}

func (s *Scheduler) runForecast() {
	ctx, cancel := s.budgetContext()
	defer cancel()

	if _, err := runner.RunForecast(ctx, s.cfg, s.db); err != nil {
		log.Printf("[scheduler] forecast run failed: %v", err)
	}
}
