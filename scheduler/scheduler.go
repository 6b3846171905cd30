// Package scheduler drives the daily batch cadence in serve mode: one
// ingest run and one forecast run per day, at configured local times in
// the run timezone. The jobs themselves live in jobs.go; everything they
// do is delegated to services/runner so a scheduled run and a one-shot
// CLI run are the same code path.
package scheduler

import (
	"log"

	"github.com/go-co-op/gocron"
	"gorm.io/gorm"

	"trendpulse/config"
)

// Scheduler manages the recurring ingest and forecast jobs.
type Scheduler struct {
	cron *gocron.Scheduler
	cfg  *config.Config
	db   *gorm.DB
}

func New(cfg *config.Config, db *gorm.DB) *Scheduler {
	return &Scheduler{
		cron: gocron.NewScheduler(cfg.RunLocation()),
		cfg:  cfg,
		db:   db,
	}
}

// Start registers the daily jobs and launches the scheduler in the
// background. Forecast is scheduled after ingest so it trains on the
// rows the same day's ingest just wrote.
func (s *Scheduler) Start() {
	log.Printf("[scheduler] ingest daily at %s, forecast daily at %s (%s)",
		s.cfg.IngestAt, s.cfg.ForecastAt, s.cfg.RunTimezone)

	s.cron.Every(1).Day().At(s.cfg.IngestAt).Do(s.runIngest)
	s.cron.Every(1).Day().At(s.cfg.ForecastAt).Do(s.runForecast)

	s.cron.StartAsync()
	log.Println("[scheduler] started")
}

// Stop halts job scheduling. A job already running finishes on its own
// budget; Stop does not interrupt it.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("[scheduler] stopped")
}
