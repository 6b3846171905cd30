package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"trendpulse/config"
	"trendpulse/services/forecaster"
	"trendpulse/services/metrics"
	"trendpulse/services/notify"
	"trendpulse/services/store"
	"trendpulse/services/timeseries"
)

// insufficientHistory marks slugs whose persisted history is too thin to
// train on. These are expected for young keywords and reported as skips.
type insufficientHistory struct {
	days, need int
}

func (e *insufficientHistory) Error() string {
	return fmt.Sprintf("insufficient history: %d days, need %d", e.days, e.need)
}

// RunForecast trains one model per slug with persisted history and writes
// the predicted horizon. Every slug is isolated: a failed or panicking fit
// becomes a skip entry and the batch moves on.
func RunForecast(ctx context.Context, cfg *config.Config, db *gorm.DB) (*RunReport, error) {
	report := newReport(KindForecast, cfg.Geo)
	defer report.done()

	interestStore := store.NewInterestStore(db)
	forecastStore := store.NewForecastStore(db)

	slugs, err := interestStore.DistinctSlugs(cfg.Geo)
	if err != nil {
		return report, err
	}
	if len(slugs) == 0 {
		log.Printf("[forecast] no persisted history for geo %s, nothing to do", cfg.Geo)
		archive(cfg, report)
		return report, nil
	}
	report.SlugsAttempted = len(slugs)

	end := timeseries.Today(cfg.RunLocation())
	histStart := end.AddDate(0, 0, -cfg.HistoryDays)
	report.EffectiveStart = histStart
	log.Printf("[forecast] run %s: %d slugs, history %s..%s, horizon %d days",
		report.RunID, len(slugs), histStart.Format("2006-01-02"), end.Format("2006-01-02"), cfg.ForecastDays)

	var touched []string
	for _, slug := range slugs {
		if ctx.Err() != nil {
			report.skip("slug", slug, "run budget exhausted", 0)
			metrics.SlugSkipped(KindForecast)
			continue
		}
		n, err := forecastSlug(cfg, interestStore, forecastStore, slug, histStart, end)
		if err != nil {
			var thin *insufficientHistory
			if errors.As(err, &thin) {
				report.skip("slug", slug, err.Error(), thin.days)
			} else {
				log.Printf("[forecast] %s: %v", slug, err)
				report.skip("slug", slug, err.Error(), 0)
			}
			metrics.SlugSkipped(KindForecast)
			continue
		}
		report.RowsUpserted += n
		report.SlugsCompleted++
		touched = append(touched, slug)
		metrics.RowsUpserted(KindForecast, n)
		metrics.SlugCompleted(KindForecast)
	}
	report.done()

	notify.NewPublisher(cfg.WSNotifyURL).Publish(context.Background(),
		notify.NewEvent(cfg.Geo, notify.KindForecast, touched, cfg.ForecastDays))
	archive(cfg, report)

	log.Printf("[forecast] %s", report.Summary())
	return report, nil
}

// forecastSlug loads, fills, trains and persists one slug. A panic inside
// the numeric stack is converted to an error so one pathological series
// cannot take down the batch.
func forecastSlug(cfg *config.Config, interestStore *store.InterestStore, forecastStore *store.ForecastStore, slug string, histStart, end time.Time) (rows int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("model fit panicked: %v", r)
		}
	}()

	series, err := interestStore.LoadDailySeries(cfg.Geo, slug, histStart, end)
	if err != nil {
		return 0, err
	}
	daily := series.FillDaily()
	if daily.Len() < cfg.MinTrainDays {
		return 0, &insufficientHistory{days: daily.Len(), need: cfg.MinTrainDays}
	}

	model, err := forecaster.Train(daily.Values(), daily.FirstDay(), cfg.RidgeAlphas, cfg.ValidationDays)
	if err != nil {
		return 0, err
	}
	preds := model.Forecast(cfg.ForecastDays)
	log.Printf("[forecast] %s: %d-day history, alpha=%g tau=%.2f score=%.3f",
		slug, daily.Len(), model.Alpha, model.Tau, model.Score)

	return forecastStore.UpsertForecasts(cfg.Geo, slug, daily.LastDay().AddDate(0, 0, 1), preds)
}
