package store

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"trendpulse/models"
	"trendpulse/services/timeseries"
)

type ForecastStore struct {
	db *gorm.DB
}

func NewForecastStore(db *gorm.DB) *ForecastStore {
	return &ForecastStore{db: db}
}

// UpsertForecasts writes one slug's forecast horizon, day k of preds
// landing on startDay+k. Regenerating a horizon overwrites the previous
// values in place. Returns the number of rows written.
func (st *ForecastStore) UpsertForecasts(geo, slug string, startDay time.Time, preds []float64) (int, error) {
	if len(preds) == 0 {
		return 0, nil
	}
	startDay = timeseries.DateOnly(startDay)
	now := time.Now().UTC()

	rows := make([]models.Forecast, 0, len(preds))
	for k, p := range preds {
		rows = append(rows, models.Forecast{
			Geo:         geo,
			KeywordSlug: slug,
			Day:         startDay.AddDate(0, 0, k),
			Forecast:    roundInterest(p),
			GeneratedAt: now,
		})
	}

	err := st.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "geo"}, {Name: "keyword_slug"}, {Name: "day"}},
		DoUpdates: clause.AssignmentColumns([]string{"forecast", "generated_at"}),
	}).Create(&rows).Error
	if err != nil {
		return 0, fmt.Errorf("failed to upsert forecasts for %s: %w", slug, err)
	}
	return len(rows), nil
}

// LoadForecasts reads one slug's forecast rows ordered by day.
func (st *ForecastStore) LoadForecasts(geo, slug string) ([]models.Forecast, error) {
	var rows []models.Forecast
	err := st.db.
		Where("geo = ? AND keyword_slug = ?", geo, slug).
		Order("day ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load forecasts for %s: %w", slug, err)
	}
	return rows, nil
}
