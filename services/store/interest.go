// Package store is the persistence gateway for interest observations and
// forecasts. All writes are idempotent natural-key upserts; nothing here
// ever deletes.
package store

import (
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"trendpulse/models"
	"trendpulse/services/timeseries"
)

type InterestStore struct {
	db *gorm.DB
}

func NewInterestStore(db *gorm.DB) *InterestStore {
	return &InterestStore{db: db}
}

// LastDays returns each slug's most recent persisted day, one row per
// slug via a correlated max-day filter. Slugs with no rows are absent
// from the result.
func (st *InterestStore) LastDays(geo string, slugs []string) (map[string]time.Time, error) {
	last := make(map[string]time.Time, len(slugs))
	if len(slugs) == 0 {
		return last, nil
	}
	var rows []models.DailyInterest
	err := st.db.
		Select("keyword_slug", "day").
		Where("geo = ? AND keyword_slug IN ?", geo, slugs).
		Where("day = (SELECT MAX(d.day) FROM daily_interest d WHERE d.geo = daily_interest.geo AND d.keyword_slug = daily_interest.keyword_slug)").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load last persisted days: %w", err)
	}
	for _, row := range rows {
		last[row.KeywordSlug] = timeseries.DateOnly(row.Day)
	}
	return last, nil
}

// UpsertDaily writes one slug's series as integer-rounded rows. Days on or
// after yesterday (relative to runDay) are flagged partial because the
// provider may still revise them. Returns the number of rows written.
func (st *InterestStore) UpsertDaily(geo, slug string, series *timeseries.Series, runDay time.Time) (int, error) {
	if series == nil || series.Len() == 0 {
		return 0, nil
	}
	yesterday := timeseries.DateOnly(runDay).AddDate(0, 0, -1)
	now := time.Now().UTC()
	raw := models.RawFromSlug(slug)

	rows := make([]models.DailyInterest, 0, series.Len())
	for i := 0; i < series.Len(); i++ {
		day := series.DayAt(i)
		rows = append(rows, models.DailyInterest{
			Day:         day,
			Geo:         geo,
			KeywordSlug: slug,
			KeywordRaw:  raw,
			Interest:    roundInterest(series.ValueAt(i)),
			IsPartial:   !day.Before(yesterday),
			IngestedAt:  now,
		})
	}

	err := st.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "day"}, {Name: "geo"}, {Name: "keyword_slug"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"interest", "keyword_raw", "is_partial", "ingested_at",
		}),
	}).Create(&rows).Error
	if err != nil {
		return 0, fmt.Errorf("failed to upsert daily interest for %s: %w", slug, err)
	}
	return len(rows), nil
}

// LoadDailySeries reads one slug's observations over [start, end] as a
// daily series.
func (st *InterestStore) LoadDailySeries(geo, slug string, start, end time.Time) (*timeseries.Series, error) {
	var rows []models.DailyInterest
	err := st.db.
		Where("geo = ? AND keyword_slug = ? AND day >= ? AND day <= ?",
			geo, slug, timeseries.DateOnly(start), timeseries.DateOnly(end)).
		Order("day ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load history for %s: %w", slug, err)
	}
	series := timeseries.New()
	for _, row := range rows {
		series.Set(row.Day, float64(row.Interest))
	}
	return series, nil
}

// DistinctSlugs lists every slug with persisted observations for a geo.
func (st *InterestStore) DistinctSlugs(geo string) ([]string, error) {
	var slugs []string
	err := st.db.Model(&models.DailyInterest{}).
		Where("geo = ?", geo).
		Distinct().
		Order("keyword_slug ASC").
		Pluck("keyword_slug", &slugs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list slugs: %w", err)
	}
	return slugs, nil
}

// roundInterest rounds to the nearest integer and clamps to [0, 100].
func roundInterest(v float64) int {
	n := int(math.Round(v))
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
