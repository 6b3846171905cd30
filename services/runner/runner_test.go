package runner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"trendpulse/config"
	"trendpulse/models"
	"trendpulse/services/store"
	"trendpulse/services/timeseries"
)

// fakeProvider serves deterministic per-day interest so overlapping
// windows always agree and stitching reduces to identity.
type fakeProvider struct {
	srv   *httptest.Server
	calls int
}

func dayValue(d time.Time) float64 {
	return float64(20 + d.YearDay()%50)
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	p := &fakeProvider{}
	p.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.calls++
		start, err := time.Parse("2006-01-02", r.URL.Query().Get("start"))
		require.NoError(t, err)
		end, err := time.Parse("2006-01-02", r.URL.Query().Get("end"))
		require.NoError(t, err)
		terms := strings.Split(r.URL.Query().Get("terms"), ",")

		var days []string
		series := make(map[string][]float64, len(terms))
		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			days = append(days, d.Format("2006-01-02"))
			for _, term := range terms {
				series[term] = append(series[term], dayValue(d))
			}
		}
		json.NewEncoder(w).Encode(map[string]any{
			"days":       days,
			"series":     series,
			"is_partial": make([]bool, len(days)),
		})
	}))
	t.Cleanup(p.srv.Close)
	return p
}

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		Geo:            "SG",
		TrendsBaseURL:  baseURL,
		MaxKeysPerCall: 5,
		RateLimitRPS:   1000,
		RateLimitBurst: 10,

		FetchMaxAttempts: 2,
		FetchBaseDelay:   time.Millisecond,
		FetchMaxDelay:    5 * time.Millisecond,

		DaysBack:        120,
		IncrOverlapDays: 120,
		WindowSpanDays:  90,
		WindowStepDays:  60,

		HistoryDays:    420,
		ForecastDays:   7,
		MinTrainDays:   120,
		RidgeAlphas:    []float64{0.1, 1, 10},
		ValidationDays: 14,

		RunTimezone: "UTC",
	}
}

func openRunnerDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, models.MigrateTrendModels(db))
	return db
}

func seedRegistry(t *testing.T, db *gorm.DB) {
	t.Helper()
	rows := []models.TrendKeyword{
		{Keyword: "coffee", GroupName: "Coffee", Geo: "SG", IsActive: true, IsAnchor: true},
		{Keyword: "kopi", GroupName: "Coffee", Geo: "SG", IsActive: true},
		{Keyword: "tea", GroupName: "Tea", Geo: "SG", IsActive: true, IsAnchor: true},
	}
	require.NoError(t, db.Create(&rows).Error)
}

func TestRunIngestPersistsAndIsIdempotent(t *testing.T) {
	p := newFakeProvider(t)
	db := openRunnerDB(t)
	seedRegistry(t, db)
	cfg := testConfig(p.srv.URL)

	report, err := RunIngest(context.Background(), cfg, db)
	require.NoError(t, err)
	assert.Equal(t, 2, report.SlugsAttempted)
	assert.Equal(t, 2, report.SlugsCompleted)
	assert.Equal(t, 2*121, report.RowsUpserted, "121 days (DAYS_BACK back through today) per slug")
	assert.Empty(t, report.Skips)
	assert.NotEmpty(t, report.RunID)

	var count int64
	require.NoError(t, db.Model(&models.DailyInterest{}).Count(&count).Error)
	assert.EqualValues(t, 242, count)

	var bad int64
	require.NoError(t, db.Model(&models.DailyInterest{}).
		Where("interest < 0 OR interest > 100").Count(&bad).Error)
	assert.Zero(t, bad, "every persisted value must stay in [0,100]")

	// Replaying the run finds nothing new: same row count, no writes.
	again, err := RunIngest(context.Background(), cfg, db)
	require.NoError(t, err)
	assert.Zero(t, again.RowsUpserted)
	assert.Zero(t, again.SlugsCompleted)
	require.Len(t, again.Skips, 2)
	for _, s := range again.Skips {
		assert.Equal(t, "slug", s.Scope)
		assert.Equal(t, "no new rows", s.Reason)
	}
	require.NoError(t, db.Model(&models.DailyInterest{}).Count(&count).Error)
	assert.EqualValues(t, 242, count)
}

func TestRunIngestNeverRewritesSettledDays(t *testing.T) {
	p := newFakeProvider(t)
	db := openRunnerDB(t)
	seedRegistry(t, db)
	cfg := testConfig(p.srv.URL)

	_, err := RunIngest(context.Background(), cfg, db)
	require.NoError(t, err)

	// Tamper with an already-settled day; a re-run must not touch it.
	var row models.DailyInterest
	require.NoError(t, db.Where("keyword_slug = ?", "coffee").
		Order("day ASC").Offset(30).First(&row).Error)
	require.NoError(t, db.Model(&models.DailyInterest{}).
		Where("id = ?", row.ID).Update("interest", 77).Error)

	_, err = RunIngest(context.Background(), cfg, db)
	require.NoError(t, err)

	var after models.DailyInterest
	require.NoError(t, db.First(&after, row.ID).Error)
	assert.Equal(t, 77, after.Interest, "days at or before the last persisted day must never be rewritten")
}

func TestRunIngestNoActiveKeywords(t *testing.T) {
	p := newFakeProvider(t)
	db := openRunnerDB(t)
	cfg := testConfig(p.srv.URL)

	report, err := RunIngest(context.Background(), cfg, db)
	require.NoError(t, err)
	assert.Zero(t, report.SlugsAttempted)
	assert.Zero(t, report.RowsUpserted)
	assert.Empty(t, report.Skips)
	assert.Zero(t, p.calls, "an empty registry must not hit the provider")
}

func seedHistory(t *testing.T, db *gorm.DB, slug string, days int, end time.Time) {
	t.Helper()
	s := timeseries.New()
	for i := 0; i < days; i++ {
		d := end.AddDate(0, 0, -(days - 1 - i))
		if i%7 == 0 {
			s.Set(d, 90)
		} else {
			s.Set(d, 12)
		}
	}
	_, err := store.NewInterestStore(db).UpsertDaily("SG", slug, s, end.AddDate(0, 0, 1))
	require.NoError(t, err)
}

func TestRunForecastTrainsAndPersists(t *testing.T) {
	db := openRunnerDB(t)
	cfg := testConfig("")
	yesterday := timeseries.Today(time.UTC).AddDate(0, 0, -1)

	seedHistory(t, db, "coffee", 150, yesterday)
	seedHistory(t, db, "tea", 50, yesterday) // too thin to train

	report, err := RunForecast(context.Background(), cfg, db)
	require.NoError(t, err)
	assert.Equal(t, 2, report.SlugsAttempted)
	assert.Equal(t, 1, report.SlugsCompleted)
	assert.Equal(t, 7, report.RowsUpserted)

	require.Len(t, report.Skips, 1)
	assert.Equal(t, "tea", report.Skips[0].Key)
	assert.Contains(t, report.Skips[0].Reason, "insufficient history")
	assert.Equal(t, 50, report.Skips[0].Rows)

	rows, err := store.NewForecastStore(db).LoadForecasts("SG", "coffee")
	require.NoError(t, err)
	require.Len(t, rows, 7)
	for i, row := range rows {
		wantDay := yesterday.AddDate(0, 0, i+1)
		assert.Truef(t, timeseries.DateOnly(row.Day).Equal(wantDay), "row %d lands on %v, want %v", i, row.Day, wantDay)
		assert.GreaterOrEqual(t, row.Forecast, 0)
		assert.LessOrEqual(t, row.Forecast, 100)
	}
}

func TestRunForecastNoHistory(t *testing.T) {
	db := openRunnerDB(t)
	report, err := RunForecast(context.Background(), testConfig(""), db)
	require.NoError(t, err)
	assert.Zero(t, report.SlugsAttempted)
	assert.Zero(t, report.RowsUpserted)
}

func TestRunForecastBudgetExhausted(t *testing.T) {
	db := openRunnerDB(t)
	yesterday := timeseries.Today(time.UTC).AddDate(0, 0, -1)
	seedHistory(t, db, "coffee", 150, yesterday)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := RunForecast(ctx, testConfig(""), db)
	require.NoError(t, err)
	assert.Zero(t, report.SlugsCompleted)
	require.Len(t, report.Skips, 1)
	assert.Equal(t, "run budget exhausted", report.Skips[0].Reason)
}
