package models

import (
	"time"

	"gorm.io/gorm"
)

// DailyInterest is one observed interest value for a keyword group on one
// day. Natural key (day, geo, keyword_slug); rewrites go through upserts
// that update interest, keyword_raw, is_partial and ingested_at only.
type DailyInterest struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Day         time.Time `gorm:"type:date;not null;index:idx_interest_key,unique" json:"day"`
	Geo         string    `gorm:"size:8;not null;index:idx_interest_key,unique" json:"geo"`
	KeywordSlug string    `gorm:"size:64;not null;index:idx_interest_key,unique" json:"keyword_slug"`
	KeywordRaw  string    `gorm:"size:128" json:"keyword_raw"`
	Interest    int       `gorm:"not null" json:"interest"` // 0..100
	IsPartial   bool      `json:"is_partial"`               // day is today or yesterday, value may still move
	IngestedAt  time.Time `json:"ingested_at"`
}

func (DailyInterest) TableName() string { return "daily_interest" }

// Forecast is one predicted interest value for a keyword group on a future
// day. Natural key (geo, keyword_slug, day); regeneration overwrites.
type Forecast struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Geo         string    `gorm:"size:8;not null;index:idx_forecast_key,unique" json:"geo"`
	KeywordSlug string    `gorm:"size:64;not null;index:idx_forecast_key,unique" json:"keyword_slug"`
	Day         time.Time `gorm:"type:date;not null;index:idx_forecast_key,unique" json:"day"`
	Forecast    int       `gorm:"not null" json:"forecast"` // 0..100
	GeneratedAt time.Time `json:"generated_at"`
}

func (Forecast) TableName() string { return "forecast" }

// MigrateTrendModels runs database migrations for trend-related models.
// The registry table is included so fresh environments come up complete;
// its rows remain read-only for this service.
func MigrateTrendModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&TrendKeyword{},
		&DailyInterest{},
		&Forecast{},
	)
}
