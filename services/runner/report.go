// Package runner executes the two batch operations: ingest (fetch, stitch
// and persist observed interest) and forecast (train per-slug models and
// persist predictions). Each invocation builds its own collaborators from
// config, runs once, and reports what happened; nothing outlives the run.
package runner

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"trendpulse/services/metrics"
)

const (
	KindIngest   = "ingest"
	KindForecast = "forecast"
)

// Skip records one unit of work a run gave up on without failing the run.
type Skip struct {
	Scope  string `json:"scope" bson:"scope"` // "window" or "slug"
	Key    string `json:"key" bson:"key"`
	Reason string `json:"reason" bson:"reason"`
	Rows   int    `json:"rows,omitempty" bson:"rows,omitempty"`
}

// RunReport is the ledger entry for one run. It is always produced, even
// for empty or failed runs.
type RunReport struct {
	RunID          string    `json:"run_id" bson:"run_id"`
	Kind           string    `json:"kind" bson:"kind"`
	Geo            string    `json:"geo" bson:"geo"`
	StartedAt      time.Time `json:"started_at" bson:"started_at"`
	DurationMS     int64     `json:"duration_ms" bson:"duration_ms"`
	EffectiveStart time.Time `json:"effective_start,omitempty" bson:"effective_start,omitempty"`
	SlugsAttempted int       `json:"slugs_attempted" bson:"slugs_attempted"`
	SlugsCompleted int       `json:"slugs_completed" bson:"slugs_completed"`
	RowsUpserted   int       `json:"rows_upserted" bson:"rows_upserted"`
	Skips          []Skip    `json:"skips,omitempty" bson:"skips,omitempty"`
}

func newReport(kind, geo string) *RunReport {
	return &RunReport{
		RunID:     uuid.NewString(),
		Kind:      kind,
		Geo:       geo,
		StartedAt: time.Now().UTC(),
	}
}

func (r *RunReport) skip(scope, key, reason string, rows int) {
	r.Skips = append(r.Skips, Skip{Scope: scope, Key: key, Reason: reason, Rows: rows})
}

// done stamps the duration and feeds the run histogram. Idempotent so it
// can sit in a defer while error paths return early.
func (r *RunReport) done() {
	if r.DurationMS != 0 {
		return
	}
	d := time.Since(r.StartedAt)
	if d < time.Millisecond {
		d = time.Millisecond
	}
	r.DurationMS = d.Milliseconds()
	metrics.ObserveRunDuration(r.Kind, d.Seconds())
}

// Summary is the one-line human rendering used in logs.
func (r *RunReport) Summary() string {
	return fmt.Sprintf("%s run %s (geo %s): %d/%d slugs, %d rows, %d skips in %dms",
		r.Kind, r.RunID, r.Geo, r.SlugsCompleted, r.SlugsAttempted,
		r.RowsUpserted, len(r.Skips), r.DurationMS)
}
