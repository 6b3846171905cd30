// Package planner decides how far back an ingest run must fetch, and which
// freshly stitched rows are actually new per slug.
package planner

import (
	"time"

	"trendpulse/services/timeseries"
)

// FetchPlan is the resolved fetch horizon for one ingest run, shared by all
// of the run's groups.
type FetchPlan struct {
	Start time.Time
	End   time.Time
}

func (p FetchPlan) Days() int {
	return int(p.End.Sub(p.Start).Hours()/24) + 1
}

// PlanHorizon computes the run's window start. A slug seen before only
// needs a re-fetch reaching incrOverlapDays past its last persisted day
// (the overlap gives the stitcher scale context); a brand-new slug needs
// the full daysBack backfill, which is also the cap for slugs whose last
// day lies far in the past. The earliest per-slug start wins because all
// groups share one fetch.
func PlanHorizon(end time.Time, slugs []string, lastDays map[string]time.Time, daysBack, incrOverlapDays int) FetchPlan {
	end = timeseries.DateOnly(end)
	capStart := end.AddDate(0, 0, -daysBack)

	start := end
	if len(slugs) == 0 {
		start = capStart
	}
	for _, slug := range slugs {
		slugStart := capStart
		if ld, ok := lastDays[slug]; ok {
			overlapStart := timeseries.DateOnly(ld).AddDate(0, 0, -incrOverlapDays)
			if overlapStart.After(capStart) {
				slugStart = overlapStart
			}
		}
		if slugStart.Before(start) {
			start = slugStart
		}
	}
	return FetchPlan{Start: start, End: end}
}

// FilterNew keeps, per slug, only days strictly after that slug's last
// persisted day. Slugs without history keep everything. Slugs left with no
// rows are dropped.
func FilterNew(bySlug map[string]*timeseries.Series, lastDays map[string]time.Time) map[string]*timeseries.Series {
	out := make(map[string]*timeseries.Series, len(bySlug))
	for slug, series := range bySlug {
		filtered := series
		if ld, ok := lastDays[slug]; ok {
			filtered = series.After(ld)
		}
		if filtered.Len() > 0 {
			out[slug] = filtered
		}
	}
	return out
}
