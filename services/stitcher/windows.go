// Package stitcher turns overlapping provider windows into one continuous,
// consistently scaled daily series per term, and rolls term series up into
// keyword-group series.
package stitcher

import (
	"log"
	"math"
	"sort"
	"time"

	"trendpulse/services/timeseries"
)

// Window is one inclusive fetch range.
type Window struct {
	Start time.Time
	End   time.Time
}

// MakeWindows partitions [start, end] into spans of spanDays advancing by
// stepDays. Consecutive windows overlap by spanDays-stepDays days so they
// can be rescaled onto one another; the final window is clipped at end.
func MakeWindows(start, end time.Time, spanDays, stepDays int) []Window {
	start = timeseries.DateOnly(start)
	end = timeseries.DateOnly(end)
	if end.Before(start) || spanDays < 1 || stepDays < 1 {
		return nil
	}

	var windows []Window
	cur := start
	for !cur.After(end) {
		wend := cur.AddDate(0, 0, spanDays-1)
		if wend.After(end) {
			wend = end
		}
		windows = append(windows, Window{Start: cur, End: wend})
		if wend.Equal(end) {
			break
		}
		cur = cur.AddDate(0, 0, stepDays)
	}
	return windows
}

// scaleEpsilon stabilizes the ratio fallback when the overlap has too few
// strictly positive days for a median.
const scaleEpsilon = 1e-6

// OverlapScaleFactor computes the factor that maps a new window's anchor
// values onto the already-merged series over their shared days: the median
// ratio over days where both sides are strictly positive (at least 3
// required), else the median of epsilon-stabilized ratios over the whole
// overlap. Overlaps shorter than 3 days carry too little signal for any
// estimate and yield 1.0 outright. The median keeps one mixed day (one
// side positive, the other zero) from blowing the factor up the way a
// mean of stabilized ratios would.
func OverlapScaleFactor(merged, win *timeseries.Series) float64 {
	var ratios []float64
	var stabilized []float64
	for i := 0; i < win.Len(); i++ {
		day := win.DayAt(i)
		mv, ok := merged.Get(day)
		if !ok {
			continue
		}
		wv := win.ValueAt(i)
		stabilized = append(stabilized, (mv+scaleEpsilon)/(wv+scaleEpsilon))
		if mv > 0 && wv > 0 {
			ratios = append(ratios, mv/wv)
		}
	}
	if len(stabilized) < 3 {
		return 1.0
	}

	var r float64
	if len(ratios) >= 3 {
		r = median(ratios)
	} else {
		r = median(stabilized)
		log.Printf("[stitcher] only %d positive overlap days, epsilon-stabilized scale %.4f", len(ratios), r)
	}
	if math.IsNaN(r) || math.IsInf(r, 0) || r <= 0 {
		return 1.0
	}
	return r
}

// median matches numpy semantics: midpoint of the two central values for
// an even count.
func median(vals []float64) float64 {
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
