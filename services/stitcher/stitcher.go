package stitcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"trendpulse/config"
	"trendpulse/models"
	"trendpulse/services/timeseries"
	"trendpulse/services/trends"
)

// Fetcher is the transport the stitcher drives, one retried call per
// window batch.
type Fetcher interface {
	FetchWindow(ctx context.Context, terms []string, geo string, category int, start, end time.Time) (*trends.Frame, error)
}

// SkippedWindow records one window abandoned after retries or budget
// exhaustion. Skips are reported, never fatal.
type SkippedWindow struct {
	Start  time.Time
	End    time.Time
	Reason string
}

// Stitcher fetches the overlapping windows of a horizon and merges them
// into continuous per-term series.
type Stitcher struct {
	cfg     *config.Config
	fetcher Fetcher
}

func New(cfg *config.Config, fetcher Fetcher) *Stitcher {
	return &Stitcher{cfg: cfg, fetcher: fetcher}
}

// StitchDaily returns one continuous daily series per term over
// [start, end], clipped to [0,100] with interior gaps interpolated, plus
// the windows skipped along the way. Terms with no data in any window are
// absent from the result. The first term acts as the scaling anchor.
func (s *Stitcher) StitchDaily(ctx context.Context, terms []string, geo string, category int, start, end time.Time) (map[string]*timeseries.Series, []SkippedWindow, error) {
	if len(terms) == 0 {
		return map[string]*timeseries.Series{}, nil, nil
	}
	anchor := terms[0]
	windows := MakeWindows(start, end, s.cfg.WindowSpanDays, s.cfg.WindowStepDays)
	log.Printf("[stitcher] %d terms, %d windows %s..%s (geo=%s)",
		len(terms), len(windows), start.Format("2006-01-02"), end.Format("2006-01-02"), geo)

	merged := make(map[string]*timeseries.Series)
	var skipped []SkippedWindow
	first := true

	for i, w := range windows {
		cols, err := s.fetchWindowAll(ctx, terms, geo, category, w)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				skipped = append(skipped, SkippedWindow{Start: w.Start, End: w.End, Reason: "run budget exhausted"})
				log.Printf("[stitcher] budget exhausted at window %d/%d, keeping partial result", i+1, len(windows))
				break
			}
			skipped = append(skipped, SkippedWindow{Start: w.Start, End: w.End, Reason: err.Error()})
			log.Printf("[stitcher] window %d/%d skipped: %v", i+1, len(windows), err)
			continue
		}
		if windowEmpty(cols) {
			skipped = append(skipped, SkippedWindow{Start: w.Start, End: w.End, Reason: "empty window"})
			continue
		}

		if first {
			for term, col := range cols {
				merged[term] = col
			}
			first = false
			continue
		}

		factor := 1.0
		if term, ok := scaleTerm(merged, cols, terms, anchor); ok {
			if term != anchor {
				log.Printf("[stitcher] anchor %q missing from window %d/%d, scaling on %q", anchor, i+1, len(windows), term)
			}
			factor = OverlapScaleFactor(merged[term], cols[term])
		} else {
			log.Printf("[stitcher] no common term between window %d/%d and the merged series, scale left at 1.0", i+1, len(windows))
		}
		mergeWindow(merged, cols, factor)
	}

	out := make(map[string]*timeseries.Series, len(merged))
	for term, series := range merged {
		if series.Len() == 0 {
			continue
		}
		series.Clip(0, 100)
		out[term] = series.FillDaily()
	}
	return out, skipped, nil
}

// fetchWindowAll fetches one window for the full term list, batching when
// the list exceeds the per-call limit. Every batch after the first carries
// the anchor term so its columns can be rescaled onto the first batch. A
// failed batch fails the whole window.
func (s *Stitcher) fetchWindowAll(ctx context.Context, terms []string, geo string, category int, w Window) (map[string]*timeseries.Series, error) {
	limit := s.cfg.MaxKeysPerCall
	if limit < 2 {
		limit = 2
	}

	if len(terms) <= limit {
		frame, err := s.fetcher.FetchWindow(ctx, terms, geo, category, w.Start, w.End)
		if err != nil {
			return nil, err
		}
		return frameColumns(frame, terms), nil
	}

	anchor := terms[0]
	frame, err := s.fetcher.FetchWindow(ctx, terms[:limit], geo, category, w.Start, w.End)
	if err != nil {
		return nil, err
	}
	out := frameColumns(frame, terms[:limit])
	baseAnchor := anchorSeries(out, anchor)

	for batchStart := limit; batchStart < len(terms); batchStart += limit - 1 {
		batchEnd := batchStart + limit - 1
		if batchEnd > len(terms) {
			batchEnd = len(terms)
		}
		batch := append([]string{anchor}, terms[batchStart:batchEnd]...)

		frame, err := s.fetcher.FetchWindow(ctx, batch, geo, category, w.Start, w.End)
		if err != nil {
			return nil, fmt.Errorf("batch %v: %w", batch[1:], err)
		}
		cols := frameColumns(frame, batch)
		factor := OverlapScaleFactor(baseAnchor, anchorSeries(cols, anchor))
		for _, term := range batch[1:] {
			col, ok := cols[term]
			if !ok {
				continue
			}
			col.Scale(factor)
			out[term] = col
		}
	}
	return out, nil
}

// mergeWindow rescales a new window by the anchor factor and folds it into
// the merged series: overlapping days become the average of both sides,
// new days are appended.
func mergeWindow(merged map[string]*timeseries.Series, cols map[string]*timeseries.Series, factor float64) {
	for term, col := range cols {
		col.Scale(factor)
		dst, ok := merged[term]
		if !ok {
			merged[term] = col
			continue
		}
		for i := 0; i < col.Len(); i++ {
			day := col.DayAt(i)
			v := col.ValueAt(i)
			if existing, ok := dst.Get(day); ok {
				dst.Set(day, (existing+v)/2)
			} else {
				dst.Set(day, v)
			}
		}
	}
}

// AggregateGroups rolls stitched term series into group series by pointwise
// maximum across the group's matched terms. Groups with no matched data are
// silently dropped.
func AggregateGroups(byTerm map[string]*timeseries.Series, groups []models.KeywordGroup) map[string]*timeseries.Series {
	out := make(map[string]*timeseries.Series)
	for _, g := range groups {
		var matched []*timeseries.Series
		for _, term := range g.Terms {
			if s, ok := byTerm[term]; ok && s.Len() > 0 {
				matched = append(matched, s)
			}
		}
		if len(matched) == 0 {
			continue
		}
		out[g.Slug] = pointwiseMax(matched)
	}
	return out
}

func pointwiseMax(series []*timeseries.Series) *timeseries.Series {
	out := timeseries.New()
	for _, s := range series {
		for i := 0; i < s.Len(); i++ {
			day := s.DayAt(i)
			v := s.ValueAt(i)
			if existing, ok := out.Get(day); !ok || v > existing {
				out.Set(day, v)
			}
		}
	}
	return out
}

func frameColumns(frame *trends.Frame, terms []string) map[string]*timeseries.Series {
	out := make(map[string]*timeseries.Series, len(terms))
	for _, term := range terms {
		s := frame.Series(term)
		if s.Len() > 0 {
			out[term] = s
		}
	}
	return out
}

func anchorSeries(cols map[string]*timeseries.Series, anchor string) *timeseries.Series {
	if s, ok := cols[anchor]; ok {
		return s
	}
	return timeseries.New()
}

// scaleTerm picks the column used for cross-window scaling: the anchor
// when both sides carry it, otherwise the first term present in both.
func scaleTerm(merged, cols map[string]*timeseries.Series, terms []string, anchor string) (string, bool) {
	if merged[anchor] != nil && cols[anchor] != nil {
		return anchor, true
	}
	for _, term := range terms {
		if merged[term] != nil && cols[term] != nil {
			return term, true
		}
	}
	return "", false
}

func windowEmpty(cols map[string]*timeseries.Series) bool {
	for _, s := range cols {
		if s.Len() > 0 {
			return false
		}
	}
	return true
}
