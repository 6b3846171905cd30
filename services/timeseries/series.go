// Package timeseries provides the daily-indexed float series used by the
// window stitcher and the forecaster. Days are normalized to UTC midnight
// and kept sorted and unique.
package timeseries

import (
	"sort"
	"time"
)

// DateOnly truncates a timestamp to its UTC calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today is the current calendar day in loc, expressed as a UTC-midnight
// day key. Runs scheduled in a local timezone must derive "today" there,
// not in UTC, or early-morning runs plan one day short.
func Today(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := time.Now().In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Series is a sparse daily series. Missing days are simply absent; use
// FillDaily to produce a gap-free version.
type Series struct {
	days   []time.Time
	values []float64
}

func New() *Series {
	return &Series{}
}

// Set inserts or replaces the value for a day.
func (s *Series) Set(day time.Time, v float64) {
	day = DateOnly(day)
	i := sort.Search(len(s.days), func(i int) bool { return !s.days[i].Before(day) })
	if i < len(s.days) && s.days[i].Equal(day) {
		s.values[i] = v
		return
	}
	s.days = append(s.days, time.Time{})
	s.values = append(s.values, 0)
	copy(s.days[i+1:], s.days[i:])
	copy(s.values[i+1:], s.values[i:])
	s.days[i] = day
	s.values[i] = v
}

// Get returns the value for a day and whether it exists.
func (s *Series) Get(day time.Time) (float64, bool) {
	day = DateOnly(day)
	i := sort.Search(len(s.days), func(i int) bool { return !s.days[i].Before(day) })
	if i < len(s.days) && s.days[i].Equal(day) {
		return s.values[i], true
	}
	return 0, false
}

func (s *Series) Len() int { return len(s.days) }

// DayAt and ValueAt index the series in ascending day order.
func (s *Series) DayAt(i int) time.Time { return s.days[i] }
func (s *Series) ValueAt(i int) float64 { return s.values[i] }

// FirstDay and LastDay are zero times on an empty series.
func (s *Series) FirstDay() time.Time {
	if len(s.days) == 0 {
		return time.Time{}
	}
	return s.days[0]
}

func (s *Series) LastDay() time.Time {
	if len(s.days) == 0 {
		return time.Time{}
	}
	return s.days[len(s.days)-1]
}

func (s *Series) Clone() *Series {
	c := &Series{
		days:   make([]time.Time, len(s.days)),
		values: make([]float64, len(s.values)),
	}
	copy(c.days, s.days)
	copy(c.values, s.values)
	return c
}

// Values returns a copy of the value slice in day order.
func (s *Series) Values() []float64 {
	out := make([]float64, len(s.values))
	copy(out, s.values)
	return out
}

// Scale multiplies every value by f in place.
func (s *Series) Scale(f float64) {
	for i := range s.values {
		s.values[i] *= f
	}
}

// Clip bounds every value to [lo, hi] in place.
func (s *Series) Clip(lo, hi float64) {
	for i, v := range s.values {
		if v < lo {
			s.values[i] = lo
		} else if v > hi {
			s.values[i] = hi
		}
	}
}

// After returns a new series keeping only days strictly after the cutoff.
func (s *Series) After(cutoff time.Time) *Series {
	cutoff = DateOnly(cutoff)
	out := New()
	for i, d := range s.days {
		if d.After(cutoff) {
			out.Set(d, s.values[i])
		}
	}
	return out
}

// FillDaily reindexes to one point per calendar day between the first and
// last observed days, linearly interpolating interior gaps. The endpoints
// are observed values, so no edge extrapolation is needed.
func (s *Series) FillDaily() *Series {
	out := New()
	if len(s.days) == 0 {
		return out
	}
	for i := 0; i < len(s.days)-1; i++ {
		d0, v0 := s.days[i], s.values[i]
		d1, v1 := s.days[i+1], s.values[i+1]
		out.Set(d0, v0)
		gap := int(d1.Sub(d0).Hours() / 24)
		for k := 1; k < gap; k++ {
			frac := float64(k) / float64(gap)
			out.Set(d0.AddDate(0, 0, k), v0+(v1-v0)*frac)
		}
	}
	out.Set(s.days[len(s.days)-1], s.values[len(s.days)-1])
	return out
}
