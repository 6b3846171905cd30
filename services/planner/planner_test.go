package planner

import (
	"testing"
	"time"

	"trendpulse/services/timeseries"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPlanHorizonNewSlugGetsFullBackfill(t *testing.T) {
	end := day(2024, 6, 30)
	plan := PlanHorizon(end, []string{"coffee"}, map[string]time.Time{}, 365, 120)

	if want := end.AddDate(0, 0, -365); !plan.Start.Equal(want) {
		t.Errorf("start = %v, want %v", plan.Start, want)
	}
	if !plan.End.Equal(end) {
		t.Errorf("end = %v, want %v", plan.End, end)
	}
}

func TestPlanHorizonExistingSlugRefetchesOverlap(t *testing.T) {
	end := day(2024, 6, 30)
	last := map[string]time.Time{"coffee": day(2024, 6, 28)}
	plan := PlanHorizon(end, []string{"coffee"}, last, 365, 120)

	if want := day(2024, 6, 28).AddDate(0, 0, -120); !plan.Start.Equal(want) {
		t.Errorf("start = %v, want %v (last day minus overlap)", plan.Start, want)
	}
}

func TestPlanHorizonCapBindsForStaleSlug(t *testing.T) {
	end := day(2024, 6, 30)
	last := map[string]time.Time{"coffee": day(2022, 1, 1)}
	plan := PlanHorizon(end, []string{"coffee"}, last, 365, 120)

	if want := end.AddDate(0, 0, -365); !plan.Start.Equal(want) {
		t.Errorf("start = %v, want cap %v", plan.Start, want)
	}
}

func TestPlanHorizonEarliestSlugWins(t *testing.T) {
	end := day(2024, 6, 30)
	last := map[string]time.Time{
		"fresh": day(2024, 6, 28),
		// "brandnew" absent: full backfill
	}
	plan := PlanHorizon(end, []string{"fresh", "brandnew"}, last, 365, 120)

	if want := end.AddDate(0, 0, -365); !plan.Start.Equal(want) {
		t.Errorf("start = %v, want full backfill %v for the new slug", plan.Start, want)
	}
}

func TestFilterNewKeepsOnlyDaysAfterLast(t *testing.T) {
	s := timeseries.New()
	for i := 0; i < 10; i++ {
		s.Set(day(2024, 6, 1).AddDate(0, 0, i), float64(i))
	}
	bySlug := map[string]*timeseries.Series{"coffee": s}
	last := map[string]time.Time{"coffee": day(2024, 6, 7)}

	out := FilterNew(bySlug, last)
	got := out["coffee"]
	if got == nil {
		t.Fatal("slug dropped entirely")
	}
	if got.Len() != 3 {
		t.Fatalf("kept %d rows, want 3", got.Len())
	}
	if !got.DayAt(0).Equal(day(2024, 6, 8)) {
		t.Errorf("first kept day = %v, want Jun 8 (strictly after Jun 7)", got.DayAt(0))
	}
}

func TestFilterNewDropsFullyPersistedSlug(t *testing.T) {
	s := timeseries.New()
	s.Set(day(2024, 6, 1), 5)
	out := FilterNew(map[string]*timeseries.Series{"coffee": s}, map[string]time.Time{"coffee": day(2024, 6, 5)})
	if _, ok := out["coffee"]; ok {
		t.Error("slug with no new rows must be dropped")
	}
}

func TestFilterNewKeepsAllForNewSlug(t *testing.T) {
	s := timeseries.New()
	for i := 0; i < 4; i++ {
		s.Set(day(2024, 6, 1).AddDate(0, 0, i), 1)
	}
	out := FilterNew(map[string]*timeseries.Series{"fresh": s}, map[string]time.Time{})
	if out["fresh"] == nil || out["fresh"].Len() != 4 {
		t.Errorf("new slug must keep all rows, got %v", out["fresh"])
	}
}
