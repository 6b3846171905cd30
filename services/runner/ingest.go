package runner

import (
	"context"
	"log"
	"strings"

	"gorm.io/gorm"

	"trendpulse/config"
	"trendpulse/models"
	"trendpulse/services/fetchcache"
	"trendpulse/services/metrics"
	"trendpulse/services/notify"
	"trendpulse/services/planner"
	"trendpulse/services/registry"
	"trendpulse/services/runlog"
	"trendpulse/services/stitcher"
	"trendpulse/services/store"
	"trendpulse/services/timeseries"
	"trendpulse/services/trends"
)

// RunIngest executes one ingest run: load the active registry, plan the
// fetch horizon from what is already persisted, stitch the provider
// windows into daily series, aggregate synonym groups, and upsert only
// the rows that are actually new. Per-slug persistence failures are
// recorded and skipped; the run itself fails only when nothing can
// proceed at all.
func RunIngest(ctx context.Context, cfg *config.Config, db *gorm.DB) (*RunReport, error) {
	report := newReport(KindIngest, cfg.Geo)
	defer report.done()

	groups, err := registry.New(db).ActiveGroups(cfg.Geo, cfg.Category)
	if err != nil {
		return report, err
	}
	if len(groups) == 0 {
		log.Printf("[ingest] no active keywords for geo %s, nothing to do", cfg.Geo)
		archive(cfg, report)
		return report, nil
	}
	report.SlugsAttempted = len(groups)

	terms := dedupTerms(groups)
	slugs := make([]string, 0, len(groups))
	for _, g := range groups {
		slugs = append(slugs, g.Slug)
	}

	interestStore := store.NewInterestStore(db)
	lastDays, err := interestStore.LastDays(cfg.Geo, slugs)
	if err != nil {
		return report, err
	}

	end := timeseries.Today(cfg.RunLocation())
	plan := planner.PlanHorizon(end, slugs, lastDays, cfg.DaysBack, cfg.IncrOverlapDays)
	report.EffectiveStart = plan.Start
	log.Printf("[ingest] run %s: %d groups (%d terms), fetching %s..%s (%d days)",
		report.RunID, len(groups), len(terms),
		plan.Start.Format("2006-01-02"), plan.End.Format("2006-01-02"), plan.Days())

	pool := trends.NewProxyPool(ctx, cfg)
	var cache trends.WindowCache
	if cfg.FetchCachePath != "" {
		c, err := fetchcache.Open(cfg.FetchCachePath)
		if err != nil {
			log.Printf("[ingest] window cache unavailable, fetching without it: %v", err)
		} else {
			cache = c
			defer c.Close()
		}
	}
	fetcher := trends.NewFetcher(cfg, pool, cache)

	byTerm, skippedWindows, err := stitcher.New(cfg, fetcher).StitchDaily(
		ctx, terms, cfg.Geo, cfg.Category, plan.Start, plan.End)
	if err != nil {
		return report, err
	}
	for _, w := range skippedWindows {
		report.skip("window", w.Start.Format("2006-01-02"), w.Reason, 0)
		metrics.WindowSkipped(skipLabel(w.Reason))
	}

	aggregated := stitcher.AggregateGroups(byTerm, groups)
	fresh := planner.FilterNew(aggregated, lastDays)

	var touched []string
	for _, g := range groups {
		series := fresh[g.Slug]
		if series == nil || series.Len() == 0 {
			reason := "no new rows"
			if s := aggregated[g.Slug]; s == nil || s.Len() == 0 {
				reason = "no data"
			}
			report.skip("slug", g.Slug, reason, 0)
			metrics.SlugSkipped(KindIngest)
			continue
		}
		n, err := interestStore.UpsertDaily(cfg.Geo, g.Slug, series, end)
		if err != nil {
			log.Printf("[ingest] %s: %v", g.Slug, err)
			report.skip("slug", g.Slug, err.Error(), series.Len())
			metrics.SlugSkipped(KindIngest)
			continue
		}
		report.RowsUpserted += n
		report.SlugsCompleted++
		touched = append(touched, g.Slug)
		metrics.RowsUpserted(KindIngest, n)
		metrics.SlugCompleted(KindIngest)
	}
	report.done()

	notify.NewPublisher(cfg.WSNotifyURL).Publish(context.Background(),
		notify.NewEvent(cfg.Geo, notify.KindInterest, touched, plan.Days()))
	archive(cfg, report)

	log.Printf("[ingest] %s", report.Summary())
	return report, nil
}

// skipLabel collapses free-form window skip reasons into the bounded set
// the metrics label can carry.
func skipLabel(reason string) string {
	switch reason {
	case "run budget exhausted":
		return "budget"
	case "empty window":
		return "empty"
	default:
		return "fetch_failed"
	}
}

// dedupTerms flattens group terms into one case-insensitively unique,
// order-preserving list for fetching. The first spelling wins; anchors
// come first because groups list them first.
func dedupTerms(groups []models.KeywordGroup) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, g := range groups {
		for _, term := range g.Terms {
			key := strings.ToLower(strings.TrimSpace(term))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			terms = append(terms, term)
		}
	}
	return terms
}

// archive writes the report to the run ledger, best effort. It runs on
// its own context: reports must land even when the run budget that ended
// the run is already spent, and the ledger bounds its own timeouts.
func archive(cfg *config.Config, report *RunReport) {
	ctx := context.Background()
	ledger := runlog.Open(ctx, cfg.MongoDBURI, cfg.MongoDBDatabase)
	defer ledger.Close()
	ledger.Archive(ctx, report)
}
