package trends

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"trendpulse/config"
	"trendpulse/services/metrics"
)

// WindowCache archives raw provider frames so a rerun later the same day
// can reuse them instead of re-hitting the provider. Both methods are
// best-effort; implementations must never fail a fetch.
type WindowCache interface {
	Get(geo string, category int, terms []string, start, end time.Time) (*Frame, bool)
	Put(geo string, category int, terms []string, start, end time.Time, frame *Frame)
}

// Fetcher fetches provider windows with bounded retries, exponential
// backoff with jitter, and proxy rotation on throttling. One Fetcher is
// built per run and discarded afterwards; the chosen proxy stays sticky
// until the provider throttles.
type Fetcher struct {
	cfg       *config.Config
	pool      *ProxyPool
	limiter   *rate.Limiter
	client    Client
	newClient func(proxyURL *url.URL) Client
	policy    retryPolicy
	cache     WindowCache
}

// NewFetcher wires the run-scoped fetch state: shared limiter, sticky
// proxy from the pool, optional window cache (nil disables caching).
func NewFetcher(cfg *config.Config, pool *ProxyPool, cache WindowCache) *Fetcher {
	limiter := NewLimiter(cfg)
	f := &Fetcher{
		cfg:     cfg,
		pool:    pool,
		limiter: limiter,
		policy:  policyFromConfig(cfg),
		cache:   cache,
	}
	f.newClient = func(proxyURL *url.URL) Client {
		return NewHTTPClient(cfg, limiter, proxyURL)
	}
	f.client = f.newClient(pool.Current())
	return f
}

// FetchWindow fetches one date window for up to MaxKeysPerCall terms,
// retrying per the backoff policy. Throttle errors rotate the proxy before
// the next attempt. A context deadline short on headroom aborts the window
// with a deadline error so the caller can stop fetching further windows.
func (f *Fetcher) FetchWindow(ctx context.Context, terms []string, geo string, category int, start, end time.Time) (*Frame, error) {
	if f.cache != nil {
		if frame, ok := f.cache.Get(geo, category, terms, start, end); ok {
			log.Printf("[trends] window %s..%s served from cache", day(start), day(end))
			metrics.CacheHit()
			return frame, nil
		}
	}

	var lastErr error
	for attempt := 1; attempt <= f.policy.maxAttempts; attempt++ {
		if err := checkBudget(ctx); err != nil {
			return nil, err
		}

		frame, err := f.client.FetchDaily(ctx, terms, geo, category, start, end)
		if err == nil {
			if f.cache != nil {
				f.cache.Put(geo, category, terms, start, end, frame)
			}
			metrics.WindowFetched(geo)
			return frame, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err

		delay := f.policy.delay(attempt)
		retryReason := "error"
		var throttle *ThrottleError
		if errors.As(err, &throttle) {
			if throttle.RetryAfter > delay {
				delay = throttle.RetryAfter
			}
			f.rotateProxy()
			retryReason = "throttle"
		}

		if attempt < f.policy.maxAttempts {
			metrics.WindowRetried(retryReason)
			log.Printf("[trends] window %s..%s attempt %d/%d failed: %v (retrying in %s)",
				day(start), day(end), attempt, f.policy.maxAttempts, err, delay.Round(time.Millisecond))
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("window %s..%s failed after %d attempts: %w",
		day(start), day(end), f.policy.maxAttempts, lastErr)
}

// rotateProxy advances the pool and rebuilds the transport client on the
// new exit. The limiter and the courtesy-interval timestamp carry over so
// rotation never resets pacing.
func (f *Fetcher) rotateProxy() {
	if f.pool == nil || f.pool.Size() < 2 {
		return
	}
	next := f.pool.Rotate()
	prev := f.client
	f.client = f.newClient(next)
	if pc, ok := prev.(*HTTPClient); ok {
		if nc, ok := f.client.(*HTTPClient); ok {
			nc.lastCall = pc.lastCall
		}
	}
}

func day(t time.Time) string { return t.Format("2006-01-02") }
