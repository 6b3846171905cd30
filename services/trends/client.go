// Package trends talks to the rate-limited interest-index provider. It
// owns the single-call transport (Client), the egress proxy pool, and the
// retrying window fetcher built on both.
package trends

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"trendpulse/config"
	"trendpulse/services/timeseries"
)

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Frame is one provider response: a shared day index, one value column per
// requested term, and a per-day partial marker for days the provider has
// not finalized yet.
type Frame struct {
	Days      []time.Time
	Columns   map[string][]float64
	IsPartial []bool
}

// Column returns the series for one term, nil when the provider returned
// no column for it.
func (f *Frame) Column(term string) []float64 {
	if f == nil {
		return nil
	}
	return f.Columns[term]
}

// Series converts one term column into a sparse daily series.
func (f *Frame) Series(term string) *timeseries.Series {
	s := timeseries.New()
	col := f.Column(term)
	if col == nil {
		return s
	}
	for i, d := range f.Days {
		if i < len(col) {
			s.Set(d, col[i])
		}
	}
	return s
}

// ThrottleError is returned when the provider asks us to slow down. The
// fetcher reacts by rotating the egress proxy and backing off.
type ThrottleError struct {
	Status     int
	RetryAfter time.Duration
}

func (e *ThrottleError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider throttled (status %d, retry after %s)", e.Status, e.RetryAfter)
	}
	return fmt.Sprintf("provider throttled (status %d)", e.Status)
}

// Client fetches daily interest values for up to MaxKeysPerCall terms over
// one date window.
type Client interface {
	FetchDaily(ctx context.Context, terms []string, geo string, category int, start, end time.Time) (*Frame, error)
}

// HTTPClient is the production Client. One instance per egress proxy; the
// fetcher rebuilds it when it rotates proxies. The limiter and courtesy
// sleep are shared across rebuilds so rotation cannot bypass pacing.
type HTTPClient struct {
	baseURL    string
	maxKeys    int
	sleep      time.Duration
	limiter    *rate.Limiter
	httpClient *http.Client
	lastCall   time.Time
}

// NewHTTPClient builds a provider client routed through proxyURL (direct
// egress when nil).
func NewHTTPClient(cfg *config.Config, limiter *rate.Limiter, proxyURL *url.URL) *HTTPClient {
	transport := &http.Transport{}
	if proxyURL != nil {
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.TrendsBaseURL, "/"),
		maxKeys: cfg.MaxKeysPerCall,
		sleep:   cfg.SleepBetween,
		limiter: limiter,
		httpClient: &http.Client{
			Timeout:   60 * time.Second,
			Transport: transport,
		},
	}
}

// NewLimiter builds the shared provider rate limiter from config.
func NewLimiter(cfg *config.Config) *rate.Limiter {
	rps := cfg.RateLimitRPS
	if rps <= 0 {
		rps = 0.5
	}
	burst := cfg.RateLimitBurst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

type apiResponse struct {
	Days      []string             `json:"days"`
	Series    map[string][]float64 `json:"series"`
	IsPartial []bool               `json:"is_partial"`
	Error     string               `json:"error"`
}

// FetchDaily performs one provider call. It honors the courtesy interval
// between calls and the shared token-bucket limiter before touching the
// network.
func (c *HTTPClient) FetchDaily(ctx context.Context, terms []string, geo string, category int, start, end time.Time) (*Frame, error) {
	if len(terms) == 0 {
		return nil, fmt.Errorf("no terms requested")
	}
	if len(terms) > c.maxKeys {
		return nil, fmt.Errorf("too many terms for one call: %d > %d", len(terms), c.maxKeys)
	}

	if err := c.pace(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("terms", strings.Join(terms, ","))
	q.Set("geo", geo)
	q.Set("cat", strconv.Itoa(category))
	q.Set("start", start.Format("2006-01-02"))
	q.Set("end", end.Format("2006-01-02"))
	reqURL := c.baseURL + "/interest/daily?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, resp.Body)
		return nil, &ThrottleError{Status: resp.StatusCode, RetryAfter: retryAfter(resp)}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("provider error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse provider response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("provider error: %s", parsed.Error)
	}

	return buildFrame(&parsed)
}

// pace applies the courtesy interval since the previous call, then waits
// for a limiter token.
func (c *HTTPClient) pace(ctx context.Context) error {
	if c.sleep > 0 && !c.lastCall.IsZero() {
		wait := c.sleep - time.Since(c.lastCall)
		if wait > 0 {
			t := time.NewTimer(wait)
			defer t.Stop()
			select {
			case <-t.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	c.lastCall = time.Now()
	return nil
}

func buildFrame(parsed *apiResponse) (*Frame, error) {
	frame := &Frame{
		Days:      make([]time.Time, 0, len(parsed.Days)),
		Columns:   make(map[string][]float64, len(parsed.Series)),
		IsPartial: parsed.IsPartial,
	}
	for _, ds := range parsed.Days {
		d, err := time.Parse("2006-01-02", ds)
		if err != nil {
			return nil, fmt.Errorf("bad day %q in provider response: %w", ds, err)
		}
		frame.Days = append(frame.Days, d)
	}
	for term, col := range parsed.Series {
		if len(col) != len(frame.Days) {
			log.Printf("[trends] column %q length %d does not match %d days, dropping", term, len(col), len(frame.Days))
			continue
		}
		frame.Columns[term] = col
	}
	if len(frame.IsPartial) != len(frame.Days) {
		frame.IsPartial = make([]bool, len(frame.Days))
	}
	return frame, nil
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}
