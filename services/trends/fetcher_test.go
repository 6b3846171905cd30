package trends

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendpulse/config"
)

type scriptedClient struct {
	calls   int
	outcome func(call int) (*Frame, error)
}

func (s *scriptedClient) FetchDaily(ctx context.Context, terms []string, geo string, category int, start, end time.Time) (*Frame, error) {
	s.calls++
	return s.outcome(s.calls)
}

func fastRetryConfig() *config.Config {
	return &config.Config{
		TrendsBaseURL:    "http://localhost:0",
		MaxKeysPerCall:   5,
		RateLimitRPS:     1000,
		RateLimitBurst:   10,
		FetchMaxAttempts: 4,
		FetchBaseDelay:   time.Millisecond,
		FetchMaxDelay:    2 * time.Millisecond,
		FetchJitterFrac:  0,
	}
}

func newTestFetcher(cfg *config.Config, client Client) *Fetcher {
	f := NewFetcher(cfg, &ProxyPool{}, nil)
	f.client = client
	f.newClient = func(*url.URL) Client { return client }
	return f
}

func TestFetchWindowRetriesThenSucceeds(t *testing.T) {
	want := &Frame{Days: []time.Time{time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		Columns: map[string][]float64{"coffee": {42}}, IsPartial: []bool{false}}
	client := &scriptedClient{outcome: func(call int) (*Frame, error) {
		if call < 3 {
			return nil, fmt.Errorf("transient network error")
		}
		return want, nil
	}}

	f := newTestFetcher(fastRetryConfig(), client)
	frame, err := f.FetchWindow(context.Background(), []string{"coffee"}, "SG", 0,
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, want, frame)
	assert.Equal(t, 3, client.calls)
}

func TestFetchWindowExhaustsAttempts(t *testing.T) {
	client := &scriptedClient{outcome: func(int) (*Frame, error) {
		return nil, fmt.Errorf("still broken")
	}}

	f := newTestFetcher(fastRetryConfig(), client)
	_, err := f.FetchWindow(context.Background(), []string{"coffee"}, "SG", 0, time.Now().AddDate(0, 0, -30), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 4 attempts")
	assert.Equal(t, 4, client.calls)
}

func TestFetchWindowRotatesProxyOnThrottle(t *testing.T) {
	proxyA, _ := url.Parse("http://proxy-a:3128")
	proxyB, _ := url.Parse("http://proxy-b:3128")
	pool := &ProxyPool{proxies: []*url.URL{proxyA, proxyB}}

	cfg := fastRetryConfig()
	f := NewFetcher(cfg, pool, nil)

	var built []string
	client := &scriptedClient{outcome: func(call int) (*Frame, error) {
		if call == 1 {
			return nil, &ThrottleError{Status: 429}
		}
		return &Frame{Columns: map[string][]float64{}}, nil
	}}
	f.client = client
	f.newClient = func(u *url.URL) Client {
		built = append(built, u.Host)
		return client
	}

	_, err := f.FetchWindow(context.Background(), []string{"coffee"}, "SG", 0, time.Now().AddDate(0, 0, -30), time.Now())
	require.NoError(t, err)
	require.Equal(t, []string{"proxy-b:3128"}, built)
	assert.Equal(t, "proxy-b:3128", pool.Current().Host)
}

func TestRotateProxyKeepsCourtesyInterval(t *testing.T) {
	proxyA, _ := url.Parse("http://proxy-a:3128")
	proxyB, _ := url.Parse("http://proxy-b:3128")
	pool := &ProxyPool{proxies: []*url.URL{proxyA, proxyB}}

	cfg := fastRetryConfig()
	cfg.SleepBetween = 100 * time.Millisecond
	f := NewFetcher(cfg, pool, nil)

	stamp := time.Now().Add(-10 * time.Millisecond)
	f.client.(*HTTPClient).lastCall = stamp

	f.rotateProxy()

	rebuilt, ok := f.client.(*HTTPClient)
	require.True(t, ok)
	assert.Equal(t, stamp, rebuilt.lastCall,
		"rotation must not reset the courtesy interval")
}

func TestFetchWindowAbortsOnTightBudget(t *testing.T) {
	client := &scriptedClient{outcome: func(int) (*Frame, error) {
		t.Fatal("client should not be called when budget is exhausted")
		return nil, nil
	}}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	f := newTestFetcher(fastRetryConfig(), client)
	_, err := f.FetchWindow(ctx, []string{"coffee"}, "SG", 0, time.Now().AddDate(0, 0, -30), time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, client.calls)
}

func TestNewProxyPoolDropsDeadProxies(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead.Close() // connection refused from now on

	cfg := &config.Config{
		ProxyURLs:     []string{healthy.URL, dead.URL, "::not-a-url"},
		ProxyProbeURL: "http://probe.invalid/ip",
	}
	pool := NewProxyPool(context.Background(), cfg)
	require.Equal(t, 1, pool.Size())
	assert.Equal(t, healthy.Listener.Addr().String(), pool.Current().Host)
}
