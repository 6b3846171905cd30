package trends

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendpulse/config"
)

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		TrendsBaseURL:  baseURL,
		MaxKeysPerCall: 5,
		SleepBetween:   0,
		RateLimitRPS:   1000,
		RateLimitBurst: 10,
	}
}

func TestFetchDailyParsesFrame(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"terms": r.URL.Query().Get("terms"),
			"geo":   r.URL.Query().Get("geo"),
			"cat":   r.URL.Query().Get("cat"),
			"start": r.URL.Query().Get("start"),
			"end":   r.URL.Query().Get("end"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"days": ["2024-03-01", "2024-03-02", "2024-03-03"],
			"series": {"coffee": [10, 20, 30], "kopi": [5, 0, 15]},
			"is_partial": [false, false, true]
		}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	c := NewHTTPClient(cfg, NewLimiter(cfg), nil)
	frame, err := c.FetchDaily(context.Background(), []string{"coffee", "kopi"}, "SG", 0,
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, "coffee,kopi", gotQuery["terms"])
	assert.Equal(t, "SG", gotQuery["geo"])
	assert.Equal(t, "0", gotQuery["cat"])
	assert.Equal(t, "2024-03-01", gotQuery["start"])
	assert.Equal(t, "2024-03-03", gotQuery["end"])

	require.Len(t, frame.Days, 3)
	assert.Equal(t, []float64{10, 20, 30}, frame.Column("coffee"))
	assert.Equal(t, []float64{5, 0, 15}, frame.Column("kopi"))
	assert.Equal(t, []bool{false, false, true}, frame.IsPartial)

	s := frame.Series("kopi")
	require.Equal(t, 3, s.Len())
	assert.Equal(t, 15.0, s.ValueAt(2))
}

func TestFetchDailyThrottle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	c := NewHTTPClient(cfg, NewLimiter(cfg), nil)
	_, err := c.FetchDaily(context.Background(), []string{"coffee"}, "SG", 0, time.Now().AddDate(0, 0, -7), time.Now())
	require.Error(t, err)

	var throttle *ThrottleError
	require.ErrorAs(t, err, &throttle)
	assert.Equal(t, http.StatusTooManyRequests, throttle.Status)
	assert.Equal(t, 3*time.Second, throttle.RetryAfter)
}

func TestFetchDailyRejectsTooManyTerms(t *testing.T) {
	cfg := testConfig("http://localhost:0")
	c := NewHTTPClient(cfg, NewLimiter(cfg), nil)
	_, err := c.FetchDaily(context.Background(), []string{"a", "b", "c", "d", "e", "f"}, "SG", 0, time.Now(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many terms")
}

func TestFetchDailyProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream broke"))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	c := NewHTTPClient(cfg, NewLimiter(cfg), nil)
	_, err := c.FetchDaily(context.Background(), []string{"coffee"}, "SG", 0, time.Now().AddDate(0, 0, -7), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestFetchDailyDropsMismatchedColumn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"days": ["2024-03-01", "2024-03-02"],
			"series": {"coffee": [10, 20], "broken": [1]},
			"is_partial": [false, false]
		}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	c := NewHTTPClient(cfg, NewLimiter(cfg), nil)
	frame, err := c.FetchDaily(context.Background(), []string{"coffee", "broken"}, "SG", 0, time.Now().AddDate(0, 0, -7), time.Now())
	require.NoError(t, err)
	assert.NotNil(t, frame.Column("coffee"))
	assert.Nil(t, frame.Column("broken"))
}
