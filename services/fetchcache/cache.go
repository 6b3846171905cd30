// Package fetchcache keeps a local SQLite archive of raw provider window
// responses. The provider is rate limited, so a rerun later the same day
// serves already-fetched windows from here instead of spending quota.
package fetchcache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"trendpulse/services/trends"
)

// Cache is safe for concurrent use. Get and Put are best-effort: any
// internal failure is logged and surfaces as a miss or a no-op, never as
// an error to the fetch path.
type Cache struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ trends.WindowCache = (*Cache)(nil)

// Open creates or opens the cache file, verifies the connection, creates
// the table and drops entries from previous days.
func Open(path string) (*Cache, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fetch cache: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping fetch cache: %w", err)
	}

	c := &Cache{db: db}
	if err := c.createTable(); err != nil {
		return nil, err
	}
	c.purgeStale()

	log.Printf("Fetch cache initialized at %s", path)
	return c, nil
}

func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *Cache) createTable() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	query := `
		CREATE TABLE IF NOT EXISTS window_cache (
			cache_key VARCHAR PRIMARY KEY,
			geo VARCHAR NOT NULL,
			category INTEGER NOT NULL,
			terms VARCHAR NOT NULL,
			start_day VARCHAR NOT NULL,
			end_day VARCHAR NOT NULL,
			fetched_day VARCHAR NOT NULL,
			payload TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`
	if _, err := c.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create window_cache table: %w", err)
	}
	c.db.Exec("CREATE INDEX IF NOT EXISTS idx_window_cache_day ON window_cache(fetched_day)")

	log.Println("window_cache table created/verified")
	return nil
}

// purgeStale removes entries fetched before today; they will never be
// served again.
func (c *Cache) purgeStale() {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.Exec("DELETE FROM window_cache WHERE fetched_day < ?", today())
	if err != nil {
		log.Printf("Warning: failed to purge stale cache windows: %v", err)
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		log.Printf("Purged %d stale cached windows", n)
	}
}

// cachedFrame is the stored JSON form of a provider frame.
type cachedFrame struct {
	Days      []string             `json:"days"`
	Series    map[string][]float64 `json:"series"`
	IsPartial []bool               `json:"is_partial"`
}

// Get returns the cached frame for this exact window if it was fetched
// today.
func (c *Cache) Get(geo string, category int, terms []string, start, end time.Time) (*trends.Frame, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var payload, fetchedDay string
	err := c.db.QueryRow(
		"SELECT payload, fetched_day FROM window_cache WHERE cache_key = ?",
		cacheKey(geo, category, terms, start, end),
	).Scan(&payload, &fetchedDay)
	if err != nil {
		if err != sql.ErrNoRows {
			log.Printf("Warning: fetch cache read failed: %v", err)
		}
		return nil, false
	}
	if fetchedDay != today() {
		return nil, false
	}

	var stored cachedFrame
	if err := json.Unmarshal([]byte(payload), &stored); err != nil {
		log.Printf("Warning: corrupt cache payload, ignoring: %v", err)
		return nil, false
	}

	frame := &trends.Frame{
		Days:      make([]time.Time, 0, len(stored.Days)),
		Columns:   stored.Series,
		IsPartial: stored.IsPartial,
	}
	for _, ds := range stored.Days {
		d, err := time.Parse("2006-01-02", ds)
		if err != nil {
			log.Printf("Warning: corrupt cache day %q, ignoring entry: %v", ds, err)
			return nil, false
		}
		frame.Days = append(frame.Days, d)
	}
	return frame, true
}

// Put stores a freshly fetched frame, replacing any previous entry for the
// same window.
func (c *Cache) Put(geo string, category int, terms []string, start, end time.Time, frame *trends.Frame) {
	if frame == nil {
		return
	}
	stored := cachedFrame{
		Days:      make([]string, 0, len(frame.Days)),
		Series:    frame.Columns,
		IsPartial: frame.IsPartial,
	}
	for _, d := range frame.Days {
		stored.Days = append(stored.Days, d.Format("2006-01-02"))
	}
	payload, err := json.Marshal(stored)
	if err != nil {
		log.Printf("Warning: failed to encode cache payload: %v", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	query := `
		INSERT OR REPLACE INTO window_cache
			(cache_key, geo, category, terms, start_day, end_day, fetched_day, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = c.db.Exec(query,
		cacheKey(geo, category, terms, start, end),
		geo, category, strings.Join(terms, ","),
		start.Format("2006-01-02"), end.Format("2006-01-02"),
		today(), string(payload),
	)
	if err != nil {
		log.Printf("Warning: failed to store cache window: %v", err)
	}
}

// Count returns the number of cached windows, for diagnostics.
func (c *Cache) Count() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var count int
	err := c.db.QueryRow("SELECT COUNT(*) FROM window_cache").Scan(&count)
	return count, err
}

func cacheKey(geo string, category int, terms []string, start, end time.Time) string {
	return geo + "|" + strconv.Itoa(category) + "|" + strings.Join(terms, ",") +
		"|" + start.Format("2006-01-02") + "|" + end.Format("2006-01-02")
}

func today() string {
	return time.Now().UTC().Format("2006-01-02")
}
