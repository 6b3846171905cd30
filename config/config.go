package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Port        string
	Environment string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Interest-index provider.
	TrendsBaseURL  string
	Geo            string
	Category       int
	MaxKeysPerCall int
	SleepBetween   time.Duration
	RateLimitRPS   float64
	RateLimitBurst int

	// Fetch retry and egress.
	FetchMaxAttempts int
	FetchBaseDelay   time.Duration
	FetchMaxDelay    time.Duration
	FetchJitterFrac  float64
	ProxyURLs        []string
	ProxyProbeURL    string

	// Ingestion horizon.
	DaysBack        int
	IncrOverlapDays int
	WindowSpanDays  int
	WindowStepDays  int

	// Forecasting.
	HistoryDays    int
	ForecastDays   int
	MinTrainDays   int
	RidgeAlphas    []float64
	ValidationDays int

	RunTimezone string
	RunBudget   time.Duration

	WSNotifyURL     string
	MongoDBURI      string
	MongoDBDatabase string
	FetchCachePath  string

	IngestAt   string
	ForecastAt string
}

var AppConfig *Config
var DB *gorm.DB

// LoadConfig loads environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "trends_db"),
		DBSSLMode:  getEnv("DB_SSLMODE", "require"),

		TrendsBaseURL:  getEnv("TRENDS_BASE_URL", ""),
		Geo:            getEnv("TRENDS_GEO", "SG"),
		Category:       getEnvInt("TRENDS_CATEGORY", 0),
		MaxKeysPerCall: getEnvInt("MAX_KEYS_PER_CALL", 5),
		SleepBetween:   getEnvMillis("SLEEP_BETWEEN_MS", 1200),
		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 0.5),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 1),

		FetchMaxAttempts: getEnvInt("FETCH_MAX_ATTEMPTS", 7),
		FetchBaseDelay:   getEnvMillis("FETCH_BASE_DELAY_MS", 800),
		FetchMaxDelay:    getEnvMillis("FETCH_MAX_DELAY_MS", 20000),
		FetchJitterFrac:  getEnvFloat("FETCH_JITTER_FRAC", 0.35),
		ProxyURLs:        getEnvList("PROXY_URLS"),
		ProxyProbeURL:    getEnv("PROXY_PROBE_URL", "https://httpbin.org/ip"),

		DaysBack:        getEnvInt("DAYS_BACK", 365),
		IncrOverlapDays: getEnvInt("INCR_OVERLAP_DAYS", 120),
		WindowSpanDays:  getEnvInt("WINDOW_SPAN_DAYS", 90),
		WindowStepDays:  getEnvInt("WINDOW_STEP_DAYS", 60),

		HistoryDays:    getEnvInt("HISTORY_DAYS", 420),
		ForecastDays:   getEnvInt("FORECAST_DAYS", 7),
		MinTrainDays:   getEnvInt("MIN_TRAIN_DAYS", 120),
		RidgeAlphas:    getEnvFloats("RIDGE_ALPHAS", []float64{0.01, 0.05, 0.1, 0.3, 1, 3, 10, 30, 100}),
		ValidationDays: getEnvInt("VALIDATION_DAYS", 14),

		RunTimezone: getEnv("RUN_TIMEZONE", "Asia/Singapore"),
		RunBudget:   time.Duration(getEnvInt("RUN_BUDGET_SECONDS", 0)) * time.Second,

		WSNotifyURL:     getEnv("WS_NOTIFY_URL", ""),
		MongoDBURI:      getEnv("MONGODB_URI", ""),
		MongoDBDatabase: getEnv("MONGODB_DATABASE", "trends_ops"),
		FetchCachePath:  getEnv("FETCH_CACHE_PATH", "data/fetchcache.db"),

		IngestAt:   getEnv("INGEST_AT", "02:00"),
		ForecastAt: getEnv("FORECAST_AT", "04:30"),
	}

	AppConfig = config
	return config, nil
}

// Validate checks the options every run needs before any work starts.
func (c *Config) Validate() error {
	if c.DBHost == "" || c.DBName == "" {
		return fmt.Errorf("database not configured: DB_HOST and DB_NAME are required")
	}
	return nil
}

// ValidateIngest additionally requires the interest provider endpoint.
func (c *Config) ValidateIngest() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.TrendsBaseURL == "" {
		return fmt.Errorf("TRENDS_BASE_URL is required for ingestion")
	}
	return nil
}

// InitDB initializes database connection
func InitDB() (*gorm.DB, error) {
	// Log connection info (masked for security)
	log.Printf("Connecting to database: host=%s port=%s user=%s dbname=%s",
		maskHost(AppConfig.DBHost),
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBName,
	)

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		AppConfig.DBHost,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBPort,
		AppConfig.DBSSLMode,
		AppConfig.RunTimezone,
	)

	var logLevel logger.LogLevel
	if AppConfig.Environment == "production" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})

	if err != nil {
		log.Printf("Database connection error: %v", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection with ping
	sqlDB, err := db.DB()
	if err != nil {
		log.Printf("Failed to get underlying database: %v", err)
		return nil, fmt.Errorf("failed to get database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		log.Printf("Database ping failed: %v", err)
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Printf("Database connection verified successfully")
	DB = db
	return db, nil
}

// RunLocation resolves the configured run timezone, falling back to UTC.
func (c *Config) RunLocation() *time.Location {
	loc, err := time.LoadLocation(c.RunTimezone)
	if err != nil {
		log.Printf("Invalid RUN_TIMEZONE %q, falling back to UTC: %v", c.RunTimezone, err)
		return time.UTC
	}
	return loc
}

// maskHost masks host for logging, preserving domain structure
func maskHost(host string) string {
	if len(host) <= 3 {
		return "***"
	}
	if len(host) <= 15 {
		return host[:3] + "***"
	}
	return host[:8] + "***" + host[len(host)-10:]
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid integer for %s=%q, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("Invalid number for %s=%q, using default %g", key, value, defaultValue)
		return defaultValue
	}
	return f
}

func getEnvMillis(key string, defaultMillis int) time.Duration {
	return time.Duration(getEnvInt(key, defaultMillis)) * time.Millisecond
}

// getEnvList parses a comma-separated environment variable into a slice,
// dropping empty entries.
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvFloats parses a comma-separated list of numbers, keeping the default
// when the variable is unset or nothing parses.
func getEnvFloats(key string, defaultValue []float64) []float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []float64
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		f, err := strconv.ParseFloat(part, 64)
		if err != nil {
			log.Printf("Invalid number %q in %s, skipping", part, key)
			continue
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
