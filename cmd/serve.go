package cmd

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"trendpulse/config"
	"trendpulse/models"
	"trendpulse/scheduler"
	"trendpulse/services/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daily ingest/forecast schedule with health endpoints",
	Long: `Starts an HTTP server exposing /health, /ready and /metrics, connects
to the database in the background, and schedules the daily ingest and
forecast runs in the configured run timezone. The server listens before
the database is up so platform health checks see the process early.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// serveState guards what the background init goroutine publishes: the
// readiness flag for /ready and the scheduler handle for shutdown.
var serveState struct {
	mu      sync.RWMutex
	dbReady bool
	jobs    *scheduler.Scheduler
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	metrics.Init()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())
	setupHealthEndpoints(router)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("[serve] listening on 0.0.0.0:%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[serve] server error: %v", err)
		}
	}()

	// Database and scheduler come up in the background; until then the
	// process serves /health but reports not-ready.
	go func() {
		db, err := config.InitDB()
		if err != nil {
			log.Printf("[serve] database connection failed, staying in health-only mode: %v", err)
			return
		}
		if err := models.MigrateTrendModels(db); err != nil {
			log.Printf("[serve] migrations failed: %v", err)
			return
		}

		jobs := scheduler.New(cfg, db)
		jobs.Start()

		serveState.mu.Lock()
		serveState.dbReady = true
		serveState.jobs = jobs
		serveState.mu.Unlock()
		log.Println("[serve] fully initialized")
	}()

	gracefulShutdown(server)
	return nil
}

func setupHealthEndpoints(router *gin.Engine) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "trendpulse",
		})
	})

	// Liveness: the process is up.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness: the database is connected and answering.
	router.GET("/ready", func(c *gin.Context) {
		serveState.mu.RLock()
		ready := serveState.dbReady
		serveState.mu.RUnlock()

		if !ready {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "database not connected",
			})
			return
		}
		sqlDB, err := config.DB.DB()
		if err == nil {
			err = sqlDB.Ping()
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "database ping failed",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
}

// requestLogger logs failed or slow requests and stays quiet about the
// health-check chatter.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/health" || path == "/ready" || path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		if c.Writer.Status() >= 400 || duration > time.Second {
			log.Printf("%s %s %d %v", c.Request.Method, path, c.Writer.Status(), duration)
		}
	}
}

func gracefulShutdown(server *http.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Printf("[serve] received %v, shutting down", sig)

	serveState.mu.RLock()
	jobs := serveState.jobs
	serveState.mu.RUnlock()
	if jobs != nil {
		jobs.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("[serve] forced shutdown: %v", err)
	}

	if config.DB != nil {
		if sqlDB, err := config.DB.DB(); err == nil {
			sqlDB.Close()
			log.Println("[serve] database connection closed")
		}
	}
	log.Println("[serve] shutdown complete")
}
