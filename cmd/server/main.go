package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/data-intelligence/backend/internal/api"
	"github.com/data-intelligence/backend/internal/chat"
	"github.com/data-intelligence/backend/internal/config"
	"github.com/data-intelligence/backend/internal/dataset"
	"github.com/data-intelligence/backend/internal/ingest"
	"github.com/data-intelligence/backend/internal/session"
	"github.com/data-intelligence/backend/internal/storage"
	"github.com/data-intelligence/backend/internal/validation"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Optional .env for local development; real deployments use the
	// YAML config plus environment variables.
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	// Initialize storage
	fileStore, err := storage.NewLocalStore(cfg.Storage.UploadsDirectory)
	if err != nil {
		fmt.Printf("Failed to initialize storage: %v\n", err)
		os.Exit(1)
	}

	// Initialize the dataset engine (DuckDB-backed)
	engine, err := dataset.NewEngine(cfg.Storage.TempDirectory)
	if err != nil {
		fmt.Printf("Failed to initialize dataset engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	// Core services
	validator := validation.NewService(cfg.ValidationOverrides())
	ingestMgr := ingest.NewManager(engine, fileStore)
	sessionMgr := session.NewManager()
	chatSvc := chat.NewService(sessionMgr, engine)

	// Background maintenance: expire idle sessions and drop finished
	// ingest jobs.
	cleanupDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Cleanup.IntervalMinutes) * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sessionMgr.CleanupOldSessions(time.Duration(cfg.Cleanup.SessionTimeoutMinutes) * time.Minute)
				ingestMgr.CleanupOldJobs(time.Duration(cfg.Cleanup.JobRetentionMinutes) * time.Minute)
			case <-cleanupDone:
				return
			}
		}
	}()
	defer close(cleanupDone)

	handlers := api.NewHandlers(&api.Dependencies{
		Validator:  validator,
		Store:      fileStore,
		Engine:     engine,
		IngestMgr:  ingestMgr,
		SessionMgr: sessionMgr,
		ChatSvc:    chatSvc,
		Version:    Version,
	})

	e := echo.New()
	api.SetupMiddleware(e, cfg.Server.RateLimit)

	// The validator enforces the real per-file ceiling; the body limit
	// just keeps oversized requests from buffering through echo.
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))
	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().Header.Get("Accept") == "text/event-stream" ||
				strings.Contains(c.Request().URL.Path, "/stream")
		},
	}))

	if cfg.Advanced.EnableRequestLogging {
		e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
			Skipper: func(c echo.Context) bool {
				path := c.Request().URL.Path
				return path == "/api/health" ||
					path == "/metrics" ||
					strings.Contains(path, "/stream")
			},
		}))
	}

	api.RegisterRoutes(e, handlers)

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	fmt.Printf("Data Intelligence Platform %s (built %s)\n", Version, BuildTime)
	fmt.Printf("  config:  %s\n", configPath)
	fmt.Printf("  listen:  http://%s\n", cfg.GetServerAddr())
	fmt.Printf("  uploads: %s\n", cfg.Storage.UploadsDirectory)

	go func() {
		if err := e.StartServer(s); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal(err)
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		e.Logger.Error(err)
	}
}
