package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/docopt/docopt-go"

	"social-go/internal/config"
	"social-go/internal/db"
	"social-go/internal/events"
	"social-go/internal/http/router"
	"social-go/internal/media"
	"social-go/internal/metrics"
	"social-go/internal/security"
)

const usage = `Social server.

Usage:
    server [--config=<path>]
    server -h | --help

Options:
    -h --help          Show this screen.
    --config=<path>    YAML or TOML config file [default: config/app.yaml].`

// eventBuffer is how many undelivered events a stream client may lag behind.
const eventBuffer = 64

func main() {
	opts, err := docopt.ParseDoc(usage)
	if err != nil {
		panic(err)
	}
	configPath, _ := opts.String("--config")

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})

	// Load configuration
	cfg, fromFile, err := config.LoadOrDefault(configPath)
	if err != nil {
		logger.Fatal("failed to load config", "path", configPath, "err", err)
	}
	if !fromFile {
		logger.Warn("config file not found, using defaults", "path", configPath)
	}
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warn("unknown log level", "level", cfg.LogLevel)
	}

	// Initialize database
	database, err := db.Init(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		logger.Fatal("failed to initialize database", "driver", cfg.DBDriver, "err", err)
	}
	defer database.Close()

	sessionStore := security.NewSessionStore(database, cfg.Secret, cfg.SessionLifetime())
	hub := events.NewHub(eventBuffer)
	files := media.NewStore(cfg.UploadDir, cfg.MaxUploadBytes)

	r := router.Setup(cfg, database, sessionStore, hub, files, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	janitorDone := make(chan struct{})
	go func() {
		defer close(janitorDone)
		sessionJanitor(ctx, sessionStore, cfg.JanitorEvery(), logger)
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("starting server", "port", cfg.Port, "driver", cfg.DBDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", "err", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Streams are hijacked connections that Shutdown does not wait for, so
	// closing the hub ends them.
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
	<-janitorDone
}

// sessionJanitor purges expired sessions until ctx is done.
func sessionJanitor(ctx context.Context, sessions *security.SessionStore, every time.Duration, logger *log.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.PurgeExpired(ctx)
			if err != nil {
				logger.Error("session purge failed", "err", err)
				continue
			}
			if n > 0 {
				metrics.SessionsPurged.Add(float64(n))
				logger.Debug("purged expired sessions", "count", n)
			}
		}
	}
}
