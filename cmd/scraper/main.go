package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/maxfell/recipe-scraper/internal/adapter"
	"github.com/maxfell/recipe-scraper/internal/api"
	"github.com/maxfell/recipe-scraper/internal/config"
	"github.com/maxfell/recipe-scraper/internal/dom"
	"github.com/maxfell/recipe-scraper/internal/recipe"
	"github.com/maxfell/recipe-scraper/internal/scheduler"
	"github.com/maxfell/recipe-scraper/internal/serialize"
	"github.com/maxfell/recipe-scraper/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, cleanup, err := newResultStore(ctx, cfg.Storage)
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	plain := dom.NewHTTPProvider(dom.HTTPOptions{}, logger)
	defer plain.Close()

	var scripted dom.Provider
	if cfg.Browser.Enabled {
		browserOpts := dom.DefaultBrowserOptions()
		browserOpts.Headless = cfg.Browser.Headless
		browserOpts.Timeout = cfg.Browser.Timeout
		browserOpts.ViewportWidth = cfg.Browser.ViewportWidth
		browserOpts.ViewportHeight = cfg.Browser.ViewportHeight
		browserOpts.Locale = cfg.Browser.Locale
		if cfg.Browser.UserAgent != "" {
			browserOpts.UserAgent = cfg.Browser.UserAgent
		}

		browser, err := dom.NewBrowserProvider(browserOpts, logger)
		if err != nil {
			// Recipes asking for scripted rendering fall back to plain HTTP.
			logger.Warn("headless browser unavailable, running without it", "error", err)
		} else {
			scripted = browser
			defer browser.Close()
		}
	}

	recipeStore, err := recipe.NewStore(cfg.Recipes.Dir, logger)
	if err != nil {
		logger.Error("failed to initialize recipe store", "error", err)
		os.Exit(1)
	}

	resolver, err := adapter.NewResolver(recipeStore, plain, scripted, logger)
	if err != nil {
		logger.Error("failed to initialize resolver", "error", err)
		os.Exit(1)
	}

	metrics := scheduler.NewMetrics()
	serializer := serialize.NewCSVGenerator(cfg.Output.Dir, logger)
	sched := scheduler.New(resolver, serializer, store, metrics, scheduler.Options{
		ResultTTL: cfg.Output.ResultTTL,
	}, logger)
	go sched.Run(ctx)

	handlers := api.NewHandlers(sched, store, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://localhost:*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", handlers.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/jobs", handlers.SubmitJob)
		r.Get("/jobs", handlers.ListJobs)
		r.Get("/jobs/{jobID}", handlers.GetJob)
		r.Delete("/jobs/{jobID}", handlers.CancelJob)
		r.Get("/jobs/{jobID}/result", handlers.GetJobResult)
		r.Get("/stats", handlers.GetStats)
	})

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		sched.Close()
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "addr", server.Addr, "recipes", cfg.Recipes.Dir)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var out io.Writer = os.Stdout
	if cfg.File != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
	}

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
}

func newResultStore(ctx context.Context, cfg config.StorageConfig) (storage.ResultStore, func(), error) {
	switch cfg.Backend {
	case "redis":
		s, err := storage.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case "postgres":
		s, err := storage.NewPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	default:
		return storage.NewMemoryStore(), func() {}, nil
	}
}
