// main is the entry point for the GreenQuest API server.
//
// It reads configuration from the environment (and .env), opens the SQLite
// database, wires the reward engine together, registers all HTTP routes,
// and serves until SIGINT or SIGTERM.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — how this file fits into the project
// ────────────────────────────────────────────────────────────────────
// This file is the "composition root" — the single place where all the
// independent packages (db, verify, challenges, tickets, handlers …) are
// wired together. Every other package receives its dependencies as
// arguments, so each can be tested alone with fakes: a stub classifier,
// a temp-dir image store, an in-memory database.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/Elizabethomito/greenquest/internal/challenges"
	"github.com/Elizabethomito/greenquest/internal/config"
	"github.com/Elizabethomito/greenquest/internal/db"
	"github.com/Elizabethomito/greenquest/internal/handlers"
	"github.com/Elizabethomito/greenquest/internal/live"
	"github.com/Elizabethomito/greenquest/internal/logging"
	"github.com/Elizabethomito/greenquest/internal/metrics"
	"github.com/Elizabethomito/greenquest/internal/middleware"
	"github.com/Elizabethomito/greenquest/internal/models"
	"github.com/Elizabethomito/greenquest/internal/rewards"
	"github.com/Elizabethomito/greenquest/internal/storage"
	"github.com/Elizabethomito/greenquest/internal/streak"
	"github.com/Elizabethomito/greenquest/internal/tickets"
	"github.com/Elizabethomito/greenquest/internal/verify"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped", slog.Any("err", err))
		os.Exit(1)
	}
}

func run() error {
	// ── Configuration ────────────────────────────────────────────────
	// Settings come from the environment so the same binary runs in
	// development, CI and production. A .env file is loaded first if it
	// exists; see internal/config for every variable and its default.
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Database ─────────────────────────────────────────────────────
	// db.Open creates the file if it doesn't exist and runs all CREATE
	// TABLE IF NOT EXISTS migrations automatically.
	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	if cfg.AdminEmail != "" {
		created, err := handlers.BootstrapAdmin(ctx, database, cfg.AdminEmail, cfg.AdminPassword)
		if err != nil {
			return err
		}
		if created {
			logger.Info("admin account created", slog.String("email", cfg.AdminEmail))
		}
	}

	// ── Metrics ──────────────────────────────────────────────────────
	// A private registry keeps /metrics to our own collectors plus the
	// standard Go runtime ones.
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// ── Verification ─────────────────────────────────────────────────
	// Without CLASSIFIER_URL every image gets the fallback verdict, which
	// keeps local development free of the model service.
	catalog, err := verify.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return err
	}
	var classifier verify.Classifier = verify.Unavailable
	var ping func(context.Context) error
	if cfg.ClassifierURL != "" {
		hc := verify.NewHTTPClassifier(cfg.ClassifierURL, &http.Client{Timeout: cfg.ClassifierTimeout + 5*time.Second})
		classifier, ping = hc, hc.Ping
	} else {
		logger.Warn("CLASSIFIER_URL not set, submissions will use the fallback verdict")
	}
	verifier := verify.NewVerifier(catalog, classifier,
		verify.WithTimeout(cfg.ClassifierTimeout),
		verify.WithLogger(logger),
		verify.WithMetrics(m),
	)

	// ── Image store ──────────────────────────────────────────────────
	var store storage.Store
	switch cfg.StorageDriver {
	case config.DriverS3:
		store, err = storage.NewS3(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Endpoint)
	default:
		store, err = storage.NewLocal(cfg.UploadDir)
	}
	if err != nil {
		return fmt.Errorf("open image store: %w", err)
	}

	// ── Handlers ─────────────────────────────────────────────────────
	// Server is a plain struct holding the shared dependencies. All
	// handler methods live on it.
	hub := live.NewHub(logger)
	srv := &handlers.Server{
		DB:       database,
		Secret:   cfg.JWTSecret,
		Logger:   logger,
		Metrics:  m,
		Verifier: verifier,
		Store:    store,
		Challenges: challenges.NewEngine(database, nil,
			challenges.WithLogger(logger),
			challenges.WithMetrics(m),
		),
		Tickets:        tickets.NewService(database, logger, m),
		Rewards:        rewards.NewService(database, logger, m),
		Streaks:        streak.NewTracker(database),
		Hub:            hub,
		ClassifierPing: ping,
	}

	// ── Router ───────────────────────────────────────────────────────
	// Go 1.22+ ServeMux supports method prefixes ("GET /path") and path
	// wildcards ("{id}") natively — no third-party router needed.
	mux := http.NewServeMux()

	// Public routes — no token required.
	mux.HandleFunc("GET /api/health", srv.Health)
	mux.HandleFunc("GET /api/health/classifier", srv.ClassifierHealth)
	mux.HandleFunc("POST /api/auth/register", srv.Register)
	mux.HandleFunc("POST /api/auth/login", srv.Login)
	mux.HandleFunc("POST /api/auth/admin/login", srv.AdminLogin)
	mux.HandleFunc("GET /api/leaderboard", srv.Leaderboard)
	mux.HandleFunc("GET /ws", hub.ServeWS)

	// ── Middleware helpers ────────────────────────────────────────────
	// Chaining them: auth(onlyAdmin(handler)) means:
	//   1. Authenticate runs first  → sets user_id/role in context
	//   2. RequireRole runs second  → allows or rejects based on role
	//   3. handler runs last        → does the actual work
	auth := middleware.Authenticate(cfg.JWTSecret)
	onlyAdmin := middleware.RequireRole(string(models.RoleAdmin))
	user := func(h http.HandlerFunc) http.Handler { return auth(h) }
	admin := func(h http.HandlerFunc) http.Handler { return auth(onlyAdmin(h)) }

	// Authenticated — any logged-in account.
	mux.Handle("GET /api/me", user(srv.Me))
	mux.Handle("GET /api/activities", user(srv.ListActivities))
	mux.Handle("POST /api/activities", user(srv.SubmitActivity))
	mux.Handle("POST /api/activities/analyze", user(srv.AnalyzeActivity))
	mux.Handle("DELETE /api/activities/{id}", user(srv.DeleteActivity))
	mux.Handle("GET /api/feed", user(srv.Feed))
	mux.Handle("GET /api/search", user(srv.Search))
	mux.Handle("GET /api/tickets", user(srv.MyTickets))
	mux.Handle("POST /api/tickets", user(srv.CreateTicket))
	mux.Handle("GET /api/challenges", user(srv.ListChallenges))
	mux.Handle("POST /api/challenges/{id}/complete", user(srv.CompleteChallenge))
	mux.Handle("POST /api/rewards/redeem", user(srv.Redeem))
	mux.Handle("GET /api/rewards/redemptions", user(srv.Redemptions))

	// Admin-only routes.
	mux.Handle("GET /api/admin/tickets", admin(srv.AdminListTickets))
	mux.Handle("GET /api/admin/tickets/{id}", admin(srv.AdminGetTicket))
	mux.Handle("GET /api/admin/tickets/{id}/evidence/{evidenceId}", admin(srv.AdminTicketEvidence))
	mux.Handle("POST /api/admin/tickets/{id}/review", admin(srv.ReviewTicket))
	// Demo seed — loads fixture data; safe to call multiple times (idempotent).
	mux.Handle("POST /api/admin/seed", admin(srv.SeedDemo))

	// CORS outermost so preflight requests are answered before logging.
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           middleware.CORS(middleware.Observe(logger, m)(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Scrapes get their own listener so /metrics never rides the public API.
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", m.Handler())
	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ── Run ──────────────────────────────────────────────────────────
	// The hub and both HTTP servers run side by side; the first to fail,
	// or a signal, stops them all.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("GreenQuest API listening", slog.String("addr", cfg.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("metrics listening", slog.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return errors.Join(httpServer.Shutdown(shutdownCtx), metricsServer.Shutdown(shutdownCtx))
	})
	return g.Wait()
}
