// Package main is the entry point for the studysync server.
//
// main reads configuration, builds the collaborators and starts the HTTP
// server. All actual logic lives in internal/.
//
// DEPENDENCY GRAPH:
//
//	config → sqlstore.DB ─────────────────────────┐
//	config → auth.TokenService → auth.Manager ──┬─┼→ server
//	                 identity.Resolver ←────────┘ │
//	                         ↓                    │
//	              service.Coordinator ────────────┘
//
// The Resolver tells the Coordinator about sign-in and sign-out, which is
// what keeps the collection in step with the session.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sakif/studysync/internal/auth"
	"github.com/sakif/studysync/internal/config"
	"github.com/sakif/studysync/internal/identity"
	"github.com/sakif/studysync/internal/metrics"
	"github.com/sakif/studysync/internal/repository/sqlstore"
	"github.com/sakif/studysync/internal/server"
	"github.com/sakif/studysync/internal/service"
)

func main() {
	cfg := config.Load()

	// === 1. SET UP LOGGING ===
	// Level and format come from LOG_LEVEL / LOG_FORMAT. An invalid level is
	// reported by Validate below, so fall back to Info until then.
	level, err := cfg.Log.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var logHandler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.Log.Format == "json" {
		logHandler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(logHandler)

	// === 2. VALIDATE CONFIGURATION ===
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// === 3. OPEN THE STORE ===
	// For a SQLite file, make sure its directory exists (like `mkdir -p`).
	storeCfg := cfg.Store()
	if storeCfg.Driver == sqlstore.DriverSQLite && storeCfg.DSN != ":memory:" {
		dir := filepath.Dir(storeCfg.DSN)
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}
	db, err := sqlstore.Open(ctx, storeCfg)
	if err != nil {
		logger.Error("failed to open store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()
	if !storeCfg.Provision {
		logger.Warn("store not provisioned, study groups will use fallback data")
	}

	// === 4. METRICS ===
	var (
		rec      *metrics.Recorder
		gatherer prometheus.Gatherer
	)
	if cfg.Server.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		if rec, err = metrics.New(reg); err != nil {
			logger.Error("failed to register metrics", slog.String("error", err.Error()))
			os.Exit(1)
		}
		gatherer = reg
	}

	// === 5. SESSION AND IDENTITY ===
	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	if err != nil {
		logger.Error("failed to create token service", slog.String("error", err.Error()))
		os.Exit(1)
	}
	manager := auth.NewManager(tokens, cfg.Auth.SessionTTL, logger.With(slog.String("component", "auth")))
	resolver := identity.New(ctx, manager, logger.With(slog.String("component", "identity")))
	defer resolver.Close()

	// === 6. STUDY GROUPS ===
	coord := service.NewCoordinator(db, resolver, rec, logger.With(slog.String("component", "studygroups")))
	resolver.OnChange(coord.HandleAuthChange)

	// === 7. CREATE AND START THE SERVER ===
	srv, err := server.New(server.Config{
		Port:           cfg.Server.Port,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, server.Deps{
		Groups:   coord,
		Sessions: manager,
		Store:    db,
		Metrics:  gatherer,
	}, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("studysync configured",
		slog.String("driver", string(storeCfg.Driver)),
		slog.Bool("provisioned", storeCfg.Provision),
		slog.Bool("metrics", cfg.Server.MetricsEnabled),
	)

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(ctx); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
