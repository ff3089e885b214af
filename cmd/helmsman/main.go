package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/helmsman-ai/helmsman/internal/adapter/agenthttp"
	hmshttp "github.com/helmsman-ai/helmsman/internal/adapter/http"
	hmsotel "github.com/helmsman-ai/helmsman/internal/adapter/otel"
	"github.com/helmsman-ai/helmsman/internal/adapter/ristretto"
	"github.com/helmsman-ai/helmsman/internal/adapter/ws"
	"github.com/helmsman-ai/helmsman/internal/config"
	"github.com/helmsman-ai/helmsman/internal/logger"
	"github.com/helmsman-ai/helmsman/internal/middleware"
	"github.com/helmsman-ai/helmsman/internal/resilience"
	"github.com/helmsman-ai/helmsman/internal/service"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"agent_url", cfg.Agent.BaseURL,
		"log_level", cfg.Logging.Level,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---
	otelShutdown, err := hmsotel.Setup(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()

	metrics, err := hmsotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---
	cache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer cache.Close()

	hub := ws.NewHub()
	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Cooldown)
	gateway := agenthttp.New(cfg.Agent.BaseURL, breaker)

	// --- Services ---
	sessions := service.NewSessionService(gateway, hub, hub, cache, metrics, cfg.Stream.Dwell, cfg.Stream.HeartbeatTimeout, cfg.Cache.DedupeTTL)
	defer sessions.Shutdown(context.Background())

	// --- HTTP ---
	handlers := hmshttp.NewHandlers(sessions, hub, version)

	r := chi.NewRouter()
	r.Use(hmshttp.CORS(cfg.Server.CORSOrigin))
	r.Use(hmshttp.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(hmshttp.Logger)
	r.Use(hmsotel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	hmshttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// No ReadTimeout/WriteTimeout: websocket connections and long-polled
		// state fetches outlive any fixed deadline.
		IdleTimeout: 120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
