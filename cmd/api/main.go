// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"libman/internal/catalog"
	"libman/internal/circulation"
	"libman/internal/membership"
	"libman/internal/platform/config"
	"libman/internal/platform/logger"
	"libman/internal/platform/storage"
	"libman/internal/platform/telemetry"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, "libman-api", cfg.OTLPEndpoint)
	if err != nil {
		log.Error("tracing init failed", zap.Error(err))
		return err
	}
	defer shutdownTracing(context.Background())

	db, err := storage.Open(cfg.Driver, cfg.DSN, log)
	if err != nil {
		log.Error("storage open failed", zap.Error(err))
		return err
	}
	defer db.Close()

	catalogSvc := catalog.NewService(db, log)
	memberSvc := membership.NewService(db, log)
	loanSvc := circulation.NewService(db, log)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(30 * time.Second))

	router.Route("/api/v1", func(r chi.Router) {
		catalog.NewHandler(catalogSvc).Mount(r)
		membership.NewHandler(memberSvc).Mount(r)
		circulation.NewHandler(loanSvc).Mount(r)
	})
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "store unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("api listening",
			zap.String("addr", cfg.ListenAddr),
			zap.String("driver", cfg.Driver))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		log.Error("server failed", zap.Error(err))
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
