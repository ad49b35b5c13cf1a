package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/celerix-dev/celerix-leads/internal/api"
	"github.com/celerix-dev/celerix-leads/internal/config"
	"github.com/celerix-dev/celerix-leads/internal/engine"
	"github.com/celerix-dev/celerix-leads/internal/export"
	"github.com/celerix-dev/celerix-leads/internal/logger"
	"github.com/celerix-dev/celerix-leads/internal/metrics"
	"github.com/celerix-dev/celerix-leads/internal/server"
	"github.com/celerix-dev/celerix-leads/internal/vault"
)

const gaugeRefresh = 30 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("CELERIX_LEADS_CONFIG"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "celerix-leadsd: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)

	if err := run(cfg, log); err != nil {
		log.Error("daemon failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting celerix lead service", "storage", cfg.Storage.Driver)

	// 1. Storage
	store, err := engine.Open(ctx, cfg.Storage, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		// Waits for pending snapshot writes on the file driver.
		if err := store.Close(); err != nil {
			log.Error("close store", "error", err)
			return
		}
		log.Info("store closed")
	}()

	// 2. Handlers
	loc, err := cfg.Export.Location()
	if err != nil {
		return err
	}
	m := metrics.New()
	h := &api.Handler{
		Store:        store,
		Log:          log,
		Metrics:      m,
		Export:       export.Options{Location: loc, TimeLayout: cfg.Export.TimeLayout},
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
	}

	// 3. Router and TLS
	gin.SetMode(gin.ReleaseMode)
	router := server.NewRouter(h, cfg.HTTP, log)
	if !cfg.HTTP.DisableTLS {
		cert, err := vault.GenerateSelfSignedCert()
		if err != nil {
			return fmt.Errorf("generate TLS certificate: %w", err)
		}
		router.SetCertificate(cert)
	} else {
		log.Info("TLS disabled")
	}

	// 4. Serve until a signal arrives
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return router.Listen(gctx)
	})
	g.Go(func() error {
		refreshStoredGauge(gctx, store, m, log)
		return nil
	})
	err = g.Wait()
	log.Info("shutdown complete")
	return err
}

// refreshStoredGauge keeps celerix_leads_stored in line with backends that
// other processes may write to (sqlite, postgres, redis).
func refreshStoredGauge(ctx context.Context, store engine.Store, m *metrics.Metrics, log *slog.Logger) {
	ticker := time.NewTicker(gaugeRefresh)
	defer ticker.Stop()
	for {
		if n, err := store.Count(ctx); err == nil {
			m.LeadsStored.Set(float64(n))
		} else if ctx.Err() == nil {
			log.Warn("count leads", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
