// Command recordkit-server runs the recordkit HTTP API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/recordkit/recordkit/internal/api"
	"github.com/recordkit/recordkit/internal/audit"
	"github.com/recordkit/recordkit/internal/config"
	"github.com/recordkit/recordkit/internal/db"
	"github.com/recordkit/recordkit/internal/db/migrations"
	"github.com/recordkit/recordkit/internal/dbpool"
	"github.com/recordkit/recordkit/internal/repo"
	"github.com/recordkit/recordkit/internal/ws"
)

// Version is set at build time via -ldflags.
var Version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	if err := run(log); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}

func run(log *logrus.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := dbpool.NewPool(ctx, cfg.DatabaseURL.Value())
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, log, migrations.FS); err != nil {
		return err
	}

	store := repo.NewDB(pool, log)
	hub := ws.NewHub(log)
	auditSvc := audit.NewService(store, log, hub)

	router := api.NewRouter(ctx, &api.RouterDeps{
		Log:         log,
		Pool:        pool,
		Hub:         hub,
		Audit:       auditSvc,
		APIKey:      cfg.APIKey.Value(),
		CORSOrigins: cfg.CORSOrigins,
		Version:     Version,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)

		return nil
	})

	g.Go(func() error {
		runRetention(gctx, auditSvc, cfg.AuditRetentionDays, log)

		return nil
	})

	g.Go(func() error {
		log.WithFields(logrus.Fields{
			"addr":    cfg.Addr(),
			"version": Version,
		}).Info("server listening")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// retentionInterval is how often expired audit entries are purged.
const retentionInterval = 24 * time.Hour

// runRetention purges audit entries older than the configured retention on
// a daily cadence. Failures are logged and retried at the next tick.
func runRetention(ctx context.Context, svc *audit.Service, retentionDays int, log *logrus.Logger) {
	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.Purge(ctx, retentionDays); err != nil {
				log.WithError(err).Error("retention purge failed")
			}
		}
	}
}
