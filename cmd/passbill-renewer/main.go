package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/passbill/pkg/bootstrap"
	"github.com/platinummonkey/passbill/pkg/config"
	"github.com/platinummonkey/passbill/pkg/observability"
	"github.com/platinummonkey/passbill/pkg/renewal"
)

var version = "dev"

var (
	schedule = flag.String("schedule", "", "Cron schedule for renewal runs (default: PASSBILL_RENEWAL_SCHEDULE)")
	runOnce  = flag.Bool("run-once", false, "Run renewals once and exit")
	serveOps = flag.Bool("serve-health", true, "Serve health and metrics on PASSBILL_HEALTH_PORT in scheduled mode")
)

func main() {
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.Observability.LogLevel.String()); err == nil {
		log.SetLevel(level)
	}
	if *schedule != "" {
		cfg.Renewal.Schedule = *schedule
	}

	entry := log.WithFields(logrus.Fields{"service": "passbill-renewer", "version": version})
	if err := run(cfg, log, entry); err != nil {
		entry.WithError(err).Fatal("Renewer failed")
	}
}

func run(cfg *config.Config, log *logrus.Logger, entry *logrus.Entry) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := observability.NewLogger(cfg.Observability.LogLevel, log.Out)
	components, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	if err := components.LoadCatalog(ctx); err != nil {
		return err
	}

	subs := components.Subscriptions(bootstrap.LogCollector(logger))
	runner := renewal.NewRunner(subs, cfg.Renewal.Config, components.Metrics, entry)

	if *runOnce {
		summary, err := runner.RunOnce(ctx)
		if err != nil {
			return err
		}
		entry.WithFields(logrus.Fields{
			"due":     summary.Due,
			"renewed": summary.Renewed,
			"failed":  summary.Failed,
		}).Info("Renewal run finished")
		if summary.Failed > 0 {
			return errors.New("some renewals failed")
		}
		return nil
	}

	cronLog := cron.PrintfLogger(log)
	c := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	// a run already in progress finishes even after a shutdown signal
	runCtx := context.WithoutCancel(ctx)
	_, err = c.AddFunc(cfg.Renewal.Schedule, func() {
		if _, err := runner.RunOnce(runCtx); err != nil {
			entry.WithError(err).Error("Scheduled renewal run failed")
		}
	})
	if err != nil {
		return err
	}

	var ops *http.Server
	if *serveOps {
		ops = opsServer(cfg, components)
		go func() {
			if err := ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				entry.WithError(err).Error("Health server failed")
				stop()
			}
		}()
	}

	c.Start()
	entry.WithField("schedule", cfg.Renewal.Schedule).Info("passbill renewer started")

	<-ctx.Done()
	entry.Info("Shutting down gracefully...")

	<-c.Stop().Done()

	if ops != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := ops.Shutdown(shutdownCtx); err != nil {
			entry.WithError(err).Warn("Health server shutdown failed")
		}
	}

	entry.Info("Renewer stopped")
	return nil
}

func opsServer(cfg *config.Config, components *bootstrap.Components) *http.Server {
	mux := http.NewServeMux()
	observability.RegisterHealthRoutes(mux, observability.NewHealthChecker(components.Store, components.Redis, version))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(mux, components.Registry)
	}
	return &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
