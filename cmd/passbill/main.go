package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/passbill/pkg/api"
	"github.com/platinummonkey/passbill/pkg/bootstrap"
	"github.com/platinummonkey/passbill/pkg/config"
	"github.com/platinummonkey/passbill/pkg/httputil"
	"github.com/platinummonkey/passbill/pkg/observability"
)

// set with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", "passbill").
		WithField("version", version)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("passbill exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: version,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return err
	}

	components, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if err := components.LoadCatalog(ctx); err != nil {
		_ = components.Close()
		return err
	}

	server := api.NewServer(
		components.Quotes(),
		components.Subscriptions(bootstrap.LogCollector(logger)),
		logger,
	)
	if cfg.Observability.MetricsEnabled {
		server.Router().Use(observability.HTTPMetricsMiddleware(components.Metrics, api.RouteTemplate))
	}

	handler := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.RecoveryMiddleware(logger),
		httputil.LoggingMiddleware(logger),
		httputil.MaxBytesMiddleware(cfg.Server.MaxBodyBytes),
		httputil.ContentTypeMiddleware,
	)(server)

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      otelhttp.NewHandler(handler, "passbill"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(components.Store, components.Redis, version))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, components.Registry)
	}
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, healthServer)
	shutdown.RegisterShutdownFunc("background", func(ctx context.Context) error {
		cancel()
		return nil
	})
	shutdown.RegisterShutdownFunc("components", func(ctx context.Context) error {
		return components.Close()
	})
	shutdown.RegisterShutdownFunc("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	go func() {
		defer observability.RecoverPanic(logger, "stats loop")
		components.RunStatsLoop(ctx, 15*time.Second)
	}()

	watchLog := logrus.New()
	watchLog.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(cfg.Observability.LogLevel.String()); err == nil {
		watchLog.SetLevel(level)
	}
	go func() {
		defer observability.RecoverPanic(logger, "catalog watcher")
		if err := components.WatchCatalog(ctx, watchLog); err != nil {
			logger.WithError(err).Error("Catalog watcher stopped")
		}
	}()

	serve := func(name string, srv *http.Server) {
		logger.WithField("addr", srv.Addr).Infof("Starting %s server", name)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).WithField("server", name).Error("Server failed")
			cancel()
		}
	}
	go serve("api", apiServer)
	go serve("health", healthServer)

	return shutdown.WaitForShutdown(ctx)
}
