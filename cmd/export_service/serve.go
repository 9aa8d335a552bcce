package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	grpcAdapter "github.com/aradsms/bulk_export/internal/export_service/adapters/grpc"
	"github.com/aradsms/bulk_export/internal/export_service/app"
	exportDomain "github.com/aradsms/bulk_export/internal/export_service/domain"
	"github.com/aradsms/bulk_export/internal/export_service/middleware"
	pgRepo "github.com/aradsms/bulk_export/internal/export_service/repository/postgres"
	redisRepo "github.com/aradsms/bulk_export/internal/export_service/repository/redis"
	httptransport "github.com/aradsms/bulk_export/internal/export_service/transport/http"
	"github.com/aradsms/bulk_export/internal/export_service/validation"
	"github.com/aradsms/bulk_export/internal/platform/cache"
	"github.com/aradsms/bulk_export/internal/platform/config"
	"github.com/aradsms/bulk_export/internal/platform/database"
	"github.com/aradsms/bulk_export/internal/platform/messagebroker"
	"github.com/aradsms/bulk_export/internal/platform/secrets"
)

const (
	shutdownTimeout     = 15 * time.Second
	requestTimeout      = 60 * time.Second
	healthCheckInterval = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP export API, the gRPC health service and the job status consumer",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	mainCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appLogger.Info("Configuration loaded",
		"log_level", cfg.LogLevel,
		"job_store", cfg.ExportJobStore,
		"nats_url", cfg.NATSUrl,
		"export_enabled", cfg.ExportEnabled,
		"supported_destinations", cfg.ExportSupportedDestinations,
		"connection_key_present", cfg.ExportConnectionKey != "",
		"auth_enabled", cfg.JWTAccessSecret != "",
	)

	exportConfig, err := exportDomain.NewExportConfiguration(cfg.ExportEnabled, cfg.ExportSupportedDestinations)
	if err != nil {
		return fmt.Errorf("invalid export configuration: %w", err)
	}

	box, err := secrets.NewBoxFromHex(cfg.ExportConnectionKey)
	if err != nil {
		return fmt.Errorf("invalid EXPORT_CONNECTION_KEY: %w", err)
	}
	if box == nil {
		appLogger.Warn("EXPORT_CONNECTION_KEY not set, destination connection strings are stored unencrypted")
	}

	repo, ping, closeStore, err := openJobStore(mainCtx, cfg, box)
	if err != nil {
		return err
	}
	defer closeStore()

	// NATS is optional: without it jobs are still recorded, but no engine is notified.
	var natsClient messagebroker.NATSClient
	if cfg.NATSUrl != "" {
		nc, err := messagebroker.NewNatsClient(cfg.NATSUrl, serviceName, appLogger)
		if err != nil {
			appLogger.Error("Failed to connect to NATS, continuing without engine events", "url", cfg.NATSUrl, "error", err)
		} else {
			natsClient = nc
			defer nc.Close()
		}
	} else {
		appLogger.Info("NATS URL not configured, engine events are disabled")
	}

	exportService := app.NewExportService(repo, natsClient, exportConfig, appLogger)
	exportHandler := httptransport.NewExportHandler(exportService, validation.NewRequestGate(exportConfig), cfg.ExportBaseURL, appLogger)
	healthReporter := grpcAdapter.NewHealthReporter(ping, healthCheckInterval, appLogger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(requestTimeout))
	r.Use(httptransport.PrometheusMetricsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status := "ok"
		if err := healthReporter.Check(r.Context()); err != nil {
			status = "unavailable"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(exportRouter chi.Router) {
		exportRouter.Use(middleware.AuthMiddleware(cfg.JWTAccessSecret, appLogger))
		exportHandler.RegisterRoutes(exportRouter)
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ExportServiceHTTPPort),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthReporter.Register(grpcServer)

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		appLogger.Info("HTTP server starting", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("HTTP server failed", "error", err)
			return err
		}
		appLogger.Info("HTTP server stopped")
		return nil
	})

	g.Go(func() error {
		listenAddress := fmt.Sprintf(":%d", cfg.ExportServiceGRPCPort)
		lis, err := net.Listen("tcp", listenAddress)
		if err != nil {
			return fmt.Errorf("failed to listen for gRPC on %s: %w", listenAddress, err)
		}
		appLogger.Info("gRPC health server starting", "address", listenAddress)
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			appLogger.Error("gRPC server failed to serve", "error", err)
			return err
		}
		return nil
	})

	g.Go(func() error {
		return healthReporter.Run(groupCtx)
	})

	if natsClient != nil {
		consumer := app.NewJobStatusConsumer(repo, natsClient, appLogger)
		g.Go(func() error {
			return consumer.Run(groupCtx)
		})
	}

	g.Go(func() error {
		<-groupCtx.Done()
		appLogger.Info("Initiating graceful shutdown...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		grpcServer.GracefulStop()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("HTTP server shutdown failed", "error", err)
			return err
		}
		return nil
	})

	appLogger.Info("Service is ready and running.")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error("Service group encountered an error", "error", err)
		return err
	}
	appLogger.Info("Service shutdown complete.")
	return nil
}

// openJobStore connects the backend selected by EXPORT_JOB_STORE.
func openJobStore(ctx context.Context, cfg *config.Config, box *secrets.Box) (exportDomain.JobRepository, grpcAdapter.PingFunc, func(), error) {
	switch cfg.ExportJobStore {
	case config.JobStoreRedis:
		client, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		appLogger.Info("Redis job store initialized", "addr", cfg.RedisAddr)
		ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
		return redisRepo.NewRedisExportJobRepository(client, box, appLogger), ping, func() { _ = client.Close() }, nil
	default:
		dbPool, err := database.NewDBPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to initialize database connection pool: %w", err)
		}
		appLogger.Info("Postgres job store initialized")
		return pgRepo.NewPgExportJobRepository(dbPool, box, appLogger), dbPool.Ping, dbPool.Close, nil
	}
}
