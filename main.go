package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/autoinsight/insight-engine/pkg/adapters/datasource"
	_ "github.com/autoinsight/insight-engine/pkg/adapters/datasource/api"
	_ "github.com/autoinsight/insight-engine/pkg/adapters/datasource/csvfile"
	_ "github.com/autoinsight/insight-engine/pkg/adapters/datasource/mongodb"
	_ "github.com/autoinsight/insight-engine/pkg/adapters/datasource/mssql"
	_ "github.com/autoinsight/insight-engine/pkg/adapters/datasource/mysql"
	_ "github.com/autoinsight/insight-engine/pkg/adapters/datasource/postgres"
	"github.com/autoinsight/insight-engine/pkg/auth"
	"github.com/autoinsight/insight-engine/pkg/config"
	"github.com/autoinsight/insight-engine/pkg/database"
	"github.com/autoinsight/insight-engine/pkg/handlers"
	"github.com/autoinsight/insight-engine/pkg/metrics"
	"github.com/autoinsight/insight-engine/pkg/middleware"
	"github.com/autoinsight/insight-engine/pkg/repositories"
	"github.com/autoinsight/insight-engine/pkg/secrets"
	"github.com/autoinsight/insight-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("bind_addr", cfg.BindAddr),
		zap.String("port", cfg.Port),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", cfg.Database.Host),
		zap.String("vault", cfg.Vault.Address))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	// Metadata store.
	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := runMigrations(cfg, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Secret store: construct, unseal, and mount before serving traffic.
	secretStore, err := secrets.NewClient(&cfg.Vault, logger)
	if err != nil {
		logger.Fatal("Failed to create secret store client", zap.Error(err))
	}

	readyCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := secretStore.EnsureReady(readyCtx); err != nil {
		cancel()
		logger.Fatal("Secret store is not ready", zap.Error(err))
	}
	cancel()

	// Authentication.
	jwksClient, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
	})
	if err != nil {
		logger.Fatal("Failed to create JWKS client", zap.Error(err))
	}
	defer jwksClient.Close()

	authMiddleware := auth.NewMiddleware(jwksClient, logger)

	// Workflow wiring.
	connectionRepo := repositories.NewConnectionRepository(db)
	adapterFactory := datasource.NewAdapterFactory()
	connectionService := services.NewConnectionService(
		connectionRepo, secretStore, adapterFactory, cfg.Vault.TransitKey, logger)

	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(cfg, logger)
	healthHandler.RegisterRoutes(mux)

	connectionsHandler := handlers.NewConnectionsHandler(connectionService, logger)
	connectionsHandler.RegisterRoutes(mux, authMiddleware)

	mux.Handle("GET /metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting insight-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}

// loadConfig prefers config.yaml and falls back to environment-only
// configuration when the file is absent.
func loadConfig() (*config.Config, error) {
	if _, err := os.Stat("config.yaml"); err == nil {
		return config.Load(Version)
	}
	return config.LoadFromEnv(Version)
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// runMigrations opens a short-lived database/sql handle for golang-migrate.
func runMigrations(cfg *config.Config, logger *zap.Logger) error {
	db, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	return database.RunMigrations(db, cfg.Database.MigrationsPath, logger)
}
