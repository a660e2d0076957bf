package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/compilo/compilo-backend/internal/api/rest"
	"github.com/compilo/compilo-backend/internal/domain/transfer"
	"github.com/compilo/compilo-backend/internal/infrastructure/cache"
	"github.com/compilo/compilo-backend/internal/infrastructure/config"
	"github.com/compilo/compilo-backend/internal/infrastructure/database"
	"github.com/compilo/compilo-backend/internal/infrastructure/telemetry"
	"github.com/compilo/compilo-backend/internal/service/hierarchy"
	"github.com/compilo/compilo-backend/internal/service/transferrisk"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := telemetry.SetupLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to set up logger: %v", err)
	}
	zapLogger, err := telemetry.NewZapLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to set up service logger: %v", err)
	}
	defer zapLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TracingConfig{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "compilo-backend",
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
		ExportTimeout:  cfg.Telemetry.ExportTimeout,
		BatchTimeout:   cfg.Telemetry.BatchTimeout,
	})
	if err != nil {
		log.Fatalf("Failed to set up tracing: %v", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Printf("Tracing shutdown error: %v", err)
		}
	}()

	pool, err := database.NewConnectionPool(ctx, &cfg.Database, zapLogger)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	recipients := database.NewRecipientRepository(pool)
	externalOrgs := database.NewExternalOrgRepository(pool)
	agreements := database.NewAgreementRepository(pool)

	// Reference data reads go through Redis when configured.
	var refs transfer.ReferenceRepository = database.NewReferenceRepository(pool)
	if cfg.Redis.URL != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.URL,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		defer redisClient.Close()
		refs = cache.NewReferenceCache(redisClient, refs, zapLogger, cfg.Redis.ReferenceTTL)
	}

	hierarchySvc := hierarchy.NewService(zapLogger, recipients, externalOrgs, agreements,
		hierarchy.Config{AgreementExpiryWindow: cfg.Hierarchy.AgreementExpiryWindow})
	transferSvc := transferrisk.NewService(zapLogger, refs, hierarchySvc)

	handler := rest.NewHandler(hierarchySvc, transferSvc, refs)
	metrics := &rest.ServerMetrics{
		Requests: httpRequestsTotal,
		Duration: httpRequestDuration,
	}

	server := rest.NewServer(cfg, handler, logger, metrics, pool)
	if err := server.Start(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
