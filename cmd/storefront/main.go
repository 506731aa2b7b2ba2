package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/uptrace/bun"

	"ms-storefront/internal/auth"
	"ms-storefront/internal/config"
	"ms-storefront/internal/database"
	"ms-storefront/internal/database/migrations"
	"ms-storefront/internal/kafka"
	"ms-storefront/internal/logger"
)

func migrate(ctx context.Context, cfg *config.Config, db *bun.DB, log *logger.Logger) error {
	if cfg.Database.Driver == "sqlite" {
		log.Info("DATABASE", "Creating SQLite schema from models")
		return database.CreateSchema(ctx, db)
	}
	runner := migrations.NewRunner(db.DB, migrations.Options{Dir: cfg.Migrations.Dir}, log)
	return runner.Up()
}

func setupKafka(ctx context.Context, cfg config.KafkaConfig, log *logger.Logger) (kafka.Publisher, func()) {
	if !cfg.Enabled {
		log.Warn("KAFKA", "Kafka disabled, domain events will not be published")
		return kafka.Noop{}, func() {}
	}

	if err := kafka.EnsureTopicsExist(ctx, cfg.Brokers, cfg.Topics.All(), log); err != nil {
		log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	} else {
		log.Info("KAFKA", "Required topics ensured successfully")
	}

	producer := kafka.NewProducer(cfg.Brokers, log)
	return producer, func() {
		if err := producer.Close(); err != nil {
			log.Error("KAFKA", fmt.Sprintf("Failed to close producer: %v", err))
		}
	}
}

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()

	log := logger.NewLogger(cfg.Log.Dir)
	defer log.Close()

	log.Info("APP", "Starting storefront service")
	if envErr != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	ctx := context.Background()

	tokens, err := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	if err != nil {
		log.Fatal("CONFIG", fmt.Sprintf("Invalid auth configuration: %v", err))
	}

	db, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	if cfg.Migrations.AutoMigrate {
		if err := migrate(ctx, cfg, db, log); err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Migration failed: %v", err))
		}
	}

	redisClient, err := auth.NewRedisClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal("REDIS", fmt.Sprintf("Redis connection error: %v", err))
	}
	defer redisClient.Close()

	publisher, closeKafka := setupKafka(ctx, cfg.Kafka, log)
	defer closeKafka()

	if cfg.Cron.Secret == "" {
		log.Warn("CONFIG", "CRON_SECRET not set, the warranty sweep endpoint is open")
	}

	handler := newRouter(deps{
		cfg:         cfg,
		db:          db,
		tokens:      tokens,
		revocations: &auth.RedisRevocations{Client: redisClient},
		publisher:   publisher,
		log:         log,
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Storefront running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server shutdown failed: %v", err))
	} else {
		log.Info("HTTP", "Storefront shutdown complete")
	}
}
