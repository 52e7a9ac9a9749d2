package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/vectorlab/quotad/internal/config"
	"github.com/vectorlab/quotad/internal/logging"
	"github.com/vectorlab/quotad/internal/repository"
	"github.com/vectorlab/quotad/internal/server"
	"github.com/vectorlab/quotad/internal/service"
	"github.com/vectorlab/quotad/internal/storage"
)

func main() {
	// Load env if it exists
	godotenv.Load()

	cfg, err := config.Load("config.json")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.Init(cfg.Server.Environment, cfg.Server.LogLevel)
	defer logging.Sync()

	postgres, err := storage.NewPostgres(cfg.Postgres.DSN)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer postgres.Close()

	if err := postgres.AutoMigrate(); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	if err := postgres.SeedPlans(); err != nil {
		logger.Fatal("failed to seed plans", zap.Error(err))
	}
	logger.Info("plan catalog seeded")

	var redis *storage.RedisClient
	if cfg.Redis.Addr != "" {
		redis, err = storage.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redis.Close()
	}

	if err := bootstrapAdmin(postgres); err != nil {
		logger.Fatal("failed to bootstrap admin user", zap.Error(err))
	}

	srv := server.New(cfg, postgres, redis)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Reconciler.Enabled && cfg.Reconciler.SourceURL != "" {
		projects := repository.NewProjectRepository(postgres)
		usage := repository.NewUsageRepository(postgres)
		source := service.NewHTTPCountSource(cfg.Reconciler.SourceURL)
		reconciler := service.NewReconciler(projects, usage, source, cfg.Reconciler.Interval(), logger)
		go reconciler.Run(ctx)
		logger.Info("reconciler started", zap.Duration("interval", cfg.Reconciler.Interval()))
	}

	go func() {
		addr := ":" + cfg.Server.Port
		if err := srv.Run(addr); err != nil {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("stopped")
}

// bootstrapAdmin creates the first admin user from the environment when the
// table is empty, so a fresh deployment can log in without manual SQL.
func bootstrapAdmin(postgres *storage.Postgres) error {
	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	if email == "" || password == "" {
		return nil
	}

	repo := repository.NewAdminUserRepository(postgres)
	auth := service.NewAuthService(repo, os.Getenv("JWT_SECRET"), 24)

	existing, err := repo.FindByEmail(context.Background(), email)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	return auth.Register(context.Background(), email, password, "bootstrap")
}
