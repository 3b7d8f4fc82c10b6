package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/shenikar/civic_issue_reporter/internal/config"
	v1 "github.com/shenikar/civic_issue_reporter/internal/handler/http/v1"
	"github.com/shenikar/civic_issue_reporter/internal/photo"
	"github.com/shenikar/civic_issue_reporter/internal/repository"
	"github.com/shenikar/civic_issue_reporter/internal/service"
	"github.com/shenikar/civic_issue_reporter/internal/webhook"
	"github.com/shenikar/civic_issue_reporter/pkg/logger"
	minioclient "github.com/shenikar/civic_issue_reporter/pkg/minio"
	"github.com/shenikar/civic_issue_reporter/pkg/postgres"
	redisclient "github.com/shenikar/civic_issue_reporter/pkg/redis"
	"github.com/sirupsen/logrus"

	_ "github.com/shenikar/civic_issue_reporter/docs"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title Civic Issue Reporter API
// @version 1.0
// @description API for reporting and tracking civic issues.
// @host localhost:8080
// @BasePath /api
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
func runMigrations(cfg *config.Config, log *logrus.Logger) error {
	log.Info("Running database migrations...")

	migrationURL := cfg.DatabaseURL
	if !strings.HasPrefix(migrationURL, "pgx5://") {
		migrationURL = strings.Replace(migrationURL, "postgres://", "pgx5://", 1)
		migrationURL = strings.Replace(migrationURL, "postgresql://", "pgx5://", 1)
	}

	m, err := migrate.New(
		"file://migrations",
		migrationURL,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info("Database migrations applied successfully")
	return nil
}

func main() {
	// Загрузка конфигурации
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	log := logger.New(cfg.LogLevel)

	// Контекст для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Хранилище обращений: PostgreSQL, если задан DATABASE_URL, иначе память процесса
	var issueRepo service.IssueRepository
	if cfg.DatabaseURL != "" {
		if err := runMigrations(cfg, log); err != nil {
			log.Fatalf("Failed to run database migrations: %v", err)
		}

		var dbpool *pgxpool.Pool
		dbpool, err = postgres.NewPostgresDB(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		defer dbpool.Close()
		log.Info("Successfully connected to PostgreSQL")
		issueRepo = repository.NewIssueRepository(dbpool)
	} else {
		log.Warn("DATABASE_URL is not set, issues are kept in memory")
		issueRepo = repository.NewMemoryIssueRepository()
	}

	// Redis: кеш обращений и очередь вебхуков
	var (
		issueCache service.IssueCache
		publisher  webhook.Publisher = webhook.NopPublisher{}
	)
	if cfg.RedisAddr != "" {
		var redisClient *redis.Client
		redisClient, err = redisclient.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		log.Info("Successfully connected to Redis")

		issueCache = repository.NewRedisIssueCache(redisClient)
		publisher = webhook.NewRedisPublisher(redisClient)

		// Инициализация и запуск воркера вебхуков
		webhook.NewWorker(redisClient, log, cfg).Start(ctx)
	} else {
		log.Warn("REDIS_ADDR is not set, issue cache and webhooks are disabled")
	}

	// Хранилище фото: MinIO или data URL в самом обращении
	var photos photo.Store = photo.DataURLStore{}
	if cfg.MinioEndpoint != "" {
		minioClient, err := minioclient.NewMinioClient(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("Failed to connect to MinIO: %v", err)
		}
		log.Info("Successfully connected to MinIO")
		photos = photo.NewMinioStore(minioClient, cfg.MinioBucket, cfg.MinioPublicURL)
	}

	// Инициализация сервисов
	issueService := service.NewIssueService(issueRepo, issueCache, photos, publisher, log, cfg)
	communityService := service.NewCommunityService(repository.NewMemoryCommunityRepository(), photos, log)
	profileService := service.NewProfileService(repository.NewMemoryProfileRepository(), log)

	// Инициализация хэндлеров
	handler := v1.NewHandler(issueService, communityService, profileService, log, cfg)

	// Настройка Gin роутера
	router := gin.Default()
	api := router.Group("/api")
	handler.RegisterRoutes(api)

	// Добавление маршрута для Swagger UI
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Запуск HTTP-сервера
	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)

	srv := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Запуск сервера в горутине
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Error starting HTTP server: %v", err)
		}
	}()
	log.Infof("HTTP server started on port %s", cfg.HTTPPort)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Received shutdown signal, shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Info("Server gracefully stopped")
}
