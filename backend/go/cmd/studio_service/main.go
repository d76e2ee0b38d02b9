package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SoraStudio/backend/go/internal/config"
	"SoraStudio/backend/go/internal/database/kafka"
	"SoraStudio/backend/go/internal/database/minio"
	"SoraStudio/backend/go/internal/database/mysql"
	"SoraStudio/backend/go/internal/database/redis"
	"SoraStudio/backend/go/internal/models"
	"SoraStudio/backend/go/internal/provider"
	"SoraStudio/backend/go/internal/studio_service/api"
	"SoraStudio/backend/go/internal/studio_service/library"
	"SoraStudio/backend/go/internal/studio_service/publisher"
	"SoraStudio/backend/go/internal/studio_service/service"
	"SoraStudio/backend/go/internal/studio_service/store"
	pkghttp "SoraStudio/backend/go/pkg/http"
	"SoraStudio/backend/go/pkg/logger"
	"SoraStudio/backend/go/pkg/ratelimiter"
	"SoraStudio/backend/go/pkg/util"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Initialize logger
	level, err := logrus.ParseLevel(cfg.Logger.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.Init(level)
	appLogger := logger.New("studio_service", "", "")

	// Initialize database clients
	db, err := mysql.GetDB(&cfg.Databases.MySQL)
	if err != nil {
		appLogger.Fatal(err.Error())
	}
	defer mysql.Close()

	if err := db.AutoMigrate(&models.VideoTask{}, &models.VideoResult{}, &models.Character{}); err != nil {
		appLogger.Fatal(err.Error())
	}

	redisClient, err := redis.GetClient(&cfg.Databases.Redis)
	if err != nil {
		appLogger.Fatal(err.Error())
	}
	defer redis.Close()

	kafkaClient, err := kafka.GetClient(&cfg.Databases.Kafka)
	if err != nil {
		appLogger.Fatal(err.Error())
	}
	defer kafkaClient.Close()

	minioClient, err := minio.GetClient(&cfg.Databases.MinIO)
	if err != nil {
		appLogger.Fatal(err.Error())
	}

	// Outbound HTTP client shared by the provider client and the video
	// library, with a circuit breaker in front of the provider host.
	timeout := time.Duration(cfg.Provider.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	httpClient, err := pkghttp.NewClient(cfg.Middleware.CircuitBreaker, timeout)
	if err != nil {
		appLogger.Fatal(err.Error())
	}

	providerClient := provider.NewClient(provider.Config{
		HostMode:    cfg.Provider.HostMode,
		OverseasURL: cfg.Provider.OverseasURL,
		DomesticURL: cfg.Provider.DomesticURL,
		APIKey:      cfg.Provider.APIKey,
		Token:       cfg.Provider.Token,
		MaxRetries:  cfg.Provider.MaxRetries,
	}, httpClient, appLogger)

	// Initialize stores and the task event publisher
	taskStore := store.NewGormTaskStore(db)
	characterStore := store.NewGormCharacterStore(db)
	tracker := store.NewActiveTaskTracker(redisClient)
	events := publisher.NewKafkaEventPublisher(cfg.Databases.Kafka.Brokers, cfg.Studio.TaskEventsTopic, appLogger)
	defer events.Close()

	cacheSize := cfg.Studio.TaskCacheSize
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	terminalCache, err := util.NewWithConfig[string, *models.VideoTask](util.CacheConfig{
		Capacity: cacheSize,
		TTL:      time.Duration(cfg.Studio.TaskCacheTTL) * time.Second,
	})
	if err != nil {
		appLogger.Fatal(err.Error())
	}

	studioService := service.NewStudioService(taskStore, characterStore, tracker, providerClient, events, terminalCache, appLogger)
	videoLibrary := library.NewVideoLibrary(minioClient, cfg.Databases.MinIO.Bucket, httpClient, appLogger)

	// Rate limiter for the task creation routes
	createLimiter, err := ratelimiter.NewFromConfig(cfg.Middleware.RateLimiter)
	if err != nil {
		appLogger.Fatal(err.Error())
	}

	// Set up the HTTP server
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	api.RegisterRoutes(router, api.NewAPI(studioService, videoLibrary, appLogger), cfg.Auth.JwtSecret, createLimiter)

	srv := &http.Server{
		Addr:    cfg.Studio.ServerAddress,
		Handler: router,
	}

	go func() {
		appLogger.WithPayload(map[string]interface{}{"address": srv.Addr}).Info("Studio service started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal(err.Error())
		}
	}()

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(err.Error())
	}

	appLogger.Info("Studio service stopped")
}
