// Package main provides the main entry point for the Telepost publishing platform
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/telepost/telepost/app/dispatch"
	"github.com/telepost/telepost/app/handlers"
	"github.com/telepost/telepost/app/middleware"
	"github.com/telepost/telepost/app/router"
	"github.com/telepost/telepost/app/services"
	businessflow "github.com/telepost/telepost/business_flow"
	"github.com/telepost/telepost/config"
	"github.com/telepost/telepost/queue"
	"github.com/telepost/telepost/repository"
	"github.com/telepost/telepost/telegram"
	"github.com/telepost/telepost/utils"
)

// Application represents the main application structure
type Application struct {
	router    *router.FiberRouter
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	log.Println("Starting Telepost application...")

	// Load production configuration
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize application
	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	// Setup routes
	app.router.SetupRoutes()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop background workers
	for _, fn := range app.stopFuncs {
		fn()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB for connection pooling configuration
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test the connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeRedis initializes the Redis client backing the delayed job queues
func initializeRedis(cfg config.RedisConfig) (*redis.Client, error) {
	rc := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established to %s (db=%d)", cfg.Addr, cfg.DB)
	return rc, nil
}

// startRedisHealthMonitor starts a background goroutine that periodically pings Redis
// to detect connectivity issues. The returned cancel function stops the monitor.
func startRedisHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	// Initialize database
	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeRedis(cfg.Redis)
	if err != nil {
		return nil, err
	}

	cancel := startRedisHealthMonitor(context.Background(), rc, 30*time.Second)
	stopFuncs = append(stopFuncs, cancel)

	// Initialize repositories
	botRepo := repository.NewBotRepository(db)
	channelRepo := repository.NewChannelRepository(db)
	postRepo := repository.NewPostRepository(db)
	pubRepo := repository.NewPublicationRepository(db)

	// Initialize token service
	tokenService, err := services.NewTokenService(
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.RefreshTokenTTL,
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		cfg.JWT.SecretKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}

	log.Printf("Token service initialized with issuer: %s, audience: %s", cfg.JWT.Issuer, cfg.JWT.Audience)

	// Credential service decrypts stored bot tokens for dispatch
	credentialService, err := services.NewCredentialService(cfg.Security.BotTokenKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential service: %w", err)
	}

	// Telegram Bot API client shared by all workers
	tgClient := telegram.NewClient(telegram.Config{
		BaseURL:           cfg.Telegram.BaseURL,
		CallTimeout:       cfg.Telegram.CallTimeout,
		MessagesPerSecond: cfg.Telegram.MessagesPerSecond,
		Burst:             cfg.Telegram.Burst,
	})

	// Delayed job queues
	publishQueue := queue.NewQueue(rc, utils.PublishQueue)
	deleteQueue := queue.NewQueue(rc, utils.DeleteQueue)

	// Dispatch workers
	dispatchLogger := dispatch.NewDispatchLogger(cfg.Dispatch.LogDir)
	sender := dispatch.NewSender(tgClient, credentialService, dispatchLogger)
	dispatcher := dispatch.NewDispatcher(
		publishQueue,
		deleteQueue,
		pubRepo,
		botRepo,
		sender,
		queue.WorkerConfig{
			Concurrency:  cfg.Dispatch.Concurrency,
			PollInterval: cfg.Dispatch.PollInterval,
			Lease:        cfg.Dispatch.Lease,
		},
		dispatchLogger,
	)
	stopDispatcher := dispatcher.Start(context.Background())
	stopFuncs = append(stopFuncs, stopDispatcher)

	// Initialize flows
	publisherFlow := businessflow.NewPublisherFlow(
		postRepo,
		pubRepo,
		channelRepo,
		publishQueue,
		deleteQueue,
		sender,
		db,
		log.Default(),
	)

	// Initialize handlers
	publisherHandler := handlers.NewPublisherHandler(publisherFlow)

	// Initialize auth middleware
	authMiddleware := middleware.NewAuthMiddleware(tokenService)

	// Initialize router
	appRouter := router.NewFiberRouter(publisherHandler, authMiddleware, cfg.Security.AllowedOrigins)

	fiberRouter := appRouter.(*router.FiberRouter)
	application := &Application{
		router:    fiberRouter,
		config:    cfg,
		server:    fiberRouter.GetApp(),
		stopFuncs: stopFuncs,
	}

	return application, nil
}
