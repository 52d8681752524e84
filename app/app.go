package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"demandcast/api"
	"demandcast/cache"
	"demandcast/config"
	"demandcast/database"
	"demandcast/database/anomalies"
	"demandcast/database/inventory"
	"demandcast/database/sales"
	"demandcast/database/weights"
	"demandcast/ingest"
	"demandcast/metrics"
	"demandcast/notifications"
	"demandcast/realtime"
)

// App represents the main application
type App struct {
	config         *config.Config
	db             *database.Database
	rawDB          *database.DB
	redis          *cache.RedisClient
	fcache         *cache.ForecastCache
	salesRepo      *sales.Repository
	invRepo        *inventory.Repository
	anomRepo       *anomalies.Repository
	weightRepo     *weights.Repository
	webhookManager *notifications.WebhookManager
	broker         *realtime.Broker
	engine         *Engine
	scheduler      *Scheduler
	feed           *ingest.Feed
	apiServer      *api.Server
}

// New creates a new application instance
func New(cfg *config.Config) *App {
	return &App{
		config: cfg,
	}
}

// Start starts the application
func (a *App) Start() error {
	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Database Connection
	fmt.Println("🗄️  Connecting to database...")

	dbPort, err := strconv.Atoi(a.config.DatabasePort)
	if err != nil {
		return fmt.Errorf("invalid database port: %w", err)
	}

	db, err := database.Connect(
		a.config.DatabaseHost,
		dbPort,
		a.config.DatabaseName,
		a.config.DatabaseUser,
		a.config.DatabasePassword,
	)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	a.db = db

	if err := a.db.Migrate(); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	// Raw connection for the catalog-wide aggregation queries
	rawDB, err := database.NewConnection(database.ConnConfig{
		Host:     a.config.DatabaseHost,
		Port:     a.config.DatabasePort,
		User:     a.config.DatabaseUser,
		Password: a.config.DatabasePassword,
		DBName:   a.config.DatabaseName,
	})
	if err != nil {
		return fmt.Errorf("raw database connection failed: %w", err)
	}
	a.rawDB = rawDB

	// 2. Redis Connection
	fmt.Println("🧠 Connecting to Redis...")
	redisClient := cache.NewRedisClient(
		a.config.RedisHost,
		a.config.RedisPort,
		a.config.RedisPassword,
	)

	if redisClient == nil {
		fmt.Println("⚠️  Redis connection failed. Caching disabled.")
	} else {
		a.redis = redisClient
		a.fcache = cache.NewForecastCache(redisClient)
	}

	// 3. Repositories
	gormDB := a.db.DB()
	a.salesRepo = sales.NewRepository(gormDB)
	a.invRepo = inventory.NewRepository(gormDB)
	a.anomRepo = anomalies.NewRepository(gormDB)
	a.weightRepo = weights.NewRepository(gormDB)

	// 4. Webhook Manager and Realtime Broker
	a.webhookManager = notifications.NewWebhookManager(a.anomRepo, a.redis)
	a.broker = realtime.NewBroker()
	go a.broker.Run()

	// 5. Forecast Engine
	a.engine = NewEngine(a.config, EngineDeps{
		SalesRepo: a.salesRepo,
		InvRepo:   a.invRepo,
		AnomRepo:  a.anomRepo,
		Weights:   a.weightRepo,
		Cache:     a.fcache,
		Broker:    a.broker,
		Webhooks:  a.webhookManager,
	})
	log.Println("✅ Forecast engine initialized")

	// 6. Background Jobs
	a.scheduler = NewScheduler(a.engine, a.rawDB, a.config)
	if err := a.scheduler.Start(); err != nil {
		return fmt.Errorf("scheduler start failed: %w", err)
	}

	// Setup WaitGroup for goroutines
	var wg sync.WaitGroup

	// 7. Order Feed
	if a.config.OrderFeedEnabled && a.config.OrderFeedURL != "" {
		a.feed = ingest.NewFeed(a.config.OrderFeedURL, a.config.OrderFeedToken, a.salesRepo, a.fcache, forecastHorizons)
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.feed.Run(ctx)
		}()
		log.Println("📡 Order feed ingestion started")
	} else {
		log.Println("ℹ️  Order feed ingestion DISABLED")
	}

	// 8. Start API Server
	a.apiServer = api.NewServer(a.engine, a.anomRepo, a.weightRepo, a.rawDB, a.webhookManager, a.broker)
	go func() {
		if err := a.apiServer.Start(a.config.APIPort); err != nil {
			log.Printf("⚠️  API Server failed: %v", err)
		}
	}()

	metrics.RecordStart()

	// 9. Wait for interrupt and perform graceful shutdown
	err = a.gracefulShutdown(cancel)
	wg.Wait()
	return err
}

// gracefulShutdown handles graceful shutdown with timeout
func (a *App) gracefulShutdown(cancel context.CancelFunc) error {
	// Setup signal handling
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	// Wait for interrupt signal
	<-interrupt
	fmt.Println("\n🛑 Shutdown signal received, initiating graceful shutdown...")

	// Cancel context to stop all goroutines
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Shutdown tasks with timeout
	shutdownComplete := make(chan struct{})
	go func() {
		if a.scheduler != nil {
			fmt.Println("🔄 Stopping job scheduler...")
			a.scheduler.Stop()
		}

		if a.apiServer != nil {
			fmt.Println("📡 Draining API server...")
			if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
				log.Printf("Error shutting down API server: %v", err)
			} else {
				fmt.Println("✅ API server stopped")
			}
		}

		// Close database connections
		if a.rawDB != nil {
			if err := a.rawDB.Close(); err != nil {
				log.Printf("Error closing raw database connection: %v", err)
			}
		}
		if a.db != nil {
			if err := a.db.Close(); err != nil {
				log.Printf("Error closing database: %v", err)
			} else {
				fmt.Println("✅ Database connection closed")
			}
		}

		// Close Redis connection
		if a.redis != nil {
			if err := a.redis.Close(); err != nil {
				log.Printf("Error closing redis: %v", err)
			} else {
				fmt.Println("✅ Redis connection closed")
			}
		}

		close(shutdownComplete)
	}()

	// Wait for shutdown to complete or timeout
	select {
	case <-shutdownComplete:
		fmt.Println("✅ Graceful shutdown complete")
		return nil
	case <-shutdownCtx.Done():
		fmt.Println("⚠️  Shutdown timed out, forcing exit")
		return shutdownCtx.Err()
	}
}
