package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mongoadapter "github.com/aqmarket/escrow-service/internal/adapter/mongo"
	natsadapter "github.com/aqmarket/escrow-service/internal/adapter/nats"
	redisadapter "github.com/aqmarket/escrow-service/internal/adapter/redis"
	"github.com/aqmarket/escrow-service/internal/app/config"
	"github.com/aqmarket/escrow-service/internal/platform/logger"
	"github.com/aqmarket/escrow-service/internal/platform/metrics"
	httpport "github.com/aqmarket/escrow-service/internal/port/http"
	"github.com/aqmarket/escrow-service/internal/service"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

type App struct {
	cfg         *config.Config
	log         logger.Logger
	server      *httpport.Server
	metrics     *metrics.MetricsManager
	mongoClient *mongo.Client
	redisClient *redis.Client
	natsConn    *nats.Conn
}

func New(cfg *config.Config) (*App, error) {
	ctx := context.Background()

	logCfg := logger.ZapLoggerConfig{
		Level:      cfg.Logger.Level,
		Encoding:   cfg.Logger.Encoding,
		TimeFormat: cfg.Logger.TimeFormat,
	}
	appLogger, err := logger.NewZapLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	appLogger.Info("Logger initialized")
	appLogger.Infof("Configuration loaded: Env=%s, HTTP Port: %s", cfg.Env, cfg.HTTPServer.Port)

	appLogger.Info("Initializing MongoDB client...")
	mongoClient, err := mongoadapter.NewClient(ctx, cfg.MongoDB)
	if err != nil {
		appLogger.Errorf("Failed to initialize MongoDB client: %v", err)
		return nil, fmt.Errorf("failed to initialize MongoDB client: %w", err)
	}
	appLogger.Info("MongoDB client initialized successfully")

	appLogger.Info("Initializing Redis client...")
	redisClient, err := redisadapter.NewClient(ctx, cfg.Redis)
	if err != nil {
		appLogger.Errorf("Failed to initialize Redis client: %v", err)
		return nil, fmt.Errorf("failed to initialize Redis client: %w", err)
	}
	appLogger.Info("Redis client initialized successfully")

	appLogger.Info("Initializing NATS connection...")
	natsConn, err := natsadapter.NewConnection(cfg.NATS, appLogger)
	if err != nil {
		appLogger.Errorf("Failed to initialize NATS connection: %v", err)
		return nil, fmt.Errorf("failed to initialize NATS connection: %w", err)
	}
	appLogger.Info("NATS connection initialized successfully")

	publisher, err := natsadapter.NewNATSPublisher(natsConn)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize NATS publisher: %w", err)
	}
	ledger := natsadapter.NewLedgerEmitter(publisher)

	listingRepo := mongoadapter.NewListingRepository(mongoClient, cfg.MongoDB)
	appLogger.Info("ListingRepository initialized")
	listingCache := redisadapter.NewListingCache(redisClient, cfg.ListingCache.TTL)
	appLogger.Info("ListingCache initialized")

	metricsManager := metrics.NewMetricsManager("escrow_service")

	escrowService := service.NewEscrowService(
		listingRepo,
		listingCache,
		publisher,
		ledger,
		service.EscrowParams{
			Admin:         cfg.Escrow.Admin,
			Arbiters:      cfg.Escrow.Arbiters,
			GatewayPrefix: cfg.Escrow.GatewayPrefix,
			Denom:         cfg.Escrow.Denom,
		},
		metricsManager,
		appLogger,
	)
	queryService := service.NewQueryService(listingRepo, listingCache, appLogger)
	appLogger.Info("Escrow and query services initialized")

	handler := httpport.NewListingHandler(escrowService, queryService, appLogger)
	httpServer := httpport.NewServer(
		httpport.ServerConfig{
			Port:         cfg.HTTPServer.Port,
			ReadTimeout:  cfg.HTTPServer.ReadTimeout,
			WriteTimeout: cfg.HTTPServer.WriteTimeout,
			IdleTimeout:  cfg.HTTPServer.IdleTimeout,
		},
		handler,
		cfg.Auth.JWTSecret,
		metricsManager,
		appLogger,
	)
	appLogger.Info("HTTP server instance created")

	application := &App{
		cfg:         cfg,
		log:         appLogger,
		server:      httpServer,
		metrics:     metricsManager,
		mongoClient: mongoClient,
		redisClient: redisClient,
		natsConn:    natsConn,
	}

	return application, nil
}

func (a *App) Run() {
	a.log.Info("Starting application components...")

	go func() {
		if err := a.server.Run(); err != nil && err != http.ErrServerClosed {
			a.log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()
	a.log.Info("HTTP server started in a goroutine")

	go func() {
		if err := metrics.StartMetricsServer(a.cfg.Metrics.Port, a.log, a.metrics.Registry); err != nil && err != http.ErrServerClosed {
			a.log.Errorf("Metrics server stopped with error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	receivedSignal := <-quit
	a.log.Infof("Received shutdown signal: %v. Shutting down application...", receivedSignal)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTPServer.TimeoutGraceful+5*time.Second)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.log.Errorf("Error during HTTP server graceful shutdown: %v", err)
	} else {
		a.log.Info("HTTP server stopped successfully")
	}

	a.log.Info("Closing external connections...")

	if a.natsConn != nil {
		if err := a.natsConn.Drain(); err != nil {
			a.log.Errorf("Error draining NATS connection: %v", err)
		} else {
			a.log.Info("NATS connection drained successfully")
		}
	}

	if a.mongoClient != nil {
		if err := a.mongoClient.Disconnect(shutdownCtx); err != nil {
			a.log.Errorf("Error disconnecting from MongoDB: %v", err)
		} else {
			a.log.Info("MongoDB connection closed successfully")
		}
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Errorf("Error closing Redis client: %v", err)
		} else {
			a.log.Info("Redis client closed successfully")
		}
	}

	a.log.Info("Application shut down successfully")
}
