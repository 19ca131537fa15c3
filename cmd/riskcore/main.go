package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/Aidin1998/riskcore/internal/config"
	"github.com/Aidin1998/riskcore/internal/database"
	"github.com/Aidin1998/riskcore/internal/integration"
	"github.com/Aidin1998/riskcore/internal/risk"
	"github.com/Aidin1998/riskcore/internal/risk/events"
	"github.com/Aidin1998/riskcore/internal/risk/repository"
	"github.com/Aidin1998/riskcore/internal/server"
	"github.com/Aidin1998/riskcore/pkg/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	// Create logger
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	zapLogger, err := logger.NewLogger(logLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		zapLogger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Set up tracing
	traceExporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		zapLogger.Fatal("Failed to create trace exporter", zap.Error(err))
	}
	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExporter))
	otel.SetTracerProvider(tracerProvider)
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			zapLogger.Error("Failed to shut down tracer provider", zap.Error(err))
		}
	}()

	// Connect to PostgreSQL
	db, err := database.NewPostgresDB(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		zapLogger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}

	// Connect to Redis
	redisClient, err := database.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		zapLogger.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	// Create repositories
	profileRepo := repository.NewGormProfileRepository(db, zapLogger)
	if err := profileRepo.Migrate(); err != nil {
		zapLogger.Fatal("Failed to run database migrations", zap.Error(err))
	}
	haltStore := repository.NewRedisHaltStore(redisClient)
	tradeCounter := repository.NewRedisTradeCounter(redisClient)
	assessmentCache := repository.NewRedisAssessmentCache(redisClient)

	// Create event publisher
	var publisher risk.EventPublisher
	if cfg.Kafka.Enabled {
		kafkaPublisher := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, zapLogger)
		defer func() {
			if err := kafkaPublisher.Close(); err != nil {
				zapLogger.Error("Failed to close Kafka publisher", zap.Error(err))
			}
		}()
		publisher = kafkaPublisher
	} else {
		publisher = events.NopPublisher{}
	}

	// Create collaborator clients
	portfolioClient := integration.NewPortfolioClient(cfg.Portfolio.BaseURL, cfg.Portfolio.Timeout)
	botClient := integration.NewBotClient(cfg.Bots.BaseURL, cfg.Bots.Timeout)
	orderClient := integration.NewOrderClient(cfg.Orders.BaseURL, cfg.Orders.Timeout)

	// Assemble the risk core
	monitor := risk.NewMonitor(portfolioClient, profileRepo, zapLogger)
	calculator := risk.NewCalculator(portfolioClient, monitor, cfg.Risk.VaRConfidence, cfg.Risk.RiskFreeRate, zapLogger)
	gate := risk.NewGate(profileRepo, monitor, calculator, haltStore, tradeCounter, publisher, zapLogger)
	killswitch := risk.NewKillSwitchController(haltStore, botClient, orderClient, publisher, cfg.Risk.FanoutWorkers, cfg.Risk.FanoutRetries, zapLogger)
	riskSvc := risk.NewService(profileRepo, gate, calculator, monitor, killswitch, tradeCounter, publisher, assessmentCache, cfg.Risk.AssessmentCacheTTL, zapLogger)

	// Create HTTP server
	apiServer := server.NewServer(zapLogger, riskSvc, cfg.Auth.JWTSecret)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      apiServer.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		zapLogger.Info("Starting risk core server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// Wait for interrupt to shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Forced shutdown", zap.Error(err))
	}

	if err := redisClient.Close(); err != nil {
		zapLogger.Error("Failed to close Redis client", zap.Error(err))
	}

	zapLogger.Info("Server exited properly")
}
