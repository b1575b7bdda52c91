package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/feltstack/pokerwallet/internal/common/config"
	"github.com/feltstack/pokerwallet/internal/common/db"
	"github.com/feltstack/pokerwallet/internal/common/kafka"
	"github.com/feltstack/pokerwallet/internal/common/logger"
	"github.com/feltstack/pokerwallet/internal/common/middleware"
	"github.com/feltstack/pokerwallet/internal/common/redis"
	"github.com/feltstack/pokerwallet/internal/store"
	"github.com/feltstack/pokerwallet/internal/wallet"
	"github.com/feltstack/pokerwallet/internal/walletcore"
	"github.com/feltstack/pokerwallet/pkg/outbox"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load("walletd")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("wallet-service")

	database, err := db.Connect(cfg.Database, log)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	redisClient, err := redis.Connect(cfg.Redis, log)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	producer := kafka.NewProducer(cfg.Kafka, log)
	defer producer.Close()

	log.Info("Checking Kafka connection...")
	kafkaCtx, kafkaCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer kafkaCancel()
	if err := producer.Ping(kafkaCtx); err != nil {
		log.Fatalf("Failed to connect to Kafka: %v", err)
	}
	log.Info("Kafka is healthy")

	snapshotStore := store.New(database, log)
	if err := snapshotStore.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("Failed to prepare snapshot schema: %v", err)
	}

	outboxRepo := outbox.NewRepository(database.DB, log)
	if err := outboxRepo.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("Failed to prepare outbox schema: %v", err)
	}

	engine := walletcore.NewEngine(cfg.Wallet, log)

	loadCtx, loadCancel := context.WithTimeout(context.Background(), 30*time.Second)
	priorState, err := snapshotStore.Load(loadCtx)
	loadCancel()
	if err != nil {
		log.Fatalf("Failed to load prior state: %v", err)
	}
	if priorState != nil {
		engine.LoadState(priorState)
		log.Info("Restored wallet state from last durable snapshot")
	}

	instanceID, err := os.Hostname()
	if err != nil || instanceID == "" {
		instanceID = "wallet-instance"
	}

	service := wallet.NewService(engine, snapshotStore, outboxRepo, redisClient, cfg.Wallet.IdempotencyKeyTTL, log)
	handler := wallet.NewHandler(service, log, instanceID)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, cfg.JWT.Secret, cfg.Wallet.OperatorKeyHash)

	var handlerChain http.Handler = mux
	handlerChain = middleware.CORS(handlerChain)
	handlerChain = middleware.Logging(log)(handlerChain)
	handlerChain = middleware.Recovery(log)(handlerChain)

	publisherCtx, cancelPublisher := context.WithCancel(context.Background())
	defer cancelPublisher()
	outboxPublisher := outbox.NewPublisher(outboxRepo, producer, log, 5*time.Second)
	go outboxPublisher.Start(publisherCtx)
	log.Info("Outbox publisher started")

	gcCtx, cancelGC := context.WithCancel(context.Background())
	defer cancelGC()
	go runGCLoop(gcCtx, engine, time.Hour)

	server := &http.Server{
		Addr:         ":" + cfg.Service.Port,
		Handler:      handlerChain,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("wallet service listening on port %s", cfg.Service.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")
	cancelPublisher()
	cancelGC()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Info("Server exited gracefully")
}

// runGCLoop periodically sweeps expired daily-limit rows out of the
// engine's in-memory state (§3/§5).
func runGCLoop(ctx context.Context, engine *walletcore.Engine, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			engine.GC()
		}
	}
}
