package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/evertix/ticket-inventory/internal/adapters/crdb"
	mongoadapter "github.com/evertix/ticket-inventory/internal/adapters/mongo"
	"github.com/evertix/ticket-inventory/internal/adapters/rabbit"
	redisadapter "github.com/evertix/ticket-inventory/internal/adapters/redis"
	"github.com/evertix/ticket-inventory/internal/checkout"
	"github.com/evertix/ticket-inventory/internal/config"
	httphandler "github.com/evertix/ticket-inventory/internal/http"
	"github.com/evertix/ticket-inventory/internal/idempotency"
	"github.com/evertix/ticket-inventory/internal/observability"
	"github.com/evertix/ticket-inventory/internal/payment"
	"github.com/evertix/ticket-inventory/internal/rateLimit"
	"github.com/evertix/ticket-inventory/internal/reservation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.PGDSN)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database("tix")
	catalog := mongoadapter.NewVenueCatalog(mongoDB, logger)
	audit := mongoadapter.NewAuditTrail(mongoDB, logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	redisCache := redisadapter.NewCache(redisClient)
	redisIdemp := redisadapter.NewIdempotency(redisClient)
	idemp := idempotency.NewIdempotency(redisIdemp, time.Hour)
	rl := rateLimit.NewRateLimiter(redisCache)

	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer rabbitConn.Close()
	rabbitPub, err := rabbit.NewPublisher(rabbitConn)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}
	events := rabbit.NewEventPublisher(rabbitPub)

	svc := reservation.NewService(repo, repo, events, audit, logger, cfg.HoldTTL)
	gateway := payment.NewCashfreeClient(cfg.CashfreeBaseURL, cfg.CashfreeAppID, cfg.CashfreeSecretKey)
	orch := checkout.NewOrchestrator(svc, repo, gateway, logger,
		cfg.PaymentReturnURL, cfg.PaymentNotifyURL)

	handlers := httphandler.NewHandlers(cfg, svc, orch, gateway, catalog, redisCache, idemp)
	r := httphandler.SetupRouter(handlers, logger, rl)

	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
