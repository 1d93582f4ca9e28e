/**
 * @description
 * This is the main entry point for the callondemand backend. It initializes
 * configuration, the PostgreSQL connection pool, the provider clients, the
 * optional Redis and RabbitMQ infrastructure, the reconciliation cron, and
 * the HTTP server, wiring everything together with a graceful shutdown.
 *
 * Optional infrastructure degrades instead of failing the boot: a missing
 * broker disables event publishing, a missing Redis disables purchase rate
 * limiting. The database and gateway credentials are hard requirements.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5 (via internal/api): HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/joho/godotenv: .env loading for local development.
 * - github.com/redis/go-redis/v9, github.com/rabbitmq/amqp091-go,
 *   github.com/robfig/cron/v3: Optional infrastructure.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iabbakr/callondemand-backend/internal/api"
	"github.com/iabbakr/callondemand-backend/internal/app"
	"github.com/iabbakr/callondemand-backend/internal/config"
	"github.com/iabbakr/callondemand-backend/internal/store"
	"github.com/iabbakr/callondemand-backend/pkg/cloudinary"
	"github.com/iabbakr/callondemand-backend/pkg/paystack"
	"github.com/iabbakr/callondemand-backend/pkg/rabbitmq"
	"github.com/iabbakr/callondemand-backend/pkg/vtpass"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found; using environment variables\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}

	log.Printf("level=info component=bootstrap msg=\"starting callondemand backend\" port=%s", cfg.ServerPort)

	// Database pool.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}
	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()

	repository := store.NewPostgresRepository(dbpool)
	if err := repository.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"schema apply failed\" err=%v", err)
	}
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Provider clients.
	gateway := paystack.NewClient(cfg.PaystackBaseURL, cfg.PaystackSecretKey)
	bills := vtpass.NewClient(cfg.VTPassBaseURL, cfg.VTPassAPIKey, cfg.VTPassSecretKey)
	images := cloudinary.NewClient(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)

	// Optional event producer.
	var producer rabbitmq.Publisher
	if cfg.RabbitMQURL == "" {
		log.Println("level=info component=bootstrap msg=\"rabbitmq not configured; wallet events disabled\"")
	} else if p, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; wallet events disabled\" err=%v", err)
	} else {
		producer = p
		defer p.Close()
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Core service. The Paystack secret key doubles as the webhook HMAC
	// secret per the gateway's signing contract.
	service := app.NewService(
		repository,
		gateway,
		producer,
		cfg.PaystackSecretKey,
		cfg.WalletEventExchange,
		time.Duration(cfg.PayoutTimeoutSeconds)*time.Second,
	)

	// Optional purchase rate limiting.
	if cfg.RedisURL != "" && cfg.PurchaseRateLimitPerMinute > 0 {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; purchase rate limiting disabled\" err=%v", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			pingErr := redisClient.Ping(pingCtx).Err()
			cancelPing()
			if pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; purchase rate limiting disabled\" err=%v", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				service.SetPurchaseRateLimiter(app.NewRedisRateLimiter(redisClient, "callondemand:rate_limit"), cfg.PurchaseRateLimitPerMinute)
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	// Pending-deposit reconciliation sweep.
	sweeper := cron.New()
	minAge := time.Duration(cfg.ReconcileMinAgeMinutes) * time.Minute
	_, err = sweeper.AddFunc(fmt.Sprintf("@every %dm", cfg.ReconcileIntervalMinutes), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		service.SweepPendingDeposits(ctx, minAge)
	})
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"reconcile sweep schedule failed\" err=%v", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	// HTTP server.
	handlers := api.NewHandlers(service, gateway, bills, images)
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           api.Routes(handlers, cfg.JWTSecret),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("level=info component=http msg=\"server listening\" addr=%s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
