/**
 * @description
 * This is the main entry point for the loan workflow service. It is responsible
 * for initializing all components of the service, including configuration, the
 * document store backend, the identity directory, the message broker, the
 * optional Redis rate limiter, the core application service, and the HTTP
 * server. It wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver for the document store.
 * - github.com/joho/godotenv: For loading .env files during local development.
 * - github.com/redis/go-redis/v9: Redis client for accept throttling.
 * - internal/api, internal/app, internal/config, internal/identity,
 *   internal/store: Internal packages for the service.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/Panic-Devs/P2P-Loan-Framework/internal/api"
	"github.com/Panic-Devs/P2P-Loan-Framework/internal/app"
	"github.com/Panic-Devs/P2P-Loan-Framework/internal/config"
	"github.com/Panic-Devs/P2P-Loan-Framework/internal/identity"
	"github.com/Panic-Devs/P2P-Loan-Framework/internal/store"
	"github.com/Panic-Devs/P2P-Loan-Framework/internal/store/memory"
	"github.com/Panic-Devs/P2P-Loan-Framework/internal/store/postgres"
	rmrabbit "github.com/Panic-Devs/P2P-Loan-Framework/pkg/rabbitmq"
)

func main() {
	// Load .env file for local development.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}

	log.Printf("level=info component=bootstrap msg=\"starting loan workflow service\" port=%s store=%s", cfg.ServerPort, cfg.StoreBackend)

	// Select the document store backend. Postgres is the production backend;
	// the in-memory store exists for local development and tests.
	var docs store.DocumentStore
	switch cfg.StoreBackend {
	case "memory":
		docs = memory.New()
		log.Println("level=info component=bootstrap msg=\"using in-memory document store\"")
	default:
		poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
		}
		poolConfig.MaxConns = 100
		poolConfig.MinConns = 20
		poolConfig.MaxConnLifetime = 30 * time.Minute
		poolConfig.MaxConnIdleTime = 5 * time.Minute

		dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
		if err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
		}
		defer dbpool.Close()

		pgStore := postgres.New(dbpool)
		if err := pgStore.EnsureSchema(context.Background()); err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"schema migration failed\" err=%v", err)
		}
		docs = pgStore
		log.Println("level=info component=bootstrap msg=\"database connected\"")
	}

	// Initialize the identity directory that backs registration and login.
	directory := identity.NewDirectory()

	// Initialize the RabbitMQ producer to publish workflow events. The broker
	// is optional: workflow writes never depend on it.
	var events rmrabbit.Publisher
	rabbitProducer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		events = &rmrabbit.EventProducerFallback{}
	} else {
		defer rabbitProducer.Close()
		events = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Connect Redis for accept throttling when configured. A missing or
	// unreachable Redis disables the limiter rather than blocking startup.
	var limiter *app.AcceptRateLimiter
	if cfg.AcceptRateLimitPerMinute > 0 {
		if strings.TrimSpace(cfg.RedisURL) == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; accept rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; accept rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient := redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelPing()
				if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; accept rate limiting disabled\" err=%v", pingErr)
					redisClient.Close()
				} else {
					defer redisClient.Close()
					limiter = app.NewAcceptRateLimiter(redisClient, cfg.RedisRateLimitPrefix, cfg.AcceptRateLimitPerMinute)
					log.Println("level=info component=bootstrap msg=\"redis connected\"")
				}
			}
		}
	}

	// Initialize the core application service with its dependencies.
	workflowService := app.NewService(docs, directory, events)

	// Replay any accept sequences that were interrupted by a previous crash
	// before taking traffic.
	recoverCtx, cancelRecover := context.WithTimeout(context.Background(), 30*time.Second)
	recovered, err := workflowService.RecoverPendingAccepts(recoverCtx)
	cancelRecover()
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"accept recovery failed\" err=%v", err)
	}
	if recovered > 0 {
		log.Printf("level=info component=bootstrap msg=\"replayed unsettled accepts\" count=%d", recovered)
	}

	// Initialize the API handlers and router.
	handlers := api.NewWorkflowHandlers(
		workflowService,
		directory,
		limiter,
		[]byte(cfg.JWTSecret),
		time.Duration(cfg.TokenTTLMinutes)*time.Minute,
	)
	router := api.WorkflowRoutes(handlers)

	// Start the HTTP server.
	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
