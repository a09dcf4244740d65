package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ShimantoKabir/ABTestingToolServer/internal/api"
	"github.com/ShimantoKabir/ABTestingToolServer/internal/config"
	"github.com/ShimantoKabir/ABTestingToolServer/internal/pkg/distlock"
	"github.com/ShimantoKabir/ABTestingToolServer/internal/repository/postgres"
	"github.com/ShimantoKabir/ABTestingToolServer/internal/service/decision"
	"github.com/ShimantoKabir/ABTestingToolServer/internal/worker"
)

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	if cfg.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database")

	// Redis is optional: it only backs the cache-refresh dedup lock.
	var redisClient *redis.Client
	if cfg.Redis.Enabled && cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Printf("Redis unreachable (%v), cache refresh dedup disabled", err)
			redisClient.Close()
			redisClient = nil
		} else {
			defer redisClient.Close()
			log.Println("Connected to Redis")
		}
	}

	experimentRepo := postgres.NewExperimentRepo(db)
	assignmentRepo := postgres.NewAssignmentRepo(db)

	var lockFactory decision.LockFactory
	if redisClient != nil {
		lockTTL := cfg.Decision.RefreshLockTTL()
		lockFactory = func(projectID int64) distlock.DistLock {
			key := fmt.Sprintf("ab:cache-refresh:%d", projectID)
			return distlock.NewLock(redisClient, db, key, lockTTL)
		}
	}

	cache := decision.NewConfigCache(experimentRepo, decision.ConfigCacheConfig{
		TTL:         cfg.Decision.CacheTTL(),
		RefreshLock: lockFactory,
	})

	writer := worker.NewAssignmentWriter(assignmentRepo, worker.AssignmentWriterConfig{
		NumWorkers:   cfg.Writer.NumWorkers,
		QueueSize:    cfg.Writer.QueueSize,
		WriteTimeout: cfg.Writer.WriteTimeout(),
		Retry: worker.RetryPolicy{
			MaxAttempts: cfg.Writer.RetryMaxAttempts,
			Backoff:     cfg.Writer.RetryBackoff(),
		},
	})
	if err := writer.Start(); err != nil {
		log.Fatalf("Failed to start assignment writer: %v", err)
	}

	engine := decision.NewEngine(cache, assignmentRepo, writer)
	handlers := api.NewHandlers(engine, db, writer)
	router := api.SetupRoutes(handlers, cfg.Server.AllowedOrigins)

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Decision server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}

	// Let queued assignment writes land before exit.
	writer.Stop()
	log.Println("Shutdown complete")
}
