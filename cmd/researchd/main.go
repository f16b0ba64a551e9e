package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kestrel-ai/researchd/internal/agents"
	"github.com/kestrel-ai/researchd/internal/cache"
	"github.com/kestrel-ai/researchd/internal/config"
	"github.com/kestrel-ai/researchd/internal/httpapi"
	"github.com/kestrel-ai/researchd/internal/llm"
	"github.com/kestrel-ai/researchd/internal/loop"
	"github.com/kestrel-ai/researchd/internal/prompts"
	"github.com/kestrel-ai/researchd/internal/search"
	"github.com/kestrel-ai/researchd/internal/trace"
	"github.com/kestrel-ai/researchd/internal/tracing"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	if err := tracing.Initialize(cfg.Tracing, logger); err != nil {
		logger.Warn("Failed to initialize tracing", zap.Error(err))
	}

	// Response cache (Redis, no TTL)
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		cancel()
		logger.Fatal("Failed to connect to Redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	cancel()
	cacheStore := cache.NewRedisStore(redisClient, logger)

	// Trace store (SQLite)
	traceStore, err := trace.NewStore(cfg.TraceDB, logger)
	if err != nil {
		logger.Fatal("Failed to open trace store", zap.String("path", cfg.TraceDB), zap.Error(err))
	}
	defer traceStore.Close()

	// Agent profiles with hot reload
	agentStore, err := agents.NewStore(cfg.AgentsPath, logger)
	if err != nil {
		logger.Fatal("Failed to load agent profiles", zap.Error(err))
	}
	defer agentStore.Close()

	promptLib, err := prompts.Load(cfg.PromptsDir)
	if err != nil {
		logger.Fatal("Failed to load prompt templates", zap.Error(err))
	}

	llmClient := llm.NewOllamaClient(cfg.LLM, logger)
	searchClient := search.NewSerpClient(cfg.Search, logger)

	orchestrator := loop.New(cfg, llmClient, searchClient, cacheStore, agentStore, promptLib, traceStore, logger)

	mux := http.NewServeMux()
	handler := httpapi.NewHandler(orchestrator, searchClient, agentStore, logger, 0)
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	var root http.Handler = mux
	root = httpapi.RateLimit(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, root)
	root = httpapi.RequestID(root)
	root = httpapi.Logging(logger, root)

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: root,
	}

	go func() {
		logger.Info("Research orchestrator listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("model", cfg.LLM.Model),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
	_ = redisClient.Close()
}
