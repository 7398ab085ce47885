package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/darkking4096/odonto/internal/api/router"
	appconfig "github.com/darkking4096/odonto/internal/config"
	"github.com/darkking4096/odonto/internal/llm"
	"github.com/darkking4096/odonto/internal/messaging"
	"github.com/darkking4096/odonto/internal/observability/metrics"
	"github.com/darkking4096/odonto/internal/stage"
	"github.com/darkking4096/odonto/internal/store"
	"github.com/darkking4096/odonto/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting odonto API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	validator, err := stage.NewValidator(stage.Rules{
		AllowedProcedures: cfg.Procedures,
		Opening:           cfg.OpeningTime,
		Closing:           cfg.ClosingTime,
		MaxBookingDays:    cfg.MaxBookingDays,
	})
	if err != nil {
		logger.Error("invalid business rules", "error", err.Error())
		os.Exit(1)
	}

	var (
		convStore   stage.Store
		promptStore stage.PromptStore
		pool        *pgxpool.Pool
	)
	if cfg.UseMemoryStore || cfg.DatabaseURL == "" {
		logger.Warn("using in-memory store, state is lost on restart")
		convStore = stage.NewMemoryStore()
		promptStore = stage.NewMemoryPromptStore()
	} else {
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to create database pool", "error", err.Error())
			os.Exit(1)
		}
		if err := pool.Ping(ctx); err != nil {
			logger.Error("database unreachable", "error", err.Error())
			os.Exit(1)
		}
		pg := store.NewPostgres(pool)
		convStore = pg
		promptStore = pg
	}

	var locker stage.TurnLocker = stage.NoopLocker{}
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("redis unreachable", "error", err.Error())
			os.Exit(1)
		}
		locker = store.NewRedisLocker(redisClient, cfg.TurnLockTTL, logger)
	}

	llmClient, model, err := llm.NewFromConfig(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to configure completion provider", "error", err.Error())
		os.Exit(1)
	}

	composer, err := stage.NewComposer(ctx, promptStore, llmClient, validator, stage.ComposerConfig{
		Model:       model,
		Temperature: cfg.AITemperature,
		MaxTokens:   int32(cfg.AIMaxTokens),
		Timeout:     cfg.LLMTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to build reply composer", "error", err.Error())
		os.Exit(1)
	}

	convMetrics := metrics.NewConversationMetrics(nil)
	engine := stage.NewEngine(convStore, composer, validator, locker, convMetrics, logger)

	sender := messaging.NewEvolutionSender(
		cfg.EvolutionAPIURL, cfg.EvolutionAPIKey, cfg.EvolutionInstance,
		cfg.DeliveryTimeout, logger,
	)

	r := router.New(&router.Config{
		Logger:         logger,
		Webhook:        router.NewWebhookHandler(engine, sender, logger),
		Stats:          router.NewStatsHandler(engine, logger),
		MetricsHandler: promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err.Error())
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err.Error())
		os.Exit(1)
	}

	if pool != nil {
		pool.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	logger.Info("server stopped")
}
