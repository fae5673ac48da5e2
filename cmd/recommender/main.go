// cmd/recommender/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"caserank/internal/clients/fox"
	"caserank/internal/clients/genai"
	"caserank/internal/common/cache"
	"caserank/internal/common/config"
	"caserank/internal/common/database"
	"caserank/internal/common/logger"
	"caserank/internal/common/observability"
	"caserank/internal/recommender"
	"caserank/internal/repository"
	"caserank/internal/server"
	buildcasefeatures "caserank/internal/stages/build-case-features"
	deduperecommendations "caserank/internal/stages/dedupe-recommendations"
	scorecasesai "caserank/internal/stages/score-cases-ai"
	scorecasesfallback "caserank/internal/stages/score-cases-fallback"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("starting recommender service",
		zap.String("name", cfg.App.Name),
		zap.String("version", cfg.App.Version),
	)

	obs := observability.New("recommender")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Case source: fox API or a local postgres mirror ---
	var source recommender.CaseSource
	var pg *database.PostgresClient

	switch cfg.Sources.Cases {
	case "postgres":
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		defer pg.Close()
		zapLog.Info("PostgreSQL connected successfully")
		source = repository.NewStore(pg.DB, log)

	default:
		source = fox.NewClient(
			cfg.APIs.Fox.BaseURL,
			cfg.APIs.Fox.APIKey,
			config.GetDuration(cfg.APIs.Fox.Timeout),
			log,
		)
	}

	// --- AI score cache ---
	var scoreCache cache.ScoreCache
	var redisClient *database.RedisClient

	if cfg.Scoring.Enabled && cfg.Scoring.Cache.Enabled {
		switch cfg.Scoring.Cache.Backend {
		case "redis":
			err = retryWithBackoff(func() error {
				var err error
				redisClient, err = database.NewRedis(cfg.Database.Redis)
				if err != nil {
					return err
				}
				return redisClient.Ping(ctx)
			}, 10, 2*time.Second, zapLog, "Redis connection")
			if err != nil {
				zapLog.Fatal("redis failed after retries", zap.Error(err))
			}
			defer redisClient.Close()
			zapLog.Info("Redis connected successfully")
			scoreCache = cache.NewRedisCache(redisClient.Client, time.Duration(cfg.Scoring.Cache.TTL)*time.Second)

		default:
			scoreCache = cache.NewMemoryCache(cfg.Scoring.Cache.MaxEntries)
		}
	}

	// --- Pipeline stages ---
	featureHandler := buildcasefeatures.NewHandler(buildcasefeatures.DefaultConfig(), log)
	fallbackHandler := scorecasesfallback.NewHandler(scorecasesfallback.DefaultConfig(), log)
	dedupeHandler := deduperecommendations.NewHandler(log)

	var aiHandler *scorecasesai.Handler
	if cfg.Scoring.Enabled {
		generator := genai.NewClient(
			cfg.APIs.GenAI.BaseURL,
			cfg.APIs.GenAI.APIKey,
			cfg.APIs.GenAI.Model,
			config.GetDuration(cfg.APIs.GenAI.Timeout),
			log,
		)
		aiHandler, err = scorecasesai.NewHandler(
			&scorecasesai.Config{
				BatchSize:         cfg.Scoring.BatchSize,
				MaxRetries:        cfg.Scoring.MaxRetries,
				ParallelThreshold: cfg.Scoring.ParallelThreshold,
				PoolSize:          cfg.Scoring.PoolSize,
				Deadline:          config.GetDuration(cfg.Scoring.Deadline),
			},
			generator, fallbackHandler, scoreCache, log,
		)
		if err != nil {
			zapLog.Fatal("ai scorer init failed", zap.Error(err))
		}
	}

	svc := recommender.NewService(
		source,
		featureHandler,
		aiHandler,
		fallbackHandler,
		dedupeHandler,
		recommender.Options{
			AIEnabled: cfg.Scoring.Enabled,
			AIModel:   cfg.APIs.GenAI.Model,
		},
		log,
	)

	srv := server.New(cfg, svc, obs, log)
	if pg != nil {
		srv.AddReadinessCheck("postgres", pg.Ping)
	}
	if redisClient != nil {
		srv.AddReadinessCheck("redis", redisClient.Ping)
	}

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("http server failed", zap.Error(err))
		}
	}()
	zapLog.Info("recommender service started", zap.String("addr", cfg.Server.Addr()))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	zapLog.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("graceful shutdown failed", zap.Error(err))
	}
	zapLog.Info("shutdown complete")
}
