package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/smartplaylist/api/internal/client"
	"github.com/smartplaylist/api/internal/config"
	"github.com/smartplaylist/api/internal/handler"
	appLogger "github.com/smartplaylist/api/internal/logger"
	"github.com/smartplaylist/api/internal/metrics"
	"github.com/smartplaylist/api/internal/middleware"
	"github.com/smartplaylist/api/internal/router"
	"github.com/smartplaylist/api/internal/service"
	"github.com/smartplaylist/api/internal/store"
	"github.com/smartplaylist/api/internal/websocket"
	"github.com/smartplaylist/api/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", "err", err)
	}

	logger := appLogger.New(cfg.Server.LogLevel, cfg.Server.LogFormat)
	log.SetDefault(logger)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Redis backs the rate limiter and, when selected, the job registry.
	var redisClient *redis.Client
	rc := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancelPing := context.WithTimeout(ctx, 3*time.Second)
	if err := rc.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not available", "addr", cfg.Redis.Addr, "err", err)
		rc.Close()
	} else {
		redisClient = rc
	}
	cancelPing()

	var (
		jobs        store.JobStore
		evictor     store.Evictor
		asynqClient *asynq.Client
	)
	switch {
	case cfg.Registry.Backend == config.RegistryBackendRedis && redisClient != nil:
		jobs = store.NewRedisStore(redisClient, cfg.Registry.Retention+cfg.Pipeline.JobTimeout)
		asynqClient = asynq.NewClient(redisOpt(cfg))
		defer asynqClient.Close()
		evictor = store.NewAsynqEvictor(asynqClient, cfg.Registry.Retention)
		go startEvictServer(cfg, jobs, logger)
		logger.Info("job registry", "backend", "redis", "retention", cfg.Registry.Retention)
	default:
		if cfg.Registry.Backend == config.RegistryBackendRedis {
			logger.Warn("redis registry requested but redis is unavailable, using memory")
		}
		mem := store.NewMemoryStore()
		timers := store.NewTimerEvictor(mem, cfg.Registry.Retention, logger)
		defer timers.Stop()
		jobs, evictor = mem, timers
		logger.Info("job registry", "backend", "memory", "retention", cfg.Registry.Retention)
	}

	chatClient := client.NewChatClient(&cfg.LLM)
	if !chatClient.IsConfigured() {
		logger.Warn("LLM_API_KEY not set, every job will fail at generation")
	}
	catalogClient := client.NewCatalogClient(&cfg.Catalog)

	m := metrics.New()
	hub := websocket.NewHub(logger.WithPrefix("ws"))
	go hub.Run(ctx)

	generator := service.NewSongListGenerator(chatClient, service.GeneratorConfig{
		DefaultCount:   cfg.Pipeline.DefaultCount,
		MaxCount:       cfg.Pipeline.MaxCount,
		MinutesPerSong: cfg.Pipeline.MinutesPerSong,
	}, logger.WithPrefix("generator"))
	resolver := service.NewTrackResolver(catalogClient, service.ResolverConfig{
		Market:            cfg.Catalog.Market,
		Limit:             cfg.Catalog.SearchLimit,
		Concurrency:       cfg.Catalog.SearchConcurrency,
		RequestsPerSecond: cfg.Catalog.SearchRPS,
	}, logger.WithPrefix("resolver"))
	assembler := service.NewPlaylistAssembler(catalogClient, service.AssemblerConfig{
		BatchSize: cfg.Catalog.AddBatchSize,
	}, logger.WithPrefix("assembler"))
	pipeline := service.NewPipeline(generator, resolver, assembler, service.PipelineConfig{
		Public: cfg.Pipeline.Public,
	}, logger.WithPrefix("pipeline"))

	playlistWorker := worker.NewPlaylistWorker(pipeline, jobs, evictor, hub, m, worker.Config{
		JobTimeout: cfg.Pipeline.JobTimeout,
	}, logger.WithPrefix("worker"))
	playlistService := service.NewPlaylistService(jobs, playlistWorker, logger)

	app := router.New(router.Deps{
		Playlists:        handler.NewPlaylistHandler(playlistService, handler.NewValidator(), cfg.Pipeline.MaxCount),
		Auth:             middleware.NewAuthMiddleware(cfg.JWT.Secret),
		RateLimiter:      middleware.NewRateLimiter(redisClient, logger),
		PlaylistsPerHour: cfg.RateLimit.PlaylistsPerHour,
		Hub:              hub,
		Metrics:          m,
		Logger:           logger,
		LogLevel:         cfg.Server.LogLevel,
		Health: func() map[string]bool {
			return map[string]bool{
				"llm":   chatClient.IsConfigured(),
				"redis": redisClient != nil,
				"auth":  cfg.JWT.Secret != "",
			}
		},
	})

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Error("server shutdown error", "err", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	logger.Info("server starting", "addr", addr, "env", cfg.Server.Env)
	if err := app.Listen(addr); err != nil {
		logger.Fatal("server error", "err", err)
	}

	// Let running jobs finish within the job deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.JobTimeout)
	defer cancel()
	if err := playlistWorker.Shutdown(shutdownCtx); err != nil {
		logger.Warn("jobs cancelled at shutdown", "err", err)
	}
	stop()
	if redisClient != nil {
		redisClient.Close()
	}
}

func redisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

// startEvictServer runs the asynq server that deletes expired job records.
func startEvictServer(cfg *config.Config, jobs store.JobStore, logger *log.Logger) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		redisOpt(cfg),
		asynq.Config{
			Concurrency: 2,
			Queues: map[string]int{
				store.QueueMaintenance: 1,
			},
			LogLevel: asynqLogLevel,
			Logger:   asynqLogger{logger.WithPrefix("asynq")},
		},
	)

	evictWorker := worker.NewEvictWorker(jobs, logger.WithPrefix("evict"))

	mux := asynq.NewServeMux()
	mux.HandleFunc(store.TypeJobEvict, evictWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		logger.Error("asynq worker error", "err", err)
	}
}

// asynqLogger adapts the service logger to asynq.Logger.
type asynqLogger struct{ l *log.Logger }

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...interface{}) { a.l.Fatal(fmt.Sprint(args...)) }
