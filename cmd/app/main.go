package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"docs-ingestion-service/internal/chunker"
	"docs-ingestion-service/internal/config"
	"docs-ingestion-service/internal/domain/ports/adapter"
	"docs-ingestion-service/internal/infra/adapters/embedding"
	"docs-ingestion-service/internal/infra/adapters/scrape"
	pg "docs-ingestion-service/internal/infra/db/postgres"
	"docs-ingestion-service/internal/infra/logging"
	"docs-ingestion-service/internal/infra/metrics"
	red "docs-ingestion-service/internal/infra/redis"
	"docs-ingestion-service/internal/infra/sched"
	"docs-ingestion-service/internal/infra/web"
	"docs-ingestion-service/internal/infra/worker"
	"docs-ingestion-service/internal/memctrl"
	"docs-ingestion-service/internal/resilience"
	"docs-ingestion-service/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool := pg.MustConnectPostgres(cfg.Database.URL)
	defer pool.Close()
	tm := pg.NewTxManager(pool)
	jobRepo := pg.NewJobRepo(pool, tm)
	vectorIndex := pg.NewVectorIndex(pool)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	eventBus := red.NewEventBus(redisClient, "ingest")
	rateLimiter := red.NewRateLimiter(redisClient)

	// ---- Use cases ----
	queue := usecase.NewJobQueue(jobRepo, eventBus, logger)

	// ---- Scraping ----
	validator := scrape.NewValidator()
	if cfg.Runtime.Dev {
		validator.AllowPrivateHosts = true
	}
	fetcher := scrape.NewFetcher(logger)

	// ---- Embedding provider ----
	var embedder adapter.Embedder
	switch strings.ToLower(cfg.Embedding.Provider) {
	case "openai":
		embedder, err = embedding.NewOpenAIEmbedder(cfg.Embedding.OpenAIKey, cfg.Embedding.Model, cfg.Embedding.Dimensions)
	case "gemini":
		embedder, err = embedding.NewGeminiEmbedder(ctx, cfg.Embedding.GeminiKey, cfg.Embedding.Model, cfg.Embedding.Dimensions)
	case "http":
		embedder, err = embedding.NewHTTPEmbedder(cfg.Embedding.OpenAIKey, cfg.Embedding.BaseURL, cfg.Embedding.Model, cfg.Embedding.Dimensions)
	case "noop":
		embedder = embedding.NewNoopEmbedder(cfg.Embedding.Dimensions)
	default:
		logger.Fatal().Str("provider", cfg.Embedding.Provider).Msg("unknown embedding provider")
	}
	if err != nil {
		logger.Fatal().Err(err).Str("provider", cfg.Embedding.Provider).Msg("embedder init failed")
	}
	logger.Info().Str("provider", cfg.Embedding.Provider).Str("model", cfg.Embedding.Model).Int("dims", cfg.Embedding.Dimensions).Msg("embedding provider ready")

	// ---- Resilience ----
	breakers := resilience.NewBreakerRegistry(cfg.Pipeline.BreakerThreshold, cfg.Pipeline.BreakerReset)
	engine := resilience.NewEngine(cfg.Pipeline.Retry, breakers, logger)
	engine.SetDegradation(cfg.Pipeline.DegradationEnabled())

	// ---- Memory-adaptive batching ----
	mem := memctrl.NewController(memctrl.Config{
		MaxHeapBytes:     uint64(cfg.Memory.MaxHeapMB) << 20,
		DefaultBatchSize: cfg.Memory.DefaultBatchSize,
		MinBatchSize:     cfg.Memory.MinBatchSize,
		Cooldown:         cfg.Memory.Cooldown,
	}, memctrl.RuntimeReader{}, logger)

	// ---- Chunker ----
	chunks := chunker.New(chunker.Config{
		MaxTokens:     cfg.Chunker.MaxTokens,
		OverlapTokens: cfg.Chunker.OverlapSize,
		MinTokens:     cfg.Chunker.MinChunkSize,
	})

	// ---- Pipeline workers ----
	processor := worker.NewProcessor(
		queue, validator, fetcher, embedder, vectorIndex,
		engine, mem, chunks, metrics.Sink{},
		worker.ProcessorConfig{
			JobTimeout:   cfg.Pipeline.JobTimeout,
			FetchTimeout: cfg.Pipeline.FetchTimeout,
			BatchPacing:  cfg.Pipeline.BatchPacing,
		},
		logger,
	)
	workerPool := worker.NewPool(cfg.Pipeline.Workers, logger)
	workerPool.Start(ctx)
	dispatcher := worker.NewDispatcher(jobRepo, processor, cfg.Pipeline.PollInterval, logger)
	go dispatcher.Start(ctx, workerPool)

	// ---- Cleanup worker ----
	if cfg.Cleanup.Interval > 0 {
		cleanup := sched.NewCleanupWorker(cfg.Cleanup.Interval, cfg.Cleanup.OlderThanDays, queue, logger)
		go func() { _ = cleanup.Run(ctx) }()
	}

	// ---- Runtime gauges ----
	go sampleRuntimeStats(ctx, pool, breakers)

	// ---- HTTP API ----
	var auth *web.AuthManager
	if cfg.API.JWTSecret != "" {
		auth = web.NewAuthManager(cfg.API.JWTSecret, !cfg.Runtime.Dev, "", 30*time.Minute)
	}
	srv := web.NewServer(queue, auth, rateLimiter, cfg.API, map[string]web.Pinger{
		"postgres": pool,
		"redis":    redisClient,
	}, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()
	workerPool.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
}

// sampleRuntimeStats feeds the heap, connection-pool and breaker-state gauges.
func sampleRuntimeStats(ctx context.Context, pool *pgxpool.Pool, breakers *resilience.BreakerRegistry) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			metrics.SetHeapUsed(ms.HeapAlloc)
			st := pool.Stat()
			metrics.SetDBPoolStats(st.TotalConns(), st.IdleConns(), st.AcquiredConns())
			for _, snap := range breakers.Snapshots() {
				metrics.SetBreakerState(snap.Component, breakerStateValue(snap.State))
			}
		}
	}
}

func breakerStateValue(s resilience.BreakerState) float64 {
	switch s {
	case resilience.BreakerOpen:
		return 2
	case resilience.BreakerHalfOpen:
		return 1
	default:
		return 0
	}
}
