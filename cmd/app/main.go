// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"screenshot-ai-assistant/internal/config"
	"screenshot-ai-assistant/internal/domain/ports/adapter"
	aiAdapters "screenshot-ai-assistant/internal/infra/adapters/ai"
	"screenshot-ai-assistant/internal/infra/adapters/identity"
	ocrAdapters "screenshot-ai-assistant/internal/infra/adapters/ocr"
	"screenshot-ai-assistant/internal/infra/adapters/storage"
	"screenshot-ai-assistant/internal/infra/api"
	"screenshot-ai-assistant/internal/infra/auth"
	"screenshot-ai-assistant/internal/infra/broadcast"
	pg "screenshot-ai-assistant/internal/infra/db/postgres"
	"screenshot-ai-assistant/internal/infra/logging"
	"screenshot-ai-assistant/internal/infra/metrics"
	red "screenshot-ai-assistant/internal/infra/redis"
	"screenshot-ai-assistant/internal/infra/retry"
	"screenshot-ai-assistant/internal/infra/worker"
	"screenshot-ai-assistant/internal/usecase"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, noop AI without keys)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Runtime.Dev {
		log.Printf("[DEV MODE] Enabled")
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	// ---- Metrics ----
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, 15*time.Second)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	taskCache := red.NewTaskCache(redisClient, cfg.Redis.TTL)
	rateLimiter := red.NewRateLimiter(redisClient)

	// ---- Repositories ----
	taskRepo := pg.NewPostgresTaskRepo(pool, taskCache)
	creditRepo := pg.NewPostgresCreditRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Identity ----
	gotrue, err := identity.NewGoTrueAdapter(cfg.Auth.URL, cfg.Auth.APIKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("identity")
	}
	refresher := auth.NewRefresher(gotrue, cfg.Auth.RefreshTTL, cfg.Auth.SweepEvery, logger)
	defer refresher.Close()
	identityProvider := auth.NewGuardedProvider(gotrue, refresher)

	// ---- Object storage ----
	objStorage, err := storage.NewSupabaseStorage(cfg.Storage.URL, cfg.Storage.Key, cfg.Storage.Bucket)
	if err != nil {
		logger.Fatal().Err(err).Msg("storage")
	}

	// ---- OCR ----
	ocrProvider, err := buildOCR(&cfg.OCR, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("ocr")
	}

	// ---- AI providers ----
	aiProvider, err := buildAI(ctx, &cfg.AI, cfg.Runtime.Dev)
	if err != nil {
		logger.Fatal().Err(err).Msg("ai")
	}
	aiProvider = aiAdapters.NewLimitedAI(aiProvider, cfg.AI.ConcurrentLimit)

	// ---- Pipeline machinery ----
	bus := broadcast.NewBroadcaster(logger)
	executor := retry.NewExecutor(cfg.Pipeline.MaxRetries, cfg.Pipeline.BaseDelay, logger)
	workerPool := worker.NewPool(cfg.Pipeline.Workers, cfg.Pipeline.QueueSize, logger)
	workerPool.Start(ctx)
	defer workerPool.Stop()

	pipeline := usecase.NewPipelineEngine(
		taskRepo,
		creditRepo,
		txManager,
		objStorage,
		ocrProvider,
		aiProvider,
		executor,
		bus,
		workerPool,
		usecase.NewDelimiterParser(),
		usecase.NewPromptBuilder(0),
		logger,
		*cfg.Pipeline.ContinueWithoutAssets,
	)

	// ---- HTTP ----
	server := api.NewServer(pipeline, taskRepo, bus, rateLimiter, pool, logger)
	authGuard := api.Auth(cfg.Auth.JWTSecret, identityProvider, logger)

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.API.Port),
		Handler:      server.Router(authGuard),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE streams stay open
	}
	go func() {
		logger.Info().Int("port", cfg.API.Port).Msg("http server listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server")
			cancel()
		}
	}()

	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.API.MetricsPort),
		Handler: promhttp.Handler(),
	}
	go func() {
		logger.Info().Int("port", cfg.API.MetricsPort).Msg("metrics server listening")
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server")
		}
	}()

	// ---- Shutdown ----
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		logger.Info().Str("signal", s.String()).Msg("shutting down")
	case <-ctx.Done():
	}

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	if err := metricsSrv.Shutdown(shutCtx); err != nil {
		logger.Warn().Err(err).Msg("metrics shutdown")
	}
}

// buildOCR picks providers by which keys are configured. With both keys
// Vision is primary and OCR.space catches its failures.
func buildOCR(cfg *config.OCRConfig, logger *zerolog.Logger) (adapter.OCRProvider, error) {
	switch {
	case cfg.VisionKey != "" && cfg.OCRSpaceKey != "":
		vision, err := ocrAdapters.NewVisionAdapter(cfg.VisionKey)
		if err != nil {
			return nil, err
		}
		space, err := ocrAdapters.NewOCRSpaceAdapter(cfg.OCRSpaceKey)
		if err != nil {
			return nil, err
		}
		return ocrAdapters.NewFallbackAdapter(vision, space, logger), nil
	case cfg.VisionKey != "":
		return ocrAdapters.NewVisionAdapter(cfg.VisionKey)
	case cfg.OCRSpaceKey != "":
		return ocrAdapters.NewOCRSpaceAdapter(cfg.OCRSpaceKey)
	default:
		return nil, fmt.Errorf("no OCR provider configured")
	}
}

// buildAI assembles one adapter per configured provider family and routes
// between them by model name.
func buildAI(ctx context.Context, cfg *config.AIConfig, dev bool) (adapter.AIProvider, error) {
	byFamily := make(map[aiAdapters.ProviderFamily]adapter.AIProvider)

	if cfg.OpenAIKey != "" {
		a, err := aiAdapters.NewOpenAIAdapter(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.MaxOutputTokens)
		if err != nil {
			return nil, fmt.Errorf("openai: %w", err)
		}
		byFamily[aiAdapters.ProviderOpenAI] = a
	}
	if cfg.AnthropicKey != "" {
		a, err := aiAdapters.NewAnthropicAdapter(cfg.AnthropicKey, cfg.AnthropicURL, cfg.MaxOutputTokens)
		if err != nil {
			return nil, fmt.Errorf("anthropic: %w", err)
		}
		byFamily[aiAdapters.ProviderAnthropic] = a
	}
	if cfg.GeminiKey != "" {
		a, err := aiAdapters.NewGeminiAdapter(ctx, cfg.GeminiKey, cfg.GeminiURL, cfg.MaxOutputTokens)
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		byFamily[aiAdapters.ProviderGemini] = a
	}

	if len(byFamily) == 0 {
		if dev {
			noop := aiAdapters.NewNoopAIAdapter()
			byFamily[aiAdapters.ProviderOpenAI] = noop
			byFamily[aiAdapters.ProviderAnthropic] = noop
			byFamily[aiAdapters.ProviderGemini] = noop
		} else {
			return nil, fmt.Errorf("no AI provider configured")
		}
	}
	return aiAdapters.NewMultiAIAdapter(byFamily), nil
}
