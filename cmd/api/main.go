package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/a2v/audio2video-back/internal/artifacts"
	"github.com/a2v/audio2video-back/internal/cache"
	"github.com/a2v/audio2video-back/internal/config"
	httpserver "github.com/a2v/audio2video-back/internal/http"
	"github.com/a2v/audio2video-back/internal/http/handlers"
	"github.com/a2v/audio2video-back/internal/progress"
	"github.com/a2v/audio2video-back/internal/queue"
	"github.com/a2v/audio2video-back/internal/render"
	"github.com/a2v/audio2video-back/internal/repository"
	"github.com/a2v/audio2video-back/internal/service"
	"github.com/a2v/audio2video-back/internal/transcribe"
	"github.com/a2v/audio2video-back/internal/worker"
)

func main() {
	logger := log.New(os.Stdout, "[a2v] ", log.LstdFlags|log.LUTC|log.Lmicroseconds)
	if err := config.LoadDotEnv(".env", ".env.local"); err != nil {
		logger.Printf("failed loading .env files: %v", err)
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	namer, err := artifacts.NewNamer(cfg.DataDir, cfg.DefaultAudioExt)
	if err != nil {
		logger.Fatalf("failed to initialize job storage: %v", err)
	}
	store := progress.NewStore()

	repo, repoCloser := setupRepository(ctx, cfg, logger)
	defer repoCloser()

	producer, consumer, queueCloser := setupQueue(ctx, cfg, logger)
	defer queueCloser()

	whisper := transcribe.NewWhisperTranscriber(transcribe.WhisperConfig{
		BinPath:    cfg.WhisperBin,
		FFmpegPath: cfg.FFmpegBin,
		ModelPath:  cfg.WhisperModel,
		Language:   cfg.WhisperLanguage,
	})
	var transcriber transcribe.Transcriber = whisper
	if cfg.TranscriptCacheEnabled {
		transcriptCache := cache.NewTranscriptCache(cache.Config{
			TTL:        time.Duration(cfg.TranscriptCacheTTLSeconds) * time.Second,
			MaxEntries: cfg.TranscriptCacheMaxEntries,
		})
		transcriber = transcribe.NewCachedTranscriber(whisper, transcriptCache, cfg.WhisperLanguage, logger)
	}
	renderer := render.NewFFmpegRenderer(cfg.FFmpegBin)

	jobsService := service.NewJobsService(namer, store, repo, producer, renderer, service.JobsServiceConfig{
		MaxUploadBytes:  cfg.MaxUploadBytes,
		AudioExtensions: cfg.AudioExtensions,
		ImageExtensions: cfg.ImageExtensions,
	}, logger)
	api := handlers.NewAPI(jobsService, whisper.Available, cfg.MaxUploadBytes)

	handler := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Logger:         logger,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	if cfg.WorkerEnabled {
		renderTimeout := time.Duration(cfg.FFmpegTimeoutSeconds) * time.Second
		processor := worker.NewProcessor(consumer, store, namer, repo, transcriber, renderer, renderTimeout, logger)
		go processor.Start(ctx)
		logger.Printf("worker enabled and started")
	} else {
		logger.Printf("worker disabled by configuration")
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Printf("api listening on :%s", cfg.Port)
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Printf("shutdown signal received")
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("server failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}

func setupRepository(
	ctx context.Context,
	cfg config.Config,
	logger *log.Logger,
) (repository.JobsRepository, func()) {
	if cfg.DatabaseURL == "" {
		logger.Printf("DATABASE_URL not configured, using in-memory repository")
		return repository.NewMemoryJobsRepository(), func() {}
	}

	pgRepo, err := repository.NewPostgresJobsRepository(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Printf("failed to initialize postgres repository, fallback to memory: %v", err)
		return repository.NewMemoryJobsRepository(), func() {}
	}
	logger.Printf("postgres repository initialized")
	return pgRepo, func() {
		pgRepo.Close()
	}
}

func setupQueue(
	ctx context.Context,
	cfg config.Config,
	logger *log.Logger,
) (queue.Producer, queue.Consumer, func()) {
	var (
		baseProducer queue.Producer
		consumer     queue.Consumer
		baseCloser   = func() {}
	)

	if cfg.RedisAddr == "" {
		logger.Printf("REDIS_ADDR not configured, using local queue fallback")
		local := queue.NewLocalQueue(256, 3, logger)
		baseProducer = local
		consumer = local
	} else {
		streams, err := queue.NewStreamsQueue(ctx, queue.StreamsConfig{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPassword,
			DB:          cfg.RedisDB,
			Stream:      cfg.RedisStream,
			DLQStream:   cfg.RedisDLQ,
			Group:       cfg.RedisGroup,
			Consumer:    cfg.RedisConsumer,
			MaxAttempts: 3,
		})
		if err != nil {
			logger.Printf("failed to initialize redis streams queue, fallback to local: %v", err)
			local := queue.NewLocalQueue(256, 3, logger)
			baseProducer = local
			consumer = local
		} else {
			logger.Printf("redis streams queue initialized")
			baseProducer = streams
			consumer = streams
			baseCloser = func() {
				_ = streams.Close()
			}
		}
	}

	producer := baseProducer
	batchingCloser := func() {}
	if cfg.QueueBatchingEnabled {
		batching := queue.NewBatchingProducer(ctx, baseProducer, queue.BatchingConfig{
			MaxBatchSize:       cfg.QueueBatchSize,
			FlushInterval:      time.Duration(cfg.QueueBatchFlushMS) * time.Millisecond,
			FlushTimeout:       time.Duration(cfg.QueueBatchFlushTimeoutMS) * time.Millisecond,
			QueueCapacity:      cfg.QueueBatchQueueCapacity,
			MaxInFlightBatches: cfg.QueueBatchMaxInFlight,
		})
		producer = batching
		batchingCloser = batching.Close
		logger.Printf("queue batching enabled size=%d flush_ms=%d", cfg.QueueBatchSize, cfg.QueueBatchFlushMS)
	}

	return producer, consumer, func() {
		batchingCloser()
		baseCloser()
	}
}
