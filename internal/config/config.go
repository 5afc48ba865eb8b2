package config

import (
	"os"
	"strconv"
	"strings"
)

// Config centralizes runtime settings for the API and the worker.
type Config struct {
	Port string

	DataDir         string
	MaxUploadBytes  int64
	DefaultAudioExt string
	AudioExtensions []string
	ImageExtensions []string

	WhisperBin      string
	WhisperModel    string
	WhisperLanguage string

	TranscriptCacheEnabled    bool
	TranscriptCacheTTLSeconds int
	TranscriptCacheMaxEntries int

	FFmpegBin            string
	FFmpegTimeoutSeconds int

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisStream   string
	RedisDLQ      string
	RedisGroup    string
	RedisConsumer string

	CORSAllowedOrigins []string

	RateLimitRPS   float64
	RateLimitBurst int

	QueueBatchingEnabled     bool
	QueueBatchSize           int
	QueueBatchFlushMS        int
	QueueBatchFlushTimeoutMS int
	QueueBatchQueueCapacity  int
	QueueBatchMaxInFlight    int

	WorkerEnabled bool
}

func Load() Config {
	return Config{
		Port: getEnv("PORT", "8080"),

		DataDir:         getEnv("DATA_DIR", "data/jobs"),
		MaxUploadBytes:  getEnvInt64("MAX_UPLOAD_BYTES", 100*1024*1024),
		DefaultAudioExt: getEnv("DEFAULT_AUDIO_EXT", ".m4a"),
		AudioExtensions: getEnvList("ALLOWED_AUDIO_EXTS", []string{".m4a"}),
		ImageExtensions: getEnvList("ALLOWED_IMAGE_EXTS", []string{".jpg", ".jpeg", ".png"}),

		WhisperBin:      getEnv("WHISPER_BIN", "whisper-cli"),
		WhisperModel:    getEnv("WHISPER_MODEL", ""),
		WhisperLanguage: getEnv("WHISPER_LANGUAGE", "en"),

		TranscriptCacheEnabled:    getEnvBool("TRANSCRIPT_CACHE_ENABLED", true),
		TranscriptCacheTTLSeconds: getEnvInt("TRANSCRIPT_CACHE_TTL_SECONDS", 3600),
		TranscriptCacheMaxEntries: getEnvInt("TRANSCRIPT_CACHE_MAX_ENTRIES", 256),

		FFmpegBin:            getEnv("FFMPEG_BIN", "ffmpeg"),
		FFmpegTimeoutSeconds: getEnvInt("FFMPEG_TIMEOUT_SECONDS", 600),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisStream:   getEnv("REDIS_STREAM", "a2v_jobs"),
		RedisDLQ:      getEnv("REDIS_DLQ_STREAM", "a2v_jobs_dlq"),
		RedisGroup:    getEnv("REDIS_GROUP", "a2v_workers"),
		RedisConsumer: getEnv("REDIS_CONSUMER", "api-1"),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:5173",
			"http://127.0.0.1:3000",
			"http://127.0.0.1:5173",
		}),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 40),

		QueueBatchingEnabled:     getEnvBool("QUEUE_BATCHING_ENABLED", false),
		QueueBatchSize:           getEnvInt("QUEUE_BATCH_SIZE", 16),
		QueueBatchFlushMS:        getEnvInt("QUEUE_BATCH_FLUSH_MS", 25),
		QueueBatchFlushTimeoutMS: getEnvInt("QUEUE_BATCH_FLUSH_TIMEOUT_MS", 3000),
		QueueBatchQueueCapacity:  getEnvInt("QUEUE_BATCH_QUEUE_CAPACITY", 1024),
		QueueBatchMaxInFlight:    getEnvInt("QUEUE_BATCH_MAX_IN_FLIGHT", 4),

		WorkerEnabled: getEnvBool("WORKER_ENABLED", true),
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt64(key string, fallback int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return fallback
	}
	return result
}
