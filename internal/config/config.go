package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	APIPort   string
	LogLevel  string
	LogFormat string

	MaxConcurrency    int
	MaxFileBytes      int64
	MinImageDimension int
	AllowedMIMETypes  []string
	MaxPDFPages       int

	PreprocessMaxWidth   int
	PreprocessMaxHeight  int
	CompressMaxDimension int
	CompressJPEGQuality  int

	OCRConfidenceThreshold            float64
	ClassificationConfidenceThreshold float64
	PatternsFile                      string

	TesseractBin       string
	OCRDefaultLanguage string
	OCRTimeout         time.Duration

	ReasoningProvider       string
	AnthropicAPIKey         string
	AnthropicModel          string
	AnthropicBaseURL        string
	OllamaURL               string
	OllamaGenModel          string
	ReasoningTimeout        time.Duration
	ReasoningMaxPerMinute   int
	ReasoningMaxPerHour     int
	ReasoningMaxRetries     int
	ReasoningInitialBackoff time.Duration
	ReasoningMaxBackoff     time.Duration
	ReasoningBackoffFactor  float64
	ReasoningCacheTTL       time.Duration
	ReasoningCacheSize      int
	BreakerEnabled          bool

	StoragePath            string
	SQLitePath             string
	PostgresDSN            string
	DefaultStorageLocation string

	NATSURL              string
	NATSIngestSubject    string
	NATSProcessedSubject string

	APIRateLimitRPS   float64
	APIRateLimitBurst int
	APIMaxInFlight    int

	WorkerMetricsPort string
}

func Load() Config {
	return Config{
		APIPort:   mustEnv("API_PORT", "8080"),
		LogLevel:  mustEnv("LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(mustEnv("LOG_FORMAT", "json")),

		MaxConcurrency:    mustEnvInt("MAX_CONCURRENCY", 3),
		MaxFileBytes:      int64(mustEnvInt("MAX_FILE_BYTES", 20<<20)),
		MinImageDimension: mustEnvInt("MIN_IMAGE_DIMENSION", 100),
		AllowedMIMETypes:  mustEnvList("ALLOWED_MIME_TYPES", "image/jpeg,image/png,image/webp,image/gif,image/bmp,image/tiff,application/pdf,text/plain"),
		MaxPDFPages:       mustEnvInt("MAX_PDF_PAGES", 50),

		PreprocessMaxWidth:   mustEnvInt("PREPROCESS_MAX_WIDTH", 2000),
		PreprocessMaxHeight:  mustEnvInt("PREPROCESS_MAX_HEIGHT", 2000),
		CompressMaxDimension: mustEnvInt("COMPRESS_MAX_DIMENSION", 2400),
		CompressJPEGQuality:  mustEnvInt("COMPRESS_JPEG_QUALITY", 82),

		OCRConfidenceThreshold:            mustEnvFloat("OCR_CONFIDENCE_THRESHOLD", 80),
		ClassificationConfidenceThreshold: mustEnvFloat("CLASSIFICATION_CONFIDENCE_THRESHOLD", 0.5),
		PatternsFile:                      mustEnv("PATTERNS_FILE", ""),

		TesseractBin:       mustEnv("TESSERACT_BIN", "tesseract"),
		OCRDefaultLanguage: mustEnv("OCR_DEFAULT_LANGUAGE", "es"),
		OCRTimeout:         mustEnvDuration("OCR_TIMEOUT", 60*time.Second),

		ReasoningProvider:       strings.ToLower(mustEnv("REASONING_PROVIDER", "none")),
		AnthropicAPIKey:         mustEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:          mustEnv("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
		AnthropicBaseURL:        mustEnv("ANTHROPIC_BASE_URL", ""),
		OllamaURL:               mustEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaGenModel:          mustEnv("OLLAMA_GEN_MODEL", "llama3.1:8b"),
		ReasoningTimeout:        mustEnvDuration("REASONING_TIMEOUT", 60*time.Second),
		ReasoningMaxPerMinute:   mustEnvInt("REASONING_MAX_PER_MINUTE", 10),
		ReasoningMaxPerHour:     mustEnvInt("REASONING_MAX_PER_HOUR", 100),
		ReasoningMaxRetries:     mustEnvInt("REASONING_MAX_RETRIES", 3),
		ReasoningInitialBackoff: mustEnvDuration("REASONING_INITIAL_BACKOFF", time.Second),
		ReasoningMaxBackoff:     mustEnvDuration("REASONING_MAX_BACKOFF", 30*time.Second),
		ReasoningBackoffFactor:  mustEnvFloat("REASONING_BACKOFF_FACTOR", 2),
		ReasoningCacheTTL:       mustEnvDuration("REASONING_CACHE_TTL", time.Hour),
		ReasoningCacheSize:      mustEnvInt("REASONING_CACHE_SIZE", 100),
		BreakerEnabled:          mustEnvBool("BREAKER_ENABLED", true),

		StoragePath:            mustEnv("STORAGE_PATH", "./data/storage"),
		SQLitePath:             mustEnv("SQLITE_PATH", "./data/documents.db"),
		PostgresDSN:            mustEnv("POSTGRES_DSN", ""),
		DefaultStorageLocation: mustEnv("DEFAULT_STORAGE_LOCATION", "local"),

		NATSURL:              mustEnv("NATS_URL", ""),
		NATSIngestSubject:    mustEnv("NATS_INGEST_SUBJECT", "documents.ingest"),
		NATSProcessedSubject: mustEnv("NATS_PROCESSED_SUBJECT", "documents.processed"),

		APIRateLimitRPS:   mustEnvFloat("API_RATE_LIMIT_RPS", 0),
		APIRateLimitBurst: mustEnvInt("API_RATE_LIMIT_BURST", 0),
		APIMaxInFlight:    mustEnvInt("API_MAX_INFLIGHT", 0),

		WorkerMetricsPort: mustEnv("WORKER_METRICS_PORT", "9090"),
	}
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// mustEnvDuration accepts Go durations ("90s") or bare seconds ("90").
func mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}

func mustEnvList(key, fallback string) []string {
	raw := mustEnv(key, fallback)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
