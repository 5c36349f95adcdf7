package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Ai       AIConfig
	Pipeline PipelineConfig
	Tracing  TracingConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	LLMLogFilePath     string
	CorsAllowedOrigins string
	// NatsURL empty disables event publishing
	NatsURL string
	// JwtSecret empty leaves the API unauthenticated
	JwtSecret   string
	BodyLimitMB int
}

func (c AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

type AIConfig struct {
	LLMProvider string // "ollama", "huggingface", "openai"
	LLMModel    string // e.g. "llama3", "qwen2.5"
	BaseURL     string
	APIKey      string
	Temperature float64
}

type PipelineConfig struct {
	MaxTokensPerChunk     int
	CharsPerToken         int
	MinChunkChars         int
	MinAlphaRatio         float64
	OptimizerConcurrency  int
	OptimizerChunkTimeout time.Duration
	MaxSourceChars        int
	PriceTablePath        string

	NotesTimeout       time.Duration
	SummaryTimeout     time.Duration
	FlashcardsTimeout  time.Duration
	QuizTimeout        time.Duration
	TimelineTimeout    time.Duration
	ChatTimeout        time.Duration
	SectionEditTimeout time.Duration
	StreamTimeout      time.Duration
	JobTimeout         time.Duration
	// JobWorkers bounds how many note jobs run at once
	JobWorkers int

	ProviderCallTimeout time.Duration
	ProviderMaxRetries  int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	BreakerMinRequests  int
	BreakerFailureRatio float64
	BreakerOpenTimeout  time.Duration
}

type TracingConfig struct {
	Enabled  bool
	Endpoint string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			LLMLogFilePath:     getEnv("LLM_LOG_FILE_PATH", "logs/llm.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", ""),
			JwtSecret:          getEnv("JWT_SECRET", ""),
			BodyLimitMB:        getEnvAsInt("BODY_LIMIT_MB", 25),
		},
		Ai: AIConfig{
			LLMProvider: getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:    getEnv("LLM_MODEL", "llama3"),
			BaseURL:     getEnv("LLM_BASE_URL", getEnv("OLLAMA_BASE_URL", "http://localhost:11434")),
			APIKey:      getEnv("LLM_API_KEY", ""),
			Temperature: getEnvAsFloat("LLM_TEMPERATURE", 0.4),
		},
		Pipeline: PipelineConfig{
			MaxTokensPerChunk:     getEnvAsInt("OPTIMIZER_MAX_TOKENS_PER_CHUNK", 2000),
			CharsPerToken:         getEnvAsInt("OPTIMIZER_CHARS_PER_TOKEN", 4),
			MinChunkChars:         getEnvAsInt("OPTIMIZER_MIN_CHUNK_CHARS", 400),
			MinAlphaRatio:         getEnvAsFloat("OPTIMIZER_MIN_ALPHA_RATIO", 0.6),
			OptimizerConcurrency:  getEnvAsInt("OPTIMIZER_CONCURRENCY", 3),
			OptimizerChunkTimeout: getEnvAsDuration("OPTIMIZER_CHUNK_TIMEOUT", 30*time.Second),
			MaxSourceChars:        getEnvAsInt("GENERATOR_MAX_SOURCE_CHARS", 12000),
			PriceTablePath:        getEnv("PRICE_TABLE_PATH", ""),

			NotesTimeout:       getEnvAsDuration("TIMEOUT_NOTES", 180*time.Second),
			SummaryTimeout:     getEnvAsDuration("TIMEOUT_SUMMARY", 90*time.Second),
			FlashcardsTimeout:  getEnvAsDuration("TIMEOUT_FLASHCARDS", 120*time.Second),
			QuizTimeout:        getEnvAsDuration("TIMEOUT_QUIZ", 120*time.Second),
			TimelineTimeout:    getEnvAsDuration("TIMEOUT_TIMELINE", 90*time.Second),
			ChatTimeout:        getEnvAsDuration("TIMEOUT_CHAT", 60*time.Second),
			SectionEditTimeout: getEnvAsDuration("TIMEOUT_SECTION_EDIT", 60*time.Second),
			StreamTimeout:      getEnvAsDuration("TIMEOUT_STREAM", 120*time.Second),
			JobTimeout:         getEnvAsDuration("TIMEOUT_JOB", 10*time.Minute),
			JobWorkers:         getEnvAsInt("JOB_WORKERS", 4),

			ProviderCallTimeout: getEnvAsDuration("PROVIDER_CALL_TIMEOUT", 180*time.Second),
			ProviderMaxRetries:  getEnvAsInt("PROVIDER_MAX_RETRIES", 1),
			RetryInitialBackoff: getEnvAsDuration("PROVIDER_RETRY_INITIAL_BACKOFF", 500*time.Millisecond),
			RetryMaxBackoff:     getEnvAsDuration("PROVIDER_RETRY_MAX_BACKOFF", 5*time.Second),
			BreakerMinRequests:  getEnvAsInt("PROVIDER_BREAKER_MIN_REQUESTS", 5),
			BreakerFailureRatio: getEnvAsFloat("PROVIDER_BREAKER_FAILURE_RATIO", 0.8),
			BreakerOpenTimeout:  getEnvAsDuration("PROVIDER_BREAKER_OPEN_TIMEOUT", 30*time.Second),
		},
		Tracing: TracingConfig{
			Enabled:  getEnvAsBool("OTEL_ENABLED", false),
			Endpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("90s", "2m") or a bare number of seconds.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := strings.TrimSpace(getEnv(key, ""))
	if strValue == "" {
		return fallback
	}
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	if seconds, err := strconv.Atoi(strValue); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}
