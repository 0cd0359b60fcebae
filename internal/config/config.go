package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	LLM       LLMConfig
	Catalog   CatalogConfig
	Pipeline  PipelineConfig
	Registry  RegistryConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type RateLimitConfig struct {
	PlaylistsPerHour int
}

// LLMConfig points at an OpenAI-compatible chat completion endpoint.
type LLMConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
}

type CatalogConfig struct {
	BaseURL           string
	Market            string
	SearchLimit       int
	Timeout           time.Duration
	AddBatchSize      int
	SearchConcurrency int
	SearchRPS         float64
}

type PipelineConfig struct {
	JobTimeout     time.Duration
	DefaultCount   int
	MaxCount       int
	MinutesPerSong int
	Public         bool
}

// RegistryConfig selects where job records live while they can be polled.
type RegistryConfig struct {
	Backend   string // "memory" or "redis"
	Retention time.Duration
}

const (
	RegistryBackendMemory = "memory"
	RegistryBackendRedis  = "redis"
)

func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	readSecret("REDIS_PASSWORD")
	readSecret("LLM_API_KEY")
	readSecret("JWT_SECRET")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()

	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("server.log_format", "LOG_FORMAT")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("jwt.secret", "JWT_SECRET")
	_ = v.BindEnv("ratelimit.playlists_per_hour", "RATELIMIT_PLAYLISTS_PER_HOUR")
	_ = v.BindEnv("llm.api_key", "LLM_API_KEY")
	_ = v.BindEnv("llm.base_url", "LLM_BASE_URL")
	_ = v.BindEnv("llm.model", "LLM_MODEL")
	_ = v.BindEnv("llm.timeout", "LLM_TIMEOUT")
	_ = v.BindEnv("catalog.base_url", "CATALOG_BASE_URL")
	_ = v.BindEnv("catalog.market", "CATALOG_MARKET")
	_ = v.BindEnv("catalog.timeout", "CATALOG_TIMEOUT")
	_ = v.BindEnv("catalog.search_concurrency", "CATALOG_SEARCH_CONCURRENCY")
	_ = v.BindEnv("catalog.search_rps", "CATALOG_SEARCH_RPS")
	_ = v.BindEnv("pipeline.job_timeout", "PIPELINE_JOB_TIMEOUT")
	_ = v.BindEnv("pipeline.public", "PIPELINE_PUBLIC")
	_ = v.BindEnv("registry.backend", "REGISTRY_BACKEND")
	_ = v.BindEnv("registry.retention", "REGISTRY_RETENTION")

	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "text")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("ratelimit.playlists_per_hour", 20)

	v.SetDefault("llm.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("llm.model", "llama-3.3-70b-versatile")
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 1024)

	v.SetDefault("catalog.base_url", "https://api.spotify.com/v1")
	v.SetDefault("catalog.market", "US")
	v.SetDefault("catalog.search_limit", 5)
	v.SetDefault("catalog.timeout", 15*time.Second)
	v.SetDefault("catalog.add_batch_size", 100)
	v.SetDefault("catalog.search_concurrency", 4)
	v.SetDefault("catalog.search_rps", 10.0)

	v.SetDefault("pipeline.job_timeout", 5*time.Minute)
	v.SetDefault("pipeline.default_count", 10)
	v.SetDefault("pipeline.max_count", 50)
	v.SetDefault("pipeline.minutes_per_song", 4)
	v.SetDefault("pipeline.public", false)

	v.SetDefault("registry.backend", RegistryBackendMemory)
	v.SetDefault("registry.retention", time.Hour)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      v.GetString("server.port"),
			Env:       v.GetString("server.env"),
			LogLevel:  v.GetString("server.log_level"),
			LogFormat: v.GetString("server.log_format"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
		},
		RateLimit: RateLimitConfig{
			PlaylistsPerHour: v.GetInt("ratelimit.playlists_per_hour"),
		},
		LLM: LLMConfig{
			APIKey:      v.GetString("llm.api_key"),
			BaseURL:     strings.TrimRight(v.GetString("llm.base_url"), "/"),
			Model:       v.GetString("llm.model"),
			Timeout:     v.GetDuration("llm.timeout"),
			Temperature: v.GetFloat64("llm.temperature"),
			MaxTokens:   v.GetInt("llm.max_tokens"),
		},
		Catalog: CatalogConfig{
			BaseURL:           strings.TrimRight(v.GetString("catalog.base_url"), "/"),
			Market:            v.GetString("catalog.market"),
			SearchLimit:       clamp(v.GetInt("catalog.search_limit"), 1, 5),
			Timeout:           v.GetDuration("catalog.timeout"),
			AddBatchSize:      clamp(v.GetInt("catalog.add_batch_size"), 1, 100),
			SearchConcurrency: clamp(v.GetInt("catalog.search_concurrency"), 1, 16),
			SearchRPS:         v.GetFloat64("catalog.search_rps"),
		},
		Pipeline: PipelineConfig{
			JobTimeout:     v.GetDuration("pipeline.job_timeout"),
			DefaultCount:   v.GetInt("pipeline.default_count"),
			MaxCount:       v.GetInt("pipeline.max_count"),
			MinutesPerSong: v.GetInt("pipeline.minutes_per_song"),
			Public:         v.GetBool("pipeline.public"),
		},
		Registry: RegistryConfig{
			Backend:   strings.ToLower(v.GetString("registry.backend")),
			Retention: v.GetDuration("registry.retention"),
		},
	}

	return cfg, nil
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
