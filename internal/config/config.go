package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// GradingConfig holds the tunables of the grading engine.
type GradingConfig struct {
	CacheEnabled        bool
	CacheTTL            time.Duration
	L1CacheCapacity     int
	EscalationThreshold float64
	SimpleBatchSize     int
	MediumBatchSize     int
	ComplexBatchSize    int
	BreakerThreshold    uint32
	BreakerRecovery     time.Duration
	RetryMaxAttempts    int
	RetryInitialDelay   time.Duration
	RemoteTimeout       time.Duration
}

// QueueConfig holds the async job queue tunables.
type QueueConfig struct {
	WorkerCount    int
	ClaimBatchSize int
	PollInterval   time.Duration
	StaleAfter     time.Duration
	ReapInterval   time.Duration
}

// Config holds runtime configuration values for the grading service.
type Config struct {
	AppName          string
	AppEnv           string
	AppPort          string
	DatabaseURL      string
	RedisURL         string
	NATSURL          string
	JWTSecret        string
	JWTRefreshSecret string
	AIProvider       string
	OpenAIAPIKey     string
	OpenAIModel      string
	RateLimitMax     int
	RateLimitWindow  time.Duration
	Grading          GradingConfig
	Queue            QueueConfig
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("INTELLIGRADE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "IntelliGrade API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("rate_limit.max", 60)
	v.SetDefault("rate_limit.window", "1m")

	v.SetDefault("grading.cache_enabled", true)
	v.SetDefault("grading.cache_ttl", "24h")
	v.SetDefault("grading.l1_capacity", 1000)
	v.SetDefault("grading.escalation_threshold", 0.75)
	v.SetDefault("grading.simple_batch_size", 20)
	v.SetDefault("grading.medium_batch_size", 15)
	v.SetDefault("grading.complex_batch_size", 8)
	v.SetDefault("grading.breaker_threshold", 5)
	v.SetDefault("grading.breaker_recovery", "60s")
	v.SetDefault("grading.retry_max_attempts", 3)
	v.SetDefault("grading.retry_initial_delay", "500ms")
	v.SetDefault("grading.remote_timeout", "30s")

	v.SetDefault("queue.worker_count", 4)
	v.SetDefault("queue.claim_batch_size", 5)
	v.SetDefault("queue.poll_interval", "2s")
	v.SetDefault("queue.stale_after", "10m")
	v.SetDefault("queue.reap_interval", "1m")

	cacheTTL, err := parseDuration(v, "grading.cache_ttl", 24*time.Hour)
	if err != nil {
		return Config{}, err
	}
	breakerRecovery, err := parseDuration(v, "grading.breaker_recovery", 60*time.Second)
	if err != nil {
		return Config{}, err
	}
	retryDelay, err := parseDuration(v, "grading.retry_initial_delay", 500*time.Millisecond)
	if err != nil {
		return Config{}, err
	}
	remoteTimeout, err := parseDuration(v, "grading.remote_timeout", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	pollInterval, err := parseDuration(v, "queue.poll_interval", 2*time.Second)
	if err != nil {
		return Config{}, err
	}
	staleAfter, err := parseDuration(v, "queue.stale_after", 10*time.Minute)
	if err != nil {
		return Config{}, err
	}
	reapInterval, err := parseDuration(v, "queue.reap_interval", time.Minute)
	if err != nil {
		return Config{}, err
	}
	rateLimitWindow, err := parseDuration(v, "rate_limit.window", time.Minute)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:          v.GetString("app.name"),
		AppEnv:           v.GetString("app.env"),
		AppPort:          v.GetString("app.port"),
		DatabaseURL:      v.GetString("database.url"),
		RedisURL:         v.GetString("redis.url"),
		NATSURL:          v.GetString("nats.url"),
		JWTSecret:        v.GetString("jwt.secret"),
		JWTRefreshSecret: v.GetString("jwt.refresh_secret"),
		AIProvider:       strings.ToLower(v.GetString("ai.provider")),
		OpenAIAPIKey:     v.GetString("openai_api_key"),
		OpenAIModel:      v.GetString("openai.model"),
		RateLimitMax:     v.GetInt("rate_limit.max"),
		RateLimitWindow:  rateLimitWindow,
		Grading: GradingConfig{
			CacheEnabled:        v.GetBool("grading.cache_enabled"),
			CacheTTL:            cacheTTL,
			L1CacheCapacity:     v.GetInt("grading.l1_capacity"),
			EscalationThreshold: v.GetFloat64("grading.escalation_threshold"),
			SimpleBatchSize:     v.GetInt("grading.simple_batch_size"),
			MediumBatchSize:     v.GetInt("grading.medium_batch_size"),
			ComplexBatchSize:    v.GetInt("grading.complex_batch_size"),
			BreakerThreshold:    v.GetUint32("grading.breaker_threshold"),
			BreakerRecovery:     breakerRecovery,
			RetryMaxAttempts:    v.GetInt("grading.retry_max_attempts"),
			RetryInitialDelay:   retryDelay,
			RemoteTimeout:       remoteTimeout,
		},
		Queue: QueueConfig{
			WorkerCount:    v.GetInt("queue.worker_count"),
			ClaimBatchSize: v.GetInt("queue.claim_batch_size"),
			PollInterval:   pollInterval,
			StaleAfter:     staleAfter,
			ReapInterval:   reapInterval,
		},
	}

	if cfg.JWTSecret == "" || cfg.JWTRefreshSecret == "" {
		return Config{}, fmt.Errorf("jwt secrets must be provided")
	}

	if cfg.Grading.L1CacheCapacity <= 0 {
		cfg.Grading.L1CacheCapacity = 1000
	}

	if cfg.Queue.WorkerCount <= 0 {
		cfg.Queue.WorkerCount = 4
	}

	if cfg.Queue.ClaimBatchSize <= 0 {
		cfg.Queue.ClaimBatchSize = 5
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string, fallback time.Duration) (time.Duration, error) {
	raw := v.GetString(key)
	if raw == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return parsed, nil
}
