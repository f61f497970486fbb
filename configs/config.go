package config

import (
	"os"
	"strconv"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
}

type Worker struct {
	WorkerID          string
	ConcurrencyLimit  int64
	BatchSize         int
	MaxAttempts       int
	MissedThreshold   time.Duration
	StuckThreshold    time.Duration
	IdleRecoveryEvery int
	ShutdownGrace     time.Duration
	TokenCacheTTL     time.Duration
	CycleEvery        string
	TokenRefreshEvery string
}

type Config struct {
	InstagramClientID     string
	InstagramClientSecret string
	FacebookClientID      string
	FacebookClientSecret  string
	LinkedinClientID      string
	LinkedinClientSecret  string
	PostgresURI           string
	RedisURI              string
	NotifyWebhookURL      string
	ListenAddr            string
	R2                    R2
	SecretKey             string
	Worker                Worker
}

func LoadConfig() *Config {
	return &Config{
		InstagramClientID:     getEnv("INSTAGRAM_CLIENT_ID", ""),
		InstagramClientSecret: getEnv("INSTAGRAM_CLIENT_SECRET", ""),
		FacebookClientID:      getEnv("FACEBOOK_CLIENT_ID", ""),
		FacebookClientSecret:  getEnv("FACEBOOK_CLIENT_SECRET", ""),
		LinkedinClientID:      getEnv("LINKEDIN_CLIENT_ID", ""),
		LinkedinClientSecret:  getEnv("LINKEDIN_CLIENT_SECRET", ""),
		PostgresURI:           getEnv("POSTGRES_URI", ""),
		RedisURI:              getEnv("REDIS_URI", ""),
		NotifyWebhookURL:      getEnv("NOTIFY_WEBHOOK_URL", ""),
		ListenAddr:            getEnv("LISTEN_ADDR", ":3100"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
		},
		SecretKey: getEnv("SECRET_KEY", ""),
		Worker: Worker{
			WorkerID:          getEnv("WORKER_ID", ""),
			ConcurrencyLimit:  int64(getEnvInt("CONCURRENCY_LIMIT", 2)),
			BatchSize:         getEnvInt("BATCH_SIZE", 5),
			MaxAttempts:       getEnvInt("MAX_ATTEMPTS", 3),
			MissedThreshold:   getEnvDuration("MISSED_THRESHOLD", 30*time.Minute),
			StuckThreshold:    getEnvDuration("STUCK_THRESHOLD", 15*time.Minute),
			IdleRecoveryEvery: getEnvInt("IDLE_RECOVERY_EVERY", 5),
			ShutdownGrace:     getEnvDuration("SHUTDOWN_GRACE", 30*time.Second),
			TokenCacheTTL:     getEnvDuration("TOKEN_CACHE_TTL", 5*time.Minute),
			CycleEvery:        getEnv("CYCLE_EVERY", "@every 00h01m00s"),
			TokenRefreshEvery: getEnv("TOKEN_REFRESH_EVERY", "@every 00h10m00s"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
