package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
}

type Dispatch struct {
	BatchSize             int
	MaxAttempts           int
	Schedule              string
	Platforms             []string
	Timezone              string
	UniqueTTL             time.Duration
	DefaultScoreThreshold float64
	PublishTimeout        time.Duration
	ProcessingTimeout     time.Duration
	ReconcileInterval     time.Duration
}

type Config struct {
	HTTPAddr         string
	PostgresURI      string
	RedisURI         string
	AsynqConcurrency int
	LogLevel         string
	SecretKey        string
	OperatorAPIKey   string
	MediaBaseURL     string
	R2               R2
	Dispatch         Dispatch
}

func LoadConfig() *Config {
	return &Config{
		HTTPAddr:         getEnv("HTTP_ADDR", ":3000"),
		PostgresURI:      getEnv("POSTGRES_URI", ""),
		RedisURI:         getEnv("REDIS_URI", "localhost:6379"),
		AsynqConcurrency: getEnvInt("ASYNQ_CONCURRENCY", 4),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		SecretKey:        getEnv("SECRET_KEY", ""),
		OperatorAPIKey:   getEnv("OPERATOR_API_KEY", ""),
		MediaBaseURL:     getEnv("MEDIA_BASE_URL", ""),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
		},
		Dispatch: Dispatch{
			BatchSize:             getEnvInt("DISPATCH_BATCH_SIZE", 200),
			MaxAttempts:           getEnvInt("DISPATCH_MAX_ATTEMPTS", 0),
			Schedule:              getEnv("DISPATCH_SCHEDULE", "@every 00h05m00s"),
			Platforms:             getEnvList("DISPATCH_PLATFORMS", []string{"youtube", "tiktok", "instagram"}),
			Timezone:              getEnv("DISPATCH_TIMEZONE", "UTC"),
			UniqueTTL:             getEnvDuration("DISPATCH_UNIQUE_TTL", 4*time.Minute),
			DefaultScoreThreshold: getEnvFloat("DEFAULT_SCORE_THRESHOLD", 0.25),
			PublishTimeout:        getEnvDuration("PUBLISH_TIMEOUT", 5*time.Minute),
			ProcessingTimeout:     getEnvDuration("PROCESSING_TIMEOUT", 10*time.Minute),
			ReconcileInterval:     getEnvDuration("RECONCILE_INTERVAL", 5*time.Minute),
		},
	}
}

// Location resolves the dispatch timezone used for daily quota windows.
func (d Dispatch) Location() *time.Location {
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := cast.ToIntE(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := cast.ToFloat64E(value)
	if err != nil {
		return defaultValue
	}
	return f
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := cast.ToDurationE(value)
	if err != nil {
		return defaultValue
	}
	return d
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
