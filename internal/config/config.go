package config

import (
	"os"
	"runtime"
	"strconv"
	"time"
)

type Config struct {
	API       APIConfig
	Pipeline  PipelineConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
	Export    ExportConfig
	Tracing   TracingConfig
}

type APIConfig struct {
	Addr           string
	MaxUploadBytes int64
}

type PipelineConfig struct {
	MaxInFlight    int
	MaxPixels      int64
	DefaultQuality int
	DefaultFilter  string
	ArchiveMethod  string
}

type SessionConfig struct {
	IdleTimeout time.Duration
}

type RateLimitConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Capacity      int
	Window        time.Duration
	UserIDHeader  string
}

// Enabled reports whether a redis address was configured.
func (r RateLimitConfig) Enabled() bool {
	return r.RedisAddr != ""
}

type ExportConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Bucket     string
	UseSSL     bool
	PresignTTL time.Duration
}

// Enabled reports whether an export bucket was configured.
func (e ExportConfig) Enabled() bool {
	return e.Endpoint != "" && e.Bucket != ""
}

type TracingConfig struct {
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
}

func Load() Config {
	return Config{
		API: APIConfig{
			Addr:           env("PIXELCONVERT_API_ADDR", "127.0.0.1:8080"),
			MaxUploadBytes: envInt64("PIXELCONVERT_MAX_UPLOAD_BYTES", 256<<20),
		},
		Pipeline: PipelineConfig{
			MaxInFlight:    envInt("PIXELCONVERT_MAX_IN_FLIGHT", max(2, 2*runtime.NumCPU())),
			MaxPixels:      envInt64("PIXELCONVERT_MAX_PIXELS", 100_000_000),
			DefaultQuality: envInt("PIXELCONVERT_DEFAULT_QUALITY", 90),
			DefaultFilter:  env("PIXELCONVERT_DEFAULT_FILTER", "bilinear"),
			ArchiveMethod:  env("PIXELCONVERT_ARCHIVE_METHOD", "deflate"),
		},
		Session: SessionConfig{
			IdleTimeout: envDuration("PIXELCONVERT_SESSION_IDLE", 30*time.Minute),
		},
		RateLimit: RateLimitConfig{
			RedisAddr:     env("RATE_LIMIT_REDIS_ADDR", ""),
			RedisPassword: env("RATE_LIMIT_REDIS_PASSWORD", ""),
			RedisDB:       envInt("RATE_LIMIT_REDIS_DB", 0),
			Capacity:      envInt("RATE_LIMIT_CAPACITY", 500),
			Window:        envDuration("RATE_LIMIT_WINDOW", time.Minute),
			UserIDHeader:  env("RATE_LIMIT_USER_HEADER", "X-User-ID"),
		},
		Export: ExportConfig{
			Endpoint:   env("EXPORT_S3_ENDPOINT", ""),
			AccessKey:  env("EXPORT_S3_ACCESS_KEY", ""),
			SecretKey:  env("EXPORT_S3_SECRET_KEY", ""),
			Bucket:     env("EXPORT_S3_BUCKET", ""),
			UseSSL:     envBool("EXPORT_S3_USE_SSL", true),
			PresignTTL: envDuration("EXPORT_PRESIGN_TTL", 15*time.Minute),
		},
		Tracing: TracingConfig{
			Exporter:     env("OTEL_TRACES_EXPORTER", "none"),
			OTLPEndpoint: env("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			OTLPInsecure: envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		},
	}
}

func env(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func envInt(key string, fallback int) int {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envInt64(key string, fallback int64) int64 {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
