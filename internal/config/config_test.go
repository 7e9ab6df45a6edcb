package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PIXELCONVERT_API_ADDR",
		"PIXELCONVERT_DEFAULT_QUALITY",
		"PIXELCONVERT_SESSION_IDLE",
		"RATE_LIMIT_REDIS_ADDR",
		"EXPORT_S3_ENDPOINT",
		"EXPORT_S3_BUCKET",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.API.Addr != "127.0.0.1:8080" {
		t.Fatalf("expected loopback default addr, got %s", cfg.API.Addr)
	}
	if cfg.Pipeline.DefaultQuality != 90 {
		t.Fatalf("expected default quality 90, got %d", cfg.Pipeline.DefaultQuality)
	}
	if cfg.Session.IdleTimeout != 30*time.Minute {
		t.Fatalf("expected 30m idle timeout, got %s", cfg.Session.IdleTimeout)
	}
	if cfg.RateLimit.Enabled() {
		t.Fatal("expected rate limiting disabled without redis addr")
	}
	if cfg.Export.Enabled() {
		t.Fatal("expected export disabled without endpoint")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PIXELCONVERT_API_ADDR", ":9090")
	t.Setenv("PIXELCONVERT_MAX_IN_FLIGHT", "3")
	t.Setenv("PIXELCONVERT_MAX_UPLOAD_BYTES", "1024")
	t.Setenv("PIXELCONVERT_SESSION_IDLE", "90s")
	t.Setenv("RATE_LIMIT_REDIS_ADDR", "localhost:6379")
	t.Setenv("RATE_LIMIT_WINDOW", "not-a-duration")
	t.Setenv("EXPORT_S3_ENDPOINT", "s3.example.com")
	t.Setenv("EXPORT_S3_BUCKET", "exports")
	t.Setenv("EXPORT_S3_USE_SSL", "false")

	cfg := Load()
	if cfg.API.Addr != ":9090" {
		t.Fatalf("expected :9090, got %s", cfg.API.Addr)
	}
	if cfg.Pipeline.MaxInFlight != 3 {
		t.Fatalf("expected 3 in flight, got %d", cfg.Pipeline.MaxInFlight)
	}
	if cfg.API.MaxUploadBytes != 1024 {
		t.Fatalf("expected 1024 upload bytes, got %d", cfg.API.MaxUploadBytes)
	}
	if cfg.Session.IdleTimeout != 90*time.Second {
		t.Fatalf("expected 90s idle, got %s", cfg.Session.IdleTimeout)
	}
	if !cfg.RateLimit.Enabled() {
		t.Fatal("expected rate limiting enabled")
	}
	if cfg.RateLimit.Window != time.Minute {
		t.Fatalf("expected invalid window to fall back to 1m, got %s", cfg.RateLimit.Window)
	}
	if !cfg.Export.Enabled() || cfg.Export.UseSSL {
		t.Fatalf("unexpected export config %+v", cfg.Export)
	}
}
