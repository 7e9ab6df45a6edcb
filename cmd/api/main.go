package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/pixelconvert/internal/api"
	"github.com/dunamismax/pixelconvert/internal/archive"
	"github.com/dunamismax/pixelconvert/internal/config"
	"github.com/dunamismax/pixelconvert/internal/domain"
	"github.com/dunamismax/pixelconvert/internal/pipeline"
	"github.com/dunamismax/pixelconvert/internal/ratelimit"
	"github.com/dunamismax/pixelconvert/internal/session"
	"github.com/dunamismax/pixelconvert/internal/storage"
	"github.com/dunamismax/pixelconvert/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	cfg := config.Load()
	logCfg := telemetry.LogConfigFromEnv()
	logger := telemetry.NewLogger("api", logCfg)

	shutdownTracing, err := telemetry.SetupTracing(context.Background(), telemetry.TraceConfig{
		ServiceName:  "pixelconvert-api",
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("tracing setup failed")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Error().Err(err).Msg("tracing shutdown failed")
		}
	}()

	if err := pipeline.Startup(); err != nil {
		logger.Fatal().Err(err).Msg("image backend startup failed")
	}
	defer pipeline.Shutdown()

	method, err := archive.ParseMethod(cfg.Pipeline.ArchiveMethod)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid archive method")
	}
	defaultFilter, err := domain.ParseFilter(cfg.Pipeline.DefaultFilter)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid default filter")
	}

	registry := api.NewRegistry()
	converter := pipeline.NewConverter(pipeline.Config{
		MaxInFlight: cfg.Pipeline.MaxInFlight,
		MaxPixels:   cfg.Pipeline.MaxPixels,
	}, telemetry.NewLogger("pipeline", logCfg), pipeline.NewMetrics(registry))
	sessions := session.NewMemoryStore(converter, archive.WithMethod(method))

	opts := api.Options{
		Registry:              registry,
		PresignTTL:            cfg.Export.PresignTTL,
		RateLimitUserIDHeader: cfg.RateLimit.UserIDHeader,
		DefaultQuality:        cfg.Pipeline.DefaultQuality,
		DefaultFilter:         defaultFilter,
		MaxUploadBytes:        cfg.API.MaxUploadBytes,
	}

	if cfg.RateLimit.Enabled() {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RateLimit.RedisAddr,
			Password: cfg.RateLimit.RedisPassword,
			DB:       cfg.RateLimit.RedisDB,
		})
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("redis client close failed")
			}
		}()

		limiter, err := ratelimit.NewRedisTokenBucket(redisClient, cfg.RateLimit.Capacity, cfg.RateLimit.Window, "")
		if err != nil {
			logger.Fatal().Err(err).Msg("rate limiter setup failed")
		}
		opts.RateLimiter = limiter
		logger.Info().Int("capacity", cfg.RateLimit.Capacity).Dur("window", cfg.RateLimit.Window).Msg("convert rate limiting enabled")
	}

	if cfg.Export.Enabled() {
		exporter, err := storage.NewClient(storage.Config{
			Endpoint: cfg.Export.Endpoint,
			Access:   cfg.Export.AccessKey,
			Secret:   cfg.Export.SecretKey,
			Bucket:   cfg.Export.Bucket,
			UseSSL:   cfg.Export.UseSSL,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("export storage setup failed")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = exporter.EnsureBucket(ctx)
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Str("bucket", exporter.Bucket()).Msg("export bucket unavailable")
		}
		opts.Exporter = exporter
		logger.Info().Str("bucket", exporter.Bucket()).Msg("archive export enabled")
	}

	app := api.NewServer(logger, sessions, opts)

	httpServer := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           app.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go sweepSessions(sweepCtx, sessions, cfg.Session.IdleTimeout, logger)

	go func() {
		logger.Info().Str("addr", cfg.API.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info().Msg("shutting down")
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func sweepSessions(ctx context.Context, sessions *session.MemoryStore, maxIdle time.Duration, logger zerolog.Logger) {
	interval := maxIdle / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if removed := sessions.Sweep(now, maxIdle); removed > 0 {
				logger.Info().Int("removed", removed).Int("remaining", sessions.Len()).Msg("idle sessions expired")
			}
		}
	}
}
