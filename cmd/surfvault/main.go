package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	httpapi "github.com/i474232898/surfvault/internal/api/http"
	"github.com/i474232898/surfvault/internal/cache"
	"github.com/i474232898/surfvault/internal/config"
	"github.com/i474232898/surfvault/internal/media"
	"github.com/i474232898/surfvault/internal/scheduler"
	"github.com/i474232898/surfvault/internal/session"
	"github.com/i474232898/surfvault/internal/store"
	"github.com/i474232898/surfvault/internal/surfcondition"
	"github.com/i474232898/surfvault/internal/weather"
	"github.com/i474232898/surfvault/internal/weather/providers"
)

func main() {
	exitCode := 0
	defer func() { os.Exit(exitCode) }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zlog, err := config.NewLogger(cfg)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(store.Config{Driver: cfg.DBDriver, DSN: cfg.DBDSN, Logger: zlog})
	if err != nil {
		zlog.Fatal("failed to open database", zap.Error(err))
	}
	defer store.Close(db)
	if err := store.Migrate(db); err != nil {
		zlog.Fatal("failed to migrate database", zap.Error(err))
	}

	// Historical series never change upstream, so they are cached.
	var seriesCache weather.SeriesCache
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheMaxAge, zlog)
		if err != nil {
			zlog.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer rc.Close()
		seriesCache = rc
	} else {
		seriesCache = cache.NewMemoryCache(cfg.CacheMaxEntries, cfg.CacheMaxAge)
	}

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	openMeteo := providers.NewOpenMeteoClient(httpClient, providers.OpenMeteoConfig{
		MarineURL:               cfg.MarineURL,
		ForecastURL:             cfg.ForecastURL,
		HistoricalURL:           cfg.HistoricalURL,
		HistoricalThresholdDays: cfg.HistoricalThresholdDays,
		MaxRetries:              cfg.ProviderMaxRetries,
		Cache:                   seriesCache,
		Logger:                  zlog,
	})
	geocoding := providers.NewGeocodingClient(httpClient, cfg.GeocodingURL)

	conditions := surfcondition.NewService(weather.NewGenerator(openMeteo, zlog), cfg.ConditionsPolicy, zlog)

	var files media.Store = media.Disabled{}
	if cfg.S3.Endpoint != "" {
		ms, err := media.NewMinioStore(ctx, cfg.S3, zlog)
		if err != nil {
			zlog.Fatal("failed to connect to object storage", zap.Error(err))
		}
		files = ms
	} else {
		zlog.Warn("S3_ENDPOINT not set; file attachments are disabled")
	}

	sessions := session.NewService(db, conditions, files, zlog)

	sched := scheduler.New(sessions, cfg.BackfillInterval, cfg.BackfillBatchSize, zlog)
	if err := sched.Start(); err != nil {
		zlog.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "surfvault",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          cfg.HTTPTimeout*2 + 10*time.Second,
		BodyLimit:             64 * 1024 * 1024,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "surfvault",
		})
	})

	httpapi.RegisterRoutes(app, sessions, geocoding)

	zlog.Info("listening", zap.String("port", cfg.Port), zap.String("policy", cfg.ConditionsPolicy.String()))
	if err := serve(ctx, app, ":"+cfg.Port); err != nil {
		zlog.Error("fiber server stopped", zap.Error(err))
		exitCode = 1
	}
}
