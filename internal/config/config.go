package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/i474232898/surfvault/internal/media"
	"github.com/i474232898/surfvault/internal/store"
	"github.com/i474232898/surfvault/internal/surfcondition"
	"github.com/i474232898/surfvault/internal/weather/providers"
)

type AppConfig struct {
	Port        string
	HTTPTimeout time.Duration

	DBDriver string
	DBDSN    string

	MarineURL               string
	ForecastURL             string
	HistoricalURL           string
	GeocodingURL            string
	HistoricalThresholdDays int
	ProviderMaxRetries      int

	ConditionsPolicy surfcondition.Policy

	// Media storage is disabled when S3.Endpoint is empty.
	S3 media.MinioConfig

	// The series cache lives in Redis when RedisAddr is set, in memory otherwise.
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	CacheMaxEntries int
	CacheMaxAge     time.Duration

	// BackfillInterval of 0 disables the backfill job.
	BackfillInterval  time.Duration
	BackfillBatchSize int

	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment, after an optional .env file.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	p := &parser{}
	cfg := &AppConfig{
		Port:        getenvDefault("PORT", "8080"),
		HTTPTimeout: p.getDuration("HTTP_TIMEOUT", "30s"),

		DBDriver: getenvDefault("DB_DRIVER", store.DriverSQLite),
		DBDSN:    getenvDefault("DB_DSN", "data/surfvault.db"),

		MarineURL:               getenvDefault("OPEN_METEO_MARINE_URL", providers.DefaultMarineURL),
		ForecastURL:             getenvDefault("OPEN_METEO_FORECAST_URL", providers.DefaultForecastURL),
		HistoricalURL:           getenvDefault("OPEN_METEO_HISTORICAL_URL", providers.DefaultHistoricalURL),
		GeocodingURL:            getenvDefault("OPEN_METEO_GEOCODING_URL", providers.DefaultGeocodingURL),
		HistoricalThresholdDays: p.getInt("HISTORICAL_THRESHOLD_DAYS", providers.DefaultHistoricalThresholdDays),
		ProviderMaxRetries:      p.getInt("PROVIDER_MAX_RETRIES", 0),

		S3: media.MinioConfig{
			Endpoint:      os.Getenv("S3_ENDPOINT"),
			AccessKey:     os.Getenv("S3_USER"),
			SecretKey:     os.Getenv("S3_SECRET"),
			UseSSL:        p.getBool("S3_USE_SSL", false),
			Bucket:        getenvDefault("S3_BUCKET", media.DefaultBucket),
			PresignExpiry: p.getDuration("S3_PRESIGN_EXPIRY", "24h"),
		},

		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         p.getInt("REDIS_DB", 0),
		CacheMaxEntries: p.getInt("CACHE_MAX_ENTRIES", 512),
		CacheMaxAge:     p.getDuration("CACHE_MAX_AGE", "24h"),

		BackfillInterval:  p.getDuration("BACKFILL_INTERVAL", "30m"),
		BackfillBatchSize: p.getInt("BACKFILL_BATCH_SIZE", 20),

		LogLevel:  strings.ToLower(getenvDefault("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getenvDefault("LOG_FORMAT", "json")),
	}

	policy, err := surfcondition.ParsePolicy(os.Getenv("CONDITIONS_POLICY"))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid CONDITIONS_POLICY: %w", err))
	}
	cfg.ConditionsPolicy = policy

	switch cfg.DBDriver {
	case store.DriverSQLite, store.DriverMySQL:
	default:
		p.errs = append(p.errs, fmt.Errorf("invalid DB_DRIVER %q: want sqlite or mysql", cfg.DBDriver))
	}
	if cfg.ProviderMaxRetries < 0 {
		p.errs = append(p.errs, fmt.Errorf("invalid PROVIDER_MAX_RETRIES: must not be negative"))
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parser collects every malformed value so that startup reports them together.
type parser struct {
	errs []error
}

func (p *parser) getDuration(key, def string) time.Duration {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
	}
	return d
}

func (p *parser) getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return n
}

func (p *parser) getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return b
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
