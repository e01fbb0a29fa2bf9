package config

import (
	"time"

	"github.com/joho/godotenv"

	pkgconfig "github.com/storefront-labs/orchestrator/pkg/config"
)

// Config holds the runtime configuration of the storefront service.
type Config struct {
	ServiceName      string // e.g. "storefront"
	Env              string // e.g. "dev", "uat", "prod"
	LogLevel         string
	Port             int
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	HTTPBodyLimit    int

	// DatabaseURL empty and no DatabaseSecretID means the in-memory catalog.
	DatabaseURL      string
	DatabaseSecretID string // AWS SM secret holding database_url
	AWSRegion        string

	PGMaxConns          int
	PGMinConns          int
	PGMaxConnLifetime   time.Duration
	PGMaxConnIdleTime   time.Duration
	PGHealthCheckPeriod time.Duration

	// RedisAddr empty keeps dialog state and tokens in process.
	RedisAddr string
	RedisDB   int
	RedisPass string

	NATSURL              string
	ListingSubjectPrefix string
	ListingStream        string
	PublishTimeout       time.Duration
	ListingEditsPerSec   float64
	ListingEditBurst     int

	// RabbitMQURL empty disables review hand-off and notifications.
	RabbitMQURL          string
	ReviewQueue          string
	NotifyQueue          string
	ReviewDecisionsQueue string

	HoldTTL            time.Duration
	ServiceWindowOpen  time.Duration // offset from midnight
	ServiceWindowClose time.Duration
	ServiceLocation    *time.Location
	DialogIdleTimeout  time.Duration
	ReviewTokenTTL     time.Duration
	ReconcileInterval  time.Duration
	BatchRetention     time.Duration
	CarriersFile       string
}

// Load loads configuration from environment variables and .env file if present.
func Load() *Config {
	// load .env silently (no error if missing)
	_ = godotenv.Load()

	return &Config{
		ServiceName:      pkgconfig.GetEnv("SERVICE_NAME", "storefront"),
		Env:              pkgconfig.GetEnv("ENV", "dev"),
		LogLevel:         pkgconfig.GetEnv("LOG_LEVEL", "info"),
		Port:             pkgconfig.GetEnvInt("STOREFRONT_PORT", 9020),
		HTTPReadTimeout:  pkgconfig.GetEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second),
		HTTPWriteTimeout: pkgconfig.GetEnvDuration("HTTP_WRITE_TIMEOUT", 10*time.Second),
		HTTPIdleTimeout:  pkgconfig.GetEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		HTTPBodyLimit:    pkgconfig.GetEnvInt("HTTP_BODY_LIMIT", 1*1024*1024),

		DatabaseURL:      pkgconfig.GetEnv("DATABASE_URL", ""),
		DatabaseSecretID: pkgconfig.GetEnv("DATABASE_SECRET_ID", ""),
		AWSRegion:        pkgconfig.GetEnv("AWS_REGION", "eu-central-1"),

		PGMaxConns:          pkgconfig.GetEnvInt("PG_MAX_CONNS", 10),
		PGMinConns:          pkgconfig.GetEnvInt("PG_MIN_CONNS", 2),
		PGMaxConnLifetime:   pkgconfig.GetEnvDuration("PG_MAX_CONN_LIFETIME", 30*time.Minute),
		PGMaxConnIdleTime:   pkgconfig.GetEnvDuration("PG_MAX_CONN_IDLE_TIME", 5*time.Minute),
		PGHealthCheckPeriod: pkgconfig.GetEnvDuration("PG_HEALTH_CHECK_PERIOD", 1*time.Minute),

		RedisAddr: pkgconfig.GetEnv("REDIS_ADDR", ""),
		RedisDB:   pkgconfig.GetEnvInt("REDIS_DB", 0),
		RedisPass: pkgconfig.GetEnv("REDIS_PASS", ""),

		NATSURL:              pkgconfig.GetEnv("NATS_URL", "nats://localhost:4222"),
		ListingSubjectPrefix: pkgconfig.GetEnv("LISTING_SUBJECT_PREFIX", "evt.listing"),
		ListingStream:        pkgconfig.GetEnv("LISTING_STREAM", "LISTINGS"),
		PublishTimeout:       pkgconfig.GetEnvDuration("PUBLISH_TIMEOUT", 5*time.Second),
		ListingEditsPerSec:   pkgconfig.GetEnvFloat("LISTING_EDITS_PER_SECOND", 1),
		ListingEditBurst:     pkgconfig.GetEnvInt("LISTING_EDITS_BURST", 3),

		RabbitMQURL:          pkgconfig.GetEnv("RABBITMQ_URL", ""),
		ReviewQueue:          pkgconfig.GetEnv("REVIEW_QUEUE", "storefront.review"),
		NotifyQueue:          pkgconfig.GetEnv("NOTIFY_QUEUE", "storefront.notify"),
		ReviewDecisionsQueue: pkgconfig.GetEnv("REVIEW_DECISIONS_QUEUE", "storefront.review.decisions"),

		HoldTTL:            pkgconfig.GetEnvDuration("HOLD_TTL", 30*time.Minute),
		ServiceWindowOpen:  pkgconfig.GetEnvTime("SERVICE_WINDOW_OPEN", "09:00"),
		ServiceWindowClose: pkgconfig.GetEnvTime("SERVICE_WINDOW_CLOSE", "21:00"),
		ServiceLocation:    pkgconfig.GetEnvLocation("SERVICE_TIMEZONE", "Europe/Kyiv"),
		DialogIdleTimeout:  pkgconfig.GetEnvDuration("DIALOG_IDLE_TIMEOUT", 2*time.Hour),
		ReviewTokenTTL:     pkgconfig.GetEnvDuration("REVIEW_TOKEN_TTL", 30*24*time.Hour),
		ReconcileInterval:  pkgconfig.GetEnvDuration("RECONCILE_INTERVAL", 10*time.Minute),
		BatchRetention:     pkgconfig.GetEnvDuration("BATCH_RETENTION", 24*time.Hour),
		CarriersFile:       pkgconfig.GetEnv("CARRIERS_FILE", ""),
	}
}
