package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Locks     LockConfig
	Cache     CacheConfig
	Gateway   GatewayConfig
	Bundles   BundleConfig
	Approvals ApprovalConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
	Issuer            string
	Audience          string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// LockConfig tunes edit lock lifetimes and expiry sweeping.
type LockConfig struct {
	DefaultTTL    time.Duration
	MaxTTL        time.Duration
	SweepInterval time.Duration
}

// CacheConfig sets TTLs for the read-heavy cached lookups.
type CacheConfig struct {
	DiffTTL      time.Duration
	RedactionTTL time.Duration
}

// GatewayConfig controls package dispatch and acknowledgment processing.
type GatewayConfig struct {
	DropDir         string
	AckWorkers      int
	AckRetryDelay   time.Duration
	EventPollPeriod time.Duration
}

// BundleConfig controls bundle storage and signed download links.
type BundleConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	RetentionTTL    time.Duration
}

// ApprovalConfig holds the secret behind digital signature manifests.
type ApprovalConfig struct {
	SigningSecret string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 30*time.Minute),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
		Issuer:            v.GetString("JWT_ISSUER"),
		Audience:          v.GetString("JWT_AUDIENCE"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Locks = LockConfig{
		DefaultTTL:    parseDuration(v.GetString("LOCK_DEFAULT_TTL"), 15*time.Minute),
		MaxTTL:        parseDuration(v.GetString("LOCK_MAX_TTL"), 4*time.Hour),
		SweepInterval: parseDuration(v.GetString("LOCK_SWEEP_INTERVAL"), time.Minute),
	}

	cfg.Cache = CacheConfig{
		DiffTTL:      parseDuration(v.GetString("DIFF_CACHE_TTL"), 10*time.Minute),
		RedactionTTL: parseDuration(v.GetString("REDACTION_CACHE_TTL"), 5*time.Minute),
	}

	ackWorkers := v.GetInt("GATEWAY_ACK_WORKERS")
	if ackWorkers <= 0 {
		ackWorkers = 2
	}
	cfg.Gateway = GatewayConfig{
		DropDir:         v.GetString("GATEWAY_DROP_DIR"),
		AckWorkers:      ackWorkers,
		AckRetryDelay:   parseDuration(v.GetString("GATEWAY_ACK_RETRY_DELAY"), 30*time.Second),
		EventPollPeriod: parseDuration(v.GetString("GATEWAY_EVENT_POLL_PERIOD"), 30*time.Second),
	}

	cfg.Bundles = BundleConfig{
		StorageDir:      v.GetString("BUNDLES_STORAGE_DIR"),
		SignedURLSecret: v.GetString("BUNDLES_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("BUNDLES_SIGNED_URL_TTL"), 30*time.Minute),
		RetentionTTL:    parseDuration(v.GetString("BUNDLES_RETENTION_TTL"), 90*24*time.Hour),
	}

	cfg.Approvals = ApprovalConfig{
		SigningSecret: v.GetString("APPROVAL_SIGNING_SECRET"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "regdoc")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "30m")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")
	v.SetDefault("JWT_ISSUER", "regdoc-api")
	v.SetDefault("JWT_AUDIENCE", "regdoc-clients")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("LOCK_DEFAULT_TTL", "15m")
	v.SetDefault("LOCK_MAX_TTL", "4h")
	v.SetDefault("LOCK_SWEEP_INTERVAL", "1m")

	v.SetDefault("DIFF_CACHE_TTL", "10m")
	v.SetDefault("REDACTION_CACHE_TTL", "5m")

	v.SetDefault("GATEWAY_DROP_DIR", "./gateway-outbox")
	v.SetDefault("GATEWAY_ACK_WORKERS", 2)
	v.SetDefault("GATEWAY_ACK_RETRY_DELAY", "30s")
	v.SetDefault("GATEWAY_EVENT_POLL_PERIOD", "30s")

	v.SetDefault("BUNDLES_STORAGE_DIR", "./bundles")
	v.SetDefault("BUNDLES_SIGNED_URL_SECRET", "dev_bundles_secret")
	v.SetDefault("BUNDLES_SIGNED_URL_TTL", "30m")

	v.SetDefault("APPROVAL_SIGNING_SECRET", "dev_signing_secret")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
