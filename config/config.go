package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	AES      AESConfig      `mapstructure:"aes"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type AESConfig struct {
	Key string `mapstructure:"key"` // 32-byte hex-encoded key for AES-256
}

// WebhookConfig tunes the delivery pipeline. MaxAttempts mirrors the
// dashboard-selectable values (1, 3, 5 or 10).
type WebhookConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"`
	BackoffCap     time.Duration `mapstructure:"backoff_cap"`
	QueueDepth     int           `mapstructure:"queue_depth"`
	Workers        int           `mapstructure:"workers"`
	BodyLimitBytes int           `mapstructure:"body_limit_bytes"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	SweepBatch     int           `mapstructure:"sweep_batch"`
	ClaimHold      time.Duration `mapstructure:"claim_hold"`
	// RegistryCacheTTL bounds staleness of the cached subscriber sets;
	// mutations invalidate eagerly, the TTL is a backstop.
	RegistryCacheTTL time.Duration `mapstructure:"registry_cache_ttl"`
	// SuccessRateAlpha is the EWMA smoothing factor for the per-endpoint
	// rolling success rate.
	SuccessRateAlpha float64 `mapstructure:"success_rate_alpha"`
	// Livemode is echoed in every webhook body so receivers can tell
	// production events from test-environment ones.
	Livemode bool `mapstructure:"livemode"`
}

type PaymentConfig struct {
	DefaultExpiry       time.Duration `mapstructure:"default_expiry"`
	ExpirySweepInterval time.Duration `mapstructure:"expiry_sweep_interval"`
	ExpirySweepBatch    int           `mapstructure:"expiry_sweep_batch"`
}

// AuthConfig carries the provisioned API keys. Keys are issued out of
// band; only the Argon2id hash of the secret half lives in config.
type AuthConfig struct {
	APIKeys []APIKeyConfig `mapstructure:"api_keys"`
}

type APIKeyConfig struct {
	ID         string `mapstructure:"id"`
	MerchantID string `mapstructure:"merchant_id"`
	Hash       string `mapstructure:"hash"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: STACKSPAY.
// Nested keys use underscore: STACKSPAY_DATABASE_HOST, STACKSPAY_WEBHOOK_MAX_ATTEMPTS, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "stackspay")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "stackspay-gateway")
	v.SetDefault("aes.key", "")
	v.SetDefault("webhook.request_timeout", "30s")
	v.SetDefault("webhook.max_attempts", 3)
	v.SetDefault("webhook.backoff_base", "15s")
	v.SetDefault("webhook.backoff_cap", "10m")
	v.SetDefault("webhook.queue_depth", 1024)
	v.SetDefault("webhook.workers", 8)
	v.SetDefault("webhook.body_limit_bytes", 4096)
	v.SetDefault("webhook.sweep_interval", "5s")
	v.SetDefault("webhook.sweep_batch", 100)
	v.SetDefault("webhook.claim_hold", "1m")
	v.SetDefault("webhook.registry_cache_ttl", "5m")
	v.SetDefault("webhook.success_rate_alpha", 0.1)
	v.SetDefault("webhook.livemode", false)
	v.SetDefault("payment.default_expiry", "1h")
	v.SetDefault("payment.expiry_sweep_interval", "30s")
	v.SetDefault("payment.expiry_sweep_batch", 200)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: STACKSPAY_DATABASE_HOST -> database.host
	v.SetEnvPrefix("STACKSPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Webhook.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (w WebhookConfig) validate() error {
	switch w.MaxAttempts {
	case 1, 3, 5, 10:
	default:
		return fmt.Errorf("webhook.max_attempts must be one of 1, 3, 5, 10; got %d", w.MaxAttempts)
	}
	if w.SuccessRateAlpha <= 0 || w.SuccessRateAlpha > 1 {
		return fmt.Errorf("webhook.success_rate_alpha must be in (0, 1]; got %v", w.SuccessRateAlpha)
	}
	return nil
}
