package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	JWT       JWTSettings       `mapstructure:"jwt"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Lockout   LockoutSettings   `mapstructure:"lockout"`
	MFA       MFASettings       `mapstructure:"mfa"`
	Device    DeviceSettings    `mapstructure:"device"`
	Session   SessionSettings   `mapstructure:"session"`
	Reset     ResetSettings     `mapstructure:"reset"`
	Argon2    Argon2Settings    `mapstructure:"argon2"`
	Notify    NotifySettings    `mapstructure:"notify"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
}

type AppSettings struct {
	Name           string   `mapstructure:"name"`
	Env            string   `mapstructure:"env"`
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures Redis connection and TLS
type RedisSettings struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
	KeyPrefix  string `mapstructure:"key_prefix"`
}

// KafkaSettings configures the Kafka producer
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

// RateLimitSettings configures the expiring-window attempt counters.
type RateLimitSettings struct {
	IPLimit       int           `mapstructure:"ip_limit"`
	IPWindow      time.Duration `mapstructure:"ip_window"`
	AccountLimit  int           `mapstructure:"account_limit"`
	AccountWindow time.Duration `mapstructure:"account_window"`
}

// LockoutSettings configures the failed-attempt lockout policy.
type LockoutSettings struct {
	Threshold int           `mapstructure:"threshold"`
	Duration  time.Duration `mapstructure:"duration"`
}

// MFASettings configures second-factor challenges.
type MFASettings struct {
	ChallengeTTL   time.Duration `mapstructure:"challenge_ttl"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	ResendCooldown time.Duration `mapstructure:"resend_cooldown"`
	ResendLimit    int           `mapstructure:"resend_limit"`
	ResendWindow   time.Duration `mapstructure:"resend_window"`
}

// DeviceSettings configures remembered-device trust grants.
type DeviceSettings struct {
	TrustTTL      time.Duration `mapstructure:"trust_ttl"`
	MaxPerAccount int           `mapstructure:"max_per_account"`
}

// SessionSettings bounds concurrent sessions per account.
type SessionSettings struct {
	MaxPerAccount int `mapstructure:"max_per_account"`
}

// ResetSettings configures password reset requests.
type ResetSettings struct {
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	RequestLimit  int           `mapstructure:"request_limit"`
	RequestWindow time.Duration `mapstructure:"request_window"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

type JWTSettings struct {
	KeyDirectory    string        `mapstructure:"key_directory"`
	SigningKid      string        `mapstructure:"signing_kid"`
	Issuer          string        `mapstructure:"issuer"`
	Audience        string        `mapstructure:"audience"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

// NotifySettings configures outbound email and SMS delivery.
type NotifySettings struct {
	Provider     string `mapstructure:"provider"`
	SESRegion    string `mapstructure:"ses_region"`
	EmailFrom    string `mapstructure:"email_from"`
	ResetBaseURL string `mapstructure:"reset_base_url"`
}

type TelemetrySettings struct {
	MetricsPort int `mapstructure:"metrics_port"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("AUTH")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.allowed_origins",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.key_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"jwt.key_directory",
		"jwt.signing_kid",
		"jwt.issuer",
		"jwt.audience",
		"jwt.access_token_ttl",
		"jwt.refresh_token_ttl",
		"rate_limit.ip_limit",
		"rate_limit.ip_window",
		"rate_limit.account_limit",
		"rate_limit.account_window",
		"lockout.threshold",
		"lockout.duration",
		"mfa.challenge_ttl",
		"mfa.max_attempts",
		"mfa.resend_cooldown",
		"mfa.resend_limit",
		"mfa.resend_window",
		"device.trust_ttl",
		"device.max_per_account",
		"session.max_per_account",
		"reset.token_ttl",
		"reset.request_limit",
		"reset.request_window",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
		"notify.provider",
		"notify.ses_region",
		"notify.email_from",
		"notify.reset_base_url",
		"telemetry.metrics_port",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "customer-auth")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.allowed_origins", []string{"*"})

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "auth")
	v.SetDefault("postgres.password", "auth_password")
	v.SetDefault("postgres.database", "auth")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.key_prefix", "auth")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "auth")
	v.SetDefault("kafka.async", true)

	v.SetDefault("jwt.key_directory", "./secrets")
	v.SetDefault("jwt.signing_kid", "")
	v.SetDefault("jwt.issuer", "customer-auth")
	v.SetDefault("jwt.audience", "meridian-commerce")
	v.SetDefault("jwt.access_token_ttl", "15m")
	v.SetDefault("jwt.refresh_token_ttl", "168h")

	v.SetDefault("rate_limit.ip_limit", 10)
	v.SetDefault("rate_limit.ip_window", "60s")
	v.SetDefault("rate_limit.account_limit", 5)
	v.SetDefault("rate_limit.account_window", "60s")

	v.SetDefault("lockout.threshold", 5)
	v.SetDefault("lockout.duration", "15m")

	v.SetDefault("mfa.challenge_ttl", "5m")
	v.SetDefault("mfa.max_attempts", 3)
	v.SetDefault("mfa.resend_cooldown", "60s")
	v.SetDefault("mfa.resend_limit", 3)
	v.SetDefault("mfa.resend_window", "1h")

	v.SetDefault("device.trust_ttl", "720h")
	v.SetDefault("device.max_per_account", 10)

	v.SetDefault("session.max_per_account", 5)

	v.SetDefault("reset.token_ttl", "1h")
	v.SetDefault("reset.request_limit", 3)
	v.SetDefault("reset.request_window", "1h")

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("notify.provider", "log")
	v.SetDefault("notify.ses_region", "us-east-1")
	v.SetDefault("notify.email_from", "no-reply@meridian-commerce.com")
	v.SetDefault("notify.reset_base_url", "https://www.meridian-commerce.com/password-reset")

	v.SetDefault("telemetry.metrics_port", 9090)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "AUTH_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
