package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Addr        string `mapstructure:"APP_ADDR"`
	Environment string `mapstructure:"APP_ENV"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`

	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	RunMigrations bool   `mapstructure:"RUN_MIGRATIONS"`
	MigrationsDir string `mapstructure:"MIGRATIONS_DIR"`

	JWTSecret string `mapstructure:"JWT_SECRET"`

	RedisURL     string        `mapstructure:"REDIS_URL"`
	RateCacheTTL time.Duration `mapstructure:"RATE_CACHE_TTL"`

	KafkaBrokers      string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopicPayroll string `mapstructure:"KAFKA_TOPIC_PAYROLL"`

	EmailEnabled bool   `mapstructure:"EMAIL_ENABLED"`
	EmailFrom    string `mapstructure:"EMAIL_FROM"`
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUser     string `mapstructure:"SMTP_USER"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`

	MaxBodyBytes       int64 `mapstructure:"MAX_BODY_BYTES"`
	RateLimitPerMinute int   `mapstructure:"RATE_LIMIT_PER_MINUTE"`
	MetricsEnabled     bool  `mapstructure:"METRICS_ENABLED"`

	IssuerName           string `mapstructure:"ISSUER_NAME"`
	IssuerRUT            string `mapstructure:"ISSUER_RUT"`
	IssuerAddress        string `mapstructure:"ISSUER_ADDRESS"`
	IssuerRepresentative string `mapstructure:"ISSUER_REPRESENTATIVE"`
}

var defaults = map[string]any{
	"APP_ADDR":              ":8080",
	"APP_ENV":               "development",
	"LOG_LEVEL":             "info",
	"DATABASE_URL":          "",
	"RUN_MIGRATIONS":        true,
	"MIGRATIONS_DIR":        "migrations",
	"JWT_SECRET":            "",
	"REDIS_URL":             "",
	"RATE_CACHE_TTL":        "24h",
	"KAFKA_BROKERS":         "",
	"KAFKA_TOPIC_PAYROLL":   "payroll.events",
	"EMAIL_ENABLED":         false,
	"EMAIL_FROM":            "no-reply@example.com",
	"SMTP_HOST":             "",
	"SMTP_PORT":             587,
	"SMTP_USER":             "",
	"SMTP_PASSWORD":         "",
	"MAX_BODY_BYTES":        1048576,
	"RATE_LIMIT_PER_MINUTE": 60,
	"METRICS_ENABLED":       true,
	"ISSUER_NAME":           "",
	"ISSUER_RUT":            "",
	"ISSUER_ADDRESS":        "",
	"ISSUER_REPRESENTATIVE": "",
}

// Load reads environment variables, with an optional .env file in the
// working directory for local development.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func (c Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Environment == "production" && strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET must be set to a strong value in production")
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.RateCacheTTL < 0 {
		return fmt.Errorf("RATE_CACHE_TTL must not be negative")
	}
	if c.EmailEnabled && c.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST must be set when EMAIL_ENABLED is true")
	}
	if len(c.Brokers()) > 0 && strings.TrimSpace(c.KafkaTopicPayroll) == "" {
		return fmt.Errorf("KAFKA_TOPIC_PAYROLL must be set when KAFKA_BROKERS is configured")
	}
	return nil
}
