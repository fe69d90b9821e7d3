package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const defaultJWTSecret = "change-me-in-production"

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	App       AppConfig
	Billing   BillingConfig
	Email     EmailConfig
	Storage   StorageConfig
	Signature SignatureConfig
	Worker    WorkerConfig
}

type ServerConfig struct {
	Host     string
	Port     int
	Env      string
	LogLevel string
}

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	Name        string
	SSLMode     string
	AutoMigrate bool

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	SlowQuery       time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type JWTConfig struct {
	Secret      string
	Issuer      string
	Audience    string
	ExpiryHours int
}

type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
	// AuthRequests and AuthWindowSeconds bound the magic-link endpoints per client.
	AuthRequests      int
	AuthWindowSeconds int
}

type AppConfig struct {
	FrontendURL            string
	MagicLinkExpiryMinutes int
	InvitationExpiryDays   int
	TrialDealLimit         int
}

type BillingConfig struct {
	SecretKey      string
	WebhookSecret  string
	MonthlyPriceID string
	YearlyPriceID  string
	SeatPriceID    string
	SeatUnitPrice  float64
	BaseURL        string
}

type EmailConfig struct {
	Provider           string // ses or log
	From               string
	SESRegion          string
	SESEndpoint        string
	SESAccessKeyID     string
	SESSecretAccessKey string
	Async              bool
}

// WorkerConfig drives cmd/worker, which drains the email queue.
type WorkerConfig struct {
	Concurrency int
	MetricsAddr string
}

type StorageConfig struct {
	Driver          string // local or s3
	LocalPath       string
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	EncryptionKey   string
	MaxUploadBytes  int64

	// RetiredEncryptionKeys still open documents sealed before a key rotation.
	RetiredEncryptionKeys []string
}

type SignatureConfig struct {
	APIKey  string
	BaseURL string
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (j *JWTConfig) Expiry() time.Duration {
	return time.Duration(j.ExpiryHours) * time.Hour
}

func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

func (a *AppConfig) MagicLinkExpiry() time.Duration {
	return time.Duration(a.MagicLinkExpiryMinutes) * time.Minute
}

func (a *AppConfig) InvitationExpiry() time.Duration {
	return time.Duration(a.InvitationExpiryDays) * 24 * time.Hour
}

// Enabled reports whether seat billing talks to the provider at all.
func (b *BillingConfig) Enabled() bool {
	return b.SecretKey != "" && b.SeatPriceID != ""
}

func (s *SignatureConfig) Enabled() bool {
	return s.APIKey != ""
}

// Validate enforces the settings production cannot start without.
func (c *Config) Validate() error {
	var errs []error

	if !c.Server.IsDevelopment() {
		if c.JWT.Secret == "" || c.JWT.Secret == defaultJWTSecret {
			errs = append(errs, errors.New("JWT_SECRET must be set"))
		} else if len(c.JWT.Secret) < 32 {
			errs = append(errs, errors.New("JWT_SECRET must be at least 32 bytes"))
		}
		if c.App.FrontendURL == "" {
			errs = append(errs, errors.New("FRONTEND_URL must be set"))
		}
	}
	if c.Billing.SecretKey != "" && c.Billing.WebhookSecret == "" {
		errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set"))
	}
	switch c.Storage.Driver {
	case "local", "s3":
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver))
	}
	if c.Storage.Driver == "s3" && c.Storage.Bucket == "" {
		errs = append(errs, errors.New("STORAGE_BUCKET is required for the s3 driver"))
	}
	if c.Database.MaxOpenConns > 0 && c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		errs = append(errs, errors.New("DATABASE_MAX_IDLE_CONNS cannot exceed DATABASE_MAX_OPEN_CONNS"))
	}
	if len(c.Storage.RetiredEncryptionKeys) > 0 && c.Storage.EncryptionKey == "" {
		errs = append(errs, errors.New("STORAGE_RETIRED_ENCRYPTION_KEYS requires STORAGE_ENCRYPTION_KEY"))
	}

	return errors.Join(errs...)
}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("LOG_LEVEL", "")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "estateflow")
	v.SetDefault("DATABASE_PASSWORD", "estateflow_dev_password")
	v.SetDefault("DATABASE_NAME", "estateflow")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_AUTO_MIGRATE", true)
	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 25)
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 10)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME_MINUTES", 30)
	v.SetDefault("DATABASE_SLOW_QUERY_MS", 200)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("JWT_ISSUER", "estateflow")
	v.SetDefault("JWT_AUDIENCE", "estateflow")
	v.SetDefault("JWT_EXPIRY_HOURS", 24)
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	v.SetDefault("AUTH_RATE_LIMIT_REQUESTS", 5)
	v.SetDefault("AUTH_RATE_LIMIT_WINDOW_SECONDS", 60)
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")
	v.SetDefault("MAGIC_LINK_EXPIRY_MINUTES", 15)
	v.SetDefault("INVITATION_EXPIRY_DAYS", 7)
	v.SetDefault("TRIAL_DEAL_LIMIT", 1)
	v.SetDefault("STRIPE_SEAT_UNIT_PRICE", 10)
	v.SetDefault("STRIPE_API_BASE_URL", "https://api.stripe.com")
	v.SetDefault("EMAIL_PROVIDER", "log")
	v.SetDefault("EMAIL_FROM", "EstateFlow <noreply@estateflow.app>")
	v.SetDefault("EMAIL_ASYNC", false)
	v.SetDefault("WORKER_CONCURRENCY", 10)
	v.SetDefault("WORKER_METRICS_ADDR", ":9091")
	v.SetDefault("SES_REGION", "eu-west-1")
	v.SetDefault("STORAGE_DRIVER", "local")
	v.SetDefault("STORAGE_LOCAL_PATH", "uploads")
	v.SetDefault("STORAGE_REGION", "eu-west-1")
	v.SetDefault("STORAGE_MAX_UPLOAD_BYTES", 10*1024*1024)
	v.SetDefault("YOUSIGN_BASE_URL", "https://api-sandbox.yousign.app/v3")

	// Load from .env file if present
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		Server: ServerConfig{
			Host:     v.GetString("SERVER_HOST"),
			Port:     v.GetInt("SERVER_PORT"),
			Env:      v.GetString("SERVER_ENV"),
			LogLevel: v.GetString("LOG_LEVEL"),
		},
		Database: DatabaseConfig{
			Host:        v.GetString("DATABASE_HOST"),
			Port:        v.GetInt("DATABASE_PORT"),
			User:        v.GetString("DATABASE_USER"),
			Password:    v.GetString("DATABASE_PASSWORD"),
			Name:        v.GetString("DATABASE_NAME"),
			SSLMode:     v.GetString("DATABASE_SSLMODE"),
			AutoMigrate: v.GetBool("DATABASE_AUTO_MIGRATE"),

			MaxOpenConns:    v.GetInt("DATABASE_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DATABASE_MAX_IDLE_CONNS"),
			ConnMaxLifetime: time.Duration(v.GetInt("DATABASE_CONN_MAX_LIFETIME_MINUTES")) * time.Minute,
			SlowQuery:       time.Duration(v.GetInt("DATABASE_SLOW_QUERY_MS")) * time.Millisecond,
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
		},
		JWT: JWTConfig{
			Secret:      v.GetString("JWT_SECRET"),
			Issuer:      v.GetString("JWT_ISSUER"),
			Audience:    v.GetString("JWT_AUDIENCE"),
			ExpiryHours: v.GetInt("JWT_EXPIRY_HOURS"),
		},
		RateLimit: RateLimitConfig{
			Requests:          v.GetInt("RATE_LIMIT_REQUESTS"),
			WindowSeconds:     v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
			AuthRequests:      v.GetInt("AUTH_RATE_LIMIT_REQUESTS"),
			AuthWindowSeconds: v.GetInt("AUTH_RATE_LIMIT_WINDOW_SECONDS"),
		},
		App: AppConfig{
			FrontendURL:            strings.TrimRight(v.GetString("FRONTEND_URL"), "/"),
			MagicLinkExpiryMinutes: v.GetInt("MAGIC_LINK_EXPIRY_MINUTES"),
			InvitationExpiryDays:   v.GetInt("INVITATION_EXPIRY_DAYS"),
			TrialDealLimit:         v.GetInt("TRIAL_DEAL_LIMIT"),
		},
		Billing: BillingConfig{
			SecretKey:      v.GetString("STRIPE_SECRET_KEY"),
			WebhookSecret:  v.GetString("STRIPE_WEBHOOK_SECRET"),
			MonthlyPriceID: v.GetString("STRIPE_PRICE_MONTHLY"),
			YearlyPriceID:  v.GetString("STRIPE_PRICE_YEARLY"),
			SeatPriceID:    v.GetString("STRIPE_PRICE_SEAT"),
			SeatUnitPrice:  v.GetFloat64("STRIPE_SEAT_UNIT_PRICE"),
			BaseURL:        v.GetString("STRIPE_API_BASE_URL"),
		},
		Email: EmailConfig{
			Provider:           v.GetString("EMAIL_PROVIDER"),
			From:               v.GetString("EMAIL_FROM"),
			SESRegion:          v.GetString("SES_REGION"),
			SESEndpoint:        v.GetString("SES_ENDPOINT"),
			SESAccessKeyID:     v.GetString("SES_ACCESS_KEY_ID"),
			SESSecretAccessKey: v.GetString("SES_SECRET_ACCESS_KEY"),
			Async:              v.GetBool("EMAIL_ASYNC"),
		},
		Storage: StorageConfig{
			Driver:                v.GetString("STORAGE_DRIVER"),
			LocalPath:             v.GetString("STORAGE_LOCAL_PATH"),
			Bucket:                v.GetString("STORAGE_BUCKET"),
			Endpoint:              v.GetString("STORAGE_ENDPOINT"),
			Region:                v.GetString("STORAGE_REGION"),
			AccessKeyID:           v.GetString("STORAGE_ACCESS_KEY_ID"),
			SecretAccessKey:       v.GetString("STORAGE_SECRET_ACCESS_KEY"),
			EncryptionKey:         v.GetString("STORAGE_ENCRYPTION_KEY"),
			RetiredEncryptionKeys: splitList(v.GetString("STORAGE_RETIRED_ENCRYPTION_KEYS")),
			MaxUploadBytes:        v.GetInt64("STORAGE_MAX_UPLOAD_BYTES"),
		},
		Signature: SignatureConfig{
			APIKey:  v.GetString("YOUSIGN_API_KEY"),
			BaseURL: strings.TrimRight(v.GetString("YOUSIGN_BASE_URL"), "/"),
		},
		Worker: WorkerConfig{
			Concurrency: v.GetInt("WORKER_CONCURRENCY"),
			MetricsAddr: v.GetString("WORKER_METRICS_ADDR"),
		},
	}

	return cfg, nil
}

// splitList parses a comma separated env value, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
