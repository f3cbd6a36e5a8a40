package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Occasional   OccasionalConfig   `yaml:"occasional"`
	Payment      PaymentConfig      `yaml:"payment"`
	Notification NotificationConfig `yaml:"notification"`
	Settlement   SettlementConfig   `yaml:"settlement"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	CacheTTLSeconds int           `yaml:"cache_ttl_seconds"`
	CacheTTL        time.Duration `yaml:"-"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                  string `yaml:"driver"`
	DSN                     string `yaml:"dsn"`
	MaxOpenConns            int    `yaml:"max_open_conns"`
	MaxIdleConns            int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes  int    `yaml:"conn_max_lifetime_minutes"`
	EnableOverlapConstraint bool   `yaml:"enable_overlap_constraint"`
	Debug                   bool   `yaml:"debug"`
}

// OccasionalConfig holds the rules for pay-per-stay tickets.
type OccasionalConfig struct {
	GracePeriodMinutes int           `yaml:"grace_period_minutes"`
	GracePeriod        time.Duration `yaml:"-"`
}

// PaymentConfig selects and configures the payment provider.
type PaymentConfig struct {
	Provider        string `yaml:"provider"` // "approve" or "stripe"
	StripeSecretKey string `yaml:"stripe_secret_key"`
	Currency        string `yaml:"currency"`
	PaymentMethod   string `yaml:"payment_method"`
}

// NotificationConfig holds the receipt mailer configuration.
type NotificationConfig struct {
	Enabled        bool   `yaml:"enabled"`
	SendGridAPIKey string `yaml:"sendgrid_api_key"`
	FromEmail      string `yaml:"from_email"`
	FromName       string `yaml:"from_name"`
	WorkerPoolSize int    `yaml:"worker_pool_size"`
}

// SettlementConfig holds the payment settlement sweep configuration.
type SettlementConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Schedule  string `yaml:"schedule"`
	BatchSize int    `yaml:"batch_size"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 30
	}
	cfg.Server.CacheTTL = time.Duration(cfg.Server.CacheTTLSeconds) * time.Second

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Occasional.GracePeriodMinutes <= 0 {
		cfg.Occasional.GracePeriodMinutes = 15
	}
	cfg.Occasional.GracePeriod = time.Duration(cfg.Occasional.GracePeriodMinutes) * time.Minute

	if cfg.Payment.Provider == "" {
		cfg.Payment.Provider = "approve"
	}
	if cfg.Payment.Currency == "" {
		cfg.Payment.Currency = "eur"
	}

	if cfg.Notification.FromName == "" {
		cfg.Notification.FromName = "Parking"
	}
	if cfg.Notification.WorkerPoolSize <= 0 {
		log.Printf("notification.worker_pool_size is not set or invalid; defaulting to 1")
		cfg.Notification.WorkerPoolSize = 1
	}

	if cfg.Settlement.Schedule == "" {
		cfg.Settlement.Schedule = "@every 1m"
	}
	if cfg.Settlement.BatchSize <= 0 {
		cfg.Settlement.BatchSize = 100
	}
}

// applyEnv lets secrets come from the environment instead of the file.
func (cfg *Config) applyEnv() {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("STRIPE_SECRET_KEY"); v != "" {
		cfg.Payment.StripeSecretKey = v
	}
	if v := os.Getenv("SENDGRID_API_KEY"); v != "" {
		cfg.Notification.SendGridAPIKey = v
	}
}
