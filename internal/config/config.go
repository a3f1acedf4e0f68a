package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Redis     RedisConfig     `yaml:"redis"`
	Loyalty   LoyaltyConfig   `yaml:"loyalty"`
	Outbox    OutboxConfig    `yaml:"outbox"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Inbox     InboxConfig     `yaml:"inbox"`
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type DatabaseConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	Database    string `yaml:"database"`
	SSLMode     string `yaml:"sslmode"`
	MaxConns    int32  `yaml:"max_conns"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

type RabbitMQConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	VHost    string `yaml:"vhost"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type LoyaltyConfig struct {
	// PointsPerCurrencyUnit is earned per whole currency unit spent.
	PointsPerCurrencyUnit string        `yaml:"points_per_currency_unit"`
	PointValue            string        `yaml:"point_value"`
	IdempotencyTTL        time.Duration `yaml:"idempotency_ttl"`
	// IdempotencyLease bounds how long an unfinished redemption holds its key.
	IdempotencyLease      time.Duration `yaml:"idempotency_lease"`
}

type OutboxConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
	MaxAttempts  int           `yaml:"max_attempts"`
	Lease        time.Duration `yaml:"lease"`
	MaxBackoff   time.Duration `yaml:"max_backoff"`
}

type CatalogConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	Environment string `yaml:"environment"`
}

type InboxConfig struct {
	Path       string `yaml:"path"`
	BindingKey string `yaml:"binding_key"`
}

// Default returns the configuration used for anything config.yaml leaves out.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:           3000,
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
			IdleTimeout:    60 * time.Second,
			RequestTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Database: "tablehub",
			SSLMode:  "disable",
			MaxConns: 10,
		},
		RabbitMQ: RabbitMQConfig{
			Host:  "localhost",
			Port:  5672,
			User:  "guest",
			VHost: "/",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Loyalty: LoyaltyConfig{
			PointsPerCurrencyUnit: "1",
			PointValue:            "0.10",
			IdempotencyTTL:        24 * time.Hour,
			IdempotencyLease:      30 * time.Second,
		},
		Outbox: OutboxConfig{
			PollInterval: 2 * time.Second,
			BatchSize:    50,
			MaxAttempts:  10,
			Lease:        30 * time.Second,
			MaxBackoff:   5 * time.Minute,
		},
		Catalog: CatalogConfig{
			CacheTTL: 5 * time.Minute,
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4317",
			Environment: "local",
		},
		Inbox: InboxConfig{
			Path:       "broadcast_inbox.db",
			BindingKey: "#.orders",
		},
	}
}

// Load reads a yaml file on top of the defaults. ${VAR} references are
// expanded from the environment, which is first populated from .env when
// that file exists.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port %d is out of range", c.HTTP.Port))
	}
	if c.Database.Host == "" || c.Database.Database == "" {
		errs = append(errs, errors.New("database.host and database.database are required"))
	}
	if _, err := c.Loyalty.PointsRate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Loyalty.PointValueCents(); err != nil {
		errs = append(errs, err)
	}
	if c.Loyalty.IdempotencyLease <= 0 || c.Loyalty.IdempotencyLease > c.Loyalty.IdempotencyTTL {
		errs = append(errs, errors.New("loyalty.idempotency_lease must be positive and no longer than idempotency_ttl"))
	}
	if c.Outbox.BatchSize < 1 {
		errs = append(errs, errors.New("outbox.batch_size must be positive"))
	}
	if c.Outbox.MaxAttempts < 1 {
		errs = append(errs, errors.New("outbox.max_attempts must be positive"))
	}
	if c.Outbox.PollInterval <= 0 {
		errs = append(errs, errors.New("outbox.poll_interval must be positive"))
	}

	return errors.Join(errs...)
}

func (l LoyaltyConfig) PointsRate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(l.PointsPerCurrencyUnit)
	if err != nil {
		return decimal.Zero, fmt.Errorf("loyalty.points_per_currency_unit: %w", err)
	}
	if rate.IsNegative() {
		return decimal.Zero, errors.New("loyalty.points_per_currency_unit must not be negative")
	}
	return rate, nil
}

// PointValueCents is the value of one point in cents.
func (l LoyaltyConfig) PointValueCents() (int64, error) {
	value, err := decimal.NewFromString(l.PointValue)
	if err != nil {
		return 0, fmt.Errorf("loyalty.point_value: %w", err)
	}
	cents := value.Shift(2)
	if !cents.IsInteger() || !cents.IsPositive() {
		return 0, errors.New("loyalty.point_value must be a positive whole number of cents")
	}
	return cents.IntPart(), nil
}
