// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// WebhookConfig holds one secret per provider. A provider without a secret is not mounted.
type WebhookConfig struct {
	PolarSecret string        `yaml:"polar_secret"`
	ClerkSecret string        `yaml:"clerk_secret"`
	DodoSecret  string        `yaml:"dodo_secret"`
	DodoMode    string        `yaml:"dodo_mode"` // signature | shared_secret
	Tolerance   time.Duration `yaml:"tolerance"`
	ReplayTTL   time.Duration `yaml:"replay_ttl"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
	Audience  string `yaml:"audience"`
	RateLimit int    `yaml:"rate_limit"` // requests per user per minute, 0 disables
}

type SchedulerConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
	SweepBatch    int           `yaml:"sweep_batch"`
	LockTTL       time.Duration `yaml:"lock_ttl"`
}

type NotifyConfig struct {
	TelegramToken string  `yaml:"telegram_token"`
	AdminChatIDs  []int64 `yaml:"admin_chat_ids"`
	Workers       int     `yaml:"workers"`
	QueueSize     int     `yaml:"queue_size"`
}

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Webhooks  WebhookConfig   `yaml:"webhooks"`
	Auth      AuthConfig      `yaml:"auth"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Notify    NotifyConfig    `yaml:"notify"`

	Runtime RuntimeConfig `yaml:"-"`
}

// secrets read from the environment after the yaml file; set values win
type envOverrides struct {
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RedisURL      string `envconfig:"REDIS_URL"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	PolarSecret   string `envconfig:"POLAR_WEBHOOK_SECRET"`
	ClerkSecret   string `envconfig:"CLERK_WEBHOOK_SECRET"`
	DodoSecret    string `envconfig:"DODO_WEBHOOK_SECRET"`
	JWTSecret     string `envconfig:"AUTH_JWT_SECRET"`
	TelegramToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	HTTPAddr      string `envconfig:"HTTP_ADDR"`
}

// LoadConfig parses -config and -dev and loads the file at that path.
func LoadConfig() (*Config, error) {
	var configPath string
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()
	return Load(configPath, dev)
}

// Load reads path (a missing file is allowed when the environment supplies the
// required values), applies environment overrides, defaults, and validation.
func Load(path string, dev bool) (*Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, fmt.Errorf("env config: %w", err)
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return err
	}
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Database.URL, env.DatabaseURL)
	set(&cfg.Redis.URL, env.RedisURL)
	set(&cfg.Redis.Password, env.RedisPassword)
	set(&cfg.Webhooks.PolarSecret, env.PolarSecret)
	set(&cfg.Webhooks.ClerkSecret, env.ClerkSecret)
	set(&cfg.Webhooks.DodoSecret, env.DodoSecret)
	set(&cfg.Auth.JWTSecret, env.JWTSecret)
	set(&cfg.Notify.TelegramToken, env.TelegramToken)
	set(&cfg.HTTP.Addr, env.HTTPAddr)
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.ReadTimeout <= 0 {
		cfg.HTTP.ReadTimeout = 10 * time.Second
	}
	if cfg.HTTP.WriteTimeout <= 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 10 * time.Second
	}
	if cfg.HTTP.MaxBodyBytes <= 0 {
		cfg.HTTP.MaxBodyBytes = 1 << 20
	}
	if cfg.HTTP.ShutdownTimeout <= 0 {
		cfg.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.Webhooks.DodoMode == "" {
		cfg.Webhooks.DodoMode = "signature"
	}
	if cfg.Webhooks.Tolerance <= 0 {
		cfg.Webhooks.Tolerance = 5 * time.Minute
	}
	if cfg.Webhooks.ReplayTTL <= 0 {
		cfg.Webhooks.ReplayTTL = 72 * time.Hour
	}
	if cfg.Scheduler.SweepInterval <= 0 {
		cfg.Scheduler.SweepInterval = 15 * time.Minute
	}
	if cfg.Scheduler.SweepBatch <= 0 {
		cfg.Scheduler.SweepBatch = 200
	}
	if cfg.Scheduler.LockTTL <= 0 {
		cfg.Scheduler.LockTTL = 2 * time.Minute
	}
	if cfg.Notify.Workers <= 0 {
		cfg.Notify.Workers = 2
	}
	if cfg.Notify.QueueSize <= 0 {
		cfg.Notify.QueueSize = 64
	}
}

// Validate performs the minimal checks needed to start serving.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if c.Webhooks.PolarSecret == "" && c.Webhooks.DodoSecret == "" && c.Webhooks.ClerkSecret == "" {
		return errors.New("at least one webhook secret is required")
	}
	switch c.Webhooks.DodoMode {
	case "signature", "shared_secret":
	default:
		return fmt.Errorf("webhooks.dodo_mode: unsupported value %q", c.Webhooks.DodoMode)
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
