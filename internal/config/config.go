package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type WorkerConfig struct {
	BaseURL         string        `yaml:"base_url"`
	CallbackURL     string        `yaml:"callback_url"`
	DispatchTimeout time.Duration `yaml:"dispatch_timeout"`
}

type QueueConfig struct {
	Capacity            int           `yaml:"capacity"`          // max concurrent jobs at the worker
	StaleAfter          time.Duration `yaml:"stale_after"`       // PROCESSING older than this is reclaimed
	Retention           time.Duration `yaml:"retention"`         // terminal jobs older than this are evicted
	StaleSweepEvery     time.Duration `yaml:"stale_sweep_every"` // internal janitor schedule
	RetentionSweepEvery time.Duration `yaml:"retention_sweep_every"`
}

type BillingConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
}

type AlertConfig struct {
	TelegramToken string `yaml:"telegram_token"`
	ChatID        int64  `yaml:"chat_id"`
}

type AdminConfig struct {
	JWTSecret  string        `yaml:"jwt_secret"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	Worker   WorkerConfig   `yaml:"worker"`
	Queue    QueueConfig    `yaml:"queue"`
	Billing  BillingConfig  `yaml:"billing"`
	Alert    AlertConfig    `yaml:"alert"`
	Admin    AdminConfig    `yaml:"admin"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Queue.Capacity <= 0 {
		cfg.Queue.Capacity = 5
	}
	if cfg.Queue.StaleAfter <= 0 {
		cfg.Queue.StaleAfter = 5 * time.Minute
	}
	if cfg.Queue.Retention <= 0 {
		cfg.Queue.Retention = 7 * 24 * time.Hour
	}
	if cfg.Queue.StaleSweepEvery <= 0 {
		cfg.Queue.StaleSweepEvery = 5 * time.Minute
	}
	if cfg.Queue.RetentionSweepEvery <= 0 {
		cfg.Queue.RetentionSweepEvery = 24 * time.Hour
	}
	if cfg.Worker.DispatchTimeout <= 0 {
		cfg.Worker.DispatchTimeout = 10 * time.Second
	}
	if cfg.Admin.SessionTTL <= 0 {
		cfg.Admin.SessionTTL = 30 * time.Minute
	}

	// Minimal validation
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Worker.BaseURL == "" {
		return nil, errors.New("worker.base_url is required")
	}
	if cfg.Worker.CallbackURL == "" {
		return nil, errors.New("worker.callback_url is required")
	}
	if cfg.Admin.JWTSecret == "" && !dev {
		return nil, errors.New("admin.jwt_secret is required outside dev mode")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
