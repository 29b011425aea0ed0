package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"CDPRadar/internal/model"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	DataSource struct {
		Provider     string        `yaml:"provider" default:"yahoo" validate:"oneof=yahoo twse mock"`
		SymbolSuffix string        `yaml:"symbol_suffix" default:".TW"`
		LookbackDays int           `yaml:"lookback_days" default:"10" validate:"gte=2,lte=365"`
		Concurrency  int           `yaml:"concurrency" default:"8" validate:"gte=1,lte=64"`
		Timeout      time.Duration `yaml:"timeout" default:"30s"`
	} `yaml:"data_source"`
	Watchlist model.Watchlist `yaml:"watchlist" validate:"dive"`
	Scan      struct {
		MinVolume        int64   `yaml:"min_volume" validate:"gte=0"`
		MinChangePercent float64 `yaml:"min_change_percent"`
		MaxPrice         float64 `yaml:"max_price" validate:"gte=0"`
		TopN             int     `yaml:"top_n" default:"20" validate:"gte=1,lte=500"`
		SortBy           string  `yaml:"sort_by" default:"change_percent" validate:"oneof=change_percent volume turnover"`
		Basis            string  `yaml:"basis" default:"session" validate:"oneof=latest prior session"`
	} `yaml:"scan"`
	Schedule struct {
		ScanCron string `yaml:"scan_cron" default:"0 40 13 * * 1-5"`
		Timezone string `yaml:"timezone" default:"Asia/Taipei"`
	} `yaml:"schedule"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Cache struct {
		TTL   time.Duration `yaml:"ttl" default:"10m"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix" default:"cdpradar"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Server struct {
		Disabled bool   `yaml:"disabled"`
		Host     string `yaml:"host" default:"0.0.0.0"`
		Port     int    `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=console json"`
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

var validate = validator.New()

// Load reads config from a YAML file, applies environment variable overrides,
// then fills defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("DATA_PROVIDER"); v != "" {
		cfg.DataSource.Provider = v
	}
	if v := os.Getenv("CRON_SCAN"); v != "" {
		cfg.Schedule.ScanCron = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Cache.Redis.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if len(c.Watchlist) == 0 {
		return fmt.Errorf("watchlist must list at least one instrument")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone: %w", err)
	}
	return nil
}

// Location returns the configured market timezone, or UTC if it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Criterion returns the configured scan filter.
func (c *Config) Criterion() model.ScanCriterion {
	return model.ScanCriterion{
		MinVolume:        c.Scan.MinVolume,
		MinChangePercent: c.Scan.MinChangePercent,
		MaxPrice:         c.Scan.MaxPrice,
	}
}

// TelegramEnabled reports whether bot credentials are configured.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}
