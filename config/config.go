package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Tokenflow  TokenflowConfig  `yaml:"tokenflow"`
	Feed       FeedConfig       `yaml:"feed"`
	Hub        HubConfig        `yaml:"hub"`
	Automation AutomationConfig `yaml:"automation"`
	Accounts   AccountsConfig   `yaml:"accounts"`
	Database   DatabaseConfig   `yaml:"database"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type TokenflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type FeedConfig struct {
	URL               string        `yaml:"url"`
	DevURL            string        `yaml:"dev_url"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	DialTimeout       time.Duration `yaml:"dial_timeout"`
}

type HubConfig struct {
	Address          string        `yaml:"address"`
	SubscriberBuffer int           `yaml:"subscriber_buffer"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
}

type AutomationConfig struct {
	MaxTokensPerRule int           `yaml:"max_tokens_per_rule"`
	DispatchTimeout  time.Duration `yaml:"dispatch_timeout"`
	OrdersPerSecond  int           `yaml:"orders_per_second"`
	OrderBurst       int           `yaml:"order_burst"`
}

type AccountsConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
	DSN      string `yaml:"dsn"`
}

type ArchiveConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Bucket          string        `yaml:"bucket"`
	Region          string        `yaml:"region"`
	Prefix          string        `yaml:"prefix"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
}

type LoggingConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	Output        string `yaml:"output"`
	MaxAge        int    `yaml:"max_age"`
	DashboardName string `yaml:"dashboard_name"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Feed: FeedConfig{
			ReconnectInterval: 5 * time.Second,
			DialTimeout:       10 * time.Second,
		},
		Hub: HubConfig{
			SubscriberBuffer: 64,
			WriteTimeout:     5 * time.Second,
		},
		Automation: AutomationConfig{
			MaxTokensPerRule: 2,
			DispatchTimeout:  10 * time.Second,
			OrdersPerSecond:  5,
			OrderBurst:       2,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment overrides. The feed URL switches to the development
	// endpoint when running in a development environment.
	if AppEnvironment() == environmentDevelopment && config.Feed.DevURL != "" {
		config.Feed.URL = config.Feed.DevURL
	}
	if v := os.Getenv("FEED_WS_URL"); v != "" {
		config.Feed.URL = strings.TrimSpace(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		config.Database.DSN = strings.TrimSpace(v)
	}
	if v := os.Getenv("TRADE_API_URL"); v != "" {
		config.Accounts.BaseURL = strings.TrimSpace(v)
	}
	if config.Archive.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Archive.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Archive.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Archive.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Archive.Bucket = strings.TrimSpace(v)
		}
	}

	config.Archive.Bucket = strings.TrimSpace(config.Archive.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	// Production-like deployments must not carry the feed over plaintext.
	if env := AppEnvironment(); IsProductionLike(env) && !strings.HasPrefix(config.Feed.URL, "wss://") {
		return nil, fmt.Errorf("feed.url '%s' must use wss:// in the %s environment", config.Feed.URL, env)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Tokenflow.Name == "" {
		return fmt.Errorf("tokenflow.name is required")
	}

	if cfg.Tokenflow.Version == "" {
		return fmt.Errorf("tokenflow.version is required")
	}

	if cfg.Feed.URL == "" {
		return fmt.Errorf("feed.url is required")
	}
	if !strings.HasPrefix(cfg.Feed.URL, "ws://") && !strings.HasPrefix(cfg.Feed.URL, "wss://") {
		return fmt.Errorf("feed.url '%s' must use a ws:// or wss:// scheme", cfg.Feed.URL)
	}
	if cfg.Feed.ReconnectInterval <= 0 {
		return fmt.Errorf("feed.reconnect_interval must be greater than 0")
	}

	if cfg.Hub.Address == "" {
		return fmt.Errorf("hub.address is required")
	}
	if cfg.Hub.SubscriberBuffer <= 0 {
		return fmt.Errorf("hub.subscriber_buffer must be greater than 0")
	}

	if cfg.Automation.MaxTokensPerRule <= 0 {
		return fmt.Errorf("automation.max_tokens_per_rule must be greater than 0")
	}
	if cfg.Automation.DispatchTimeout <= 0 {
		return fmt.Errorf("automation.dispatch_timeout must be greater than 0")
	}

	if cfg.Accounts.BaseURL == "" {
		return fmt.Errorf("accounts.base_url is required")
	}

	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return fmt.Errorf("database.dsn or database.host is required")
	}

	if cfg.Archive.Enabled {
		if cfg.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required when the archive is enabled")
		}
		if cfg.Archive.Region == "" {
			return fmt.Errorf("archive.region is required when the archive is enabled")
		}
		if cfg.Archive.FlushInterval <= 0 {
			return fmt.Errorf("archive.flush_interval must be greater than 0")
		}
	}

	return nil
}
