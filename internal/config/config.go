// Package config provides configuration management for the application.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	GitHub   GitHubConfig   `mapstructure:"github"`
	Discord  DiscordConfig  `mapstructure:"discord"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
}

// GitHubConfig holds GitHub API configuration.
type GitHubConfig struct {
	Token string   `mapstructure:"token"`
	Org   string   `mapstructure:"org"`
	Repos []string `mapstructure:"repos"` // Optional; empty means discover all org repos
}

// DiscordConfig holds Discord API configuration.
type DiscordConfig struct {
	Token   string `mapstructure:"token"`
	GuildID string `mapstructure:"guild_id"`
}

// PipelineConfig holds tunables for a single pipeline run.
type PipelineConfig struct {
	Workers          int `mapstructure:"workers"`            // Concurrent repository fetches
	FetchTimeoutSec  int `mapstructure:"fetch_timeout_sec"`  // Per external call
	RateWaitBudget   int `mapstructure:"rate_wait_budget"`   // Max seconds spent waiting on rate limits per repo
	LockTTLSec       int `mapstructure:"lock_ttl_sec"`       // Run lock lease duration
	RoleCallsPerSec  int `mapstructure:"role_calls_per_sec"` // Discord role mutation budget
	RoleCallBurst    int `mapstructure:"role_call_burst"`
	CommitLookbackMo int `mapstructure:"commit_lookback_months"` // 0 means full history
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.path", "./data/disgitbot.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("github.org", "ruxailab")
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.fetch_timeout_sec", 30)
	v.SetDefault("pipeline.rate_wait_budget", 120)
	v.SetDefault("pipeline.lock_ttl_sec", 1800)
	v.SetDefault("pipeline.role_calls_per_sec", 2)
	v.SetDefault("pipeline.role_call_burst", 5)
	v.SetDefault("pipeline.commit_lookback_months", 0)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("DISGIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks if all required configuration fields are set.
func (c *Config) Validate() error {
	if c.GitHub.Token == "" {
		return fmt.Errorf("github token is required")
	}
	if c.GitHub.Org == "" {
		return fmt.Errorf("github org is required")
	}
	if c.Discord.Token == "" {
		return fmt.Errorf("discord token is required")
	}
	if c.Discord.GuildID == "" {
		return fmt.Errorf("discord guild_id is required")
	}
	return nil
}

// ServerAddress returns the full server address.
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// FetchTimeout returns the per-call timeout as a duration.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Pipeline.FetchTimeoutSec) * time.Second
}

// RateWaitBudget returns the per-repository rate-limit wait budget.
func (c *Config) RateWaitBudget() time.Duration {
	return time.Duration(c.Pipeline.RateWaitBudget) * time.Second
}

// LockTTL returns the run-lock lease duration.
func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.Pipeline.LockTTLSec) * time.Second
}
