package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the bootstrap configuration read at startup. Runtime settings
// (routes, roles, provider choice) live in the state file instead.
type Config struct {
	LogLevel          string                  `yaml:"log_level"`
	Discord           DiscordConfig           `yaml:"discord"`
	Dashboard         DashboardConfig         `yaml:"dashboard"`
	State             StateConfig             `yaml:"state"`
	Cache             CacheConfig             `yaml:"cache"`
	Archive           ArchiveConfig           `yaml:"archive"`
	ObservabilityHTTP ObservabilityHTTPConfig `yaml:"observability_http"`
	HealthCheck       HealthCheckConfig       `yaml:"health_check"`
}

type DiscordConfig struct {
	Token            string `yaml:"token"`
	CommandPrefix    string `yaml:"command_prefix"`
	RegisterCommands bool   `yaml:"register_commands"`
	GuildID          string `yaml:"guild_id"` // register slash commands in one guild only
}

type DashboardConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	APIKey  string `yaml:"api_key"`
}

type StateConfig struct {
	Path       string `yaml:"path"`
	FlushDelay int    `yaml:"flush_delay"` // milliseconds
}

type CacheConfig struct {
	DirectoryTTL int `yaml:"directory_ttl"` // seconds
	StatsTTL     int `yaml:"stats_ttl"`     // seconds
}

type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type ObservabilityHTTPConfig struct {
	Addr    string `yaml:"addr"`
	Metrics bool   `yaml:"metrics"`
	Pprof   bool   `yaml:"pprof"`
}

type HealthCheckConfig struct {
	Enabled  bool `yaml:"enabled"`
	Interval int  `yaml:"interval"` // seconds
}

// Defaults.
const (
	DefaultCommandPrefix = "$"
	DefaultListen        = ":3553"
	DefaultStatePath     = "config.json"
	DefaultFlushDelay    = 2000
	DefaultDirectoryTTL  = 60
	DefaultStatsTTL      = 5
	DefaultArchivePath   = "relay.db"
	DefaultCheckInterval = 60
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{
		LogLevel:    "info",
		Discord:     DiscordConfig{RegisterCommands: true},
		Dashboard:   DashboardConfig{Enabled: true},
		HealthCheck: HealthCheckConfig{Enabled: true},
	}
	cfg.applyDefaults()
	return cfg
}

// Load reads the config at path and applies defaults. A missing file yields
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Discord.CommandPrefix == "" {
		c.Discord.CommandPrefix = DefaultCommandPrefix
	}
	if c.Dashboard.Listen == "" {
		c.Dashboard.Listen = DefaultListen
	}
	if c.State.Path == "" {
		c.State.Path = DefaultStatePath
	}
	if c.State.FlushDelay <= 0 {
		c.State.FlushDelay = DefaultFlushDelay
	}
	if c.Cache.DirectoryTTL <= 0 {
		c.Cache.DirectoryTTL = DefaultDirectoryTTL
	}
	if c.Cache.StatsTTL <= 0 {
		c.Cache.StatsTTL = DefaultStatsTTL
	}
	if c.Archive.Path == "" {
		c.Archive.Path = DefaultArchivePath
	}
	if c.HealthCheck.Interval <= 0 {
		c.HealthCheck.Interval = DefaultCheckInterval
	}
}

// Validate reports settings the relay cannot start without.
func (c *Config) Validate() error {
	if c.Discord.Token == "" {
		return errors.New("discord.token is required (or set DISCORD_TOKEN)")
	}
	if strings.ContainsAny(c.Discord.CommandPrefix, " \t\n") {
		return fmt.Errorf("discord.command_prefix %q must not contain whitespace", c.Discord.CommandPrefix)
	}
	return nil
}

// Save writes the config as yaml, creating the parent directory.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	// The file may carry the bot token.
	return os.WriteFile(path, data, 0o600)
}

func (c *Config) ParseLogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c StateConfig) FlushDelayDuration() time.Duration {
	return time.Duration(c.FlushDelay) * time.Millisecond
}

func (c CacheConfig) DirectoryTTLDuration() time.Duration {
	return time.Duration(c.DirectoryTTL) * time.Second
}

func (c CacheConfig) StatsTTLDuration() time.Duration {
	return time.Duration(c.StatsTTL) * time.Second
}

func (c HealthCheckConfig) IntervalDuration() time.Duration {
	return time.Duration(c.Interval) * time.Second
}
