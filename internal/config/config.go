// Package config provides YAML-based configuration loading for PlotCraft.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/plotcraft/internal/theme"
	"gopkg.in/yaml.v3"
)

// Config is the top-level PlotCraft configuration, loaded from plotcraft.yaml.
type Config struct {
	Database     DatabaseConfig     `yaml:"database"`
	Generation   GenerationConfig   `yaml:"generation"`
	Conversation ConversationConfig `yaml:"conversation"`
	Sessions     SessionsConfig     `yaml:"sessions"`
	Server       ServerConfig       `yaml:"server"`
	Redis        RedisConfig        `yaml:"redis"`
	Notify       NotifyConfig       `yaml:"notify"`
}

// DatabaseConfig selects and addresses the durable session store.
type DatabaseConfig struct {
	Driver      string `yaml:"driver"` // "sqlite" or "mysql"
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	PasswordEnv string `yaml:"password_env"`
	Name        string `yaml:"name"`
	Path        string `yaml:"path"` // sqlite file
}

// Password reads the database password from the configured env var.
func (d DatabaseConfig) Password() string {
	if d.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(d.PasswordEnv)
}

// GenerationConfig configures the OpenAI-compatible text generation endpoint.
type GenerationConfig struct {
	BaseURL      string  `yaml:"base_url"`
	APIKeyEnv    string  `yaml:"api_key_env"`
	Model        string  `yaml:"model"`
	Temperature  float32 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
	Streaming    *bool   `yaml:"streaming"`
	HistoryLimit int     `yaml:"history_limit"`
	Referer      string  `yaml:"referer"`
	Title        string  `yaml:"title"`
}

// APIKey reads the generation API key from the configured env var.
func (g GenerationConfig) APIKey() string {
	return os.Getenv(g.APIKeyEnv)
}

// StreamingEnabled reports whether agents should stream chunks.
func (g GenerationConfig) StreamingEnabled() bool {
	return g.Streaming == nil || *g.Streaming
}

// ConversationConfig bounds a single story run.
type ConversationConfig struct {
	MaxTurns            int           `yaml:"max_turns"`
	TurnTimeout         time.Duration `yaml:"turn_timeout"`
	CheckpointTolerance int           `yaml:"checkpoint_tolerance"`
	WordsPerPage        int           `yaml:"words_per_page"`
	DefaultPages        int           `yaml:"default_pages"`
	DefaultTheme        string        `yaml:"default_theme"`
}

// SessionsConfig controls session lifetime and cache maintenance.
type SessionsConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	EvictionDelay time.Duration `yaml:"eviction_delay"`
	SweepSchedule string        `yaml:"sweep_schedule"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// RedisConfig enables the Redis progress fanout when Addr is set.
type RedisConfig struct {
	Addr        string `yaml:"addr"`
	PasswordEnv string `yaml:"password_env"`
	DB          int    `yaml:"db"`
	ReplayLimit int    `yaml:"replay_limit"`
}

// Password reads the Redis password from the configured env var.
func (r RedisConfig) Password() string {
	if r.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(r.PasswordEnv)
}

// NotifyConfig configures chat notifications for finished runs.
type NotifyConfig struct {
	Slack   ChatTarget `yaml:"slack"`
	Discord ChatTarget `yaml:"discord"`
}

// ChatTarget is a bot token env var and a channel to post to.
type ChatTarget struct {
	BotTokenEnv string `yaml:"bot_token_env"`
	ChannelID   string `yaml:"channel_id"`
}

// Enabled reports whether both a token and a channel are configured.
func (c ChatTarget) Enabled() bool {
	return c.BotTokenEnv != "" && c.ChannelID != "" && os.Getenv(c.BotTokenEnv) != ""
}

// Token reads the bot token.
func (c ChatTarget) Token() string {
	return os.Getenv(c.BotTokenEnv)
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Default returns a validated Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.User == "" {
		c.Database.User = "root"
	}
	if c.Database.Name == "" {
		c.Database.Name = "plotcraft"
	}
	if c.Database.Path == "" {
		c.Database.Path = "plotcraft.db"
	}

	if c.Generation.BaseURL == "" {
		c.Generation.BaseURL = "https://openrouter.ai/api/v1"
	}
	if c.Generation.APIKeyEnv == "" {
		c.Generation.APIKeyEnv = "OPENROUTER_API_KEY"
	}
	if c.Generation.Model == "" {
		c.Generation.Model = "google/gemini-2.5-flash"
	}
	if c.Generation.Temperature == 0 {
		c.Generation.Temperature = 0.7
	}
	if c.Generation.MaxTokens == 0 {
		c.Generation.MaxTokens = 4000
	}
	if c.Generation.HistoryLimit == 0 {
		c.Generation.HistoryLimit = 20
	}
	if c.Generation.Title == "" {
		c.Generation.Title = "PlotCraft"
	}

	if c.Conversation.MaxTurns == 0 {
		c.Conversation.MaxTurns = 100
	}
	if c.Conversation.TurnTimeout == 0 {
		c.Conversation.TurnTimeout = 120 * time.Second
	}
	if c.Conversation.CheckpointTolerance == 0 {
		c.Conversation.CheckpointTolerance = 50
	}
	if c.Conversation.WordsPerPage == 0 {
		c.Conversation.WordsPerPage = 300
	}
	if c.Conversation.DefaultPages == 0 {
		c.Conversation.DefaultPages = 3
	}
	if c.Conversation.DefaultTheme == "" {
		c.Conversation.DefaultTheme = "scp"
	}

	if c.Sessions.TTL == 0 {
		c.Sessions.TTL = 2 * time.Hour
	}
	if c.Sessions.EvictionDelay == 0 {
		c.Sessions.EvictionDelay = 5 * time.Minute
	}
	if c.Sessions.SweepSchedule == "" {
		c.Sessions.SweepSchedule = "@every 30m"
	}

	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Redis.ReplayLimit == 0 {
		c.Redis.ReplayLimit = 500
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q must be sqlite or mysql", c.Database.Driver))
	}
	if c.Conversation.MaxTurns < 0 {
		errs = append(errs, "conversation.max_turns must be positive")
	}
	if c.Conversation.TurnTimeout < 0 {
		errs = append(errs, "conversation.turn_timeout must be positive")
	}
	if c.Conversation.WordsPerPage < 0 || c.Conversation.DefaultPages < 0 {
		errs = append(errs, "conversation page sizing must be positive")
	}
	if _, ok := theme.Lookup(c.Conversation.DefaultTheme); !ok {
		errs = append(errs, fmt.Sprintf("conversation.default_theme %q is not a known theme", c.Conversation.DefaultTheme))
	}
	if c.Sessions.TTL < 0 || c.Sessions.EvictionDelay < 0 {
		errs = append(errs, "sessions durations must be positive")
	}
	// Runs stop before the session expires, so a single turn must fit.
	if c.Conversation.TurnTimeout >= c.Sessions.TTL {
		errs = append(errs, fmt.Sprintf("conversation.turn_timeout %s must be shorter than sessions.ttl %s",
			c.Conversation.TurnTimeout, c.Sessions.TTL))
	}
	if _, err := cron.ParseStandard(c.Sessions.SweepSchedule); err != nil {
		errs = append(errs, fmt.Sprintf("sessions.sweep_schedule %q: %v", c.Sessions.SweepSchedule, err))
	}
	if c.Generation.HistoryLimit < 0 {
		errs = append(errs, "generation.history_limit must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
