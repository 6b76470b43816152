// Package config loads the card bot configuration.
package config

import (
	"fmt"
	"strings"

	coreconfig "github.com/m3rciful/cardbot/core/config"
	"github.com/m3rciful/cardbot/core/database"
	"github.com/m3rciful/cardbot/core/telegram/state"
)

// Session backends.
const (
	SessionMemory = "memory"
	SessionRedis  = "redis"
)

// SessionConfig selects where dialogue sessions live.
type SessionConfig struct {
	Backend string            `yaml:"backend" envconfig:"SESSION_BACKEND"`
	Redis   state.RedisConfig `yaml:"redis"`
}

// BotConfig is the business policy.
type BotConfig struct {
	SuperUsers       []int64 `yaml:"super_users" envconfig:"SUPER_USERS"`
	InactiveUsers    []int64 `yaml:"inactive_users" envconfig:"INACTIVE_USERS"`
	// Admins are granted the admin role at startup.
	Admins           []int64 `yaml:"admins" envconfig:"ADMIN_USERS"`
	DefaultItemLimit int     `yaml:"default_item_limit" envconfig:"DEFAULT_ITEM_LIMIT"`
	ConfirmToken     string  `yaml:"confirm_token" envconfig:"CONFIRM_TOKEN"`
	SearchLimit      int     `yaml:"search_limit" envconfig:"SEARCH_LIMIT"`
	RoleCacheTTLSec  int     `yaml:"role_cache_ttl_seconds" envconfig:"ROLE_CACHE_TTL_SECONDS"`
}

// OpsConfig configures the metrics and health listener. Empty Listen disables it.
type OpsConfig struct {
	Listen string `yaml:"listen" envconfig:"OPS_LISTEN"`
}

// Config is the full configuration of the card bot.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database database.Config   `yaml:"database"`
	Session  SessionConfig     `yaml:"session"`
	Bot      BotConfig         `yaml:"bot"`
	Ops      OpsConfig         `yaml:"ops"`
	Messages map[string]string `yaml:"messages"`
}

// Load reads path, overlays the environment and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadForMigrate validates only the database and logging sections, so the
// migrate command runs without a bot token.
func LoadForMigrate(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Database.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates the configuration and fills defaults.
func (c *Config) Normalize() error {
	if err := coreconfig.Normalize(&c.Config); err != nil {
		return err
	}
	if err := c.Database.Normalize(); err != nil {
		return err
	}

	c.Session.Backend = strings.ToLower(strings.TrimSpace(c.Session.Backend))
	switch c.Session.Backend {
	case "":
		c.Session.Backend = SessionMemory
	case SessionMemory:
	case SessionRedis:
		if strings.TrimSpace(c.Session.Redis.Addr) == "" {
			return fmt.Errorf("session.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("invalid session.backend %q; allowed: memory, redis", c.Session.Backend)
	}
	if c.Session.Redis.TTLSeconds < 0 {
		return fmt.Errorf("session.redis.ttl_seconds must be >= 0")
	}

	if c.Bot.DefaultItemLimit <= 0 {
		c.Bot.DefaultItemLimit = 10
	}
	c.Bot.ConfirmToken = strings.TrimSpace(c.Bot.ConfirmToken)
	if c.Bot.ConfirmToken == "" {
		c.Bot.ConfirmToken = "yes"
	}
	if c.Bot.SearchLimit <= 0 {
		c.Bot.SearchLimit = 20
	}
	if c.Bot.RoleCacheTTLSec <= 0 {
		c.Bot.RoleCacheTTLSec = 60
	}
	return nil
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config { return &c.Config }
