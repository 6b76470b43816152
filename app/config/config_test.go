package config

import (
	"os"
	"path/filepath"
	"testing"

	coreconfig "github.com/m3rciful/cardbot/core/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

const base = `
telegram:
  token: "123:abc"
database:
  driver: sqlite
  path: /tmp/cards.db
bot:
  super_users: [1, 2]
messages:
  cancel: "Aborted."
`

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, base))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.RunMode != coreconfig.RunModeLongpoll {
		t.Fatalf("run mode = %q", cfg.Telegram.RunMode)
	}
	if cfg.Session.Backend != SessionMemory {
		t.Fatalf("backend = %q", cfg.Session.Backend)
	}
	if cfg.Bot.DefaultItemLimit != 10 || cfg.Bot.ConfirmToken != "yes" || cfg.Bot.SearchLimit != 20 {
		t.Fatalf("bot defaults = %+v", cfg.Bot)
	}
	if len(cfg.Bot.SuperUsers) != 2 || cfg.Messages["cancel"] != "Aborted." {
		t.Fatalf("decoded = %+v / %v", cfg.Bot, cfg.Messages)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SESSION_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("INACTIVE_USERS", "7,8")

	cfg, err := Load(writeConfig(t, base))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Session.Backend != SessionRedis || cfg.Session.Redis.Addr != "localhost:6379" {
		t.Fatalf("session = %+v", cfg.Session)
	}
	if len(cfg.Bot.InactiveUsers) != 2 || cfg.Bot.InactiveUsers[1] != 8 {
		t.Fatalf("inactive = %v", cfg.Bot.InactiveUsers)
	}
}

func TestNormalizeRejectsRedisWithoutAddr(t *testing.T) {
	_, err := Load(writeConfig(t, base+"session:\n  backend: redis\n"))
	if err == nil {
		t.Fatal("expected error for redis without addr")
	}
}

func TestLoadForMigrateWithoutToken(t *testing.T) {
	cfg, err := LoadForMigrate(writeConfig(t, "database:\n  driver: sqlite\n  path: x.db\n"))
	if err != nil {
		t.Fatalf("load database: %v", err)
	}
	if cfg.Database.Path != "x.db" {
		t.Fatalf("path = %q", cfg.Database.Path)
	}
}
