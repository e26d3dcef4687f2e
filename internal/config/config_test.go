package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.toml")
	body := `
mode = "full"

[database]
driver = "sqlite"
sqlite_path = "/tmp/ledger.db"

[redis]
enabled = false

[s3]
enabled = true
bucket = "snapshots"

[archive]
enabled = true
cron = "*/15 * * * *"
min_age = "2h"

[server]
rate_window = "30s"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LEDGER_SERVER_PORT", "9100")
	t.Setenv("LEDGER_NOTIFY_EVENTS", "market.resolved, ,market.cancelled")
	t.Setenv("LEDGER_LEDGER_REWARD_AMOUNT", "250")
	t.Setenv("LEDGER_SERVER_PORT_BOGUS", "x")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Database.Driver != "sqlite" || cfg.Database.SQLitePath != "/tmp/ledger.db" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Archive.MinAge.Duration != 2*time.Hour {
		t.Errorf("min_age = %v", cfg.Archive.MinAge.Duration)
	}
	if cfg.Server.RateWindow.Duration != 30*time.Second {
		t.Errorf("rate_window = %v", cfg.Server.RateWindow.Duration)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d, want env override 9100", cfg.Server.Port)
	}
	if cfg.Ledger.RewardAmount != 250 {
		t.Errorf("reward_amount = %d", cfg.Ledger.RewardAmount)
	}
	if got := strings.Join(cfg.Notify.Events, "|"); got != "market.resolved|market.cancelled" {
		t.Errorf("events = %q", got)
	}
	// Untouched sections keep their defaults.
	if cfg.Archive.BatchSize != 100 || cfg.Redis.KeyPrefix != "ledger:" {
		t.Errorf("defaults lost: batch=%d prefix=%q", cfg.Archive.BatchSize, cfg.Redis.KeyPrefix)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad mode", func(c *Config) { c.Mode = "trade" }, "unknown mode"},
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }, "unknown driver"},
		{"sqlite without path", func(c *Config) {
			c.Database.Driver = "sqlite"
			c.Database.SQLitePath = ""
		}, "sqlite_path"},
		{"pool bounds", func(c *Config) { c.Database.PoolMinConns = 20 }, "pool_min_conns must not exceed"},
		{"archive needs s3", func(c *Config) { c.Mode = "archive" }, "s3: must be enabled"},
		{"bad cron", func(c *Config) {
			c.Mode = "full"
			c.S3.Enabled = true
			c.Archive.Enabled = true
			c.Archive.Cron = "every tuesday"
		}, "invalid cron"},
		{"zero reward", func(c *Config) { c.Ledger.RewardAmount = 0 }, "reward_amount"},
		{"rate window", func(c *Config) { c.Server.RateWindow.Duration = 0 }, "rate_window"},
		{"telegram chat", func(c *Config) { c.Notify.TelegramToken = "tok" }, "telegram_chat_id"},
		{"log level", func(c *Config) { c.Log.Level = "trace" }, "unknown level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "nope"
	cfg.Ledger.ProgramOwner = ""
	cfg.Server.Port = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"unknown mode", "program_owner"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Database.DSN = "postgres://u:secret@db/ledger"
	cfg.Redis.Password = "hunter2"
	cfg.S3.SecretKey = "s3-secret"
	cfg.Notify.DiscordWebhookURL = "https://discord.example/hook"

	out := RedactedConfig(&cfg)
	for name, v := range map[string]string{
		"dsn":     out.Database.DSN,
		"redis":   out.Redis.Password,
		"s3":      out.S3.SecretKey,
		"discord": out.Notify.DiscordWebhookURL,
	} {
		if v != redacted {
			t.Errorf("%s = %q, want redacted", name, v)
		}
	}
	if out.S3.AccessKey != "" {
		t.Errorf("empty access key should stay empty, got %q", out.S3.AccessKey)
	}
	if cfg.Redis.Password != "hunter2" {
		t.Error("original config mutated")
	}

	out.Notify.Events[0] = "changed"
	if cfg.Notify.Events[0] == "changed" {
		t.Error("events slice aliased")
	}
}
