package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	_ "time/tzdata"

	"github.com/spf13/pflag"
)

func flags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Failed to parse flags: %v", err)
	}
	return fs
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Expected defaults to load, but got %v", err)
	}
	if cfg.DB.Driver != "sqlite" || cfg.Quota.DailyNewLimit != 25 || cfg.Quota.DailyReviewLimit != 50 {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}
	p := cfg.Params()
	if p.EaseFloor != 1.3 || p.GraduationInterval != 21 || p.EasyMultiplier != 1.3 {
		t.Errorf("Expected default scheduler params, but got %+v", p)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "duedeck.yaml")
	yaml := `
db:
  dsn: from-file.db
quota:
  daily_new_limit: 10
  timezone: Europe/Dublin
scheduler:
  graduation_interval: 14
digest:
  telegram_chats:
    alice: 42
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	t.Setenv("DUEDECK_QUOTA__DAILY_NEW_LIMIT", "12")
	t.Setenv("DUEDECK_LOG__LEVEL", "debug")

	cfg, err := Load(flags(t, "--config", path, "--log.level", "warn"))
	if err != nil {
		t.Fatalf("Expected config to load, but got %v", err)
	}

	if cfg.DB.DSN != "from-file.db" {
		t.Errorf("Expected DSN from file, but got %q", cfg.DB.DSN)
	}
	if cfg.Quota.DailyNewLimit != 12 {
		t.Errorf("Expected env to override file, but got %d", cfg.Quota.DailyNewLimit)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Expected flag to override env, but got %q", cfg.Log.Level)
	}
	if cfg.Quota.DailyReviewLimit != 50 {
		t.Errorf("Expected untouched keys to keep defaults, but got %d", cfg.Quota.DailyReviewLimit)
	}
	if cfg.Scheduler.GraduationInterval != 14 || cfg.Scheduler.EaseFloor != 1.3 {
		t.Errorf("Expected partial scheduler override, but got %+v", cfg.Scheduler)
	}
	if cfg.Digest.TelegramChats["alice"] != 42 {
		t.Errorf("Expected telegram chat mapping, but got %v", cfg.Digest.TelegramChats)
	}
	if q := cfg.DefaultQuota(); q.TimeZone != "Europe/Dublin" || q.DailyNewLimit != 12 {
		t.Errorf("Unexpected default quota: %+v", q)
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unknown driver", func(c *Config) { c.DB.Driver = "oracle" }, "Driver"},
		{"empty dsn", func(c *Config) { c.DB.DSN = "" }, "DSN"},
		{"bad time zone", func(c *Config) { c.Quota.TimeZone = "Mars/Olympus" }, "TimeZone"},
		{"default ease below floor", func(c *Config) { c.Scheduler.DefaultEase = 1.0 }, "DefaultEase"},
		{"zero graduation interval", func(c *Config) { c.Scheduler.GraduationInterval = 0 }, "GraduationInterval"},
		{"bad digest time", func(c *Config) { c.Digest.At = "7am" }, "At"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "Level"},
		{"zero new limit", func(c *Config) { c.Quota.DailyNewLimit = 0 }, "DailyNewLimit"},
		{"zero review limit", func(c *Config) { c.Quota.DailyReviewLimit = 0 }, "DailyReviewLimit"},
		{"max interval below graduation", func(c *Config) { c.Scheduler.MaxInterval = 5 }, "MaxInterval"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Expected a validation error")
			}
			if !strings.Contains(err.Error(), tc.field) {
				t.Errorf("Expected error to mention %s, but got %v", tc.field, err)
			}
		})
	}

	if err := Default().Validate(); err != nil {
		t.Errorf("Expected defaults to be valid, but got %v", err)
	}
}
