package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assert.Equal(t, ":8274", cfg.ListenAddr)
	assert.Equal(t, 20, cfg.Day.StaleAfterHours)
	assert.Equal(t, 60, cfg.Day.ConfirmSkewSeconds)
	assert.Equal(t, "daily-cache-v1", cfg.Cache.Version)
	assert.NotEmpty(t, cfg.Cache.Manifest)
}

func TestLoad_PartialFileKeepsDefaultsForTheRest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daily_config.yml")
	content := `
listen_addr: ":9000"
day:
  stale_after_hours: 16
cache:
  version: daily-cache-v7
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, 16, cfg.Day.StaleAfterHours)
	assert.Equal(t, "daily-cache-v7", cfg.Cache.Version)
	assert.Equal(t, 60, cfg.Day.ConfirmSkewSeconds)
	assert.Equal(t, "data", cfg.DataDir)
}

func TestLoad_InvalidYAMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daily_config.yml")
	if err := os.WriteFile(path, []byte("listen_addr: [unclosed"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("DAILY_LISTEN_ADDR", ":7777")
	t.Setenv("DAILY_STALE_AFTER_HOURS", "12")
	t.Setenv("DAILY_CONFIRM_SKEW_SECONDS", "not-a-number")
	t.Setenv("DAILY_AUTOSTART", "true")

	cfg := Default()
	cfg.ApplyEnv()

	assert.Equal(t, ":7777", cfg.ListenAddr)
	assert.Equal(t, 12, cfg.Day.StaleAfterHours)
	assert.Equal(t, 60, cfg.Day.ConfirmSkewSeconds, "bad numbers are ignored")
	assert.True(t, cfg.Autostart)
}
