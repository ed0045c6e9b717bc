package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"TELEGRAM_BOT_TOKEN", "GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET",
		"STATE_DIR", "MAILBOX_LABEL", "API_PORT",
		"POLL_INTERVAL", "FIRST_REMINDER_DELAY", "FINAL_REMINDER_DELAY",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, ".", cfg.StateDir)
	assert.Equal(t, "INBOX", cfg.MailboxLabel)
	assert.Equal(t, "8080", cfg.APIPort)
	assert.Equal(t, 60*time.Second, cfg.PollInterval)
	assert.Equal(t, 60*time.Second, cfg.FirstReminderDelay)
	assert.Equal(t, 5*time.Minute, cfg.FinalReminderDelay)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STATE_DIR", "/var/lib/mailwatch")
	t.Setenv("POLL_INTERVAL", "30s")
	t.Setenv("FINAL_REMINDER_DELAY", "10m")

	cfg := Load()
	assert.Equal(t, "/var/lib/mailwatch", cfg.StateDir)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, 10*time.Minute, cfg.FinalReminderDelay)
}

func TestLoad_BadDurationFallsBack(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "soon")
	cfg := Load()
	assert.Equal(t, 60*time.Second, cfg.PollInterval)
}

func TestConfig_StatePaths(t *testing.T) {
	cfg := &Config{StateDir: "/data"}
	assert.Equal(t, filepath.Join("/data", "token.json"), cfg.TokenPath())
	assert.Equal(t, filepath.Join("/data", "whitelist"), cfg.AllowlistPath())
	assert.Equal(t, filepath.Join("/data", "admins.json"), cfg.AdminsPath())
	assert.Equal(t, filepath.Join("/data", "allowed_groups.json"), cfg.AllowedGroupsPath())
}
