package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	TelegramToken      string
	GoogleClientID     string
	GoogleClientSecret string

	StateDir     string
	MailboxLabel string
	APIPort      string

	PollInterval       time.Duration
	FirstReminderDelay time.Duration
	FinalReminderDelay time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		TelegramToken:      getEnv("TELEGRAM_BOT_TOKEN", ""),
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		StateDir:           getEnv("STATE_DIR", "."),
		MailboxLabel:       getEnv("MAILBOX_LABEL", "INBOX"),
		APIPort:            getEnv("API_PORT", "8080"),
		PollInterval:       getDuration("POLL_INTERVAL", 60*time.Second),
		FirstReminderDelay: getDuration("FIRST_REMINDER_DELAY", 60*time.Second),
		FinalReminderDelay: getDuration("FINAL_REMINDER_DELAY", 5*time.Minute),
	}
}

// TokenPath is the stored OAuth token location.
func (c *Config) TokenPath() string {
	return filepath.Join(c.StateDir, "token.json")
}

// AllowlistPath is the newline-delimited sender allow-list location.
func (c *Config) AllowlistPath() string {
	return filepath.Join(c.StateDir, "whitelist")
}

// AdminsPath is the operator user-ID list location.
func (c *Config) AdminsPath() string {
	return filepath.Join(c.StateDir, "admins.json")
}

// AllowedGroupsPath is the auto-populated group allow-list location.
func (c *Config) AllowedGroupsPath() string {
	return filepath.Join(c.StateDir, "allowed_groups.json")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
