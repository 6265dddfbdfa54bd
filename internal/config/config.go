package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const DefaultGmailQuery = "from:paypal.fr is:unread"

// Notification sinks.
const (
	SinkTelegram = "telegram"
	SinkDiscord  = "discord"
	SinkLog      = "log"
)

type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Query        string
}

type NotifyConfig struct {
	Sink             string
	TelegramToken    string
	TelegramChatID   int64
	DiscordToken     string
	DiscordChannelID string
}

// LedgerConfig is optional; an empty Project disables the BigQuery ledger.
type LedgerConfig struct {
	Project string
	Dataset string
	Table   string
}

type Config struct {
	Gmail  GmailConfig
	Notify NotifyConfig
	Ledger LedgerConfig

	DatabasePath  string
	ArchiveBucket string // empty disables the receipt archive

	Port         string
	LogLevel     string
	LogFormat    string
	PollInterval time.Duration // zero disables scheduled checks
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	// A missing .env is normal in deployed environments.
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from environment variables and validates it.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Gmail: GmailConfig{
			ClientID:     getEnv("GMAIL_CLIENT_ID", ""),
			ClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("GMAIL_REDIRECT_URI", "http://localhost:8080/oauth2callback"),
			Query:        getEnv("GMAIL_QUERY", DefaultGmailQuery),
		},
		Notify: NotifyConfig{
			Sink:             strings.ToLower(getEnv("NOTIFY_SINK", SinkLog)),
			TelegramToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
			DiscordToken:     getEnv("DISCORD_BOT_TOKEN", ""),
			DiscordChannelID: getEnv("DISCORD_CHANNEL_ID", ""),
		},
		Ledger: LedgerConfig{
			Project: getEnv("BQ_PROJECT", ""),
			Dataset: getEnv("BQ_DATASET", "paypal"),
			Table:   getEnv("BQ_TABLE", "payments"),
		},
		DatabasePath:  getEnv("DATABASE_PATH", "./paypal.db"),
		ArchiveBucket: getEnv("GCS_BUCKET", ""),
		Port:          getEnv("PORT", "8080"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "console"),
	}

	var err error
	if cfg.PollInterval, err = getEnvAsDuration("POLL_INTERVAL", 0); err != nil {
		return nil, err
	}
	if cfg.Notify.TelegramChatID, err = getEnvAsInt64("TELEGRAM_CHAT_ID", 0); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every missing required key at once.
func (c *Config) Validate() error {
	var missing []string
	require := func(key, value string) {
		if value == "" {
			missing = append(missing, key)
		}
	}

	require("GMAIL_CLIENT_ID", c.Gmail.ClientID)
	require("GMAIL_CLIENT_SECRET", c.Gmail.ClientSecret)
	require("DATABASE_PATH", c.DatabasePath)

	switch c.Notify.Sink {
	case SinkTelegram:
		require("TELEGRAM_BOT_TOKEN", c.Notify.TelegramToken)
		if c.Notify.TelegramChatID == 0 {
			missing = append(missing, "TELEGRAM_CHAT_ID")
		}
	case SinkDiscord:
		require("DISCORD_BOT_TOKEN", c.Notify.DiscordToken)
		require("DISCORD_CHANNEL_ID", c.Notify.DiscordChannelID)
	case SinkLog:
	default:
		return fmt.Errorf("config: NOTIFY_SINK %q is not one of telegram, discord, log", c.Notify.Sink)
	}

	if len(missing) > 0 {
		return fmt.Errorf("config: missing required variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

// LedgerEnabled reports whether payments should be written to BigQuery.
func (c *Config) LedgerEnabled() bool {
	return c.Ledger.Project != ""
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("config: invalid duration for %s (%q): %w", key, valueStr, err)
	}
	return value, nil
}

func getEnvAsInt64(key string, fallback int64) (int64, error) {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: invalid integer for %s (%q): %w", key, valueStr, err)
	}
	return value, nil
}
