// Package config resolves the runtime configuration of wca-events.
//
// Values come from, in increasing precedence: built-in defaults, a .env file,
// WCA_* environment variables and command-line flags. The resulting Config is
// passed by value and not modified after startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/pfrederiksen/wca-events/internal/discord"
	"github.com/pfrederiksen/wca-events/internal/logger"
	"github.com/pfrederiksen/wca-events/internal/notifier"
	"github.com/pfrederiksen/wca-events/internal/request"
	"github.com/pfrederiksen/wca-events/internal/scraper"
	"github.com/pfrederiksen/wca-events/internal/storage"
)

// Config holds all configuration values for the bot
type Config struct {
	// Detection
	TargetCountry string
	ListingURL    string

	// Discord
	ChannelMarker string
	Mention       string
	APIBaseURL    string
	TokenFile     string
	Token         string

	// Storage
	CachePath string
	Store     string

	// Polling
	PollInterval time.Duration
	HTTPTimeout  time.Duration

	// Logging and status
	LogLevel   string
	StatusAddr string

	DryRun bool
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		TargetCountry: "Poland",
		ListingURL:    scraper.ListingURL,
		ChannelMarker: "zawody",
		Mention:       notifier.DefaultMention,
		APIBaseURL:    discord.BaseURL,
		TokenFile:     "token.txt",
		CachePath:     "events.json",
		Store:         storage.BackendJSON,
		PollInterval:  15 * time.Minute,
		HTTPTimeout:   request.Timeout,
		LogLevel:      "info",
	}
}

// Load reads envFile (".env" when empty; a missing file is ignored) and then
// applies WCA_* environment variables on top of the defaults.
func Load(envFile string) (Config, error) {
	if envFile == "" {
		_ = godotenv.Load()
	} else if err := godotenv.Load(envFile); err != nil {
		return Config{}, fmt.Errorf("loading %s: %w", envFile, err)
	}

	cfg := Default()
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.TargetCountry = getEnvOrDefault("WCA_COUNTRY", c.TargetCountry)
	c.ListingURL = getEnvOrDefault("WCA_LISTING_URL", c.ListingURL)
	c.ChannelMarker = getEnvOrDefault("WCA_MARKER", c.ChannelMarker)
	c.APIBaseURL = getEnvOrDefault("WCA_API_URL", c.APIBaseURL)
	c.TokenFile = getEnvOrDefault("WCA_TOKEN_FILE", c.TokenFile)
	c.Token = getEnvOrDefault("WCA_TOKEN", c.Token)
	c.CachePath = getEnvOrDefault("WCA_CACHE", c.CachePath)
	c.Store = getEnvOrDefault("WCA_STORE", c.Store)
	c.LogLevel = getEnvOrDefault("WCA_LOG_LEVEL", c.LogLevel)
	c.StatusAddr = getEnvOrDefault("WCA_STATUS_ADDR", c.StatusAddr)

	// An explicitly empty mention disables it.
	if v, ok := os.LookupEnv("WCA_MENTION"); ok {
		c.Mention = v
	}

	var err error
	if c.PollInterval, err = getEnvDuration("WCA_INTERVAL", c.PollInterval); err != nil {
		return err
	}
	if c.HTTPTimeout, err = getEnvDuration("WCA_TIMEOUT", c.HTTPTimeout); err != nil {
		return err
	}
	if v := os.Getenv("WCA_DRY_RUN"); v != "" {
		if c.DryRun, err = strconv.ParseBool(v); err != nil {
			return fmt.Errorf("invalid WCA_DRY_RUN: %w", err)
		}
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if strings.TrimSpace(c.TargetCountry) == "" {
		return errors.New("target country is required")
	}
	if c.ChannelMarker == "" {
		return errors.New("channel marker is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.HTTPTimeout < 0 {
		return fmt.Errorf("HTTP timeout must not be negative, got %s", c.HTTPTimeout)
	}
	if c.CachePath == "" {
		return errors.New("cache path is required")
	}
	switch c.Store {
	case storage.BackendJSON, storage.BackendSQLite:
	default:
		return fmt.Errorf("unknown store backend %q (must be %q or %q)", c.Store, storage.BackendJSON, storage.BackendSQLite)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// BotToken returns Token when set, otherwise the contents of TokenFile.
func (c Config) BotToken() (string, error) {
	if c.Token != "" {
		return strings.TrimSpace(c.Token), nil
	}
	return ReadToken(c.TokenFile)
}

// ReadToken reads a bot token from path, trimming surrounding whitespace.
func ReadToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", path)
	}
	return token, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
