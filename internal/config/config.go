package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// ErrMissingAdmin is returned when no administrator id is configured.
var ErrMissingAdmin = errors.New("ADMIN_USER_ID is required")

// Lock backends for the shared guest file.
const (
	LockFile  = "file"
	LockRedis = "redis"
	LockNone  = "none"
)

// Config holds the application configuration
type Config struct {
	WhatsAppDataDir string
	GuestFile       string
	AdminUserID     string
	CountryCode     string
	LockBackend     string
	RedisURL        string
	LogLevel        string
	LogFile         string
	MetricsAddr     string
}

// LoadConfig reads a .env file if present, then environment variables,
// then command line flags, each overriding the previous.
func LoadConfig(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := &Config{}
	flags := pflag.NewFlagSet("rsvp-bot", pflag.ContinueOnError)
	flags.StringVar(&cfg.WhatsAppDataDir, "data-dir", getEnv("WHATSAPP_DATA_DIR", "data"), "directory for the WhatsApp session, guest file and logs")
	flags.StringVar(&cfg.GuestFile, "guest-file", os.Getenv("GUEST_FILE"), "guest list path (default <data-dir>/guests.json)")
	flags.StringVar(&cfg.AdminUserID, "admin", os.Getenv("ADMIN_USER_ID"), "phone number allowed to use /stats")
	flags.StringVar(&cfg.CountryCode, "country-code", getEnv("COUNTRY_CODE", "972"), "country code for local phone numbers")
	flags.StringVar(&cfg.LockBackend, "lock", getEnv("LOCK_BACKEND", LockFile), "cross-process lock for the guest file: file, redis or none")
	flags.StringVar(&cfg.RedisURL, "redis-url", os.Getenv("REDIS_URL"), "redis URL for --lock=redis")
	flags.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "log level")
	flags.StringVar(&cfg.LogFile, "log-file", os.Getenv("LOG_FILE"), "log file path (default <data-dir>/bot.log)")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", os.Getenv("METRICS_ADDR"), "serve Prometheus metrics on this address")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if cfg.GuestFile == "" {
		cfg.GuestFile = filepath.Join(cfg.WhatsAppDataDir, "guests.json")
	}
	if cfg.LogFile == "" {
		cfg.LogFile = filepath.Join(cfg.WhatsAppDataDir, "bot.log")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.AdminUserID == "" {
		return ErrMissingAdmin
	}
	switch c.LockBackend {
	case LockFile, LockNone:
	case LockRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis lock backend")
		}
	default:
		return fmt.Errorf("unknown lock backend %q", c.LockBackend)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
