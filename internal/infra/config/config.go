package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization

	"github.com/joho/godotenv"

	"hydration_reminder/internal/domain/reminder"
)

const (
	PlatformNative = "native"
	PlatformWeb    = "web"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	LogLevel    string
	Environment string
	LogFile     string

	Platform      string
	StorageDriver string
	StoragePath   string
	DatabaseURL   string
	RedisURL      string

	TelegramToken         string
	TelegramChatID        int64
	TelegramRatePerSecond float64

	MaxHistory           int
	HistoryRetentionDays int
	LogBufferSize        int
	LogPersistSize       int

	NotificationsEnabled    bool
	ReminderIntervalMinutes int
	QuietHoursStart         string
	QuietHoursEnd           string
	WeekendReminders        bool
	SmartReminders          bool
	DailyGoalML             int
}

// Capability reports the delivery platform chosen by PLATFORM.
type Capability struct {
	platform string
}

func (c Capability) IsNative() bool   { return c.platform == PlatformNative }
func (c Capability) Platform() string { return c.platform }

func (c *AppConfig) Capability() Capability {
	return Capability{platform: c.Platform}
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development" // Default environment
	}

	cfg.LogFile = os.Getenv("LOG_FILE")

	cfg.Platform = strings.ToLower(os.Getenv("PLATFORM"))
	if cfg.Platform == "" {
		cfg.Platform = PlatformWeb
	}
	if cfg.Platform != PlatformWeb && cfg.Platform != PlatformNative {
		return nil, fmt.Errorf("invalid PLATFORM %q: want %s or %s", cfg.Platform, PlatformNative, PlatformWeb)
	}

	cfg.StorageDriver = strings.ToLower(os.Getenv("STORAGE_DRIVER"))
	if cfg.StorageDriver == "" {
		cfg.StorageDriver = "file"
	}
	cfg.StoragePath = os.Getenv("STORAGE_PATH")
	if cfg.StoragePath == "" {
		cfg.StoragePath = "./data"
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if (cfg.StorageDriver == "postgres" || cfg.StorageDriver == "postgresql") && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}
	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.StorageDriver == "redis" && cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is not set")
	}

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if cfg.TelegramToken != "" {
		chatIDStr := os.Getenv("TELEGRAM_CHAT_ID")
		if chatIDStr == "" {
			return nil, fmt.Errorf("TELEGRAM_CHAT_ID is not set")
		}
		cfg.TelegramChatID, err = strconv.ParseInt(chatIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
	}
	if cfg.TelegramRatePerSecond, err = floatEnv("TELEGRAM_RATE_PER_SECOND", 1); err != nil {
		return nil, err
	}
	if cfg.TelegramRatePerSecond <= 0 {
		return nil, fmt.Errorf("invalid TELEGRAM_RATE_PER_SECOND: must be positive")
	}

	if cfg.MaxHistory, err = positiveIntEnv("MAX_HISTORY", 50); err != nil {
		return nil, err
	}
	if cfg.HistoryRetentionDays, err = positiveIntEnv("HISTORY_RETENTION_DAYS", 7); err != nil {
		return nil, err
	}
	if cfg.LogBufferSize, err = positiveIntEnv("LOG_BUFFER_SIZE", 100); err != nil {
		return nil, err
	}
	if cfg.LogPersistSize, err = positiveIntEnv("LOG_PERSIST_SIZE", 50); err != nil {
		return nil, err
	}

	if cfg.NotificationsEnabled, err = boolEnv("NOTIFICATIONS_ENABLED", true); err != nil {
		return nil, err
	}
	if cfg.ReminderIntervalMinutes, err = positiveIntEnv("REMINDER_INTERVAL_MINUTES", 60); err != nil {
		return nil, err
	}

	cfg.QuietHoursStart = os.Getenv("QUIET_HOURS_START")
	if cfg.QuietHoursStart == "" {
		cfg.QuietHoursStart = "22:00"
	}
	cfg.QuietHoursEnd = os.Getenv("QUIET_HOURS_END")
	if cfg.QuietHoursEnd == "" {
		cfg.QuietHoursEnd = "07:00"
	}
	if err := (reminder.QuietHours{Start: cfg.QuietHoursStart, End: cfg.QuietHoursEnd}).Validate(); err != nil {
		return nil, fmt.Errorf("invalid QUIET_HOURS_START/QUIET_HOURS_END: %w", err)
	}

	if cfg.WeekendReminders, err = boolEnv("WEEKEND_REMINDERS", true); err != nil {
		return nil, err
	}
	if cfg.SmartReminders, err = boolEnv("SMART_REMINDERS", false); err != nil {
		return nil, err
	}
	if cfg.DailyGoalML, err = positiveIntEnv("DAILY_GOAL_ML", 2000); err != nil {
		return nil, err
	}

	return cfg, nil
}

func positiveIntEnv(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return v, nil
}

func floatEnv(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func boolEnv(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
