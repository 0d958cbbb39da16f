package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config holds the process settings
type Config struct {
	Env     string
	LogMode string
	Port    string

	// Database
	DBType      string // sqlite or postgres
	SQLitePath  string
	DatabaseURL string

	JWTSecret string

	// Review scanner
	EnableScheduler   bool
	ScanInterval      time.Duration
	ScanInitialDelay  time.Duration
	ScanTimeout       time.Duration
	ReconcileInterval time.Duration
	StoreTimeout      time.Duration
	ReviewLocation    *time.Location

	TelegramBotToken string
}

// Development reports whether the process runs in the development environment.
func (c *Config) Development() bool {
	return c.Env == "development"
}

func defaults(v *viper.Viper) {
	v.SetDefault("ENV", "production")
	v.SetDefault("LOG_MODE", "")
	v.SetDefault("PORT", "5000")
	v.SetDefault("DB_TYPE", "sqlite")
	v.SetDefault("SQLITE_PATH", "data/studyplan.db")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("ENABLE_SCHEDULER", true)
	v.SetDefault("SCAN_INTERVAL", "")
	v.SetDefault("SCAN_INITIAL_DELAY", 30*time.Second)
	v.SetDefault("SCAN_TIMEOUT", 2*time.Minute)
	v.SetDefault("RECONCILE_INTERVAL", 24*time.Hour)
	v.SetDefault("STORE_TIMEOUT", 5*time.Second)
	v.SetDefault("REVIEW_TIMEZONE", "UTC")
	v.SetDefault("TELEGRAM_BOT_TOKEN", "")
}

// Load reads the .env file if there is one, then the environment.
func Load() (*Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, errors.Wrapf(err, "config.godotenv(%s)", envFile)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "config.os.Stat(%s)", envFile)
	}

	v := viper.New()
	defaults(v)
	v.AutomaticEnv()
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Env:               strings.ToLower(v.GetString("ENV")),
		LogMode:           v.GetString("LOG_MODE"),
		Port:              v.GetString("PORT"),
		DBType:            strings.ToLower(v.GetString("DB_TYPE")),
		SQLitePath:        v.GetString("SQLITE_PATH"),
		DatabaseURL:       v.GetString("DATABASE_URL"),
		JWTSecret:         v.GetString("JWT_SECRET"),
		EnableScheduler:   v.GetBool("ENABLE_SCHEDULER"),
		ScanInitialDelay:  v.GetDuration("SCAN_INITIAL_DELAY"),
		ScanTimeout:       v.GetDuration("SCAN_TIMEOUT"),
		ReconcileInterval: v.GetDuration("RECONCILE_INTERVAL"),
		StoreTimeout:      v.GetDuration("STORE_TIMEOUT"),
		TelegramBotToken:  v.GetString("TELEGRAM_BOT_TOKEN"),
	}
	if cfg.LogMode == "" {
		cfg.LogMode = cfg.Env
	}

	cfg.ScanInterval = v.GetDuration("SCAN_INTERVAL")
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = time.Hour
		if cfg.Development() {
			cfg.ScanInterval = 15 * time.Minute
		}
	}

	loc, err := time.LoadLocation(v.GetString("REVIEW_TIMEZONE"))
	if err != nil {
		return nil, errors.Wrap(err, "config: REVIEW_TIMEZONE")
	}
	cfg.ReviewLocation = loc

	switch cfg.DBType {
	case "sqlite":
		if cfg.SQLitePath == "" {
			return nil, errors.New("config: SQLITE_PATH is empty")
		}
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, errors.New("config: DATABASE_URL is required for DB_TYPE=postgres")
		}
	default:
		return nil, errors.Errorf("config: unsupported DB_TYPE %q", cfg.DBType)
	}
	if cfg.StoreTimeout <= 0 || cfg.ScanTimeout <= 0 {
		return nil, errors.New("config: timeouts must be positive")
	}
	return cfg, nil
}
