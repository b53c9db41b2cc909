// Package config assembles deckbot settings from defaults, a .env file,
// the process environment and an optional YAML file with scheduling parameters.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/example/deckbot/internal/database"
	"github.com/example/deckbot/internal/kvstore"
	srs "github.com/example/deckbot/internal/spaced_repetition"
)

// Storage backends for card progress
const (
	StorageSQL    = "sql"
	StorageBadger = "badger"
	StorageMemory = "memory"
)

var validate = validator.New()

// Config represents the configuration of the whole process
type Config struct {
	// Storage selects where card progress is kept
	Storage  string          `yaml:"storage" validate:"oneof=sql badger memory"`
	Database database.Config `yaml:"database"`
	Badger   kvstore.Config  `yaml:"badger"`

	// HTTPAddr is where the JSON API listens; empty disables it
	HTTPAddr string `yaml:"http_addr"`
	// TelegramToken enables the bot when set
	TelegramToken string `yaml:"-"`

	// EnableScheduler turns on hourly review reminders
	EnableScheduler bool               `yaml:"enable_scheduler"`
	Notifications   NotificationWindow `yaml:"notifications"`

	Log LogConfig `yaml:"log"`
	SRS SRSConfig `yaml:"srs"`
	// SRSConfigPath points at a YAML file decoded into SRS
	SRSConfigPath string `yaml:"-"`
}

// NotificationWindow limits reminders to hours [StartHour, EndHour]
type NotificationWindow struct {
	StartHour int `yaml:"start_hour" validate:"min=0,max=23"`
	EndHour   int `yaml:"end_hour" validate:"min=0,max=23,gtefield=StartHour"`
}

// LogConfig selects the process logger
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// SRSConfig holds the tunables of the scheduler
type SRSConfig struct {
	// Intervals replaces the level interval table when present; one entry per level 0..8
	Intervals []time.Duration `yaml:"intervals" validate:"omitempty,len=9,dive,min=0"`
	Retry     srs.RetryPolicy `yaml:"retry"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Storage:         StorageSQL,
		Database:        database.DefaultConfig(),
		Badger:          kvstore.DefaultConfig(),
		HTTPAddr:        ":8080",
		EnableScheduler: true,
		Notifications: NotificationWindow{
			StartHour: 4,
			EndHour:   18,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		SRS: SRSConfig{
			Retry: srs.DefaultRetryPolicy(),
		},
	}
}

// Load reads .env (when present) into the environment and builds the configuration from it
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds the configuration from defaults overridden by lookup
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := DefaultConfig()
	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}
	if cfg.SRSConfigPath != "" {
		if err := cfg.loadSRSFile(cfg.SRSConfigPath); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the struct tags of the whole configuration
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	hour := func(name string, dst *int) error {
		v, ok := lookup(name)
		if !ok || v == "" {
			return nil
		}
		h, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = h
		return nil
	}

	str("STORAGE_BACKEND", &c.Storage)
	str("DATABASE_URL", &c.Database.DSN)
	str("SQLITE_PATH", &c.Database.SQLitePath)
	str("BADGER_PATH", &c.Badger.Path)
	str("TELEGRAM_BOT_TOKEN", &c.TelegramToken)
	str("SRS_CONFIG", &c.SRSConfigPath)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup("HTTP_ADDR"); ok {
		c.HTTPAddr = v
	}
	if v, ok := lookup("DB_TYPE"); ok && v != "" {
		switch strings.ToLower(v) {
		case "sqlite", "sqlite3":
			c.Database.Driver = database.DriverSQLite
		case "postgres", "postgresql":
			c.Database.Driver = database.DriverPostgres
		default:
			return fmt.Errorf("DB_TYPE: unsupported database %q", v)
		}
	}
	// The scheduler is on unless explicitly disabled
	if v, ok := lookup("ENABLE_SCHEDULER"); ok {
		c.EnableScheduler = v != "false"
	}
	if err := hour("NOTIFICATION_START_HOUR", &c.Notifications.StartHour); err != nil {
		return err
	}
	return hour("NOTIFICATION_END_HOUR", &c.Notifications.EndHour)
}

func (c *Config) loadSRSFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	srsCfg := c.SRS
	if err := yaml.Unmarshal(data, &srsCfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	c.SRS = srsCfg
	return nil
}

// LevelTable builds the interval table, falling back to the default one
func (c SRSConfig) LevelTable() (srs.LevelTable, error) {
	if len(c.Intervals) == 0 {
		return srs.DefaultLevelTable(), nil
	}
	return srs.NewLevelTable(c.Intervals)
}

// NewLogger builds the process logger writing to w
func NewLogger(cfg LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
