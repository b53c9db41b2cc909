package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Supported values of Config.Driver
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Config describes how to reach the relational database
type Config struct {
	// Driver is DriverSQLite or DriverPostgres
	Driver string `yaml:"driver" validate:"oneof=sqlite3 postgres"`
	// DSN is the postgres connection string; ignored for sqlite
	DSN string `yaml:"dsn" validate:"required_if=Driver postgres"`
	// SQLitePath is the database file; ignored for postgres
	SQLitePath string `yaml:"sqlite_path"`
}

// DefaultConfig keeps the database next to the binary, in data/
func DefaultConfig() Config {
	return Config{
		Driver:     DriverSQLite,
		SQLitePath: filepath.Join("data", "deckbot.db"),
	}
}

// Connect establishes a connection to the database and makes sure the schema exists
func Connect(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	var (
		db  *sqlx.DB
		err error
	)

	switch cfg.Driver {
	case DriverSQLite, "":
		// Create data directory if it doesn't exist
		if dir := filepath.Dir(cfg.SQLitePath); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		db, err = sqlx.ConnectContext(ctx, DriverSQLite, cfg.SQLitePath+"?_foreign_keys=on&_busy_timeout=5000")
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		// SQLite doesn't support multiple writers
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	case DriverPostgres:
		db, err = sqlx.ConnectContext(ctx, DriverPostgres, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		db.SetMaxOpenConns(10)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	if err := EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// EnsureSchema creates necessary tables if they don't exist
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	// Разные типы колонок для разных СУБД
	bigint, timestamp := "INTEGER", "TIMESTAMP"
	if db.DriverName() == DriverPostgres {
		bigint, timestamp = "BIGINT", "TIMESTAMPTZ"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			telegram_id ` + bigint + ` PRIMARY KEY,
			username TEXT NOT NULL DEFAULT '',
			first_name TEXT NOT NULL DEFAULT '',
			notification_enabled BOOLEAN NOT NULL DEFAULT true,
			notification_hour INTEGER NOT NULL DEFAULT 9,
			cards_per_day INTEGER NOT NULL DEFAULT 20,
			created_at ` + timestamp + ` NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at ` + timestamp + ` NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS decks (
			id TEXT PRIMARY KEY,
			owner_id ` + bigint + ` NOT NULL,
			name TEXT NOT NULL,
			created_at ` + timestamp + ` NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS decks_owner_idx ON decks (owner_id)`,
		`CREATE TABLE IF NOT EXISTS cards (
			id TEXT NOT NULL,
			deck_id TEXT NOT NULL REFERENCES decks(id) ON DELETE CASCADE,
			front TEXT NOT NULL,
			back TEXT NOT NULL DEFAULT '',
			position INTEGER NOT NULL DEFAULT 0,
			created_at ` + timestamp + ` NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (deck_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS card_progress (
			user_id ` + bigint + ` NOT NULL,
			deck_id TEXT NOT NULL,
			card_id TEXT NOT NULL,
			level INTEGER NOT NULL DEFAULT 0 CHECK (level BETWEEN 0 AND 8),
			next_review_at ` + timestamp + ` NULL,
			last_reviewed_at ` + timestamp + ` NULL,
			total_reviews INTEGER NOT NULL DEFAULT 0 CHECK (total_reviews >= 0),
			successful_reviews INTEGER NOT NULL DEFAULT 0 CHECK (successful_reviews BETWEEN 0 AND total_reviews),
			version ` + bigint + ` NOT NULL,
			updated_at ` + timestamp + ` NOT NULL,
			PRIMARY KEY (user_id, deck_id, card_id)
		)`,
		`CREATE INDEX IF NOT EXISTS card_progress_card_idx ON card_progress (user_id, card_id)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}
