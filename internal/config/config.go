package config

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cs2hvh/cryptocloud/internal/migrations"
	_ "modernc.org/sqlite"
)

// Config holds all configuration for the cryptocloud service.
// Fields are populated from a config file, CRYPTOCLOUD_* environment
// variables and flags via viper in the command layer.
type Config struct {
	// DBPath is the SQLite database file path. Env: CRYPTOCLOUD_DB_PATH.
	DBPath string `json:"db_path" mapstructure:"db_path"`
	// Listen is the HTTP bind address. Env: CRYPTOCLOUD_LISTEN.
	Listen string `json:"listen" mapstructure:"listen"`
	// CloneTimeoutSeconds bounds the clone task wait. Default: 180.
	CloneTimeoutSeconds int `json:"clone_timeout_seconds" mapstructure:"clone_timeout_seconds"`
	// StartTimeoutSeconds bounds the start task wait. Default: 60.
	StartTimeoutSeconds int `json:"start_timeout_seconds" mapstructure:"start_timeout_seconds"`
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		DBPath:              "~/cryptocloud/data/cryptocloud.db",
		Listen:              ":8080",
		CloneTimeoutSeconds: 180,
		StartTimeoutSeconds: 60,
	}
}

// InitializeDatabase creates and configures the database connection
func (c *Config) InitializeDatabase() (*sql.DB, error) {
	dbPath := c.expandPath(c.DBPath)

	// Ensure database directory exists
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	tuneConnectionPool(db)

	if err := applySQLitePragmas(db); err != nil {
		return nil, fmt.Errorf("failed to apply sqlite pragmas: %w", err)
	}

	// Run migrations
	if err := c.runMigrations(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// expandPath expands ~ to home directory
func (c *Config) expandPath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Return original path if we can't get home dir
		return path
	}

	return filepath.Join(homeDir, path[2:])
}

// runMigrations runs all database migrations
func (c *Config) runMigrations(db *sql.DB) error {
	migrator := migrations.NewMigrator(db)

	for _, migration := range migrations.GetInitialMigrations() {
		migrator.AddMigration(migration)
	}

	if err := migrator.RunMigrations(); err != nil {
		return err
	}

	return nil
}
