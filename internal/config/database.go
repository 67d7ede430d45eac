package config

import (
	"database/sql"
	"time"
)

// tuneConnectionPool sizes the pool for the provisioning workload: many
// short reads plus bursts of small writes when concurrent provision
// requests race on the servers.ip constraint.
func tuneConnectionPool(db *sql.DB) {
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)
}

// applySQLitePragmas configures the database for concurrent access. WAL
// keeps allocator reads from blocking behind reservation writes; the rest
// trades durability the service does not need for latency it does.
func applySQLitePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = 10000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA mmap_size = 268435456",
		"PRAGMA optimize",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return err
		}
	}

	return nil
}
