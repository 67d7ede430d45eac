package migrations

import (
	"database/sql"
)

// GetInitialMigrations returns all initial migrations
func GetInitialMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_initial_tables",
			Up: func(db *sql.DB) error {
				// Create hosts table
				_, err := db.Exec(`
					CREATE TABLE IF NOT EXISTS hosts (
						id TEXT PRIMARY KEY,
						name TEXT NOT NULL,
						host_url TEXT NOT NULL,
						allow_insecure_tls INTEGER NOT NULL DEFAULT 0,
						token_id TEXT NOT NULL DEFAULT '',
						token_secret TEXT NOT NULL DEFAULT '',
						username TEXT NOT NULL DEFAULT '',
						password TEXT NOT NULL DEFAULT '',
						node TEXT NOT NULL DEFAULT '',
						storage TEXT NOT NULL DEFAULT 'local',
						bridge TEXT NOT NULL DEFAULT 'vmbr0',
						gateway_ip TEXT NOT NULL DEFAULT '',
						dns_primary TEXT NOT NULL DEFAULT '8.8.8.8',
						dns_secondary TEXT NOT NULL DEFAULT '1.1.1.1',
						template_vmid INTEGER NOT NULL DEFAULT 0,
						active INTEGER NOT NULL DEFAULT 1,
						created_at DATETIME DEFAULT CURRENT_TIMESTAMP
					)
				`)
				if err != nil {
					return err
				}

				// Create ip_pool table
				_, err = db.Exec(`
					CREATE TABLE IF NOT EXISTS ip_pool (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						host_id TEXT NOT NULL,
						ip TEXT NOT NULL UNIQUE,
						mac TEXT NOT NULL DEFAULT '',
						pool TEXT NOT NULL DEFAULT 'public',
						created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
						FOREIGN KEY (host_id) REFERENCES hosts(id) ON DELETE CASCADE
					)
				`)
				if err != nil {
					return err
				}

				// Create templates table
				_, err = db.Exec(`
					CREATE TABLE IF NOT EXISTS templates (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						host_id TEXT NOT NULL,
						name TEXT NOT NULL,
						vmid INTEGER NOT NULL,
						active INTEGER NOT NULL DEFAULT 1,
						FOREIGN KEY (host_id) REFERENCES hosts(id) ON DELETE CASCADE
					)
				`)
				if err != nil {
					return err
				}

				// Create servers table. The UNIQUE constraint on ip is the
				// mechanism that prevents double allocation under concurrent
				// provisioning requests.
				_, err = db.Exec(`
					CREATE TABLE IF NOT EXISTS servers (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						vmid INTEGER NOT NULL DEFAULT 0,
						node TEXT NOT NULL DEFAULT '',
						name TEXT NOT NULL,
						ip TEXT NOT NULL UNIQUE,
						os TEXT NOT NULL DEFAULT '',
						host_id TEXT NOT NULL DEFAULT '',
						cpu_cores INTEGER NOT NULL DEFAULT 0,
						memory_mb INTEGER NOT NULL DEFAULT 0,
						disk_gb INTEGER NOT NULL DEFAULT 0,
						status TEXT NOT NULL DEFAULT 'provisioning',
						details TEXT NOT NULL DEFAULT '',
						error TEXT NOT NULL DEFAULT '',
						owner_id TEXT NOT NULL DEFAULT '',
						owner_email TEXT NOT NULL DEFAULT '',
						created_at DATETIME DEFAULT CURRENT_TIMESTAMP
					)
				`)
				if err != nil {
					return err
				}

				// Create indexes for better performance
				_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_ip_pool_host_id ON ip_pool(host_id)`)
				if err != nil {
					return err
				}

				_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_templates_host_id ON templates(host_id)`)
				if err != nil {
					return err
				}

				_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_servers_owner_id ON servers(owner_id)`)
				if err != nil {
					return err
				}

				_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_servers_host_id ON servers(host_id)`)
				return err
			},
			Down: func(db *sql.DB) error {
				// Drop tables in reverse order due to foreign key constraints
				for _, stmt := range []string{
					`DROP TABLE IF EXISTS servers`,
					`DROP TABLE IF EXISTS templates`,
					`DROP TABLE IF EXISTS ip_pool`,
					`DROP TABLE IF EXISTS hosts`,
				} {
					if _, err := db.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
