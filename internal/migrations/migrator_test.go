package migrations

import (
	"database/sql"
	"fmt"
	"testing"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T, name string) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrator_RunMigrations(t *testing.T) {
	db := openTestDB(t, "TestMigrator_RunMigrations")

	migrator := NewMigrator(db)
	for _, migration := range GetInitialMigrations() {
		migrator.AddMigration(migration)
	}

	if err := migrator.RunMigrations(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	version, err := migrator.GetCurrentVersion()
	if err != nil {
		t.Fatalf("Failed to get current version: %v", err)
	}
	if version != 1 {
		t.Errorf("Expected version 1, got %d", version)
	}

	for _, table := range []string{"hosts", "ip_pool", "templates", "servers"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Expected table %s to exist: %v", table, err)
		}
	}
}

func TestMigrator_RunMigrations_Idempotent(t *testing.T) {
	db := openTestDB(t, "TestMigrator_RunMigrations_Idempotent")

	migrator := NewMigrator(db)
	for _, migration := range GetInitialMigrations() {
		migrator.AddMigration(migration)
	}

	if err := migrator.RunMigrations(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	// A second run applies nothing and must not fail.
	if err := migrator.RunMigrations(); err != nil {
		t.Fatalf("Second migration run failed: %v", err)
	}
}

func TestMigrations_UniqueServerIP(t *testing.T) {
	db := openTestDB(t, "TestMigrations_UniqueServerIP")

	migrator := NewMigrator(db)
	for _, migration := range GetInitialMigrations() {
		migrator.AddMigration(migration)
	}
	if err := migrator.RunMigrations(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	insert := `INSERT INTO servers (node, name, ip, os, host_id) VALUES (?, ?, ?, ?, ?)`
	if _, err := db.Exec(insert, "pve1", "vm-1", "10.0.0.5", "ubuntu", "h1"); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	// The ip column carries the unique constraint that arbitrates
	// concurrent provisioning.
	if _, err := db.Exec(insert, "pve1", "vm-2", "10.0.0.5", "ubuntu", "h1"); err == nil {
		t.Error("Expected duplicate IP insert to fail")
	}
}
