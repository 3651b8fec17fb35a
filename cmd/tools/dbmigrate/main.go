// cmd/tools/dbmigrate/main.go
//
// Standalone migration runner. The server applies embedded migrations
// on startup; this tool exists for rollbacks and for inspecting the
// schema version of a database file.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	var (
		dbPath         = flag.String("db", "data/roombook.db", "Path to SQLite database")
		migrationsPath = flag.String("migrations", "internal/db/migrations", "Path to migrations directory")
		command        = flag.String("command", "", "Command to run (up, down, force, version)")
	)
	flag.Parse()

	if *command == "" {
		log.Println("A command is required:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	m, err := newMigrator(*dbPath, *migrationsPath)
	if err != nil {
		log.Fatalf("Failed to create migrate instance: %v", err)
	}
	defer m.Close()

	switch *command {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		log.Println("Successfully ran migrations up")

	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("Failed to rollback migrations: %v", err)
		}
		log.Println("Successfully ran migrations down")

	case "force":
		if flag.NArg() != 1 {
			log.Fatal("force requires a version argument")
		}
		version, err := strconv.Atoi(flag.Arg(0))
		if err != nil {
			log.Fatalf("Invalid version %q: %v", flag.Arg(0), err)
		}
		if err := m.Force(version); err != nil {
			log.Fatalf("Failed to force version: %v", err)
		}
		log.Printf("Forced schema version to %d", version)

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			log.Fatalf("Failed to get version: %v", err)
		}
		log.Printf("Current version: %d, Dirty: %v", version, dirty)

	default:
		log.Fatalf("Unknown command: %s", *command)
	}
}

func newMigrator(dbPath, migrationsPath string) (*migrate.Migrate, error) {
	absDB, err := filepath.Abs(dbPath)
	if err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}
	absMigrations, err := filepath.Abs(migrationsPath)
	if err != nil {
		return nil, fmt.Errorf("invalid migrations path: %w", err)
	}
	if _, err := os.Stat(absMigrations); os.IsNotExist(err) {
		return nil, fmt.Errorf("migrations directory does not exist: %s", absMigrations)
	}
	if err := os.MkdirAll(filepath.Dir(absDB), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	return migrate.New(
		fmt.Sprintf("file://%s", absMigrations),
		fmt.Sprintf("sqlite3://%s", absDB),
	)
}
