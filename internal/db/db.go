// internal/db/db.go
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/conferia/roombook/internal/config"
	"github.com/conferia/roombook/internal/db/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type DB struct {
	*sql.DB
	Queries *store.Queries
}

// New opens a SQLite database for the given data source name, ensures
// foreign keys and immediate write transactions are enabled in the DSN,
// applies embedded migrations, and returns a DB with queries bound to
// the connection.
func New(dataSourceName string) (*DB, error) {
	dataSourceName = normalizeDSN(dataSourceName)
	sqlDB, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Run migrations
	if err := runMigrations(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("error running migrations: %w", err)
	}

	return &DB{
		DB:      sqlDB,
		Queries: store.New(sqlDB),
	}, nil
}

// NewFromConfig creates a new DB instance from cfg by opening the
// configured database, applying migrations, and returning a DB with
// queries bound to the opened connection. It supports "sqlite" (creates
// the database directory if needed) and "turso" (constructs a libsql
// connection string with the provided auth token).
func NewFromConfig(cfg *config.Config) (*DB, error) {
	var db *sql.DB
	var err error

	switch cfg.Database.Driver {
	case "sqlite":
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Filename), 0755); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
		db, err = sql.Open("sqlite3", normalizeDSN(cfg.Database.Filename))

	case "turso":
		connector := fmt.Sprintf("%s?authToken=%s", cfg.Database.URL, cfg.Database.AuthToken)
		db, err = sql.Open("libsql", connector)

	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Run migrations
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error running migrations: %w", err)
	}

	return &DB{
		DB:      db,
		Queries: store.New(db),
	}, nil
}

// normalizeDSN ensures the SQLite DSN enables foreign key enforcement
// and starts write transactions with BEGIN IMMEDIATE, so conflicting
// writers fail fast instead of deadlocking on lock upgrade.
func normalizeDSN(dataSourceName string) string {
	dataSourceName = appendDSNParam(dataSourceName, "_fk=", "_fk=1")
	dataSourceName = appendDSNParam(dataSourceName, "_busy_timeout=", "_busy_timeout=5000")
	return appendDSNParam(dataSourceName, "_txlock=", "_txlock=immediate")
}

func appendDSNParam(dataSourceName, key, param string) string {
	if strings.Contains(dataSourceName, key) {
		return dataSourceName
	}
	if strings.Contains(dataSourceName, "?") {
		return dataSourceName + "&" + param
	}
	return dataSourceName + "?" + param
}

// runMigrations applies the embedded SQL migrations from migrationsFS to
// the provided database. A "no change" result is not treated as an error.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("could not create migrate driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not create source: %w", err)
	}

	m, err := migrate.NewWithInstance(
		"iofs", source,
		"sqlite3", driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

// WithTx creates a new DB instance with the given transaction
func (db *DB) WithTx(tx *sql.Tx) *DB {
	return &DB{
		DB:      db.DB,
		Queries: store.New(tx),
	}
}

// BeginTx starts a transaction
func (db *DB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := db.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error beginning transaction: %w", err)
	}
	return tx, nil
}

// RunInTx runs the given function in a transaction
func (db *DB) RunInTx(ctx context.Context, fn func(*DB) error) error {
	tx, err := db.BeginTx(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	txDB := db.WithTx(tx)
	if err := fn(txDB); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("error rolling back: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing: %w", err)
	}

	return nil
}
