// Package db implements the store interfaces on database/sql.
//
// The same SQL runs against Postgres (pgx) and SQLite (modernc). Placeholders
// are written $1..$N in first-use order and never repeated, so both drivers
// bind them identically; timestamps are integer Unix milliseconds and JSON
// columns are TEXT for the same reason.
package db

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/himanstore/dmpilot/internal/store"
	"github.com/himanstore/dmpilot/migrations"
)

// Open connects to Postgres when the DSN has a postgres scheme, otherwise
// treats it as a SQLite path (standalone mode) and applies the embedded
// migrations in place. Postgres schemas are managed by the migrate command.
func Open(dsn string) (*sql.DB, error) {
	if isPostgres(dsn) {
		conn, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return conn, nil
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Claim relies on single-statement atomicity; WAL keeps concurrent
	// workers from serializing on reads.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite pragmas: %w", err)
	}
	if err := migrateSQLite(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func migrateSQLite(conn *sql.DB) error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("embedded migrations: %w", err)
	}
	drv, err := sqlite.WithInstance(conn, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migrate sqlite: %w", err)
	}
	return nil
}

// NewStores opens the database and wires every store implementation.
func NewStores(dsn string) (*store.Stores, *sql.DB, error) {
	conn, err := Open(dsn)
	if err != nil {
		return nil, nil, err
	}
	return Wrap(conn), conn, nil
}

// Wrap builds the store bundle on an already-open connection (tests).
func Wrap(conn *sql.DB) *store.Stores {
	return &store.Stores{
		Conversations: &ConversationStore{db: conn},
		Messages:      &MessageStore{db: conn},
		ReplyLog:      &ReplyLogStore{db: conn},
		Outbound:      &OutboundStore{db: conn},
		Catalog:       &CatalogStore{db: conn},
		Orders:        &OrderStore{db: conn},
		Notifications: &NotificationStore{db: conn},
		Settings:      &SettingsStore{db: conn},
	}
}
