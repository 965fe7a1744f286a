package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	// Postgres driver, registered via database/sql.
	_ "github.com/lib/pq"
)

// ErrNotFound is returned by repositories when an owner-scoped lookup matches
// no row. A row owned by another identity is indistinguishable from a missing
// one, so callers map this to 404 without leaking existence.
var ErrNotFound = errors.New("not found")

// DB wraps sql.DB with repository-friendly defaults.
type DB struct {
	*sql.DB
}

// New opens a Postgres connection pool and verifies connectivity.
func New(databaseURL string) (*DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db}, nil
}
