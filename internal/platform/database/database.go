package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// maxOpenConns bounds the pool below what a busy server might otherwise
// open. The store serializes writes at the application layer (spec §4.2,
// "the store serializes writes; reads may proceed concurrently"), so Open
// does not need a large pool to get write throughput — a handful of
// connections covers concurrent reads (credential/profile lookups, execution
// polling) plus the single in-flight write.
const maxOpenConns = 10

// Open establishes the PostgreSQL connection backing Airlock's credential,
// profile, and execution store, verifying connectivity with a ping before
// returning. The returned *sql.DB must be closed by the caller (see
// Application.Stop).
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}
