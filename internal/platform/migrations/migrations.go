// Package migrations applies Airlock's embedded SQL schema against a
// postgres database on startup.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"
)

//go:embed *.sql
var files embed.FS

// Apply executes every embedded migration file in lexical order. It is
// idempotent: each migration uses IF NOT EXISTS guards, and Apply itself
// tolerates "duplicate column" failures from ALTER TABLE ADD COLUMN
// statements re-run against an already-migrated database.
func Apply(ctx context.Context, db *sql.DB) error {
	entries, err := files.ReadDir(".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		contents, err := files.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, string(contents)); err != nil {
			if isDuplicateColumn(err) {
				continue
			}
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}

// isDuplicateColumn reports whether err is postgres error code 42701
// (duplicate_column), raised when an ALTER TABLE ADD COLUMN re-runs
// against a database that already has the column.
func isDuplicateColumn(err error) bool {
	return strings.Contains(err.Error(), "42701") || strings.Contains(strings.ToLower(err.Error()), "already exists")
}
