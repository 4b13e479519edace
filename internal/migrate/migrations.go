package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"time"
)

//go:embed sql/*.sql
var files embed.FS

// Migrate applies any embedded migrations that have not run yet, in
// filename order, all inside one transaction. Applied migrations are
// recorded by name in schema_migrations, so a renamed or renumbered
// file counts as a new migration rather than being silently skipped.
func Migrate(db *sql.DB) error {
	names, err := fs.Glob(files, "sql/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations(
		name TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	applied, err := appliedSet(tx)
	if err != nil {
		return err
	}

	for _, name := range names {
		base := path.Base(name)
		if applied[base] {
			continue
		}
		script, err := files.ReadFile(name)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(script)); err != nil {
			return fmt.Errorf("migration %s: %w", base, err)
		}
		ts := time.Now().UTC().Format(time.RFC3339)
		if _, err := tx.Exec(`INSERT INTO schema_migrations(name, applied_at) VALUES (?,?)`, base, ts); err != nil {
			return fmt.Errorf("record migration %s: %w", base, err)
		}
	}
	return tx.Commit()
}

func appliedSet(tx *sql.Tx) (map[string]bool, error) {
	rows, err := tx.Query(`SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()
	applied := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}
