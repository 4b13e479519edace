package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	workspaceDir = ".taskdeck"
	databaseFile = "taskdeck.db"
)

// Options locate the workspace database.
type Options struct {
	Workspace string // project directory, "." when empty
	File      string // filename inside the workspace dir, defaults to taskdeck.db
}

func (o Options) workspace() string {
	if o.Workspace == "" {
		return "."
	}
	return o.Workspace
}

// Path returns the on-disk location of the database.
func (o Options) Path() string {
	file := o.File
	if file == "" {
		file = databaseFile
	}
	return filepath.Join(o.workspace(), workspaceDir, file)
}

// EnsureWorkspace creates the .taskdeck directory if missing and returns it.
func EnsureWorkspace(workspace string) (string, error) {
	dir := filepath.Join(workspace, workspaceDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Open opens the workspace database, creating it on first use. WAL lets
// the CLI and a running server share the file; busy_timeout rides out the
// short write locks SQLite still takes.
func Open(o Options) (*sql.DB, error) {
	if _, err := EnsureWorkspace(o.workspace()); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", o.Path())
	return sql.Open("sqlite", dsn)
}
