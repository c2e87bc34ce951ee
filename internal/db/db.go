// Package db manages the on-disk workspace backing a bidline installation.
// A workspace is any directory holding a .bidline/ dot directory with the
// SQLite database inside. Open creates the layout on first use, so `bl`
// works from an empty directory without a setup step.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	workspaceDir = ".bidline"
	dbFileName   = "bidline.db"
)

// Config selects the workspace root. Empty means the current directory.
type Config struct {
	Workspace string
}

// Path returns the database file path inside a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, workspaceDir, dbFileName)
}

// EnsureWorkspace creates the dot directory if missing and returns its path.
func EnsureWorkspace(workspace string) (string, error) {
	if workspace == "" {
		workspace = "."
	}
	dir := filepath.Join(workspace, workspaceDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace %s: %w", dir, err)
	}
	return dir, nil
}

// Open ensures the workspace exists and opens its database. Foreign keys are
// enforced; WAL mode plus a busy timeout keep the CLI and the API server
// from tripping over each other's short writes.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	path := Path(cfg.Workspace)
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return conn, nil
}
