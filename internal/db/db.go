// Package db opens the sqlite databases used for local state.
package db

import (
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/assetsync/internal/utils"
)

// sidecarPragma keeps all state in the single database file. Rollback
// journals are deleted on commit so no companion file outlives a write.
const sidecarPragma = `
PRAGMA journal_mode=DELETE;
PRAGMA synchronous=NORMAL;
PRAGMA busy_timeout=5000;
PRAGMA temp_store=MEMORY;
`

// Open connects to the database at path, creating the file and its parent
// directory when missing. Sidecars are written by one goroutine at a time, so
// a single connection is kept.
func Open(path string) (*sqlx.DB, error) {
	if err := utils.EnsureParent(path); err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}

	dsn, err := fileURI(path)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}

	slog.Debug("db open", "driver", driverID, "path", path)
	conn, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("db: connect %q: %w", path, err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if _, err := conn.Exec(sidecarPragma); err != nil {
		conn.Close()
		return nil, fmt.Errorf("db: pragmas: %w", err)
	}

	return conn, nil
}

// fileURI turns an OS path into a sqlite URI filename. The path is
// percent-encoded so '#', '?' and '%' stay part of the name.
func fileURI(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	p := filepath.ToSlash(abs)
	if !strings.HasPrefix(p, "/") {
		// windows drive letter
		p = "/" + p
	}

	u := url.URL{
		Scheme:   "file",
		Path:     p,
		RawQuery: "_txlock=immediate&mode=rwc",
	}
	return u.String(), nil
}
