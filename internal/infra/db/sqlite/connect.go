// Package sqlite is the embedded default database. All access goes through a
// single connection, which serializes writers inside the process.
package sqlite

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"golang.org/x/xerrors"
	_ "modernc.org/sqlite"
)

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=ON",
}

// Connect opens (creating if needed) the database file at path.
func Connect(ctx context.Context, path string) (*sqlx.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, xerrors.Errorf("open sqlite %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, xerrors.Errorf("setting pragma %q: %w", p, err)
		}
	}
	// sqlx picks "?" bindvars from the driver name.
	return sqlx.NewDb(db, "sqlite3"), nil
}
