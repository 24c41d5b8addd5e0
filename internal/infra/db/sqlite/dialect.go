package sqlite

import (
	"context"
	_ "embed"

	"github.com/jmoiron/sqlx"
	"golang.org/x/xerrors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/bryanwahyu/errorhub/internal/domain/errorgroups"
	"github.com/bryanwahyu/errorhub/internal/domain/sessions"
	"github.com/bryanwahyu/errorhub/internal/infra/db/sqlstore"
)

//go:embed schema.sql
var schema string

// Dialect implements sqlstore.Dialect for SQLite 3.35+.
type Dialect struct{}

var _ sqlstore.Dialect = Dialect{}

func (Dialect) Name() string   { return "sqlite" }
func (Dialect) Schema() string { return schema }

const upsertGroup = sqlstore.GroupInsert + `
ON CONFLICT (scope_id, fingerprint) DO UPDATE SET
 event_count = error_groups.event_count + 1,
 last_seen = excluded.last_seen
RETURNING ` + sqlstore.GroupColumns

func (Dialect) UpsertGroup(ctx context.Context, tx *sqlx.Tx, g *errorgroups.ErrorGroup) (*errorgroups.ErrorGroup, error) {
	var out errorgroups.ErrorGroup
	if err := tx.GetContext(ctx, &out, upsertGroup, sqlstore.GroupInsertArgs(g)...); err != nil {
		return nil, err
	}
	return &out, nil
}

const upsertSession = `
INSERT INTO sessions
(scope_id, session_id, distinct_id, status, started, duration, errors,
 app_release, environment, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT (scope_id, session_id) DO UPDATE SET
 status = excluded.status,
 duration = COALESCE(excluded.duration, sessions.duration),
 errors = excluded.errors,
 updated_at = excluded.updated_at`

func (Dialect) UpsertSession(ctx context.Context, db sqlx.ExtContext, s *sessions.Session) error {
	_, err := db.ExecContext(ctx, upsertSession,
		s.ScopeID, s.SessionID, s.DistinctID, s.Status, s.Started, s.Duration, s.Errors,
		s.Release, s.Environment, s.CreatedAt, s.UpdatedAt,
	)
	return err
}

func (Dialect) UpsertScopeQuery() string {
	return `INSERT INTO scopes (id, name, created_at) VALUES (?,?,?)
ON CONFLICT (id) DO UPDATE SET name = excluded.name`
}

func (Dialect) Insert(ctx context.Context, db sqlx.ExtContext, query string, args ...any) (int64, error) {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (Dialect) Retryable(err error) bool {
	var sqliteErr *sqlite.Error
	if !xerrors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}
