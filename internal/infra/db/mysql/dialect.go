package mysql

import (
	"context"
	_ "embed"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"golang.org/x/xerrors"

	"github.com/bryanwahyu/errorhub/internal/domain/errorgroups"
	"github.com/bryanwahyu/errorhub/internal/domain/sessions"
	"github.com/bryanwahyu/errorhub/internal/infra/db/sqlstore"
)

//go:embed schema.sql
var schema string

// MySQL error numbers worth retrying.
const (
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

// Dialect implements sqlstore.Dialect for MySQL 8.
type Dialect struct{}

var _ sqlstore.Dialect = Dialect{}

func (Dialect) Name() string   { return "mysql" }
func (Dialect) Schema() string { return schema }

// LAST_INSERT_ID(id) makes the driver report the existing row id when the
// insert turned into an update.
const upsertGroup = sqlstore.GroupInsert + `
ON DUPLICATE KEY UPDATE
 event_count=event_count+1,
 last_seen=VALUES(last_seen),
 id=LAST_INSERT_ID(id)`

func (Dialect) UpsertGroup(ctx context.Context, tx *sqlx.Tx, g *errorgroups.ErrorGroup) (*errorgroups.ErrorGroup, error) {
	res, err := tx.ExecContext(ctx, upsertGroup, sqlstore.GroupInsertArgs(g)...)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	var out errorgroups.ErrorGroup
	if err := tx.GetContext(ctx, &out, `SELECT `+sqlstore.GroupColumns+` FROM error_groups WHERE id=?`, id); err != nil {
		return nil, err
	}
	return &out, nil
}

const upsertSession = `
INSERT INTO sessions
(scope_id, session_id, distinct_id, status, started, duration, errors,
 app_release, environment, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 status=VALUES(status),
 duration=COALESCE(VALUES(duration), duration),
 errors=VALUES(errors),
 updated_at=VALUES(updated_at)`

func (Dialect) UpsertSession(ctx context.Context, db sqlx.ExtContext, s *sessions.Session) error {
	_, err := db.ExecContext(ctx, upsertSession,
		s.ScopeID, s.SessionID, s.DistinctID, s.Status, s.Started, s.Duration, s.Errors,
		s.Release, s.Environment, s.CreatedAt, s.UpdatedAt,
	)
	return err
}

func (Dialect) UpsertScopeQuery() string {
	return `INSERT INTO scopes (id, name, created_at) VALUES (?,?,?)
ON DUPLICATE KEY UPDATE name=VALUES(name)`
}

func (Dialect) Insert(ctx context.Context, db sqlx.ExtContext, query string, args ...any) (int64, error) {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (Dialect) Retryable(err error) bool {
	var myErr *mysql.MySQLError
	if !xerrors.As(err, &myErr) {
		return false
	}
	return myErr.Number == errDeadlock || myErr.Number == errLockWaitTimeout
}
