package postgres

import (
	"context"
	_ "embed"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"golang.org/x/xerrors"

	"github.com/bryanwahyu/errorhub/internal/domain/errorgroups"
	"github.com/bryanwahyu/errorhub/internal/domain/sessions"
	"github.com/bryanwahyu/errorhub/internal/infra/db/sqlstore"
)

//go:embed schema.sql
var schema string

// Dialect implements sqlstore.Dialect for PostgreSQL.
type Dialect struct{}

var _ sqlstore.Dialect = Dialect{}

func (Dialect) Name() string   { return "postgres" }
func (Dialect) Schema() string { return schema }

const upsertGroup = sqlstore.GroupInsert + `
ON CONFLICT (scope_id, fingerprint) DO UPDATE SET
 event_count = error_groups.event_count + 1,
 last_seen = EXCLUDED.last_seen
RETURNING ` + sqlstore.GroupColumns

func (Dialect) UpsertGroup(ctx context.Context, tx *sqlx.Tx, g *errorgroups.ErrorGroup) (*errorgroups.ErrorGroup, error) {
	var out errorgroups.ErrorGroup
	if err := tx.GetContext(ctx, &out, tx.Rebind(upsertGroup), sqlstore.GroupInsertArgs(g)...); err != nil {
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
 status = EXCLUDED.status,
 duration = COALESCE(EXCLUDED.duration, sessions.duration),
 errors = EXCLUDED.errors,
 updated_at = EXCLUDED.updated_at`

func (Dialect) UpsertSession(ctx context.Context, db sqlx.ExtContext, s *sessions.Session) error {
	_, err := db.ExecContext(ctx, db.Rebind(upsertSession),
		s.ScopeID, s.SessionID, s.DistinctID, s.Status, s.Started, s.Duration, s.Errors,
		s.Release, s.Environment, s.CreatedAt, s.UpdatedAt,
	)
	return err
}

func (Dialect) UpsertScopeQuery() string {
	return `INSERT INTO scopes (id, name, created_at) VALUES (?,?,?)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`
}

// Insert appends RETURNING id since lib/pq has no LastInsertId.
func (Dialect) Insert(ctx context.Context, db sqlx.ExtContext, query string, args ...any) (int64, error) {
	var id int64
	if err := db.QueryRowxContext(ctx, db.Rebind(query+" RETURNING id"), args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (Dialect) Retryable(err error) bool {
	var pqErr *pq.Error
	if !xerrors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code.Name() {
	case "serialization_failure", "deadlock_detected", "unique_violation":
		return true
	}
	return false
}
