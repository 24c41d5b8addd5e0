package sqlstore

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"golang.org/x/xerrors"

	"github.com/bryanwahyu/errorhub/internal/domain/errorgroups"
)

// GroupColumns is the select list matching errorgroups.ErrorGroup.
const GroupColumns = `id, scope_id, fingerprint, exception_type, exception_value, culprit,
 platform, environment, app_release, level, stacktrace, contexts, tags, extra,
 event_count, first_seen, last_seen, status`

// GroupInsert inserts a fresh group. Dialects append their conflict clause.
const GroupInsert = `
INSERT INTO error_groups
(scope_id, fingerprint, exception_type, exception_value, culprit,
 platform, environment, app_release, level, stacktrace, contexts, tags, extra,
 event_count, first_seen, last_seen, status)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`

// GroupInsertArgs returns the arguments for GroupInsert.
func GroupInsertArgs(g *errorgroups.ErrorGroup) []any {
	status := g.Status
	if status == "" {
		status = errorgroups.StatusUnresolved
	}
	return []any{
		g.ScopeID, g.Fingerprint, g.ExceptionType, g.ExceptionValue, g.Culprit,
		g.Platform, g.Environment, g.Release, g.Level, g.Stacktrace, g.Contexts, g.Tags, g.Extra,
		1, g.FirstSeen, g.LastSeen, status,
	}
}

var _ errorgroups.Repository = (*Store)(nil)

// UpsertGroup implements errorgroups.Repository. Oversized fields are
// truncated to their column widths first.
func (s *Store) UpsertGroup(ctx context.Context, g *errorgroups.ErrorGroup, occ errorgroups.Occurrence) (*errorgroups.ErrorGroup, bool, error) {
	g.Clamp()
	occ.Clamp()
	var stored *errorgroups.ErrorGroup
	err := s.InTx(ctx, func(tx *sqlx.Tx) error {
		out, err := s.dialect.UpsertGroup(ctx, tx, g)
		if err != nil {
			return xerrors.Errorf("upsert group: %w", err)
		}
		occ.GroupID = out.ID
		if _, err := s.dialect.Insert(ctx, tx,
			`INSERT INTO error_occurrences (group_id, occurred_at, event_id) VALUES (?,?,?)`,
			occ.GroupID, occ.Timestamp, occ.EventID,
		); err != nil {
			return xerrors.Errorf("insert occurrence: %w", err)
		}
		stored = out
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return stored, stored.EventCount == 1, nil
}

func (s *Store) GetGroup(ctx context.Context, id int64) (*errorgroups.ErrorGroup, error) {
	var g errorgroups.ErrorGroup
	err := s.db.GetContext(ctx, &g, s.db.Rebind(`SELECT `+GroupColumns+` FROM error_groups WHERE id=?`), id)
	if xerrors.Is(err, sql.ErrNoRows) {
		return nil, errorgroups.ErrNotFound
	}
	if err != nil {
		return nil, xerrors.Errorf("get group %d: %w", id, err)
	}
	return &g, nil
}

func (s *Store) ListGroups(ctx context.Context, scopeID int64, status errorgroups.Status, limit int) ([]*errorgroups.ErrorGroup, error) {
	q := `SELECT ` + GroupColumns + ` FROM error_groups WHERE scope_id=?`
	args := []any{scopeID}
	if status != "" {
		q += ` AND status=?`
		args = append(args, status)
	}
	q += ` ORDER BY last_seen DESC, id DESC LIMIT ?`
	args = append(args, clampLimit(limit, 50, 500))

	var out []*errorgroups.ErrorGroup
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(q), args...); err != nil {
		return nil, xerrors.Errorf("list groups: %w", err)
	}
	return out, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id int64, status errorgroups.Status) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE error_groups SET status=? WHERE id=?`), status, id)
	if err != nil {
		return xerrors.Errorf("update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return xerrors.Errorf("update status: %w", err)
	}
	if n == 0 {
		return errorgroups.ErrNotFound
	}
	return nil
}

func (s *Store) ListOccurrences(ctx context.Context, groupID int64, limit int) ([]*errorgroups.Occurrence, error) {
	var out []*errorgroups.Occurrence
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(`
SELECT id, group_id, occurred_at, event_id FROM error_occurrences
WHERE group_id=? ORDER BY occurred_at DESC, id DESC LIMIT ?`), groupID, clampLimit(limit, 50, 1000))
	if err != nil {
		return nil, xerrors.Errorf("list occurrences: %w", err)
	}
	return out, nil
}

func (s *Store) OccurrencesSince(ctx context.Context, groupID int64, since int64) ([]int64, error) {
	var out []int64
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(`
SELECT occurred_at FROM error_occurrences
WHERE group_id=? AND occurred_at>=? ORDER BY occurred_at`), groupID, since)
	if err != nil {
		return nil, xerrors.Errorf("occurrences since: %w", err)
	}
	return out, nil
}
