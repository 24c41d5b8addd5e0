package sqlstore

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"golang.org/x/xerrors"

	"github.com/bryanwahyu/errorhub/internal/domain/attachments"
	"github.com/bryanwahyu/errorhub/internal/domain/scopes"
	"github.com/bryanwahyu/errorhub/internal/domain/sessions"
	"github.com/bryanwahyu/errorhub/internal/domain/transactions"
)

var (
	_ sessions.Repository     = (*Store)(nil)
	_ transactions.Repository = (*Store)(nil)
	_ attachments.Repository  = (*Store)(nil)
	_ scopes.Repository       = (*Store)(nil)
)

// UpsertSession implements sessions.Repository.
func (s *Store) UpsertSession(ctx context.Context, sess *sessions.Session) error {
	sess.Clamp()
	err := s.retry(ctx, func() error {
		return s.dialect.UpsertSession(ctx, s.db, sess)
	})
	if err != nil {
		return xerrors.Errorf("upsert session %q: %w", sess.SessionID, err)
	}
	return nil
}

// UpsertSessions implements sessions.Repository.
func (s *Store) UpsertSessions(ctx context.Context, batch []*sessions.Session) error {
	if len(batch) == 0 {
		return nil
	}
	for _, sess := range batch {
		sess.Clamp()
	}
	err := s.InTx(ctx, func(tx *sqlx.Tx) error {
		for _, sess := range batch {
			if err := s.dialect.UpsertSession(ctx, tx, sess); err != nil {
				return xerrors.Errorf("upsert session %q: %w", sess.SessionID, err)
			}
		}
		return nil
	})
	if err != nil {
		return xerrors.Errorf("upsert %d sessions: %w", len(batch), err)
	}
	return nil
}

func (s *Store) ListSessions(ctx context.Context, scopeID int64, limit int) ([]*sessions.Session, error) {
	var out []*sessions.Session
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(`
SELECT id, scope_id, session_id, distinct_id, status, started, duration, errors,
       app_release, environment, created_at, updated_at
FROM sessions WHERE scope_id=? ORDER BY updated_at DESC, id DESC LIMIT ?`), scopeID, clampLimit(limit, 50, 500))
	if err != nil {
		return nil, xerrors.Errorf("list sessions: %w", err)
	}
	return out, nil
}

// SaveTransaction implements transactions.Repository.
func (s *Store) SaveTransaction(ctx context.Context, t *transactions.Transaction) error {
	t.Clamp()
	id, err := s.dialect.Insert(ctx, s.db, `
INSERT INTO transactions
(scope_id, transaction_id, name, op, status, duration_ms, spans, occurred_at, created_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		t.ScopeID, t.TransactionID, t.Name, t.Op, t.Status, t.DurationMS, t.Spans, t.Timestamp, t.CreatedAt,
	)
	if err != nil {
		return xerrors.Errorf("insert transaction %q: %w", t.TransactionID, err)
	}
	t.ID = id
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, scopeID int64, limit int) ([]*transactions.Transaction, error) {
	var out []*transactions.Transaction
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(`
SELECT id, scope_id, transaction_id, name, op, status, duration_ms, spans, occurred_at, created_at
FROM transactions WHERE scope_id=? ORDER BY occurred_at DESC, id DESC LIMIT ?`), scopeID, clampLimit(limit, 50, 500))
	if err != nil {
		return nil, xerrors.Errorf("list transactions: %w", err)
	}
	return out, nil
}

// SaveAttachment implements attachments.Repository.
func (s *Store) SaveAttachment(ctx context.Context, a *attachments.Attachment) error {
	a.Clamp()
	id, err := s.dialect.Insert(ctx, s.db, `
INSERT INTO attachments (group_id, filename, content_type, size, encoding, data, created_at)
VALUES (?,?,?,?,?,?,?)`,
		a.GroupID, a.Filename, a.ContentType, a.Size, a.Encoding, a.Data, a.CreatedAt,
	)
	if err != nil {
		return xerrors.Errorf("insert attachment %q: %w", a.Filename, err)
	}
	a.ID = id
	return nil
}

func (s *Store) ListAttachments(ctx context.Context, groupID int64) ([]*attachments.Attachment, error) {
	var out []*attachments.Attachment
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(`
SELECT id, group_id, filename, content_type, size, encoding, data, created_at
FROM attachments WHERE group_id=? ORDER BY id`), groupID)
	if err != nil {
		return nil, xerrors.Errorf("list attachments: %w", err)
	}
	return out, nil
}

// GetScope implements scopes.Repository.
func (s *Store) GetScope(ctx context.Context, id int64) (*scopes.Scope, error) {
	var sc scopes.Scope
	err := s.db.GetContext(ctx, &sc, s.db.Rebind(`SELECT id, name, created_at FROM scopes WHERE id=?`), id)
	if xerrors.Is(err, sql.ErrNoRows) {
		return nil, xerrors.Errorf("scope %d: %w", id, scopes.ErrNotFound)
	}
	if err != nil {
		return nil, xerrors.Errorf("get scope %d: %w", id, err)
	}
	return &sc, nil
}

func (s *Store) ListScopes(ctx context.Context) ([]*scopes.Scope, error) {
	var out []*scopes.Scope
	if err := s.db.SelectContext(ctx, &out, `SELECT id, name, created_at FROM scopes ORDER BY id`); err != nil {
		return nil, xerrors.Errorf("list scopes: %w", err)
	}
	return out, nil
}

func (s *Store) SaveScope(ctx context.Context, sc *scopes.Scope) error {
	err := s.retry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, s.db.Rebind(s.dialect.UpsertScopeQuery()), sc.ID, sc.Name, sc.CreatedAt)
		return err
	})
	if err != nil {
		return xerrors.Errorf("save scope %d: %w", sc.ID, err)
	}
	return nil
}
