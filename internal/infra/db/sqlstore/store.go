// Package sqlstore implements every repository port on top of sqlx. The
// statements that differ between databases (atomic upserts, id retrieval,
// retry classification) live behind Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	"golang.org/x/xerrors"

	"github.com/bryanwahyu/errorhub/internal/domain/errorgroups"
	"github.com/bryanwahyu/errorhub/internal/domain/sessions"
)

// Dialect is implemented by the mysql, postgres and sqlite packages.
type Dialect interface {
	Name() string
	// Schema returns ";"-separated idempotent DDL.
	Schema() string
	// UpsertGroup runs the atomic insert-or-increment inside tx and returns
	// the stored row.
	UpsertGroup(ctx context.Context, tx *sqlx.Tx, g *errorgroups.ErrorGroup) (*errorgroups.ErrorGroup, error)
	UpsertSession(ctx context.Context, db sqlx.ExtContext, s *sessions.Session) error
	UpsertScopeQuery() string
	// Insert executes an INSERT and returns the generated id.
	Insert(ctx context.Context, db sqlx.ExtContext, query string, args ...any) (int64, error)
	// Retryable reports lock, deadlock and serialization failures.
	Retryable(err error) bool
}

// Option configures a Store.
type Option func(*Store)

// WithMaxRetries bounds the retries of a conflicting write.
func WithMaxRetries(n uint64) Option {
	return func(s *Store) { s.maxRetries = n }
}

// Store implements the errorgroups, sessions, transactions, attachments and
// scopes repositories.
type Store struct {
	db         *sqlx.DB
	dialect    Dialect
	maxRetries uint64
}

func New(db *sqlx.DB, dialect Dialect, opts ...Option) *Store {
	s := &Store{db: db, dialect: dialect, maxRetries: 5}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB exposes the underlying handle, mostly for health checks.
func (s *Store) DB() *sqlx.DB { return s.db }

func (s *Store) Dialect() Dialect { return s.dialect }

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the dialect schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(s.dialect.Schema(), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return xerrors.Errorf("migrate %s: %w", s.dialect.Name(), err)
		}
	}
	return nil
}

// retry runs op until it succeeds, fails with a non-retryable error or the
// retry budget is spent.
func (s *Store) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	policy := backoff.WithContext(backoff.WithMaxRetries(b, s.maxRetries), ctx)

	return backoff.Retry(func() error {
		err := op()
		if err == nil || s.dialect.Retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}

// InTx runs fn in a transaction, retrying the whole transaction on conflicts.
func (s *Store) InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return s.retry(ctx, func() error {
		return s.runTx(ctx, fn)
	})
}

func (s *Store) runTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return xerrors.Errorf("begin transaction: %w", err)
	}
	defer func() {
		rerr := tx.Rollback()
		if rerr == nil || xerrors.Is(rerr, sql.ErrTxDone) {
			return
		}
		err = xerrors.Errorf("rollback (%s): %w", rerr.Error(), err)
	}()

	if err := fn(tx); err != nil {
		return xerrors.Errorf("execute transaction: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return xerrors.Errorf("commit transaction: %w", err)
	}
	return nil
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
