package sessions

import (
	"context"

	"github.com/bryanwahyu/errorhub/internal/domain/textutil"
)

// Status of a client session.
type Status string

const (
	StatusOK       Status = "ok"
	StatusExited   Status = "exited"
	StatusCrashed  Status = "crashed"
	StatusErrored  Status = "errored"
	StatusAbnormal Status = "abnormal"
)

// AggregatePrefix marks sessions synthesized from an aggregated "sessions" item.
const AggregatePrefix = "aggregate_"

// NormalizeStatus maps unknown or empty values to ok.
func NormalizeStatus(s string) Status {
	switch st := Status(s); st {
	case StatusOK, StatusExited, StatusCrashed, StatusErrored, StatusAbnormal:
		return st
	default:
		return StatusOK
	}
}

// Session is one (scope, session id) health record. Release, Environment,
// DistinctID and Started are written on creation only.
type Session struct {
	ID          int64    `json:"id" db:"id"`
	ScopeID     int64    `json:"scope_id" db:"scope_id"`
	SessionID   string   `json:"session_id" db:"session_id"`
	DistinctID  string   `json:"distinct_id,omitempty" db:"distinct_id"`
	Status      Status   `json:"status" db:"status"`
	Started     *int64   `json:"started,omitempty" db:"started"`
	Duration    *float64 `json:"duration,omitempty" db:"duration"`
	Errors      int64    `json:"errors" db:"errors"`
	Release     string   `json:"release,omitempty" db:"app_release"`
	Environment string   `json:"environment,omitempty" db:"environment"`
	CreatedAt   int64    `json:"created_at" db:"created_at"`
	UpdatedAt   int64    `json:"updated_at" db:"updated_at"`
}

const (
	MaxSessionIDBytes   = 128
	MaxDistinctIDBytes  = 255
	MaxReleaseBytes     = 255
	MaxEnvironmentBytes = 128
)

// Clamp truncates client supplied fields to their column widths.
func (s *Session) Clamp() {
	s.SessionID = textutil.Truncate(s.SessionID, MaxSessionIDBytes)
	s.DistinctID = textutil.Truncate(s.DistinctID, MaxDistinctIDBytes)
	s.Release = textutil.Truncate(s.Release, MaxReleaseBytes)
	s.Environment = textutil.Truncate(s.Environment, MaxEnvironmentBytes)
}

// Repository port
type Repository interface {
	// UpsertSession creates the record or updates status, duration, errors
	// and updated_at of an existing one.
	UpsertSession(ctx context.Context, s *Session) error
	// UpsertSessions applies a batch atomically: all sessions are stored or
	// none are.
	UpsertSessions(ctx context.Context, batch []*Session) error
	ListSessions(ctx context.Context, scopeID int64, limit int) ([]*Session, error)
}
