package errorgroups

import (
	"golang.org/x/xerrors"

	"github.com/bryanwahyu/errorhub/internal/domain/textutil"
)

// Status of a group, changed only by operator action.
type Status string

const (
	StatusUnresolved Status = "unresolved"
	StatusResolved   Status = "resolved"
	StatusIgnored    Status = "ignored"
)

var (
	ErrNotFound      = xerrors.New("error group not found")
	ErrInvalidStatus = xerrors.New("invalid status")
	// ErrInvalidTransition is returned for a move between resolved and ignored.
	ErrInvalidTransition = xerrors.New("status transition not allowed")
)

// ParseStatus accepts only the three known statuses.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusUnresolved, StatusResolved, StatusIgnored:
		return st, nil
	default:
		return "", xerrors.Errorf("%q: %w", s, ErrInvalidStatus)
	}
}

// CanTransition reports whether an operator may move a group from one status
// to another. Resolved and ignored groups only go back to unresolved.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusUnresolved:
		return to == StatusResolved || to == StatusIgnored
	case StatusResolved, StatusIgnored:
		return to == StatusUnresolved
	}
	return false
}

// ErrorGroup is one distinct (scope, fingerprint) pair. Descriptive fields
// hold first-seen values; only EventCount, LastSeen and Status change later.
type ErrorGroup struct {
	ID             int64  `json:"id" db:"id"`
	ScopeID        int64  `json:"scope_id" db:"scope_id"`
	Fingerprint    string `json:"fingerprint" db:"fingerprint"`
	ExceptionType  string `json:"exception_type,omitempty" db:"exception_type"`
	ExceptionValue string `json:"exception_value,omitempty" db:"exception_value"`
	Culprit        string `json:"culprit,omitempty" db:"culprit"`
	Platform       string `json:"platform,omitempty" db:"platform"`
	Environment    string `json:"environment,omitempty" db:"environment"`
	Release        string `json:"release,omitempty" db:"app_release"`
	Level          string `json:"level,omitempty" db:"level"`
	Stacktrace     string `json:"stacktrace,omitempty" db:"stacktrace"`
	Contexts       string `json:"contexts,omitempty" db:"contexts"`
	Tags           string `json:"tags,omitempty" db:"tags"`
	Extra          string `json:"extra,omitempty" db:"extra"`
	EventCount     int64  `json:"event_count" db:"event_count"`
	// FirstSeen and LastSeen are unix seconds.
	FirstSeen int64  `json:"first_seen" db:"first_seen"`
	LastSeen  int64  `json:"last_seen" db:"last_seen"`
	Status    Status `json:"status" db:"status"`
}

// Column widths, in bytes, of the narrowest supported schema.
const (
	MaxExceptionTypeBytes = 255
	MaxCulpritBytes       = 512
	MaxPlatformBytes      = 64
	MaxEnvironmentBytes   = 128
	MaxReleaseBytes       = 255
	MaxLevelBytes         = 32
	MaxEventIDBytes       = 64
	// MaxTextBytes bounds the long text columns (MEDIUMTEXT on MySQL).
	MaxTextBytes = 1<<24 - 1
)

// Clamp truncates client supplied fields to their column widths.
func (g *ErrorGroup) Clamp() {
	g.ExceptionType = textutil.Truncate(g.ExceptionType, MaxExceptionTypeBytes)
	g.ExceptionValue = textutil.Truncate(g.ExceptionValue, MaxTextBytes)
	g.Culprit = textutil.Truncate(g.Culprit, MaxCulpritBytes)
	g.Platform = textutil.Truncate(g.Platform, MaxPlatformBytes)
	g.Environment = textutil.Truncate(g.Environment, MaxEnvironmentBytes)
	g.Release = textutil.Truncate(g.Release, MaxReleaseBytes)
	g.Level = textutil.Truncate(g.Level, MaxLevelBytes)
	g.Stacktrace = textutil.Truncate(g.Stacktrace, MaxTextBytes)
	g.Contexts = textutil.Truncate(g.Contexts, MaxTextBytes)
	g.Tags = textutil.Truncate(g.Tags, MaxTextBytes)
	g.Extra = textutil.Truncate(g.Extra, MaxTextBytes)
}

// Occurrence is one raw event received for a group.
type Occurrence struct {
	ID        int64  `json:"id" db:"id"`
	GroupID   int64  `json:"group_id" db:"group_id"`
	Timestamp int64  `json:"timestamp" db:"occurred_at"`
	EventID   string `json:"event_id,omitempty" db:"event_id"`
}

func (o *Occurrence) Clamp() {
	o.EventID = textutil.Truncate(o.EventID, MaxEventIDBytes)
}

// DailyCount is one bucket of the occurrence chart.
type DailyCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}
