package errorgroups

import "context"

// Repository port
type Repository interface {
	// UpsertGroup inserts g or, when (ScopeID, Fingerprint) already exists,
	// increments its counter and last_seen. The occurrence is written in the
	// same transaction. created is true when this call inserted the row.
	UpsertGroup(ctx context.Context, g *ErrorGroup, occ Occurrence) (stored *ErrorGroup, created bool, err error)

	GetGroup(ctx context.Context, id int64) (*ErrorGroup, error)
	// ListGroups returns newest last_seen first. An empty status lists all.
	ListGroups(ctx context.Context, scopeID int64, status Status, limit int) ([]*ErrorGroup, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error

	ListOccurrences(ctx context.Context, groupID int64, limit int) ([]*Occurrence, error)
	// OccurrencesSince returns occurrence timestamps (unix seconds) >= since.
	OccurrencesSince(ctx context.Context, groupID int64, since int64) ([]int64, error)
}
