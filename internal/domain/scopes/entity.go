package scopes

import (
	"context"
	"strconv"

	"golang.org/x/xerrors"
)

var (
	ErrNotFound     = xerrors.New("scope not found")
	ErrUnauthorized = xerrors.New("invalid ingest key")
)

// Scope is the tenant boundary inside which fingerprints are unique. Scopes
// come from operator configuration.
type Scope struct {
	ID        int64  `json:"id" db:"id"`
	Name      string `json:"name" db:"name"`
	CreatedAt int64  `json:"created_at" db:"created_at"`
}

// ParseID parses the scope segment of an ingest path. Anything that is not
// a positive integer is reported as ErrNotFound.
func ParseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, xerrors.Errorf("scope %q: %w", s, ErrNotFound)
	}
	return id, nil
}

// Repository port
type Repository interface {
	GetScope(ctx context.Context, id int64) (*Scope, error)
	ListScopes(ctx context.Context) ([]*Scope, error)
	// SaveScope inserts the scope or renames an existing one.
	SaveScope(ctx context.Context, s *Scope) error
}
