// Package errorgroups holds the operator use cases for error groups: reading
// them back, changing their status and charting their occurrences.
package errorgroups

import (
	"context"
	"time"

	"cdr.dev/slog/v3"
	"golang.org/x/xerrors"

	"github.com/bryanwahyu/errorhub/internal/application"
	"github.com/bryanwahyu/errorhub/internal/domain/attachments"
	domain "github.com/bryanwahyu/errorhub/internal/domain/errorgroups"
)

const (
	DefaultChartDays = 14
	MaxChartDays     = 90
)

// Service implements the operator use cases on error groups.
type Service struct {
	Repo        domain.Repository
	Attachments attachments.Repository
	Clock       application.Clock
	Logger      slog.Logger
}

func (s *Service) Get(ctx context.Context, id int64) (*domain.ErrorGroup, error) {
	return s.Repo.GetGroup(ctx, id)
}

func (s *Service) List(ctx context.Context, scopeID int64, status string, limit int) ([]*domain.ErrorGroup, error) {
	var st domain.Status
	if status != "" {
		var err error
		if st, err = domain.ParseStatus(status); err != nil {
			return nil, err
		}
	}
	return s.Repo.ListGroups(ctx, scopeID, st, limit)
}

// Occurrences lists the newest occurrences of a group.
func (s *Service) Occurrences(ctx context.Context, id int64, limit int) ([]*domain.Occurrence, error) {
	if _, err := s.Repo.GetGroup(ctx, id); err != nil {
		return nil, err
	}
	return s.Repo.ListOccurrences(ctx, id, limit)
}

// ListAttachments returns the attachments bound to a group.
func (s *Service) ListAttachments(ctx context.Context, id int64) ([]*attachments.Attachment, error) {
	if _, err := s.Repo.GetGroup(ctx, id); err != nil {
		return nil, err
	}
	return s.Attachments.ListAttachments(ctx, id)
}

// UpdateStatus moves a group to status. Setting the current status again is
// accepted and writes nothing.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status string) (*domain.ErrorGroup, error) {
	to, err := domain.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	g, err := s.Repo.GetGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	if g.Status == to {
		return g, nil
	}
	if !domain.CanTransition(g.Status, to) {
		return nil, xerrors.Errorf("%s -> %s: %w", g.Status, to, domain.ErrInvalidTransition)
	}
	if err := s.Repo.UpdateStatus(ctx, id, to); err != nil {
		return nil, err
	}
	s.Logger.Info(ctx, "error group status changed",
		slog.F("group_id", id),
		slog.F("from", g.Status),
		slog.F("to", to),
	)
	g.Status = to
	return g, nil
}

// Chart counts occurrences per UTC day over the last days days, today
// included, oldest first. Days without occurrences are reported as zero.
func (s *Service) Chart(ctx context.Context, id int64, days int) ([]domain.DailyCount, error) {
	if days <= 0 {
		days = DefaultChartDays
	}
	if days > MaxChartDays {
		days = MaxChartDays
	}
	if _, err := s.Repo.GetGroup(ctx, id); err != nil {
		return nil, err
	}

	now := s.Clock.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start := today.AddDate(0, 0, -(days - 1))

	stamps, err := s.Repo.OccurrencesSince(ctx, id, start.Unix())
	if err != nil {
		return nil, err
	}

	out := make([]domain.DailyCount, days)
	index := make(map[string]int, days)
	for i := range out {
		day := start.AddDate(0, 0, i).Format(time.DateOnly)
		out[i].Day = day
		index[day] = i
	}
	for _, ts := range stamps {
		if i, ok := index[time.Unix(ts, 0).UTC().Format(time.DateOnly)]; ok {
			out[i].Count++
		}
	}
	return out, nil
}
