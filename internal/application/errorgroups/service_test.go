package errorgroups_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"cdr.dev/slog/v3/sloggers/slogtest"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/bryanwahyu/errorhub/internal/application/errorgroups"
	"github.com/bryanwahyu/errorhub/internal/domain/attachments"
	domain "github.com/bryanwahyu/errorhub/internal/domain/errorgroups"
	"github.com/bryanwahyu/errorhub/internal/domain/scopes"
	"github.com/bryanwahyu/errorhub/internal/infra/db/sqlite"
	"github.com/bryanwahyu/errorhub/internal/infra/db/sqlstore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var now = time.Date(2024, 10, 15, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*errorgroups.Service, *sqlstore.Store) {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Connect(ctx, filepath.Join(t.TempDir(), "groups.db"))
	require.NoError(t, err)
	store := sqlstore.New(db, sqlite.Dialect{})
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.SaveScope(ctx, &scopes.Scope{ID: 1, Name: "backend", CreatedAt: now.Unix()}))

	clock := quartz.NewMock(t)
	clock.Set(now)
	return &errorgroups.Service{
		Repo:        store,
		Attachments: store,
		Clock:       clock,
		Logger:      slogtest.Make(t, nil),
	}, store
}

func seedGroup(t *testing.T, store *sqlstore.Store, fingerprint string, at ...time.Time) *domain.ErrorGroup {
	t.Helper()
	var g *domain.ErrorGroup
	for i, ts := range at {
		var err error
		g, _, err = store.UpsertGroup(context.Background(), &domain.ErrorGroup{
			ScopeID:       1,
			Fingerprint:   fingerprint,
			ExceptionType: "ValueError",
			FirstSeen:     ts.Unix(),
			LastSeen:      ts.Unix(),
		}, domain.Occurrence{Timestamp: ts.Unix(), EventID: fingerprint + string(rune('a'+i))})
		require.NoError(t, err)
	}
	return g
}

func TestUpdateStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, store := newService(t)
	g := seedGroup(t, store, "fp", now)

	got, err := svc.UpdateStatus(ctx, g.ID, "resolved")
	require.NoError(t, err)
	require.Equal(t, domain.StatusResolved, got.Status)

	// Same status again is a no-op.
	got, err = svc.UpdateStatus(ctx, g.ID, "resolved")
	require.NoError(t, err)
	require.Equal(t, domain.StatusResolved, got.Status)

	_, err = svc.UpdateStatus(ctx, g.ID, "ignored")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = svc.UpdateStatus(ctx, g.ID, "unresolved")
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, g.ID, "ignored")
	require.NoError(t, err)

	stored, err := store.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusIgnored, stored.Status)

	_, err = svc.UpdateStatus(ctx, g.ID, "closed")
	require.ErrorIs(t, err, domain.ErrInvalidStatus)
	_, err = svc.UpdateStatus(ctx, g.ID+100, "resolved")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, store := newService(t)
	older := seedGroup(t, store, "old", now.Add(-time.Hour))
	newer := seedGroup(t, store, "new", now)
	_, err := svc.UpdateStatus(ctx, older.ID, "resolved")
	require.NoError(t, err)

	all, err := svc.List(ctx, 1, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, newer.ID, all[0].ID)

	resolved, err := svc.List(ctx, 1, "resolved", 10)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	require.Equal(t, older.ID, resolved[0].ID)

	_, err = svc.List(ctx, 1, "bogus", 10)
	require.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestChart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, store := newService(t)
	day := 24 * time.Hour
	g := seedGroup(t, store, "fp",
		now.Add(-20*day), // outside the default window
		now.Add(-13*day),
		now.Add(-2*day),
		now.Add(-2*day+time.Hour),
		now,
	)

	chart, err := svc.Chart(ctx, g.ID, 0)
	require.NoError(t, err)
	require.Len(t, chart, errorgroups.DefaultChartDays)
	require.Equal(t, "2024-10-02", chart[0].Day)
	require.Equal(t, 1, chart[0].Count)
	require.Equal(t, "2024-10-13", chart[11].Day)
	require.Equal(t, 2, chart[11].Count)
	require.Equal(t, "2024-10-15", chart[13].Day)
	require.Equal(t, 1, chart[13].Count)

	total := 0
	for _, c := range chart {
		total += c.Count
	}
	require.Equal(t, 4, total)

	chart, err = svc.Chart(ctx, g.ID, 1000)
	require.NoError(t, err)
	require.Len(t, chart, errorgroups.MaxChartDays)

	_, err = svc.Chart(ctx, g.ID+1, 7)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOccurrencesAndAttachments(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, store := newService(t)
	g := seedGroup(t, store, "fp", now.Add(-time.Minute), now)
	require.NoError(t, store.SaveAttachment(ctx, &attachments.Attachment{
		GroupID: g.ID, Filename: "a.txt", Size: 1, Encoding: attachments.EncodingText, Data: "a", CreatedAt: now.Unix(),
	}))

	occ, err := svc.Occurrences(ctx, g.ID, 10)
	require.NoError(t, err)
	require.Len(t, occ, 2)
	require.Equal(t, now.Unix(), occ[0].Timestamp)

	list, err := svc.ListAttachments(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = svc.Occurrences(ctx, g.ID+1, 10)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
