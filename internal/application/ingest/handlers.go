package ingest

import (
	"context"
	"math"
	"strconv"
	"time"

	"cdr.dev/slog/v3"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"golang.org/x/xerrors"

	"github.com/bryanwahyu/errorhub/internal/domain/envelope"
	"github.com/bryanwahyu/errorhub/internal/domain/errorgroups"
	"github.com/bryanwahyu/errorhub/internal/domain/events"
	"github.com/bryanwahyu/errorhub/internal/domain/scopes"
	"github.com/bryanwahyu/errorhub/internal/domain/sessions"
	"github.com/bryanwahyu/errorhub/internal/domain/transactions"
)

func objectPayload(item envelope.Item) (gjson.Result, error) {
	if !item.IsJSON || !item.Payload.IsObject() {
		return gjson.Result{}, xerrors.Errorf("%s payload is not a JSON object: %w", item.Type.Token(), ErrItemParse)
	}
	return item.Payload, nil
}

// handleEvent groups one event and records its occurrence.
func (s *Service) handleEvent(ctx context.Context, scope *scopes.Scope, env *envelope.Envelope, item envelope.Item) (*errorgroups.ErrorGroup, error) {
	payload, err := objectPayload(item)
	if err != nil {
		return nil, err
	}
	x := events.Extract(payload)
	now := s.Clock.Now().Unix()

	// The envelope header id wins over the one inside the payload.
	eventID := env.EventID()
	if eventID == "" {
		eventID = x.EventID
	}

	group, created, err := s.Groups.UpsertGroup(ctx, &errorgroups.ErrorGroup{
		ScopeID:        scope.ID,
		Fingerprint:    s.Grouper.Key(x),
		ExceptionType:  x.ExceptionType,
		ExceptionValue: x.ExceptionValue,
		Culprit:        x.Culprit,
		Platform:       x.Platform,
		Environment:    x.Environment,
		Release:        x.Release,
		Level:          x.Level,
		Stacktrace:     x.Stacktrace,
		Contexts:       x.Contexts,
		Tags:           x.Tags,
		Extra:          x.Extra,
		FirstSeen:      now,
		LastSeen:       now,
		Status:         errorgroups.StatusUnresolved,
	}, errorgroups.Occurrence{Timestamp: now, EventID: eventID})
	if err != nil {
		return nil, xerrors.Errorf("record event: %w", err)
	}
	if created {
		s.Metrics.recordGroupCreated()
		s.Logger.Info(ctx, "new error group",
			slog.F("scope_id", scope.ID),
			slog.F("group_id", group.ID),
			slog.F("fingerprint", group.Fingerprint),
			slog.F("exception_type", group.ExceptionType),
		)
	}
	return group, nil
}

func (s *Service) handleSession(ctx context.Context, scope *scopes.Scope, item envelope.Item) error {
	payload, err := objectPayload(item)
	if err != nil {
		return err
	}
	sid := events.Scalar(payload.Get("sid"))
	if sid == "" {
		return xerrors.Errorf("session without sid: %w", ErrItemParse)
	}
	now := s.Clock.Now().Unix()

	sess := &sessions.Session{
		ScopeID:     scope.ID,
		SessionID:   sid,
		DistinctID:  events.Scalar(payload.Get("did")),
		Status:      sessions.NormalizeStatus(events.Scalar(payload.Get("status"))),
		Started:     startedAt(payload.Get("started"), now),
		Errors:      payload.Get("errors").Int(),
		Release:     events.Scalar(payload.Get("attrs.release")),
		Environment: events.Scalar(payload.Get("attrs.environment")),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if d := payload.Get("duration"); d.Type == gjson.Number {
		v := d.Float()
		sess.Duration = &v
	}
	return s.Sessions.UpsertSession(ctx, sess)
}

// handleSessions fans an aggregated sessions item out into one synthetic
// session per bucket.
func (s *Service) handleSessions(ctx context.Context, scope *scopes.Scope, item envelope.Item) error {
	payload, err := objectPayload(item)
	if err != nil {
		return err
	}
	aggregates := payload.Get("aggregates")
	if aggregates.Exists() && !aggregates.IsArray() {
		return xerrors.Errorf("aggregates is not a list: %w", ErrItemParse)
	}
	now := s.Clock.Now().Unix()
	release := events.Scalar(payload.Get("attrs.release"))
	environment := events.Scalar(payload.Get("attrs.environment"))

	var batch []*sessions.Session
	for _, bucket := range aggregates.Array() {
		if !bucket.IsObject() {
			continue
		}
		batch = append(batch, &sessions.Session{
			ScopeID:     scope.ID,
			SessionID:   sessions.AggregatePrefix + uuid.NewString(),
			DistinctID:  events.Scalar(bucket.Get("did")),
			Status:      aggregateStatus(bucket),
			Started:     startedAt(bucket.Get("started"), now),
			Errors:      bucket.Get("errored").Int(),
			Release:     release,
			Environment: environment,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return s.Sessions.UpsertSessions(ctx, batch)
}

func aggregateStatus(bucket gjson.Result) sessions.Status {
	switch {
	case bucket.Get("crashed").Int() > 0:
		return sessions.StatusCrashed
	case bucket.Get("errored").Int() > 0:
		return sessions.StatusErrored
	case bucket.Get("abnormal").Int() > 0:
		return sessions.StatusAbnormal
	case bucket.Get("exited").Int() > 0:
		return sessions.StatusExited
	default:
		return sessions.StatusOK
	}
}

func (s *Service) handleTransaction(ctx context.Context, scope *scopes.Scope, item envelope.Item) error {
	payload, err := objectPayload(item)
	if err != nil {
		return err
	}
	id := events.Scalar(payload.Get("event_id"))
	if id == "" {
		id = events.Scalar(payload.Get("transaction_id"))
	}
	if id == "" {
		return xerrors.Errorf("transaction without id: %w", ErrItemParse)
	}
	now := s.Clock.Now().Unix()

	name := events.Scalar(payload.Get("transaction"))
	if name == "" {
		name = "Unknown"
	}
	tx := &transactions.Transaction{
		ScopeID:       scope.ID,
		TransactionID: id,
		Name:          name,
		Op:            events.Scalar(payload.Get("contexts.trace.op")),
		Status:        events.Scalar(payload.Get("contexts.trace.status")),
		Timestamp:     now,
		CreatedAt:     now,
	}

	start, okStart := timestampSeconds(payload.Get("start_timestamp"))
	end, okEnd := timestampSeconds(payload.Get("timestamp"))
	if okStart && okEnd {
		ms := int64(math.Round((end - start) * 1000))
		tx.DurationMS = &ms
	}
	if spans := payload.Get("spans"); spans.IsArray() && len(spans.Array()) > 0 {
		tx.Spans = transactions.TruncateSpans(string(pretty.Ugly([]byte(spans.Raw))))
	}
	return s.Transactions.SaveTransaction(ctx, tx)
}

// startedAt reads a session start as unix seconds. Unparseable or missing
// values fall back to now.
func startedAt(r gjson.Result, now int64) *int64 {
	v := now
	if ts, ok := timestampSeconds(r); ok {
		v = int64(ts)
	}
	return &v
}

// timestampSeconds accepts unix seconds (number or numeric string) and
// RFC 3339 strings.
func timestampSeconds(r gjson.Result) (float64, bool) {
	switch r.Type {
	case gjson.Number:
		return r.Float(), true
	case gjson.String:
		if f, err := strconv.ParseFloat(r.Str, 64); err == nil {
			return f, true
		}
		t, err := time.Parse(time.RFC3339Nano, r.Str)
		if err != nil {
			return 0, false
		}
		return float64(t.UnixNano()) / float64(time.Second), true
	default:
		return 0, false
	}
}
