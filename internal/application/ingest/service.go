// Package ingest runs one envelope through the pipeline: scope lookup, key
// check, decompression, decoding and per-item dispatch.
package ingest

import (
	"context"
	"strings"

	"cdr.dev/slog/v3"
	"golang.org/x/xerrors"

	"github.com/bryanwahyu/errorhub/internal/application"
	"github.com/bryanwahyu/errorhub/internal/domain/attachments"
	"github.com/bryanwahyu/errorhub/internal/domain/envelope"
	"github.com/bryanwahyu/errorhub/internal/domain/errorgroups"
	"github.com/bryanwahyu/errorhub/internal/domain/events"
	"github.com/bryanwahyu/errorhub/internal/domain/scopes"
	"github.com/bryanwahyu/errorhub/internal/domain/sessions"
	"github.com/bryanwahyu/errorhub/internal/domain/transactions"
)

var (
	// ErrNoItemsProcessed is returned when every item of an envelope was skipped.
	ErrNoItemsProcessed = xerrors.New("no items processed")
	// ErrItemParse marks an item whose payload cannot be handled. It is
	// logged and never returned from Ingest.
	ErrItemParse = xerrors.New("item parse error")
)

// Service implements the ingest use case. It holds no mutable state and is
// safe for concurrent use.
type Service struct {
	Scopes       scopes.Repository
	Keys         *scopes.KeyRing
	Groups       errorgroups.Repository
	Sessions     sessions.Repository
	Transactions transactions.Repository
	Attachments  attachments.Repository
	// Blobs is optional; without it attachments are stored inline.
	Blobs   attachments.BlobStore
	Grouper events.Grouper
	Clock   application.Clock
	Logger  slog.Logger
	Metrics *Metrics

	// MaxDecompressed bounds the inflated body; zero means the envelope default.
	MaxDecompressed int64
}

// Request is one inbound envelope delivery.
type Request struct {
	// Scope is the raw scope segment from the path.
	Scope           string
	Body            []byte
	ContentEncoding string
	// Key is the public key from X-Sentry-Auth or the query string, if any.
	Key string
}

// Result lists the item type tokens that were handled, in envelope order.
type Result struct {
	EventID   string   `json:"id,omitempty"`
	Processed []string `json:"processed"`
}

// Message is the human readable summary returned to clients.
func (r *Result) Message() string {
	return "OK: processed " + strings.Join(r.Processed, ", ")
}

// Ingest processes one envelope. Terminal failures are scopes.ErrNotFound,
// scopes.ErrUnauthorized, envelope.ErrBodyTooLarge,
// envelope.ErrMalformedEncoding, envelope.ErrEmptyEnvelope and
// ErrNoItemsProcessed. Item level failures are logged and skipped.
func (s *Service) Ingest(ctx context.Context, req Request) (*Result, error) {
	scopeID, err := scopes.ParseID(req.Scope)
	if err != nil {
		return nil, err
	}
	scope, err := s.Scopes.GetScope(ctx, scopeID)
	if err != nil {
		return nil, err
	}

	authed := s.Keys.Open(scope.ID)
	if !authed && req.Key != "" {
		if err := s.Keys.Verify(scope.ID, req.Key); err != nil {
			return nil, err
		}
		authed = true
	}

	body, err := envelope.Decompress(req.Body, req.ContentEncoding, s.MaxDecompressed)
	if err != nil {
		return nil, err
	}
	env, err := envelope.Decode(body)
	if err != nil {
		return nil, err
	}

	// Some SDKs only send the key inside the envelope header DSN.
	if !authed {
		if err := s.Keys.Verify(scope.ID, envelope.PublicKeyFromDSN(env.DSN())); err != nil {
			return nil, err
		}
	}

	res := s.process(ctx, scope, env)
	s.Metrics.recordEnvelope(len(res.Processed) > 0)
	if len(res.Processed) == 0 {
		return nil, ErrNoItemsProcessed
	}
	return res, nil
}

// process handles items strictly in envelope order. cursor is the group most
// recently established by an event item of this envelope.
func (s *Service) process(ctx context.Context, scope *scopes.Scope, env *envelope.Envelope) *Result {
	res := &Result{EventID: env.EventID(), Processed: []string{}}
	logger := s.Logger.With(slog.F("scope_id", scope.ID), slog.F("event_id", env.EventID()))

	var cursor *errorgroups.ErrorGroup
	for i, item := range env.Items {
		next, outcome, err := s.dispatch(ctx, scope, env, item, cursor)
		if err != nil {
			logger.Warn(ctx, "skipping envelope item",
				slog.F("index", i),
				slog.F("type", item.Type.Token()),
				slog.Error(err),
			)
			s.Metrics.recordItem(item.Type, outcomeFailed)
			continue
		}
		s.Metrics.recordItem(item.Type, outcome)
		cursor = next
		res.Processed = append(res.Processed, item.Type.Token())
	}
	return res
}

// dispatch handles one item and returns the cursor for the next one along
// with the metrics outcome.
func (s *Service) dispatch(ctx context.Context, scope *scopes.Scope, env *envelope.Envelope, item envelope.Item, cursor *errorgroups.ErrorGroup) (*errorgroups.ErrorGroup, string, error) {
	switch item.Type.Kind {
	case envelope.KindEvent:
		group, err := s.handleEvent(ctx, scope, env, item)
		if err != nil {
			return cursor, "", err
		}
		return group, outcomeProcessed, nil

	case envelope.KindSession:
		return cursor, outcomeProcessed, s.handleSession(ctx, scope, item)

	case envelope.KindSessions:
		return cursor, outcomeProcessed, s.handleSessions(ctx, scope, item)

	case envelope.KindTransaction:
		return cursor, outcomeProcessed, s.handleTransaction(ctx, scope, item)

	case envelope.KindAttachment:
		stored, err := s.handleAttachment(ctx, scope, cursor, item)
		if err != nil {
			return cursor, "", err
		}
		if !stored {
			return cursor, outcomeDropped, nil
		}
		return cursor, outcomeProcessed, nil

	case envelope.KindClientReport:
		// Reports about events the client dropped locally; nothing to store.
		return cursor, outcomeIgnored, nil

	case envelope.KindUnknown:
		s.Logger.Debug(ctx, "unknown envelope item type", slog.F("type", item.Type.Name))
		return cursor, outcomeIgnored, nil
	}
	return cursor, "", xerrors.Errorf("unhandled item kind %d: %w", item.Type.Kind, ErrItemParse)
}
