package httpserver

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/xerrors"

	appingest "github.com/bryanwahyu/errorhub/internal/application/ingest"
	"github.com/bryanwahyu/errorhub/internal/domain/envelope"
	"github.com/bryanwahyu/errorhub/internal/middleware"
)

type envelopeResponse struct {
	Message   string   `json:"message"`
	ID        string   `json:"id,omitempty"`
	Processed []string `json:"processed"`
}

// POST /api/{scope}/envelope/
func (r *Router) handleEnvelope(w http.ResponseWriter, req *http.Request) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, r.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if xerrors.As(err, &tooLarge) {
			return envelope.ErrBodyTooLarge
		}
		return xerrors.Errorf("read body: %w", err)
	}

	res, err := r.ingest.Ingest(req.Context(), appingest.Request{
		Scope:           chi.URLParam(req, "scope"),
		Body:            body,
		ContentEncoding: req.Header.Get("Content-Encoding"),
		Key:             middleware.SentryKey(req),
	})
	if err != nil {
		return err
	}
	middleware.WriteJSON(w, http.StatusOK, envelopeResponse{
		Message:   res.Message(),
		ID:        res.EventID,
		Processed: res.Processed,
	})
	return nil
}
