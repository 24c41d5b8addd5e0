package httpserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/xerrors"

	"github.com/bryanwahyu/errorhub/internal/domain/errorgroups"
	"github.com/bryanwahyu/errorhub/internal/domain/scopes"
	"github.com/bryanwahyu/errorhub/internal/middleware"
)

func (r *Router) scope(req *http.Request) (*scopes.Scope, error) {
	id, err := scopes.ParseID(chi.URLParam(req, "scope"))
	if err != nil {
		return nil, err
	}
	return r.scopes.GetScope(req.Context(), id)
}

func groupID(req *http.Request) (int64, error) {
	raw := chi.URLParam(req, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, xerrors.Errorf("error group %q: %w", raw, errorgroups.ErrNotFound)
	}
	return id, nil
}

func limit(req *http.Request) (int, error) {
	n, err := middleware.QueryInt(req, "limit", 0)
	if err != nil {
		return 0, xerrors.Errorf("%s: %w", err.Error(), errBadRequest)
	}
	return middleware.ValidateLimit(n), nil
}

// GET /v1/scopes
func (r *Router) handleListScopes(w http.ResponseWriter, req *http.Request) error {
	list, err := r.scopes.ListScopes(req.Context())
	if err != nil {
		return err
	}
	middleware.WriteJSON(w, http.StatusOK, nonNil(list))
	return nil
}

// GET /v1/scopes/{scope}/errors?status=&limit=
func (r *Router) handleListGroups(w http.ResponseWriter, req *http.Request) error {
	sc, err := r.scope(req)
	if err != nil {
		return err
	}
	n, err := limit(req)
	if err != nil {
		return err
	}
	list, err := r.groups.List(req.Context(), sc.ID, req.URL.Query().Get("status"), n)
	if err != nil {
		return err
	}
	middleware.WriteJSON(w, http.StatusOK, nonNil(list))
	return nil
}

// GET /v1/scopes/{scope}/sessions?limit=
func (r *Router) handleListSessions(w http.ResponseWriter, req *http.Request) error {
	sc, err := r.scope(req)
	if err != nil {
		return err
	}
	n, err := limit(req)
	if err != nil {
		return err
	}
	list, err := r.sessions.ListSessions(req.Context(), sc.ID, n)
	if err != nil {
		return err
	}
	middleware.WriteJSON(w, http.StatusOK, nonNil(list))
	return nil
}

// GET /v1/scopes/{scope}/transactions?limit=
func (r *Router) handleListTransactions(w http.ResponseWriter, req *http.Request) error {
	sc, err := r.scope(req)
	if err != nil {
		return err
	}
	n, err := limit(req)
	if err != nil {
		return err
	}
	list, err := r.transactions.ListTransactions(req.Context(), sc.ID, n)
	if err != nil {
		return err
	}
	middleware.WriteJSON(w, http.StatusOK, nonNil(list))
	return nil
}

// GET /v1/errors/{id}
func (r *Router) handleGetGroup(w http.ResponseWriter, req *http.Request) error {
	id, err := groupID(req)
	if err != nil {
		return err
	}
	g, err := r.groups.Get(req.Context(), id)
	if err != nil {
		return err
	}
	middleware.WriteJSON(w, http.StatusOK, g)
	return nil
}

// GET /v1/errors/{id}/occurrences?limit=
func (r *Router) handleOccurrences(w http.ResponseWriter, req *http.Request) error {
	id, err := groupID(req)
	if err != nil {
		return err
	}
	n, err := limit(req)
	if err != nil {
		return err
	}
	list, err := r.groups.Occurrences(req.Context(), id, n)
	if err != nil {
		return err
	}
	middleware.WriteJSON(w, http.StatusOK, nonNil(list))
	return nil
}

// GET /v1/errors/{id}/chart?days=
func (r *Router) handleChart(w http.ResponseWriter, req *http.Request) error {
	id, err := groupID(req)
	if err != nil {
		return err
	}
	days, err := middleware.QueryInt(req, "days", 0)
	if err != nil {
		return xerrors.Errorf("%s: %w", err.Error(), errBadRequest)
	}
	chart, err := r.groups.Chart(req.Context(), id, days)
	if err != nil {
		return err
	}
	middleware.WriteJSON(w, http.StatusOK, chart)
	return nil
}

// GET /v1/errors/{id}/attachments
func (r *Router) handleAttachments(w http.ResponseWriter, req *http.Request) error {
	id, err := groupID(req)
	if err != nil {
		return err
	}
	list, err := r.groups.ListAttachments(req.Context(), id)
	if err != nil {
		return err
	}
	middleware.WriteJSON(w, http.StatusOK, nonNil(list))
	return nil
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=unresolved resolved ignored"`
}

type statusResponse struct {
	Success bool               `json:"success"`
	Status  errorgroups.Status `json:"status"`
}

// POST /api/errors/{id}/status
// Body: {"status": "resolved"}
func (r *Router) handleUpdateStatus(w http.ResponseWriter, req *http.Request) error {
	id, err := groupID(req)
	if err != nil {
		return err
	}
	var body statusRequest
	if !middleware.Read(w, req, &body) {
		return nil
	}
	g, err := r.groups.UpdateStatus(req.Context(), id, body.Status)
	if err != nil {
		return err
	}
	middleware.WriteJSON(w, http.StatusOK, statusResponse{Success: true, Status: g.Status})
	return nil
}
