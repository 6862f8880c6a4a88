// Package v1 provides the sync session endpoints.
package v1

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/stacklok/connector-sync/internal/api/common"
	"github.com/stacklok/connector-sync/internal/connector"
	"github.com/stacklok/connector-sync/internal/status"
	"github.com/stacklok/connector-sync/internal/sync"
)

// maxListLimit caps list endpoints when the caller asks for more
const maxListLimit = 1000

// Routes handles the sync endpoints
type Routes struct {
	manager sync.Manager
	journal sync.Journal
}

// NewRoutes creates the handlers
func NewRoutes(manager sync.Manager, journal sync.Journal) *Routes {
	return &Routes{manager: manager, journal: journal}
}

// Router creates the /v1 router
func Router(manager sync.Manager, journal sync.Journal) http.Handler {
	routes := NewRoutes(manager, journal)

	r := chi.NewRouter()
	r.Post("/connectors/{orgUnit}/{name}/sync", routes.runSession)
	r.Get("/sessions", routes.listSessions)
	r.Get("/sessions/{id}", routes.getSession)
	r.Post("/sessions/{id}/stop", routes.stopSession)
	r.Get("/conflicts", routes.listConflicts)
	r.Get("/versions/{collection}/{recordID}", routes.listVersions)

	return r
}

// RunResponse is returned by the sync trigger. Error is set when the session
// failed before any operation was attempted.
type RunResponse struct {
	*sync.Result
	Error string `json:"error,omitempty"`
}

// ListSessionsResponse wraps the session list
type ListSessionsResponse struct {
	Sessions []*sync.Session `json:"sessions"`
}

// ListConflictsResponse wraps the conflict list
type ListConflictsResponse struct {
	Conflicts []*sync.Conflict `json:"conflicts"`
}

// ListVersionsResponse wraps the version history of one record
type ListVersionsResponse struct {
	Versions []sync.DataVersion `json:"versions"`
}

func (routes *Routes) runSession(w http.ResponseWriter, r *http.Request) {
	orgUnit, err := common.GetAndValidateURLParam(r, "orgUnit")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	name, err := common.GetAndValidateURLParam(r, "name")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	direction := connector.Direction(r.URL.Query().Get("direction"))
	if direction != "" && !direction.Valid() {
		common.WriteErrorResponse(w, fmt.Sprintf("unknown direction '%s'", direction), http.StatusBadRequest)
		return
	}

	result, err := routes.manager.Run(r.Context(), sync.Request{
		ConnectorName: name,
		OrgUnit:       orgUnit,
		Direction:     direction,
	})

	var cfgErr *sync.ConfigError
	switch {
	case err == nil:
		common.WriteJSONResponse(w, RunResponse{Result: result}, http.StatusOK)
	case errors.Is(err, sync.ErrSessionInProgress):
		common.WriteErrorResponse(w, err.Error(), http.StatusConflict)
	case errors.Is(err, connector.ErrNotFound):
		common.WriteJSONResponse(w, RunResponse{Result: result, Error: err.Error()}, http.StatusNotFound)
	case errors.As(err, &cfgErr):
		common.WriteJSONResponse(w, RunResponse{Result: result, Error: err.Error()}, http.StatusUnprocessableEntity)
	default:
		log.FromContext(r.Context()).Error(err, "Sync session failed", "connector", name, "orgUnit", orgUnit)
		common.WriteErrorResponse(w, "failed to run sync session", http.StatusInternalServerError)
	}
}

func (routes *Routes) listSessions(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	query := r.URL.Query()
	sessions, err := routes.journal.ListSessions(r.Context(), sync.SessionFilter{
		OrgUnit:   query.Get("orgUnit"),
		Connector: query.Get("connector"),
		Limit:     limit,
	})
	if err != nil {
		log.FromContext(r.Context()).Error(err, "Failed to list sessions")
		common.WriteErrorResponse(w, "failed to list sessions", http.StatusInternalServerError)
		return
	}
	common.WriteJSONResponse(w, ListSessionsResponse{Sessions: nonNil(sessions)}, http.StatusOK)
}

func (routes *Routes) getSession(w http.ResponseWriter, r *http.Request) {
	id, err := common.GetAndValidateURLParam(r, "id")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	s, err := routes.manager.Session(r.Context(), id)
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	common.WriteJSONResponse(w, s, http.StatusOK)
}

func (routes *Routes) stopSession(w http.ResponseWriter, r *http.Request) {
	id, err := common.GetAndValidateURLParam(r, "id")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := routes.manager.Stop(r.Context(), id); err != nil {
		writeSessionError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (routes *Routes) listConflicts(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	query := r.URL.Query()
	conflicts, err := routes.journal.ListConflicts(r.Context(), sync.ConflictFilter{
		OrgUnit:    query.Get("orgUnit"),
		Collection: query.Get("collection"),
		RecordID:   query.Get("recordId"),
		SessionID:  query.Get("sessionId"),
		Limit:      limit,
	})
	if err != nil {
		log.FromContext(r.Context()).Error(err, "Failed to list conflicts")
		common.WriteErrorResponse(w, "failed to list conflicts", http.StatusInternalServerError)
		return
	}
	common.WriteJSONResponse(w, ListConflictsResponse{Conflicts: nonNil(conflicts)}, http.StatusOK)
}

func (routes *Routes) listVersions(w http.ResponseWriter, r *http.Request) {
	collection, err := common.GetAndValidateURLParam(r, "collection")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	recordID, err := common.GetAndValidateURLParam(r, "recordID")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	orgUnit := r.URL.Query().Get("orgUnit")
	if orgUnit == "" {
		common.WriteErrorResponse(w, "orgUnit query parameter is required", http.StatusBadRequest)
		return
	}

	versions, err := routes.journal.ListVersions(r.Context(), orgUnit, collection, recordID)
	if err != nil {
		log.FromContext(r.Context()).Error(err, "Failed to list versions", "collection", collection, "recordID", recordID)
		common.WriteErrorResponse(w, "failed to list versions", http.StatusInternalServerError)
		return
	}
	if versions == nil {
		versions = []sync.DataVersion{}
	}
	common.WriteJSONResponse(w, ListVersionsResponse{Versions: versions}, http.StatusOK)
}

func writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, sync.ErrSessionNotFound):
		common.WriteErrorResponse(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, status.ErrInvalidTransition):
		common.WriteErrorResponse(w, err.Error(), http.StatusConflict)
	default:
		log.FromContext(r.Context()).Error(err, "Session request failed")
		common.WriteErrorResponse(w, "internal server error", http.StatusInternalServerError)
	}
}

// parseLimit reads the limit query parameter. Zero means no limit was given.
func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, fmt.Errorf("invalid limit '%s'", raw)
	}
	return min(limit, maxListLimit), nil
}

func nonNil[T any](items []*T) []*T {
	if items == nil {
		return []*T{}
	}
	return items
}
