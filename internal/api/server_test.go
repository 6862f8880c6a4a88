package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/connector-sync/internal/api"
	"github.com/stacklok/connector-sync/internal/connector"
	"github.com/stacklok/connector-sync/internal/payload"
	"github.com/stacklok/connector-sync/internal/status"
	"github.com/stacklok/connector-sync/internal/sync"
	"github.com/stacklok/connector-sync/internal/sync/mocks"
)

const sessionID = "6f1c2a8e-4b1d-4c7a-9a43-1f0e2d3c4b5a"

func newServer(t *testing.T, opts ...api.ServerOption) (http.Handler, *mocks.MockManager, *mocks.MockJournal) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	manager := mocks.NewMockManager(ctrl)
	journal := mocks.NewMockJournal(ctrl)
	return api.NewServer(manager, journal, opts...), manager, journal
}

func serve(t *testing.T, handler http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(method, target, nil)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()
	server, _, _ := newServer(t)

	rr := serve(t, server, http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "healthy", decode(t, rr)["status"])
}

func TestReadinessEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		check          func(context.Context) error
		expectedStatus int
		expectedKey    string
	}{
		{
			name:           "no check configured",
			expectedStatus: http.StatusOK,
			expectedKey:    "status",
		},
		{
			name:           "check passes",
			check:          func(context.Context) error { return nil },
			expectedStatus: http.StatusOK,
			expectedKey:    "status",
		},
		{
			name:           "check fails",
			check:          func(context.Context) error { return fmt.Errorf("database unreachable") },
			expectedStatus: http.StatusServiceUnavailable,
			expectedKey:    "error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var opts []api.ServerOption
			if tt.check != nil {
				opts = append(opts, api.WithReadinessCheck(tt.check))
			}
			server, _, _ := newServer(t, opts...)

			rr := serve(t, server, http.MethodGet, "/readiness")

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Contains(t, decode(t, rr), tt.expectedKey)
		})
	}
}

func TestVersionEndpoint(t *testing.T) {
	t.Parallel()
	server, _, _ := newServer(t)

	rr := serve(t, server, http.MethodGet, "/version")

	assert.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	for _, key := range []string{"version", "commit", "build_date", "go_version", "platform"} {
		assert.Contains(t, body, key)
	}
}

func TestRunSession(t *testing.T) {
	t.Parallel()

	completed := &sync.Result{
		SessionID:           sessionID,
		Success:             true,
		Status:              status.PhaseCompleted,
		OperationsProcessed: 3,
		Errors:              []string{},
	}
	failed := &sync.Result{
		SessionID: sessionID,
		Status:    status.PhaseFailed,
		Errors:    []string{"configuration error: boom"},
	}

	tests := []struct {
		name           string
		target         string
		setupMock      func(*mocks.MockManager)
		expectedStatus int
		check          func(t *testing.T, body map[string]any)
	}{
		{
			name:   "completed session",
			target: "/v1/connectors/acme/crm/sync",
			setupMock: func(m *mocks.MockManager) {
				m.EXPECT().Run(gomock.Any(), sync.Request{ConnectorName: "crm", OrgUnit: "acme"}).Return(completed, nil)
			},
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				t.Helper()
				assert.Equal(t, sessionID, body["session_id"])
				assert.Equal(t, true, body["success"])
				assert.EqualValues(t, 3, body["operations_processed"])
				assert.NotContains(t, body, "error")
			},
		},
		{
			name:   "direction override",
			target: "/v1/connectors/acme/crm/sync?direction=remote_to_local",
			setupMock: func(m *mocks.MockManager) {
				m.EXPECT().Run(gomock.Any(), sync.Request{
					ConnectorName: "crm",
					OrgUnit:       "acme",
					Direction:     connector.DirectionRemoteToLocal,
				}).Return(completed, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "unknown direction",
			target:         "/v1/connectors/acme/crm/sync?direction=sideways",
			setupMock:      func(*mocks.MockManager) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:   "unknown connector",
			target: "/v1/connectors/acme/crm/sync",
			setupMock: func(m *mocks.MockManager) {
				err := &sync.ConfigError{Err: fmt.Errorf("%w: 'crm' in org unit 'acme'", connector.ErrNotFound)}
				m.EXPECT().Run(gomock.Any(), gomock.Any()).Return(failed, err)
			},
			expectedStatus: http.StatusNotFound,
			check: func(t *testing.T, body map[string]any) {
				t.Helper()
				assert.Equal(t, string(status.PhaseFailed), body["status"])
				assert.Contains(t, body["error"], "connector not found")
			},
		},
		{
			name:   "configuration error",
			target: "/v1/connectors/acme/crm/sync",
			setupMock: func(m *mocks.MockManager) {
				m.EXPECT().Run(gomock.Any(), gomock.Any()).Return(failed, &sync.ConfigError{Err: errors.New("boom")})
			},
			expectedStatus: http.StatusUnprocessableEntity,
			check: func(t *testing.T, body map[string]any) {
				t.Helper()
				assert.Equal(t, sessionID, body["session_id"])
				assert.Equal(t, "configuration error: boom", body["error"])
			},
		},
		{
			name:   "session in progress",
			target: "/v1/connectors/acme/crm/sync",
			setupMock: func(m *mocks.MockManager) {
				m.EXPECT().Run(gomock.Any(), gomock.Any()).Return(nil, fmt.Errorf("%w: connector 'crm'", sync.ErrSessionInProgress))
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name:   "journal failure",
			target: "/v1/connectors/acme/crm/sync",
			setupMock: func(m *mocks.MockManager) {
				m.EXPECT().Run(gomock.Any(), gomock.Any()).Return(nil, errors.New("failed to create session: disk full"))
			},
			expectedStatus: http.StatusInternalServerError,
			check: func(t *testing.T, body map[string]any) {
				t.Helper()
				assert.Equal(t, "failed to run sync session", body["error"])
			},
		},
		{
			name:           "blank org unit",
			target:         "/v1/connectors/%20/crm/sync",
			setupMock:      func(*mocks.MockManager) {},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			server, manager, _ := newServer(t)
			tt.setupMock(manager)

			rr := serve(t, server, http.MethodPost, tt.target)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			if tt.check != nil {
				tt.check(t, decode(t, rr))
			}
		})
	}
}

func TestGetSession(t *testing.T) {
	t.Parallel()

	started := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name           string
		setupMock      func(*mocks.MockManager)
		expectedStatus int
	}{
		{
			name: "found",
			setupMock: func(m *mocks.MockManager) {
				m.EXPECT().Session(gomock.Any(), sessionID).Return(&sync.Session{
					ID:          sessionID,
					ConnectorID: "crm",
					OrgUnit:     "acme",
					Phase:       status.PhaseActive,
					Errors:      []string{},
					StartedAt:   started,
				}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "not found",
			setupMock: func(m *mocks.MockManager) {
				m.EXPECT().Session(gomock.Any(), sessionID).Return(nil, sync.ErrSessionNotFound)
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name: "journal failure",
			setupMock: func(m *mocks.MockManager) {
				m.EXPECT().Session(gomock.Any(), sessionID).Return(nil, errors.New("connection reset"))
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			server, manager, _ := newServer(t)
			tt.setupMock(manager)

			rr := serve(t, server, http.MethodGet, "/v1/sessions/"+sessionID)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			if rr.Code == http.StatusOK {
				body := decode(t, rr)
				assert.Equal(t, sessionID, body["id"])
				assert.Equal(t, string(status.PhaseActive), body["status"])
			}
		})
	}
}

func TestStopSession(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{name: "running", expectedStatus: http.StatusAccepted},
		{name: "unknown", err: sync.ErrSessionNotFound, expectedStatus: http.StatusNotFound},
		{
			name:           "already finished",
			err:            fmt.Errorf("%w: session is already completed", status.ErrInvalidTransition),
			expectedStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			server, manager, _ := newServer(t)
			manager.EXPECT().Stop(gomock.Any(), sessionID).Return(tt.err)

			rr := serve(t, server, http.MethodPost, "/v1/sessions/"+sessionID+"/stop")

			assert.Equal(t, tt.expectedStatus, rr.Code)
		})
	}
}

func TestListSessions(t *testing.T) {
	t.Parallel()
	server, _, journal := newServer(t)
	journal.EXPECT().ListSessions(gomock.Any(), sync.SessionFilter{OrgUnit: "acme", Connector: "crm", Limit: 5}).
		Return(nil, nil)

	rr := serve(t, server, http.MethodGet, "/v1/sessions?orgUnit=acme&connector=crm&limit=5")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"sessions":[]}`, strings.TrimSpace(rr.Body.String()))
}

func TestListConflicts(t *testing.T) {
	t.Parallel()

	conflict := &sync.Conflict{
		ID:         "c1",
		SessionID:  sessionID,
		OrgUnit:    "acme",
		Collection: "projects",
		RecordID:   "p-1",
		DetectedAt: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name           string
		query          string
		setupMock      func(*mocks.MockJournal)
		expectedStatus int
		expectedCount  int
	}{
		{
			name:  "all filters",
			query: "?orgUnit=acme&collection=projects&recordId=p-1&sessionId=" + sessionID + "&limit=10",
			setupMock: func(m *mocks.MockJournal) {
				m.EXPECT().ListConflicts(gomock.Any(), sync.ConflictFilter{
					OrgUnit:    "acme",
					Collection: "projects",
					RecordID:   "p-1",
					SessionID:  sessionID,
					Limit:      10,
				}).Return([]*sync.Conflict{conflict}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedCount:  1,
		},
		{
			name:  "limit is capped",
			query: "?limit=50000",
			setupMock: func(m *mocks.MockJournal) {
				m.EXPECT().ListConflicts(gomock.Any(), sync.ConflictFilter{Limit: 1000}).Return(nil, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "invalid limit",
			query:          "?limit=-1",
			setupMock:      func(*mocks.MockJournal) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:  "journal failure",
			query: "",
			setupMock: func(m *mocks.MockJournal) {
				m.EXPECT().ListConflicts(gomock.Any(), gomock.Any()).Return(nil, errors.New("timeout"))
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			server, _, journal := newServer(t)
			tt.setupMock(journal)

			rr := serve(t, server, http.MethodGet, "/v1/conflicts"+tt.query)

			require.Equal(t, tt.expectedStatus, rr.Code)
			if rr.Code != http.StatusOK {
				return
			}
			var body struct {
				Conflicts []*sync.Conflict `json:"conflicts"`
			}
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.NotNil(t, body.Conflicts)
			assert.Len(t, body.Conflicts, tt.expectedCount)
		})
	}
}

func TestListVersions(t *testing.T) {
	t.Parallel()

	t.Run("history", func(t *testing.T) {
		t.Parallel()
		server, _, journal := newServer(t)
		journal.EXPECT().ListVersions(gomock.Any(), "acme", "projects", "p-1").Return([]sync.DataVersion{
			{
				Collection:    "projects",
				RecordID:      "p-1",
				VersionNumber: 1,
				Snapshot:      payload.FromMap(map[string]any{"name": "Apollo"}),
				ChangeKind:    sync.KindCreate,
				Outcome:       sync.OutcomeApplied,
				SessionID:     sessionID,
			},
		}, nil)

		rr := serve(t, server, http.MethodGet, "/v1/versions/projects/p-1?orgUnit=acme")

		require.Equal(t, http.StatusOK, rr.Code)
		var body struct {
			Versions []map[string]any `json:"versions"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		require.Len(t, body.Versions, 1)
		assert.EqualValues(t, 1, body.Versions[0]["version_number"])
		assert.Equal(t, map[string]any{"name": "Apollo"}, body.Versions[0]["snapshot"])
	})

	t.Run("org unit required", func(t *testing.T) {
		t.Parallel()
		server, _, _ := newServer(t)

		rr := serve(t, server, http.MethodGet, "/v1/versions/projects/p-1")

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("empty history", func(t *testing.T) {
		t.Parallel()
		server, _, journal := newServer(t)
		journal.EXPECT().ListVersions(gomock.Any(), "acme", "projects", "p-2").Return(nil, nil)

		rr := serve(t, server, http.MethodGet, "/v1/versions/projects/p-2?orgUnit=acme")

		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"versions":[]}`, rr.Body.String())
	})
}
