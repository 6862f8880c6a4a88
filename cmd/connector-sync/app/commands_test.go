package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/connector-sync/internal/connector"
	"github.com/stacklok/connector-sync/internal/status"
	"github.com/stacklok/connector-sync/internal/sync"
	"github.com/stacklok/connector-sync/pkg/versions"
)

// Commands share the global viper instance, so these tests do not run in parallel.

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, endpoint string) string {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`storage:
  type: memory
  journal: sqlite
sqlite:
  path: %s
connectors:
  - name: crm
    orgUnit: acme
    endpoint: %s
    direction: remote_to_local
    retry:
      maxAttempts: 1
    collections:
      - name: projects
        fieldMap:
          sourceToTarget:
            external_id: id
            title: name
            updated_at: updated_at
          targetToSource:
            id: external_id
            name: title
            updated_at: updated_at
`, filepath.Join(dir, "journal.db"), endpoint)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version", "--format", "json")
	require.NoError(t, err)

	var info versions.VersionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GoVersion)

	out, err = execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "connector-sync "))
}

func TestSyncCommand_RequiresConfig(t *testing.T) {
	_, err := execute(t, "sync", "acme", "crm", "--config", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a configuration file is required")
}

func TestSyncCommand_RejectsUnknownDirection(t *testing.T) {
	_, err := execute(t, "sync", "acme", "crm", "--direction", "sideways")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown direction 'sideways'")
}

func TestSyncThenListSessions(t *testing.T) {
	updated := time.Now().UTC().Add(-time.Minute).Truncate(time.Second)
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "read only", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]any{{
			"external_id": "p-1",
			"title":       "Apollo",
			"updated_at":  updated.Format(time.RFC3339),
		}})
	}))
	t.Cleanup(remote.Close)
	cfgPath := writeConfig(t, remote.URL)

	out, err := execute(t, "sync", "acme", "crm", "--config", cfgPath)
	require.NoError(t, err, out)

	var result sync.Result
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.Success)
	assert.Equal(t, status.PhaseCompleted, result.Status)
	assert.Equal(t, 1, result.OperationsProcessed)

	// The SQLite journal outlives the process that ran the session
	out, err = execute(t, "sessions", "--config", cfgPath, "--format", "json")
	require.NoError(t, err, out)

	var sessions []*sync.Session
	require.NoError(t, json.Unmarshal([]byte(out), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, result.SessionID, sessions[0].ID)
	assert.Equal(t, connector.DirectionRemoteToLocal, sessions[0].Direction)

	out, err = execute(t, "conflicts", "--config", cfgPath)
	require.NoError(t, err, out)
	assert.Contains(t, strings.ToUpper(out), "RECORD")
	assert.NotContains(t, out, "p-1")
}

func TestSyncCommand_ReportsFailedSession(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "maintenance", http.StatusBadRequest)
	}))
	t.Cleanup(remote.Close)

	out, err := execute(t, "sync", "acme", "crm", "--config", writeConfig(t, remote.URL))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "finished with status completed")
	assert.Contains(t, out, `"success": false`)
}

func TestRenderConflicts(t *testing.T) {
	t.Parallel()
	detected := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	require.NoError(t, renderConflicts(&buf, []*sync.Conflict{{
		ID:              "c-1",
		OrgUnit:         "acme",
		Collection:      "projects",
		RecordID:        "p-1",
		Kind:            sync.ConflictKindTimestamp,
		Origin:          connector.SideLocal,
		SourceTimestamp: detected.Add(-2 * time.Hour),
		TargetTimestamp: detected.Add(-time.Hour),
		DetectedAt:      detected,
	}}))

	out := buf.String()
	for _, want := range []string{"c-1", "acme", "projects", "p-1", "timestamp_conflict", "local", "2026-04-01T09:00:00Z"} {
		assert.Contains(t, out, want)
	}
}

func TestAsk(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  bool
	}{
		{input: "yes\n", want: true},
		{input: "Y\n", want: true},
		{input: "no\n", want: false},
		{input: "", want: false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.input), func(t *testing.T) {
			t.Parallel()
			var out bytes.Buffer
			got, err := ask(strings.NewReader(tt.input), &out, "Drop everything?")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "Drop everything? Continue?")
		})
	}
}

func TestMigrateDownCancelled(t *testing.T) {
	cfgPath := writeConfig(t, "http://127.0.0.1:1")
	passwordFile := filepath.Join(filepath.Dir(cfgPath), "password")
	require.NoError(t, os.WriteFile(passwordFile, []byte("secret\n"), 0o600))

	f, err := os.OpenFile(cfgPath, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = fmt.Fprintf(f, `database:
  host: db.internal
  user: sync
  database: connector_sync
  passwordFile: %s
`, passwordFile)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader("no\n"))
	root.SetArgs([]string{"migrate", "down", "--config", cfgPath, "--num-steps", "1"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "About to revert 1 migration(s) on sync@db.internal/connector_sync. Continue?")
}
