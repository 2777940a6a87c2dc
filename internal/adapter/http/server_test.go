package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	httpadapter "github.com/couchcryptid/gauge-forecast-etl/internal/adapter/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockBuild struct {
	err   error
	state string
}

func (m *mockBuild) CheckReadiness(_ context.Context) error { return m.err }

func (m *mockBuild) Status() any {
	return map[string]any{"state": m.state, "segments": 12}
}

func newTestServer(build *mockBuild) *httpadapter.Server {
	return httpadapter.NewServer(":0", build, slog.Default())
}

func get(srv *httpadapter.Server, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := get(newTestServer(&mockBuild{state: "running"}), "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenBuilt(t *testing.T) {
	rec := get(newTestServer(&mockBuild{state: "done"}), "/readyz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready","build":{"state":"done","segments":12}}`, rec.Body.String())
}

func TestReadyzReturns503WithBuildState(t *testing.T) {
	srv := newTestServer(&mockBuild{err: errors.New("dataset build in progress"), state: "running"})
	rec := get(srv, "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status string         `json:"status"`
		Error  string         `json:"error"`
		Build  map[string]any `json:"build"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body.Status)
	assert.Equal(t, "dataset build in progress", body.Error)
	assert.Equal(t, "running", body.Build["state"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(newTestServer(&mockBuild{}), "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStatusEndpoint(t *testing.T) {
	rec := get(newTestServer(&mockBuild{state: "done"}), "/status")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"state":"done","segments":12}`, rec.Body.String())
}

func TestStatusRejectsPost(t *testing.T) {
	srv := newTestServer(&mockBuild{state: "done"})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
