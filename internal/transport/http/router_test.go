package httptransport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sellsync/internal/hrsync"
	"sellsync/internal/jwttoken"
)

type staticStatus struct {
	stats hrsync.Stats
}

func (s staticStatus) Status() hrsync.Stats { return s.stats }

func newTestRouter(t *testing.T, checks map[string]HealthCheck) (http.Handler, *jwttoken.Service) {
	t.Helper()
	svc := jwttoken.NewService("test-signing-key", "sellsync", "sellsync")
	status := staticStatus{stats: hrsync.Stats{Consumed: 7, Applied: 5, Dropped: 1, Failed: 1}}
	return NewRouter(NewHandler(status, svc, checks, nil)), svc
}

func get(t *testing.T, router http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestLiveness(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := get(t, router, "/livez", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"alive"}`, rec.Body.String())
}

func TestReadiness_AllChecksPass(t *testing.T) {
	checks := map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return nil },
	}
	router, _ := newTestRouter(t, checks)

	rec := get(t, router, "/readyz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}

func TestReadiness_ReportsFailingDependency(t *testing.T) {
	checks := map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return fmt.Errorf("connection refused") },
	}
	router, _ := newTestRouter(t, checks)

	rec := get(t, router, "/readyz", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body struct {
		Status   string            `json:"status"`
		Failures map[string]string `json:"failures"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unavailable", body.Status)
	assert.Contains(t, body.Failures["redis"], "connection refused")
	assert.NotContains(t, body.Failures, "postgres")
}

func TestSyncStatus_RequiresBearerToken(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := get(t, router, "/sync/status", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = get(t, router, "/sync/status", map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSyncStatus_ReturnsListenerCounters(t *testing.T) {
	router, svc := newTestRouter(t, nil)
	token, err := svc.GenerateToken("ops@acme.test", "sync:read", time.Hour)
	require.NoError(t, err)

	rec := get(t, router, "/sync/status", map[string]string{"Authorization": "Bearer " + token})

	require.Equal(t, http.StatusOK, rec.Code)
	var stats hrsync.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, uint64(7), stats.Consumed)
	assert.Equal(t, uint64(5), stats.Applied)
}

func TestMetricsEndpointIsPublic(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := get(t, router, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
