package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMiddlewareRecordsRouteAndStatus(t *testing.T) {
	m := New()
	h := m.Middleware("POST /run", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/run", nil))

	out := scrape(t, m)
	assert.Contains(t, out, `desk_http_requests_total{method="POST",route="POST /run",status="409"} 1`)
}

func TestDomainCounters(t *testing.T) {
	m := New()
	m.ObserveBackend("/label-script", 200, 30*time.Millisecond)
	m.ObserveBackend("/label-script", 0, time.Millisecond)
	m.ObserveStage("label", "ok", time.Second)
	m.RecordRun("complete")
	m.RecordUnmatched(2)
	m.RecordIntake("text", false)

	out := scrape(t, m)
	assert.Contains(t, out, `desk_backend_requests_total{path="/label-script",status="200"} 1`)
	assert.Contains(t, out, `desk_backend_requests_total{path="/label-script",status="error"} 1`)
	assert.Contains(t, out, `desk_analysis_runs_total{outcome="complete"} 1`)
	assert.Contains(t, out, `desk_render_unmatched_highlights_total 2`)
	assert.Contains(t, out, `desk_intake_documents_total{cache="miss",kind="text"} 1`)
	assert.Contains(t, out, `desk_analysis_stage_duration_seconds_count{outcome="ok",stage="label"} 1`)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveBackend("/x", 500, time.Second)
	m.RecordRun("failed")
	rec := httptest.NewRecorder()
	m.Middleware("GET /", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
