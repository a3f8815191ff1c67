package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/printwatch-io/printwatch/internal/poller"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubTrigger struct {
	report poller.CycleReport
	err    error
	calls  int
}

func (s *stubTrigger) RunNow(ctx context.Context) (poller.CycleReport, error) {
	s.calls++
	return s.report, s.err
}

func doRequest(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestManualFetchSuccess(t *testing.T) {
	trigger := &stubTrigger{report: poller.CycleReport{
		RunID:    "run-1",
		Messages: 2, Processed: 2, JobsCreated: 5,
	}}
	r := NewRouter(trigger, nil, nil)

	w := doRequest(r, http.MethodPost, "/api/fetch")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, trigger.calls)

	var body struct {
		Status  string             `json:"status"`
		Message string             `json:"message"`
		Report  poller.CycleReport `json:"report"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "success", body.Status)
	require.Equal(t, "mailbox fetched and processed", body.Message)
	require.Equal(t, "run-1", body.Report.RunID)
	require.Equal(t, 5, body.Report.JobsCreated)
}

func TestManualFetchWhileDisabled(t *testing.T) {
	trigger := &stubTrigger{err: poller.ErrFetchingDisabled}
	r := NewRouter(trigger, nil, nil)

	w := doRequest(r, http.MethodPost, "/api/fetch")
	require.Equal(t, http.StatusConflict, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "error", body["status"])
	require.Contains(t, body["message"], "fetching disabled")
}

func TestManualFetchCycleFailure(t *testing.T) {
	trigger := &stubTrigger{
		report: poller.CycleReport{RunID: "run-2", Errors: []string{"cycle aborted"}},
		err:    errors.New("pop3 connect: connection refused"),
	}
	r := NewRouter(trigger, nil, nil)

	w := doRequest(r, http.MethodPost, "/api/fetch")
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var body struct {
		Status string             `json:"status"`
		Report poller.CycleReport `json:"report"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "error", body.Status)
	require.Equal(t, "run-2", body.Report.RunID)
}

func TestManualFetchWithoutTrigger(t *testing.T) {
	r := NewRouter(nil, nil, nil)

	w := doRequest(r, http.MethodPost, "/api/fetch")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthz(t *testing.T) {
	db, err := sqlx.Connect("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	r := NewRouter(&stubTrigger{}, db, nil)

	w := doRequest(r, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHealthzReportsClosedDatabase(t *testing.T) {
	db, err := sqlx.Connect("sqlite3", ":memory:")
	require.NoError(t, err)
	db.Close()

	r := NewRouter(&stubTrigger{}, db, nil)

	w := doRequest(r, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestVersionEndpoint(t *testing.T) {
	r := NewRouter(&stubTrigger{}, nil, nil)

	w := doRequest(r, http.MethodGet, "/version")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Contains(t, body, "version")
	require.Contains(t, body, "go_version")
}

func TestRequestIDHeader(t *testing.T) {
	r := NewRouter(&stubTrigger{}, nil, nil)

	w := doRequest(r, http.MethodGet, "/healthz")
	require.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-42")
	r.ServeHTTP(w, req)
	require.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	r := NewRouter(&stubTrigger{}, nil, nil)

	w := doRequest(r, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "go_goroutines")
}
