package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/JonMunkholm/colsearch/internal/config"
	"github.com/JonMunkholm/colsearch/internal/core"
)

type testEnv struct {
	srv     *Server
	service *core.Service
	dir     string
}

func newTestEnv(t *testing.T, env map[string]string) *testEnv {
	t.Helper()

	vars := map[string]string{
		"EXPORT_DIR":         t.TempDir(),
		"RATE_LIMIT_ENABLED": "false",
	}
	for k, v := range env {
		vars[k] = v
	}
	cfg, err := config.LoadFrom(config.MapLookup(vars))
	require.NoError(t, err)

	svc := core.NewService(core.OptionsFromConfig(cfg, core.NewMemoryHistory(0)))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, svc.Shutdown(ctx))
	})

	dir := t.TempDir()
	writeFixture(t, dir, "a.csv", "id,zip\n1,89501\n2,10001\n3,89503\n")
	writeFixture(t, dir, "b.csv", "name,city\nx,y\n")

	return &testEnv{srv: NewServer(svc, cfg), service: svc, dir: dir}
}

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// startSearch starts a zip search over the fixture folder and waits for it.
func (e *testEnv) startSearch(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/search", map[string]any{
		"root":   e.dir,
		"column": "zip",
		"terms":  []string{"895"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	runID := decode[map[string]string](t, rec)["run_id"]
	require.NotEmpty(t, runID)

	_, err := e.service.GetResult(context.Background(), runID)
	require.NoError(t, err)
	return runID
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t, nil)
	rec := e.do(t, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "default-src 'self'")
	assert.Contains(t, rec.Body.String(), `"max_concurrent":2`)
}

func TestSearchFlow(t *testing.T) {
	defer goleak.VerifyNone(t)

	e := newTestEnv(t, nil)
	runID := e.startSearch(t)

	rec := e.do(t, http.MethodGet, "/api/search/"+runID+"/result", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[core.RunResult](t, rec)
	assert.Equal(t, core.PhaseDone, res.Phase)
	assert.Equal(t, 2, res.Matches)
	assert.Len(t, res.Files, 2)

	rec = e.do(t, http.MethodGet, "/api/search/"+runID+"/result?wait=true", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/history?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]core.RunSummary](t, rec)
	require.Len(t, history, 1)
	assert.Equal(t, runID, history[0].RunID)

	rec = e.do(t, http.MethodGet, "/api/search", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]core.RunProgress](t, rec), 1)

	rec = e.do(t, http.MethodPost, "/api/search/"+runID+"/cancel", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStartSearch_Errors(t *testing.T) {
	e := newTestEnv(t, nil)

	tests := []struct {
		name     string
		body     any
		wantCode string
	}{
		{"missing terms", map[string]any{"root": e.dir, "column": "zip"}, "VAL003"},
		{"bad mode", map[string]any{"root": e.dir, "column": "zip", "terms": []string{"1"}, "mode": "some"}, "VAL004"},
		{"malformed body", "{not json", "VAL004"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, "/api/search", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantCode, decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestUnknownRun(t *testing.T) {
	e := newTestEnv(t, nil)

	for _, path := range []string{"/api/search/nope/result", "/api/search/nope/export", "/api/search/nope/progress"} {
		rec := e.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, "RUN003", decode[ErrorResponse](t, rec).Code, path)
	}

	// Pages answer in plain text.
	rec := e.do(t, http.MethodGet, "/search/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "RUN003")

	rec = e.do(t, http.MethodGet, "/search/nope", nil, "HX-Request", "true")
	assert.Contains(t, rec.Body.String(), `role="alert"`)
}

func TestExportDownload(t *testing.T) {
	defer goleak.VerifyNone(t)

	e := newTestEnv(t, nil)
	runID := e.startSearch(t)

	rec := e.do(t, http.MethodGet, "/api/search/"+runID+"/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "search-"+runID+".csv")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "File Name,File Path,Matched Column"))
	assert.Contains(t, lines[1], "89501")

	rec = e.do(t, http.MethodGet, "/api/search/"+runID+"/export?format=xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))

	rec = e.do(t, http.MethodGet, "/api/search/"+runID+"/export?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "EXP002", decode[ErrorResponse](t, rec).Code)

	rec = e.do(t, http.MethodPost, "/api/search/"+runID+"/export?format=xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	saved := decode[map[string]any](t, rec)
	assert.EqualValues(t, 2, saved["rows"])
	_, err := os.Stat(saved["path"].(string))
	assert.NoError(t, err)
}

func TestExportDownload_NoMatches(t *testing.T) {
	defer goleak.VerifyNone(t)

	e := newTestEnv(t, nil)
	rec := e.do(t, http.MethodPost, "/api/search", map[string]any{"root": e.dir, "column": "zip", "terms": []string{"nowhere"}})
	require.Equal(t, http.StatusAccepted, rec.Code)
	runID := decode[map[string]string](t, rec)["run_id"]
	_, err := e.service.GetResult(context.Background(), runID)
	require.NoError(t, err)

	rec = e.do(t, http.MethodGet, "/api/search/"+runID+"/export", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSearchProgressStream(t *testing.T) {
	defer goleak.VerifyNone(t)

	e := newTestEnv(t, nil)
	runID := e.startSearch(t)

	rec := e.do(t, http.MethodGet, "/api/search/"+runID+"/progress", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "id: 100\nevent: progress\n")
	assert.Contains(t, body, `"phase":"done"`)
	assert.True(t, strings.HasSuffix(body, "\n\n"))

	_, complete, found := strings.Cut(body, "event: complete\ndata: ")
	require.True(t, found, body)
	var final core.RunProgress
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(complete)), &final))
	assert.Equal(t, core.PhaseDone, final.Phase)
	assert.Equal(t, 2, final.FilesDone)
}

func TestSearchPage(t *testing.T) {
	defer goleak.VerifyNone(t)

	e := newTestEnv(t, nil)
	runID := e.startSearch(t)

	rec := e.do(t, http.MethodGet, "/search/"+runID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "a.csv")
	assert.Contains(t, body, "89503")
	assert.Contains(t, body, "/api/search/"+runID+"/export?format=xlsx")
	assert.NotContains(t, body, `http-equiv="refresh"`)

	rec = e.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/search/"+runID)
}

func TestAPIKeyRequired(t *testing.T) {
	e := newTestEnv(t, map[string]string{"REQUIRE_API_KEY": "true", "API_KEYS": "secret"})

	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/api/history", nil).Code)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/history", nil, "X-API-Key", "secret").Code)
}

func TestSearchRateLimit(t *testing.T) {
	e := newTestEnv(t, map[string]string{"RATE_LIMIT_ENABLED": "true", "RATE_LIMIT_SEARCH": "1"})

	body := map[string]any{"root": e.dir, "column": "zip"}
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/api/search", body).Code)

	rec := e.do(t, http.MethodPost, "/api/search", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE001", decode[ErrorResponse](t, rec).Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// Other routes have their own budget.
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/history", nil).Code)
}

func TestRateLimiter_WindowResets(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("1.1.1.1"))
	assert.True(t, rl.allow("1.1.1.1"))
	assert.False(t, rl.allow("1.1.1.1"))
	assert.True(t, rl.allow("2.2.2.2"))

	now = now.Add(61 * time.Second)
	assert.True(t, rl.allow("1.1.1.1"))

	// Idle visitors are swept after two windows.
	now = now.Add(3 * time.Minute)
	rl.allow("3.3.3.3")
	assert.Len(t, rl.visitors, 1)

	assert.True(t, newRateLimiter(0, time.Minute).allow("x"))
}
