package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/questy/internal/catalog"
	"github.com/nfrund/questy/internal/loading/yamlloader"
	"github.com/nfrund/questy/internal/quest"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, load bool) (*Server, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/quests", 0755))
	files := map[string]string{
		"wolves.yaml": "name: Wolves\ntitle: Wolf Problem\nobjectives:\n  - kind: kill\n    target: wolf\n    amount: 3\n",
		"intro.yml":   "name: Intro\n",
		"broken.yaml": "name: [\n",
	}
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, filepath.Join("/quests", name), []byte(content), 0644))
	}

	cat, err := catalog.New(nil, yamlloader.New(yamlloader.WithFs(fs)))
	require.NoError(t, err)
	if load {
		_, err := cat.Load(context.Background(), "/quests")
		require.NoError(t, err)
	}
	return New(cat), fs
}

func do(s *Server, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	s.E.ServeHTTP(rec, req)
	return rec
}

func TestListQuests(t *testing.T) {
	s, _ := newTestServer(t, true)

	rec := do(s, http.MethodGet, "/quests")
	require.Equal(t, http.StatusOK, rec.Code)

	var quests []quest.Quest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &quests))
	require.Len(t, quests, 2)
	assert.Equal(t, "Intro", quests[0].Name)
	assert.Equal(t, "Wolves", quests[1].Name)
	assert.Equal(t, "YAML", quests[1].Format)

	rec = do(s, http.MethodGet, "/quests?format=lua")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestGetQuest(t *testing.T) {
	s, _ := newTestServer(t, true)

	rec := do(s, http.MethodGet, "/quests/wolves")
	require.Equal(t, http.StatusOK, rec.Code)
	var q quest.Quest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &q))
	assert.Equal(t, "Wolf Problem", q.Title)
	require.Len(t, q.Objectives, 1)
	assert.Equal(t, "wolf", q.Objectives[0].Target)

	rec = do(s, http.MethodGet, "/quests/dragons")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "not_found", errResp.Code)
}

func TestFormatsAndFailures(t *testing.T) {
	s, _ := newTestServer(t, true)

	rec := do(s, http.MethodGet, "/formats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["YAML"]`, rec.Body.String())

	rec = do(s, http.MethodGet, "/failures")
	require.Equal(t, http.StatusOK, rec.Code)
	var failures []FailureResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &failures))
	require.Len(t, failures, 1)
	assert.Equal(t, "decode", failures[0].Kind)
	assert.Equal(t, "/quests/broken.yaml", failures[0].Path)
	assert.False(t, failures[0].Timestamp.IsZero())
}

func TestReload(t *testing.T) {
	s, fs := newTestServer(t, true)
	require.NoError(t, afero.WriteFile(fs, "/quests/dragons.yaml", []byte("name: Dragons\n"), 0644))

	rec := do(s, http.MethodPost, "/reload")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ReloadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "/quests", resp.Dir)
	assert.Equal(t, 3, resp.Quests)
	assert.Equal(t, 1, resp.Failures)

	rec = do(s, http.MethodGet, "/quests/dragons")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReload_NotLoaded(t *testing.T) {
	s, _ := newTestServer(t, false)

	rec := do(s, http.MethodPost, "/reload")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(s, http.MethodGet, "/quests")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, false)
	rec := do(s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestHTTPErrorHandler_WithStackTrace(t *testing.T) {
	e := echo.New()

	// Capture log output in a buffer and restore the default logger afterwards.
	var logBuffer bytes.Buffer
	handler := slog.NewTextHandler(&logBuffer, &slog.HandlerOptions{
		AddSource: true,
	})
	originalLogger := slog.Default()
	slog.SetDefault(slog.New(handler))
	defer slog.SetDefault(originalLogger)

	setupErrorHandling(e)

	e.GET("/test-unhandled-error", func(c echo.Context) error {
		return errors.New("a deliberate unhandled error occurred")
	})

	req := httptest.NewRequest(http.MethodGet, "/test-unhandled-error", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code, "Expected a 500 Internal Server Error response")
	assert.JSONEq(t, `{"code":"internal_error","message":"An unexpected error occurred."}`, rec.Body.String())

	logOutput := logBuffer.String()
	assert.Contains(t, logOutput, "Internal Server Error (Unhandled)")
	assert.Contains(t, logOutput, "error=\"a deliberate unhandled error occurred\"")
	assert.Contains(t, logOutput, "stack_trace=")
	assert.Contains(t, logOutput, "runtime/debug/stack.go", "Stack trace should originate from the debug package")
	assert.Contains(t, logOutput, "internal/server/server_test.go", "Stack trace should point back to this test file")
}

func TestHTTPErrorHandler_KeepsHTTPErrorStatus(t *testing.T) {
	e := echo.New()
	setupErrorHandling(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "not_found", errResp.Code)
}

func TestStart_StopsWithContext(t *testing.T) {
	s, _ := newTestServer(t, false)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- s.Start(ctx, "127.0.0.1:0")
	}()
	cancel()

	assert.NoError(t, <-done)
}
