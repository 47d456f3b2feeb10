package httpapi

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/inkgrade/internal/config"
	"github.com/ocx/inkgrade/internal/credentialpool"
	"github.com/ocx/inkgrade/internal/dispatcher"
	"github.com/ocx/inkgrade/internal/floodlimiter"
	"github.com/ocx/inkgrade/internal/grading"
	"github.com/ocx/inkgrade/internal/ratebudget"
	"github.com/ocx/inkgrade/internal/resultstore/memstore"
	"github.com/ocx/inkgrade/internal/upstream"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	pool := credentialpool.NewInProcessPool([]string{"k1"}, time.Minute, time.Second)
	budget := ratebudget.NewInProcessBudget(time.Minute, 1000)
	store := memstore.New()
	engine := &grading.Engine{
		Pool:            pool,
		Budget:          budget,
		Dispatch:        dispatcher.New(pool, budget, 1, 1),
		Upstream:        &upstream.MockClient{Chunks: []string{"共识别 0 个汉字：", "【总评】ok"}},
		Store:           store,
		MaxImageSize:    512,
		WholePagePrompt: "p",
	}
	flood := floodlimiter.New(store, 5, 20)
	handlers := &Handlers{Engine: engine, Store: store, Flood: flood}
	return NewServer(config.ServerConfig{Port: "0", ReadTimeoutSec: 5, WriteTimeoutSec: 5, IdleTimeoutSec: 5}, handlers)
}

func TestRouting_TemplatesIsReachable(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/homework/templates", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// TestRouting_TaskIDDoesNotShadowHistoryOrGrowth guards against the
// /{taskId} catch-all being registered before the more specific
// /history/{userId} and /growth/{userId}/{charName} routes.
func TestRouting_TaskIDDoesNotShadowHistoryOrGrowth(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/homework/history/1", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/homework/growth/1/永", nil)
	rec = httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouting_GetByTaskIDNotFound(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/homework/unknown-task", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouting_AnalyzeUploadsAndReturnsResult(t *testing.T) {
	srv := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "page.jpg")
	require.NoError(t, err)
	_, err = fw.Write([]byte("fake-jpeg-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/homework/analyze", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouting_AnalyzeMissingFileIsRejected(t *testing.T) {
	srv := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/homework/analyze", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestCORSMiddleware_WildcardAllowsAnyOrigin(t *testing.T) {
	mw := corsMiddleware([]string{"*"})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSMiddleware_PreflightShortCircuits(t *testing.T) {
	mw := corsMiddleware([]string{"https://allowed.example"})
	called := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.False(t, called, "an OPTIONS preflight must not reach the wrapped handler")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
