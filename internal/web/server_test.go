package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/photo-dedup/internal/config"
	"github.com/kozaktomas/photo-dedup/internal/database"
	"github.com/kozaktomas/photo-dedup/internal/dedup"
	"github.com/kozaktomas/photo-dedup/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingRunner holds every run until its context ends.
type blockingRunner struct {
	started chan struct{}
	stopped chan error
}

func (b *blockingRunner) Run(ctx context.Context, _ pipeline.RunOptions) (*dedup.Report, error) {
	b.started <- struct{}{}
	<-ctx.Done()
	b.stopped <- ctx.Err()
	return nil, ctx.Err()
}

func (b *blockingRunner) Match(context.Context, pipeline.MatchOptions) (*dedup.MatchResult, error) {
	return &dedup.MatchResult{Query: "q.jpg", Matches: []dedup.PairDecision{}, Errors: []dedup.ImageError{}}, nil
}

func newTestServer(t *testing.T) (*Server, *blockingRunner) {
	t.Helper()
	presets, err := config.LoadPresets("")
	require.NoError(t, err)

	runner := &blockingRunner{started: make(chan struct{}, 1), stopped: make(chan error, 1)}
	store := database.NewMemoryStore()
	cfg := &config.Config{Web: config.WebConfig{AllowedOrigins: "https://dedup.example.com"}}

	s := NewServer(cfg, 0, "127.0.0.1", Backends{
		Runner:   runner,
		Presets:  presets,
		Features: store,
		Texts:    store,
	}, nil)
	return s, runner
}

func TestServer_Routes(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{"GET", "/api/v1/health", "", http.StatusOK},
		{"GET", "/api/v1/config", "", http.StatusOK},
		{"GET", "/api/v1/stats", "", http.StatusOK},
		{"GET", "/api/v1/presets", "", http.StatusOK},
		{"GET", "/api/v1/runs", "", http.StatusOK},
		{"GET", "/api/v1/runs/missing", "", http.StatusNotFound},
		{"DELETE", "/api/v1/runs/missing", "", http.StatusNotFound},
		{"POST", "/api/v1/runs", "{not json", http.StatusBadRequest},
		{"GET", "/api/v1/unknown", "", http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			recorder := httptest.NewRecorder()
			s.Router().ServeHTTP(recorder, req)
			assert.Equal(t, tc.want, recorder.Code, recorder.Body.String())
		})
	}
}

func TestServer_SecurityAndCORSHeaders(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest("OPTIONS", "/api/v1/runs", nil)
	req.Header.Set("Origin", "https://dedup.example.com")
	recorder := httptest.NewRecorder()
	s.Router().ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "https://dedup.example.com", recorder.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "nosniff", recorder.Header().Get("X-Content-Type-Options"))

	req = httptest.NewRequest("GET", "/api/v1/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	recorder = httptest.NewRecorder()
	s.Router().ServeHTTP(recorder, req)
	assert.Empty(t, recorder.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_ShutdownCancelsRuns(t *testing.T) {
	s, runner := newTestServer(t)
	dir := t.TempDir()

	body, err := json.Marshal(map[string]any{"folder": dir})
	require.NoError(t, err)
	req := httptest.NewRequest("POST", "/api/v1/runs", strings.NewReader(string(body)))
	recorder := httptest.NewRecorder()
	s.Router().ServeHTTP(recorder, req)
	require.Equal(t, http.StatusAccepted, recorder.Code, recorder.Body.String())

	select {
	case <-runner.started:
	case <-time.After(5 * time.Second):
		t.Fatal("run never started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	select {
	case err := <-runner.stopped:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("run was not cancelled on shutdown")
	}
}
