package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/photo-dedup/internal/config"
	"github.com/kozaktomas/photo-dedup/internal/dedup"
	"github.com/kozaktomas/photo-dedup/internal/pipeline"
	"github.com/stretchr/testify/require"
)

// fakeRunner records what it was asked to do. When block is set, Run waits
// for it to close or for its context to end.
type fakeRunner struct {
	mu        sync.Mutex
	runOpts   []pipeline.RunOptions
	matchOpts []pipeline.MatchOptions
	runErr    error
	matchRes  *dedup.MatchResult
	matchErr  error
	block     chan struct{}
	stopped   chan error
}

func (f *fakeRunner) Run(ctx context.Context, opts pipeline.RunOptions) (*dedup.Report, error) {
	f.mu.Lock()
	f.runOpts = append(f.runOpts, opts)
	f.mu.Unlock()

	if opts.OnProgress != nil {
		opts.OnProgress(pipeline.ProgressInfo{Phase: pipeline.PhaseLoading, Current: 1, Total: 2})
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			if f.stopped != nil {
				f.stopped <- ctx.Err()
			}
			return nil, ctx.Err()
		}
	}
	if f.runErr != nil {
		return nil, f.runErr
	}
	return &dedup.Report{
		RunID:   opts.RunID,
		Folder:  opts.Folder,
		Options: opts.Dedup,
		Groups:  []dedup.SimilarityGroup{{ID: 1, Anchor: "a.jpg", Members: []string{"a.jpg", "b.jpg"}}},
		Errors:  []dedup.ImageError{},
		Stats:   dedup.Stats{Images: 2, Groups: 1, Grouped: 2},
	}, nil
}

func (f *fakeRunner) Match(_ context.Context, opts pipeline.MatchOptions) (*dedup.MatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matchOpts = append(f.matchOpts, opts)
	return f.matchRes, f.matchErr
}

func (f *fakeRunner) lastRun() pipeline.RunOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runOpts[len(f.runOpts)-1]
}

func testPresets(t *testing.T) config.Presets {
	t.Helper()
	presets, err := config.LoadPresets("")
	require.NoError(t, err)
	return presets
}

func newTestHandler(t *testing.T, runner *fakeRunner, imageRoot string) *GroupHandler {
	t.Helper()
	return NewGroupHandler(runner, NewRunManager(0), testPresets(t), imageRoot, nil)
}

// testRouter mounts the handler the way the server does.
func testRouter(h *GroupHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/v1/presets", h.Presets)
	r.Post("/api/v1/runs", h.Start)
	r.Get("/api/v1/runs", h.List)
	r.Get("/api/v1/runs/{runId}", h.Status)
	r.Get("/api/v1/runs/{runId}/events", h.Events)
	r.Delete("/api/v1/runs/{runId}", h.Delete)
	r.Post("/api/v1/match", h.Match)
	return r
}

func serve(t *testing.T, handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	return recorder
}

// waitForStatus polls a run until it reaches status.
func waitForStatus(t *testing.T, run *Run, status RunStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		return run.GetStatus() == status
	}, 5*time.Second, 5*time.Millisecond, "run never reached %s", status)
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// decodeJSON unmarshals a response body into T.
func decodeJSON[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &out), recorder.Body.String())
	return out
}
