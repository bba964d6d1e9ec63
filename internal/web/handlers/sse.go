package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// setupSSEConnection validates the request, finds the run, and sets up SSE headers.
// Returns the run, flusher, and true on success. On failure, writes an error response and returns zero values with false.
func setupSSEConnection(w http.ResponseWriter, r *http.Request, lookupRun func(string) *Run) (*Run, http.Flusher, bool) {
	runID := chi.URLParam(r, "runId")
	if runID == "" {
		respondError(w, http.StatusBadRequest, "missing run ID")
		return nil, nil, false
	}

	run := lookupRun(runID)
	if run == nil {
		respondError(w, http.StatusNotFound, "run not found")
		return nil, nil, false
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return nil, nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	return run, flusher, true
}

// streamSSEEvents streams events of a run until the run finishes, the client
// disconnects, or the event channel closes. The first event is a "status"
// event with the run's current snapshot.
func streamSSEEvents(w http.ResponseWriter, r *http.Request, lookupRun func(string) *Run) {
	run, flusher, ok := setupSSEConnection(w, r, lookupRun)
	if !ok {
		return
	}

	eventCh := run.AddListener()
	defer run.RemoveListener(eventCh)

	snapshot := run.Snapshot()
	sendSSEEvent(w, flusher, "status", snapshot)
	if snapshot.Status.Terminal() {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			sendSSEEvent(w, flusher, event.Type, event)
			if isTerminalEvent(event.Type) {
				return
			}
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	jsonData, _ := json.Marshal(data)
	_, _ = io.WriteString(w, "event: "+eventType+"\n")
	_, _ = io.WriteString(w, "data: ")
	_, _ = io.Copy(w, bytes.NewReader(jsonData))
	_, _ = io.WriteString(w, "\n\n")
	flusher.Flush()
}
