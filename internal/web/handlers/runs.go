package handlers

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/photo-dedup/internal/constants"
	"github.com/kozaktomas/photo-dedup/internal/dedup"
	"github.com/kozaktomas/photo-dedup/internal/pipeline"
)

// RunStatus represents the status of an async run.
type RunStatus string

// RunStatus constants define the lifecycle states of an async run.
const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal returns true if the run can no longer change.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// Event types sent to SSE listeners.
const (
	EventStarted   = "started"
	EventProgress  = "progress"
	EventCompleted = "completed"
	EventFailed    = "run_error"
	EventCancelled = "cancelled"
)

func isTerminalEvent(eventType string) bool {
	return eventType == EventCompleted || eventType == EventFailed || eventType == EventCancelled
}

// RunEvent represents an event from a run.
type RunEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// EventBroadcaster provides listener management and event broadcasting for async runs.
type EventBroadcaster struct {
	cancel    context.CancelFunc
	listeners []chan RunEvent
	mu        sync.RWMutex
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan RunEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan RunEvent, constants.EventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener.
func (b *EventBroadcaster) RemoveListener(ch chan RunEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners.
func (b *EventBroadcaster) SendEvent(event RunEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

func (b *EventBroadcaster) setCancel(cancel context.CancelFunc) {
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()
}

// Run is one asynchronous grouping run. Its state is guarded by the embedded
// broadcaster's lock and read through Snapshot.
type Run struct {
	EventBroadcaster

	id          string
	folder      string
	recursive   bool
	status      RunStatus
	progress    pipeline.ProgressInfo
	err         string
	startedAt   time.Time
	completedAt *time.Time
	options     dedup.Options
	report      *dedup.Report
}

// RunSnapshot is a consistent copy of a run's state.
type RunSnapshot struct {
	ID          string                `json:"id"`
	Folder      string                `json:"folder"`
	Recursive   bool                  `json:"recursive"`
	Status      RunStatus             `json:"status"`
	Progress    pipeline.ProgressInfo `json:"progress"`
	Error       string                `json:"error,omitempty"`
	StartedAt   time.Time             `json:"started_at"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
	Options     dedup.Options         `json:"options"`
	Report      *dedup.Report         `json:"report,omitempty"`
}

// ID returns the run ID.
func (r *Run) ID() string {
	return r.id
}

// GetStatus returns the current run status.
func (r *Run) GetStatus() RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Snapshot returns a copy of the run's state.
func (r *Run) Snapshot() RunSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RunSnapshot{
		ID:          r.id,
		Folder:      r.folder,
		Recursive:   r.recursive,
		Status:      r.status,
		Progress:    r.progress,
		Error:       r.err,
		StartedAt:   r.startedAt,
		CompletedAt: r.completedAt,
		Options:     r.options,
		Report:      r.report,
	}
}

// Cancel stops an active run. It returns false if the run already finished.
func (r *Run) Cancel() bool {
	r.mu.Lock()
	if r.status.Terminal() {
		r.mu.Unlock()
		return false
	}
	now := time.Now()
	r.status = RunStatusCancelled
	r.completedAt = &now
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.SendEvent(RunEvent{Type: EventCancelled, Message: "Run cancelled by user"})
	return true
}

// start marks the run as running unless it was cancelled while pending.
func (r *Run) start() bool {
	r.mu.Lock()
	if r.status != RunStatusPending {
		r.mu.Unlock()
		return false
	}
	r.status = RunStatusRunning
	r.mu.Unlock()
	r.SendEvent(RunEvent{Type: EventStarted, Message: "Run started"})
	return true
}

func (r *Run) setProgress(info pipeline.ProgressInfo) {
	r.mu.Lock()
	if r.status != RunStatusRunning {
		r.mu.Unlock()
		return
	}
	r.progress = info
	r.mu.Unlock()
	r.SendEvent(RunEvent{Type: EventProgress, Data: info})
}

func (r *Run) complete(report *dedup.Report) {
	r.mu.Lock()
	if r.status.Terminal() {
		r.mu.Unlock()
		return
	}
	now := time.Now()
	r.status = RunStatusCompleted
	r.report = report
	r.completedAt = &now
	r.mu.Unlock()
	r.SendEvent(RunEvent{Type: EventCompleted, Message: "Run completed", Data: report.Stats})
}

func (r *Run) fail(message string) {
	r.mu.Lock()
	if r.status.Terminal() {
		r.mu.Unlock()
		return
	}
	now := time.Now()
	r.status = RunStatusFailed
	r.err = message
	r.completedAt = &now
	r.mu.Unlock()
	r.SendEvent(RunEvent{Type: EventFailed, Message: message})
}

// RunManager keeps runs in memory. Once more than maxStored runs exist, the
// oldest finished runs are forgotten.
type RunManager struct {
	runs      map[string]*Run
	maxStored int
	mu        sync.RWMutex
}

// NewRunManager creates a new run manager. maxStored <= 0 uses the default.
func NewRunManager(maxStored int) *RunManager {
	if maxStored <= 0 {
		maxStored = constants.MaxStoredRuns
	}
	return &RunManager{
		runs:      make(map[string]*Run),
		maxStored: maxStored,
	}
}

// CreateRun registers a new pending run.
func (m *RunManager) CreateRun(folder string, recursive bool, options dedup.Options) *Run {
	run := &Run{
		id:        uuid.NewString(),
		folder:    folder,
		recursive: recursive,
		status:    RunStatusPending,
		startedAt: time.Now(),
		options:   options,
	}

	m.mu.Lock()
	m.runs[run.id] = run
	m.evict()
	m.mu.Unlock()

	return run
}

// evict drops the oldest finished runs above the limit. Active runs are never
// dropped. Callers hold m.mu.
func (m *RunManager) evict() {
	if len(m.runs) <= m.maxStored {
		return
	}
	finished := make([]RunSnapshot, 0, len(m.runs))
	for _, run := range m.runs {
		if s := run.Snapshot(); s.Status.Terminal() {
			finished = append(finished, s)
		}
	}
	slices.SortFunc(finished, func(a, b RunSnapshot) int {
		return a.StartedAt.Compare(b.StartedAt)
	})
	for _, s := range finished {
		if len(m.runs) <= m.maxStored {
			return
		}
		delete(m.runs, s.ID)
	}
}

// GetRun retrieves a run by ID.
func (m *RunManager) GetRun(id string) *Run {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runs[id]
}

// DeleteRun removes a run, cancelling it first if it is still active.
func (m *RunManager) DeleteRun(id string) bool {
	m.mu.Lock()
	run, ok := m.runs[id]
	delete(m.runs, id)
	m.mu.Unlock()
	if !ok {
		return false
	}
	run.Cancel()
	return true
}

// ListRuns returns snapshots of all runs, newest first, without reports.
func (m *RunManager) ListRuns() []RunSnapshot {
	m.mu.RLock()
	out := make([]RunSnapshot, 0, len(m.runs))
	for _, run := range m.runs {
		s := run.Snapshot()
		s.Report = nil
		out = append(out, s)
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b RunSnapshot) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}
