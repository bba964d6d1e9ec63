package handlers

import (
	"testing"
	"time"

	"github.com/kozaktomas/photo-dedup/internal/dedup"
	"github.com/kozaktomas/photo-dedup/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStatus_Terminal(t *testing.T) {
	tests := []struct {
		status RunStatus
		want   bool
	}{
		{RunStatusPending, false},
		{RunStatusRunning, false},
		{RunStatusCompleted, true},
		{RunStatusFailed, true},
		{RunStatusCancelled, true},
	}
	for _, tc := range tests {
		t.Run(string(tc.status), func(t *testing.T) {
			assert.Equal(t, tc.want, tc.status.Terminal())
		})
	}
}

func TestRun_Lifecycle(t *testing.T) {
	m := NewRunManager(0)
	run := m.CreateRun("/photos", false, dedup.DefaultOptions())
	events := run.AddListener()
	defer run.RemoveListener(events)

	assert.Equal(t, RunStatusPending, run.GetStatus())
	run.setProgress(pipeline.ProgressInfo{Phase: pipeline.PhaseLoading}) // ignored while pending
	assert.Empty(t, run.Snapshot().Progress.Phase)

	require.True(t, run.start())
	assert.Equal(t, EventStarted, (<-events).Type)

	run.setProgress(pipeline.ProgressInfo{Phase: pipeline.PhaseGrouping, Current: 3, Total: 10})
	ev := <-events
	assert.Equal(t, EventProgress, ev.Type)
	assert.Equal(t, pipeline.ProgressInfo{Phase: pipeline.PhaseGrouping, Current: 3, Total: 10}, ev.Data)

	run.complete(&dedup.Report{Stats: dedup.Stats{Groups: 2}})
	ev = <-events
	assert.Equal(t, EventCompleted, ev.Type)
	assert.Equal(t, dedup.Stats{Groups: 2}, ev.Data)

	snapshot := run.Snapshot()
	assert.Equal(t, RunStatusCompleted, snapshot.Status)
	require.NotNil(t, snapshot.CompletedAt)

	// Finished runs ignore later transitions.
	run.fail("late")
	assert.False(t, run.Cancel())
	assert.Equal(t, RunStatusCompleted, run.GetStatus())
	assert.Empty(t, run.Snapshot().Error)
}

func TestRun_CancelWhilePending(t *testing.T) {
	run := NewRunManager(0).CreateRun("/photos", false, dedup.DefaultOptions())

	assert.True(t, run.Cancel())
	assert.False(t, run.start())
	assert.Equal(t, RunStatusCancelled, run.GetStatus())
}

func TestEventBroadcaster_FullListenerIsSkipped(t *testing.T) {
	var b EventBroadcaster
	slow := b.AddListener()
	fast := b.AddListener()

	for range cap(slow) + 5 {
		b.SendEvent(RunEvent{Type: EventProgress})
	}
	assert.Len(t, slow, cap(slow))

	b.RemoveListener(fast)
	_, open := <-drain(fast)
	assert.False(t, open)
}

// drain empties ch and returns it.
func drain(ch chan RunEvent) chan RunEvent {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return ch
			}
		default:
			return ch
		}
	}
}

func TestRunManager_EvictsOldestFinishedRuns(t *testing.T) {
	m := NewRunManager(2)

	active := m.CreateRun("/a", false, dedup.DefaultOptions())
	require.True(t, active.start())

	old := m.CreateRun("/b", false, dedup.DefaultOptions())
	old.startedAt = time.Now().Add(-time.Hour)
	old.fail("boom")

	recent := m.CreateRun("/c", false, dedup.DefaultOptions())
	recent.complete(&dedup.Report{})

	// Three runs over a limit of two: only finished runs are candidates and
	// the oldest of them goes.
	next := m.CreateRun("/d", false, dedup.DefaultOptions())

	assert.NotNil(t, m.GetRun(active.ID()))
	assert.Nil(t, m.GetRun(old.ID()))
	assert.Nil(t, m.GetRun(recent.ID()))
	assert.NotNil(t, m.GetRun(next.ID()))
}

func TestRunManager_ListNewestFirst(t *testing.T) {
	m := NewRunManager(0)
	first := m.CreateRun("/a", false, dedup.DefaultOptions())
	first.startedAt = time.Now().Add(-time.Minute)
	second := m.CreateRun("/b", false, dedup.DefaultOptions())
	second.complete(&dedup.Report{Folder: "/b"})

	list := m.ListRuns()
	require.Len(t, list, 2)
	assert.Equal(t, second.ID(), list[0].ID)
	assert.Equal(t, first.ID(), list[1].ID)
	assert.Nil(t, list[0].Report)
}

func TestRunManager_Delete(t *testing.T) {
	m := NewRunManager(0)
	run := m.CreateRun("/a", false, dedup.DefaultOptions())

	assert.True(t, m.DeleteRun(run.ID()))
	assert.Equal(t, RunStatusCancelled, run.GetStatus())
	assert.Nil(t, m.GetRun(run.ID()))
	assert.False(t, m.DeleteRun(run.ID()))
}
