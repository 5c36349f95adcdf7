package websocket

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"study-pipeline-be/internal/pkg/logger"
	"study-pipeline-be/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(logger.NewNopLogger())
	done := make(chan struct{})
	go hub.Run(done)
	t.Cleanup(func() { close(done) })
	return hub
}

func loadFixed(job store.GenerationJob) LoadJob {
	return func(string) (*store.GenerationJob, error) { return &job, nil }
}

func receive(t *testing.T, ch <-chan []byte) (store.GenerationJob, bool) {
	t.Helper()
	select {
	case data, ok := <-ch:
		if !ok {
			return store.GenerationJob{}, false
		}
		var msg struct {
			Type string              `json:"type"`
			Data store.GenerationJob `json:"data"`
		}
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, "job", msg.Type)
		return msg.Data, true
	case <-time.After(time.Second):
		t.Fatal("no message from hub")
	}
	return store.GenerationJob{}, false
}

func TestHubDeliversUntilTerminal(t *testing.T) {
	hub := startHub(t)
	client := NewClient(hub, nil, "job-1")
	other := NewClient(hub, nil, "job-2")

	ok, err := hub.Subscribe(client, loadFixed(store.GenerationJob{ID: "job-1", Status: store.JobStatusQueued}))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = hub.Subscribe(other, loadFixed(store.GenerationJob{ID: "job-2", Status: store.JobStatusQueued}))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, hub.Watchers("job-1"))
	assert.Equal(t, 1, hub.Watchers("job-2"))

	job, ok := receive(t, client.Send)
	require.True(t, ok)
	assert.Equal(t, store.JobStatusQueued, job.Status)

	hub.NotifyJob(store.GenerationJob{ID: "job-1", Status: store.JobStatusProcessing, Percentage: 40})
	job, ok = receive(t, client.Send)
	require.True(t, ok)
	assert.Equal(t, 40, job.Percentage)

	hub.NotifyJob(store.GenerationJob{ID: "job-1", Status: store.JobStatusCompleted, Percentage: 100, NoteID: "n1"})
	job, ok = receive(t, client.Send)
	require.True(t, ok)
	assert.Equal(t, "n1", job.NoteID)

	_, ok = receive(t, client.Send)
	assert.False(t, ok, "terminal update closes the subscription")
	assert.Zero(t, hub.Watchers("job-1"))
	assert.Equal(t, closeReasonFinished, client.closeReason())

	assert.Len(t, other.Send, 1, "only the initial snapshot")
	assert.Equal(t, 1, hub.Watchers("job-2"))
}

func TestHubSubscribeToFinishedJob(t *testing.T) {
	hub := startHub(t)
	client := NewClient(hub, nil, "job-1")

	// The job finished after the controller's existence check but before the
	// watcher subscribed.
	ok, err := hub.Subscribe(client, loadFixed(store.GenerationJob{
		ID: "job-1", Status: store.JobStatusFailed, Percentage: 40, Error: "cancelled by client",
	}))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, hub.Watchers("job-1"))

	job, open := receive(t, client.Send)
	require.True(t, open)
	assert.Equal(t, "cancelled by client", job.Error)
	_, open = receive(t, client.Send)
	assert.False(t, open)
}

func TestHubSubscribeLoadError(t *testing.T) {
	hub := startHub(t)
	client := NewClient(hub, nil, "job-1")

	ok, err := hub.Subscribe(client, func(string) (*store.GenerationJob, error) {
		return nil, errors.New("job not found")
	})
	require.Error(t, err)
	assert.False(t, ok)
	assert.Zero(t, hub.Watchers("job-1"))
}

func TestHubSkipsStaleSnapshots(t *testing.T) {
	hub := startHub(t)
	client := NewClient(hub, nil, "job-1")
	_, err := hub.Subscribe(client, loadFixed(store.GenerationJob{ID: "job-1", Status: store.JobStatusProcessing, Percentage: 40}))
	require.NoError(t, err)
	_, _ = receive(t, client.Send)

	hub.NotifyJob(store.GenerationJob{ID: "job-1", Status: store.JobStatusProcessing, Percentage: 10})
	assert.Empty(t, client.Send)

	hub.NotifyJob(store.GenerationJob{ID: "job-1", Status: store.JobStatusProcessing, Percentage: 80})
	job, ok := receive(t, client.Send)
	require.True(t, ok)
	assert.Equal(t, 80, job.Percentage)
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := startHub(t)
	client := NewClient(hub, nil, "job-1")
	_, err := hub.Subscribe(client, loadFixed(store.GenerationJob{ID: "job-1", Status: store.JobStatusProcessing}))
	require.NoError(t, err)

	for pct := 1; pct <= sendBuffer; pct++ {
		hub.NotifyJob(store.GenerationJob{ID: "job-1", Status: store.JobStatusProcessing, Percentage: pct})
	}

	assert.Zero(t, hub.Watchers("job-1"))
	assert.Equal(t, closeReasonDropped, client.closeReason())
	assert.Len(t, client.Send, sendBuffer)
}

func TestHubUnregister(t *testing.T) {
	hub := startHub(t)
	client := NewClient(hub, nil, "job-1")
	_, err := hub.Subscribe(client, loadFixed(store.GenerationJob{ID: "job-1", Status: store.JobStatusQueued}))
	require.NoError(t, err)
	_, _ = receive(t, client.Send)

	hub.unregister <- client

	require.Eventually(t, func() bool { return hub.Watchers("job-1") == 0 }, time.Second, 5*time.Millisecond)
	_, ok := <-client.Send
	assert.False(t, ok)
}
