package websocket

import (
	"sync"

	"study-pipeline-be/internal/pkg/logger"
	"study-pipeline-be/pkg/store"
)

// LoadJob reads the current state of a job.
type LoadJob func(jobID string) (*store.GenerationJob, error)

// Hub fans job state changes out to the websocket clients watching each job.
type Hub struct {
	// Registered clients map: JobID -> watchers
	clients map[string][]*Client

	unregister chan *Client

	mu sync.RWMutex

	logger logger.ILogger
}

func NewHub(log logger.ILogger) *Hub {
	return &Hub{
		unregister: make(chan *Client),
		clients:    make(map[string][]*Client),
		logger:     log,
	}
}

// Run serves unregister requests from closing connections until done is closed.
func (h *Hub) Run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

// Subscribe queues the job's current snapshot on the client and registers it
// for later changes. The load runs under the hub lock, so no NotifyJob can
// slip in between. A job that is already terminal is not registered and its
// client is closed right after the snapshot. Subscribe reports whether the
// client was registered.
func (h *Hub) Subscribe(client *Client, load LoadJob) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	job, err := load(client.JobID)
	if err != nil {
		return false, err
	}
	if !client.deliver(*job) {
		client.finish()
		return false, nil
	}
	if job.Status.Terminal() {
		client.finish()
		return false, nil
	}
	h.clients[client.JobID] = append(h.clients[client.JobID], client)
	h.logger.Debug("Hub", "Client registered", map[string]interface{}{"job_id": client.JobID})
	return true, nil
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.clients[client.JobID]
	if !ok {
		return
	}
	for i, c := range clients {
		if c == client {
			h.clients[client.JobID] = append(clients[:i], clients[i+1:]...)
			client.finish()
			break
		}
	}
	if len(h.clients[client.JobID]) == 0 {
		delete(h.clients, client.JobID)
	}
}

// NotifyJob sends the job snapshot to every client watching it. Terminal
// updates also end those subscriptions, as does a full send buffer.
func (h *Hub) NotifyJob(job store.GenerationJob) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients := h.clients[job.ID]
	kept := clients[:0]
	for _, client := range clients {
		if !client.deliver(job) {
			h.logger.Warn("Hub", "Client Send buffer full, dropping client", map[string]interface{}{"job_id": job.ID})
			client.finish()
			continue
		}
		if job.Status.Terminal() {
			client.finish()
			continue
		}
		kept = append(kept, client)
	}
	if len(kept) == 0 {
		delete(h.clients, job.ID)
		return
	}
	h.clients[job.ID] = kept
}

// Watchers returns the number of clients subscribed to jobID.
func (h *Hub) Watchers(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[jobID])
}
