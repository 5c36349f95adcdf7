package websocket

import (
	"encoding/json"
	"time"

	"study-pipeline-be/pkg/store"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512

	// sendBuffer holds a job's whole progress trail with room to spare
	sendBuffer = 16

	closeReasonFinished = "job finished"
	closeReasonDropped  = "watcher too slow"
)

// Client is one websocket watching one job. The hub serializes deliver and
// finish under its lock; the pumps only read Send.
type Client struct {
	Hub *Hub

	Conn *websocket.Conn

	// JobID is the job this connection watches
	JobID string

	// Buffered channel of outbound snapshots, closed by finish
	Send chan []byte

	last     store.GenerationJob
	seen     bool
	dropped  bool
	finished bool
}

func NewClient(hub *Hub, conn *websocket.Conn, jobID string) *Client {
	return &Client{Hub: hub, Conn: conn, JobID: jobID, Send: make(chan []byte, sendBuffer)}
}

// deliver queues a snapshot without blocking. Snapshots older than the last
// one sent are skipped so a watcher never sees progress go backwards. A false
// return means the buffer is full and the client should be dropped.
func (c *Client) deliver(job store.GenerationJob) bool {
	if c.finished {
		return true
	}
	if c.seen && (c.last.Status.Terminal() || (!job.Status.Terminal() && job.Percentage < c.last.Percentage)) {
		return true
	}
	select {
	case c.Send <- snapshot(job):
		c.last, c.seen = job, true
		return true
	default:
		c.dropped = true
		return false
	}
}

// finish closes Send once.
func (c *Client) finish() {
	if c.finished {
		return
	}
	c.finished = true
	close(c.Send)
}

func (c *Client) closeReason() string {
	if c.dropped {
		return closeReasonDropped
	}
	return closeReasonFinished
}

func snapshot(job store.GenerationJob) []byte {
	data, _ := json.Marshal(map[string]interface{}{"type": "job", "data": job})
	return data
}

// readPump only serves control frames; clients do not send data.
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("Hub", "Unexpected websocket close", map[string]interface{}{
					"job_id": c.JobID,
					"error":  err.Error(),
				})
			}
			return
		}
	}
}

// writePump writes snapshots until Send is closed, then sends a close frame
// saying why the watch ended.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Hub.mu.RLock()
				reason := c.closeReason()
				c.Hub.mu.RUnlock()
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
