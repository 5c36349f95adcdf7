package websocket

import (
	"github.com/gofiber/websocket/v2"
)

// ServeWs sends the job's current snapshot, then every later change until the
// job reaches a terminal state or the peer leaves.
func ServeWs(hub *Hub, c *websocket.Conn, jobID string, load LoadJob) error {
	client := NewClient(hub, c, jobID)
	registered, err := hub.Subscribe(client, load)
	if err != nil {
		return err
	}
	if !registered {
		client.writePump()
		return nil
	}

	go client.writePump()
	client.readPump()
	return nil
}
