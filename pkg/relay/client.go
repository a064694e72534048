package relay

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const (
	// writeWait is how long to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds inbound control messages.
	maxMessageSize = 64 * 1024
)

// RegisterRoutes registers the viewer WebSocket endpoint and the relay API
// on a Fiber app.
func (h *Hub) RegisterRoutes(app *fiber.App) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/viewer", websocket.New(h.handleViewer))

	api := app.Group("/api")
	api.Get("/relay/stats", func(c *fiber.Ctx) error {
		return c.JSON(h.GetStats())
	})
}

// handleViewer serves one viewer connection until it closes.
func (h *Hub) handleViewer(conn *websocket.Conn) {
	v := h.Subscribe()
	defer h.Unsubscribe(v)

	go h.readPump(v, conn)
	h.writePump(v, conn) // blocks until the connection closes

	h.log.Debug("viewer stream ended", "viewer", v.ID, "last_seq", v.LastSeq())
}

// readPump reads viewer control messages and detects disconnection.
func (h *Hub) readPump(v *Viewer, conn *websocket.Conn) {
	defer func() {
		h.Unsubscribe(v)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var ctl Control
		if err := json.Unmarshal(data, &ctl); err != nil || ctl.Type == "" {
			h.log.Debug("ignoring malformed control message", "viewer", v.ID)
			continue
		}
		ctl.ViewerID = v.ID
		h.SubmitControl(ctl)
	}
}

// writePump drains the viewer's outbound queue into the connection.
// Only this goroutine writes to the connection.
func (h *Hub) writePump(v *Viewer, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		// Drain whatever is queued before blocking again.
		for {
			ev, ok := v.TryNext()
			if !ok {
				break
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.log.Warn("failed to encode event", "viewer", v.ID, "error", err)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}

		select {
		case <-v.Ready():
		case <-v.Done():
			// Flush anything enqueued before the unsubscribe.
			for {
				ev, ok := v.TryNext()
				if !ok {
					break
				}
				data, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
