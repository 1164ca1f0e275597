package relay

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/rianhasansiam/digicam/internal/models"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound event size in bytes.
	maxEventSize = 4096

	// Outbound buffer per connection. When it fills, events are dropped
	// for that connection rather than blocking the dispatch loop.
	sendBuffer = 64
)

// Conn is one live relay connection. It is created on connect and destroyed
// on disconnect; it is never persisted.
type Conn struct {
	hub  *Hub
	ws   *websocket.Conn
	send chan []byte

	// The fields below are owned by the hub's dispatch goroutine.
	identityID string
	role       models.Role
	joined     bool
	rooms      map[string]struct{}
}

func newConn(hub *Hub, ws *websocket.Conn) *Conn {
	return &Conn{
		hub:   hub,
		ws:    ws,
		send:  make(chan []byte, sendBuffer),
		rooms: make(map[string]struct{}),
	}
}

// enqueue hands an outbound frame to the write pump without blocking.
func (c *Conn) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// readPump feeds inbound frames into the hub until the connection drops.
func (c *Conn) readPump() {
	defer func() {
		c.hub.disconnect <- c
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxEventSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug().Err(err).Msg("websocket read error")
			}
			return
		}
		c.hub.inbound <- inboundEvent{conn: c, data: data}
	}
}

// writePump drains the send buffer and keeps the connection alive with
// pings. It exits when the hub closes the send channel or a write fails.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
