// ABOUTME: Per-connection WebSocket client with read and write pumps
// ABOUTME: Owns the socket; the hub only ever touches the send queue

package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tendera/chat-gateway/internal/auth"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period, must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound frame size
	maxMessageSize = 64 * 1024

	// Outbound queue depth per connection
	sendBufferSize = 64
)

// client is one WebSocket connection. The read pump is the only reader and
// the write pump the only writer on the underlying conn; everything else
// communicates through the send channel.
type client struct {
	id       string
	identity auth.Identity
	conn     *websocket.Conn
	send     chan []byte

	// done is closed instead of send: closing send would race with the
	// hub's concurrent enqueues
	done     chan struct{}
	doneOnce sync.Once

	gw     *Gateway
	logger *slog.Logger
}

func newClient(id string, identity auth.Identity, conn *websocket.Conn, gw *Gateway) *client {
	return &client{
		id:       id,
		identity: identity,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
		gw:       gw,
		logger:   gw.logger.With("conn_id", id, "user_id", identity.UserID),
	}
}

// enqueue queues a payload for the write pump without ever blocking. A full
// buffer means the consumer is too slow; the event is dropped and the client
// re-syncs from the store on its next fetch.
func (c *client) enqueue(payload []byte) {
	select {
	case c.send <- payload:
	case <-c.done:
	default:
		c.logger.Debug("send buffer full, dropping event")
	}
}

// close signals the write pump to exit. Safe to call more than once.
func (c *client) close() {
	c.doneOnce.Do(func() { close(c.done) })
}

// readPump reads client events off the socket and dispatches them until the
// connection drops, then runs the gateway's disconnect sequence.
func (c *client) readPump() {
	defer func() {
		c.gw.disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("unexpected close", "error", err)
			}
			return
		}

		var evt clientEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			c.enqueue(errorEvent("", "malformed event"))
			continue
		}
		c.gw.dispatch(c, evt)
	}
}

// writePump drains the send queue onto the socket and keeps the connection
// alive with pings. Exits when done is closed or a write fails.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
