// ABOUTME: Socket gateway wiring connections to the chat service
// ABOUTME: Handshake, event dispatch, fan-out, presence, disconnect sequence

package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tendera/chat-gateway/internal/auth"
	"github.com/tendera/chat-gateway/internal/chat"
	"github.com/tendera/chat-gateway/internal/session"
	"github.com/tendera/chat-gateway/internal/store"
)

// eventTimeout bounds the store work done on behalf of a single socket event.
const eventTimeout = 5 * time.Second

// Gateway terminates WebSocket connections and translates socket events into
// chat service calls. Delivery over the socket is at-most-once; clients that
// miss events recover by fetching from the store over HTTP.
type Gateway struct {
	svc      *chat.Service
	hub      *Hub
	sessions *session.Registry
	typing   *TypingTracker
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewGateway creates a gateway on top of the chat service. Pass nil logger
// for default.
func NewGateway(svc *chat.Service, sessions *session.Registry, handshakeTimeout time.Duration, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "gateway")
	return &Gateway{
		svc:      svc,
		hub:      NewHub(logger),
		sessions: sessions,
		typing:   NewTypingTracker(),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: handshakeTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			// Cross-origin policy is enforced by the CORS layer in front
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeWS upgrades an authenticated request to a WebSocket connection. The
// identity was verified by the auth middleware; an upgraded connection is
// already trusted and is immediately subscribed to the user's inbox room.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(uuid.New().String(), identity, conn, g)
	g.hub.Join(c, UserInbox(identity.UserID))

	if first := g.sessions.Register(identity.UserID, c.id); first {
		g.hub.BroadcastAll(presenceEvent(identity.UserID, true))
	}

	c.logger.Info("client connected")
	go c.writePump()
	go c.readPump()
}

// dispatch routes one client event. Authorization failures are reported back
// on the sending connection only.
func (g *Gateway) dispatch(c *client, evt clientEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	switch evt.Type {
	case eventConversationJoin:
		g.handleJoin(ctx, c, evt)
	case eventConversationLeave:
		g.hub.Leave(c, ConversationRoom(evt.ConversationID))
	case eventTypingStart:
		g.handleTyping(ctx, c, evt, true)
	case eventTypingStop:
		g.handleTyping(ctx, c, evt, false)
	case eventMessageSend:
		g.handleSend(ctx, c, evt)
	case eventReceiptUpdate:
		g.handleReceipt(ctx, c, evt)
	default:
		c.enqueue(errorEvent("", "unknown event type"))
	}
}

// handleJoin subscribes the connection to a conversation room after checking
// participation. Joining delivers no history; history comes from the store.
func (g *Gateway) handleJoin(ctx context.Context, c *client, evt clientEvent) {
	ok, err := g.svc.IsParticipant(ctx, evt.ConversationID, c.identity.UserID)
	if err != nil {
		c.enqueue(errorEvent(evt.ConversationID, "join failed"))
		return
	}
	if !ok {
		c.enqueue(errorEvent(evt.ConversationID, "not a participant"))
		return
	}
	g.hub.Join(c, ConversationRoom(evt.ConversationID))
}

// handleTyping updates the ephemeral typing state and notifies the
// conversation room on transitions, excluding the typist's own connection.
func (g *Gateway) handleTyping(ctx context.Context, c *client, evt clientEvent, start bool) {
	ok, err := g.svc.IsParticipant(ctx, evt.ConversationID, c.identity.UserID)
	if err != nil || !ok {
		return
	}

	var changed bool
	if start {
		changed = g.typing.Start(evt.ConversationID, c.identity.UserID)
	} else {
		changed = g.typing.Stop(evt.ConversationID, c.identity.UserID)
	}
	if changed {
		g.hub.Broadcast(ConversationRoom(evt.ConversationID), typingEvent(evt.ConversationID, c.identity.UserID, start), c)
	}
}

// handleSend persists a message through the service and fans it out. The
// sender's other devices receive the message via the inbox room like any
// other participant device.
func (g *Gateway) handleSend(ctx context.Context, c *client, evt clientEvent) {
	msg, err := g.svc.SendMessage(ctx, chat.SendMessageInput{
		ConversationID: evt.ConversationID,
		Type:           evt.MessageType,
		Body:           evt.Body,
	}, c.identity.UserID, store.Role(c.identity.Role), c.identity.DisplayName)
	if err != nil {
		c.enqueue(errorEvent(evt.ConversationID, socketErrorMessage(err)))
		return
	}
	g.FanOutMessage(ctx, msg)
}

// handleReceipt upserts a delivery/read acknowledgement and notifies the
// conversation room of the (possibly unchanged) stored state.
func (g *Gateway) handleReceipt(ctx context.Context, c *client, evt clientEvent) {
	upd, err := g.svc.UpdateReceipt(ctx, evt.MessageID, c.identity.UserID, store.ReceiptStatus(evt.Status))
	if err != nil {
		c.enqueue(errorEvent("", socketErrorMessage(err)))
		return
	}
	g.BroadcastReceipt(upd)
}

// FanOutMessage pushes a persisted message to both participants' inbox rooms
// and a conversation update to each, so conversation lists re-sort without a
// refetch. HTTP sends use this too, keeping one fan-out path.
func (g *Gateway) FanOutMessage(ctx context.Context, msg *store.Message) {
	participants, err := g.svc.Participants(ctx, msg.ConversationID)
	if err != nil {
		g.logger.Error("fan-out participant lookup failed", "conversation_id", msg.ConversationID, "error", err)
		return
	}

	newEvt := messageNewEvent(msg)
	updEvt := conversationUpdatedEvent(msg.ConversationID, msg.SentAt)
	for _, p := range participants {
		room := UserInbox(p.UserID)
		g.hub.Broadcast(room, newEvt, nil)
		g.hub.Broadcast(room, updEvt, nil)
	}
}

// BroadcastReceipt announces a stored receipt. Receipts are broadcast
// coarsely to all clients; each routes by conversation_id and drops what it
// doesn't care about.
func (g *Gateway) BroadcastReceipt(upd *chat.ReceiptUpdate) {
	g.hub.BroadcastAll(receiptUpdatedEvent(upd.ConversationID, upd.Receipt))
}

// disconnect runs the teardown sequence for a dropped connection: leave all
// rooms, clear any typing state the user left behind, unregister the
// session, and broadcast offline on the last connection.
func (g *Gateway) disconnect(c *client) {
	c.close()
	g.hub.RemoveClient(c)

	// Typing is cleared on every disconnect, not just the last one: the
	// typing connection may drop while another tab stays online, and a
	// stale "is typing" signal must never outlive it
	for _, convID := range g.typing.RemoveUser(c.identity.UserID) {
		g.hub.Broadcast(ConversationRoom(convID), typingEvent(convID, c.identity.UserID, false), nil)
	}

	if last := g.sessions.Unregister(c.identity.UserID, c.id); last {
		g.hub.BroadcastAll(presenceEvent(c.identity.UserID, false))
	}

	c.logger.Info("client disconnected")
}

// socketErrorMessage maps service errors to client-safe strings. Internal
// errors are not leaked over the socket.
func socketErrorMessage(err error) string {
	switch {
	case errors.Is(err, chat.ErrValidation):
		return err.Error()
	case errors.Is(err, chat.ErrUnauthorized):
		return "not a participant"
	case errors.Is(err, chat.ErrForbidden):
		return "operation not permitted"
	case errors.Is(err, store.ErrNotFound):
		return "not found"
	default:
		return "internal error"
	}
}
