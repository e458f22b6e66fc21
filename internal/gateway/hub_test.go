package gateway

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendera/chat-gateway/internal/auth"
)

// testClient builds a client that is not backed by a socket; only the send
// queue is exercised.
func testClient(id, userID string) *client {
	return &client{
		id:       id,
		identity: auth.Identity{UserID: userID, Role: "customer"},
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func drain(c *client) [][]byte {
	var out [][]byte
	for {
		select {
		case p := <-c.send:
			out = append(out, p)
		default:
			return out
		}
	}
}

func TestRoomNames(t *testing.T) {
	assert.Equal(t, "user:alice", UserInbox("alice").Name())
	assert.Equal(t, "conversation:conv-1", ConversationRoom("conv-1").Name())
}

func TestHub_BroadcastToRoom(t *testing.T) {
	h := NewHub(nil)
	a := testClient("c1", "alice")
	b := testClient("c2", "bob")
	outsider := testClient("c3", "carol")

	room := ConversationRoom("conv-1")
	h.Join(a, room)
	h.Join(b, room)

	h.Broadcast(room, []byte("hello"), nil)

	require.Len(t, drain(a), 1)
	require.Len(t, drain(b), 1)
	assert.Empty(t, drain(outsider))
}

func TestHub_BroadcastExcludesSender(t *testing.T) {
	h := NewHub(nil)
	a := testClient("c1", "alice")
	b := testClient("c2", "bob")

	room := ConversationRoom("conv-1")
	h.Join(a, room)
	h.Join(b, room)

	h.Broadcast(room, []byte("typing"), a)

	assert.Empty(t, drain(a))
	require.Len(t, drain(b), 1)
}

func TestHub_LeaveStopsDelivery(t *testing.T) {
	h := NewHub(nil)
	a := testClient("c1", "alice")

	room := ConversationRoom("conv-1")
	h.Join(a, room)
	h.Leave(a, room)

	h.Broadcast(room, []byte("hello"), nil)
	assert.Empty(t, drain(a))

	// Leaving a room never joined is a no-op
	h.Leave(a, ConversationRoom("conv-2"))
}

func TestHub_RemoveClientLeavesAllRooms(t *testing.T) {
	h := NewHub(nil)
	a := testClient("c1", "alice")

	h.Join(a, UserInbox("alice"))
	h.Join(a, ConversationRoom("conv-1"))
	h.Join(a, ConversationRoom("conv-2"))

	h.RemoveClient(a)

	h.Broadcast(UserInbox("alice"), []byte("x"), nil)
	h.Broadcast(ConversationRoom("conv-1"), []byte("x"), nil)
	h.Broadcast(ConversationRoom("conv-2"), []byte("x"), nil)
	assert.Empty(t, drain(a))
}

func TestHub_SlowConsumerDropsInsteadOfBlocking(t *testing.T) {
	h := NewHub(nil)
	slow := testClient("c1", "alice")
	room := UserInbox("alice")
	h.Join(slow, room)

	// Overfill the buffer; the extra events must be dropped, not block
	for i := 0; i < sendBufferSize+10; i++ {
		h.Broadcast(room, []byte("evt"), nil)
	}

	assert.Len(t, drain(slow), sendBufferSize)
}

func TestHub_BroadcastAll(t *testing.T) {
	h := NewHub(nil)
	a := testClient("c1", "alice")
	b := testClient("c2", "bob")

	h.Join(a, UserInbox("alice"))
	h.Join(b, UserInbox("bob"))

	h.BroadcastAll([]byte("presence"))

	require.Len(t, drain(a), 1)
	require.Len(t, drain(b), 1)
}

func TestClient_EnqueueAfterClose(t *testing.T) {
	c := testClient("c1", "alice")
	c.close()
	c.close() // idempotent

	// Must not panic or block
	c.enqueue([]byte("late"))
}
