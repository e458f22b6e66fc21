// ABOUTME: Room model for the socket gateway's broadcast topology
// ABOUTME: Two room kinds with one mapping to transport-level names

package gateway

// RoomKind enumerates the gateway's room topology. There are exactly two
// kinds: a per-user inbox that follows the user across devices, and a
// per-conversation room for participants with the thread open.
type RoomKind int

const (
	// RoomUserInbox delivers to every active device of one user.
	RoomUserInbox RoomKind = iota
	// RoomConversation delivers to connections that joined one conversation.
	RoomConversation
)

// Room identifies a broadcast target. Rooms are values and compare by
// identity, so they can key the hub's membership maps directly.
type Room struct {
	Kind RoomKind
	ID   string
}

// UserInbox returns the inbox room for a user.
func UserInbox(userID string) Room {
	return Room{Kind: RoomUserInbox, ID: userID}
}

// ConversationRoom returns the room for a conversation.
func ConversationRoom(conversationID string) Room {
	return Room{Kind: RoomConversation, ID: conversationID}
}

// Name returns the transport-level room name. The naming convention lives
// here and nowhere else.
func (r Room) Name() string {
	switch r.Kind {
	case RoomUserInbox:
		return "user:" + r.ID
	default:
		return "conversation:" + r.ID
	}
}
