// ABOUTME: Ephemeral per-conversation typing state for the socket gateway
// ABOUTME: Never persisted, never replayed; rebuilt empty on process restart

package gateway

import "sync"

// TypingTracker owns the in-memory typing sets. State is purely ephemeral:
// it is never persisted and a late subscriber to a conversation room never
// sees a stale signal, because nothing is replayed on join.
type TypingTracker struct {
	mu             sync.Mutex
	byConversation map[string]map[string]struct{} // conversationID -> set of userIDs
}

// NewTypingTracker creates an empty tracker.
func NewTypingTracker() *TypingTracker {
	return &TypingTracker{
		byConversation: make(map[string]map[string]struct{}),
	}
}

// Start marks the user as typing in the conversation. Returns true when this
// changed the state, so callers broadcast only on transitions.
func (t *TypingTracker) Start(conversationID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.byConversation[conversationID]
	if !ok {
		set = make(map[string]struct{})
		t.byConversation[conversationID] = set
	}
	if _, ok := set[userID]; ok {
		return false
	}
	set[userID] = struct{}{}
	return true
}

// Stop clears the user's typing state in the conversation. Returns true when
// the user was actually typing.
func (t *TypingTracker) Stop(conversationID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.byConversation[conversationID]
	if !ok {
		return false
	}
	if _, ok := set[userID]; !ok {
		return false
	}
	delete(set, userID)
	if len(set) == 0 {
		delete(t.byConversation, conversationID)
	}
	return true
}

// IsTyping reports whether the user is currently typing in the conversation.
func (t *TypingTracker) IsTyping(conversationID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.byConversation[conversationID][userID]
	return ok
}

// RemoveUser clears the user from every typing set, returning the affected
// conversation IDs so the gateway can notify those rooms that typing has
// stopped. Called on disconnect.
func (t *TypingTracker) RemoveUser(userID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var affected []string
	for convID, set := range t.byConversation {
		if _, ok := set[userID]; ok {
			delete(set, userID)
			affected = append(affected, convID)
			if len(set) == 0 {
				delete(t.byConversation, convID)
			}
		}
	}
	return affected
}
