// ABOUTME: Wire event envelopes for the socket protocol
// ABOUTME: Client and server event names plus JSON payload builders

package gateway

import (
	"encoding/json"
	"time"

	"github.com/tendera/chat-gateway/internal/store"
)

// Client-to-server event names
const (
	eventConversationJoin  = "conversation:join"
	eventConversationLeave = "conversation:leave"
	eventTypingStart       = "typing:start"
	eventTypingStop        = "typing:stop"
	eventMessageSend       = "message:send"
	eventReceiptUpdate     = "receipt:update"
)

// Server-to-client event names
const (
	eventMessageNew          = "message:new"
	eventConversationUpdated = "conversation:updated"
	eventTyping              = "typing"
	eventPresence            = "presence"
	eventReceiptUpdated      = "receipt:updated"
	eventError               = "error"
)

// clientEvent is the envelope for all client-to-server events. Fields beyond
// Type are populated depending on the event.
type clientEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	MessageType    string `json:"message_type,omitempty"`
	Body           string `json:"body,omitempty"`
	Status         string `json:"status,omitempty"`
}

// messagePayload is the wire form of a persisted message.
type messagePayload struct {
	ID             string  `json:"id"`
	ConversationID string  `json:"conversation_id"`
	SenderUserID   *string `json:"sender_user_id"`
	SenderType     string  `json:"sender_type"`
	Type           string  `json:"type"`
	Body           string  `json:"body"`
	SentAt         string  `json:"sent_at"`
	EditedAt       *string `json:"edited_at,omitempty"`
	IsRead         bool    `json:"is_read"`
}

func newMessagePayload(m *store.Message) messagePayload {
	p := messagePayload{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderUserID:   m.SenderUserID,
		SenderType:     string(m.SenderType),
		Type:           m.Type,
		Body:           m.Body,
		SentAt:         m.SentAt.UTC().Format(time.RFC3339Nano),
		IsRead:         m.IsRead,
	}
	if m.EditedAt != nil {
		edited := m.EditedAt.UTC().Format(time.RFC3339Nano)
		p.EditedAt = &edited
	}
	return p
}

// Every server envelope carries the conversation ID (or user ID for
// presence) the client needs to route it without re-fetching context.

func messageNewEvent(m *store.Message) []byte {
	b, _ := json.Marshal(struct {
		Type           string         `json:"type"`
		ConversationID string         `json:"conversation_id"`
		Message        messagePayload `json:"message"`
	}{eventMessageNew, m.ConversationID, newMessagePayload(m)})
	return b
}

func conversationUpdatedEvent(conversationID string, lastMessageAt time.Time) []byte {
	b, _ := json.Marshal(struct {
		Type           string `json:"type"`
		ConversationID string `json:"conversation_id"`
		LastMessageAt  string `json:"last_message_at"`
	}{eventConversationUpdated, conversationID, lastMessageAt.UTC().Format(time.RFC3339Nano)})
	return b
}

func typingEvent(conversationID, userID string, typing bool) []byte {
	b, _ := json.Marshal(struct {
		Type           string `json:"type"`
		ConversationID string `json:"conversation_id"`
		UserID         string `json:"user_id"`
		Typing         bool   `json:"typing"`
	}{eventTyping, conversationID, userID, typing})
	return b
}

func presenceEvent(userID string, online bool) []byte {
	b, _ := json.Marshal(struct {
		Type   string `json:"type"`
		UserID string `json:"user_id"`
		Online bool   `json:"online"`
	}{eventPresence, userID, online})
	return b
}

func receiptUpdatedEvent(conversationID string, r *store.Receipt) []byte {
	b, _ := json.Marshal(struct {
		Type            string `json:"type"`
		ConversationID  string `json:"conversation_id"`
		MessageID       string `json:"message_id"`
		RecipientUserID string `json:"recipient_user_id"`
		Status          string `json:"status"`
		At              string `json:"at"`
	}{eventReceiptUpdated, conversationID, r.MessageID, r.RecipientUserID, string(r.Status), r.At.UTC().Format(time.RFC3339Nano)})
	return b
}

func errorEvent(conversationID, message string) []byte {
	b, _ := json.Marshal(struct {
		Type           string `json:"type"`
		ConversationID string `json:"conversation_id,omitempty"`
		Message        string `json:"message"`
	}{eventError, conversationID, message})
	return b
}
