// ABOUTME: Store interface and data types for chat-gateway persistence
// ABOUTME: Defines Conversation, Message, Participant, Receipt, Attachment and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateConversation is returned when an active conversation already
// exists for the same customer/provider pair
var ErrDuplicateConversation = errors.New("conversation already exists")

// ConversationStatus values for the conversation lifecycle
type ConversationStatus string

const (
	ConversationStatusActive   ConversationStatus = "active"
	ConversationStatusArchived ConversationStatus = "archived"
)

// Role identifies which side of a conversation a user is on
type Role string

const (
	RoleCustomer Role = "customer"
	RoleProvider Role = "provider"
)

// Other returns the opposite conversation role.
func (r Role) Other() Role {
	if r == RoleCustomer {
		return RoleProvider
	}
	return RoleCustomer
}

// SenderType identifies who authored a message
type SenderType string

const (
	SenderCustomer SenderType = "customer"
	SenderProvider SenderType = "provider"
	SenderSystem   SenderType = "system"
)

// MessageType constants for message types
const (
	MessageTypeText          = "text"           // Regular text message
	MessageTypeSystem        = "system"         // System-generated notice
	MessageTypeCaseTemplate  = "case_template"  // Case form offered to the customer
	MessageTypeCaseFilled    = "case_filled"    // Completed case form
	MessageTypeSurveyRequest = "survey_request" // Post-case survey prompt
)

// ReceiptStatus values for delivery acknowledgements.
// Status is monotonic: read never regresses to delivered.
type ReceiptStatus string

const (
	ReceiptDelivered ReceiptStatus = "delivered"
	ReceiptRead      ReceiptStatus = "read"
)

// Conversation represents a 1:1 thread between a customer and a provider.
// CustomerID is nil until the customer has authenticated; the contact
// snapshot fields are denormalized from the initial contact form.
type Conversation struct {
	ID            string             `json:"id"`
	ProviderID    string             `json:"provider_id"`
	CustomerID    *string            `json:"customer_id"`
	CustomerName  string             `json:"customer_name"`
	CustomerEmail string             `json:"customer_email"`
	CustomerPhone string             `json:"customer_phone"`
	Status        ConversationStatus `json:"status"`
	CreatedAt     time.Time          `json:"created_at"`
	LastMessageAt time.Time          `json:"last_message_at"`
}

// Message is a single unit of communication within a conversation.
// DeletedAt marks a soft delete: the row stays in the database but is
// excluded from reads. EditedAt is set on edit; prior content is not kept.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderUserID   *string    `json:"sender_user_id"` // nil for system messages
	SenderType     SenderType `json:"sender_type"`
	Type           string     `json:"type"`
	Body           string     `json:"body"`
	SentAt         time.Time  `json:"sent_at"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
	DeletedAt      *time.Time `json:"-"`
	IsRead         bool       `json:"is_read"`
}

// Participant binds a user to a conversation with a role and read cursor.
type Participant struct {
	ConversationID    string    `json:"conversation_id"`
	UserID            string    `json:"user_id"`
	Role              Role      `json:"role"`
	JoinedAt          time.Time `json:"joined_at"`
	LastReadMessageID *string   `json:"last_read_message_id"`
	Settings          string    `json:"settings,omitempty"` // JSON blob of per-user notification preferences
}

// Receipt is a delivery/read acknowledgement for a (message, recipient) pair.
type Receipt struct {
	MessageID       string        `json:"message_id"`
	RecipientUserID string        `json:"recipient_user_id"`
	Status          ReceiptStatus `json:"status"`
	At              time.Time     `json:"at"`
}

// Attachment is a binary resource bound to a message.
type Attachment struct {
	ID           string    `json:"id"`
	MessageID    string    `json:"message_id"`
	URL          string    `json:"url"`
	MimeType     string    `json:"mime_type"`
	Size         int64     `json:"size"`
	Width        int       `json:"width,omitempty"`
	Height       int       `json:"height,omitempty"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListConversationsOptions controls conversation pagination.
// Cursor is the last_message_at of the boundary conversation from the
// previous page (keyset pagination, stable under concurrent inserts).
type ListConversationsOptions struct {
	Cursor *time.Time
	Limit  int
	Status ConversationStatus
}

// ListMessagesOptions controls message pagination.
// Before is a message ID; only messages strictly older than it are returned.
type ListMessagesOptions struct {
	Before string
	Limit  int
}

// Store defines the interface for conversation and message persistence.
// It is pure data access: authorization lives in the chat service.
type Store interface {
	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation) error
	FindConversationBetween(ctx context.Context, customerID, providerID string) (*Conversation, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	GetConversations(ctx context.Context, userID string, role Role, opts ListConversationsOptions) ([]*Conversation, error)
	ArchiveConversation(ctx context.Context, id string) error

	// Messages
	CreateMessage(ctx context.Context, msg *Message) error
	GetMessage(ctx context.Context, id string) (*Message, error)
	GetMessages(ctx context.Context, conversationID string, opts ListMessagesOptions) ([]*Message, error)
	UpdateMessage(ctx context.Context, id, body string, editedAt time.Time) error
	DeleteMessage(ctx context.Context, id string, deletedAt time.Time) error
	MarkMessagesAsRead(ctx context.Context, conversationID string, readerRole Role) error
	GetUnreadCount(ctx context.Context, conversationID string, senderRole Role) (int, error)

	// Participants
	AddParticipant(ctx context.Context, p *Participant) error
	GetParticipants(ctx context.Context, conversationID string) ([]*Participant, error)
	UpdateLastRead(ctx context.Context, conversationID, userID, messageID string) error
	IsUserInConversation(ctx context.Context, conversationID, userID string) (bool, error)

	// Receipts
	CreateReceipt(ctx context.Context, r *Receipt) (*Receipt, error)
	GetReceipts(ctx context.Context, messageID string) ([]*Receipt, error)

	// Attachments
	CreateAttachment(ctx context.Context, a *Attachment) error
	GetAttachments(ctx context.Context, messageID string) ([]*Attachment, error)

	// Close releases any resources held by the store
	Close() error
}
