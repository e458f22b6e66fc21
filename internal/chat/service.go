// ABOUTME: Chat service enforcing authorization and conversation invariants
// ABOUTME: The only permitted mutation path on top of the conversation store

package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tendera/chat-gateway/internal/store"
)

// ConversationStore defines what the service needs from storage
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *store.Conversation) error
	FindConversationBetween(ctx context.Context, customerID, providerID string) (*store.Conversation, error)
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	GetConversations(ctx context.Context, userID string, role store.Role, opts store.ListConversationsOptions) ([]*store.Conversation, error)
	ArchiveConversation(ctx context.Context, id string) error

	CreateMessage(ctx context.Context, msg *store.Message) error
	GetMessage(ctx context.Context, id string) (*store.Message, error)
	GetMessages(ctx context.Context, conversationID string, opts store.ListMessagesOptions) ([]*store.Message, error)
	UpdateMessage(ctx context.Context, id, body string, editedAt time.Time) error
	DeleteMessage(ctx context.Context, id string, deletedAt time.Time) error
	MarkMessagesAsRead(ctx context.Context, conversationID string, readerRole store.Role) error
	GetUnreadCount(ctx context.Context, conversationID string, senderRole store.Role) (int, error)

	AddParticipant(ctx context.Context, p *store.Participant) error
	GetParticipants(ctx context.Context, conversationID string) ([]*store.Participant, error)
	UpdateLastRead(ctx context.Context, conversationID, userID, messageID string) error
	IsUserInConversation(ctx context.Context, conversationID, userID string) (bool, error)

	CreateReceipt(ctx context.Context, r *store.Receipt) (*store.Receipt, error)
	GetReceipts(ctx context.Context, messageID string) ([]*store.Receipt, error)
}

// Service is the central chat layer. Every socket or external entry point
// funnels through here; the service performs no socket I/O itself, callers
// are responsible for fan-out.
type Service struct {
	store  ConversationStore
	logger *slog.Logger
}

// NewService creates a new chat Service. Pass nil logger for default.
func NewService(store ConversationStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger.With("component", "chat"),
	}
}

// ContactInfo is the denormalized contact snapshot captured on first contact.
type ContactInfo struct {
	Name  string
	Email string
	Phone string
}

// CreateOrGetConversation returns the existing active conversation between
// the customer and provider, or creates one and registers both participants.
// Idempotent: repeated and concurrent calls for the same pair converge on a
// single conversation row, with the loser of a creation race re-reading the
// winner's row.
func (s *Service) CreateOrGetConversation(ctx context.Context, providerID string, customerID *string, contact ContactInfo) (*store.Conversation, error) {
	if providerID == "" {
		return nil, fmt.Errorf("%w: provider id is required", ErrValidation)
	}

	if customerID != nil {
		conv, err := s.store.FindConversationBetween(ctx, *customerID, providerID)
		if err == nil {
			// Participant rows may be missing if an earlier create was
			// interrupted between the insert and registration; AddParticipant
			// is idempotent, so the get path re-registers to self-heal
			if err := s.registerParticipants(ctx, conv); err != nil {
				return nil, err
			}
			return conv, nil
		}
		if err != store.ErrNotFound {
			return nil, err
		}
	}

	now := time.Now()
	conv := &store.Conversation{
		ID:            uuid.New().String(),
		ProviderID:    providerID,
		CustomerID:    customerID,
		CustomerName:  contact.Name,
		CustomerEmail: contact.Email,
		CustomerPhone: contact.Phone,
		Status:        store.ConversationStatusActive,
		CreatedAt:     now,
		LastMessageAt: now,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		// Another request may have created the conversation between our
		// lookup and insert; the unique index arbitrates the race
		if err == store.ErrDuplicateConversation && customerID != nil {
			existing, lookupErr := s.store.FindConversationBetween(ctx, *customerID, providerID)
			if lookupErr == nil {
				// The winner may not have registered participants yet
				if err := s.registerParticipants(ctx, existing); err != nil {
					return nil, err
				}
				s.logger.Debug("found existing conversation after race", "conversation_id", existing.ID)
				return existing, nil
			}
			s.logger.Error("retry lookup failed after duplicate error", "lookup_error", lookupErr)
		}
		return nil, err
	}

	if err := s.registerParticipants(ctx, conv); err != nil {
		return nil, err
	}

	s.logger.Debug("conversation created", "conversation_id", conv.ID, "provider_id", providerID)
	return conv, nil
}

// registerParticipants adds the provider, and the customer when known, as
// participants. The customer participant is deferred until the customer
// authenticates for anonymous first-contact conversations.
func (s *Service) registerParticipants(ctx context.Context, conv *store.Conversation) error {
	now := time.Now()
	if err := s.store.AddParticipant(ctx, &store.Participant{
		ConversationID: conv.ID,
		UserID:         conv.ProviderID,
		Role:           store.RoleProvider,
		JoinedAt:       now,
	}); err != nil {
		return fmt.Errorf("registering provider participant: %w", err)
	}
	if conv.CustomerID != nil {
		if err := s.store.AddParticipant(ctx, &store.Participant{
			ConversationID: conv.ID,
			UserID:         *conv.CustomerID,
			Role:           store.RoleCustomer,
			JoinedAt:       now,
		}); err != nil {
			return fmt.Errorf("registering customer participant: %w", err)
		}
	}
	return nil
}

// SendMessageInput carries the client-supplied fields of a message send.
type SendMessageInput struct {
	ConversationID string
	Type           string
	Body           string
}

// SendMessage validates and persists a message. The sender must be a
// participant and the body must be non-empty after trimming. The persisted
// row is returned; fan-out is the caller's responsibility.
func (s *Service) SendMessage(ctx context.Context, in SendMessageInput, senderUserID string, senderRole store.Role, senderName string) (*store.Message, error) {
	if strings.TrimSpace(in.Body) == "" {
		return nil, fmt.Errorf("%w: message body is empty", ErrValidation)
	}

	in.ConversationID = strings.TrimSpace(in.ConversationID)
	if in.ConversationID == "" {
		return nil, fmt.Errorf("%w: conversation id is required", ErrValidation)
	}

	ok, err := s.store.IsUserInConversation(ctx, in.ConversationID, senderUserID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnauthorized
	}

	msgType := in.Type
	if msgType == "" {
		msgType = store.MessageTypeText
	}

	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: in.ConversationID,
		SenderUserID:   &senderUserID,
		SenderType:     store.SenderType(senderRole),
		Type:           msgType,
		Body:           in.Body,
		SentAt:         time.Now(),
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}

	s.logger.Debug("message sent",
		"conversation_id", in.ConversationID,
		"message_id", msg.ID,
		"sender", senderName)
	return msg, nil
}

// SendSystemMessage injects a system-typed message into a conversation on
// behalf of an external subsystem (case flow, surveys). It follows the same
// persistence path as user messages but has no sender and skips the
// participant check.
func (s *Service) SendSystemMessage(ctx context.Context, conversationID, msgType, body string) (*store.Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("%w: message body is empty", ErrValidation)
	}
	if msgType == "" {
		msgType = store.MessageTypeSystem
	}

	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderType:     store.SenderSystem,
		Type:           msgType,
		Body:           body,
		SentAt:         time.Now(),
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}

	s.logger.Debug("system message sent", "conversation_id", conversationID, "message_id", msg.ID, "type", msgType)
	return msg, nil
}

// EditMessage replaces a message body. Only the original sender may edit;
// system messages are not editable. Sets edited_at; prior content is not
// retained.
func (s *Service) EditMessage(ctx context.Context, messageID, senderUserID, newBody string) (*store.Message, error) {
	if strings.TrimSpace(newBody) == "" {
		return nil, fmt.Errorf("%w: message body is empty", ErrValidation)
	}

	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderUserID == nil || *msg.SenderUserID != senderUserID {
		return nil, fmt.Errorf("%w: only the sender may edit a message", ErrForbidden)
	}

	editedAt := time.Now()
	if err := s.store.UpdateMessage(ctx, messageID, newBody, editedAt); err != nil {
		return nil, err
	}

	msg.Body = newBody
	msg.EditedAt = &editedAt
	return msg, nil
}

// DeleteMessage soft-deletes a message. The sender may always delete their
// own message; any other participant of the conversation may delete by
// policy. Non-participants are rejected.
func (s *Service) DeleteMessage(ctx context.Context, messageID, requesterUserID string) error {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}

	if msg.SenderUserID == nil || *msg.SenderUserID != requesterUserID {
		ok, err := s.store.IsUserInConversation(ctx, msg.ConversationID, requesterUserID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrUnauthorized
		}
	}

	return s.store.DeleteMessage(ctx, messageID, time.Now())
}

// MarkAsRead flips unread messages from the other role and advances the
// reader's last_read_message_id to the newest visible message.
func (s *Service) MarkAsRead(ctx context.Context, conversationID, userID string, role store.Role) error {
	ok, err := s.store.IsUserInConversation(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthorized
	}

	if err := s.store.MarkMessagesAsRead(ctx, conversationID, role); err != nil {
		return err
	}

	newest, err := s.store.GetMessages(ctx, conversationID, store.ListMessagesOptions{Limit: 1})
	if err != nil {
		return err
	}
	if len(newest) > 0 {
		if err := s.store.UpdateLastRead(ctx, conversationID, userID, newest[len(newest)-1].ID); err != nil {
			return err
		}
	}
	return nil
}

// ReceiptUpdate is the result of a receipt upsert, carrying the conversation
// ID so callers can route the event without re-fetching context.
type ReceiptUpdate struct {
	Receipt        *store.Receipt
	ConversationID string
}

// UpdateReceipt upserts a delivery/read acknowledgement. The recipient must
// be a participant and may not acknowledge their own message. Status is
// monotonic: a later 'delivered' never overwrites 'read'.
func (s *Service) UpdateReceipt(ctx context.Context, messageID, recipientUserID string, status store.ReceiptStatus) (*ReceiptUpdate, error) {
	if status != store.ReceiptDelivered && status != store.ReceiptRead {
		return nil, fmt.Errorf("%w: unknown receipt status %q", ErrValidation, status)
	}

	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	ok, err := s.store.IsUserInConversation(ctx, msg.ConversationID, recipientUserID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnauthorized
	}
	if msg.SenderUserID != nil && *msg.SenderUserID == recipientUserID {
		return nil, fmt.Errorf("%w: cannot acknowledge own message", ErrForbidden)
	}

	receipt, err := s.store.CreateReceipt(ctx, &store.Receipt{
		MessageID:       messageID,
		RecipientUserID: recipientUserID,
		Status:          status,
		At:              time.Now(),
	})
	if err != nil {
		return nil, err
	}
	return &ReceiptUpdate{Receipt: receipt, ConversationID: msg.ConversationID}, nil
}

// GetConversations lists the caller's conversations; the query is inherently
// scoped to the requesting user.
func (s *Service) GetConversations(ctx context.Context, userID string, role store.Role, opts store.ListConversationsOptions) ([]*store.Conversation, error) {
	return s.store.GetConversations(ctx, userID, role, opts)
}

// GetMessages returns a message page for participants only.
func (s *Service) GetMessages(ctx context.Context, conversationID, userID string, opts store.ListMessagesOptions) ([]*store.Message, error) {
	ok, err := s.store.IsUserInConversation(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnauthorized
	}
	return s.store.GetMessages(ctx, conversationID, opts)
}

// GetReceipts lists receipts for a message, restricted to participants of
// the message's conversation.
func (s *Service) GetReceipts(ctx context.Context, messageID, userID string) ([]*store.Receipt, error) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	ok, err := s.store.IsUserInConversation(ctx, msg.ConversationID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnauthorized
	}
	return s.store.GetReceipts(ctx, messageID)
}

// GetUnreadCount returns the unread count for messages sent by senderRole,
// restricted to participants.
func (s *Service) GetUnreadCount(ctx context.Context, conversationID, userID string, senderRole store.Role) (int, error) {
	ok, err := s.store.IsUserInConversation(ctx, conversationID, userID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrUnauthorized
	}
	return s.store.GetUnreadCount(ctx, conversationID, senderRole)
}

// ArchiveConversation transitions a conversation to archived; participants
// only. Conversations are never hard-deleted.
func (s *Service) ArchiveConversation(ctx context.Context, conversationID, userID string) error {
	ok, err := s.store.IsUserInConversation(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthorized
	}
	return s.store.ArchiveConversation(ctx, conversationID)
}

// IsParticipant reports whether the user belongs to the conversation. Used
// by the gateway for room join and typing authorization.
func (s *Service) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	return s.store.IsUserInConversation(ctx, conversationID, userID)
}

// Participants returns the membership records of a conversation. The gateway
// uses this to fan persisted messages out to both participants' inbox rooms.
func (s *Service) Participants(ctx context.Context, conversationID string) ([]*store.Participant, error) {
	return s.store.GetParticipants(ctx, conversationID)
}
