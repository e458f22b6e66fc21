package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedConversation creates a conversation with both participants registered.
func seedConversation(t *testing.T, store *SQLiteStore, id string) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.CreateConversation(ctx, testConversation(id, "provider-1", "customer-1")))
	require.NoError(t, store.AddParticipant(ctx, &Participant{
		ConversationID: id, UserID: "provider-1", Role: RoleProvider, JoinedAt: time.Now(),
	}))
	require.NoError(t, store.AddParticipant(ctx, &Participant{
		ConversationID: id, UserID: "customer-1", Role: RoleCustomer, JoinedAt: time.Now(),
	}))
}

func testMessage(id, conversationID, senderID string, senderType SenderType, sentAt time.Time) *Message {
	msg := &Message{
		ID:             id,
		ConversationID: conversationID,
		SenderType:     senderType,
		Type:           MessageTypeText,
		Body:           "hello from " + id,
		SentAt:         sentAt,
	}
	if senderID != "" {
		msg.SenderUserID = &senderID
	}
	return msg
}

func TestStore_CreateMessage(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	seedConversation(t, store, "conv-1")

	sentAt := time.Now()
	msg := testMessage("msg-1", "conv-1", "provider-1", SenderProvider, sentAt)
	require.NoError(t, store.CreateMessage(ctx, msg))

	retrieved, err := store.GetMessage(ctx, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, "hello from msg-1", retrieved.Body)
	assert.Equal(t, SenderProvider, retrieved.SenderType)
	assert.False(t, retrieved.IsRead)

	// The insert bumps the conversation's last_message_at
	conv, err := store.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.WithinDuration(t, sentAt, conv.LastMessageAt, time.Second)
}

func TestStore_CreateMessage_UnknownConversation(t *testing.T) {
	store := setupTestStore(t)

	msg := testMessage("msg-1", "nonexistent", "provider-1", SenderProvider, time.Now())
	err := store.CreateMessage(context.Background(), msg)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_GetMessages_AscendingOrder(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	seedConversation(t, store, "conv-1")

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		msg := testMessage(fmt.Sprintf("msg-%d", i), "conv-1", "provider-1", SenderProvider, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, store.CreateMessage(ctx, msg))
	}

	msgs, err := store.GetMessages(ctx, "conv-1", ListMessagesOptions{})
	require.NoError(t, err)
	require.Len(t, msgs, 5)

	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].SentAt.Before(msgs[i-1].SentAt),
			"messages must be in non-decreasing sent_at order")
	}
	assert.Equal(t, "msg-0", msgs[0].ID)
	assert.Equal(t, "msg-4", msgs[4].ID)
}

func TestStore_GetMessages_BeforeCursor(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	seedConversation(t, store, "conv-1")

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		msg := testMessage(fmt.Sprintf("msg-%d", i), "conv-1", "provider-1", SenderProvider, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, store.CreateMessage(ctx, msg))
	}

	// A fetch with before=msg-2 returns only strictly older messages
	msgs, err := store.GetMessages(ctx, "conv-1", ListMessagesOptions{Before: "msg-2"})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "msg-0", msgs[0].ID)
	assert.Equal(t, "msg-1", msgs[1].ID)

	// Unknown cursor fails
	_, err = store.GetMessages(ctx, "conv-1", ListMessagesOptions{Before: "nonexistent"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_GetMessages_LimitReturnsNewestPage(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	seedConversation(t, store, "conv-1")

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		msg := testMessage(fmt.Sprintf("msg-%d", i), "conv-1", "provider-1", SenderProvider, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, store.CreateMessage(ctx, msg))
	}

	// The page is the newest N, returned ascending
	msgs, err := store.GetMessages(ctx, "conv-1", ListMessagesOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "msg-3", msgs[0].ID)
	assert.Equal(t, "msg-4", msgs[1].ID)
}

func TestStore_DeleteMessage_SoftDelete(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	seedConversation(t, store, "conv-1")

	require.NoError(t, store.CreateMessage(ctx, testMessage("msg-1", "conv-1", "provider-1", SenderProvider, time.Now())))
	require.NoError(t, store.DeleteMessage(ctx, "msg-1", time.Now()))

	_, err := store.GetMessage(ctx, "msg-1")
	assert.ErrorIs(t, err, ErrNotFound)

	msgs, err := store.GetMessages(ctx, "conv-1", ListMessagesOptions{})
	require.NoError(t, err)
	assert.Empty(t, msgs)

	// Double delete reports not found
	err = store.DeleteMessage(ctx, "msg-1", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_UpdateMessage_SetsEditedAt(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	seedConversation(t, store, "conv-1")

	require.NoError(t, store.CreateMessage(ctx, testMessage("msg-1", "conv-1", "provider-1", SenderProvider, time.Now())))
	require.NoError(t, store.UpdateMessage(ctx, "msg-1", "corrected", time.Now()))

	msg, err := store.GetMessage(ctx, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, "corrected", msg.Body)
	assert.NotNil(t, msg.EditedAt)
}

func TestStore_MarkMessagesAsRead(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	seedConversation(t, store, "conv-1")

	base := time.Now()
	require.NoError(t, store.CreateMessage(ctx, testMessage("msg-p", "conv-1", "provider-1", SenderProvider, base)))
	require.NoError(t, store.CreateMessage(ctx, testMessage("msg-c", "conv-1", "customer-1", SenderCustomer, base.Add(time.Second))))

	// Customer reads: only the provider's messages flip
	require.NoError(t, store.MarkMessagesAsRead(ctx, "conv-1", RoleCustomer))

	fromProvider, err := store.GetUnreadCount(ctx, "conv-1", RoleProvider)
	require.NoError(t, err)
	assert.Equal(t, 0, fromProvider)

	fromCustomer, err := store.GetUnreadCount(ctx, "conv-1", RoleCustomer)
	require.NoError(t, err)
	assert.Equal(t, 1, fromCustomer)
}

func TestStore_MarkMessagesAsRead_UnknownConversation(t *testing.T) {
	store := setupTestStore(t)

	err := store.MarkMessagesAsRead(context.Background(), "nonexistent", RoleCustomer)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_CreateReceipt_Upsert(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	seedConversation(t, store, "conv-1")
	require.NoError(t, store.CreateMessage(ctx, testMessage("msg-1", "conv-1", "provider-1", SenderProvider, time.Now())))

	r, err := store.CreateReceipt(ctx, &Receipt{
		MessageID: "msg-1", RecipientUserID: "customer-1", Status: ReceiptDelivered, At: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, ReceiptDelivered, r.Status)

	r, err = store.CreateReceipt(ctx, &Receipt{
		MessageID: "msg-1", RecipientUserID: "customer-1", Status: ReceiptRead, At: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, ReceiptRead, r.Status)

	receipts, err := store.GetReceipts(ctx, "msg-1")
	require.NoError(t, err)
	assert.Len(t, receipts, 1)
}

func TestStore_CreateReceipt_StatusNeverRegresses(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	seedConversation(t, store, "conv-1")
	require.NoError(t, store.CreateMessage(ctx, testMessage("msg-1", "conv-1", "provider-1", SenderProvider, time.Now())))

	_, err := store.CreateReceipt(ctx, &Receipt{
		MessageID: "msg-1", RecipientUserID: "customer-1", Status: ReceiptRead, At: time.Now(),
	})
	require.NoError(t, err)

	// A later 'delivered' must not overwrite 'read'
	r, err := store.CreateReceipt(ctx, &Receipt{
		MessageID: "msg-1", RecipientUserID: "customer-1", Status: ReceiptDelivered, At: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, ReceiptRead, r.Status)
}

func TestStore_CreateReceipt_UnknownMessage(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.CreateReceipt(context.Background(), &Receipt{
		MessageID: "nonexistent", RecipientUserID: "customer-1", Status: ReceiptDelivered, At: time.Now(),
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_GetReceipts_SurviveMessageDeletion(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	seedConversation(t, store, "conv-1")
	require.NoError(t, store.CreateMessage(ctx, testMessage("msg-1", "conv-1", "provider-1", SenderProvider, time.Now())))

	_, err := store.CreateReceipt(ctx, &Receipt{
		MessageID: "msg-1", RecipientUserID: "customer-1", Status: ReceiptRead, At: time.Now(),
	})
	require.NoError(t, err)

	require.NoError(t, store.DeleteMessage(ctx, "msg-1", time.Now()))

	receipts, err := store.GetReceipts(ctx, "msg-1")
	require.NoError(t, err)
	assert.Len(t, receipts, 1)
}

func TestStore_Attachments(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	seedConversation(t, store, "conv-1")
	require.NoError(t, store.CreateMessage(ctx, testMessage("msg-1", "conv-1", "provider-1", SenderProvider, time.Now())))

	att := &Attachment{
		ID:           "att-1",
		MessageID:    "msg-1",
		URL:          "https://cdn.example.com/photo.jpg",
		MimeType:     "image/jpeg",
		Size:         123456,
		Width:        1024,
		Height:       768,
		ThumbnailURL: "https://cdn.example.com/photo_thumb.jpg",
		CreatedAt:    time.Now(),
	}
	require.NoError(t, store.CreateAttachment(ctx, att))

	attachments, err := store.GetAttachments(ctx, "msg-1")
	require.NoError(t, err)
	require.Len(t, attachments, 1)
	assert.Equal(t, "image/jpeg", attachments[0].MimeType)
	assert.Equal(t, int64(123456), attachments[0].Size)

	err = store.CreateAttachment(ctx, &Attachment{ID: "att-2", MessageID: "nonexistent", CreatedAt: time.Now()})
	assert.ErrorIs(t, err, ErrNotFound)
}
