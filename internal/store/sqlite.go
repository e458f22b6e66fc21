// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides conversation/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeFormat is RFC 3339 with fixed-width nanoseconds. All times are stored
// UTC in this layout so that string comparison matches time order, which the
// keyset pagination queries rely on.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	// Pragmas go in the DSN so the driver applies them to every pooled
	// connection, not just the one a bare Exec would run on. WAL for
	// concurrent reads, foreign keys on, and a busy timeout so writers
	// wait instead of failing when the lock is held.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id              TEXT PRIMARY KEY,
			provider_id     TEXT NOT NULL,
			customer_id     TEXT,
			customer_name   TEXT NOT NULL DEFAULT '',
			customer_email  TEXT NOT NULL DEFAULT '',
			customer_phone  TEXT NOT NULL DEFAULT '',
			status          TEXT NOT NULL DEFAULT 'active',
			created_at      TEXT NOT NULL,
			last_message_at TEXT NOT NULL,

			CHECK (status IN ('active', 'archived'))
		);

		-- One active conversation per pair; the race-resolution point for
		-- concurrent create-or-get calls
		CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_pair_active
			ON conversations(provider_id, customer_id) WHERE status = 'active';

		CREATE INDEX IF NOT EXISTS idx_conversations_last_message
			ON conversations(last_message_at DESC);

		CREATE TABLE IF NOT EXISTS messages (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			sender_user_id  TEXT,
			sender_type     TEXT NOT NULL,
			type            TEXT NOT NULL DEFAULT 'text',
			body            TEXT NOT NULL,
			sent_at         TEXT NOT NULL,
			edited_at       TEXT,
			deleted_at      TEXT,
			is_read         INTEGER NOT NULL DEFAULT 0,

			CHECK (sender_type IN ('customer', 'provider', 'system'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_sent
			ON messages(conversation_id, sent_at);

		CREATE TABLE IF NOT EXISTS participants (
			conversation_id      TEXT NOT NULL REFERENCES conversations(id),
			user_id              TEXT NOT NULL,
			role                 TEXT NOT NULL,
			joined_at            TEXT NOT NULL,
			last_read_message_id TEXT,
			settings             TEXT NOT NULL DEFAULT '{}',

			PRIMARY KEY (conversation_id, user_id),
			CHECK (role IN ('customer', 'provider'))
		);

		CREATE TABLE IF NOT EXISTS receipts (
			message_id        TEXT NOT NULL REFERENCES messages(id),
			recipient_user_id TEXT NOT NULL,
			status            TEXT NOT NULL,
			at                TEXT NOT NULL,

			PRIMARY KEY (message_id, recipient_user_id),
			CHECK (status IN ('delivered', 'read'))
		);

		CREATE TABLE IF NOT EXISTS attachments (
			id            TEXT PRIMARY KEY,
			message_id    TEXT NOT NULL REFERENCES messages(id),
			url           TEXT NOT NULL,
			mime_type     TEXT NOT NULL,
			size          INTEGER NOT NULL DEFAULT 0,
			width         INTEGER NOT NULL DEFAULT 0,
			height        INTEGER NOT NULL DEFAULT 0,
			thumbnail_url TEXT NOT NULL DEFAULT '',
			created_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_attachments_message
			ON attachments(message_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint
// violation. The match is deliberately narrow: CHECK and foreign key
// failures must surface as real errors, not as the duplicate signal that
// sends create-or-get down the re-read path.
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeFormat, s)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// CreateConversation inserts a new conversation.
// Returns ErrDuplicateConversation if an active conversation already exists
// for the same provider/customer pair.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	query := `
		INSERT INTO conversations (id, provider_id, customer_id, customer_name, customer_email, customer_phone, status, created_at, last_message_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		conv.ID,
		conv.ProviderID,
		nullString(conv.CustomerID),
		conv.CustomerName,
		conv.CustomerEmail,
		conv.CustomerPhone,
		string(conv.Status),
		formatTime(conv.CreatedAt),
		formatTime(conv.LastMessageAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateConversation
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}

	s.logger.Debug("created conversation", "id", conv.ID, "provider_id", conv.ProviderID)
	return nil
}

const conversationColumns = `id, provider_id, customer_id, customer_name, customer_email, customer_phone, status, created_at, last_message_at`

func scanConversation(row interface{ Scan(...any) error }) (*Conversation, error) {
	var conv Conversation
	var customerID sql.NullString
	var status, createdAtStr, lastMessageAtStr string

	err := row.Scan(
		&conv.ID,
		&conv.ProviderID,
		&customerID,
		&conv.CustomerName,
		&conv.CustomerEmail,
		&conv.CustomerPhone,
		&status,
		&createdAtStr,
		&lastMessageAtStr,
	)
	if err != nil {
		return nil, err
	}

	conv.CustomerID = stringPtr(customerID)
	conv.Status = ConversationStatus(status)
	if conv.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if conv.LastMessageAt, err = parseTime(lastMessageAtStr); err != nil {
		return nil, fmt.Errorf("parsing last_message_at: %w", err)
	}
	return &conv, nil
}

// GetConversation retrieves a conversation by ID.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = ?`

	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	return conv, nil
}

// FindConversationBetween returns the active conversation for the given
// customer/provider pair, or ErrNotFound if none exists. This is the
// idempotency lookup used before creating a new conversation.
func (s *SQLiteStore) FindConversationBetween(ctx context.Context, customerID, providerID string) (*Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE customer_id = ? AND provider_id = ? AND status = 'active'
	`

	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, customerID, providerID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation by pair: %w", err)
	}
	return conv, nil
}

// GetConversations lists a user's conversations ordered by last_message_at
// descending, using keyset pagination: opts.Cursor is the last_message_at of
// the previous page's boundary conversation.
func (s *SQLiteStore) GetConversations(ctx context.Context, userID string, role Role, opts ListConversationsOptions) ([]*Conversation, error) {
	status := opts.Status
	if status == "" {
		status = ConversationStatusActive
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT c.id, c.provider_id, c.customer_id, c.customer_name, c.customer_email, c.customer_phone, c.status, c.created_at, c.last_message_at
		FROM conversations c
		JOIN participants p ON p.conversation_id = c.id
		WHERE p.user_id = ? AND p.role = ? AND c.status = ?
	`
	args := []any{userID, string(role), string(status)}

	if opts.Cursor != nil {
		query += ` AND c.last_message_at < ?`
		args = append(args, formatTime(*opts.Cursor))
	}
	query += ` ORDER BY c.last_message_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// ArchiveConversation transitions a conversation to archived status.
// Conversations are never hard-deleted. Archiving an already archived
// conversation is a no-op; returns ErrNotFound for an unknown ID.
func (s *SQLiteStore) ArchiveConversation(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET status = 'archived' WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("archiving conversation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking archive result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateMessage inserts a message and bumps the conversation's
// last_message_at in the same transaction.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE conversations SET last_message_at = ? WHERE id = ?`,
		formatTime(msg.SentAt), msg.ConversationID)
	if err != nil {
		return fmt.Errorf("bumping last_message_at: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking conversation: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	isRead := 0
	if msg.IsRead {
		isRead = 1
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_user_id, sender_type, type, body, sent_at, edited_at, deleted_at, is_read)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		msg.ID,
		msg.ConversationID,
		nullString(msg.SenderUserID),
		string(msg.SenderType),
		msg.Type,
		msg.Body,
		formatTime(msg.SentAt),
		formatTimePtr(msg.EditedAt),
		formatTimePtr(msg.DeletedAt),
		isRead,
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing message: %w", err)
	}

	s.logger.Debug("created message", "id", msg.ID, "conversation_id", msg.ConversationID)
	return nil
}

const messageColumns = `id, conversation_id, sender_user_id, sender_type, type, body, sent_at, edited_at, deleted_at, is_read`

func scanMessage(row interface{ Scan(...any) error }) (*Message, error) {
	var msg Message
	var senderUserID, editedAtStr, deletedAtStr sql.NullString
	var senderType, sentAtStr string
	var isRead int

	err := row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&senderUserID,
		&senderType,
		&msg.Type,
		&msg.Body,
		&sentAtStr,
		&editedAtStr,
		&deletedAtStr,
		&isRead,
	)
	if err != nil {
		return nil, err
	}

	msg.SenderUserID = stringPtr(senderUserID)
	msg.SenderType = SenderType(senderType)
	msg.IsRead = isRead != 0
	if msg.SentAt, err = parseTime(sentAtStr); err != nil {
		return nil, fmt.Errorf("parsing sent_at: %w", err)
	}
	if msg.EditedAt, err = parseTimePtr(editedAtStr); err != nil {
		return nil, fmt.Errorf("parsing edited_at: %w", err)
	}
	if msg.DeletedAt, err = parseTimePtr(deletedAtStr); err != nil {
		return nil, fmt.Errorf("parsing deleted_at: %w", err)
	}
	return &msg, nil
}

// GetMessage retrieves a message by ID, excluding soft-deleted messages.
// Returns ErrNotFound if the message doesn't exist or has been deleted.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = ? AND deleted_at IS NULL`

	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}
	return msg, nil
}

// GetMessages returns a page of messages in ascending sent_at order.
// The page is queried newest-first and reversed before returning. Soft-deleted
// messages are excluded. When opts.Before is set, only messages strictly
// older than that message are returned.
func (s *SQLiteStore) GetMessages(ctx context.Context, conversationID string, opts ListMessagesOptions) ([]*Message, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = ? AND deleted_at IS NULL
	`
	args := []any{conversationID}

	if opts.Before != "" {
		// Boundary lookup ignores the deleted filter so pagination keeps
		// working even if the cursor message was deleted meanwhile
		var boundarySentAt string
		err := s.db.QueryRowContext(ctx,
			`SELECT sent_at FROM messages WHERE id = ? AND conversation_id = ?`,
			opts.Before, conversationID).Scan(&boundarySentAt)
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("querying boundary message: %w", err)
		}
		query += ` AND (sent_at < ? OR (sent_at = ? AND id < ?))`
		args = append(args, boundarySentAt, boundarySentAt, opts.Before)
	}

	query += ` ORDER BY sent_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to ascending order for the caller
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// UpdateMessage replaces a message body and sets edited_at.
// Prior content is not retained. Returns ErrNotFound if the message doesn't
// exist or has been deleted.
func (s *SQLiteStore) UpdateMessage(ctx context.Context, id, body string, editedAt time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE messages SET body = ?, edited_at = ? WHERE id = ? AND deleted_at IS NULL`,
		body, formatTime(editedAt), id)
	if err != nil {
		return fmt.Errorf("updating message: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMessage soft-deletes a message by setting deleted_at. The body is
// never physically removed. Returns ErrNotFound if the message doesn't exist
// or is already deleted.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id string, deletedAt time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE messages SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		formatTime(deletedAt), id)
	if err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkMessagesAsRead flips is_read for all unread messages sent by the role
// opposite to readerRole. Returns ErrNotFound for an unknown conversation.
func (s *SQLiteStore) MarkMessagesAsRead(ctx context.Context, conversationID string, readerRole Role) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM conversations WHERE id = ?`, conversationID).Scan(&exists)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking conversation: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE messages SET is_read = 1
		WHERE conversation_id = ? AND sender_type = ? AND is_read = 0 AND deleted_at IS NULL
	`, conversationID, string(readerRole.Other()))
	if err != nil {
		return fmt.Errorf("marking messages as read: %w", err)
	}
	return nil
}

// GetUnreadCount returns the number of undeleted messages sent by senderRole
// that the other participant has not yet read.
func (s *SQLiteStore) GetUnreadCount(ctx context.Context, conversationID string, senderRole Role) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE conversation_id = ? AND sender_type = ? AND is_read = 0 AND deleted_at IS NULL
	`, conversationID, string(senderRole)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting unread messages: %w", err)
	}
	return count, nil
}

// AddParticipant inserts a participant row. Inserting an existing
// (conversation, user) pair is an idempotent no-op, not an error.
func (s *SQLiteStore) AddParticipant(ctx context.Context, p *Participant) error {
	settings := p.Settings
	if settings == "" {
		settings = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO participants (conversation_id, user_id, role, joined_at, last_read_message_id, settings)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id, user_id) DO NOTHING
	`,
		p.ConversationID,
		p.UserID,
		string(p.Role),
		formatTime(p.JoinedAt),
		nullString(p.LastReadMessageID),
		settings,
	)
	if err != nil {
		return fmt.Errorf("inserting participant: %w", err)
	}
	return nil
}

// GetParticipants returns all participants of a conversation.
func (s *SQLiteStore) GetParticipants(ctx context.Context, conversationID string) ([]*Participant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, user_id, role, joined_at, last_read_message_id, settings
		FROM participants
		WHERE conversation_id = ?
		ORDER BY joined_at
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying participants: %w", err)
	}
	defer rows.Close()

	var participants []*Participant
	for rows.Next() {
		var p Participant
		var role, joinedAtStr string
		var lastRead sql.NullString

		if err := rows.Scan(&p.ConversationID, &p.UserID, &role, &joinedAtStr, &lastRead, &p.Settings); err != nil {
			return nil, fmt.Errorf("scanning participant: %w", err)
		}
		p.Role = Role(role)
		p.LastReadMessageID = stringPtr(lastRead)
		if p.JoinedAt, err = parseTime(joinedAtStr); err != nil {
			return nil, fmt.Errorf("parsing joined_at: %w", err)
		}
		participants = append(participants, &p)
	}
	return participants, rows.Err()
}

// UpdateLastRead advances a participant's read cursor.
// Returns ErrNotFound if the participant row doesn't exist.
func (s *SQLiteStore) UpdateLastRead(ctx context.Context, conversationID, userID, messageID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE participants SET last_read_message_id = ? WHERE conversation_id = ? AND user_id = ?`,
		messageID, conversationID, userID)
	if err != nil {
		return fmt.Errorf("updating last read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// IsUserInConversation reports whether the user is a participant.
// This is the single authorization primitive the chat service depends on.
func (s *SQLiteStore) IsUserInConversation(ctx context.Context, conversationID, userID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM participants WHERE conversation_id = ? AND user_id = ?`,
		conversationID, userID).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking participant: %w", err)
	}
	return true, nil
}

// CreateReceipt upserts a receipt for a (message, recipient) pair and returns
// the stored row. The status is monotonic: an existing 'read' receipt is
// never overwritten with 'delivered'. Returns ErrNotFound for an unknown
// message.
func (s *SQLiteStore) CreateReceipt(ctx context.Context, r *Receipt) (*Receipt, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM messages WHERE id = ?`, r.MessageID).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checking message: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO receipts (message_id, recipient_user_id, status, at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(message_id, recipient_user_id) DO UPDATE SET
			status = excluded.status,
			at = excluded.at
		WHERE NOT (receipts.status = 'read' AND excluded.status = 'delivered')
	`, r.MessageID, r.RecipientUserID, string(r.Status), formatTime(r.At))
	if err != nil {
		return nil, fmt.Errorf("upserting receipt: %w", err)
	}

	// Read back the stored row: the upsert may have been a no-op when the
	// incoming status would regress the stored one
	var stored Receipt
	var status, atStr string
	err = s.db.QueryRowContext(ctx,
		`SELECT message_id, recipient_user_id, status, at FROM receipts WHERE message_id = ? AND recipient_user_id = ?`,
		r.MessageID, r.RecipientUserID).Scan(&stored.MessageID, &stored.RecipientUserID, &status, &atStr)
	if err != nil {
		return nil, fmt.Errorf("reading back receipt: %w", err)
	}
	stored.Status = ReceiptStatus(status)
	if stored.At, err = parseTime(atStr); err != nil {
		return nil, fmt.Errorf("parsing receipt at: %w", err)
	}
	return &stored, nil
}

// GetReceipts returns all receipts for a message. Receipts remain queryable
// after the message itself is soft-deleted.
func (s *SQLiteStore) GetReceipts(ctx context.Context, messageID string) ([]*Receipt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, recipient_user_id, status, at
		FROM receipts
		WHERE message_id = ?
		ORDER BY at
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("querying receipts: %w", err)
	}
	defer rows.Close()

	var receipts []*Receipt
	for rows.Next() {
		var r Receipt
		var status, atStr string
		if err := rows.Scan(&r.MessageID, &r.RecipientUserID, &status, &atStr); err != nil {
			return nil, fmt.Errorf("scanning receipt: %w", err)
		}
		r.Status = ReceiptStatus(status)
		if r.At, err = parseTime(atStr); err != nil {
			return nil, fmt.Errorf("parsing receipt at: %w", err)
		}
		receipts = append(receipts, &r)
	}
	return receipts, rows.Err()
}

// CreateAttachment inserts an attachment row for a message.
// Returns ErrNotFound if the message doesn't exist.
func (s *SQLiteStore) CreateAttachment(ctx context.Context, a *Attachment) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM messages WHERE id = ?`, a.MessageID).Scan(&exists)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking message: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO attachments (id, message_id, url, mime_type, size, width, height, thumbnail_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.ID,
		a.MessageID,
		a.URL,
		a.MimeType,
		a.Size,
		a.Width,
		a.Height,
		a.ThumbnailURL,
		formatTime(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting attachment: %w", err)
	}
	return nil
}

// GetAttachments returns all attachments bound to a message.
func (s *SQLiteStore) GetAttachments(ctx context.Context, messageID string) ([]*Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, url, mime_type, size, width, height, thumbnail_url, created_at
		FROM attachments
		WHERE message_id = ?
		ORDER BY created_at
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("querying attachments: %w", err)
	}
	defer rows.Close()

	var attachments []*Attachment
	for rows.Next() {
		var a Attachment
		var createdAtStr string
		if err := rows.Scan(&a.ID, &a.MessageID, &a.URL, &a.MimeType, &a.Size, &a.Width, &a.Height, &a.ThumbnailURL, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning attachment: %w", err)
		}
		if a.CreatedAt, err = parseTime(createdAtStr); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		attachments = append(attachments, &a)
	}
	return attachments, rows.Err()
}
