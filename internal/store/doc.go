// Package store provides persistent storage for the chat core using SQLite.
//
// # Architecture
//
// The package is pure data access: it owns the schema and the queries but
// enforces no business rules. Authorization and mutation rules live in the
// chat service, which is the only component allowed to write through this
// package.
//
// # Data Models
//
//   - Conversation: 1:1 thread between a customer and a provider, with a
//     denormalized contact snapshot and a last_message_at ordering key
//   - Message: immutable unit of communication; soft-deleted via deleted_at,
//     edited in place via edited_at
//   - Participant: membership record with role and read cursor
//   - Receipt: delivery/read acknowledgement with monotonic status
//   - Attachment: binary resource bound to a message
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//	PRAGMA busy_timeout=5000;
//
// Timestamps are stored as fixed-width RFC 3339 UTC strings so string
// comparison matches time order; the keyset pagination queries depend on
// this.
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: requested entity does not exist
//   - ErrDuplicateConversation: active conversation already exists for the
//     customer/provider pair (the race-resolution signal for create-or-get)
//
// Constraint violations on participant insert are idempotent no-ops, not
// errors. All methods accept context.Context for cancellation support.
package store
