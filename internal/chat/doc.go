// Package chat provides the authorization-enforcing service layer for the
// conversation store.
//
// # Overview
//
// The chat package sits between the transport layers (WebSocket gateway,
// HTTP API) and the store, and is the only permitted mutation path for chat
// state. Every entry point funnels through Service, which checks
// participation before any read or write and translates failures into the
// error kinds the transports map onto the wire.
//
// Key operations:
//
//   - CreateOrGetConversation: idempotent get-or-create for a
//     customer/provider pair
//   - SendMessage / SendSystemMessage: validate and persist; callers fan out
//   - EditMessage / DeleteMessage: sender-restricted soft mutations
//   - MarkAsRead / UpdateReceipt: read-state and acknowledgement flow
//
// # Error Kinds
//
//   - ErrUnauthorized: non-participant attempting any access
//   - ErrForbidden: participant attempting another user's action
//   - ErrValidation: malformed input (empty body, bad status)
//   - store.ErrNotFound surfaces unchanged
//
// All methods are synchronous request/response; concurrency correctness is
// delegated to the store's atomic upserts and unique constraints rather than
// application-level locking.
package chat
