// ABOUTME: Error kinds for chat authorization and validation failures
// ABOUTME: Sentinel errors checked with errors.Is by the gateway and API layers

package chat

import "errors"

var (
	// ErrUnauthorized is returned when a non-participant attempts any read
	// or write on a conversation.
	ErrUnauthorized = errors.New("not a participant in this conversation")

	// ErrForbidden is returned when a participant attempts an action
	// reserved for another user, such as editing someone else's message.
	ErrForbidden = errors.New("action not permitted")

	// ErrValidation is returned for malformed input, such as an empty
	// message body.
	ErrValidation = errors.New("invalid input")
)
