// Package auth handles bearer-token verification for the chat gateway.
//
// Token issuance belongs to the surrounding platform; this package only
// verifies HS256 JWTs and turns them into an immutable Identity consumed by
// the WebSocket gateway and the HTTP API. Identity travels through
// context.Context on HTTP requests and is pinned to the connection for
// WebSocket sessions.
package auth
