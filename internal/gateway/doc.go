// ABOUTME: Package documentation for the gateway package
// ABOUTME: Explains the socket/HTTP split and the delivery model

// Package gateway is the transport edge of the chat system: it terminates
// WebSocket connections, routes socket events into the chat service, fans
// persisted changes back out through rooms, and exposes the same service
// over an HTTP API.
//
// Delivery over the socket is at-most-once. The hub never blocks on a slow
// consumer; a full send buffer drops the event, and clients recover missed
// state from the store through the HTTP API. Room membership, typing state,
// and presence are all in-memory and reset on restart.
package gateway
