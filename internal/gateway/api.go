// ABOUTME: HTTP handlers for the conversation and message API
// ABOUTME: Same chat service as the socket path; sends fan out to the hub

package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tendera/chat-gateway/internal/auth"
	"github.com/tendera/chat-gateway/internal/chat"
	"github.com/tendera/chat-gateway/internal/session"
	"github.com/tendera/chat-gateway/internal/store"
)

// API exposes the chat service over HTTP. Mutations that clients should see
// live are pushed through the gateway's hub after persisting.
type API struct {
	svc      *chat.Service
	gw       *Gateway
	sessions *session.Registry
	logger   *slog.Logger
}

// NewAPI creates the HTTP handler set. Pass nil logger for default.
func NewAPI(svc *chat.Service, gw *Gateway, sessions *session.Registry, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		svc:      svc,
		gw:       gw,
		sessions: sessions,
		logger:   logger.With("component", "api"),
	}
}

type createConversationRequest struct {
	ProviderID    string `json:"provider_id"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
}

// CreateConversation handles POST /api/conversations. The caller is the
// customer; provider-initiated threads go through the same endpoint with the
// provider's own ID, so the pairing stays (provider, customer).
func (a *API) CreateConversation(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())

	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	customerID := identity.UserID
	conv, err := a.svc.CreateOrGetConversation(r.Context(), req.ProviderID, &customerID, chat.ContactInfo{
		Name:  req.CustomerName,
		Email: req.CustomerEmail,
		Phone: req.CustomerPhone,
	})
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// ListConversations handles GET /api/conversations with keyset pagination.
// The cursor is the last_message_at of the previous page's final row.
func (a *API) ListConversations(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())

	opts := store.ListConversationsOptions{
		Limit:  parseLimit(r, 50),
		Status: store.ConversationStatus(r.URL.Query().Get("status")),
	}
	if cursor := r.URL.Query().Get("cursor"); cursor != "" {
		t, err := time.Parse(time.RFC3339Nano, cursor)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid cursor")
			return
		}
		opts.Cursor = &t
	}

	convs, err := a.svc.GetConversations(r.Context(), identity.UserID, store.Role(identity.Role), opts)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

// ListMessages handles GET /api/conversations/{id}/messages. Pages backward
// from `before` (a message ID) in ascending order within the page.
func (a *API) ListMessages(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())
	conversationID := chi.URLParam(r, "id")

	opts := store.ListMessagesOptions{
		Before: r.URL.Query().Get("before"),
		Limit:  parseLimit(r, 50),
	}

	msgs, err := a.svc.GetMessages(r.Context(), conversationID, identity.UserID, opts)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

type sendMessageRequest struct {
	Type string `json:"type"`
	Body string `json:"body"`
}

// SendMessage handles POST /api/conversations/{id}/messages and fans the
// stored message out to connected participants.
func (a *API) SendMessage(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())
	conversationID := chi.URLParam(r, "id")

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := a.svc.SendMessage(r.Context(), chat.SendMessageInput{
		ConversationID: conversationID,
		Type:           req.Type,
		Body:           req.Body,
	}, identity.UserID, store.Role(identity.Role), identity.DisplayName)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	a.gw.FanOutMessage(r.Context(), msg)
	writeJSON(w, http.StatusCreated, msg)
}

// MarkRead handles POST /api/conversations/{id}/read.
func (a *API) MarkRead(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())
	conversationID := chi.URLParam(r, "id")

	if err := a.svc.MarkAsRead(r.Context(), conversationID, identity.UserID, store.Role(identity.Role)); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ArchiveConversation handles POST /api/conversations/{id}/archive.
// Archiving frees the pair to start a fresh conversation later.
func (a *API) ArchiveConversation(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())
	conversationID := chi.URLParam(r, "id")

	if err := a.svc.ArchiveConversation(r.Context(), conversationID, identity.UserID); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "archived"})
}

type editMessageRequest struct {
	Body string `json:"body"`
}

// EditMessage handles PATCH /api/messages/{id}.
func (a *API) EditMessage(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())
	messageID := chi.URLParam(r, "id")

	var req editMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := a.svc.EditMessage(r.Context(), messageID, identity.UserID, req.Body)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// DeleteMessage handles DELETE /api/messages/{id}. Deletion is soft: the row
// stays for receipts and audit but no longer appears in reads.
func (a *API) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())
	messageID := chi.URLParam(r, "id")

	if err := a.svc.DeleteMessage(r.Context(), messageID, identity.UserID); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ListReceipts handles GET /api/messages/{id}/receipts.
func (a *API) ListReceipts(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())
	messageID := chi.URLParam(r, "id")

	receipts, err := a.svc.GetReceipts(r.Context(), messageID, identity.UserID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"receipts": receipts})
}

type updateReceiptRequest struct {
	Status string `json:"status"`
}

// UpdateReceipt handles POST /api/messages/{id}/receipts and broadcasts the
// stored state to connected clients.
func (a *API) UpdateReceipt(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())
	messageID := chi.URLParam(r, "id")

	var req updateReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	upd, err := a.svc.UpdateReceipt(r.Context(), messageID, identity.UserID, store.ReceiptStatus(req.Status))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	a.gw.BroadcastReceipt(upd)
	writeJSON(w, http.StatusOK, upd.Receipt)
}

// Healthz handles GET /api/healthz.
func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"online_users": a.sessions.OnlineCount(),
	})
}

// writeServiceError maps service and store errors onto HTTP status codes.
func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "not a participant")
	case errors.Is(err, chat.ErrForbidden):
		writeError(w, http.StatusForbidden, "operation not permitted")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		a.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
