package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendera/chat-gateway/internal/auth"
	"github.com/tendera/chat-gateway/internal/chat"
	"github.com/tendera/chat-gateway/internal/session"
	"github.com/tendera/chat-gateway/internal/store"
)

var testSecret = []byte("test-secret")

type apiFixture struct {
	srv      *httptest.Server
	verifier *auth.JWTVerifier
	svc      *chat.Service
	store    *store.SQLiteStore
	gw       *Gateway
}

func setupAPI(t *testing.T) *apiFixture {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	svc := chat.NewService(st, nil)
	sessions := session.NewRegistry(nil)
	gw := NewGateway(svc, sessions, 10*time.Second, nil)
	api := NewAPI(svc, gw, sessions, nil)
	verifier := auth.NewJWTVerifier(testSecret)

	srv := httptest.NewServer(NewRouter(api, gw, verifier, []string{"*"}))
	t.Cleanup(srv.Close)

	return &apiFixture{srv: srv, verifier: verifier, svc: svc, store: st, gw: gw}
}

func (f *apiFixture) token(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := f.verifier.Generate(auth.Identity{UserID: userID, Role: role, DisplayName: userID}, time.Hour)
	require.NoError(t, err)
	return token
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestAPI_RequiresAuth(t *testing.T) {
	f := setupAPI(t)

	resp := f.do(t, "GET", "/api/conversations", "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.do(t, "GET", "/api/conversations", "garbage-token", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_HealthzIsPublic(t *testing.T) {
	f := setupAPI(t)

	resp := f.do(t, "GET", "/api/healthz", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeJSON[map[string]any](t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["online_users"])
}

func TestAPI_CreateConversationIdempotent(t *testing.T) {
	f := setupAPI(t)
	customer := f.token(t, "cust-1", "customer")

	req := createConversationRequest{ProviderID: "prov-1", CustomerName: "Ada"}

	resp := f.do(t, "POST", "/api/conversations", customer, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	first := decodeJSON[store.Conversation](t, resp)
	assert.Equal(t, "prov-1", first.ProviderID)
	require.NotNil(t, first.CustomerID)
	assert.Equal(t, "cust-1", *first.CustomerID)

	resp = f.do(t, "POST", "/api/conversations", customer, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := decodeJSON[store.Conversation](t, resp)
	assert.Equal(t, first.ID, second.ID, "same pair converges on one conversation")
}

func TestAPI_SendAndListMessages(t *testing.T) {
	f := setupAPI(t)
	customer := f.token(t, "cust-1", "customer")

	resp := f.do(t, "POST", "/api/conversations", customer, createConversationRequest{ProviderID: "prov-1"})
	conv := decodeJSON[store.Conversation](t, resp)

	for i := 1; i <= 3; i++ {
		resp = f.do(t, "POST", fmt.Sprintf("/api/conversations/%s/messages", conv.ID), customer,
			sendMessageRequest{Body: fmt.Sprintf("message %d", i)})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}

	resp = f.do(t, "GET", fmt.Sprintf("/api/conversations/%s/messages", conv.ID), customer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeJSON[struct {
		Messages []*store.Message `json:"messages"`
	}](t, resp)
	require.Len(t, body.Messages, 3)
	assert.Equal(t, "message 1", body.Messages[0].Body)
	assert.Equal(t, "message 3", body.Messages[2].Body)
}

func TestAPI_SendMessageValidation(t *testing.T) {
	f := setupAPI(t)
	customer := f.token(t, "cust-1", "customer")

	resp := f.do(t, "POST", "/api/conversations", customer, createConversationRequest{ProviderID: "prov-1"})
	conv := decodeJSON[store.Conversation](t, resp)

	resp = f.do(t, "POST", fmt.Sprintf("/api/conversations/%s/messages", conv.ID), customer,
		sendMessageRequest{Body: "   "})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_NonParticipantIsForbidden(t *testing.T) {
	f := setupAPI(t)
	customer := f.token(t, "cust-1", "customer")
	stranger := f.token(t, "cust-2", "customer")

	resp := f.do(t, "POST", "/api/conversations", customer, createConversationRequest{ProviderID: "prov-1"})
	conv := decodeJSON[store.Conversation](t, resp)

	resp = f.do(t, "GET", fmt.Sprintf("/api/conversations/%s/messages", conv.ID), stranger, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, "POST", fmt.Sprintf("/api/conversations/%s/messages", conv.ID), stranger,
		sendMessageRequest{Body: "let me in"})
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAPI_EditAndDeleteMessage(t *testing.T) {
	f := setupAPI(t)
	customer := f.token(t, "cust-1", "customer")

	resp := f.do(t, "POST", "/api/conversations", customer, createConversationRequest{ProviderID: "prov-1"})
	conv := decodeJSON[store.Conversation](t, resp)

	resp = f.do(t, "POST", fmt.Sprintf("/api/conversations/%s/messages", conv.ID), customer,
		sendMessageRequest{Body: "typo"})
	msg := decodeJSON[store.Message](t, resp)

	resp = f.do(t, "PATCH", "/api/messages/"+msg.ID, customer, editMessageRequest{Body: "fixed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	edited := decodeJSON[store.Message](t, resp)
	assert.Equal(t, "fixed", edited.Body)
	assert.NotNil(t, edited.EditedAt)

	// Only the sender may edit
	provider := f.token(t, "prov-1", "provider")
	resp = f.do(t, "PATCH", "/api/messages/"+msg.ID, provider, editMessageRequest{Body: "hijack"})
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, "DELETE", "/api/messages/"+msg.ID, customer, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Deleted messages vanish from reads
	resp = f.do(t, "GET", fmt.Sprintf("/api/conversations/%s/messages", conv.ID), customer, nil)
	body := decodeJSON[struct {
		Messages []*store.Message `json:"messages"`
	}](t, resp)
	assert.Empty(t, body.Messages)

	resp = f.do(t, "DELETE", "/api/messages/"+msg.ID, customer, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_MarkRead(t *testing.T) {
	f := setupAPI(t)
	customer := f.token(t, "cust-1", "customer")
	provider := f.token(t, "prov-1", "provider")

	resp := f.do(t, "POST", "/api/conversations", customer, createConversationRequest{ProviderID: "prov-1"})
	conv := decodeJSON[store.Conversation](t, resp)

	resp = f.do(t, "POST", fmt.Sprintf("/api/conversations/%s/messages", conv.ID), provider,
		sendMessageRequest{Body: "hello"})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = f.do(t, "POST", fmt.Sprintf("/api/conversations/%s/read", conv.ID), customer, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, "GET", fmt.Sprintf("/api/conversations/%s/messages", conv.ID), customer, nil)
	body := decodeJSON[struct {
		Messages []*store.Message `json:"messages"`
	}](t, resp)
	require.Len(t, body.Messages, 1)
	assert.True(t, body.Messages[0].IsRead)
}

func TestAPI_Receipts(t *testing.T) {
	f := setupAPI(t)
	customer := f.token(t, "cust-1", "customer")
	provider := f.token(t, "prov-1", "provider")

	resp := f.do(t, "POST", "/api/conversations", customer, createConversationRequest{ProviderID: "prov-1"})
	conv := decodeJSON[store.Conversation](t, resp)

	resp = f.do(t, "POST", fmt.Sprintf("/api/conversations/%s/messages", conv.ID), provider,
		sendMessageRequest{Body: "hello"})
	msg := decodeJSON[store.Message](t, resp)

	resp = f.do(t, "POST", fmt.Sprintf("/api/messages/%s/receipts", msg.ID), customer,
		updateReceiptRequest{Status: "read"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	receipt := decodeJSON[store.Receipt](t, resp)
	assert.Equal(t, store.ReceiptRead, receipt.Status)

	// A later delivered must not regress the stored read
	resp = f.do(t, "POST", fmt.Sprintf("/api/messages/%s/receipts", msg.ID), customer,
		updateReceiptRequest{Status: "delivered"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	receipt = decodeJSON[store.Receipt](t, resp)
	assert.Equal(t, store.ReceiptRead, receipt.Status)

	// Senders cannot acknowledge their own message
	resp = f.do(t, "POST", fmt.Sprintf("/api/messages/%s/receipts", msg.ID), provider,
		updateReceiptRequest{Status: "read"})
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, "GET", fmt.Sprintf("/api/messages/%s/receipts", msg.ID), provider, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeJSON[struct {
		Receipts []*store.Receipt `json:"receipts"`
	}](t, resp)
	require.Len(t, body.Receipts, 1)
}

func TestAPI_ArchiveConversation(t *testing.T) {
	f := setupAPI(t)
	customer := f.token(t, "cust-1", "customer")

	resp := f.do(t, "POST", "/api/conversations", customer, createConversationRequest{ProviderID: "prov-1"})
	conv := decodeJSON[store.Conversation](t, resp)

	resp = f.do(t, "POST", fmt.Sprintf("/api/conversations/%s/archive", conv.ID), customer, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// A new create-or-get starts a fresh conversation
	resp = f.do(t, "POST", "/api/conversations", customer, createConversationRequest{ProviderID: "prov-1"})
	fresh := decodeJSON[store.Conversation](t, resp)
	assert.NotEqual(t, conv.ID, fresh.ID)
}

func TestAPI_ListConversationsPagination(t *testing.T) {
	f := setupAPI(t)
	customer := f.token(t, "cust-1", "customer")

	var convs []store.Conversation
	for i := 1; i <= 3; i++ {
		resp := f.do(t, "POST", "/api/conversations", customer,
			createConversationRequest{ProviderID: fmt.Sprintf("prov-%d", i)})
		conv := decodeJSON[store.Conversation](t, resp)
		convs = append(convs, conv)

		resp = f.do(t, "POST", fmt.Sprintf("/api/conversations/%s/messages", conv.ID), customer,
			sendMessageRequest{Body: "hi"})
		resp.Body.Close()
		time.Sleep(5 * time.Millisecond) // distinct last_message_at ordering
	}

	resp := f.do(t, "GET", "/api/conversations?limit=2", customer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decodeJSON[struct {
		Conversations []*store.Conversation `json:"conversations"`
	}](t, resp)
	require.Len(t, page.Conversations, 2)
	assert.Equal(t, convs[2].ID, page.Conversations[0].ID, "most recent first")

	cursor := page.Conversations[1].LastMessageAt.Format(time.RFC3339Nano)
	resp = f.do(t, "GET", "/api/conversations?limit=2&cursor="+cursor, customer, nil)
	page = decodeJSON[struct {
		Conversations []*store.Conversation `json:"conversations"`
	}](t, resp)
	require.Len(t, page.Conversations, 1)
	assert.Equal(t, convs[0].ID, page.Conversations[0].ID)
}
