// ABOUTME: chi router assembling the public and authenticated surfaces
// ABOUTME: CORS, request logging, auth middleware, then API and socket routes

package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tendera/chat-gateway/internal/auth"
)

// NewRouter builds the HTTP router. Everything except the health check sits
// behind the auth middleware, including the WebSocket upgrade.
func NewRouter(api *API, gw *Gateway, verifier auth.Verifier, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/api/healthz", api.Healthz)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(verifier))

		r.Get("/ws", gw.ServeWS)

		r.Route("/api", func(r chi.Router) {
			r.Post("/conversations", api.CreateConversation)
			r.Get("/conversations", api.ListConversations)
			r.Get("/conversations/{id}/messages", api.ListMessages)
			r.Post("/conversations/{id}/messages", api.SendMessage)
			r.Post("/conversations/{id}/read", api.MarkRead)
			r.Post("/conversations/{id}/archive", api.ArchiveConversation)
			r.Patch("/messages/{id}", api.EditMessage)
			r.Delete("/messages/{id}", api.DeleteMessage)
			r.Get("/messages/{id}/receipts", api.ListReceipts)
			r.Post("/messages/{id}/receipts", api.UpdateReceipt)
		})
	})

	return r
}
