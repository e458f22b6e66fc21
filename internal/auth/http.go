// ABOUTME: HTTP middleware for JWT authentication on API endpoints
// ABOUTME: Extracts the bearer token and adds the verified Identity to context

package auth

import (
	"net/http"
	"strings"
)

// TokenFromRequest extracts a bearer token from the Authorization header,
// falling back to the "token" query parameter. The query fallback exists for
// WebSocket handshakes, where browsers cannot set custom headers.
// Returns the token and an error message (empty if successful).
func TokenFromRequest(r *http.Request) (string, string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return "", "invalid authorization header format"
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == "" {
			return "", "empty token"
		}
		return token, ""
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token, ""
	}
	return "", "missing credentials"
}

// Middleware creates an HTTP middleware that extracts and validates bearer
// tokens, attaching the verified Identity to the request context.
func Middleware(verifier Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := TokenFromRequest(r)
			if errMsg != "" {
				writeUnauthorized(w, errMsg)
				return
			}

			id, err := verifier.Verify(token)
			if err != nil {
				writeUnauthorized(w, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
