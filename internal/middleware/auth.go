package middleware

import (
	"crypto/subtle"
	"net/http"
)

// SecretTokenHeader carries the secret registered with setWebhook
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// AuthMiddleware validates the webhook secret token on incoming requests
type AuthMiddleware struct {
	secret string
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{
		secret: secret,
	}
}

// Authenticate validates the secret token header in the request
func (m *AuthMiddleware) Authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// If no secret is configured, skip authentication
		if m.secret == "" {
			next(w, r)
			return
		}

		token := r.Header.Get(SecretTokenHeader)
		if token == "" {
			http.Error(w, "Unauthorized: Missing secret token", http.StatusUnauthorized)
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(m.secret)) != 1 {
			http.Error(w, "Unauthorized: Invalid secret token", http.StatusUnauthorized)
			return
		}

		next(w, r)
	}
}
