package middleware

import (
	"crypto/subtle"
	"net/http"
)

// WebhookToken rejects gateway callbacks whose token query parameter does not
// match secret. An empty secret accepts every callback.
func WebhookToken(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.URL.Query().Get("token")
			if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				writeAuthError(w, http.StatusUnauthorized, "invalid webhook token", "webhook_unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
