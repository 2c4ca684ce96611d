package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/studentfund/studentfund/internal/api/response"
)

// APIKeyHeader carries the public project key every client sends.
const APIKeyHeader = "apikey"

// APIKey is middleware that rejects requests whose apikey header does not
// match key. The key is public; it identifies the project, not the user.
func APIKey(key string) func(http.Handler) http.Handler {
	want := []byte(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(APIKeyHeader)
			if got == "" {
				response.Err(w, http.StatusUnauthorized, "UNAUTHORIZED", "API key is required", GetRequestID(r.Context()))
				return
			}
			if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				response.Err(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid API key", GetRequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
