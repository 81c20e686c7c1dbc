package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

// APIKeyHeader is the request header carrying the gateway API key.
const APIKeyHeader = "x-api-key"

// KeyResolver returns the currently configured API key. An empty key
// disables authentication.
type KeyResolver func(ctx context.Context) string

// APIKeyAuth enforces the x-api-key header on every route the exempt
// predicate does not match. The key is resolved per request so rotations
// stored in the settings table apply without a restart.
func APIKeyAuth(resolve KeyResolver, exempt func(r *http.Request) bool, logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exempt != nil && exempt(r) {
				next.ServeHTTP(w, r)
				return
			}

			expected := resolve(r.Context())
			if expected == "" {
				next.ServeHTTP(w, r)
				return
			}

			provided := r.Header.Get(APIKeyHeader)
			if subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
				logger.WithFields(logrus.Fields{
					"url":       r.URL.Path,
					"remote_ip": clientIP(r),
				}).Warn("Rejected request with invalid API key")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid or missing API key"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
