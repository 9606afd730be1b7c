package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Header names for the pre-shared-key handshake.
const (
	IdentityHeader = "X-Service-Identity"
	SecretHeader   = "X-Service-Secret"
)

// Middleware authenticates every request against the registry before it
// reaches the wrapped handler. Failed calls are answered with 401 and
// proceed no further; there is no retry or partial processing.
func Middleware(registry *Registry, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := r.Header.Get(IdentityHeader)
			secret := r.Header.Get(SecretHeader)

			if err := registry.Authenticate(identity, secret); err != nil {
				logger.Warn("rejected unauthenticated call",
					"identity", identity,
					"path", r.URL.Path,
					"remote", r.RemoteAddr,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
