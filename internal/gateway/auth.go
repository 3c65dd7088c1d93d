package gateway

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/flemzord/relayclaw/internal/security"
)

// authMiddleware validates the bearer token in constant time.
func authMiddleware(cfg AuthConfig, audit *security.AuditLogger, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || !constantTimeEqual(token, cfg.BearerToken) {
				logger.Warn("gateway: unauthorized request", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
				audit.Log(security.AuditEvent{
					Type:    security.EventAuthFailure,
					Source:  "gateway",
					Subject: r.RemoteAddr,
					Detail:  r.Method + " " + r.URL.Path,
				})
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// constantTimeEqual compares two strings in constant time.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
