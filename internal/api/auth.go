package api

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"
)

// AdminTokenHeader carries the admin token when no Authorization header is sent
const AdminTokenHeader = "X-Admin-Token"

// RequireAdmin guards admin endpoints with a static bearer token. An empty
// token disables the endpoints entirely instead of leaving them open.
func RequireAdmin(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				writeError(w, "admin endpoints disabled", http.StatusForbidden)
				return
			}
			if !tokenEqual(requestToken(r), token) {
				log.Printf("🔒 Admin request rejected from %s", GetClientIP(r))
				w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
				writeError(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if t, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(t)
		}
		return ""
	}
	return r.Header.Get(AdminTokenHeader)
}

// tokenEqual compares in constant time
func tokenEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
