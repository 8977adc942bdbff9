package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

// BearerAuth admits requests whose Authorization header carries token under
// the Bearer scheme. The scheme name is matched case-insensitively. An empty
// token admits nothing, so a server started without a resolver token never
// serves resolver calls.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !validBearer(r.Header.Get("Authorization"), token) {
				slog.Warn("resolver call rejected", "path", r.URL.Path, "request_id", w.Header().Get("X-Request-Id"))
				w.Header().Set("WWW-Authenticate", `Bearer realm="relfield"`)
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func validBearer(header, token string) bool {
	if token == "" {
		return false
	}
	scheme, presented, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(presented)), []byte(token)) == 1
}
