package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// BearerAuth guards the journal API with the locally configured shared
// secret. The comparison is constant-time; a rejected request carries a
// WWW-Authenticate challenge naming the driftline realm.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) || subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="driftline"`)
				httpError(w, http.StatusUnauthorized, "authentication_error", "missing or invalid bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
