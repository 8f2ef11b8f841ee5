package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"imageclassifier/internal/dto"
)

// BearerAuthMiddleware requires "Authorization: Bearer <token>".
func BearerAuthMiddleware(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		given, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" || !secureEqual(given, token) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
			writeJSON(w, http.StatusUnauthorized, dto.MessageResponse{Message: "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// BasicAuthMiddleware requires HTTP Basic credentials.
func BasicAuthMiddleware(username, password string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		// Both comparisons always run.
		userOK := secureEqual(user, username)
		passOK := secureEqual(pass, password)
		if !ok || username == "" || !userOK || !passOK {
			w.Header().Set("WWW-Authenticate", `Basic realm="classes", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
