// pkg/middleware/session.go
package middleware

import (
	"context"
	"net/http"
	"strings"

	"lineauth/internal/session"
)

type ctxSessionKey struct{}

type SessionVerifier interface {
	Verify(raw string) (session.Verified, error)
}

// SessionAuth requires a bearer session credential minted by this service.
func SessionAuth(v SessionVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				unauthorized(w, "missing bearer")
				return
			}
			s, err := v.Verify(strings.TrimSpace(authz[len("Bearer "):]))
			if err != nil {
				unauthorized(w, "invalid session")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxSessionKey{}, s)))
		})
	}
}

func SessionFrom(ctx context.Context) (session.Verified, bool) {
	s, ok := ctx.Value(ctxSessionKey{}).(session.Verified)
	return s, ok
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"success":false,"error":{"code":"Unauthorized","message":"` + msg + `"}}`))
}
