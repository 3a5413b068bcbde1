// pkg/middleware/host.go
package middleware

import (
	"context"
	"net/http"
	"strings"
)

type ctxHostKey struct{}

// RequestHost records the host the client addressed. X-Forwarded-Host is honored only when
// trustProxy is set; otherwise a direct caller could pick the tenant subdomain.
// Tenant resolution reads it through HostFrom.
func RequestHost(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host := r.Host
			if fwd := r.Header.Get("X-Forwarded-Host"); trustProxy && fwd != "" {
				// first hop only
				host, _, _ = strings.Cut(fwd, ",")
			}
			ctx := context.WithValue(r.Context(), ctxHostKey{}, strings.TrimSpace(host))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func HostFrom(ctx context.Context) string {
	h, _ := ctx.Value(ctxHostKey{}).(string)
	return h
}
