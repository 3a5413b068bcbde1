package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"lineauth/internal/session"
)

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || rec.Header().Get("X-Request-Id") != seen {
		t.Fatalf("generated id %q, header %q", seen, rec.Header().Get("X-Request-Id"))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "abc")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "abc" {
		t.Fatalf("propagated id %q", seen)
	}
}

func TestRequestHost(t *testing.T) {
	cases := []struct {
		name, host, forwarded string
		trust                 bool
		want                  string
	}{
		{"host header", "acme.example.com", "", true, "acme.example.com"},
		{"forwarded", "internal:8080", "globex.example.com, proxy.local", true, "globex.example.com"},
		{"forwarded ignored without trusted proxy", "acme.example.com", "globex.example.com", false, "acme.example.com"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got string
			h := RequestHost(tc.trust)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { got = HostFrom(r.Context()) }))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Host = tc.host
			if tc.forwarded != "" {
				req.Header.Set("X-Forwarded-Host", tc.forwarded)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

type stubVerifier map[string]session.Verified

func (s stubVerifier) Verify(raw string) (session.Verified, error) {
	if v, ok := s[raw]; ok {
		return v, nil
	}
	return session.Verified{}, errors.New("bad token")
}

func TestSessionAuth(t *testing.T) {
	v := stubVerifier{"good": {UserID: "u1", Claims: session.Claims{TenantID: "t1", Role: "customer"}}}
	h := SessionAuth(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := SessionFrom(r.Context())
		if !ok || s.UserID != "u1" {
			t.Errorf("session %+v, %v", s, ok)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	cases := []struct {
		name, authz string
		want        int
	}{
		{"ok", "Bearer good", http.StatusNoContent},
		{"lowercase scheme", "bearer good", http.StatusNoContent},
		{"missing", "", http.StatusUnauthorized},
		{"invalid", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
			if tc.authz != "" {
				req.Header.Set("Authorization", tc.authz)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status %d want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestRecoverAndAccessLog(t *testing.T) {
	log := zap.NewNop().Sugar()
	h := AccessLog(log)(Recover(log)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type %q", ct)
	}
}
