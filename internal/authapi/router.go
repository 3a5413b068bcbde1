package authapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"lineauth/pkg/middleware"
)

type RouterOptions struct {
	Sessions    middleware.SessionVerifier
	CORSOrigins []string
	// RatePerMinute limits /auth requests per client IP; 0 disables.
	RatePerMinute int
	Gatherer      prometheus.Gatherer
	Tracing       bool
	// TrustProxy honors X-Forwarded-Host for tenant subdomain resolution.
	TrustProxy bool
	Log        *zap.SugaredLogger
}

// NewRouter mounts the auth endpoints plus /healthz, /metrics and /openapi.json.
func NewRouter(h *Handler, o RouterOptions) http.Handler {
	gatherer := o.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(o.Log))
	r.Use(middleware.AccessLog(o.Log))
	r.Use(middleware.Tracing(o.Tracing))
	r.Use(middleware.RequestHost(o.TrustProxy))
	if len(o.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: o.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/openapi.json", describe().ServeHandler("lineauth", "1.0.0"))

	r.Route("/auth", func(r chi.Router) {
		if o.RatePerMinute > 0 {
			r.Use(httprate.Limit(o.RatePerMinute, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
					writeJSON(w, http.StatusTooManyRequests, map[string]any{
						"success": false,
						"error":   map[string]string{"code": "RateLimited", "message": "too many login attempts"},
					})
				}),
			))
		}
		r.Get("/line/login", h.login)
		r.Get("/line/callback", h.callback)
		r.Post("/line/token-exchange", h.tokenExchange)
		r.Post("/employee-login", h.employeeLogin)
		r.With(middleware.SessionAuth(o.Sessions)).Get("/session", h.sessionInfo)
	})
	return r
}
