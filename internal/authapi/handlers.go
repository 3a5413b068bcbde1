// Package authapi exposes the LINE login flows over HTTP.
package authapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"lineauth/internal/federation"
	"lineauth/pkg/accounts"
	"lineauth/pkg/middleware"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type tokenExchangeRequest struct {
	LineAccessToken string `json:"lineAccessToken" validate:"required,max=4096"`
	LineIDToken     string `json:"lineIdToken" validate:"required,max=8192"`
	TenantHint      string `json:"tenantHint" validate:"omitempty,max=128"`
}

type employeeLoginRequest struct {
	tokenExchangeRequest
	StoreID string `json:"storeId" validate:"omitempty,max=128"`
}

type userView struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
	PhotoURL    string `json:"photoUrl,omitempty"`
	Role        string `json:"role"`
}

func viewOf(u accounts.User) userView {
	return userView{ID: u.ID, TenantID: u.TenantID, DisplayName: u.DisplayName, Email: u.Email, PhotoURL: u.PhotoURL, Role: u.Role}
}

type Handler struct {
	svc      *federation.Service
	nonces   NonceStore
	allowed  []string
	stateTTL time.Duration
	log      *zap.SugaredLogger
}

func NewHandler(svc *federation.Service, nonces NonceStore, allowedOrigins []string, stateTTL time.Duration, log *zap.SugaredLogger) *Handler {
	if stateTTL <= 0 {
		stateTTL = 10 * time.Minute
	}
	return &Handler{svc: svc, nonces: nonces, allowed: allowedOrigins, stateTTL: stateTTL, log: log}
}

// login: GET /auth/line/login?redirect_uri&state&tenant_hint
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	redirect := q.Get("redirect_uri")
	if _, err := checkRedirect(redirect, h.allowed); err != nil {
		badRequest(w, err.Error())
		return
	}
	start, err := h.svc.StartLogin(ctx, q.Get("tenant_hint"), middleware.HostFrom(ctx))
	if err != nil {
		h.log.Infow("login start failed", "request_id", middleware.RequestIDFrom(ctx), "err", err)
		writeError(w, err)
		return
	}
	nonce := uuid.NewString()
	if err := h.nonces.Put(ctx, nonce, h.stateTTL); err != nil {
		h.log.Errorw("state nonce store failed", "err", err)
		writeError(w, err)
		return
	}
	state, err := encodeState(stateEnvelope{RedirectURI: redirect, State: q.Get("state"), TenantID: start.TenantID, Nonce: nonce})
	if err != nil {
		writeError(w, err)
		return
	}
	http.Redirect(w, r, h.svc.AuthorizationURL(start.Channel, state), http.StatusFound)
}

// callback: GET /auth/line/callback?code&state[&error&error_description]
func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	env, err := decodeState(q.Get("state"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	target, err := checkRedirect(env.RedirectURI, h.allowed)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	fail := func(code, desc string) {
		http.Redirect(w, r, withQuery(target, map[string]string{"error": code, "error_description": desc, "state": env.State}), http.StatusFound)
	}

	ok, err := h.nonces.Consume(ctx, env.Nonce)
	if err != nil {
		h.log.Errorw("state nonce lookup failed", "err", err)
		fail("server_error", "login state could not be checked")
		return
	}
	if !ok {
		h.log.Warnw("unknown or replayed login state", "tenant", env.TenantID, "request_id", middleware.RequestIDFrom(ctx))
		fail("invalid_state", "login state is unknown, expired or already used")
		return
	}
	if perr := q.Get("error"); perr != "" {
		fail(perr, q.Get("error_description"))
		return
	}
	tok, err := h.svc.ExchangeCode(ctx, env.TenantID, q.Get("code"))
	if err != nil {
		fe := federation.AsError(err)
		fail(string(fe.Code), fe.Message)
		return
	}
	http.Redirect(w, r, withQuery(target, map[string]string{
		"access_token": tok.AccessToken,
		"id_token":     tok.IDToken,
		"state":        env.State,
	}), http.StatusFound)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	if err := dec.Decode(dst); err != nil {
		badRequest(w, "request body must be a JSON object")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			badRequest(w, "invalid field "+lowerFirst(ve[0].Field()))
			return false
		}
		badRequest(w, err.Error())
		return false
	}
	return true
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// tokenExchange: POST /auth/line/token-exchange
func (h *Handler) tokenExchange(w http.ResponseWriter, r *http.Request) {
	var req tokenExchangeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.svc.TokenExchange(r.Context(), federation.Credentials{
		AccessToken: req.LineAccessToken,
		IDToken:     req.LineIDToken,
		TenantHint:  req.TenantHint,
		Host:        middleware.HostFrom(r.Context()),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, map[string]any{
		"customToken": res.Token,
		"userId":      res.User.ID,
		"isNewUser":   res.IsNewUser,
		"user":        viewOf(res.User),
	})
}

// employeeLogin: POST /auth/employee-login
func (h *Handler) employeeLogin(w http.ResponseWriter, r *http.Request) {
	var req employeeLoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.svc.EmployeeLogin(r.Context(), federation.EmployeeCredentials{
		Credentials: federation.Credentials{
			AccessToken: req.LineAccessToken,
			IDToken:     req.LineIDToken,
			TenantHint:  req.TenantHint,
			Host:        middleware.HostFrom(r.Context()),
		},
		StoreID: req.StoreID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if res.RequireStoreSelection {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success":               false,
			"requireStoreSelection": true,
			"storeIds":              res.StoreIDs,
		})
		return
	}
	writeData(w, map[string]any{
		"customToken": res.Token,
		"userId":      res.User.ID,
		"employeeId":  res.EmployeeID,
		"storeId":     res.StoreID,
		"role":        res.Role,
	})
}

// sessionInfo: GET /auth/session
func (h *Handler) sessionInfo(w http.ResponseWriter, r *http.Request) {
	s, _ := middleware.SessionFrom(r.Context())
	data := map[string]any{
		"userId":    s.UserID,
		"tenantId":  s.Claims.TenantID,
		"role":      s.Claims.Role,
		"expiresAt": s.ExpiresAt.UTC().Format(time.RFC3339),
	}
	if s.Claims.EmployeeID != "" {
		data["employeeId"] = s.Claims.EmployeeID
		data["storeId"] = s.Claims.StoreID
	}
	writeData(w, data)
}
