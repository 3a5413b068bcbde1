// Package federation turns a LINE login into an internal account and session credential for the
// tenant the request belongs to.
package federation

import (
	"context"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"lineauth/internal/line"
	"lineauth/internal/policy"
	"lineauth/internal/session"
	"lineauth/pkg/accounts"
	"lineauth/pkg/tenants"
)

// Provider is the subset of *line.Client the pipeline drives.
type Provider interface {
	AuthorizationURL(ch line.Channel, state string) string
	Exchange(ctx context.Context, ch line.Channel, code string) (line.Tokens, error)
	VerifyIDToken(raw string, ch line.Channel) (line.IDClaims, error)
	Introspect(ctx context.Context, accessToken, channelID string) error
}

type Minter interface {
	Mint(userID string, c session.Claims) (string, error)
}

type Options struct {
	Tenants  tenants.Provider
	Users    accounts.Users
	Staff    accounts.Staff
	Provider Provider
	Sessions Minter
	// TenantMove defaults to policy.Static(policy.Overwrite).
	TenantMove policy.TenantMove
	Metrics    *Metrics
	// Introspect enables the access-token check against LINE's verify endpoint.
	Introspect bool
	Log        *zap.SugaredLogger
}

type Service struct {
	resolver   *Resolver
	users      accounts.Users
	staff      accounts.Staff
	provider   Provider
	sessions   Minter
	moves      policy.TenantMove
	metrics    *Metrics
	introspect bool
	log        *zap.SugaredLogger
	tracer     trace.Tracer
}

func New(o Options) *Service {
	log := o.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	moves := o.TenantMove
	if moves == nil {
		moves = policy.Static(policy.Overwrite)
	}
	return &Service{
		resolver:   NewResolver(o.Tenants, log),
		users:      o.Users,
		staff:      o.Staff,
		provider:   o.Provider,
		sessions:   o.Sessions,
		moves:      moves,
		metrics:    o.Metrics,
		introspect: o.Introspect,
		log:        log,
		tracer:     otel.Tracer("lineauth/federation"),
	}
}

// LoginStart is what the browser redirect needs once the tenant is known.
type LoginStart struct {
	TenantID string
	Channel  line.Channel
}

// StartLogin resolves the tenant and its channel for the authorization redirect.
func (s *Service) StartLogin(ctx context.Context, hint, host string) (LoginStart, error) {
	tenantID, err := s.resolver.Tenant(ctx, hint, host)
	if err != nil {
		return LoginStart{}, err
	}
	ch, err := s.resolver.Channel(ctx, tenantID)
	if err != nil {
		return LoginStart{}, err
	}
	return LoginStart{TenantID: tenantID, Channel: ch}, nil
}

func (s *Service) AuthorizationURL(ch line.Channel, state string) string {
	return s.provider.AuthorizationURL(ch, state)
}

// ExchangeCode trades an authorization code using the channel of tenantID.
func (s *Service) ExchangeCode(ctx context.Context, tenantID, code string) (tok line.Tokens, err error) {
	ctx, span := s.tracer.Start(ctx, "federation.ExchangeCode", trace.WithAttributes(attribute.String("tenant.id", tenantID)))
	defer func() { endSpan(span, err); s.metrics.login("callback", err) }()

	if strings.TrimSpace(code) == "" {
		return line.Tokens{}, newError(CodeInvalidRequest, http.StatusBadRequest, nil, "authorization code is required")
	}
	ch, err := s.resolver.Channel(ctx, tenantID)
	if err != nil {
		return line.Tokens{}, err
	}
	tok, err = s.provider.Exchange(ctx, ch, code)
	if err != nil {
		fe := exchangeError(err)
		s.log.Warnw("code exchange failed", "tenant", tenantID, "status", fe.Status, "err", fe.Message)
		return line.Tokens{}, fe
	}
	return tok, nil
}

// Credentials are the LINE tokens a client presents to log in.
type Credentials struct {
	AccessToken string
	IDToken     string
	TenantHint  string
	Host        string
}

// LoginResult is the success result of the consumer flow.
type LoginResult struct {
	Token     string
	User      accounts.User
	IsNewUser bool
}

// TokenExchange verifies client-held LINE tokens and issues a session for the linked account.
func (s *Service) TokenExchange(ctx context.Context, cr Credentials) (res LoginResult, err error) {
	ctx, span := s.tracer.Start(ctx, "federation.TokenExchange")
	defer func() { endSpan(span, err); s.metrics.login("consumer", err) }()

	id, err := s.authenticate(ctx, cr, "")
	if err != nil {
		return LoginResult{}, err
	}
	tok, err := s.mint(id.user, session.Claims{TenantID: id.user.TenantID, Role: id.user.Role})
	if err != nil {
		return LoginResult{}, err
	}
	s.log.Infow("line login", "tenant", id.user.TenantID, "user", id.user.ID, "new", id.isNew)
	return LoginResult{Token: tok, User: id.user, IsNewUser: id.isNew}, nil
}

type identity struct {
	user  accounts.User
	isNew bool
}

// authenticate runs tenant resolution, token verification, account linking and claims sync.
func (s *Service) authenticate(ctx context.Context, cr Credentials, role string) (identity, error) {
	if strings.TrimSpace(cr.AccessToken) == "" || strings.TrimSpace(cr.IDToken) == "" {
		return identity{}, newError(CodeInvalidRequest, http.StatusBadRequest, nil, "lineAccessToken and lineIdToken are required")
	}
	span := trace.SpanFromContext(ctx)

	tenantID, err := s.resolver.Tenant(ctx, cr.TenantHint, cr.Host)
	if err != nil {
		s.log.Infow("tenant unresolved", "hint", cr.TenantHint, "host", cr.Host)
		return identity{}, err
	}
	span.SetAttributes(attribute.String("tenant.id", tenantID))
	ch, err := s.resolver.Channel(ctx, tenantID)
	if err != nil {
		return identity{}, err
	}

	claims, err := s.provider.VerifyIDToken(cr.IDToken, ch)
	if err != nil {
		fe := verifyError(err)
		s.log.Warnw("identity token rejected", "tenant", tenantID, "code", fe.Code)
		return identity{}, fe
	}
	if s.introspect {
		if err := s.provider.Introspect(ctx, cr.AccessToken, ch.ID); err != nil {
			fe := introspectError(err)
			s.log.Warnw("access token rejected", "tenant", tenantID, "subject", claims.Subject, "err", fe.Message)
			return identity{}, fe
		}
	}

	u, isNew, err := s.link(ctx, tenantID, claims)
	if err != nil {
		s.log.Warnw("account link failed", "tenant", tenantID, "subject", claims.Subject, "err", err)
		return identity{}, err
	}
	u, err = s.syncClaims(ctx, u, tenantID, role)
	if err != nil {
		s.log.Warnw("claims sync failed", "tenant", tenantID, "user", u.ID, "err", err)
		return identity{}, err
	}
	span.SetAttributes(attribute.String("user.id", u.ID), attribute.Bool("user.new", isNew))
	return identity{user: u, isNew: isNew}, nil
}

func (s *Service) mint(u accounts.User, c session.Claims) (string, error) {
	tok, err := s.sessions.Mint(u.ID, c)
	if err != nil {
		return "", newError(CodeInternal, http.StatusInternalServerError, err, "could not issue session")
	}
	return tok, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		fe := AsError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(fe.Code))
	}
	span.End()
}
