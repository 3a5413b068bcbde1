package line

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
)

// Channel is one LINE Login channel, resolved per tenant.
type Channel struct {
	ID          string
	Secret      string
	RedirectURI string
}

// Endpoints are the provider URLs. Overridable so tests can point at httptest servers.
type Endpoints struct {
	AuthorizeURL string
	TokenURL     string
	VerifyURL    string
	Issuer       string
}

var DefaultEndpoints = Endpoints{
	AuthorizeURL: "https://access.line.me/oauth2/v2.1/authorize",
	TokenURL:     "https://api.line.me/oauth2/v2.1/token",
	VerifyURL:    "https://api.line.me/oauth2/v2.1/verify",
	Issuer:       "https://access.line.me",
}

// Scopes requested on every authorization.
var Scopes = []string{"profile", "openid", "email"}

const (
	// ClockSkew tolerated when checking identity token time claims.
	ClockSkew      = 30 * time.Second
	defaultTimeout = 5 * time.Second
)

type Config struct {
	Endpoints  Endpoints
	Timeout    time.Duration
	HTTPClient *http.Client
	// Clock overrides time.Now for token validation.
	Clock func() time.Time
	// Observe receives the duration of each outbound call ("exchange", "introspect").
	Observe func(call string, took time.Duration)
}

type Client struct {
	endpoints  Endpoints
	timeout    time.Duration
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[any]
	clock      func() time.Time
	observe    func(string, time.Duration)
}

func NewClient(cfg Config) *Client {
	ep := cfg.Endpoints
	if ep.AuthorizeURL == "" {
		ep.AuthorizeURL = DefaultEndpoints.AuthorizeURL
	}
	if ep.TokenURL == "" {
		ep.TokenURL = DefaultEndpoints.TokenURL
	}
	if ep.VerifyURL == "" {
		ep.VerifyURL = DefaultEndpoints.VerifyURL
	}
	if ep.Issuer == "" {
		ep.Issuer = DefaultEndpoints.Issuer
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	observe := cfg.Observe
	if observe == nil {
		observe = func(string, time.Duration) {}
	}
	return &Client{
		endpoints:  ep,
		timeout:    timeout,
		httpClient: hc,
		clock:      clock,
		observe:    observe,
		breaker: gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
			Name:        "line",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// Provider rejections are answers, not outages.
			IsSuccessful: func(err error) bool {
				var pe *ProviderError
				return err == nil || errors.As(err, &pe)
			},
		}),
	}
}

// Issuer is the fixed iss value of LINE identity tokens.
func (c *Client) Issuer() string { return c.endpoints.Issuer }

func (c *Client) oauth2Config(ch Channel) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     ch.ID,
		ClientSecret: ch.Secret,
		RedirectURL:  ch.RedirectURI,
		Scopes:       Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.endpoints.AuthorizeURL,
			TokenURL:  c.endpoints.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AuthorizationURL builds the redirect that starts the authorization-code flow. state is echoed verbatim.
func (c *Client) AuthorizationURL(ch Channel, state string) string {
	return c.oauth2Config(ch).AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "consent"))
}

// call runs fn under the breaker and the outbound timeout.
func (c *Client) call(ctx context.Context, name string, fn func(ctx context.Context) (any, error)) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()
	defer func() { c.observe(name, time.Since(start)) }()
	out, err := c.breaker.Execute(func() (any, error) { return fn(ctx) })
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("line provider unavailable: %w", err)
	}
	return out, err
}
