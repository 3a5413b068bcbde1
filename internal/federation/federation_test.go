package federation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"lineauth/internal/line"
	"lineauth/internal/policy"
	"lineauth/internal/session"
	"lineauth/pkg/accounts"
	"lineauth/pkg/tenants"
)

const (
	acmeID   = "11111111-1111-4111-8111-111111111111"
	globexID = "22222222-2222-4222-8222-222222222222"
)

var testSeed = tenants.Seed{
	Tenants: []tenants.Tenant{
		{ID: acmeID, Code: "acme", Name: "Acme Diner", Subdomain: "acme", LineChannelID: "acme-ch", LineChannelSecret: "acme-secret", LineRedirectURI: "https://acme.example.com/cb"},
		{ID: globexID, Code: "globex", Name: "Globex Grill", Subdomain: "globex"},
	},
	System: tenants.SystemDefaults{LineChannelID: "sys-ch", LineChannelSecret: "sys-secret", LineRedirectURI: "https://auth.example.com/cb"},
}

// fakeLine answers VerifyIDToken from a table keyed by raw token.
type fakeLine struct {
	claims        map[string]line.IDClaims
	verifyErr     error
	introspectErr error
	introspected  int
	exchange      func(ch line.Channel, code string) (line.Tokens, error)
}

func (f *fakeLine) AuthorizationURL(ch line.Channel, state string) string {
	return "https://line.test/authorize?client_id=" + ch.ID + "&state=" + state
}

func (f *fakeLine) Exchange(_ context.Context, ch line.Channel, code string) (line.Tokens, error) {
	return f.exchange(ch, code)
}

func (f *fakeLine) VerifyIDToken(raw string, ch line.Channel) (line.IDClaims, error) {
	if f.verifyErr != nil {
		return line.IDClaims{}, f.verifyErr
	}
	c, ok := f.claims[raw]
	if !ok {
		return line.IDClaims{}, line.ErrSignatureInvalid
	}
	c.Audience = []string{ch.ID}
	return c, nil
}

func (f *fakeLine) Introspect(context.Context, string, string) error {
	f.introspected++
	return f.introspectErr
}

// countingUsers records SetClaims writes.
type countingUsers struct {
	accounts.Users
	setClaims int
}

func (c *countingUsers) SetClaims(ctx context.Context, id, tenantID, role string) error {
	c.setClaims++
	return c.Users.SetClaims(ctx, id, tenantID, role)
}

type fixture struct {
	svc      *Service
	users    *accounts.Memory
	counting *countingUsers
	line     *fakeLine
	sessions *session.Issuer
	reg      *prometheus.Registry
}

func newFixture(t *testing.T, moves policy.TenantMove) *fixture {
	t.Helper()
	users := accounts.NewMemory(accounts.Seed{})
	counting := &countingUsers{Users: users}
	fl := &fakeLine{claims: map[string]line.IDClaims{
		"IDT1": {Subject: "U123", Name: "Hana", Picture: "https://pic/1", Email: "hana@example.com"},
		"IDT2": {Subject: "U456"},
	}}
	iss, err := session.NewIssuer(session.Config{Key: []byte("0123456789abcdef0123456789abcdef"), Issuer: "lineauth", Audience: "restaurant", TTL: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	reg := prometheus.NewRegistry()
	svc := New(Options{
		Tenants:    tenants.NewMemoryProvider(zap.NewNop().Sugar(), testSeed),
		Users:      counting,
		Staff:      users,
		Provider:   fl,
		Sessions:   iss,
		TenantMove: moves,
		Metrics:    NewMetrics(reg),
		Introspect: true,
	})
	return &fixture{svc: svc, users: users, counting: counting, line: fl, sessions: iss, reg: reg}
}

func codeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

func TestResolverTenant(t *testing.T) {
	dir := tenants.NewMemoryProvider(zap.NewNop().Sugar(), tenants.Seed{Tenants: testSeed.Tenants})
	withDefault := tenants.WithFallbackDefaults(dir, tenants.SystemDefaults{DefaultTenantID: globexID})
	cases := []struct {
		name string
		dir  tenants.Provider
		hint string
		host string
		want string
	}{
		{"uuid hint used verbatim", dir, "33333333-3333-4333-8333-333333333333", "acme.example.com", "33333333-3333-4333-8333-333333333333"},
		{"code", dir, "acme", "", acmeID},
		{"name", dir, "Globex Grill", "", globexID},
		{"code beats host", dir, "globex", "acme.example.com", globexID},
		{"subdomain", dir, "", "acme.example.com:8443", acmeID},
		{"unknown hint falls to subdomain", dir, "nope", "globex.example.com", globexID},
		{"reserved label", withDefault, "", "www.example.com", globexID},
		{"api label", dir, "", "api.example.com", ""},
		{"ip host", dir, "", "10.0.0.1:8080", ""},
		{"single label host", dir, "", "localhost", ""},
		{"default", withDefault, "", "", globexID},
		{"nothing", dir, "", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewResolver(tc.dir, zap.NewNop().Sugar())
			got, err := r.Tenant(context.Background(), tc.hint, tc.host)
			if tc.want == "" {
				if codeOf(err) != CodeTenantUnresolved {
					t.Fatalf("got %q, %v; want TenantUnresolved", got, err)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Fatalf("got %q, %v; want %q", got, err, tc.want)
			}
		})
	}
}

func TestUnresolvedHintScenario(t *testing.T) {
	r := NewResolver(tenants.NewMemoryProvider(zap.NewNop().Sugar(), tenants.Seed{}), zap.NewNop().Sugar())
	_, err := r.Tenant(context.Background(), "acme", "")
	fe := AsError(err)
	if fe.Code != CodeTenantUnresolved || fe.Status != http.StatusBadRequest {
		t.Fatalf("got %+v", fe)
	}
}

func TestResolverChannel(t *testing.T) {
	r := NewResolver(tenants.NewMemoryProvider(zap.NewNop().Sugar(), testSeed), zap.NewNop().Sugar())
	ctx := context.Background()

	ch, err := r.Channel(ctx, acmeID)
	if err != nil || ch.ID != "acme-ch" || ch.Secret != "acme-secret" {
		t.Fatalf("tenant channel: %+v, %v", ch, err)
	}
	ch, err = r.Channel(ctx, globexID)
	if err != nil || ch.ID != "sys-ch" || ch.RedirectURI != "https://auth.example.com/cb" {
		t.Fatalf("backfilled channel: %+v, %v", ch, err)
	}

	bare := NewResolver(tenants.NewMemoryProvider(zap.NewNop().Sugar(), tenants.Seed{Tenants: testSeed.Tenants[1:]}), zap.NewNop().Sugar())
	_, err = bare.Channel(ctx, globexID)
	if fe := AsError(err); fe.Code != CodeConfigurationIncomplete || fe.Status != http.StatusInternalServerError {
		t.Fatalf("got %+v", fe)
	}
}

func TestTokenExchangeCreatesAccount(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.TokenExchange(ctx, Credentials{AccessToken: "AT1", IDToken: "IDT1", TenantHint: "acme"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsNewUser || res.User.ID == "" {
		t.Fatalf("unexpected %+v", res)
	}
	u := res.User
	if u.TenantID != acmeID || u.Role != RoleCustomer || u.LineSubject != "U123" || u.DisplayName != "Hana" {
		t.Fatalf("unexpected user %+v", u)
	}
	if u.Email != "hana@example.com" || u.EmailVerified {
		t.Fatalf("email should be stored unverified: %+v", u)
	}
	if f.line.introspected != 1 {
		t.Fatalf("introspected %d times", f.line.introspected)
	}
	if f.counting.setClaims != 0 {
		t.Fatalf("new account should not need a claims write, got %d", f.counting.setClaims)
	}

	v, err := f.sessions.Verify(res.Token)
	if err != nil {
		t.Fatal(err)
	}
	if v.UserID != u.ID || v.Claims.TenantID != acmeID || v.Claims.Role != RoleCustomer {
		t.Fatalf("session claims %+v", v)
	}
	if got := testutil.ToFloat64(f.svc.metrics.logins.WithLabelValues("consumer", "success")); got != 1 {
		t.Fatalf("success counter %v", got)
	}
}

func TestReloginIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	cr := Credentials{AccessToken: "AT1", IDToken: "IDT1", TenantHint: acmeID}

	first, err := f.svc.TokenExchange(ctx, cr)
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.svc.TokenExchange(ctx, cr)
	if err != nil {
		t.Fatal(err)
	}
	if second.IsNewUser || second.User.ID != first.User.ID {
		t.Fatalf("second login %+v", second)
	}
	if n := f.users.Count(); n != 1 {
		t.Fatalf("accounts = %d", n)
	}
	if f.counting.setClaims != 0 {
		t.Fatalf("unchanged claims were rewritten %d times", f.counting.setClaims)
	}
}

func TestPlaceholderNameAndProfileRefresh(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	cr := Credentials{AccessToken: "AT", IDToken: "IDT2", TenantHint: "acme"}
	res, err := f.svc.TokenExchange(ctx, cr)
	if err != nil {
		t.Fatal(err)
	}
	if res.User.DisplayName != "LINE User U456" || res.User.Email != "" {
		t.Fatalf("unexpected %+v", res.User)
	}

	f.line.claims["IDT2"] = line.IDClaims{Subject: "U456", Name: "Kenji", Picture: "https://pic/k"}
	res, err = f.svc.TokenExchange(ctx, cr)
	if err != nil {
		t.Fatal(err)
	}
	stored, _ := f.users.Get(ctx, res.User.ID)
	if stored.DisplayName != "Kenji" || stored.PhotoURL != "https://pic/k" || res.User.DisplayName != "Kenji" {
		t.Fatalf("profile not refreshed: %+v", stored)
	}
	if placeholderName("Uabcdefghijkl") != "LINE User Uabcdefg" {
		t.Fatal(placeholderName("Uabcdefghijkl"))
	}
}

func TestEmailAlreadyLinked(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if _, err := f.users.Create(ctx, accounts.NewUser{Email: "HANA@example.com", TenantID: acmeID, Role: RoleCustomer}); err != nil {
		t.Fatal(err)
	}
	_, err := f.svc.TokenExchange(ctx, Credentials{AccessToken: "AT1", IDToken: "IDT1", TenantHint: "acme"})
	fe := AsError(err)
	if fe.Code != CodeEmailAlreadyLinked || fe.Status != http.StatusConflict || fe.Message != "hana@example.com" {
		t.Fatalf("got %+v", fe)
	}
}

// racingUsers hides existing subjects from lookups, as a concurrent first login would see them.
type racingUsers struct{ accounts.Users }

func (racingUsers) FindBySubject(context.Context, string) (accounts.User, error) {
	return accounts.User{}, accounts.ErrNotFound
}

func TestCreationRaceIsRetryable(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if _, err := f.svc.TokenExchange(ctx, Credentials{AccessToken: "AT", IDToken: "IDT2", TenantHint: "acme"}); err != nil {
		t.Fatal(err)
	}
	f.svc.users = racingUsers{f.users}
	_, err := f.svc.TokenExchange(ctx, Credentials{AccessToken: "AT", IDToken: "IDT2", TenantHint: "acme"})
	fe := AsError(err)
	if fe.Code != CodeAccountCreationFailed || !fe.Retryable || fe.Status != http.StatusInternalServerError {
		t.Fatalf("got %+v", fe)
	}
	if f.users.Count() != 1 {
		t.Fatalf("accounts = %d", f.users.Count())
	}
}

func TestTokenFailuresMapToCodes(t *testing.T) {
	cases := []struct {
		name       string
		verifyErr  error
		introspect error
		want       Code
		status     int
	}{
		{"expired", line.ErrTokenExpired, nil, CodeTokenExpired, 401},
		{"signature", line.ErrSignatureInvalid, nil, CodeSignatureInvalid, 401},
		{"issuer", line.ErrIssuerMismatch, nil, CodeIssuerMismatch, 401},
		{"audience", line.ErrAudienceMismatch, nil, CodeAudienceMismatch, 401},
		{"malformed", line.ErrMalformedToken, nil, CodeMalformedToken, 401},
		{"subject", line.ErrSubjectMissing, nil, CodeSubjectMissing, 401},
		{"claims", errors.Join(line.ErrClaimValidation, errors.New("bad nbf")), nil, CodeClaimValidationFailed, 401},
		{"access token", nil, fmt.Errorf("%w: client_id mismatch", line.ErrAccessTokenInvalid), CodeAccessTokenInvalid, 401},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.line.verifyErr = tc.verifyErr
			f.line.introspectErr = tc.introspect
			_, err := f.svc.TokenExchange(context.Background(), Credentials{AccessToken: "AT1", IDToken: "IDT1", TenantHint: "acme"})
			fe := AsError(err)
			if fe.Code != tc.want || fe.Status != tc.status {
				t.Fatalf("got %+v", fe)
			}
			if f.users.Count() != 0 {
				t.Fatal("account created despite failure")
			}
		})
	}
}

func TestMissingTokensRejected(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.TokenExchange(context.Background(), Credentials{IDToken: "IDT1"})
	if codeOf(err) != CodeInvalidRequest {
		t.Fatalf("got %v", err)
	}
}

func TestTenantMovePolicies(t *testing.T) {
	cases := []struct {
		name       string
		policy     policy.TenantMove
		wantTenant string
		wantCode   Code
	}{
		{"overwrite", policy.Static(policy.Overwrite), globexID, ""},
		{"keep", policy.Static(policy.Keep), acmeID, ""},
		{"reject", policy.Static(policy.Reject), "", CodeTenantMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.policy)
			ctx := context.Background()
			if _, err := f.svc.TokenExchange(ctx, Credentials{AccessToken: "AT1", IDToken: "IDT1", TenantHint: "acme"}); err != nil {
				t.Fatal(err)
			}
			res, err := f.svc.TokenExchange(ctx, Credentials{AccessToken: "AT1", IDToken: "IDT1", TenantHint: "globex"})
			if tc.wantCode != "" {
				if fe := AsError(err); fe.Code != tc.wantCode || fe.Status != http.StatusForbidden {
					t.Fatalf("got %+v", fe)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			v, _ := f.sessions.Verify(res.Token)
			stored, _ := f.users.Get(ctx, res.User.ID)
			if stored.TenantID != tc.wantTenant || v.Claims.TenantID != tc.wantTenant {
				t.Fatalf("stored %q, session %q, want %q", stored.TenantID, v.Claims.TenantID, tc.wantTenant)
			}
		})
	}
}

func TestExchangeCode(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.line.exchange = func(ch line.Channel, code string) (line.Tokens, error) {
		switch code {
		case "good":
			if ch.ID != "acme-ch" {
				return line.Tokens{}, fmt.Errorf("wrong channel %s", ch.ID)
			}
			return line.Tokens{AccessToken: "AT1", IDToken: "IDT1"}, nil
		case "stale":
			return line.Tokens{}, &line.ProviderError{Code: "invalid_grant", Description: "code expired", Status: 400}
		default:
			return line.Tokens{}, errors.New("dial tcp: connection refused")
		}
	}

	tok, err := f.svc.ExchangeCode(ctx, acmeID, "good")
	if err != nil || tok.AccessToken != "AT1" || tok.IDToken != "IDT1" {
		t.Fatalf("got %+v, %v", tok, err)
	}

	_, err = f.svc.ExchangeCode(ctx, acmeID, "stale")
	fe := AsError(err)
	if fe.Code != CodeTokenExchangeFailed || fe.Status != http.StatusUnauthorized || fe.Error() != "TokenExchangeFailed: invalid_grant - code expired" {
		t.Fatalf("provider error: %+v", fe)
	}

	_, err = f.svc.ExchangeCode(ctx, acmeID, "down")
	if fe := AsError(err); fe.Status != http.StatusBadGateway || fe.Error() != "TokenExchangeFailed: dial tcp: connection refused" {
		t.Fatalf("transport error: %+v", fe)
	}

	if _, err := f.svc.ExchangeCode(ctx, acmeID, ""); codeOf(err) != CodeInvalidRequest {
		t.Fatalf("empty code: %v", err)
	}
}

func TestStartLogin(t *testing.T) {
	f := newFixture(t, nil)
	start, err := f.svc.StartLogin(context.Background(), "", "acme.example.com")
	if err != nil {
		t.Fatal(err)
	}
	if start.TenantID != acmeID || start.Channel.ID != "acme-ch" {
		t.Fatalf("got %+v", start)
	}
}

func TestUnregisteredTenantIDStillCreatesAccount(t *testing.T) {
	const orphanID = "33333333-3333-4333-8333-333333333333"
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.TokenExchange(ctx, Credentials{AccessToken: "AT1", IDToken: "IDT1", TenantHint: orphanID})
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsNewUser || res.User.TenantID != orphanID {
		t.Fatalf("unexpected %+v", res)
	}

	// Moving to a registered tenant and back must not fail on the orphan id either.
	if _, err := f.svc.TokenExchange(ctx, Credentials{AccessToken: "AT1", IDToken: "IDT1", TenantHint: "acme"}); err != nil {
		t.Fatal(err)
	}
	res, err = f.svc.TokenExchange(ctx, Credentials{AccessToken: "AT1", IDToken: "IDT1", TenantHint: orphanID})
	if err != nil {
		t.Fatal(err)
	}
	if res.User.TenantID != orphanID {
		t.Fatalf("tenant %q", res.User.TenantID)
	}
}
