// Package session mints and verifies the signed session credential handed to clients after a
// successful federation. The credential's subject is the internal user id and its "claims"
// object carries tenantId and role (plus employeeId/storeId for staff sessions).
package session

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const claimsKey = "claims"

// Claims are the custom claims embedded in a session credential.
type Claims struct {
	TenantID   string `json:"tenantId"`
	Role       string `json:"role"`
	EmployeeID string `json:"employeeId,omitempty"`
	StoreID    string `json:"storeId,omitempty"`
}

func (c Claims) asMap() map[string]any {
	m := map[string]any{"tenantId": c.TenantID, "role": c.Role}
	if c.EmployeeID != "" {
		m["employeeId"] = c.EmployeeID
	}
	if c.StoreID != "" {
		m["storeId"] = c.StoreID
	}
	return m
}

// Verified is a decoded, signature-checked credential.
type Verified struct {
	UserID    string
	Claims    Claims
	ExpiresAt time.Time
}

type Config struct {
	// Key is an HMAC secret (HS*) or a PEM private key (RS*/ES*).
	Key      []byte
	KeyFile  string
	Alg      string
	Issuer   string
	Audience string
	TTL      time.Duration
	Clock    func() time.Time
}

type Issuer struct {
	alg      jwa.SignatureAlgorithm
	signKey  jwk.Key
	verify   jwk.Key
	issuer   string
	audience string
	ttl      time.Duration
	clock    func() time.Time
}

func NewIssuer(cfg Config) (*Issuer, error) {
	raw := cfg.Key
	if len(raw) == 0 && cfg.KeyFile != "" {
		b, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read session key: %w", err)
		}
		raw = b
	}
	if len(raw) == 0 {
		return nil, errors.New("session signing key is required")
	}
	alg := jwa.SignatureAlgorithm(cfg.Alg)
	if cfg.Alg == "" {
		alg = jwa.HS256
	}
	var (
		key jwk.Key
		err error
	)
	switch alg {
	case jwa.HS256, jwa.HS384, jwa.HS512:
		if len(raw) < 32 {
			return nil, errors.New("HMAC session key must be at least 32 bytes")
		}
		key, err = jwk.FromRaw(raw)
	case jwa.RS256, jwa.RS384, jwa.RS512, jwa.ES256, jwa.ES384:
		key, err = jwk.ParseKey(raw, jwk.WithPEM(true))
	default:
		return nil, fmt.Errorf("unsupported session signing algorithm %q", cfg.Alg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse session key: %w", err)
	}
	verify := key
	if _, symmetric := key.(jwk.SymmetricKey); !symmetric {
		if verify, err = key.PublicKey(); err != nil {
			return nil, fmt.Errorf("derive public key: %w", err)
		}
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Issuer{alg: alg, signKey: key, verify: verify, issuer: cfg.Issuer, audience: cfg.Audience, ttl: ttl, clock: clock}, nil
}

// Mint signs a credential for userID carrying claims.
func (i *Issuer) Mint(userID string, c Claims) (string, error) {
	if userID == "" {
		return "", errors.New("session subject is required")
	}
	now := i.clock()
	tok, err := jwt.NewBuilder().
		Subject(userID).
		Issuer(i.issuer).
		Audience([]string{i.audience}).
		IssuedAt(now).
		Expiration(now.Add(i.ttl)).
		Claim("uid", userID).
		Claim(claimsKey, c.asMap()).
		Build()
	if err != nil {
		return "", fmt.Errorf("build session token: %w", err)
	}
	b, err := jwt.Sign(tok, jwt.WithKey(i.alg, i.signKey))
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return string(b), nil
}

// Verify checks signature, issuer, audience and expiry of a credential minted by Mint.
func (i *Issuer) Verify(raw string) (Verified, error) {
	tok, err := jwt.Parse([]byte(raw),
		jwt.WithKey(i.alg, i.verify),
		jwt.WithValidate(true),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithClock(jwt.ClockFunc(i.clock)),
	)
	if err != nil {
		return Verified{}, fmt.Errorf("invalid session token: %w", err)
	}
	v := Verified{UserID: tok.Subject(), ExpiresAt: tok.Expiration()}
	if m, ok := tok.Get(claimsKey); ok {
		if cm, ok := m.(map[string]any); ok {
			v.Claims.TenantID, _ = cm["tenantId"].(string)
			v.Claims.Role, _ = cm["role"].(string)
			v.Claims.EmployeeID, _ = cm["employeeId"].(string)
			v.Claims.StoreID, _ = cm["storeId"].(string)
		}
	}
	return v, nil
}
