package line

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

var (
	ErrMalformedToken   = errors.New("identity token is not a well-formed signed token")
	ErrSignatureInvalid = errors.New("identity token signature invalid")
	ErrIssuerMismatch   = errors.New("identity token issuer mismatch")
	ErrAudienceMismatch = errors.New("identity token audience mismatch")
	ErrTokenExpired     = errors.New("identity token expired")
	ErrClaimValidation  = errors.New("identity token claim validation failed")
	ErrSubjectMissing   = errors.New("identity token has no subject")
)

// IDClaims is the verified assertion for one login attempt.
type IDClaims struct {
	Subject   string
	Name      string
	Picture   string
	Email     string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
}

// VerifyIDToken checks an HS256 identity token against the channel secret and validates
// iss, aud and exp (with ClockSkew). Each failure maps to exactly one sentinel error.
func (c *Client) VerifyIDToken(raw string, ch Channel) (IDClaims, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return IDClaims{}, ErrMalformedToken
	}
	msg, err := jws.Parse([]byte(raw))
	if err != nil || len(msg.Signatures()) != 1 {
		return IDClaims{}, ErrMalformedToken
	}
	if alg := msg.Signatures()[0].ProtectedHeaders().Algorithm(); alg != jwa.HS256 {
		return IDClaims{}, ErrSignatureInvalid
	}
	if _, err := jws.Verify([]byte(raw), jws.WithKey(jwa.HS256, []byte(ch.Secret))); err != nil {
		return IDClaims{}, ErrSignatureInvalid
	}

	tok, err := jwt.Parse([]byte(raw), jwt.WithVerify(false), jwt.WithValidate(false))
	if err != nil {
		return IDClaims{}, errors.Join(ErrClaimValidation, err)
	}
	if tok.Issuer() != c.endpoints.Issuer {
		return IDClaims{}, ErrIssuerMismatch
	}
	if !slices.Contains(tok.Audience(), ch.ID) {
		return IDClaims{}, ErrAudienceMismatch
	}
	if tok.Expiration().IsZero() {
		return IDClaims{}, errors.Join(ErrClaimValidation, errors.New("exp claim missing"))
	}
	err = jwt.Validate(tok,
		jwt.WithClock(jwt.ClockFunc(c.clock)),
		jwt.WithAcceptableSkew(ClockSkew),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired()) {
			return IDClaims{}, ErrTokenExpired
		}
		return IDClaims{}, errors.Join(ErrClaimValidation, err)
	}
	if tok.Subject() == "" {
		return IDClaims{}, ErrSubjectMissing
	}
	return IDClaims{
		Subject:   tok.Subject(),
		Name:      stringClaim(tok, "name"),
		Picture:   stringClaim(tok, "picture"),
		Email:     stringClaim(tok, "email"),
		Issuer:    tok.Issuer(),
		Audience:  tok.Audience(),
		ExpiresAt: tok.Expiration(),
	}, nil
}

func stringClaim(tok jwt.Token, name string) string {
	v, ok := tok.Get(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
