package infra

import (
	"github.com/golang-jwt/jwt/v5"

	"accessrl/middleware/ratelimit/domain"
)

// jwtPrincipal adapts an already-validated JWT's claim set onto
// domain.Principal. Validation (signature, expiry, issuer) is the
// upstream auth middleware's job, out of scope for this module (spec
// §1); this type only exposes claims to the Key Resolver Pipeline's
// "user"/"sub"/"claim:<type>" resolvers.
type jwtPrincipal struct {
	claims jwt.MapClaims
}

// NewJWTPrincipal wraps validated claims as a domain.Principal.
func NewJWTPrincipal(claims jwt.MapClaims) domain.Principal {
	return jwtPrincipal{claims: claims}
}

func (p jwtPrincipal) IsAuthenticated() bool {
	return len(p.claims) > 0
}

// nameIdentifierAliases holds the claim types accepted in addition to
// "nameid" when a caller asks for the NameIdentifier-equivalent claim:
// "uid" is the short form several identity providers (and the spec's
// own vocabulary) use interchangeably with "nameid".
var nameIdentifierAliases = []string{"uid"}

func (p jwtPrincipal) Claim(claimType string) (string, bool) {
	if s, ok := p.claim(claimType); ok {
		return s, true
	}
	if claimType == "nameid" {
		for _, alias := range nameIdentifierAliases {
			if s, ok := p.claim(alias); ok {
				return s, true
			}
		}
	}
	return "", false
}

func (p jwtPrincipal) claim(claimType string) (string, bool) {
	v, ok := p.claims[claimType]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// ParseJWTPrincipal parses and validates tokenString with keyFunc (the
// standard golang-jwt verification callback: inspect the token's
// declared algorithm/kid and return the matching key) and, on success,
// returns a domain.Principal over its claims.
func ParseJWTPrincipal(tokenString string, keyFunc jwt.Keyfunc) (domain.Principal, error) {
	token, err := jwt.Parse(tokenString, keyFunc, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512", "RS256", "RS384", "RS512"}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return NewJWTPrincipal(claims), nil
}

var _ domain.Principal = jwtPrincipal{}
