package verify

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTTL is the validity window of a verification API token. Tokens are
// signed per request, so the window only needs to cover clock skew plus
// the request itself.
const TokenTTL = 5 * time.Minute

// TokenSource mints short-lived HS256 bearer tokens for the verification
// service from a shared signing key.
type TokenSource struct {
	key []byte
	// now is swapped in tests for deterministic claims.
	now func() time.Time
}

func NewTokenSource(key []byte) *TokenSource {
	return &TokenSource{key: key, now: time.Now}
}

// Token returns a freshly signed bearer token.
func (t *TokenSource) Token() (string, error) {
	now := t.now()
	claims := jwt.RegisteredClaims{
		Issuer:    "mediavault",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
}
