package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/BaSui01/flowroute/types"
)

// TokenIssuer signs and verifies per-session HMAC tokens. Tokens carry the
// session id as subject and inherit the session's absolute expiry, so a
// token can never outlive its session.
type TokenIssuer struct {
	secret []byte
}

// NewTokenIssuer creates an issuer. An empty secret disables tokens: Issue
// returns an empty string and Verify rejects everything.
func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret)}
}

// Enabled reports whether a signing secret is configured.
func (t *TokenIssuer) Enabled() bool {
	return len(t.secret) > 0
}

// Issue signs a token for the session.
func (t *TokenIssuer) Issue(sessionID string, expiresAt time.Time) (string, error) {
	if !t.Enabled() {
		return "", nil
	}
	claims := jwt.RegisteredClaims{
		Subject:   sessionID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", types.NewError(types.ErrInternalError, "sign session token").WithCause(err).WithSession(sessionID)
	}
	return signed, nil
}

// Verify validates the token signature and expiry and returns the session id.
func (t *TokenIssuer) Verify(token string) (string, error) {
	if !t.Enabled() {
		return "", types.NewError(types.ErrSecurityEscalation, "session tokens are not configured")
	}
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, types.NewError(types.ErrSecurityEscalation, "unexpected token signing method")
		}
		return t.secret, nil
	})
	if err != nil {
		return "", types.NewError(types.ErrSecurityEscalation, "invalid session token").WithCause(err)
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", types.NewError(types.ErrSecurityEscalation, "session token has no subject")
	}
	return claims.Subject, nil
}
