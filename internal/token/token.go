// Package token issues and verifies the signed session tokens that carry
// a user's identity between requests. Tokens are stateless: nothing is
// persisted server-side, expiry is enforced on every verification.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/provsalt/eldercare/internal/models"
)

// ErrInvalidToken is returned for any token that fails verification:
// bad signature, malformed structure, wrong algorithm or past expiry.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the resolved subject of a verified token.
type Identity struct {
	UserID uuid.UUID
	Role   models.Role
}

// Claims is the JWT payload for a session token.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer creates and verifies session tokens with a process-wide secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

// NewIssuer creates an Issuer. ttl is the fixed expiry window applied to
// every issued token.
func NewIssuer(secret []byte, ttl time.Duration) *Issuer {
	return &Issuer{secret: secret, ttl: ttl, issuer: "eldercare"}
}

// Issue produces a signed token for the given subject and role.
func (i *Issuer) Issue(userID uuid.UUID, role models.Role) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID.String(),
		Role:   string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    i.issuer,
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(i.secret)
}

// Verify parses a token string and returns the identity encoded at issue
// time. It fails with ErrInvalidToken when the signature does not match,
// the structure is malformed, or the token has expired. Verification is a
// pure function over the token and the signing secret.
func (i *Issuer) Verify(tokenString string) (*Identity, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, ErrInvalidToken
	}

	return &Identity{UserID: userID, Role: models.Role(claims.Role)}, nil
}
