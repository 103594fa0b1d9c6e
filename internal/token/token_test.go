package token

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/provsalt/eldercare/internal/models"
)

var testSecret = []byte("test_signing_secret_for_unit_tests")

func TestIssueVerifyRoundTrip(t *testing.T) {
	req := require.New(t)
	issuer := NewIssuer(testSecret, time.Hour)

	userID := uuid.New()
	tok, err := issuer.Issue(userID, models.RoleAdmin)
	req.NoError(err)
	req.NotEmpty(tok)

	identity, err := issuer.Verify(tok)
	req.NoError(err)
	req.Equal(userID, identity.UserID)
	req.Equal(models.RoleAdmin, identity.Role)
}

func TestVerifyExpiredToken(t *testing.T) {
	req := require.New(t)

	// Negative TTL yields an already-expired token with a valid signature.
	issuer := NewIssuer(testSecret, -time.Minute)
	tok, err := issuer.Issue(uuid.New(), models.RoleUser)
	req.NoError(err)

	_, err = issuer.Verify(tok)
	req.ErrorIs(err, ErrInvalidToken)
}

func TestVerifyWrongSecret(t *testing.T) {
	req := require.New(t)

	issuer := NewIssuer(testSecret, time.Hour)
	tok, err := issuer.Issue(uuid.New(), models.RoleUser)
	req.NoError(err)

	other := NewIssuer([]byte("a_completely_different_secret"), time.Hour)
	_, err = other.Verify(tok)
	req.ErrorIs(err, ErrInvalidToken)
}

func TestVerifyMalformedToken(t *testing.T) {
	issuer := NewIssuer(testSecret, time.Hour)

	for _, tok := range []string{"", "garbage", "a.b.c", "eyJhbGciOiJub25lIn0.e30."} {
		_, err := issuer.Verify(tok)
		require.ErrorIs(t, err, ErrInvalidToken, "token %q", tok)
	}
}
