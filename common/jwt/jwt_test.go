package jwt

import (
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	SetSecret("test-secret")
}

func TestSessionTokenRoundTrip(t *testing.T) {
	tok, err := GenerateSessionToken("sess-1", "42", "admin@example.com", "ADMIN", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateSessionToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Equal(t, "42", claims.UserID)
	assert.Equal(t, "ADMIN", claims.Role)
}

func TestResetTokenIsNotASessionToken(t *testing.T) {
	tok, err := GenerateResetToken("a@b.com")
	require.NoError(t, err)

	_, err = ValidateSessionToken(tok)
	assert.ErrorIs(t, err, ErrWrongPurpose)

	assert.NoError(t, ValidateResetToken(tok, "a@b.com"))
	assert.ErrorIs(t, ValidateResetToken(tok, "c@d.com"), ErrEmailMismatch)
}

func TestValidateRejectsOtherSecret(t *testing.T) {
	tok, err := GenerateSessionToken("s", "1", "x@y.z", "ADMIN", time.Hour)
	require.NoError(t, err)

	SetSecret("another-secret")
	defer SetSecret("test-secret")

	_, err = ValidateToken(tok)
	assert.Error(t, err)
}

func TestExpiredToken(t *testing.T) {
	tok, err := GenerateSessionToken("s", "1", "x@y.z", "ADMIN", -time.Minute)
	require.NoError(t, err)

	_, err = ValidateToken(tok)
	assert.Error(t, err)
}

func TestExpiresAtReadsForeignToken(t *testing.T) {
	exp := time.Now().Add(30 * time.Second).Truncate(time.Second)
	foreign := gojwt.NewWithClaims(gojwt.SigningMethodHS256, gojwt.MapClaims{"exp": exp.Unix()})
	tok, err := foreign.SignedString([]byte("backend-only-secret"))
	require.NoError(t, err)

	got, err := ExpiresAt(tok)
	require.NoError(t, err)
	assert.True(t, got.Equal(exp))

	assert.True(t, ExpiresWithin(tok, time.Minute))
	assert.False(t, ExpiresWithin(tok, time.Second))
	assert.False(t, ExpiresWithin("not-a-jwt", time.Hour))
}
