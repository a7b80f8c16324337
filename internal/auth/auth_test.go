package auth

import (
	"testing"

	"github.com/spotex/exchange/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewAuthService(nil, "test-secret")

	token, err := svc.IssueToken(&models.User{ID: 42, Username: "alice"})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := svc.GetUserFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, 42, userID)
}

func TestGetUserFromToken_WrongSecret(t *testing.T) {
	issuer := NewAuthService(nil, "secret-a")
	verifier := NewAuthService(nil, "secret-b")

	token, err := issuer.IssueToken(&models.User{ID: 1, Username: "alice"})
	require.NoError(t, err)

	_, err = verifier.GetUserFromToken(token)
	assert.Error(t, err)
}

func TestGetUserFromToken_Garbage(t *testing.T) {
	svc := NewAuthService(nil, "test-secret")

	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		_, err := svc.GetUserFromToken(token)
		assert.Error(t, err, "token %q should be rejected", token)
	}
}
