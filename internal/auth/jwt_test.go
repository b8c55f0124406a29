package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/audittrail/internal/auth"
)

const secret = "test-secret-key-very-long-and-secure"

func TestJWT_IssueAndValidateRoundTrip(t *testing.T) {
	t.Parallel()

	token, err := auth.IssueAccessToken(secret, 42, "auditor", 5*time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := auth.ValidateToken(secret, token)
	require.NoError(t, err)
	require.NotNil(t, claims)

	assert.Equal(t, int64(42), claims.ActorID)
	assert.Equal(t, "auditor", claims.Role)
	assert.Equal(t, "audittrail", claims.Issuer)
}

func TestJWT_Rejected(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		token func(t *testing.T) string
		key   string
	}{
		{
			name: "expired",
			token: func(t *testing.T) string {
				tok, err := auth.IssueAccessToken(secret, 42, "member", -time.Second)
				require.NoError(t, err)
				return tok
			},
			key: secret,
		},
		{
			name: "wrong secret",
			token: func(t *testing.T) string {
				tok, err := auth.IssueAccessToken("another-secret-key-very-long-and-secure", 42, "member", time.Minute)
				require.NoError(t, err)
				return tok
			},
			key: secret,
		},
		{
			name: "no actor",
			token: func(t *testing.T) string {
				tok, err := auth.IssueAccessToken(secret, 0, "member", time.Minute)
				require.NoError(t, err)
				return tok
			},
			key: secret,
		},
		{
			name: "wrong algorithm",
			token: func(t *testing.T) string {
				tok := jwt.NewWithClaims(jwt.SigningMethodHS512, auth.Claims{ActorID: 42})
				signed, err := tok.SignedString([]byte(secret))
				require.NoError(t, err)
				return signed
			},
			key: secret,
		},
		{
			name:  "garbage",
			token: func(*testing.T) string { return "not.a.token" },
			key:   secret,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := auth.ValidateToken(tt.key, tt.token(t))
			require.ErrorIs(t, err, auth.ErrInvalidToken)
		})
	}
}
