package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lalith-99/echodesk/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func TestGenerateAndParse(t *testing.T) {
	tok, err := GenerateToken(42, models.RoleOwner, secret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(tok, secret)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, models.RoleOwner, claims.Role)
	assert.Equal(t, Issuer, claims.Issuer)
}

func TestParseToken_Rejects(t *testing.T) {
	valid, err := GenerateToken(1, models.RoleAdmin, secret, time.Hour)
	require.NoError(t, err)
	expired, err := GenerateToken(1, models.RoleAdmin, secret, -time.Minute)
	require.NoError(t, err)
	noRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: 1}).SignedString([]byte(secret))
	require.NoError(t, err)
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 1, Role: models.RoleAdmin}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{"wrong secret", valid, "other"},
		{"expired", expired, secret},
		{"missing role", noRole, secret},
		{"alg none", unsigned, secret},
		{"garbage", "not-a-token", secret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToken(tt.token, tt.secret)
			assert.Error(t, err)
		})
	}
}

func TestGenerateToken_UnknownRole(t *testing.T) {
	_, err := GenerateToken(1, "guest", secret, time.Hour)
	assert.Error(t, err)
}
