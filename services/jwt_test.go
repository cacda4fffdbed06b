package services

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTService() *JWTService {
	return &JWTService{
		tokenTTL:  time.Hour,
		secretKey: []byte("test-secret"),
	}
}

func TestJWT_IssueAndVerify(t *testing.T) {
	svc := newTestJWTService()

	pair, err := svc.IssueAdminToken("ops")
	require.NoError(t, err)
	assert.Equal(t, int64(3600), pair.ExpiresIn)

	subject, err := svc.Verify(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "ops", subject)
}

func TestJWT_RejectsWrongSecret(t *testing.T) {
	pair, err := newTestJWTService().IssueAdminToken("ops")
	require.NoError(t, err)

	other := &JWTService{tokenTTL: time.Hour, secretKey: []byte("different")}
	_, err = other.Verify(pair.AccessToken)
	require.Error(t, err)
}

func TestJWT_RejectsExpired(t *testing.T) {
	svc := newTestJWTService()
	svc.tokenTTL = -time.Minute

	pair, err := svc.IssueAdminToken("ops")
	require.NoError(t, err)

	_, err = svc.Verify(pair.AccessToken)
	require.Error(t, err)
}

func TestJWT_RejectsMissingAdminRole(t *testing.T) {
	svc := newTestJWTService()

	claims := &adminClaims{
		Role: "viewer",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops",
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(svc.secretKey)
	require.NoError(t, err)

	_, err = svc.Verify(signed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin role")
}

func TestJWT_BearerToken(t *testing.T) {
	svc := newTestJWTService()

	token, err := svc.BearerToken("Bearer abc.def.ghi")
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)

	_, err = svc.BearerToken("")
	require.Error(t, err)

	_, err = svc.BearerToken("Basic abc")
	require.Error(t, err)

	_, err = svc.BearerToken("Bearer ")
	require.Error(t, err)
}
