package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"io"
	"log/slog"
	"testing"
	"time"

	"archive/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVerifier(t *testing.T) (JWTVerifier, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	verifier := NewStaticVerifier(func(*jwt.Token) (any, error) {
		return &key.PublicKey, nil
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return verifier, key
}

func sign(t *testing.T, key *ecdsa.PrivateKey, claims *Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func claimsFor(sub, role string, expires time.Time) *Claims {
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Role: role,
	}
}

func TestVerifyToken(t *testing.T) {
	verifier, key := newTestVerifier(t)
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name    string
		claims  *Claims
		wantErr error
	}{
		{name: "publisher", claims: claimsFor("alice", RolePublisher, future)},
		{name: "admin", claims: claimsFor("root", RoleAdmin, future)},
		{name: "expired", claims: claimsFor("alice", RolePublisher, time.Now().Add(-time.Hour)), wantErr: domain.ErrUnauthorized},
		{name: "missing subject", claims: claimsFor("", RolePublisher, future), wantErr: domain.ErrUnauthorized},
		{name: "reader role", claims: claimsFor("bob", "reader", future), wantErr: domain.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := verifier.VerifyToken(sign(t, key, tt.claims))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.claims.Subject, claims.GetUserID())
		})
	}
}

func TestVerifyToken_RejectsHMAC(t *testing.T) {
	verifier, _ := newTestVerifier(t)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claimsFor("alice", RolePublisher, time.Now().Add(time.Hour))).
		SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = verifier.VerifyToken(token)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestClaimsRoles(t *testing.T) {
	assert.True(t, (&Claims{Role: RoleAdmin}).CanRepublish())
	assert.False(t, (&Claims{Role: RolePublisher}).CanRepublish())
	assert.True(t, (&Claims{Role: RolePublisher}).CanPublish())
	assert.False(t, (&Claims{Role: "anon"}).CanPublish())
}
