package google

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const issuer = "https://accounts.google.com"

func sign(t *testing.T, key *rsa.PrivateKey, claims jwtv5.MapClaims) string {
	t.Helper()
	s, err := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestVerify(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	v := NewWithKeySet(issuer, "client-1", &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}})
	ctx := context.Background()
	now := time.Now()

	base := func() jwtv5.MapClaims {
		return jwtv5.MapClaims{
			"iss":            issuer,
			"aud":            "client-1",
			"sub":            "g-123",
			"email":          "Ana@Gmail.com",
			"email_verified": true,
			"given_name":     "Ana",
			"iat":            now.Unix(),
			"exp":            now.Add(time.Hour).Unix(),
		}
	}

	id, err := v.Verify(ctx, sign(t, key, base()))
	require.NoError(t, err)
	assert.Equal(t, "g-123", id.Subject)
	assert.Equal(t, "ana@gmail.com", id.Email)
	assert.True(t, id.EmailVerified)

	wrongAud := base()
	wrongAud["aud"] = "other"
	_, err = v.Verify(ctx, sign(t, key, wrongAud))
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := base()
	expired["exp"] = now.Add(-time.Hour).Unix()
	_, err = v.Verify(ctx, sign(t, key, expired))
	assert.ErrorIs(t, err, ErrInvalidToken)

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	_, err = v.Verify(ctx, sign(t, other, base()))
	assert.ErrorIs(t, err, ErrInvalidToken)
}
