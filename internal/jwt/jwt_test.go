package jwt

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	keyOnce sync.Once
	keyA    *SigningKey
	keyB    *SigningKey
)

// testKeys genera dos claves una sola vez (RSA es lento).
func testKeys(t *testing.T) (*SigningKey, *SigningKey) {
	t.Helper()
	keyOnce.Do(func() {
		a, err := GenerateRSA(2048)
		require.NoError(t, err)
		b, err := GenerateRSA(2048)
		require.NoError(t, err)
		keyA, _ = NewSigningKey(a, KeyCurrent)
		keyB, _ = NewSigningKey(b, KeyCurrent)
	})
	return keyA, keyB
}

func newIssuer(src KeySource) *Issuer {
	return NewIssuer("https://auth.test", NewKeystore(src, 0), time.Minute, time.Minute)
}

func TestIssueAndVerify(t *testing.T) {
	a, _ := testKeys(t)
	ctx := context.Background()
	iss := newIssuer(NewStaticSource(a))

	tok, exp, err := iss.IssueAccess(ctx, AccessClaims{Subject: "user-1", ClientID: "app", Scope: "openid profile", Roles: []string{"admin"}})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), exp, 2*time.Second)

	claims, err := iss.Verify(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims["sub"])
	assert.Equal(t, "app", claims["azp"])
	assert.Equal(t, "app", claims["aud"])
	assert.Equal(t, "openid profile", claims["scope"])
	assert.Equal(t, []any{"admin"}, claims["roles"])

	parsed, _, err := jwtv5.NewParser().ParseUnverified(tok, jwtv5.MapClaims{})
	require.NoError(t, err)
	assert.Equal(t, a.KID, parsed.Header["kid"])
	assert.Equal(t, "RS256", parsed.Header["alg"])
}

func TestVerify_KeyRotationTransparency(t *testing.T) {
	a, b := testKeys(t)
	ctx := context.Background()
	src := NewStaticSource(a)
	iss := newIssuer(src)

	before, _, err := iss.IssueAccess(ctx, AccessClaims{Subject: "u", ClientID: "c"})
	require.NoError(t, err)

	// rotación: B pasa a actual, A queda deprecada
	require.NoError(t, src.Rotate(ctx, b.Private))
	iss.Keys.Invalidate()

	cur, err := iss.Keys.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, b.KID, cur.KID)

	_, err = iss.Verify(ctx, before)
	require.NoError(t, err, "un token firmado antes de rotar debe seguir verificando")

	after, _, err := iss.IssueAccess(ctx, AccessClaims{Subject: "u", ClientID: "c"})
	require.NoError(t, err)
	_, err = iss.Verify(ctx, after)
	require.NoError(t, err)

	// fin de la ventana: la deprecada se elimina
	require.NoError(t, src.PurgeDeprecated(ctx))
	iss.Keys.Invalidate()
	_, err = iss.Verify(ctx, before)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_UnknownKIDFallsBackToListOrder(t *testing.T) {
	a, _ := testKeys(t)
	ctx := context.Background()
	iss := newIssuer(NewStaticSource(a))

	claims, _ := iss.base("u", "c", time.Minute)
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, claims)
	tk.Header["kid"] = "otro-kid"
	raw, err := tk.SignedString(a.Private)
	require.NoError(t, err)

	_, err = iss.Verify(ctx, raw)
	assert.NoError(t, err)
}

func TestVerify_Rejections(t *testing.T) {
	a, b := testKeys(t)
	ctx := context.Background()
	iss := newIssuer(NewStaticSource(a))
	foreign := newIssuer(NewStaticSource(b))

	tok, _, err := foreign.IssueAccess(ctx, AccessClaims{Subject: "u", ClientID: "c"})
	require.NoError(t, err)
	_, err = iss.Verify(ctx, tok)
	assert.ErrorIs(t, err, ErrInvalidToken, "firma de una clave ajena")

	expired := newIssuer(NewStaticSource(a))
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	tok, _, err = expired.IssueAccess(ctx, AccessClaims{Subject: "u", ClientID: "c"})
	require.NoError(t, err)
	_, err = iss.Verify(ctx, tok)
	assert.ErrorIs(t, err, ErrInvalidToken, "token vencido")

	otherIss := NewIssuer("https://evil.test", NewKeystore(NewStaticSource(a), 0), time.Minute, time.Minute)
	tok, _, err = otherIss.IssueAccess(ctx, AccessClaims{Subject: "u", ClientID: "c"})
	require.NoError(t, err)
	_, err = iss.Verify(ctx, tok)
	assert.ErrorIs(t, err, ErrInvalidToken, "iss distinto")

	_, err = iss.Verify(ctx, "not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIDToken_ProfileAndNonce(t *testing.T) {
	a, _ := testKeys(t)
	ctx := context.Background()
	iss := newIssuer(NewStaticSource(a))

	tok, _, err := iss.IssueIDToken(ctx, IDClaims{
		Subject: "u", ClientID: "c", Nonce: "n-1",
		Profile: map[string]any{"email": "a@b.c", "email_verified": true},
	})
	require.NoError(t, err)
	claims, err := iss.Verify(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, "n-1", claims["nonce"])
	assert.Equal(t, "a@b.c", claims["email"])
	assert.Equal(t, true, claims["email_verified"])
}

func TestJWKS_PublishesAllKeys(t *testing.T) {
	a, b := testKeys(t)
	ctx := context.Background()
	src := NewStaticSource(a)
	require.NoError(t, src.Rotate(ctx, b.Private))

	set, err := NewKeystore(src, time.Minute).JWKS(ctx)
	require.NoError(t, err)
	require.Len(t, set.Keys, 2)
	assert.Equal(t, b.KID, set.Keys[0].KeyID)
	assert.Equal(t, a.KID, set.Keys[1].KeyID)

	raw, err := json.Marshal(set)
	require.NoError(t, err)
	var doc struct {
		Keys []map[string]any `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "RSA", doc.Keys[0]["kty"])
	assert.Equal(t, "RS256", doc.Keys[0]["alg"])
	assert.NotContains(t, doc.Keys[0], "d", "nunca publicar la parte privada")
}

type countingSource struct {
	inner KeySource
	calls int32
	fail  atomic.Bool
}

func (c *countingSource) LoadKeys(ctx context.Context) ([]*SigningKey, error) {
	atomic.AddInt32(&c.calls, 1)
	if c.fail.Load() {
		return nil, errors.New("db down")
	}
	return c.inner.LoadKeys(ctx)
}

func TestKeystore_CachesAndServesStaleOnError(t *testing.T) {
	a, _ := testKeys(t)
	ctx := context.Background()
	src := &countingSource{inner: NewStaticSource(a)}
	ks := NewKeystore(src, time.Hour)

	for i := 0; i < 5; i++ {
		_, err := ks.Current(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&src.calls))

	src.fail.Store(true)
	ks.Invalidate()
	k, err := ks.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, a.KID, k.KID)

	empty := NewKeystore(&countingSource{inner: NewStaticSource()}, time.Hour)
	_, err = empty.Current(ctx)
	assert.ErrorIs(t, err, ErrNoSigningKey)
}

func TestFileSource_RotateAndPurge(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := NewFileSource(dir)

	_, err := src.LoadKeys(ctx)
	require.ErrorIs(t, err, ErrNoSigningKey)

	created, err := src.Init(2048)
	require.NoError(t, err)
	require.True(t, created)

	first, err := src.LoadKeys(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)

	_, b := testKeys(t)
	require.NoError(t, src.Rotate(ctx, b.Private))
	keys, err := src.LoadKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, b.KID, keys[0].KID)
	assert.Equal(t, KeyCurrent, keys[0].Status)
	assert.Equal(t, first[0].KID, keys[1].KID)
	assert.Equal(t, KeyDeprecated, keys[1].Status)

	require.NoError(t, src.PurgeDeprecated(ctx))
	keys, err = src.LoadKeys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	pemBytes, err := os.ReadFile(filepath.Join(dir, currentFile))
	require.NoError(t, err)
	parsed, err := ParsePrivatePEM(pemBytes)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(b.Private))
}
