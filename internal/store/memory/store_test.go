package memory

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/melody/internal/domain/repository"
	"github.com/dropDatabas3/melody/internal/security/password"
)

func TestUsers_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	s := New()

	u, err := s.CreateUser(ctx, &repository.User{Email: "Ana@Example.com", IsActive: true})
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.NotEmpty(t, u.AuthID)

	got, err := s.GetUserByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.CreateUser(ctx, &repository.User{Email: "ana@example.com"})
	assert.True(t, repository.IsConflict(err))

	got.FirstName = "Ana"
	got.AddMfa(repository.MfaOtp)
	_, err = s.UpdateUser(ctx, got)
	require.NoError(t, err)

	again, err := s.GetUserByAuthID(ctx, u.AuthID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", again.FirstName)
	assert.True(t, again.HasMfa(repository.MfaOtp))

	_, err = s.GetUserByID(ctx, "missing")
	assert.True(t, repository.IsNotFound(err))
}

func TestUsers_ReturnedValuesAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	u, err := s.CreateUser(ctx, &repository.User{Email: "a@b.c", Roles: []string{"admin"}})
	require.NoError(t, err)
	u.Roles[0] = "root"

	got, err := s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, got.Roles)
}

func TestConsent_Upsert(t *testing.T) {
	ctx := context.Background()
	s := New()
	ok, err := s.HasConsent(ctx, "u1", "app1")
	require.NoError(t, err)
	assert.False(t, ok)

	c1, err := s.UpsertConsent(ctx, "u1", "app1")
	require.NoError(t, err)
	c2, err := s.UpsertConsent(ctx, "u1", "app1")
	require.NoError(t, err)
	assert.Equal(t, c1.CreatedAt, c2.CreatedAt)

	ok, _ = s.HasConsent(ctx, "u1", "app1")
	assert.True(t, ok)

	require.NoError(t, s.DeleteConsent(ctx, "u1", "app1"))
	ok, _ = s.HasConsent(ctx, "u1", "app1")
	assert.False(t, ok)
}

func TestPasskey_CounterOnlyGrows(t *testing.T) {
	ctx := context.Background()
	s := New()
	p, err := s.CreatePasskey(ctx, &repository.PasskeyCredential{UserID: "u1", CredentialID: []byte{1, 2}, SignCounter: 5})
	require.NoError(t, err)

	_, err = s.CreatePasskey(ctx, &repository.PasskeyCredential{UserID: "u2", CredentialID: []byte{1, 2}})
	assert.True(t, repository.IsConflict(err))

	ok, err := s.UpdatePasskeyCounter(ctx, p.ID, 5)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.UpdatePasskeyCounter(ctx, p.ID, 6)
	require.NoError(t, err)
	assert.True(t, ok)

	list, err := s.ListPasskeysByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, uint32(6), list[0].SignCounter)
	assert.NotNil(t, list[0].LastUsedAt)

	assert.True(t, repository.IsNotFound(s.DeletePasskey(ctx, "u2", p.ID)))
	require.NoError(t, s.DeletePasskey(ctx, "u1", p.ID))
}

func TestPasskey_ConcurrentCounterUpdate(t *testing.T) {
	ctx := context.Background()
	s := New()
	p, err := s.CreatePasskey(ctx, &repository.PasskeyCredential{UserID: "u1", CredentialID: []byte{9}})
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := s.UpdatePasskeyCounter(ctx, p.ID, 1); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestSeed_Apply(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
apps:
  - client_id: spa-client
    name: Demo
    redirect_uris: ["http://localhost:3000/callback"]
  - client_id: worker
    secret: s3cret
    type: s2s
    scopes: ["read:users"]
users:
  - email: demo@melody.dev
    password: Passw0rd!
    roles: [admin]
scopes:
  - name: profile
    note: Nombre y apellido
orgs:
  - slug: acme
    name: Acme
`), 0o600))

	seed, err := LoadSeed(path)
	require.NoError(t, err)

	ctx := context.Background()
	s := New()
	require.NoError(t, s.Apply(ctx, seed, password.Test))

	spa, err := s.GetAppByClientID(ctx, "spa-client")
	require.NoError(t, err)
	assert.Equal(t, repository.AppTypeSPA, spa.Type)
	assert.True(t, spa.IsActive)

	s2s, err := s.GetAppByClientID(ctx, "worker")
	require.NoError(t, err)
	assert.True(t, s2s.HasScope("read:users"))

	u, err := s.GetUserByEmail(ctx, "demo@melody.dev")
	require.NoError(t, err)
	assert.True(t, password.Verify("Passw0rd!", u.PasswordHash))

	scopes, err := s.ListScopesByNames(ctx, []string{"profile", "unknown"})
	require.NoError(t, err)
	require.Len(t, scopes, 1)

	_, err = s.GetOrgBySlug(ctx, "acme")
	require.NoError(t, err)

	// idempotente
	require.NoError(t, s.Apply(ctx, seed, password.Test))
}
