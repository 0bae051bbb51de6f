package consent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/melody/internal/cache"
	"github.com/dropDatabas3/melody/internal/config"
	"github.com/dropDatabas3/melody/internal/domain/repository"
	"github.com/dropDatabas3/melody/internal/domain/types"
	httperrors "github.com/dropDatabas3/melody/internal/http/errors"
	"github.com/dropDatabas3/melody/internal/http/services/flow"
	"github.com/dropDatabas3/melody/internal/store/memory"
)

func newService(t *testing.T, enabled bool) (Service, *memory.Store, *flow.Codes) {
	t.Helper()
	st := memory.New()
	st.PutScope(repository.Scope{Name: "profile", Note: "Nombre y apellido"})
	kv := cache.NewMemory(time.Minute)
	codes := flow.NewCodes(kv, time.Minute)
	checker := &Checker{
		Consents: st,
		Config:   config.ConsentConfig{Enabled: enabled, SystemScopes: []string{"openid", "offline_access"}},
	}
	resolver := flow.NewResolver(flow.ResolverDeps{
		Codes:    codes,
		Sessions: flow.NewSessions(kv, time.Minute),
		Consent:  checker,
	})
	return NewService(Deps{Checker: checker, Scopes: st, Codes: codes, Resolver: resolver}), st, codes
}

func TestShouldCollectConsent(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newService(t, true)

	need, err := svc.ShouldCollectConsent(ctx, "u1", "app1", []string{"openid", "profile"})
	require.NoError(t, err)
	assert.True(t, need)

	// solo scopes de sistema
	need, err = svc.ShouldCollectConsent(ctx, "u1", "app1", []string{"openid", "offline_access"})
	require.NoError(t, err)
	assert.False(t, need)

	_, err = st.UpsertConsent(ctx, "u1", "app1")
	require.NoError(t, err)
	need, err = svc.ShouldCollectConsent(ctx, "u1", "app1", []string{"openid", "profile"})
	require.NoError(t, err)
	assert.False(t, need)

	disabled, _, _ := newService(t, false)
	need, err = disabled.ShouldCollectConsent(ctx, "u2", "app1", []string{"profile"})
	require.NoError(t, err)
	assert.False(t, need)
}

func TestCreateUserAppConsent_Concurrent(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newService(t, true)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateUserAppConsent(ctx, "u1", "app1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	ok, err := st.HasConsent(ctx, "u1", "app1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInfoAndAccept(t *testing.T) {
	ctx := context.Background()
	svc, st, codes := newService(t, true)
	app := st.PutApp(repository.App{ClientID: "spa", Name: "Demo", Type: repository.AppTypeSPA, IsActive: true})
	user, err := st.CreateUser(ctx, &repository.User{Email: "a@b.c", IsActive: true})
	require.NoError(t, err)

	code, body, err := codes.Issue(ctx, app, user, types.AuthRequest{
		ClientID: "spa",
		Scopes:   []string{"openid", "profile", "custom"},
	}, false)
	require.NoError(t, err)

	// el flujo todavía no pidió consent
	_, err = svc.ConsentInfo(ctx, code)
	assert.ErrorIs(t, err, httperrors.ErrInvalidAuthStep)

	body.NextPage = types.NextPageConsent
	require.NoError(t, codes.Save(ctx, code, body))

	info, err := svc.ConsentInfo(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, "Demo", info.AppName)
	require.Len(t, info.Scopes, 2)
	assert.Equal(t, "Nombre y apellido", info.Scopes[0].Note)
	assert.Equal(t, "custom", info.Scopes[1].Name)

	res, err := svc.Accept(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, types.NextPageNone, res.NextPage)

	ok, err := st.HasConsent(ctx, user.ID, app.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// un segundo accept ya no corresponde
	_, err = svc.Accept(ctx, code)
	assert.ErrorIs(t, err, httperrors.ErrInvalidAuthStep)
}
