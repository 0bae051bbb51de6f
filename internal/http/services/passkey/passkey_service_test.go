package passkey

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
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

// fakeCeremony acepta cualquier body salvo "bad" y reporta counter.
type fakeCeremony struct {
	credID  []byte
	counter atomic.Uint32
}

func (f *fakeCeremony) BeginRegistration(u webauthn.User) (*protocol.CredentialCreation, *webauthn.SessionData, error) {
	return &protocol.CredentialCreation{}, &webauthn.SessionData{Challenge: "reg", UserID: u.WebAuthnID()}, nil
}

func (f *fakeCeremony) FinishRegistration(_ webauthn.User, s webauthn.SessionData, body []byte) (*webauthn.Credential, error) {
	if string(body) == "bad" || s.Challenge != "reg" {
		return nil, errors.New("attestation")
	}
	return &webauthn.Credential{ID: f.credID, PublicKey: []byte("pk")}, nil
}

func (f *fakeCeremony) BeginLogin(u webauthn.User) (*protocol.CredentialAssertion, *webauthn.SessionData, error) {
	return &protocol.CredentialAssertion{}, &webauthn.SessionData{Challenge: "login", UserID: u.WebAuthnID()}, nil
}

func (f *fakeCeremony) FinishLogin(_ webauthn.User, s webauthn.SessionData, body []byte) (*webauthn.Credential, uint32, error) {
	if string(body) == "bad" || s.Challenge != "login" {
		return nil, 0, errors.New("assertion")
	}
	return &webauthn.Credential{ID: f.credID}, f.counter.Load(), nil
}

type env struct {
	svc   Service
	store *memory.Store
	codes *flow.Codes
	cer   *fakeCeremony
	app   *repository.App
	user  *repository.User
}

func newEnv(t *testing.T) *env {
	t.Helper()
	kv := cache.NewMemory(time.Minute)
	st := memory.New()
	app := st.PutApp(repository.App{
		ClientID:     "spa",
		Name:         "Demo",
		Type:         repository.AppTypeSPA,
		RedirectURIs: []string{"http://localhost/cb"},
		IsActive:     true,
	})
	u, err := st.CreateUser(context.Background(), &repository.User{Email: "ana@example.com", IsActive: true})
	require.NoError(t, err)

	pk := config.PasskeyConfig{AllowEnrollment: true, ChallengeTTL: time.Minute}
	codes := flow.NewCodes(kv, 5*time.Minute)
	resolver := flow.NewResolver(flow.ResolverDeps{
		Codes:    codes,
		Sessions: flow.NewSessions(kv, time.Minute),
		Passkeys: st,
		Passkey:  pk,
		Policies: config.PolicyConfig{EnableManagePasskey: true},
	})
	cer := &fakeCeremony{credID: []byte("cred-1")}
	svc := NewService(Deps{
		Users:     st,
		Passkeys:  st,
		Cache:     kv,
		Codes:     codes,
		Resolver:  resolver,
		Validator: &flow.RequestValidator{Apps: st},
		Ceremony:  cer,
		Config:    pk,
	})
	return &env{svc: svc, store: st, codes: codes, cer: cer, app: app, user: u}
}

func (e *env) startFlow(t *testing.T, page types.NextPage, policy types.Policy) string {
	t.Helper()
	ctx := context.Background()
	u, err := e.store.GetUserByID(ctx, e.user.ID)
	require.NoError(t, err)
	req := types.AuthRequest{ClientID: "spa", RedirectURI: "http://localhost/cb", Scopes: []string{"openid"}, Policy: policy}
	code, body, err := e.codes.Issue(ctx, e.app, u, req, false)
	require.NoError(t, err)
	body.NextPage = page
	require.NoError(t, e.codes.Save(ctx, code, body))
	return code
}

func (e *env) enroll(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	code := e.startFlow(t, types.NextPagePasskeyEnroll, types.PolicySignInOrSignUp)
	_, err := e.svc.BeginEnroll(ctx, code)
	require.NoError(t, err)
	res, err := e.svc.FinishEnroll(ctx, code, []byte("ok"))
	require.NoError(t, err)
	assert.Equal(t, types.NextPageNone, res.NextPage)
}

func params() flow.AuthorizeParams {
	return flow.AuthorizeParams{
		ClientID:            "spa",
		RedirectURI:         "http://localhost/cb",
		ResponseType:        "code",
		Scope:               "openid profile",
		CodeChallenge:       "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		CodeChallengeMethod: "S256",
	}
}

func TestEnroll_StoresCredentialAndAdvances(t *testing.T) {
	e := newEnv(t)
	e.enroll(t)

	creds, err := e.store.ListPasskeysByUser(context.Background(), e.user.ID)
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, []byte("cred-1"), creds[0].CredentialID)
}

func TestEnroll_ChallengeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	code := e.startFlow(t, types.NextPagePasskeyEnroll, types.PolicySignInOrSignUp)

	_, err := e.svc.FinishEnroll(ctx, code, []byte("ok"))
	assert.ErrorIs(t, err, httperrors.ErrPasskeyChallengeExpired)

	_, err = e.svc.BeginEnroll(ctx, code)
	require.NoError(t, err)
	_, err = e.svc.FinishEnroll(ctx, code, []byte("bad"))
	assert.ErrorIs(t, err, httperrors.ErrInvalidPasskey)

	// el challenge se consumió en el intento fallido
	_, err = e.svc.FinishEnroll(ctx, code, []byte("ok"))
	assert.ErrorIs(t, err, httperrors.ErrPasskeyChallengeExpired)
}

func TestEnroll_WrongStep(t *testing.T) {
	e := newEnv(t)
	code := e.startFlow(t, types.NextPageOtpMfa, types.PolicySignInOrSignUp)
	_, err := e.svc.BeginEnroll(context.Background(), code)
	assert.ErrorIs(t, err, httperrors.ErrInvalidAuthStep)
}

func TestDecline_RememberSkipsNextTime(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	code := e.startFlow(t, types.NextPagePasskeyEnroll, types.PolicySignInOrSignUp)

	res, err := e.svc.DeclineEnroll(ctx, code, true)
	require.NoError(t, err)
	assert.Equal(t, types.NextPageNone, res.NextPage)

	u, err := e.store.GetUserByID(ctx, e.user.ID)
	require.NoError(t, err)
	assert.True(t, u.SkipPasskeyEnroll)
}

func TestVerify_CounterMustIncrease(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.enroll(t)

	// counter 0 no supera el guardado (0)
	_, err := e.svc.BeginVerify(ctx, "ana@example.com")
	require.NoError(t, err)
	_, err = e.svc.FinishVerify(ctx, params(), "ana@example.com", []byte("ok"))
	assert.ErrorIs(t, err, httperrors.ErrInvalidPasskey)

	e.cer.counter.Store(5)
	opts, err := e.svc.BeginVerify(ctx, "ANA@example.com")
	require.NoError(t, err)
	require.NotNil(t, opts)
	res, err := e.svc.FinishVerify(ctx, params(), "ana@example.com", []byte("ok"))
	require.NoError(t, err)
	assert.NotEmpty(t, res.Code)

	body, err := e.codes.Load(ctx, res.Code)
	require.NoError(t, err)
	assert.True(t, body.IsFullyAuthorized)

	// replay con el mismo counter
	_, err = e.svc.BeginVerify(ctx, "ana@example.com")
	require.NoError(t, err)
	_, err = e.svc.FinishVerify(ctx, params(), "ana@example.com", []byte("ok"))
	assert.ErrorIs(t, err, httperrors.ErrInvalidPasskey)
}

func TestVerify_ConcurrentSameCounterOneWins(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.enroll(t)
	e.cer.counter.Store(7)

	// dos challenges distintos no son posibles por email; simulamos dos
	// dispositivos con el mismo counter contra el store directamente.
	creds, err := e.store.ListPasskeysByUser(ctx, e.user.ID)
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := e.store.UpdatePasskeyCounter(ctx, creds[0].ID, 7)
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())

	_, err = e.svc.BeginVerify(ctx, "ana@example.com")
	require.NoError(t, err)
	_, err = e.svc.FinishVerify(ctx, params(), "ana@example.com", []byte("ok"))
	assert.ErrorIs(t, err, httperrors.ErrInvalidPasskey)
}

func TestVerify_UnknownUserOrNoPasskeys(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	opts, err := e.svc.BeginVerify(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, opts)

	opts, err = e.svc.BeginVerify(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Nil(t, opts)

	_, err = e.svc.FinishVerify(ctx, params(), "ana@example.com", []byte("ok"))
	assert.ErrorIs(t, err, httperrors.ErrPasskeyChallengeExpired)
}

func TestManage_ListAndRemove(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.enroll(t)

	code := e.startFlow(t, types.NextPageManagePasskey, types.PolicyManagePasskey)
	list, err := e.svc.List(ctx, code)
	require.NoError(t, err)
	require.Len(t, list, 1)

	assert.ErrorIs(t, e.svc.Remove(ctx, code, "missing"), httperrors.ErrNotFound)
	require.NoError(t, e.svc.Remove(ctx, code, list[0].ID))

	list, err = e.svc.List(ctx, code)
	require.NoError(t, err)
	assert.Empty(t, list)

	res, err := e.svc.FinishManage(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, types.NextPageNone, res.NextPage)
}
