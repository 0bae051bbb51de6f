package oauth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/melody/internal/cache"
	"github.com/dropDatabas3/melody/internal/config"
	"github.com/dropDatabas3/melody/internal/domain/repository"
	"github.com/dropDatabas3/melody/internal/domain/types"
	dto "github.com/dropDatabas3/melody/internal/http/dto/oauth"
	httperrors "github.com/dropDatabas3/melody/internal/http/errors"
	"github.com/dropDatabas3/melody/internal/http/services/consent"
	"github.com/dropDatabas3/melody/internal/http/services/flow"
	jwtx "github.com/dropDatabas3/melody/internal/jwt"
	"github.com/dropDatabas3/melody/internal/store/memory"
)

const (
	verifier  = "dBjftJeZ4CVP-mJ92K9RUNMYqcIkrCq37ry5cS3bJcY"
	challenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

var (
	keyOnce sync.Once
	testKey *jwtx.SigningKey
)

func signingKey(t *testing.T) *jwtx.SigningKey {
	t.Helper()
	keyOnce.Do(func() {
		priv, err := jwtx.GenerateRSA(2048)
		require.NoError(t, err)
		testKey, err = jwtx.NewSigningKey(priv, jwtx.KeyCurrent)
		require.NoError(t, err)
	})
	return testKey
}

type fakeSaml struct{ calls atomic.Int32 }

func (f *fakeSaml) Login(context.Context, flow.AuthorizeParams) (string, error) {
	f.calls.Add(1)
	return "https://idp.example.com/sso?SAMLRequest=x", nil
}

type env struct {
	svc      Services
	store    *memory.Store
	codes    *flow.Codes
	sessions *flow.Sessions
	app      *repository.App
	s2s      *repository.App
	user     *repository.User
	saml     *fakeSaml
}

func newEnv(t *testing.T, consentEnabled bool) *env {
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
	s2s := st.PutApp(repository.App{
		ClientID: "worker",
		Secret:   "s3cret",
		Type:     repository.AppTypeS2S,
		Scopes:   []string{"read:users", "write:users"},
		IsActive: true,
	})
	u, err := st.CreateUser(context.Background(), &repository.User{
		Email:         "ana@example.com",
		EmailVerified: true,
		FirstName:     "Ana",
		Locale:        "es",
		IsActive:      true,
		Roles:         []string{"admin"},
	})
	require.NoError(t, err)

	checker := &consent.Checker{Consents: st, Config: config.ConsentConfig{Enabled: consentEnabled, SystemScopes: []string{"openid", "offline_access"}}}
	codes := flow.NewCodes(kv, 5*time.Minute)
	sessions := flow.NewSessions(kv, time.Minute)
	resolver := flow.NewResolver(flow.ResolverDeps{Codes: codes, Sessions: sessions, Consent: checker})
	issuer := jwtx.NewIssuer("https://auth.example.com", jwtx.NewKeystore(jwtx.NewStaticSource(signingKey(t)), time.Minute), time.Minute, time.Minute)
	saml := &fakeSaml{}

	svc := NewServices(Deps{
		Apps:       st,
		Users:      st,
		Cache:      kv,
		Codes:      codes,
		Sessions:   sessions,
		Resolver:   resolver,
		Validator:  &flow.RequestValidator{Apps: st},
		Consent:    checker,
		Issuer:     issuer,
		SAML:       saml,
		RefreshTTL: time.Hour,
		IdentityUI: "https://auth.example.com/identity",
	})
	return &env{svc: svc, store: st, codes: codes, sessions: sessions, app: app, s2s: s2s, user: u, saml: saml}
}

// authorized emite un code ya canjeable con los scopes dados.
func (e *env) authorized(t *testing.T, scopes ...string) string {
	t.Helper()
	ctx := context.Background()
	req := types.AuthRequest{
		ClientID:            "spa",
		RedirectURI:         "http://localhost/cb",
		Scopes:              scopes,
		CodeChallenge:       challenge,
		CodeChallengeMethod: "S256",
		Nonce:               "n-1",
	}
	code, body, err := e.codes.Issue(ctx, e.app, e.user, req, false)
	require.NoError(t, err)
	body.Authorized = true
	require.NoError(t, e.codes.Save(ctx, code, body))
	return code
}

func TestExchange_SingleUse(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, false)
	code := e.authorized(t, "openid", "profile", "email", "offline_access")

	resp, err := e.svc.Token.ExchangeAuthCode(ctx, "spa", code, verifier, "http://localhost/cb")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.IDToken)
	assert.NotEmpty(t, resp.RefreshToken)

	_, err = e.svc.Token.ExchangeAuthCode(ctx, "spa", code, verifier, "http://localhost/cb")
	assert.ErrorIs(t, err, httperrors.ErrInvalidAuthCode)
}

func TestExchange_ConcurrentOneWins(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, false)
	code := e.authorized(t, "openid")

	var ok, failed atomic.Int32
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.svc.Token.ExchangeAuthCode(ctx, "spa", code, verifier, ""); err == nil {
				ok.Add(1)
			} else if errors.Is(err, httperrors.ErrInvalidAuthCode) {
				failed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, ok.Load())
	assert.EqualValues(t, 9, failed.Load())
}

func TestExchange_Rejections(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, false)

	// paso pendiente: el code no es canjeable
	code, _, err := e.codes.Issue(ctx, e.app, e.user, types.AuthRequest{ClientID: "spa", Scopes: []string{"openid"}}, false)
	require.NoError(t, err)
	_, err = e.svc.Token.ExchangeAuthCode(ctx, "spa", code, verifier, "")
	assert.ErrorIs(t, err, httperrors.ErrInvalidAuthCode)

	code = e.authorized(t, "openid")
	_, err = e.svc.Token.ExchangeAuthCode(ctx, "other", code, verifier, "")
	assert.ErrorIs(t, err, httperrors.ErrInvalidAuthCode)

	code = e.authorized(t, "openid")
	_, err = e.svc.Token.ExchangeAuthCode(ctx, "spa", code, strings.Repeat("a", 43), "")
	assert.ErrorIs(t, err, httperrors.ErrInvalidCodeVerifier)

	code = e.authorized(t, "openid")
	_, err = e.svc.Token.ExchangeAuthCode(ctx, "spa", code, "", "")
	assert.ErrorIs(t, err, httperrors.ErrInvalidCodeVerifier)
}

func TestExchange_ConsentRecheck(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, true)

	code := e.authorized(t, "openid", "profile")
	_, err := e.svc.Token.ExchangeAuthCode(ctx, "spa", code, verifier, "")
	assert.ErrorIs(t, err, httperrors.ErrConsentRequired)

	_, err = e.store.UpsertConsent(ctx, e.user.ID, e.app.ID)
	require.NoError(t, err)
	code = e.authorized(t, "openid", "profile")
	_, err = e.svc.Token.ExchangeAuthCode(ctx, "spa", code, verifier, "")
	require.NoError(t, err)
}

func TestExchange_ClaimsByScope(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, false)

	code := e.authorized(t, "openid", "profile")
	resp, err := e.svc.Token.ExchangeAuthCode(ctx, "spa", code, verifier, "")
	require.NoError(t, err)
	assert.Empty(t, resp.RefreshToken)

	issuer := e.svc.Token.(*tokenService).deps.Issuer
	idc, err := issuer.Verify(ctx, resp.IDToken)
	require.NoError(t, err)
	assert.Equal(t, e.user.AuthID, idc["sub"])
	assert.Equal(t, "n-1", idc["nonce"])
	assert.Equal(t, "Ana", idc["given_name"])
	assert.NotContains(t, idc, "email")

	at, err := issuer.Verify(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "openid profile", at["scope"])
	assert.Equal(t, []any{"admin"}, at["roles"])

	info, err := e.svc.OIDC.UserInfo(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, e.user.AuthID, info["sub"])
	assert.Equal(t, "es", info["locale"])
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, false)
	code := e.authorized(t, "openid", "offline_access")
	resp, err := e.svc.Token.ExchangeAuthCode(ctx, "spa", code, verifier, "")
	require.NoError(t, err)

	r2, err := e.svc.Token.Token(ctx, dto.TokenRequest{GrantType: "refresh_token", ClientID: "spa", RefreshToken: resp.RefreshToken})
	require.NoError(t, err)
	assert.NotEmpty(t, r2.AccessToken)
	assert.Equal(t, resp.RefreshToken, r2.RefreshToken)
	assert.Equal(t, "openid offline_access", r2.Scope)

	_, err = e.svc.Token.RefreshAccessToken(ctx, "worker", resp.RefreshToken)
	assert.ErrorIs(t, err, httperrors.ErrInvalidRefreshToken)
	_, err = e.svc.Token.RefreshAccessToken(ctx, "spa", "nope")
	assert.ErrorIs(t, err, httperrors.ErrInvalidRefreshToken)
}

func TestLogout_RevokesRefreshToken(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, false)
	code := e.authorized(t, "openid", "offline_access")
	resp, err := e.svc.Token.ExchangeAuthCode(ctx, "spa", code, verifier, "")
	require.NoError(t, err)

	require.NoError(t, e.svc.Token.Logout(ctx, resp.AccessToken, resp.RefreshToken))
	_, err = e.svc.Token.RefreshAccessToken(ctx, "spa", resp.RefreshToken)
	assert.ErrorIs(t, err, httperrors.ErrInvalidRefreshToken)

	assert.ErrorIs(t, e.svc.Token.Logout(ctx, "garbage", ""), httperrors.ErrInvalidToken)
}

func TestClientCredentials_ScopeContainment(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, false)

	resp, err := e.svc.Token.ClientCredentialsToken(ctx, "worker", "s3cret", []string{"read:users"})
	require.NoError(t, err)
	assert.Equal(t, "read:users", resp.Scope)
	assert.Empty(t, resp.RefreshToken)

	cases := []struct {
		name, client, secret string
		scopes               []string
		want                 error
	}{
		{"scope no otorgado", "worker", "s3cret", []string{"read:users", "admin"}, httperrors.ErrInvalidScope},
		{"sin scopes", "worker", "s3cret", nil, httperrors.ErrInvalidScope},
		{"secret incorrecto", "worker", "nope", []string{"read:users"}, httperrors.ErrInvalidClient},
		{"app spa", "spa", "", []string{"openid"}, httperrors.ErrInvalidClient},
		{"client desconocido", "ghost", "x", []string{"read:users"}, httperrors.ErrInvalidClient},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := e.svc.Token.ClientCredentialsToken(ctx, c.client, c.secret, c.scopes)
			assert.ErrorIs(t, err, c.want)
		})
	}
}

func TestToken_UnsupportedGrant(t *testing.T) {
	e := newEnv(t, false)
	_, err := e.svc.Token.Token(context.Background(), dto.TokenRequest{GrantType: "password"})
	assert.ErrorIs(t, err, httperrors.ErrUnsupportedGrantType)
}

func authorizeParams(policy string) flow.AuthorizeParams {
	return flow.AuthorizeParams{
		ClientID:            "spa",
		RedirectURI:         "http://localhost/cb",
		ResponseType:        "code",
		Scope:               "openid",
		State:               "st",
		CodeChallenge:       challenge,
		CodeChallengeMethod: "S256",
		Policy:              policy,
	}
}

func TestAuthorize_RedirectsToSignIn(t *testing.T) {
	e := newEnv(t, false)
	dest, err := e.svc.Authorize.Authorize(context.Background(), authorizeParams(""))
	require.NoError(t, err)
	u, err := url.Parse(dest)
	require.NoError(t, err)
	assert.Equal(t, "/identity/authorize-password", u.Path)
	assert.Equal(t, "spa", u.Query().Get("client_id"))
	assert.Equal(t, challenge, u.Query().Get("code_challenge"))
}

func TestAuthorize_SamlPolicy(t *testing.T) {
	e := newEnv(t, false)
	dest, err := e.svc.Authorize.Authorize(context.Background(), authorizeParams("saml_sso_okta"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dest, "https://idp.example.com/"))
	assert.EqualValues(t, 1, e.saml.calls.Load())
}

func TestAuthorize_ReusesSession(t *testing.T) {
	e := newEnv(t, false)
	ctx := flow.WithSessionID(context.Background(), "browser-1")

	// primera autorización completa guarda la sesión
	code, body, err := e.codes.Issue(ctx, e.app, e.user, types.AuthRequest{ClientID: "spa", RedirectURI: "http://localhost/cb", Scopes: []string{"openid"}}, false)
	require.NoError(t, err)
	_, err = e.svc.Token.(*tokenService).deps.Resolver.Resolve(ctx, flow.EntryAuthenticated, code, body)
	require.NoError(t, err)

	dest, err := e.svc.Authorize.Authorize(ctx, authorizeParams(""))
	require.NoError(t, err)
	u, err := url.Parse(dest)
	require.NoError(t, err)
	assert.Equal(t, "localhost", u.Host)
	assert.Equal(t, "st", u.Query().Get("state"))
	newCode := u.Query().Get("code")

	resp, err := e.svc.Token.ExchangeAuthCode(ctx, "spa", newCode, verifier, "http://localhost/cb")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.IDToken)

	// otra policy exige login
	dest, err = e.svc.Authorize.Authorize(ctx, authorizeParams("change_password"))
	require.NoError(t, err)
	assert.Contains(t, dest, "/identity/authorize-password?")

	// otro navegador no tiene sesión
	dest, err = e.svc.Authorize.Authorize(flow.WithSessionID(context.Background(), "browser-2"), authorizeParams(""))
	require.NoError(t, err)
	assert.Contains(t, dest, "/identity/authorize-password?")
}

func TestAuthorize_ClearsStaleSession(t *testing.T) {
	e := newEnv(t, false)
	ctx := flow.WithSessionID(context.Background(), "browser-1")

	// sesión guardada para otra app bajo el mismo client_id
	require.NoError(t, e.sessions.Save(ctx, "spa", types.ServerSession{AppID: "other-app", User: *e.user}))
	dest, err := e.svc.Authorize.Authorize(ctx, authorizeParams(""))
	require.NoError(t, err)
	assert.Contains(t, dest, "/identity/authorize-password?")
	sess, err := e.sessions.Get(ctx, "spa")
	require.NoError(t, err)
	assert.Nil(t, sess)

	// usuario deshabilitado: la sesión se descarta
	require.NoError(t, e.sessions.Save(ctx, "spa", types.ServerSession{AppID: e.app.ID, User: *e.user}))
	disabled := *e.user
	disabled.IsActive = false
	_, err = e.store.UpdateUser(ctx, &disabled)
	require.NoError(t, err)
	dest, err = e.svc.Authorize.Authorize(ctx, authorizeParams(""))
	require.NoError(t, err)
	assert.Contains(t, dest, "/identity/authorize-password?")
	sess, err = e.sessions.Get(ctx, "spa")
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestDiscoveryAndJWKS(t *testing.T) {
	e := newEnv(t, false)
	d := e.svc.OIDC.Discovery(context.Background())
	assert.Equal(t, "https://auth.example.com/.well-known/jwks.json", d.JwksURI)

	set, err := e.svc.OIDC.JWKS(context.Background())
	require.NoError(t, err)
	require.Len(t, set.Keys, 1)
	assert.Equal(t, signingKey(t).KID, set.Keys[0].KeyID)
}
