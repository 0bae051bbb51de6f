package saml

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	gosaml "github.com/crewjam/saml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/melody/internal/cache"
	"github.com/dropDatabas3/melody/internal/domain/repository"
	httperrors "github.com/dropDatabas3/melody/internal/http/errors"
	"github.com/dropDatabas3/melody/internal/http/services/flow"
	"github.com/dropDatabas3/melody/internal/store/memory"
)

const idpMetadata = `<EntityDescriptor xmlns="urn:oasis:names:tc:SAML:2.0:metadata" entityID="https://idp.example.com/metadata">
  <IDPSSODescriptor protocolSupportEnumeration="urn:oasis:names:tc:SAML:2.0:protocol">
    <SingleSignOnService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Redirect" Location="https://idp.example.com/sso"/>
  </IDPSSODescriptor>
</EntityDescriptor>`

var (
	keysOnce sync.Once
	testKeys *KeyPair
)

func spKeys(t *testing.T) *KeyPair {
	t.Helper()
	keysOnce.Do(func() {
		kp, err := SelfSigned("melody-test", time.Hour)
		if err != nil {
			panic(err)
		}
		testKeys = kp
	})
	return testKeys
}

type env struct {
	svc   Service
	impl  *samlService
	store *memory.Store
	kv    cache.Client
	idp   *repository.SamlIdp
}

func newEnv(t *testing.T) *env {
	t.Helper()
	kv := cache.NewMemory(time.Minute)
	st := memory.New()
	st.PutApp(repository.App{
		ClientID:     "spa",
		Name:         "Demo",
		Type:         repository.AppTypeSPA,
		RedirectURIs: []string{"http://localhost/cb"},
		IsActive:     true,
	})
	st.PutSamlIdp(repository.SamlIdp{
		Name:               "okta",
		IsActive:           true,
		Metadata:           idpMetadata,
		UserIDAttribute:    "uid",
		EmailAttribute:     "mail",
		FirstNameAttribute: "givenName",
	})
	idp, err := st.GetSamlIdpByName(context.Background(), "okta")
	require.NoError(t, err)

	codes := flow.NewCodes(kv, 5*time.Minute)
	svc, err := NewService(Deps{
		Users:      st,
		Apps:       st,
		Idps:       st,
		Cache:      kv,
		Codes:      codes,
		Resolver:   flow.NewResolver(flow.ResolverDeps{Codes: codes, Sessions: flow.NewSessions(kv, time.Minute)}),
		Validator:  &flow.RequestValidator{Apps: st},
		Keys:       spKeys(t),
		Issuer:     "https://auth.example.com",
		IdentityUI: "https://auth.example.com/identity",
	})
	require.NoError(t, err)
	return &env{svc: svc, impl: svc.(*samlService), store: st, kv: kv, idp: idp}
}

func params(policy string) flow.AuthorizeParams {
	return flow.AuthorizeParams{
		ClientID:            "spa",
		RedirectURI:         "http://localhost/cb",
		ResponseType:        "code",
		Scope:               "openid",
		State:               "xyz",
		CodeChallenge:       "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		CodeChallengeMethod: "S256",
		Policy:              policy,
	}
}

func acsRequest(form url.Values) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "https://auth.example.com"+acsPath, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func TestLogin_RedirectsToIdpAndStoresSession(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	dest, err := e.svc.Login(ctx, params("saml_sso_okta"))
	require.NoError(t, err)
	u, err := url.Parse(dest)
	require.NoError(t, err)
	assert.Equal(t, "idp.example.com", u.Host)
	assert.NotEmpty(t, u.Query().Get("SAMLRequest"))

	relay := u.Query().Get("RelayState")
	pend, err := e.impl.sessions.Get(ctx, relay)
	require.NoError(t, err)
	assert.Equal(t, "okta", pend.IdpName)
	assert.NotEmpty(t, pend.RequestID)
	assert.Equal(t, "xyz", pend.Request.State)
}

func TestLogin_UnknownIdp(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.Login(context.Background(), params("saml_sso_nope"))
	assert.ErrorIs(t, err, httperrors.ErrNoSamlIdp)

	_, err = e.svc.Login(context.Background(), params(""))
	assert.ErrorIs(t, err, httperrors.ErrNoSamlIdp)
}

func TestACS_WrongSession(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.ACS(context.Background(), acsRequest(url.Values{"RelayState": {"unknown"}, "SAMLResponse": {"x"}}))
	assert.ErrorIs(t, err, httperrors.ErrWrongSessionID)
}

func TestACS_InvalidResponseConsumesSession(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	dest, err := e.svc.Login(ctx, params("saml_sso_okta"))
	require.NoError(t, err)
	u, _ := url.Parse(dest)
	relay := u.Query().Get("RelayState")

	form := url.Values{"RelayState": {relay}, "SAMLResponse": {"bm90LXhtbA=="}}
	_, err = e.svc.ACS(ctx, acsRequest(form))
	assert.ErrorIs(t, err, httperrors.ErrInvalidSamlResponse)

	_, err = e.svc.ACS(ctx, acsRequest(form))
	assert.ErrorIs(t, err, httperrors.ErrWrongSessionID)
}

func assertion(uid, mail string) *gosaml.Assertion {
	attrs := []gosaml.Attribute{}
	if uid != "" {
		attrs = append(attrs, gosaml.Attribute{Name: "uid", Values: []gosaml.AttributeValue{{Value: uid}}})
	}
	if mail != "" {
		attrs = append(attrs, gosaml.Attribute{FriendlyName: "mail", Values: []gosaml.AttributeValue{{Value: mail}}})
	}
	attrs = append(attrs, gosaml.Attribute{Name: "givenName", Values: []gosaml.AttributeValue{{Value: "Ana"}}})
	return &gosaml.Assertion{
		Subject:             &gosaml.Subject{NameID: &gosaml.NameID{Value: "name-id-1"}},
		AttributeStatements: []gosaml.AttributeStatement{{Attributes: attrs}},
	}
}

func TestProvision_FindOrCreate(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	u1, err := e.impl.provision(ctx, e.idp, assertion("ext-1", "Ana@Example.com"))
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", u1.Email)
	assert.Equal(t, "Ana", u1.FirstName)
	assert.Equal(t, "ext-1", u1.SamlExternalID)
	assert.False(t, u1.HasPassword())

	u2, err := e.impl.provision(ctx, e.idp, assertion("ext-1", "other@example.com"))
	require.NoError(t, err)
	assert.Equal(t, u1.ID, u2.ID)

	// sin uid se usa el NameID
	u3, err := e.impl.provision(ctx, e.idp, assertion("", "nameid@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "name-id-1", u3.SamlExternalID)
}

func TestProvision_EmailTakenByLocalAccount(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	_, err := e.store.CreateUser(ctx, &repository.User{Email: "ana@example.com", IsActive: true, PasswordHash: "x"})
	require.NoError(t, err)

	_, err = e.impl.provision(ctx, e.idp, assertion("ext-9", "ana@example.com"))
	assert.ErrorIs(t, err, httperrors.ErrUserExists)

	_, err = e.impl.provision(ctx, e.idp, assertion("ext-10", ""))
	assert.ErrorIs(t, err, httperrors.ErrInvalidSamlResponse)
}

func TestMetadata(t *testing.T) {
	e := newEnv(t)
	b, err := e.svc.Metadata(context.Background())
	require.NoError(t, err)
	s := string(b)
	assert.Contains(t, s, "https://auth.example.com"+metadataPath)
	assert.Contains(t, s, "https://auth.example.com"+acsPath)
	assert.Contains(t, s, "X509Certificate")
}

