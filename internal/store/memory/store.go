// Package memory implementa repository.Store en memoria. Se usa en dev,
// en tests y cuando storage.driver=memory (datos iniciales vía seed YAML).
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/melody/internal/domain/repository"
)

type Store struct {
	mu       sync.RWMutex
	apps     map[string]repository.App
	users    map[string]repository.User
	consents map[string]repository.Consent
	passkeys map[string]repository.PasskeyCredential
	idps     map[string]repository.SamlIdp
	scopes   map[string]repository.Scope
	orgs     map[string]repository.Org
	now      func() time.Time
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		apps:     map[string]repository.App{},
		users:    map[string]repository.User{},
		consents: map[string]repository.Consent{},
		passkeys: map[string]repository.PasskeyCredential{},
		idps:     map[string]repository.SamlIdp{},
		scopes:   map[string]repository.Scope{},
		orgs:     map[string]repository.Org{},
		now:      time.Now,
	}
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close()                     {}

// ─── Apps ───

// PutApp agrega o reemplaza una app (seed y tests).
func (s *Store) PutApp(a repository.App) *repository.App {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		for id, cur := range s.apps {
			if cur.ClientID == a.ClientID {
				a.ID = id
			}
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC()
	}
	s.apps[a.ID] = cloneApp(a)
	out := cloneApp(a)
	return &out
}

func (s *Store) GetAppByClientID(_ context.Context, clientID string) (*repository.App, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.apps {
		if a.ClientID == clientID {
			out := cloneApp(a)
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) GetAppByID(_ context.Context, id string) (*repository.App, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.apps[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneApp(a)
	return &out, nil
}

func cloneApp(a repository.App) repository.App {
	a.Scopes = slices.Clone(a.Scopes)
	a.RedirectURIs = slices.Clone(a.RedirectURIs)
	return a
}

// ─── Users ───

func normEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

func (s *Store) findUser(match func(u *repository.User) bool) (*repository.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.DeletedAt == nil && match(&u) {
			out := cloneUser(u)
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) GetUserByID(_ context.Context, id string) (*repository.User, error) {
	return s.findUser(func(u *repository.User) bool { return u.ID == id })
}

func (s *Store) GetUserByAuthID(_ context.Context, authID string) (*repository.User, error) {
	return s.findUser(func(u *repository.User) bool { return u.AuthID == authID })
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*repository.User, error) {
	e := normEmail(email)
	return s.findUser(func(u *repository.User) bool { return normEmail(u.Email) == e })
}

func (s *Store) GetUserBySocialAccount(_ context.Context, accountType, accountID string) (*repository.User, error) {
	return s.findUser(func(u *repository.User) bool {
		return u.SocialAccountType == accountType && u.SocialAccountID == accountID
	})
}

func (s *Store) GetUserBySamlAccount(_ context.Context, idpName, externalID string) (*repository.User, error) {
	return s.findUser(func(u *repository.User) bool {
		return u.SamlIdpName == idpName && u.SamlExternalID == externalID
	})
}

func (s *Store) CreateUser(_ context.Context, u *repository.User) (*repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := normEmail(u.Email)
	for _, other := range s.users {
		if other.DeletedAt == nil && normEmail(other.Email) == e {
			return nil, repository.ErrConflict
		}
	}
	nu := cloneUser(*u)
	if nu.ID == "" {
		nu.ID = uuid.NewString()
	}
	if nu.AuthID == "" {
		nu.AuthID = uuid.NewString()
	}
	now := s.now().UTC()
	nu.CreatedAt, nu.UpdatedAt = now, now
	s.users[nu.ID] = nu
	out := cloneUser(nu)
	return &out, nil
}

func (s *Store) UpdateUser(_ context.Context, u *repository.User) (*repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.users[u.ID]
	if !ok || cur.DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	e := normEmail(u.Email)
	for id, other := range s.users {
		if id != u.ID && other.DeletedAt == nil && normEmail(other.Email) == e {
			return nil, repository.ErrConflict
		}
	}
	nu := cloneUser(*u)
	nu.CreatedAt = cur.CreatedAt
	nu.UpdatedAt = s.now().UTC()
	s.users[nu.ID] = nu
	out := cloneUser(nu)
	return &out, nil
}

func cloneUser(u repository.User) repository.User {
	u.MfaTypes = slices.Clone(u.MfaTypes)
	u.Roles = slices.Clone(u.Roles)
	return u
}

// ─── Consents ───

func consentKey(userID, appID string) string { return userID + "|" + appID }

func (s *Store) HasConsent(_ context.Context, userID, appID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.consents[consentKey(userID, appID)]
	return ok, nil
}

func (s *Store) UpsertConsent(_ context.Context, userID, appID string) (*repository.Consent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := consentKey(userID, appID)
	c, ok := s.consents[k]
	if !ok {
		c = repository.Consent{UserID: userID, AppID: appID, CreatedAt: s.now().UTC()}
		s.consents[k] = c
	}
	return &c, nil
}

func (s *Store) DeleteConsent(_ context.Context, userID, appID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.consents, consentKey(userID, appID))
	return nil
}

// ─── Passkeys ───

func (s *Store) ListPasskeysByUser(_ context.Context, userID string) ([]repository.PasskeyCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []repository.PasskeyCredential
	for _, p := range s.passkeys {
		if p.UserID == userID {
			out = append(out, clonePasskey(p))
		}
	}
	slices.SortFunc(out, func(a, b repository.PasskeyCredential) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (s *Store) CreatePasskey(_ context.Context, c *repository.PasskeyCredential) (*repository.PasskeyCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.passkeys {
		if slices.Equal(p.CredentialID, c.CredentialID) {
			return nil, repository.ErrConflict
		}
	}
	np := clonePasskey(*c)
	if np.ID == "" {
		np.ID = uuid.NewString()
	}
	np.CreatedAt = s.now().UTC()
	s.passkeys[np.ID] = np
	out := clonePasskey(np)
	return &out, nil
}

func (s *Store) UpdatePasskeyCounter(_ context.Context, id string, newCounter uint32) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.passkeys[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if newCounter <= p.SignCounter {
		return false, nil
	}
	now := s.now().UTC()
	p.SignCounter = newCounter
	p.LastUsedAt = &now
	s.passkeys[id] = p
	return true, nil
}

func (s *Store) DeletePasskey(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.passkeys[id]
	if !ok || p.UserID != userID {
		return repository.ErrNotFound
	}
	delete(s.passkeys, id)
	return nil
}

func clonePasskey(p repository.PasskeyCredential) repository.PasskeyCredential {
	p.CredentialID = slices.Clone(p.CredentialID)
	p.PublicKey = slices.Clone(p.PublicKey)
	p.AAGUID = slices.Clone(p.AAGUID)
	p.Transports = slices.Clone(p.Transports)
	return p
}

// ─── SAML / scopes / orgs ───

func (s *Store) PutSamlIdp(idp repository.SamlIdp) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idp.ID == "" {
		idp.ID = uuid.NewString()
	}
	s.idps[idp.Name] = idp
}

func (s *Store) GetSamlIdpByName(_ context.Context, name string) (*repository.SamlIdp, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idp, ok := s.idps[name]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &idp, nil
}

func (s *Store) PutScope(sc repository.Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scopes[sc.Name] = sc
}

func (s *Store) ListScopesByNames(_ context.Context, names []string) ([]repository.Scope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]repository.Scope, 0, len(names))
	for _, n := range names {
		if sc, ok := s.scopes[n]; ok {
			out = append(out, sc)
		}
	}
	return out, nil
}

func (s *Store) PutOrg(o repository.Org) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	s.orgs[o.Slug] = o
}

func (s *Store) GetOrgBySlug(_ context.Context, slug string) (*repository.Org, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orgs[slug]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &o, nil
}
