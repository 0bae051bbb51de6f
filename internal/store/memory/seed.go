package memory

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/melody/internal/domain/repository"
	"github.com/dropDatabas3/melody/internal/security/password"
)

// Seed es el archivo YAML con los datos iniciales del store en memoria.
type Seed struct {
	Apps []struct {
		ID           string   `yaml:"id"`
		ClientID     string   `yaml:"client_id"`
		Secret       string   `yaml:"secret"`
		Name         string   `yaml:"name"`
		Type         string   `yaml:"type"`
		Scopes       []string `yaml:"scopes"`
		RedirectURIs []string `yaml:"redirect_uris"`
		Disabled     bool     `yaml:"disabled"`
	} `yaml:"apps"`

	Users []struct {
		Email     string   `yaml:"email"`
		Password  string   `yaml:"password"`
		FirstName string   `yaml:"first_name"`
		LastName  string   `yaml:"last_name"`
		Roles     []string `yaml:"roles"`
		Verified  bool     `yaml:"email_verified"`
	} `yaml:"users"`

	Scopes []struct {
		Name string `yaml:"name"`
		Type string `yaml:"type"`
		Note string `yaml:"note"`
	} `yaml:"scopes"`

	Orgs []struct {
		Slug string `yaml:"slug"`
		Name string `yaml:"name"`
	} `yaml:"orgs"`

	SamlIdps []struct {
		Name               string `yaml:"name"`
		MetadataFile       string `yaml:"metadata_file"`
		Metadata           string `yaml:"metadata"`
		UserIDAttribute    string `yaml:"user_id_attribute"`
		EmailAttribute     string `yaml:"email_attribute"`
		FirstNameAttribute string `yaml:"first_name_attribute"`
		LastNameAttribute  string `yaml:"last_name_attribute"`
	} `yaml:"saml_idps"`
}

// LoadSeed lee y parsea el archivo.
func LoadSeed(path string) (*Seed, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seed: read %s: %w", path, err)
	}
	var s Seed
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("seed: parse %s: %w", path, err)
	}
	return &s, nil
}

// Apply carga el seed. Los passwords se hashean con argon2id.
func (s *Store) Apply(ctx context.Context, seed *Seed, params password.Params) error {
	for _, a := range seed.Apps {
		typ := repository.AppType(a.Type)
		if typ == "" {
			typ = repository.AppTypeSPA
		}
		s.PutApp(repository.App{
			ID:           a.ID,
			ClientID:     a.ClientID,
			Secret:       a.Secret,
			Name:         a.Name,
			Type:         typ,
			Scopes:       a.Scopes,
			RedirectURIs: a.RedirectURIs,
			IsActive:     !a.Disabled,
		})
	}
	for _, sc := range seed.Scopes {
		typ := repository.AppType(sc.Type)
		if typ == "" {
			typ = repository.AppTypeSPA
		}
		s.PutScope(repository.Scope{Name: sc.Name, Type: typ, Note: sc.Note})
	}
	for _, o := range seed.Orgs {
		s.PutOrg(repository.Org{Slug: o.Slug, Name: o.Name})
	}
	for _, idp := range seed.SamlIdps {
		md := idp.Metadata
		if idp.MetadataFile != "" {
			b, err := os.ReadFile(idp.MetadataFile)
			if err != nil {
				return fmt.Errorf("seed: saml idp %s: %w", idp.Name, err)
			}
			md = string(b)
		}
		s.PutSamlIdp(repository.SamlIdp{
			Name:               idp.Name,
			IsActive:           true,
			Metadata:           md,
			UserIDAttribute:    idp.UserIDAttribute,
			EmailAttribute:     idp.EmailAttribute,
			FirstNameAttribute: idp.FirstNameAttribute,
			LastNameAttribute:  idp.LastNameAttribute,
		})
	}
	for _, u := range seed.Users {
		hash := ""
		if u.Password != "" {
			h, err := password.Hash(params, u.Password)
			if err != nil {
				return fmt.Errorf("seed: hash password %s: %w", u.Email, err)
			}
			hash = h
		}
		_, err := s.CreateUser(ctx, &repository.User{
			Email:         u.Email,
			EmailVerified: u.Verified,
			PasswordHash:  hash,
			FirstName:     u.FirstName,
			LastName:      u.LastName,
			Roles:         u.Roles,
			IsActive:      true,
		})
		if err != nil && !repository.IsConflict(err) {
			return fmt.Errorf("seed: user %s: %w", u.Email, err)
		}
	}
	return nil
}
