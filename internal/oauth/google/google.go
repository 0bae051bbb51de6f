// Package google verifica ID tokens de Google Sign-In (botón del lado del
// navegador). La firma se valida contra el JWKS publicado por el issuer.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

var ErrInvalidToken = errors.New("google: invalid id token")

// Identity son los datos que usamos del ID token.
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
	GivenName     string
	FamilyName    string
	Locale        string
}

type claims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Locale        string `json:"locale"`
}

type Verifier struct {
	v *oidc.IDTokenVerifier
}

// New hace discovery del issuer; el audience debe ser clientID.
func New(ctx context.Context, issuer, clientID string) (*Verifier, error) {
	p, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("google: discovery: %w", err)
	}
	return &Verifier{v: p.Verifier(&oidc.Config{ClientID: clientID})}, nil
}

// NewWithKeySet evita el discovery (tests, issuers sin red).
func NewWithKeySet(issuer, clientID string, ks oidc.KeySet) *Verifier {
	return &Verifier{v: oidc.NewVerifier(issuer, ks, &oidc.Config{ClientID: clientID})}
}

func (g *Verifier) Verify(ctx context.Context, raw string) (*Identity, error) {
	idt, err := g.v.Verify(ctx, strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	var c claims
	if err := idt.Claims(&c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.Email == "" {
		return nil, fmt.Errorf("%w: missing email", ErrInvalidToken)
	}
	return &Identity{
		Subject:       idt.Subject,
		Email:         strings.ToLower(c.Email),
		EmailVerified: c.EmailVerified,
		GivenName:     c.GivenName,
		FamilyName:    c.FamilyName,
		Locale:        c.Locale,
	}, nil
}
