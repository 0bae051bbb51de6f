package passkey

import (
	"bytes"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/dropDatabas3/melody/internal/config"
)

// Ceremony encapsula la verificación criptográfica de WebAuthn.
type Ceremony interface {
	BeginRegistration(u webauthn.User) (*protocol.CredentialCreation, *webauthn.SessionData, error)
	FinishRegistration(u webauthn.User, s webauthn.SessionData, body []byte) (*webauthn.Credential, error)
	BeginLogin(u webauthn.User) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	// FinishLogin retorna la credencial usada y el sign counter de la aserción.
	FinishLogin(u webauthn.User, s webauthn.SessionData, body []byte) (*webauthn.Credential, uint32, error)
}

type webauthnCeremony struct {
	wa *webauthn.WebAuthn
}

// NewCeremony crea la implementación sobre go-webauthn.
func NewCeremony(cfg config.PasskeyConfig) (Ceremony, error) {
	wa, err := webauthn.New(&webauthn.Config{
		RPID:          cfg.RPID,
		RPDisplayName: cfg.RPName,
		RPOrigins:     cfg.Origins,
	})
	if err != nil {
		return nil, fmt.Errorf("webauthn: %w", err)
	}
	return &webauthnCeremony{wa: wa}, nil
}

func (c *webauthnCeremony) BeginRegistration(u webauthn.User) (*protocol.CredentialCreation, *webauthn.SessionData, error) {
	exclude := make([]protocol.CredentialDescriptor, 0, len(u.WebAuthnCredentials()))
	for _, cr := range u.WebAuthnCredentials() {
		exclude = append(exclude, cr.Descriptor())
	}
	return c.wa.BeginRegistration(u,
		webauthn.WithExclusions(exclude),
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementPreferred),
	)
}

func (c *webauthnCeremony) FinishRegistration(u webauthn.User, s webauthn.SessionData, body []byte) (*webauthn.Credential, error) {
	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	return c.wa.CreateCredential(u, s, parsed)
}

func (c *webauthnCeremony) BeginLogin(u webauthn.User) (*protocol.CredentialAssertion, *webauthn.SessionData, error) {
	return c.wa.BeginLogin(u)
}

func (c *webauthnCeremony) FinishLogin(u webauthn.User, s webauthn.SessionData, body []byte) (*webauthn.Credential, uint32, error) {
	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	cred, err := c.wa.ValidateLogin(u, s, parsed)
	if err != nil {
		return nil, 0, err
	}
	return cred, parsed.Response.AuthenticatorData.Counter, nil
}
