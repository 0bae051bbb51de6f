package passkey

import (
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/dropDatabas3/melody/internal/domain/repository"
)

// waUser adapta User + credenciales a webauthn.User. El user handle es el
// id interno (no el email).
type waUser struct {
	u     *repository.User
	creds []repository.PasskeyCredential
}

func (w *waUser) WebAuthnID() []byte          { return []byte(w.u.ID) }
func (w *waUser) WebAuthnName() string        { return w.u.Email }
func (w *waUser) WebAuthnDisplayName() string { return w.u.DisplayName() }

func (w *waUser) WebAuthnCredentials() []webauthn.Credential {
	out := make([]webauthn.Credential, 0, len(w.creds))
	for _, c := range w.creds {
		transports := make([]protocol.AuthenticatorTransport, 0, len(c.Transports))
		for _, t := range c.Transports {
			transports = append(transports, protocol.AuthenticatorTransport(t))
		}
		out = append(out, webauthn.Credential{
			ID:              c.CredentialID,
			PublicKey:       c.PublicKey,
			AttestationType: c.AttestationType,
			Transport:       transports,
			Authenticator: webauthn.Authenticator{
				AAGUID:    c.AAGUID,
				SignCount: c.SignCounter,
			},
		})
	}
	return out
}

func toRecord(userID string, c *webauthn.Credential) *repository.PasskeyCredential {
	transports := make([]string, 0, len(c.Transport))
	for _, t := range c.Transport {
		transports = append(transports, string(t))
	}
	return &repository.PasskeyCredential{
		UserID:          userID,
		CredentialID:    c.ID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		AAGUID:          c.Authenticator.AAGUID,
		Transports:      transports,
		SignCounter:     c.Authenticator.SignCount,
	}
}
