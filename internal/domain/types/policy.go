package types

import "strings"

// Policy es el propósito del flujo (parámetro "policy" del authorize).
type Policy string

const (
	PolicySignInOrSignUp Policy = "sign_in_or_sign_up"
	PolicyChangePassword Policy = "change_password"
	PolicyChangeEmail    Policy = "change_email"
	PolicyResetMfa       Policy = "reset_mfa"
	PolicyManagePasskey  Policy = "manage_passkey"

	samlPolicyPrefix = "saml_sso_"
)

// ParsePolicy normaliza; vacío => sign_in_or_sign_up.
func ParsePolicy(s string) (Policy, bool) {
	p := Policy(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case "":
		return PolicySignInOrSignUp, true
	case PolicySignInOrSignUp, PolicyChangePassword, PolicyChangeEmail, PolicyResetMfa, PolicyManagePasskey:
		return p, true
	}
	if name, ok := p.SamlIdpName(); ok && name != "" {
		return p, true
	}
	return "", false
}

// SamlIdpName extrae {name} de saml_sso_{name}.
func (p Policy) SamlIdpName() (string, bool) {
	return strings.CutPrefix(string(p), samlPolicyPrefix)
}

// IsSaml indica si la policy dispara login SAML.
func (p Policy) IsSaml() bool {
	_, ok := p.SamlIdpName()
	return ok
}
