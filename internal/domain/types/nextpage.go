package types

// NextPage es el paso pendiente que devuelve el resolver.
type NextPage string

const (
	NextPageNone           NextPage = ""
	NextPageConsent        NextPage = "consent"
	NextPageMfaEnroll      NextPage = "mfa_enroll"
	NextPageOtpSetup       NextPage = "otp_setup"
	NextPageOtpMfa         NextPage = "otp_mfa"
	NextPageSmsMfa         NextPage = "sms_mfa"
	NextPageEmailMfa       NextPage = "email_mfa"
	NextPagePasskeyEnroll  NextPage = "passkey_enroll"
	NextPageChangePassword NextPage = "change_password"
	NextPageChangeEmail    NextPage = "change_email"
	NextPageResetMfa       NextPage = "reset_mfa"
	NextPageManagePasskey  NextPage = "manage_passkey"
)

var pagePaths = map[NextPage]string{
	NextPageConsent:        "authorize-consent",
	NextPageMfaEnroll:      "authorize-mfa-enroll",
	NextPageOtpSetup:       "authorize-otp-setup",
	NextPageOtpMfa:         "authorize-otp-mfa",
	NextPageSmsMfa:         "authorize-sms-mfa",
	NextPageEmailMfa:       "authorize-email-mfa",
	NextPagePasskeyEnroll:  "authorize-passkey-enroll",
	NextPageChangePassword: "change-password",
	NextPageChangeEmail:    "change-email",
	NextPageResetMfa:       "reset-mfa",
	NextPageManagePasskey:  "manage-passkey",
}

// Path es el segmento de la página de identidad que atiende el paso.
func (p NextPage) Path() string { return pagePaths[p] }

// IsPolicyPage indica los pasos finales de policy (no son de seguridad).
func (p NextPage) IsPolicyPage() bool {
	switch p {
	case NextPageChangePassword, NextPageChangeEmail, NextPageResetMfa, NextPageManagePasskey:
		return true
	}
	return false
}
