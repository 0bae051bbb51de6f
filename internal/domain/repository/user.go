package repository

import (
	"context"
	"slices"
	"time"
)

type MfaType string

const (
	MfaOtp   MfaType = "otp"
	MfaEmail MfaType = "email"
	MfaSms   MfaType = "sms"
)

// ValidMfaType limita mfaTypes a {otp,email,sms}.
func ValidMfaType(t MfaType) bool {
	return t == MfaOtp || t == MfaEmail || t == MfaSms
}

// User es la cuenta local. Los campos secretos no se serializan: el
// snapshot que viaja en el auth code no los necesita.
type User struct {
	ID            string    `json:"id"`
	AuthID        string    `json:"authId"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"emailVerified"`
	PasswordHash  string    `json:"-"`
	FirstName     string    `json:"firstName,omitempty"`
	LastName      string    `json:"lastName,omitempty"`
	Locale        string    `json:"locale,omitempty"`
	IsActive      bool      `json:"isActive"`
	MfaTypes      []MfaType `json:"mfaTypes"`

	OtpSecret              string `json:"-"`
	OtpVerified            bool   `json:"otpVerified"`
	SmsPhoneNumber         string `json:"smsPhoneNumber,omitempty"`
	SmsPhoneNumberVerified bool   `json:"smsPhoneNumberVerified"`
	RecoveryCodeHash       string `json:"-"`
	SkipPasskeyEnroll      bool   `json:"skipPasskeyEnroll"`

	// A lo sumo una cuenta social vinculada.
	SocialAccountID   string `json:"socialAccountId,omitempty"`
	SocialAccountType string `json:"socialAccountType,omitempty"`

	// Federación SAML: (idp, id externo).
	SamlIdpName    string `json:"samlIdpName,omitempty"`
	SamlExternalID string `json:"samlExternalId,omitempty"`

	Roles     []string   `json:"roles"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"-"`
}

// HasMfa indica si el usuario enroló el tipo.
func (u *User) HasMfa(t MfaType) bool { return slices.Contains(u.MfaTypes, t) }

// AddMfa agrega el tipo si no estaba.
func (u *User) AddMfa(t MfaType) {
	if !u.HasMfa(t) {
		u.MfaTypes = append(u.MfaTypes, t)
	}
}

// HasPassword: usuarios creados por social/SAML no tienen password.
func (u *User) HasPassword() bool { return u.PasswordHash != "" }

// DisplayName para mails y opciones WebAuthn.
func (u *User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Email
	}
}

// UserRepository: las lecturas ignoran usuarios borrados.
type UserRepository interface {
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByAuthID(ctx context.Context, authID string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserBySocialAccount(ctx context.Context, accountType, accountID string) (*User, error)
	GetUserBySamlAccount(ctx context.Context, idpName, externalID string) (*User, error)

	// CreateUser asigna ID/AuthID si vienen vacíos. ErrConflict si el email existe.
	CreateUser(ctx context.Context, u *User) (*User, error)
	// UpdateUser persiste todos los campos mutables y relee.
	UpdateUser(ctx context.Context, u *User) (*User, error)
}
