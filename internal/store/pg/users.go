package pg

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/melody/internal/domain/repository"
)

const userColumns = `id, auth_id, email, email_verified, password_hash, first_name, last_name, locale,
    is_active, mfa_types, otp_secret, otp_verified, sms_phone_number, sms_phone_number_verified,
    recovery_code_hash, skip_passkey_enroll, social_account_id, social_account_type,
    saml_idp_name, saml_external_id, roles, created_at, updated_at`

func scanUser(row pgx.Row) (*repository.User, error) {
	var u repository.User
	var mfa []string
	err := row.Scan(
		&u.ID, &u.AuthID, &u.Email, &u.EmailVerified, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Locale,
		&u.IsActive, &mfa, &u.OtpSecret, &u.OtpVerified, &u.SmsPhoneNumber, &u.SmsPhoneNumberVerified,
		&u.RecoveryCodeHash, &u.SkipPasskeyEnroll, &u.SocialAccountID, &u.SocialAccountType,
		&u.SamlIdpName, &u.SamlExternalID, &u.Roles, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	u.MfaTypes = make([]repository.MfaType, 0, len(mfa))
	for _, t := range mfa {
		u.MfaTypes = append(u.MfaTypes, repository.MfaType(t))
	}
	return &u, nil
}

func mfaStrings(ts []repository.MfaType) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, string(t))
	}
	return out
}

func (s *Store) getUser(ctx context.Context, where string, args ...any) (*repository.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE deleted_at IS NULL AND ` + where + ` LIMIT 1`
	return scanUser(s.pool.QueryRow(ctx, q, args...))
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*repository.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, repository.ErrNotFound
	}
	return s.getUser(ctx, `id = $1`, id)
}

func (s *Store) GetUserByAuthID(ctx context.Context, authID string) (*repository.User, error) {
	if _, err := uuid.Parse(authID); err != nil {
		return nil, repository.ErrNotFound
	}
	return s.getUser(ctx, `auth_id = $1`, authID)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*repository.User, error) {
	return s.getUser(ctx, `lower(email) = lower($1)`, strings.TrimSpace(email))
}

func (s *Store) GetUserBySocialAccount(ctx context.Context, accountType, accountID string) (*repository.User, error) {
	if accountID == "" {
		return nil, repository.ErrNotFound
	}
	return s.getUser(ctx, `social_account_type = $1 AND social_account_id = $2`, accountType, accountID)
}

func (s *Store) GetUserBySamlAccount(ctx context.Context, idpName, externalID string) (*repository.User, error) {
	if idpName == "" || externalID == "" {
		return nil, repository.ErrNotFound
	}
	return s.getUser(ctx, `saml_idp_name = $1 AND saml_external_id = $2`, idpName, externalID)
}

func (s *Store) CreateUser(ctx context.Context, u *repository.User) (*repository.User, error) {
	id, authID := u.ID, u.AuthID
	if id == "" {
		id = uuid.NewString()
	}
	if authID == "" {
		authID = uuid.NewString()
	}
	q := `
INSERT INTO users (id, auth_id, email, email_verified, password_hash, first_name, last_name, locale,
    is_active, mfa_types, otp_secret, otp_verified, sms_phone_number, sms_phone_number_verified,
    recovery_code_hash, skip_passkey_enroll, social_account_id, social_account_type,
    saml_idp_name, saml_external_id, roles)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
RETURNING ` + userColumns
	return scanUser(s.pool.QueryRow(ctx, q,
		id, authID, strings.TrimSpace(u.Email), u.EmailVerified, u.PasswordHash, u.FirstName, u.LastName, u.Locale,
		u.IsActive, mfaStrings(u.MfaTypes), u.OtpSecret, u.OtpVerified, u.SmsPhoneNumber, u.SmsPhoneNumberVerified,
		u.RecoveryCodeHash, u.SkipPasskeyEnroll, u.SocialAccountID, u.SocialAccountType,
		u.SamlIdpName, u.SamlExternalID, nonNil(u.Roles),
	))
}

// UpdateUser reescribe los campos mutables; auth_id y created_at no cambian.
func (s *Store) UpdateUser(ctx context.Context, u *repository.User) (*repository.User, error) {
	if _, err := uuid.Parse(u.ID); err != nil {
		return nil, repository.ErrNotFound
	}
	q := `
UPDATE users SET
    email = $2, email_verified = $3, password_hash = $4, first_name = $5, last_name = $6, locale = $7,
    is_active = $8, mfa_types = $9, otp_secret = $10, otp_verified = $11, sms_phone_number = $12,
    sms_phone_number_verified = $13, recovery_code_hash = $14, skip_passkey_enroll = $15,
    social_account_id = $16, social_account_type = $17, saml_idp_name = $18, saml_external_id = $19,
    roles = $20, updated_at = now()
WHERE id = $1 AND deleted_at IS NULL
RETURNING ` + userColumns
	return scanUser(s.pool.QueryRow(ctx, q,
		u.ID, strings.TrimSpace(u.Email), u.EmailVerified, u.PasswordHash, u.FirstName, u.LastName, u.Locale,
		u.IsActive, mfaStrings(u.MfaTypes), u.OtpSecret, u.OtpVerified, u.SmsPhoneNumber,
		u.SmsPhoneNumberVerified, u.RecoveryCodeHash, u.SkipPasskeyEnroll,
		u.SocialAccountID, u.SocialAccountType, u.SamlIdpName, u.SamlExternalID,
		nonNil(u.Roles),
	))
}
