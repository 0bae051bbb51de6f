package identity

import (
	"context"

	"github.com/dropDatabas3/melody/internal/audit"
	"github.com/dropDatabas3/melody/internal/domain/repository"
	"github.com/dropDatabas3/melody/internal/domain/types"
	httperrors "github.com/dropDatabas3/melody/internal/http/errors"
	"github.com/dropDatabas3/melody/internal/observability/logger"
	"github.com/dropDatabas3/melody/internal/security/password"
	tokens "github.com/dropDatabas3/melody/internal/security/token"
)

// ChangePassword atiende la policy change_password.
func (s *identityService) ChangePassword(ctx context.Context, code, oldPassword, newPassword string) (*types.AuthorizeResult, error) {
	body, err := s.deps.Codes.LoadAt(ctx, code, types.NextPageChangePassword)
	if err != nil {
		return nil, err
	}
	u, err := s.loadFlowUser(ctx, body)
	if err != nil {
		return nil, err
	}
	if u.PasswordHash == "" || !password.Verify(oldPassword, u.PasswordHash) {
		return nil, httperrors.ErrNoUser
	}
	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return nil, err
	}
	u.PasswordHash = hash
	if u, err = s.deps.Users.UpdateUser(ctx, u); err != nil {
		return nil, httperrors.Internal(err)
	}
	audit.Log(ctx, audit.PasswordChanged, logger.UserID(u.ID))
	return s.policyDone(ctx, code, body, u)
}

// SendChangeEmailCode envía un código de verificación al email nuevo.
func (s *identityService) SendChangeEmailCode(ctx context.Context, code, newEmail string) error {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("identity.change_email.code"))

	body, err := s.deps.Codes.LoadAt(ctx, code, types.NextPageChangeEmail)
	if err != nil {
		return err
	}
	u, err := s.loadFlowUser(ctx, body)
	if err != nil {
		return err
	}
	newEmail = normEmail(newEmail)
	if newEmail == "" || newEmail == normEmail(u.Email) {
		return httperrors.ErrInvalidRequest.WithDetail("email inválido")
	}
	if _, err := s.deps.Users.GetUserByEmail(ctx, newEmail); err == nil {
		return httperrors.ErrUserExists
	} else if !repository.IsNotFound(err) {
		return httperrors.Internal(err)
	}

	verify, err := tokens.NumericCode(resetCodeLength)
	if err != nil {
		return httperrors.Internal(err)
	}
	ttl := s.deps.Features.ChangeEmailTTL
	if err := s.emailCodes.Put(ctx, u.ID, pendingCode{Hash: tokens.SHA256Hex(verify), Email: newEmail}, ttl); err != nil {
		return httperrors.Internal(err)
	}
	_ = s.emailAttempts.Reset(ctx, u.ID)
	if err := s.deps.Mailer.SendChangeEmailCode(ctx, newEmail, u.FirstName, verify, ttl); err != nil {
		log.Error("send change email code", logger.UserID(u.ID), logger.Err(err))
		return httperrors.Internal(err)
	}
	return nil
}

// ChangeEmail verifica el código enviado al email nuevo y lo aplica.
func (s *identityService) ChangeEmail(ctx context.Context, code, newEmail, verifyCode string) (*types.AuthorizeResult, error) {
	body, err := s.deps.Codes.LoadAt(ctx, code, types.NextPageChangeEmail)
	if err != nil {
		return nil, err
	}
	u, err := s.loadFlowUser(ctx, body)
	if err != nil {
		return nil, err
	}
	newEmail = normEmail(newEmail)
	if err := s.consumeCode(ctx, s.emailCodes, s.emailAttempts, u.ID, verifyCode, newEmail); err != nil {
		return nil, err
	}
	u.Email = newEmail
	u.EmailVerified = true
	u, err = s.deps.Users.UpdateUser(ctx, u)
	if repository.IsConflict(err) {
		return nil, httperrors.ErrUserExists
	}
	if err != nil {
		return nil, httperrors.Internal(err)
	}
	audit.Log(ctx, audit.EmailChanged, logger.UserID(u.ID))
	return s.policyDone(ctx, code, body, u)
}

// ResetMfa borra todos los factores enrolados; el próximo sign-in vuelve a
// pedir el enrolamiento si la configuración lo exige.
func (s *identityService) ResetMfa(ctx context.Context, code string) (*types.AuthorizeResult, error) {
	body, err := s.deps.Codes.LoadAt(ctx, code, types.NextPageResetMfa)
	if err != nil {
		return nil, err
	}
	u, err := s.loadFlowUser(ctx, body)
	if err != nil {
		return nil, err
	}
	u.MfaTypes = nil
	u.OtpSecret = ""
	u.OtpVerified = false
	u.SmsPhoneNumber = ""
	u.SmsPhoneNumberVerified = false
	if u, err = s.deps.Users.UpdateUser(ctx, u); err != nil {
		return nil, httperrors.Internal(err)
	}
	audit.Log(ctx, audit.MfaReset, logger.UserID(u.ID))
	return s.policyDone(ctx, code, body, u)
}
