package identity

import (
	"context"

	"github.com/dropDatabas3/melody/internal/audit"
	"github.com/dropDatabas3/melody/internal/cache"
	httperrors "github.com/dropDatabas3/melody/internal/http/errors"
	"github.com/dropDatabas3/melody/internal/observability/logger"
	tokens "github.com/dropDatabas3/melody/internal/security/token"
)

// SendResetPasswordCode envía un código al email si la cuenta existe y
// tiene password. La respuesta es la misma en cualquier caso.
func (s *identityService) SendResetPasswordCode(ctx context.Context, email string) error {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("identity.reset.code"))

	if !s.deps.Features.PasswordReset || !s.deps.Features.PasswordSignIn {
		return httperrors.ErrFeatureDisabled
	}
	email = normEmail(email)
	if email == "" {
		return httperrors.ErrInvalidRequest.WithDetail("email requerido")
	}
	u, err := s.deps.Users.GetUserByEmail(ctx, email)
	if err != nil || u.PasswordHash == "" || !u.IsActive {
		log.Debug("reset code skipped", logger.Email(email), logger.Err(err))
		return nil
	}

	code, err := tokens.NumericCode(resetCodeLength)
	if err != nil {
		return httperrors.Internal(err)
	}
	ttl := s.deps.Features.ResetCodeTTL
	if err := s.resetCodes.Put(ctx, email, pendingCode{Hash: tokens.SHA256Hex(code)}, ttl); err != nil {
		return httperrors.Internal(err)
	}
	_ = s.resetAttempts.Reset(ctx, email)
	if err := s.deps.Mailer.SendPasswordResetCode(ctx, u.Email, u.FirstName, code, ttl); err != nil {
		log.Error("send reset code", logger.UserID(u.ID), logger.Err(err))
		return httperrors.Internal(err)
	}
	log.Info("reset code sent", logger.UserID(u.ID))
	return nil
}

// ResetPassword verifica el código y reemplaza el password. Con
// unlock_via_password_reset también limpia el lockout de la cuenta.
func (s *identityService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("identity.reset"))

	if !s.deps.Features.PasswordReset || !s.deps.Features.PasswordSignIn {
		return httperrors.ErrFeatureDisabled
	}
	email = normEmail(email)
	if email == "" || code == "" {
		return httperrors.ErrInvalidRequest
	}
	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return err
	}

	if err := s.consumeCode(ctx, s.resetCodes, s.resetAttempts, email, code, ""); err != nil {
		return err
	}

	u, err := s.deps.Users.GetUserByEmail(ctx, email)
	if err != nil {
		return httperrors.ErrInvalidMfaCode
	}
	u.PasswordHash = hash
	if _, err := s.deps.Users.UpdateUser(ctx, u); err != nil {
		return httperrors.Internal(err)
	}
	if s.deps.Lockout.UnlockViaPasswordReset {
		if err := s.deps.Accounts.Clear(ctx, email); err != nil {
			log.Warn("clear account lockout", logger.Err(err))
		}
	}
	audit.Log(ctx, audit.PasswordReset, logger.UserID(u.ID))
	return nil
}

// consumeCode valida un código enviado por email y lo consume. Después de
// maxCodeAttempts fallos el código se descarta. email != "" exige que el
// código se haya emitido para ese destino.
func (s *identityService) consumeCode(ctx context.Context, ns cache.Namespace[pendingCode], attempts cache.Counter, id, code, email string) error {
	pc, err := ns.Get(ctx, id)
	if cache.IsNotFound(err) {
		return httperrors.ErrInvalidMfaCode
	}
	if err != nil {
		return httperrors.Internal(err)
	}
	if !tokens.Equal(pc.Hash, tokens.SHA256Hex(code)) || (email != "" && pc.Email != email) {
		n, err := attempts.Incr(ctx, id)
		if err != nil {
			return httperrors.Internal(err)
		}
		if n >= maxCodeAttempts {
			_ = ns.Delete(ctx, id)
		}
		return httperrors.ErrInvalidMfaCode
	}
	// dos requests con el mismo código: solo uno lo toma
	taken, err := ns.Take(ctx, id)
	if cache.IsNotFound(err) || (err == nil && taken.Hash != pc.Hash) {
		return httperrors.ErrInvalidMfaCode
	}
	if err != nil {
		return httperrors.Internal(err)
	}
	_ = attempts.Reset(ctx, id)
	return nil
}
