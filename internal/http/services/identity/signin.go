package identity

import (
	"context"

	"github.com/dropDatabas3/melody/internal/audit"
	"github.com/dropDatabas3/melody/internal/domain/repository"
	"github.com/dropDatabas3/melody/internal/domain/types"
	httperrors "github.com/dropDatabas3/melody/internal/http/errors"
	"github.com/dropDatabas3/melody/internal/http/services/flow"
	"github.com/dropDatabas3/melody/internal/metrics"
	"github.com/dropDatabas3/melody/internal/observability/logger"
	"github.com/dropDatabas3/melody/internal/security/password"
)

// SignInWithPassword valida el password. El lockout se chequea antes del
// password: una cuenta bloqueada no revela si el password era correcto.
func (s *identityService) SignInWithPassword(ctx context.Context, p flow.AuthorizeParams, email, plain string) (*types.AuthorizeResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("identity.password"))

	if !s.deps.Features.PasswordSignIn {
		return nil, httperrors.ErrFeatureDisabled
	}
	app, req, err := s.deps.Validator.Validate(ctx, p)
	if err != nil {
		return nil, err
	}
	email = normEmail(email)
	if email == "" || plain == "" {
		return nil, httperrors.ErrInvalidRequest.WithDetail("email y password requeridos")
	}

	if err := s.checkAccount(ctx, email); err != nil {
		if err == httperrors.ErrAccountLocked {
			metrics.AuthFailure("account_locked")
			audit.Log(ctx, audit.AccountLocked, logger.Email(email))
		}
		return nil, err
	}

	u, err := s.deps.Users.GetUserByEmail(ctx, email)
	if err != nil && !repository.IsNotFound(err) {
		return nil, httperrors.Internal(err)
	}
	if u == nil || u.PasswordHash == "" {
		password.VerifyDummy(plain)
		metrics.AuthFailure("no_user")
		return nil, s.failAccount(ctx, email)
	}
	if !password.Verify(plain, u.PasswordHash) {
		metrics.AuthFailure("no_user")
		log.Info("wrong password", logger.UserID(u.ID))
		return nil, s.failAccount(ctx, email)
	}
	if !u.IsActive {
		return nil, httperrors.ErrUserDisabled
	}
	if err := s.deps.Accounts.Clear(ctx, email); err != nil {
		log.Warn("clear account lockout", logger.Err(err))
	}

	res, err := s.authenticated(ctx, app, u, req, false)
	if err != nil {
		return nil, err
	}
	log.Info("signed in with password", logger.UserID(u.ID), logger.ClientID(app.ClientID))
	return res, nil
}

// SignUp crea la cuenta local y entra al flujo como un sign-in con password.
func (s *identityService) SignUp(ctx context.Context, p flow.AuthorizeParams, in SignUpInput) (*types.AuthorizeResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("identity.signup"))

	if !s.deps.Features.SignUp || !s.deps.Features.PasswordSignIn {
		return nil, httperrors.ErrFeatureDisabled
	}
	app, req, err := s.deps.Validator.Validate(ctx, p)
	if err != nil {
		return nil, err
	}
	email := normEmail(in.Email)
	if email == "" {
		return nil, httperrors.ErrInvalidRequest.WithDetail("email requerido")
	}
	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	u, err := s.deps.Users.CreateUser(ctx, &repository.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Locale:       req.Locale,
		IsActive:     true,
	})
	if repository.IsConflict(err) {
		return nil, httperrors.ErrUserExists
	}
	if err != nil {
		return nil, httperrors.Internal(err)
	}
	log.Info("user created", logger.UserID(u.ID))
	return s.authenticated(ctx, app, u, req, false)
}
