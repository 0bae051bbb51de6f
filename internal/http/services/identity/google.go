package identity

import (
	"context"
	"strings"

	"github.com/dropDatabas3/melody/internal/domain/repository"
	"github.com/dropDatabas3/melody/internal/domain/types"
	httperrors "github.com/dropDatabas3/melody/internal/http/errors"
	"github.com/dropDatabas3/melody/internal/http/services/flow"
	"github.com/dropDatabas3/melody/internal/metrics"
	"github.com/dropDatabas3/melody/internal/oauth/google"
	"github.com/dropDatabas3/melody/internal/observability/logger"
)

// SignInWithGoogle entra con isFullyAuthorized: Google ya probó la
// identidad, el flujo omite MFA y enrolamiento de passkey. No pasa por el
// lockout de password.
func (s *identityService) SignInWithGoogle(ctx context.Context, p flow.AuthorizeParams, credential string) (*types.AuthorizeResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("identity.google"))

	if s.deps.Google == nil {
		return nil, httperrors.ErrFeatureDisabled
	}
	app, req, err := s.deps.Validator.Validate(ctx, p)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(credential) == "" {
		return nil, httperrors.ErrInvalidRequest.WithDetail("credential requerido")
	}

	id, err := s.deps.Google.Verify(ctx, credential)
	if err != nil {
		metrics.AuthFailure("social")
		log.Info("google token rejected", logger.Err(err))
		return nil, httperrors.ErrInvalidSocialToken
	}

	u, err := s.socialUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, httperrors.ErrUserDisabled
	}
	res, err := s.authenticated(ctx, app, u, req, true)
	if err != nil {
		return nil, err
	}
	log.Info("signed in with google", logger.UserID(u.ID), logger.ClientID(app.ClientID))
	return res, nil
}

// socialUser busca por cuenta social, si no vincula por email verificado, y
// si tampoco existe crea el usuario.
func (s *identityService) socialUser(ctx context.Context, id *google.Identity) (*repository.User, error) {
	u, err := s.deps.Users.GetUserBySocialAccount(ctx, socialTypeGoogle, id.Subject)
	if err == nil {
		return u, nil
	}
	if !repository.IsNotFound(err) {
		return nil, httperrors.Internal(err)
	}

	email := normEmail(id.Email)
	if email == "" || !id.EmailVerified {
		return nil, httperrors.ErrInvalidSocialToken.WithDetail("email no verificado")
	}

	u, err = s.deps.Users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if u.SocialAccountID != "" {
			// ya vinculado a otra cuenta social
			return nil, httperrors.ErrUserExists
		}
		u.SocialAccountID = id.Subject
		u.SocialAccountType = socialTypeGoogle
		u.EmailVerified = true
		out, err := s.deps.Users.UpdateUser(ctx, u)
		if err != nil {
			return nil, httperrors.Internal(err)
		}
		return out, nil
	case !repository.IsNotFound(err):
		return nil, httperrors.Internal(err)
	}

	out, err := s.deps.Users.CreateUser(ctx, &repository.User{
		Email:             email,
		EmailVerified:     true,
		FirstName:         id.GivenName,
		LastName:          id.FamilyName,
		Locale:            id.Locale,
		IsActive:          true,
		SocialAccountID:   id.Subject,
		SocialAccountType: socialTypeGoogle,
	})
	if repository.IsConflict(err) {
		return nil, httperrors.ErrUserExists
	}
	if err != nil {
		return nil, httperrors.Internal(err)
	}
	return out, nil
}
