package mfa

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dropDatabas3/melody/internal/domain/repository"
	"github.com/dropDatabas3/melody/internal/domain/types"
	dto "github.com/dropDatabas3/melody/internal/http/dto/mfa"
	httperrors "github.com/dropDatabas3/melody/internal/http/errors"
	"github.com/dropDatabas3/melody/internal/http/services/flow"
	"github.com/dropDatabas3/melody/internal/observability/logger"
	"github.com/dropDatabas3/melody/internal/security/lockout"
	tokens "github.com/dropDatabas3/melody/internal/security/token"
)

const recoveryCodeLength = 32

func newRecoveryCode() (plain, hash string, err error) {
	plain, err = tokens.RandomString(recoveryCodeLength)
	if err != nil {
		return "", "", err
	}
	return plain, tokens.SHA256Hex(plain), nil
}

// RecoveryCodeEnroll genera el recovery code mientras el flujo espera un
// paso MFA. Se muestra una sola vez; solo se guarda el hash.
func (s *mfaService) RecoveryCodeEnroll(ctx context.Context, code string) (*dto.RecoveryCodeResponse, error) {
	if !s.deps.Config.EnableRecoveryCode {
		return nil, httperrors.ErrFeatureDisabled
	}
	body, err := s.deps.Codes.LoadAt(ctx, code,
		types.NextPageOtpSetup, types.NextPageOtpMfa, types.NextPageSmsMfa, types.NextPageEmailMfa)
	if err != nil {
		return nil, err
	}
	u, err := s.loadUser(ctx, body)
	if err != nil {
		return nil, err
	}
	if u.RecoveryCodeHash != "" {
		return nil, httperrors.ErrInvalidRequest.WithDetail("recovery code ya generado")
	}
	plain, hash, err := newRecoveryCode()
	if err != nil {
		return nil, httperrors.Internal(err)
	}
	u.RecoveryCodeHash = hash
	if _, err := s.saveUser(ctx, u); err != nil {
		return nil, err
	}
	return &dto.RecoveryCodeResponse{RecoveryCode: plain}, nil
}

// SignInWithRecoveryCode autentica con el recovery code, sin MFA, y lo
// reemplaza por uno nuevo. Los fallos cuentan contra el lockout de cuenta.
func (s *mfaService) SignInWithRecoveryCode(ctx context.Context, p flow.AuthorizeParams, email, recoveryCode string) (*dto.RecoverySignInResponse, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("mfa.recovery.signin"))

	if !s.deps.Config.EnableRecoveryCode {
		return nil, httperrors.ErrFeatureDisabled
	}
	app, req, err := s.deps.Validator.Validate(ctx, p)
	if err != nil {
		return nil, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || recoveryCode == "" {
		return nil, httperrors.ErrInvalidRequest
	}

	if err := s.deps.Accounts.Check(ctx, email); err != nil {
		if errors.Is(err, lockout.ErrLocked) {
			return nil, httperrors.ErrAccountLocked
		}
		return nil, httperrors.Internal(err)
	}

	u, err := s.deps.Users.GetUserByEmail(ctx, email)
	if err != nil && !repository.IsNotFound(err) {
		return nil, httperrors.Internal(err)
	}
	hash := tokens.SHA256Hex(recoveryCode)
	if u == nil || u.RecoveryCodeHash == "" || !tokens.Equal(u.RecoveryCodeHash, hash) {
		log.Info("recovery code rejected")
		return nil, fail(ctx, s.deps.Accounts, email, httperrors.ErrAccountLocked, httperrors.ErrInvalidRecoveryCode)
	}
	if !u.IsActive {
		return nil, httperrors.ErrUserDisabled
	}

	// el mismo código en dos requests: solo uno lo canjea
	n, err := s.deps.Cache.Incr(ctx, "recoveryUsed:"+u.ID+":"+hash, time.Minute)
	if err != nil {
		return nil, httperrors.Internal(err)
	}
	if n != 1 {
		return nil, httperrors.ErrInvalidRecoveryCode
	}

	plain, newHash, err := newRecoveryCode()
	if err != nil {
		return nil, httperrors.Internal(err)
	}
	u.RecoveryCodeHash = newHash
	if u, err = s.saveUser(ctx, u); err != nil {
		return nil, err
	}
	if err := s.deps.Accounts.Clear(ctx, email); err != nil {
		log.Warn("clear account lockout", logger.Err(err))
	}

	code, body, err := s.deps.Codes.Issue(ctx, app, u, req, true)
	if err != nil {
		return nil, err
	}
	res, err := s.deps.Resolver.Resolve(ctx, flow.EntryAuthenticated, code, body)
	if err != nil {
		return nil, err
	}
	log.Info("signed in with recovery code", logger.UserID(u.ID))
	return &dto.RecoverySignInResponse{AuthorizeResult: *res, RecoveryCode: plain}, nil
}
