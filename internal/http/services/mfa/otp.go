package mfa

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dropDatabas3/melody/internal/cache"
	"github.com/dropDatabas3/melody/internal/domain/repository"
	"github.com/dropDatabas3/melody/internal/domain/types"
	dto "github.com/dropDatabas3/melody/internal/http/dto/mfa"
	httperrors "github.com/dropDatabas3/melody/internal/http/errors"
	"github.com/dropDatabas3/melody/internal/http/services/flow"
	"github.com/dropDatabas3/melody/internal/observability/logger"
	"github.com/dropDatabas3/melody/internal/security/totp"
)

// OtpSetup crea el secreto (si no existe) y lo expone como otpauth://.
func (s *mfaService) OtpSetup(ctx context.Context, code string) (*dto.OtpSetupResponse, error) {
	body, err := s.deps.Codes.LoadAt(ctx, code, types.NextPageOtpSetup)
	if err != nil {
		return nil, err
	}
	u, err := s.loadUser(ctx, body)
	if err != nil {
		return nil, err
	}
	if u.OtpVerified {
		return nil, httperrors.ErrInvalidAuthStep
	}
	if u.OtpSecret == "" {
		_, enc, err := totp.GenerateSecret()
		if err != nil {
			return nil, httperrors.Internal(err)
		}
		u.OtpSecret = enc
		if u, err = s.saveUser(ctx, u); err != nil {
			return nil, err
		}
	}
	return &dto.OtpSetupResponse{
		OtpSecret: u.OtpSecret,
		OtpURI:    totp.URI(s.deps.Config.OtpIssuer, u.Email, u.OtpSecret),
	}, nil
}

// VerifyOtp acepta el código en la configuración inicial o en el login.
// Cada paso de tiempo se acepta una sola vez por usuario.
func (s *mfaService) VerifyOtp(ctx context.Context, code, mfaCode string) (*types.AuthorizeResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("mfa.otp.verify"))

	body, err := s.deps.Codes.LoadAt(ctx, code, types.NextPageOtpSetup, types.NextPageOtpMfa)
	if err != nil {
		return nil, err
	}
	u, err := s.loadUser(ctx, body)
	if err != nil {
		return nil, err
	}
	log = log.With(logger.UserID(u.ID))

	if err := checkLocked(ctx, s.otpFails, u.ID, httperrors.ErrOtpMfaLocked); err != nil {
		return nil, err
	}
	if u.OtpSecret == "" {
		return nil, httperrors.ErrInvalidAuthStep
	}
	secret, err := totp.DecodeSecret(u.OtpSecret)
	if err != nil {
		return nil, httperrors.Internal(fmt.Errorf("decode otp secret: %w", err))
	}

	last, err := s.otpLast.Get(ctx, u.ID)
	if cache.IsNotFound(err) {
		last = -1
	} else if err != nil {
		return nil, httperrors.Internal(err)
	}

	step, ok := totp.Validate(secret, mfaCode, s.now(), s.deps.Config.OtpWindow, last)
	if ok {
		// dos requests con el mismo código: solo uno reclama el paso
		n, err := s.otpClaims.Incr(ctx, u.ID+":"+strconv.FormatInt(step, 10))
		if err != nil {
			return nil, httperrors.Internal(err)
		}
		ok = n == 1
	}
	if !ok {
		log.Info("otp rejected")
		return nil, fail(ctx, s.otpFails, u.ID, httperrors.ErrOtpMfaLocked, httperrors.ErrInvalidMfaCode)
	}
	if err := s.otpLast.Put(ctx, u.ID, step, s.otpClaims.Window()); err != nil {
		return nil, httperrors.Internal(err)
	}
	if err := s.otpFails.Clear(ctx, u.ID); err != nil {
		log.Warn("clear otp failures", logger.Err(err))
	}

	if !u.OtpVerified {
		u.OtpVerified = true
		u.AddMfa(repository.MfaOtp)
		if u, err = s.saveUser(ctx, u); err != nil {
			return nil, err
		}
		log.Info("otp configured")
	}
	body.User = *u
	return s.deps.Resolver.Resolve(ctx, flow.EntryOtpMfa, code, body)
}
