package mfa

import (
	"context"

	"github.com/dropDatabas3/melody/internal/cache"
	"github.com/dropDatabas3/melody/internal/domain/repository"
	"github.com/dropDatabas3/melody/internal/domain/types"
	dto "github.com/dropDatabas3/melody/internal/http/dto/mfa"
	httperrors "github.com/dropDatabas3/melody/internal/http/errors"
	"github.com/dropDatabas3/melody/internal/http/services/flow"
	"github.com/dropDatabas3/melody/internal/observability/logger"
	"github.com/dropDatabas3/melody/internal/security/lockout"
	tokens "github.com/dropDatabas3/melody/internal/security/token"
	"github.com/dropDatabas3/melody/internal/sms"
	"github.com/dropDatabas3/melody/internal/util"
)

func codeKey(t repository.MfaType, userID string) string {
	return "mfaCode:" + string(t) + ":" + userID
}

// issueCode genera y guarda un código numérico; reemplaza el anterior.
func (s *mfaService) issueCode(ctx context.Context, t repository.MfaType, userID string) (string, error) {
	c, err := tokens.NumericCode(s.deps.Config.CodeLength)
	if err != nil {
		return "", httperrors.Internal(err)
	}
	if err := s.deps.Cache.Set(ctx, codeKey(t, userID), c, s.deps.Config.CodeTTL); err != nil {
		return "", httperrors.Internal(err)
	}
	return c, nil
}

// consumeCode compara en tiempo constante y borra el código solo si
// sigue siendo el mismo valor (un único request lo consume).
func (s *mfaService) consumeCode(ctx context.Context, t repository.MfaType, userID, given string) (bool, error) {
	key := codeKey(t, userID)
	stored, err := s.deps.Cache.Get(ctx, key)
	if cache.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if given == "" || !tokens.Equal(stored, given) {
		return false, nil
	}
	return s.deps.Cache.CompareAndDelete(ctx, key, stored)
}

func (s *mfaService) verifyCode(ctx context.Context, t repository.MfaType, tracker *lockout.Tracker, locked *httperrors.AppError, userID, given string) error {
	if err := checkLocked(ctx, tracker, userID, locked); err != nil {
		return err
	}
	ok, err := s.consumeCode(ctx, t, userID, given)
	if err != nil {
		return httperrors.Internal(err)
	}
	if !ok {
		return fail(ctx, tracker, userID, locked, httperrors.ErrInvalidMfaCode)
	}
	if err := tracker.Clear(ctx, userID); err != nil {
		logger.From(ctx).Warn("clear mfa failures", logger.MfaType(string(t)), logger.Err(err))
	}
	return nil
}

// ─── SMS ───

// SetupSms guarda el teléfono (aún no verificado) y envía el primer código.
func (s *mfaService) SetupSms(ctx context.Context, code, phone string) (*dto.CodeSentResponse, error) {
	body, err := s.deps.Codes.LoadAt(ctx, code, types.NextPageSmsMfa)
	if err != nil {
		return nil, err
	}
	u, err := s.loadUser(ctx, body)
	if err != nil {
		return nil, err
	}
	if u.SmsPhoneNumberVerified {
		return nil, httperrors.ErrInvalidAuthStep
	}
	n, err := sms.NormalizeNumber(phone)
	if err != nil {
		return nil, httperrors.ErrInvalidPhoneNumber
	}
	u.SmsPhoneNumber = n
	if u, err = s.saveUser(ctx, u); err != nil {
		return nil, err
	}
	return s.sendSms(ctx, body, u)
}

func (s *mfaService) SendSmsCode(ctx context.Context, code string) (*dto.CodeSentResponse, error) {
	body, err := s.deps.Codes.LoadAt(ctx, code, types.NextPageSmsMfa)
	if err != nil {
		return nil, err
	}
	u, err := s.loadUser(ctx, body)
	if err != nil {
		return nil, err
	}
	if u.SmsPhoneNumber == "" {
		return nil, httperrors.ErrInvalidPhoneNumber
	}
	return s.sendSms(ctx, body, u)
}

func (s *mfaService) sendSms(ctx context.Context, body *types.AuthCodeBody, u *repository.User) (*dto.CodeSentResponse, error) {
	c, err := s.issueCode(ctx, repository.MfaSms, u.ID)
	if err != nil {
		return nil, err
	}
	if err := s.deps.SMS.Send(ctx, u.SmsPhoneNumber, sms.CodeMessage(body.AppName, c)); err != nil {
		logger.From(ctx).Error("send sms code", logger.UserID(u.ID), logger.Err(err))
		return nil, httperrors.ErrUnavailable.WithCause(err)
	}
	return &dto.CodeSentResponse{Destination: sms.MaskNumber(u.SmsPhoneNumber)}, nil
}

func (s *mfaService) VerifySms(ctx context.Context, code, mfaCode string) (*types.AuthorizeResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("mfa.sms.verify"))

	body, err := s.deps.Codes.LoadAt(ctx, code, types.NextPageSmsMfa)
	if err != nil {
		return nil, err
	}
	u, err := s.loadUser(ctx, body)
	if err != nil {
		return nil, err
	}
	if err := s.verifyCode(ctx, repository.MfaSms, s.smsFails, httperrors.ErrSmsMfaLocked, u.ID, mfaCode); err != nil {
		log.Info("sms code rejected", logger.UserID(u.ID))
		return nil, err
	}
	if !u.SmsPhoneNumberVerified {
		u.SmsPhoneNumberVerified = true
		u.AddMfa(repository.MfaSms)
		if u, err = s.saveUser(ctx, u); err != nil {
			return nil, err
		}
	}
	body.User = *u
	return s.deps.Resolver.Resolve(ctx, flow.EntrySmsMfa, code, body)
}

// ─── Email ───

// emailPages: email_mfa, y como respaldo de OTP/SMS si está habilitado.
func (s *mfaService) emailPages() []types.NextPage {
	if s.deps.Config.AllowEmailAsBackup {
		return []types.NextPage{types.NextPageEmailMfa, types.NextPageOtpMfa, types.NextPageSmsMfa}
	}
	return []types.NextPage{types.NextPageEmailMfa}
}

func (s *mfaService) SendEmailCode(ctx context.Context, code string) (*dto.CodeSentResponse, error) {
	body, err := s.deps.Codes.LoadAt(ctx, code, s.emailPages()...)
	if err != nil {
		return nil, err
	}
	u, err := s.loadUser(ctx, body)
	if err != nil {
		return nil, err
	}
	c, err := s.issueCode(ctx, repository.MfaEmail, u.ID)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Mailer.SendMfaCode(ctx, u.Email, u.DisplayName(), body.AppName, c, s.deps.Config.CodeTTL); err != nil {
		logger.From(ctx).Error("send email code", logger.UserID(u.ID), logger.Err(err))
		return nil, httperrors.ErrUnavailable.WithCause(err)
	}
	return &dto.CodeSentResponse{Destination: util.MaskEmailLocal(u.Email)}, nil
}

func (s *mfaService) VerifyEmail(ctx context.Context, code, mfaCode string) (*types.AuthorizeResult, error) {
	body, err := s.deps.Codes.LoadAt(ctx, code, s.emailPages()...)
	if err != nil {
		return nil, err
	}
	u, err := s.loadUser(ctx, body)
	if err != nil {
		return nil, err
	}
	if err := s.verifyCode(ctx, repository.MfaEmail, s.emailFails, httperrors.ErrEmailMfaLocked, u.ID, mfaCode); err != nil {
		logger.From(ctx).Info("email code rejected", logger.Op("mfa.email.verify"), logger.UserID(u.ID))
		return nil, err
	}
	if !u.EmailVerified {
		u.EmailVerified = true
		if u, err = s.saveUser(ctx, u); err != nil {
			return nil, err
		}
	}
	entry := flow.MfaEntry(body.NextPage)
	body.User = *u
	return s.deps.Resolver.Resolve(ctx, entry, code, body)
}
