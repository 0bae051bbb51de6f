// Package mfa orquesta los pasos de segundo factor del flujo: elección
// del método, OTP, códigos por SMS y email, y recovery code.
package mfa

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/melody/internal/cache"
	"github.com/dropDatabas3/melody/internal/config"
	"github.com/dropDatabas3/melody/internal/domain/repository"
	"github.com/dropDatabas3/melody/internal/domain/types"
	dto "github.com/dropDatabas3/melody/internal/http/dto/mfa"
	httperrors "github.com/dropDatabas3/melody/internal/http/errors"
	"github.com/dropDatabas3/melody/internal/http/services/flow"
	"github.com/dropDatabas3/melody/internal/security/lockout"
	"github.com/dropDatabas3/melody/internal/sms"
)

// Service define los pasos MFA del flujo de autorización.
type Service interface {
	EnrollOptions(ctx context.Context, code string) (*dto.EnrollOptionsResponse, error)
	Enroll(ctx context.Context, code, mfaType string) (*types.AuthorizeResult, error)

	OtpSetup(ctx context.Context, code string) (*dto.OtpSetupResponse, error)
	VerifyOtp(ctx context.Context, code, mfaCode string) (*types.AuthorizeResult, error)

	SetupSms(ctx context.Context, code, phone string) (*dto.CodeSentResponse, error)
	SendSmsCode(ctx context.Context, code string) (*dto.CodeSentResponse, error)
	VerifySms(ctx context.Context, code, mfaCode string) (*types.AuthorizeResult, error)

	SendEmailCode(ctx context.Context, code string) (*dto.CodeSentResponse, error)
	VerifyEmail(ctx context.Context, code, mfaCode string) (*types.AuthorizeResult, error)

	RecoveryCodeEnroll(ctx context.Context, code string) (*dto.RecoveryCodeResponse, error)
	SignInWithRecoveryCode(ctx context.Context, p flow.AuthorizeParams, email, recoveryCode string) (*dto.RecoverySignInResponse, error)
}

// Mailer es la parte de email.Mailer que usa MFA.
type Mailer interface {
	SendMfaCode(ctx context.Context, to, name, appName, code string, ttl time.Duration) error
}

type Deps struct {
	Users     repository.UserRepository
	Cache     cache.Client
	Codes     *flow.Codes
	Resolver  *flow.Resolver
	Validator *flow.RequestValidator
	// Accounts es el lockout de cuenta (por email); el recovery code
	// cuenta contra el mismo umbral que el password.
	Accounts *lockout.Tracker
	Mailer   Mailer
	SMS      sms.Sender
	Config   config.MFAConfig
}

type mfaService struct {
	deps Deps

	otpFails   *lockout.Tracker
	smsFails   *lockout.Tracker
	emailFails *lockout.Tracker

	otpLast   cache.Namespace[int64]
	otpClaims cache.Counter
	now       func() time.Time
}

func NewService(d Deps) Service {
	c := d.Config
	if c.CodeLength <= 0 {
		c.CodeLength = 6
	}
	if c.CodeTTL <= 0 {
		c.CodeTTL = 5 * time.Minute
	}
	d.Config = c
	// un paso usado no puede volver a aceptarse mientras siga en la ventana
	otpTTL := time.Duration(2*c.OtpWindow+2) * 30 * time.Second
	return &mfaService{
		deps:       d,
		otpFails:   lockout.New(d.Cache, "mfaFailed:otp", c.OtpLockout.Threshold, c.OtpLockout.Expiry),
		smsFails:   lockout.New(d.Cache, "mfaFailed:sms", c.SmsLockout.Threshold, c.SmsLockout.Expiry),
		emailFails: lockout.New(d.Cache, "mfaFailed:email", c.EmailLockout.Threshold, c.EmailLockout.Expiry),
		otpLast:    cache.NewNamespace[int64](d.Cache, "otpLastCounter"),
		otpClaims:  cache.NewCounter(d.Cache, "otpUsed", otpTTL),
		now:        time.Now,
	}
}

// loadUser relee el usuario del store: el snapshot del code no trae secretos.
func (s *mfaService) loadUser(ctx context.Context, body *types.AuthCodeBody) (*repository.User, error) {
	u, err := s.deps.Users.GetUserByID(ctx, body.User.ID)
	if repository.IsNotFound(err) {
		return nil, httperrors.ErrNoUser
	}
	if err != nil {
		return nil, httperrors.Internal(err)
	}
	if !u.IsActive {
		return nil, httperrors.ErrUserDisabled
	}
	return u, nil
}

func (s *mfaService) saveUser(ctx context.Context, u *repository.User) (*repository.User, error) {
	out, err := s.deps.Users.UpdateUser(ctx, u)
	if err != nil {
		return nil, httperrors.Internal(err)
	}
	return out, nil
}

// checkLocked traduce lockout.ErrLocked al error del método.
func checkLocked(ctx context.Context, t *lockout.Tracker, id string, locked *httperrors.AppError) error {
	err := t.Check(ctx, id)
	if errors.Is(err, lockout.ErrLocked) {
		return locked
	}
	if err != nil {
		return httperrors.Internal(err)
	}
	return nil
}

// fail registra el fallo y retorna el error que ve el cliente.
func fail(ctx context.Context, t *lockout.Tracker, id string, locked, invalid *httperrors.AppError) error {
	hit, err := t.Fail(ctx, id)
	if err != nil {
		return httperrors.Internal(err)
	}
	if hit {
		return locked
	}
	return invalid
}
