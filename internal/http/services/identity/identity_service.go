// Package identity autentica al usuario en las páginas de sign-in (password,
// sign-up, Google) y atiende las páginas de policy y el reset de password.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dropDatabas3/melody/internal/cache"
	"github.com/dropDatabas3/melody/internal/config"
	"github.com/dropDatabas3/melody/internal/domain/repository"
	"github.com/dropDatabas3/melody/internal/domain/types"
	httperrors "github.com/dropDatabas3/melody/internal/http/errors"
	"github.com/dropDatabas3/melody/internal/http/services/flow"
	"github.com/dropDatabas3/melody/internal/oauth/google"
	"github.com/dropDatabas3/melody/internal/security/lockout"
	"github.com/dropDatabas3/melody/internal/security/password"
)

// Service define los sign-in y las páginas de policy.
type Service interface {
	SignInWithPassword(ctx context.Context, p flow.AuthorizeParams, email, plain string) (*types.AuthorizeResult, error)
	SignUp(ctx context.Context, p flow.AuthorizeParams, in SignUpInput) (*types.AuthorizeResult, error)
	SignInWithGoogle(ctx context.Context, p flow.AuthorizeParams, credential string) (*types.AuthorizeResult, error)

	SendResetPasswordCode(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, code, newPassword string) error

	ChangePassword(ctx context.Context, code, oldPassword, newPassword string) (*types.AuthorizeResult, error)
	SendChangeEmailCode(ctx context.Context, code, newEmail string) error
	ChangeEmail(ctx context.Context, code, newEmail, verifyCode string) (*types.AuthorizeResult, error)
	ResetMfa(ctx context.Context, code string) (*types.AuthorizeResult, error)
}

// SignUpInput son los datos de la cuenta nueva.
type SignUpInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Mailer es la parte de email.Mailer que usa identity.
type Mailer interface {
	SendPasswordResetCode(ctx context.Context, to, name, code string, ttl time.Duration) error
	SendChangeEmailCode(ctx context.Context, to, name, code string, ttl time.Duration) error
}

// GoogleVerifier valida el ID token del botón de Google.
type GoogleVerifier interface {
	Verify(ctx context.Context, raw string) (*google.Identity, error)
}

type Deps struct {
	Users     repository.UserRepository
	Cache     cache.Client
	Codes     *flow.Codes
	Resolver  *flow.Resolver
	Validator *flow.RequestValidator
	Accounts  *lockout.Tracker
	Mailer    Mailer
	// Google es nil si el sign-in social está deshabilitado.
	Google   GoogleVerifier
	Features config.FeaturesConfig
	Lockout  config.LockoutConfig
	Hash     password.Params
}

// pendingCode es un código enviado por email; solo se guarda el hash.
type pendingCode struct {
	Hash  string `json:"hash"`
	Email string `json:"email,omitempty"`
}

const (
	resetCodeLength  = 6
	maxCodeAttempts  = 5
	socialTypeGoogle = "google"
)

type identityService struct {
	deps Deps

	resetCodes    cache.Namespace[pendingCode]
	resetAttempts cache.Counter
	emailCodes    cache.Namespace[pendingCode]
	emailAttempts cache.Counter
}

func NewService(d Deps) Service {
	f := d.Features
	if f.ResetCodeTTL <= 0 {
		f.ResetCodeTTL = 10 * time.Minute
	}
	if f.ChangeEmailTTL <= 0 {
		f.ChangeEmailTTL = 10 * time.Minute
	}
	if f.PasswordMinLen <= 0 {
		f.PasswordMinLen = 8
	}
	d.Features = f
	if d.Hash == (password.Params{}) {
		d.Hash = password.Default
	}
	return &identityService{
		deps:          d,
		resetCodes:    cache.NewNamespace[pendingCode](d.Cache, "resetPasswordCode"),
		resetAttempts: cache.NewCounter(d.Cache, "resetPasswordAttempts", f.ResetCodeTTL),
		emailCodes:    cache.NewNamespace[pendingCode](d.Cache, "changeEmailCode"),
		emailAttempts: cache.NewCounter(d.Cache, "changeEmailAttempts", f.ChangeEmailTTL),
	}
}

func normEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

// hashPassword aplica la política de largo mínimo.
func (s *identityService) hashPassword(plain string) (string, error) {
	if err := password.CheckPolicy(plain, s.deps.Features.PasswordMinLen); err != nil {
		return "", httperrors.ErrWeakPassword
	}
	h, err := password.Hash(s.deps.Hash, plain)
	if err != nil {
		return "", httperrors.Internal(err)
	}
	return h, nil
}

// checkAccount traduce lockout.ErrLocked.
func (s *identityService) checkAccount(ctx context.Context, email string) error {
	err := s.deps.Accounts.Check(ctx, email)
	if errors.Is(err, lockout.ErrLocked) {
		return httperrors.ErrAccountLocked
	}
	if err != nil {
		return httperrors.Internal(err)
	}
	return nil
}

// failAccount registra el fallo; al llegar al umbral el error ya es el de bloqueo.
func (s *identityService) failAccount(ctx context.Context, email string) error {
	hit, err := s.deps.Accounts.Fail(ctx, email)
	if err != nil {
		return httperrors.Internal(err)
	}
	if hit {
		return httperrors.ErrAccountLocked
	}
	return httperrors.ErrNoUser
}

// loadFlowUser relee el usuario del code: el snapshot no trae secretos.
func (s *identityService) loadFlowUser(ctx context.Context, body *types.AuthCodeBody) (*repository.User, error) {
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

// authenticated emite el code y corre el resolver desde el principio.
func (s *identityService) authenticated(ctx context.Context, app *repository.App, u *repository.User, req types.AuthRequest, fully bool) (*types.AuthorizeResult, error) {
	code, body, err := s.deps.Codes.Issue(ctx, app, u, req, fully)
	if err != nil {
		return nil, err
	}
	return s.deps.Resolver.Resolve(ctx, flow.EntryAuthenticated, code, body)
}

// policyDone guarda el usuario actualizado en el code y cierra la policy.
func (s *identityService) policyDone(ctx context.Context, code string, body *types.AuthCodeBody, u *repository.User) (*types.AuthorizeResult, error) {
	body.User = *u
	return s.deps.Resolver.Resolve(ctx, flow.EntryPolicy, code, body)
}
