package flow

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/melody/internal/config"
	"github.com/dropDatabas3/melody/internal/domain/repository"
	"github.com/dropDatabas3/melody/internal/domain/types"
	httperrors "github.com/dropDatabas3/melody/internal/http/errors"
	"github.com/dropDatabas3/melody/internal/metrics"
	"github.com/dropDatabas3/melody/internal/observability/logger"
)

// Stage es un grupo de chequeos del resolver, en orden de evaluación.
type Stage int

const (
	StageConsent Stage = iota + 1
	StageMfaEnroll
	StageOtp
	StageSms
	StageEmail
	StagePasskeyEnroll
	StagePolicy
	stageDone
)

// EntryPoint indica qué paso acaba de completarse; define desde qué
// Stage se reanuda la evaluación.
type EntryPoint int

const (
	EntryAuthenticated EntryPoint = iota
	EntryConsent
	EntryMfaEnroll
	EntryOtpMfa
	EntrySmsMfa
	EntryEmailMfa
	EntryPasskeyEnroll
	EntryPolicy
)

func (e EntryPoint) String() string {
	switch e {
	case EntryAuthenticated:
		return "authenticated"
	case EntryConsent:
		return "consent"
	case EntryMfaEnroll:
		return "mfa_enroll"
	case EntryOtpMfa:
		return "otp_mfa"
	case EntrySmsMfa:
		return "sms_mfa"
	case EntryEmailMfa:
		return "email_mfa"
	case EntryPasskeyEnroll:
		return "passkey_enroll"
	case EntryPolicy:
		return "policy"
	}
	return "unknown"
}

// FirstStage es el primer Stage que se evalúa al entrar por e. Cada
// factor MFA tiene su propio Stage: verificar uno no saltea los siguientes.
func (e EntryPoint) FirstStage() Stage {
	switch e {
	case EntryConsent:
		return StageMfaEnroll
	case EntryMfaEnroll:
		return StageOtp
	case EntryOtpMfa:
		return StageSms
	case EntrySmsMfa:
		return StageEmail
	case EntryEmailMfa:
		return StagePasskeyEnroll
	case EntryPasskeyEnroll:
		return StagePolicy
	case EntryPolicy:
		return stageDone
	default:
		return StageConsent
	}
}

// MfaEntry es el EntryPoint que completa la página MFA page. Sirve al
// email usado como respaldo de OTP o SMS: reemplaza solo ese factor.
func MfaEntry(page types.NextPage) EntryPoint {
	switch page {
	case types.NextPageOtpSetup, types.NextPageOtpMfa:
		return EntryOtpMfa
	case types.NextPageSmsMfa:
		return EntrySmsMfa
	default:
		return EntryEmailMfa
	}
}

// ConsentChecker decide si falta consentimiento para (user, app, scopes).
type ConsentChecker interface {
	ShouldCollectConsent(ctx context.Context, userID, appID string, scopes []string) (bool, error)
}

// PasskeyLister lista las passkeys del usuario.
type PasskeyLister interface {
	ListPasskeysByUser(ctx context.Context, userID string) ([]repository.PasskeyCredential, error)
}

type ResolverDeps struct {
	Codes    *Codes
	Sessions *Sessions
	Consent  ConsentChecker
	Passkeys PasskeyLister
	MFA      config.MFAConfig
	Passkey  config.PasskeyConfig
	Policies config.PolicyConfig
	Features config.FeaturesConfig
}

// Resolver decide el siguiente paso de un flujo ya autenticado.
type Resolver struct {
	d ResolverDeps
}

func NewResolver(d ResolverDeps) *Resolver { return &Resolver{d: d} }

type check struct {
	stage Stage
	// strong: se omite si la identidad ya se probó con un factor fuerte.
	strong bool
	name   string
	eval   func(ctx context.Context, b *types.AuthCodeBody) (types.NextPage, error)
}

func (r *Resolver) checks() []check {
	return []check{
		{StageConsent, false, "consent", r.consentStep},
		{StageMfaEnroll, true, "mfa_enroll", r.mfaEnrollStep},
		{StageOtp, true, "otp", r.otpStep},
		{StageSms, true, "sms", r.smsStep},
		{StageEmail, true, "email", r.emailStep},
		{StagePasskeyEnroll, true, "passkey_enroll", r.passkeyEnrollStep},
		{StagePolicy, false, "policy", r.policyStep},
	}
}

// Resolve evalúa los chequeos desde entry y persiste el body con el paso
// pendiente. Sin pasos pendientes marca el code como canjeable y guarda la
// sesión SSO del navegador.
func (r *Resolver) Resolve(ctx context.Context, entry EntryPoint, code string, body *types.AuthCodeBody) (*types.AuthorizeResult, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Op("flow.resolve"),
		logger.Step(entry.String()),
		logger.UserID(body.User.ID),
	)

	first := entry.FirstStage()
	for _, c := range r.checks() {
		if c.stage < first || (c.strong && body.IsFullyAuthorized) {
			continue
		}
		page, err := c.eval(ctx, body)
		if err != nil {
			log.Error("check failed", logger.String("check", c.name), logger.Err(err))
			return nil, httperrors.FromError(err)
		}
		if page != types.NextPageNone {
			body.NextPage = page
			body.Authorized = false
			if err := r.d.Codes.Save(ctx, code, body); err != nil {
				return nil, err
			}
			metrics.FlowStep(string(page))
			log.Debug("step pending", logger.String("next_page", string(page)))
			return result(code, body), nil
		}
	}

	body.NextPage = types.NextPageNone
	body.Authorized = true
	if err := r.d.Codes.Save(ctx, code, body); err != nil {
		return nil, err
	}
	sess := types.ServerSession{AppID: body.AppID, User: body.User, Request: body.Request}
	if err := r.d.Sessions.Save(ctx, body.Request.ClientID, sess); err != nil {
		// El code ya es canjeable; sin sesión solo se pierde el SSO.
		log.Warn("save session failed", logger.Err(err))
	}
	metrics.FlowStep("")
	log.Info("flow authorized")
	return result(code, body), nil
}

func result(code string, b *types.AuthCodeBody) *types.AuthorizeResult {
	return &types.AuthorizeResult{
		Code:        code,
		RedirectURI: b.Request.RedirectURI,
		State:       b.Request.State,
		Scopes:      b.Request.Scopes,
		NextPage:    b.NextPage,
	}
}

func (r *Resolver) consentStep(ctx context.Context, b *types.AuthCodeBody) (types.NextPage, error) {
	if r.d.Consent == nil {
		return types.NextPageNone, nil
	}
	need, err := r.d.Consent.ShouldCollectConsent(ctx, b.User.ID, b.AppID, b.Request.Scopes)
	if err != nil {
		return "", fmt.Errorf("consent: %w", err)
	}
	if need {
		return types.NextPageConsent, nil
	}
	return types.NextPageNone, nil
}

func (r *Resolver) mfaEnrollStep(_ context.Context, b *types.AuthCodeBody) (types.NextPage, error) {
	if RequiresMfaEnrollment(r.d.MFA, &b.User) {
		return types.NextPageMfaEnroll, nil
	}
	return types.NextPageNone, nil
}

func (r *Resolver) otpStep(_ context.Context, b *types.AuthCodeBody) (types.NextPage, error) {
	if !RequiresOtp(r.d.MFA, &b.User) {
		return types.NextPageNone, nil
	}
	if !b.User.OtpVerified {
		return types.NextPageOtpSetup, nil
	}
	return types.NextPageOtpMfa, nil
}

func (r *Resolver) smsStep(_ context.Context, b *types.AuthCodeBody) (types.NextPage, error) {
	if RequiresSms(r.d.MFA, &b.User) {
		return types.NextPageSmsMfa, nil
	}
	return types.NextPageNone, nil
}

func (r *Resolver) emailStep(_ context.Context, b *types.AuthCodeBody) (types.NextPage, error) {
	if RequiresEmail(r.d.MFA, &b.User) {
		return types.NextPageEmailMfa, nil
	}
	return types.NextPageNone, nil
}

func (r *Resolver) passkeyEnrollStep(ctx context.Context, b *types.AuthCodeBody) (types.NextPage, error) {
	if !r.d.Passkey.AllowEnrollment || b.User.SkipPasskeyEnroll || r.d.Passkeys == nil {
		return types.NextPageNone, nil
	}
	creds, err := r.d.Passkeys.ListPasskeysByUser(ctx, b.User.ID)
	if err != nil {
		return "", fmt.Errorf("list passkeys: %w", err)
	}
	if len(creds) == 0 {
		return types.NextPagePasskeyEnroll, nil
	}
	return types.NextPageNone, nil
}

// policyStep muestra la página de la policy solo si aplica al usuario.
func (r *Resolver) policyStep(_ context.Context, b *types.AuthCodeBody) (types.NextPage, error) {
	u := &b.User
	switch b.Request.Policy {
	case types.PolicyChangePassword:
		if r.d.Policies.EnableChangePassword && r.d.Features.PasswordSignIn && u.SocialAccountID == "" && u.SamlIdpName == "" {
			return types.NextPageChangePassword, nil
		}
	case types.PolicyChangeEmail:
		if r.d.Policies.EnableChangeEmail && u.SocialAccountID == "" && u.SamlIdpName == "" {
			return types.NextPageChangeEmail, nil
		}
	case types.PolicyResetMfa:
		if r.d.Policies.EnableResetMfa && (len(u.MfaTypes) > 0 || u.OtpVerified || u.SmsPhoneNumberVerified) {
			return types.NextPageResetMfa, nil
		}
	case types.PolicyManagePasskey:
		if r.d.Policies.EnableManagePasskey && r.d.Passkey.AllowEnrollment {
			return types.NextPageManagePasskey, nil
		}
	}
	return types.NextPageNone, nil
}
