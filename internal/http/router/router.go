// Package router registra las rutas HTTP del servidor sobre chi.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	consentctrl "github.com/dropDatabas3/melody/internal/http/controllers/consent"
	healthctrl "github.com/dropDatabas3/melody/internal/http/controllers/health"
	identityctrl "github.com/dropDatabas3/melody/internal/http/controllers/identity"
	mfactrl "github.com/dropDatabas3/melody/internal/http/controllers/mfa"
	oauthctrl "github.com/dropDatabas3/melody/internal/http/controllers/oauth"
	passkeyctrl "github.com/dropDatabas3/melody/internal/http/controllers/passkey"
	samlctrl "github.com/dropDatabas3/melody/internal/http/controllers/saml"
	httperrors "github.com/dropDatabas3/melody/internal/http/errors"
	mw "github.com/dropDatabas3/melody/internal/http/middlewares"
	"github.com/dropDatabas3/melody/internal/metrics"
)

// Controllers agrupa los controllers; SAML es opcional.
type Controllers struct {
	OAuth    *oauthctrl.Controller
	Identity *identityctrl.Controller
	MFA      *mfactrl.Controller
	Passkey  *passkeyctrl.Controller
	Consent  *consentctrl.Controller
	SAML     *samlctrl.Controller
	Health   *healthctrl.HealthController
}

type Deps struct {
	Controllers Controllers
	Session     *mw.SessionCookie
	// RateLimit aplica a /identity/v1; StrictRateLimit a los endpoints que
	// envían emails. nil => sin límite.
	RateLimit       mw.Middleware
	StrictRateLimit mw.Middleware
	CORSOrigins     []string
	// Metrics es el handler de /metrics; nil => no se expone.
	Metrics http.Handler
}

// New arma el router completo.
//
// Orden global: Recover → RequestID → Logging → Metrics → SecurityHeaders → CORS.
func New(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithLogging(),
		metrics.WithMetrics,
		mw.WithSecurityHeaders(),
		mw.WithCORS(d.CORSOrigins),
	)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	c := d.Controllers
	registerHealthRoutes(r, c.Health, d.Metrics)
	registerWellKnownRoutes(r, c.OAuth)
	registerOAuthRoutes(r, d)
	registerIdentityRoutes(r, d)
	registerSAMLRoutes(r, d)
	return r
}

func registerHealthRoutes(r chi.Router, c *healthctrl.HealthController, metricsHandler http.Handler) {
	if c != nil {
		r.Get("/healthz", c.Healthz)
		r.Get("/readyz", c.Readyz)
	}
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}
}

func registerWellKnownRoutes(r chi.Router, c *oauthctrl.Controller) {
	r.Group(func(r chi.Router) {
		r.Use(mw.WithCacheControl("public, max-age=300"))
		r.Get("/.well-known/openid-configuration", c.Discovery)
		r.Get("/.well-known/jwks.json", c.JWKS)
	})
}

func registerOAuthRoutes(r chi.Router, d Deps) {
	c := d.Controllers.OAuth
	r.Route("/oauth2/v1", func(r chi.Router) {
		r.Use(mw.WithNoStore())

		// token y userinfo los llaman backends o SPAs con Bearer: sin cookie
		r.Post("/token", c.Token)
		r.Get("/userinfo", c.UserInfo)
		r.Post("/userinfo", c.UserInfo)

		r.Group(func(r chi.Router) {
			r.Use(sessionMiddleware(d.Session))
			r.Get("/authorize", c.Authorize)
			r.Post("/logout", c.Logout)
		})
	})
}

func registerIdentityRoutes(r chi.Router, d Deps) {
	c := d.Controllers
	r.Route("/identity/v1", func(r chi.Router) {
		r.Use(mw.WithNoStore(), sessionMiddleware(d.Session), optional(d.RateLimit))

		r.Post("/authorize-account", c.Identity.SignUp)
		r.Post("/authorize-password", c.Identity.SignIn)
		r.Post("/authorize-google", c.Identity.Google)
		r.Post("/authorize-recovery-code", c.MFA.RecoverySignIn)

		r.Get("/authorize-passkey-verify", c.Passkey.BeginVerify)
		r.Post("/authorize-passkey-verify", c.Passkey.FinishVerify)

		r.Get("/authorize-consent", c.Consent.Info)
		r.Post("/authorize-consent", c.Consent.Accept)

		r.Get("/authorize-mfa-enroll", c.MFA.EnrollOptions)
		r.Post("/authorize-mfa-enroll", c.MFA.Enroll)
		r.Get("/authorize-otp-setup", c.MFA.OtpSetup)
		r.Post("/authorize-otp-mfa", c.MFA.VerifyOtp)
		r.Post("/authorize-sms-mfa-setup", c.MFA.SetupSms)
		r.Post("/authorize-sms-mfa-code", c.MFA.SendSmsCode)
		r.Post("/authorize-sms-mfa", c.MFA.VerifySms)
		r.Post("/authorize-email-mfa-code", c.MFA.SendEmailCode)
		r.Post("/authorize-email-mfa", c.MFA.VerifyEmail)
		r.Get("/authorize-recovery-code-enroll", c.MFA.RecoveryCodeEnroll)

		r.Get("/authorize-passkey-enroll", c.Passkey.BeginEnroll)
		r.Post("/authorize-passkey-enroll", c.Passkey.FinishEnroll)
		r.Post("/authorize-passkey-enroll-decline", c.Passkey.Decline)

		r.Post("/change-password", c.Identity.ChangePassword)
		r.Post("/change-email", c.Identity.ChangeEmail)
		r.Post("/reset-mfa", c.Identity.ResetMfa)
		r.Get("/manage-passkey", c.Passkey.List)
		r.Post("/manage-passkey", c.Passkey.FinishManage)
		r.Delete("/manage-passkey", c.Passkey.Remove)

		r.Post("/reset-password", c.Identity.ResetPassword)

		// mandan emails: cupo aparte y más chico
		r.Group(func(r chi.Router) {
			r.Use(optional(d.StrictRateLimit))
			r.Post("/reset-password-code", c.Identity.ResetPasswordCode)
			r.Post("/change-email-code", c.Identity.ChangeEmailCode)
		})
	})
}

func registerSAMLRoutes(r chi.Router, d Deps) {
	c := d.Controllers.SAML
	if c == nil {
		return
	}
	r.Route("/identity/v1/saml/sp", func(r chi.Router) {
		r.Get("/metadata", c.Metadata)
		r.Group(func(r chi.Router) {
			r.Use(mw.WithNoStore(), sessionMiddleware(d.Session))
			r.Get("/login", c.Login)
			r.Post("/acs", c.ACS)
		})
	})
}

func sessionMiddleware(s *mw.SessionCookie) func(http.Handler) http.Handler {
	if s == nil {
		return passthrough
	}
	return s.Handler()
}

func optional(m mw.Middleware) func(http.Handler) http.Handler {
	if m == nil {
		return passthrough
	}
	return m
}

func passthrough(next http.Handler) http.Handler { return next }
