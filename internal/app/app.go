// Package app arma el servidor a partir de la configuración: store, cache,
// llaves, services, controllers y router.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dropDatabas3/melody/internal/cache"
	"github.com/dropDatabas3/melody/internal/config"
	"github.com/dropDatabas3/melody/internal/domain/repository"
	"github.com/dropDatabas3/melody/internal/email"
	consentctrl "github.com/dropDatabas3/melody/internal/http/controllers/consent"
	healthctrl "github.com/dropDatabas3/melody/internal/http/controllers/health"
	identityctrl "github.com/dropDatabas3/melody/internal/http/controllers/identity"
	mfactrl "github.com/dropDatabas3/melody/internal/http/controllers/mfa"
	oauthctrl "github.com/dropDatabas3/melody/internal/http/controllers/oauth"
	passkeyctrl "github.com/dropDatabas3/melody/internal/http/controllers/passkey"
	samlctrl "github.com/dropDatabas3/melody/internal/http/controllers/saml"
	mw "github.com/dropDatabas3/melody/internal/http/middlewares"
	"github.com/dropDatabas3/melody/internal/http/router"
	consentsvc "github.com/dropDatabas3/melody/internal/http/services/consent"
	"github.com/dropDatabas3/melody/internal/http/services/flow"
	healthsvc "github.com/dropDatabas3/melody/internal/http/services/health"
	identitysvc "github.com/dropDatabas3/melody/internal/http/services/identity"
	mfasvc "github.com/dropDatabas3/melody/internal/http/services/mfa"
	oauthsvc "github.com/dropDatabas3/melody/internal/http/services/oauth"
	passkeysvc "github.com/dropDatabas3/melody/internal/http/services/passkey"
	samlsvc "github.com/dropDatabas3/melody/internal/http/services/saml"
	jwtx "github.com/dropDatabas3/melody/internal/jwt"
	"github.com/dropDatabas3/melody/internal/metrics"
	"github.com/dropDatabas3/melody/internal/oauth/google"
	"github.com/dropDatabas3/melody/internal/observability/logger"
	"github.com/dropDatabas3/melody/internal/rate"
	"github.com/dropDatabas3/melody/internal/security/lockout"
	"github.com/dropDatabas3/melody/internal/security/password"
	"github.com/dropDatabas3/melody/internal/sms"
	"github.com/dropDatabas3/melody/internal/store/memory"
	"github.com/dropDatabas3/melody/internal/store/pg"
)

// strictRateLimit es el cupo por ventana de los endpoints que mandan emails.
const strictRateLimit = 5

// Options permite inyectar piezas ya construidas (tests).
type Options struct {
	Store   repository.Store
	Cache   cache.Client
	Keys    jwtx.KeySource
	Google  identitysvc.GoogleVerifier
	Mail    email.Sender
	Hash    password.Params
	Version string
	// NoMetrics omite /metrics y el registro de collectors.
	NoMetrics bool
}

// App es el servidor armado.
type App struct {
	Config  *config.Config
	Store   repository.Store
	Cache   cache.Client
	Issuer  *jwtx.Issuer
	Handler http.Handler
}

// New arma la aplicación. Si falla a mitad de camino cierra lo que abrió.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	log := logger.From(ctx).With(logger.Component("app"))
	a := &App{Config: cfg}
	ready := false
	defer func() {
		if !ready {
			a.Close()
		}
	}()

	var err error

	if a.Store = opts.Store; a.Store == nil {
		if a.Store, err = openStore(ctx, cfg, opts.hash()); err != nil {
			return nil, err
		}
	}
	if a.Cache = opts.Cache; a.Cache == nil {
		a.Cache, err = cache.New(ctx, cache.Config{
			Driver:     cfg.Cache.Kind,
			Addr:       cfg.Cache.Redis.Addr,
			Password:   cfg.Cache.Redis.Password,
			DB:         cfg.Cache.Redis.DB,
			Prefix:     cfg.Cache.Redis.Prefix,
			DefaultTTL: cfg.Cache.Memory.DefaultTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("cache: %w", err)
		}
	}

	src := opts.Keys
	if src == nil {
		if src, err = KeySource(ctx, cfg, a.Store); err != nil {
			return nil, err
		}
	}
	ks := jwtx.NewKeystore(src, cfg.Keys.CacheTTL)
	if _, err = ks.Current(ctx); err != nil {
		return nil, fmt.Errorf("keystore: %w", err)
	}
	a.Issuer = jwtx.NewIssuer(cfg.Server.Issuer, ks, cfg.Tokens.AccessTTL, cfg.Tokens.IDTokenTTL)

	ctrls, err := a.buildControllers(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}

	session, err := mw.NewSessionCookie(cfg.Session)
	if err != nil {
		return nil, err
	}
	deps := router.Deps{
		Controllers: ctrls,
		Session:     session,
		CORSOrigins: cfg.Server.CORSOrigins,
	}
	if cfg.Rate.Enabled {
		limiter := rate.NewMultiLimiter(a.Cache, "rl")
		key := mw.IPPathRateKey(cfg.Server.TrustProxyHeaders)
		deps.RateLimit = mw.WithRateLimit(mw.RateLimitConfig{
			Limiter: limiter.Fixed(cfg.Rate.Limit, cfg.Rate.Window),
			KeyFunc: key,
		})
		deps.StrictRateLimit = mw.WithRateLimit(mw.RateLimitConfig{
			Limiter: limiter.Fixed(strictRateLimit, cfg.Rate.Window),
			KeyFunc: func(r *http.Request) string { return "strict|" + key(r) },
		})
	}
	if !opts.NoMetrics {
		mc := metrics.Config{}
		if s, ok := a.Store.(*pg.Store); ok {
			mc.Pool = s.Pool
		}
		if deps.Metrics, err = metrics.Register(mc); err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
	}
	a.Handler = router.New(deps)

	log.Info("app ready",
		logger.String("storage", cfg.Storage.Driver),
		logger.String("cache", cfg.Cache.Kind),
		logger.String("keys", cfg.Keys.Source),
		logger.Bool("saml", ctrls.SAML != nil),
	)
	ready = true
	return a, nil
}

func (a *App) buildControllers(ctx context.Context, cfg *config.Config, opts Options) (router.Controllers, error) {
	var out router.Controllers
	st := a.Store

	codes := flow.NewCodes(a.Cache, cfg.Tokens.AuthCodeTTL)
	sessions := flow.NewSessions(a.Cache, cfg.Session.TTL)
	checker := &consentsvc.Checker{Consents: st, Config: cfg.Consent}
	resolver := flow.NewResolver(flow.ResolverDeps{
		Codes:    codes,
		Sessions: sessions,
		Consent:  checker,
		Passkeys: st,
		MFA:      cfg.MFA,
		Passkey:  cfg.Passkey,
		Policies: cfg.Policies,
		Features: cfg.Features,
	})
	validator := &flow.RequestValidator{Apps: st, Orgs: st, Blocked: cfg.Policies.Blocked}
	accounts := lockout.New(a.Cache, "failedLogins", cfg.Lockout.Threshold, cfg.Lockout.Expiry)

	sender := opts.Mail
	if sender == nil {
		sender = email.NewSender(cfg.SMTP)
	}
	mailer, err := email.NewMailer(sender)
	if err != nil {
		return out, err
	}
	smsSender, err := sms.NewSender(cfg.SMS)
	if err != nil {
		return out, err
	}

	var saml samlsvc.Service
	if cfg.SAML.Enabled {
		keys, err := samlsvc.LoadKeyPair(cfg.SAML, cfg.App.Name)
		if err != nil {
			return out, err
		}
		saml, err = samlsvc.NewService(samlsvc.Deps{
			Users:      st,
			Apps:       st,
			Idps:       st,
			Cache:      a.Cache,
			Codes:      codes,
			Resolver:   resolver,
			Validator:  validator,
			Keys:       keys,
			Config:     cfg.SAML,
			Issuer:     cfg.Server.Issuer,
			IdentityUI: cfg.Server.IdentityUIURL,
		})
		if err != nil {
			return out, fmt.Errorf("saml: %w", err)
		}
		out.SAML = samlctrl.NewController(saml)
	}

	oauthDeps := oauthsvc.Deps{
		Apps:       st,
		Users:      st,
		Cache:      a.Cache,
		Codes:      codes,
		Sessions:   sessions,
		Resolver:   resolver,
		Validator:  validator,
		Consent:    checker,
		Issuer:     a.Issuer,
		RefreshTTL: cfg.Tokens.RefreshTTL,
		IdentityUI: cfg.Server.IdentityUIURL,
	}
	if saml != nil {
		oauthDeps.SAML = saml
	}
	out.OAuth = oauthctrl.NewController(oauthsvc.NewServices(oauthDeps))

	idDeps := identitysvc.Deps{
		Users:     st,
		Cache:     a.Cache,
		Codes:     codes,
		Resolver:  resolver,
		Validator: validator,
		Accounts:  accounts,
		Mailer:    mailer,
		Features:  cfg.Features,
		Lockout:   cfg.Lockout,
		Hash:      opts.hash(),
	}
	switch {
	case opts.Google != nil:
		idDeps.Google = opts.Google
	case cfg.Social.Google.Enabled:
		g, err := google.New(ctx, cfg.Social.Google.Issuer, cfg.Social.Google.ClientID)
		if err != nil {
			return out, fmt.Errorf("google: %w", err)
		}
		idDeps.Google = g
	}
	out.Identity = identityctrl.NewController(identitysvc.NewService(idDeps))

	out.MFA = mfactrl.NewController(mfasvc.NewService(mfasvc.Deps{
		Users:     st,
		Cache:     a.Cache,
		Codes:     codes,
		Resolver:  resolver,
		Validator: validator,
		Accounts:  accounts,
		Mailer:    mailer,
		SMS:       smsSender,
		Config:    cfg.MFA,
	}))

	ceremony, err := passkeysvc.NewCeremony(cfg.Passkey)
	if err != nil {
		return out, err
	}
	out.Passkey = passkeyctrl.NewController(passkeysvc.NewService(passkeysvc.Deps{
		Users:     st,
		Passkeys:  st,
		Cache:     a.Cache,
		Codes:     codes,
		Resolver:  resolver,
		Validator: validator,
		Ceremony:  ceremony,
		Config:    cfg.Passkey,
	}))

	out.Consent = consentctrl.NewController(consentsvc.NewService(consentsvc.Deps{
		Checker:  checker,
		Scopes:   st,
		Codes:    codes,
		Resolver: resolver,
	}))

	out.Health = healthctrl.NewHealthController(healthsvc.NewHealthService(healthsvc.Deps{
		StoreCheck: st.Ping,
		CacheCheck: a.Cache.Ping,
		Issuer:     a.Issuer,
		Version:    opts.Version,
	}))
	return out, nil
}

// Close libera store y cache.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			logger.L().Warn("close cache", logger.Err(err))
		}
	}
	if a.Store != nil {
		a.Store.Close()
	}
}

func (o Options) hash() password.Params {
	if o.Hash == (password.Params{}) {
		return password.Default
	}
	return o.Hash
}

func openStore(ctx context.Context, cfg *config.Config, hash password.Params) (repository.Store, error) {
	log := logger.From(ctx).With(logger.Component("app"))

	switch cfg.Storage.Driver {
	case "memory", "":
		st := memory.New()
		if cfg.Storage.SeedFile != "" {
			seed, err := memory.LoadSeed(cfg.Storage.SeedFile)
			if err != nil {
				return nil, err
			}
			if err := st.Apply(ctx, seed, hash); err != nil {
				return nil, err
			}
			log.Info("seed applied", logger.String("file", cfg.Storage.SeedFile))
		}
		return st, nil
	case "postgres":
		st, err := pg.New(ctx, cfg.Storage)
		if err != nil {
			return nil, err
		}
		if cfg.Storage.MigrateOnStart {
			n, err := st.Migrate(ctx)
			if err != nil {
				st.Close()
				return nil, err
			}
			log.Info("migrations applied", logger.Int("count", n))
		}
		return st, nil
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.Storage.Driver)
	}
}

// KeySource retorna la fuente de llaves configurada y genera la primera
// llave si no hay ninguna.
func KeySource(ctx context.Context, cfg *config.Config, st repository.Store) (jwtx.KeySource, error) {
	log := logger.From(ctx).With(logger.Component("app"))

	switch cfg.Keys.Source {
	case "file", "":
		src := jwtx.NewFileSource(cfg.Keys.Dir)
		created, err := src.Init(cfg.Keys.Bits)
		if err != nil {
			return nil, fmt.Errorf("keys: init %s: %w", cfg.Keys.Dir, err)
		}
		if created {
			log.Info("signing key generated", logger.String("dir", cfg.Keys.Dir))
		}
		return src, nil
	case "postgres":
		ps, ok := st.(*pg.Store)
		if !ok {
			return nil, errors.New("keys: source postgres requires storage driver postgres")
		}
		src := ps.SigningKeys()
		created, err := src.Init(ctx, cfg.Keys.Bits)
		if err != nil {
			return nil, fmt.Errorf("keys: init: %w", err)
		}
		if created {
			log.Info("signing key generated", logger.String("source", "postgres"))
		}
		return src, nil
	default:
		return nil, fmt.Errorf("keys: unknown source %q", cfg.Keys.Source)
	}
}
