package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config es el snapshot inmutable de configuración. Se carga una vez en
// cmd/melody y los services reciben copias de sus sub-structs.
type Config struct {
	App struct {
		// dev | prod
		Env  string `yaml:"env"`
		Name string `yaml:"name"`
	} `yaml:"app"`

	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Storage  StorageConfig  `yaml:"storage"`
	Cache    CacheConfig    `yaml:"cache"`
	Keys     KeysConfig     `yaml:"keys"`
	Tokens   TokenConfig    `yaml:"tokens"`
	Session  SessionConfig  `yaml:"session"`
	Consent  ConsentConfig  `yaml:"consent"`
	Lockout  LockoutConfig  `yaml:"lockout"`
	MFA      MFAConfig      `yaml:"mfa"`
	Passkey  PasskeyConfig  `yaml:"passkey"`
	Policies PolicyConfig   `yaml:"policies"`
	Features FeaturesConfig `yaml:"features"`
	Social   SocialConfig   `yaml:"social"`
	SAML     SAMLConfig     `yaml:"saml"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	SMS      SMSConfig      `yaml:"sms"`
	Rate     RateConfig     `yaml:"rate"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	// Issuer es la URL pública del servidor (iss de los tokens, base de ACS, etc.).
	Issuer string `yaml:"issuer"`
	// IdentityUIURL es donde viven las páginas de sign-in/MFA/consent.
	IdentityUIURL     string        `yaml:"identity_ui_url"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	// TrustProxyHeaders habilita X-Forwarded-For para rate limit.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`
	// CORSOrigins son los orígenes de la UI de identidad.
	CORSOrigins []string `yaml:"cors_origins"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type StorageConfig struct {
	// memory | postgres
	Driver         string `yaml:"driver"`
	DSN            string `yaml:"dsn"`
	MaxConns       int32  `yaml:"max_conns"`
	MigrateOnStart bool   `yaml:"migrate_on_start"`
	// SeedFile carga apps/usuarios/scopes en el driver memory.
	SeedFile string `yaml:"seed_file"`
}

type CacheConfig struct {
	// memory | redis
	Kind  string `yaml:"kind"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	Memory struct {
		DefaultTTL time.Duration `yaml:"default_ttl"`
	} `yaml:"memory"`
}

type KeysConfig struct {
	// file | postgres
	Source string `yaml:"source"`
	// Dir contiene current.pem y deprecated.pem cuando Source=file.
	Dir      string        `yaml:"dir"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
	Bits     int           `yaml:"bits"`
}

type TokenConfig struct {
	AuthCodeTTL time.Duration `yaml:"auth_code_ttl"`
	AccessTTL   time.Duration `yaml:"access_ttl"`
	IDTokenTTL  time.Duration `yaml:"id_token_ttl"`
	RefreshTTL  time.Duration `yaml:"refresh_ttl"`
}

type SessionConfig struct {
	CookieName string        `yaml:"cookie_name"`
	TTL        time.Duration `yaml:"ttl"`
	// HashKey (64 bytes) y BlockKey (32 bytes) en hex; vacíos => se generan
	// al arrancar y las sesiones no sobreviven un reinicio.
	HashKey  string `yaml:"hash_key"`
	BlockKey string `yaml:"block_key"`
	Secure   bool   `yaml:"secure"`
}

type ConsentConfig struct {
	Enabled bool `yaml:"enabled"`
	// Scopes que nunca requieren consentimiento.
	SystemScopes []string `yaml:"system_scopes"`
}

type LockoutConfig struct {
	// 0 deshabilita el bloqueo.
	Threshold              int           `yaml:"threshold"`
	Expiry                 time.Duration `yaml:"expiry"`
	UnlockViaPasswordReset bool          `yaml:"unlock_via_password_reset"`
}

// Threshold y ventana de un contador de fallos.
type CounterConfig struct {
	Threshold int           `yaml:"threshold"`
	Expiry    time.Duration `yaml:"expiry"`
}

type MFAConfig struct {
	// otp | email | sms. No vacío => el usuario debe enrolar al menos uno.
	EnforceOneEnrollment []string `yaml:"enforce_one_enrollment"`
	OtpRequired          bool     `yaml:"otp_required"`
	SmsRequired          bool     `yaml:"sms_required"`
	EmailRequired        bool     `yaml:"email_required"`
	AllowEmailAsBackup   bool     `yaml:"allow_email_as_backup"`
	EnableRecoveryCode   bool     `yaml:"enable_recovery_code"`

	CodeTTL    time.Duration `yaml:"code_ttl"`
	CodeLength int           `yaml:"code_length"`
	OtpIssuer  string        `yaml:"otp_issuer"`
	OtpWindow  int           `yaml:"otp_window"`

	OtpLockout   CounterConfig `yaml:"otp_lockout"`
	SmsLockout   CounterConfig `yaml:"sms_lockout"`
	EmailLockout CounterConfig `yaml:"email_lockout"`
}

type PasskeyConfig struct {
	AllowEnrollment bool          `yaml:"allow_enrollment"`
	RPID            string        `yaml:"rp_id"`
	RPName          string        `yaml:"rp_name"`
	Origins         []string      `yaml:"origins"`
	ChallengeTTL    time.Duration `yaml:"challenge_ttl"`
}

type PolicyConfig struct {
	Blocked              []string `yaml:"blocked"`
	EnableChangePassword bool     `yaml:"enable_change_password"`
	EnableChangeEmail    bool     `yaml:"enable_change_email"`
	EnableResetMfa       bool     `yaml:"enable_reset_mfa"`
	EnableManagePasskey  bool     `yaml:"enable_manage_passkey"`
}

type FeaturesConfig struct {
	SignUp         bool          `yaml:"sign_up"`
	PasswordSignIn bool          `yaml:"password_sign_in"`
	PasswordReset  bool          `yaml:"password_reset"`
	ResetCodeTTL   time.Duration `yaml:"reset_code_ttl"`
	ChangeEmailTTL time.Duration `yaml:"change_email_ttl"`
	PasswordMinLen int           `yaml:"password_min_len"`
}

type SocialConfig struct {
	Google struct {
		Enabled  bool   `yaml:"enabled"`
		ClientID string `yaml:"client_id"`
		Issuer   string `yaml:"issuer"`
	} `yaml:"google"`
}

type SAMLConfig struct {
	Enabled    bool          `yaml:"enabled"`
	CertFile   string        `yaml:"cert_file"`
	KeyFile    string        `yaml:"key_file"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	// auto | starttls | ssl | none
	TLSMode string `yaml:"tls_mode"`
}

type SMSConfig struct {
	// log | gateway
	Provider   string        `yaml:"provider"`
	GatewayURL string        `yaml:"gateway_url"`
	APIKey     string        `yaml:"api_key"`
	From       string        `yaml:"from"`
	Timeout    time.Duration `yaml:"timeout"`
}

type RateConfig struct {
	Enabled bool          `yaml:"enabled"`
	Limit   int           `yaml:"limit"`
	Window  time.Duration `yaml:"window"`
}

// Default retorna la configuración por defecto (equivale a un YAML vacío).
func Default() *Config {
	c := &Config{}
	c.App.Env = "dev"
	c.App.Name = "melody"

	c.Server.Addr = ":8080"
	c.Server.Issuer = "http://localhost:8080"
	c.Server.IdentityUIURL = "http://localhost:8080/identity"
	c.Server.ReadHeaderTimeout = 5 * time.Second
	c.Server.ReadTimeout = 15 * time.Second
	c.Server.WriteTimeout = 15 * time.Second
	c.Server.IdleTimeout = 60 * time.Second
	c.Server.ShutdownTimeout = 10 * time.Second

	c.Log.Level = "info"

	c.Storage.Driver = "memory"
	c.Storage.MaxConns = 10

	c.Cache.Kind = "memory"
	c.Cache.Redis.Addr = "localhost:6379"
	c.Cache.Redis.Prefix = "melody:"
	c.Cache.Memory.DefaultTTL = 5 * time.Minute

	c.Keys.Source = "file"
	c.Keys.Dir = "data/keys"
	c.Keys.CacheTTL = time.Minute
	c.Keys.Bits = 2048

	c.Tokens.AuthCodeTTL = 300 * time.Second
	c.Tokens.AccessTTL = 1800 * time.Second
	c.Tokens.IDTokenTTL = 1800 * time.Second
	c.Tokens.RefreshTTL = 604800 * time.Second

	c.Session.CookieName = "melody_sid"
	c.Session.TTL = 1800 * time.Second

	c.Consent.Enabled = true
	c.Consent.SystemScopes = []string{"openid", "offline_access"}

	c.Lockout.Threshold = 5
	c.Lockout.Expiry = 86400 * time.Second
	c.Lockout.UnlockViaPasswordReset = true

	c.MFA.EnableRecoveryCode = true
	c.MFA.CodeTTL = 5 * time.Minute
	c.MFA.CodeLength = 6
	c.MFA.OtpIssuer = "Melody"
	c.MFA.OtpWindow = 1
	c.MFA.OtpLockout = CounterConfig{Threshold: 5, Expiry: 30 * time.Minute}
	c.MFA.SmsLockout = CounterConfig{Threshold: 5, Expiry: 30 * time.Minute}
	c.MFA.EmailLockout = CounterConfig{Threshold: 5, Expiry: 30 * time.Minute}

	c.Passkey.RPID = "localhost"
	c.Passkey.RPName = "Melody"
	c.Passkey.Origins = []string{"http://localhost:8080"}
	c.Passkey.ChallengeTTL = 5 * time.Minute

	c.Policies.EnableChangePassword = true
	c.Policies.EnableResetMfa = true
	c.Policies.EnableManagePasskey = true

	c.Features.SignUp = true
	c.Features.PasswordSignIn = true
	c.Features.PasswordReset = true
	c.Features.ResetCodeTTL = 10 * time.Minute
	c.Features.ChangeEmailTTL = 10 * time.Minute
	c.Features.PasswordMinLen = 8

	c.Social.Google.Issuer = "https://accounts.google.com"

	c.SAML.SessionTTL = 10 * time.Minute

	c.SMTP.Port = 587
	c.SMTP.TLSMode = "auto"

	c.SMS.Provider = "log"
	c.SMS.Timeout = 10 * time.Second

	c.Rate.Enabled = true
	c.Rate.Limit = 30
	c.Rate.Window = time.Minute
	return c
}

// Load lee el YAML (si path != ""), aplica overrides de entorno y valida.
// Los campos ausentes en el YAML conservan el default.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	c.applyEnvOverrides()
	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) normalize() {
	c.App.Env = strings.ToLower(strings.TrimSpace(c.App.Env))
	c.Server.Issuer = strings.TrimRight(c.Server.Issuer, "/")
	c.Server.IdentityUIURL = strings.TrimRight(c.Server.IdentityUIURL, "/")
	for i, t := range c.MFA.EnforceOneEnrollment {
		c.MFA.EnforceOneEnrollment[i] = strings.ToLower(strings.TrimSpace(t))
	}
}

// IsProd indica si corremos en producción.
func (c *Config) IsProd() bool { return c.App.Env == "prod" }

// Validate chequea los valores críticos.
func (c *Config) Validate() error {
	var errs []error
	if u, err := url.Parse(c.Server.Issuer); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("server.issuer must be an absolute URL (got %q)", c.Server.Issuer))
	}
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q not supported", c.Storage.Driver))
	}
	if c.Cache.Kind != "memory" && c.Cache.Kind != "redis" {
		errs = append(errs, fmt.Errorf("cache.kind %q not supported", c.Cache.Kind))
	}
	switch c.Keys.Source {
	case "file":
		if c.Keys.Dir == "" {
			errs = append(errs, errors.New("keys.dir is required for file source"))
		}
	case "postgres":
		if c.Storage.Driver != "postgres" {
			errs = append(errs, errors.New("keys.source=postgres requires storage.driver=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("keys.source %q not supported", c.Keys.Source))
	}
	if c.Tokens.AuthCodeTTL <= 0 || c.Tokens.AccessTTL <= 0 || c.Tokens.RefreshTTL <= 0 {
		errs = append(errs, errors.New("tokens ttl values must be positive"))
	}
	if c.Lockout.Threshold < 0 {
		errs = append(errs, errors.New("lockout.threshold must be >= 0"))
	}
	for _, t := range c.MFA.EnforceOneEnrollment {
		if t != "otp" && t != "email" && t != "sms" {
			errs = append(errs, fmt.Errorf("mfa.enforce_one_enrollment: unknown type %q", t))
		}
	}
	if c.MFA.CodeLength < 4 || c.MFA.CodeLength > 10 {
		errs = append(errs, errors.New("mfa.code_length must be between 4 and 10"))
	}
	if c.Social.Google.Enabled && c.Social.Google.ClientID == "" {
		errs = append(errs, errors.New("social.google.client_id is required when google is enabled"))
	}
	if c.IsProd() && (c.Session.HashKey == "" || c.Session.BlockKey == "") {
		errs = append(errs, errors.New("session.hash_key and session.block_key are required in prod"))
	}
	return errors.Join(errs...)
}
