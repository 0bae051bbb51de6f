package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}

// getEnvSeconds acepta "300" (segundos) o una duración Go ("5m").
func getEnvSeconds(key string) (time.Duration, bool) {
	if n, ok := getEnvInt(key); ok {
		return time.Duration(n) * time.Second, true
	}
	return getEnvDur(key)
}

func getEnvCSV(key string) ([]string, bool) {
	s, ok := os.LookupEnv(key)
	if !ok {
		return nil, false
	}
	out := []string{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, true
}

func setStr(dst *string, key string) {
	if v, ok := getEnvStr(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := getEnvInt(key); ok {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v, ok := getEnvBool(key); ok {
		*dst = v
	}
}

func setDur(dst *time.Duration, key string) {
	if v, ok := getEnvDur(key); ok {
		*dst = v
	}
}

func setSeconds(dst *time.Duration, key string) {
	if v, ok := getEnvSeconds(key); ok {
		*dst = v
	}
}

func setCSV(dst *[]string, key string) {
	if v, ok := getEnvCSV(key); ok {
		*dst = v
	}
}

// applyEnvOverrides pisa el YAML con variables de entorno. Los nombres
// clásicos (AUTHORIZATION_CODE_EXPIRES_IN, ACCOUNT_LOCKOUT_THRESHOLD, ...)
// se aceptan tal cual; el resto usa prefijo MELODY_.
func (c *Config) applyEnvOverrides() {
	setStr(&c.App.Env, "APP_ENV")
	setStr(&c.Log.Level, "LOG_LEVEL")

	setStr(&c.Server.Addr, "MELODY_ADDR")
	setStr(&c.Server.Issuer, "AUTH_SERVER_URL")
	setStr(&c.Server.IdentityUIURL, "MELODY_IDENTITY_UI_URL")
	setBool(&c.Server.TrustProxyHeaders, "MELODY_TRUST_PROXY_HEADERS")
	setCSV(&c.Server.CORSOrigins, "MELODY_CORS_ORIGINS")

	setStr(&c.Storage.Driver, "MELODY_STORAGE_DRIVER")
	setStr(&c.Storage.DSN, "DATABASE_URL")
	setBool(&c.Storage.MigrateOnStart, "MELODY_MIGRATE_ON_START")
	setStr(&c.Storage.SeedFile, "MELODY_SEED_FILE")

	setStr(&c.Cache.Kind, "MELODY_CACHE_KIND")
	setStr(&c.Cache.Redis.Addr, "REDIS_ADDR")
	setStr(&c.Cache.Redis.Password, "REDIS_PASSWORD")
	setInt(&c.Cache.Redis.DB, "REDIS_DB")
	setStr(&c.Cache.Redis.Prefix, "REDIS_PREFIX")

	setStr(&c.Keys.Source, "MELODY_KEYS_SOURCE")
	setStr(&c.Keys.Dir, "MELODY_KEYS_DIR")
	setDur(&c.Keys.CacheTTL, "MELODY_KEYS_CACHE_TTL")

	setSeconds(&c.Tokens.AuthCodeTTL, "AUTHORIZATION_CODE_EXPIRES_IN")
	setSeconds(&c.Tokens.AccessTTL, "ACCESS_TOKEN_EXPIRES_IN")
	setSeconds(&c.Tokens.IDTokenTTL, "ID_TOKEN_EXPIRES_IN")
	setSeconds(&c.Tokens.RefreshTTL, "REFRESH_TOKEN_EXPIRES_IN")

	setSeconds(&c.Session.TTL, "SERVER_SESSION_EXPIRES_IN")
	setStr(&c.Session.HashKey, "MELODY_SESSION_HASH_KEY")
	setStr(&c.Session.BlockKey, "MELODY_SESSION_BLOCK_KEY")
	setBool(&c.Session.Secure, "MELODY_SESSION_SECURE")

	setBool(&c.Consent.Enabled, "ENABLE_USER_APP_CONSENT")
	setCSV(&c.Consent.SystemScopes, "SYSTEM_SCOPES")

	setInt(&c.Lockout.Threshold, "ACCOUNT_LOCKOUT_THRESHOLD")
	setSeconds(&c.Lockout.Expiry, "ACCOUNT_LOCKOUT_EXPIRES_IN")
	setBool(&c.Lockout.UnlockViaPasswordReset, "UNLOCK_ACCOUNT_VIA_PASSWORD_RESET")

	setCSV(&c.MFA.EnforceOneEnrollment, "ENFORCE_ONE_MFA_ENROLLMENT")
	setBool(&c.MFA.OtpRequired, "OTP_MFA_IS_REQUIRED")
	setBool(&c.MFA.SmsRequired, "SMS_MFA_IS_REQUIRED")
	setBool(&c.MFA.EmailRequired, "EMAIL_MFA_IS_REQUIRED")
	setBool(&c.MFA.AllowEmailAsBackup, "ALLOW_EMAIL_MFA_AS_BACKUP")
	setBool(&c.MFA.EnableRecoveryCode, "ENABLE_RECOVERY_CODE")
	setSeconds(&c.MFA.CodeTTL, "MFA_CODE_EXPIRES_IN")
	setInt(&c.MFA.OtpLockout.Threshold, "OTP_MFA_LOCKOUT_THRESHOLD")
	setSeconds(&c.MFA.OtpLockout.Expiry, "OTP_MFA_LOCKOUT_EXPIRES_IN")
	setInt(&c.MFA.SmsLockout.Threshold, "SMS_MFA_LOCKOUT_THRESHOLD")
	setSeconds(&c.MFA.SmsLockout.Expiry, "SMS_MFA_LOCKOUT_EXPIRES_IN")
	setInt(&c.MFA.EmailLockout.Threshold, "EMAIL_MFA_LOCKOUT_THRESHOLD")
	setSeconds(&c.MFA.EmailLockout.Expiry, "EMAIL_MFA_LOCKOUT_EXPIRES_IN")

	setBool(&c.Passkey.AllowEnrollment, "ALLOW_PASSKEY_ENROLLMENT")
	setStr(&c.Passkey.RPID, "PASSKEY_RP_ID")
	setCSV(&c.Passkey.Origins, "PASSKEY_ORIGINS")

	setCSV(&c.Policies.Blocked, "BLOCKED_POLICIES")

	setBool(&c.Features.SignUp, "ENABLE_SIGN_UP")
	setBool(&c.Features.PasswordSignIn, "ENABLE_PASSWORD_SIGN_IN")
	setBool(&c.Features.PasswordReset, "ENABLE_PASSWORD_RESET")

	setBool(&c.Social.Google.Enabled, "GOOGLE_SIGN_IN_ENABLED")
	setStr(&c.Social.Google.ClientID, "GOOGLE_AUTH_CLIENT_ID")

	setBool(&c.SAML.Enabled, "ENABLE_SAML_SSO_AS_SP")
	setStr(&c.SAML.CertFile, "SAML_SP_CRT_FILE")
	setStr(&c.SAML.KeyFile, "SAML_SP_KEY_FILE")

	setStr(&c.SMTP.Host, "SMTP_HOST")
	setInt(&c.SMTP.Port, "SMTP_PORT")
	setStr(&c.SMTP.Username, "SMTP_USERNAME")
	setStr(&c.SMTP.Password, "SMTP_PASSWORD")
	setStr(&c.SMTP.From, "SMTP_FROM")
	setStr(&c.SMTP.TLSMode, "SMTP_TLS_MODE")

	setStr(&c.SMS.Provider, "SMS_PROVIDER")
	setStr(&c.SMS.GatewayURL, "SMS_GATEWAY_URL")
	setStr(&c.SMS.APIKey, "SMS_GATEWAY_API_KEY")
	setStr(&c.SMS.From, "SMS_FROM")

	setBool(&c.Rate.Enabled, "MELODY_RATE_ENABLED")
	setInt(&c.Rate.Limit, "MELODY_RATE_LIMIT")
	setDur(&c.Rate.Window, "MELODY_RATE_WINDOW")
}
