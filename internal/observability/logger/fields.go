package logger

import (
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/melody/internal/util"
)

// ---- HTTP ----

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func Method(v string) zap.Field { return zap.String("method", v) }
func Path(v string) zap.Field { return zap.String("path", v) }
func Status(v int) zap.Field { return zap.Int("status", v) }
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }
func Bytes(v int) zap.Field { return zap.Int("bytes", v) }
func ClientIP(v string) zap.Field { return zap.String("client_ip", v) }

// ---- flujo de autorización ----

// ClientID es el client_id OAuth de la app.
func ClientID(v string) zap.Field { return zap.String("client_id", v) }

// UserID es el id interno del usuario (no el authId expuesto en tokens).
func UserID(v string) zap.Field { return zap.String("user_id", v) }

// AuthID es el "sub" de los tokens.
func AuthID(v string) zap.Field { return zap.String("auth_id", v) }

func Policy(v string) zap.Field { return zap.String("policy", v) }
func Step(v string) zap.Field { return zap.String("step", v) }
func Grant(v string) zap.Field { return zap.String("grant_type", v) }
func MfaType(v string) zap.Field { return zap.String("mfa_type", v) }
func IdpName(v string) zap.Field { return zap.String("idp", v) }
func KeyID(v string) zap.Field { return zap.String("kid", v) }

// Email se loguea solo en debug o en eventos de seguridad (lockout).
// Email loguea el email enmascarado.
func Email(v string) zap.Field { return zap.String("email", util.MaskEmail(v)) }

// ---- sistema ----

func Component(v string) zap.Field { return zap.String("component", v) }
func Layer(v string) zap.Field { return zap.String("layer", v) }
func Op(v string) zap.Field { return zap.String("op", v) }
func Err(err error) zap.Field { return zap.Error(err) }

// ---- genéricos ----

func String(k, v string) zap.Field { return zap.String(k, v) }
func Int(k string, v int) zap.Field { return zap.Int(k, v) }
func Int64(k string, v int64) zap.Field { return zap.Int64(k, v) }
func Bool(k string, v bool) zap.Field { return zap.Bool(k, v) }
func Any(k string, v any) zap.Field { return zap.Any(k, v) }
