// Package audit registra eventos de seguridad de las cuentas en un logger
// aparte ("audit"), para poder enrutarlos a otro sink.
package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/dropDatabas3/melody/internal/observability/logger"
)

// Eventos.
const (
	AccountLocked   = "account.locked"
	PasswordReset   = "password.reset"
	PasswordChanged = "password.changed"
	EmailChanged    = "email.changed"
	MfaReset        = "mfa.reset"
	PasskeyEnrolled = "passkey.enrolled"
	PasskeyRemoved  = "passkey.removed"
	Logout          = "session.logout"
)

// Log escribe el evento con los campos del logger del contexto.
func Log(ctx context.Context, event string, fields ...zap.Field) {
	logger.From(ctx).Named("audit").Info(event, append(fields, zap.String("event", event))...)
}
