package flow

import (
	"github.com/dropDatabas3/melody/internal/config"
	"github.com/dropDatabas3/melody/internal/domain/repository"
)

// RequiresOtp: exigido globalmente o enrolado por el usuario.
func RequiresOtp(cfg config.MFAConfig, u *repository.User) bool {
	return cfg.OtpRequired || u.HasMfa(repository.MfaOtp)
}

func RequiresSms(cfg config.MFAConfig, u *repository.User) bool {
	return cfg.SmsRequired || u.HasMfa(repository.MfaSms)
}

func RequiresEmail(cfg config.MFAConfig, u *repository.User) bool {
	return cfg.EmailRequired || u.HasMfa(repository.MfaEmail)
}

// RequiresMfaEnrollment: hay una lista de enrolamiento forzado, ningún
// método es obligatorio globalmente y el usuario no enroló ninguno de los
// tipos de la lista.
func RequiresMfaEnrollment(cfg config.MFAConfig, u *repository.User) bool {
	if len(cfg.EnforceOneEnrollment) == 0 {
		return false
	}
	if cfg.OtpRequired || cfg.SmsRequired || cfg.EmailRequired {
		return false
	}
	for _, t := range EnrollOptions(cfg) {
		if u.HasMfa(t) {
			return false
		}
	}
	return true
}

// EnrollOptions son los tipos que el usuario puede elegir en mfa_enroll.
func EnrollOptions(cfg config.MFAConfig) []repository.MfaType {
	out := make([]repository.MfaType, 0, len(cfg.EnforceOneEnrollment))
	for _, t := range cfg.EnforceOneEnrollment {
		if mt := repository.MfaType(t); repository.ValidMfaType(mt) {
			out = append(out, mt)
		}
	}
	return out
}
