package oauth

import (
	"slices"
	"strings"

	"github.com/dropDatabas3/melody/internal/domain/repository"
	"github.com/dropDatabas3/melody/internal/domain/types"
)

// profileClaims filtra los datos del usuario según los scopes otorgados.
func profileClaims(u *repository.User, scopes []string) map[string]any {
	out := map[string]any{}
	if slices.Contains(scopes, types.ScopeEmail) {
		out["email"] = u.Email
		out["email_verified"] = u.EmailVerified
	}
	if slices.Contains(scopes, types.ScopeProfile) {
		if u.FirstName != "" {
			out["given_name"] = u.FirstName
		}
		if u.LastName != "" {
			out["family_name"] = u.LastName
		}
		if u.Locale != "" {
			out["locale"] = u.Locale
		}
	}
	return out
}

func splitScope(s string) []string { return strings.Fields(s) }
