// Package validation contiene chequeos de formato compartidos por el
// validador de /authorize y la carga del seed.
package validation

import "regexp"

// Nombres de scope: minúsculas, empiezan y terminan en [a-z0-9], en el
// medio admiten [a-z0-9:_.-], largo 1..64. Nada de espacios ni ';'.
//
// Válidos: openid, profile:read, email:read:e2e123, a_b-c.d:scope2
// Inválidos: ;hack, BAD, :leader, trailer:, "", 65+ chars.
var scopeNameRe = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9:_\.-]{0,62}[a-z0-9])?$`)

// ValidScopeName indica si name es un nombre de scope aceptable.
func ValidScopeName(name string) bool {
	return scopeNameRe.MatchString(name)
}

// FirstInvalidScope retorna el primer scope mal formado, o "" si todos
// son válidos.
func FirstInvalidScope(scopes []string) string {
	for _, s := range scopes {
		if !ValidScopeName(s) {
			return s
		}
	}
	return ""
}
