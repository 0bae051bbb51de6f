// Package util tiene helpers chicos sin dependencias del dominio.
package util

import "strings"

// MaskEmail deja la primera letra del usuario y del dominio:
// "ana.perez@example.com" => "a…@e….com". Se usa para no loguear emails.
func MaskEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	i := strings.IndexByte(s, '@')
	if i <= 0 {
		if s == "" {
			return ""
		}
		if len(s) <= 3 {
			return "***"
		}
		return s[:1] + "…" + s[len(s)-1:]
	}
	user, dom := s[:i], s[i+1:]
	if len(user) > 1 {
		user = user[:1] + "…"
	}
	parts := strings.Split(dom, ".")
	if len(parts[0]) > 1 {
		parts[0] = parts[0][:1] + "…"
	}
	return user + "@" + strings.Join(parts, ".")
}

// MaskEmailLocal es la variante para mostrar al usuario: oculta el usuario
// salvo la primera letra y deja el dominio, "ana@example.com" =>
// "a**@example.com". Con usuario de una letra no oculta nada.
func MaskEmailLocal(s string) string {
	i := strings.IndexByte(s, '@')
	if i <= 1 {
		return s
	}
	return s[:1] + strings.Repeat("*", i-1) + s[i:]
}
