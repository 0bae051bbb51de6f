// Package helpers contiene utilidades de request/response compartidas por
// los controllers.
package helpers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	httperrors "github.com/dropDatabas3/melody/internal/http/errors"
)

const maxBodyBytes = 1 << 20

// ReadJSON decodifica el body (tolerante a campos desconocidos). Exige
// Content-Type JSON y limita el body a 1MB. Devuelve false si ya escribió
// el error.
func ReadJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.Contains(ct, "application/json") {
		httperrors.WriteError(w, httperrors.ErrInvalidRequest.WithDetail("Content-Type debe ser application/json"))
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httperrors.WriteError(w, httperrors.ErrBodyTooLarge)
			return false
		}
		httperrors.WriteError(w, httperrors.ErrInvalidRequest.WithDetail("json inválido"))
		return false
	}
	return true
}

// ReadForm parsea un form urlencoded (token endpoint) con el mismo límite.
func ReadForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		httperrors.WriteError(w, httperrors.ErrInvalidRequest.WithDetail("form inválido"))
		return false
	}
	return true
}

// WriteJSON escribe v con el status dado.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// BearerToken extrae el token de "Authorization: Bearer ...".
func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// QueryCode lee ?code= de los GET de las páginas de identidad.
func QueryCode(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get("code"))
}
