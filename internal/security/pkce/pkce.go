// Package pkce valida code_verifier contra el code_challenge guardado
// en el authorize (RFC 7636).
package pkce

import (
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/oauth2"
)

const (
	MethodPlain = "plain"
	MethodS256  = "S256"
)

var (
	ErrMismatch          = errors.New("pkce: code_verifier mismatch")
	ErrMissingVerifier   = errors.New("pkce: code_verifier required")
	ErrUnsupportedMethod = errors.New("pkce: unsupported code_challenge_method")
	ErrInvalidVerifier   = errors.New("pkce: malformed code_verifier")
	ErrInvalidChallenge  = errors.New("pkce: malformed code_challenge")
)

// NormalizeMethod aplica el default de RFC 7636 (vacío => plain).
func NormalizeMethod(m string) (string, error) {
	switch strings.TrimSpace(m) {
	case "", MethodPlain:
		return MethodPlain, nil
	case MethodS256:
		return MethodS256, nil
	default:
		return "", ErrUnsupportedMethod
	}
}

// Challenge calcula el challenge para verifier con el método dado.
func Challenge(verifier, method string) (string, error) {
	m, err := NormalizeMethod(method)
	if err != nil {
		return "", err
	}
	if m == MethodS256 {
		return oauth2.S256ChallengeFromVerifier(verifier), nil
	}
	return verifier, nil
}

// CheckChallenge valida el formato del challenge en el authorize: un
// challenge que ningún verifier válido puede producir se rechaza antes de
// emitir el code. S256 son 43 caracteres base64url sin padding; plain es
// el verifier mismo.
func CheckChallenge(challenge, method string) error {
	m, err := NormalizeMethod(method)
	if err != nil {
		return err
	}
	if m == MethodPlain {
		if !validVerifier(challenge) {
			return ErrInvalidChallenge
		}
		return nil
	}
	if len(challenge) != 43 || strings.ContainsAny(challenge, ".~") || !validVerifier(challenge) {
		return ErrInvalidChallenge
	}
	return nil
}

// Verify es obligatorio cuando el authorize guardó un challenge. Sin
// challenge no hay nada que verificar.
func Verify(verifier, challenge, method string) error {
	if challenge == "" {
		return nil
	}
	if verifier == "" {
		return ErrMissingVerifier
	}
	if !validVerifier(verifier) {
		return ErrInvalidVerifier
	}
	want, err := Challenge(verifier, method)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(want), []byte(challenge)) != 1 {
		return ErrMismatch
	}
	return nil
}

// validVerifier: 43-128 caracteres de [A-Z a-z 0-9 - . _ ~].
func validVerifier(v string) bool {
	if len(v) < 43 || len(v) > 128 {
		return false
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '-', c == '.', c == '_', c == '~':
		default:
			return false
		}
	}
	return true
}
