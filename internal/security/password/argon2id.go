// Package password hashea contraseñas con argon2id en formato PHC.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/argon2"
)

type Params struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	KeyLen      uint32
}

var Default = Params{Memory: 64 * 1024, Time: 3, Parallelism: 1, KeyLen: 32}

// Test son parámetros baratos para tests.
var Test = Params{Memory: 1024, Time: 1, Parallelism: 1, KeyLen: 32}

var (
	ErrEmpty   = errors.New("password: empty")
	ErrTooWeak = errors.New("password: too short")
)

// Hash devuelve $argon2id$v=19$m=..,t=..,p=..$<salt>$<key>.
func Hash(p Params, plain string) (string, error) {
	if plain == "" {
		return "", ErrEmpty
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	dk := argon2.IDKey([]byte(plain), salt, p.Time, p.Memory, p.Parallelism, p.KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Time, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(dk),
	), nil
}

// Verify compara en tiempo constante. Un PHC malformado nunca verifica.
func Verify(plain, phc string) bool {
	parts := strings.Split(phc, "$")
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}
	var v int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &v); err != nil || v != argon2.Version {
		return false
	}
	var m, t uint32
	var p uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &m, &t, &p); err != nil {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(want) == 0 {
		return false
	}
	got := argon2.IDKey([]byte(plain), salt, t, m, p, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}

var dummyHash, _ = Hash(Default, "melody-dummy-password")

// VerifyDummy consume el mismo tiempo que un Verify real. Se usa cuando el
// usuario no existe para no distinguirlo por latencia.
func VerifyDummy(plain string) {
	_ = Verify(plain, dummyHash)
}

// CheckPolicy valida la longitud mínima (en runas).
func CheckPolicy(plain string, minLen int) error {
	if plain == "" {
		return ErrEmpty
	}
	if utf8.RuneCountInString(plain) < minLen {
		return ErrTooWeak
	}
	return nil
}
