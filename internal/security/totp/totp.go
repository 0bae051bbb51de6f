// Package totp implementa RFC 6238 (HMAC-SHA1, 6 dígitos, período 30s).
package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	Digits = 6
	Period = 30
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateSecret retorna 20 bytes aleatorios y su base32 sin padding.
func GenerateSecret() (raw []byte, encoded string, err error) {
	raw = make([]byte, 20)
	if _, err = rand.Read(raw); err != nil {
		return nil, "", err
	}
	return raw, b32.EncodeToString(raw), nil
}

// DecodeSecret acepta base32 con o sin padding, en cualquier caso.
func DecodeSecret(encoded string) ([]byte, error) {
	s := strings.ToUpper(strings.TrimRight(strings.TrimSpace(encoded), "="))
	raw, err := b32.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("totp: invalid secret: %w", err)
	}
	return raw, nil
}

// URI construye el otpauth:// que las apps autenticadoras leen del QR.
func URI(issuer, account, secretB32 string) string {
	label := url.PathEscape(issuer + ":" + account)
	q := url.Values{}
	q.Set("secret", secretB32)
	q.Set("issuer", issuer)
	q.Set("algorithm", "SHA1")
	q.Set("digits", fmt.Sprint(Digits))
	q.Set("period", fmt.Sprint(Period))
	return "otpauth://totp/" + label + "?" + q.Encode()
}

// Counter retorna el paso de tiempo para t.
func Counter(t time.Time) int64 { return t.Unix() / Period }

// Code genera el código para t.
func Code(secret []byte, t time.Time) string { return hotp(secret, Counter(t)) }

// Validate acepta el código en ±window pasos. Los pasos <= lastUsed se
// ignoran (anti-replay); pasar -1 si no hay uso previo. Retorna el paso
// aceptado.
func Validate(secret []byte, code string, t time.Time, window int, lastUsed int64) (int64, bool) {
	code = strings.TrimSpace(code)
	if len(code) != Digits {
		return 0, false
	}
	now := Counter(t)
	for c := now - int64(window); c <= now+int64(window); c++ {
		if c <= lastUsed {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(hotp(secret, c)), []byte(code)) == 1 {
			return c, true
		}
	}
	return 0, false
}

// hotp es RFC 4226 con truncado dinámico.
func hotp(secret []byte, counter int64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))
	mac := hmac.New(sha1.New, secret)
	mac.Write(msg[:])
	sum := mac.Sum(nil)
	off := sum[len(sum)-1] & 0x0f
	bin := binary.BigEndian.Uint32(sum[off:off+4]) & 0x7fffffff
	return fmt.Sprintf("%06d", bin%1_000_000)
}
