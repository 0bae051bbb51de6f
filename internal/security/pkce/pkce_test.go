package pkce

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"testing"

	"golang.org/x/oauth2"
)

func TestVerify_S256RoundTrip(t *testing.T) {
	t.Parallel()
	for i := 0; i < 20; i++ {
		v := oauth2.GenerateVerifier()
		sum := sha256.Sum256([]byte(v))
		challenge := base64.RawURLEncoding.EncodeToString(sum[:])

		if err := Verify(v, challenge, MethodS256); err != nil {
			t.Fatalf("verifier correcto rechazado: %v", err)
		}
		other := oauth2.GenerateVerifier()
		if err := Verify(other, challenge, MethodS256); !errors.Is(err, ErrMismatch) {
			t.Fatalf("verifier ajeno: err = %v", err)
		}
	}
}

func TestVerify_Plain(t *testing.T) {
	t.Parallel()
	v := "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	if err := Verify(v, v, ""); err != nil {
		t.Fatalf("plain: %v", err)
	}
	if err := Verify(v+"x", v, MethodPlain); !errors.Is(err, ErrMismatch) {
		t.Fatalf("plain mismatch: %v", err)
	}
}

func TestVerify_Edges(t *testing.T) {
	t.Parallel()
	if err := Verify("", "", ""); err != nil {
		t.Fatalf("sin challenge no se verifica: %v", err)
	}
	if err := Verify("", "challenge", MethodS256); !errors.Is(err, ErrMissingVerifier) {
		t.Fatalf("err = %v", err)
	}
	if err := Verify("short", "challenge", MethodS256); !errors.Is(err, ErrInvalidVerifier) {
		t.Fatalf("err = %v", err)
	}
	if _, err := NormalizeMethod("S512"); !errors.Is(err, ErrUnsupportedMethod) {
		t.Fatalf("err = %v", err)
	}
}

func TestCheckChallenge(t *testing.T) {
	t.Parallel()
	v := oauth2.GenerateVerifier()
	ok := []struct{ challenge, method string }{
		{oauth2.S256ChallengeFromVerifier(v), MethodS256},
		{"E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", MethodS256},
		{v, MethodPlain},
		{v, ""},
	}
	for _, c := range ok {
		if err := CheckChallenge(c.challenge, c.method); err != nil {
			t.Fatalf("CheckChallenge(%q, %q) = %v", c.challenge, c.method, err)
		}
	}

	bad := []struct{ challenge, method string }{
		{"abc", MethodS256},
		{"short", MethodPlain},
		{"E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM=", MethodS256},
		{"E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw.cM", MethodS256},
		{"E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw+cM", MethodS256},
	}
	for _, c := range bad {
		if err := CheckChallenge(c.challenge, c.method); !errors.Is(err, ErrInvalidChallenge) {
			t.Fatalf("CheckChallenge(%q, %q) = %v", c.challenge, c.method, err)
		}
	}
	if err := CheckChallenge(v, "S512"); !errors.Is(err, ErrUnsupportedMethod) {
		t.Fatalf("err = %v", err)
	}
}
