package totp

import (
	"strings"
	"testing"
	"time"
)

// Vector de RFC 6238 apéndice B (SHA1, secreto ASCII "12345678901234567890"),
// truncado a 6 dígitos.
func TestCode_RFC6238Vectors(t *testing.T) {
	t.Parallel()
	secret := []byte("12345678901234567890")
	cases := map[int64]string{
		59:         "287082",
		1111111109: "081804",
		1234567890: "005924",
		2000000000: "279037",
	}
	for ts, want := range cases {
		if got := Code(secret, time.Unix(ts, 0)); got != want {
			t.Fatalf("t=%d: got %s want %s", ts, got, want)
		}
	}
}

func TestValidate_WindowAndReplay(t *testing.T) {
	t.Parallel()
	raw, enc, err := GenerateSecret()
	if err != nil {
		t.Fatal(err)
	}
	dec, err := DecodeSecret(strings.ToLower(enc))
	if err != nil || string(dec) != string(raw) {
		t.Fatalf("decode: %v", err)
	}

	now := time.Unix(1_700_000_000, 0)
	prev := Code(raw, now.Add(-Period*time.Second))

	step, ok := Validate(raw, prev, now, 1, -1)
	if !ok {
		t.Fatal("código del paso anterior debería aceptarse con window=1")
	}
	if _, ok := Validate(raw, prev, now, 1, step); ok {
		t.Fatal("replay del mismo paso debería rechazarse")
	}
	if _, ok := Validate(raw, prev, now, 0, -1); ok {
		t.Fatal("window=0 no debería aceptar el paso anterior")
	}
	if _, ok := Validate(raw, "12345", now, 1, -1); ok {
		t.Fatal("longitud inválida")
	}
}

func TestURI(t *testing.T) {
	t.Parallel()
	u := URI("Melody", "a@b.c", "ABC")
	if !strings.HasPrefix(u, "otpauth://totp/Melody:a@b.c?") || !strings.Contains(u, "secret=ABC") {
		t.Fatalf("uri = %s", u)
	}
}
