package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"ana.perez@example.com": "a…@e….com",
		" Bob@Mail.Co.UK ":      "b…@m….co.uk",
		"a@b.io":                "a@b.io",
		"":                      "",
		"abc":                   "***",
		"notanemail":            "n…l",
	}
	for in, want := range cases {
		assert.Equal(t, want, MaskEmail(in), in)
	}
}

func TestMaskEmailLocal(t *testing.T) {
	cases := map[string]string{
		"ana@example.com":  "a**@example.com",
		"Bob.S@mail.co.uk": "B****@mail.co.uk",
		"a@b.io":           "a@b.io",
		"@b.io":            "@b.io",
		"notanemail":       "notanemail",
	}
	for in, want := range cases {
		assert.Equal(t, want, MaskEmailLocal(in), in)
	}
}
