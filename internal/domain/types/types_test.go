package types

import "testing"

func TestParsePolicy(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want Policy
		ok   bool
	}{
		{"", PolicySignInOrSignUp, true},
		{"Change_Password", PolicyChangePassword, true},
		{"saml_sso_okta", Policy("saml_sso_okta"), true},
		{"saml_sso_", "", false},
		{"delete_account", "", false},
	}
	for _, c := range cases {
		got, ok := ParsePolicy(c.in)
		if got != c.want || ok != c.ok {
			t.Fatalf("ParsePolicy(%q) = %q,%v", c.in, got, ok)
		}
	}
	if name, ok := Policy("saml_sso_okta").SamlIdpName(); !ok || name != "okta" {
		t.Fatalf("idp = %q", name)
	}
}

func TestNextPage_Path(t *testing.T) {
	t.Parallel()
	if NextPageConsent.Path() != "authorize-consent" || NextPageNone.Path() != "" {
		t.Fatal("paths")
	}
	if !NextPageResetMfa.IsPolicyPage() || NextPageOtpMfa.IsPolicyPage() {
		t.Fatal("IsPolicyPage")
	}
}
