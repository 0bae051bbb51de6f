package password

import "testing"

func TestHashVerify(t *testing.T) {
	t.Parallel()
	phc, err := Hash(Test, "correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !Verify("correct horse", phc) {
		t.Fatal("esperaba verificación OK")
	}
	if Verify("wrong", phc) {
		t.Fatal("password incorrecta verificó")
	}
}

func TestVerify_Malformed(t *testing.T) {
	t.Parallel()
	for _, phc := range []string{"", "plain", "$argon2id$v=19$m=1,t=1,p=1$$", "$bcrypt$v=19$m=1,t=1,p=1$AA$AA"} {
		if Verify("x", phc) {
			t.Fatalf("PHC %q no debería verificar", phc)
		}
	}
}

func TestHash_Empty(t *testing.T) {
	t.Parallel()
	if _, err := Hash(Test, ""); err != ErrEmpty {
		t.Fatalf("err = %v", err)
	}
}

func TestCheckPolicy(t *testing.T) {
	t.Parallel()
	if err := CheckPolicy("short", 8); err != ErrTooWeak {
		t.Fatalf("err = %v", err)
	}
	if err := CheckPolicy("long enough", 8); err != nil {
		t.Fatalf("err = %v", err)
	}
}
