package auth

import "testing"

func TestVerifyPasswordBcrypt(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	ok, upgrade := VerifyPassword(hash, "correct horse")
	if !ok {
		t.Fatal("matching password must verify")
	}
	if upgrade {
		t.Error("bcrypt credentials must not request an upgrade")
	}

	ok, _ = VerifyPassword(hash, "wrong")
	if ok {
		t.Fatal("wrong password must not verify")
	}
}

func TestVerifyPasswordLegacyPlainText(t *testing.T) {
	ok, upgrade := VerifyPassword("legacy-secret", "legacy-secret")
	if !ok {
		t.Fatal("legacy plain-text credential must verify")
	}
	if !upgrade {
		t.Error("legacy credential must request a rehash")
	}

	ok, _ = VerifyPassword("legacy-secret", "other")
	if ok {
		t.Fatal("wrong password must not verify against plain text")
	}
}

func TestVerifyPasswordEmpty(t *testing.T) {
	if ok, _ := VerifyPassword("", "x"); ok {
		t.Fatal("empty stored credential must never verify")
	}
	if ok, _ := VerifyPassword("x", ""); ok {
		t.Fatal("empty supplied password must never verify")
	}
}
