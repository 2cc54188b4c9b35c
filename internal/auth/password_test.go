package auth

import (
	"strings"
	"testing"
)

func TestPasswordHashRoundtrip(t *testing.T) {
	hash, err := HashPassword("correct horse 1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "correct horse 1" {
		t.Fatal("hash must not equal the plaintext")
	}
	if err := VerifyPassword(hash, "correct horse 1"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := VerifyPassword(hash, "wrong horse 1"); err == nil {
		t.Fatal("expected mismatch error")
	}
}

func TestValidatePasswordStrength(t *testing.T) {
	cases := []struct {
		password string
		want     int
	}{
		{"s3curePass", 0},
		{"short1", 1},
		{"onlyletters", 1},
		{"12345678", 1},
		{"abc", 2},
		{"", 3},
	}
	for _, tc := range cases {
		reasons := ValidatePasswordStrength(tc.password)
		if len(reasons) != tc.want {
			t.Fatalf("password %q: got %d reasons (%s), want %d",
				tc.password, len(reasons), strings.Join(reasons, "; "), tc.want)
		}
	}
}
