package password

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerify(t *testing.T) {
	hasher, err := NewHasher(Config{Cost: 10})
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}

	hash, err := hasher.Hash("correct horse 9")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if hash == "correct horse 9" {
		t.Fatal("hash must not equal the password")
	}

	ok, err := hasher.Verify(hash, "correct horse 9")
	if err != nil || !ok {
		t.Fatalf("expected verify to succeed, ok=%v err=%v", ok, err)
	}

	ok, err = hasher.Verify(hash, "wrong horse 9")
	if err != nil {
		t.Fatalf("mismatch must not be an error: %v", err)
	}
	if ok {
		t.Fatal("expected verify to fail for wrong password")
	}
}

func TestVerifyMalformedHash(t *testing.T) {
	hasher, err := NewHasher(Config{Cost: 10})
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}

	if _, err := hasher.Verify("not-a-bcrypt-hash", "whatever1"); err == nil {
		t.Fatal("expected error for malformed hash")
	}
}

func TestNewHasherRejectsBadCost(t *testing.T) {
	if _, err := NewHasher(Config{Cost: 9}); err == nil {
		t.Fatal("expected error for cost below minimum")
	}
	if _, err := NewHasher(Config{Cost: 15}); err == nil {
		t.Fatal("expected error for cost above maximum")
	}
	if _, err := NewHasher(Config{}); err != nil {
		t.Fatalf("zero cost should default, got %v", err)
	}
}

func TestNeedsUpgrade(t *testing.T) {
	low, err := bcrypt.GenerateFromPassword([]byte("password1"), 10)
	if err != nil {
		t.Fatalf("GenerateFromPassword failed: %v", err)
	}

	hasher, err := NewHasher(Config{Cost: 12})
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}

	if !hasher.NeedsUpgrade(string(low)) {
		t.Fatal("expected cost-10 hash to need upgrade at cost 12")
	}
	if hasher.NeedsUpgrade("garbage") {
		t.Fatal("malformed hash must not be reported as upgradeable")
	}
}

func TestValidatePolicy(t *testing.T) {
	cases := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"ok", "password1", false},
		{"ok unicode", "pässword1", false},
		{"too short", "pass1", true},
		{"too long", strings.Repeat("a1", 70), true},
		{"no digit", "passwords", true},
		{"no letter", "12345678", true},
		{"empty", "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePolicy(tc.password)
			if tc.wantErr {
				if !errors.Is(err, ErrWeakPassword) {
					t.Fatalf("expected ErrWeakPassword, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected password to pass policy, got %v", err)
			}
		})
	}
}
