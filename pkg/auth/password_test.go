package auth

import (
	"strings"
	"testing"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name       string
		password   string
		shouldFail bool
	}{
		{
			name:       "valid password",
			password:   "correct-horse-1",
			shouldFail: false,
		},
		{
			name:       "minimum length with letter and digit",
			password:   "abcdefg1",
			shouldFail: false,
		},
		{
			name:       "too short",
			password:   "abc1",
			shouldFail: true,
		},
		{
			name:       "letters only",
			password:   "abcdefghij",
			shouldFail: true,
		},
		{
			name:       "digits only",
			password:   "1234567890",
			shouldFail: true,
		},
		{
			name:       "too long",
			password:   strings.Repeat("a", 128) + "1",
			shouldFail: true,
		},
		{
			name:       "max length accepted",
			password:   strings.Repeat("a", 127) + "1",
			shouldFail: false,
		},
		{
			name:       "empty",
			password:   "",
			shouldFail: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)

			if tt.shouldFail && err == nil {
				t.Errorf("expected error, got nil")
			}
			if !tt.shouldFail && err != nil {
				t.Errorf("expected no error, got: %v", err)
			}
		})
	}
}

func TestHashAndComparePassword(t *testing.T) {
	password := "correct-horse-1"

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	if hash == "" {
		t.Error("hash should not be empty")
	}

	if hash == password {
		t.Error("hash should not equal plaintext password")
	}

	if err := ComparePassword(hash, password); err != nil {
		t.Errorf("ComparePassword with correct password failed: %v", err)
	}

	if err := ComparePassword(hash, "wrong-password-1"); err == nil {
		t.Error("ComparePassword with wrong password should fail")
	}
}

func TestHashPassword_EmptyRejected(t *testing.T) {
	if _, err := HashPassword(""); err == nil {
		t.Error("expected error for empty password")
	}
}

func TestHashPassword_UniqueSalt(t *testing.T) {
	first, err := HashPassword("correct-horse-1")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	second, err := HashPassword("correct-horse-1")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	if first == second {
		t.Error("two hashes of the same password should differ")
	}
}
