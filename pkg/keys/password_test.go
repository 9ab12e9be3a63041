package keys

import (
	"encoding/hex"
	"strings"
	"testing"
)

func TestPasswordHash(t *testing.T) {
	tests := []struct {
		name     string
		login    string
		password string
		want     string
	}{
		{
			name:     "reference pair alice",
			login:    "alice",
			password: "secret",
			want:     "3f00bffa36d84b8dd72b5526be5b8ed17404f72c9559b4098f6af8f4fa9c91aefe8b4b2d9ba12cae8addda1102645f86f57399d2ab529b7d5346adc3439269e4",
		},
		{
			name:     "reference pair bob",
			login:    "bob",
			password: "P@ssw0rd",
			want:     "79d08e86907d7fa5e50fe255a30cb523b21557e7a6fad8b06623227945cf0690bf6356bace56641e5d7cadbb0bca5d9ff004c51d5c9df7193bf5b5f223d0e8c8",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := PasswordHash(tc.login, tc.password)
			if got != tc.want {
				t.Errorf("PasswordHash(%q, %q) = %q, want %q", tc.login, tc.password, got, tc.want)
			}
		})
	}
}

func TestPasswordHash_LoginCaseInsensitive(t *testing.T) {
	// The salt is the lowercased login, so case variants of the same
	// login must produce the same hash.
	if PasswordHash("Alice", "secret") != PasswordHash("alice", "secret") {
		t.Error("PasswordHash() differs across login case variants")
	}
	if PasswordHash("alice", "secret") == PasswordHash("alice", "Secret") {
		t.Error("PasswordHash() ignored password case")
	}
}

func TestPasswordHash_Shape(t *testing.T) {
	hash := PasswordHash("carol", "hunter2")

	if len(hash) != 128 {
		t.Errorf("PasswordHash() length = %d, want 128 hex chars", len(hash))
	}
	if _, err := hex.DecodeString(hash); err != nil {
		t.Errorf("PasswordHash() is not valid hex: %v", err)
	}
	if hash != strings.ToLower(hash) {
		t.Error("PasswordHash() must be lowercase hex")
	}
}

func TestNewChallenge(t *testing.T) {
	c1, err := NewChallenge()
	if err != nil {
		t.Fatalf("NewChallenge() error = %v", err)
	}

	if len(c1) != 128 {
		t.Errorf("NewChallenge() length = %d, want 128 hex chars", len(c1))
	}
	if _, err := hex.DecodeString(c1); err != nil {
		t.Errorf("NewChallenge() is not valid hex: %v", err)
	}

	c2, err := NewChallenge()
	if err != nil {
		t.Fatalf("NewChallenge() error = %v", err)
	}
	if c1 == c2 {
		t.Error("NewChallenge() returned the same value twice")
	}
}

func TestChallengeAnswer(t *testing.T) {
	// Pinned against an independent HMAC-MD5 implementation.
	hash := PasswordHash("alice", "secret")
	challenge := strings.Repeat("ab", 64)

	got := ChallengeAnswer(hash, challenge)
	want := "hozOfsZLOPUk0xetfF7Bzg=="
	if got != want {
		t.Errorf("ChallengeAnswer() = %q, want %q", got, want)
	}
}

func TestVerifyAnswer(t *testing.T) {
	hash := PasswordHash("alice", "secret")
	otherHash := PasswordHash("alice", "wrong")

	challenge, err := NewChallenge()
	if err != nil {
		t.Fatalf("NewChallenge() error = %v", err)
	}
	answer := ChallengeAnswer(hash, challenge)

	tests := []struct {
		name      string
		hash      string
		challenge string
		answer    string
		want      bool
	}{
		{"correct answer", hash, challenge, answer, true},
		{"wrong password hash", otherHash, challenge, answer, false},
		{"wrong challenge", hash, strings.Repeat("00", 64), answer, false},
		{"empty answer", hash, challenge, "", false},
		{"not base64", hash, challenge, "%%%not-base64%%%", false},
		{"truncated digest", hash, challenge, answer[:8] + "==", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := VerifyAnswer(tc.hash, tc.challenge, tc.answer); got != tc.want {
				t.Errorf("VerifyAnswer() = %v, want %v", got, tc.want)
			}
		})
	}
}
