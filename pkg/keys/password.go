// Package keys holds the credential primitives shared by the takmachat
// server and client: PBKDF2 password hashing, the HMAC challenge-response
// exchanged at login, and RSA keypair handling for end-to-end message
// encryption.
package keys

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2 parameters for the stored password hash. These are part of the
// wire contract: server and client must derive identical hashes from the
// same login/password pair.
const (
	pbkdf2Iterations = 10000
	pbkdf2KeyLen     = 64
)

// challengeBytes is the number of random bytes in a login challenge. The
// wire carries the hex encoding, twice as many characters.
const challengeBytes = 64

// PasswordHash derives the stored credential for a login/password pair:
// PBKDF2-HMAC-SHA512 over the password with the lowercased login as salt,
// rendered as lowercase hex. Both sides derive it independently; the
// plaintext password never crosses the wire.
func PasswordHash(login, password string) string {
	salt := []byte(strings.ToLower(login))
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, pbkdf2KeyLen, sha512.New)
	return hex.EncodeToString(key)
}

// NewChallenge returns a fresh random login challenge as lowercase hex.
func NewChallenge() (string, error) {
	buf := make([]byte, challengeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate challenge: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// ChallengeAnswer computes the reply to a login challenge. The protocol's
// MAC is HMAC-MD5 keyed with the hex password hash over the hex challenge,
// and the reply is the base64 digest.
func ChallengeAnswer(passwordHash, challenge string) string {
	mac := hmac.New(md5.New, []byte(passwordHash))
	mac.Write([]byte(challenge))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyAnswer checks a challenge reply against the stored password hash
// in constant time. A reply that is not valid base64 fails verification
// rather than erroring.
func VerifyAnswer(passwordHash, challenge, answer string) bool {
	got, err := base64.StdEncoding.DecodeString(answer)
	if err != nil {
		return false
	}
	mac := hmac.New(md5.New, []byte(passwordHash))
	mac.Write([]byte(challenge))
	return hmac.Equal(got, mac.Sum(nil))
}
