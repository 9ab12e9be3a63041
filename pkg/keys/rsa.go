package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// rsaBits is the modulus size for generated client keypairs.
const rsaBits = 2048

// PEM block types for key files and the pubkey wire field.
const (
	pemTypePrivate = "RSA PRIVATE KEY"
	pemTypePublic  = "PUBLIC KEY"
)

// ErrBadKeyPEM is returned when PEM input does not hold the expected key.
var ErrBadKeyPEM = errors.New("malformed key PEM")

// GenerateKey creates a fresh RSA keypair for a client identity.
func GenerateKey() (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaBits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}
	return key, nil
}

// KeyFileName returns the on-disk path of login's private key under dir.
func KeyFileName(dir, login string) string {
	return filepath.Join(dir, login+".key")
}

// SavePrivateKey writes key to path in PKCS#1 PEM form, readable only by
// the owning user.
func SavePrivateKey(path string, key *rsa.PrivateKey) error {
	block := &pem.Block{
		Type:  pemTypePrivate,
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		return fmt.Errorf("save private key: %w", err)
	}
	return nil
}

// LoadPrivateKey reads a PKCS#1 PEM private key from path.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load private key: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil || block.Type != pemTypePrivate {
		return nil, fmt.Errorf("%w: want %s block", ErrBadKeyPEM, pemTypePrivate)
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadKeyPEM, err)
	}
	return key, nil
}

// LoadOrCreate returns login's private key from dir, generating and saving
// a new one on first use.
func LoadOrCreate(dir, login string) (*rsa.PrivateKey, error) {
	path := KeyFileName(dir, login)
	key, err := LoadPrivateKey(path)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	key, err = GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := SavePrivateKey(path, key); err != nil {
		return nil, err
	}
	return key, nil
}

// PublicKeyPEM renders pub in PKIX PEM form as sent in the pubkey field.
func PublicKeyPEM(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("encode public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: pemTypePublic, Bytes: der})), nil
}

// ParsePublicKeyPEM parses a PKIX PEM public key received from a peer.
func ParsePublicKeyPEM(text string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(text))
	if block == nil || block.Type != pemTypePublic {
		return nil, fmt.Errorf("%w: want %s block", ErrBadKeyPEM, pemTypePublic)
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadKeyPEM, err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA key", ErrBadKeyPEM)
	}
	return pub, nil
}

// Encrypt seals plaintext for pub with RSA-OAEP (SHA-1, the peer-agreed
// variant) and returns the base64 form carried in message_text.
func Encrypt(pub *rsa.PublicKey, plaintext []byte) (string, error) {
	ct, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, pub, plaintext, nil)
	if err != nil {
		return "", fmt.Errorf("encrypt message: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

// Decrypt reverses Encrypt with the recipient's private key.
func Decrypt(priv *rsa.PrivateKey, encoded string) ([]byte, error) {
	ct, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	pt, err := rsa.DecryptOAEP(sha1.New(), rand.Reader, priv, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt message: %w", err)
	}
	return pt, nil
}
