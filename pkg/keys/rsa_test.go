package keys

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveLoadPrivateKey(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	path := KeyFileName(t.TempDir(), "alice")
	if err := SavePrivateKey(path, key); err != nil {
		t.Fatalf("SavePrivateKey() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if got := info.Mode().Perm(); got != 0o600 {
		t.Errorf("key file mode = %o, want 600", got)
	}

	loaded, err := LoadPrivateKey(path)
	if err != nil {
		t.Fatalf("LoadPrivateKey() error = %v", err)
	}
	if !loaded.Equal(key) {
		t.Error("LoadPrivateKey() returned a different key")
	}
}

func TestKeyFileName(t *testing.T) {
	got := KeyFileName("/tmp/keys", "alice")
	want := filepath.Join("/tmp/keys", "alice.key")
	if got != want {
		t.Errorf("KeyFileName() = %q, want %q", got, want)
	}
}

func TestLoadOrCreate(t *testing.T) {
	dir := t.TempDir()

	first, err := LoadOrCreate(dir, "alice")
	if err != nil {
		t.Fatalf("LoadOrCreate() first call error = %v", err)
	}

	if _, err := os.Stat(KeyFileName(dir, "alice")); err != nil {
		t.Fatalf("key file not written: %v", err)
	}

	second, err := LoadOrCreate(dir, "alice")
	if err != nil {
		t.Fatalf("LoadOrCreate() second call error = %v", err)
	}
	if !second.Equal(first) {
		t.Error("LoadOrCreate() regenerated an existing key")
	}

	other, err := LoadOrCreate(dir, "bob")
	if err != nil {
		t.Fatalf("LoadOrCreate() for second login error = %v", err)
	}
	if other.Equal(first) {
		t.Error("LoadOrCreate() shared a key across logins")
	}
}

func TestLoadPrivateKey_Errors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadPrivateKey(KeyFileName(dir, "nobody"))
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("LoadPrivateKey() error = %v, want ErrNotExist", err)
		}
	})

	t.Run("not PEM", func(t *testing.T) {
		path := filepath.Join(dir, "garbage.key")
		if err := os.WriteFile(path, []byte("not a key"), 0o600); err != nil {
			t.Fatal(err)
		}
		_, err := LoadPrivateKey(path)
		if !errors.Is(err, ErrBadKeyPEM) {
			t.Errorf("LoadPrivateKey() error = %v, want ErrBadKeyPEM", err)
		}
	})

	t.Run("wrong block type", func(t *testing.T) {
		key, err := GenerateKey()
		if err != nil {
			t.Fatal(err)
		}
		pubPEM, err := PublicKeyPEM(&key.PublicKey)
		if err != nil {
			t.Fatal(err)
		}
		path := filepath.Join(dir, "public.key")
		if err := os.WriteFile(path, []byte(pubPEM), 0o600); err != nil {
			t.Fatal(err)
		}
		_, err = LoadPrivateKey(path)
		if !errors.Is(err, ErrBadKeyPEM) {
			t.Errorf("LoadPrivateKey() error = %v, want ErrBadKeyPEM", err)
		}
	})
}

func TestPublicKeyPEMRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	pemText, err := PublicKeyPEM(&key.PublicKey)
	if err != nil {
		t.Fatalf("PublicKeyPEM() error = %v", err)
	}
	if !strings.HasPrefix(pemText, "-----BEGIN PUBLIC KEY-----") {
		t.Errorf("PublicKeyPEM() = %q, want PUBLIC KEY block", pemText[:40])
	}

	pub, err := ParsePublicKeyPEM(pemText)
	if err != nil {
		t.Fatalf("ParsePublicKeyPEM() error = %v", err)
	}
	if !pub.Equal(&key.PublicKey) {
		t.Error("ParsePublicKeyPEM() returned a different key")
	}
}

func TestParsePublicKeyPEM_Errors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"not PEM", "hello"},
		{"wrong block", "-----BEGIN CERTIFICATE-----\nAAAA\n-----END CERTIFICATE-----\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParsePublicKeyPEM(tc.text); !errors.Is(err, ErrBadKeyPEM) {
				t.Errorf("ParsePublicKeyPEM() error = %v, want ErrBadKeyPEM", err)
			}
		})
	}
}

func TestEncryptDecrypt(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	plaintext := []byte("привет, bob")

	encoded, err := Encrypt(&key.PublicKey, plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if strings.Contains(encoded, string(plaintext)) {
		t.Error("Encrypt() leaked plaintext")
	}

	decrypted, err := Decrypt(key, encoded)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if string(decrypted) != string(plaintext) {
		t.Errorf("Decrypt() = %q, want %q", decrypted, plaintext)
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	sender, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	other, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	encoded, err := Encrypt(&sender.PublicKey, []byte("for sender only"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	if _, err := Decrypt(other, encoded); err == nil {
		t.Error("Decrypt() with the wrong key should fail")
	}
}

func TestDecrypt_NotBase64(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Decrypt(key, "%%%"); err == nil {
		t.Error("Decrypt() should reject input that is not base64")
	}
}
