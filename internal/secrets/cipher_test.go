package secrets

import (
	"encoding/base64"
	"strings"
	"testing"
)

func testKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func TestCipher_RoundTrip(t *testing.T) {
	c, err := NewCipher(testKey())
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	enc, err := c.Encrypt("EAAB-page-access-token")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if enc == "EAAB-page-access-token" {
		t.Fatal("ciphertext equals plaintext")
	}

	dec, err := c.Decrypt(enc)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if dec != "EAAB-page-access-token" {
		t.Errorf("round trip = %q", dec)
	}
}

func TestCipher_NoncesDiffer(t *testing.T) {
	c, _ := NewCipher(testKey())
	a, _ := c.Encrypt("same")
	b, _ := c.Encrypt("same")
	if a == b {
		t.Error("expected distinct ciphertexts for repeated plaintext")
	}
}

func TestCipher_TamperedCiphertext(t *testing.T) {
	c, _ := NewCipher(testKey())
	enc, _ := c.Encrypt("secret")

	raw, _ := base64.StdEncoding.DecodeString(enc)
	raw[len(raw)-1] ^= 0x01
	tampered := base64.StdEncoding.EncodeToString(raw)

	if _, err := c.Decrypt(tampered); err == nil {
		t.Error("expected authentication failure for tampered ciphertext")
	}
}

func TestCipher_TruncatedCiphertext(t *testing.T) {
	c, _ := NewCipher(testKey())
	short := base64.StdEncoding.EncodeToString([]byte("tiny"))
	if _, err := c.Decrypt(short); err == nil {
		t.Error("expected error for ciphertext shorter than the nonce")
	}
}

func TestCipher_BadKeySize(t *testing.T) {
	if _, err := NewCipher([]byte("short")); err == nil {
		t.Error("expected error for undersized key")
	}
}

func TestParseKey(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString(testKey())
	key, err := ParseKey(encoded)
	if err != nil {
		t.Fatalf("ParseKey: %v", err)
	}
	if len(key) != KeySize {
		t.Errorf("key length = %d, want %d", len(key), KeySize)
	}

	if _, err := ParseKey("not base64 !!"); err == nil {
		t.Error("expected error for invalid base64")
	}
	if _, err := ParseKey(base64.StdEncoding.EncodeToString([]byte("short"))); err == nil {
		t.Error("expected error for wrong-size key")
	}
}

func TestCipher_WrongKeyFailsToOpen(t *testing.T) {
	c1, _ := NewCipher(testKey())
	c2, _ := NewCipher([]byte(strings.Repeat("k", KeySize)))

	enc, _ := c1.Encrypt("secret")
	if _, err := c2.Decrypt(enc); err == nil {
		t.Error("expected decryption under a different key to fail")
	}
}
