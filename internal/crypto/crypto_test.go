package crypto_test

import (
	"bytes"
	"errors"
	"testing"

	"eptp/internal/crypto"
)

func TestDeriveIdentityKey_Deterministic(t *testing.T) {
	a := crypto.DeriveIdentityKey("9876543210ab", "correct horse battery staple")
	b := crypto.DeriveIdentityKey("9876543210ab", "correct horse battery staple")
	if !bytes.Equal(a, b) {
		t.Fatal("same login must derive bit-identical key material")
	}
	if len(a) != crypto.KeyBytes {
		t.Fatalf("key length = %d, want %d", len(a), crypto.KeyBytes)
	}

	other := crypto.DeriveIdentityKey("1234567890cd", "correct horse battery staple")
	if bytes.Equal(a, other) {
		t.Fatal("different user IDs must not share identity keys")
	}
	wrong := crypto.DeriveIdentityKey("9876543210ab", "wrong phrase")
	if bytes.Equal(a, wrong) {
		t.Fatal("different phrases must not share identity keys")
	}
}

func TestDeriveSessionKey_BothSidesAgree(t *testing.T) {
	aPriv, aPub, err := crypto.GenerateSessionKeyPair()
	if err != nil {
		t.Fatalf("GenerateSessionKeyPair: %v", err)
	}
	bPriv, bPub, err := crypto.GenerateSessionKeyPair()
	if err != nil {
		t.Fatalf("GenerateSessionKeyPair: %v", err)
	}

	ka, err := crypto.DeriveSessionKey(aPriv, bPub)
	if err != nil {
		t.Fatalf("DeriveSessionKey: %v", err)
	}
	kb, err := crypto.DeriveSessionKey(bPriv, aPub)
	if err != nil {
		t.Fatalf("DeriveSessionKey: %v", err)
	}
	if !bytes.Equal(ka, kb) {
		t.Fatal("ECDH exchange must converge on one symmetric key")
	}
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key := crypto.DeriveIdentityKey("9876543210ab", "phrase")
	plaintext := []byte(`{"type":"text","payload":"hello"}`)

	nonce, ct, err := crypto.Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	got, err := crypto.Decrypt(nonce, ct, key)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: %q", got)
	}

	// Fresh nonce per call.
	nonce2, _, err := crypto.Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Equal(nonce, nonce2) {
		t.Fatal("nonce reused across calls")
	}
}

func TestDecrypt_WrongKeyFails(t *testing.T) {
	k1 := crypto.DeriveIdentityKey("9876543210ab", "one")
	k2 := crypto.DeriveIdentityKey("9876543210ab", "two")

	nonce, ct, err := crypto.Encrypt([]byte("secret"), k1)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := crypto.Decrypt(nonce, ct, k2); !errors.Is(err, crypto.ErrDecrypt) {
		t.Fatalf("want ErrDecrypt with wrong key, got %v", err)
	}

	// Corrupted ciphertext must also fail closed.
	ct[0] ^= 0xff
	if _, err := crypto.Decrypt(nonce, ct, k1); !errors.Is(err, crypto.ErrDecrypt) {
		t.Fatalf("want ErrDecrypt with corrupted ciphertext, got %v", err)
	}
}

func TestPublicKeyWireForm(t *testing.T) {
	_, pub, err := crypto.GenerateSessionKeyPair()
	if err != nil {
		t.Fatalf("GenerateSessionKeyPair: %v", err)
	}
	got, err := crypto.ImportPublicKey(crypto.ExportPublicKey(pub))
	if err != nil {
		t.Fatalf("ImportPublicKey: %v", err)
	}
	if got != pub {
		t.Fatal("public key changed across wire conversion")
	}

	if _, err := crypto.ImportPublicKey("not base64!!"); !errors.Is(err, crypto.ErrBadPublicKey) {
		t.Fatalf("want ErrBadPublicKey, got %v", err)
	}
	if _, err := crypto.ImportPublicKey("c2hvcnQ="); !errors.Is(err, crypto.ErrBadPublicKey) {
		t.Fatalf("want ErrBadPublicKey for short key, got %v", err)
	}
}
