package crypto

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrDecrypt is returned on authentication failure: corrupted, forged, or
// wrong-key data. Callers drop the frame; a single bad frame must not tear
// down an otherwise healthy session.
var ErrDecrypt = errors.New("decryption failed")

// NonceBytes is the AEAD nonce length.
const NonceBytes = chacha20poly1305.NonceSize

// Encrypt seals plaintext with ChaCha20-Poly1305 under key, generating a
// fresh random nonce per call. Nonce reuse under one key breaks
// confidentiality, so there is no deterministic-nonce variant.
func Encrypt(plaintext, key []byte) (nonce, ciphertext []byte, err error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, NonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}
	return nonce, aead.Seal(nil, nonce, plaintext, nil), nil
}

// Decrypt opens a sealed message. Any tampering or key mismatch yields
// ErrDecrypt.
func Decrypt(nonce, ciphertext, key []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != NonceBytes {
		return nil, ErrDecrypt
	}
	pt, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return pt, nil
}
