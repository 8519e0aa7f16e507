package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"eptp/internal/domain"
	"eptp/internal/util/memzero"
)

// ErrBadPublicKey is returned when an imported public key is malformed.
var ErrBadPublicKey = errors.New("malformed public key")

const sessionKDFInfo = "eptp/session/v1"

// GenerateSessionKeyPair returns a fresh Curve25519 key pair for one
// connection attempt. The private key is clamped per RFC 7748.
func GenerateSessionKeyPair() (priv domain.X25519Private, pub domain.X25519Public, err error) {
	if _, err = rand.Read(priv[:]); err != nil {
		return
	}
	clamp(&priv)
	pb, err := curve25519.X25519(priv.Slice(), curve25519.Basepoint)
	if err != nil {
		return
	}
	copy(pub[:], pb)
	return
}

// DeriveSessionKey computes the X25519 shared secret and stretches it with
// HKDF-SHA256 into a symmetric session key. Both sides of one exchange
// derive the same key.
func DeriveSessionKey(myPriv domain.X25519Private, theirPub domain.X25519Public) ([]byte, error) {
	secret, err := curve25519.X25519(myPriv.Slice(), theirPub.Slice())
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(secret)

	key := make([]byte, KeyBytes)
	kdf := hkdf.New(sha256.New, secret, nil, []byte(sessionKDFInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, err
	}
	return key, nil
}

// ExportPublicKey converts a public key to its wire form.
func ExportPublicKey(pub domain.X25519Public) string {
	return base64.StdEncoding.EncodeToString(pub.Slice())
}

// ImportPublicKey parses the wire form produced by ExportPublicKey.
func ImportPublicKey(s string) (domain.X25519Public, error) {
	var pub domain.X25519Public
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(b) != len(pub) {
		return pub, ErrBadPublicKey
	}
	copy(pub[:], b)
	return pub, nil
}

func clamp(k *domain.X25519Private) {
	kb := k[:]
	kb[0] &= 248
	kb[31] &= 127
	kb[31] |= 64
}
