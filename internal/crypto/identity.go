package crypto

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/argon2"

	"eptp/internal/domain"
)

const (
	// KeyBytes is the length of every symmetric key in the system.
	KeyBytes = 32

	identitySaltPrefix = "eptp/identity/v1:"
)

// DeriveIdentityKey derives the long-lived identity key from a login.
// Argon2id, salted with the user ID: the same (userID, phrase) always yields
// bit-identical key material, which is what makes silent re-login possible
// without any server-side account.
func DeriveIdentityKey(userID domain.UserID, phrase string) []byte {
	salt := []byte(identitySaltPrefix + userID.String())
	return argon2.IDKey([]byte(phrase), salt, 1<<16, 8, 1, KeyBytes)
}

// Fingerprint returns a short hex digest of key material for display/logging.
func Fingerprint(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:10])
}
