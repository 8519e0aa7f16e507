package domain

// X25519Private is Curve25519 private key material.
type X25519Private [32]byte

// Slice returns the key as a byte slice.
func (k X25519Private) Slice() []byte { return k[:] }

// X25519Public is Curve25519 public key material.
type X25519Public [32]byte

// Slice returns the key as a byte slice.
func (k X25519Public) Slice() []byte { return k[:] }
