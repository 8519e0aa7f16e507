// Package crypto exposes the primitives behind the messenger's two key layers.
//
// Contents
//
//   - Identity key derivation from a login (DeriveIdentityKey): Argon2id,
//     salted with the user ID, deterministic across devices
//   - Per-connection X25519 session key pairs (GenerateSessionKeyPair) and
//     ECDH + HKDF session key agreement (DeriveSessionKey)
//   - Wire conversion for public keys (ExportPublicKey, ImportPublicKey)
//   - Authenticated message encryption (Encrypt, Decrypt) with a fresh
//     random nonce per call
//   - Short public-key fingerprints for display/logging (Fingerprint)
//
// # Notes
//
// Key derivation is deliberately slow; call it off the interactive path.
// Session keys are never persisted: a new channel always performs a fresh
// exchange, which is the forward-secrecy boundary. Callers should treat
// returned secrets as sensitive and rely on memzero.Zero when practical.
package crypto
