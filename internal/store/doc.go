// Package store provides file-based persistence for the messenger's local
// state.
//
// It contains concrete implementations of the domain storage interfaces,
// serialising data as JSON on disk. All methods are concurrency-safe via
// internal locking. Stored files live under the user's configured home
// directory.
//
// The package includes stores for:
//   - Message history per conversation (MessageFileStore)
//   - Login credentials for silent re-login (CredentialFileStore)
package store
