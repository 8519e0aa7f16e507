package store

import (
	"path/filepath"
	"sync"

	"eptp/internal/domain"
)

const credsFilename = "credentials.json"

// CredentialFileStore persists the local login so the app can silently
// re-derive its identity key on the next start. The phrase is the secret
// being stored, so the file is plain JSON guarded by 0600 permissions;
// there is nothing left to encrypt it with.
type CredentialFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewCredentialFileStore returns a CredentialFileStore rooted at dir.
func NewCredentialFileStore(dir string) *CredentialFileStore {
	return &CredentialFileStore{dir: dir}
}

// SaveCredentials writes the login to disk.
func (s *CredentialFileStore) SaveCredentials(creds domain.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(filepath.Join(s.dir, credsFilename), creds, 0o600)
}

// LoadCredentials reads the stored login, reporting whether one exists.
func (s *CredentialFileStore) LoadCredentials() (domain.Credentials, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var creds domain.Credentials
	if err := readJSON(filepath.Join(s.dir, credsFilename), &creds); err != nil {
		return domain.Credentials{}, false, err
	}
	if creds.UserID == "" {
		return domain.Credentials{}, false, nil
	}
	return creds, true, nil
}

// Compile-time assertion that CredentialFileStore implements domain.CredentialStore.
var _ domain.CredentialStore = (*CredentialFileStore)(nil)
