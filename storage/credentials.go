// Package storage persists the login credential between runs. It is a narrow
// wrapper over a JSON file in the user config directory; anything malformed or
// partial on disk is treated as "no stored credential", never as an error.
package storage

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/vdumbrav/matrix-solana-client/types"
)

type CredentialStore struct {
	File string // e.g. ".../matrix-solana-client/credentials.json"
}

func NewCredentialStore() (*CredentialStore, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(configDir, "matrix-solana-client", "credentials.json")

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	return &CredentialStore{File: path}, nil
}

func (s *CredentialStore) Save(cred types.Credential) error {
	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.File, data, 0600)
}

// Load returns nil when no usable credential is stored. A missing file,
// unreadable JSON, or a credential with either field absent all count as
// "not logged in".
func (s *CredentialStore) Load() *types.Credential {
	data, err := os.ReadFile(s.File)
	if err != nil {
		return nil
	}

	var cred types.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil
	}
	if !cred.Valid() {
		return nil
	}
	return &cred
}

func (s *CredentialStore) Clear() error {
	if _, err := os.Stat(s.File); os.IsNotExist(err) {
		return nil
	}
	return os.Remove(s.File)
}
