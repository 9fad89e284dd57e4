// Package store provides the file-backed account store used to persist the
// authority account between runs.
package store

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/certmint/certmint/acme/keys"
	"github.com/certmint/certmint/acme/resources"
)

// FileStore persists a single account as a JSON document holding the
// account metadata and the DER-serialized private key.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore persisting to the given path. The file
// does not need to exist yet.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// frozenAccount is the serialized form of an account.
type frozenAccount struct {
	URL          string   `json:"url"`
	ID           uint64   `json:"id"`
	Contact      []string `json:"contact,omitempty"`
	KeyAlgorithm string   `json:"keyAlgorithm"`
	PrivateKey   []byte   `json:"privateKey"`
}

// GetAccount loads the stored account. A missing file means no account has
// been stored yet and returns (nil, nil).
func (s *FileStore) GetAccount() (*resources.Account, error) {
	frozenBytes, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var frozen frozenAccount
	if err := json.Unmarshal(frozenBytes, &frozen); err != nil {
		return nil, fmt.Errorf("account file %q is corrupt: %w", s.path, err)
	}

	signer, err := keys.UnmarshalSigner(frozen.PrivateKey, frozen.KeyAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("account file %q holds an unusable key: %w", s.path, err)
	}

	return &resources.Account{
		URL:     frozen.URL,
		ID:      frozen.ID,
		Contact: frozen.Contact,
		Signer:  signer,
	}, nil
}

// SaveAccount persists the given account, overwriting any previous one. The
// file is written with owner-only permissions because it contains the
// account private key.
func (s *FileStore) SaveAccount(acct *resources.Account) error {
	keyBytes, algorithm, err := keys.MarshalSigner(acct.Signer)
	if err != nil {
		return err
	}

	frozen := frozenAccount{
		URL:          acct.URL,
		ID:           acct.ID,
		Contact:      acct.Contact,
		KeyAlgorithm: algorithm,
		PrivateKey:   keyBytes,
	}

	frozenBytes, err := json.MarshalIndent(frozen, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, frozenBytes, 0o600)
}
