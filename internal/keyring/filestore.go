package keyring

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"ephemsg/internal/crypto"
)

// FileStore keeps the device key pair as a JSON file with owner-only
// permissions.
type FileStore struct {
	path string
}

func NewFileStore(dir, phone string) *FileStore {
	return &FileStore{path: filepath.Join(dir, fmt.Sprintf("keys-%s.json", phone))}
}

func (s *FileStore) Load() (crypto.KeyPair, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return crypto.KeyPair{}, ErrNoKey
	}
	if err != nil {
		return crypto.KeyPair{}, err
	}
	var kp crypto.KeyPair
	if err := json.Unmarshal(data, &kp); err != nil {
		return crypto.KeyPair{}, err
	}
	if kp.PrivateKey == "" || kp.PublicKey == "" {
		return crypto.KeyPair{}, ErrNoKey
	}
	return kp, nil
}

func (s *FileStore) Save(kp crypto.KeyPair) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	data, err := json.Marshal(kp)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}
