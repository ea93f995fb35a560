package bearer

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

// ErrNoStoredToken is returned by KeyringStore.Load when nothing is saved.
var ErrNoStoredToken = errors.New("bearer: no stored token")

const tokenKey = "access-token"

// KeyringConfig selects where tokens are persisted.
type KeyringConfig struct {
	ServiceName string
	// FileDir is used by the encrypted file backend when no OS keychain is available.
	FileDir string
	// FilePassword protects the file backend.
	FilePassword string
}

// KeyringStore persists the access token between runs of a terminal client.
type KeyringStore struct {
	ring keyring.Keyring
}

// OpenKeyring opens the OS keychain, falling back to an encrypted file.
func OpenKeyring(cfg KeyringConfig) (*KeyringStore, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "notifykit"
	}
	if cfg.FileDir == "" {
		cfg.FileDir = "~/.config/" + cfg.ServiceName + "/credentials"
	}
	if cfg.FilePassword == "" {
		cfg.FilePassword = cfg.ServiceName + "-file-key"
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName: cfg.ServiceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  cfg.FileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(cfg.FilePassword),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return NewKeyringStore(ring), nil
}

// NewKeyringStore wraps an already opened keyring.
func NewKeyringStore(ring keyring.Keyring) *KeyringStore {
	return &KeyringStore{ring: ring}
}

// Save stores token.
func (s *KeyringStore) Save(token string) error {
	if err := s.ring.Set(keyring.Item{Key: tokenKey, Data: []byte(token)}); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	return nil
}

// Load returns the stored token.
func (s *KeyringStore) Load() (string, error) {
	item, err := s.ring.Get(tokenKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNoStoredToken
	}
	if err != nil {
		return "", fmt.Errorf("loading token: %w", err)
	}
	if len(item.Data) == 0 {
		return "", ErrNoStoredToken
	}
	return string(item.Data), nil
}

// Delete removes the stored token. Deleting a missing token is not an error.
func (s *KeyringStore) Delete() error {
	err := s.ring.Remove(tokenKey)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting token: %w", err)
	}
	return nil
}

// Holder loads the stored token into a new Holder.
func (s *KeyringStore) Holder(opts ...HolderOption) (*Holder, error) {
	token, err := s.Load()
	if err != nil {
		return nil, err
	}
	return Static(token, opts...), nil
}
