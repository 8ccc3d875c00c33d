// Package credential keeps source API keys in the system keyring.
package credential

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/99designs/keyring"
)

const serviceName = "rmimport"

// ErrNotFound is returned when no key is stored for a server.
var ErrNotFound = keyring.ErrKeyNotFound

// Store reads and writes API keys.
type Store struct {
	ring keyring.Keyring
}

// Open returns a store over the system keyring.
func Open() (*Store, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/rmimport/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("rmimport-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return New(ring), nil
}

// New returns a store over ring.
func New(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// Key derives the keyring entry name for a server URL, so that keys for
// "https://rm.example.com/" and "https://rm.example.com" are shared.
func Key(serverURL string) string {
	u, err := url.Parse(strings.TrimSpace(serverURL))
	if err != nil || u.Host == "" {
		return "redmine-" + strings.TrimRight(serverURL, "/")
	}
	return "redmine-" + strings.ToLower(u.Host) + strings.TrimRight(u.Path, "/")
}

// APIKey returns the key stored for serverURL.
func (s *Store) APIKey(serverURL string) (string, error) {
	item, err := s.ring.Get(Key(serverURL))
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("getting API key for %s: %w", serverURL, err)
	}
	return string(item.Data), nil
}

// SetAPIKey stores the key for serverURL.
func (s *Store) SetAPIKey(serverURL, apiKey string) error {
	err := s.ring.Set(keyring.Item{
		Key:   Key(serverURL),
		Data:  []byte(apiKey),
		Label: "rmimport API key for " + serverURL,
	})
	if err != nil {
		return fmt.Errorf("storing API key for %s: %w", serverURL, err)
	}
	return nil
}

// DeleteAPIKey removes the key for serverURL. Deleting a missing key is not
// an error.
func (s *Store) DeleteAPIKey(serverURL string) error {
	err := s.ring.Remove(Key(serverURL))
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting API key for %s: %w", serverURL, err)
	}
	return nil
}
