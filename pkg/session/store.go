// Package session persists the auth credential in a durable key-value
// store so a logged-in user re-enters the authenticated view after a
// process restart without re-prompting.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// credentialKey is the fixed key the credential lives under. There is at
// most one saved session per store.
var credentialKey = []byte("session")

// ErrNoCredentials is returned by Load when no session has been saved.
var ErrNoCredentials = errors.New("no saved credentials")

// Credentials is the persisted session state.
type Credentials struct {
	Token    string    `json:"token"`
	Username string    `json:"username"`
	Server   string    `json:"server"`
	SavedAt  time.Time `json:"saved_at"`
}

// Store is a badger-backed credential store.
type Store struct {
	db *badger.DB
}

// DefaultDir returns the per-user location of the credential store.
func DefaultDir() string {
	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, _ := os.UserHomeDir()
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, "CloudDrive", "session")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "clouddrive", "session")
}

// Open opens (creating if needed) the credential store at dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return &Store{db: db}, nil
}

// Save stores the credential, replacing any previous one.
func (s *Store) Save(c *Credentials) error {
	if c.SavedAt.IsZero() {
		c.SavedAt = time.Now()
	}
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(credentialKey, data)
	})
}

// Load reads the saved credential. Returns ErrNoCredentials when the store
// is empty.
func (s *Store) Load() (*Credentials, error) {
	var c Credentials
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(credentialKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &c)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNoCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	return &c, nil
}

// Delete removes the saved credential. Deleting an empty store is not an
// error.
func (s *Store) Delete() error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(credentialKey)
	})
}

// Close closes the underlying store.
func (s *Store) Close() error {
	return s.db.Close()
}
