package auth

import (
	"errors"
	"os"
	"strings"
	"time"
)

// ErrTokensNotFound indicates no access tokens are stored
var ErrTokensNotFound = errors.New("access tokens not found")

// ErrStoreUnavailable indicates the backing store cannot be used
var ErrStoreUnavailable = errors.New("token store unavailable")

// TokenSet holds a pool of long-duration API access tokens and their
// common expiry date
type TokenSet struct {
	Tokens       []string  `json:"tokens"`
	Expiry       time.Time `json:"expiry"`
	LastModified time.Time `json:"last_modified"`
}

// Expired reports whether the token set is past its expiry date
func (t *TokenSet) Expired() bool {
	return !t.Expiry.IsZero() && time.Now().After(t.Expiry)
}

// TokenStore is the interface for storing and retrieving access tokens
type TokenStore interface {
	// Store saves the token set
	Store(set *TokenSet) error

	// Retrieve gets the stored token set
	Retrieve() (*TokenSet, error)

	// Delete removes the stored token set
	Delete() error
}

// Manager resolves tokens through a chain of stores: environment first,
// then the system keychain
type Manager struct {
	stores []TokenStore
}

// NewManager creates a token manager with the available storage backends
func NewManager() *Manager {
	stores := []TokenStore{NewEnvironmentStore()}

	keyringStore, err := NewKeyringStore()
	if err == nil {
		stores = append(stores, keyringStore)
	}

	return &Manager{stores: stores}
}

// Retrieve returns the token set from the first store that has one
func (m *Manager) Retrieve() (*TokenSet, error) {
	for _, store := range m.stores {
		set, err := store.Retrieve()
		if err == nil && len(set.Tokens) > 0 {
			return set, nil
		}
	}
	return nil, ErrTokensNotFound
}

// Store saves the token set to every writable store
func (m *Manager) Store(set *TokenSet) error {
	if set == nil || len(set.Tokens) == 0 {
		return errors.New("at least one access token is required")
	}
	set.LastModified = time.Now()

	var stored bool
	for _, s := range m.stores {
		if err := s.Store(set); err == nil {
			stored = true
		}
	}
	if !stored {
		return ErrStoreUnavailable
	}
	return nil
}

// Delete removes the token set from every store that holds one
func (m *Manager) Delete() error {
	var deleted bool
	for _, s := range m.stores {
		if err := s.Delete(); err == nil {
			deleted = true
		}
	}
	if !deleted {
		return ErrStoreUnavailable
	}
	return nil
}

// EnvironmentStore reads tokens from FBHARVEST_ACCESS_TOKENS; it cannot
// persist anything
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based token store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(set *TokenSet) error {
	return ErrStoreUnavailable
}

// Retrieve gets tokens from the environment
func (e *EnvironmentStore) Retrieve() (*TokenSet, error) {
	raw := os.Getenv("FBHARVEST_ACCESS_TOKENS")
	if raw == "" {
		return nil, ErrTokensNotFound
	}

	var tokens []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tokens = append(tokens, t)
		}
	}
	if len(tokens) == 0 {
		return nil, ErrTokensNotFound
	}

	var expiry time.Time
	if rawExpiry := os.Getenv("FBHARVEST_TOKEN_EXPIRY"); rawExpiry != "" {
		if parsed, err := time.Parse("2006-01-02", rawExpiry); err == nil {
			expiry = parsed
		}
	}

	return &TokenSet{Tokens: tokens, Expiry: expiry}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete() error {
	return ErrStoreUnavailable
}
