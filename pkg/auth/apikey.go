package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	KeyPrefixProduction = "fsc_live_"
	KeyPrefixTest       = "fsc_test_"
	KeyRandomLength     = 32 // bytes of random data
)

var (
	ErrKeyNotFound   = errors.New("api key not found")
	ErrKeyRevoked    = errors.New("api key has been revoked")
	ErrInvalidKey    = errors.New("invalid api key")
	ErrShortHMACKey  = errors.New("hmac secret must be at least 32 bytes")
	ErrEmptyKeyLabel = errors.New("key label cannot be empty")
)

// APIKey is the stored metadata for an issued key. The key string
// itself is only returned once, at creation.
type APIKey struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Prefix    string    `json:"prefix"`
	Hash      string    `json:"-"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	Revoked   bool      `json:"revoked"`
}

// APIKeyStore issues and validates API keys. Keys are stored as
// HMAC-SHA256 hashes so a leaked store cannot be replayed without the
// server secret.
type APIKeyStore struct {
	keys       map[string]*APIKey // keyID -> metadata
	hashIndex  map[string]string  // hash -> keyID
	hmacSecret []byte
	mu         sync.RWMutex
}

// NewAPIKeyStore creates a key store using the given HMAC secret.
func NewAPIKeyStore(hmacSecret []byte) (*APIKeyStore, error) {
	if len(hmacSecret) < 32 {
		return nil, ErrShortHMACKey
	}
	return &APIKeyStore{
		keys:       make(map[string]*APIKey),
		hashIndex:  make(map[string]string),
		hmacSecret: hmacSecret,
	}, nil
}

// CreateKey issues a new API key with the given label and role. The
// plaintext key is returned exactly once.
func (s *APIKeyStore) CreateKey(label, role string) (string, *APIKey, error) {
	if strings.TrimSpace(label) == "" {
		return "", nil, ErrEmptyKeyLabel
	}
	if !validRoles[role] {
		return "", nil, fmt.Errorf("%w: %s", ErrInvalidRole, role)
	}

	keyString, prefix, err := generateAPIKey()
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := &APIKey{
		ID:        uuid.New().String(),
		Label:     label,
		Prefix:    prefix,
		Hash:      s.hashAPIKey(keyString),
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	s.keys[key.ID] = key
	s.hashIndex[key.Hash] = key.ID

	return keyString, key, nil
}

// ValidateKey checks a presented key string and returns its metadata.
func (s *APIKeyStore) ValidateKey(keyString string) (*APIKey, error) {
	if keyString == "" {
		return nil, ErrInvalidKey
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	hash := s.hashAPIKey(keyString)
	keyID, exists := s.hashIndex[hash]
	if !exists {
		return nil, ErrKeyNotFound
	}

	key := s.keys[keyID]
	if !s.compareKeyHash(keyString, key.Hash) {
		return nil, ErrInvalidKey
	}
	if key.Revoked {
		return nil, ErrKeyRevoked
	}
	return key, nil
}

// RevokeKey marks a key as revoked. Revoked keys stay in the store for
// audit purposes.
func (s *APIKeyStore) RevokeKey(keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, exists := s.keys[keyID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, keyID)
	}
	key.Revoked = true
	return nil
}

// ListKeys returns metadata for every issued key.
func (s *APIKeyStore) ListKeys() []*APIKey {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]*APIKey, 0, len(s.keys))
	for _, key := range s.keys {
		keys = append(keys, key)
	}
	return keys
}

// generateAPIKey generates a new key string. The prefix is fsc_test_
// unless FLOWSCAN_ENV is "production".
func generateAPIKey() (string, string, error) {
	randomBytes := make([]byte, KeyRandomLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", err
	}

	prefix := KeyPrefixTest
	if os.Getenv("FLOWSCAN_ENV") == "production" {
		prefix = KeyPrefixProduction
	}
	return prefix + base64.RawURLEncoding.EncodeToString(randomBytes), prefix, nil
}

// hashAPIKey computes the HMAC-SHA256 of a key under the store secret.
func (s *APIKeyStore) hashAPIKey(keyString string) string {
	mac := hmac.New(sha256.New, s.hmacSecret)
	mac.Write([]byte(keyString))
	return hex.EncodeToString(mac.Sum(nil))
}

// compareKeyHash compares in constant time to avoid timing leaks.
func (s *APIKeyStore) compareKeyHash(keyString, storedHash string) bool {
	computedHash := s.hashAPIKey(keyString)
	return subtle.ConstantTimeCompare([]byte(computedHash), []byte(storedHash)) == 1
}
