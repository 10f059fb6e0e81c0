// Package auth protects the admin API with a single bcrypt-hashed API key.
package auth

import (
	"crypto/sha256"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 12

// HashAPIKey hashes a plaintext API key for storage in configuration.
func HashAPIKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash api key: %w", err)
	}
	return string(hash), nil
}

// VerifyAPIKey checks a plaintext key against a bcrypt hash.
func VerifyAPIKey(hash, key string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key))
}

// KeyVerifier checks presented keys against one bcrypt hash. Keys that
// verified once are remembered by digest so repeat requests skip bcrypt.
type KeyVerifier struct {
	hash string

	mu       sync.RWMutex
	verified map[[sha256.Size]byte]struct{}
}

func NewKeyVerifier(hash string) (*KeyVerifier, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("invalid api key hash: %w", err)
	}
	return &KeyVerifier{hash: hash, verified: make(map[[sha256.Size]byte]struct{})}, nil
}

func (v *KeyVerifier) Verify(key string) error {
	digest := sha256.Sum256([]byte(key))

	v.mu.RLock()
	_, ok := v.verified[digest]
	v.mu.RUnlock()
	if ok {
		return nil
	}

	if err := VerifyAPIKey(v.hash, key); err != nil {
		return err
	}

	v.mu.Lock()
	v.verified[digest] = struct{}{}
	v.mu.Unlock()
	return nil
}
