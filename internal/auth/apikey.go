package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// KeyPrefix marks generated keys so they are recognizable in configs and
// secret scanners.
const KeyPrefix = "prioq_"

// GenerateAPIKey returns KeyPrefix followed by 32 random bytes in unpadded
// URL-safe base64. The result stays well under bcrypt's 72-byte input limit.
func GenerateAPIKey() (string, error) {
	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("read random key bytes: %w", err)
	}
	return KeyPrefix + base64.RawURLEncoding.EncodeToString(raw[:]), nil
}
