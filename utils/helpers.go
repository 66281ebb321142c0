package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
)

// GetEnv reads an environment variable, returning fallback when unset or empty.
func GetEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// CreateFolder creates a directory (and parents) if it does not already exist.
func CreateFolder(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create folder %s: %w", path, err)
	}
	return nil
}

// GenerateUniqueID returns a random 32-bit identifier. Collisions are possible
// but acceptable for record IDs that are additionally keyed by timestamp.
func GenerateUniqueID() uint32 {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing is effectively unrecoverable; fall back to a
		// constant so callers still get a value instead of a panic.
		return 0
	}
	return binary.BigEndian.Uint32(buf[:])
}

// HashBytes returns the lower-case hex SHA-256 digest of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
