package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// NewSessionID returns a random hex identifier, 256-bit by default.
func NewSessionID(nBytes int) (string, error) {
	if nBytes <= 0 {
		nBytes = 32
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
