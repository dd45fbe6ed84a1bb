package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// MinVerificationTokenBytes is the entropy floor for verification tokens.
const MinVerificationTokenBytes = 32

// NewVerificationToken returns n random bytes from crypto/rand, hex encoded.
// n below MinVerificationTokenBytes is raised to the floor.
func NewVerificationToken(n int) (string, error) {
	if n < MinVerificationTokenBytes {
		n = MinVerificationTokenBytes
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// DigestToken is the at-rest form of refresh and verification tokens.
func DigestToken(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
