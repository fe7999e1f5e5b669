package password

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

const legacySaltLength = 32

// ErrInvalidSalt is returned when a legacy salt is not valid base64.
var ErrInvalidSalt = errors.New("invalid legacy salt encoding")

// LegacySHA256 handles credentials stored as base64(SHA-256(salt || password))
// next to a base64 salt column. It is kept for verification only; new
// credentials are never written in this format by [Chain].
type LegacySHA256 struct{}

// Hash returns the digest and salt pair for password.
func (LegacySHA256) Hash(password string) (hash, salt string, err error) {
	raw := make([]byte, legacySaltLength)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", "", err
	}
	salt = base64.StdEncoding.EncodeToString(raw)
	return legacyDigest(password, raw), salt, nil
}

func (LegacySHA256) Verify(password, hash, salt string) (bool, error) {
	raw, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidSalt, err)
	}
	computed := legacyDigest(password, raw)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1, nil
}

func legacyDigest(password string, salt []byte) string {
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(password))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
