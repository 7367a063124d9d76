// Package secrets decrypts provider credentials stored as fernet tokens.
package secrets

import (
	"fmt"
	"strings"

	"github.com/fernet/fernet-go"
)

// Box encrypts and decrypts credentials with a single fernet key
type Box struct {
	key *fernet.Key
}

// New parses a base64 fernet key
func New(encodedKey string) (*Box, error) {
	key, err := fernet.DecodeKey(strings.TrimSpace(encodedKey))
	if err != nil {
		return nil, fmt.Errorf("decode fernet key: %w", err)
	}
	return &Box{key: key}, nil
}

// GenerateKey returns a fresh encoded fernet key
func GenerateKey() (string, error) {
	var k fernet.Key
	if err := k.Generate(); err != nil {
		return "", fmt.Errorf("generate fernet key: %w", err)
	}
	return k.Encode(), nil
}

// Encrypt returns a fernet token for plaintext
func (b *Box) Encrypt(plaintext string) (string, error) {
	tok, err := fernet.EncryptAndSign([]byte(plaintext), b.key)
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}
	return string(tok), nil
}

// Decrypt verifies and decrypts a fernet token. Tokens never expire.
func (b *Box) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	msg := fernet.VerifyAndDecrypt([]byte(ciphertext), 0, []*fernet.Key{b.key})
	if msg == nil {
		return "", fmt.Errorf("decrypt: invalid token")
	}
	return string(msg), nil
}

// Mask hides all but the last four characters of a secret
func Mask(value string) string {
	if value == "" {
		return ""
	}
	if len(value) > 4 {
		return "****" + value[len(value)-4:]
	}
	return "****"
}
