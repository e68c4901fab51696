// internal/utils/crypto.go
package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// SecretBox seals short secrets such as store access tokens.
type SecretBox struct {
	key [32]byte
}

// NewSecretBox derives the 32-byte key from an arbitrary passphrase.
func NewSecretBox(passphrase string) (*SecretBox, error) {
	if passphrase == "" {
		return nil, errors.New("credentials key is empty")
	}
	return &SecretBox{key: sha256.Sum256([]byte(passphrase))}, nil
}

func (b *SecretBox) Seal(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (b *SecretBox) Open(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("invalid sealed value: %w", err)
	}
	if len(sealed) < nonceSize+secretbox.Overhead {
		return "", errors.New("sealed value is too short")
	}

	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plaintext, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &b.key)
	if !ok {
		return "", errors.New("failed to decrypt sealed value")
	}
	return string(plaintext), nil
}

// HashJSON hashes the JSON encoding of v. Map keys are sorted by the encoder,
// so equal values hash equally.
func HashJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
