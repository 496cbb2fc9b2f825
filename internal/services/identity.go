package services

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Fingerprint is the duplicate-prevention key of a respondent identity: the
// hex SHA-256 of the trimmed identity text.
func Fingerprint(identity string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(identity)))
	return hex.EncodeToString(sum[:])
}

// DeriveIdentityKey stretches a configured secret into an XChaCha20-Poly1305 key.
func DeriveIdentityKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("identity key secret is empty")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("surveyor respondent identity"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive identity key: %w", err)
	}
	return key, nil
}

// IdentitySealer encrypts respondent identities at rest. Sealed values are
// base64(nonce || ciphertext).
type IdentitySealer struct {
	aead cipher.AEAD
}

func NewIdentitySealer(key []byte) (*IdentitySealer, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("identity sealer: %w", err)
	}
	return &IdentitySealer{aead: aead}, nil
}

func (s *IdentitySealer) Seal(identity string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(identity)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	out := s.aead.Seal(nonce, nonce, []byte(identity), nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (s *IdentitySealer) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decode sealed identity: %w", err)
	}
	if len(raw) < s.aead.NonceSize() {
		return "", errors.New("sealed identity too short")
	}
	nonce, ct := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("open sealed identity: %w", err)
	}
	return string(plain), nil
}
