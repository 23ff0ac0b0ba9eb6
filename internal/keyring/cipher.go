// Package keyring resolves the upstream API key and protects it at rest.
package keyring

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	ivLength   = 16
	saltLength = 64
	tagLength  = 16
	keyLength  = 32
	iterations = 100000
)

// sealed is the stored representation of an encrypted setting.
type sealed struct {
	Encrypted string `json:"encrypted"`
	IV        string `json:"iv"`
	Salt      string `json:"salt"`
	Tag       string `json:"tag"`
}

// Cipher encrypts settings with AES-256-GCM under a PBKDF2-derived key.
type Cipher struct {
	secret []byte
}

// NewCipher creates a cipher from a master secret.
func NewCipher(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, errors.New("encryption secret is empty")
	}
	return &Cipher{secret: []byte(secret)}, nil
}

// LoadOrCreateSecret reads the master secret at path, generating a random
// one with 0600 permissions when the file does not exist.
func LoadOrCreateSecret(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return strings.TrimSpace(string(data)), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to read key file: %w", err)
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	secret := hex.EncodeToString(buf)

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return "", fmt.Errorf("failed to create key dir: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(secret), 0o600); err != nil {
		return "", fmt.Errorf("failed to write key file: %w", err)
	}
	return secret, nil
}

func (c *Cipher) derive(salt []byte) []byte {
	return pbkdf2.Key(c.secret, salt, iterations, keyLength, sha256.New)
}

func (c *Cipher) gcm(salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.derive(salt))
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, ivLength)
}

// Encrypt seals plaintext and returns the JSON string stored in settings.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", errors.New("nothing to encrypt")
	}

	iv := make([]byte, ivLength)
	salt := make([]byte, saltLength)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	aead, err := c.gcm(salt)
	if err != nil {
		return "", fmt.Errorf("failed to init cipher: %w", err)
	}
	out := aead.Seal(nil, iv, []byte(plaintext), nil)
	body, tag := out[:len(out)-tagLength], out[len(out)-tagLength:]

	data, err := json.Marshal(sealed{
		Encrypted: hex.EncodeToString(body),
		IV:        hex.EncodeToString(iv),
		Salt:      hex.EncodeToString(salt),
		Tag:       hex.EncodeToString(tag),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal sealed value: %w", err)
	}
	return string(data), nil
}

// Decrypt opens a value produced by Encrypt.
func (c *Cipher) Decrypt(stored string) (string, error) {
	var s sealed
	if err := json.Unmarshal([]byte(stored), &s); err != nil {
		return "", fmt.Errorf("failed to parse sealed value: %w", err)
	}
	if s.Encrypted == "" {
		return "", errors.New("sealed value has no ciphertext")
	}

	body, err := hex.DecodeString(s.Encrypted)
	if err != nil {
		return "", fmt.Errorf("bad ciphertext: %w", err)
	}
	iv, err := hex.DecodeString(s.IV)
	if err != nil || len(iv) != ivLength {
		return "", errors.New("bad iv")
	}
	salt, err := hex.DecodeString(s.Salt)
	if err != nil {
		return "", fmt.Errorf("bad salt: %w", err)
	}
	tag, err := hex.DecodeString(s.Tag)
	if err != nil || len(tag) != tagLength {
		return "", errors.New("bad tag")
	}

	aead, err := c.gcm(salt)
	if err != nil {
		return "", fmt.Errorf("failed to init cipher: %w", err)
	}
	plain, err := aead.Open(nil, iv, append(body, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plain), nil
}
