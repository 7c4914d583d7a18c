package fieldcrypt

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/driftboard/driftboard/internal/domain"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// ciphertextPrefix marks an encrypted field value on the wire.
const ciphertextPrefix = "enc:v1:"

var (
	// ErrCipherLocked means the key is configured but not currently
	// available. Expected state, not a decryption failure.
	ErrCipherLocked = errors.New("cipher is locked")

	// ErrCipherCorrupt means the ciphertext failed authentication or
	// decoding under the current key.
	ErrCipherCorrupt = errors.New("ciphertext is corrupt or key mismatch")

	// ErrNoEncryption means no master key is configured at all.
	ErrNoEncryption = errors.New("encryption is not set up")
)

// IsEncrypted reports whether a stored field value carries the ciphertext
// wire prefix.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, ciphertextPrefix)
}

type keyCipher struct {
	mu       sync.RWMutex
	key      []byte
	unlocked bool
	hasKey   bool
}

type CipherDependencies struct {
	// MasterKey is the base64-encoded master key. Empty means encryption
	// is not set up and the cipher reports HasEncryption=false.
	MasterKey string
}

// NewKeyCipher derives a ChaCha20-Poly1305 key from the master key via
// HKDF-SHA256. A cipher created with a key starts unlocked.
func NewKeyCipher(deps CipherDependencies) (*keyCipher, error) {
	c := &keyCipher{}

	if deps.MasterKey == "" {
		return c, nil
	}

	masterKey, err := base64.StdEncoding.DecodeString(deps.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode master key: %w", err)
	}

	key, err := deriveFieldKey(masterKey)
	if err != nil {
		return nil, err
	}

	c.key = key
	c.hasKey = true
	c.unlocked = true

	return c, nil
}

func deriveFieldKey(masterKey []byte) ([]byte, error) {
	salt := []byte("driftboard-canvas-fields")
	info := []byte("field-encryption-key")

	reader := hkdf.New(sha256.New, masterKey, salt, info)
	key := make([]byte, chacha20poly1305.KeySize)

	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("failed to derive field key: %w", err)
	}

	return key, nil
}

// GenerateMasterKey returns a fresh random base64 master key.
func GenerateMasterKey() (string, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to generate master key: %w", err)
	}

	return base64.StdEncoding.EncodeToString(key), nil
}

func (c *keyCipher) State() domain.EncryptionState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return domain.EncryptionState{
		HasEncryption: c.hasKey,
		IsUnlocked:    c.hasKey && c.unlocked,
	}
}

// Lock makes the key unavailable until Unlock. Decryption while locked
// returns ErrCipherLocked.
func (c *keyCipher) Lock() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.unlocked = false
}

func (c *keyCipher) Unlock() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hasKey {
		c.unlocked = true
	}
}

func (c *keyCipher) EncryptText(ctx context.Context, plaintext string) (string, error) {
	key, err := c.currentKey()
	if err != nil {
		return "", err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)

	return ciphertextPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *keyCipher) DecryptText(ctx context.Context, ciphertext string) (string, error) {
	if !IsEncrypted(ciphertext) {
		return "", fmt.Errorf("%w: missing ciphertext prefix", ErrCipherCorrupt)
	}

	key, err := c.currentKey()
	if err != nil {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ciphertext, ciphertextPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64: %v", ErrCipherCorrupt, err)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	if len(raw) < aead.NonceSize() {
		return "", fmt.Errorf("%w: payload too short", ErrCipherCorrupt)
	}

	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCipherCorrupt, err)
	}

	return string(plaintext), nil
}

func (c *keyCipher) EncryptObject(ctx context.Context, value map[string]any) (string, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("failed to marshal object: %w", err)
	}

	return c.EncryptText(ctx, string(encoded))
}

func (c *keyCipher) DecryptObject(ctx context.Context, ciphertext string) (map[string]any, error) {
	plaintext, err := c.DecryptText(ctx, ciphertext)
	if err != nil {
		return nil, err
	}

	var value map[string]any
	if err := json.Unmarshal([]byte(plaintext), &value); err != nil {
		return nil, fmt.Errorf("%w: decrypted payload is not an object: %v", ErrCipherCorrupt, err)
	}

	return value, nil
}

func (c *keyCipher) currentKey() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.hasKey {
		return nil, ErrNoEncryption
	}
	if !c.unlocked {
		return nil, ErrCipherLocked
	}

	return c.key, nil
}
