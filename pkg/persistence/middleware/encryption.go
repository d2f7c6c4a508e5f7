package middleware

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/enginegate/pkg/ports"
)

// envelopeMagic prefixes every encrypted recording. Raw recordings start with a frame
// length byte, so plain and sealed data are told apart without guessing.
var envelopeMagic = []byte("EGDEMO1\x00")

// ErrNotEncrypted is returned by Load when the stored recording has no envelope.
var ErrNotEncrypted = errors.New("demo is missing encrypted data envelope")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys are tried when the active key fails, for key rotation.
	FallbackKeys [][]byte
}

// ParseKeys decodes hex keys, the first being the active one.
func ParseKeys(active string, fallbacks ...string) (EncryptionConfig, error) {
	var cfg EncryptionConfig
	key, err := parseKey(active)
	if err != nil {
		return cfg, err
	}
	cfg.ActiveKey = key
	for _, f := range fallbacks {
		k, err := parseKey(f)
		if err != nil {
			return cfg, err
		}
		cfg.FallbackKeys = append(cfg.FallbackKeys, k)
	}
	return cfg, nil
}

func parseKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid demo key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid demo key: want 32 bytes, got %d", len(key))
	}
	return key, nil
}

type encryptionMiddleware struct {
	next   ports.DemoStore
	config EncryptionConfig
}

// NewEncryptionMiddleware seals recordings with AES-256-GCM before they reach the store.
// It panics unless the active key is 32 bytes; use ParseKeys to validate input first.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.DemoStore) ports.DemoStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}
}

func (m *encryptionMiddleware) Save(ctx context.Context, demoID string, demo []byte) error {
	// The ID is bound as additional data so sealed recordings cannot be swapped.
	ciphertext, err := encrypt(demo, m.config.ActiveKey, []byte(demoID))
	if err != nil {
		return fmt.Errorf("failed to encrypt demo: %w", err)
	}
	return m.next.Save(ctx, demoID, append(append([]byte(nil), envelopeMagic...), ciphertext...))
}

func (m *encryptionMiddleware) Load(ctx context.Context, demoID string) ([]byte, error) {
	sealed, err := m.next.Load(ctx, demoID)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(sealed, envelopeMagic) {
		return nil, ErrNotEncrypted
	}

	plain, err := decryptWithRotation(sealed[len(envelopeMagic):], []byte(demoID), m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt demo: %w", err)
	}
	return plain, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, demoID string) error {
	return m.next.Delete(ctx, demoID)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func encrypt(plaintext, key, ad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, ad), nil
}

func decryptWithRotation(ciphertext, ad, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, ad, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, ad, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext, ad, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	plain, err := gcm.Open(nil, nonce, ciphertext[gcm.NonceSize():], ad)
	if err != nil {
		return nil, err
	}
	if plain == nil {
		plain = []byte{}
	}
	return plain, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
