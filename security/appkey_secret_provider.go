package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/goliatone/go-hooks/core"
)

const envelopePrefix = "hooks.secret.v1:"

type Option func(*AppKeySecretProvider)

// AppKeySecretProvider seals webhook secrets with AES-GCM under an
// application key. Retired keys stay available for Open so rows sealed
// before a rotation remain readable.
type AppKeySecretProvider struct {
	key     []byte
	keyID   string
	version int
	retired map[string][]byte
}

type envelope struct {
	KeyID      string `json:"kid"`
	Version    int    `json:"ver"`
	Algorithm  string `json:"alg"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

func WithKeyID(id string) Option {
	return func(provider *AppKeySecretProvider) {
		trimmed := strings.TrimSpace(id)
		if trimmed != "" {
			provider.keyID = trimmed
		}
	}
}

func WithVersion(version int) Option {
	return func(provider *AppKeySecretProvider) {
		if version > 0 {
			provider.version = version
		}
	}
}

// WithRetiredKey registers a previous key that may only open envelopes.
func WithRetiredKey(id string, version int, keyMaterial []byte) Option {
	return func(provider *AppKeySecretProvider) {
		key := bytes.TrimSpace(keyMaterial)
		id = strings.TrimSpace(id)
		if id == "" || len(key) == 0 {
			return
		}
		if provider.retired == nil {
			provider.retired = map[string][]byte{}
		}
		provider.retired[retiredKey(id, version)] = normalizeKey(key)
	}
}

func NewAppKeySecretProvider(keyMaterial []byte, opts ...Option) (*AppKeySecretProvider, error) {
	key := bytes.TrimSpace(keyMaterial)
	if len(key) == 0 {
		return nil, fmt.Errorf("security: key material is required")
	}
	provider := &AppKeySecretProvider{
		key:     normalizeKey(key),
		keyID:   "app-key",
		version: 1,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(provider)
	}
	return provider, nil
}

func NewAppKeySecretProviderFromString(key string, opts ...Option) (*AppKeySecretProvider, error) {
	return NewAppKeySecretProvider([]byte(key), opts...)
}

// Seal returns an envelope string safe to store in the secret column.
func (p *AppKeySecretProvider) Seal(_ context.Context, plaintext string) (string, error) {
	if p == nil {
		return "", fmt.Errorf("security: secret provider is nil")
	}
	if plaintext == "" {
		return "", fmt.Errorf("security: plaintext is required")
	}
	gcm, err := newGCM(p.key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("security: nonce generation failed: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	data, err := json.Marshal(envelope{
		KeyID:      p.keyID,
		Version:    p.version,
		Algorithm:  "aes-256-gcm",
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
	})
	if err != nil {
		return "", fmt.Errorf("security: encode envelope: %w", err)
	}
	return envelopePrefix + string(data), nil
}

// Open reverses Seal. Values without the envelope prefix were stored before
// sealing was enabled and are returned unchanged.
func (p *AppKeySecretProvider) Open(_ context.Context, sealed string) (string, error) {
	if p == nil {
		return "", fmt.Errorf("security: secret provider is nil")
	}
	if sealed == "" {
		return "", fmt.Errorf("security: sealed value is required")
	}
	if !strings.HasPrefix(sealed, envelopePrefix) {
		return sealed, nil
	}

	var parsed envelope
	if err := json.Unmarshal([]byte(strings.TrimPrefix(sealed, envelopePrefix)), &parsed); err != nil {
		return "", fmt.Errorf("security: decode envelope: %w", err)
	}
	key, err := p.keyFor(parsed)
	if err != nil {
		return "", err
	}

	nonce, err := base64.StdEncoding.DecodeString(parsed.Nonce)
	if err != nil {
		return "", fmt.Errorf("security: decode nonce: %w", err)
	}
	payload, err := base64.StdEncoding.DecodeString(parsed.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("security: decode ciphertext payload: %w", err)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	plaintext, err := gcm.Open(nil, nonce, payload, nil)
	if err != nil {
		return "", fmt.Errorf("security: decrypt payload: %w", err)
	}
	return string(plaintext), nil
}

func (p *AppKeySecretProvider) KeyID() string {
	if p == nil {
		return ""
	}
	return p.keyID
}

func (p *AppKeySecretProvider) Version() int {
	if p == nil {
		return 0
	}
	return p.version
}

func (p *AppKeySecretProvider) keyFor(env envelope) ([]byte, error) {
	if env.KeyID == p.keyID && (env.Version == 0 || env.Version == p.version) {
		return p.key, nil
	}
	if key, ok := p.retired[retiredKey(env.KeyID, env.Version)]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("security: unknown key %q version %d", env.KeyID, env.Version)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	return gcm, nil
}

func retiredKey(id string, version int) string {
	return fmt.Sprintf("%s@%d", id, version)
}

func normalizeKey(value []byte) []byte {
	if len(value) == 16 || len(value) == 24 || len(value) == 32 {
		key := make([]byte, len(value))
		copy(key, value)
		return key
	}
	sum := sha256.Sum256(value)
	key := make([]byte, len(sum))
	copy(key, sum[:])
	return key
}

var _ core.SecretCodec = (*AppKeySecretProvider)(nil)
