package keyring

import (
	"context"
	"fmt"
	"strings"

	"github.com/siegzhong-maker/knowledge/internal/domain"
)

// KeyPrefix is the literal prefix every accepted API key starts with.
const KeyPrefix = "sk-"

// SettingsProvider reads persisted string settings.
type SettingsProvider interface {
	GetSetting(ctx context.Context, key string) (value string, found bool, err error)
}

// SettingsWriter persists string settings.
type SettingsWriter interface {
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
}

// Decrypter opens an encrypted stored value.
type Decrypter interface {
	Decrypt(stored string) (string, error)
}

// Resolver decides which API key an upstream call uses.
type Resolver struct {
	settings SettingsProvider
	cipher   Decrypter
}

// NewResolver creates a resolver over the given settings and cipher.
func NewResolver(settings SettingsProvider, cipher Decrypter) *Resolver {
	return &Resolver{settings: settings, cipher: cipher}
}

// Resolve returns perCallKey when it carries the sk- prefix, otherwise the
// decrypted stored default.
func (r *Resolver) Resolve(ctx context.Context, perCallKey string) (string, error) {
	if strings.HasPrefix(perCallKey, KeyPrefix) {
		return perCallKey, nil
	}

	stored, found, err := r.settings.GetSetting(ctx, domain.SettingAPIKey)
	if err != nil {
		return "", domain.NewConfigurationError("failed to read stored API key", err)
	}
	if !found || stored == "" {
		return "", domain.NewConfigurationError("no API key configured", nil)
	}

	key, err := r.cipher.Decrypt(stored)
	if err != nil || key == "" {
		return "", domain.NewConfigurationError("key corrupted, must reconfigure", err)
	}
	return key, nil
}

// Configured reports whether a default key row exists.
func (r *Resolver) Configured(ctx context.Context) (bool, error) {
	_, found, err := r.settings.GetSetting(ctx, domain.SettingAPIKey)
	return found, err
}

// Model returns the configured model name, or DefaultModel.
func (r *Resolver) Model(ctx context.Context) string {
	model, found, err := r.settings.GetSetting(ctx, domain.SettingModel)
	if err != nil || !found || model == "" {
		return domain.DefaultModel
	}
	return model
}

// ValidateKeyShape rejects keys without the sk- prefix.
func ValidateKeyShape(key string) error {
	if !strings.HasPrefix(key, KeyPrefix) {
		return domain.NewValidationError("invalid API key format")
	}
	return nil
}

// SaveKey validates, encrypts and stores key as the default. An empty key
// clears the stored default.
func SaveKey(ctx context.Context, w SettingsWriter, c *Cipher, key string) error {
	if key == "" {
		return w.DeleteSetting(ctx, domain.SettingAPIKey)
	}
	if err := ValidateKeyShape(key); err != nil {
		return err
	}
	sealed, err := c.Encrypt(key)
	if err != nil {
		return fmt.Errorf("failed to encrypt key: %w", err)
	}
	return w.SetSetting(ctx, domain.SettingAPIKey, sealed)
}

// Mask shows only the first and last four characters of a key.
func Mask(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + "..." + key[len(key)-4:]
}
