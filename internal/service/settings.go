package service

import (
	"context"

	"github.com/siegzhong-maker/knowledge/internal/domain"
	"github.com/siegzhong-maker/knowledge/internal/keyring"
)

// SettingsView is the settings table as shown to clients. The API key is
// masked and never returned in full.
type SettingsView struct {
	APIKeyMasked     string `json:"deepseek_api_key,omitempty"`
	APIKeyConfigured bool   `json:"deepseek_api_key_configured"`
	Model            string `json:"deepseek_model"`
}

// SettingsUpdate changes stored settings. Nil fields are left alone; an
// empty APIKey clears the stored key.
type SettingsUpdate struct {
	APIKey *string `json:"apiKey,omitempty"`
	Model  *string `json:"model,omitempty"`
}

// Settings returns the masked settings view.
func (s *Service) Settings(ctx context.Context) (SettingsView, error) {
	view := SettingsView{Model: s.resolver.Model(ctx)}

	key, err := s.resolver.Resolve(ctx, "")
	switch {
	case err == nil:
		view.APIKeyMasked = keyring.Mask(key)
		view.APIKeyConfigured = true
	case domain.IsKind(err, domain.KindConfiguration):
		// Missing or undecryptable keys both read as not configured.
	default:
		return SettingsView{}, err
	}
	return view, nil
}

// UpdateSettings applies u.
func (s *Service) UpdateSettings(ctx context.Context, u SettingsUpdate) error {
	if u.APIKey != nil {
		if err := keyring.SaveKey(ctx, s.store, s.cipher, *u.APIKey); err != nil {
			return err
		}
	}
	if u.Model != nil {
		if *u.Model == "" {
			return s.store.DeleteSetting(ctx, domain.SettingModel)
		}
		return s.store.SetSetting(ctx, domain.SettingModel, *u.Model)
	}
	return nil
}

// RecentCalls lists the most recent upstream call audit rows.
func (s *Service) RecentCalls(ctx context.Context, limit int) ([]domain.LLMCall, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.store.ListLLMCalls(ctx, limit)
}
