package store

import (
	"database/sql"
	"errors"

	"github.com/pavelanni/quizmark/internal/model"
)

// Setting keys.
const (
	SettingSeverity = "default_severity"
	SettingTone     = "default_tone"
	SettingLanguage = "default_language"
)

// SetSetting upserts an instance-wide key-value pair.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// GetSetting returns the value for key, or "" if it is not set.
func (s *Store) GetSetting(key string) (string, error) {
	var value string
	err := s.db.Get(&value, `SELECT value FROM settings WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SetDefaultGradingConfig stores the settings new quizzes start with. The
// config is validated first.
func (s *Store) SetDefaultGradingConfig(cfg model.GradingConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	pairs := []struct{ k, v string }{
		{SettingSeverity, string(cfg.Severity)},
		{SettingTone, string(cfg.Tone)},
		{SettingLanguage, string(cfg.Language)},
	}
	for _, p := range pairs {
		if err := s.SetSetting(p.k, p.v); err != nil {
			return err
		}
	}
	return nil
}

// DefaultGradingConfig returns the stored defaults. ok is false when they
// were never set; the caller then has to ask for every field.
func (s *Store) DefaultGradingConfig() (cfg model.GradingConfig, ok bool, err error) {
	var sev, tone, lang string
	if sev, err = s.GetSetting(SettingSeverity); err != nil {
		return cfg, false, err
	}
	if tone, err = s.GetSetting(SettingTone); err != nil {
		return cfg, false, err
	}
	if lang, err = s.GetSetting(SettingLanguage); err != nil {
		return cfg, false, err
	}
	cfg = model.GradingConfig{
		Severity: model.Severity(sev),
		Tone:     model.Tone(tone),
		Language: model.Language(lang),
	}
	if cfg.Validate() != nil {
		return model.GradingConfig{}, false, nil
	}
	return cfg, true, nil
}
