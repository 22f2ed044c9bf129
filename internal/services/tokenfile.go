package services

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

// TokenFileMaxAge is how long a locally saved remember token is trusted.
// It is shorter than RememberTokenTTL so the file never outlives the server record.
const TokenFileMaxAge = 25 * 24 * time.Hour

type tokenFileData struct {
	Token   string    `json:"token"`
	SavedAt time.Time `json:"saved_at"`
}

// TokenFile persists the raw remember-me token for the operator's machine
type TokenFile struct {
	path string
	now  func() time.Time
}

// NewTokenFile creates a token file handle at path
func NewTokenFile(path string, now func() time.Time) *TokenFile {
	if now == nil {
		now = time.Now
	}
	return &TokenFile{path: path, now: now}
}

// Save writes token with owner-only permissions
func (f *TokenFile) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	data, err := json.Marshal(tokenFileData{Token: token, SavedAt: f.now()})
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, data, 0o600)
}

// Load returns the saved token, or "" when there is none. A corrupt or
// stale file is removed.
func (f *TokenFile) Load() (string, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	var data tokenFileData
	if err := json.Unmarshal(raw, &data); err != nil || data.Token == "" {
		return "", f.Clear()
	}
	if f.now().Sub(data.SavedAt) > TokenFileMaxAge {
		return "", f.Clear()
	}
	return data.Token, nil
}

// Clear removes the file; a missing file is not an error
func (f *TokenFile) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
