// Package settings keeps per-user mnbkit state under
// $XDG_DATA_HOME/mnbkit (~/.local/share/mnbkit when unset): provider
// credentials in auth.json (mode 0600) and the prompt collection in
// prompts.json.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	appDir      = "mnbkit"
	authFile    = "auth.json"
	promptsFile = "prompts.json"

	// EnvAPIKey is consulted before any provider-specific variable.
	EnvAPIKey = "MNBKIT_API_KEY"

	entryAPI = "api"
)

// Info is one provider's auth.json entry.
type Info struct {
	Type    string `json:"type"`
	Key     string `json:"key,omitempty"`
	BaseURL string `json:"baseUrl,omitempty"` // endpoint, or function name for lambda
}

// IsAPI reports whether the entry holds an API key.
func (i *Info) IsAPI() bool { return i.Type == entryAPI }

// Store maps provider IDs to their entries.
type Store map[string]*Info

// providerEnv lists the variables providers conventionally read their key
// from. Providers absent here only use MNBKIT_API_KEY and the store.
var providerEnv = map[string]string{
	"google":        "GOOGLE_API_KEY",
	"openai":        "OPENAI_API_KEY",
	"custom-openai": "OPENAI_API_KEY",
	"groq":          "GROQ_API_KEY",
}

// ---------------------------------------------------------------------------
// Paths
// ---------------------------------------------------------------------------

// DataDir returns the mnbkit data directory. It is not created.
func DataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, appDir), nil
}

func dataFile(name string) (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// FilePath returns the auth.json path, or "" if it cannot be determined.
func FilePath() string {
	p, _ := dataFile(authFile)
	return p
}

// PromptsFilePath returns the prompts.json path.
func PromptsFilePath() (string, error) {
	return dataFile(promptsFile)
}

// ---------------------------------------------------------------------------
// auth.json
// ---------------------------------------------------------------------------

// Load reads auth.json. A missing or unreadable file yields an empty store.
func Load() Store {
	store := make(Store)
	path := FilePath()
	if path == "" {
		return store
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return store
	}
	if err := json.Unmarshal(data, &store); err != nil || store == nil {
		return make(Store)
	}
	return store
}

// Save replaces auth.json with store.
func Save(store Store) error {
	path, err := dataFile(authFile)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// update loads the store, applies fn and saves when fn reports a change.
func update(fn func(Store) bool) error {
	store := Load()
	if !fn(store) {
		return nil
	}
	return Save(store)
}

// Get returns the entry for providerID, or nil.
func Get(providerID string) *Info {
	return Load()[providerID]
}

// Set inserts or replaces the entry for providerID.
func Set(providerID string, info *Info) error {
	return update(func(s Store) bool {
		s[providerID] = info
		return true
	})
}

// Remove deletes the entry for providerID, if any.
func Remove(providerID string) error {
	return update(func(s Store) bool {
		if _, ok := s[providerID]; !ok {
			return false
		}
		delete(s, providerID)
		return true
	})
}

// RemoveAll deletes auth.json.
func RemoveAll() error {
	path, err := dataFile(authFile)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Keys
// ---------------------------------------------------------------------------

func SetAPIKey(providerID, key string) error {
	return SetAPIKeyWithBaseURL(providerID, key, "")
}

func SetAPIKeyWithBaseURL(providerID, key, baseURL string) error {
	return Set(providerID, &Info{Type: entryAPI, Key: key, BaseURL: baseURL})
}

// GetAPIKey returns the stored key for providerID.
func GetAPIKey(providerID string) string {
	if info := Get(providerID); info != nil && info.IsAPI() {
		return info.Key
	}
	return ""
}

// GetBaseURL returns the stored endpoint for providerID.
func GetBaseURL(providerID string) string {
	if info := Get(providerID); info != nil {
		return info.BaseURL
	}
	return ""
}

// EnvVarForProvider returns the provider's own key variable, or "".
func EnvVarForProvider(providerID string) string {
	return providerEnv[providerID]
}

// ResolveAPIKey picks the first key found in: flagValue, MNBKIT_API_KEY,
// the provider's variable, auth.json.
func ResolveAPIKey(providerID, flagValue string) string {
	candidates := []string{flagValue, os.Getenv(EnvAPIKey)}
	if env := EnvVarForProvider(providerID); env != "" {
		candidates = append(candidates, os.Getenv(env))
	}
	for _, key := range candidates {
		if key != "" {
			return key
		}
	}
	return GetAPIKey(providerID)
}

// MaskKey shows the first and last four characters of key.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
