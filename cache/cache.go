// Package cache implements mnbkit.cache, a translation memory that maps
// the MD5 checksum of a rendered prompt to the translation it produced.
// Re-running a file only sends chunks whose prompt changed (new text, a
// different template or target language) to the provider.
//
// The cache file is stored alongside .mnbkit.yaml as mnbkit.cache.
package cache

import (
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileName is the default cache file name.
const FileName = "mnbkit.cache"

// Version is the cache file format version.
const Version = 1

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// Memory represents the mnbkit.cache file structure.
type Memory struct {
	Version int                          `yaml:"version"`
	Entries map[string]map[string]string `yaml:"entries"` // model -> md5(prompt) -> translation

	mu    sync.Mutex
	path  string
	used  map[string]map[string]bool
	dirty bool
}

// ---------------------------------------------------------------------------
// Loading and saving
// ---------------------------------------------------------------------------

// Load reads the cache file from the given directory.
// Returns an empty cache if the file doesn't exist.
func Load(dir string) (*Memory, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile reads the cache from an explicit path.
func LoadFile(path string) (*Memory, error) {
	m := &Memory{
		Version: Version,
		Entries: make(map[string]map[string]string),
		path:    path,
		used:    make(map[string]map[string]bool),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if m.Version > Version {
		return nil, fmt.Errorf("%s: unsupported cache version %d", path, m.Version)
	}
	if m.Entries == nil {
		m.Entries = make(map[string]map[string]string)
	}
	return m, nil
}

// Save writes the cache to disk. It is a no-op when nothing changed.
func (m *Memory) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.path == "" {
		return fmt.Errorf("cache file path not set")
	}
	if !m.dirty {
		return nil
	}

	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling cache: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", m.path, err)
	}
	m.dirty = false
	return nil
}

// Path returns the cache file path.
func (m *Memory) Path() string {
	return m.path
}

// ---------------------------------------------------------------------------
// Lookups
// ---------------------------------------------------------------------------

// Hash computes the MD5 hex digest of a string.
func Hash(s string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(s)))
}

func (m *Memory) markUsed(model, key string) {
	if m.used[model] == nil {
		m.used[model] = make(map[string]bool)
	}
	m.used[model][key] = true
}

// Lookup returns the stored translation for prompt sent to model.
func (m *Memory) Lookup(model, prompt string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := Hash(prompt)
	text, ok := m.Entries[model][key]
	if ok {
		m.markUsed(model, key)
	}
	return text, ok
}

// Store records a successful translation.
func (m *Memory) Store(model, prompt, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Entries[model] == nil {
		m.Entries[model] = make(map[string]string)
	}
	key := Hash(prompt)
	if old, ok := m.Entries[model][key]; !ok || old != text {
		m.Entries[model][key] = text
		m.dirty = true
	}
	m.markUsed(model, key)
}

// Prune removes every entry that was neither looked up successfully nor
// stored since the cache was loaded. It returns the number removed.
func (m *Memory) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for model, entries := range m.Entries {
		for key := range entries {
			if !m.used[model][key] {
				delete(entries, key)
				removed++
			}
		}
		if len(entries) == 0 {
			delete(m.Entries, model)
		}
	}
	if removed > 0 {
		m.dirty = true
	}
	return removed
}

// Clear drops all entries.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Entries) > 0 {
		m.dirty = true
	}
	m.Entries = make(map[string]map[string]string)
	m.used = make(map[string]map[string]bool)
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

// Stats returns the number of models and total entries in the cache.
func (m *Memory) Stats() (models, entries int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	models = len(m.Entries)
	for _, e := range m.Entries {
		entries += len(e)
	}
	return
}

// Models returns the sorted list of models with cached entries.
func (m *Memory) Models() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	models := make([]string, 0, len(m.Entries))
	for model := range m.Entries {
		models = append(models, model)
	}
	sort.Strings(models)
	return models
}
