package glossary

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// File formats
// ---------------------------------------------------------------------------

// yamlGlossary is the on-disk layout of a .yaml/.yml glossary.
type yamlGlossary struct {
	Terms map[string]string `yaml:"terms"`
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadFile parses a glossary file. Files ending in .yaml or .yml hold a
// `terms:` mapping; anything else is read as CSV with two columns
// (original, translated). Malformed CSV rows are skipped and reported
// through warn.
func ReadFile(path string, warn WarnFunc) (Terms, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return parseYAML(data)
	default:
		return parseCSV(data, filepath.Base(path), warn)
	}
}

func parseYAML(data []byte) (Terms, error) {
	var g yamlGlossary
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing glossary: %w", err)
	}
	terms := make(Terms, len(g.Terms))
	for k, v := range g.Terms {
		if k = strings.TrimSpace(k); k != "" {
			terms[k] = strings.TrimSpace(v)
		}
	}
	return terms, nil
}

func parseCSV(data []byte, name string, warn WarnFunc) (Terms, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	terms := make(Terms)
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing glossary: %w", err)
		}
		line, _ := r.FieldPos(0)
		if len(row) != 2 {
			warn.warnf("glossary %s: line %d: expected 2 columns (original,translated), got %d; skipped", name, line, len(row))
			continue
		}
		original, translated := strings.TrimSpace(row[0]), strings.TrimSpace(row[1])
		if original == "" {
			continue
		}
		terms[original] = translated
	}
	return terms, nil
}

// ---------------------------------------------------------------------------
// Store
// ---------------------------------------------------------------------------

// Store keeps loaded glossary files and the ordered list of active ones.
// Active order is precedence order: later files win on key collision.
// Store is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	files  map[string]Terms
	active []string
	warn   WarnFunc
}

// NewStore returns an empty store. warn may be nil.
func NewStore(warn WarnFunc) *Store {
	return &Store{
		files: make(map[string]Terms),
		warn:  warn,
	}
}

func normalize(path string) string {
	return filepath.Clean(path)
}

// Load reads path and adds (or replaces) it in the store. It returns the
// number of terms loaded. On error any previous copy of the file is dropped.
func (s *Store) Load(path string) (int, error) {
	path = normalize(path)
	terms, err := ReadFile(path, s.warn)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		delete(s.files, path)
		return 0, fmt.Errorf("loading glossary %s: %w", path, err)
	}
	s.files[path] = terms
	return len(terms), nil
}

// Reload re-reads a file that is already loaded.
func (s *Store) Reload(path string) (int, error) {
	path = normalize(path)
	s.mu.RLock()
	_, ok := s.files[path]
	s.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("glossary %s is not loaded", path)
	}
	return s.Load(path)
}

// Remove drops a loaded file and deactivates it. It reports whether the
// file was loaded.
func (s *Store) Remove(path string) bool {
	path = normalize(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[path]; !ok {
		return false
	}
	delete(s.files, path)
	for i, p := range s.active {
		if p == path {
			s.active = append(s.active[:i], s.active[i+1:]...)
			break
		}
	}
	return true
}

// SetActive replaces the active list. Paths not yet loaded are loaded first;
// a path that fails to load is left out and its error is returned joined
// with the others. Duplicates keep their first position.
func (s *Store) SetActive(paths []string) error {
	var errs []error
	active := make([]string, 0, len(paths))
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		p = normalize(p)
		if seen[p] {
			continue
		}
		s.mu.RLock()
		_, loaded := s.files[p]
		s.mu.RUnlock()
		if !loaded {
			if _, err := s.Load(p); err != nil {
				errs = append(errs, err)
				continue
			}
		}
		seen[p] = true
		active = append(active, p)
	}

	s.mu.Lock()
	s.active = active
	s.mu.Unlock()
	return errors.Join(errs...)
}

// Active returns the active paths in precedence order.
func (s *Store) Active() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.active...)
}

// IsActive reports whether path is in the active list.
func (s *Store) IsActive(path string) bool {
	path = normalize(path)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.active {
		if p == path {
			return true
		}
	}
	return false
}

// Loaded returns every loaded path, sorted.
func (s *Store) Loaded() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := make([]string, 0, len(s.files))
	for p := range s.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// File returns a copy of the terms loaded from path.
func (s *Store) File(path string) (Terms, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.files[normalize(path)]
	if !ok {
		return nil, false
	}
	return Merge(t), true
}

// Terms merges the active files in precedence order.
func (s *Store) Terms() Terms {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sets := make([]Terms, 0, len(s.active))
	for _, p := range s.active {
		if t, ok := s.files[p]; ok {
			sets = append(sets, t)
		}
	}
	return Merge(sets...)
}

// Apply applies the merged active terms to text.
func (s *Store) Apply(text string, opts Options) string {
	return Apply(text, s.Terms(), opts, s.warn)
}
