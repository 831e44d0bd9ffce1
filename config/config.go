// Package config loads .mnbkit.yaml, the project configuration file.
//
// When a .mnbkit.yaml file exists in the project root, mnbkit reads its
// provider, chunking, retry, glossary and file target settings from it.
// Command-line flags override file values.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/minios-linux/mnbkit/chunk"
	"github.com/minios-linux/mnbkit/langmeta"
	"github.com/minios-linux/mnbkit/prompt"
	"github.com/minios-linux/mnbkit/provider"
	"github.com/minios-linux/mnbkit/retry"
)

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// File is the top-level .mnbkit.yaml structure.
type File struct {
	// Provider is the provider ID (default "google").
	Provider string `yaml:"provider,omitempty"`
	// Model overrides the provider's default model.
	Model string `yaml:"model,omitempty"`
	// BaseURL overrides the provider's endpoint (function name for lambda).
	BaseURL string `yaml:"base_url,omitempty"`
	// Proxy is an optional HTTP/HTTPS proxy URL.
	Proxy string `yaml:"proxy,omitempty"`
	// ChunkSize is the number of lines per chunk (default 50).
	ChunkSize int `yaml:"chunk_size,omitempty"`
	// Prompt is the prompt ID from prompts.json.
	Prompt string `yaml:"prompt,omitempty"`
	// TargetLanguage is the target language name or code (default "Korean").
	TargetLanguage string `yaml:"target_language,omitempty"`
	// MaxRetries is the retry budget per chunk (default 2).
	MaxRetries *int `yaml:"max_retries,omitempty"`
	// InitialDelay is the first backoff delay (default 1s).
	InitialDelay time.Duration `yaml:"initial_delay,omitempty"`
	// MaxDelay caps any single retry wait (default 60s).
	MaxDelay time.Duration `yaml:"max_delay,omitempty"`
	// RequestDelay is the delay between launching workers.
	RequestDelay time.Duration `yaml:"request_delay,omitempty"`
	// Timeout overrides the provider's per-request timeout.
	Timeout time.Duration `yaml:"timeout,omitempty"`
	// Temperature overrides the sampling temperature (0 to 2).
	Temperature *float64 `yaml:"temperature,omitempty"`
	// Glossaries are glossary files relative to the config file; later
	// files take precedence.
	Glossaries []string `yaml:"glossaries,omitempty"`
	// Glossary controls glossary matching.
	Glossary GlossarySettings `yaml:"glossary,omitempty"`
	// Concurrency overrides the worker count per model.
	Concurrency map[string]int `yaml:"concurrency,omitempty"`
	// Cache enables the translation memory (mnbkit.cache).
	Cache bool `yaml:"cache,omitempty"`
	// Files is the list of translation targets.
	Files []Target `yaml:"files,omitempty"`

	// dir is the directory the file was loaded from.
	dir string
}

// GlossarySettings mirrors glossary.Options.
type GlossarySettings struct {
	WholeWord     *bool `yaml:"whole_word,omitempty"`
	CaseSensitive bool  `yaml:"case_sensitive,omitempty"`
}

// Target describes a single file to translate.
type Target struct {
	// Name is a human-readable label shown in logs (default: input base name).
	Name string `yaml:"name,omitempty"`
	// Input is the source file relative to the config file.
	Input string `yaml:"input"`
	// Output is the destination file (default: <input>.<lang code>.<ext>).
	Output string `yaml:"output,omitempty"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// FileName is the default config file name.
const FileName = ".mnbkit.yaml"

// DefaultProvider is used when the file names none.
const DefaultProvider = provider.ProviderGoogle

// Default returns a configuration with every default applied, used when no
// .mnbkit.yaml exists.
func Default(rootDir string) *File {
	f := &File{dir: rootDir}
	f.applyDefaults()
	return f
}

// Load loads and validates .mnbkit.yaml from the given directory.
// Returns nil if no .mnbkit.yaml exists.
func Load(rootDir string) (*File, error) {
	path := filepath.Join(rootDir, FileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	return LoadFile(path)
}

// LoadFile loads and validates an explicit config file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	f.dir = filepath.Dir(path)

	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f.applyDefaults()
	return &f, nil
}

func (f *File) applyDefaults() {
	if f.Provider == "" {
		f.Provider = DefaultProvider
	}
	if f.ChunkSize == 0 {
		f.ChunkSize = chunk.DefaultSize
	}
	if f.TargetLanguage == "" {
		f.TargetLanguage = prompt.DefaultLanguage
	}
	if f.MaxRetries == nil {
		n := retry.DefaultMaxRetries
		f.MaxRetries = &n
	}
	if f.InitialDelay == 0 {
		f.InitialDelay = retry.DefaultInitialDelay
	}
	if f.MaxDelay == 0 {
		f.MaxDelay = retry.DefaultMaxDelay
	}
	if f.Glossary.WholeWord == nil {
		on := true
		f.Glossary.WholeWord = &on
	}
	for i := range f.Files {
		t := &f.Files[i]
		if t.Name == "" {
			t.Name = filepath.Base(t.Input)
		}
	}
}

// Validate reports the first configuration error. Defaults need not be
// applied yet.
func (f *File) Validate() error {
	if f.Provider != "" {
		if _, ok := provider.Lookup(f.Provider); !ok {
			return fmt.Errorf("unknown provider %q (valid: %s)", f.Provider, strings.Join(provider.IDs(), ", "))
		}
	}
	if f.ChunkSize < 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", chunk.ErrInvalidConfiguration, f.ChunkSize)
	}
	if f.MaxRetries != nil && *f.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must not be negative", chunk.ErrInvalidConfiguration)
	}
	for _, d := range []struct {
		name string
		v    time.Duration
	}{
		{"initial_delay", f.InitialDelay},
		{"max_delay", f.MaxDelay},
		{"request_delay", f.RequestDelay},
		{"timeout", f.Timeout},
	} {
		if d.v < 0 {
			return fmt.Errorf("%w: %s must not be negative", chunk.ErrInvalidConfiguration, d.name)
		}
	}
	if f.Temperature != nil && (*f.Temperature < 0 || *f.Temperature > 2) {
		return fmt.Errorf("%w: temperature must be between 0 and 2, got %g", chunk.ErrInvalidConfiguration, *f.Temperature)
	}
	for model, n := range f.Concurrency {
		if n < 1 {
			return fmt.Errorf("%w: concurrency for %q must be at least 1", chunk.ErrInvalidConfiguration, model)
		}
	}

	names := make(map[string]bool)
	for i, t := range f.Files {
		if t.Input == "" {
			return fmt.Errorf("file #%d has no input", i+1)
		}
		name := t.Name
		if name == "" {
			name = filepath.Base(t.Input)
		}
		if names[name] {
			return fmt.Errorf("duplicate file target name %q", name)
		}
		names[name] = true
	}
	return nil
}

// ---------------------------------------------------------------------------
// Resolving
// ---------------------------------------------------------------------------

// Dir returns the directory relative paths are resolved against.
func (f *File) Dir() string {
	return f.dir
}

// abs resolves p against the config directory.
func (f *File) abs(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(f.dir, p)
}

// GlossaryPaths returns the glossary files resolved against the config
// directory, in precedence order.
func (f *File) GlossaryPaths() []string {
	paths := make([]string, len(f.Glossaries))
	for i, g := range f.Glossaries {
		paths[i] = f.abs(g)
	}
	return paths
}

// Language returns the target language name passed to the model; codes
// such as "ko" or "pt_BR" are expanded to their English names.
func (f *File) Language() string {
	return langmeta.Resolve(f.TargetLanguage).Name
}

// Retry returns the retry policy described by the file.
func (f *File) Retry() retry.Policy {
	p := retry.DefaultPolicy()
	if f.MaxRetries != nil {
		p.MaxRetries = *f.MaxRetries
	}
	if f.InitialDelay > 0 {
		p.InitialDelay = f.InitialDelay
	}
	if f.MaxDelay > 0 {
		p.MaxDelay = f.MaxDelay
	}
	return p
}

// WholeWord reports whether glossary terms match whole words only.
func (f *File) WholeWord() bool {
	return f.Glossary.WholeWord == nil || *f.Glossary.WholeWord
}

// ProviderConfig returns the provider definition with the file's overrides
// applied. The API key is not part of the file.
func (f *File) ProviderConfig() (provider.Provider, error) {
	p, ok := provider.Lookup(f.Provider)
	if !ok {
		return provider.Provider{}, fmt.Errorf("unknown provider %q", f.Provider)
	}
	if f.Model != "" {
		p.Model = f.Model
	}
	if f.BaseURL != "" {
		p.BaseURL = f.BaseURL
	}
	if f.Proxy != "" {
		p.Proxy = f.Proxy
	}
	if f.Timeout > 0 {
		p.Timeout = f.Timeout
	}
	p.Temperature = f.Temperature
	return p, nil
}

// ResolvedTarget holds a target with absolute paths.
type ResolvedTarget struct {
	Name   string
	Input  string
	Output string
}

// OutputPath returns the default output path for input: the input name
// with the language inserted before the extension.
func OutputPath(input, language string) string {
	ext := filepath.Ext(input)
	base := strings.TrimSuffix(input, ext)
	if ext == "" {
		ext = ".txt"
	}
	return base + "." + LanguageSlug(language) + ext
}

// LanguageSlug turns a language into a file name component: the language
// code when known, otherwise the lower-cased name.
func LanguageSlug(language string) string {
	if meta := langmeta.Resolve(language); meta.Known() {
		return meta.Code
	}
	s := strings.ToLower(strings.TrimSpace(language))
	s = strings.Join(strings.Fields(s), "-")
	if s == "" {
		return "translated"
	}
	return s
}

// Resolve returns the file targets with absolute input and output paths.
func (f *File) Resolve() []ResolvedTarget {
	resolved := make([]ResolvedTarget, 0, len(f.Files))
	for _, t := range f.Files {
		in := f.abs(t.Input)
		out := f.abs(t.Output)
		if out == "" {
			out = OutputPath(in, f.TargetLanguage)
		}
		resolved = append(resolved, ResolvedTarget{Name: t.Name, Input: in, Output: out})
	}
	return resolved
}
