// Package prompt stores translation prompt templates and renders them for a
// chunk of protected text.
package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Placeholders recognized in templates.
const (
	TextPlaceholder     = "{text_to_translate}"
	LanguagePlaceholder = "{target_language}"
)

// ErrMissingPlaceholder is returned for templates that do not contain
// exactly one TextPlaceholder.
var ErrMissingPlaceholder = errors.New("prompt template must contain exactly one " + TextPlaceholder)

// DefaultLanguage is substituted when no target language is configured.
const DefaultLanguage = "Korean"

// Prompt is one entry of prompts.json.
type Prompt struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Template    string `json:"template"`
}

// ---------------------------------------------------------------------------
// Built-in prompts
// ---------------------------------------------------------------------------

// GenericTemplate is the fallback template used when no prompt file exists.
const GenericTemplate = `Translate the following English text to {target_language}. Preserve any special placeholders (e.g., __MNBTAG_...__) exactly.

English:
{text_to_translate}

{target_language}:`

// ModTemplate targets Mount&Blade module text files (one "id|text" entry per line).
const ModTemplate = `You are a professional game localization translator for a Mount & Blade mod.
Translate the text below from English to {target_language}.

RULES:
1. Every line has the form "identifier|text". Keep the identifier and the "|" unchanged; translate only the text after it.
2. Keep the number and order of lines exactly as given. Do not merge, split, or skip lines.
3. Tokens of the form __MNBTAG_..__ are placeholders. Copy them exactly, including underscores and braces.
4. Keep the medieval tone. Use consistent terms for factions, titles, and troop names.
5. Return ONLY the translated lines, without explanations or code fences.

TEXT:
{text_to_translate}`

// DialogTemplate is tuned for conversation strings.
const DialogTemplate = `Translate the following game dialog lines from English to {target_language}.
Keep speaker tone and register. Keep every __MNBTAG_..__ token exactly as written.
Keep line breaks and the "identifier|" prefix of each line unchanged.
Return only the translation.

{text_to_translate}`

// Defaults returns the built-in prompts. The first entry is the default.
func Defaults() []Prompt {
	return []Prompt{
		{ID: "mod", Name: "Mount&Blade module text", Description: "id|text lines with tag protection", Template: ModTemplate},
		{ID: "generic", Name: "Generic translation", Description: "Plain translation with tag protection", Template: GenericTemplate},
		{ID: "dialog", Name: "Dialog lines", Description: "Conversation strings", Template: DialogTemplate},
	}
}

// ---------------------------------------------------------------------------
// Store
// ---------------------------------------------------------------------------

// Store holds the loaded prompts in file order.
type Store struct {
	prompts []Prompt
}

// NewStore returns a store over prompts, or over Defaults() when empty.
func NewStore(prompts []Prompt) *Store {
	if len(prompts) == 0 {
		prompts = Defaults()
	}
	return &Store{prompts: prompts}
}

// Load reads a prompts.json file: a JSON array of Prompt objects. A missing
// or empty file yields a store with the built-in prompts.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewStore(nil), nil
		}
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}

	var prompts []Prompt
	if err := json.Unmarshal(data, &prompts); err != nil {
		return nil, fmt.Errorf("failed to parse prompts file %s: %w", path, err)
	}
	for i, p := range prompts {
		if p.ID == "" {
			return nil, fmt.Errorf("prompts file %s: entry %d has no id", path, i)
		}
	}
	return NewStore(prompts), nil
}

// LoadOrCreate loads path, first writing the built-in prompts there if the
// file does not exist.
func LoadOrCreate(path string) (*Store, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := WriteDefaults(path); err != nil {
			return nil, err
		}
	}
	return Load(path)
}

// WriteDefaults writes the built-in prompts to path as formatted JSON.
func WriteDefaults(path string) error {
	data, err := json.MarshalIndent(Defaults(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling default prompts: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating prompts directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing default prompts file: %w", err)
	}
	return nil
}

// All returns the prompts in file order.
func (s *Store) All() []Prompt {
	out := make([]Prompt, len(s.prompts))
	copy(out, s.prompts)
	return out
}

// Default returns the first prompt.
func (s *Store) Default() Prompt {
	return s.prompts[0]
}

// Get returns the prompt with the given id. Unknown or empty ids fall back
// to the default prompt; ok reports whether id was found.
func (s *Store) Get(id string) (p Prompt, ok bool) {
	for _, p := range s.prompts {
		if p.ID == id {
			return p, true
		}
	}
	return s.Default(), false
}

// ByName looks a prompt up by its display name, ignoring case.
func (s *Store) ByName(name string) (Prompt, bool) {
	for _, p := range s.prompts {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Prompt{}, false
}

// ---------------------------------------------------------------------------
// Rendering
// ---------------------------------------------------------------------------

// Validate checks that template has exactly one text placeholder.
func Validate(template string) error {
	if strings.Count(template, TextPlaceholder) != 1 {
		return ErrMissingPlaceholder
	}
	return nil
}

// Render substitutes the target language and then the chunk text into
// template. The text is inserted last so placeholders inside it are left
// alone.
func Render(template, text, language string) (string, error) {
	if err := Validate(template); err != nil {
		return "", err
	}
	if language == "" {
		language = DefaultLanguage
	}
	template = strings.ReplaceAll(template, LanguagePlaceholder, language)
	before, after, _ := strings.Cut(template, TextPlaceholder)
	return before + text + after, nil
}
