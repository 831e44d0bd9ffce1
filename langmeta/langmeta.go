// Package langmeta provides the target language registry: English names
// used in prompts, native names for display, and codes used in output file
// names.
package langmeta

import "strings"

// Meta describes a target language.
type Meta struct {
	// Code is the canonical language code (ko, pt-BR, zh-TW).
	Code string
	// Name is the English name passed to the model.
	Name string
	// Native is the language's own name.
	Native string
}

// Known reports whether the language came from the registry.
func (m Meta) Known() bool {
	return m.Code != ""
}

// Registry contains canonical language metadata keyed by code.
// Locale variants are resolved in Resolve() via normalization and base fallback.
var Registry = map[string]Meta{
	"ar":    {Code: "ar", Name: "Arabic", Native: "العربية"},
	"bg":    {Code: "bg", Name: "Bulgarian", Native: "Български"},
	"cs":    {Code: "cs", Name: "Czech", Native: "Čeština"},
	"da":    {Code: "da", Name: "Danish", Native: "Dansk"},
	"de":    {Code: "de", Name: "German", Native: "Deutsch"},
	"el":    {Code: "el", Name: "Greek", Native: "Ελληνικά"},
	"en":    {Code: "en", Name: "English", Native: "English"},
	"es":    {Code: "es", Name: "Spanish", Native: "Español"},
	"es-MX": {Code: "es-MX", Name: "Latin American Spanish", Native: "Español (México)"},
	"fi":    {Code: "fi", Name: "Finnish", Native: "Suomi"},
	"fr":    {Code: "fr", Name: "French", Native: "Français"},
	"hu":    {Code: "hu", Name: "Hungarian", Native: "Magyar"},
	"id":    {Code: "id", Name: "Indonesian", Native: "Bahasa Indonesia"},
	"it":    {Code: "it", Name: "Italian", Native: "Italiano"},
	"ja":    {Code: "ja", Name: "Japanese", Native: "日本語"},
	"ko":    {Code: "ko", Name: "Korean", Native: "한국어"},
	"nl":    {Code: "nl", Name: "Dutch", Native: "Nederlands"},
	"nb":    {Code: "nb", Name: "Norwegian", Native: "Norsk bokmål"},
	"pl":    {Code: "pl", Name: "Polish", Native: "Polski"},
	"pt":    {Code: "pt", Name: "Portuguese", Native: "Português"},
	"pt-BR": {Code: "pt-BR", Name: "Brazilian Portuguese", Native: "Português (Brasil)"},
	"ro":    {Code: "ro", Name: "Romanian", Native: "Română"},
	"ru":    {Code: "ru", Name: "Russian", Native: "Русский"},
	"sv":    {Code: "sv", Name: "Swedish", Native: "Svenska"},
	"th":    {Code: "th", Name: "Thai", Native: "ไทย"},
	"tr":    {Code: "tr", Name: "Turkish", Native: "Türkçe"},
	"uk":    {Code: "uk", Name: "Ukrainian", Native: "Українська"},
	"vi":    {Code: "vi", Name: "Vietnamese", Native: "Tiếng Việt"},
	"zh":    {Code: "zh", Name: "Chinese", Native: "中文"},
	"zh-CN": {Code: "zh-CN", Name: "Simplified Chinese", Native: "简体中文"},
	"zh-TW": {Code: "zh-TW", Name: "Traditional Chinese", Native: "繁體中文"},
}

// byName indexes the registry by lower-cased English name.
var byName = func() map[string]Meta {
	m := make(map[string]Meta, len(Registry))
	for _, meta := range Registry {
		m[strings.ToLower(meta.Name)] = meta
	}
	return m
}()

func canonicalize(lang string) string {
	normalized := strings.ReplaceAll(strings.TrimSpace(lang), "_", "-")
	if normalized == "" {
		return ""
	}
	parts := strings.Split(normalized, "-")
	parts[0] = strings.ToLower(parts[0])
	if len(parts) >= 2 {
		parts[1] = strings.ToUpper(parts[1])
	}
	return strings.Join(parts, "-")
}

// Resolve returns best-effort language metadata for a language code
// (ko, pt_BR, zh-tw) or English name (Korean, brazilian portuguese).
// Unknown input is returned as the Name with an empty Code.
func Resolve(lang string) Meta {
	if m, ok := Registry[lang]; ok {
		return m
	}
	if m, ok := byName[strings.ToLower(strings.TrimSpace(lang))]; ok {
		return m
	}
	normalized := canonicalize(lang)
	if m, ok := Registry[normalized]; ok {
		return m
	}
	if parts := strings.SplitN(normalized, "-", 2); len(parts) == 2 {
		if m, ok := Registry[parts[0]]; ok {
			return m
		}
	}
	return Meta{Name: strings.TrimSpace(lang)}
}
