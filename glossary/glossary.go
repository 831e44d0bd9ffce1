// Package glossary loads term lists and applies them to translated text.
//
// Application is a deterministic post-pass over the fully reassembled
// document: the merged terms are sorted by length (longest first) and each
// one is substituted over the current text, so later, shorter terms also see
// the output of earlier ones.
package glossary

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Terms maps an original term to its fixed translation.
type Terms map[string]string

// Options controls matching.
type Options struct {
	// WholeWord anchors terms at word boundaries. Otherwise any substring
	// matches.
	WholeWord bool
	// CaseSensitive disables case folding.
	CaseSensitive bool
}

// DefaultOptions matches whole words, ignoring case.
func DefaultOptions() Options {
	return Options{WholeWord: true}
}

// WarnFunc receives non-fatal problems (skipped terms, malformed rows).
type WarnFunc func(format string, args ...any)

func (w WarnFunc) warnf(format string, args ...any) {
	if w != nil {
		w(format, args...)
	}
}

// Merge combines term sets in order; later sets win on key collision.
func Merge(sets ...Terms) Terms {
	out := make(Terms)
	for _, set := range sets {
		for k, v := range set {
			out[k] = v
		}
	}
	return out
}

// Sorted returns the originals of terms, longest first. Ties are ordered
// lexically so the result is deterministic.
func (t Terms) Sorted() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		if k != "" {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(keys[i]), utf8.RuneCountInString(keys[j])
		if li != lj {
			return li > lj
		}
		return keys[i] < keys[j]
	})
	return keys
}

// Apply substitutes every term of terms in text. A term that cannot be
// compiled into a pattern is skipped and reported through warn. An empty
// term set returns text unchanged.
func Apply(text string, terms Terms, opts Options, warn WarnFunc) string {
	if len(terms) == 0 || text == "" {
		return text
	}
	for _, original := range terms.Sorted() {
		pattern := regexp.QuoteMeta(original)
		if !opts.CaseSensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			warn.warnf("glossary: skipping term %q: %v", original, err)
			continue
		}
		text = replace(text, re, original, terms[original], opts.WholeWord)
	}
	return text
}

// replace substitutes replacement for every match of re. With wholeWord set,
// a match is only taken when it does not continue a word on an edge where
// the term itself starts or ends with a word character.
func replace(text string, re *regexp.Regexp, original, replacement string, wholeWord bool) string {
	if !wholeWord {
		return re.ReplaceAllLiteralString(text, replacement)
	}

	first, _ := utf8.DecodeRuneInString(original)
	last, _ := utf8.DecodeLastRuneInString(original)
	checkStart, checkEnd := isWordRune(first), isWordRune(last)

	var b strings.Builder
	prev, pos := 0, 0
	for pos <= len(text) {
		loc := re.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if !wordEdgesOK(text, start, end, checkStart, checkEnd) || end == start {
			// A rejected candidate may overlap a valid match; resume one
			// rune past its start.
			_, size := utf8.DecodeRuneInString(text[start:])
			pos = start + max(size, 1)
			continue
		}
		b.WriteString(text[prev:start])
		b.WriteString(replacement)
		prev, pos = end, end
	}
	if prev == 0 {
		return text
	}
	b.WriteString(text[prev:])
	return b.String()
}

// wordEdgesOK reports whether text[start:end] is not glued to a word
// character on the edges that are checked.
func wordEdgesOK(text string, start, end int, checkStart, checkEnd bool) bool {
	if checkStart && start > 0 {
		if r, _ := utf8.DecodeLastRuneInString(text[:start]); isWordRune(r) {
			return false
		}
	}
	if checkEnd && end < len(text) {
		if r, _ := utf8.DecodeRuneInString(text[end:]); isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
