// Package i18n translates the CLI's own messages using gettext catalogs
// embedded in the binary.
//
//	i18n.Init("")
//	logSuccess("%s", i18n.T("Translation complete"))
//	fmt.Printf(i18n.N("%d chunk", "%d chunks", n), n)
//
// Call sites pass a literal msgid; T and N return the msgid unchanged when
// no catalog is loaded or the catalog has no entry for it.
package i18n

import (
	"embed"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/leonelquinteros/gotext"
)

// Catalogs live at locales/<lang>/LC_MESSAGES/mnbkit.po.
//
//go:embed all:locales
var locales embed.FS

const (
	domain = "mnbkit"

	// EnvLang overrides the locale environment for CLI messages only.
	EnvLang = "MNBKIT_LANG"
)

var (
	po     *gotext.Locale
	active string
)

// Init loads the catalog for lang, or for the language detected from the
// environment when lang is empty. It must run before the first T or N call.
func Init(lang string) {
	if lang == "" {
		lang = detectLanguage()
	}
	active = lang
	po = gotext.NewLocaleFSWithPath(lang, locales, "locales")
	po.AddDomain(domain)
	po.SetDomain(domain)
}

// Language returns the language passed to (or detected by) Init.
func Language() string {
	return active
}

// Available lists the languages that have an embedded catalog.
func Available() []string {
	entries, err := fs.ReadDir(locales, "locales")
	if err != nil {
		return nil
	}
	var langs []string
	for _, e := range entries {
		if e.IsDir() {
			langs = append(langs, e.Name())
		}
	}
	sort.Strings(langs)
	return langs
}

// T returns the translation of msgid.
func T(msgid string) string {
	if po == nil {
		return msgid
	}
	return po.Get(msgid)
}

// N returns the plural form of a message for n. Without a catalog the
// English rule applies.
func N(singular, plural string, n int) string {
	if po == nil {
		if n == 1 {
			return singular
		}
		return plural
	}
	return po.GetN(singular, plural, n)
}

// detectLanguage follows gettext lookup order after MNBKIT_LANG:
// LANGUAGE, LC_ALL, LC_MESSAGES, LANG. "C" and "POSIX" are skipped.
func detectLanguage() string {
	for _, env := range []string{EnvLang, "LANGUAGE", "LC_ALL", "LC_MESSAGES", "LANG"} {
		val := os.Getenv(env)
		if env == "LANGUAGE" {
			val, _, _ = strings.Cut(val, ":")
		}
		val, _, _ = strings.Cut(val, ".") // ru_RU.UTF-8
		val, _, _ = strings.Cut(val, "@") // sr_RS@latin
		switch val {
		case "", "C", "POSIX":
			continue
		}
		return val
	}
	return "en"
}
