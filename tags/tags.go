// Package tags shields Mount&Blade placeholder syntax ({s0}, {reg3},
// {player_name}, {anything}) from the translation model.
//
// Protect rewrites every placeholder into a sentinel token that models leave
// alone in practice; Restore turns sentinels back into placeholders. Both
// functions are total: they never fail, and Restore is best-effort when the
// model mangles a sentinel.
package tags

import (
	"regexp"
	"strings"
)

// Sentinel layout. The prefix is not something a model produces on its own.
const (
	sentinelPrefix     = "__MNBTAG_"
	sentinelSuffix     = "__"
	sentinelPlayerName = sentinelPrefix + "PLAYERNAME" + sentinelSuffix
)

// placeholderPattern matches every supported placeholder in one pass so the
// generic {identifier} form never re-wraps an already protected {s0}.
var placeholderPattern = regexp.MustCompile(`\{(?:s\d+|reg\d+|player_name|[A-Za-z_][A-Za-z0-9_]*)\}`)

var (
	sPattern     = regexp.MustCompile(`^\{s\d+\}$`)
	regPattern   = regexp.MustCompile(`^\{reg\d+\}$`)
	playerNameID = "{player_name}"
)

// Restore patterns, grouped the same way as Protect. Whitespace the model may
// insert inside the braces and a lowercased prefix are tolerated.
var (
	restoreS          = regexp.MustCompile(`(?i:__MNBTAG_S)\{\s*(s\d+)\s*\}__`)
	restoreReg        = regexp.MustCompile(`(?i:__MNBTAG_REG)\{\s*(reg\d+)\s*\}__`)
	restorePlayerName = regexp.MustCompile(`(?i:__MNBTAG_PLAYERNAME)__`)
	restoreID         = regexp.MustCompile(`(?i:__MNBTAG_ID)\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}__`)

	// spacedBraces normalizes "{ foo }" to "{foo}" after restoration.
	spacedBraces = regexp.MustCompile(`\{\s*([A-Za-z_0-9]+)\s*\}`)
)

// Protect replaces each placeholder in text with its sentinel.
func Protect(text string) string {
	if !strings.Contains(text, "{") {
		return text
	}
	return placeholderPattern.ReplaceAllStringFunc(text, sentinelFor)
}

// sentinelFor maps one matched placeholder to its sentinel.
func sentinelFor(tag string) string {
	switch {
	case tag == playerNameID:
		return sentinelPlayerName
	case sPattern.MatchString(tag):
		return sentinelPrefix + "S" + tag + sentinelSuffix
	case regPattern.MatchString(tag):
		return sentinelPrefix + "REG" + tag + sentinelSuffix
	default:
		return sentinelPrefix + "ID" + tag + sentinelSuffix
	}
}

// Restore turns sentinels back into placeholders and trims stray whitespace
// inside any remaining {identifier} token.
func Restore(text string) string {
	if strings.Contains(strings.ToUpper(text), sentinelPrefix) {
		text = restoreS.ReplaceAllString(text, "{$1}")
		text = restoreReg.ReplaceAllString(text, "{$1}")
		text = restorePlayerName.ReplaceAllLiteralString(text, playerNameID)
		text = restoreID.ReplaceAllString(text, "{$1}")
	}
	return spacedBraces.ReplaceAllString(text, "{$1}")
}

// Count returns how many placeholders text contains.
func Count(text string) int {
	return len(placeholderPattern.FindAllStringIndex(text, -1))
}
