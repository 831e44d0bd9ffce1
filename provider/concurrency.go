package provider

import "strings"

// DefaultConcurrency is used for models missing from the table.
const DefaultConcurrency = 3

// ConcurrencyTable maps model identifiers to the number of calls that may be
// in flight at once. Keys are matched case-insensitively; a key ending in "*"
// matches any model with that prefix.
type ConcurrencyTable map[string]int

// DefaultConcurrencyTable returns the built-in per-model limits.
func DefaultConcurrencyTable() ConcurrencyTable {
	return ConcurrencyTable{
		"gemini-2.5-flash":        8,
		"gemini-2.5-flash-lite":   10,
		"gemini-2.5-pro":          2,
		"gemini-2.0-flash":        8,
		"gpt-4o-mini":             8,
		"gpt-4o":                  4,
		"gpt-4.1-mini":            8,
		"gpt-4.1":                 4,
		"llama-3.3-70b-versatile": 2,
		"qwen*":                   1,
	}
}

// Merge returns a copy of t with the entries of override applied on top.
func (t ConcurrencyTable) Merge(override map[string]int) ConcurrencyTable {
	out := make(ConcurrencyTable, len(t)+len(override))
	for k, v := range t {
		out[strings.ToLower(k)] = v
	}
	for k, v := range override {
		out[strings.ToLower(k)] = v
	}
	return out
}

// Concurrency returns the limit for model. Exact matches win over prefix
// matches, the longest prefix wins among those, and the result is never
// below 1.
func (t ConcurrencyTable) Concurrency(model string) int {
	model = strings.ToLower(strings.TrimSpace(model))
	n, ok := 0, false
	for k, v := range t {
		if strings.ToLower(k) == model {
			n, ok = v, true
			break
		}
	}
	if !ok {
		best := -1
		for k, v := range t {
			k = strings.ToLower(k)
			prefix, isPattern := strings.CutSuffix(k, "*")
			if isPattern && strings.HasPrefix(model, prefix) && len(prefix) > best {
				best, n, ok = len(prefix), v, true
			}
		}
	}
	if !ok {
		n = DefaultConcurrency
	}
	if n < 1 {
		return 1
	}
	return n
}
