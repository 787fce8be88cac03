package sanitize

import (
	"sort"
	"strings"
	"unicode"
)

// Redacted replaces every sensitive value.
const Redacted = "[REDACTED]"

// Long markers match anywhere in a key ("accessToken", "x-session-id").
var substringMarkers = []string{"password", "passwd", "token", "secret", "cookie", "session", "credential", "private"}

// Short markers must start a word so "shipping" or "monkey" stay visible
// while "api_key", "cardNumber" and "Authorization" do not.
var wordPrefixMarkers = []string{"key", "auth", "card", "ssn", "cvv", "pin"}

// Report lists what Walk redacted.
type Report struct {
	// SensitiveKeys holds each redacted key, lowercased, sorted, without duplicates.
	SensitiveKeys []string
}

// HasKey reports whether a redacted key contains marker.
func (r Report) HasKey(marker string) bool {
	for _, k := range r.SensitiveKeys {
		if strings.Contains(k, marker) {
			return true
		}
	}
	return false
}

// Walk returns a copy of v with the value of every sensitive map key,
// at any depth, replaced by Redacted. Walk(Walk(v)) equals Walk(v).
func Walk(v Value) (Value, Report) {
	seen := map[string]struct{}{}
	out := walk(v, seen)
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return out, Report{SensitiveKeys: keys}
}

func walk(v Value, seen map[string]struct{}) Value {
	switch v.kind {
	case KindList:
		items := make([]Value, len(v.items))
		for i, item := range v.items {
			items[i] = walk(item, seen)
		}
		return List(items...)
	case KindMap:
		fields := make(map[string]Value, len(v.fields))
		for k, field := range v.fields {
			if IsSensitiveKey(k) {
				seen[strings.ToLower(k)] = struct{}{}
				fields[k] = String(Redacted)
				continue
			}
			fields[k] = walk(field, seen)
		}
		return Map(fields)
	}
	return v
}

// IsSensitiveKey reports whether values under key must be redacted.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, m := range substringMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	for _, word := range splitWords(key) {
		for _, m := range wordPrefixMarkers {
			if strings.HasPrefix(word, m) {
				return true
			}
		}
	}
	return false
}

// splitWords breaks a key on separators and camelCase boundaries and
// lowercases the parts: "X-Api-Key" and "apiKey" both give [.. api key].
func splitWords(key string) []string {
	var (
		words []string
		cur   []rune
	)
	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	runes := []rune(key)
	for i, r := range runes {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			flush()
		case unicode.IsUpper(r) && i > 0 && unicode.IsLower(runes[i-1]):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return words
}
