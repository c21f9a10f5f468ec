package analyze

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English, cases.NoLower)

// Title derives a human-readable column header from a JSON field key:
// camelCase and snake_case split into words, each word title-cased, acronyms
// left alone ("additionalIdentifiers" => "Additional Identifiers",
// "ocid" => "Ocid", "valueUSD" => "Value USD").
func Title(key string) string {
	words := splitWords(key)
	for i, w := range words {
		if w == strings.ToUpper(w) && len(w) > 1 {
			continue
		}
		words[i] = titleCaser.String(lowerFirst(w))
	}
	return strings.Join(words, " ")
}

// lowerFirst lowercases the first rune, not the first byte: keys are UTF-8
// and may open with a multi-byte character.
func lowerFirst(w string) string {
	r, size := utf8.DecodeRuneInString(w)
	if r == utf8.RuneError && size <= 1 {
		return w
	}
	return string(unicode.ToLower(r)) + w[size:]
}

// splitWords cuts a key at underscores and lower-to-upper case boundaries,
// keeping runs of capitals together.
func splitWords(key string) []string {
	var words []string
	var cur []rune
	runes := []rune(key)
	for i, r := range runes {
		if r == '_' || r == '-' {
			if len(cur) > 0 {
				words = append(words, string(cur))
				cur = cur[:0]
			}
			continue
		}
		if unicode.IsUpper(r) && i > 0 && len(cur) > 0 {
			prev := runes[i-1]
			next := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || (unicode.IsUpper(prev) && next) {
				words = append(words, string(cur))
				cur = cur[:0]
			}
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		words = append(words, string(cur))
	}
	if len(words) == 0 {
		return []string{key}
	}
	return words
}
