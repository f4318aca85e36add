package core

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/JonMunkholm/schoolfacts/internal/table"
)

// accentFolds maps the accented vowels seen in names to their plain form.
// Other non-ASCII letters (ñ, ü) pass through unchanged.
var accentFolds = map[rune]rune{
	'á': 'a',
	'é': 'e',
	'í': 'i',
	'ó': 'o',
	'ú': 'u',
}

// NormalizeAddressPart lowercases s, folds accented vowels and drops all
// whitespace.
func NormalizeAddressPart(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		if plain, ok := accentFolds[r]; ok {
			r = plain
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SynthesizeAddress builds "<nombre>.<apellido>@<domain>" from raw name values.
// A null name part contributes an empty string.
func SynthesizeAddress(nombre, apellido any, domain string) string {
	return NormalizeAddressPart(cellString(nombre)) + "." +
		NormalizeAddressPart(cellString(apellido)) + "@" + domain
}

func cellString(v any) string {
	if table.IsNull(v) {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
