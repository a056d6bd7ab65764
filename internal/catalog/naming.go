package catalog

import (
	"strings"
	"unicode"
)

// SnakeCase converts a Go identifier such as GetUserByID to get_user_by_id.
func SnakeCase(ident string) string {
	runes := []rune(ident)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// IdentKey maps a qualified name to the identifier-safe form the
// synthesized unit is keyed by. Characters that are not valid in Go
// identifiers become underscores, so distinct names may share a key.
func IdentKey(name string) string {
	return strings.Map(func(r rune) rune {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, name)
}
