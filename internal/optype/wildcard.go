package optype

import "strings"

// Like implements SQL LIKE matching, grounded on the original engine's
// libsupport/wildcmp.c (WildCaseCmp). Matching is case-insensitive. A
// pattern with no wildcard or escape characters is a prefix match (see
// HasPrefixFold). Otherwise '*'/'%' match any run of characters,
// '?'/'_' match exactly one, and the pattern must match the whole of s.
func Like(pattern, s string) bool {
	if !strings.ContainsAny(pattern, "%_*?\\") {
		return HasPrefixFold(s, pattern)
	}
	return wildCaseCmp(normalizeWild(pattern), s)
}

// normalizeWild rewrites SQL wildcard syntax ('%', '_') onto the
// original engine's own wildcard characters ('*', '?') so a single
// matcher implements both grammars.
func normalizeWild(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern))
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '%':
			b.WriteByte('*')
		case '_':
			b.WriteByte('?')
		case '\\':
			if i+1 < len(pattern) {
				i++
				b.WriteByte(pattern[i])
			}
		default:
			b.WriteByte(pattern[i])
		}
	}
	return b.String()
}

// wildCaseCmp is a direct transliteration of WildCaseCmp's recursive
// structure, operating on Go strings instead of NUL-terminated C
// strings.
func wildCaseCmp(w, s string) bool {
	for {
		if w == "" {
			return s == ""
		}
		switch w[0] {
		case '*':
			if len(w) == 1 { // optimize "wild*" case
				return true
			}
			for i := 0; i <= len(s); i++ {
				if wildCaseCmp(w[1:], s[i:]) {
					return true
				}
			}
			return false
		case '?':
			if s == "" {
				return false
			}
			w, s = w[1:], s[1:]
		default:
			if s == "" {
				return false
			}
			if !equalByteFold(w[0], s[0]) {
				return false
			}
			w, s = w[1:], s[1:]
		}
	}
}

func equalByteFold(a, b byte) bool {
	return toLowerByte(a) == toLowerByte(b)
}

func toLowerByte(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

// HasPrefixFold reports whether s begins with prefix, case-insensitively.
// This is the plain-prefix special case spec.md §4.3 documents for LIKE
// when the pattern carries no wildcard characters.
func HasPrefixFold(s, prefix string) bool {
	if len(prefix) > len(s) {
		return false
	}
	return strings.EqualFold(s[:len(prefix)], prefix)
}
