package sweep

import (
	"regexp"
	"unicode"
	"unicode/utf8"
)

// ipv4Pattern finds candidate addresses. RE2's \b only knows ASCII word
// characters, so matches are re-checked against Unicode word boundaries by
// atBoundary.
var ipv4Pattern = regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b`)

// ExtractIPv4 returns the dotted-quad addresses found in text, each once, in
// order of first appearance. An address touching a letter, digit or
// underscore of any script is not a match, so "é1.2.3.4" yields nothing.
func ExtractIPv4(text string) []string {
	return appendUnique(nil, make(map[string]struct{}), text)
}

// appendUnique appends the addresses in text that are not yet in seen.
func appendUnique(dst []string, seen map[string]struct{}, text string) []string {
	for pos := 0; pos < len(text); {
		loc := ipv4Pattern.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if !atBoundary(text, start, end) {
			// A shorter address may start inside the rejected one, after a dot.
			_, size := utf8.DecodeRuneInString(text[start:])
			pos = start + size
			continue
		}
		pos = end
		ip := text[start:end]
		if _, ok := seen[ip]; ok {
			continue
		}
		seen[ip] = struct{}{}
		dst = append(dst, ip)
	}
	return dst
}

// atBoundary reports whether text[start:end] is not adjacent to a word
// character.
func atBoundary(text string, start, end int) bool {
	if r, _ := utf8.DecodeLastRuneInString(text[:start]); start > 0 && isWordRune(r) {
		return false
	}
	if r, _ := utf8.DecodeRuneInString(text[end:]); end < len(text) && isWordRune(r) {
		return false
	}
	return true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}
