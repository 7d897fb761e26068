// Package email normalizes addresses and derives display names from them.
package email

import (
	"net/mail"
	"strings"
	"unicode"
)

// Normalize trims and lowercases addr and checks it is a bare address.
// Display-name forms such as "Ana <ana@example.com>" are rejected.
func Normalize(addr string) (string, bool) {
	addr = strings.ToLower(strings.TrimSpace(addr))
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr {
		return "", false
	}
	return addr, true
}

// DeriveName guesses first and last names from the local part, splitting on
// dots, underscores, dashes and plus signs. last is empty for single-part
// local parts.
func DeriveName(addr string) (first, last string) {
	local, _, _ := strings.Cut(addr, "@")
	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	if len(parts) == 0 {
		return "", ""
	}
	first = capitalize(parts[0])
	if len(parts) > 1 {
		last = capitalize(parts[len(parts)-1])
	}
	return first, last
}

func capitalize(s string) string {
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
