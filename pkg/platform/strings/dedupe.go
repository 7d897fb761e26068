// Package strings normalizes the string lists that arrive through environment
// variables and query parameters.
package strings

import (
	"strings"
)

// DedupeAndTrim trims each value and drops empties and repeats, keeping the
// first occurrence's position.
func DedupeAndTrim(values []string) []string {
	return dedupe(values, strings.TrimSpace)
}

// DedupeAndTrimLower is DedupeAndTrim with case folded, for lists compared
// case-insensitively (severities, roles).
func DedupeAndTrimLower(values []string) []string {
	return dedupe(values, func(v string) string {
		return strings.ToLower(strings.TrimSpace(v))
	})
}

// SplitList parses a comma-separated list such as AUTH_ISSUERS. A blank input
// yields nil.
func SplitList(raw string) []string {
	return nilIfEmpty(DedupeAndTrim(strings.Split(raw, ",")))
}

// SplitListLower parses a comma-separated list case-insensitively, as the
// log query's severity filter does.
func SplitListLower(raw string) []string {
	return nilIfEmpty(DedupeAndTrimLower(strings.Split(raw, ",")))
}

func dedupe(values []string, normalize func(string) string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		n := normalize(v)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		result = append(result, n)
	}
	return result
}

func nilIfEmpty(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	return values
}
