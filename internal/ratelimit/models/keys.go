package models

import "strings"

// KeyPrefix namespaces every counter in the shared store.
const KeyPrefix = "rl"

// SanitizeKeySegment escapes delimiter characters in rate limit key segments
// to prevent key collision attacks where user-controlled identifiers containing
// ':' could manipulate adjacent rate limit buckets.
//
// Example: An identifier "user:admin" would become "user_admin", preventing
// it from being interpreted as a separate key segment.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}

// Identity joins sanitized segments with ':' so composite identities such as
// ip+subject keep their boundaries.
func Identity(segments ...string) string {
	clean := make([]string, len(segments))
	for i, seg := range segments {
		clean[i] = SanitizeKeySegment(seg)
	}
	return strings.Join(clean, ":")
}

// CounterKey builds "rl:<policy>:<identity>". identity should come from Identity.
func CounterKey(policy, identity string) string {
	return KeyPrefix + ":" + SanitizeKeySegment(policy) + ":" + identity
}
