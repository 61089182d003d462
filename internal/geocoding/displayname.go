package geocoding

import (
	"regexp"
	"strings"
)

var (
	streetNumberPrefix = regexp.MustCompile(`^\d+\s`)
	htmlTag            = regexp.MustCompile(`<\/?[^>]+(>|$)`)
)

// DisplayName extracts a business or place name from an address such as
// "Blue Bottle Coffee, 1 Ferry Building, San Francisco". The text before the
// first comma is used unless it starts with a street number. Returns "" when
// no name can be derived.
func DisplayName(address string) string {
	prefix, _, found := strings.Cut(address, ",")
	if !found {
		return ""
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" || streetNumberPrefix.MatchString(prefix) {
		return ""
	}
	return prefix
}

// Sanitize strips HTML tags from user supplied text.
func Sanitize(input string) string {
	return strings.TrimSpace(htmlTag.ReplaceAllString(input, ""))
}

// Normalize is the cache key form of a query: trimmed, inner whitespace
// collapsed and lower-cased.
func Normalize(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}
