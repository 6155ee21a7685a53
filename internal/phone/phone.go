// Package phone normalizes and validates subscriber numbers.
package phone

import (
	"regexp"
	"strings"
)

var pattern = regexp.MustCompile(`^\+?\d{9,15}$`)

// Normalize strips whitespace and dashes. It does not add a country prefix.
func Normalize(raw string) string {
	replacer := strings.NewReplacer(" ", "", "-", "", "\t", "")
	return replacer.Replace(strings.TrimSpace(raw))
}

// Valid reports whether a normalized number is 9-15 digits with an optional leading '+'.
func Valid(normalized string) bool {
	return pattern.MatchString(normalized)
}

// Mask hides all but the last four digits for logging.
func Mask(p string) string {
	if len(p) <= 4 {
		return p
	}
	return strings.Repeat("*", len(p)-4) + p[len(p)-4:]
}
