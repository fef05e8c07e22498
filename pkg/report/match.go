package report

import (
	"path"
	"regexp"
	"strings"
)

// hostMatches reports whether host matches any pattern in patterns, using
// the same two-step rule as the source agent this was distilled from:
// a case-insensitive shell glob first, then a case-insensitive anchored
// regex. A pattern that fails to compile as a regex is silently skipped
// (not a match), it is never a fatal configuration error here.
func hostMatches(host string, patterns []string) bool {
	lowerHost := strings.ToLower(host)
	for _, pattern := range patterns {
		if ok, _ := path.Match(strings.ToLower(pattern), lowerHost); ok {
			return true
		}
		if re, err := regexp.Compile("(?i)^" + pattern + "$"); err == nil {
			if re.MatchString(host) {
				return true
			}
		}
	}
	return false
}
