package common

import (
	"regexp"
	"strings"
)

// CompilePattern compiles a rule pattern case-insensitively.
// Patterns that already carry an inline (?i) flag are left untouched.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	if !strings.HasPrefix(pattern, "(?i)") {
		pattern = "(?i)" + pattern
	}
	return regexp.Compile(pattern)
}
