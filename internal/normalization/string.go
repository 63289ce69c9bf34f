package normalization

import (
	"strings"
)

func ParseInputString(input string) string {
	normalized := strings.ToLower(strings.TrimSpace(input))
	return normalized
}

// Slug lowercases the input and collapses every run of non-alphanumeric
// characters into a single hyphen. Used to derive stable natural keys for
// cities, skills, programs and companies from free-text names.
func Slug(input string) string {
	normalized := ParseInputString(input)
	if normalized == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(normalized))
	lastHyphen := true
	for _, r := range normalized {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// IsBlank reports whether the value is empty or one of the null-ish sentinels
// tabular exports put in place of missing data.
func IsBlank(input string) bool {
	switch ParseInputString(input) {
	case "", "nan", "null", "none", "n/a", "na", "-":
		return true
	default:
		return false
	}
}

// ParseBool maps common truthy spellings in tabular exports to a bool.
func ParseBool(input string) bool {
	switch ParseInputString(input) {
	case "1", "true", "t", "yes", "y":
		return true
	default:
		return false
	}
}
