package password

import (
	"strings"
	"unicode"
)

// specialChars is the fixed punctuation set accepted by the strength policy.
const specialChars = "!@#$%^&*()_+-=[]{}|;:,.<>?"

const minLength = 12

// Strength labels returned by [AssessStrength].
const (
	StrengthStrong   = "strong"
	StrengthModerate = "moderate"
	StrengthWeak     = "weak"
)

// Assessment is the result of a strength check. Valid is true only when
// Issues is empty.
type Assessment struct {
	Valid    bool     `json:"valid"`
	Issues   []string `json:"issues"`
	Strength string   `json:"strength"`
}

// AssessStrength applies the fixed password policy: minimum 12 characters,
// at least one uppercase, one lowercase, one digit, and one character from
// the fixed punctuation set. Each violated rule contributes one issue string.
func AssessStrength(pw string) Assessment {
	var issues []string

	if len(pw) < minLength {
		issues = append(issues, "Password must be at least 12 characters long")
	}
	if !strings.ContainsFunc(pw, unicode.IsUpper) {
		issues = append(issues, "Password must contain at least one uppercase letter")
	}
	if !strings.ContainsFunc(pw, unicode.IsLower) {
		issues = append(issues, "Password must contain at least one lowercase letter")
	}
	if !strings.ContainsFunc(pw, unicode.IsDigit) {
		issues = append(issues, "Password must contain at least one digit")
	}
	if !strings.ContainsAny(pw, specialChars) {
		issues = append(issues, "Password must contain at least one special character")
	}

	return Assessment{
		Valid:    len(issues) == 0,
		Issues:   issues,
		Strength: label(len(issues)),
	}
}

func label(issueCount int) string {
	switch {
	case issueCount == 0:
		return StrengthStrong
	case issueCount <= 2:
		return StrengthModerate
	default:
		return StrengthWeak
	}
}
