package fieldcrypt

import "strings"

const maskRune = "*"

// MaskAccount hides all but the last 4 characters of an account number.
// Values of 4 characters or fewer are masked entirely.
func MaskAccount(value string) string {
	if len(value) <= 4 {
		return strings.Repeat(maskRune, len(value))
	}
	return strings.Repeat(maskRune, len(value)-4) + value[len(value)-4:]
}

// MaskPhone reveals the first 3 and last 3 characters of a phone number.
// Values of 6 characters or fewer are masked entirely.
func MaskPhone(value string) string {
	if len(value) <= 6 {
		return strings.Repeat(maskRune, len(value))
	}
	return value[:3] + strings.Repeat(maskRune, len(value)-6) + value[len(value)-3:]
}
