package identity

import "strings"

// NormalizeTelephone strips formatting noise from a phone number so that
// "+7 (900) 123-45-67" and "79001234567" address the same account.
// A single leading "+" is preserved; everything except digits is dropped.
func NormalizeTelephone(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	for i, r := range s {
		if r == '+' && i == 0 {
			b.WriteRune(r)
			continue
		}
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeUsername performs case-insensitive canonicalization.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
