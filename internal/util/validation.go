package util

// IsDigits reports whether s is a non-empty run of ASCII digits.
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// IsOneOf reports whether value is one of validValues. Empty values never
// match.
func IsOneOf(value string, validValues []string) bool {
	if value == "" {
		return false
	}
	for _, v := range validValues {
		if value == v {
			return true
		}
	}
	return false
}
