package validation

import "unicode"

// StrongPassword requires a letter, a digit and a length within bcrypt's
// 72 byte limit.
func StrongPassword(password string) bool {
	if len(password) < MinPasswordLength || len(password) > MaxPasswordLength {
		return false
	}
	var hasLetter, hasNumber bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsNumber(r):
			hasNumber = true
		}
	}
	return hasLetter && hasNumber
}
