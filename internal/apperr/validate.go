package apperr

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	validate   = validator.New()
	phoneChars = regexp.MustCompile(`^[\d\s\-+]+$`)
)

// ValidEmail uses the same rule as gin's `binding:"email"`.
func ValidEmail(s string) bool {
	return validate.Var(s, "required,email") == nil
}

// CheckPhone validates an optional phone number: digits, spaces, dashes and "+", at least 7 digits.
func CheckPhone(f FieldErrors, field, phone string) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return
	}
	if !phoneChars.MatchString(phone) {
		f.Add(field, "PhoneInvalid", nil)
		return
	}
	digits := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits < 7 {
		f.Add(field, "PhoneTooShort", nil)
	}
}
