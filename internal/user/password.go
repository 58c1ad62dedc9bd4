package user

import (
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/username/ecoenergy-api/internal/apperr"
)

const minPasswordLength = 8

var commonPasswords = map[string]struct{}{
	"password": {}, "password1": {}, "password123": {}, "12345678": {}, "123456789": {},
	"1234567890": {}, "qwerty123": {}, "qwertyuiop": {}, "11111111": {}, "abc12345": {},
	"iloveyou": {}, "admin123": {}, "welcome1": {}, "passw0rd": {}, "contraseña": {},
	"contrasena1": {}, "letmein1": {}, "football1": {}, "ecoenergy1": {}, "energia2025": {},
}

// CheckPassword applies the strength rules to a new password and its confirmation.
func CheckPassword(f apperr.FieldErrors, field, confirmField, password, confirm, email string) {
	if password == "" {
		f.Add(field, "Required", nil)
		return
	}
	if confirm != password {
		f.Add(confirmField, "PasswordMismatch", nil)
	}
	if len([]rune(password)) < minPasswordLength {
		f.Add(field, "PasswordTooShort", nil)
		return
	}

	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	switch {
	case !upper:
		f.Add(field, "PasswordNeedsUpper", nil)
	case !lower:
		f.Add(field, "PasswordNeedsLower", nil)
	case !digit:
		f.Add(field, "PasswordNeedsDigit", nil)
	}

	if _, ok := commonPasswords[strings.ToLower(password)]; ok {
		f.Add(field, "PasswordTooCommon", nil)
	}
	if local, _, ok := strings.Cut(strings.ToLower(email), "@"); ok && len(local) >= 4 &&
		strings.Contains(strings.ToLower(password), local) {
		f.Add(field, "PasswordTooSimilar", nil)
	}
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPasswordHash(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
