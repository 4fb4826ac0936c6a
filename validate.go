package otpAuth

import (
	"errors"
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minUsernameLength = 6
	maxUsernameLength = 32
	minPasswordLength = 8
	maxPasswordLength = 128
	maxEmailLength    = 254
)

// DefaultPasswordPolicy requires 8 to 128 characters with at least one
// letter and one digit.
func DefaultPasswordPolicy(password string) error {
	n := utf8.RuneCountInString(password)
	if n < minPasswordLength {
		return errors.New("password must be at least 8 characters long")
	}
	if n > maxPasswordLength {
		return errors.New("password must be at most 128 characters long")
	}
	var letter, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return errors.New("password must contain at least one letter and one number")
	}
	return nil
}

func normalizeEmail(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", validationError("Email is required.")
	}
	if len(s) > maxEmailLength {
		return "", validationError("Invalid mail format.")
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || !strings.Contains(s[strings.LastIndexByte(s, '@')+1:], ".") {
		return "", validationError("Invalid mail format.")
	}
	return s, nil
}

func normalizeUsername(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if len(s) < minUsernameLength {
		return "", validationError("Username must be at least 6 characters long.")
	}
	if len(s) > maxUsernameLength {
		return "", validationError("Username must be at most 32 characters long.")
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' {
			continue
		}
		return "", validationError("Username can only contain letters, numbers, and underscores.")
	}
	return s, nil
}

// normalizeIdentifier accepts either an email or a username for login.
func normalizeIdentifier(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", validationError("Email or username is required.")
	}
	if len(s) > maxEmailLength {
		return "", validationError("Invalid email or username.")
	}
	return s, nil
}

func (e *Engine) checkPassword(pw string) error {
	if pw == "" {
		return validationError("Password is required.")
	}
	if err := e.validator.Validate(pw); err != nil {
		pe := wrap(ErrPasswordPolicy, err)
		pe.Message = err.Error()
		return pe
	}
	return nil
}
