package credentials

import (
	"regexp"
	"unicode/utf8"

	"github.com/ledgerkeep/ledgerkeep/vault"
)

const (
	MaxNameLength  = 50
	MaxValueLength = vault.MaxPlaintextLength
)

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateName reports whether name is a usable credential name.
func ValidateName(name string) error {
	if name == "" {
		return validationErrorf("name must not be empty")
	}
	if len(name) > MaxNameLength {
		return validationErrorf("name exceeds maximum length of %d", MaxNameLength)
	}
	if !namePattern.MatchString(name) {
		return validationErrorf("name may only contain letters, digits, '_' and '-'")
	}
	return nil
}

// ValidateValue reports whether value can be stored.
func ValidateValue(value string) error {
	if value == "" {
		return validationErrorf("value must not be empty")
	}
	if !utf8.ValidString(value) {
		return validationErrorf("value contains invalid UTF-8")
	}
	if n := utf8.RuneCountInString(value); n > MaxValueLength {
		return validationErrorf("value exceeds maximum length of %d characters", MaxValueLength)
	}
	return nil
}
