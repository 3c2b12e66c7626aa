package validator

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrEmptyAccount indicates the account id is empty
	ErrEmptyAccount = errors.New("account id cannot be empty")

	// ErrInvalidAccount indicates the account id is not a campus id number
	ErrInvalidAccount = errors.New("account id must be 8 to 12 digits")
)

// accountRegex matches student and staff id numbers
var accountRegex = regexp.MustCompile(`^\d{8,12}$`)

// ValidateAccount validates a portal account id.
// Returns the sanitized id (surrounding whitespace removed).
func ValidateAccount(account string) (string, error) {
	sanitized := strings.TrimSpace(account)
	if sanitized == "" {
		return "", ErrEmptyAccount
	}
	if !accountRegex.MatchString(sanitized) {
		return "", ErrInvalidAccount
	}
	return sanitized, nil
}

// MaskAccount hides all but the last four digits of an account id for logging
func MaskAccount(account string) string {
	if len(account) <= 4 {
		return strings.Repeat("*", len(account))
	}
	return strings.Repeat("*", len(account)-4) + account[len(account)-4:]
}
