package medvault

import (
	"regexp"
	"strings"
)

// identifierPattern is the structural format of a care identifier: two
// uppercase letters, then two four-digit groups, e.g. "AS-1234-5678".
var identifierPattern = regexp.MustCompile(`^[A-Z]{2}-\d{4}-\d{4}$`)

// CareID is a patient's structured care identifier. A CareID is only ever
// constructed through ParseCareID, so holding one implies the format check
// already passed.
type CareID struct {
	value string
}

// ParseCareID validates the structural format of a raw identifier.
// It fails with ErrInvalidIdentifier before any cryptography can run.
func ParseCareID(raw string) (CareID, error) {
	trimmed := strings.TrimSpace(raw)
	if !identifierPattern.MatchString(trimmed) {
		return CareID{}, NewInvalidIdentifierError(raw)
	}
	return CareID{value: trimmed}, nil
}

func (c CareID) String() string { return c.value }

// IsZero reports whether the CareID was never parsed.
func (c CareID) IsZero() bool { return c.value == "" }

// Region returns the two-letter prefix of the identifier.
func (c CareID) Region() string {
	if c.IsZero() {
		return ""
	}
	return c.value[:2]
}

// validOneTimeCode reports whether a code is exactly six ASCII digits.
// Expiry and attempt counting belong to the identity provider; only the
// shape is checked here.
func validOneTimeCode(code string) bool {
	if len(code) != OneTimeCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
