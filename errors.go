package medvault

import (
	"errors"
	"fmt"
)

var (
	// Authentication and derivation errors
	ErrInvalidIdentifier    = errors.New("invalid care identifier")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrAccountLocked        = errors.New("account locked after repeated failures")

	// Crypto errors
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrInvalidKeySize   = errors.New("invalid key size")
	ErrWeakPublicKey    = errors.New("public key modulus below minimum size")

	// Authorization errors
	ErrGrantConflict = errors.New("active grant already exists for this doctor")
	ErrGrantNotFound = errors.New("grant not found")

	// Break-glass errors
	ErrGeolocationRequired = errors.New("geolocation fix required for emergency access")
	ErrSessionExpired      = errors.New("emergency session expired")
	ErrSessionNotFound     = errors.New("emergency session not found")
	ErrPatientNotFound     = errors.New("target patient could not be resolved")

	// Collaborator errors
	ErrStoreUnavailable   = errors.New("backing store unavailable")
	ErrNotificationFailed = errors.New("notification delivery failed")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrUninitializedPepper  = errors.New("pepper value appears to be uninitialized (all zeros)")
)

func NewInvalidIdentifierError(raw string) error {
	return fmt.Errorf("%w: %q does not match the AA-0000-0000 format", ErrInvalidIdentifier, raw)
}

func NewAuthenticationFailedError(attempt, max int) error {
	return fmt.Errorf("%w: attempt %d of %d", ErrAuthenticationFailed, attempt, max)
}

// IsRetryableError returns true if the error represents a transient failure
// that might succeed on retry. Cryptographic and authorization failures are
// never retryable; a failed decrypt is definitive.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// IsAuthError returns true if the error represents an authentication problem.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed) ||
		errors.Is(err, ErrAccountLocked)
}

// IsValidationError returns true if the error was raised by structural input
// validation before any cryptography ran.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidIdentifier) ||
		errors.Is(err, ErrGeolocationRequired) ||
		errors.Is(err, ErrInvalidConfiguration)
}

// IsOperationError returns true if the error represents a failure during an
// encryption, decryption or key-wrapping operation.
func IsOperationError(err error) bool {
	return errors.Is(err, ErrEncryptionFailed) ||
		errors.Is(err, ErrDecryptionFailed) ||
		errors.Is(err, ErrInvalidKeySize) ||
		errors.Is(err, ErrWeakPublicKey)
}

// IsTerminalSessionError returns true for errors that mean an emergency
// session can never become usable again.
func IsTerminalSessionError(err error) bool {
	return errors.Is(err, ErrSessionExpired) ||
		errors.Is(err, ErrSessionNotFound)
}
