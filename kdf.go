package medvault

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

// KDFParams defines the parameters for master-key derivation.
type KDFParams struct {
	// Iterations is the PBKDF2-HMAC-SHA-256 round count.
	Iterations int
	// SaltLength is the length in bytes of the per-patient salt expanded
	// from the service pepper.
	SaltLength int
}

// DefaultKDFParams returns the recommended derivation parameters.
func DefaultKDFParams() *KDFParams {
	return &KDFParams{
		Iterations: DefaultKDFIterations,
		SaltLength: 32,
	}
}

func (p *KDFParams) Validate() error {
	if p.Iterations < MinKDFIterations {
		return fmt.Errorf("%w: KDF iterations %d below minimum %d",
			ErrInvalidConfiguration, p.Iterations, MinKDFIterations)
	}
	if p.SaltLength < 16 {
		return fmt.Errorf("%w: KDF salt length %d below minimum 16",
			ErrInvalidConfiguration, p.SaltLength)
	}
	return nil
}

// DeriveMasterKey transforms the two low-entropy login secrets into the
// session master key. The derivation is deterministic: the same identifier,
// code and pepper always re-derive bit-identical key material, which is what
// lets a returning patient decrypt records sealed in earlier sessions.
//
// The identifier is validated structurally before any KDF work runs. The
// caller is responsible for only invoking this as the final step of a fully
// verified login; a stale or unverified code must never reach this function.
func DeriveMasterKey(identifier, code string, pepper []byte, params *KDFParams) (*MasterKey, error) {
	id, err := ParseCareID(identifier)
	if err != nil {
		return nil, err
	}
	if !validOneTimeCode(code) {
		return nil, fmt.Errorf("%w: one-time code must be %d digits",
			ErrAuthenticationFailed, OneTimeCodeLength)
	}
	if err := validatePepper(pepper); err != nil {
		return nil, err
	}
	if params == nil {
		params = DefaultKDFParams()
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	salt, err := patientSalt(id, pepper, params.SaltLength)
	if err != nil {
		return nil, err
	}

	raw := pbkdf2.Key([]byte(code), salt, params.Iterations, KeySize, sha256.New)
	return newMasterKey(raw), nil
}

// patientSalt expands the service pepper into a stable per-patient salt.
// Binding the salt to the identifier keeps derivations for different
// patients in disjoint domains even when codes collide.
func patientSalt(id CareID, pepper []byte, length int) ([]byte, error) {
	r := hkdf.New(sha256.New, pepper, nil, []byte(saltInfo+":"+id.String()))
	salt := make([]byte, length)
	if _, err := io.ReadFull(r, salt); err != nil {
		return nil, fmt.Errorf("failed to expand patient salt: %w", err)
	}
	return salt, nil
}

func validatePepper(pepper []byte) error {
	if len(pepper) != PepperLength {
		return fmt.Errorf("%w: pepper must be %d bytes, got %d",
			ErrInvalidConfiguration, PepperLength, len(pepper))
	}
	allZero := true
	for _, b := range pepper {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return ErrUninitializedPepper
	}
	return nil
}
