package medvault

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"

	"github.com/hengadev/errsx"
	"golang.org/x/crypto/hkdf"
)

// DeriveEmergencyKey produces the strictly weaker key protecting only the
// emergency-disclosure subset. HKDF-Expand with a fixed, distinct context
// label makes the derivation one-way: holding the emergency key gives an
// attacker nothing towards reconstructing the master key, and because the
// two keys differ, an emergency key can never open a blob sealed directly
// under the master key.
func DeriveEmergencyKey(mk *MasterKey) (*EmergencyKey, error) {
	if mk == nil {
		return nil, fmt.Errorf("%w: nil master key", ErrInvalidKeySize)
	}
	r := hkdf.Expand(sha256.New, mk.material(), []byte(emergencyKeyInfo))
	raw := make([]byte, KeySize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("failed to expand emergency key: %w", err)
	}
	return newEmergencyKey(raw), nil
}

// EmergencyData is the partial-disclosure profile a first responder is
// allowed to see during break-glass access. Nothing outside these fields is
// ever sealed under the emergency key.
type EmergencyData struct {
	BloodGroup          string             `json:"blood_group"`
	Allergies           []string           `json:"allergies"`
	CriticalMedications []string           `json:"critical_medications"`
	ActiveConditions    []string           `json:"active_conditions"`
	Contacts            []EmergencyContact `json:"contacts"`
}

// EmergencyContact is a person to notify when break-glass access fires.
type EmergencyContact struct {
	Name     string `json:"name"`
	Relation string `json:"relation"`
	Phone    string `json:"phone"`
}

var validBloodGroups = map[string]bool{
	"A+": true, "A-": true, "B+": true, "B-": true,
	"AB+": true, "AB-": true, "O+": true, "O-": true,
}

func (d *EmergencyData) Validate() error {
	var errs errsx.Map
	if d.BloodGroup != "" && !validBloodGroups[d.BloodGroup] {
		errs.Set("blood_group", fmt.Sprintf("unrecognized blood group %q", d.BloodGroup))
	}
	for i, c := range d.Contacts {
		if c.Name == "" {
			errs.Set(fmt.Sprintf("contacts[%d].name", i), "contact name is required")
		}
		if c.Phone == "" {
			errs.Set(fmt.Sprintf("contacts[%d].phone", i), "contact phone is required")
		}
	}
	return errs.AsError()
}

// SealEmergencyData encrypts the profile under an emergency key, never a
// master key. Called on every profile edit during a normal session so the
// stored blob always matches the freshest derivation.
func SealEmergencyData(data *EmergencyData, ek *EmergencyKey) (*EncryptedBlob, error) {
	if err := data.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	plaintext, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize emergency profile: %w", err)
	}
	return Encrypt(plaintext, ek)
}

// OpenEmergencyData decrypts an emergency profile blob with the emergency
// key. This is the only decryption path a break-glass session can reach.
func OpenEmergencyData(blob *EncryptedBlob, ek *EmergencyKey) (*EmergencyData, error) {
	plaintext, err := Decrypt(blob, ek)
	if err != nil {
		return nil, err
	}
	var data EmergencyData
	if err := json.Unmarshal(plaintext, &data); err != nil {
		return nil, fmt.Errorf("%w: malformed emergency profile", ErrDecryptionFailed)
	}
	return &data, nil
}
