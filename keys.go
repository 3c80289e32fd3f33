package medvault

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// SymmetricKey is implemented by every key in the hierarchy that can drive
// the symmetric cipher. The raw material accessor is unexported so key bytes
// never cross the package boundary except through deliberate escrow or
// wrapping paths.
type SymmetricKey interface {
	// KeyID is a stable non-reversing identifier for the key, safe to store
	// alongside ciphertext.
	KeyID() string

	material() []byte
}

// MasterKey is the ephemeral AES-256 key protecting a patient's full record
// set. It lives only in memory for the duration of a session: it is derived
// at login, zeroed at logout, and has no serialization path by construction.
type MasterKey struct {
	raw [KeySize]byte
	id  string
}

func newMasterKey(raw []byte) *MasterKey {
	mk := &MasterKey{}
	copy(mk.raw[:], raw)
	mk.id = keyFingerprint(mk.raw[:])
	return mk
}

// KeyID returns a short fingerprint of the key, usable as the keyId field of
// an encrypted blob without revealing key material.
func (k *MasterKey) KeyID() string { return k.id }

func (k *MasterKey) material() []byte { return k.raw[:] }

// Equal compares two master keys in constant time.
func (k *MasterKey) Equal(other *MasterKey) bool {
	if k == nil || other == nil {
		return k == other
	}
	return subtle.ConstantTimeCompare(k.raw[:], other.raw[:]) == 1
}

// Zero wipes the key material. The key is unusable afterwards.
func (k *MasterKey) Zero() {
	for i := range k.raw {
		k.raw[i] = 0
	}
	k.id = ""
}

// String redacts the key. Master keys must never appear in logs.
func (k *MasterKey) String() string { return "MasterKey(redacted)" }

// EmergencyKey is the one-way-derived key scoped to the emergency-disclosure
// subset. It cannot be inverted back to the master key it came from, and it
// cannot decrypt anything sealed directly under a master key.
type EmergencyKey struct {
	raw [KeySize]byte
	id  string
}

func newEmergencyKey(raw []byte) *EmergencyKey {
	ek := &EmergencyKey{}
	copy(ek.raw[:], raw)
	ek.id = keyFingerprint(ek.raw[:])
	return ek
}

func (k *EmergencyKey) KeyID() string { return k.id }

func (k *EmergencyKey) material() []byte { return k.raw[:] }

// Equal compares two emergency keys in constant time.
func (k *EmergencyKey) Equal(other *EmergencyKey) bool {
	if k == nil || other == nil {
		return k == other
	}
	return subtle.ConstantTimeCompare(k.raw[:], other.raw[:]) == 1
}

// Bytes returns a copy of the raw key for escrow. Unlike the master key,
// the emergency key is recoverable server-side so break-glass sessions can
// open the emergency blob without a login.
func (k *EmergencyKey) Bytes() []byte {
	out := make([]byte, KeySize)
	copy(out, k.raw[:])
	return out
}

// EmergencyKeyFromBytes reconstructs an escrowed emergency key.
func EmergencyKeyFromBytes(raw []byte) (*EmergencyKey, error) {
	if len(raw) != KeySize {
		return nil, ErrInvalidKeySize
	}
	return newEmergencyKey(raw), nil
}

// Zero wipes the key material.
func (k *EmergencyKey) Zero() {
	for i := range k.raw {
		k.raw[i] = 0
	}
	k.id = ""
}

func (k *EmergencyKey) String() string { return "EmergencyKey(redacted)" }

// keyFingerprint derives a key identifier from key material via SHA-256.
// Eight bytes of hash is enough to disambiguate keys without being usable
// to reconstruct them.
func keyFingerprint(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:8])
}
