package medvault_test

import (
	"testing"

	"github.com/hengadev/medvault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEmergencyData() *medvault.EmergencyData {
	return &medvault.EmergencyData{
		BloodGroup:          "O-",
		Allergies:           []string{"penicillin"},
		CriticalMedications: []string{"insulin"},
		ActiveConditions:    []string{"type 1 diabetes"},
		Contacts: []medvault.EmergencyContact{
			{Name: "Jordan Lee", Relation: "partner", Phone: "+33123456789"},
		},
	}
}

func TestDeriveEmergencyKeyDeterminism(t *testing.T) {
	mk := deriveTestKey(t, "123456")

	e1, err := medvault.DeriveEmergencyKey(mk)
	require.NoError(t, err)
	e2, err := medvault.DeriveEmergencyKey(mk)
	require.NoError(t, err)

	assert.True(t, e1.Equal(e2), "same master key must re-derive the same emergency key")
}

func TestEmergencyKeyCannotOpenMasterKeyBlob(t *testing.T) {
	mk := deriveTestKey(t, "123456")
	ek, err := medvault.DeriveEmergencyKey(mk)
	require.NoError(t, err)

	blob, err := medvault.Encrypt([]byte("full medical record"), mk)
	require.NoError(t, err)

	plaintext, err := medvault.Decrypt(blob, ek)
	assert.ErrorIs(t, err, medvault.ErrDecryptionFailed,
		"the derived key is a strictly weaker capability")
	assert.Nil(t, plaintext)
}

func TestSealOpenEmergencyData(t *testing.T) {
	mk := deriveTestKey(t, "123456")
	ek, err := medvault.DeriveEmergencyKey(mk)
	require.NoError(t, err)

	data := testEmergencyData()
	blob, err := medvault.SealEmergencyData(data, ek)
	require.NoError(t, err)

	opened, err := medvault.OpenEmergencyData(blob, ek)
	require.NoError(t, err)
	assert.Equal(t, data, opened)
}

func TestSealEmergencyDataRejectsInvalidProfile(t *testing.T) {
	mk := deriveTestKey(t, "123456")
	ek, err := medvault.DeriveEmergencyKey(mk)
	require.NoError(t, err)

	tests := []struct {
		name string
		data *medvault.EmergencyData
	}{
		{
			name: "unknown blood group",
			data: &medvault.EmergencyData{BloodGroup: "X+"},
		},
		{
			name: "contact without phone",
			data: &medvault.EmergencyData{
				Contacts: []medvault.EmergencyContact{{Name: "Jordan Lee"}},
			},
		},
		{
			name: "contact without name",
			data: &medvault.EmergencyData{
				Contacts: []medvault.EmergencyContact{{Phone: "+33123456789"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := medvault.SealEmergencyData(tt.data, ek)
			assert.ErrorIs(t, err, medvault.ErrInvalidConfiguration)
		})
	}
}

func TestEmergencyKeyFromBytes(t *testing.T) {
	mk := deriveTestKey(t, "123456")
	ek, err := medvault.DeriveEmergencyKey(mk)
	require.NoError(t, err)

	restored, err := medvault.EmergencyKeyFromBytes(ek.Bytes())
	require.NoError(t, err)
	assert.True(t, ek.Equal(restored))

	_, err = medvault.EmergencyKeyFromBytes([]byte("too short"))
	assert.ErrorIs(t, err, medvault.ErrInvalidKeySize)
}
