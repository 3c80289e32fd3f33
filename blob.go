package medvault

import (
	"encoding/json"
	"fmt"
)

// EncryptedBlob is the self-describing sealed form of a payload. It is
// opaque to any storage layer: nothing in it reveals the content type or
// document category of what it protects.
type EncryptedBlob struct {
	Ciphertext []byte `json:"ciphertext"`
	IV         []byte `json:"iv"`
	Algorithm  string `json:"algorithm"`
	KeyID      string `json:"key_id"`
}

// Marshal serializes the blob for an opaque blob store.
func (b *EncryptedBlob) Marshal() ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize blob: %w", err)
	}
	return data, nil
}

// UnmarshalBlob deserializes bytes previously produced by Marshal.
func UnmarshalBlob(data []byte) (*EncryptedBlob, error) {
	var b EncryptedBlob
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: malformed blob envelope", ErrDecryptionFailed)
	}
	return &b, nil
}
