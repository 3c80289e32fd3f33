package medvault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// Encrypt seals a payload under the supplied key with AES-256-GCM.
//
// A fresh 96-bit nonce is generated internally on every call; there is no
// way for a caller to supply one, which is what rules out nonce reuse under
// a fixed key. The returned blob carries no plaintext metadata beyond the
// algorithm name and a key fingerprint.
func Encrypt(plaintext []byte, key SymmetricKey) (*EncryptedBlob, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("%w: nonce generation: %v", ErrEncryptionFailed, err)
	}

	return &EncryptedBlob{
		Ciphertext: gcm.Seal(nil, nonce, plaintext, nil),
		IV:         nonce,
		Algorithm:  AlgorithmAESGCM,
		KeyID:      key.KeyID(),
	}, nil
}

// Decrypt opens a blob sealed by Encrypt. A wrong key, corruption, or
// tampering all surface identically as ErrDecryptionFailed on the GCM tag
// check; the failure is definitive and must not be retried, since masking it
// could hide active tampering.
func Decrypt(blob *EncryptedBlob, key SymmetricKey) ([]byte, error) {
	if blob == nil {
		return nil, fmt.Errorf("%w: nil blob", ErrDecryptionFailed)
	}
	if blob.Algorithm != AlgorithmAESGCM {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrDecryptionFailed, blob.Algorithm)
	}
	if len(blob.IV) != NonceSize {
		return nil, fmt.Errorf("%w: bad nonce length %d", ErrDecryptionFailed, len(blob.IV))
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, blob.IV, blob.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication tag mismatch", ErrDecryptionFailed)
	}
	return plaintext, nil
}

func newGCM(key SymmetricKey) (cipher.AEAD, error) {
	raw := key.material()
	if len(raw) != KeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeySize, KeySize, len(raw))
	}
	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
