package medvault

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
)

// WrapMasterKey encrypts the raw master key under a doctor's RSA public key
// with OAEP. The result is safe to persist server-side as an opaque
// capability: without the matching private key it is useless, so the server
// operator never gains the ability to read patient records.
//
// The public key must come from the authenticated identity collaborator,
// never from the client requesting access.
func WrapMasterKey(mk *MasterKey, pub *rsa.PublicKey) ([]byte, error) {
	if mk == nil {
		return nil, fmt.Errorf("%w: nil master key", ErrInvalidKeySize)
	}
	if pub == nil {
		return nil, fmt.Errorf("%w: nil public key", ErrWeakPublicKey)
	}
	if pub.N.BitLen() < MinRSABits {
		return nil, fmt.Errorf("%w: got %d bits, need at least %d",
			ErrWeakPublicKey, pub.N.BitLen(), MinRSABits)
	}

	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, mk.material(), wrapLabel())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	return wrapped, nil
}

// UnwrapMasterKey recovers a wrapped master key on the doctor's own device.
// This is the only place the wrapped capability turns back into usable key
// material, and it requires the private half that never left that device.
func UnwrapMasterKey(wrapped []byte, priv *rsa.PrivateKey) (*MasterKey, error) {
	if priv == nil {
		return nil, fmt.Errorf("%w: nil private key", ErrDecryptionFailed)
	}
	raw, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrapped, wrapLabel())
	if err != nil {
		return nil, fmt.Errorf("%w: OAEP unwrap rejected", ErrDecryptionFailed)
	}
	if len(raw) != KeySize {
		return nil, fmt.Errorf("%w: unwrapped %d bytes", ErrInvalidKeySize, len(raw))
	}
	return newMasterKey(raw), nil
}

// wrapLabel binds OAEP ciphertexts to this use. A wrapped master key cannot
// be replayed into some other OAEP decryption context.
func wrapLabel() []byte { return []byte("medvault/master-key-grant/v1") }
