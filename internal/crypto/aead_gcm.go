package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
)

const (
	// KeySize is the length of every symmetric key in the protocol:
	// transmission, application, folder, record and file keys.
	KeySize = 32
	// NonceSize is the AES-GCM nonce length prepended to every blob.
	NonceSize = 12
	// TagSize is the AES-GCM authentication tag length.
	TagSize = 16
)

var (
	ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")
	ErrBadKeyLength       = errors.New("crypto: bad key length")
)

// Random returns n cryptographically secure random bytes.
func Random(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, opErr("random", err)
	}
	return b, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrBadKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, opErr("new cipher", err)
	}
	return cipher.NewGCM(block)
}

// Seal encrypts plaintext with AES-256-GCM under key. A fresh 96-bit nonce
// is generated when nonce is nil. Returned layout: [nonce||ciphertext||tag].
func Seal(key, nonce, plaintext []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if nonce == nil {
		if nonce, err = Random(NonceSize); err != nil {
			return nil, err
		}
	}
	if len(nonce) != NonceSize {
		return nil, opErr("seal", errors.New("bad nonce length"))
	}
	out := make([]byte, 0, NonceSize+len(plaintext)+TagSize)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, nil), nil
}

// Open decrypts a blob previously produced by Seal. Authentication failure
// or a blob shorter than nonce+tag yields an error, never garbage.
func Open(key, blob []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(blob) < NonceSize+TagSize {
		return nil, ErrCiphertextTooShort
	}
	pt, err := aead.Open(nil, blob[:NonceSize], blob[NonceSize:], nil)
	if err != nil {
		return nil, opErr("open", err)
	}
	return pt, nil
}
