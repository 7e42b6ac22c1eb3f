package transport

import (
	"github.com/Keeper-Security/secrets-manager-sub005/internal/crypto"
)

// TransmissionKey is the one-shot symmetric key negotiated for a single
// request/response exchange. It is sealed to the selected server public key,
// used to open exactly one response, then discarded; it is never reused.
type TransmissionKey struct {
	PublicKeyID string
	Key         []byte
	Sealed      []byte
}

// NewTransmissionKey draws 32 random bytes and seals them to the server
// public key named by id.
func NewTransmissionKey(id string, serverKey []byte) (*TransmissionKey, error) {
	key, err := crypto.Random(crypto.KeySize)
	if err != nil {
		return nil, err
	}
	sealed, err := crypto.PublicSeal(serverKey, key)
	if err != nil {
		return nil, err
	}
	return &TransmissionKey{PublicKeyID: id, Key: key, Sealed: sealed}, nil
}

// Destroy wipes the key material once the response has been decrypted.
func (t *TransmissionKey) Destroy() {
	crypto.Zero(t.Key)
}
