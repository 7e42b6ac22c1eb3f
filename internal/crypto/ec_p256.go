package crypto

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"fmt"
)

// PublicKeySize is the length of a raw uncompressed P-256 point.
const PublicKeySize = 65

// PrivateKey is a device EC key on P-256. The same key signs requests
// (ECDSA) and derives shared secrets (ECDH), mirroring its dual role in
// the protocol.
type PrivateKey struct {
	ec *ecdsa.PrivateKey
}

// GenerateKeyPair creates a fresh P-256 device key.
func GenerateKeyPair() (*PrivateKey, error) {
	k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, opErr("generate keypair", err)
	}
	return &PrivateKey{ec: k}, nil
}

// ParsePrivateKey loads a key previously serialized with Bytes.
func ParsePrivateKey(der []byte) (*PrivateKey, error) {
	k, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, opErr("parse private key", err)
	}
	ec, ok := k.(*ecdsa.PrivateKey)
	if !ok {
		return nil, opErr("parse private key", fmt.Errorf("unexpected key type %T", k))
	}
	return &PrivateKey{ec: ec}, nil
}

// Bytes serializes the key as PKCS#8 DER.
func (k *PrivateKey) Bytes() ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(k.ec)
	if err != nil {
		return nil, opErr("marshal private key", err)
	}
	return der, nil
}

// PublicBytes returns the raw uncompressed public point (65 bytes).
func (k *PrivateKey) PublicBytes() ([]byte, error) {
	pub, err := k.ec.PublicKey.ECDH()
	if err != nil {
		return nil, opErr("export public key", err)
	}
	return pub.Bytes(), nil
}

// Sign produces an ASN.1/DER ECDSA signature over SHA-256(message).
func (k *PrivateKey) Sign(message []byte) ([]byte, error) {
	digest := sha256.Sum256(message)
	sig, err := ecdsa.SignASN1(rand.Reader, k.ec, digest[:])
	if err != nil {
		return nil, opErr("sign", err)
	}
	return sig, nil
}

// SharedSecret derives the symmetric key agreed with the raw peer point:
// SHA-256 of the ECDH output, 32 bytes.
func (k *PrivateKey) SharedSecret(peerRaw []byte) ([]byte, error) {
	priv, err := k.ec.ECDH()
	if err != nil {
		return nil, opErr("shared secret", err)
	}
	return sharedSecret(priv, peerRaw)
}

func sharedSecret(priv *ecdh.PrivateKey, peerRaw []byte) ([]byte, error) {
	peer, err := ecdh.P256().NewPublicKey(peerRaw)
	if err != nil {
		return nil, opErr("shared secret", errors.New("malformed peer point"))
	}
	raw, err := priv.ECDH(peer)
	if err != nil {
		return nil, opErr("shared secret", err)
	}
	sum := sha256.Sum256(raw)
	Zero(raw)
	return sum[:], nil
}

// PublicSeal performs the hybrid seal: an ephemeral P-256 key agrees a
// one-time symmetric key with the recipient point, and the plaintext is
// AEAD-sealed under it. Layout: [ephemeral point(65)||Seal output].
// The client never needs the inverse; only the server can open this.
func PublicSeal(recipientRaw, plaintext []byte) ([]byte, error) {
	eph, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, opErr("public seal", err)
	}
	key, err := sharedSecret(eph, recipientRaw)
	if err != nil {
		return nil, err
	}
	defer Zero(key)
	sealed, err := Seal(key, nil, plaintext)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, PublicKeySize+len(sealed))
	out = append(out, eph.PublicKey().Bytes()...)
	out = append(out, sealed...)
	return out, nil
}

// Hash is the protocol hash, SHA-256.
func Hash(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}
