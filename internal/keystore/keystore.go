// Package keystore persists the device identity: the binding secret handed
// out at enrollment, the durable application key unlocked by it, the device
// private key and the service hostname. Exactly one record exists per store;
// every accessor is atomic with respect to other callers of the same store.
package keystore

import (
	"bytes"
	"sync"

	"github.com/Keeper-Security/secrets-manager-sub005/internal/crypto"
)

// Field names the slots of the persisted identity record. Byte-valued
// fields are stored base64url-encoded; nothing is ever persisted raw.
type Field string

const (
	FieldHostname      Field = "hostname"
	FieldClientID      Field = "clientId"
	FieldClientKey     Field = "clientKey" // one-time binding secret
	FieldClientKeyHash Field = "clientKeyHash" // hash of the consumed secret
	FieldAppKey        Field = "appKey"
	FieldPrivateKey    Field = "privateKey"
)

var allFields = []Field{FieldHostname, FieldClientID, FieldClientKey, FieldClientKeyHash, FieldAppKey, FieldPrivateKey}

// Store is a single persisted identity record. Implementations must make
// each call atomic: a concurrent reader sees either the previous or the new
// value of a field, never a partial write.
type Store interface {
	Get(field Field) (string, error)
	Set(field Field, value string) error
	Delete(field Field) error
}

// Identity wraps a Store with typed accessors and the binding lifecycle.
// The mutex serializes first-bind and rebind writes so two racing callers
// cannot interleave the clear-then-store sequence.
type Identity struct {
	mu    sync.Mutex
	store Store
}

func NewIdentity(store Store) *Identity {
	return &Identity{store: store}
}

func (id *Identity) getBytes(f Field) ([]byte, error) {
	s, err := id.store.Get(f)
	if err != nil {
		return nil, err
	}
	if s == "" {
		return nil, nil
	}
	return crypto.DecodeBase64(s)
}

func (id *Identity) setBytes(f Field, b []byte) error {
	return id.store.Set(f, crypto.EncodeBase64(b))
}

func (id *Identity) Hostname() (string, error) {
	return id.store.Get(FieldHostname)
}

func (id *Identity) SetHostname(h string) error {
	return id.store.Set(FieldHostname, h)
}

// ClientID returns the device id, failing when the device has never been
// bound or seeded.
func (id *Identity) ClientID() ([]byte, error) {
	b, err := id.getBytes(FieldClientID)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, &ConfigError{Field: FieldClientID}
	}
	return b, nil
}

// BindingSecret returns the one-time binding secret, or nil when it has
// already been consumed and removed.
func (id *Identity) BindingSecret() ([]byte, error) {
	return id.getBytes(FieldClientKey)
}

// AppKey returns the durable application key, or nil before first bind.
func (id *Identity) AppKey() ([]byte, error) {
	return id.getBytes(FieldAppKey)
}

// RequireAppKey is AppKey for callers that cannot proceed without it.
func (id *Identity) RequireAppKey() ([]byte, error) {
	b, err := id.AppKey()
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, &ConfigError{Field: FieldAppKey}
	}
	return b, nil
}

// SetAppKey persists the application key established during bind.
func (id *Identity) SetAppKey(key []byte) error {
	id.mu.Lock()
	defer id.mu.Unlock()
	return id.setBytes(FieldAppKey, key)
}

// SetClientID persists a rotated device id handed back by the server after
// a successful bind.
func (id *Identity) SetClientID(b []byte) error {
	id.mu.Lock()
	defer id.mu.Unlock()
	return id.setBytes(FieldClientID, b)
}

// PrivateKey loads the device private key, generating and persisting a
// fresh one when none exists yet.
func (id *Identity) PrivateKey() (*crypto.PrivateKey, error) {
	id.mu.Lock()
	defer id.mu.Unlock()
	der, err := id.getBytes(FieldPrivateKey)
	if err != nil {
		return nil, err
	}
	if len(der) > 0 {
		return crypto.ParsePrivateKey(der)
	}
	k, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	der, err = k.Bytes()
	if err != nil {
		return nil, err
	}
	if err := id.setBytes(FieldPrivateKey, der); err != nil {
		return nil, err
	}
	return k, nil
}

// Rebind installs a binding secret. A secret matching the stored one, or
// the recorded hash of an already-consumed one, is a no-op, so repeated
// initialization with the same token never disturbs a bound identity. Any
// other secret resets the device: application key and private key are
// cleared and the device id becomes the hash of the new secret.
func (id *Identity) Rebind(newSecret []byte) error {
	if len(newSecret) == 0 {
		return &ConfigError{Field: FieldClientKey}
	}
	id.mu.Lock()
	defer id.mu.Unlock()

	cur, err := id.getBytes(FieldClientKey)
	if err != nil {
		return err
	}
	if bytes.Equal(cur, newSecret) {
		return nil
	}
	if len(cur) == 0 {
		consumed, err := id.getBytes(FieldClientKeyHash)
		if err != nil {
			return err
		}
		if len(consumed) > 0 && bytes.Equal(consumed, crypto.Hash(newSecret)) {
			return nil
		}
	}
	if err := id.store.Delete(FieldAppKey); err != nil {
		return err
	}
	if err := id.store.Delete(FieldPrivateKey); err != nil {
		return err
	}
	if err := id.store.Delete(FieldClientKeyHash); err != nil {
		return err
	}
	if err := id.setBytes(FieldClientKey, newSecret); err != nil {
		return err
	}
	return id.setBytes(FieldClientID, crypto.Hash(newSecret))
}

// ConsumeBindingSecret removes the one-time secret after a successful
// bind, leaving its hash behind so a later Rebind with the same token can
// still be recognized as a no-op.
func (id *Identity) ConsumeBindingSecret() error {
	id.mu.Lock()
	defer id.mu.Unlock()
	cur, err := id.getBytes(FieldClientKey)
	if err != nil {
		return err
	}
	if len(cur) > 0 {
		if err := id.setBytes(FieldClientKeyHash, crypto.Hash(cur)); err != nil {
			return err
		}
	}
	return id.store.Delete(FieldClientKey)
}
