package keystore

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/zalando/go-keyring"
)

const keyringService = "keeper-secrets-manager"

// KeyringStore keeps the identity record as a single JSON item in the OS
// keyring (Keychain, Secret Service, Credential Manager). The account name
// lets one machine hold identities for several applications.
type KeyringStore struct {
	mu      sync.Mutex
	account string
}

func NewKeyringStore(account string) *KeyringStore {
	return &KeyringStore{account: account}
}

func (s *KeyringStore) load() (map[Field]string, error) {
	doc := make(map[Field]string)
	raw, err := keyring.Get(keyringService, s.account)
	if errors.Is(err, keyring.ErrNotFound) {
		return doc, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *KeyringStore) save(doc map[Field]string) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return keyring.Set(keyringService, s.account, string(b))
}

func (s *KeyringStore) Get(f Field) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return "", err
	}
	return doc[f], nil
}

func (s *KeyringStore) Set(f Field, v string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	doc[f] = v
	return s.save(doc)
}

func (s *KeyringStore) Delete(f Field) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := doc[f]; !ok {
		return nil
	}
	delete(doc, f)
	return s.save(doc)
}
