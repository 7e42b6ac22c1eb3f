package keystore

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	cr "github.com/Keeper-Security/secrets-manager-sub005/internal/crypto"
)

const encStoreInfo = "identity-store/v1"

// encHeader is the cleartext envelope around the sealed identity record.
// KDF parameters ride along so they can be raised without breaking old
// stores.
type encHeader struct {
	Version int    `json:"version"`
	M       uint32 `json:"m"`
	T       uint32 `json:"t"`
	P       uint8  `json:"p"`
	Salt    []byte `json:"salt"`
	Blob    []byte `json:"blob"`
}

// EncryptedFileStore wraps the JSON identity record with
// XChaCha20-Poly1305 under an Argon2id-derived key, for hosts where file
// permissions alone are not trusted.
type EncryptedFileStore struct {
	mu         sync.Mutex
	path       string
	passphrase []byte
}

func NewEncryptedFileStore(path string, passphrase []byte) *EncryptedFileStore {
	return &EncryptedFileStore{path: path, passphrase: append([]byte(nil), passphrase...)}
}

func deriveStoreKey(passphrase []byte, h encHeader) ([]byte, error) {
	raw := argon2.IDKey(passphrase, h.Salt, h.T, h.M, h.P, 32)
	defer cr.Zero(raw)
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, raw, h.Salt, []byte(encStoreInfo)), key); err != nil {
		return nil, err
	}
	return key, nil
}

func sealStore(key []byte, pt []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(pt)+aead.Overhead())
	out = append(out, nonce...)
	return aead.Seal(out, nonce, pt, nil), nil
}

func openStore(key []byte, blob []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	if len(blob) < chacha20poly1305.NonceSizeX {
		return nil, errors.New("keystore: sealed store too short")
	}
	return aead.Open(nil, blob[:chacha20poly1305.NonceSizeX], blob[chacha20poly1305.NonceSizeX:], nil)
}

func (s *EncryptedFileStore) load() (map[Field]string, error) {
	doc := make(map[Field]string)
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, err
	}
	var h encHeader
	if err := json.Unmarshal(b, &h); err != nil {
		return nil, err
	}
	key, err := deriveStoreKey(s.passphrase, h)
	if err != nil {
		return nil, err
	}
	defer cr.Zero(key)
	pt, err := openStore(key, h.Blob)
	if err != nil {
		return nil, errors.New("keystore: cannot open identity store (wrong passphrase?)")
	}
	defer cr.Zero(pt)
	if err := json.Unmarshal(pt, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *EncryptedFileStore) save(doc map[Field]string) error {
	pt, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	defer cr.Zero(pt)

	h := encHeader{Version: 1, M: 64 * 1024, T: 3, P: 2}
	h.Salt = make([]byte, 32)
	if _, err := rand.Read(h.Salt); err != nil {
		return err
	}
	key, err := deriveStoreKey(s.passphrase, h)
	if err != nil {
		return err
	}
	defer cr.Zero(key)
	if h.Blob, err = sealStore(key, pt); err != nil {
		return err
	}

	b, err := json.Marshal(h)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.path, b, 0o600)
}

func (s *EncryptedFileStore) Get(f Field) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return "", err
	}
	return doc[f], nil
}

func (s *EncryptedFileStore) Set(f Field, v string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	doc[f] = v
	return s.save(doc)
}

func (s *EncryptedFileStore) Delete(f Field) error {
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
