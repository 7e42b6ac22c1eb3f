package keystore

import "sync"

// MemoryStore keeps the identity record in process memory. Useful for tests
// and for callers that inject a pre-built configuration and never persist.
type MemoryStore struct {
	mu     sync.RWMutex
	fields map[Field]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{fields: make(map[Field]string)}
}

func (m *MemoryStore) Get(f Field) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fields[f], nil
}

func (m *MemoryStore) Set(f Field, v string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fields[f] = v
	return nil
}

func (m *MemoryStore) Delete(f Field) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.fields, f)
	return nil
}
