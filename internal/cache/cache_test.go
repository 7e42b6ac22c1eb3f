package cache

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
)

func TestStores(t *testing.T) {
	dir := t.TempDir()
	boltStore, err := OpenBoltStore(filepath.Join(dir, "cache.db"))
	if err != nil {
		t.Fatalf("open bolt: %v", err)
	}
	t.Cleanup(func() { boltStore.Close() })

	for name, s := range map[string]Store{
		"file": NewFileStore(filepath.Join(dir, "cache.bin")),
		"bolt": boltStore,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Load(); !errors.Is(err, ErrNoCache) {
				t.Fatalf("empty load err = %v, want ErrNoCache", err)
			}
			blob := []byte{1, 2, 3, 4}
			if err := s.Save(blob); err != nil {
				t.Fatalf("save: %v", err)
			}
			got, err := s.Load()
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if !bytes.Equal(blob, got) {
				t.Fatal("blob mismatch")
			}
			if err := s.Purge(); err != nil {
				t.Fatalf("purge: %v", err)
			}
			if _, err := s.Load(); !errors.Is(err, ErrNoCache) {
				t.Fatalf("load after purge err = %v", err)
			}
			if err := s.Purge(); err != nil {
				t.Fatalf("second purge: %v", err)
			}
		})
	}
}
