package keystore

import (
	bolt "go.etcd.io/bbolt"
)

var identityBucket = []byte("identity")

// BoltStore keeps the identity record in a bbolt file, one key per field.
// bbolt's transactions give the per-field atomicity the Store contract
// requires without an extra mutex.
type BoltStore struct {
	db *bolt.DB
}

func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(identityBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

func (s *BoltStore) Get(f Field) (string, error) {
	var v string
	err := s.db.View(func(tx *bolt.Tx) error {
		v = string(tx.Bucket(identityBucket).Get([]byte(f)))
		return nil
	})
	return v, err
}

func (s *BoltStore) Set(f Field, v string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(identityBucket).Put([]byte(f), []byte(v))
	})
}

func (s *BoltStore) Delete(f Field) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(identityBucket).Delete([]byte(f))
	})
}
