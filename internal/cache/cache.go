// Package cache stores the last successfully fetched response so callers
// can ride out a network outage. Blobs are opaque ciphertext; the cache
// never sees plaintext or key material on its own.
package cache

import "errors"

var ErrNoCache = errors.New("cache: no cached response")

// Store persists one blob, the most recent response.
type Store interface {
	Save(blob []byte) error
	Load() ([]byte, error)
	Purge() error
}
