package secretsmanager

import (
	"github.com/Keeper-Security/secrets-manager-sub005/internal/cache"
	"github.com/Keeper-Security/secrets-manager-sub005/internal/crypto"
	"github.com/Keeper-Security/secrets-manager-sub005/internal/keystore"
	"github.com/Keeper-Security/secrets-manager-sub005/internal/notation"
	"github.com/Keeper-Security/secrets-manager-sub005/internal/totp"
	"github.com/Keeper-Security/secrets-manager-sub005/internal/transport"
	"github.com/Keeper-Security/secrets-manager-sub005/internal/vault"
)

// Decoded model.
type (
	Tree   = vault.Tree
	Record = vault.Record
	Folder = vault.Folder
	Field  = vault.Field
	File   = vault.File
)

// Error taxonomy. All support errors.As.
type (
	ConfigError   = keystore.ConfigError
	CryptoError   = crypto.Error
	NetworkError  = transport.NetworkError
	BindError     = vault.BindError
	NotationError = notation.Error
)

// Notation model, for callers that parse queries up front.
type (
	NotationQuery  = notation.Query
	NotationResult = notation.Result
	TOTPCode       = totp.Code
)

// ParseNotation parses a keeper:// query without resolving it.
func ParseNotation(query string) (*NotationQuery, error) { return notation.Parse(query) }

// ResolveNotation resolves a parsed query against an already fetched tree.
func ResolveNotation(tree *Tree, q *NotationQuery) (*NotationResult, error) {
	return notation.Resolve(tree, q)
}

// RetryOptions re-exports the transport backoff knobs for WithRetry.
type RetryOptions = transport.RetryOptions

// DefaultRetryOptions is a reasonable backoff to hand to WithRetry.
func DefaultRetryOptions() RetryOptions { return transport.DefaultRetryOptions() }

// Identity store backends.
type Store = keystore.Store

// NewMemoryStore keeps the identity in memory only.
func NewMemoryStore() Store { return keystore.NewMemoryStore() }

// NewFileStore keeps the identity in a plaintext JSON file with 0600 perms.
func NewFileStore(path string) Store { return keystore.NewFileStore(path) }

// NewEncryptedFileStore keeps the identity in a passphrase-encrypted file.
func NewEncryptedFileStore(path string, passphrase []byte) Store {
	return keystore.NewEncryptedFileStore(path, passphrase)
}

// NewKeyringStore keeps the identity in the OS keyring under the given
// account name.
func NewKeyringStore(account string) Store { return keystore.NewKeyringStore(account) }

// OpenBoltStore keeps the identity in a bbolt database file.
func OpenBoltStore(path string) (Store, error) { return keystore.OpenBoltStore(path) }

// Offline response cache backends for WithCache.
type CacheStore = cache.Store

// NewFileCache stores the latest encrypted response in a single file.
func NewFileCache(path string) CacheStore { return cache.NewFileStore(path) }

// OpenBoltCache stores the latest encrypted response in a bbolt database.
func OpenBoltCache(path string) (CacheStore, error) { return cache.OpenBoltStore(path) }
