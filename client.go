// Package secretsmanager is a device-bound client for the zero-knowledge
// secrets vault. A client holds a per-device identity (EC key pair plus a
// client id derived from a one-time binding secret), fetches records over
// an end-to-end encrypted exchange and decrypts them locally through the
// application/folder/record key cascade. The server never sees plaintext
// or any key that could produce it.
//
// Minimal use:
//
//	sm, err := secretsmanager.New(
//		secretsmanager.WithToken(token),
//		secretsmanager.WithStore(keystore),
//	)
//	tree, err := sm.GetSecrets(ctx)
package secretsmanager

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/Keeper-Security/secrets-manager-sub005/internal/audit"
	"github.com/Keeper-Security/secrets-manager-sub005/internal/cache"
	"github.com/Keeper-Security/secrets-manager-sub005/internal/crypto"
	"github.com/Keeper-Security/secrets-manager-sub005/internal/keystore"
	"github.com/Keeper-Security/secrets-manager-sub005/internal/notation"
	"github.com/Keeper-Security/secrets-manager-sub005/internal/totp"
	"github.com/Keeper-Security/secrets-manager-sub005/internal/transport"
	"github.com/Keeper-Security/secrets-manager-sub005/internal/vault"
)

// regionHosts maps the short region code accepted in tokens and WithHostname
// to the region's API host.
var regionHosts = map[string]string{
	"US":     "keepersecurity.com",
	"EU":     "keepersecurity.eu",
	"AU":     "keepersecurity.com.au",
	"CA":     "keepersecurity.ca",
	"JP":     "keepersecurity.jp",
	"GOV":    "govcloud.keepersecurity.us",
	"US_GOV": "govcloud.keepersecurity.us",
}

type clientConfig struct {
	store      keystore.Store
	hostname   string
	token      string
	cache      cache.Store
	limiter    *rate.Limiter
	logger     *log.Logger
	keyID      string
	httpClient *http.Client
	retry      transport.RetryOptions
	auditSink  io.Writer

	exec vault.Executor // test seam
}

// Option configures New.
type Option func(*clientConfig)

// WithStore selects the identity persistence backend. Defaults to an
// in-memory store, which loses the device binding on exit.
func WithStore(s keystore.Store) Option { return func(c *clientConfig) { c.store = s } }

// WithHostname sets the API host. Accepts a region code ("US", "EU", ...),
// a bare host or a full URL.
func WithHostname(h string) Option { return func(c *clientConfig) { c.hostname = h } }

// WithToken applies a one-time binding token, either "REGION:secret" or the
// bare base64url secret. A token differing from the stored one resets the
// device identity.
func WithToken(t string) Option { return func(c *clientConfig) { c.token = t } }

// WithCache keeps the last successful encrypted response for offline
// fallback.
func WithCache(s cache.Store) Option { return func(c *clientConfig) { c.cache = s } }

// WithLimiter throttles outgoing requests.
func WithLimiter(l *rate.Limiter) Option { return func(c *clientConfig) { c.limiter = l } }

// WithLogger enables library logging; the library is silent without it.
func WithLogger(l *log.Logger) Option { return func(c *clientConfig) { c.logger = l } }

// WithKeyID pins a specific server public key id.
func WithKeyID(id string) Option { return func(c *clientConfig) { c.keyID = id } }

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option { return func(c *clientConfig) { c.httpClient = hc } }

// WithRetry enables backoff on transient network failures. Off by
// default: without it every call makes exactly one attempt.
func WithRetry(opts transport.RetryOptions) Option { return func(c *clientConfig) { c.retry = opts } }

// WithAuditSink mirrors every journal entry to w as one JSON line.
func WithAuditSink(w io.Writer) Option { return func(c *clientConfig) { c.auditSink = w } }

func withExecutor(exec vault.Executor) Option { return func(c *clientConfig) { c.exec = exec } }

// Client is the SDK entry point. Safe for concurrent use.
type Client struct {
	identity *keystore.Identity
	decoder  *vault.Decoder
	journal  *audit.Journal
	retry    transport.RetryOptions
}

// New builds a client from options. The first fetch on a fresh identity
// performs the bind handshake automatically.
func New(opts ...Option) (*Client, error) {
	cfg := clientConfig{retry: transport.RetryOptions{MaxAttempts: 1}}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.store == nil {
		cfg.store = keystore.NewMemoryStore()
	}

	identity := keystore.NewIdentity(cfg.store)
	if cfg.hostname != "" {
		if err := identity.SetHostname(normalizeHost(cfg.hostname)); err != nil {
			return nil, err
		}
	}
	if cfg.token != "" {
		if err := applyToken(identity, cfg.token, cfg.hostname == ""); err != nil {
			return nil, err
		}
	}

	exec := cfg.exec
	if exec == nil {
		var topts []transport.Option
		if cfg.keyID != "" {
			topts = append(topts, transport.WithKeyID(cfg.keyID))
		}
		if cfg.limiter != nil {
			topts = append(topts, transport.WithLimiter(cfg.limiter))
		}
		if cfg.logger != nil {
			topts = append(topts, transport.WithLogger(cfg.logger))
		}
		if cfg.httpClient != nil {
			topts = append(topts, transport.WithHTTPClient(cfg.httpClient))
		}
		exec = transport.New(identity, topts...)
	}

	var dopts []vault.DecoderOption
	if cfg.cache != nil {
		dopts = append(dopts, vault.WithCache(cfg.cache))
	}
	if cfg.logger != nil {
		dopts = append(dopts, vault.WithLogger(cfg.logger))
	}

	journal := audit.New()
	if cfg.auditSink != nil {
		journal = audit.NewWithSink(cfg.auditSink)
	}

	return &Client{
		identity: identity,
		decoder:  vault.NewDecoder(exec, identity, dopts...),
		journal:  journal,
		retry:    cfg.retry,
	}, nil
}

// normalizeHost resolves region codes and strips a scheme prefix down to
// what the transport expects.
func normalizeHost(h string) string {
	if host, ok := regionHosts[strings.ToUpper(strings.TrimSpace(h))]; ok {
		return host
	}
	return strings.TrimSpace(h)
}

// applyToken splits an optional region prefix off the one-time token and
// resets the identity to the token's binding secret.
func applyToken(identity *keystore.Identity, token string, useRegion bool) error {
	region, secret, ok := strings.Cut(token, ":")
	if !ok {
		secret = token
	} else if useRegion {
		if err := identity.SetHostname(normalizeHost(region)); err != nil {
			return err
		}
	}
	raw, err := crypto.DecodeBase64(secret)
	if err != nil {
		return err
	}
	return identity.Rebind(raw)
}

// Journal returns the tamper-evident operation journal.
func (c *Client) Journal() *audit.Journal { return c.journal }

// Bind forces the bind handshake now instead of on first fetch. A no-op on
// an already bound identity.
func (c *Client) Bind(ctx context.Context) error {
	appKey, err := c.identity.AppKey()
	if err != nil {
		return err
	}
	bound := len(appKey) > 0
	if _, err := c.fetch(ctx, nil); err != nil {
		return err
	}
	if !bound {
		c.journal.Record(audit.OpBind, "device bound")
	}
	return nil
}

// GetSecrets fetches and decrypts records. With no uids the whole
// application share comes back; with uids the server filters to those
// records.
func (c *Client) GetSecrets(ctx context.Context, uids ...string) (*Tree, error) {
	return c.fetch(ctx, uids)
}

// GetSecret fetches one record by uid.
func (c *Client) GetSecret(ctx context.Context, uid string) (*Record, error) {
	tree, err := c.fetch(ctx, []string{uid})
	if err != nil {
		return nil, err
	}
	rec := tree.RecordByUID(uid)
	if rec == nil {
		return nil, &NotationError{Notation: uid, Msg: "no record with this uid"}
	}
	if rec.DecodeError != nil {
		return nil, rec.DecodeError
	}
	return rec, nil
}

// GetSecretByTitle fetches the record with the given title. Zero or
// several matches are errors; use GetSecrets to enumerate duplicates.
func (c *Client) GetSecretByTitle(ctx context.Context, title string) (*Record, error) {
	tree, err := c.fetch(ctx, nil)
	if err != nil {
		return nil, err
	}
	matches := tree.RecordsByTitle(title)
	switch len(matches) {
	case 0:
		return nil, &NotationError{Notation: title, Msg: "no record with this title"}
	case 1:
		if matches[0].DecodeError != nil {
			return nil, matches[0].DecodeError
		}
		return matches[0], nil
	default:
		return nil, &NotationError{Notation: title, Msg: "title is ambiguous"}
	}
}

// UpdateSecret writes a modified record back, sealed under its existing
// record key.
func (c *Client) UpdateSecret(ctx context.Context, rec *Record) error {
	err := transport.WithRetry(ctx, c.retry, func(ctx context.Context) error {
		return c.decoder.Update(ctx, rec)
	})
	if err != nil {
		return err
	}
	c.journal.Recordf(audit.OpUpdate, "record %s revision %d", rec.UID, rec.Revision)
	return nil
}

// DownloadFile fetches and decrypts an attached file's content.
func (c *Client) DownloadFile(ctx context.Context, f *File) ([]byte, error) {
	data, err := c.decoder.DownloadFile(ctx, f)
	if err != nil {
		return nil, err
	}
	c.journal.Recordf(audit.OpDownload, "file %s", f.UID)
	return data, nil
}

// DownloadThumbnail fetches and decrypts an attached file's thumbnail.
func (c *Client) DownloadThumbnail(ctx context.Context, f *File) ([]byte, error) {
	data, err := c.decoder.DownloadThumbnail(ctx, f)
	if err != nil {
		return nil, err
	}
	c.journal.Recordf(audit.OpDownload, "thumbnail %s", f.UID)
	return data, nil
}

// Notation resolves a keeper:// query to its text value. A file selector
// yields the decrypted file content.
func (c *Client) Notation(ctx context.Context, query string) (string, error) {
	q, err := notation.Parse(query)
	if err != nil {
		return "", err
	}
	res, err := c.resolve(ctx, q)
	if err != nil {
		return "", err
	}
	if res.File != nil {
		data, err := c.DownloadFile(ctx, res.File)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	c.journal.Record(audit.OpNotation, q.Format())
	return res.Value, nil
}

// TOTPCode resolves a keeper:// query whose value is an otpauth:// URL and
// returns the code for the current time.
func (c *Client) TOTPCode(ctx context.Context, query string) (*totp.Code, error) {
	q, err := notation.Parse(query)
	if err != nil {
		return nil, err
	}
	res, err := c.resolve(ctx, q)
	if err != nil {
		return nil, err
	}
	code, err := totp.GenerateURL(res.Value, time.Now())
	if err != nil {
		return nil, err
	}
	c.journal.Record(audit.OpNotation, q.Format())
	return code, nil
}

func (c *Client) resolve(ctx context.Context, q *notation.Query) (*notation.Result, error) {
	tree, err := c.fetch(ctx, nil)
	if err != nil {
		return nil, err
	}
	return notation.Resolve(tree, q)
}

func (c *Client) fetch(ctx context.Context, uids []string) (*Tree, error) {
	var tree *vault.Tree
	err := transport.WithRetry(ctx, c.retry, func(ctx context.Context) error {
		t, err := c.decoder.Fetch(ctx, uids)
		if err != nil {
			return err
		}
		tree = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.journal.Recordf(audit.OpFetch, "%d records", len(tree.Records))
	return tree, nil
}
