// Package transport performs the single self-contained request/response
// exchange of the protocol: negotiate a one-shot transmission key, seal it
// to an embedded server public key, encrypt and sign the request body, and
// decrypt the response. No connection state survives a call.
package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/Keeper-Security/secrets-manager-sub005/internal/crypto"
	"github.com/Keeper-Security/secrets-manager-sub005/internal/keystore"
)

const basePath = "/api/rest/sm/v1/"

// Client executes signed, encrypted exchanges against one hostname. It is
// safe for concurrent use; every call negotiates its own transmission key
// and shares no cryptographic material with other in-flight calls.
type Client struct {
	identity *keystore.Identity
	hc       *http.Client
	keyID    string
	limiter  *rate.Limiter
	logger   *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client, used by tests and
// by callers with custom TLS or proxy needs.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// WithKeyID pins the server public key the transmission key is sealed to.
func WithKeyID(id string) Option {
	return func(c *Client) { c.keyID = id }
}

// WithLimiter throttles outgoing requests. Waiting respects the request
// context, so cancellation is honored while queued.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithLogger attaches a logger; the client is silent without one.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func New(identity *keystore.Identity, opts ...Option) *Client {
	c := &Client{
		identity: identity,
		hc:       &http.Client{Timeout: 60 * time.Second},
		keyID:    DefaultKeyID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// KeyID reports the pinned server public key id.
func (c *Client) KeyID() string { return c.keyID }

// Response is a decrypted exchange result. Key is the transmission key the
// response was opened with; the decoder needs it when a bind transition
// triggers the one follow-up fetch.
type Response struct {
	Data []byte
	Key  *TransmissionKey
}

func (c *Client) url(endpoint string) (string, error) {
	host, err := c.identity.Hostname()
	if err != nil {
		return "", err
	}
	if host == "" {
		return "", &keystore.ConfigError{Field: keystore.FieldHostname}
	}
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	return strings.TrimRight(host, "/") + basePath + endpoint, nil
}

// Execute performs one exchange: body is sealed under a fresh transmission
// key, the sealed key and ciphertext are signed with the device private
// key, and a 200 response body is opened under the same transmission key.
// Non-200 responses carry plaintext and surface as NetworkError.
func (c *Client) Execute(ctx context.Context, endpoint string, body []byte) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	serverKey, err := ServerPublicKey(c.keyID)
	if err != nil {
		return nil, err
	}
	tk, err := NewTransmissionKey(c.keyID, serverKey)
	if err != nil {
		return nil, err
	}

	encrypted, err := crypto.Seal(tk.Key, nil, body)
	if err != nil {
		return nil, err
	}

	priv, err := c.identity.PrivateKey()
	if err != nil {
		return nil, err
	}
	toSign := make([]byte, 0, len(tk.Sealed)+len(encrypted))
	toSign = append(toSign, tk.Sealed...)
	toSign = append(toSign, encrypted...)
	sig, err := priv.Sign(toSign)
	if err != nil {
		return nil, err
	}

	u, err := c.url(endpoint)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(encrypted))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("PublicKeyId", tk.PublicKeyID)
	req.Header.Set("TransmissionKey", crypto.EncodeBase64(tk.Sealed))
	req.Header.Set("Authorization", "Signature "+crypto.EncodeBase64(sig))

	if c.logger != nil {
		c.logger.Debug("executing request", "endpoint", endpoint, "keyId", tk.PublicKeyID)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		// An aborted request never reaches decryption.
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		if c.logger != nil {
			c.logger.Warn("request failed", "endpoint", endpoint, "status", resp.StatusCode)
		}
		return nil, &NetworkError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if len(raw) == 0 {
		return &Response{Key: tk}, nil
	}
	pt, err := crypto.Open(tk.Key, raw)
	if err != nil {
		return nil, err
	}
	return &Response{Data: pt, Key: tk}, nil
}

// Download fetches an already-encrypted blob from an absolute URL, as used
// for file and thumbnail content. The body is ciphertext under a file key
// the caller already holds; this helper does not decrypt.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &NetworkError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return raw, nil
}
