// Package totp turns a stored otpauth:// URL into the current one-time
// code. Records carry the provisioning URL as an ordinary field value; the
// server never sees the secret or the generated codes.
package totp

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"hash"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Keeper-Security/secrets-manager-sub005/internal/crypto"
)

const (
	DefaultPeriod = 30 * time.Second
	DefaultDigits = 6
)

// Key is a parsed otpauth:// provisioning URL.
type Key struct {
	Issuer    string
	Account   string
	Secret    string // base32, unpadded
	Algorithm string // SHA1, SHA256 or SHA512
	Digits    int
	Period    time.Duration
}

// Code is one generated value together with its remaining lifetime, so a
// caller can tell whether the code is about to roll over.
type Code struct {
	Value    string
	TimeLeft time.Duration
	Period   time.Duration
}

// ParseURL parses an otpauth:// provisioning URL. Missing algorithm,
// digits and period parameters take the RFC 6238 defaults; a missing
// secret is an error.
func ParseURL(raw string) (*Key, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("totp: parse url: %w", err)
	}
	if u.Scheme != "otpauth" {
		return nil, fmt.Errorf("totp: scheme %q is not otpauth", u.Scheme)
	}
	if u.Host != "totp" {
		return nil, fmt.Errorf("totp: type %q is not totp", u.Host)
	}

	k := &Key{
		Algorithm: "SHA1",
		Digits:    DefaultDigits,
		Period:    DefaultPeriod,
	}

	// Label is "issuer:account" or just "account".
	label := strings.TrimPrefix(u.Path, "/")
	if issuer, account, ok := strings.Cut(label, ":"); ok {
		k.Issuer, k.Account = issuer, strings.TrimSpace(account)
	} else {
		k.Account = label
	}

	q := u.Query()
	k.Secret = strings.ToUpper(strings.TrimSpace(q.Get("secret")))
	if k.Secret == "" {
		return nil, fmt.Errorf("totp: url has no secret")
	}
	if issuer := q.Get("issuer"); issuer != "" {
		k.Issuer = issuer
	}
	if alg := q.Get("algorithm"); alg != "" {
		switch strings.ToUpper(alg) {
		case "SHA1", "SHA256", "SHA512":
			k.Algorithm = strings.ToUpper(alg)
		default:
			return nil, fmt.Errorf("totp: unsupported algorithm %q", alg)
		}
	}
	if d := q.Get("digits"); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil || n < 6 || n > 8 {
			return nil, fmt.Errorf("totp: bad digits %q", d)
		}
		k.Digits = n
	}
	if p := q.Get("period"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("totp: bad period %q", p)
		}
		k.Period = time.Duration(n) * time.Second
	}
	return k, nil
}

// Now returns the code for the current wall-clock time.
func (k *Key) Now() (*Code, error) {
	return k.At(time.Now())
}

// At returns the code for the given moment.
func (k *Key) At(when time.Time) (*Code, error) {
	secret, err := decodeSecret(k.Secret)
	if err != nil {
		return nil, fmt.Errorf("totp: decode secret: %w", err)
	}
	defer crypto.Zero(secret)

	step := int64(k.Period / time.Second)
	counter := when.Unix() / step
	value, err := computeCode(secret, uint64(counter), k.Algorithm, k.Digits)
	if err != nil {
		return nil, err
	}
	return &Code{
		Value:    value,
		TimeLeft: time.Duration(step-when.Unix()%step) * time.Second,
		Period:   k.Period,
	}, nil
}

// GenerateURL is a convenience for callers holding the URL as text.
func GenerateURL(rawURL string, when time.Time) (*Code, error) {
	k, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	return k.At(when)
}

func computeCode(secret []byte, counter uint64, algorithm string, digits int) (string, error) {
	var newHash func() hash.Hash
	switch algorithm {
	case "SHA1":
		newHash = sha1.New
	case "SHA256":
		newHash = sha256.New
	case "SHA512":
		newHash = sha512.New
	default:
		return "", fmt.Errorf("totp: unsupported algorithm %q", algorithm)
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], counter)

	mac := hmac.New(newHash, secret)
	mac.Write(buf[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0F
	trunc := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7FFFFFFF

	mod := uint32(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, trunc%mod), nil
}

func decodeSecret(secret string) ([]byte, error) {
	secret = strings.ToUpper(strings.TrimSpace(secret))
	secret = strings.TrimRight(secret, "=")
	decoder := base32.StdEncoding.WithPadding(base32.NoPadding)
	return decoder.DecodeString(secret)
}
