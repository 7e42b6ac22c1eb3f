package crypto

import "encoding/base64"

var b64url = base64.URLEncoding.WithPadding(base64.NoPadding)

// EncodeBase64 renders bytes as unpadded base64url, the encoding used for
// every byte field on the wire and in the persisted identity store.
func EncodeBase64(b []byte) string {
	return b64url.EncodeToString(b)
}

// DecodeBase64 accepts unpadded base64url and, for interoperability with
// stores written by older clients, padded standard base64.
func DecodeBase64(s string) ([]byte, error) {
	if b, err := b64url.DecodeString(s); err == nil {
		return b, nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, opErr("decode base64", err)
	}
	return b, nil
}
