package transport

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Keeper-Security/secrets-manager-sub005/internal/crypto"
	"github.com/Keeper-Security/secrets-manager-sub005/internal/keystore"
)

// testServer is a minimal stand-in for the vault service: it unseals the
// transmission key with its private key and answers under it.
type testServer struct {
	priv *ecdh.PrivateKey
	ts   *httptest.Server
}

func newTestServer(t *testing.T, keyID string, handle func(payload []byte) ([]byte, int)) *testServer {
	t.Helper()
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("server key: %v", err)
	}
	srv := &testServer{priv: priv}

	prev, had := serverPublicKeys[keyID]
	serverPublicKeys[keyID] = crypto.EncodeBase64(priv.PublicKey().Bytes())
	t.Cleanup(func() {
		if had {
			serverPublicKeys[keyID] = prev
		} else {
			delete(serverPublicKeys, keyID)
		}
	})

	srv.ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tk := srv.unseal(t, r)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		pt, err := crypto.Open(tk, body)
		if err != nil {
			t.Errorf("open request payload: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		out, status := handle(pt)
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write(out)
			return
		}
		ct, err := crypto.Seal(tk, nil, out)
		if err != nil {
			t.Errorf("seal response: %v", err)
			return
		}
		w.Write(ct)
	}))
	t.Cleanup(srv.ts.Close)
	return srv
}

func (s *testServer) unseal(t *testing.T, r *http.Request) []byte {
	t.Helper()
	sealed, err := crypto.DecodeBase64(r.Header.Get("TransmissionKey"))
	if err != nil {
		t.Fatalf("decode transmission key header: %v", err)
	}
	eph, err := ecdh.P256().NewPublicKey(sealed[:crypto.PublicKeySize])
	if err != nil {
		t.Fatalf("parse ephemeral: %v", err)
	}
	raw, err := s.priv.ECDH(eph)
	if err != nil {
		t.Fatalf("ecdh: %v", err)
	}
	sum := sha256.Sum256(raw)
	tk, err := crypto.Open(sum[:], sealed[crypto.PublicKeySize:])
	if err != nil {
		t.Fatalf("open sealed transmission key: %v", err)
	}
	return tk
}

func testIdentity(t *testing.T, hostname string) *keystore.Identity {
	t.Helper()
	id := keystore.NewIdentity(keystore.NewMemoryStore())
	if err := id.Rebind([]byte("binding-secret-binding-secret-ab")); err != nil {
		t.Fatalf("rebind: %v", err)
	}
	if err := id.SetHostname(hostname); err != nil {
		t.Fatalf("hostname: %v", err)
	}
	return id
}

func TestExecuteRoundTrip(t *testing.T) {
	srv := newTestServer(t, "99", func(payload []byte) ([]byte, int) {
		var p GetPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return []byte("bad payload"), http.StatusBadRequest
		}
		if p.ClientVersion != ClientVersion {
			return []byte("bad client version"), http.StatusBadRequest
		}
		return []byte(`{"records":[]}`), http.StatusOK
	})

	id := testIdentity(t, srv.ts.URL)
	c := New(id, WithKeyID("99"), WithHTTPClient(srv.ts.Client()))

	cid, _ := id.ClientID()
	body, _ := json.Marshal(GetPayload{ClientVersion: ClientVersion, ClientID: crypto.EncodeBase64(cid)})
	resp, err := c.Execute(context.Background(), EndpointGetSecret, body)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if string(resp.Data) != `{"records":[]}` {
		t.Fatalf("decrypted response = %q", resp.Data)
	}
	if resp.Key == nil || len(resp.Key.Key) != crypto.KeySize {
		t.Fatal("transmission key not returned")
	}
}

func TestExecuteFreshTransmissionKeyPerCall(t *testing.T) {
	srv := newTestServer(t, "99", func([]byte) ([]byte, int) {
		return []byte(`{}`), http.StatusOK
	})
	id := testIdentity(t, srv.ts.URL)
	c := New(id, WithKeyID("99"), WithHTTPClient(srv.ts.Client()))

	r1, err := c.Execute(context.Background(), EndpointGetSecret, []byte(`{}`))
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	r2, err := c.Execute(context.Background(), EndpointGetSecret, []byte(`{}`))
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if string(r1.Key.Key) == string(r2.Key.Key) {
		t.Fatal("transmission key reused across requests")
	}
}

func TestExecuteNon200IsPlaintext(t *testing.T) {
	srv := newTestServer(t, "99", func([]byte) ([]byte, int) {
		return []byte(`{"error":"access_denied","message":"signature invalid"}`), http.StatusUnauthorized
	})
	id := testIdentity(t, srv.ts.URL)
	c := New(id, WithKeyID("99"), WithHTTPClient(srv.ts.Client()))

	_, err := c.Execute(context.Background(), EndpointGetSecret, []byte(`{}`))
	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("want NetworkError, got %v", err)
	}
	if ne.Status != http.StatusUnauthorized {
		t.Fatalf("status = %d", ne.Status)
	}
	if ne.Body == "" || ne.Body[0] != '{' {
		t.Fatalf("expected raw server body, got %q", ne.Body)
	}
}

func TestExecuteMissingHostname(t *testing.T) {
	id := keystore.NewIdentity(keystore.NewMemoryStore())
	c := New(id, WithKeyID("7"))
	_, err := c.Execute(context.Background(), EndpointGetSecret, []byte(`{}`))
	var ce *keystore.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("want ConfigError, got %v", err)
	}
}

func TestExecuteUnknownKeyID(t *testing.T) {
	id := testIdentity(t, "example.com")
	c := New(id, WithKeyID("does-not-exist"))
	if _, err := c.Execute(context.Background(), EndpointGetSecret, []byte(`{}`)); err == nil {
		t.Fatal("expected unknown key id error")
	}
}

func TestExecuteContextCancelled(t *testing.T) {
	srv := newTestServer(t, "99", func([]byte) ([]byte, int) {
		time.Sleep(200 * time.Millisecond)
		return []byte(`{}`), http.StatusOK
	})
	id := testIdentity(t, srv.ts.URL)
	c := New(id, WithKeyID("99"), WithHTTPClient(srv.ts.Client()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Execute(ctx, EndpointGetSecret, []byte(`{}`))
	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("want NetworkError wrapping context error, got %v", err)
	}
}

func TestWithRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), DefaultRetryOptions(), func(context.Context) error {
		calls++
		return &NetworkError{Status: 403, Body: "forbidden"}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 for a 4xx", calls)
	}
}

func TestWithRetryEventuallySucceeds(t *testing.T) {
	opts := RetryOptions{MaxAttempts: 4, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
	calls := 0
	err := WithRetry(context.Background(), opts, func(context.Context) error {
		calls++
		if calls < 3 {
			return &NetworkError{Status: 502, Body: "bad gateway"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	opts := RetryOptions{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 2}
	calls := 0
	err := WithRetry(context.Background(), opts, func(context.Context) error {
		calls++
		return &NetworkError{Err: errors.New("connection refused")}
	})
	if err == nil {
		t.Fatal("expected terminal error")
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}
