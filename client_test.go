package secretsmanager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Keeper-Security/secrets-manager-sub005/internal/audit"
	"github.com/Keeper-Security/secrets-manager-sub005/internal/crypto"
	"github.com/Keeper-Security/secrets-manager-sub005/internal/keystore"
	"github.com/Keeper-Security/secrets-manager-sub005/internal/transport"
)

type fakeExec struct {
	responses []any // []byte body, or error
	calls     int
	files     map[string][]byte
}

func (f *fakeExec) Execute(_ context.Context, endpoint string, body []byte) (*transport.Response, error) {
	f.calls++
	if len(f.responses) == 0 {
		return nil, fmt.Errorf("fakeExec: no response scripted for call %d", f.calls)
	}
	next := f.responses[0]
	f.responses = f.responses[1:]
	if err, ok := next.(error); ok {
		return nil, err
	}
	key, _ := crypto.Random(crypto.KeySize)
	return &transport.Response{Data: next.([]byte), Key: &transport.TransmissionKey{Key: key}}, nil
}

func (f *fakeExec) Download(_ context.Context, url string) ([]byte, error) {
	b, ok := f.files[url]
	if !ok {
		return nil, &transport.NetworkError{Status: 404, Body: "no such blob"}
	}
	return b, nil
}

func newKey(t *testing.T) []byte {
	t.Helper()
	k, err := crypto.Random(crypto.KeySize)
	if err != nil {
		t.Fatal(err)
	}
	return k
}

func wrap(t *testing.T, parent, child []byte) string {
	t.Helper()
	ct, err := crypto.Seal(parent, nil, child)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	return crypto.EncodeBase64(ct)
}

func sealJSON(t *testing.T, key []byte, v any) string {
	t.Helper()
	pt, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	ct, err := crypto.Seal(key, nil, pt)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	return crypto.EncodeBase64(ct)
}

// wireRecord builds the JSON shape of one encrypted record envelope.
func wireRecord(t *testing.T, parentKey []byte, uid, title string, fields []map[string]any) (map[string]any, []byte) {
	t.Helper()
	recordKey := newKey(t)
	return map[string]any{
		"recordUid": uid,
		"recordKey": wrap(t, parentKey, recordKey),
		"revision":  3,
		"data": sealJSON(t, recordKey, map[string]any{
			"title":  title,
			"type":   "login",
			"fields": fields,
		}),
	}, recordKey
}

func response(t *testing.T, v map[string]any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// boundStore seeds a store as a device that completed its bind handshake.
func boundStore(t *testing.T, appKey []byte) Store {
	t.Helper()
	store := keystore.NewMemoryStore()
	id := keystore.NewIdentity(store)
	if err := id.Rebind([]byte("binding-secret-binding-secret-ab")); err != nil {
		t.Fatalf("rebind: %v", err)
	}
	if err := id.SetAppKey(appKey); err != nil {
		t.Fatalf("set app key: %v", err)
	}
	return store
}

func newTestClient(t *testing.T, exec *fakeExec, appKey []byte, opts ...Option) *Client {
	t.Helper()
	opts = append(opts, WithStore(boundStore(t, appKey)), withExecutor(exec))
	c, err := New(opts...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestGetSecretsAndJournal(t *testing.T) {
	appKey := newKey(t)
	wr, _ := wireRecord(t, appKey, "UID1", "Prod DB", []map[string]any{
		{"type": "login", "value": []any{"alice"}},
	})
	exec := &fakeExec{responses: []any{response(t, map[string]any{"records": []any{wr}})}}
	c := newTestClient(t, exec, appKey)

	tree, err := c.GetSecrets(context.Background())
	if err != nil {
		t.Fatalf("get secrets: %v", err)
	}
	if len(tree.Records) != 1 || tree.Records[0].Title != "Prod DB" {
		t.Fatalf("tree: %+v", tree.Records)
	}

	entries := c.Journal().Entries()
	if len(entries) != 1 || entries[0].Op != audit.OpFetch {
		t.Fatalf("journal: %+v", entries)
	}
	if err := c.Journal().Verify(); err != nil {
		t.Fatalf("journal verify: %v", err)
	}
}

func TestBindHandshake(t *testing.T) {
	secret := []byte("binding-secret-binding-secret-ab")
	appKey := newKey(t)
	rotated := newKey(t)

	bindResp := response(t, map[string]any{
		"applicationToken": crypto.EncodeBase64(rotated),
		"records": []any{map[string]any{
			"recordUid": "STUB",
			"recordKey": wrap(t, secret, appKey),
		}},
	})
	wr, _ := wireRecord(t, appKey, "UID1", "Prod DB", nil)
	dataResp := response(t, map[string]any{"records": []any{wr}})

	exec := &fakeExec{responses: []any{bindResp, dataResp}}
	store := keystore.NewMemoryStore()
	c, err := New(
		WithStore(store),
		WithToken(crypto.EncodeBase64(secret)),
		withExecutor(exec),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if err := c.Bind(context.Background()); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if exec.calls != 2 {
		t.Fatalf("calls = %d, want bind plus one re-fetch", exec.calls)
	}

	id := keystore.NewIdentity(store)
	if got, _ := id.AppKey(); string(got) != string(appKey) {
		t.Fatal("application key not persisted")
	}
	if cid, _ := id.ClientID(); string(cid) != string(rotated) {
		t.Fatal("client id not rotated to the application token")
	}

	ops := c.Journal().Entries()
	var sawBind bool
	for _, e := range ops {
		if e.Op == audit.OpBind {
			sawBind = true
		}
	}
	if !sawBind {
		t.Fatalf("no bind entry in journal: %+v", ops)
	}

	// Bind on a bound identity is quiet.
	exec.responses = []any{dataResp}
	if err := c.Bind(context.Background()); err != nil {
		t.Fatalf("second bind: %v", err)
	}
	for _, e := range c.Journal().Entries()[len(ops):] {
		if e.Op == audit.OpBind {
			t.Fatal("re-bind journaled on a bound identity")
		}
	}
}

func TestTokenReplayKeepsBoundIdentity(t *testing.T) {
	secret := []byte("binding-secret-binding-secret-ab")
	appKey := newKey(t)
	rotated := newKey(t)
	token := crypto.EncodeBase64(secret)

	bindResp := response(t, map[string]any{
		"applicationToken": crypto.EncodeBase64(rotated),
		"records": []any{map[string]any{
			"recordUid": "STUB",
			"recordKey": wrap(t, secret, appKey),
		}},
	})
	wr, _ := wireRecord(t, appKey, "UID1", "Prod DB", nil)
	dataResp := response(t, map[string]any{"records": []any{wr}})

	store := keystore.NewMemoryStore()
	c, err := New(WithStore(store), WithToken(token),
		withExecutor(&fakeExec{responses: []any{bindResp, dataResp}}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := c.Bind(context.Background()); err != nil {
		t.Fatalf("bind: %v", err)
	}

	// The token tends to linger in env or config files, so a later
	// process start replays it against the bound store.
	exec := &fakeExec{responses: []any{dataResp}}
	c2, err := New(WithStore(store), WithToken(token), withExecutor(exec))
	if err != nil {
		t.Fatalf("second new: %v", err)
	}
	id := keystore.NewIdentity(store)
	if cid, _ := id.ClientID(); string(cid) != string(rotated) {
		t.Fatal("token replay clobbered the rotated client id")
	}
	tree, err := c2.GetSecrets(context.Background())
	if err != nil {
		t.Fatalf("get secrets after replay: %v", err)
	}
	if exec.calls != 1 {
		t.Fatalf("calls = %d, re-bound instead of fetching", exec.calls)
	}
	if len(tree.Records) != 1 || tree.Records[0].DecodeError != nil {
		t.Fatalf("tree after replay: %+v", tree.Records)
	}
}

func TestGetSecretByTitle(t *testing.T) {
	appKey := newKey(t)
	a, _ := wireRecord(t, appKey, "UID1", "Unique", nil)
	b, _ := wireRecord(t, appKey, "UID2", "Dup", nil)
	d, _ := wireRecord(t, appKey, "UID3", "Dup", nil)
	resp := response(t, map[string]any{"records": []any{a, b, d}})

	exec := &fakeExec{responses: []any{resp, resp}}
	c := newTestClient(t, exec, appKey)

	rec, err := c.GetSecretByTitle(context.Background(), "Unique")
	if err != nil {
		t.Fatalf("by title: %v", err)
	}
	if rec.UID != "UID1" {
		t.Fatalf("uid = %s", rec.UID)
	}

	_, err = c.GetSecretByTitle(context.Background(), "Dup")
	var ne *NotationError
	if !errors.As(err, &ne) {
		t.Fatalf("ambiguous title error: %v", err)
	}
}

func TestGetSecretMissing(t *testing.T) {
	appKey := newKey(t)
	exec := &fakeExec{responses: []any{response(t, map[string]any{})}}
	c := newTestClient(t, exec, appKey)
	if _, err := c.GetSecret(context.Background(), "NOPE"); err == nil {
		t.Fatal("missing record resolved")
	}
}

func TestNotationQuery(t *testing.T) {
	appKey := newKey(t)
	wr, _ := wireRecord(t, appKey, "UID1", "Prod DB", []map[string]any{
		{"type": "password", "value": []any{"hunter2"}},
	})
	exec := &fakeExec{responses: []any{response(t, map[string]any{"records": []any{wr}})}}
	c := newTestClient(t, exec, appKey)

	got, err := c.Notation(context.Background(), "keeper://UID1/field/password")
	if err != nil {
		t.Fatalf("notation: %v", err)
	}
	if got != "hunter2" {
		t.Fatalf("value = %q", got)
	}
}

func TestNotationFileSelector(t *testing.T) {
	appKey := newKey(t)
	recordKey := newKey(t)
	fileKey := newKey(t)
	content := []byte("-----BEGIN KEY-----")
	sealedContent, err := crypto.Seal(fileKey, nil, content)
	if err != nil {
		t.Fatal(err)
	}

	wr := map[string]any{
		"recordUid": "UID1",
		"recordKey": wrap(t, appKey, recordKey),
		"revision":  1,
		"data":      sealJSON(t, recordKey, map[string]any{"title": "Server", "type": "login"}),
		"files": []any{map[string]any{
			"fileUid": "F1",
			"fileKey": wrap(t, recordKey, fileKey),
			"data":    sealJSON(t, fileKey, map[string]any{"name": "key.pem", "size": len(content)}),
			"url":     "https://files.example/blob/F1",
		}},
	}
	exec := &fakeExec{
		responses: []any{response(t, map[string]any{"records": []any{wr}})},
		files:     map[string][]byte{"https://files.example/blob/F1": sealedContent},
	}
	c := newTestClient(t, exec, appKey)

	got, err := c.Notation(context.Background(), "UID1/file/key.pem")
	if err != nil {
		t.Fatalf("file notation: %v", err)
	}
	if got != string(content) {
		t.Fatalf("content = %q", got)
	}
}

func TestTOTPCodeFromField(t *testing.T) {
	appKey := newKey(t)
	url := "otpauth://totp/ops?secret=JBSWY3DPEHPK3PXP"
	wr, _ := wireRecord(t, appKey, "UID1", "MFA", []map[string]any{
		{"type": "oneTimeCode", "value": []any{url}},
	})
	exec := &fakeExec{responses: []any{response(t, map[string]any{"records": []any{wr}})}}
	c := newTestClient(t, exec, appKey)

	code, err := c.TOTPCode(context.Background(), "UID1/field/oneTimeCode")
	if err != nil {
		t.Fatalf("totp: %v", err)
	}
	if len(code.Value) != 6 || strings.TrimLeft(code.Value, "0123456789") != "" {
		t.Fatalf("code = %q", code.Value)
	}
}

func TestUpdateSecret(t *testing.T) {
	appKey := newKey(t)
	wr, _ := wireRecord(t, appKey, "UID1", "Prod DB", []map[string]any{
		{"type": "password", "value": []any{"old"}},
	})
	exec := &fakeExec{responses: []any{
		response(t, map[string]any{"records": []any{wr}}),
		[]byte("{}"),
	}}
	c := newTestClient(t, exec, appKey)

	rec, err := c.GetSecret(context.Background(), "UID1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	rev := rec.Revision
	rec.Fields[0].Value = []any{"new"}
	if err := c.UpdateSecret(context.Background(), rec); err != nil {
		t.Fatalf("update: %v", err)
	}
	if rec.Revision != rev+1 {
		t.Fatalf("revision = %d, want %d", rec.Revision, rev+1)
	}
	entries := c.Journal().Entries()
	last := entries[len(entries)-1]
	if last.Op != audit.OpUpdate || !strings.Contains(last.Detail, "UID1") {
		t.Fatalf("journal tail: %+v", last)
	}
}

func TestNoRetryByDefault(t *testing.T) {
	appKey := newKey(t)
	wr, _ := wireRecord(t, appKey, "UID1", "Prod DB", nil)
	exec := &fakeExec{responses: []any{
		&transport.NetworkError{Status: 502, Body: "bad gateway"},
		response(t, map[string]any{"records": []any{wr}}),
	}}
	c := newTestClient(t, exec, appKey)

	_, err := c.GetSecrets(context.Background())
	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("want NetworkError, got %v", err)
	}
	if exec.calls != 1 {
		t.Fatalf("calls = %d, retried without WithRetry", exec.calls)
	}
}

func TestRetryRecoversFromServerError(t *testing.T) {
	appKey := newKey(t)
	wr, _ := wireRecord(t, appKey, "UID1", "Prod DB", nil)
	exec := &fakeExec{responses: []any{
		&transport.NetworkError{Status: 502, Body: "bad gateway"},
		response(t, map[string]any{"records": []any{wr}}),
	}}
	c := newTestClient(t, exec, appKey, WithRetry(RetryOptions{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
	}))

	tree, err := c.GetSecrets(context.Background())
	if err != nil {
		t.Fatalf("get secrets: %v", err)
	}
	if len(tree.Records) != 1 {
		t.Fatalf("records = %d", len(tree.Records))
	}
	if exec.calls != 2 {
		t.Fatalf("calls = %d", exec.calls)
	}
}

func TestRegionHostnames(t *testing.T) {
	store := keystore.NewMemoryStore()
	if _, err := New(WithStore(store), WithHostname("EU"), withExecutor(&fakeExec{})); err != nil {
		t.Fatalf("new: %v", err)
	}
	if h, _ := keystore.NewIdentity(store).Hostname(); h != "keepersecurity.eu" {
		t.Fatalf("hostname = %q", h)
	}

	store = keystore.NewMemoryStore()
	secret := crypto.EncodeBase64([]byte("binding-secret-binding-secret-ab"))
	if _, err := New(WithStore(store), WithToken("US:"+secret), withExecutor(&fakeExec{})); err != nil {
		t.Fatalf("new with token: %v", err)
	}
	if h, _ := keystore.NewIdentity(store).Hostname(); h != "keepersecurity.com" {
		t.Fatalf("hostname from token = %q", h)
	}
}

func TestAuditSink(t *testing.T) {
	appKey := newKey(t)
	wr, _ := wireRecord(t, appKey, "UID1", "Prod DB", nil)
	var sink strings.Builder
	exec := &fakeExec{responses: []any{response(t, map[string]any{"records": []any{wr}})}}
	c := newTestClient(t, exec, appKey, WithAuditSink(&sink))

	if _, err := c.GetSecrets(context.Background()); err != nil {
		t.Fatalf("get secrets: %v", err)
	}
	if !strings.Contains(sink.String(), `"op":"fetch"`) {
		t.Fatalf("sink = %q", sink.String())
	}
}
