package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/Keeper-Security/secrets-manager-sub005/internal/cache"
	"github.com/Keeper-Security/secrets-manager-sub005/internal/crypto"
	"github.com/Keeper-Security/secrets-manager-sub005/internal/keystore"
	"github.com/Keeper-Security/secrets-manager-sub005/internal/transport"
)

// Executor is the transport capability the decoder needs: one encrypted
// exchange and one raw blob download. Injected so tests substitute a
// double for the network.
type Executor interface {
	Execute(ctx context.Context, endpoint string, body []byte) (*transport.Response, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// wire shapes of the decrypted response body. Every *Key field is
// base64url ciphertext unwrapped by exactly one parent tier.
type wireFile struct {
	FileUID      string `json:"fileUid"`
	FileKey      string `json:"fileKey"`
	Data         string `json:"data"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

type wireRecord struct {
	RecordUID string     `json:"recordUid"`
	RecordKey string     `json:"recordKey"`
	Data      string     `json:"data"`
	Revision  int64      `json:"revision"`
	Files     []wireFile `json:"files,omitempty"`
}

type wireFolder struct {
	FolderUID string       `json:"folderUid"`
	FolderKey string       `json:"folderKey"`
	Records   []wireRecord `json:"records,omitempty"`
}

type wireResponse struct {
	ApplicationToken string       `json:"applicationToken,omitempty"`
	Records          []wireRecord `json:"records,omitempty"`
	Folders          []wireFolder `json:"folders,omitempty"`
}

type fileMeta struct {
	Name  string `json:"name"`
	Title string `json:"title,omitempty"`
	Type  string `json:"type,omitempty"`
	Size  int64  `json:"size,omitempty"`
}

// Decoder walks decrypted responses and performs the key-unwrap cascade.
// It owns the UNBOUND -> BOUND transition: the first successful exchange of
// an unbound device unlocks the application key with the one-time binding
// secret and triggers exactly one follow-up fetch for the real data.
type Decoder struct {
	exec     Executor
	identity *keystore.Identity
	cache    cache.Store
	logger   *log.Logger
}

type DecoderOption func(*Decoder)

// WithCache enables the offline response cache: each successful fetch is
// saved, and a network failure falls back to the last saved response.
func WithCache(c cache.Store) DecoderOption {
	return func(d *Decoder) { d.cache = c }
}

func WithLogger(l *log.Logger) DecoderOption {
	return func(d *Decoder) { d.logger = l }
}

func NewDecoder(exec Executor, identity *keystore.Identity, opts ...DecoderOption) *Decoder {
	d := &Decoder{exec: exec, identity: identity}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Fetch retrieves and decodes the record tree, optionally narrowed to
// specific record uids. An unbound device binds transparently and fetches
// once more; by design that loop never runs a second time.
func (d *Decoder) Fetch(ctx context.Context, uids []string) (*Tree, error) {
	return d.fetch(ctx, uids, true)
}

func (d *Decoder) fetch(ctx context.Context, uids []string, allowBind bool) (*Tree, error) {
	cid, err := d.identity.ClientID()
	if err != nil {
		return nil, err
	}
	appKey, err := d.identity.AppKey()
	if err != nil {
		return nil, err
	}

	payload := transport.GetPayload{
		ClientVersion:    transport.ClientVersion,
		ClientID:         crypto.EncodeBase64(cid),
		RequestedRecords: uids,
	}
	if len(appKey) == 0 {
		// First contact: introduce the device public key so the server can
		// verify our signatures from now on.
		priv, err := d.identity.PrivateKey()
		if err != nil {
			return nil, err
		}
		pub, err := priv.PublicBytes()
		if err != nil {
			return nil, err
		}
		payload.PublicKey = crypto.EncodeBase64(pub)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	data, err := d.exchange(ctx, body)
	if err != nil {
		return nil, err
	}

	var wire wireResponse
	if len(data) > 0 {
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("vault: malformed response: %w", err)
		}
	}

	if wire.ApplicationToken != "" {
		// Post-bind identity rotation.
		token, err := crypto.DecodeBase64(wire.ApplicationToken)
		if err != nil {
			return nil, fmt.Errorf("vault: malformed application token: %w", err)
		}
		if err := d.identity.SetClientID(token); err != nil {
			return nil, err
		}
	}

	if len(appKey) == 0 {
		if !allowBind {
			return nil, &BindError{Err: errors.New("application key still missing after bind")}
		}
		if err := d.bind(&wire); err != nil {
			return nil, err
		}
		if d.logger != nil {
			d.logger.Info("device bound, fetching records")
		}
		// The unbound response may be a bind acknowledgement stub; fetch
		// the real data once, and only once.
		return d.fetch(ctx, uids, false)
	}

	return d.decodeTree(&wire, appKey), nil
}

// exchange performs the network call, maintaining the offline cache when
// one is configured.
func (d *Decoder) exchange(ctx context.Context, body []byte) ([]byte, error) {
	resp, err := d.exec.Execute(ctx, transport.EndpointGetSecret, body)
	if err != nil {
		var ne *transport.NetworkError
		if d.cache != nil && errors.As(err, &ne) {
			if cached, cerr := d.loadCached(); cerr == nil {
				if d.logger != nil {
					d.logger.Warn("network failure, serving cached response", "err", err)
				}
				return cached, nil
			}
		}
		return nil, err
	}
	defer resp.Key.Destroy()
	if d.cache != nil && len(resp.Data) > 0 {
		if cerr := d.saveCached(resp.Key.Key, resp.Data); cerr != nil && d.logger != nil {
			d.logger.Warn("cannot save response cache", "err", cerr)
		}
	}
	return resp.Data, nil
}

func (d *Decoder) saveCached(key, data []byte) error {
	sealed, err := crypto.Seal(key, nil, data)
	if err != nil {
		return err
	}
	blob := make([]byte, 0, crypto.KeySize+len(sealed))
	blob = append(blob, key...)
	blob = append(blob, sealed...)
	return d.cache.Save(blob)
}

func (d *Decoder) loadCached() ([]byte, error) {
	blob, err := d.cache.Load()
	if err != nil {
		return nil, err
	}
	if len(blob) < crypto.KeySize {
		return nil, errors.New("vault: cached response too short")
	}
	return crypto.Open(blob[:crypto.KeySize], blob[crypto.KeySize:])
}

// bind unlocks the application key: the single top-level record or folder
// of the first response carries the application key wrapped under the
// one-time binding secret.
func (d *Decoder) bind(wire *wireResponse) error {
	secret, err := d.identity.BindingSecret()
	if err != nil {
		return err
	}
	if len(secret) == 0 {
		return &keystore.ConfigError{Field: keystore.FieldClientKey}
	}

	var wrapped string
	switch {
	case len(wire.Records) > 0:
		wrapped = wire.Records[0].RecordKey
	case len(wire.Folders) > 0:
		wrapped = wire.Folders[0].FolderKey
	default:
		return &BindError{Err: errors.New("response carries no wrapped application key")}
	}
	appKey, err := unwrap(secret, wrapped)
	if err != nil {
		return &BindError{Err: err}
	}
	if err := d.identity.SetAppKey(appKey); err != nil {
		return &BindError{Err: err}
	}
	// Best effort: keep the durable key out of swap.
	_ = crypto.LockMemory(appKey)
	if err := d.identity.ConsumeBindingSecret(); err != nil {
		return &BindError{Err: err}
	}
	return nil
}

func unwrap(parentKey []byte, wrapped string) ([]byte, error) {
	ct, err := crypto.DecodeBase64(wrapped)
	if err != nil {
		return nil, err
	}
	return crypto.Open(parentKey, ct)
}

// decodeTree unwraps every tier. A failure on one folder, record or file
// is recorded on that item and never aborts its siblings.
func (d *Decoder) decodeTree(wire *wireResponse, appKey []byte) *Tree {
	t := &Tree{}
	for i := range wire.Folders {
		wf := &wire.Folders[i]
		folder := &Folder{UID: wf.FolderUID}
		folderKey, err := unwrap(appKey, wf.FolderKey)
		if err != nil {
			folder.DecodeError = fmt.Errorf("folder %s: %w", wf.FolderUID, err)
			d.warnItem(folder.DecodeError)
			t.Folders = append(t.Folders, folder)
			continue
		}
		folder.Key = folderKey
		for j := range wf.Records {
			rec := d.decodeRecord(&wf.Records[j], folderKey, wf.FolderUID)
			folder.Records = append(folder.Records, rec)
			t.Records = append(t.Records, rec)
		}
		t.Folders = append(t.Folders, folder)
	}
	for i := range wire.Records {
		t.Records = append(t.Records, d.decodeRecord(&wire.Records[i], appKey, ""))
	}
	return t
}

func (d *Decoder) decodeRecord(wr *wireRecord, parentKey []byte, folderUID string) *Record {
	rec := &Record{UID: wr.RecordUID, Revision: wr.Revision, FolderUID: folderUID}

	key, err := unwrap(parentKey, wr.RecordKey)
	if err != nil {
		rec.DecodeError = fmt.Errorf("record %s: key unwrap: %w", wr.RecordUID, err)
		d.warnItem(rec.DecodeError)
		return rec
	}
	rec.Key = key

	pt, err := unwrap(key, wr.Data)
	if err != nil {
		rec.DecodeError = fmt.Errorf("record %s: payload: %w", wr.RecordUID, err)
		d.warnItem(rec.DecodeError)
		return rec
	}
	var data recordData
	if err := json.Unmarshal(pt, &data); err != nil {
		rec.DecodeError = fmt.Errorf("record %s: payload json: %w", wr.RecordUID, err)
		d.warnItem(rec.DecodeError)
		return rec
	}
	rec.Title = data.Title
	rec.Type = data.Type
	rec.Notes = data.Notes
	rec.Fields = data.Fields
	rec.Custom = data.Custom

	for i := range wr.Files {
		rec.Files = append(rec.Files, d.decodeFile(&wr.Files[i], key))
	}
	return rec
}

func (d *Decoder) decodeFile(wf *wireFile, recordKey []byte) *File {
	file := &File{UID: wf.FileUID, URL: wf.URL, ThumbnailURL: wf.ThumbnailURL}

	key, err := unwrap(recordKey, wf.FileKey)
	if err != nil {
		file.DecodeError = fmt.Errorf("file %s: key unwrap: %w", wf.FileUID, err)
		d.warnItem(file.DecodeError)
		return file
	}
	file.Key = key

	pt, err := unwrap(key, wf.Data)
	if err != nil {
		file.DecodeError = fmt.Errorf("file %s: metadata: %w", wf.FileUID, err)
		d.warnItem(file.DecodeError)
		return file
	}
	var meta fileMeta
	if err := json.Unmarshal(pt, &meta); err != nil {
		file.DecodeError = fmt.Errorf("file %s: metadata json: %w", wf.FileUID, err)
		d.warnItem(file.DecodeError)
		return file
	}
	file.Name = meta.Name
	file.Title = meta.Title
	file.MimeType = meta.Type
	file.Size = meta.Size
	return file
}

func (d *Decoder) warnItem(err error) {
	if d.logger != nil {
		d.logger.Warn("item skipped during decode", "err", err)
	}
}
