package vault

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/Keeper-Security/secrets-manager-sub005/internal/crypto"
	"github.com/Keeper-Security/secrets-manager-sub005/internal/transport"
)

// Update writes a modified record back. The payload is re-serialized and
// sealed under the record's existing key; the server stores ciphertext it
// cannot read.
func (d *Decoder) Update(ctx context.Context, rec *Record) error {
	if rec.DecodeError != nil {
		return rec.DecodeError
	}
	if len(rec.Key) == 0 {
		return errors.New("vault: record key unavailable")
	}
	cid, err := d.identity.ClientID()
	if err != nil {
		return err
	}

	pt, err := json.Marshal(recordData{
		Title:  rec.Title,
		Type:   rec.Type,
		Notes:  rec.Notes,
		Fields: rec.Fields,
		Custom: rec.Custom,
	})
	if err != nil {
		return err
	}
	sealed, err := crypto.Seal(rec.Key, nil, pt)
	if err != nil {
		return err
	}

	body, err := json.Marshal(transport.UpdatePayload{
		ClientVersion: transport.ClientVersion,
		ClientID:      crypto.EncodeBase64(cid),
		RecordUID:     rec.UID,
		Data:          crypto.EncodeBase64(sealed),
		Revision:      rec.Revision,
	})
	if err != nil {
		return err
	}
	resp, err := d.exec.Execute(ctx, transport.EndpointUpdateSecret, body)
	if err != nil {
		return err
	}
	resp.Key.Destroy()
	rec.Revision++
	return nil
}
