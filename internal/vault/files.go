package vault

import (
	"context"
	"errors"

	"github.com/Keeper-Security/secrets-manager-sub005/internal/crypto"
)

// DownloadFile fetches the file's content and decrypts it with the file
// key unwrapped during tree decode.
func (d *Decoder) DownloadFile(ctx context.Context, f *File) ([]byte, error) {
	if f.DecodeError != nil {
		return nil, f.DecodeError
	}
	return d.download(ctx, f, f.URL)
}

// DownloadThumbnail fetches and decrypts the file's thumbnail, when the
// service generated one.
func (d *Decoder) DownloadThumbnail(ctx context.Context, f *File) ([]byte, error) {
	if f.DecodeError != nil {
		return nil, f.DecodeError
	}
	if f.ThumbnailURL == "" {
		return nil, errors.New("vault: file has no thumbnail")
	}
	return d.download(ctx, f, f.ThumbnailURL)
}

func (d *Decoder) download(ctx context.Context, f *File, url string) ([]byte, error) {
	if len(f.Key) == 0 {
		return nil, errors.New("vault: file key unavailable")
	}
	if url == "" {
		return nil, errors.New("vault: file has no content url")
	}
	blob, err := d.exec.Download(ctx, url)
	if err != nil {
		return nil, err
	}
	return crypto.Open(f.Key, blob)
}
