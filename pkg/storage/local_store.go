package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// LocalObjectStore serves the local backend through signed tokens redeemed at BlobURL.
type LocalObjectStore struct {
	files   *LocalStorage
	signer  *SignedURLSigner
	blobURL string
}

// NewLocalObjectStore wires disk storage with a signer; blobURL is the public path of the blob endpoint.
func NewLocalObjectStore(files *LocalStorage, signer *SignedURLSigner, blobURL string) *LocalObjectStore {
	return &LocalObjectStore{files: files, signer: signer, blobURL: strings.TrimRight(blobURL, "/")}
}

// Put writes the object. Existing keys are never overwritten.
func (s *LocalObjectStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	if _, err := s.files.SaveStream(key, r); err != nil {
		return err
	}
	return nil
}

// Delete removes the object.
func (s *LocalObjectStore) Delete(_ context.Context, key string) error {
	return s.files.Delete(key)
}

// SignedURL returns a link to the blob endpoint carrying an HMAC token.
func (s *LocalObjectStore) SignedURL(_ context.Context, key string, opts URLOptions) (SignedURL, error) {
	token, expiresAt, err := s.signer.Generate(key, opts.DownloadName, opts.TTL)
	if err != nil {
		return SignedURL{}, fmt.Errorf("sign object url: %w", err)
	}
	return SignedURL{URL: s.blobURL + "?token=" + url.QueryEscape(token), ExpiresAt: expiresAt}, nil
}

// Redeem validates a blob token and opens the referenced object.
func (s *LocalObjectStore) Redeem(token string) (*Blob, error) {
	key, name, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, err
	}
	file, err := s.files.Open(key)
	if err != nil {
		return nil, err
	}
	return &Blob{Key: key, DownloadName: name, Content: file}, nil
}

// Blob is an opened object ready to be streamed to a client.
type Blob struct {
	Key          string
	DownloadName string
	Content      io.ReadSeekCloser
}
