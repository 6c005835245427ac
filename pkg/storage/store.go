package storage

import (
	"context"
	"io"
	"time"
)

// URLOptions tunes a signed URL.
type URLOptions struct {
	TTL time.Duration
	// DownloadName forces an attachment disposition with this file name when set.
	DownloadName string
}

// SignedURL is a time-boxed, credential-free link to a private object.
type SignedURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ObjectStore is the private bucket holding uploaded file bytes.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	SignedURL(ctx context.Context, key string, opts URLOptions) (SignedURL, error)
}
