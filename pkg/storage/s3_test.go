package storage

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewS3StoreRequiresConfiguration(t *testing.T) {
	_, err := NewS3Store(context.Background(), S3Options{Bucket: "files"})
	assert.ErrorIs(t, err, ErrS3NotConfigured)
}

func TestS3StorePresignsAttachmentURL(t *testing.T) {
	store, err := NewS3Store(context.Background(), S3Options{
		Bucket:          "files",
		Region:          "auto",
		Endpoint:        "https://example.r2.cloudflarestorage.com",
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
	})
	require.NoError(t, err)

	signed, err := store.SignedURL(context.Background(), "uploads/u-1/1700000000_ab12.pdf", URLOptions{
		TTL:          10 * time.Minute,
		DownloadName: "Quarterly report.pdf",
	})
	require.NoError(t, err)

	parsed, err := url.Parse(signed.URL)
	require.NoError(t, err)
	assert.Equal(t, "/files/uploads/u-1/1700000000_ab12.pdf", parsed.Path)
	assert.Equal(t, "600", parsed.Query().Get("X-Amz-Expires"))
	assert.Contains(t, parsed.Query().Get("response-content-disposition"), "attachment")
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), signed.ExpiresAt, 5*time.Second)
}

func TestAttachmentDisposition(t *testing.T) {
	assert.Equal(t, "attachment; filename=report.pdf", AttachmentDisposition("report.pdf"))
	assert.Contains(t, AttachmentDisposition("Quarterly report.pdf"), `filename="Quarterly report.pdf"`)
}
