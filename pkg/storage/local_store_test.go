package storage

import (
	"context"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocalStore(t *testing.T) *LocalObjectStore {
	t.Helper()
	files, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return NewLocalObjectStore(files, NewSignedURLSigner("secret", time.Hour), "http://localhost:8080/api/v1/files/blob/")
}

func TestLocalObjectStoreRoundTrip(t *testing.T) {
	store := newLocalStore(t)
	ctx := context.Background()
	key := "uploads/u-1/1700000000_ab12.txt"

	require.NoError(t, store.Put(ctx, key, strings.NewReader("hello"), 5, "text/plain"))

	signed, err := store.SignedURL(ctx, key, URLOptions{TTL: time.Minute, DownloadName: "hello.txt"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(signed.URL, "http://localhost:8080/api/v1/files/blob?token="))

	parsed, err := url.Parse(signed.URL)
	require.NoError(t, err)
	blob, err := store.Redeem(parsed.Query().Get("token"))
	require.NoError(t, err)
	defer blob.Content.Close()

	body, err := io.ReadAll(blob.Content)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
	assert.Equal(t, "hello.txt", blob.DownloadName)

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Redeem(parsed.Query().Get("token"))
	require.Error(t, err)
}

func TestLocalObjectStoreRefusesOverwrite(t *testing.T) {
	store := newLocalStore(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "uploads/u-1/a.txt", strings.NewReader("a"), 1, ""))
	require.Error(t, store.Put(ctx, "uploads/u-1/a.txt", strings.NewReader("b"), 1, ""))
}

func TestLocalStorageRejectsEscapingKeys(t *testing.T) {
	files, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	_, err = files.SaveStream("../outside.txt", strings.NewReader("x"))
	require.Error(t, err)
	_, err = files.Open("/etc/passwd")
	require.Error(t, err)
}
