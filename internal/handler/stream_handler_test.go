package handler

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/client-portal-api/internal/realtime"
	"github.com/noah-isme/client-portal-api/internal/service"
)

func streamServer(t *testing.T, handler *StreamHandler) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/stream/:topic", func(c *gin.Context) {
		asActor(c, userActor)
		c.Next()
	}, handler.Stream)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

// readEvent returns the data line of the next SSE event called name.
func readEvent(t *testing.T, reader *bufio.Reader, name string) string {
	t.Helper()
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.TrimSpace(line) != "event:"+name {
			continue
		}
		data, err := reader.ReadString('\n')
		require.NoError(t, err)
		return strings.TrimPrefix(strings.TrimSpace(data), "data:")
	}
}

func TestStreamHandlerCoalescesBursts(t *testing.T) {
	hub := realtime.NewLocalHub(nil)
	srv := streamServer(t, NewStreamHandler(hub, 100*time.Millisecond, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/stream/files", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	reader := bufio.NewReader(resp.Body)
	assert.Contains(t, readEvent(t, reader, "ready"), `"topic":"files"`)

	for _, id := range []string{"file-1", "file-2", "file-3"} {
		hub.Publish(ctx, service.TopicFiles, "insert", id)
	}
	hub.Publish(ctx, service.TopicNews, "insert", "news-1")

	data := readEvent(t, reader, "refetch")
	assert.Contains(t, data, `"changes":3`)
	assert.Contains(t, data, `"topic":"files"`)
	assert.NotContains(t, data, "file-1")
}

func TestStreamHandlerUnknownTopic(t *testing.T) {
	handler := NewStreamHandler(realtime.NewLocalHub(nil), time.Second, nil)

	c, rec := newTestContext(http.MethodGet, "/stream/profiles", nil)
	c.AddParam("topic", "profiles")
	asActor(c, userActor)
	handler.Stream(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamHandlerDisabledHub(t *testing.T) {
	handler := NewStreamHandler(nil, time.Second, nil)

	c, rec := newTestContext(http.MethodGet, "/stream/files", nil)
	c.AddParam("topic", "files")
	asActor(c, userActor)
	handler.Stream(c)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
