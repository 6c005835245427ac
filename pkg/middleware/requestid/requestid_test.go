package requestid

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func serve(t *testing.T, incoming string) (string, string, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	var fromGin, fromCtx string
	r := gin.New()
	r.Use(Middleware())
	r.GET("/", func(c *gin.Context) {
		fromGin = Value(c)
		fromCtx = FromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if incoming != "" {
		req.Header.Set(Header, incoming)
	}
	r.ServeHTTP(rec, req)
	return rec.Header().Get(Header), fromGin, fromCtx
}

func TestReusesWellFormedID(t *testing.T) {
	header, fromGin, fromCtx := serve(t, "edge-7f3a2c91")
	assert.Equal(t, "edge-7f3a2c91", header)
	assert.Equal(t, header, fromGin)
	assert.Equal(t, header, fromCtx)
}

func TestReplacesMalformedID(t *testing.T) {
	header, fromGin, _ := serve(t, "bad id\nInjected: 1")
	assert.NotEqual(t, "bad id\nInjected: 1", header)
	assert.Len(t, header, 36)
	assert.Equal(t, header, fromGin)
}

func TestMintsIDWhenAbsent(t *testing.T) {
	header, _, fromCtx := serve(t, "")
	assert.Len(t, header, 36)
	assert.Equal(t, header, fromCtx)
}
