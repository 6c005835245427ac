package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/client-portal-api/internal/identity"
	"github.com/noah-isme/client-portal-api/internal/middleware"
	"github.com/noah-isme/client-portal-api/internal/models"
)

type responseEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta map[string]interface{} `json:"meta"`
}

var (
	adminActor  = models.Actor{ID: "11111111-1111-1111-1111-111111111111", Email: "admin@portal.test", Role: models.RoleAdmin}
	clientActor = models.Actor{ID: "22222222-2222-2222-2222-222222222222", Email: "manager@acme.test", Role: models.RoleClient, ClientID: "acme"}
	userActor   = models.Actor{ID: "33333333-3333-3333-3333-333333333333", Email: "user@acme.test", Role: models.RoleUser, ClientID: "acme"}
)

func newTestContext(method, target string, body io.Reader) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, target, body)
	if body != nil {
		c.Request.Header.Set("Content-Type", "application/json")
	}
	return c, rec
}

func jsonBody(payload string) io.Reader {
	return strings.NewReader(payload)
}

func asActor(c *gin.Context, actor models.Actor) {
	middleware.SetIdentity(c, &identity.Identity{Actor: actor, Source: models.SourceAppToken})
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) responseEnvelope {
	t.Helper()
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope
}

func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}
