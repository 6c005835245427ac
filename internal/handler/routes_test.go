package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/client-portal-api/internal/middleware"
	"github.com/noah-isme/client-portal-api/internal/models"
	appErrors "github.com/noah-isme/client-portal-api/pkg/errors"
	"github.com/noah-isme/client-portal-api/pkg/response"
)

var testActors = map[string]models.Actor{
	"admin":  adminActor,
	"client": clientActor,
	"user":   userActor,
}

// headerIdentity resolves the actor from a test header.
func headerIdentity(c *gin.Context) {
	actor, ok := testActors[c.GetHeader("X-Test-Actor")]
	if !ok {
		response.Error(c, appErrors.ErrAuthRequired)
		c.Abort()
		return
	}
	asActor(c, actor)
	c.Next()
}

func testRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	Register(r.Group("/api/v1"), Handlers{
		Auth:     NewAuthHandler(&fakeAuthService{}, &fakeSessions{}, middleware.CookieConfig{}),
		Profiles: NewProfileHandler(nil),
		Clients:  NewClientHandler(nil),
		Files:    NewFileHandler(&fakeFileService{}, nil, 0),
		Messages: NewMessageHandler(&fakeMessageService{}),
		News:     NewNewsHandler(nil),
		Admin:    NewAdminHandler(&fakeStats{}, &fakeReports{}),
	}, headerIdentity)
	return r
}

func TestRoutesEnforcePermissions(t *testing.T) {
	router := testRouter()
	cases := []struct {
		name   string
		method string
		path   string
		actor  string
		status int
	}{
		{"anonymous files", http.MethodGet, "/api/v1/files", "", http.StatusUnauthorized},
		{"user lists files", http.MethodGet, "/api/v1/files", "user", http.StatusOK},
		{"user cannot upload", http.MethodPost, "/api/v1/files", "user", http.StatusForbidden},
		{"user cannot bulk assign", http.MethodPost, "/api/v1/files/bulk-assign", "user", http.StatusForbidden},
		{"client cannot manage profiles", http.MethodGet, "/api/v1/profiles", "client", http.StatusForbidden},
		{"user cannot manage clients", http.MethodGet, "/api/v1/clients", "user", http.StatusForbidden},
		{"user cannot broadcast", http.MethodPost, "/api/v1/messages/broadcast", "user", http.StatusForbidden},
		{"client cannot write news", http.MethodPost, "/api/v1/news", "client", http.StatusForbidden},
		{"client cannot read error log", http.MethodGet, "/api/v1/admin/errors", "client", http.StatusForbidden},
		{"admin reads error log", http.MethodGet, "/api/v1/admin/errors", "admin", http.StatusOK},
		{"user unread count", http.MethodGet, "/api/v1/messages/unread-count", "user", http.StatusOK},
		{"blob needs no session", http.MethodGet, "/api/v1/files/blob?token=x", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.actor != "" {
				req.Header.Set("X-Test-Actor", tc.actor)
			}
			router.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}
