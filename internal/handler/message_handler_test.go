package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/client-portal-api/internal/models"
	"github.com/noah-isme/client-portal-api/internal/service"
	appErrors "github.com/noah-isme/client-portal-api/pkg/errors"
)

type fakeMessageService struct {
	lastFilter models.MessageFilter
	lastSend   service.SendMessageRequest
	broadcast  *models.BulkResult
	err        error
}

func (f *fakeMessageService) List(_ context.Context, _ models.Actor, filter models.MessageFilter) ([]models.Message, *models.Pagination, error) {
	f.lastFilter = filter
	return []models.Message{}, &models.Pagination{Page: 1, PageSize: 20}, f.err
}

func (f *fakeMessageService) Get(context.Context, models.Actor, string) (*models.Message, error) {
	return nil, f.err
}

func (f *fakeMessageService) Send(_ context.Context, _ models.Actor, req service.SendMessageRequest) (*models.Message, error) {
	f.lastSend = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.Message{ID: "message-1", Subject: req.Subject}, nil
}

func (f *fakeMessageService) Broadcast(context.Context, models.Actor, service.BroadcastMessageRequest) (*models.BulkResult, error) {
	if f.broadcast != nil {
		return f.broadcast, f.err
	}
	return &models.BulkResult{}, f.err
}

func (f *fakeMessageService) MarkRead(_ context.Context, _ models.Actor, id string) (*models.Message, error) {
	return &models.Message{ID: id}, f.err
}

func (f *fakeMessageService) Delete(context.Context, models.Actor, string) error {
	return f.err
}

func (f *fakeMessageService) UnreadCount(context.Context, models.Actor) (int, error) {
	return 4, f.err
}

func TestMessageHandlerListFilters(t *testing.T) {
	svc := &fakeMessageService{}
	handler := NewMessageHandler(svc)

	c, rec := newTestContext(http.MethodGet, "/messages?folder=inbox&type=support&read=unread&search=invoice&date_from=2024-05-01", nil)
	asActor(c, userActor)
	handler.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.FolderInbox, svc.lastFilter.Folder)
	assert.Equal(t, models.MessageType("support"), svc.lastFilter.Type)
	require.NotNil(t, svc.lastFilter.Read)
	assert.False(t, *svc.lastFilter.Read)
	assert.Equal(t, "invoice", svc.lastFilter.Search)
	require.NotNil(t, svc.lastFilter.DateFrom)
	assert.Nil(t, svc.lastFilter.DateTo)
}

func TestMessageHandlerListDefaultsToAllFolders(t *testing.T) {
	svc := &fakeMessageService{}
	handler := NewMessageHandler(svc)

	c, _ := newTestContext(http.MethodGet, "/messages", nil)
	asActor(c, userActor)
	handler.List(c)

	assert.Equal(t, models.FolderAll, svc.lastFilter.Folder)
	assert.Nil(t, svc.lastFilter.Read)
}

func TestMessageHandlerSendForbiddenRecipient(t *testing.T) {
	svc := &fakeMessageService{err: appErrors.Clone(appErrors.ErrForbidden, "you cannot message this profile")}
	handler := NewMessageHandler(svc)

	c, rec := newTestContext(http.MethodPost, "/messages", jsonBody(`{"recipient_id":"p-2","subject":"Hi","content":"Hello"}`))
	asActor(c, userActor)
	handler.Send(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "p-2", svc.lastSend.RecipientID)
	assert.Equal(t, "you cannot message this profile", decodeEnvelope(t, rec).Error.Message)
}

func TestMessageHandlerUnreadCount(t *testing.T) {
	handler := NewMessageHandler(&fakeMessageService{})

	c, rec := newTestContext(http.MethodGet, "/messages/unread-count", nil)
	asActor(c, clientActor)
	handler.UnreadCount(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"unread":4}`, string(decodeEnvelope(t, rec).Data))
}

func TestMessageHandlerBroadcastStatusFollowsOutcome(t *testing.T) {
	partial := &models.BulkResult{}
	partial.Succeed("u-1")
	partial.Fail("u-2", appErrors.ErrInternal.Code, "failed to send message")
	failed := &models.BulkResult{}
	failed.Fail("u-2", appErrors.ErrInternal.Code, "failed to send message")
	delivered := &models.BulkResult{}
	delivered.Succeed("u-1")

	for name, tc := range map[string]struct {
		result *models.BulkResult
		status int
	}{
		"all delivered": {delivered, http.StatusOK},
		"some failed":   {partial, http.StatusMultiStatus},
		"none":          {failed, http.StatusUnprocessableEntity},
	} {
		t.Run(name, func(t *testing.T) {
			handler := NewMessageHandler(&fakeMessageService{broadcast: tc.result})
			c, rec := newTestContext(http.MethodPost, "/messages/broadcast", jsonBody(`{"subject":"Hi","content":"All hands"}`))
			asActor(c, clientActor)
			handler.Broadcast(c)

			assert.Equal(t, tc.status, rec.Code)
			envelope := decodeEnvelope(t, rec)
			assert.NotEmpty(t, envelope.Data)
		})
	}
}
