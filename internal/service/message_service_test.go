package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/client-portal-api/internal/models"
	appErrors "github.com/noah-isme/client-portal-api/pkg/errors"
)

type stubMessages struct {
	mu   sync.Mutex
	byID map[string]*models.Message
}

func newStubMessages() *stubMessages {
	return &stubMessages{byID: make(map[string]*models.Message)}
}

func (s *stubMessages) Create(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	clone := *msg
	s.byID[msg.ID] = &clone
	return nil
}

func (s *stubMessages) FindByID(_ context.Context, id string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *m
	return &clone, nil
}

func (s *stubMessages) List(_ context.Context, actorID string, _ models.MessageFilter) ([]models.Message, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.byID {
		if m.SenderID == actorID || m.RecipientID == actorID {
			out = append(out, *m)
		}
	}
	return out, len(out), nil
}

func (s *stubMessages) MarkRead(_ context.Context, id, recipientID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.byID[id]; ok && m.RecipientID == recipientID && m.ReadAt == nil {
		m.ReadAt = &at
	}
	return nil
}

func (s *stubMessages) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.byID, id)
	return nil
}

func (s *stubMessages) UnreadCount(_ context.Context, recipientID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.byID {
		if m.RecipientID == recipientID && m.ReadAt == nil {
			n++
		}
	}
	return n, nil
}

func newMessageFixture(profiles ...*models.Profile) (*MessageService, *stubMessages, *stubProfiles, *recordingPublisher) {
	repo := newStubMessages()
	people := newStubProfiles(profiles...)
	pub := &recordingPublisher{}
	return NewMessageService(repo, people, pub, nil, nil), repo, people, pub
}

func TestMessageServiceSendFollowsPeerRule(t *testing.T) {
	admin := adminProfile("a1")
	manager := clientProfile("m1", "c1")
	user := userProfile("u1", "c1")
	stranger := userProfile("u2", "c2")
	svc, _, _, pub := newMessageFixture(admin, manager, user, stranger)
	ctx := context.Background()

	msg, err := svc.Send(ctx, user.Actor(), SendMessageRequest{RecipientID: "m1", Subject: "Hi", Content: "Question"})
	require.NoError(t, err)
	assert.Equal(t, models.MessageGeneral, msg.MessageType)
	assert.Equal(t, 1, pub.count())

	_, err = svc.Send(ctx, user.Actor(), SendMessageRequest{RecipientID: "a1", Subject: "Hi", Content: "Help"})
	require.NoError(t, err)

	_, err = svc.Send(ctx, user.Actor(), SendMessageRequest{RecipientID: "u2", Subject: "Hi", Content: "x"})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.Send(ctx, user.Actor(), SendMessageRequest{RecipientID: "u1", Subject: "Hi", Content: "x"})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.Send(ctx, user.Actor(), SendMessageRequest{RecipientID: uuid.NewString(), Subject: "Hi", Content: "x"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestMessageServiceSendRejectsStaleIdentity(t *testing.T) {
	user := userProfile("u1", "c1")
	svc, _, people, _ := newMessageFixture(adminProfile("a1"), user)
	ctx := context.Background()

	stale := models.Actor{ID: "u1", Role: models.RoleClient, ClientID: "c1"}
	_, err := svc.Send(ctx, stale, SendMessageRequest{RecipientID: "a1", Subject: "Hi", Content: "x"})
	assert.ErrorIs(t, err, appErrors.ErrSessionExpired)

	delete(people.byID, "u1")
	_, err = svc.Send(ctx, user.Actor(), SendMessageRequest{RecipientID: "a1", Subject: "Hi", Content: "x"})
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestMessageServiceMarkReadIsIdempotentAndRecipientOnly(t *testing.T) {
	admin := adminProfile("a1")
	user := userProfile("u1", "c1")
	svc, _, _, _ := newMessageFixture(admin, user)
	ctx := context.Background()
	first := time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC)

	msg, err := svc.Send(ctx, admin.Actor(), SendMessageRequest{RecipientID: "u1", Subject: "Welcome", Content: "Hello"})
	require.NoError(t, err)

	_, err = svc.MarkRead(ctx, admin.Actor(), msg.ID)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	svc.now = func() time.Time { return first }
	read, err := svc.MarkRead(ctx, user.Actor(), msg.ID)
	require.NoError(t, err)
	require.NotNil(t, read.ReadAt)
	assert.Equal(t, first, *read.ReadAt)

	svc.now = func() time.Time { return first.Add(time.Hour) }
	again, err := svc.MarkRead(ctx, user.Actor(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, first, *again.ReadAt)

	count, err := svc.UnreadCount(ctx, user.Actor())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMessageServiceBroadcastReportsPerRecipient(t *testing.T) {
	manager := clientProfile("m1", "c1")
	inactive := userProfile("u3", "c1")
	inactive.Active = false
	svc, repo, _, _ := newMessageFixture(adminProfile("a1"), manager, userProfile("u1", "c1"), userProfile("u2", "c1"), inactive, userProfile("x1", "c2"))
	ctx := context.Background()

	result, err := svc.Broadcast(ctx, manager.Actor(), BroadcastMessageRequest{Subject: "Notice", Content: "Office closed"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, result.Succeeded)
	assert.Empty(t, result.Failed)
	assert.Len(t, repo.byID, 2)
	for _, m := range repo.byID {
		assert.Equal(t, models.MessageAnnouncement, m.MessageType)
	}

	_, err = svc.Broadcast(ctx, userProfile("u1", "c1").Actor(), BroadcastMessageRequest{Subject: "x", Content: "y"})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestMessageServiceVisibility(t *testing.T) {
	admin := adminProfile("a1")
	user := userProfile("u1", "c1")
	other := userProfile("u2", "c1")
	svc, _, _, _ := newMessageFixture(admin, user, other)
	ctx := context.Background()

	msg, err := svc.Send(ctx, admin.Actor(), SendMessageRequest{RecipientID: "u1", Subject: "Private", Content: "For u1"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, other.Actor(), msg.ID)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	err = svc.Delete(ctx, other.Actor(), msg.ID)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	require.NoError(t, svc.Delete(ctx, user.Actor(), msg.ID))

	_, _, err = svc.List(ctx, user.Actor(), models.MessageFilter{Folder: "trash"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestMessageServiceSystemMessagesAreAdminOnly(t *testing.T) {
	manager := clientProfile("m1", "c1")
	svc, _, _, _ := newMessageFixture(adminProfile("a1"), manager, userProfile("u1", "c1"))

	_, err := svc.Send(context.Background(), manager.Actor(), SendMessageRequest{RecipientID: "u1", Subject: "x", Content: "y", MessageType: models.MessageSystem})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}
