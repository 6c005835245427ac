package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/client-portal-api/internal/models"
	"github.com/noah-isme/client-portal-api/internal/policy"
	appErrors "github.com/noah-isme/client-portal-api/pkg/errors"
)

type messageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	FindByID(ctx context.Context, id string) (*models.Message, error)
	List(ctx context.Context, actorID string, filter models.MessageFilter) ([]models.Message, int, error)
	MarkRead(ctx context.Context, id, recipientID string, at time.Time) error
	Delete(ctx context.Context, id string) error
	UnreadCount(ctx context.Context, recipientID string) (int, error)
}

type memberLister interface {
	FindByID(ctx context.Context, id string) (*models.Profile, error)
	ListByClient(ctx context.Context, clientID string, role *models.Role) ([]models.Profile, error)
}

// SendMessageRequest is the payload for a direct message.
type SendMessageRequest struct {
	RecipientID string             `json:"recipient_id" validate:"required,max=64"`
	Subject     string             `json:"subject" validate:"required,max=200"`
	Content     string             `json:"content" validate:"required,max=10000"`
	MessageType models.MessageType `json:"message_type" validate:"omitempty,oneof=general support announcement system"`
}

// BroadcastMessageRequest is the payload for a client manager messaging every member of their client.
type BroadcastMessageRequest struct {
	Subject     string             `json:"subject" validate:"required,max=200"`
	Content     string             `json:"content" validate:"required,max=10000"`
	MessageType models.MessageType `json:"message_type" validate:"omitempty,oneof=general announcement"`
}

// MessageService implements direct messaging between profiles.
type MessageService struct {
	repo      messageRepository
	profiles  memberLister
	publisher ChangePublisher
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewMessageService creates a MessageService.
func NewMessageService(repo messageRepository, profiles memberLister, publisher ChangePublisher, validate *validator.Validate, logger *zap.Logger) *MessageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &MessageService{
		repo:      repo,
		profiles:  profiles,
		publisher: publisherOrNoop(publisher),
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// List returns messages the actor sent or received.
func (s *MessageService) List(ctx context.Context, actor models.Actor, filter models.MessageFilter) ([]models.Message, *models.Pagination, error) {
	switch filter.Folder {
	case "", models.FolderAll, models.FolderInbox, models.FolderSent:
	default:
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "folder must be one of all, inbox, sent")
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown message type")
	}
	if filter.DateFrom != nil && filter.DateTo != nil && filter.DateFrom.After(*filter.DateTo) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "date_from must not be after date_to")
	}
	filter.Search = strings.TrimSpace(filter.Search)
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)

	messages, total, err := s.repo.List(ctx, actor.ID, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list messages")
	}
	if messages == nil {
		messages = []models.Message{}
	}
	return messages, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns a message to its sender or recipient.
func (s *MessageService) Get(ctx context.Context, actor models.Actor, id string) (*models.Message, error) {
	msg, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !policy.CanReadMessage(actor, msg) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "message not found")
	}
	return msg, nil
}

// Send delivers one message. The sender is re-read from the profile table first so a stale
// identity cannot send under a role or client it no longer holds.
func (s *MessageService) Send(ctx context.Context, actor models.Actor, req SendMessageRequest) (*models.Message, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid message payload")
	}
	sender, err := s.currentSender(ctx, actor)
	if err != nil {
		return nil, err
	}
	msgType, err := s.messageType(sender, req.MessageType)
	if err != nil {
		return nil, err
	}
	return s.deliver(ctx, sender, req.RecipientID, req.Subject, req.Content, msgType)
}

// Broadcast sends one message to every other active member of the actor's client and reports
// per-recipient outcomes. Items are independent; a failed recipient does not undo the others.
func (s *MessageService) Broadcast(ctx context.Context, actor models.Actor, req BroadcastMessageRequest) (*models.BulkResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid broadcast payload")
	}
	sender, err := s.currentSender(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !policy.Has(sender.Role, policy.BroadcastToOwnClient) || !sender.HasClient() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only client managers with a client may broadcast")
	}
	msgType := req.MessageType
	if msgType == "" {
		msgType = models.MessageAnnouncement
	}

	members, err := s.profiles.ListByClient(ctx, sender.ClientID, nil)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list client members")
	}
	result := &models.BulkResult{}
	for _, member := range members {
		if member.ID == sender.ID {
			continue
		}
		if _, err := s.deliver(ctx, sender, member.ID, req.Subject, req.Content, msgType); err != nil {
			result.Fail(member.ID, appErrors.Normalize(err).Code, appErrors.Translate(err))
			continue
		}
		result.Succeed(member.ID)
	}
	return result, nil
}

// MarkRead sets read_at for the recipient. Repeated calls keep the first timestamp.
func (s *MessageService) MarkRead(ctx context.Context, actor models.Actor, id string) (*models.Message, error) {
	msg, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !policy.CanReadMessage(actor, msg) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "message not found")
	}
	if !policy.CanMarkRead(actor, msg) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the recipient may mark a message read")
	}
	if msg.ReadAt != nil {
		return msg, nil
	}
	if err := s.repo.MarkRead(ctx, msg.ID, actor.ID, s.now().UTC()); err != nil {
		return nil, appErrors.Internal(err, "failed to mark message read")
	}
	s.publisher.Publish(ctx, TopicMessages, "read", msg.ID)
	return s.load(ctx, id)
}

// Delete removes a message for its sender or recipient.
func (s *MessageService) Delete(ctx context.Context, actor models.Actor, id string) error {
	msg, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !policy.CanDeleteMessage(actor, msg) {
		return appErrors.Clone(appErrors.ErrNotFound, "message not found")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "message not found")
		}
		return appErrors.Internal(err, "failed to delete message")
	}
	s.publisher.Publish(ctx, TopicMessages, "deleted", id)
	return nil
}

// UnreadCount returns how many messages addressed to actor are unread.
func (s *MessageService) UnreadCount(ctx context.Context, actor models.Actor) (int, error) {
	count, err := s.repo.UnreadCount(ctx, actor.ID)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to count unread messages")
	}
	return count, nil
}

func (s *MessageService) deliver(ctx context.Context, sender models.Actor, recipientID, subject, content string, msgType models.MessageType) (*models.Message, error) {
	recipient, err := s.profiles.FindByID(ctx, recipientID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "recipient not found")
		}
		return nil, appErrors.Internal(err, "failed to load recipient")
	}
	if !recipient.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "recipient is inactive")
	}
	if !policy.CanMessage(sender, recipient) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you cannot message this recipient")
	}
	msg := &models.Message{
		SenderID:      sender.ID,
		RecipientID:   recipient.ID,
		Subject:       strings.TrimSpace(subject),
		Content:       content,
		MessageType:   msgType,
		CreatedAt:     s.now().UTC(),
		SenderName:    sender.FullName,
		RecipientName: recipient.FullName,
	}
	if err := s.repo.Create(ctx, msg); err != nil {
		return nil, appErrors.Normalize(err)
	}
	s.publisher.Publish(ctx, TopicMessages, "created", msg.ID)
	return msg, nil
}

// currentSender reloads the actor's profile and rejects identities that no longer match it.
func (s *MessageService) currentSender(ctx context.Context, actor models.Actor) (models.Actor, error) {
	profile, err := s.profiles.FindByID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Actor{}, appErrors.Clone(appErrors.ErrUnauthorized, "sender profile no longer exists")
		}
		return models.Actor{}, appErrors.Internal(err, "failed to verify sender")
	}
	if !profile.Active {
		return models.Actor{}, appErrors.ErrInactiveAccount
	}
	current := profile.Actor()
	if current.Role != actor.Role || current.ClientID != actor.ClientID {
		return models.Actor{}, appErrors.Clone(appErrors.ErrSessionExpired, "your permissions changed, please sign in again")
	}
	return current, nil
}

func (s *MessageService) messageType(sender models.Actor, requested models.MessageType) (models.MessageType, error) {
	if requested == "" {
		return models.MessageGeneral, nil
	}
	if requested == models.MessageSystem && !sender.IsAdmin() {
		return "", appErrors.Clone(appErrors.ErrForbidden, "only admins may send system messages")
	}
	return requested, nil
}

func (s *MessageService) load(ctx context.Context, id string) (*models.Message, error) {
	msg, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "message not found")
		}
		return nil, appErrors.Internal(err, "failed to load message")
	}
	return msg, nil
}
