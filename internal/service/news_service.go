package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/client-portal-api/internal/models"
	"github.com/noah-isme/client-portal-api/internal/policy"
	appErrors "github.com/noah-isme/client-portal-api/pkg/errors"
)

type newsRepository interface {
	Create(ctx context.Context, news *models.News, assignments []*models.NewsAssignment) error
	Update(ctx context.Context, news *models.News) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*models.News, error)
	ListVisible(ctx context.Context, actor models.Actor, filter models.NewsFilter) ([]models.News, int, error)
	CreateAssignment(ctx context.Context, a *models.NewsAssignment) error
	ListAssignments(ctx context.Context, newsID string) ([]models.NewsAssignment, error)
	DeleteAssignment(ctx context.Context, newsID, assignmentID string) error
}

// NewsRequest is the payload for creating or updating news.
type NewsRequest struct {
	Title   string `json:"title" validate:"required,max=200"`
	Content string `json:"content" validate:"required"`
	// Targets are assigned on creation; an empty list leaves the item unassigned.
	Targets []models.AssignmentTarget `json:"targets" validate:"omitempty,dive"`
}

// NewsService manages announcements and who sees them.
type NewsService struct {
	repo      newsRepository
	publisher ChangePublisher
	validator *validator.Validate
	logger    *zap.Logger
}

// NewNewsService creates a NewsService.
func NewNewsService(repo newsRepository, publisher ChangePublisher, validate *validator.Validate, logger *zap.Logger) *NewsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &NewsService{repo: repo, publisher: publisherOrNoop(publisher), validator: validate, logger: logger}
}

// List returns news visible to actor.
func (s *NewsService) List(ctx context.Context, actor models.Actor, filter models.NewsFilter) ([]models.News, *models.Pagination, error) {
	if !policy.Has(actor.Role, policy.ViewNews) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "you cannot view news")
	}
	filter.Search = strings.TrimSpace(filter.Search)
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)
	items, total, err := s.repo.ListVisible(ctx, actor, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list news")
	}
	if items == nil {
		items = []models.News{}
	}
	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns a news item actor may see.
func (s *NewsService) Get(ctx context.Context, actor models.Actor, id string) (*models.News, error) {
	news, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	assignments, err := s.repo.ListAssignments(ctx, id)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load news assignments")
	}
	if !policy.CanViewNews(actor, assignments) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "news not found")
	}
	return news, nil
}

// Create publishes a news item and assigns its initial targets.
func (s *NewsService) Create(ctx context.Context, actor models.Actor, req NewsRequest) (*models.News, error) {
	if err := s.requireManager(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid news payload")
	}
	seen := make(map[models.AssignmentTarget]struct{}, len(req.Targets))
	assignments := make([]*models.NewsAssignment, 0, len(req.Targets))
	for _, t := range req.Targets {
		if err := t.Validate(true); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
		}
		if _, dup := seen[t]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, "targets must not repeat")
		}
		seen[t] = struct{}{}
		assignments = append(assignments, &models.NewsAssignment{Target: t, AssignedBy: actor.ID})
	}
	news := &models.News{Title: strings.TrimSpace(req.Title), Content: req.Content, CreatedBy: actor.ID}
	if err := s.repo.Create(ctx, news, assignments); err != nil {
		normalized := appErrors.Normalize(err)
		if normalized.Code == appErrors.ErrConflict.Code {
			return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "news is already assigned to this target")
		}
		return nil, normalized
	}
	s.publisher.Publish(ctx, TopicNews, "created", news.ID)
	return news, nil
}

// Update rewrites title and content.
func (s *NewsService) Update(ctx context.Context, actor models.Actor, id string, req NewsRequest) (*models.News, error) {
	if err := s.requireManager(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid news payload")
	}
	news, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	news.Title = strings.TrimSpace(req.Title)
	news.Content = req.Content
	if err := s.repo.Update(ctx, news); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "news not found")
		}
		return nil, appErrors.Internal(err, "failed to update news")
	}
	s.publisher.Publish(ctx, TopicNews, "updated", news.ID)
	return news, nil
}

// Delete removes a news item and its assignments.
func (s *NewsService) Delete(ctx context.Context, actor models.Actor, id string) error {
	if err := s.requireManager(actor); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "news not found")
		}
		return appErrors.Internal(err, "failed to delete news")
	}
	s.publisher.Publish(ctx, TopicNews, "deleted", id)
	return nil
}

// Assign grants a user, a client or everyone visibility of a news item.
func (s *NewsService) Assign(ctx context.Context, actor models.Actor, newsID string, target models.AssignmentTarget) (*models.NewsAssignment, error) {
	if err := s.requireManager(actor); err != nil {
		return nil, err
	}
	if err := target.Validate(true); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	if _, err := s.load(ctx, newsID); err != nil {
		return nil, err
	}
	assignment, err := s.assign(ctx, actor, newsID, target)
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(ctx, TopicNews, "assigned", newsID)
	return assignment, nil
}

// Assignments lists who a news item is assigned to.
func (s *NewsService) Assignments(ctx context.Context, actor models.Actor, newsID string) ([]models.NewsAssignment, error) {
	if err := s.requireManager(actor); err != nil {
		return nil, err
	}
	if _, err := s.load(ctx, newsID); err != nil {
		return nil, err
	}
	assignments, err := s.repo.ListAssignments(ctx, newsID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list news assignments")
	}
	return assignments, nil
}

// Unassign removes one assignment of a news item.
func (s *NewsService) Unassign(ctx context.Context, actor models.Actor, newsID, assignmentID string) error {
	if err := s.requireManager(actor); err != nil {
		return err
	}
	if err := s.repo.DeleteAssignment(ctx, newsID, assignmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return appErrors.Internal(err, "failed to remove news assignment")
	}
	s.publisher.Publish(ctx, TopicNews, "unassigned", newsID)
	return nil
}

func (s *NewsService) assign(ctx context.Context, actor models.Actor, newsID string, target models.AssignmentTarget) (*models.NewsAssignment, error) {
	assignment := &models.NewsAssignment{NewsID: newsID, Target: target, AssignedBy: actor.ID}
	if err := s.repo.CreateAssignment(ctx, assignment); err != nil {
		normalized := appErrors.Normalize(err)
		if normalized.Code == appErrors.ErrConflict.Code {
			return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "news is already assigned to this target")
		}
		return nil, normalized
	}
	return assignment, nil
}

func (s *NewsService) requireManager(actor models.Actor) error {
	if !policy.Has(actor.Role, policy.ManageNews) {
		return appErrors.Clone(appErrors.ErrForbidden, "only admins may manage news")
	}
	return nil
}

func (s *NewsService) load(ctx context.Context, id string) (*models.News, error) {
	news, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "news not found")
		}
		return nil, appErrors.Internal(err, "failed to load news")
	}
	return news, nil
}
