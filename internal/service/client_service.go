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

type clientRepository interface {
	FindByID(ctx context.Context, id string) (*models.Client, error)
	List(ctx context.Context, filter models.ClientFilter) ([]models.Client, int, error)
	Create(ctx context.Context, client *models.Client) error
	Update(ctx context.Context, client *models.Client) error
	AssignManager(ctx context.Context, clientID, profileID string) error
	Delete(ctx context.Context, id string) error
}

// CreateClientRequest is the admin payload for a new tenant.
type CreateClientRequest struct {
	CompanyName   string  `json:"company_name" validate:"required,max=200"`
	ContactEmail  string  `json:"contact_email" validate:"required,email"`
	ClientAdminID *string `json:"client_admin_id" validate:"omitempty,max=64"`
}

// UpdateClientRequest changes a tenant. Nil fields are left as they are.
type UpdateClientRequest struct {
	CompanyName   *string              `json:"company_name" validate:"omitempty,min=1,max=200"`
	ContactEmail  *string              `json:"contact_email" validate:"omitempty,email"`
	Status        *models.ClientStatus `json:"status" validate:"omitempty,oneof=active inactive"`
	ClientAdminID *string              `json:"client_admin_id" validate:"omitempty,max=64"`
}

// ClientService manages tenant organizations.
type ClientService struct {
	repo      clientRepository
	profiles  profileFinder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClientService creates a ClientService.
func NewClientService(repo clientRepository, profiles profileFinder, validate *validator.Validate, logger *zap.Logger) *ClientService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ClientService{repo: repo, profiles: profiles, validator: validate, logger: logger}
}

// List returns clients for admins.
func (s *ClientService) List(ctx context.Context, actor models.Actor, filter models.ClientFilter) ([]models.Client, *models.Pagination, error) {
	if !policy.Has(actor.Role, policy.ManageClients) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may list clients")
	}
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)
	clients, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list clients")
	}
	if clients == nil {
		clients = []models.Client{}
	}
	return clients, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns a client to an admin or to its own members.
func (s *ClientService) Get(ctx context.Context, actor models.Actor, id string) (*models.Client, error) {
	if !policy.Has(actor.Role, policy.ManageClients) && actor.ClientID != id {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "client not found")
	}
	return s.load(ctx, id)
}

// Create adds a client and optionally promotes its manager.
func (s *ClientService) Create(ctx context.Context, actor models.Actor, req CreateClientRequest) (*models.Client, error) {
	if !policy.Has(actor.Role, policy.ManageClients) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may create clients")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create client payload")
	}
	client := &models.Client{
		CompanyName:  strings.TrimSpace(req.CompanyName),
		ContactEmail: strings.ToLower(strings.TrimSpace(req.ContactEmail)),
		Status:       models.ClientStatusActive,
	}
	if err := s.repo.Create(ctx, client); err != nil {
		return nil, appErrors.Normalize(err)
	}
	if manager := emptyToNil(req.ClientAdminID); manager != nil {
		if err := s.assignManager(ctx, client.ID, *manager); err != nil {
			return nil, err
		}
		client.ClientAdminID = manager
	}
	s.logger.Info("client created", zap.String("client_id", client.ID), zap.String("actor_id", actor.ID))
	return client, nil
}

// Update changes a client; setting client_admin_id promotes that profile to its manager.
func (s *ClientService) Update(ctx context.Context, actor models.Actor, id string, req UpdateClientRequest) (*models.Client, error) {
	if !policy.Has(actor.Role, policy.ManageClients) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may update clients")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update client payload")
	}
	client, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.CompanyName != nil {
		client.CompanyName = strings.TrimSpace(*req.CompanyName)
	}
	if req.ContactEmail != nil {
		client.ContactEmail = strings.ToLower(strings.TrimSpace(*req.ContactEmail))
	}
	if req.Status != nil {
		client.Status = *req.Status
	}
	if err := s.repo.Update(ctx, client); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "client not found")
		}
		return nil, appErrors.Normalize(err)
	}
	if manager := emptyToNil(req.ClientAdminID); manager != nil && (client.ClientAdminID == nil || *client.ClientAdminID != *manager) {
		if err := s.assignManager(ctx, client.ID, *manager); err != nil {
			return nil, err
		}
		client.ClientAdminID = manager
	}
	return client, nil
}

// Delete removes a client; its members are detached and deactivated.
func (s *ClientService) Delete(ctx context.Context, actor models.Actor, id string) error {
	if !policy.Has(actor.Role, policy.ManageClients) {
		return appErrors.Clone(appErrors.ErrForbidden, "only admins may delete clients")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "client not found")
		}
		return appErrors.Normalize(err)
	}
	s.logger.Info("client deleted", zap.String("client_id", id), zap.String("actor_id", actor.ID))
	return nil
}

func (s *ClientService) assignManager(ctx context.Context, clientID, profileID string) error {
	profile, err := s.profiles.FindByID(ctx, profileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "manager profile not found")
		}
		return appErrors.Internal(err, "failed to load manager profile")
	}
	if profile.Role == models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrValidation, "an admin cannot manage a client")
	}
	if profile.ClientID != nil && *profile.ClientID != clientID {
		return appErrors.Clone(appErrors.ErrConflict, "profile already belongs to another client")
	}
	if err := s.repo.AssignManager(ctx, clientID, profileID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "client not found")
		}
		return appErrors.Normalize(err)
	}
	return nil
}

func (s *ClientService) load(ctx context.Context, id string) (*models.Client, error) {
	client, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "client not found")
		}
		return nil, appErrors.Internal(err, "failed to load client")
	}
	return client, nil
}
