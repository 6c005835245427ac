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
	"github.com/noah-isme/client-portal-api/internal/repository"
	appErrors "github.com/noah-isme/client-portal-api/pkg/errors"
)

type profileRepository interface {
	FindByID(ctx context.Context, id string) (*models.Profile, error)
	FindByEmail(ctx context.Context, email string) (*models.Profile, error)
	List(ctx context.Context, filter models.ProfileFilter) ([]models.Profile, int, error)
	ListByClient(ctx context.Context, clientID string, role *models.Role) ([]models.Profile, error)
	ListPeerCandidates(ctx context.Context, clientID, excludeID string, everyone bool) ([]models.Profile, error)
	Create(ctx context.Context, profile *models.Profile) error
	Update(ctx context.Context, profile *models.Profile) error
	UpdateName(ctx context.Context, id, fullName string) error
	Delete(ctx context.Context, id string) error
}

type sessionRevoker interface {
	RevokeProfileRefreshTokens(ctx context.Context, profileID string) error
}

// CreateProfileRequest is the admin payload for creating a profile.
type CreateProfileRequest struct {
	Email    string      `json:"email" validate:"required,email"`
	FullName string      `json:"full_name" validate:"required,max=200"`
	Role     models.Role `json:"role" validate:"required,oneof=admin client user"`
	ClientID *string     `json:"client_id" validate:"omitempty,max=64"`
	Password string      `json:"password" validate:"required,min=8"`
	Active   *bool       `json:"active"`
}

// CreateClientUserRequest is the client-manager payload for adding a user to their own client.
type CreateClientUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	FullName string `json:"full_name" validate:"required,max=200"`
	Password string `json:"password" validate:"required,min=8"`
}

// UpdateProfileRequest changes a profile. Nil fields are left as they are.
type UpdateProfileRequest struct {
	FullName *string      `json:"full_name" validate:"omitempty,min=1,max=200"`
	Role     *models.Role `json:"role" validate:"omitempty,oneof=admin client user"`
	ClientID *string      `json:"client_id" validate:"omitempty,max=64"`
	// ClearClient detaches the profile from its client.
	ClearClient bool  `json:"clear_client"`
	Active      *bool `json:"active"`
}

// UpdateNameRequest is the self-service payload.
type UpdateNameRequest struct {
	FullName string `json:"full_name" validate:"required,max=200"`
}

// ProfileService manages portal accounts.
type ProfileService struct {
	repo      profileRepository
	sessions  sessionRevoker
	validator *validator.Validate
	logger    *zap.Logger
	cache     *CacheService
}

const profileCacheTTL = 2 * time.Minute

// NewProfileService creates a ProfileService.
func NewProfileService(repo profileRepository, sessions sessionRevoker, validate *validator.Validate, logger *zap.Logger) *ProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ProfileService{repo: repo, sessions: sessions, validator: validate, logger: logger}
}

// WithCache caches each actor's own profile under its session namespace.
func (s *ProfileService) WithCache(cache *CacheService) *ProfileService {
	s.cache = cache
	return s
}

// Me returns the actor's own profile.
func (s *ProfileService) Me(ctx context.Context, actor models.Actor) (*models.Profile, error) {
	return Remember(ctx, s.cache, repository.SessionKey(actor.ID, "profile"), profileCacheTTL, func(ctx context.Context) (*models.Profile, error) {
		return s.load(ctx, actor.ID)
	})
}

// UpdateName lets any actor rename themselves.
func (s *ProfileService) UpdateName(ctx context.Context, actor models.Actor, req UpdateNameRequest) (*models.Profile, error) {
	req.FullName = strings.TrimSpace(req.FullName)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}
	if err := s.repo.UpdateName(ctx, actor.ID, req.FullName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "profile not found")
		}
		return nil, appErrors.Internal(err, "failed to update profile")
	}
	s.forget(ctx, actor.ID)
	return s.load(ctx, actor.ID)
}

// List returns profiles for admins.
func (s *ProfileService) List(ctx context.Context, actor models.Actor, filter models.ProfileFilter) ([]models.Profile, *models.Pagination, error) {
	if !policy.Has(actor.Role, policy.ManageUsers) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may list all profiles")
	}
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)
	profiles, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list profiles")
	}
	if profiles == nil {
		profiles = []models.Profile{}
	}
	return profiles, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns a profile the actor may manage, or the actor's own.
func (s *ProfileService) Get(ctx context.Context, actor models.Actor, id string) (*models.Profile, error) {
	profile, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if profile.ID != actor.ID && !policy.CanManageProfile(actor, profile) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "profile not found")
	}
	return profile, nil
}

// Create adds a profile on behalf of an admin.
func (s *ProfileService) Create(ctx context.Context, actor models.Actor, req CreateProfileRequest) (*models.Profile, error) {
	if !policy.Has(actor.Role, policy.ManageUsers) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may create profiles")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create profile payload")
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	clientID := emptyToNil(req.ClientID)
	if !models.ValidRoleBinding(req.Role, clientID, active) {
		return nil, roleBindingError(req.Role)
	}
	return s.create(ctx, req.Email, req.FullName, req.Password, req.Role, clientID, active)
}

// ClientUsers lists the users of the actor's own client.
func (s *ProfileService) ClientUsers(ctx context.Context, actor models.Actor) ([]models.Profile, error) {
	if !policy.Has(actor.Role, policy.ManageOwnUsers) || !actor.HasClient() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only client managers may list their users")
	}
	role := models.RoleUser
	profiles, err := s.repo.ListByClient(ctx, actor.ClientID, &role)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list client users")
	}
	if profiles == nil {
		profiles = []models.Profile{}
	}
	return profiles, nil
}

// CreateClientUser adds a user under the actor's own client.
func (s *ProfileService) CreateClientUser(ctx context.Context, actor models.Actor, req CreateClientUserRequest) (*models.Profile, error) {
	if !policy.Has(actor.Role, policy.ManageOwnUsers) || !actor.HasClient() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only client managers may add users")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create user payload")
	}
	clientID := actor.ClientID
	return s.create(ctx, req.Email, req.FullName, req.Password, models.RoleUser, &clientID, true)
}

// Update changes a profile. Client managers may only rename or (de)activate their own users.
func (s *ProfileService) Update(ctx context.Context, actor models.Actor, id string, req UpdateProfileRequest) (*models.Profile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update profile payload")
	}
	profile, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !policy.CanManageProfile(actor, profile) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you cannot manage this profile")
	}
	bindingChange := req.Role != nil || req.ClientID != nil || req.ClearClient
	if bindingChange && !policy.Has(actor.Role, policy.ManageUsers) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may change roles or clients")
	}
	if profile.ID == actor.ID && req.Active != nil && !*req.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "you cannot deactivate your own profile")
	}

	wasActive := profile.Active
	if req.FullName != nil {
		profile.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.Role != nil {
		profile.Role = *req.Role
	}
	if req.ClearClient {
		profile.ClientID = nil
	} else if req.ClientID != nil {
		profile.ClientID = emptyToNil(req.ClientID)
	}
	if req.Active != nil {
		profile.Active = *req.Active
	}
	if bindingChange || req.Active != nil {
		profile.Pending = false
	}
	if !models.ValidRoleBinding(profile.Role, profile.ClientID, profile.Active) {
		return nil, roleBindingError(profile.Role)
	}

	if err := s.repo.Update(ctx, profile); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "profile not found")
		}
		return nil, appErrors.Normalize(err)
	}
	if (wasActive && !profile.Active) || bindingChange {
		s.revokeSessions(ctx, profile.ID)
	}
	s.forget(ctx, profile.ID)
	return profile, nil
}

// Delete removes a profile. Admin only, never the actor itself.
func (s *ProfileService) Delete(ctx context.Context, actor models.Actor, id string) error {
	if !policy.Has(actor.Role, policy.ManageUsers) {
		return appErrors.Clone(appErrors.ErrForbidden, "only admins may delete profiles")
	}
	if id == actor.ID {
		return appErrors.Clone(appErrors.ErrValidation, "you cannot delete your own profile")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "profile not found")
		}
		return appErrors.Normalize(err)
	}
	s.forget(ctx, id)
	return nil
}

// Peers returns the profiles actor may message.
func (s *ProfileService) Peers(ctx context.Context, actor models.Actor) ([]models.Profile, error) {
	candidates, err := s.repo.ListPeerCandidates(ctx, actor.ClientID, actor.ID, policy.Has(actor.Role, policy.MessageAnyone))
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list contacts")
	}
	peers := make([]models.Profile, 0, len(candidates))
	for i := range candidates {
		if policy.CanMessage(actor, &candidates[i]) {
			peers = append(peers, candidates[i])
		}
	}
	return peers, nil
}

func (s *ProfileService) create(ctx context.Context, email, fullName, password string, role models.Role, clientID *string, active bool) (*models.Profile, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Internal(err, "failed to check email uniqueness")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to hash password")
	}
	profile := &models.Profile{
		Email:        email,
		FullName:     strings.TrimSpace(fullName),
		Role:         role,
		ClientID:     clientID,
		PasswordHash: hash,
		Active:       active,
	}
	if err := s.repo.Create(ctx, profile); err != nil {
		return nil, appErrors.Normalize(err)
	}
	s.logger.Info("profile created", zap.String("profile_id", profile.ID), zap.String("role", string(role)))
	return profile, nil
}

func (s *ProfileService) load(ctx context.Context, id string) (*models.Profile, error) {
	profile, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "profile not found")
		}
		return nil, appErrors.Internal(err, "failed to load profile")
	}
	return profile, nil
}

func (s *ProfileService) revokeSessions(ctx context.Context, profileID string) {
	if s.sessions == nil {
		return
	}
	if err := s.sessions.RevokeProfileRefreshTokens(ctx, profileID); err != nil {
		s.logger.Warn("revoke sessions after profile change", zap.String("profile_id", profileID), zap.Error(err))
	}
}

func (s *ProfileService) forget(ctx context.Context, profileID string) {
	_, _ = s.cache.Invalidate(ctx, repository.SessionPattern(profileID))
}

func roleBindingError(role models.Role) error {
	if role == models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrValidation, "admins cannot belong to a client")
	}
	return appErrors.Clone(appErrors.ErrValidation, "active clients and users must belong to a client")
}

func emptyToNil(v *string) *string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	return &trimmed
}
