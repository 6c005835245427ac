package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/noah-isme/client-portal-api/internal/models"
	appErrors "github.com/noah-isme/client-portal-api/pkg/errors"
)

type stubProfiles struct {
	mu       sync.Mutex
	byID     map[string]*models.Profile
	findErr  error
	finds    int
	created  []*models.Profile
	updated  []*models.Profile
	revoked  []string
	passHash map[string]string
}

func newStubProfiles(profiles ...*models.Profile) *stubProfiles {
	s := &stubProfiles{byID: make(map[string]*models.Profile), passHash: make(map[string]string)}
	for _, p := range profiles {
		s.byID[p.ID] = p
	}
	return s
}

func (s *stubProfiles) FindByID(_ context.Context, id string) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finds++
	if s.findErr != nil {
		return nil, s.findErr
	}
	p, ok := s.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *p
	return &clone, nil
}

func (s *stubProfiles) FindByEmail(_ context.Context, email string) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.byID {
		if strings.EqualFold(p.Email, email) {
			clone := *p
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubProfiles) List(_ context.Context, _ models.ProfileFilter) ([]models.Profile, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Profile, 0, len(s.byID))
	for _, p := range s.byID {
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (s *stubProfiles) ListByClient(_ context.Context, clientID string, role *models.Role) ([]models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Profile
	for _, p := range s.byID {
		if p.ClientRef() != clientID || !p.Active {
			continue
		}
		if role != nil && p.Role != *role {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (s *stubProfiles) ListPeerCandidates(_ context.Context, clientID, excludeID string, everyone bool) ([]models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Profile
	for _, p := range s.byID {
		if p.ID == excludeID || !p.Active {
			continue
		}
		if everyone || p.Role == models.RoleAdmin || (clientID != "" && p.ClientRef() == clientID) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *stubProfiles) Create(_ context.Context, profile *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	clone := *profile
	s.byID[profile.ID] = &clone
	s.created = append(s.created, &clone)
	return nil
}

func (s *stubProfiles) Update(_ context.Context, profile *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[profile.ID]; !ok {
		return sql.ErrNoRows
	}
	clone := *profile
	s.byID[profile.ID] = &clone
	s.updated = append(s.updated, &clone)
	return nil
}

func (s *stubProfiles) UpdateName(_ context.Context, id, fullName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return sql.ErrNoRows
	}
	p.FullName = fullName
	return nil
}

func (s *stubProfiles) UpdatePassword(_ context.Context, id, passwordHash string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.byID[id]; ok {
		p.PasswordHash = passwordHash
	}
	return nil
}

func (s *stubProfiles) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.byID, id)
	return nil
}

func (s *stubProfiles) RevokeProfileRefreshTokens(_ context.Context, profileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked = append(s.revoked, profileID)
	return nil
}

var pqUniqueViolation = pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"}

func strPtr(v string) *string { return &v }

func adminProfile(id string) *models.Profile {
	return &models.Profile{ID: id, Email: id + "@portal.test", FullName: "Admin " + id, Role: models.RoleAdmin, Active: true}
}

func clientProfile(id, clientID string) *models.Profile {
	return &models.Profile{ID: id, Email: id + "@portal.test", FullName: "Manager " + id, Role: models.RoleClient, ClientID: strPtr(clientID), Active: true}
}

func userProfile(id, clientID string) *models.Profile {
	return &models.Profile{ID: id, Email: id + "@portal.test", FullName: "User " + id, Role: models.RoleUser, ClientID: strPtr(clientID), Active: true}
}

type publishedChange struct {
	topic, action, id string
}

type recordingPublisher struct {
	mu      sync.Mutex
	changes []publishedChange
}

func (p *recordingPublisher) Publish(_ context.Context, topic, action, id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, publishedChange{topic: topic, action: action, id: id})
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.changes)
}

type memoryCacheRepo struct {
	mu    sync.Mutex
	store map[string][]byte
}

func (r *memoryCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	payload, ok := r.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (r *memoryCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.store == nil {
		r.store = make(map[string][]byte)
	}
	r.store[key] = payload
	return nil
}

func (r *memoryCacheRepo) Delete(_ context.Context, keys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range keys {
		delete(r.store, key)
	}
	return nil
}

func (r *memoryCacheRepo) DeleteByPattern(_ context.Context, pattern string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	removed := 0
	for key := range r.store {
		if strings.HasPrefix(key, prefix) {
			delete(r.store, key)
			removed++
		}
	}
	return removed, nil
}

func newMemoryCache() (*CacheService, *memoryCacheRepo) {
	repo := &memoryCacheRepo{}
	return NewCacheService(repo, nil, time.Minute, nil, true), repo
}
