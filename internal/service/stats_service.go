package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/client-portal-api/internal/models"
	"github.com/noah-isme/client-portal-api/internal/policy"
	"github.com/noah-isme/client-portal-api/pkg/errlog"
	appErrors "github.com/noah-isme/client-portal-api/pkg/errors"
)

const systemStatsCacheKey = "stats:system"

type statsRepository interface {
	SystemStats(ctx context.Context) (*models.SystemStats, error)
}

// StatsService serves the admin dashboard figures and the recent error log.
type StatsService struct {
	repo   statsRepository
	cache  *CacheService
	errors *errlog.Ring
	ttl    time.Duration
	logger *zap.Logger
}

// NewStatsService creates a StatsService. cache and ring may be nil.
func NewStatsService(repo statsRepository, cache *CacheService, ring *errlog.Ring, ttl time.Duration, logger *zap.Logger) *StatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &StatsService{repo: repo, cache: cache, errors: ring, ttl: ttl, logger: logger}
}

// System returns portal-wide counts for admins.
func (s *StatsService) System(ctx context.Context, actor models.Actor) (*models.SystemStats, error) {
	if !policy.Has(actor.Role, policy.ViewSystemStats) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may view system statistics")
	}
	return Remember(ctx, s.cache, systemStatsCacheKey, s.ttl, func(ctx context.Context) (*models.SystemStats, error) {
		stats, err := s.repo.SystemStats(ctx)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to load system statistics")
		}
		return stats, nil
	})
}

// RecentErrors returns the newest captured errors, newest first.
func (s *StatsService) RecentErrors(actor models.Actor, limit int) ([]errlog.Entry, error) {
	if !policy.Has(actor.Role, policy.ViewErrorLog) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may view the error log")
	}
	if s.errors == nil {
		return []errlog.Entry{}, nil
	}
	return s.errors.Snapshot(limit), nil
}
