package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/client-portal-api/pkg/errors"
	"github.com/noah-isme/client-portal-api/pkg/ratelimit"
)

// RateAction names a rate limited operation.
type RateAction string

const (
	RateUpload   RateAction = "upload"
	RateDownload RateAction = "download"
	RateDelete   RateAction = "delete"
)

// RateLimits is the per-window budget for each action. Zero disables the action's limit.
type RateLimits struct {
	Uploads   int
	Downloads int
	Deletes   int
	Window    time.Duration
}

func (l RateLimits) budget(action RateAction) int {
	switch action {
	case RateUpload:
		return l.Uploads
	case RateDownload:
		return l.Downloads
	case RateDelete:
		return l.Deletes
	}
	return 0
}

// RateGuard applies per-actor fixed windows to file operations.
type RateGuard struct {
	limiter ratelimit.Limiter
	limits  RateLimits
	metrics *MetricsService
	logger  *zap.Logger
}

// NewRateGuard builds a guard; a nil limiter disables limiting.
func NewRateGuard(limiter ratelimit.Limiter, limits RateLimits, metrics *MetricsService, logger *zap.Logger) *RateGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limits.Window <= 0 {
		limits.Window = time.Minute
	}
	return &RateGuard{limiter: limiter, limits: limits, metrics: metrics, logger: logger}
}

// Check consumes one unit of actor's budget for action.
func (g *RateGuard) Check(ctx context.Context, actorID string, action RateAction) error {
	if g == nil || g.limiter == nil {
		return nil
	}
	limit := g.limits.budget(action)
	if limit <= 0 {
		return nil
	}
	decision, err := g.limiter.Allow(ctx, fmt.Sprintf("%s:%s", action, actorID), limit, g.limits.Window)
	if err != nil {
		g.logger.Warn("rate limiter unavailable", zap.String("action", string(action)), zap.Error(err))
		return nil
	}
	if decision.Allowed {
		return nil
	}
	g.metrics.RecordRateLimited(string(action))
	return appErrors.Clone(appErrors.ErrRateLimited, RateLimitMessage(decision.ResetAt))
}

// RateLimitMessage renders the user-facing message for a budget that resets at resetAt.
func RateLimitMessage(resetAt time.Time) string {
	return "too many requests, try again after " + resetAt.UTC().Format("15:04:05")
}
