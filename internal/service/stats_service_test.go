package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/client-portal-api/internal/models"
	"github.com/noah-isme/client-portal-api/pkg/errlog"
	appErrors "github.com/noah-isme/client-portal-api/pkg/errors"
)

type stubStatsRepo struct {
	stats *models.SystemStats
	err   error
	calls int
}

func (s *stubStatsRepo) SystemStats(context.Context) (*models.SystemStats, error) {
	s.calls++
	return s.stats, s.err
}

func TestStatsServiceSystemIsAdminOnlyAndCached(t *testing.T) {
	repo := &stubStatsRepo{stats: &models.SystemStats{Clients: 2, Files: 7}}
	cache, _ := newMemoryCache()
	svc := NewStatsService(repo, cache, nil, 0, nil)
	ctx := context.Background()

	_, err := svc.System(ctx, clientProfile("m1", "c1").Actor())
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	first, err := svc.System(ctx, adminProfile("a1").Actor())
	require.NoError(t, err)
	second, err := svc.System(ctx, adminProfile("a1").Actor())
	require.NoError(t, err)
	assert.Equal(t, first.Files, second.Files)
	assert.Equal(t, 1, repo.calls)
}

func TestStatsServiceSystemWrapsRepositoryFailure(t *testing.T) {
	svc := NewStatsService(&stubStatsRepo{err: errors.New("boom")}, nil, nil, 0, nil)
	_, err := svc.System(context.Background(), adminProfile("a1").Actor())
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}

func TestStatsServiceRecentErrors(t *testing.T) {
	ring := errlog.NewRing(3)
	for _, code := range []string{"A", "B", "C", "D"} {
		ring.Record(errlog.Entry{Code: code})
	}
	svc := NewStatsService(&stubStatsRepo{}, nil, ring, 0, nil)

	entries, err := svc.RecentErrors(adminProfile("a1").Actor(), 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "D", entries[0].Code)
	assert.Equal(t, "C", entries[1].Code)

	_, err = svc.RecentErrors(userProfile("u1", "c1").Actor(), 0)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}
