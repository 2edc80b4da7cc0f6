package cache

import (
	"context"
	"time"

	"icepos/backend/internal/domain"
)

// StatusCache holds the advisory live-shift view. Misses and errors are
// both acceptable: callers fall through to the store and keep going.
type StatusCache interface {
	Get(ctx context.Context, key string) (*domain.LiveShiftStatus, bool, error)
	Set(ctx context.Context, key string, value *domain.LiveShiftStatus, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

type NoopStatusCache struct{}

func (NoopStatusCache) Get(_ context.Context, _ string) (*domain.LiveShiftStatus, bool, error) {
	return nil, false, nil
}

func (NoopStatusCache) Set(_ context.Context, _ string, _ *domain.LiveShiftStatus, _ time.Duration) error {
	return nil
}

func (NoopStatusCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
