package cache

import (
	"context"
	"time"

	"tienda/pos/internal/domain"
)

// CatalogCache holds short-lived product search snapshots. The inventory
// view refreshes on a fixed tick, so entries only need to live for one tick
// interval; a stale read is at most that old.
type CatalogCache interface {
	Get(ctx context.Context, key string) ([]domain.Product, bool, error)
	Set(ctx context.Context, key string, products []domain.Product, ttl time.Duration) error
}

type NoopCatalogCache struct{}

func (NoopCatalogCache) Get(_ context.Context, _ string) ([]domain.Product, bool, error) {
	return nil, false, nil
}

func (NoopCatalogCache) Set(_ context.Context, _ string, _ []domain.Product, _ time.Duration) error {
	return nil
}
