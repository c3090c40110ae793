package cache

import (
	"context"
	"time"

	"tokokita/backend/internal/domain"
)

// HistoryCache holds rendered sales-history pages keyed by tenant, page and
// page size. Entries are short-lived and invalidated whenever a checkout or
// refund lands for the tenant.
type HistoryCache interface {
	GetSalesPage(ctx context.Context, key string) (*domain.SalesPage, bool, error)
	SetSalesPage(ctx context.Context, key string, value *domain.SalesPage, ttl time.Duration) error
	InvalidateTenant(ctx context.Context, tenantID string) error
}

type NoopHistoryCache struct{}

func (NoopHistoryCache) GetSalesPage(_ context.Context, _ string) (*domain.SalesPage, bool, error) {
	return nil, false, nil
}

func (NoopHistoryCache) SetSalesPage(_ context.Context, _ string, _ *domain.SalesPage, _ time.Duration) error {
	return nil
}

func (NoopHistoryCache) InvalidateTenant(_ context.Context, _ string) error {
	return nil
}
