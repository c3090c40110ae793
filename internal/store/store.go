package store

import (
	"context"
	"errors"

	"tokokita/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidSale       = errors.New("invalid sale")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrOrderLimitReached = errors.New("order limit reached")
)

// Repository is the persistence boundary for durable aggregates. The live
// cart and held-order queue are NOT persisted here; they are volatile state
// owned by the cart store.
type Repository interface {
	ListProducts(ctx context.Context, tenantID string) ([]domain.Product, error)
	GetProductByID(ctx context.Context, tenantID string, productID string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, tenantID string, productIDs []string) (map[string]domain.Product, error)
	// AdjustStock applies a signed stock delta, clamps the result at zero and
	// recomputes the product status from current vs minimum stock.
	AdjustStock(ctx context.Context, tenantID string, productID string, delta float64) (*domain.Product, error)

	GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error)
	ListCustomers(ctx context.Context, tenantID string) ([]domain.Customer, error)

	// CreateSale enforces the tenant order quota under the same lock (or SQL
	// transaction) as the insert; maxOrders < 0 disables the cap. Returns
	// ErrOrderLimitReached when the quota is hit.
	CreateSale(ctx context.Context, sale domain.Sale, maxOrders int) (*domain.Sale, error)
	GetSaleByID(ctx context.Context, saleID string) (*domain.Sale, error)
	FindSaleByCheckoutToken(ctx context.Context, token string) (*domain.Sale, error)
	CountSales(ctx context.Context, tenantID string) (int, error)
	ListSales(ctx context.Context, tenantID string, offset int, limit int) ([]domain.Sale, int, error)

	CreateReceipt(ctx context.Context, receipt domain.Receipt) (*domain.Receipt, error)
	GetReceiptBySaleID(ctx context.Context, saleID string) (*domain.Receipt, error)

	CreateRefund(ctx context.Context, refund domain.Refund) (*domain.Refund, error)
	ListRefunds(ctx context.Context, tenantID string, offset int, limit int) ([]domain.Refund, int, error)
	GetRefundedQtyBySale(ctx context.Context, saleID string) (map[string]float64, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLogEntry) error
	ListAuditLogs(ctx context.Context, tenantID string, limit int) ([]domain.AuditLogEntry, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
