// Package policy holds the read-only validation rules consumed before cart
// mutation and checkout: stock warnings and per-tenant order quotas. It has
// no I/O; callers fetch the snapshots and pass them in.
package policy

import (
	"tokokita/backend/internal/domain"
)

// Plan order quotas. A negative value means no cap.
const (
	FreePlanMaxOrders     = 50
	StandardPlanMaxOrders = 500
	ProPlanMaxOrders      = -1
)

// StockWarnings flags every cart item whose requested quantity meets or
// exceeds the product's current stock. These are advisory: checkout proceeds
// unless the caller decides to block.
func StockWarnings(items []domain.CartItem, products map[string]domain.Product) []domain.StockWarning {
	warnings := make([]domain.StockWarning, 0, len(items))
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok {
			// Snapshot is all we have; warn against it rather than stay silent.
			product = item.Product
		}
		if item.Qty >= product.CurrentStock {
			warnings = append(warnings, domain.StockWarning{
				ProductID:   item.ProductID,
				ProductName: product.Name,
				Requested:   item.Qty,
				Available:   product.CurrentStock,
			})
		}
	}
	return warnings
}

// MaxOrdersFor resolves the tenant's order quota: an explicit override wins,
// otherwise the plan default applies.
func MaxOrdersFor(tenant domain.Tenant) int {
	if tenant.MaxOrdersOverride > 0 {
		return tenant.MaxOrdersOverride
	}
	switch tenant.Plan {
	case domain.PlanStandard:
		return StandardPlanMaxOrders
	case domain.PlanPro:
		return ProPlanMaxOrders
	default:
		return FreePlanMaxOrders
	}
}

// CanCreateOrder reports whether another sale fits under the quota.
func CanCreateOrder(currentCount int, maxOrders int) bool {
	if maxOrders < 0 {
		return true
	}
	return currentCount < maxOrders
}

// ProductStatusFor recomputes the stock status after every stock change.
func ProductStatusFor(currentStock float64, minimumStock float64) string {
	switch {
	case currentStock <= 0:
		return domain.ProductStatusOutOfStock
	case currentStock <= minimumStock:
		return domain.ProductStatusLowStock
	default:
		return domain.ProductStatusInStock
	}
}
