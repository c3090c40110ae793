package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"tokokita/backend/internal/cache"
	"tokokita/backend/internal/cart"
	"tokokita/backend/internal/domain"
	"tokokita/backend/internal/ids"
	"tokokita/backend/internal/policy"
	"tokokita/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo            store.Repository
	carts           *cart.Registry
	history         cache.HistoryCache
	historyTTL      time.Duration
	defaultTenantID string
}

func New(repo store.Repository, carts *cart.Registry, history cache.HistoryCache, historyTTL time.Duration, defaultTenantID string) *Service {
	if carts == nil {
		carts = cart.NewRegistry()
	}
	if history == nil {
		history = cache.NoopHistoryCache{}
	}
	if historyTTL < 1 {
		historyTTL = 30 * time.Second
	}
	if defaultTenantID == "" {
		defaultTenantID = "tenant-demo"
	}

	return &Service{
		repo:            repo,
		carts:           carts,
		history:         history,
		historyTTL:      historyTTL,
		defaultTenantID: defaultTenantID,
	}
}

func (s *Service) ListProducts(ctx context.Context, tenantID string) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, s.tenantOrDefault(tenantID))
}

func (s *Service) ListCustomers(ctx context.Context, tenantID string) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx, s.tenantOrDefault(tenantID))
}

func (s *Service) GetTenant(ctx context.Context, tenantID string) (domain.Tenant, error) {
	tenant, err := s.repo.GetTenant(ctx, s.tenantOrDefault(tenantID))
	if err != nil {
		return domain.Tenant{}, err
	}
	return *tenant, nil
}

func (s *Service) AddToCart(ctx context.Context, req domain.AddToCartRequest) (domain.CartResponse, error) {
	req.TenantID = s.tenantOrDefault(req.TenantID)
	req.TerminalID = strings.TrimSpace(req.TerminalID)
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.TerminalID == "" || req.ProductID == "" || req.Qty <= 0 {
		return domain.CartResponse{}, store.ErrInvalidSale
	}

	product, err := s.repo.GetProductByID(ctx, req.TenantID, req.ProductID)
	if err != nil {
		return domain.CartResponse{}, err
	}

	session := s.carts.Session(req.TenantID, req.TerminalID)
	session.AddItem(*product, req.Qty)

	return s.cartResponse(ctx, req.TenantID, session)
}

// UpdateQuantity applies a signed delta to a cart line. A resulting quantity
// of zero or below removes the line; a delta against a product not in the
// cart is a no-op and returns the cart unchanged.
func (s *Service) UpdateQuantity(ctx context.Context, req domain.UpdateQuantityRequest) (domain.CartResponse, error) {
	req.TenantID = s.tenantOrDefault(req.TenantID)
	req.TerminalID = strings.TrimSpace(req.TerminalID)
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.TerminalID == "" || req.ProductID == "" || req.Delta == 0 {
		return domain.CartResponse{}, store.ErrInvalidSale
	}

	session := s.carts.Session(req.TenantID, req.TerminalID)
	snapshot := session.Snapshot()

	current := float64(0)
	found := false
	for _, item := range snapshot.Items {
		if item.ProductID == req.ProductID {
			current = item.Qty
			found = true
			break
		}
	}
	if !found {
		return s.cartResponse(ctx, req.TenantID, session)
	}

	session.UpdateItemQuantity(req.ProductID, current+req.Delta)

	return s.cartResponse(ctx, req.TenantID, session)
}

func (s *Service) RemoveFromCart(ctx context.Context, tenantID string, terminalID string, productID string) (domain.CartResponse, error) {
	tenantID = s.tenantOrDefault(tenantID)
	terminalID = strings.TrimSpace(terminalID)
	productID = strings.TrimSpace(productID)
	if terminalID == "" || productID == "" {
		return domain.CartResponse{}, store.ErrInvalidSale
	}

	session := s.carts.Session(tenantID, terminalID)
	session.RemoveItem(productID)

	return s.cartResponse(ctx, tenantID, session)
}

func (s *Service) ClearCart(ctx context.Context, tenantID string, terminalID string) (domain.CartResponse, error) {
	tenantID = s.tenantOrDefault(tenantID)
	terminalID = strings.TrimSpace(terminalID)
	if terminalID == "" {
		return domain.CartResponse{}, store.ErrInvalidSale
	}

	session := s.carts.Session(tenantID, terminalID)
	session.Clear()

	return s.cartResponse(ctx, tenantID, session)
}

func (s *Service) SetDiscount(ctx context.Context, req domain.SetDiscountRequest) (domain.CartResponse, error) {
	req.TenantID = s.tenantOrDefault(req.TenantID)
	req.TerminalID = strings.TrimSpace(req.TerminalID)
	if req.TerminalID == "" {
		return domain.CartResponse{}, store.ErrInvalidSale
	}
	if req.Discount != nil {
		switch req.Discount.Type {
		case domain.DiscountTypePercentage:
			if req.Discount.Value < 0 || req.Discount.Value > 100 {
				return domain.CartResponse{}, store.ErrInvalidSale
			}
		case domain.DiscountTypeFixed:
			if req.Discount.Value < 0 {
				return domain.CartResponse{}, store.ErrInvalidSale
			}
		default:
			return domain.CartResponse{}, store.ErrInvalidSale
		}
	}

	session := s.carts.Session(req.TenantID, req.TerminalID)
	session.SetDiscount(req.Discount)

	return s.cartResponse(ctx, req.TenantID, session)
}

func (s *Service) SetCustomer(ctx context.Context, req domain.SetCustomerRequest) (domain.CartResponse, error) {
	req.TenantID = s.tenantOrDefault(req.TenantID)
	req.TerminalID = strings.TrimSpace(req.TerminalID)
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	if req.TerminalID == "" {
		return domain.CartResponse{}, store.ErrInvalidSale
	}

	if req.CustomerID != "" {
		customers, err := s.repo.ListCustomers(ctx, req.TenantID)
		if err != nil {
			return domain.CartResponse{}, err
		}
		known := false
		for _, c := range customers {
			if c.ID == req.CustomerID {
				known = true
				break
			}
		}
		if !known {
			return domain.CartResponse{}, store.ErrNotFound
		}
	}

	session := s.carts.Session(req.TenantID, req.TerminalID)
	session.SetSelectedCustomer(req.CustomerID)

	return s.cartResponse(ctx, req.TenantID, session)
}

func (s *Service) GetCart(ctx context.Context, tenantID string, terminalID string) (domain.CartResponse, error) {
	tenantID = s.tenantOrDefault(tenantID)
	terminalID = strings.TrimSpace(terminalID)
	if terminalID == "" {
		return domain.CartResponse{}, store.ErrInvalidSale
	}

	session := s.carts.Session(tenantID, terminalID)
	return s.cartResponse(ctx, tenantID, session)
}

// Checkout turns the terminal's live cart into a durable sale, receipt and
// stock adjustment. The client-supplied checkout token makes it replay-safe:
// a token already bound to a sale returns that sale unchanged.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	req.TenantID = s.tenantOrDefault(req.TenantID)
	req.TerminalID = strings.TrimSpace(req.TerminalID)
	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if req.PaymentMethod == "" {
		req.PaymentMethod = "cash"
	}
	if req.CheckoutToken == "" {
		req.CheckoutToken = ids.New("chk")
	}
	if req.TerminalID == "" || !isSupportedPaymentMethod(req.PaymentMethod) {
		return domain.CheckoutResponse{}, store.ErrInvalidSale
	}

	if existing, err := s.repo.FindSaleByCheckoutToken(ctx, req.CheckoutToken); err == nil {
		receipt, rErr := s.repo.GetReceiptBySaleID(ctx, existing.ID)
		if rErr != nil {
			return domain.CheckoutResponse{}, rErr
		}
		return domain.CheckoutResponse{Sale: *existing, Receipt: *receipt, Duplicate: true}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.CheckoutResponse{}, err
	}

	session := s.carts.Session(req.TenantID, req.TerminalID)
	snapshot := session.Snapshot()
	if len(snapshot.Items) == 0 {
		return domain.CheckoutResponse{}, fmt.Errorf("%w: cart is empty", store.ErrInvalidSale)
	}

	tenant, err := s.repo.GetTenant(ctx, req.TenantID)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	// Early quota check for a fast user-facing error; the authoritative check
	// runs again inside CreateSale under the store's lock.
	maxOrders := policy.MaxOrdersFor(*tenant)
	currentCount, err := s.repo.CountSales(ctx, req.TenantID)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	if !policy.CanCreateOrder(currentCount, maxOrders) {
		return domain.CheckoutResponse{}, store.ErrOrderLimitReached
	}

	productIDs := make([]string, 0, len(snapshot.Items))
	for _, item := range snapshot.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, req.TenantID, productIDs)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	// Line items are re-priced against the live catalog at the moment of
	// sale; the cart snapshot only decides what and how much.
	lineItems := make([]domain.SaleLineItem, 0, len(snapshot.Items))
	subtotal := int64(0)
	for _, item := range snapshot.Items {
		product, exists := products[item.ProductID]
		if !exists {
			return domain.CheckoutResponse{}, fmt.Errorf("%w: product %s no longer available", store.ErrInvalidSale, item.ProductID)
		}
		lineSubtotal := int64(math.Round(item.Qty * float64(product.UnitPriceCents)))
		lineItems = append(lineItems, domain.SaleLineItem{
			ProductID:      product.ID,
			Name:           product.Name,
			UnitPriceCents: product.UnitPriceCents,
			CostPriceCents: product.CostPriceCents,
			Qty:            item.Qty,
			SubtotalCents:  lineSubtotal,
		})
		subtotal += lineSubtotal
	}

	warnings := policy.StockWarnings(snapshot.Items, products)

	discountCents := discountCentsFor(snapshot.Discount, subtotal)
	taxBase := subtotal - discountCents
	taxCents := int64(math.Round(float64(taxBase) * tenant.TaxRatePercent / 100))
	grandTotal := taxBase + taxCents

	actor, _ := ActorFromContext(ctx)
	now := time.Now().UTC()
	sale := domain.Sale{
		ID:              ids.New("sale"),
		Number:          ids.SaleNumber(now),
		TenantID:        req.TenantID,
		CashierUserID:   actor.UserID,
		CustomerID:      snapshot.SelectedCustomerID,
		CheckoutToken:   req.CheckoutToken,
		LineItems:       lineItems,
		SubtotalCents:   subtotal,
		DiscountCents:   discountCents,
		TaxCents:        taxCents,
		GrandTotalCents: grandTotal,
		PaymentMethod:   req.PaymentMethod,
		Discount:        snapshot.Discount,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	created, err := s.repo.CreateSale(ctx, sale, maxOrders)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	// CreateSale returning an earlier sale for the same token means a
	// concurrent replay won; treat it as a duplicate and skip side effects.
	if created.ID != sale.ID {
		receipt, rErr := s.repo.GetReceiptBySaleID(ctx, created.ID)
		if rErr != nil {
			return domain.CheckoutResponse{}, rErr
		}
		return domain.CheckoutResponse{Sale: *created, Receipt: *receipt, Duplicate: true}, nil
	}

	receipt, err := s.repo.CreateReceipt(ctx, domain.Receipt{
		ID:            ids.New("rcpt"),
		SaleID:        created.ID,
		ReceiptNumber: ids.ReceiptNumber(now),
		TenantID:      req.TenantID,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	// The terminal is freed as soon as the sale is durable; inventory catches
	// up afterwards from the persisted line items.
	session.Clear()

	// Stock deductions are derived from the persisted sale so a crash between
	// sale and inventory never invents quantities. A failed deduction is
	// recorded and surfaced, not rolled back: the sale already happened.
	for _, line := range created.LineItems {
		if _, err := s.repo.AdjustStock(ctx, req.TenantID, line.ProductID, -line.Qty); err != nil {
			log.Printf("[service] WARN: stock deduction failed sale=%s product=%s qty=%.3f: %v", created.ID, line.ProductID, line.Qty, err)
			s.logAudit(ctx, req.TenantID, domain.AuditInventoryAdjustFail, "sale", created.ID, nil, nil, map[string]any{
				"product_id": line.ProductID,
				"qty":        line.Qty,
				"error":      err.Error(),
			})
		}
	}

	if err := s.history.InvalidateTenant(ctx, req.TenantID); err != nil {
		log.Printf("[service] WARN: history cache invalidation failed tenant=%s: %v", req.TenantID, err)
	}

	if created.Discount != nil {
		s.logAudit(ctx, req.TenantID, domain.AuditDiscountApplied, "sale", created.ID, nil, nil, map[string]any{
			"type":   created.Discount.Type,
			"value":  created.Discount.Value,
			"reason": created.Discount.Reason,
		})
	}
	s.logAudit(ctx, req.TenantID, domain.AuditSaleCompleted, "sale", created.ID, nil, nil, map[string]any{
		"number":            created.Number,
		"grand_total_cents": created.GrandTotalCents,
		"payment_method":    created.PaymentMethod,
		"items":             len(created.LineItems),
		"customer_id":       created.CustomerID,
	})

	return domain.CheckoutResponse{Sale: *created, Receipt: *receipt, Warnings: warnings}, nil
}

func (s *Service) HoldOrder(ctx context.Context, req domain.HoldOrderRequest) (domain.HeldOrderResponse, error) {
	req.TenantID = s.tenantOrDefault(req.TenantID)
	req.TerminalID = strings.TrimSpace(req.TerminalID)
	if req.TerminalID == "" {
		return domain.HeldOrderResponse{}, store.ErrInvalidSale
	}

	session := s.carts.Session(req.TenantID, req.TerminalID)
	snapshot := session.Snapshot()
	if len(snapshot.Items) == 0 {
		return domain.HeldOrderResponse{}, fmt.Errorf("%w: cart is empty", store.ErrInvalidSale)
	}

	actor, _ := ActorFromContext(ctx)
	held := domain.HeldOrder{
		ID:         ids.New("hold"),
		Items:      snapshot.Items,
		CustomerID: snapshot.SelectedCustomerID,
		Discount:   snapshot.Discount,
		HeldAt:     time.Now().UTC(),
		HeldBy:     actor.Username,
	}
	session.AddHeldOrder(held)
	session.Clear()

	s.logAudit(ctx, req.TenantID, domain.AuditOrderHeld, "held_order", held.ID, nil, nil, map[string]any{
		"items":        len(held.Items),
		"customer_id":  customerOrWalkIn(held.CustomerID),
		"has_discount": held.Discount != nil,
	})

	return domain.HeldOrderResponse{HeldOrder: held}, nil
}

// RecallOrder merges a held order back into the live cart. Items are re-added
// through the catalog so prices and snapshots reflect the products as they
// are now, not as they were when held; quantities already in the cart combine
// with the held ones. Products deleted in the meantime are dropped with a
// warning, and an unknown holdID is a no-op that returns the cart unchanged.
func (s *Service) RecallOrder(ctx context.Context, tenantID string, terminalID string, holdID string) (domain.CartResponse, error) {
	tenantID = s.tenantOrDefault(tenantID)
	terminalID = strings.TrimSpace(terminalID)
	holdID = strings.TrimSpace(holdID)
	if terminalID == "" || holdID == "" {
		return domain.CartResponse{}, store.ErrInvalidSale
	}

	session := s.carts.Session(tenantID, terminalID)
	held, ok := session.HeldOrder(holdID)
	if !ok {
		return s.cartResponse(ctx, tenantID, session)
	}

	productIDs := make([]string, 0, len(held.Items))
	for _, item := range held.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, tenantID, productIDs)
	if err != nil {
		return domain.CartResponse{}, err
	}

	for _, item := range held.Items {
		product, exists := products[item.ProductID]
		if !exists {
			log.Printf("[service] WARN: held product %s gone from catalog, dropped on recall hold=%s", item.ProductID, holdID)
			continue
		}
		session.AddItem(product, item.Qty)
	}
	if held.CustomerID != "" {
		session.SetSelectedCustomer(held.CustomerID)
	}
	if held.Discount != nil {
		session.SetDiscount(held.Discount)
	}
	session.RemoveHeldOrder(holdID)

	s.logAudit(ctx, tenantID, domain.AuditOrderRecalled, "held_order", holdID, auditSnapshot(held), nil, map[string]any{
		"items": len(held.Items),
	})

	return s.cartResponse(ctx, tenantID, session)
}

func (s *Service) DiscardHeldOrder(ctx context.Context, tenantID string, terminalID string, holdID string) error {
	tenantID = s.tenantOrDefault(tenantID)
	terminalID = strings.TrimSpace(terminalID)
	holdID = strings.TrimSpace(holdID)
	if terminalID == "" || holdID == "" {
		return store.ErrInvalidSale
	}

	session := s.carts.Session(tenantID, terminalID)
	if !session.RemoveHeldOrder(holdID) {
		return store.ErrNotFound
	}

	s.logAudit(ctx, tenantID, domain.AuditOrderDiscarded, "held_order", holdID, nil, nil, nil)
	return nil
}

func (s *Service) ListHeldOrders(_ context.Context, tenantID string, terminalID string) (domain.HeldOrderListResponse, error) {
	tenantID = s.tenantOrDefault(tenantID)
	terminalID = strings.TrimSpace(terminalID)
	if terminalID == "" {
		return domain.HeldOrderListResponse{}, store.ErrInvalidSale
	}

	session := s.carts.Session(tenantID, terminalID)
	return domain.HeldOrderListResponse{Items: session.HeldOrders()}, nil
}

func (s *Service) ListSales(ctx context.Context, tenantID string, page int, pageSize int) (domain.SalesPage, error) {
	tenantID = s.tenantOrDefault(tenantID)
	page, pageSize = normalizePage(page, pageSize)

	key := cache.SalesPageKey(tenantID, page, pageSize)
	if cached, hit, err := s.history.GetSalesPage(ctx, key); err == nil && hit {
		return *cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: history cache read failed tenant=%s: %v", tenantID, err)
	}

	sales, total, err := s.repo.ListSales(ctx, tenantID, (page-1)*pageSize, pageSize)
	if err != nil {
		return domain.SalesPage{}, err
	}

	result := domain.SalesPage{
		Sales:    sales,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
		HasMore:  page*pageSize < total,
	}

	if err := s.history.SetSalesPage(ctx, key, &result, s.historyTTL); err != nil {
		log.Printf("[service] WARN: history cache write failed tenant=%s: %v", tenantID, err)
	}

	return result, nil
}

func (s *Service) ListRefunds(ctx context.Context, tenantID string, page int, pageSize int) (domain.RefundsPage, error) {
	tenantID = s.tenantOrDefault(tenantID)
	page, pageSize = normalizePage(page, pageSize)

	refunds, total, err := s.repo.ListRefunds(ctx, tenantID, (page-1)*pageSize, pageSize)
	if err != nil {
		return domain.RefundsPage{}, err
	}

	return domain.RefundsPage{
		Refunds:  refunds,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
		HasMore:  page*pageSize < total,
	}, nil
}

func (s *Service) GetSale(ctx context.Context, saleID string) (domain.Sale, error) {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.Sale{}, store.ErrInvalidSale
	}
	sale, err := s.repo.GetSaleByID(ctx, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

// Refund reverses part or all of a sale. Per-product refunded quantities are
// tracked cumulatively across refunds, so repeated partial refunds can never
// exceed what the sale sold.
func (s *Service) Refund(ctx context.Context, req domain.RefundRequest) (domain.RefundResponse, error) {
	req.SaleID = strings.TrimSpace(req.SaleID)
	if req.SaleID == "" || len(req.Items) == 0 {
		return domain.RefundResponse{}, store.ErrInvalidSale
	}

	sale, err := s.repo.GetSaleByID(ctx, req.SaleID)
	if err != nil {
		return domain.RefundResponse{}, err
	}

	soldByProduct := make(map[string]domain.SaleLineItem, len(sale.LineItems))
	for _, line := range sale.LineItems {
		current := soldByProduct[line.ProductID]
		if current.ProductID == "" {
			current = line
		} else {
			current.Qty += line.Qty
		}
		soldByProduct[line.ProductID] = current
	}

	refundedSoFar, err := s.repo.GetRefundedQtyBySale(ctx, sale.ID)
	if err != nil {
		return domain.RefundResponse{}, err
	}

	requestedByProduct := make(map[string]float64, len(req.Items))
	for _, item := range req.Items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" || item.Qty <= 0 {
			return domain.RefundResponse{}, store.ErrInvalidSale
		}
		requestedByProduct[productID] += item.Qty
	}

	refundLines := make([]domain.RefundLineItem, 0, len(requestedByProduct))
	refundTotal := int64(0)
	for _, line := range sale.LineItems {
		qty, wants := requestedByProduct[line.ProductID]
		if !wants {
			continue
		}
		sold := soldByProduct[line.ProductID]
		if refundedSoFar[line.ProductID]+qty > sold.Qty {
			return domain.RefundResponse{}, fmt.Errorf("%w: refund qty exceeds sold qty for product %s", store.ErrInvalidSale, line.ProductID)
		}
		lineTotal := int64(math.Round(qty * float64(sold.UnitPriceCents)))
		refundLines = append(refundLines, domain.RefundLineItem{
			ProductID:      line.ProductID,
			Name:           sold.Name,
			Qty:            qty,
			UnitPriceCents: sold.UnitPriceCents,
			SubtotalCents:  lineTotal,
		})
		refundTotal += lineTotal
		delete(requestedByProduct, line.ProductID)
	}
	if len(requestedByProduct) > 0 {
		return domain.RefundResponse{}, fmt.Errorf("%w: refund references products not on the sale", store.ErrInvalidSale)
	}
	if refundTotal < 1 {
		return domain.RefundResponse{}, store.ErrInvalidSale
	}

	actor, _ := ActorFromContext(ctx)
	now := time.Now().UTC()
	refund := domain.Refund{
		ID:               ids.New("refund"),
		OriginalSaleID:   sale.ID,
		RefundNumber:     ids.RefundNumber(now),
		TenantID:         sale.TenantID,
		RefundedItems:    refundLines,
		RefundTotalCents: refundTotal,
		Reason:           strings.TrimSpace(req.Reason),
		ProcessedBy:      actor.Username,
		CreatedAt:        now,
	}

	created, err := s.repo.CreateRefund(ctx, refund)
	if err != nil {
		return domain.RefundResponse{}, err
	}

	// Refunded quantities go back on the shelf; a failed restock is logged
	// and audited like a failed deduction.
	for _, line := range created.RefundedItems {
		if _, err := s.repo.AdjustStock(ctx, sale.TenantID, line.ProductID, line.Qty); err != nil {
			log.Printf("[service] WARN: restock failed refund=%s product=%s qty=%.3f: %v", created.ID, line.ProductID, line.Qty, err)
			s.logAudit(ctx, sale.TenantID, domain.AuditInventoryAdjustFail, "refund", created.ID, nil, nil, map[string]any{
				"product_id": line.ProductID,
				"qty":        line.Qty,
				"error":      err.Error(),
			})
		}
	}

	if err := s.history.InvalidateTenant(ctx, sale.TenantID); err != nil {
		log.Printf("[service] WARN: history cache invalidation failed tenant=%s: %v", sale.TenantID, err)
	}

	s.logAudit(ctx, sale.TenantID, domain.AuditRefundIssued, "sale", sale.ID, nil, nil, map[string]any{
		"refund_id":          created.ID,
		"refund_total_cents": created.RefundTotalCents,
		"items":              len(created.RefundedItems),
	})

	return domain.RefundResponse{Refund: *created}, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, tenantID string, limit int) ([]domain.AuditLogEntry, error) {
	tenantID = s.tenantOrDefault(tenantID)
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, tenantID, limit)
}

func (s *Service) cartResponse(ctx context.Context, tenantID string, session *cart.Store) (domain.CartResponse, error) {
	snapshot := session.Snapshot()

	tenant, err := s.repo.GetTenant(ctx, tenantID)
	if err != nil {
		return domain.CartResponse{}, err
	}

	var warnings []domain.StockWarning
	if len(snapshot.Items) > 0 {
		productIDs := make([]string, 0, len(snapshot.Items))
		for _, item := range snapshot.Items {
			productIDs = append(productIDs, item.ProductID)
		}
		products, err := s.repo.GetProductsByIDs(ctx, tenantID, productIDs)
		if err != nil {
			return domain.CartResponse{}, err
		}
		warnings = policy.StockWarnings(snapshot.Items, products)
	}

	subtotal := int64(0)
	for _, item := range snapshot.Items {
		subtotal += item.SubtotalCents
	}
	discountCents := discountCentsFor(snapshot.Discount, subtotal)
	taxBase := subtotal - discountCents
	taxCents := int64(math.Round(float64(taxBase) * tenant.TaxRatePercent / 100))

	return domain.CartResponse{
		Cart:            snapshot,
		SubtotalCents:   subtotal,
		DiscountCents:   discountCents,
		TaxCents:        taxCents,
		GrandTotalCents: taxBase + taxCents,
		Warnings:        warnings,
	}, nil
}

func (s *Service) tenantOrDefault(tenantID string) string {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return s.defaultTenantID
	}
	return tenantID
}

func (s *Service) logAudit(ctx context.Context, tenantID string, action string, entityType string, entityID string, before map[string]any, after map[string]any, metadata map[string]any) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLogEntry{
		ID:         ids.New("audit"),
		TenantID:   tenantID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		UserID:     actor.UserID,
		UserName:   actor.Username,
		Before:     before,
		After:      after,
		Metadata:   metadata,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

// auditSnapshot renders a value into the generic map shape audit entries
// store for their before/after images.
func auditSnapshot(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

// customerOrWalkIn names the customer on audit entries; an anonymous sale is
// recorded as "walk-in".
func customerOrWalkIn(customerID string) string {
	if customerID == "" {
		return "walk-in"
	}
	return customerID
}

// discountCentsFor resolves a cart discount to cents, clamped to the
// subtotal so totals never go negative.
func discountCentsFor(discount *domain.Discount, subtotalCents int64) int64 {
	if discount == nil || subtotalCents < 1 {
		return 0
	}

	var cents int64
	switch discount.Type {
	case domain.DiscountTypePercentage:
		cents = int64(math.Round(float64(subtotalCents) * discount.Value / 100))
	case domain.DiscountTypeFixed:
		cents = int64(math.Round(discount.Value))
	}

	if cents < 0 {
		return 0
	}
	if cents > subtotalCents {
		return subtotalCents
	}
	return cents
}

func normalizePage(page int, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

func isSupportedPaymentMethod(method string) bool {
	switch method {
	case "cash", "card", "qris", "ewallet":
		return true
	default:
		return false
	}
}
