package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"tokokita/backend/internal/cache"
	"tokokita/backend/internal/cart"
	"tokokita/backend/internal/domain"
	"tokokita/backend/internal/store"
	"tokokita/backend/internal/store/memory"
)

func newTestService() (*Service, *memory.Store) {
	repo := memory.NewSeeded()
	svc := New(repo, cart.NewRegistry(), cache.NoopHistoryCache{}, 5*time.Second, "tenant-demo")
	return svc, repo
}

func testCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		UserID:   "user-test",
		Username: "admin",
		Role:     "admin",
		TenantID: "tenant-demo",
	})
}

func addToCart(t *testing.T, svc *Service, ctx context.Context, terminal, productID string, qty float64) {
	t.Helper()
	_, err := svc.AddToCart(ctx, domain.AddToCartRequest{
		TenantID:   "tenant-demo",
		TerminalID: terminal,
		ProductID:  productID,
		Qty:        qty,
	})
	if err != nil {
		t.Fatalf("add to cart failed: %v", err)
	}
}

func TestCheckoutHappyPath(t *testing.T) {
	svc, repo := newTestService()
	ctx := testCtx()

	addToCart(t, svc, ctx, "terminal-1", "prod-mie-01", 2)

	resp, err := svc.Checkout(ctx, domain.CheckoutRequest{
		TerminalID:    "terminal-1",
		CheckoutToken: "tok-happy",
		PaymentMethod: "cash",
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	if resp.Sale.SubtotalCents != 7000 {
		t.Fatalf("expected subtotal 7000, got %d", resp.Sale.SubtotalCents)
	}
	// tenant-demo carries 11% tax.
	if resp.Sale.TaxCents != 770 {
		t.Fatalf("expected tax 770, got %d", resp.Sale.TaxCents)
	}
	if resp.Sale.GrandTotalCents != 7770 {
		t.Fatalf("expected grand total 7770, got %d", resp.Sale.GrandTotalCents)
	}
	if resp.Receipt.SaleID != resp.Sale.ID {
		t.Fatalf("expected receipt bound to sale, got %+v", resp.Receipt)
	}
	if resp.Duplicate {
		t.Fatalf("first checkout must not be a duplicate")
	}

	product, err := repo.GetProductByID(ctx, "tenant-demo", "prod-mie-01")
	if err != nil {
		t.Fatalf("product lookup failed: %v", err)
	}
	if product.CurrentStock != 118 {
		t.Fatalf("expected stock 118 after deduction, got %v", product.CurrentStock)
	}

	cartResp, err := svc.GetCart(ctx, "tenant-demo", "terminal-1")
	if err != nil {
		t.Fatalf("get cart failed: %v", err)
	}
	if len(cartResp.Cart.Items) != 0 {
		t.Fatalf("expected cleared cart after checkout")
	}
}

func TestCheckoutEmptyCartRejected(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Checkout(testCtx(), domain.CheckoutRequest{
		TerminalID:    "terminal-empty",
		CheckoutToken: "tok-empty",
	})
	if !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("expected ErrInvalidSale for empty cart, got %v", err)
	}
}

func TestCheckoutTokenReplayDoesNotDeductTwice(t *testing.T) {
	svc, repo := newTestService()
	ctx := testCtx()

	addToCart(t, svc, ctx, "terminal-1", "prod-mie-01", 2)

	first, err := svc.Checkout(ctx, domain.CheckoutRequest{
		TerminalID:    "terminal-1",
		CheckoutToken: "tok-replay",
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	second, err := svc.Checkout(ctx, domain.CheckoutRequest{
		TerminalID:    "terminal-1",
		CheckoutToken: "tok-replay",
	})
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if !second.Duplicate {
		t.Fatalf("expected replay to be flagged duplicate")
	}
	if second.Sale.ID != first.Sale.ID {
		t.Fatalf("expected replay to return the original sale")
	}
	if second.Receipt.ID != first.Receipt.ID {
		t.Fatalf("expected replay to return the original receipt")
	}

	product, _ := repo.GetProductByID(ctx, "tenant-demo", "prod-mie-01")
	if product.CurrentStock != 118 {
		t.Fatalf("expected single deduction (118), got %v", product.CurrentStock)
	}
}

func TestCheckoutOrderQuotaBoundary(t *testing.T) {
	svc, repo := newTestService()
	ctx := WithActor(context.Background(), domain.Actor{
		UserID:   "user-free",
		Username: "cashier",
		Role:     "cashier",
		TenantID: "tenant-free",
	})

	// tenant-free is on the free plan: 50 sales, then a hard stop.
	for i := 0; i < 50; i++ {
		_, err := svc.AddToCart(ctx, domain.AddToCartRequest{
			TenantID:   "tenant-free",
			TerminalID: "terminal-f1",
			ProductID:  "prod-air-01",
			Qty:        1,
		})
		if err != nil {
			t.Fatalf("add to cart %d failed: %v", i, err)
		}
		_, err = svc.Checkout(ctx, domain.CheckoutRequest{
			TenantID:      "tenant-free",
			TerminalID:    "terminal-f1",
			CheckoutToken: fmt.Sprintf("tok-quota-%d", i),
		})
		if err != nil {
			t.Fatalf("checkout %d failed: %v", i, err)
		}
	}

	_, err := svc.AddToCart(ctx, domain.AddToCartRequest{
		TenantID:   "tenant-free",
		TerminalID: "terminal-f1",
		ProductID:  "prod-air-01",
		Qty:        1,
	})
	if err != nil {
		t.Fatalf("add to cart failed: %v", err)
	}
	_, err = svc.Checkout(ctx, domain.CheckoutRequest{
		TenantID:      "tenant-free",
		TerminalID:    "terminal-f1",
		CheckoutToken: "tok-quota-over",
	})
	if !errors.Is(err, store.ErrOrderLimitReached) {
		t.Fatalf("expected ErrOrderLimitReached, got %v", err)
	}

	count, _ := repo.CountSales(ctx, "tenant-free")
	if count != 50 {
		t.Fatalf("expected exactly 50 sales after blocked checkout, got %d", count)
	}
}

func TestCheckoutStockClampsAtZero(t *testing.T) {
	svc, repo := newTestService()
	ctx := testCtx()

	// prod-kopi-01 has 200 in stock; sell 300.
	addToCart(t, svc, ctx, "terminal-1", "prod-kopi-01", 300)

	resp, err := svc.Checkout(ctx, domain.CheckoutRequest{
		TerminalID:    "terminal-1",
		CheckoutToken: "tok-clamp",
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if len(resp.Warnings) != 1 || resp.Warnings[0].ProductID != "prod-kopi-01" {
		t.Fatalf("expected a stock warning for prod-kopi-01, got %+v", resp.Warnings)
	}

	product, _ := repo.GetProductByID(ctx, "tenant-demo", "prod-kopi-01")
	if product.CurrentStock != 0 {
		t.Fatalf("expected stock clamped at 0, got %v", product.CurrentStock)
	}
	if product.Status != domain.ProductStatusOutOfStock {
		t.Fatalf("expected out_of_stock status, got %s", product.Status)
	}
}

type stockHookRepo struct {
	store.Repository
	onAdjust func()
}

func (r *stockHookRepo) AdjustStock(ctx context.Context, tenantID string, productID string, delta float64) (*domain.Product, error) {
	if r.onAdjust != nil {
		r.onAdjust()
	}
	return r.Repository.AdjustStock(ctx, tenantID, productID, delta)
}

type quotaFullRepo struct {
	store.Repository
	saleAttempts int
}

func (r *quotaFullRepo) CountSales(_ context.Context, _ string) (int, error) {
	return 500, nil
}

func (r *quotaFullRepo) CreateSale(ctx context.Context, sale domain.Sale, maxOrders int) (*domain.Sale, error) {
	r.saleAttempts++
	return r.Repository.CreateSale(ctx, sale, maxOrders)
}

func TestCheckoutQuotaPreCheckShortCircuits(t *testing.T) {
	repo := &quotaFullRepo{Repository: memory.NewSeeded()}
	svc := New(repo, cart.NewRegistry(), cache.NoopHistoryCache{}, 5*time.Second, "tenant-demo")
	ctx := testCtx()

	addToCart(t, svc, ctx, "terminal-1", "prod-mie-01", 1)

	_, err := svc.Checkout(ctx, domain.CheckoutRequest{
		TerminalID:    "terminal-1",
		CheckoutToken: "tok-quota-full",
	})
	if !errors.Is(err, store.ErrOrderLimitReached) {
		t.Fatalf("expected order limit error, got %v", err)
	}
	if repo.saleAttempts != 0 {
		t.Fatalf("expected quota check to run before sale creation, saw %d attempts", repo.saleAttempts)
	}
}

func TestCheckoutClearsCartBeforeStockDeduction(t *testing.T) {
	repo := &stockHookRepo{Repository: memory.NewSeeded()}
	svc := New(repo, cart.NewRegistry(), cache.NoopHistoryCache{}, 5*time.Second, "tenant-demo")
	ctx := testCtx()

	addToCart(t, svc, ctx, "terminal-1", "prod-mie-01", 2)

	itemsAtDeduction := -1
	repo.onAdjust = func() {
		itemsAtDeduction = len(svc.carts.Session("tenant-demo", "terminal-1").Snapshot().Items)
	}

	if _, err := svc.Checkout(ctx, domain.CheckoutRequest{
		TerminalID:    "terminal-1",
		CheckoutToken: "tok-ordering",
	}); err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if itemsAtDeduction != 0 {
		t.Fatalf("expected cart cleared before stock deduction, saw %d items", itemsAtDeduction)
	}
}

func TestCheckoutRejectsUnknownPaymentMethod(t *testing.T) {
	svc, _ := newTestService()
	ctx := testCtx()

	addToCart(t, svc, ctx, "terminal-1", "prod-mie-01", 1)

	_, err := svc.Checkout(ctx, domain.CheckoutRequest{
		TerminalID:    "terminal-1",
		CheckoutToken: "tok-bad-method",
		PaymentMethod: "barter",
	})
	if !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("expected ErrInvalidSale for unsupported payment method, got %v", err)
	}
}

func TestReceiptIsOnePerSale(t *testing.T) {
	svc, repo := newTestService()
	ctx := testCtx()

	addToCart(t, svc, ctx, "terminal-1", "prod-mie-01", 1)
	resp, err := svc.Checkout(ctx, domain.CheckoutRequest{
		TerminalID:    "terminal-1",
		CheckoutToken: "tok-receipt",
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	_, err = repo.CreateReceipt(ctx, domain.Receipt{
		ID:            "rcpt-dup",
		SaleID:        resp.Sale.ID,
		ReceiptNumber: "RCP-00000001",
		TenantID:      "tenant-demo",
	})
	if !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("expected second receipt for a sale to be rejected, got %v", err)
	}
}

func TestHoldRecallRoundTrip(t *testing.T) {
	svc, _ := newTestService()
	ctx := testCtx()

	addToCart(t, svc, ctx, "terminal-1", "prod-mie-01", 2)
	if _, err := svc.SetDiscount(ctx, domain.SetDiscountRequest{
		TerminalID: "terminal-1",
		Discount:   &domain.Discount{Type: domain.DiscountTypeFixed, Value: 500, Reason: "member"},
	}); err != nil {
		t.Fatalf("set discount failed: %v", err)
	}
	if _, err := svc.SetCustomer(ctx, domain.SetCustomerRequest{
		TerminalID: "terminal-1",
		CustomerID: "cust-andi",
	}); err != nil {
		t.Fatalf("set customer failed: %v", err)
	}

	heldResp, err := svc.HoldOrder(ctx, domain.HoldOrderRequest{TerminalID: "terminal-1"})
	if err != nil {
		t.Fatalf("hold failed: %v", err)
	}
	if heldResp.HeldOrder.HeldBy != "admin" {
		t.Fatalf("expected held-by admin, got %s", heldResp.HeldOrder.HeldBy)
	}

	cartResp, _ := svc.GetCart(ctx, "tenant-demo", "terminal-1")
	if len(cartResp.Cart.Items) != 0 || cartResp.Cart.Discount != nil {
		t.Fatalf("expected cart cleared after hold")
	}

	list, _ := svc.ListHeldOrders(ctx, "tenant-demo", "terminal-1")
	if len(list.Items) != 1 {
		t.Fatalf("expected 1 held order, got %d", len(list.Items))
	}

	recalled, err := svc.RecallOrder(ctx, "tenant-demo", "terminal-1", heldResp.HeldOrder.ID)
	if err != nil {
		t.Fatalf("recall failed: %v", err)
	}
	if len(recalled.Cart.Items) != 1 || recalled.Cart.Items[0].Qty != 2 {
		t.Fatalf("expected recalled cart with original qty, got %+v", recalled.Cart.Items)
	}
	if recalled.Cart.SelectedCustomerID != "cust-andi" {
		t.Fatalf("expected customer restored, got %q", recalled.Cart.SelectedCustomerID)
	}
	if recalled.Cart.Discount == nil || recalled.Cart.Discount.Value != 500 {
		t.Fatalf("expected discount restored, got %+v", recalled.Cart.Discount)
	}

	list, _ = svc.ListHeldOrders(ctx, "tenant-demo", "terminal-1")
	if len(list.Items) != 0 {
		t.Fatalf("expected held queue empty after recall")
	}
}

func TestRecallMergesIntoNonEmptyCart(t *testing.T) {
	svc, _ := newTestService()
	ctx := testCtx()

	addToCart(t, svc, ctx, "terminal-1", "prod-mie-01", 2)
	heldResp, err := svc.HoldOrder(ctx, domain.HoldOrderRequest{TerminalID: "terminal-1"})
	if err != nil {
		t.Fatalf("hold failed: %v", err)
	}

	addToCart(t, svc, ctx, "terminal-1", "prod-mie-01", 1)

	recalled, err := svc.RecallOrder(ctx, "tenant-demo", "terminal-1", heldResp.HeldOrder.ID)
	if err != nil {
		t.Fatalf("recall failed: %v", err)
	}
	if len(recalled.Cart.Items) != 1 {
		t.Fatalf("expected merged cart with one line, got %+v", recalled.Cart.Items)
	}
	if recalled.Cart.Items[0].Qty != 3 {
		t.Fatalf("expected held qty to combine with live qty into 3, got %v", recalled.Cart.Items[0].Qty)
	}
	if recalled.Cart.Items[0].SubtotalCents != 10500 {
		t.Fatalf("expected merged subtotal 10500, got %d", recalled.Cart.Items[0].SubtotalCents)
	}
}

func TestRecallUnknownHoldIsNoOp(t *testing.T) {
	svc, _ := newTestService()
	ctx := testCtx()

	addToCart(t, svc, ctx, "terminal-1", "prod-mie-01", 2)

	resp, err := svc.RecallOrder(ctx, "tenant-demo", "terminal-1", "hold-does-not-exist")
	if err != nil {
		t.Fatalf("expected unknown hold recall to succeed as a no-op, got %v", err)
	}
	if len(resp.Cart.Items) != 1 || resp.Cart.Items[0].Qty != 2 {
		t.Fatalf("expected cart unchanged after no-op recall, got %+v", resp.Cart.Items)
	}
}

func TestRecallRePricesAtLiveCatalog(t *testing.T) {
	svc, _ := newTestService()
	ctx := testCtx()

	// Seed the cart with a stale snapshot priced far below the catalog, as if
	// the product price changed while the order sat on hold.
	stale := domain.Product{
		ID:             "prod-mie-01",
		TenantID:       "tenant-demo",
		Name:           "Mie Goreng Instan",
		UnitPriceCents: 100,
	}
	svc.carts.Session("tenant-demo", "terminal-1").AddItem(stale, 2)

	heldResp, err := svc.HoldOrder(ctx, domain.HoldOrderRequest{TerminalID: "terminal-1"})
	if err != nil {
		t.Fatalf("hold failed: %v", err)
	}

	recalled, err := svc.RecallOrder(ctx, "tenant-demo", "terminal-1", heldResp.HeldOrder.ID)
	if err != nil {
		t.Fatalf("recall failed: %v", err)
	}
	item := recalled.Cart.Items[0]
	if item.Product.UnitPriceCents != 3500 {
		t.Fatalf("expected recall to re-price at catalog 3500, got %d", item.Product.UnitPriceCents)
	}
	if item.SubtotalCents != 7000 {
		t.Fatalf("expected subtotal at live price 7000, got %d", item.SubtotalCents)
	}
}

func TestDiscardHeldOrder(t *testing.T) {
	svc, _ := newTestService()
	ctx := testCtx()

	addToCart(t, svc, ctx, "terminal-1", "prod-mie-01", 1)
	heldResp, err := svc.HoldOrder(ctx, domain.HoldOrderRequest{TerminalID: "terminal-1"})
	if err != nil {
		t.Fatalf("hold failed: %v", err)
	}

	if err := svc.DiscardHeldOrder(ctx, "tenant-demo", "terminal-1", heldResp.HeldOrder.ID); err != nil {
		t.Fatalf("discard failed: %v", err)
	}
	err = svc.DiscardHeldOrder(ctx, "tenant-demo", "terminal-1", heldResp.HeldOrder.ID)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second discard, got %v", err)
	}
}

func TestSetDiscountValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := testCtx()

	_, err := svc.SetDiscount(ctx, domain.SetDiscountRequest{
		TerminalID: "terminal-1",
		Discount:   &domain.Discount{Type: domain.DiscountTypePercentage, Value: 150},
	})
	if !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("expected percentage above 100 to be rejected, got %v", err)
	}

	_, err = svc.SetDiscount(ctx, domain.SetDiscountRequest{
		TerminalID: "terminal-1",
		Discount:   &domain.Discount{Type: "coupon", Value: 10},
	})
	if !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("expected unknown discount type to be rejected, got %v", err)
	}
}

func TestDiscountAppliesBeforeTax(t *testing.T) {
	svc, _ := newTestService()
	ctx := testCtx()

	addToCart(t, svc, ctx, "terminal-1", "prod-mie-01", 2)
	if _, err := svc.SetDiscount(ctx, domain.SetDiscountRequest{
		TerminalID: "terminal-1",
		Discount:   &domain.Discount{Type: domain.DiscountTypePercentage, Value: 10},
	}); err != nil {
		t.Fatalf("set discount failed: %v", err)
	}

	resp, err := svc.Checkout(ctx, domain.CheckoutRequest{
		TerminalID:    "terminal-1",
		CheckoutToken: "tok-discount",
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	// 7000 - 10% = 6300 taxable; 11% tax = 693.
	if resp.Sale.DiscountCents != 700 {
		t.Fatalf("expected discount 700, got %d", resp.Sale.DiscountCents)
	}
	if resp.Sale.TaxCents != 693 {
		t.Fatalf("expected tax 693, got %d", resp.Sale.TaxCents)
	}
	if resp.Sale.GrandTotalCents != 6993 {
		t.Fatalf("expected grand total 6993, got %d", resp.Sale.GrandTotalCents)
	}
}

func TestSetCustomerUnknownRejected(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.SetCustomer(testCtx(), domain.SetCustomerRequest{
		TerminalID: "terminal-1",
		CustomerID: "cust-nobody",
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown customer, got %v", err)
	}
}

func TestUpdateQuantityDelta(t *testing.T) {
	svc, _ := newTestService()
	ctx := testCtx()

	addToCart(t, svc, ctx, "terminal-1", "prod-mie-01", 3)

	resp, err := svc.UpdateQuantity(ctx, domain.UpdateQuantityRequest{
		TerminalID: "terminal-1",
		ProductID:  "prod-mie-01",
		Delta:      -1,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if resp.Cart.Items[0].Qty != 2 {
		t.Fatalf("expected qty 2, got %v", resp.Cart.Items[0].Qty)
	}

	resp, err = svc.UpdateQuantity(ctx, domain.UpdateQuantityRequest{
		TerminalID: "terminal-1",
		ProductID:  "prod-mie-01",
		Delta:      -2,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if len(resp.Cart.Items) != 0 {
		t.Fatalf("expected line removed when delta drives qty to zero")
	}

	resp, err = svc.UpdateQuantity(ctx, domain.UpdateQuantityRequest{
		TerminalID: "terminal-1",
		ProductID:  "prod-mie-01",
		Delta:      1,
	})
	if err != nil {
		t.Fatalf("expected delta against a missing line to be a no-op, got %v", err)
	}
	if len(resp.Cart.Items) != 0 {
		t.Fatalf("expected cart unchanged by no-op delta, got %+v", resp.Cart.Items)
	}
}

func TestRefundCumulativeGuardAndRestock(t *testing.T) {
	svc, repo := newTestService()
	ctx := testCtx()

	addToCart(t, svc, ctx, "terminal-1", "prod-mie-01", 3)
	sale, err := svc.Checkout(ctx, domain.CheckoutRequest{
		TerminalID:    "terminal-1",
		CheckoutToken: "tok-refund",
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	first, err := svc.Refund(ctx, domain.RefundRequest{
		SaleID: sale.Sale.ID,
		Items:  []domain.RefundItemInput{{ProductID: "prod-mie-01", Qty: 1}},
		Reason: "damaged pack",
	})
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if first.Refund.RefundTotalCents != 3500 {
		t.Fatalf("expected refund total 3500, got %d", first.Refund.RefundTotalCents)
	}
	if first.Refund.ProcessedBy != "admin" {
		t.Fatalf("expected processed-by admin, got %s", first.Refund.ProcessedBy)
	}

	// Sold 3, refunded 1: another 3 would overshoot.
	_, err = svc.Refund(ctx, domain.RefundRequest{
		SaleID: sale.Sale.ID,
		Items:  []domain.RefundItemInput{{ProductID: "prod-mie-01", Qty: 3}},
	})
	if !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("expected cumulative over-refund rejection, got %v", err)
	}

	if _, err := svc.Refund(ctx, domain.RefundRequest{
		SaleID: sale.Sale.ID,
		Items:  []domain.RefundItemInput{{ProductID: "prod-mie-01", Qty: 2}},
	}); err != nil {
		t.Fatalf("refund of remaining qty failed: %v", err)
	}

	// 120 - 3 sold + 3 refunded.
	product, _ := repo.GetProductByID(ctx, "tenant-demo", "prod-mie-01")
	if product.CurrentStock != 120 {
		t.Fatalf("expected stock fully restored to 120, got %v", product.CurrentStock)
	}
}

func TestRefundRejectsProductsNotOnSale(t *testing.T) {
	svc, _ := newTestService()
	ctx := testCtx()

	addToCart(t, svc, ctx, "terminal-1", "prod-mie-01", 1)
	sale, err := svc.Checkout(ctx, domain.CheckoutRequest{
		TerminalID:    "terminal-1",
		CheckoutToken: "tok-refund-foreign",
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	_, err = svc.Refund(ctx, domain.RefundRequest{
		SaleID: sale.Sale.ID,
		Items:  []domain.RefundItemInput{{ProductID: "prod-kopi-01", Qty: 1}},
	})
	if !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("expected refund of a product not on the sale to be rejected, got %v", err)
	}
}

func TestListSalesPaginationNewestFirst(t *testing.T) {
	svc, _ := newTestService()
	ctx := testCtx()

	var lastSaleID string
	for i := 0; i < 3; i++ {
		addToCart(t, svc, ctx, "terminal-1", "prod-mie-01", 1)
		resp, err := svc.Checkout(ctx, domain.CheckoutRequest{
			TerminalID:    "terminal-1",
			CheckoutToken: fmt.Sprintf("tok-page-%d", i),
		})
		if err != nil {
			t.Fatalf("checkout %d failed: %v", i, err)
		}
		lastSaleID = resp.Sale.ID
	}

	page, err := svc.ListSales(ctx, "tenant-demo", 1, 2)
	if err != nil {
		t.Fatalf("list sales failed: %v", err)
	}
	if page.Total != 3 || len(page.Sales) != 2 || !page.HasMore {
		t.Fatalf("unexpected first page: total=%d len=%d hasMore=%v", page.Total, len(page.Sales), page.HasMore)
	}
	if page.Sales[0].ID != lastSaleID {
		t.Fatalf("expected newest sale first")
	}

	page, err = svc.ListSales(ctx, "tenant-demo", 2, 2)
	if err != nil {
		t.Fatalf("list sales page 2 failed: %v", err)
	}
	if len(page.Sales) != 1 || page.HasMore {
		t.Fatalf("unexpected last page: len=%d hasMore=%v", len(page.Sales), page.HasMore)
	}
}

func TestListRefundsPagination(t *testing.T) {
	svc, _ := newTestService()
	ctx := testCtx()

	addToCart(t, svc, ctx, "terminal-1", "prod-mie-01", 2)
	sale, err := svc.Checkout(ctx, domain.CheckoutRequest{
		TerminalID:    "terminal-1",
		CheckoutToken: "tok-refund-list",
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := svc.Refund(ctx, domain.RefundRequest{
			SaleID: sale.Sale.ID,
			Items:  []domain.RefundItemInput{{ProductID: "prod-mie-01", Qty: 1}},
		}); err != nil {
			t.Fatalf("refund %d failed: %v", i, err)
		}
	}

	page, err := svc.ListRefunds(ctx, "tenant-demo", 1, 1)
	if err != nil {
		t.Fatalf("list refunds failed: %v", err)
	}
	if page.Total != 2 || len(page.Refunds) != 1 || !page.HasMore {
		t.Fatalf("unexpected refund page: total=%d len=%d hasMore=%v", page.Total, len(page.Refunds), page.HasMore)
	}
}

func TestAuditTrailRecordsCheckout(t *testing.T) {
	svc, _ := newTestService()
	ctx := testCtx()

	addToCart(t, svc, ctx, "terminal-1", "prod-mie-01", 1)
	if _, err := svc.SetCustomer(ctx, domain.SetCustomerRequest{
		TerminalID: "terminal-1",
		CustomerID: "cust-andi",
	}); err != nil {
		t.Fatalf("set customer failed: %v", err)
	}
	if _, err := svc.SetDiscount(ctx, domain.SetDiscountRequest{
		TerminalID: "terminal-1",
		Discount:   &domain.Discount{Type: domain.DiscountTypeFixed, Value: 200, Reason: "promo"},
	}); err != nil {
		t.Fatalf("set discount failed: %v", err)
	}
	if _, err := svc.Checkout(ctx, domain.CheckoutRequest{
		TerminalID:    "terminal-1",
		CheckoutToken: "tok-audit",
	}); err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	logs, err := svc.ListAuditLogs(ctx, "tenant-demo", 10)
	if err != nil {
		t.Fatalf("list audit logs failed: %v", err)
	}
	var completed, discounted *domain.AuditLogEntry
	for i := range logs {
		switch logs[i].Action {
		case domain.AuditSaleCompleted:
			completed = &logs[i]
		case domain.AuditDiscountApplied:
			discounted = &logs[i]
		}
	}
	if completed == nil {
		t.Fatalf("expected a sale_completed audit entry, got %+v", logs)
	}
	if completed.UserName != "admin" {
		t.Fatalf("expected sale_completed attributed to admin, got %q", completed.UserName)
	}
	if completed.Metadata["customer_id"] != "cust-andi" {
		t.Fatalf("expected sale_completed customer_id cust-andi, got %v", completed.Metadata["customer_id"])
	}
	if discounted == nil {
		t.Fatalf("expected a discount_applied audit entry at checkout, got %+v", logs)
	}
	if discounted.EntityType != "sale" || discounted.EntityID != completed.EntityID {
		t.Fatalf("expected discount_applied against the completed sale, got %s/%s", discounted.EntityType, discounted.EntityID)
	}
	if discounted.Metadata["reason"] != "promo" {
		t.Fatalf("expected discount reason promo, got %v", discounted.Metadata["reason"])
	}
}

func TestAuditTrailRecordsHoldAndRecall(t *testing.T) {
	svc, _ := newTestService()
	ctx := testCtx()

	addToCart(t, svc, ctx, "terminal-1", "prod-mie-01", 2)
	heldResp, err := svc.HoldOrder(ctx, domain.HoldOrderRequest{TerminalID: "terminal-1"})
	if err != nil {
		t.Fatalf("hold failed: %v", err)
	}
	if _, err := svc.RecallOrder(ctx, "tenant-demo", "terminal-1", heldResp.HeldOrder.ID); err != nil {
		t.Fatalf("recall failed: %v", err)
	}

	logs, err := svc.ListAuditLogs(ctx, "tenant-demo", 10)
	if err != nil {
		t.Fatalf("list audit logs failed: %v", err)
	}
	var held, recalled *domain.AuditLogEntry
	for i := range logs {
		switch logs[i].Action {
		case domain.AuditOrderHeld:
			held = &logs[i]
		case domain.AuditOrderRecalled:
			recalled = &logs[i]
		}
	}
	if held == nil {
		t.Fatalf("expected an order_held audit entry, got %+v", logs)
	}
	if held.Metadata["customer_id"] != "walk-in" {
		t.Fatalf("expected anonymous hold recorded as walk-in, got %v", held.Metadata["customer_id"])
	}
	if held.Metadata["has_discount"] != false {
		t.Fatalf("expected has_discount false, got %v", held.Metadata["has_discount"])
	}
	if recalled == nil {
		t.Fatalf("expected an order_recalled audit entry, got %+v", logs)
	}
	if recalled.Before == nil || recalled.Before["id"] != heldResp.HeldOrder.ID {
		t.Fatalf("expected recall before image of the held order, got %+v", recalled.Before)
	}
	if recalled.After != nil {
		t.Fatalf("expected recall after image nil, got %+v", recalled.After)
	}
}
