package cart

import (
	"testing"
	"time"

	"tokokita/backend/internal/domain"
)

func testProduct(id string, priceCents int64) domain.Product {
	return domain.Product{
		ID:             id,
		TenantID:       "tenant-demo",
		Name:           "Product " + id,
		UnitPriceCents: priceCents,
		CurrentStock:   100,
		MinimumStock:   10,
	}
}

func TestAddItemMergesByProductID(t *testing.T) {
	s := NewStore()
	p := testProduct("prod-1", 3500)

	s.AddItem(p, 2)
	s.AddItem(p, 3)

	snapshot := s.Snapshot()
	if len(snapshot.Items) != 1 {
		t.Fatalf("expected 1 merged line, got %d", len(snapshot.Items))
	}
	if snapshot.Items[0].Qty != 5 {
		t.Fatalf("expected qty 5, got %v", snapshot.Items[0].Qty)
	}
	if snapshot.Items[0].SubtotalCents != 17500 {
		t.Fatalf("expected subtotal 17500, got %d", snapshot.Items[0].SubtotalCents)
	}
}

func TestAddItemRefreshesSnapshotOnMerge(t *testing.T) {
	s := NewStore()
	s.AddItem(testProduct("prod-1", 3500), 1)

	updated := testProduct("prod-1", 4000)
	s.AddItem(updated, 1)

	snapshot := s.Snapshot()
	if snapshot.Items[0].Product.UnitPriceCents != 4000 {
		t.Fatalf("expected refreshed price 4000, got %d", snapshot.Items[0].Product.UnitPriceCents)
	}
	if snapshot.Items[0].SubtotalCents != 8000 {
		t.Fatalf("expected subtotal 8000 at new price, got %d", snapshot.Items[0].SubtotalCents)
	}
}

func TestAddItemIgnoresNonPositiveQty(t *testing.T) {
	s := NewStore()
	s.AddItem(testProduct("prod-1", 3500), 0)
	s.AddItem(testProduct("prod-1", 3500), -2)

	if len(s.Snapshot().Items) != 0 {
		t.Fatalf("expected empty cart")
	}
}

func TestFractionalQuantitySubtotalRounds(t *testing.T) {
	s := NewStore()
	s.AddItem(testProduct("prod-beras", 14500), 1.5)

	if got := s.SubtotalCents(); got != 21750 {
		t.Fatalf("expected subtotal 21750, got %d", got)
	}
}

func TestUpdateItemQuantityZeroRemovesLine(t *testing.T) {
	s := NewStore()
	s.AddItem(testProduct("prod-1", 3500), 2)

	s.UpdateItemQuantity("prod-1", 0)

	if len(s.Snapshot().Items) != 0 {
		t.Fatalf("expected line removed at qty 0")
	}
}

func TestUpdateItemQuantityMissingIsNoOp(t *testing.T) {
	s := NewStore()
	s.AddItem(testProduct("prod-1", 3500), 2)

	s.UpdateItemQuantity("prod-missing", 4)

	snapshot := s.Snapshot()
	if len(snapshot.Items) != 1 || snapshot.Items[0].Qty != 2 {
		t.Fatalf("expected untouched cart, got %+v", snapshot.Items)
	}
}

func TestClearKeepsHeldOrders(t *testing.T) {
	s := NewStore()
	s.AddItem(testProduct("prod-1", 3500), 1)
	s.SetSelectedCustomer("cust-andi")
	s.SetDiscount(&domain.Discount{Type: domain.DiscountTypeFixed, Value: 500})
	s.AddHeldOrder(domain.HeldOrder{ID: "hold-1", HeldAt: time.Now()})

	s.Clear()

	snapshot := s.Snapshot()
	if len(snapshot.Items) != 0 || snapshot.SelectedCustomerID != "" || snapshot.Discount != nil {
		t.Fatalf("expected cleared cart, got %+v", snapshot)
	}
	if len(s.HeldOrders()) != 1 {
		t.Fatalf("expected held queue to survive clear")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s := NewStore()
	s.AddItem(testProduct("prod-1", 3500), 2)

	snapshot := s.Snapshot()
	snapshot.Items[0].Qty = 99

	if s.Snapshot().Items[0].Qty != 2 {
		t.Fatalf("mutating a snapshot leaked into the live cart")
	}
}

func TestHeldOrderDeepCopy(t *testing.T) {
	s := NewStore()
	discount := &domain.Discount{Type: domain.DiscountTypePercentage, Value: 10}
	s.AddHeldOrder(domain.HeldOrder{
		ID:       "hold-1",
		Items:    []domain.CartItem{{ProductID: "prod-1", Qty: 2}},
		Discount: discount,
	})

	discount.Value = 90

	held, ok := s.HeldOrder("hold-1")
	if !ok {
		t.Fatalf("expected held order present")
	}
	if held.Discount.Value != 10 {
		t.Fatalf("expected held discount insulated from caller mutation, got %v", held.Discount.Value)
	}

	held.Items[0].Qty = 99
	again, _ := s.HeldOrder("hold-1")
	if again.Items[0].Qty != 2 {
		t.Fatalf("mutating a returned held order leaked into the queue")
	}
}

func TestRemoveHeldOrderReportsPresence(t *testing.T) {
	s := NewStore()
	s.AddHeldOrder(domain.HeldOrder{ID: "hold-1"})

	if !s.RemoveHeldOrder("hold-1") {
		t.Fatalf("expected removal of existing order to report true")
	}
	if s.RemoveHeldOrder("hold-1") {
		t.Fatalf("expected second removal to report false")
	}
}

func TestRegistryReturnsSameSessionPerTerminal(t *testing.T) {
	r := NewRegistry()

	a := r.Session("tenant-demo", "terminal-1")
	b := r.Session("tenant-demo", "terminal-1")
	other := r.Session("tenant-demo", "terminal-2")

	if a != b {
		t.Fatalf("expected same session for same tenant+terminal")
	}
	if a == other {
		t.Fatalf("expected distinct sessions per terminal")
	}
}
