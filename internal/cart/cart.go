// Package cart owns the live, mutable cart and the held-order queue for one
// POS terminal. It is a pure state container: no stock checks, no I/O.
// Callers pre-validate against policy before mutating.
package cart

import (
	"math"
	"sync"

	"tokokita/backend/internal/domain"
)

type Store struct {
	mu                 sync.Mutex
	items              []domain.CartItem
	selectedCustomerID string
	discount           *domain.Discount
	heldOrders         []domain.HeldOrder
}

func NewStore() *Store {
	return &Store{
		items:      make([]domain.CartItem, 0, 8),
		heldOrders: make([]domain.HeldOrder, 0, 4),
	}
}

// AddItem merges by product id: adding an already-present product increments
// its quantity rather than duplicating the entry. The product snapshot of an
// existing line is refreshed to the one passed in.
func (s *Store) AddItem(product domain.Product, qty float64) {
	if qty <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ProductID == product.ID {
			s.items[i].Product = product
			s.items[i].Qty += qty
			s.items[i].SubtotalCents = subtotalCents(s.items[i].Qty, product.UnitPriceCents)
			return
		}
	}

	s.items = append(s.items, domain.CartItem{
		ProductID:     product.ID,
		Product:       product,
		Qty:           qty,
		SubtotalCents: subtotalCents(qty, product.UnitPriceCents),
	})
}

// UpdateItemQuantity sets the quantity for a line; qty <= 0 removes it.
// A missing product id is a no-op.
func (s *Store) UpdateItemQuantity(productID string, qty float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ProductID != productID {
			continue
		}
		if qty <= 0 {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return
		}
		s.items[i].Qty = qty
		s.items[i].SubtotalCents = subtotalCents(qty, s.items[i].Product.UnitPriceCents)
		return
	}
}

func (s *Store) RemoveItem(productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ProductID == productID {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return
		}
	}
}

// Clear empties the cart, including the selected customer and discount.
// The held-order queue is untouched.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = s.items[:0]
	s.selectedCustomerID = ""
	s.discount = nil
}

func (s *Store) SetDiscount(discount *domain.Discount) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if discount == nil {
		s.discount = nil
		return
	}
	copied := *discount
	s.discount = &copied
}

func (s *Store) SetSelectedCustomer(customerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedCustomerID = customerID
}

// Snapshot returns a deep copy of the cart state. Mutating the returned
// value never affects the live cart.
func (s *Store) Snapshot() domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()

	return domain.Cart{
		Items:              cloneItems(s.items),
		SelectedCustomerID: s.selectedCustomerID,
		Discount:           cloneDiscount(s.discount),
	}
}

func (s *Store) SubtotalCents() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var subtotal int64
	for _, item := range s.items {
		subtotal += item.SubtotalCents
	}
	return subtotal
}

func (s *Store) AddHeldOrder(order domain.HeldOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order.Items = cloneItems(order.Items)
	order.Discount = cloneDiscount(order.Discount)
	s.heldOrders = append(s.heldOrders, order)
}

// RemoveHeldOrder reports whether the order was present.
func (s *Store) RemoveHeldOrder(orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.heldOrders {
		if s.heldOrders[i].ID == orderID {
			s.heldOrders = append(s.heldOrders[:i], s.heldOrders[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Store) HeldOrder(orderID string) (domain.HeldOrder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, order := range s.heldOrders {
		if order.ID == orderID {
			order.Items = cloneItems(order.Items)
			order.Discount = cloneDiscount(order.Discount)
			return order, true
		}
	}
	return domain.HeldOrder{}, false
}

// HeldOrders returns the queue in insertion order; presentation order is the
// caller's concern.
func (s *Store) HeldOrders() []domain.HeldOrder {
	s.mu.Lock()
	defer s.mu.Unlock()

	orders := make([]domain.HeldOrder, 0, len(s.heldOrders))
	for _, order := range s.heldOrders {
		order.Items = cloneItems(order.Items)
		order.Discount = cloneDiscount(order.Discount)
		orders = append(orders, order)
	}
	return orders
}

func subtotalCents(qty float64, unitPriceCents int64) int64 {
	return int64(math.Round(qty * float64(unitPriceCents)))
}

func cloneItems(items []domain.CartItem) []domain.CartItem {
	cloned := make([]domain.CartItem, len(items))
	copy(cloned, items)
	return cloned
}

func cloneDiscount(discount *domain.Discount) *domain.Discount {
	if discount == nil {
		return nil
	}
	copied := *discount
	return &copied
}

// Registry hands out one cart store per terminal session. Each client owns
// exactly one cart instance; there is no cross-terminal coordination.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Store
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Store)}
}

func (r *Registry) Session(tenantID string, terminalID string) *Store {
	key := tenantID + "|" + terminalID

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[key]; ok {
		return existing
	}
	created := NewStore()
	r.sessions[key] = created
	return created
}
