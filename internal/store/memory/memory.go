package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tokokita/backend/internal/domain"
	"tokokita/backend/internal/ids"
	"tokokita/backend/internal/policy"
	"tokokita/backend/internal/store"
)

type Store struct {
	mu               sync.RWMutex
	products         map[string]domain.Product
	tenants          map[string]domain.Tenant
	customers        map[string]domain.Customer
	salesByID        map[string]*domain.Sale
	salesByToken     map[string]*domain.Sale
	receiptsBySale   map[string]domain.Receipt
	refundsByID      map[string]domain.Refund
	auditLogs        []domain.AuditLogEntry
	usersByUsername  map[string]domain.UserAccount
	saleOrder        []string // sale ids in creation order
	refundOrder      []string // refund ids in creation order
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; if
// unset, hardcoded dev defaults are used with a warning. Production setups
// use PostgreSQL (DATABASE_URL) and never hit this path.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			ID:        ids.New("user"),
			TenantID:  "tenant-demo",
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	tenants := []domain.Tenant{
		{ID: "tenant-demo", Name: "Toko Demo", Plan: domain.PlanStandard, TaxRatePercent: 11, Currency: "IDR"},
		{ID: "tenant-free", Name: "Warung Kecil", Plan: domain.PlanFree, TaxRatePercent: 0, Currency: "IDR"},
	}

	products := []domain.Product{
		{ID: "prod-mie-01", TenantID: "tenant-demo", Name: "Mie Goreng Instan", UnitPriceCents: 3500, CostPriceCents: 2700, CurrentStock: 120, MinimumStock: 30},
		{ID: "prod-telur-01", TenantID: "tenant-demo", Name: "Telur 10 Butir", UnitPriceCents: 26500, CostPriceCents: 23000, CurrentStock: 80, MinimumStock: 20},
		{ID: "prod-susu-01", TenantID: "tenant-demo", Name: "Susu UHT 1L", UnitPriceCents: 18900, CostPriceCents: 13600, CurrentStock: 60, MinimumStock: 15},
		{ID: "prod-roti-01", TenantID: "tenant-demo", Name: "Roti Tawar", UnitPriceCents: 17800, CostPriceCents: 12400, CurrentStock: 40, MinimumStock: 10},
		{ID: "prod-kopi-01", TenantID: "tenant-demo", Name: "Kopi Sachet", UnitPriceCents: 2600, CostPriceCents: 1700, CurrentStock: 200, MinimumStock: 50},
		{ID: "prod-gula-01", TenantID: "tenant-demo", Name: "Gula 1kg", UnitPriceCents: 17400, CostPriceCents: 15300, CurrentStock: 90, MinimumStock: 25},
		{ID: "prod-beras-01", TenantID: "tenant-demo", Name: "Beras Curah (kg)", UnitPriceCents: 14500, CostPriceCents: 12800, CurrentStock: 55.5, MinimumStock: 10},
		{ID: "prod-air-01", TenantID: "tenant-free", Name: "Air Mineral 600ml", UnitPriceCents: 3900, CostPriceCents: 3200, CurrentStock: 150, MinimumStock: 40},
	}

	customers := []domain.Customer{
		{ID: "cust-andi", TenantID: "tenant-demo", Name: "Andi Wijaya", Phone: "08123456701"},
		{ID: "cust-budi", TenantID: "tenant-demo", Name: "Budi Santoso", Phone: "08123456702"},
		{ID: "cust-citra", TenantID: "tenant-demo", Name: "Citra Lestari"},
	}

	tenantMap := make(map[string]domain.Tenant, len(tenants))
	for _, t := range tenants {
		tenantMap[t.ID] = t
	}
	productMap := make(map[string]domain.Product, len(products))
	for _, p := range products {
		p.Status = policy.ProductStatusFor(p.CurrentStock, p.MinimumStock)
		productMap[p.ID] = p
	}
	customerMap := make(map[string]domain.Customer, len(customers))
	for _, c := range customers {
		customerMap[c.ID] = c
	}

	return &Store{
		products:        productMap,
		tenants:         tenantMap,
		customers:       customerMap,
		salesByID:       make(map[string]*domain.Sale),
		salesByToken:    make(map[string]*domain.Sale),
		receiptsBySale:  make(map[string]domain.Receipt),
		refundsByID:     make(map[string]domain.Refund),
		auditLogs:       make([]domain.AuditLogEntry, 0, 128),
		usersByUsername: seedUsers(),
		saleOrder:       make([]string, 0, 64),
		refundOrder:     make([]string, 0, 16),
	}
}

func (s *Store) ListProducts(_ context.Context, tenantID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.TenantID != tenantID {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})

	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, tenantID string, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[productID]
	if !exists || product.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	copied := product
	return &copied, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, tenantID string, productIDs []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(productIDs))
	for _, id := range productIDs {
		if p, ok := s.products[id]; ok && p.TenantID == tenantID {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) AdjustStock(_ context.Context, tenantID string, productID string, delta float64) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[productID]
	if !exists || product.TenantID != tenantID {
		return nil, store.ErrNotFound
	}

	product.CurrentStock += delta
	if product.CurrentStock < 0 {
		product.CurrentStock = 0
	}
	product.Status = policy.ProductStatusFor(product.CurrentStock, product.MinimumStock)
	s.products[productID] = product

	updated := product
	return &updated, nil
}

func (s *Store) GetTenant(_ context.Context, tenantID string) (*domain.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenant, exists := s.tenants[tenantID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := tenant
	return &copied, nil
}

func (s *Store) ListCustomers(_ context.Context, tenantID string) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		if c.TenantID != tenantID {
			continue
		}
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return strings.Compare(a.Name, b.Name)
	})
	return customers, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale, maxOrders int) (*domain.Sale, error) {
	if sale.ID == "" || sale.TenantID == "" || len(sale.LineItems) == 0 {
		return nil, store.ErrInvalidSale
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.CheckoutToken != "" {
		if existing, ok := s.salesByToken[sale.CheckoutToken]; ok {
			copied := *existing
			return &copied, nil
		}
	}

	// Quota check and insert are serialized under the same lock so a stale
	// pre-check can never overshoot the cap.
	if maxOrders >= 0 {
		count := 0
		for _, id := range s.saleOrder {
			if s.salesByID[id].TenantID == sale.TenantID {
				count++
			}
		}
		if count >= maxOrders {
			return nil, store.ErrOrderLimitReached
		}
	}

	saved := sale
	saved.LineItems = slices.Clone(sale.LineItems)
	s.salesByID[saved.ID] = &saved
	if saved.CheckoutToken != "" {
		s.salesByToken[saved.CheckoutToken] = &saved
	}
	s.saleOrder = append(s.saleOrder, saved.ID)

	created := saved
	created.LineItems = slices.Clone(saved.LineItems)
	return &created, nil
}

func (s *Store) GetSaleByID(_ context.Context, saleID string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[saleID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := *sale
	copied.LineItems = slices.Clone(sale.LineItems)
	return &copied, nil
}

func (s *Store) FindSaleByCheckoutToken(_ context.Context, token string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByToken[token]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := *sale
	copied.LineItems = slices.Clone(sale.LineItems)
	return &copied, nil
}

func (s *Store) CountSales(_ context.Context, tenantID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, id := range s.saleOrder {
		if s.salesByID[id].TenantID == tenantID {
			count++
		}
	}
	return count, nil
}

func (s *Store) ListSales(_ context.Context, tenantID string, offset int, limit int) ([]domain.Sale, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Newest first.
	matched := make([]domain.Sale, 0, len(s.saleOrder))
	for i := len(s.saleOrder) - 1; i >= 0; i-- {
		sale := s.salesByID[s.saleOrder[i]]
		if sale.TenantID != tenantID {
			continue
		}
		copied := *sale
		copied.LineItems = slices.Clone(sale.LineItems)
		matched = append(matched, copied)
	}

	total := len(matched)
	if offset >= total {
		return []domain.Sale{}, total, nil
	}
	end := offset + limit
	if limit < 1 || end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (s *Store) CreateReceipt(_ context.Context, receipt domain.Receipt) (*domain.Receipt, error) {
	if receipt.ID == "" || receipt.SaleID == "" {
		return nil, store.ErrInvalidSale
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.salesByID[receipt.SaleID]; !exists {
		return nil, store.ErrNotFound
	}
	// One receipt per sale, ever.
	if _, exists := s.receiptsBySale[receipt.SaleID]; exists {
		return nil, store.ErrInvalidSale
	}

	s.receiptsBySale[receipt.SaleID] = receipt
	created := receipt
	return &created, nil
}

func (s *Store) GetReceiptBySaleID(_ context.Context, saleID string) (*domain.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	receipt, exists := s.receiptsBySale[saleID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := receipt
	return &copied, nil
}

func (s *Store) CreateRefund(_ context.Context, refund domain.Refund) (*domain.Refund, error) {
	if refund.ID == "" || refund.OriginalSaleID == "" || refund.RefundTotalCents < 1 {
		return nil, store.ErrInvalidSale
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.salesByID[refund.OriginalSaleID]; !exists {
		return nil, store.ErrNotFound
	}

	refund.RefundedItems = slices.Clone(refund.RefundedItems)
	s.refundsByID[refund.ID] = refund
	s.refundOrder = append(s.refundOrder, refund.ID)

	created := refund
	created.RefundedItems = slices.Clone(refund.RefundedItems)
	return &created, nil
}

func (s *Store) ListRefunds(_ context.Context, tenantID string, offset int, limit int) ([]domain.Refund, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.Refund, 0, len(s.refundOrder))
	for i := len(s.refundOrder) - 1; i >= 0; i-- {
		refund := s.refundsByID[s.refundOrder[i]]
		if refund.TenantID != tenantID {
			continue
		}
		copied := refund
		copied.RefundedItems = slices.Clone(refund.RefundedItems)
		matched = append(matched, copied)
	}

	total := len(matched)
	if offset >= total {
		return []domain.Refund{}, total, nil
	}
	end := offset + limit
	if limit < 1 || end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (s *Store) GetRefundedQtyBySale(_ context.Context, saleID string) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]float64)
	for _, refund := range s.refundsByID {
		if refund.OriginalSaleID != saleID {
			continue
		}
		for _, line := range refund.RefundedItems {
			result[line.ProductID] += line.Qty
		}
	}
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = ids.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, tenantID string, limit int) ([]domain.AuditLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	result := make([]domain.AuditLogEntry, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(result) < limit; i-- {
		if s.auditLogs[i].TenantID == tenantID {
			result = append(result, s.auditLogs[i])
		}
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return store.ErrInvalidSale
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidSale
	}
	if user.ID == "" {
		user.ID = ids.New("user")
	}
	user.Username = username
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}
