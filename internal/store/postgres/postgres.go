package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"tokokita/backend/internal/domain"
	"tokokita/backend/internal/ids"
	"tokokita/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context, tenantID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, unit_price_cents, cost_price_cents, current_stock, minimum_stock, status
		FROM products
		WHERE tenant_id = $1
		ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.UnitPriceCents, &p.CostPriceCents, &p.CurrentStock, &p.MinimumStock, &p.Status); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, tenantID string, productID string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, unit_price_cents, cost_price_cents, current_stock, minimum_stock, status
		FROM products
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, productID).Scan(&p.ID, &p.TenantID, &p.Name, &p.UnitPriceCents, &p.CostPriceCents, &p.CurrentStock, &p.MinimumStock, &p.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, tenantID string, productIDs []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(productIDs))
	if len(productIDs) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, unit_price_cents, cost_price_cents, current_stock, minimum_stock, status
		FROM products
		WHERE tenant_id = $1 AND id = ANY($2)
	`, tenantID, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.UnitPriceCents, &p.CostPriceCents, &p.CurrentStock, &p.MinimumStock, &p.Status); err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) AdjustStock(ctx context.Context, tenantID string, productID string, delta float64) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET current_stock = GREATEST(current_stock + $3, 0),
			status = CASE
				WHEN GREATEST(current_stock + $3, 0) <= 0 THEN 'out_of_stock'
				WHEN GREATEST(current_stock + $3, 0) <= minimum_stock THEN 'low_stock'
				ELSE 'in_stock'
			END,
			updated_at = now()
		WHERE tenant_id = $1 AND id = $2
		RETURNING id, tenant_id, name, unit_price_cents, cost_price_cents, current_stock, minimum_stock, status
	`, tenantID, productID, delta).Scan(&p.ID, &p.TenantID, &p.Name, &p.UnitPriceCents, &p.CostPriceCents, &p.CurrentStock, &p.MinimumStock, &p.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, plan, COALESCE(max_orders_override, 0), tax_rate_percent, currency
		FROM tenants
		WHERE id = $1
	`, tenantID).Scan(&tenant.ID, &tenant.Name, &tenant.Plan, &tenant.MaxOrdersOverride, &tenant.TaxRatePercent, &tenant.Currency)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &tenant, nil
}

func (s *Store) ListCustomers(ctx context.Context, tenantID string) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, COALESCE(phone, '')
		FROM customers
		WHERE tenant_id = $1
		ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.Phone); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale, maxOrders int) (*domain.Sale, error) {
	if sale.ID == "" || sale.TenantID == "" || len(sale.LineItems) == 0 {
		return nil, store.ErrInvalidSale
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	if sale.CheckoutToken != "" {
		existing, err := s.findSaleTx(ctx, pgTx, "checkout_token", sale.CheckoutToken)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	// Count and insert happen in one serializable transaction so concurrent
	// checkouts cannot both pass a stale quota read.
	if maxOrders >= 0 {
		var count int
		err = pgTx.QueryRowContext(ctx, `
			SELECT COUNT(*)::int FROM sales WHERE tenant_id = $1
		`, sale.TenantID).Scan(&count)
		if err != nil {
			return nil, err
		}
		if count >= maxOrders {
			return nil, store.ErrOrderLimitReached
		}
	}

	discountJSON, err := json.Marshal(sale.Discount)
	if err != nil {
		return nil, err
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (
			id, number, tenant_id, cashier_user_id, customer_id, checkout_token,
			subtotal_cents, discount_cents, tax_cents, grand_total_cents,
			payment_method, discount, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, sale.ID, sale.Number, sale.TenantID, sale.CashierUserID, nullIfEmpty(sale.CustomerID), nullIfEmpty(sale.CheckoutToken),
		sale.SubtotalCents, sale.DiscountCents, sale.TaxCents, sale.GrandTotalCents,
		sale.PaymentMethod, discountJSON, sale.CreatedAt, sale.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) && sale.CheckoutToken != "" {
			existing, lookupErr := s.FindSaleByCheckoutToken(ctx, sale.CheckoutToken)
			if lookupErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}

	for _, line := range sale.LineItems {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO sale_line_items (sale_id, product_id, name, unit_price_cents, cost_price_cents, qty, subtotal_cents)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, sale.ID, line.ProductID, line.Name, line.UnitPriceCents, line.CostPriceCents, line.Qty, line.SubtotalCents)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	created := sale
	return &created, nil
}

func (s *Store) GetSaleByID(ctx context.Context, saleID string) (*domain.Sale, error) {
	return s.findSaleTx(ctx, nil, "id", saleID)
}

func (s *Store) FindSaleByCheckoutToken(ctx context.Context, token string) (*domain.Sale, error) {
	return s.findSaleTx(ctx, nil, "checkout_token", token)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) findSaleTx(ctx context.Context, tx *sql.Tx, column string, value string) (*domain.Sale, error) {
	if column != "id" && column != "checkout_token" {
		return nil, fmt.Errorf("unsupported lookup column")
	}

	var q querier = s.db
	if tx != nil {
		q = tx
	}

	var sale domain.Sale
	var customerID sql.NullString
	var checkoutToken sql.NullString
	var discountRaw []byte

	query := fmt.Sprintf(`
		SELECT id, number, tenant_id, cashier_user_id, customer_id, checkout_token,
			subtotal_cents, discount_cents, tax_cents, grand_total_cents,
			payment_method, discount, created_at, updated_at
		FROM sales
		WHERE %s = $1
	`, column)

	err := q.QueryRowContext(ctx, query, value).Scan(
		&sale.ID,
		&sale.Number,
		&sale.TenantID,
		&sale.CashierUserID,
		&customerID,
		&checkoutToken,
		&sale.SubtotalCents,
		&sale.DiscountCents,
		&sale.TaxCents,
		&sale.GrandTotalCents,
		&sale.PaymentMethod,
		&discountRaw,
		&sale.CreatedAt,
		&sale.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if customerID.Valid {
		sale.CustomerID = customerID.String
	}
	if checkoutToken.Valid {
		sale.CheckoutToken = checkoutToken.String
	}
	if len(discountRaw) > 0 && string(discountRaw) != "null" {
		if err := json.Unmarshal(discountRaw, &sale.Discount); err != nil {
			return nil, err
		}
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	sale.UpdatedAt = sale.UpdatedAt.UTC()

	rows, err := q.QueryContext(ctx, `
		SELECT product_id, name, unit_price_cents, cost_price_cents, qty, subtotal_cents
		FROM sale_line_items
		WHERE sale_id = $1
		ORDER BY id ASC
	`, sale.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleLineItem, 0, 8)
	for rows.Next() {
		var line domain.SaleLineItem
		if err := rows.Scan(&line.ProductID, &line.Name, &line.UnitPriceCents, &line.CostPriceCents, &line.Qty, &line.SubtotalCents); err != nil {
			return nil, err
		}
		items = append(items, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sale.LineItems = items

	return &sale, nil
}

func (s *Store) CountSales(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::int FROM sales WHERE tenant_id = $1
	`, tenantID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) ListSales(ctx context.Context, tenantID string, offset int, limit int) ([]domain.Sale, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	total, err := s.CountSales(ctx, tenantID)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, number, tenant_id, cashier_user_id, customer_id, checkout_token,
			subtotal_cents, discount_cents, tax_cents, grand_total_cents,
			payment_method, discount, created_at, updated_at
		FROM sales
		WHERE tenant_id = $1
		ORDER BY created_at DESC, id DESC
		OFFSET $2 LIMIT $3
	`, tenantID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	saleIDs := make([]string, 0, limit)
	for rows.Next() {
		var sale domain.Sale
		var customerID sql.NullString
		var checkoutToken sql.NullString
		var discountRaw []byte
		if err := rows.Scan(
			&sale.ID,
			&sale.Number,
			&sale.TenantID,
			&sale.CashierUserID,
			&customerID,
			&checkoutToken,
			&sale.SubtotalCents,
			&sale.DiscountCents,
			&sale.TaxCents,
			&sale.GrandTotalCents,
			&sale.PaymentMethod,
			&discountRaw,
			&sale.CreatedAt,
			&sale.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		if customerID.Valid {
			sale.CustomerID = customerID.String
		}
		if checkoutToken.Valid {
			sale.CheckoutToken = checkoutToken.String
		}
		if len(discountRaw) > 0 && string(discountRaw) != "null" {
			if err := json.Unmarshal(discountRaw, &sale.Discount); err != nil {
				return nil, 0, err
			}
		}
		sale.CreatedAt = sale.CreatedAt.UTC()
		sale.UpdatedAt = sale.UpdatedAt.UTC()
		sales = append(sales, sale)
		saleIDs = append(saleIDs, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(saleIDs) == 0 {
		return sales, total, nil
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, product_id, name, unit_price_cents, cost_price_cents, qty, subtotal_cents
		FROM sale_line_items
		WHERE sale_id = ANY($1)
		ORDER BY id ASC
	`, saleIDs)
	if err != nil {
		return nil, 0, err
	}
	defer itemRows.Close()

	itemMap := make(map[string][]domain.SaleLineItem, len(saleIDs))
	for itemRows.Next() {
		var saleID string
		var line domain.SaleLineItem
		if err := itemRows.Scan(&saleID, &line.ProductID, &line.Name, &line.UnitPriceCents, &line.CostPriceCents, &line.Qty, &line.SubtotalCents); err != nil {
			return nil, 0, err
		}
		itemMap[saleID] = append(itemMap[saleID], line)
	}
	if err := itemRows.Err(); err != nil {
		return nil, 0, err
	}

	for i := range sales {
		sales[i].LineItems = itemMap[sales[i].ID]
	}
	return sales, total, nil
}

func (s *Store) CreateReceipt(ctx context.Context, receipt domain.Receipt) (*domain.Receipt, error) {
	if receipt.ID == "" || receipt.SaleID == "" {
		return nil, store.ErrInvalidSale
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO receipts (id, sale_id, receipt_number, tenant_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, receipt.ID, receipt.SaleID, receipt.ReceiptNumber, receipt.TenantID, receipt.CreatedAt, receipt.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidSale
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	created := receipt
	return &created, nil
}

func (s *Store) GetReceiptBySaleID(ctx context.Context, saleID string) (*domain.Receipt, error) {
	var receipt domain.Receipt
	err := s.db.QueryRowContext(ctx, `
		SELECT id, sale_id, receipt_number, tenant_id, created_at, updated_at
		FROM receipts
		WHERE sale_id = $1
	`, saleID).Scan(&receipt.ID, &receipt.SaleID, &receipt.ReceiptNumber, &receipt.TenantID, &receipt.CreatedAt, &receipt.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	receipt.CreatedAt = receipt.CreatedAt.UTC()
	receipt.UpdatedAt = receipt.UpdatedAt.UTC()
	return &receipt, nil
}

func (s *Store) CreateRefund(ctx context.Context, refund domain.Refund) (*domain.Refund, error) {
	if refund.ID == "" || refund.OriginalSaleID == "" || refund.RefundTotalCents < 1 {
		return nil, store.ErrInvalidSale
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO refunds (id, original_sale_id, refund_number, tenant_id, refund_total_cents, reason, processed_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, refund.ID, refund.OriginalSaleID, refund.RefundNumber, refund.TenantID, refund.RefundTotalCents, refund.Reason, refund.ProcessedBy, refund.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	for _, line := range refund.RefundedItems {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO refund_line_items (refund_id, product_id, name, qty, unit_price_cents, subtotal_cents)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, refund.ID, line.ProductID, line.Name, line.Qty, line.UnitPriceCents, line.SubtotalCents)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	created := refund
	return &created, nil
}

func (s *Store) ListRefunds(ctx context.Context, tenantID string, offset int, limit int) ([]domain.Refund, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::int FROM refunds WHERE tenant_id = $1
	`, tenantID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, original_sale_id, refund_number, tenant_id, refund_total_cents, reason, processed_by, created_at
		FROM refunds
		WHERE tenant_id = $1
		ORDER BY created_at DESC, id DESC
		OFFSET $2 LIMIT $3
	`, tenantID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	refunds := make([]domain.Refund, 0, limit)
	refundIDs := make([]string, 0, limit)
	for rows.Next() {
		var refund domain.Refund
		if err := rows.Scan(&refund.ID, &refund.OriginalSaleID, &refund.RefundNumber, &refund.TenantID, &refund.RefundTotalCents, &refund.Reason, &refund.ProcessedBy, &refund.CreatedAt); err != nil {
			return nil, 0, err
		}
		refund.CreatedAt = refund.CreatedAt.UTC()
		refunds = append(refunds, refund)
		refundIDs = append(refundIDs, refund.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(refundIDs) == 0 {
		return refunds, total, nil
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT refund_id, product_id, name, qty, unit_price_cents, subtotal_cents
		FROM refund_line_items
		WHERE refund_id = ANY($1)
		ORDER BY id ASC
	`, refundIDs)
	if err != nil {
		return nil, 0, err
	}
	defer itemRows.Close()

	itemMap := make(map[string][]domain.RefundLineItem, len(refundIDs))
	for itemRows.Next() {
		var refundID string
		var line domain.RefundLineItem
		if err := itemRows.Scan(&refundID, &line.ProductID, &line.Name, &line.Qty, &line.UnitPriceCents, &line.SubtotalCents); err != nil {
			return nil, 0, err
		}
		itemMap[refundID] = append(itemMap[refundID], line)
	}
	if err := itemRows.Err(); err != nil {
		return nil, 0, err
	}

	for i := range refunds {
		refunds[i].RefundedItems = itemMap[refunds[i].ID]
	}
	return refunds, total, nil
}

func (s *Store) GetRefundedQtyBySale(ctx context.Context, saleID string) (map[string]float64, error) {
	result := make(map[string]float64)
	rows, err := s.db.QueryContext(ctx, `
		SELECT rli.product_id, COALESCE(SUM(rli.qty), 0)::float8
		FROM refunds r
		JOIN refund_line_items rli ON rli.refund_id = r.id
		WHERE r.original_sale_id = $1
		GROUP BY rli.product_id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var productID string
		var qty float64
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, err
		}
		result[productID] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLogEntry) error {
	if entry.ID == "" {
		entry.ID = ids.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	beforeJSON, err := json.Marshal(entry.Before)
	if err != nil {
		return err
	}
	afterJSON, err := json.Marshal(entry.After)
	if err != nil {
		return err
	}
	metadataJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, tenant_id, action, entity_type, entity_id, user_id, user_name,
			before, after, metadata, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, entry.ID, entry.TenantID, entry.Action, entry.EntityType, entry.EntityID, entry.UserID, entry.UserName,
		beforeJSON, afterJSON, metadataJSON, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, tenantID string, limit int) ([]domain.AuditLogEntry, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, action, entity_type, entity_id, user_id, user_name,
			before, after, metadata, created_at
		FROM audit_logs
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLogEntry, 0, limit)
	for rows.Next() {
		var entry domain.AuditLogEntry
		var beforeRaw []byte
		var afterRaw []byte
		var metadataRaw []byte
		if err := rows.Scan(&entry.ID, &entry.TenantID, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.UserID, &entry.UserName, &beforeRaw, &afterRaw, &metadataRaw, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		if len(beforeRaw) > 0 {
			_ = json.Unmarshal(beforeRaw, &entry.Before)
		}
		if len(afterRaw) > 0 {
			_ = json.Unmarshal(afterRaw, &entry.After)
		}
		if len(metadataRaw) > 0 {
			_ = json.Unmarshal(metadataRaw, &entry.Metadata)
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidSale
	}
	if user.ID == "" {
		user.ID = ids.New("user")
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (id, tenant_id, username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())
	`, user.ID, user.TenantID, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidSale
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.ID, &user.TenantID, &user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidSale
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
