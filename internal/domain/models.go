package domain

import "time"

type Product struct {
	ID             string  `json:"id"`
	TenantID       string  `json:"tenant_id"`
	Name           string  `json:"name"`
	UnitPriceCents int64   `json:"unit_price_cents"`
	CostPriceCents int64   `json:"cost_price_cents"`
	CurrentStock   float64 `json:"current_stock"`
	MinimumStock   float64 `json:"minimum_stock"`
	Status         string  `json:"status"`
}

type Tenant struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	Plan              string  `json:"plan"`
	MaxOrdersOverride int     `json:"max_orders_override,omitempty"`
	TaxRatePercent    float64 `json:"tax_rate_percent"`
	Currency          string  `json:"currency"`
}

type Customer struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	Phone    string `json:"phone,omitempty"`
}

// CartItem carries a value snapshot of the product taken when the item was
// added, so held orders and sales stay decoupled from later catalog edits.
type CartItem struct {
	ProductID     string  `json:"product_id"`
	Product       Product `json:"product"`
	Qty           float64 `json:"qty"`
	SubtotalCents int64   `json:"subtotal_cents"`
}

// Discount value semantics depend on Type: a percentage discount carries a
// percent (0..100), a fixed discount carries an amount in cents.
type Discount struct {
	Type   string  `json:"type"`
	Value  float64 `json:"value"`
	Reason string  `json:"reason,omitempty"`
}

type Cart struct {
	Items              []CartItem `json:"items"`
	SelectedCustomerID string     `json:"selected_customer_id,omitempty"`
	Discount           *Discount  `json:"discount,omitempty"`
}

type SaleLineItem struct {
	ProductID      string  `json:"product_id"`
	Name           string  `json:"name"`
	UnitPriceCents int64   `json:"unit_price_cents"`
	CostPriceCents int64   `json:"cost_price_cents"`
	Qty            float64 `json:"qty"`
	SubtotalCents  int64   `json:"subtotal_cents"`
}

type Sale struct {
	ID              string         `json:"id"`
	Number          string         `json:"number"`
	TenantID        string         `json:"tenant_id"`
	CashierUserID   string         `json:"cashier_user_id"`
	CustomerID      string         `json:"customer_id,omitempty"`
	CheckoutToken   string         `json:"checkout_token,omitempty"`
	LineItems       []SaleLineItem `json:"line_items"`
	SubtotalCents   int64          `json:"subtotal_cents"`
	DiscountCents   int64          `json:"discount_cents"`
	TaxCents        int64          `json:"tax_cents"`
	GrandTotalCents int64          `json:"grand_total_cents"`
	PaymentMethod   string         `json:"payment_method"`
	Discount        *Discount      `json:"discount,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

type Receipt struct {
	ID            string    `json:"id"`
	SaleID        string    `json:"sale_id"`
	ReceiptNumber string    `json:"receipt_number"`
	TenantID      string    `json:"tenant_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// HeldOrder is a complete, independently owned snapshot of a cart. Mutating
// the live cart after holding must not affect it.
type HeldOrder struct {
	ID         string     `json:"id"`
	Items      []CartItem `json:"items"`
	CustomerID string     `json:"customer_id,omitempty"`
	Discount   *Discount  `json:"discount,omitempty"`
	HeldAt     time.Time  `json:"held_at"`
	HeldBy     string     `json:"held_by"`
}

type RefundLineItem struct {
	ProductID      string  `json:"product_id"`
	Name           string  `json:"name"`
	Qty            float64 `json:"qty"`
	UnitPriceCents int64   `json:"unit_price_cents"`
	SubtotalCents  int64   `json:"subtotal_cents"`
}

type Refund struct {
	ID               string           `json:"id"`
	OriginalSaleID   string           `json:"original_sale_id"`
	RefundNumber     string           `json:"refund_number"`
	TenantID         string           `json:"tenant_id"`
	RefundedItems    []RefundLineItem `json:"refunded_items"`
	RefundTotalCents int64            `json:"refund_total_cents"`
	Reason           string           `json:"reason"`
	ProcessedBy      string           `json:"processed_by"`
	CreatedAt        time.Time        `json:"created_at"`
}

type AuditLogEntry struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenant_id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	UserID     string         `json:"user_id"`
	UserName   string         `json:"user_name"`
	Before     map[string]any `json:"before,omitempty"`
	After      map[string]any `json:"after,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

type StockWarning struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Requested   float64 `json:"requested"`
	Available   float64 `json:"available"`
}

type AddToCartRequest struct {
	TenantID   string  `json:"tenant_id"`
	TerminalID string  `json:"terminal_id"`
	ProductID  string  `json:"product_id"`
	Qty        float64 `json:"qty"`
}

type UpdateQuantityRequest struct {
	TenantID   string  `json:"tenant_id"`
	TerminalID string  `json:"terminal_id"`
	ProductID  string  `json:"product_id"`
	Delta      float64 `json:"delta"`
}

type SetDiscountRequest struct {
	TenantID   string    `json:"tenant_id"`
	TerminalID string    `json:"terminal_id"`
	Discount   *Discount `json:"discount"`
}

type SetCustomerRequest struct {
	TenantID   string `json:"tenant_id"`
	TerminalID string `json:"terminal_id"`
	CustomerID string `json:"customer_id"`
}

type CartResponse struct {
	Cart            Cart           `json:"cart"`
	SubtotalCents   int64          `json:"subtotal_cents"`
	DiscountCents   int64          `json:"discount_cents"`
	TaxCents        int64          `json:"tax_cents"`
	GrandTotalCents int64          `json:"grand_total_cents"`
	Warnings        []StockWarning `json:"warnings,omitempty"`
}

type CheckoutRequest struct {
	TenantID      string `json:"tenant_id"`
	TerminalID    string `json:"terminal_id"`
	CheckoutToken string `json:"checkout_token"`
	PaymentMethod string `json:"payment_method"`
}

type CheckoutResponse struct {
	Sale      Sale           `json:"sale"`
	Receipt   Receipt        `json:"receipt"`
	Warnings  []StockWarning `json:"warnings,omitempty"`
	Duplicate bool           `json:"duplicate"`
}

type HoldOrderRequest struct {
	TenantID   string `json:"tenant_id"`
	TerminalID string `json:"terminal_id"`
}

type HeldOrderResponse struct {
	HeldOrder HeldOrder `json:"held_order"`
}

type HeldOrderListResponse struct {
	Items []HeldOrder `json:"items"`
}

type RefundItemInput struct {
	ProductID string  `json:"product_id"`
	Qty       float64 `json:"qty"`
}

type RefundRequest struct {
	SaleID string            `json:"sale_id"`
	Items  []RefundItemInput `json:"items"`
	Reason string            `json:"reason"`
}

type RefundResponse struct {
	Refund Refund `json:"refund"`
}

type SalesPage struct {
	Sales    []Sale `json:"sales"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	Total    int    `json:"total"`
	HasMore  bool   `json:"has_more"`
}

type RefundsPage struct {
	Refunds  []Refund `json:"refunds"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
	Total    int      `json:"total"`
	HasMore  bool     `json:"has_more"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	TenantID    string `json:"tenant_id"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	UserID   string
	Username string
	Role     string
	TenantID string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	ID        string
	TenantID  string
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	ProductStatusInStock    = "in_stock"
	ProductStatusLowStock   = "low_stock"
	ProductStatusOutOfStock = "out_of_stock"
)

const (
	DiscountTypePercentage = "percentage"
	DiscountTypeFixed      = "fixed"
)

const (
	PlanFree     = "free"
	PlanStandard = "standard"
	PlanPro      = "pro"
)

const (
	AuditSaleCompleted       = "sale_completed"
	AuditDiscountApplied     = "discount_applied"
	AuditOrderHeld           = "order_held"
	AuditOrderRecalled       = "order_recalled"
	AuditOrderDiscarded      = "order_discarded"
	AuditRefundIssued        = "refund_issued"
	AuditInventoryAdjustFail = "inventory_adjustment_failed"
)
