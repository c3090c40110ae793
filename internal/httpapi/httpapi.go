package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"tokokita/backend/internal/domain"
	"tokokita/backend/internal/service"
	"tokokita/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	csrfSecret    []byte
	loginLimiter  *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, csrfSecret string) *API {
	if csrfSecret == "" {
		csrfSecret = "dev-csrf-change-me"
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		csrfSecret:    []byte(csrfSecret),
		loginLimiter:  newAttemptLimiter(8, time.Minute),
	}
}

// csrfExemptPaths never require a CSRF token: they are either unauthenticated
// entry points or the token-issuing endpoint itself.
var csrfExemptPaths = map[string]bool{
	"/api/health":          true,
	"/api/auth/login":      true,
	"/api/auth/csrf-token": true,
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/api/health", a.handleHealth)
	r.Post("/api/auth/login", a.handleLogin)
	r.Get("/api/auth/csrf-token", a.handleCSRFToken)

	r.Get("/api/products", a.requireAuth(a.handleListProducts))
	r.Get("/api/customers", a.requireAuth(a.handleListCustomers))
	r.Get("/api/tenant", a.requireAuth(a.handleGetTenant))

	r.Get("/api/cart", a.requireAuth(a.handleGetCart))
	r.Delete("/api/cart", a.requireAuth(a.handleClearCart))
	r.Post("/api/cart/items", a.requireAuth(a.handleAddToCart))
	r.Patch("/api/cart/items", a.requireAuth(a.handleUpdateQuantity))
	r.Delete("/api/cart/items/{productID}", a.requireAuth(a.handleRemoveFromCart))
	r.Post("/api/cart/discount", a.requireAuth(a.handleSetDiscount))
	r.Post("/api/cart/customer", a.requireAuth(a.handleSetCustomer))

	r.Post("/api/checkout", a.requireAuth(a.handleCheckout))

	r.Get("/api/holds", a.requireAuth(a.handleListHeldOrders))
	r.Post("/api/holds", a.requireAuth(a.handleHoldOrder))
	r.Post("/api/holds/{holdID}/recall", a.requireAuth(a.handleRecallOrder))
	r.Delete("/api/holds/{holdID}", a.requireAuth(a.handleDiscardHeldOrder))

	r.Get("/api/sales", a.requireAuth(a.handleListSales))
	r.Get("/api/sales/{saleID}", a.requireAuth(a.handleGetSale))

	r.Get("/api/refunds", a.requireAuth(a.handleListRefunds))
	r.Post("/api/refunds", a.requireAuth(a.handleRefund, "admin"))

	r.Get("/api/audit-logs", a.requireAuth(a.handleListAuditLogs, "admin"))

	r.Get("/api/cashiers", a.requireAuth(a.handleListCashiers, "admin"))
	r.Post("/api/cashiers", a.requireAuth(a.handleCreateCashier, "admin"))

	return a.withMiddleware(r)
}

// requireAuth wraps a handler with bearer-token authentication. With no roles
// given any authenticated user passes; otherwise the actor's role must match
// one of them.
func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		actor, err := a.auth.ParseToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		if len(roles) > 0 {
			allowed := false
			for _, role := range roles {
				if actor.Role == role {
					allowed = true
					break
				}
			}
			if !allowed {
				writeError(w, http.StatusForbidden, fmt.Sprintf("%s role required", strings.Join(roles, " or ")))
				return
			}
		}
		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, "too many login attempts, try again later")
		return
	}
	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	a.loginLimiter.reset(clientKey(r))
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCSRFToken(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"csrf_token": a.generateCSRFToken()})
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	products, err := a.service.ListProducts(r.Context(), actor.TenantID)
	if err != nil {
		a.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	customers, err := a.service.ListCustomers(r.Context(), actor.TenantID)
	if err != nil {
		a.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": customers})
}

func (a *API) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	tenant, err := a.service.GetTenant(r.Context(), actor.TenantID)
	if err != nil {
		a.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenant": tenant})
}

func (a *API) handleGetCart(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	resp, err := a.service.GetCart(r.Context(), actor.TenantID, terminalID(r))
	if err != nil {
		a.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleClearCart(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	resp, err := a.service.ClearCart(r.Context(), actor.TenantID, terminalID(r))
	if err != nil {
		a.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	var req domain.AddToCartRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.TenantID = actor.TenantID
	resp, err := a.service.AddToCart(r.Context(), req)
	if err != nil {
		a.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleUpdateQuantity(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	var req domain.UpdateQuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.TenantID = actor.TenantID
	resp, err := a.service.UpdateQuantity(r.Context(), req)
	if err != nil {
		a.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleRemoveFromCart(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	resp, err := a.service.RemoveFromCart(r.Context(), actor.TenantID, terminalID(r), chi.URLParam(r, "productID"))
	if err != nil {
		a.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSetDiscount(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	var req domain.SetDiscountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.TenantID = actor.TenantID
	resp, err := a.service.SetDiscount(r.Context(), req)
	if err != nil {
		a.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSetCustomer(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	var req domain.SetCustomerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.TenantID = actor.TenantID
	resp, err := a.service.SetCustomer(r.Context(), req)
	if err != nil {
		a.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	var req domain.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.TenantID = actor.TenantID
	resp, err := a.service.Checkout(r.Context(), req)
	if err != nil {
		a.respondServiceError(w, err)
		return
	}
	status := http.StatusCreated
	if resp.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (a *API) handleListHeldOrders(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	resp, err := a.service.ListHeldOrders(r.Context(), actor.TenantID, terminalID(r))
	if err != nil {
		a.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleHoldOrder(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	var req domain.HoldOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.TenantID = actor.TenantID
	resp, err := a.service.HoldOrder(r.Context(), req)
	if err != nil {
		a.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleRecallOrder(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	resp, err := a.service.RecallOrder(r.Context(), actor.TenantID, terminalID(r), chi.URLParam(r, "holdID"))
	if err != nil {
		a.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleDiscardHeldOrder(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	if err := a.service.DiscardHeldOrder(r.Context(), actor.TenantID, terminalID(r), chi.URLParam(r, "holdID")); err != nil {
		a.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "discarded"})
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	page := parsePositiveInt(r.URL.Query().Get("page"), 1)
	pageSize := parsePositiveInt(r.URL.Query().Get("page_size"), 20)
	resp, err := a.service.ListSales(r.Context(), actor.TenantID, page, pageSize)
	if err != nil {
		a.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	sale, err := a.service.GetSale(r.Context(), chi.URLParam(r, "saleID"))
	if err != nil {
		a.respondServiceError(w, err)
		return
	}
	if sale.TenantID != actor.TenantID {
		writeError(w, http.StatusNotFound, "sale not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleListRefunds(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	page := parsePositiveInt(r.URL.Query().Get("page"), 1)
	pageSize := parsePositiveInt(r.URL.Query().Get("page_size"), 20)
	resp, err := a.service.ListRefunds(r.Context(), actor.TenantID, page, pageSize)
	if err != nil {
		a.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleRefund(w http.ResponseWriter, r *http.Request) {
	var req domain.RefundRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := a.service.Refund(r.Context(), req)
	if err != nil {
		a.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	limit := parsePositiveInt(r.URL.Query().Get("limit"), 50)
	logs, err := a.service.ListAuditLogs(r.Context(), actor.TenantID, limit)
	if err != nil {
		a.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit_logs": logs})
}

func (a *API) handleListCashiers(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"cashiers": a.auth.ListCashiers(actor)})
}

func (a *API) handleCreateCashier(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	var req domain.CashierCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.auth.CreateCashier(actor, req)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// respondServiceError maps store sentinel errors onto HTTP statuses. Unknown
// errors are treated as unprocessable rather than server faults: the service
// layer wraps genuine infrastructure failures distinctly.
func (a *API) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrOrderLimitReached):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrInsufficientStock):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrInvalidSale):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	}
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")

		if a.allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-CSRF-Token")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if !a.checkCSRF(r) {
			writeError(w, http.StatusForbidden, "missing or invalid CSRF token")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		next.ServeHTTP(w, r)

		log.Printf("[http] %s %s from %s in %s", r.Method, r.URL.Path, clientKey(r), time.Since(start).Round(time.Millisecond))
	})
}

func (a *API) checkCSRF(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	if csrfExemptPaths[r.URL.Path] {
		return true
	}
	return a.validateCSRFToken(r.Header.Get("X-CSRF-Token"))
}

// generateCSRFToken derives a token from the current hour bucket, so tokens
// are stateless and expire on their own.
func (a *API) generateCSRFToken() string {
	return a.csrfTokenForHour(time.Now().UTC().Truncate(time.Hour))
}

// validateCSRFToken accepts the current and previous hour's token, giving
// every issued token at least one hour of validity.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	now := time.Now().UTC().Truncate(time.Hour)
	for _, bucket := range []time.Time{now, now.Add(-time.Hour)} {
		expected := a.csrfTokenForHour(bucket)
		if hmac.Equal([]byte(expected), []byte(token)) {
			return true
		}
	}
	return false
}

func (a *API) csrfTokenForHour(bucket time.Time) string {
	mac := hmac.New(sha256.New, a.csrfSecret)
	mac.Write([]byte(bucket.Format(time.RFC3339)))
	return hex.EncodeToString(mac.Sum(nil))
}

// attemptLimiter is a sliding-window counter keyed by client, used to slow
// down credential guessing on the login endpoint.
type attemptLimiter struct {
	mu       sync.Mutex
	window   time.Duration
	max      int
	attempts map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	return &attemptLimiter{
		window:   window,
		max:      max,
		attempts: make(map[string][]time.Time),
	}
}

func (l *attemptLimiter) allow(key string) bool {
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.attempts[key][:0]
	for _, t := range l.attempts[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= l.max {
		l.attempts[key] = kept
		return false
	}
	l.attempts[key] = append(kept, now)
	return true
}

func (l *attemptLimiter) reset(key string) {
	l.mu.Lock()
	delete(l.attempts, key)
	l.mu.Unlock()
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func terminalID(r *http.Request) string {
	if id := r.URL.Query().Get("terminal_id"); id != "" {
		return id
	}
	return "terminal-1"
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func parsePositiveInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[http] WARN: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	if status >= http.StatusInternalServerError {
		message = "internal server error"
	}
	writeJSON(w, status, map[string]string{"error": message})
}
