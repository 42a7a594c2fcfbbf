package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"salonpos/backend/internal/booking"
	"salonpos/backend/internal/checkout"
	"salonpos/backend/internal/commission"
	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/inventory"
	"salonpos/backend/internal/loyalty"
	"salonpos/backend/internal/promotion"
	"salonpos/backend/internal/service"
	"salonpos/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	ledger := loyalty.NewLedger(repo, 0, 0)
	stock := inventory.NewLedger()
	orch := checkout.New(repo, stock, promotion.NewEngine(time.UTC), ledger, commission.NewCalculator(nil),
		loyalty.NewMemoryQueue(), nil, checkout.Options{DefaultOutletID: memory.DemoOutletID})

	svc := service.New(service.Deps{
		Store:      repo,
		Bookings:   booking.NewService(repo, nil, memory.DemoOutletID),
		Inventory:  inventory.NewService(repo, stock, nil, memory.DemoOutletID),
		Promotions: promotion.NewService(repo),
		Loyalty:    ledger,
		Checkout:   orch,
	})
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, nil, "*")
}

func login(t *testing.T, handler http.Handler, username string, password string) string {
	t.Helper()

	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "198.51.100.7:4000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s failed: %d %s", username, rec.Code, rec.Body.String())
	}

	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

func call(t *testing.T, handler http.Handler, method string, path string, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	rec := call(t, api.Handler(), http.MethodGet, "/healthz", "", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	rec := call(t, api.Handler(), http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "admin", Password: "wrongpassword"})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if body := decodeError(t, rec); body.Code != "unauthenticated" {
		t.Fatalf("expected unauthenticated code, got %q", body.Code)
	}
}

func TestBookingsRequireAuth(t *testing.T) {
	api := newTestAPI(t)
	rec := call(t, api.Handler(), http.MethodPost, "/api/v1/bookings", "", map[string]any{})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestBookingLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "stylist", "staff123")

	start := time.Now().UTC().Add(72 * time.Hour).Truncate(time.Hour)
	create := func(at time.Time) *httptest.ResponseRecorder {
		return call(t, handler, http.MethodPost, "/api/v1/bookings", token, map[string]any{
			"clientId":        "client-demo",
			"serviceId":       "svc-color",
			"staffId":         "stylist",
			"appointmentDate": at.Format(time.RFC3339),
			"duration":        45,
			"price":           45000,
		})
	}

	rec := create(start)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	var created struct {
		Booking domain.Booking `json:"booking"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode booking: %v", err)
	}

	rec = create(start.Add(30 * time.Minute))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for overlap, got %d", rec.Code)
	}
	body := decodeError(t, rec)
	if body.Code != "scheduling_conflict" || body.Message != "this staff member is already booked for this time" {
		t.Fatalf("unexpected conflict body %+v", body)
	}

	rec = create(start.Add(45 * time.Minute))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected adjacent slot to be accepted, got %d", rec.Code)
	}

	rec = call(t, handler, http.MethodGet, "/api/v1/bookings/"+created.Booking.ID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = call(t, handler, http.MethodPatch, "/api/v1/bookings/"+created.Booking.ID, token, map[string]any{"status": "confirmed"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on confirm, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = call(t, handler, http.MethodGet, "/api/v1/bookings/bk_missing", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCheckoutAndInvoiceOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "stylist", "staff123")

	rec := call(t, handler, http.MethodPost, "/api/v1/pos/checkout", token, map[string]any{
		"clientId":      "client-demo",
		"paymentMethod": "cash",
		"tax":           1000,
		"items": []map[string]any{
			{"type": "service", "itemId": "svc-color", "price": 45000, "quantity": 1, "staffId": "stylist"},
			{"type": "product", "itemId": "prod-shampoo", "price": 8000, "quantity": 2},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}

	var result domain.CheckoutResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode checkout: %v", err)
	}
	if result.Invoice.TotalCents != 62_000 {
		t.Fatalf("expected total 62000, got %d", result.Invoice.TotalCents)
	}
	if !strings.HasPrefix(result.Invoice.InvoiceNumber, "INV-") {
		t.Fatalf("unexpected invoice number %q", result.Invoice.InvoiceNumber)
	}

	first := call(t, handler, http.MethodGet, "/api/v1/invoices/"+result.Invoice.ID, token, nil)
	second := call(t, handler, http.MethodGet, "/api/v1/invoices/"+result.Invoice.ID, token, nil)
	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("expected 200 reads, got %d and %d", first.Code, second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("expected identical invoice bodies")
	}
}

func TestCheckoutErrorsMapToCodes(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "stylist", "staff123")

	rec := call(t, handler, http.MethodPost, "/api/v1/pos/checkout", token, map[string]any{
		"clientId":      "client-demo",
		"paymentMethod": "cash",
		"items":         []map[string]any{{"type": "product", "itemId": "prod-hair-serum", "price": 1000, "quantity": 11}},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (%s)", rec.Code, rec.Body.String())
	}
	body := decodeError(t, rec)
	if body.Code != "insufficient_stock" || body.Details["productId"] != "prod-hair-serum" {
		t.Fatalf("unexpected stock error body %+v", body)
	}

	rec = call(t, handler, http.MethodPost, "/api/v1/pos/checkout", token, map[string]any{
		"clientId":      "client-demo",
		"paymentMethod": "cash",
		"promotionId":   "promo-nope",
		"items":         []map[string]any{{"type": "service", "itemId": "svc-cut", "price": 1000, "quantity": 1}},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	body = decodeError(t, rec)
	if body.Code != "promotion_invalid" || body.Details["reason"] != "not_found" {
		t.Fatalf("unexpected promotion error body %+v", body)
	}

	rec = call(t, handler, http.MethodPost, "/api/v1/pos/checkout", token, map[string]any{
		"clientId":      "client-demo",
		"paymentMethod": "cash",
		"loyaltyPoints": 999,
		"items":         []map[string]any{{"type": "service", "itemId": "svc-cut", "price": 1000, "quantity": 1}},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if body = decodeError(t, rec); body.Code != "insufficient_loyalty_points" {
		t.Fatalf("unexpected loyalty error body %+v", body)
	}

	rec = call(t, handler, http.MethodPost, "/api/v1/pos/checkout", token, map[string]any{
		"clientId": "client-demo",
		"items":    []map[string]any{},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body = decodeError(t, rec)
	if body.Code != "invalid_request" || body.Details["paymentMethod"] == nil {
		t.Fatalf("expected field details, got %+v", body)
	}
}

func TestAdminOnlyEndpoints(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	staffToken := login(t, handler, "stylist", "staff123")
	adminToken := login(t, handler, "admin", "admin123")

	promo := map[string]any{
		"name":         "Happy hour",
		"discountType": "percentage",
		"value":        "15",
		"startDate":    time.Now().UTC().Add(-time.Hour).Format(time.RFC3339),
		"endDate":      time.Now().UTC().Add(48 * time.Hour).Format(time.RFC3339),
	}
	if rec := call(t, handler, http.MethodPost, "/api/v1/promotions", staffToken, promo); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff, got %d", rec.Code)
	}
	if rec := call(t, handler, http.MethodPost, "/api/v1/promotions", adminToken, promo); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for admin, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec := call(t, handler, http.MethodPost, "/api/v1/inventory/stock-in", adminToken, map[string]any{
		"productId": "prod-nail-polish",
		"quantity":  5,
		"type":      "stock-in",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on stock-in, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = call(t, handler, http.MethodGet, "/api/v1/inventory/movements?productId=prod-nail-polish", staffToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on movements, got %d", rec.Code)
	}
	var movements struct {
		Movements []domain.InventoryMovement `json:"movements"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&movements); err != nil {
		t.Fatalf("decode movements: %v", err)
	}
	if len(movements.Movements) != 1 || movements.Movements[0].QuantityAfter != 45 {
		t.Fatalf("unexpected movements %+v", movements.Movements)
	}
}

func TestCustomerSeesOwnLoyalty(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	adminToken := login(t, handler, "admin", "admin123")

	rec := call(t, handler, http.MethodPost, "/api/v1/accounts", adminToken, map[string]any{
		"username": "client-demo",
		"password": "client123",
		"kind":     "customer",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating customer, got %d (%s)", rec.Code, rec.Body.String())
	}

	customerToken := login(t, handler, "client-demo", "client123")
	rec = call(t, handler, http.MethodGet, "/api/v1/loyalty/client-demo", customerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var payload struct {
		Account domain.LoyaltyAccount `json:"account"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode loyalty: %v", err)
	}
	if payload.Account.Balance != 250 {
		t.Fatalf("expected 250 points, got %d", payload.Account.Balance)
	}

	if rec := call(t, handler, http.MethodGet, "/api/v1/loyalty/client-other", customerToken, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another client's balance, got %d", rec.Code)
	}
	if rec := call(t, handler, http.MethodPost, "/api/v1/pos/checkout", customerToken, map[string]any{}); rec.Code != http.StatusForbidden {
		t.Fatalf("expected customers to be refused at checkout, got %d", rec.Code)
	}
}

func TestDescribeErrorHidesInternalDetails(t *testing.T) {
	status, body := describeError(errors.New("relation \"invoices\" does not exist"))
	if status != http.StatusInternalServerError || strings.Contains(body.Message, "invoices") {
		t.Fatalf("expected generic 500, got %d %+v", status, body)
	}

	status, body = describeError(fmt.Errorf("checkout: %w", domain.ErrTransactionAborted))
	if status != http.StatusServiceUnavailable || body.Code != "transaction_aborted" {
		t.Fatalf("expected 503 transaction_aborted, got %d %+v", status, body)
	}
}
