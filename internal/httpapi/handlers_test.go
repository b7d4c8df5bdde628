package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ventapos/backend/internal/domain"
	"ventapos/backend/internal/service"
	"ventapos/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, nil, 10*time.Minute)
	auth := NewAuthManager("test-secret-key", time.Hour, "supervisor-pass", repo)

	return New(svc, auth, "*")
}

func loginAs(t *testing.T, api *API, username, password string) string {
	t.Helper()
	payload, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s returned %d (body: %s)", username, rec.Code, rec.Body.String())
	}

	var body domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return body.AccessToken
}

func doJSON(t *testing.T, api *API, method, path, token, csrf string, payload any) *httptest.ResponseRecorder {
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
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func orderFromBody(t *testing.T, rec *httptest.ResponseRecorder) domain.Order {
	t.Helper()
	var body struct {
		Order domain.Order `json:"order"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	return body.Order
}

func saveRequestFor(productID string, qty int, price int64) domain.SaveOrderRequest {
	return domain.SaveOrderRequest{Order: domain.Order{
		ClientID: "cli-mostrador",
		Items: []domain.OrderItem{{
			ID:             "it-1",
			ProductID:      productID,
			ProductName:    productID,
			Qty:            qty,
			Tier:           1,
			UnitPriceCents: price,
		}},
	}}
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodGet, "/healthz", "", "", nil)
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

func TestHandleLoginInvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", "", domain.LoginRequest{
		Username: "admin",
		Password: "wrongpassword",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleProductsRequiresAuth(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodGet, "/api/v1/products", "", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleProductsAndClientsWithToken(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")

	rec := doJSON(t, api, http.MethodGet, "/api/v1/products", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("products returned %d", rec.Code)
	}
	var products struct {
		Products []domain.Product `json:"products"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&products); err != nil {
		t.Fatalf("decode products: %v", err)
	}
	if len(products.Products) == 0 {
		t.Fatal("expected seeded products")
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/clients", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("clients returned %d", rec.Code)
	}
}

func TestSaveAndSettleOrderFlow(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/orders", token, csrf, saveRequestFor("prod-sal", 3, 1200))
	if rec.Code != http.StatusOK {
		t.Fatalf("save returned %d (body: %s)", rec.Code, rec.Body.String())
	}
	saved := orderFromBody(t, rec)
	if saved.ID == "" || saved.Status != domain.OrderStatusPending {
		t.Fatalf("unexpected saved order: %+v", saved)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/orders/"+saved.ID+"/settle", token, csrf, domain.SettlementRequest{
		Method:      domain.PaymentMethodCash,
		AmountCents: saved.TotalCents,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("settle returned %d (body: %s)", rec.Code, rec.Body.String())
	}
	settled := orderFromBody(t, rec)
	if settled.Status != domain.OrderStatusPaid {
		t.Fatalf("status = %s, want paid", settled.Status)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/orders/"+saved.ID, token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get returned %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/orders/"+saved.ID+"/ticket", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ticket returned %d", rec.Code)
	}
	var ticket domain.TicketResponse
	if err := json.NewDecoder(rec.Body).Decode(&ticket); err != nil {
		t.Fatalf("decode ticket: %v", err)
	}
	if ticket.OrderID != saved.ID || ticket.Body == "" {
		t.Fatalf("unexpected ticket: %+v", ticket)
	}
}

func TestStockOverrideNeedsPassphrase(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")
	csrf := fetchCSRFToken(t, api)

	over := saveRequestFor("prod-frijol", 1000, 118000)
	over.StockOverride = true

	rec := doJSON(t, api, http.MethodPost, "/api/v1/orders", token, csrf, over)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without passphrase, got %d", rec.Code)
	}

	over.AdminPassphrase = "supervisor-pass"
	rec = doJSON(t, api, http.MethodPost, "/api/v1/orders", token, csrf, over)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with passphrase, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestAdminBypassesPassphraseGate(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", "admin123")
	csrf := fetchCSRFToken(t, api)

	over := saveRequestFor("prod-frijol", 1000, 118000)
	over.StockOverride = true

	rec := doJSON(t, api, http.MethodPost, "/api/v1/orders", token, csrf, over)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin override returned %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestInsufficientStockReturnsConflict(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/orders", token, csrf, saveRequestFor("prod-frijol", 1000, 118000))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestLockConflictBetweenUsers(t *testing.T) {
	api := newTestAPI(t)
	cashierToken := loginAs(t, api, "cashier", "cashier123")
	adminToken := loginAs(t, api, "admin", "admin123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/orders/sale-x/lock", cashierToken, csrf, domain.LockRequest{Session: "s1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("lock returned %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/orders/sale-x/lock", adminToken, csrf, domain.LockRequest{Session: "s2"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on contested lock, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/orders/sale-x/unlock", cashierToken, csrf, domain.LockRequest{Session: "s1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("unlock returned %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/orders/sale-x/lock", adminToken, csrf, domain.LockRequest{Session: "s2"})
	if rec.Code != http.StatusOK {
		t.Fatalf("lock after unlock returned %d", rec.Code)
	}
}

func TestRegisterEndpoints(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodGet, "/api/v1/registers/active", token, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with no open register, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/registers/open", token, csrf, domain.RegisterOpenRequest{OpeningCents: 5000})
	if rec.Code != http.StatusCreated {
		t.Fatalf("open returned %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/registers/active", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("active returned %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/registers/close", token, csrf, domain.RegisterCloseRequest{ClosingCents: 5000})
	if rec.Code != http.StatusOK {
		t.Fatalf("close returned %d", rec.Code)
	}
}

func TestVoucherCreateRequiresAdmin(t *testing.T) {
	api := newTestAPI(t)
	cashierToken := loginAs(t, api, "cashier", "cashier123")
	adminToken := loginAs(t, api, "admin", "admin123")
	csrf := fetchCSRFToken(t, api)

	req := domain.VoucherCreateRequest{Code: "VALE-77", AvailableCents: 2500}

	rec := doJSON(t, api, http.MethodPost, "/api/v1/vouchers", cashierToken, csrf, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/vouchers", adminToken, csrf, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for admin, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/vouchers?status=active", cashierToken, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list returned %d", rec.Code)
	}
}

func TestPriceDraftEndpoint(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/orders/price", token, csrf, domain.DraftRequest{
		ClientID: "cli-bodega-norte",
		Lines:    []domain.DraftLine{{ProductID: "prod-sal", Qty: 2, Tier: 1}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("price draft returned %d (body: %s)", rec.Code, rec.Body.String())
	}
	draft := orderFromBody(t, rec)
	if draft.TotalCents != 2400 {
		t.Fatalf("total = %d, want 2400", draft.TotalCents)
	}
}

func TestCancelRequiresPassphraseForCashier(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/orders", token, csrf, saveRequestFor("prod-sal", 2, 1200))
	saved := orderFromBody(t, rec)

	rec = doJSON(t, api, http.MethodPost, "/api/v1/orders/"+saved.ID+"/cancel", token, csrf, domain.CancelRequest{})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without passphrase, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/orders/"+saved.ID+"/cancel", token, csrf, domain.CancelRequest{AdminPassphrase: "supervisor-pass"})
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel returned %d (body: %s)", rec.Code, rec.Body.String())
	}
	cancelled := orderFromBody(t, rec)
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Fatalf("status = %s", cancelled.Status)
	}
}
