package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"basreng/backend/internal/cache"
	"basreng/backend/internal/domain"
	"basreng/backend/internal/service"
	"basreng/backend/internal/store/memory"
	"basreng/backend/internal/txcode"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()
	t.Setenv("SEED_ADMIN_PASSWORD", "admin123")
	t.Setenv("SEED_CASHIER_PASSWORD", "cashier123")

	logger := zaptest.NewLogger(t)
	repo, err := memory.NewSeeded(logger)
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
	loc := txcode.LoadLocation("Asia/Jakarta")
	svc := service.New(repo, cache.NoopReceiptCache{}, txcode.NewGenerator("CAB01", loc), logger, service.Options{Location: loc})
	auth := NewAuthManager("test-secret-key-with-enough-length", time.Hour, repo, logger)

	return New(svc, auth, logger, "*")
}

func login(t *testing.T, api *API, username string, password string) string {
	t.Helper()

	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "198.51.100.7:4000"
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("%s login failed, status %d", username, res.Code)
	}

	var payload domain.LoginResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode login response failed: %v", err)
	}
	if payload.AccessToken == "" {
		t.Fatalf("expected access token in login response")
	}
	return payload.AccessToken
}

func doJSON(t *testing.T, api *API, method string, path string, token string, payload any) (*httptest.ResponseRecorder, map[string]any) {
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
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)

	decoded := map[string]any{}
	if res.Body.Len() > 0 {
		if err := json.Unmarshal(res.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response %q: %v", res.Body.String(), err)
		}
	}
	return res, decoded
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	res, body := doJSON(t, api, http.MethodGet, "/healthz", "", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	res, body := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
	if body["status"] != "error" {
		t.Fatalf("expected error status, got %v", body)
	}
}

func TestTransactionsRequireAuth(t *testing.T) {
	api := newTestAPI(t)

	for _, path := range []string{"/api/v1/transactions", "/api/v1/transactions/create", "/api/v1/transactions/receipt", "/api/v1/transactions/CAB01X"} {
		res, _ := doJSON(t, api, http.MethodGet, path, "", nil)
		if res.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, res.Code)
		}
	}
}

func TestCreateTransactionAndReceipt(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "kasir", "cashier123")

	res, body := doJSON(t, api, http.MethodPost, "/api/v1/transactions/create", token, map[string]any{
		"transaction_details": []map[string]any{
			{"product_id": 1, "quantity": 6, "price": 15000, "product_name": "Basreng Original"},
		},
		"is_reseller":     1,
		"payment_method":  "cash",
		"cash_amount":     100000,
		"is_online_order": 0,
		"customer_name":   "ignored",
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", res.Code, body)
	}
	if body["status"] != "success" {
		t.Fatalf("expected success status, got %v", body)
	}
	if body["total_price"] != float64(75000) || body["discount_amount"] != float64(15000) || body["change_amount"] != float64(25000) {
		t.Fatalf("unexpected totals %v", body)
	}
	code, _ := body["transaction_code"].(string)
	if len(code) != len("CAB01")+12 {
		t.Fatalf("unexpected transaction code %q", code)
	}

	res, body = doJSON(t, api, http.MethodPost, "/api/v1/transactions/receipt", token, map[string]string{"transaction_code": code})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", res.Code, body)
	}
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected receipt data, got %v", body)
	}
	if data["cashier"] != "kasir" || data["discount_amount"] != float64(15000) || data["customer_name"] != "" {
		t.Fatalf("unexpected receipt %v", data)
	}
	if _, ok := data["tanggal"].(string); !ok {
		t.Fatalf("expected tanggal in receipt, got %v", data)
	}
	products, _ := data["products"].([]any)
	if len(products) != 1 {
		t.Fatalf("expected one receipt line, got %v", data["products"])
	}
}

func TestCreateTransactionValidationErrors(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "kasir", "cashier123")

	res, body := doJSON(t, api, http.MethodPost, "/api/v1/transactions/create", token, map[string]any{
		"transaction_details": []map[string]any{},
		"payment_method":      "cash",
	})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if body["status"] != "error" || body["message"] == "" || body["error"] == nil {
		t.Fatalf("unexpected error payload %v", body)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions/create", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d", rec.Code)
	}
}

func TestReceiptUnknownCodeIsClientError(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "kasir", "cashier123")

	res, body := doJSON(t, api, http.MethodPost, "/api/v1/transactions/receipt", token, map[string]string{"transaction_code": "CAB01NOPE"})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if body["message"] != "Transaction not found" {
		t.Fatalf("unexpected message %v", body)
	}

	res, _ = doJSON(t, api, http.MethodGet, "/api/v1/transactions/receipt", token, nil)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestListShowAndDeleteTransactions(t *testing.T) {
	api := newTestAPI(t)
	cashier := login(t, api, "kasir", "cashier123")
	admin := login(t, api, "admin", "admin123")

	_, created := doJSON(t, api, http.MethodPost, "/api/v1/transactions/create", cashier, map[string]any{
		"transaction_details": []map[string]any{{"product_id": 2, "quantity": 2, "price": 16000}},
		"payment_method":      "qris",
	})
	code, _ := created["transaction_code"].(string)
	if code == "" {
		t.Fatalf("expected transaction code, got %v", created)
	}

	res, body := doJSON(t, api, http.MethodGet, "/api/v1/transactions?start_date=today&username=kasir", cashier, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", res.Code, body)
	}
	list, _ := body["data"].([]any)
	if len(list) != 1 {
		t.Fatalf("expected one transaction today, got %v", body["data"])
	}
	first, _ := list[0].(map[string]any)
	if first["kasir"] != "kasir" || first["transaction_code"] != code {
		t.Fatalf("unexpected list entry %v", first)
	}

	res, body = doJSON(t, api, http.MethodGet, "/api/v1/transactions?start_date=yesterday", cashier, nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed date, got %d (%v)", res.Code, body)
	}

	res, body = doJSON(t, api, http.MethodGet, "/api/v1/transactions/"+code, cashier, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	view, _ := body["data"].(map[string]any)
	if view["transactions"] == nil || view["transaction_details"] == nil {
		t.Fatalf("expected header and details, got %v", view)
	}

	res, _ = doJSON(t, api, http.MethodDelete, "/api/v1/transactions/"+code, cashier, nil)
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected cashier delete to be forbidden, got %d", res.Code)
	}

	res, body = doJSON(t, api, http.MethodDelete, "/api/v1/transactions/"+code, admin, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", res.Code, body)
	}

	res, _ = doJSON(t, api, http.MethodGet, "/api/v1/transactions/"+code, cashier, nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", res.Code)
	}

	res, _ = doJSON(t, api, http.MethodPost, "/api/v1/transactions/"+code, admin, nil)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}
