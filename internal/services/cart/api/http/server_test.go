package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/wrenshaw/cartledger/internal/services/cart/app"
	"github.com/wrenshaw/cartledger/internal/services/cart/catalog"
	"github.com/wrenshaw/cartledger/internal/services/cart/projection"
	"github.com/wrenshaw/cartledger/internal/services/cart/storage/sqlite"
)

func newTestRouter(t *testing.T) *chi.Mux {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "cart.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	applier := &projection.Applier{Carts: store, Customers: store, Checkpoints: store}
	priced := catalog.NewStatic(
		catalog.Product{ID: "widget", Name: "Widget", UnitPrice: decimal.RequireFromString("10.00")},
	)
	server := &Server{
		Handler: app.Handler{
			Events:  store,
			Catalog: priced,
			Applier: applier,
			Logger:  zerolog.Nop(),
			Now:     func() time.Time { return time.Date(2026, 8, 12, 9, 0, 0, 0, time.UTC) },
		},
		Queries: app.Queries{
			Events:    store,
			Carts:     store,
			Customers: store,
			Applier:   applier,
			Logger:    zerolog.Nop(),
		},
		Logger: zerolog.Nop(),
	}
	return server.NewRouter()
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("decode response %q: %v", recorder.Body.String(), err)
	}
}

func errorCode(t *testing.T, recorder *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeBody(t, recorder, &body)
	return body.Error.Code
}

func TestCartCommandFlow(t *testing.T) {
	router := newTestRouter(t)

	recorder := doJSON(t, router, http.MethodPost, "/carts/cart-1/open",
		map[string]string{"customer_id": "customer-9"}, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("open: expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if etag := recorder.Header().Get("ETag"); etag != `"1"` {
		t.Fatalf("expected ETag \"1\", got %q", etag)
	}

	recorder = doJSON(t, router, http.MethodPost, "/carts/cart-1/items",
		map[string]any{"product_id": "widget", "quantity": 2}, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("add: expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = doJSON(t, router, http.MethodPost, "/carts/cart-1/confirm", nil, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("confirm: expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var confirm struct {
		Status  string `json:"status"`
		Version uint64 `json:"version"`
	}
	decodeBody(t, recorder, &confirm)
	if confirm.Status != "confirmed" || confirm.Version != 3 {
		t.Fatalf("unexpected confirm response: %+v", confirm)
	}

	recorder = doJSON(t, router, http.MethodGet, "/carts/cart-1/", nil, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", recorder.Code)
	}
	var summary struct {
		Status        string `json:"status"`
		TotalQuantity int64  `json:"total_quantity"`
		TotalPrice    string `json:"total_price"`
		Version       uint64 `json:"version"`
	}
	decodeBody(t, recorder, &summary)
	if summary.Status != "confirmed" || summary.TotalQuantity != 2 || summary.TotalPrice != "20" {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	recorder = doJSON(t, router, http.MethodGet, "/carts/cart-1/events", nil, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("events: expected 200, got %d", recorder.Code)
	}
	var history struct {
		Version uint64 `json:"version"`
		Events  []struct {
			Type    string `json:"type"`
			Version uint64 `json:"version"`
		} `json:"events"`
	}
	decodeBody(t, recorder, &history)
	if history.Version != 3 || len(history.Events) != 3 {
		t.Fatalf("unexpected history: %+v", history)
	}
	if history.Events[0].Type != "cart.opened" || history.Events[2].Type != "cart.confirmed" {
		t.Fatalf("unexpected event order: %+v", history.Events)
	}
}

func TestRemoveItemEndpoint(t *testing.T) {
	router := newTestRouter(t)

	doJSON(t, router, http.MethodPost, "/carts/cart-1/open", map[string]string{"customer_id": "customer-9"}, nil)
	doJSON(t, router, http.MethodPost, "/carts/cart-1/items", map[string]any{"product_id": "widget", "quantity": 3}, nil)

	recorder := doJSON(t, router, http.MethodDelete, "/carts/cart-1/items/widget?quantity=2", nil, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("remove: expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = doJSON(t, router, http.MethodGet, "/carts/cart-1/", nil, nil)
	var summary struct {
		TotalQuantity int64 `json:"total_quantity"`
	}
	decodeBody(t, recorder, &summary)
	if summary.TotalQuantity != 1 {
		t.Fatalf("expected quantity 1 after removal, got %d", summary.TotalQuantity)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	router := newTestRouter(t)

	doJSON(t, router, http.MethodPost, "/carts/cart-open/open", map[string]string{"customer_id": "customer-9"}, nil)

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{
			name:   "add to unopened cart is a conflict",
			method: http.MethodPost, path: "/carts/cart-ghost/items",
			body:       map[string]any{"product_id": "widget", "quantity": 1},
			wantStatus: http.StatusConflict, wantCode: "CART_NOT_OPENED",
		},
		{
			name:   "unknown product is a bad request",
			method: http.MethodPost, path: "/carts/cart-open/items",
			body:       map[string]any{"product_id": "ghost", "quantity": 1},
			wantStatus: http.StatusBadRequest, wantCode: "PRODUCT_UNKNOWN",
		},
		{
			name:   "non-positive quantity is a bad request",
			method: http.MethodPost, path: "/carts/cart-open/items",
			body:       map[string]any{"product_id": "widget", "quantity": 0},
			wantStatus: http.StatusBadRequest, wantCode: "QUANTITY_INVALID",
		},
		{
			name:   "empty confirm is a conflict",
			method: http.MethodPost, path: "/carts/cart-open/confirm",
			wantStatus: http.StatusConflict, wantCode: "CART_EMPTY",
		},
		{
			name:   "missing summary is not found",
			method: http.MethodGet, path: "/carts/cart-ghost/",
			wantStatus: http.StatusNotFound, wantCode: "NOT_FOUND",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := doJSON(t, router, tc.method, tc.path, tc.body, nil)
			if recorder.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tc.wantStatus, recorder.Code, recorder.Body.String())
			}
			if code := errorCode(t, recorder); code != tc.wantCode {
				t.Fatalf("expected code %s, got %s", tc.wantCode, code)
			}
		})
	}
}

func TestIfMatchPreconditions(t *testing.T) {
	router := newTestRouter(t)

	doJSON(t, router, http.MethodPost, "/carts/cart-1/open", map[string]string{"customer_id": "customer-9"}, nil)
	doJSON(t, router, http.MethodPost, "/carts/cart-1/items", map[string]any{"product_id": "widget", "quantity": 1}, nil)

	// A stale version is rejected without appending.
	recorder := doJSON(t, router, http.MethodPost, "/carts/cart-1/items",
		map[string]any{"product_id": "widget", "quantity": 1},
		map[string]string{"If-Match": `"1"`})
	if recorder.Code != http.StatusPreconditionFailed {
		t.Fatalf("expected 412, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if code := errorCode(t, recorder); code != "VERSION_CONFLICT" {
		t.Fatalf("expected VERSION_CONFLICT, got %s", code)
	}

	// A header that cannot be parsed is a bad request, not a precondition
	// failure: no re-read can make it succeed.
	recorder = doJSON(t, router, http.MethodPost, "/carts/cart-1/items",
		map[string]any{"product_id": "widget", "quantity": 1},
		map[string]string{"If-Match": "not-a-version"})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if code := errorCode(t, recorder); code != "PAYLOAD_INVALID" {
		t.Fatalf("expected PAYLOAD_INVALID, got %s", code)
	}

	// The current version passes and the ETag advances.
	recorder = doJSON(t, router, http.MethodPost, "/carts/cart-1/items",
		map[string]any{"product_id": "widget", "quantity": 1},
		map[string]string{"If-Match": "2"})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if etag := recorder.Header().Get("ETag"); etag != `"3"` {
		t.Fatalf("expected ETag \"3\", got %q", etag)
	}
}

func TestDeleteCartEndpoint(t *testing.T) {
	router := newTestRouter(t)

	doJSON(t, router, http.MethodPost, "/carts/cart-1/open", map[string]string{"customer_id": "customer-9"}, nil)
	doJSON(t, router, http.MethodPost, "/carts/cart-1/items", map[string]any{"product_id": "widget", "quantity": 1}, nil)

	recorder := doJSON(t, router, http.MethodDelete, "/carts/cart-1/", nil, nil)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = doJSON(t, router, http.MethodGet, "/carts/cart-1/", nil, nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", recorder.Code)
	}
	recorder = doJSON(t, router, http.MethodDelete, "/carts/cart-1/", nil, nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", recorder.Code)
	}
}

func TestCustomerEndpoints(t *testing.T) {
	router := newTestRouter(t)

	doJSON(t, router, http.MethodPost, "/carts/cart-1/open", map[string]string{"customer_id": "customer-9"}, nil)
	doJSON(t, router, http.MethodPost, "/carts/cart-1/items", map[string]any{"product_id": "widget", "quantity": 2}, nil)
	doJSON(t, router, http.MethodPost, "/carts/cart-1/confirm", nil, nil)

	recorder := doJSON(t, router, http.MethodGet, "/customers/customer-9/", nil, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var rollup struct {
		CartsConfirmed int64  `json:"carts_confirmed"`
		TotalSpent     string `json:"total_spent"`
	}
	decodeBody(t, recorder, &rollup)
	if rollup.CartsConfirmed != 1 || rollup.TotalSpent != "20" {
		t.Fatalf("unexpected rollup: %+v", rollup)
	}

	recorder = doJSON(t, router, http.MethodGet, "/customers/customer-9/carts", nil, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	var carts []struct {
		CartID string `json:"cart_id"`
	}
	decodeBody(t, recorder, &carts)
	if len(carts) != 1 || carts[0].CartID != "cart-1" {
		t.Fatalf("unexpected carts: %+v", carts)
	}

	recorder = doJSON(t, router, http.MethodGet, "/customers/customer-ghost/", nil, nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown customer, got %d", recorder.Code)
	}
}
