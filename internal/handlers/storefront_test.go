package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/hossain-rashid/Smartshop/internal/domain"
	"github.com/hossain-rashid/Smartshop/internal/platform/idempotency"
	"github.com/hossain-rashid/Smartshop/internal/platform/kvstore"
	"github.com/hossain-rashid/Smartshop/internal/repositories/kv"
	"github.com/hossain-rashid/Smartshop/internal/services"
)

type stubProductSource struct {
	products []domain.Product
	err      error
}

func (s stubProductSource) FetchProducts(context.Context) ([]domain.Product, error) {
	return s.products, s.err
}

type stubReviewSource struct {
	reviews []domain.Review
}

func (s stubReviewSource) FetchReviews(context.Context) ([]domain.Review, error) {
	return s.reviews, nil
}

type recordingRecorder struct {
	orders   []services.CheckoutReceipt
	failures []string
	catalogs []services.CatalogRefresh
}

func (r *recordingRecorder) RecordOrder(receipt services.CheckoutReceipt) {
	r.orders = append(r.orders, receipt)
}

func (r *recordingRecorder) RecordCheckoutFailure(reason string) {
	r.failures = append(r.failures, reason)
}

func (r *recordingRecorder) RecordCatalog(refresh services.CatalogRefresh) {
	r.catalogs = append(r.catalogs, refresh)
}

type storefront struct {
	router   chi.Router
	balance  *services.BalanceService
	cart     *services.CartService
	recorder *recordingRecorder
}

var storefrontNow = time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)

func newStorefront(t *testing.T) *storefront {
	t.Helper()
	ctx := context.Background()

	registry, err := kv.NewRegistry(kvstore.NewMemoryStore(), "memory")
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	t.Cleanup(func() { _ = registry.Close(ctx) })

	clock := func() time.Time { return storefrontNow }
	balance, err := services.NewBalanceService(services.BalanceServiceDeps{Repository: registry.Balances()})
	if err != nil {
		t.Fatalf("NewBalanceService: %v", err)
	}
	if _, err := balance.Load(ctx); err != nil {
		t.Fatalf("balance Load: %v", err)
	}
	cart, err := services.NewCartService(services.CartServiceDeps{
		Repository: registry.Carts(),
		Balance:    balance,
		Clock:      clock,
	})
	if err != nil {
		t.Fatalf("NewCartService: %v", err)
	}
	if _, err := cart.Load(ctx); err != nil {
		t.Fatalf("cart Load: %v", err)
	}
	checkout, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Cart:   cart,
		Orders: registry.Orders(),
		Clock:  clock,
	})
	if err != nil {
		t.Fatalf("NewCheckoutService: %v", err)
	}
	catalog, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products: stubProductSource{products: []domain.Product{
			{ID: 1, Title: "Fjallraven Backpack", Price: domain.NewMoney(109, 95), Category: "men's clothing"},
			{ID: 5, Title: "Gold Bracelet", Price: domain.NewMoney(500, 0), Category: "jewelery"},
			{ID: 9, Title: "Portable Hard Drive", Price: domain.NewMoney(2000, 0), Category: "electronics"},
		}},
		Reviews: stubReviewSource{reviews: []domain.Review{{Name: "Rahim", Rating: 5, Comment: "<b>Fast</b> delivery"}}},
		Clock:   clock,
	})
	if err != nil {
		t.Fatalf("NewCatalogService: %v", err)
	}
	catalog.Refresh(ctx)

	recorder := &recordingRecorder{}
	catalogHandlers := NewCatalogHandlers(catalog, WithCatalogRecorder(recorder), WithRefreshRateLimit(2, time.Minute, clock))
	checkoutHandlers := NewCheckoutHandlers(checkout, recorder)

	router := NewRouter(
		WithCatalogRoutes(catalogHandlers.Routes),
		WithReviewRoutes(catalogHandlers.ReviewRoutes),
		WithCartRoutes(NewCartHandlers(cart, catalog).Routes),
		WithBalanceRoutes(NewBalanceHandlers(balance).Routes),
		WithCheckoutRoutes(checkoutHandlers.Routes),
		WithCheckoutMiddlewares(idempotency.Middleware(idempotency.NewMemoryStore(), idempotency.WithClock(clock))),
		WithOrderRoutes(checkoutHandlers.OrderRoutes),
	)

	return &storefront{router: router, balance: balance, cart: cart, recorder: recorder}
}

func (s *storefront) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return out
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[struct {
		Error string `json:"error"`
	}](t, rr).Error
}

func TestCheckoutFlowOverHTTP(t *testing.T) {
	s := newStorefront(t)

	rr := s.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"productId": 5})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 adding item, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = s.do(t, http.MethodPut, "/api/v1/cart/coupon", map[string]any{"code": " smart10 "})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 applying coupon, got %d: %s", rr.Code, rr.Body.String())
	}
	cart := decodeBody[cartResponse](t, rr).Cart
	if cart.CouponCode != domain.CouponSmart10 || cart.Totals.Total != domain.NewMoney(510, 0) {
		t.Fatalf("expected SMART10 total 510.00, got %+v", cart)
	}

	rr = s.do(t, http.MethodPost, "/api/v1/checkout", nil, "Idempotency-Key", "order-1")
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	receipt := decodeBody[services.CheckoutReceipt](t, rr)
	if receipt.NewBalance != domain.NewMoney(490, 0) || receipt.AmountPaid != domain.NewMoney(510, 0) {
		t.Fatalf("unexpected receipt %+v", receipt)
	}

	replay := s.do(t, http.MethodPost, "/api/v1/checkout", nil, "Idempotency-Key", "order-1")
	if replay.Code != http.StatusCreated || replay.Header().Get("X-Idempotent-Replay") != "true" {
		t.Fatalf("expected replayed receipt, got %d headers %v", replay.Code, replay.Header())
	}
	if replay.Body.String() != rr.Body.String() {
		t.Fatalf("expected identical replay body")
	}
	if got := s.balance.Get(context.Background()); got != domain.NewMoney(490, 0) {
		t.Fatalf("expected replay not to debit again, balance %s", got)
	}

	rr = s.do(t, http.MethodGet, "/api/v1/orders", nil)
	orders := decodeBody[ordersResponse](t, rr)
	if orders.Count != 1 || orders.Orders[0].Totals.Total != domain.NewMoney(510, 0) {
		t.Fatalf("expected one order of 510.00, got %+v", orders)
	}
	if len(s.recorder.orders) != 1 {
		t.Fatalf("expected one recorded order, got %d", len(s.recorder.orders))
	}

	rr = s.do(t, http.MethodGet, "/api/v1/balance", nil)
	if got := decodeBody[balanceResponse](t, rr).Balance; got != domain.NewMoney(490, 0) {
		t.Fatalf("expected balance 490.00, got %s", got)
	}
}

func TestCheckoutErrorStatuses(t *testing.T) {
	s := newStorefront(t)

	rr := s.do(t, http.MethodPost, "/api/v1/checkout", nil)
	if rr.Code != http.StatusConflict || errorCode(t, rr) != "empty_cart" {
		t.Fatalf("expected 409 empty_cart, got %d: %s", rr.Code, rr.Body.String())
	}

	s.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"productId": 9})
	rr = s.do(t, http.MethodPost, "/api/v1/checkout", nil)
	if rr.Code != http.StatusPaymentRequired || errorCode(t, rr) != "insufficient_balance" {
		t.Fatalf("expected 402 insufficient_balance, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(s.recorder.failures) != 2 || s.recorder.failures[1] != "insufficient_balance" {
		t.Fatalf("expected failures recorded, got %v", s.recorder.failures)
	}

	rr = s.do(t, http.MethodPost, "/api/v1/balance/top-up", nil)
	if got := decodeBody[balanceResponse](t, rr).Balance; got != domain.NewMoney(2000, 0) {
		t.Fatalf("expected 2000.00 after top-up, got %s", got)
	}
	rr = s.do(t, http.MethodGet, "/api/v1/cart", nil)
	if !decodeBody[cartResponse](t, rr).Cart.OverBalance {
		t.Fatalf("expected 2060.00 total to stay over a 2000.00 balance")
	}
}

func TestCartEndpoints(t *testing.T) {
	s := newStorefront(t)

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
		wantCode   string
		wantCount  int
	}{
		{name: "add backpack", method: http.MethodPost, path: "/api/v1/cart/items", body: map[string]any{"productId": 1}, wantStatus: http.StatusOK, wantCount: 1},
		{name: "add again merges", method: http.MethodPost, path: "/api/v1/cart/items", body: map[string]any{"productId": 1}, wantStatus: http.StatusOK, wantCount: 2},
		{name: "increment", method: http.MethodPost, path: "/api/v1/cart/items/1/increment", wantStatus: http.StatusOK, wantCount: 3},
		{name: "decrement", method: http.MethodPost, path: "/api/v1/cart/items/1/decrement", wantStatus: http.StatusOK, wantCount: 2},
		{name: "unknown product", method: http.MethodPost, path: "/api/v1/cart/items", body: map[string]any{"productId": 77}, wantStatus: http.StatusNotFound, wantCode: "product_not_found"},
		{name: "missing product id", method: http.MethodPost, path: "/api/v1/cart/items", body: map[string]any{}, wantStatus: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "unknown field", method: http.MethodPost, path: "/api/v1/cart/items", body: map[string]any{"productId": 1, "price": 0}, wantStatus: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "bad path id", method: http.MethodDelete, path: "/api/v1/cart/items/abc", wantStatus: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "invalid coupon", method: http.MethodPut, path: "/api/v1/cart/coupon", body: map[string]any{"code": "SAVE50"}, wantStatus: http.StatusUnprocessableEntity, wantCode: "invalid_coupon"},
		{name: "remove", method: http.MethodDelete, path: "/api/v1/cart/items/1", wantStatus: http.StatusOK, wantCount: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := s.do(t, tc.method, tc.path, tc.body)
			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tc.wantStatus, rr.Code, rr.Body.String())
			}
			if tc.wantCode != "" {
				if got := errorCode(t, rr); got != tc.wantCode {
					t.Fatalf("expected error %s, got %s", tc.wantCode, got)
				}
				return
			}
			if got := decodeBody[cartResponse](t, rr).Cart.ItemCount; got != tc.wantCount {
				t.Fatalf("expected item count %d, got %d", tc.wantCount, got)
			}
		})
	}

	s.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"productId": 5})
	rr := s.do(t, http.MethodDelete, "/api/v1/cart", nil)
	if cart := decodeBody[cartResponse](t, rr).Cart; cart.ItemCount != 0 || cart.Totals.Total != 0 {
		t.Fatalf("expected cleared cart, got %+v", cart)
	}
}

func TestCatalogEndpoints(t *testing.T) {
	s := newStorefront(t)

	rr := s.do(t, http.MethodGet, "/api/v1/catalog/products?q=GOLD&category=All", nil)
	list := decodeBody[productListResponse](t, rr)
	if list.Count != 1 || list.Products[0].ID != 5 {
		t.Fatalf("expected gold bracelet only, got %+v", list)
	}

	rr = s.do(t, http.MethodGet, "/api/v1/catalog/products?pageSize=2", nil)
	first := decodeBody[productListResponse](t, rr)
	if first.Count != 2 || first.Total != 3 || first.NextPageToken == "" {
		t.Fatalf("expected first page of two, got %+v", first)
	}
	rr = s.do(t, http.MethodGet, "/api/v1/catalog/products?pageSize=2&pageToken="+first.NextPageToken, nil)
	second := decodeBody[productListResponse](t, rr)
	if second.Count != 1 || second.NextPageToken != "" || second.Products[0].ID != 9 {
		t.Fatalf("expected last page with product 9, got %+v", second)
	}
	rr = s.do(t, http.MethodGet, "/api/v1/catalog/products?pageSize=zero", nil)
	if rr.Code != http.StatusBadRequest || errorCode(t, rr) != "invalid_pagination" {
		t.Fatalf("expected invalid_pagination, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = s.do(t, http.MethodGet, "/api/v1/catalog/products/9", nil)
	if rr.Code != http.StatusOK || decodeBody[domain.Product](t, rr).Title != "Portable Hard Drive" {
		t.Fatalf("expected product 9, got %d: %s", rr.Code, rr.Body.String())
	}
	rr = s.do(t, http.MethodGet, "/api/v1/catalog/products/404", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	rr = s.do(t, http.MethodGet, "/api/v1/catalog/categories", nil)
	categories := decodeBody[struct {
		Categories []string `json:"categories"`
	}](t, rr).Categories
	if len(categories) != 4 || categories[0] != domain.CategoryAll {
		t.Fatalf("expected All plus three categories, got %v", categories)
	}

	rr = s.do(t, http.MethodGet, "/api/v1/reviews", nil)
	reviews := decodeBody[struct {
		Reviews []domain.Review `json:"reviews"`
	}](t, rr).Reviews
	if len(reviews) != 1 || reviews[0].Comment != "Fast delivery" {
		t.Fatalf("expected sanitised review, got %+v", reviews)
	}

	for i := 0; i < 2; i++ {
		if rr := s.do(t, http.MethodPost, "/api/v1/catalog/refresh", nil); rr.Code != http.StatusOK {
			t.Fatalf("expected refresh %d to succeed, got %d", i, rr.Code)
		}
	}
	rr = s.do(t, http.MethodPost, "/api/v1/catalog/refresh", nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected third refresh to be rate limited, got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("expected Retry-After of the full window, got %q", got)
	}
	if !decodeBody[struct {
		Retryable bool `json:"retryable"`
	}](t, rr).Retryable {
		t.Fatalf("expected rate limited response to be retryable, got %s", rr.Body.String())
	}
	if len(s.recorder.catalogs) != 2 || s.recorder.catalogs[0].Products != 3 {
		t.Fatalf("expected refreshes recorded, got %+v", s.recorder.catalogs)
	}
}

func TestSimpleRateLimiterReportsRemainingWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	limiter := newSimpleRateLimiter(1, time.Minute, func() time.Time { return now })

	if ok, _ := limiter.Allow("kiosk-1"); !ok {
		t.Fatalf("expected first call allowed")
	}
	now = now.Add(45 * time.Second)
	ok, wait := limiter.Allow("kiosk-1")
	if ok || wait != 15*time.Second {
		t.Fatalf("expected denial with 15s remaining, got ok=%v wait=%s", ok, wait)
	}
	if ok, _ := limiter.Allow("kiosk-2"); !ok {
		t.Fatalf("expected other clients unaffected")
	}
	now = now.Add(16 * time.Second)
	if ok, _ := limiter.Allow("kiosk-1"); !ok {
		t.Fatalf("expected call allowed after window reset")
	}
}

func TestRouterDefaults(t *testing.T) {
	router := NewRouter()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 for unwired group, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected JSON healthz, got %d %s", rr.Code, rr.Header().Get("Content-Type"))
	}

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	rr = httptest.NewRecorder()
	NewRouter(WithMetricsHandler(metrics)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("expected metrics handler, got %d", rr.Code)
	}
}

type stubSystemService struct {
	report services.SystemHealthReport
	uptime time.Duration
	err    error
}

func (s *stubSystemService) HealthReport(context.Context) (services.SystemHealthReport, error) {
	return s.report, s.err
}

func (s *stubSystemService) Uptime() time.Duration { return s.uptime }

func TestHealthHandlers(t *testing.T) {
	start := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	now := start.Add(30 * time.Second)

	healthz := httptest.NewRecorder()
	NewHealthHandlers(
		WithHealthBuildInfo(services.BuildInfo{Version: "1.0.0", CommitSHA: "abc123", Environment: "prod", StartedAt: start}),
		WithHealthClock(func() time.Time { return now }),
	).Healthz(healthz, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	body := decodeBody[map[string]any](t, healthz)
	if body["status"] != domain.HealthStatusOK || body["version"] != "1.0.0" || body["uptime"] != "30s" {
		t.Fatalf("unexpected healthz body %v", body)
	}

	healthz = httptest.NewRecorder()
	NewHealthHandlers(
		WithHealthSystemService(&stubSystemService{uptime: 2*time.Minute + 400*time.Millisecond}),
		WithHealthBuildInfo(services.BuildInfo{StartedAt: start}),
		WithHealthClock(func() time.Time { return now }),
	).Healthz(healthz, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	body = decodeBody[map[string]any](t, healthz)
	if body["uptime"] != "2m0s" {
		t.Fatalf("expected uptime from the system service, got %v", body["uptime"])
	}

	tests := []struct {
		name       string
		system     *stubSystemService
		wantStatus int
		wantDetail int
	}{
		{
			name: "ready",
			system: &stubSystemService{report: services.SystemHealthReport{
				Status: domain.HealthStatusOK,
				Checks: map[string]domain.SystemHealthCheck{"storage.memory": {Status: domain.HealthStatusOK, Latency: 2 * time.Millisecond}},
			}},
			wantStatus: http.StatusOK,
		},
		{
			name: "degraded catalog stays ready",
			system: &stubSystemService{report: services.SystemHealthReport{
				Status: domain.HealthStatusDegraded,
				Checks: map[string]domain.SystemHealthCheck{"catalog": {Status: domain.HealthStatusDegraded, Detail: "empty catalog"}},
			}},
			wantStatus: http.StatusOK,
			wantDetail: 1,
		},
		{
			name: "storage down",
			system: &stubSystemService{report: services.SystemHealthReport{
				Status: domain.HealthStatusError,
				Checks: map[string]domain.SystemHealthCheck{"storage.pebble": {Status: domain.HealthStatusError, Detail: "closed"}},
			}},
			wantStatus: http.StatusServiceUnavailable,
			wantDetail: 1,
		},
		{
			name:       "collect error",
			system:     &stubSystemService{err: errors.New("boom")},
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			NewHealthHandlers(WithHealthSystemService(tc.system)).Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rr.Code)
			}
			if tc.system.err != nil {
				return
			}
			payload := decodeBody[readinessPayload](t, rr)
			if len(payload.Details) != tc.wantDetail {
				t.Fatalf("expected %d details, got %v", tc.wantDetail, payload.Details)
			}
		})
	}
}
