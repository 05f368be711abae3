package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hossain-rashid/Smartshop/internal/platform/httpx"
	"github.com/hossain-rashid/Smartshop/internal/platform/pagination"
	"github.com/hossain-rashid/Smartshop/internal/services"
)

const (
	defaultRefreshLimit  = 6
	defaultRefreshWindow = time.Minute
)

// CatalogReader is the catalog surface used by the HTTP layer.
type CatalogReader interface {
	Search(ctx context.Context, query, category string) []services.Product
	Product(ctx context.Context, id int) (services.Product, error)
	Categories(ctx context.Context) []string
	Reviews(ctx context.Context) []services.Review
	Refresh(ctx context.Context) services.CatalogRefresh
}

// CatalogRecorder receives refresh outcomes for metrics.
type CatalogRecorder interface {
	RecordCatalog(refresh services.CatalogRefresh)
}

// CatalogHandlers serves products, categories and reviews.
type CatalogHandlers struct {
	catalog  CatalogReader
	recorder CatalogRecorder
	limiter  rateLimiter
}

// CatalogOption customises CatalogHandlers.
type CatalogOption func(*CatalogHandlers)

// WithCatalogRecorder reports refreshes triggered over HTTP.
func WithCatalogRecorder(recorder CatalogRecorder) CatalogOption {
	return func(h *CatalogHandlers) {
		h.recorder = recorder
	}
}

// WithRefreshRateLimit bounds POST /catalog/refresh per client. A non-positive limit disables it.
func WithRefreshRateLimit(limit int, window time.Duration, clock func() time.Time) CatalogOption {
	return func(h *CatalogHandlers) {
		h.limiter = newSimpleRateLimiter(limit, window, clock)
	}
}

// NewCatalogHandlers constructs the catalog handlers.
func NewCatalogHandlers(catalog CatalogReader, opts ...CatalogOption) *CatalogHandlers {
	h := &CatalogHandlers{
		catalog: catalog,
		limiter: newSimpleRateLimiter(defaultRefreshLimit, defaultRefreshWindow, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /catalog endpoints.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.listProducts)
	r.Get("/products/{productID}", h.getProduct)
	r.Get("/categories", h.listCategories)
	r.Post("/refresh", rateLimited(h.limiter, h.refresh))
}

// ReviewRoutes wires the /reviews endpoint.
func (h *CatalogHandlers) ReviewRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listReviews)
}

type productListResponse struct {
	Products      []services.Product `json:"products"`
	Count         int                `json:"count"`
	Total         int                `json:"total"`
	Query         string             `json:"query,omitempty"`
	Category      string             `json:"category,omitempty"`
	NextPageToken string             `json:"nextPageToken,omitempty"`
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}
	params, ok := pageParams(w, r)
	if !ok {
		return
	}
	query := r.URL.Query().Get("q")
	category := r.URL.Query().Get("category")
	matches := h.catalog.Search(ctx, query, category)
	products, next := pagination.Slice(matches, params)
	httpx.WriteJSON(w, http.StatusOK, productListResponse{
		Products:      products,
		Count:         len(products),
		Total:         len(matches),
		Query:         query,
		Category:      category,
		NextPageToken: next,
	})
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}
	id, err := productIDParam(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	product, err := h.catalog.Product(ctx, id)
	if err != nil {
		writeProductLookupError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, product)
}

func (h *CatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeCatalogUnavailable(r.Context(), w)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"categories": h.catalog.Categories(r.Context())})
}

func (h *CatalogHandlers) listReviews(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeCatalogUnavailable(r.Context(), w)
		return
	}
	reviews := h.catalog.Reviews(r.Context())
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"reviews": reviews, "count": len(reviews)})
}

func (h *CatalogHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeCatalogUnavailable(r.Context(), w)
		return
	}
	result := h.catalog.Refresh(r.Context())
	if h.recorder != nil {
		h.recorder.RecordCatalog(result)
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}

func writeCatalogUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog is unavailable", http.StatusServiceUnavailable))
}

func writeProductLookupError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, services.ErrCatalogNotFound) {
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to look up product", http.StatusInternalServerError))
}
