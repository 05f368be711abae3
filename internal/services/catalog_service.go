package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	domain "github.com/hossain-rashid/Smartshop/internal/domain"
	"github.com/hossain-rashid/Smartshop/internal/repositories"
)

const defaultCatalogTimeout = 10 * time.Second

var errCatalogSourcesRequired = errors.New("catalog service: product and review sources are required")

// ErrCatalogNotFound indicates the requested product is not in the catalog.
var ErrCatalogNotFound = errors.New("catalog service: not found")

// CatalogServiceDeps wires the read-only catalog.
type CatalogServiceDeps struct {
	Products repositories.ProductSource
	Reviews  repositories.ReviewSource
	// Timeout bounds each fetch during Refresh.
	Timeout   time.Duration
	Sanitizer func(string) string
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

// CatalogRefresh reports the outcome of a Refresh. Errors are keyed by source name.
type CatalogRefresh struct {
	Products    int               `json:"products"`
	Reviews     int               `json:"reviews"`
	Errors      map[string]string `json:"errors,omitempty"`
	RefreshedAt time.Time         `json:"refreshedAt"`
}

// CatalogService caches the product list and reviews fetched from the configured sources.
type CatalogService struct {
	products repositories.ProductSource
	reviews  repositories.ReviewSource
	timeout  time.Duration
	sanitize func(string) string
	now      func() time.Time
	logger   func(context.Context, string, map[string]any)

	mu          sync.RWMutex
	catalog     []Product
	testimonial []Review
	refreshedAt time.Time
}

// NewCatalogService constructs a CatalogService. The catalog is empty until Refresh runs.
func NewCatalogService(deps CatalogServiceDeps) (*CatalogService, error) {
	if deps.Products == nil || deps.Reviews == nil {
		return nil, errCatalogSourcesRequired
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultCatalogTimeout
	}
	sanitize := deps.Sanitizer
	if sanitize == nil {
		sanitize = sanitizeReviewText
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &CatalogService{
		products:    deps.Products,
		reviews:     deps.Reviews,
		timeout:     timeout,
		sanitize:    sanitize,
		now:         func() time.Time { return clock().UTC() },
		logger:      logger,
		catalog:     []Product{},
		testimonial: []Review{},
	}, nil
}

// Refresh fetches products and reviews concurrently. A failed fetch degrades to an empty list.
func (s *CatalogService) Refresh(ctx context.Context) CatalogRefresh {
	var (
		wg          sync.WaitGroup
		products    []Product
		reviews     []Review
		productsErr error
		reviewsErr  error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		products, productsErr = s.products.FetchProducts(fetchCtx)
	}()
	go func() {
		defer wg.Done()
		fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		reviews, reviewsErr = s.reviews.FetchReviews(fetchCtx)
	}()
	wg.Wait()

	result := CatalogRefresh{RefreshedAt: s.now()}
	if productsErr != nil {
		s.logger(ctx, "catalog.fetch_failed", map[string]any{"source": "products", "error": productsErr.Error()})
		result.addError("products", productsErr)
		products = nil
	}
	if reviewsErr != nil {
		s.logger(ctx, "catalog.fetch_failed", map[string]any{"source": "reviews", "error": reviewsErr.Error()})
		result.addError("reviews", reviewsErr)
		reviews = nil
	}

	catalog := append([]Product{}, products...)
	testimonials := sanitizeReviews(reviews, s.sanitize)

	s.mu.Lock()
	s.catalog = catalog
	s.testimonial = testimonials
	s.refreshedAt = result.RefreshedAt
	s.mu.Unlock()

	result.Products = len(catalog)
	result.Reviews = len(testimonials)
	s.logger(ctx, "catalog.refreshed", map[string]any{"products": result.Products, "reviews": result.Reviews})
	return result
}

func (r *CatalogRefresh) addError(source string, err error) {
	if r.Errors == nil {
		r.Errors = make(map[string]string, 2)
	}
	r.Errors[source] = err.Error()
}

// Products returns the full catalog in source order.
func (s *CatalogService) Products(context.Context) []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Product{}, s.catalog...)
}

// Search filters the catalog by a case-insensitive query over title and category, and by exact
// category. An empty category or "All" matches every category.
func (s *CatalogService) Search(_ context.Context, query, category string) []Product {
	query = strings.ToLower(strings.TrimSpace(query))
	category = strings.TrimSpace(category)
	matchAll := category == "" || strings.EqualFold(category, domain.CategoryAll)

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Product, 0, len(s.catalog))
	for _, product := range s.catalog {
		if !matchAll && !strings.EqualFold(product.Category, category) {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(product.Title), query) &&
			!strings.Contains(strings.ToLower(product.Category), query) {
			continue
		}
		out = append(out, product)
	}
	return out
}

// Product looks up a catalog entry by id.
func (s *CatalogService) Product(_ context.Context, id int) (Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, product := range s.catalog {
		if product.ID == id {
			return product, nil
		}
	}
	return Product{}, ErrCatalogNotFound
}

// Categories returns "All" followed by the distinct categories in first-seen order.
func (s *CatalogService) Categories(context.Context) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{}, len(s.catalog))
	out := []string{domain.CategoryAll}
	for _, product := range s.catalog {
		category := strings.TrimSpace(product.Category)
		if category == "" {
			continue
		}
		if _, ok := seen[category]; ok {
			continue
		}
		seen[category] = struct{}{}
		out = append(out, category)
	}
	return out
}

// Reviews returns the sanitised reviews in source order.
func (s *CatalogService) Reviews(context.Context) []Review {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Review{}, s.testimonial...)
}

// Ready reports whether the last refresh produced a non-empty catalog.
func (s *CatalogService) Ready(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.refreshedAt.IsZero() {
		return errors.New("catalog not loaded")
	}
	if len(s.catalog) == 0 {
		return errors.New("empty catalog")
	}
	return nil
}
