package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hossain-rashid/Smartshop/internal/platform/httpx"
	"github.com/hossain-rashid/Smartshop/internal/services"
)

// CartOperations is the cart surface used by the HTTP layer.
type CartOperations interface {
	Summary(ctx context.Context) services.CartSummary
	AddItem(ctx context.Context, product services.Product) (services.CartSummary, error)
	RemoveItem(ctx context.Context, id int) (services.CartSummary, error)
	IncrementItem(ctx context.Context, id int) (services.CartSummary, error)
	DecrementItem(ctx context.Context, id int) (services.CartSummary, error)
	ApplyCoupon(ctx context.Context, code string) (services.CartSummary, error)
	Clear(ctx context.Context) (services.CartSummary, error)
}

// ProductLookup resolves product ids sent by clients to catalog entries.
type ProductLookup interface {
	Product(ctx context.Context, id int) (services.Product, error)
}

// CartHandlers exposes the cart store.
type CartHandlers struct {
	carts    CartOperations
	products ProductLookup
}

// NewCartHandlers constructs the cart handlers. Items are always priced from the catalog, never
// from client input.
func NewCartHandlers(carts CartOperations, products ProductLookup) *CartHandlers {
	return &CartHandlers{carts: carts, products: products}
}

// Routes wires the /cart endpoints.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Post("/items", h.addItem)
	r.Delete("/items/{productID}", h.removeItem)
	r.Post("/items/{productID}/increment", h.incrementItem)
	r.Post("/items/{productID}/decrement", h.decrementItem)
	r.Put("/coupon", h.applyCoupon)
}

type addItemRequest struct {
	ProductID int `json:"productId" validate:"required,gt=0"`
}

type applyCouponRequest struct {
	Code string `json:"code" validate:"max=64"`
}

type cartResponse struct {
	Cart services.CartSummary `json:"cart"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	if h.carts == nil {
		writeCartUnavailable(r.Context(), w)
		return
	}
	h.writeCart(w, http.StatusOK, h.carts.Summary(r.Context()))
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil || h.products == nil {
		writeCartUnavailable(ctx, w)
		return
	}
	var req addItemRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	product, err := h.products.Product(ctx, req.ProductID)
	if err != nil {
		writeProductLookupError(ctx, w, err)
		return
	}
	summary, err := h.carts.AddItem(ctx, product)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	h.writeCart(w, http.StatusOK, summary)
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	h.mutateItem(w, r, CartOperations.RemoveItem)
}

func (h *CartHandlers) incrementItem(w http.ResponseWriter, r *http.Request) {
	h.mutateItem(w, r, CartOperations.IncrementItem)
}

func (h *CartHandlers) decrementItem(w http.ResponseWriter, r *http.Request) {
	h.mutateItem(w, r, CartOperations.DecrementItem)
}

func (h *CartHandlers) mutateItem(w http.ResponseWriter, r *http.Request, op func(CartOperations, context.Context, int) (services.CartSummary, error)) {
	ctx := r.Context()
	if h.carts == nil {
		writeCartUnavailable(ctx, w)
		return
	}
	id, err := productIDParam(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	summary, err := op(h.carts, ctx, id)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	h.writeCart(w, http.StatusOK, summary)
}

func (h *CartHandlers) applyCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeCartUnavailable(ctx, w)
		return
	}
	var req applyCouponRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	summary, err := h.carts.ApplyCoupon(ctx, req.Code)
	if errors.Is(err, services.ErrCouponInvalid) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_coupon", "coupon code is not valid", http.StatusUnprocessableEntity).
			WithDetails(map[string]any{"cart": summary}))
		return
	}
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	h.writeCart(w, http.StatusOK, summary)
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeCartUnavailable(ctx, w)
		return
	}
	summary, err := h.carts.Clear(ctx)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	h.writeCart(w, http.StatusOK, summary)
}

func (h *CartHandlers) writeCart(w http.ResponseWriter, status int, summary services.CartSummary) {
	setNoStore(w)
	httpx.WriteJSON(w, status, cartResponse{Cart: summary})
}

func writeCartUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartUnavailable):
		writeCartUnavailable(ctx, w)
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "failed to update cart", http.StatusInternalServerError))
	}
}
