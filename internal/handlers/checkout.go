package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hossain-rashid/Smartshop/internal/platform/httpx"
	"github.com/hossain-rashid/Smartshop/internal/platform/pagination"
	"github.com/hossain-rashid/Smartshop/internal/platform/requestctx"
	"github.com/hossain-rashid/Smartshop/internal/services"
)

// CheckoutOperations is the checkout surface used by the HTTP layer.
type CheckoutOperations interface {
	Checkout(ctx context.Context) (services.CheckoutReceipt, error)
	History(ctx context.Context) ([]services.OrderRecord, error)
}

// CheckoutRecorder receives checkout outcomes for metrics.
type CheckoutRecorder interface {
	RecordOrder(receipt services.CheckoutReceipt)
	RecordCheckoutFailure(reason string)
}

// CheckoutHandlers exposes checkout and the order history.
type CheckoutHandlers struct {
	checkout CheckoutOperations
	recorder CheckoutRecorder
}

// NewCheckoutHandlers constructs the checkout handlers. recorder may be nil.
func NewCheckoutHandlers(checkout CheckoutOperations, recorder CheckoutRecorder) *CheckoutHandlers {
	return &CheckoutHandlers{checkout: checkout, recorder: recorder}
}

// Routes wires POST /checkout.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.placeOrder)
}

// OrderRoutes wires GET /orders.
func (h *CheckoutHandlers) OrderRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listOrders)
}

type ordersResponse struct {
	Orders        []services.OrderRecord `json:"orders"`
	Count         int                    `json:"count"`
	Total         int                    `json:"total"`
	NextPageToken string                 `json:"nextPageToken,omitempty"`
}

func (h *CheckoutHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		writeCheckoutUnavailable(ctx, w)
		return
	}

	receipt, err := h.checkout.Checkout(ctx)
	if err != nil {
		reason := writeCheckoutError(ctx, w, err)
		if h.recorder != nil {
			h.recorder.RecordCheckoutFailure(reason)
		}
		return
	}
	if h.recorder != nil {
		h.recorder.RecordOrder(receipt)
	}
	requestctx.Logger(ctx).Info("checkout completed",
		zap.Int64("order_id", receipt.Order.OrderID),
		zap.String("total", receipt.AmountPaid.String()),
	)
	setNoStore(w)
	httpx.WriteJSON(w, http.StatusCreated, receipt)
}

func (h *CheckoutHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		writeCheckoutUnavailable(ctx, w)
		return
	}
	params, ok := pageParams(w, r)
	if !ok {
		return
	}
	history, err := h.checkout.History(ctx)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	orders, next := pagination.Slice(history, params)
	setNoStore(w)
	httpx.WriteJSON(w, http.StatusOK, ordersResponse{
		Orders:        orders,
		Count:         len(orders),
		Total:         len(history),
		NextPageToken: next,
	})
}

func writeCheckoutUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is unavailable", http.StatusServiceUnavailable))
}

// writeCheckoutError maps checkout failures to HTTP and returns the error code used as the metrics reason.
func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) string {
	var apiErr httpx.Error
	switch {
	case errors.Is(err, services.ErrCheckoutEmptyCart):
		apiErr = httpx.NewError("empty_cart", "your cart is empty", http.StatusConflict)
	case errors.Is(err, services.ErrCheckoutInsufficientBalance):
		apiErr = httpx.NewError("insufficient_balance", "insufficient balance; top up and try again", http.StatusPaymentRequired)
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		apiErr = httpx.NewError("invalid_cart_state", "cart contains items that cannot be priced", http.StatusUnprocessableEntity)
	case errors.Is(err, services.ErrCheckoutUnavailable):
		apiErr = httpx.NewError("checkout_unavailable", "checkout is unavailable", http.StatusServiceUnavailable)
	default:
		apiErr = httpx.NewError("checkout_error", "checkout failed", http.StatusInternalServerError)
	}
	httpx.WriteError(ctx, w, apiErr)
	return apiErr.Code
}
