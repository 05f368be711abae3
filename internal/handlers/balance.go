package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hossain-rashid/Smartshop/internal/platform/httpx"
	"github.com/hossain-rashid/Smartshop/internal/services"
)

// BalanceOperations is the balance surface used by the HTTP layer.
type BalanceOperations interface {
	Get(ctx context.Context) services.Money
	TopUp(ctx context.Context) (services.Money, error)
}

// BalanceHandlers exposes the stored balance.
type BalanceHandlers struct {
	balance BalanceOperations
}

// NewBalanceHandlers constructs the balance handlers.
func NewBalanceHandlers(balance BalanceOperations) *BalanceHandlers {
	return &BalanceHandlers{balance: balance}
}

// Routes wires the /balance endpoints.
func (h *BalanceHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getBalance)
	r.Post("/top-up", h.topUp)
}

type balanceResponse struct {
	Balance services.Money `json:"balance"`
}

func (h *BalanceHandlers) getBalance(w http.ResponseWriter, r *http.Request) {
	if h.balance == nil {
		writeBalanceUnavailable(r.Context(), w)
		return
	}
	setNoStore(w)
	httpx.WriteJSON(w, http.StatusOK, balanceResponse{Balance: h.balance.Get(r.Context())})
}

func (h *BalanceHandlers) topUp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.balance == nil {
		writeBalanceUnavailable(ctx, w)
		return
	}
	balance, err := h.balance.TopUp(ctx)
	if err != nil {
		if errors.Is(err, services.ErrBalanceUnavailable) {
			writeBalanceUnavailable(ctx, w)
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("balance_error", "failed to top up balance", http.StatusInternalServerError))
		return
	}
	setNoStore(w)
	httpx.WriteJSON(w, http.StatusOK, balanceResponse{Balance: balance})
}

func writeBalanceUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("balance_unavailable", "balance service is unavailable", http.StatusServiceUnavailable))
}
