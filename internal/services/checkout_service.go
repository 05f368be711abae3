package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	domain "github.com/hossain-rashid/Smartshop/internal/domain"
	"github.com/hossain-rashid/Smartshop/internal/repositories"
)

const defaultCheckoutCurrency = "BDT"

var (
	errCheckoutCartRequired   = errors.New("checkout: cart service is required")
	errCheckoutOrdersRequired = errors.New("checkout: order history repository is required")
)

var (
	// ErrCheckoutEmptyCart indicates there is nothing to purchase.
	ErrCheckoutEmptyCart = errors.New("checkout: cart is empty")
	// ErrCheckoutInsufficientBalance indicates the total exceeds the balance.
	ErrCheckoutInsufficientBalance = errors.New("checkout: insufficient balance")
	// ErrCheckoutInvalidInput indicates the cart holds lines that cannot be priced.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutUnavailable indicates the order could not be recorded.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
)

// CheckoutServiceDeps wires the checkout flow.
type CheckoutServiceDeps struct {
	Cart      *CartService
	Orders    repositories.OrderHistoryRepository
	Publisher OrderEventPublisher
	// Currency is the ISO 4217 code shown in receipt messages. Defaults to BDT.
	Currency string
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

// CheckoutService converts the cart into an order, debiting the balance.
type CheckoutService struct {
	cart        *CartService
	balance     *BalanceService
	orders      repositories.OrderHistoryRepository
	publisher   OrderEventPublisher
	unit        currency.Unit
	printer     *message.Printer
	now         func() time.Time
	logger      func(context.Context, string, map[string]any)
	lastOrderID int64
}

// NewCheckoutService constructs a CheckoutService that runs under the cart's state lock.
func NewCheckoutService(deps CheckoutServiceDeps) (*CheckoutService, error) {
	if deps.Cart == nil || deps.Cart.balance == nil {
		return nil, errCheckoutCartRequired
	}
	if deps.Orders == nil {
		return nil, errCheckoutOrdersRequired
	}

	code := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if code == "" {
		code = defaultCheckoutCurrency
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return nil, fmt.Errorf("checkout: invalid currency %q: %w", code, err)
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}

	return &CheckoutService{
		cart:      deps.Cart,
		balance:   deps.Cart.balance,
		orders:    deps.Orders,
		publisher: deps.Publisher,
		unit:      unit,
		printer:   message.NewPrinter(language.English),
		now:       func() time.Time { return clock().UTC() },
		logger:    logger,
	}, nil
}

// Checkout places an order for the current cart. The totals are computed once and the whole flow
// runs under the state lock, so no other mutation can interleave.
func (s *CheckoutService) Checkout(ctx context.Context) (CheckoutReceipt, error) {
	receipt, err := s.checkout(ctx)
	if err != nil {
		return CheckoutReceipt{}, err
	}

	if s.publisher != nil {
		if err := s.publisher.PublishOrderPlaced(ctx, receipt.Order); err != nil {
			s.logger(ctx, "checkout.event_publish_failed", map[string]any{
				"orderId": receipt.Order.OrderID,
				"error":   err.Error(),
			})
		}
	}
	return receipt, nil
}

func (s *CheckoutService) checkout(ctx context.Context) (CheckoutReceipt, error) {
	s.cart.lock.Lock()
	defer s.cart.lock.Unlock()

	cart := s.cart.cart.Clone()
	if cart.IsEmpty() {
		return CheckoutReceipt{}, ErrCheckoutEmptyCart
	}

	totals, err := s.cart.pricer.CalculateChecked(cart)
	if err != nil {
		return CheckoutReceipt{}, fmt.Errorf("%w: %v", ErrCheckoutInvalidInput, err)
	}
	previousBalance := s.balance.balance
	if totals.Total > previousBalance {
		return CheckoutReceipt{}, ErrCheckoutInsufficientBalance
	}

	history, err := s.loadHistoryLocked(ctx)
	if err != nil {
		return CheckoutReceipt{}, err
	}

	placedAt := s.now()
	order := OrderRecord{
		OrderID: s.nextOrderIDLocked(placedAt, history),
		Date:    domain.FormatOrderDate(placedAt),
		Items:   domain.CloneLineItems(cart.Items),
		Totals:  totals,
	}

	if err := s.balance.debitLocked(ctx, totals.Total); err != nil {
		return CheckoutReceipt{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}

	next := make([]OrderRecord, 0, len(history)+1)
	next = append(next, order)
	next = append(next, history...)
	if err := s.orders.Save(ctx, next); err != nil {
		s.logger(ctx, "checkout.history_persist_failed", map[string]any{
			"orderId": order.OrderID,
			"error":   err.Error(),
		})
		if restoreErr := s.balance.persistLocked(ctx, previousBalance); restoreErr != nil {
			s.logger(ctx, "checkout.balance_restore_failed", map[string]any{
				"orderId": order.OrderID,
				"balance": previousBalance.String(),
				"error":   restoreErr.Error(),
			})
		}
		return CheckoutReceipt{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}
	s.lastOrderID = order.OrderID

	if err := s.cart.commitLocked(ctx, CartState{Items: []LineItem{}}); err != nil {
		s.logger(ctx, "checkout.cart_clear_failed", map[string]any{
			"orderId": order.OrderID,
			"error":   err.Error(),
		})
		s.cart.cart = CartState{Items: []LineItem{}}
	}

	s.cart.notifyLocked(ctx, StateChangeOrderPlaced, false)

	newBalance := s.balance.balance
	s.logger(ctx, "checkout.order_placed", map[string]any{
		"orderId":    order.OrderID,
		"total":      totals.Total.String(),
		"itemCount":  cart.ItemCount(),
		"newBalance": newBalance.String(),
	})

	return CheckoutReceipt{
		Order:      order,
		AmountPaid: totals.Total,
		NewBalance: newBalance,
		Message:    s.receiptMessage(totals.Total, newBalance),
	}, nil
}

// History returns completed orders, newest first. A malformed history reads as empty.
func (s *CheckoutService) History(ctx context.Context) ([]OrderRecord, error) {
	s.cart.lock.Lock()
	defer s.cart.lock.Unlock()

	history, err := s.loadHistoryLocked(ctx)
	if err != nil {
		return nil, err
	}
	return domain.CloneOrderRecords(history), nil
}

func (s *CheckoutService) loadHistoryLocked(ctx context.Context) ([]OrderRecord, error) {
	history, err := s.orders.Load(ctx)
	if err == nil {
		return history, nil
	}
	if errors.Is(err, repositories.ErrMalformedRecord) {
		s.logger(ctx, "checkout.history_malformed", map[string]any{"error": err.Error()})
		return []OrderRecord{}, nil
	}
	s.logger(ctx, "checkout.history_load_failed", map[string]any{"error": err.Error()})
	return nil, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
}

// nextOrderIDLocked returns the placement time in epoch milliseconds, bumped past the newest
// known order so ids stay unique within a process.
func (s *CheckoutService) nextOrderIDLocked(placedAt time.Time, history []OrderRecord) int64 {
	id := placedAt.UnixMilli()
	last := s.lastOrderID
	if len(history) > 0 && history[0].OrderID > last {
		last = history[0].OrderID
	}
	if id <= last {
		id = last + 1
	}
	return id
}

// receiptMessage renders amounts with the currency's ISO code, grouping and minor-unit scale,
// e.g. "BDT 1,260.00".
func (s *CheckoutService) receiptMessage(paid, balance Money) string {
	return s.printer.Sprintf("Order placed successfully! Total paid: %v. New balance: %v",
		s.amount(paid), s.amount(balance))
}

func (s *CheckoutService) amount(m Money) currency.Amount {
	return s.unit.Amount(m.Decimal().InexactFloat64())
}
