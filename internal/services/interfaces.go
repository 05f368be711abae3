package services

import (
	"context"
	"time"

	domain "github.com/hossain-rashid/Smartshop/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Money           = domain.Money
	Product         = domain.Product
	Review          = domain.Review
	LineItem        = domain.LineItem
	CartState       = domain.CartState
	CartSummary     = domain.CartSummary
	TotalsBreakdown = domain.TotalsBreakdown
	OrderRecord     = domain.OrderRecord
	CheckoutReceipt = domain.CheckoutReceipt
)

// StateChangeKind names the mutation that produced a StateChange.
type StateChangeKind string

const (
	StateChangeCartLoaded      StateChangeKind = "cart.loaded"
	StateChangeItemAdded       StateChangeKind = "cart.item_added"
	StateChangeItemRemoved     StateChangeKind = "cart.item_removed"
	StateChangeItemIncremented StateChangeKind = "cart.item_incremented"
	StateChangeItemDecremented StateChangeKind = "cart.item_decremented"
	StateChangeCouponApplied   StateChangeKind = "cart.coupon_applied"
	StateChangeCartCleared     StateChangeKind = "cart.cleared"
	StateChangeBalanceCredited StateChangeKind = "balance.credited"
	StateChangeBalanceDebited  StateChangeKind = "balance.debited"
	StateChangeOrderPlaced     StateChangeKind = "checkout.order_placed"
)

// StateChange is delivered to observers after every committed mutation.
type StateChange struct {
	Kind    StateChangeKind
	Summary CartSummary
	// OpenCart hints that a renderer should reveal the cart panel.
	OpenCart   bool
	OccurredAt time.Time
}

// Observer receives state changes. Observers run while the state lock is held and must not call
// back into the cart, balance or checkout services.
type Observer interface {
	StateChanged(ctx context.Context, change StateChange)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, change StateChange)

// StateChanged implements Observer.
func (f ObserverFunc) StateChanged(ctx context.Context, change StateChange) {
	if f != nil {
		f(ctx, change)
	}
}

// OrderEventPublisher emits order.placed events after a successful checkout.
type OrderEventPublisher interface {
	PublishOrderPlaced(ctx context.Context, order OrderRecord) error
}

// LoggingObserver reports every state change through logger.
func LoggingObserver(logger func(context.Context, string, map[string]any)) Observer {
	if logger == nil {
		return ObserverFunc(nil)
	}
	return ObserverFunc(func(ctx context.Context, change StateChange) {
		logger(ctx, string(change.Kind), map[string]any{
			"itemCount":   change.Summary.ItemCount,
			"couponCode":  change.Summary.CouponCode,
			"total":       change.Summary.Totals.Total.String(),
			"balance":     change.Summary.Balance.String(),
			"overBalance": change.Summary.OverBalance,
			"openCart":    change.OpenCart,
		})
	})
}

func noopLogger(context.Context, string, map[string]any) {}
