package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	domain "github.com/hossain-rashid/Smartshop/internal/domain"
	"github.com/hossain-rashid/Smartshop/internal/repositories"
)

var (
	errCartRepositoryRequired = errors.New("cart service: repository is required")
	errCartBalanceRequired    = errors.New("cart service: balance service is required")
)

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartUnavailable indicates the cart could not be persisted or restored.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// ErrCouponInvalid indicates an unknown coupon code. The active coupon has been cleared.
var ErrCouponInvalid = errors.New("cart service: invalid coupon")

// CartServiceDeps wires the cart store.
type CartServiceDeps struct {
	Repository repositories.CartRepository
	// Balance shares its state lock with the cart and backs the over-balance flag.
	Balance   *BalanceService
	Pricer    *PricingEngine
	Observers []Observer
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

// CartService holds the line items and active coupon.
type CartService struct {
	lock      sync.Locker
	repo      repositories.CartRepository
	balance   *BalanceService
	pricer    *PricingEngine
	cart      CartState
	observers []Observer
	now       func() time.Time
	logger    func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService sharing the balance service's state lock. Balance
// changes are published to the cart's observers from then on.
func NewCartService(deps CartServiceDeps) (*CartService, error) {
	if deps.Repository == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Balance == nil {
		return nil, errCartBalanceRequired
	}
	pricer := deps.Pricer
	if pricer == nil {
		var err error
		if pricer, err = NewPricingEngine(PricingEngineDeps{}); err != nil {
			return nil, err
		}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}

	observers := make([]Observer, 0, len(deps.Observers))
	for _, observer := range deps.Observers {
		if observer != nil {
			observers = append(observers, observer)
		}
	}

	service := &CartService{
		lock:      deps.Balance.lock,
		repo:      deps.Repository,
		balance:   deps.Balance,
		pricer:    pricer,
		cart:      CartState{Items: []LineItem{}},
		observers: observers,
		now:       func() time.Time { return clock().UTC() },
		logger:    logger,
	}

	deps.Balance.lock.Lock()
	deps.Balance.notify = func(ctx context.Context, kind StateChangeKind) {
		service.notifyLocked(ctx, kind, false)
	}
	deps.Balance.lock.Unlock()

	return service, nil
}

// Load restores the persisted cart. A missing or malformed record yields an empty cart; storage
// failures return ErrCartUnavailable.
func (s *CartService) Load(ctx context.Context) (CartSummary, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	cart, found, err := s.repo.Load(ctx)
	if err != nil {
		if !errors.Is(err, repositories.ErrMalformedRecord) {
			s.logger(ctx, "cart.load_failed", map[string]any{"error": err.Error()})
			return s.summaryLocked(), fmt.Errorf("%w: %v", ErrCartUnavailable, err)
		}
		s.logger(ctx, "cart.malformed_record", map[string]any{"error": err.Error()})
		cart = CartState{Items: []LineItem{}}
	}
	if !found {
		cart = CartState{Items: []LineItem{}}
	}
	if cart.CouponCode != "" && !s.pricer.IsValidCoupon(cart.CouponCode) {
		cart.CouponCode = ""
	}

	s.cart = cart.Clone()
	s.notifyLocked(ctx, StateChangeCartLoaded, false)
	return s.summaryLocked(), nil
}

// Save persists the current cart.
func (s *CartService) Save(ctx context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.commitLocked(ctx, s.cart.Clone())
}

// AddItem increments the matching line item or appends a new one with quantity 1.
func (s *CartService) AddItem(ctx context.Context, product Product) (CartSummary, error) {
	if product.ID <= 0 || product.Price < 0 {
		return CartSummary{}, ErrCartInvalidInput
	}
	return s.mutate(ctx, StateChangeItemAdded, true, func(cart *CartState) {
		for i := range cart.Items {
			if cart.Items[i].ID == product.ID {
				cart.Items[i].Quantity++
				return
			}
		}
		cart.Items = append(cart.Items, LineItem{
			ID:       product.ID,
			Title:    product.Title,
			Price:    product.Price,
			Quantity: 1,
			Image:    product.Image,
		})
	})
}

// RemoveItem deletes the line item with id. Absent ids are ignored.
func (s *CartService) RemoveItem(ctx context.Context, id int) (CartSummary, error) {
	return s.mutate(ctx, StateChangeItemRemoved, false, func(cart *CartState) {
		cart.Items = removeLineItem(cart.Items, id)
	})
}

// IncrementItem adds one to the quantity of id when present.
func (s *CartService) IncrementItem(ctx context.Context, id int) (CartSummary, error) {
	return s.mutate(ctx, StateChangeItemIncremented, false, func(cart *CartState) {
		for i := range cart.Items {
			if cart.Items[i].ID == id {
				cart.Items[i].Quantity++
				return
			}
		}
	})
}

// DecrementItem subtracts one from the quantity of id, removing the line item at zero.
func (s *CartService) DecrementItem(ctx context.Context, id int) (CartSummary, error) {
	return s.mutate(ctx, StateChangeItemDecremented, false, func(cart *CartState) {
		for i := range cart.Items {
			if cart.Items[i].ID != id {
				continue
			}
			cart.Items[i].Quantity--
			if cart.Items[i].Quantity < 1 {
				cart.Items = removeLineItem(cart.Items, id)
			}
			return
		}
	})
}

// ApplyCoupon normalises code and activates it when known. Unknown non-empty codes clear the active
// coupon and return ErrCouponInvalid alongside the updated summary. Empty input clears the coupon.
func (s *CartService) ApplyCoupon(ctx context.Context, code string) (CartSummary, error) {
	normalised := NormaliseCouponCode(code)
	valid := normalised == "" || s.pricer.IsValidCoupon(normalised)

	summary, err := s.mutate(ctx, StateChangeCouponApplied, false, func(cart *CartState) {
		if valid {
			cart.CouponCode = normalised
			return
		}
		cart.CouponCode = ""
	})
	if err != nil {
		return summary, err
	}
	if !valid {
		s.logger(ctx, "cart.coupon_rejected", map[string]any{"couponCode": normalised})
		return summary, ErrCouponInvalid
	}
	return summary, nil
}

// Clear empties the cart and removes the coupon.
func (s *CartService) Clear(ctx context.Context) (CartSummary, error) {
	return s.mutate(ctx, StateChangeCartCleared, false, func(cart *CartState) {
		cart.Items = []LineItem{}
		cart.CouponCode = ""
	})
}

// Summary returns the cart, totals and balance view.
func (s *CartService) Summary(context.Context) CartSummary {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.summaryLocked()
}

// Count returns the sum of line item quantities.
func (s *CartService) Count(context.Context) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.cart.ItemCount()
}

// NormaliseCouponCode trims and upper-cases a user supplied coupon code.
func NormaliseCouponCode(code string) string {
	return cases.Upper(language.Und).String(strings.TrimSpace(code))
}

func (s *CartService) mutate(ctx context.Context, kind StateChangeKind, openCart bool, apply func(*CartState)) (CartSummary, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	next := s.cart.Clone()
	apply(&next)
	if err := s.commitLocked(ctx, next); err != nil {
		return s.summaryLocked(), err
	}
	s.notifyLocked(ctx, kind, openCart)
	return s.summaryLocked(), nil
}

// commitLocked persists next and swaps it in only when the save succeeds.
func (s *CartService) commitLocked(ctx context.Context, next CartState) error {
	if err := s.repo.Save(ctx, next); err != nil {
		s.logger(ctx, "cart.persist_failed", map[string]any{
			"itemCount": next.ItemCount(),
			"error":     err.Error(),
		})
		return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
	}
	s.cart = next
	return nil
}

func (s *CartService) summaryLocked() CartSummary {
	totals := s.pricer.Calculate(s.cart)
	balance := s.balance.balance
	return CartSummary{
		Items:       domain.CloneLineItems(s.cart.Items),
		CouponCode:  s.cart.CouponCode,
		ItemCount:   s.cart.ItemCount(),
		Totals:      totals,
		Balance:     balance,
		OverBalance: totals.Total > balance,
	}
}

func (s *CartService) notifyLocked(ctx context.Context, kind StateChangeKind, openCart bool) {
	if len(s.observers) == 0 {
		return
	}
	change := StateChange{
		Kind:       kind,
		Summary:    s.summaryLocked(),
		OpenCart:   openCart,
		OccurredAt: s.now(),
	}
	for _, observer := range s.observers {
		observer.StateChanged(ctx, change)
	}
}

func removeLineItem(items []LineItem, id int) []LineItem {
	out := items[:0]
	for _, item := range items {
		if item.ID != id {
			out = append(out, item)
		}
	}
	return out
}
