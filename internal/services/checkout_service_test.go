package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	domain "github.com/hossain-rashid/Smartshop/internal/domain"
	"github.com/hossain-rashid/Smartshop/internal/repositories"
)

type stubOrderPublisher struct {
	published []OrderRecord
	err       error
}

func (s *stubOrderPublisher) PublishOrderPlaced(_ context.Context, order OrderRecord) error {
	s.published = append(s.published, order)
	return s.err
}

type checkoutFixture struct {
	storefrontFixture
	orders    *stubOrderHistoryRepository
	publisher *stubOrderPublisher
	checkout  *CheckoutService
	now       time.Time
	events    []string
}

func newCheckoutFixture(t *testing.T, balance Money) *checkoutFixture {
	t.Helper()
	fx := &checkoutFixture{
		storefrontFixture: newStorefrontFixture(t, balance),
		orders:            &stubOrderHistoryRepository{},
		publisher:         &stubOrderPublisher{},
		now:               time.Date(2024, 5, 10, 9, 30, 0, 123_000_000, time.UTC),
	}
	svc, err := NewCheckoutService(CheckoutServiceDeps{
		Cart:      fx.cart,
		Orders:    fx.orders,
		Publisher: fx.publisher,
		Clock:     func() time.Time { return fx.now },
		Logger: func(_ context.Context, event string, _ map[string]any) {
			fx.events = append(fx.events, event)
		},
	})
	if err != nil {
		t.Fatalf("NewCheckoutService: %v", err)
	}
	fx.checkout = svc
	return fx
}

func TestNewCheckoutServiceValidatesDependencies(t *testing.T) {
	if _, err := NewCheckoutService(CheckoutServiceDeps{}); !errors.Is(err, errCheckoutCartRequired) {
		t.Fatalf("expected cart required, got %v", err)
	}
	fx := newStorefrontFixture(t, domain.StartingBalance)
	if _, err := NewCheckoutService(CheckoutServiceDeps{Cart: fx.cart}); !errors.Is(err, errCheckoutOrdersRequired) {
		t.Fatalf("expected orders required, got %v", err)
	}
	if _, err := NewCheckoutService(CheckoutServiceDeps{Cart: fx.cart, Orders: &stubOrderHistoryRepository{}, Currency: "ZZ"}); err == nil {
		t.Fatalf("expected invalid currency error")
	}
}

func TestCheckoutServiceScenarioSmart10(t *testing.T) {
	fx := newCheckoutFixture(t, domain.StartingBalance)
	ctx := context.Background()

	if _, err := fx.cart.AddItem(ctx, testProduct(1, domain.NewMoney(500, 0))); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if _, err := fx.cart.ApplyCoupon(ctx, "SMART10"); err != nil {
		t.Fatalf("ApplyCoupon: %v", err)
	}

	receipt, err := fx.checkout.Checkout(ctx)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	if receipt.AmountPaid != domain.NewMoney(510, 0) {
		t.Fatalf("expected 510.00 paid, got %s", receipt.AmountPaid)
	}
	if receipt.NewBalance != domain.NewMoney(490, 0) {
		t.Fatalf("expected 490.00 balance, got %s", receipt.NewBalance)
	}
	wantMessage := "Order placed successfully! Total paid: BDT 510.00. New balance: BDT 490.00"
	if receipt.Message != wantMessage {
		t.Fatalf("unexpected message %q", receipt.Message)
	}
	if receipt.Order.OrderID != fx.now.UnixMilli() {
		t.Fatalf("expected order id %d, got %d", fx.now.UnixMilli(), receipt.Order.OrderID)
	}
	if receipt.Order.Date != "2024-05-10T09:30:00.123Z" {
		t.Fatalf("unexpected order date %q", receipt.Order.Date)
	}

	if got := fx.balance.Get(ctx); got != domain.NewMoney(490, 0) {
		t.Fatalf("expected balance 490.00, got %s", got)
	}
	if fx.balanceRepo.stored != domain.NewMoney(490, 0) {
		t.Fatalf("expected persisted balance 490.00, got %s", fx.balanceRepo.stored)
	}
	summary := fx.cart.Summary(ctx)
	if len(summary.Items) != 0 || summary.CouponCode != "" {
		t.Fatalf("expected cart cleared, got %+v", summary)
	}
	if len(fx.cartRepo.stored.Items) != 0 || fx.cartRepo.stored.CouponCode != "" {
		t.Fatalf("expected cleared cart persisted")
	}

	history, err := fx.checkout.History(ctx)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected one order, got %d", len(history))
	}
	if history[0].Totals.Total != domain.NewMoney(510, 0) || history[0].Totals.Discount != domain.NewMoney(50, 0) {
		t.Fatalf("unexpected recorded totals %+v", history[0].Totals)
	}
	if len(history[0].Items) != 1 || history[0].Items[0].Quantity != 1 {
		t.Fatalf("unexpected recorded items %+v", history[0].Items)
	}

	if len(fx.publisher.published) != 1 || fx.publisher.published[0].OrderID != receipt.Order.OrderID {
		t.Fatalf("expected order event published, got %+v", fx.publisher.published)
	}
	if change := fx.observer.last(t); change.Kind != StateChangeOrderPlaced || change.Summary.Balance != domain.NewMoney(490, 0) {
		t.Fatalf("expected order placed change, got %+v", change)
	}
}

func TestCheckoutServiceReceiptGroupsLargeAmounts(t *testing.T) {
	fx := newCheckoutFixture(t, domain.NewMoney(5000, 0))
	ctx := context.Background()

	if _, err := fx.cart.AddItem(ctx, testProduct(3, domain.NewMoney(1200, 0))); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	receipt, err := fx.checkout.Checkout(ctx)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	wantMessage := "Order placed successfully! Total paid: BDT 1,260.00. New balance: BDT 3,740.00"
	if receipt.Message != wantMessage {
		t.Fatalf("unexpected message %q", receipt.Message)
	}
}

func TestCheckoutServiceEmptyCart(t *testing.T) {
	fx := newCheckoutFixture(t, domain.StartingBalance)
	balanceSaves := len(fx.balanceRepo.saves)

	if _, err := fx.checkout.Checkout(context.Background()); !errors.Is(err, ErrCheckoutEmptyCart) {
		t.Fatalf("expected ErrCheckoutEmptyCart, got %v", err)
	}
	if len(fx.balanceRepo.saves) != balanceSaves || len(fx.orders.stored) != 0 {
		t.Fatalf("expected no mutation on empty cart")
	}
	if len(fx.publisher.published) != 0 {
		t.Fatalf("expected no event")
	}
}

func TestCheckoutServiceInsufficientBalance(t *testing.T) {
	fx := newCheckoutFixture(t, domain.NewMoney(100, 0))
	ctx := context.Background()
	if _, err := fx.cart.AddItem(ctx, testProduct(1, domain.NewMoney(50, 0))); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	cartSaves := fx.cartRepo.saves

	if _, err := fx.checkout.Checkout(ctx); !errors.Is(err, ErrCheckoutInsufficientBalance) {
		t.Fatalf("expected ErrCheckoutInsufficientBalance, got %v", err)
	}
	if fx.balance.Get(ctx) != domain.NewMoney(100, 0) {
		t.Fatalf("expected balance unchanged")
	}
	if fx.cart.Count(ctx) != 1 || fx.cartRepo.saves != cartSaves {
		t.Fatalf("expected cart unchanged")
	}
	if len(fx.orders.stored) != 0 {
		t.Fatalf("expected no order recorded")
	}
}

func TestCheckoutServiceDoubleSubmitHitsEmptyCart(t *testing.T) {
	fx := newCheckoutFixture(t, domain.StartingBalance)
	ctx := context.Background()
	if _, err := fx.cart.AddItem(ctx, testProduct(1, domain.NewMoney(10, 0))); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		empty   int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fx.checkout.Checkout(ctx)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, ErrCheckoutEmptyCart):
				empty++
			default:
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()

	if success != 1 || empty != 1 {
		t.Fatalf("expected one success and one empty cart, got %d/%d", success, empty)
	}
	if fx.balance.Get(ctx) != domain.NewMoney(930, 0) {
		t.Fatalf("expected a single debit of 70.00, got balance %s", fx.balance.Get(ctx))
	}
}

func TestCheckoutServiceHistoryPersistFailureRestoresBalance(t *testing.T) {
	fx := newCheckoutFixture(t, domain.StartingBalance)
	ctx := context.Background()
	if _, err := fx.cart.AddItem(ctx, testProduct(1, domain.NewMoney(100, 0))); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	fx.orders.saveFunc = func(context.Context, []OrderRecord) error { return errors.New("write quota") }

	if _, err := fx.checkout.Checkout(ctx); !errors.Is(err, ErrCheckoutUnavailable) {
		t.Fatalf("expected ErrCheckoutUnavailable, got %v", err)
	}
	if fx.balance.Get(ctx) != domain.StartingBalance {
		t.Fatalf("expected balance restored, got %s", fx.balance.Get(ctx))
	}
	if fx.balanceRepo.stored != domain.StartingBalance {
		t.Fatalf("expected restored balance persisted, got %s", fx.balanceRepo.stored)
	}
	if fx.cart.Count(ctx) != 1 {
		t.Fatalf("expected cart untouched")
	}
	if len(fx.publisher.published) != 0 {
		t.Fatalf("expected no event on failure")
	}
}

func TestCheckoutServiceCartClearFailureKeepsOrder(t *testing.T) {
	fx := newCheckoutFixture(t, domain.StartingBalance)
	ctx := context.Background()
	if _, err := fx.cart.AddItem(ctx, testProduct(1, domain.NewMoney(100, 0))); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	fx.cartRepo.saveFunc = func(context.Context, CartState) error { return errors.New("storage offline") }

	receipt, err := fx.checkout.Checkout(ctx)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if receipt.NewBalance != domain.NewMoney(840, 0) {
		t.Fatalf("expected balance 840.00, got %s", receipt.NewBalance)
	}
	if len(fx.orders.stored) != 1 {
		t.Fatalf("expected order recorded")
	}
	if fx.cart.Count(ctx) != 0 {
		t.Fatalf("expected in-memory cart cleared")
	}
	found := false
	for _, event := range fx.events {
		if event == "checkout.cart_clear_failed" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected clear failure logged, got %v", fx.events)
	}
}

func TestCheckoutServicePublishFailureIsBestEffort(t *testing.T) {
	fx := newCheckoutFixture(t, domain.StartingBalance)
	fx.publisher.err = errors.New("topic not found")
	ctx := context.Background()
	if _, err := fx.cart.AddItem(ctx, testProduct(1, domain.NewMoney(10, 0))); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	if _, err := fx.checkout.Checkout(ctx); err != nil {
		t.Fatalf("expected publish failure to be ignored, got %v", err)
	}
	if fx.events[len(fx.events)-1] != "checkout.event_publish_failed" {
		t.Fatalf("expected publish failure logged, got %v", fx.events)
	}
}

func TestCheckoutServiceOrderIDsAreMonotonic(t *testing.T) {
	fx := newCheckoutFixture(t, domain.StartingBalance)
	ctx := context.Background()
	fx.orders.stored = []OrderRecord{{OrderID: fx.now.UnixMilli() + 5, Date: "2024-05-10T09:30:00.128Z"}}

	var ids []int64
	for i := 0; i < 2; i++ {
		if _, err := fx.cart.AddItem(ctx, testProduct(1, domain.NewMoney(1, 0))); err != nil {
			t.Fatalf("AddItem: %v", err)
		}
		receipt, err := fx.checkout.Checkout(ctx)
		if err != nil {
			t.Fatalf("Checkout: %v", err)
		}
		ids = append(ids, receipt.Order.OrderID)
	}

	if ids[0] != fx.now.UnixMilli()+6 || ids[1] != ids[0]+1 {
		t.Fatalf("expected monotonic ids after the newest stored order, got %v", ids)
	}
	history, err := fx.checkout.History(ctx)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 3 || history[0].OrderID != ids[1] {
		t.Fatalf("expected newest first, got %+v", history)
	}
}

func TestCheckoutServiceHistory(t *testing.T) {
	t.Run("malformed history reads empty", func(t *testing.T) {
		fx := newCheckoutFixture(t, domain.StartingBalance)
		fx.orders.loadFunc = func(context.Context) ([]OrderRecord, error) {
			return []OrderRecord{}, fmt.Errorf("%w: order history", repositories.ErrMalformedRecord)
		}
		history, err := fx.checkout.History(context.Background())
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(history) != 0 {
			t.Fatalf("expected empty history")
		}
	})

	t.Run("backend failure is unavailable", func(t *testing.T) {
		fx := newCheckoutFixture(t, domain.StartingBalance)
		fx.orders.loadFunc = func(context.Context) ([]OrderRecord, error) {
			return nil, errors.New("timeout")
		}
		if _, err := fx.checkout.History(context.Background()); !errors.Is(err, ErrCheckoutUnavailable) {
			t.Fatalf("expected ErrCheckoutUnavailable, got %v", err)
		}
	})
}
