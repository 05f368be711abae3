// Package kv implements the storefront record repositories on top of the kvstore port.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	domain "github.com/hossain-rashid/Smartshop/internal/domain"
	"github.com/hossain-rashid/Smartshop/internal/platform/kvstore"
	"github.com/hossain-rashid/Smartshop/internal/repositories"
)

// BalanceRepository stores the balance as decimal text under smartShopUserBalance.
type BalanceRepository struct {
	store kvstore.Store
}

// NewBalanceRepository constructs a balance repository.
func NewBalanceRepository(store kvstore.Store) (*BalanceRepository, error) {
	if store == nil {
		return nil, errors.New("balance repository requires a store")
	}
	return &BalanceRepository{store: store}, nil
}

// Load implements repositories.BalanceRepository.
func (r *BalanceRepository) Load(ctx context.Context) (domain.Money, bool, error) {
	raw, found, err := r.store.Get(ctx, repositories.BalanceKey)
	if err != nil || !found {
		return 0, false, err
	}
	balance, err := domain.ParseMoney(raw)
	if err != nil {
		return 0, true, fmt.Errorf("%w: balance %q: %v", repositories.ErrMalformedRecord, raw, err)
	}
	return balance, true, nil
}

// Save implements repositories.BalanceRepository.
func (r *BalanceRepository) Save(ctx context.Context, balance domain.Money) error {
	return r.store.Set(ctx, repositories.BalanceKey, balance.String())
}

// CartRepository stores {cartItems, couponCode} as JSON under smartShopCartState.
type CartRepository struct {
	store kvstore.Store
}

type cartRecord struct {
	CartItems  []domain.LineItem `json:"cartItems"`
	CouponCode string            `json:"couponCode"`
}

// NewCartRepository constructs a cart repository.
func NewCartRepository(store kvstore.Store) (*CartRepository, error) {
	if store == nil {
		return nil, errors.New("cart repository requires a store")
	}
	return &CartRepository{store: store}, nil
}

// Load implements repositories.CartRepository. Line items with a non-positive quantity are dropped.
func (r *CartRepository) Load(ctx context.Context) (domain.CartState, bool, error) {
	raw, found, err := r.store.Get(ctx, repositories.CartStateKey)
	if err != nil || !found {
		return domain.CartState{Items: []domain.LineItem{}}, false, err
	}

	var record cartRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return domain.CartState{Items: []domain.LineItem{}}, true, fmt.Errorf("%w: cart: %v", repositories.ErrMalformedRecord, err)
	}

	items := make([]domain.LineItem, 0, len(record.CartItems))
	for _, item := range record.CartItems {
		if item.Quantity < 1 {
			continue
		}
		items = append(items, item)
	}
	return domain.CartState{Items: items, CouponCode: record.CouponCode}, true, nil
}

// Save implements repositories.CartRepository.
func (r *CartRepository) Save(ctx context.Context, cart domain.CartState) error {
	record := cartRecord{
		CartItems:  cart.Items,
		CouponCode: cart.CouponCode,
	}
	if record.CartItems == nil {
		record.CartItems = []domain.LineItem{}
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	return r.store.Set(ctx, repositories.CartStateKey, string(payload))
}

// OrderHistoryRepository stores a JSON array of orders, newest first, under smartShopOrderHistory.
type OrderHistoryRepository struct {
	store kvstore.Store
}

// NewOrderHistoryRepository constructs an order history repository.
func NewOrderHistoryRepository(store kvstore.Store) (*OrderHistoryRepository, error) {
	if store == nil {
		return nil, errors.New("order history repository requires a store")
	}
	return &OrderHistoryRepository{store: store}, nil
}

// Load implements repositories.OrderHistoryRepository. A missing record is an empty history.
func (r *OrderHistoryRepository) Load(ctx context.Context) ([]domain.OrderRecord, error) {
	raw, found, err := r.store.Get(ctx, repositories.OrderHistoryKey)
	if err != nil {
		return nil, err
	}
	if !found {
		return []domain.OrderRecord{}, nil
	}
	var history []domain.OrderRecord
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		return []domain.OrderRecord{}, fmt.Errorf("%w: order history: %v", repositories.ErrMalformedRecord, err)
	}
	if history == nil {
		history = []domain.OrderRecord{}
	}
	return history, nil
}

// Save implements repositories.OrderHistoryRepository.
func (r *OrderHistoryRepository) Save(ctx context.Context, history []domain.OrderRecord) error {
	if history == nil {
		history = []domain.OrderRecord{}
	}
	payload, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode order history: %w", err)
	}
	return r.store.Set(ctx, repositories.OrderHistoryKey, string(payload))
}
