package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hossain-rashid/Smartshop/internal/platform/kvstore"
	"github.com/hossain-rashid/Smartshop/internal/repositories"
)

// Registry exposes the storefront repositories backed by a single kvstore.Store.
type Registry struct {
	store    kvstore.Store
	balances *BalanceRepository
	carts    *CartRepository
	orders   *OrderHistoryRepository
	health   repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds the repositories and a readiness check for store. Extra checks (e.g. the
// catalog source) are appended to that check.
func NewRegistry(store kvstore.Store, backend string, extra ...repositories.DependencyCheck) (*Registry, error) {
	if store == nil {
		return nil, errors.New("kv registry: store is required")
	}
	balances, err := NewBalanceRepository(store)
	if err != nil {
		return nil, err
	}
	carts, err := NewCartRepository(store)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderHistoryRepository(store)
	if err != nil {
		return nil, err
	}

	checks := []repositories.DependencyCheck{{
		Name:    "storage." + backend,
		Timeout: 2 * time.Second,
		Check: func(ctx context.Context) error {
			if pinger, ok := store.(kvstore.Pinger); ok {
				return pinger.Ping(ctx)
			}
			_, _, err := store.Get(ctx, repositories.BalanceKey)
			return err
		},
	}}
	checks = append(checks, extra...)
	health, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, fmt.Errorf("kv registry: %w", err)
	}

	return &Registry{
		store:    store,
		balances: balances,
		carts:    carts,
		orders:   orders,
		health:   health,
	}, nil
}

// Close releases the underlying store.
func (r *Registry) Close(context.Context) error {
	if r == nil || r.store == nil {
		return nil
	}
	return r.store.Close()
}

// Balances implements repositories.Registry.
func (r *Registry) Balances() repositories.BalanceRepository { return r.balances }

// Carts implements repositories.Registry.
func (r *Registry) Carts() repositories.CartRepository { return r.carts }

// Orders implements repositories.Registry.
func (r *Registry) Orders() repositories.OrderHistoryRepository { return r.orders }

// Health implements repositories.Registry.
func (r *Registry) Health() repositories.HealthRepository { return r.health }
