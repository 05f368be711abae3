package repositories

import (
	"context"
	"errors"

	domain "github.com/hossain-rashid/Smartshop/internal/domain"
)

// Storage keys for the three persisted records.
const (
	BalanceKey      = "smartShopUserBalance"
	CartStateKey    = "smartShopCartState"
	OrderHistoryKey = "smartShopOrderHistory"
)

// ErrMalformedRecord indicates a stored record exists but cannot be decoded. Callers degrade to defaults.
var ErrMalformedRecord = errors.New("repositories: malformed record")

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Balances() BalanceRepository
	Carts() CartRepository
	Orders() OrderHistoryRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// BalanceRepository persists the shopper balance as decimal text.
type BalanceRepository interface {
	// Load returns found=false when no record exists. A record that cannot be parsed yields ErrMalformedRecord.
	Load(ctx context.Context) (balance domain.Money, found bool, err error)
	Save(ctx context.Context, balance domain.Money) error
}

// CartRepository persists the cart items and coupon as one JSON record.
type CartRepository interface {
	Load(ctx context.Context) (cart domain.CartState, found bool, err error)
	Save(ctx context.Context, cart domain.CartState) error
}

// OrderHistoryRepository persists completed orders, newest first.
type OrderHistoryRepository interface {
	Load(ctx context.Context) ([]domain.OrderRecord, error)
	Save(ctx context.Context, history []domain.OrderRecord) error
}

// HealthRepository aggregates the dependency checks behind readiness.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// ProductSource fetches the product catalog.
type ProductSource interface {
	FetchProducts(ctx context.Context) ([]domain.Product, error)
}

// ReviewSource fetches customer reviews.
type ReviewSource interface {
	FetchReviews(ctx context.Context) ([]domain.Review, error)
}
