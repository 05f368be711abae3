package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	domain "github.com/hossain-rashid/Smartshop/internal/domain"
	"github.com/hossain-rashid/Smartshop/internal/repositories"
)

var errBalanceRepositoryRequired = errors.New("balance service: repository is required")

// ErrBalanceInvalidInput indicates a negative or overflowing amount.
var ErrBalanceInvalidInput = errors.New("balance service: invalid input")

// ErrBalanceUnavailable indicates the balance could not be read from or written to storage.
var ErrBalanceUnavailable = errors.New("balance service: unavailable")

// BalanceServiceDeps wires the balance store.
type BalanceServiceDeps struct {
	Repository repositories.BalanceRepository
	// Lock is the state lock shared with the cart and checkout services. Defaults to a new mutex.
	Lock   sync.Locker
	Logger func(ctx context.Context, event string, fields map[string]any)
}

// BalanceService holds the shopper's spendable balance.
type BalanceService struct {
	lock    sync.Locker
	repo    repositories.BalanceRepository
	balance Money
	logger  func(context.Context, string, map[string]any)
	// notify is attached by the cart service so balance changes publish a full summary.
	notify func(ctx context.Context, kind StateChangeKind)
}

// NewBalanceService constructs a BalanceService. The balance starts at the default until Load runs.
func NewBalanceService(deps BalanceServiceDeps) (*BalanceService, error) {
	if deps.Repository == nil {
		return nil, errBalanceRepositoryRequired
	}
	lock := deps.Lock
	if lock == nil {
		lock = &sync.Mutex{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &BalanceService{
		lock:    lock,
		repo:    deps.Repository,
		balance: domain.StartingBalance,
		logger:  logger,
		notify:  func(context.Context, StateChangeKind) {},
	}, nil
}

// Load restores the balance. A missing or malformed record is replaced by the starting balance and
// persisted. Storage failures are returned as ErrBalanceUnavailable and leave the balance untouched.
func (s *BalanceService) Load(ctx context.Context) (Money, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	stored, found, err := s.repo.Load(ctx)
	switch {
	case err == nil && found:
		s.balance = stored
		return s.balance, nil
	case err != nil && !errors.Is(err, repositories.ErrMalformedRecord):
		s.logger(ctx, "balance.load_failed", map[string]any{"error": err.Error()})
		return s.balance, fmt.Errorf("%w: %v", ErrBalanceUnavailable, err)
	case err != nil:
		s.logger(ctx, "balance.malformed_record", map[string]any{"error": err.Error()})
	}

	if err := s.persistLocked(ctx, domain.StartingBalance); err != nil {
		return s.balance, err
	}
	s.logger(ctx, "balance.initialised", map[string]any{"balance": domain.StartingBalance.String()})
	return s.balance, nil
}

// Get returns the current balance.
func (s *BalanceService) Get(context.Context) Money {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.balance
}

// IsOverBalance reports whether total exceeds the current balance.
func (s *BalanceService) IsOverBalance(total Money) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return total > s.balance
}

// Credit adds amount to the balance, persists it and notifies observers.
func (s *BalanceService) Credit(ctx context.Context, amount Money) (Money, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if amount < 0 {
		return s.balance, ErrBalanceInvalidInput
	}
	next := s.balance + amount
	if next < s.balance {
		return s.balance, ErrBalanceInvalidInput
	}
	if err := s.persistLocked(ctx, next); err != nil {
		return s.balance, err
	}
	s.logger(ctx, "balance.credited", map[string]any{"amount": amount.String(), "balance": next.String()})
	s.notify(ctx, StateChangeBalanceCredited)
	return s.balance, nil
}

// TopUp credits the fixed top-up amount.
func (s *BalanceService) TopUp(ctx context.Context) (Money, error) {
	return s.Credit(ctx, domain.TopUpAmount)
}

// Debit subtracts amount and persists the result. Sufficiency is the caller's concern.
func (s *BalanceService) Debit(ctx context.Context, amount Money) (Money, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.debitLocked(ctx, amount); err != nil {
		return s.balance, err
	}
	s.notify(ctx, StateChangeBalanceDebited)
	return s.balance, nil
}

func (s *BalanceService) debitLocked(ctx context.Context, amount Money) error {
	if amount < 0 {
		return ErrBalanceInvalidInput
	}
	next := s.balance - amount
	if next > s.balance {
		return ErrBalanceInvalidInput
	}
	return s.persistLocked(ctx, next)
}

// persistLocked saves next and commits it in memory only when the save succeeds.
func (s *BalanceService) persistLocked(ctx context.Context, next Money) error {
	if err := s.repo.Save(ctx, next); err != nil {
		s.logger(ctx, "balance.persist_failed", map[string]any{
			"balance": next.String(),
			"error":   err.Error(),
		})
		return fmt.Errorf("%w: %v", ErrBalanceUnavailable, err)
	}
	s.balance = next
	return nil
}
