package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/skills-gamification/internal/domain"
)

// Store is the persistence surface the ledger needs. Implementations
// must make IncrementBalance a single atomic write; when no cached row
// exists it is created from the ledger sum, which already includes the
// transaction appended in the same unit of work.
//
// No method may replace a cached balance with a sum that misses a
// concurrent increment. InitBalance only fills a missing row and
// RebuildBalance sums while holding the row.
type Store interface {
	AppendTransaction(ctx context.Context, t domain.PointTransaction) error
	IncrementBalance(ctx context.Context, userID string, currency domain.Currency, delta int64, at time.Time) (int64, error)
	CachedBalance(ctx context.Context, userID string, currency domain.Currency) (int64, bool, error)
	SumTransactions(ctx context.Context, userID string, currency domain.Currency) (int64, error)
	// InitBalance creates a missing cache row from the ledger sum and
	// returns the cached balance. An existing row is left as is.
	InitBalance(ctx context.Context, userID string, currency domain.Currency, at time.Time) (int64, error)
	// RebuildBalance rewrites the cache row from the ledger sum.
	RebuildBalance(ctx context.Context, userID string, currency domain.Currency, at time.Time) (int64, error)
}

// Ledger records point transactions and derives balances
type Ledger struct {
	store Store
	clock clockwork.Clock
}

// New creates a ledger over store
func New(store Store, clock clockwork.Clock) *Ledger {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Ledger{store: store, clock: clock}
}

// RecordTransaction appends t and adds its amount to the balance cache.
// ID and CreatedAt are assigned when empty.
func (l *Ledger) RecordTransaction(ctx context.Context, t domain.PointTransaction) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = l.clock.Now()
	}

	if err := l.store.AppendTransaction(ctx, t); err != nil {
		return "", fmt.Errorf("appending transaction: %w", err)
	}
	if _, err := l.store.IncrementBalance(ctx, t.UserID, t.Currency, t.Amount, t.CreatedAt); err != nil {
		return "", fmt.Errorf("updating balance cache: %w", err)
	}
	return t.ID, nil
}

// Earn is a shorthand for recording an earned transaction
func (l *Ledger) Earn(ctx context.Context, userID string, currency domain.Currency, amount int64, sourceType, sourceID string) (string, error) {
	return l.RecordTransaction(ctx, domain.PointTransaction{
		UserID:          userID,
		Currency:        currency,
		Amount:          amount,
		TransactionType: domain.TransactionEarned,
		SourceType:      sourceType,
		SourceID:        sourceID,
	})
}

// GetBalance reads the cached balance, rebuilding it from the ledger
// when no cached row exists.
func (l *Ledger) GetBalance(ctx context.Context, userID string, currency domain.Currency) (int64, error) {
	if err := currency.Validate(); err != nil {
		return 0, err
	}
	balance, ok, err := l.store.CachedBalance(ctx, userID, currency)
	if err != nil {
		return 0, fmt.Errorf("reading balance cache: %w", err)
	}
	if ok {
		return balance, nil
	}
	balance, err = l.store.InitBalance(ctx, userID, currency, l.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("seeding balance cache: %w", err)
	}
	return balance, nil
}

// Reconcile re-sums the ledger into the balance cache
func (l *Ledger) Reconcile(ctx context.Context, userID string, currency domain.Currency) (int64, error) {
	if err := currency.Validate(); err != nil {
		return 0, err
	}
	balance, err := l.store.RebuildBalance(ctx, userID, currency, l.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("rebuilding balance cache: %w", err)
	}
	return balance, nil
}
