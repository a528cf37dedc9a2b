package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/skills-gamification/internal/badge"
	"github.com/skills-gamification/internal/domain"
	"github.com/skills-gamification/internal/rank"
	"github.com/skills-gamification/internal/store"
)

type balanceKey struct {
	user     string
	currency domain.Currency
}

type state struct {
	transactions []domain.PointTransaction
	balances     map[balanceKey]domain.PointBalance
	streaks      map[string]domain.StreakState
	badges       map[string]map[string]domain.UserBadge // userID -> badgeKey -> award
	completions  map[string][]domain.WorkoutCompletion
	requests     map[string]map[string]bool
}

func newState() *state {
	return &state{
		balances:    make(map[balanceKey]domain.PointBalance),
		streaks:     make(map[string]domain.StreakState),
		badges:      make(map[string]map[string]domain.UserBadge),
		completions: make(map[string][]domain.WorkoutCompletion),
		requests:    make(map[string]map[string]bool),
	}
}

// clone copies s so a unit of work can be discarded. Append-only slices
// are resliced to their length so appends in the copy never write into
// the original backing array.
func (s *state) clone() *state {
	c := &state{
		transactions: s.transactions[:len(s.transactions):len(s.transactions)],
		balances:     make(map[balanceKey]domain.PointBalance, len(s.balances)),
		streaks:      make(map[string]domain.StreakState, len(s.streaks)),
		badges:       make(map[string]map[string]domain.UserBadge, len(s.badges)),
		completions:  make(map[string][]domain.WorkoutCompletion, len(s.completions)),
		requests:     make(map[string]map[string]bool, len(s.requests)),
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	for k, v := range s.streaks {
		c.streaks[k] = v
	}
	for user, awards := range s.badges {
		m := make(map[string]domain.UserBadge, len(awards))
		for k, v := range awards {
			m[k] = v
		}
		c.badges[user] = m
	}
	for user, list := range s.completions {
		c.completions[user] = list[:len(list):len(list)]
	}
	for user, ids := range s.requests {
		m := make(map[string]bool, len(ids))
		for k := range ids {
			m[k] = true
		}
		c.requests[user] = m
	}
	return c
}

// Repository is an in-memory store.Repository intended for local
// development and tests. Units of work are serialized by one lock.
type Repository struct {
	mu          sync.RWMutex
	state       *state
	memberships map[string]domain.Membership
}

var _ store.Repository = (*Repository)(nil)

// NewRepository returns an empty in-memory repository
func NewRepository() *Repository {
	return &Repository{
		state:       newState(),
		memberships: make(map[string]domain.Membership),
	}
}

// InTx runs fn against a staged copy and swaps it in when fn succeeds
func (r *Repository) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	staged := r.state.clone()
	if err := fn(&memTx{s: staged}); err != nil {
		return err
	}
	r.state = staged
	return nil
}

// SetMembership records a user's tiers as the billing system would
func (r *Repository) SetMembership(m domain.Membership) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.memberships[m.UserID] = m
}

// InvalidateBalance drops a cached balance row, simulating a lost cache write
func (r *Repository) InvalidateBalance(userID string, currency domain.Currency) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.state.balances, balanceKey{userID, currency})
}

// Transactions returns a copy of a user's ledger
func (r *Repository) Transactions(userID string) []domain.PointTransaction {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.PointTransaction
	for _, t := range r.state.transactions {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out
}

// Completions returns a copy of a user's workout history
func (r *Repository) Completions(userID string) []domain.WorkoutCompletion {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.WorkoutCompletion(nil), r.state.completions[userID]...)
}

func (r *Repository) GetStreak(_ context.Context, userID string) (domain.StreakState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.state.streaks[userID]
	if !ok {
		return domain.StreakState{UserID: userID}, nil
	}
	return s, nil
}

func (r *Repository) Balances(_ context.Context, userID string) (map[domain.Currency]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.userBalances(userID), nil
}

func (r *Repository) ListUserBadges(_ context.Context, userID string) ([]domain.UserBadge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.UserBadge, 0, len(r.state.badges[userID]))
	for _, b := range r.state.badges[userID] {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AwardedAt.Equal(out[j].AwardedAt) {
			return out[i].BadgeKey < out[j].BadgeKey
		}
		return out[i].AwardedAt.Before(out[j].AwardedAt)
	})
	return out, nil
}

func (r *Repository) GetMembership(_ context.Context, userID string) (domain.Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.memberships[userID]
	if !ok {
		return domain.Membership{UserID: userID}, nil
	}
	return m, nil
}

func (r *Repository) TopBalances(_ context.Context, currency domain.Currency, limit int) ([]domain.PointBalance, error) {
	r.mu.RLock()
	var out []domain.PointBalance
	for k, b := range r.state.balances {
		if k.currency == currency {
			out = append(out, b)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Balance == out[j].Balance {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Balance > out[j].Balance
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Repository) CountBalancesInRange(_ context.Context, currency domain.Currency, min, max int64) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for k, b := range r.state.balances {
		if k.currency == currency && b.Balance >= min && b.Balance < max {
			n++
		}
	}
	return n, nil
}

func (r *Repository) AllBalances(_ context.Context, currency domain.Currency) (map[string]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int64)
	for k, b := range r.state.balances {
		if k.currency == currency {
			out[k.user] = b.Balance
		}
	}
	return out, nil
}

func (r *Repository) ReconcileBalances(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sums := make(map[balanceKey]int64, len(r.state.balances))
	for k := range r.state.balances {
		sums[k] = 0
	}
	for _, t := range r.state.transactions {
		sums[balanceKey{t.UserID, t.Currency}] += t.Amount
	}

	now := time.Now()
	var changed int64
	for k, sum := range sums {
		cached, ok := r.state.balances[k]
		if ok && cached.Balance == sum {
			continue
		}
		r.state.balances[k] = domain.PointBalance{UserID: k.user, Currency: k.currency, Balance: sum, UpdatedAt: now}
		changed++
	}
	return changed, nil
}

func (r *Repository) ListBadgeDefinitions(context.Context) ([]domain.BadgeDefinition, error) {
	return append([]domain.BadgeDefinition(nil), badge.DefaultDefinitions...), nil
}

func (r *Repository) ListRankDefinitions(context.Context) ([]domain.RankDefinition, error) {
	return append([]domain.RankDefinition(nil), rank.DefaultDefinitions...), nil
}

func (r *Repository) Ping(context.Context) error {
	return nil
}

func (s *state) userBalances(userID string) map[domain.Currency]int64 {
	out := make(map[domain.Currency]int64)
	for k, b := range s.balances {
		if k.user == userID {
			out[k.currency] = b.Balance
		}
	}
	return out
}
