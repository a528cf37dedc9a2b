package memory

import (
	"context"
	"sort"
	"time"

	"github.com/skills-gamification/internal/domain"
)

// memTx mutates a staged state owned by exactly one InTx call
type memTx struct {
	s *state
}

func (t *memTx) AppendTransaction(_ context.Context, tr domain.PointTransaction) error {
	t.s.transactions = append(t.s.transactions, tr)
	return nil
}

func (t *memTx) IncrementBalance(ctx context.Context, userID string, currency domain.Currency, delta int64, at time.Time) (int64, error) {
	k := balanceKey{userID, currency}
	b, ok := t.s.balances[k]
	if !ok {
		sum, err := t.SumTransactions(ctx, userID, currency)
		if err != nil {
			return 0, err
		}
		b = domain.PointBalance{UserID: userID, Currency: currency, Balance: sum}
	} else {
		b.Balance += delta
	}
	b.UpdatedAt = at
	t.s.balances[k] = b
	return b.Balance, nil
}

func (t *memTx) CachedBalance(_ context.Context, userID string, currency domain.Currency) (int64, bool, error) {
	b, ok := t.s.balances[balanceKey{userID, currency}]
	return b.Balance, ok, nil
}

func (t *memTx) SumTransactions(ctx context.Context, userID string, currency domain.Currency) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var sum int64
	for _, tr := range t.s.transactions {
		if tr.UserID == userID && tr.Currency == currency {
			sum += tr.Amount
		}
	}
	return sum, nil
}

func (t *memTx) InitBalance(ctx context.Context, userID string, currency domain.Currency, at time.Time) (int64, error) {
	if b, ok := t.s.balances[balanceKey{userID, currency}]; ok {
		return b.Balance, nil
	}
	return t.RebuildBalance(ctx, userID, currency, at)
}

func (t *memTx) RebuildBalance(ctx context.Context, userID string, currency domain.Currency, at time.Time) (int64, error) {
	sum, err := t.SumTransactions(ctx, userID, currency)
	if err != nil {
		return 0, err
	}
	t.s.balances[balanceKey{userID, currency}] = domain.PointBalance{
		UserID:    userID,
		Currency:  currency,
		Balance:   sum,
		UpdatedAt: at,
	}
	return sum, nil
}

func (t *memTx) LockStreak(_ context.Context, userID string) (domain.StreakState, error) {
	s, ok := t.s.streaks[userID]
	if !ok {
		s = domain.StreakState{UserID: userID}
		t.s.streaks[userID] = s
	}
	return s, nil
}

func (t *memTx) SaveStreak(_ context.Context, s domain.StreakState) error {
	t.s.streaks[s.UserID] = s
	return nil
}

func (t *memTx) InsertUserBadge(_ context.Context, b domain.UserBadge) (bool, error) {
	awards, ok := t.s.badges[b.UserID]
	if !ok {
		awards = make(map[string]domain.UserBadge)
		t.s.badges[b.UserID] = awards
	}
	if _, exists := awards[b.BadgeKey]; exists {
		return false, nil
	}
	awards[b.BadgeKey] = b
	return true, nil
}

func (t *memTx) EarnedBadgeKeys(_ context.Context, userID string) (map[string]bool, error) {
	out := make(map[string]bool, len(t.s.badges[userID]))
	for k := range t.s.badges[userID] {
		out[k] = true
	}
	return out, nil
}

func (t *memTx) UserStats(_ context.Context, userID string) (domain.UserStats, error) {
	stats := domain.UserStats{
		UserID:   userID,
		Counters: make(map[string]int64),
		Balances: t.s.userBalances(userID),
	}
	if s, ok := t.s.streaks[userID]; ok {
		stats.CurrentStreak = s.CurrentStreak
		stats.LongestStreak = s.LongestStreak
	}

	days := make(map[domain.Date]bool)
	for _, c := range t.s.completions[userID] {
		stats.Counters["workouts"]++
		stats.Counters["drills"] += int64(len(c.DrillIDs))
		stats.Counters[string(c.WorkoutType)+"_workouts"]++
		for _, cat := range c.Categories {
			stats.Counters[cat+"_workouts"]++
		}
		if c.LocalHour < domain.EarlyMorningBefore {
			stats.EarlyMorningWorkouts++
		}
		if c.LocalHour >= domain.LateEveningFrom {
			stats.LateEveningWorkouts++
		}
		days[c.ActivityDate] = true
	}
	for d := range days {
		stats.ActivityDates = append(stats.ActivityDates, d)
	}
	sort.Slice(stats.ActivityDates, func(i, j int) bool {
		return stats.ActivityDates[i].Before(stats.ActivityDates[j])
	})
	return stats, nil
}

func (t *memTx) CompletionExists(_ context.Context, userID, requestID string) (bool, error) {
	return t.s.requests[userID][requestID], nil
}

func (t *memTx) InsertCompletion(_ context.Context, c domain.WorkoutCompletion) error {
	if c.RequestID != "" {
		ids, ok := t.s.requests[c.UserID]
		if !ok {
			ids = make(map[string]bool)
			t.s.requests[c.UserID] = ids
		}
		if ids[c.RequestID] {
			return domain.ErrDuplicateRequest
		}
		ids[c.RequestID] = true
	}
	t.s.completions[c.UserID] = append(t.s.completions[c.UserID], c)
	return nil
}
