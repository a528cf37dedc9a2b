package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/skills-gamification/internal/domain"
	"github.com/skills-gamification/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func earn(userID string, c domain.Currency, amount int64) domain.PointTransaction {
	return domain.PointTransaction{
		ID:              "t",
		UserID:          userID,
		Currency:        c,
		Amount:          amount,
		TransactionType: domain.TransactionEarned,
		SourceType:      domain.SourceWorkoutCompletion,
	}
}

func TestInTxRollback(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	boom := errors.New("boom")

	err := repo.InTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.AppendTransaction(ctx, earn("u1", domain.CurrencyLaxCredit, 10)))
		_, err := tx.IncrementBalance(ctx, "u1", domain.CurrencyLaxCredit, 10, time.Now())
		require.NoError(t, err)
		_, err = tx.InsertUserBadge(ctx, domain.UserBadge{UserID: "u1", BadgeKey: "first_workout"})
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	balances, err := repo.Balances(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, balances)
	assert.Empty(t, repo.Transactions("u1"))
	badges, err := repo.ListUserBadges(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, badges)
}

func TestInTxCommit(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	err := repo.InTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.AppendTransaction(ctx, earn("u1", domain.CurrencyLaxCredit, 10)))
		_, err := tx.IncrementBalance(ctx, "u1", domain.CurrencyLaxCredit, 10, time.Now())
		return err
	})
	require.NoError(t, err)

	balances, err := repo.Balances(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), balances[domain.CurrencyLaxCredit])
}

func TestIncrementSeedsFromLedger(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	for _, amount := range []int64{5, 7} {
		require.NoError(t, repo.InTx(ctx, func(tx store.Tx) error {
			require.NoError(t, tx.AppendTransaction(ctx, earn("u1", domain.CurrencyLaxCredit, amount)))
			_, err := tx.IncrementBalance(ctx, "u1", domain.CurrencyLaxCredit, amount, time.Now())
			return err
		}))
		repo.InvalidateBalance("u1", domain.CurrencyLaxCredit)
	}

	require.NoError(t, repo.InTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.AppendTransaction(ctx, earn("u1", domain.CurrencyLaxCredit, 3)))
		got, err := tx.IncrementBalance(ctx, "u1", domain.CurrencyLaxCredit, 3, time.Now())
		assert.Equal(t, int64(15), got)
		return err
	}))
}

func TestInsertUserBadgeIsConditional(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	require.NoError(t, repo.InTx(ctx, func(tx store.Tx) error {
		ok, err := tx.InsertUserBadge(ctx, domain.UserBadge{UserID: "u1", BadgeKey: "first_workout"})
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = tx.InsertUserBadge(ctx, domain.UserBadge{UserID: "u1", BadgeKey: "first_workout"})
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))
}

func TestInsertCompletionDuplicateRequest(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	c := domain.WorkoutCompletion{ID: "c1", UserID: "u1", RequestID: "r1"}

	require.NoError(t, repo.InTx(ctx, func(tx store.Tx) error {
		return tx.InsertCompletion(ctx, c)
	}))
	err := repo.InTx(ctx, func(tx store.Tx) error {
		exists, err := tx.CompletionExists(ctx, "u1", "r1")
		require.NoError(t, err)
		assert.True(t, exists)
		c.ID = "c2"
		return tx.InsertCompletion(ctx, c)
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateRequest)
	assert.Len(t, repo.Completions("u1"), 1)

	// a different user may reuse the key
	require.NoError(t, repo.InTx(ctx, func(tx store.Tx) error {
		return tx.InsertCompletion(ctx, domain.WorkoutCompletion{ID: "c3", UserID: "u2", RequestID: "r1"})
	}))
}

func TestUserStats(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	d1, _ := domain.ParseDate("2024-03-01")
	d2 := d1.AddDays(1)

	completions := []domain.WorkoutCompletion{
		{ID: "a", UserID: "u1", WorkoutType: domain.WorkoutSkillsAcademy, DrillIDs: []int64{1, 2}, Categories: []string{"attack"}, ActivityDate: d1, LocalHour: 6},
		{ID: "b", UserID: "u1", WorkoutType: domain.WorkoutSkillsAcademy, DrillIDs: []int64{3}, Categories: []string{"attack", "defense"}, ActivityDate: d1, LocalHour: 12},
		{ID: "c", UserID: "u1", WorkoutType: domain.WorkoutTeamPractice, DrillIDs: []int64{4}, ActivityDate: d2, LocalHour: 22},
	}
	require.NoError(t, repo.InTx(ctx, func(tx store.Tx) error {
		for _, c := range completions {
			if err := tx.InsertCompletion(ctx, c); err != nil {
				return err
			}
		}
		return tx.SaveStreak(ctx, domain.StreakState{UserID: "u1", CurrentStreak: 2, LongestStreak: 4, LastActivityDate: d2})
	}))

	var stats domain.UserStats
	require.NoError(t, repo.InTx(ctx, func(tx store.Tx) error {
		var err error
		stats, err = tx.UserStats(ctx, "u1")
		return err
	}))

	assert.Equal(t, int64(3), stats.Counter("workouts"))
	assert.Equal(t, int64(4), stats.Counter("drills"))
	assert.Equal(t, int64(2), stats.Counter("skills_academy_workouts"))
	assert.Equal(t, int64(2), stats.Counter("attack_workouts"))
	assert.Equal(t, int64(1), stats.Counter("defense_workouts"))
	assert.Equal(t, int64(1), stats.EarlyMorningWorkouts)
	assert.Equal(t, int64(1), stats.LateEveningWorkouts)
	assert.Equal(t, []domain.Date{d1, d2}, stats.ActivityDates)
	assert.Equal(t, 2, stats.CurrentStreak)
	assert.Equal(t, 4, stats.LongestStreak)
}

func setCachedBalance(repo *Repository, userID string, currency domain.Currency, balance int64) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	repo.state.balances[balanceKey{userID, currency}] = domain.PointBalance{
		UserID:    userID,
		Currency:  currency,
		Balance:   balance,
		UpdatedAt: time.Now(),
	}
}

func TestReconcileBalances(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	require.NoError(t, repo.InTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.AppendTransaction(ctx, earn("u1", domain.CurrencyLaxCredit, 10)))
		return tx.AppendTransaction(ctx, earn("u2", domain.CurrencyAttackToken, 4))
	}))
	setCachedBalance(repo, "u1", domain.CurrencyLaxCredit, 99)

	changed, err := repo.ReconcileBalances(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), changed)

	b, err := repo.Balances(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), b[domain.CurrencyLaxCredit])

	changed, err = repo.ReconcileBalances(ctx)
	require.NoError(t, err)
	assert.Zero(t, changed)
}

func TestTopBalancesAndRanges(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	for user, amount := range map[string]int64{"a": 50, "b": 150, "c": 150, "d": 600} {
		setCachedBalance(repo, user, domain.CurrencyLaxCredit, amount)
	}

	top, err := repo.TopBalances(ctx, domain.CurrencyLaxCredit, 3)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, "d", top[0].UserID)
	assert.Equal(t, "b", top[1].UserID)
	assert.Equal(t, "c", top[2].UserID)

	n, err := repo.CountBalancesInRange(ctx, domain.CurrencyLaxCredit, 100, 600)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestConcurrentUnitsOfWork(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	var g errgroup.Group
	for i := 0; i < 50; i++ {
		g.Go(func() error {
			return repo.InTx(ctx, func(tx store.Tx) error {
				if err := tx.AppendTransaction(ctx, earn("u1", domain.CurrencyLaxCredit, 1)); err != nil {
					return err
				}
				_, err := tx.IncrementBalance(ctx, "u1", domain.CurrencyLaxCredit, 1, time.Now())
				return err
			})
		})
	}
	require.NoError(t, g.Wait())

	b, err := repo.Balances(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), b[domain.CurrencyLaxCredit])
	assert.Len(t, repo.Transactions("u1"), 50)
}

func TestMembershipDefaults(t *testing.T) {
	repo := NewRepository()
	m, err := repo.GetMembership(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.Membership{UserID: "u1"}, m)

	repo.SetMembership(domain.Membership{UserID: "u1", ClubTier: domain.TierGrowth})
	m, err = repo.GetMembership(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.TierGrowth, m.ClubTier)
}

func TestIncrementBalanceSurfacesSeedFailure(t *testing.T) {
	repo := NewRepository()
	ctx, cancel := context.WithCancel(context.Background())

	err := repo.InTx(context.Background(), func(tx store.Tx) error {
		if err := tx.AppendTransaction(ctx, earn("u1", domain.CurrencyLaxCredit, 10)); err != nil {
			return err
		}
		cancel()
		_, err := tx.IncrementBalance(ctx, "u1", domain.CurrencyLaxCredit, 10, time.Now())
		return err
	})
	require.ErrorIs(t, err, context.Canceled)

	b, err := repo.Balances(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, b)
}

func TestInitBalanceKeepsExistingRow(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	require.NoError(t, repo.InTx(ctx, func(tx store.Tx) error {
		return tx.AppendTransaction(ctx, earn("u1", domain.CurrencyLaxCredit, 10))
	}))
	setCachedBalance(repo, "u1", domain.CurrencyLaxCredit, 12)

	require.NoError(t, repo.InTx(ctx, func(tx store.Tx) error {
		b, err := tx.InitBalance(ctx, "u1", domain.CurrencyLaxCredit, time.Now())
		require.NoError(t, err)
		assert.Equal(t, int64(12), b)

		b, err = tx.InitBalance(ctx, "u2", domain.CurrencyLaxCredit, time.Now())
		require.NoError(t, err)
		assert.Zero(t, b)

		b, err = tx.RebuildBalance(ctx, "u1", domain.CurrencyLaxCredit, time.Now())
		require.NoError(t, err)
		assert.Equal(t, int64(10), b)
		return nil
	}))
}
