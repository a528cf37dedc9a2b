package postgres

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/skills-gamification/internal/badge"
	"github.com/skills-gamification/internal/domain"
	"github.com/skills-gamification/internal/ledger"
	"github.com/skills-gamification/internal/rank"
	"github.com/skills-gamification/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRepository connects to POSTGRES_TEST_URL and applies the schema.
// Each test works on fresh user ids so runs do not interfere.
func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	url := os.Getenv("POSTGRES_TEST_URL")
	if url == "" {
		t.Skip("POSTGRES_TEST_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	repo := &Repository{pool: pool, logger: slog.Default()}
	require.NoError(t, repo.Ping(ctx))
	require.NoError(t, repo.RunMigrations(ctx))
	require.NoError(t, repo.SeedCatalogs(ctx, badge.DefaultDefinitions, rank.DefaultDefinitions))
	return repo
}

func TestMigrationsAreRepeatable(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.RunMigrations(ctx))
	require.NoError(t, repo.SeedCatalogs(ctx, badge.DefaultDefinitions, rank.DefaultDefinitions))

	badges, err := repo.ListBadgeDefinitions(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(badges), len(badge.DefaultDefinitions))

	ranks, err := repo.ListRankDefinitions(ctx)
	require.NoError(t, err)
	require.Len(t, ranks, len(rank.DefaultDefinitions))
	assert.Equal(t, "Lacrosse Bot", ranks[0].Title)
	assert.Equal(t, int64(10000), ranks[len(ranks)-1].Threshold)
}

func TestInTxRollsBackOnError(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	userID := uuid.NewString()
	clock := clockwork.NewFakeClock()
	boom := errors.New("boom")

	err := repo.InTx(ctx, func(tx store.Tx) error {
		if _, err := ledger.New(tx, clock).Earn(ctx, userID, domain.CurrencyLaxCredit, 25, domain.SourceWorkoutCompletion, ""); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	balances, err := repo.Balances(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, balances)
}

func TestInTxCommitsLedgerAndBalance(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	userID := uuid.NewString()
	clock := clockwork.NewFakeClock()

	for _, amount := range []int64{10, 15} {
		err := repo.InTx(ctx, func(tx store.Tx) error {
			_, err := ledger.New(tx, clock).Earn(ctx, userID, domain.CurrencyAttackToken, amount, domain.SourceWorkoutCompletion, "")
			return err
		})
		require.NoError(t, err)
	}

	balances, err := repo.Balances(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(25), balances[domain.CurrencyAttackToken])

	err = repo.InTx(ctx, func(tx store.Tx) error {
		sum, err := tx.SumTransactions(ctx, userID, domain.CurrencyAttackToken)
		require.NoError(t, err)
		assert.Equal(t, int64(25), sum)
		return nil
	})
	require.NoError(t, err)
}

func TestInsertUserBadgeIsConditional(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	userID := uuid.NewString()

	award := func() bool {
		var inserted bool
		err := repo.InTx(ctx, func(tx store.Tx) error {
			var err error
			inserted, err = tx.InsertUserBadge(ctx, domain.UserBadge{
				ID:        uuid.NewString(),
				UserID:    userID,
				BadgeKey:  badge.DefaultDefinitions[0].BadgeKey,
				AwardedAt: time.Now(),
				Source:    domain.SourceWorkoutCompletion,
			})
			return err
		})
		require.NoError(t, err)
		return inserted
	}

	assert.True(t, award())
	assert.False(t, award())

	held, err := repo.ListUserBadges(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, held, 1)
}

func TestInsertCompletionRejectsReplayedRequest(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	userID := uuid.NewString()
	requestID := uuid.NewString()

	completion := func() domain.WorkoutCompletion {
		return domain.WorkoutCompletion{
			ID:           uuid.NewString(),
			UserID:       userID,
			RequestID:    requestID,
			WorkoutType:  domain.WorkoutSkillsAcademy,
			DrillIDs:     []int64{1, 2},
			Categories:   []string{"attack"},
			Points:       map[domain.Currency]int64{domain.CurrencyLaxCredit: 5},
			TotalPoints:  5,
			ActivityDate: domain.DateOf(time.Now(), time.UTC),
			LocalHour:    6,
			CompletedAt:  time.Now(),
		}
	}

	err := repo.InTx(ctx, func(tx store.Tx) error {
		return tx.InsertCompletion(ctx, completion())
	})
	require.NoError(t, err)

	err = repo.InTx(ctx, func(tx store.Tx) error {
		exists, err := tx.CompletionExists(ctx, userID, requestID)
		require.NoError(t, err)
		assert.True(t, exists)
		return tx.InsertCompletion(ctx, completion())
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateRequest)

	err = repo.InTx(ctx, func(tx store.Tx) error {
		stats, err := tx.UserStats(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Counters["workouts"])
		assert.Equal(t, int64(2), stats.Counters["drills"])
		assert.Equal(t, int64(1), stats.Counters["attack_workouts"])
		assert.Equal(t, int64(1), stats.EarlyMorningWorkouts)
		assert.Len(t, stats.ActivityDates, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestReconcileBalancesRepairsDrift(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	userID := uuid.NewString()
	clock := clockwork.NewFakeClock()

	err := repo.InTx(ctx, func(tx store.Tx) error {
		_, err := ledger.New(tx, clock).Earn(ctx, userID, domain.CurrencyLaxCredit, 40, domain.SourceWorkoutCompletion, "")
		return err
	})
	require.NoError(t, err)
	_, err = repo.pool.Exec(ctx, `UPDATE point_balances SET balance = 7 WHERE user_id = $1 AND currency = $2`,
		userID, storedCurrency(domain.CurrencyLaxCredit))
	require.NoError(t, err)

	changed, err := repo.ReconcileBalances(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, changed, int64(1))

	balances, err := repo.Balances(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), balances[domain.CurrencyLaxCredit])
}

// earnUncommitted appends and increments inside a transaction the
// caller commits later, leaving the ledger row and the cache row locked.
func earnUncommitted(t *testing.T, repo *Repository, userID string, amount int64) pgx.Tx {
	t.Helper()
	ctx := context.Background()
	tx, err := repo.pool.Begin(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { tx.Rollback(ctx) })

	_, err = ledger.New(&pgTx{q: tx}, clockwork.NewFakeClock()).Earn(ctx, userID, domain.CurrencyLaxCredit, amount, domain.SourceWorkoutCompletion, "")
	require.NoError(t, err)
	return tx
}

func requireBlocked(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		t.Fatalf("expected to wait for the open transaction, finished with %v", err)
	case <-time.After(200 * time.Millisecond):
	}
}

func requireDone(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the blocked statement")
	}
}

func TestReconcileBalancesKeepsConcurrentIncrement(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	userID := uuid.NewString()

	err := repo.InTx(ctx, func(tx store.Tx) error {
		_, err := ledger.New(tx, clockwork.NewFakeClock()).Earn(ctx, userID, domain.CurrencyLaxCredit, 40, domain.SourceWorkoutCompletion, "")
		return err
	})
	require.NoError(t, err)

	open := earnUncommitted(t, repo, userID, 5)

	done := make(chan error, 1)
	go func() {
		_, err := repo.ReconcileBalances(ctx)
		done <- err
	}()
	requireBlocked(t, done)

	require.NoError(t, open.Commit(ctx))
	requireDone(t, done)

	balances, err := repo.Balances(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(45), balances[domain.CurrencyLaxCredit])
}

func TestGetBalanceSeedDoesNotOverwriteConcurrentRow(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	userID := uuid.NewString()

	open := earnUncommitted(t, repo, userID, 5)

	var seen int64
	done := make(chan error, 1)
	go func() {
		done <- repo.InTx(ctx, func(tx store.Tx) error {
			var err error
			seen, err = ledger.New(tx, clockwork.NewFakeClock()).GetBalance(ctx, userID, domain.CurrencyLaxCredit)
			return err
		})
	}()
	requireBlocked(t, done)

	require.NoError(t, open.Commit(ctx))
	requireDone(t, done)
	assert.Equal(t, int64(5), seen)

	balances, err := repo.Balances(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), balances[domain.CurrencyLaxCredit])
}

func TestLedgerReconcileWaitsForRowLock(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	userID := uuid.NewString()

	err := repo.InTx(ctx, func(tx store.Tx) error {
		_, err := ledger.New(tx, clockwork.NewFakeClock()).Earn(ctx, userID, domain.CurrencyLaxCredit, 40, domain.SourceWorkoutCompletion, "")
		return err
	})
	require.NoError(t, err)

	open := earnUncommitted(t, repo, userID, 5)

	var rebuilt int64
	done := make(chan error, 1)
	go func() {
		done <- repo.InTx(ctx, func(tx store.Tx) error {
			var err error
			rebuilt, err = ledger.New(tx, clockwork.NewFakeClock()).Reconcile(ctx, userID, domain.CurrencyLaxCredit)
			return err
		})
	}()
	requireBlocked(t, done)

	require.NoError(t, open.Commit(ctx))
	requireDone(t, done)
	assert.Equal(t, int64(45), rebuilt)

	balances, err := repo.Balances(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(45), balances[domain.CurrencyLaxCredit])
}
