package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/skills-gamification/internal/domain"
	"github.com/skills-gamification/internal/store"
)

const uniqueViolation = "23505"

// pgTx implements store.Tx over an open transaction
type pgTx struct {
	q querier
}

var _ store.Tx = (*pgTx)(nil)

// AppendTransaction inserts an immutable ledger row
func (t *pgTx) AppendTransaction(ctx context.Context, tr domain.PointTransaction) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO point_transactions (id, user_id, currency, amount, transaction_type, source_type, source_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
	`, tr.ID, tr.UserID, storedCurrency(tr.Currency), tr.Amount, string(tr.TransactionType), tr.SourceType, tr.SourceID, tr.CreatedAt)
	if err != nil {
		return fmt.Errorf("appending transaction: %w", err)
	}
	return nil
}

// IncrementBalance atomically adds delta to the cached balance. A
// missing row is created from the ledger sum, which already holds the
// transaction appended earlier in this unit of work.
func (t *pgTx) IncrementBalance(ctx context.Context, userID string, currency domain.Currency, delta int64, at time.Time) (int64, error) {
	var balance int64
	err := t.q.QueryRow(ctx, `
		INSERT INTO point_balances (user_id, currency, balance, updated_at)
		VALUES ($1, $2, (
			SELECT COALESCE(SUM(amount), 0) FROM point_transactions WHERE user_id = $1 AND currency = $2
		), $4)
		ON CONFLICT (user_id, currency)
		DO UPDATE SET balance = point_balances.balance + $3::BIGINT, updated_at = $4
		RETURNING balance
	`, userID, storedCurrency(currency), delta, at).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("incrementing balance: %w", err)
	}
	return balance, nil
}

// CachedBalance reads the cache row, reporting whether it exists
func (t *pgTx) CachedBalance(ctx context.Context, userID string, currency domain.Currency) (int64, bool, error) {
	var balance int64
	err := t.q.QueryRow(ctx, `
		SELECT balance FROM point_balances WHERE user_id = $1 AND currency = $2
	`, userID, storedCurrency(currency)).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading cached balance: %w", err)
	}
	return balance, true, nil
}

// SumTransactions folds the ledger for one user and currency
func (t *pgTx) SumTransactions(ctx context.Context, userID string, currency domain.Currency) (int64, error) {
	var sum int64
	err := t.q.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM point_transactions WHERE user_id = $1 AND currency = $2
	`, userID, storedCurrency(currency)).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("summing transactions: %w", err)
	}
	return sum, nil
}

// InitBalance creates a missing cache row from the ledger sum. A row
// that already exists, even one inserted concurrently, wins and is
// read back unchanged.
func (t *pgTx) InitBalance(ctx context.Context, userID string, currency domain.Currency, at time.Time) (int64, error) {
	_, err := t.q.Exec(ctx, `
		INSERT INTO point_balances (user_id, currency, balance, updated_at)
		SELECT $1, $2, COALESCE(SUM(amount), 0), $3
		FROM point_transactions
		WHERE user_id = $1 AND currency = $2
		ON CONFLICT (user_id, currency) DO NOTHING
	`, userID, storedCurrency(currency), at)
	if err != nil {
		return 0, fmt.Errorf("seeding balance: %w", err)
	}

	balance, ok, err := t.CachedBalance(ctx, userID, currency)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("seeding balance: row for %s/%s missing", userID, currency)
	}
	return balance, nil
}

// RebuildBalance locks the cache row before summing, so an increment
// that is still in flight either commits first and is counted or
// waits and applies its delta on top. Without a row it falls back to
// InitBalance.
func (t *pgTx) RebuildBalance(ctx context.Context, userID string, currency domain.Currency, at time.Time) (int64, error) {
	var current int64
	err := t.q.QueryRow(ctx, `
		SELECT balance FROM point_balances WHERE user_id = $1 AND currency = $2 FOR UPDATE
	`, userID, storedCurrency(currency)).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return t.InitBalance(ctx, userID, currency, at)
	}
	if err != nil {
		return 0, fmt.Errorf("locking balance: %w", err)
	}

	var balance int64
	err = t.q.QueryRow(ctx, `
		UPDATE point_balances
		SET balance = (
			SELECT COALESCE(SUM(amount), 0) FROM point_transactions WHERE user_id = $1 AND currency = $2
		), updated_at = $3
		WHERE user_id = $1 AND currency = $2
		RETURNING balance
	`, userID, storedCurrency(currency), at).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("rebuilding balance: %w", err)
	}
	return balance, nil
}

// LockStreak creates the user's streak row if needed and holds a row
// lock on it until the transaction ends.
func (t *pgTx) LockStreak(ctx context.Context, userID string) (domain.StreakState, error) {
	_, err := t.q.Exec(ctx, `
		INSERT INTO streak_state (user_id, current_streak, longest_streak, updated_at)
		VALUES ($1, 0, 0, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, time.Now())
	if err != nil {
		return domain.StreakState{}, fmt.Errorf("creating streak row: %w", err)
	}

	state, err := scanStreak(t.q.QueryRow(ctx, `
		SELECT user_id, current_streak, longest_streak, last_activity_date
		FROM streak_state
		WHERE user_id = $1
		FOR UPDATE
	`, userID))
	if err != nil {
		return domain.StreakState{}, fmt.Errorf("locking streak: %w", err)
	}
	return state, nil
}

// SaveStreak writes the advanced streak state
func (t *pgTx) SaveStreak(ctx context.Context, s domain.StreakState) error {
	var last *time.Time
	if !s.LastActivityDate.IsZero() {
		d := s.LastActivityDate.Time()
		last = &d
	}
	_, err := t.q.Exec(ctx, `
		INSERT INTO streak_state (user_id, current_streak, longest_streak, last_activity_date, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id)
		DO UPDATE SET current_streak = $2, longest_streak = $3, last_activity_date = $4, updated_at = $5
	`, s.UserID, s.CurrentStreak, s.LongestStreak, last, time.Now())
	if err != nil {
		return fmt.Errorf("saving streak: %w", err)
	}
	return nil
}

// InsertUserBadge records an award unless the user already holds it
func (t *pgTx) InsertUserBadge(ctx context.Context, b domain.UserBadge) (bool, error) {
	tag, err := t.q.Exec(ctx, `
		INSERT INTO user_badges (id, user_id, badge_key, awarded_at, source)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, badge_key) DO NOTHING
	`, b.ID, b.UserID, b.BadgeKey, b.AwardedAt, b.Source)
	if err != nil {
		return false, fmt.Errorf("inserting user badge: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// EarnedBadgeKeys returns the set of badges a user holds
func (t *pgTx) EarnedBadgeKeys(ctx context.Context, userID string) (map[string]bool, error) {
	rows, err := t.q.Query(ctx, `SELECT badge_key FROM user_badges WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing earned badges: %w", err)
	}
	defer rows.Close()

	earned := make(map[string]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scanning badge key: %w", err)
		}
		earned[key] = true
	}
	return earned, rows.Err()
}

// UserStats aggregates the counters badge requirements are checked against
func (t *pgTx) UserStats(ctx context.Context, userID string) (domain.UserStats, error) {
	stats := domain.UserStats{UserID: userID, Counters: make(map[string]int64)}

	balances, err := balancesFor(ctx, t.q, userID)
	if err != nil {
		return stats, err
	}
	stats.Balances = balances

	var workouts, drills int64
	err = t.q.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(cardinality(drill_ids)), 0),
		       COUNT(*) FILTER (WHERE local_hour < $2),
		       COUNT(*) FILTER (WHERE local_hour >= $3)
		FROM workout_completions
		WHERE user_id = $1
	`, userID, domain.EarlyMorningBefore, domain.LateEveningFrom).Scan(&workouts, &drills, &stats.EarlyMorningWorkouts, &stats.LateEveningWorkouts)
	if err != nil {
		return stats, fmt.Errorf("counting workouts: %w", err)
	}
	stats.Counters["workouts"] = workouts
	stats.Counters["drills"] = drills

	if err := t.addCounters(ctx, stats.Counters, `
		SELECT workout_type || '_workouts', COUNT(*)
		FROM workout_completions
		WHERE user_id = $1
		GROUP BY workout_type
	`, userID); err != nil {
		return stats, err
	}
	if err := t.addCounters(ctx, stats.Counters, `
		SELECT category || '_workouts', COUNT(*)
		FROM workout_completions, unnest(categories) AS category
		WHERE user_id = $1
		GROUP BY category
	`, userID); err != nil {
		return stats, err
	}

	rows, err := t.q.Query(ctx, `
		SELECT DISTINCT activity_date FROM workout_completions WHERE user_id = $1 ORDER BY activity_date
	`, userID)
	if err != nil {
		return stats, fmt.Errorf("listing activity dates: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var day time.Time
		if err := rows.Scan(&day); err != nil {
			return stats, fmt.Errorf("scanning activity date: %w", err)
		}
		stats.ActivityDates = append(stats.ActivityDates, domain.DateOf(day, time.UTC))
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	streak, err := scanStreak(t.q.QueryRow(ctx, `
		SELECT user_id, current_streak, longest_streak, last_activity_date
		FROM streak_state
		WHERE user_id = $1
	`, userID))
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return stats, fmt.Errorf("reading streak: %w", err)
	}
	stats.CurrentStreak = streak.CurrentStreak
	stats.LongestStreak = streak.LongestStreak
	return stats, nil
}

func (t *pgTx) addCounters(ctx context.Context, counters map[string]int64, query, userID string) error {
	rows, err := t.q.Query(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("counting workouts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var n int64
		if err := rows.Scan(&name, &n); err != nil {
			return fmt.Errorf("scanning counter: %w", err)
		}
		counters[name] += n
	}
	return rows.Err()
}

// CompletionExists reports whether a request id was already recorded
func (t *pgTx) CompletionExists(ctx context.Context, userID, requestID string) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM workout_completions WHERE user_id = $1 AND request_id = $2)
	`, userID, requestID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking request id: %w", err)
	}
	return exists, nil
}

// InsertCompletion appends a workout history row
func (t *pgTx) InsertCompletion(ctx context.Context, c domain.WorkoutCompletion) error {
	points, err := json.Marshal(c.Points)
	if err != nil {
		return fmt.Errorf("marshaling points: %w", err)
	}
	categories := c.Categories
	if categories == nil {
		categories = []string{}
	}

	_, err = t.q.Exec(ctx, `
		INSERT INTO workout_completions (
			id, user_id, request_id, workout_type, drill_ids, categories, points, total_points,
			average_difficulty, duration_minutes, notes, activity_date, local_hour, completed_at
		)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, c.ID, c.UserID, c.RequestID, string(c.WorkoutType), c.DrillIDs, categories, points, c.TotalPoints,
		c.AverageDifficulty, c.DurationMinutes, c.Notes, c.ActivityDate.Time(), c.LocalHour, c.CompletedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrDuplicateRequest
		}
		return fmt.Errorf("inserting completion: %w", err)
	}
	return nil
}
