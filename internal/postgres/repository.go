package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/skills-gamification/internal/config"
	"github.com/skills-gamification/internal/domain"
	"github.com/skills-gamification/internal/store"
)

// querier is satisfied by both the pool and an open transaction
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ store.Repository = (*Repository)(nil)

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool returns the underlying connection pool
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// Ping checks database connectivity
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// InTx executes fn within a READ COMMITTED transaction. Per-user
// serialization comes from the row lock taken by LockStreak.
func (r *Repository) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetStreak reads a user's streak without locking it
func (r *Repository) GetStreak(ctx context.Context, userID string) (domain.StreakState, error) {
	state, err := scanStreak(r.pool.QueryRow(ctx, `
		SELECT user_id, current_streak, longest_streak, last_activity_date
		FROM streak_state
		WHERE user_id = $1
	`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.StreakState{UserID: userID}, nil
	}
	if err != nil {
		return domain.StreakState{}, fmt.Errorf("getting streak: %w", err)
	}
	return state, nil
}

// Balances returns every cached balance for a user
func (r *Repository) Balances(ctx context.Context, userID string) (map[domain.Currency]int64, error) {
	return balancesFor(ctx, r.pool, userID)
}

// ListUserBadges returns a user's awards, oldest first
func (r *Repository) ListUserBadges(ctx context.Context, userID string) ([]domain.UserBadge, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, badge_key, awarded_at, source
		FROM user_badges
		WHERE user_id = $1
		ORDER BY awarded_at, badge_key
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing user badges: %w", err)
	}
	defer rows.Close()

	var badges []domain.UserBadge
	for rows.Next() {
		var b domain.UserBadge
		if err := rows.Scan(&b.ID, &b.UserID, &b.BadgeKey, &b.AwardedAt, &b.Source); err != nil {
			return nil, fmt.Errorf("scanning user badge: %w", err)
		}
		badges = append(badges, b)
	}
	return badges, rows.Err()
}

// GetMembership reads the tiers assigned by billing. A user without a
// row holds no tiers.
func (r *Repository) GetMembership(ctx context.Context, userID string) (domain.Membership, error) {
	m := domain.Membership{UserID: userID}
	var club, team, coaching *string
	err := r.pool.QueryRow(ctx, `
		SELECT club_tier, team_tier, coaching_tier, is_admin
		FROM memberships
		WHERE user_id = $1
	`, userID).Scan(&club, &team, &coaching, &m.IsAdmin)
	if errors.Is(err, pgx.ErrNoRows) {
		return m, nil
	}
	if err != nil {
		return domain.Membership{}, fmt.Errorf("getting membership: %w", err)
	}
	m.ClubTier = tierOf(club)
	m.TeamTier = tierOf(team)
	m.CoachingTier = tierOf(coaching)
	return m, nil
}

// TopBalances returns the highest balances for a currency
func (r *Repository) TopBalances(ctx context.Context, currency domain.Currency, limit int) ([]domain.PointBalance, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, balance, updated_at
		FROM point_balances
		WHERE currency = $1
		ORDER BY balance DESC, user_id
		LIMIT $2
	`, storedCurrency(currency), limit)
	if err != nil {
		return nil, fmt.Errorf("getting top balances: %w", err)
	}
	defer rows.Close()

	var out []domain.PointBalance
	for rows.Next() {
		b := domain.PointBalance{Currency: currency}
		if err := rows.Scan(&b.UserID, &b.Balance, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning balance: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// CountBalancesInRange counts users with min <= balance < max
func (r *Repository) CountBalancesInRange(ctx context.Context, currency domain.Currency, min, max int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM point_balances
		WHERE currency = $1 AND balance >= $2 AND balance < $3
	`, storedCurrency(currency), min, max).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting balances: %w", err)
	}
	return count, nil
}

// AllBalances retrieves every cached balance for a currency (for sync)
func (r *Repository) AllBalances(ctx context.Context, currency domain.Currency) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id, balance FROM point_balances WHERE currency = $1`, storedCurrency(currency))
	if err != nil {
		return nil, fmt.Errorf("getting all balances: %w", err)
	}
	defer rows.Close()

	balances := make(map[string]int64)
	for rows.Next() {
		var userID string
		var balance int64
		if err := rows.Scan(&userID, &balance); err != nil {
			return nil, fmt.Errorf("scanning balance: %w", err)
		}
		balances[userID] = balance
	}
	return balances, rows.Err()
}

// ReconcileBalances rewrites the balance cache from the ledger,
// including rows whose ledger is empty. The SHARE lock waits for every
// transaction that has appended to the ledger and blocks new appends
// until the rewrite commits, so no increment lands between the sum and
// the write.
func (r *Repository) ReconcileBalances(ctx context.Context) (int64, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `LOCK TABLE point_transactions IN SHARE MODE`); err != nil {
		return 0, fmt.Errorf("locking ledger: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		WITH sums AS (
			SELECT user_id, currency, SUM(amount) AS total
			FROM point_transactions
			GROUP BY user_id, currency
		), merged AS (
			SELECT COALESCE(s.user_id, b.user_id) AS user_id,
			       COALESCE(s.currency, b.currency) AS currency,
			       COALESCE(s.total, 0) AS total
			FROM sums s
			FULL OUTER JOIN point_balances b
			  ON b.user_id = s.user_id AND b.currency = s.currency
		)
		INSERT INTO point_balances (user_id, currency, balance, updated_at)
		SELECT user_id, currency, total, $1 FROM merged
		ON CONFLICT (user_id, currency)
		DO UPDATE SET balance = EXCLUDED.balance, updated_at = EXCLUDED.updated_at
		WHERE point_balances.balance IS DISTINCT FROM EXCLUDED.balance
	`, time.Now())
	if err != nil {
		return 0, fmt.Errorf("reconciling balances: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing reconcile: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListBadgeDefinitions loads the badge catalog
func (r *Repository) ListBadgeDefinitions(ctx context.Context) ([]domain.BadgeDefinition, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT badge_key, title, description, category, requirement_type, requirement_context,
		       requirement_value, points_award, rarity, icon_ref, sort_order, is_active
		FROM badge_definitions
		ORDER BY sort_order, badge_key
	`)
	if err != nil {
		return nil, fmt.Errorf("listing badge definitions: %w", err)
	}
	defer rows.Close()

	var defs []domain.BadgeDefinition
	for rows.Next() {
		var d domain.BadgeDefinition
		if err := rows.Scan(&d.BadgeKey, &d.Name, &d.Description, &d.Category, &d.RequirementType,
			&d.RequirementContext, &d.RequirementValue, &d.PointsAward, &d.Rarity, &d.IconRef,
			&d.SortOrder, &d.IsActive); err != nil {
			return nil, fmt.Errorf("scanning badge definition: %w", err)
		}
		if d.RequirementType == domain.RequirementPoints {
			d.RequirementContext = string(domainCurrency(d.RequirementContext))
		}
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

// ListRankDefinitions loads the rank ladder
func (r *Repository) ListRankDefinitions(ctx context.Context) ([]domain.RankDefinition, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT rank_order, title, threshold, icon_ref
		FROM rank_definitions
		ORDER BY rank_order
	`)
	if err != nil {
		return nil, fmt.Errorf("listing rank definitions: %w", err)
	}
	defer rows.Close()

	var defs []domain.RankDefinition
	for rows.Next() {
		var d domain.RankDefinition
		if err := rows.Scan(&d.RankOrder, &d.Title, &d.Threshold, &d.IconRef); err != nil {
			return nil, fmt.Errorf("scanning rank definition: %w", err)
		}
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

// SetMembership upserts a user's tiers. Billing owns this table; the
// call exists for seeding and operations.
func (r *Repository) SetMembership(ctx context.Context, m domain.Membership) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO memberships (user_id, club_tier, team_tier, coaching_tier, is_admin, updated_at)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), $5, $6)
		ON CONFLICT (user_id)
		DO UPDATE SET club_tier = EXCLUDED.club_tier, team_tier = EXCLUDED.team_tier,
		              coaching_tier = EXCLUDED.coaching_tier, is_admin = EXCLUDED.is_admin,
		              updated_at = EXCLUDED.updated_at
	`, m.UserID, string(m.ClubTier), string(m.TeamTier), string(m.CoachingTier), m.IsAdmin, time.Now())
	if err != nil {
		return fmt.Errorf("setting membership: %w", err)
	}
	return nil
}

func balancesFor(ctx context.Context, q querier, userID string) (map[domain.Currency]int64, error) {
	rows, err := q.Query(ctx, `SELECT currency, balance FROM point_balances WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("getting balances: %w", err)
	}
	defer rows.Close()

	balances := make(map[domain.Currency]int64)
	for rows.Next() {
		var currency string
		var balance int64
		if err := rows.Scan(&currency, &balance); err != nil {
			return nil, fmt.Errorf("scanning balance: %w", err)
		}
		balances[domainCurrency(currency)] = balance
	}
	return balances, rows.Err()
}

func scanStreak(row pgx.Row) (domain.StreakState, error) {
	var s domain.StreakState
	var last *time.Time
	if err := row.Scan(&s.UserID, &s.CurrentStreak, &s.LongestStreak, &last); err != nil {
		return domain.StreakState{}, err
	}
	if last != nil {
		s.LastActivityDate = domain.DateOf(*last, time.UTC)
	}
	return s, nil
}

func tierOf(s *string) domain.Tier {
	if s == nil {
		return ""
	}
	return domain.Tier(*s)
}
