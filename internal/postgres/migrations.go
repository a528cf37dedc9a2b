package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/skills-gamification/internal/domain"
)

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS point_transactions (
			id UUID PRIMARY KEY,
			user_id VARCHAR(128) NOT NULL,
			currency VARCHAR(48) NOT NULL,
			amount BIGINT NOT NULL,
			transaction_type VARCHAR(16) NOT NULL,
			source_type VARCHAR(32) NOT NULL,
			source_id VARCHAR(128),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CHECK (
				(transaction_type = 'earned' AND amount > 0) OR
				(transaction_type = 'spent' AND amount < 0) OR
				(transaction_type = 'adjusted' AND amount <> 0)
			)
		)`,
		`CREATE TABLE IF NOT EXISTS point_balances (
			user_id VARCHAR(128) NOT NULL,
			currency VARCHAR(48) NOT NULL,
			balance BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, currency)
		)`,
		`CREATE TABLE IF NOT EXISTS streak_state (
			user_id VARCHAR(128) PRIMARY KEY,
			current_streak INT NOT NULL DEFAULT 0 CHECK (current_streak >= 0),
			longest_streak INT NOT NULL DEFAULT 0 CHECK (longest_streak >= 0),
			last_activity_date DATE,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS badge_definitions (
			badge_key VARCHAR(64) PRIMARY KEY,
			title VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category VARCHAR(64) NOT NULL,
			requirement_type VARCHAR(16) NOT NULL,
			requirement_context VARCHAR(64) NOT NULL DEFAULT '',
			requirement_value BIGINT NOT NULL DEFAULT 0,
			points_award BIGINT NOT NULL DEFAULT 0,
			rarity VARCHAR(16) NOT NULL DEFAULT 'common',
			icon_ref TEXT NOT NULL DEFAULT '',
			sort_order INT NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS user_badges (
			id UUID PRIMARY KEY,
			user_id VARCHAR(128) NOT NULL,
			badge_key VARCHAR(64) NOT NULL,
			awarded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			source VARCHAR(32) NOT NULL,
			UNIQUE (user_id, badge_key)
		)`,
		`CREATE TABLE IF NOT EXISTS rank_definitions (
			rank_order INT PRIMARY KEY,
			title VARCHAR(255) NOT NULL,
			threshold BIGINT NOT NULL,
			icon_ref TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS workout_completions (
			id UUID PRIMARY KEY,
			user_id VARCHAR(128) NOT NULL,
			request_id VARCHAR(128),
			workout_type VARCHAR(32) NOT NULL,
			drill_ids BIGINT[] NOT NULL,
			categories TEXT[] NOT NULL DEFAULT '{}',
			points JSONB NOT NULL,
			total_points BIGINT NOT NULL,
			average_difficulty DOUBLE PRECISION NOT NULL,
			duration_minutes INT,
			notes TEXT NOT NULL DEFAULT '',
			activity_date DATE NOT NULL,
			local_hour SMALLINT NOT NULL,
			completed_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS drills (
			library VARCHAR(32) NOT NULL,
			id BIGINT NOT NULL,
			title VARCHAR(255) NOT NULL,
			difficulty_score INT NOT NULL DEFAULT 1,
			category VARCHAR(64) NOT NULL DEFAULT '',
			attack_relevance CHAR(1),
			defense_relevance CHAR(1),
			midfield_relevance CHAR(1),
			PRIMARY KEY (library, id)
		)`,
		`CREATE TABLE IF NOT EXISTS memberships (
			user_id VARCHAR(128) PRIMARY KEY,
			club_tier VARCHAR(32),
			team_tier VARCHAR(32),
			coaching_tier VARCHAR(32),
			is_admin BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_point_transactions_user ON point_transactions(user_id, currency)`,
		`CREATE INDEX IF NOT EXISTS idx_point_balances_rank ON point_balances(currency, balance DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_workout_completions_user ON workout_completions(user_id, completed_at DESC)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_workout_completions_request
			ON workout_completions(user_id, request_id) WHERE request_id IS NOT NULL`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// SeedCatalogs inserts badge and rank definitions that are not yet
// present. Existing rows are left alone so operators can edit them.
func (r *Repository) SeedCatalogs(ctx context.Context, badges []domain.BadgeDefinition, ranks []domain.RankDefinition) error {
	batch := &pgx.Batch{}
	for _, b := range badges {
		reqContext := b.RequirementContext
		if b.RequirementType == domain.RequirementPoints {
			reqContext = storedCurrency(domain.Currency(reqContext))
		}
		batch.Queue(`
			INSERT INTO badge_definitions (badge_key, title, description, category, requirement_type,
				requirement_context, requirement_value, points_award, rarity, icon_ref, sort_order, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (badge_key) DO NOTHING
		`, b.BadgeKey, b.Name, b.Description, b.Category, string(b.RequirementType), reqContext,
			b.RequirementValue, b.PointsAward, b.Rarity, b.IconRef, b.SortOrder, b.IsActive)
	}
	for _, rk := range ranks {
		batch.Queue(`
			INSERT INTO rank_definitions (rank_order, title, threshold, icon_ref)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (rank_order) DO NOTHING
		`, rk.RankOrder, rk.Title, rk.Threshold, rk.IconRef)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("seeding catalogs: %w", err)
		}
	}
	return nil
}
