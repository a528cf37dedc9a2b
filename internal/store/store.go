// Package store defines the persistence contract shared by the postgres
// and memory adapters.
package store

import (
	"context"

	"github.com/skills-gamification/internal/badge"
	"github.com/skills-gamification/internal/domain"
	"github.com/skills-gamification/internal/ledger"
	"github.com/skills-gamification/internal/streak"
)

// Tx is one all-or-nothing unit of work. Every write made through it is
// committed together or not at all.
type Tx interface {
	ledger.Store
	streak.Store
	badge.Store

	CompletionExists(ctx context.Context, userID, requestID string) (bool, error)
	// InsertCompletion fails with domain.ErrDuplicateRequest when the
	// (user, request id) pair was already recorded.
	InsertCompletion(ctx context.Context, c domain.WorkoutCompletion) error
}

// Repository is the persistence collaborator
type Repository interface {
	// InTx runs fn in a transaction, rolling back when fn returns an error.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	GetStreak(ctx context.Context, userID string) (domain.StreakState, error)
	Balances(ctx context.Context, userID string) (map[domain.Currency]int64, error)
	ListUserBadges(ctx context.Context, userID string) ([]domain.UserBadge, error)
	GetMembership(ctx context.Context, userID string) (domain.Membership, error)

	// TopBalances returns the highest cached balances, ties broken by user id.
	TopBalances(ctx context.Context, currency domain.Currency, limit int) ([]domain.PointBalance, error)
	// CountBalancesInRange counts users with min <= balance < max.
	CountBalancesInRange(ctx context.Context, currency domain.Currency, min, max int64) (int64, error)
	AllBalances(ctx context.Context, currency domain.Currency) (map[string]int64, error)
	// ReconcileBalances rewrites every cached balance from the ledger and
	// returns how many rows changed.
	ReconcileBalances(ctx context.Context) (int64, error)

	ListBadgeDefinitions(ctx context.Context) ([]domain.BadgeDefinition, error)
	ListRankDefinitions(ctx context.Context) ([]domain.RankDefinition, error)

	Ping(ctx context.Context) error
}
