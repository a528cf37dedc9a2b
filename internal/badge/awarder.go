package badge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/skills-gamification/internal/domain"
	"github.com/skills-gamification/internal/ledger"
)

// Store persists badge awards. InsertUserBadge must be a conditional
// insert on (user_id, badge_key) and report whether a row was created.
type Store interface {
	InsertUserBadge(ctx context.Context, b domain.UserBadge) (bool, error)
	EarnedBadgeKeys(ctx context.Context, userID string) (map[string]bool, error)
	UserStats(ctx context.Context, userID string) (domain.UserStats, error)
}

// Awarder grants badges and credits their point awards
type Awarder struct {
	catalog       *Catalog
	store         Store
	ledger        *ledger.Ledger
	awardCurrency domain.Currency
	clock         clockwork.Clock
	logger        *slog.Logger
}

// NewAwarder wires an awarder. Badge points are credited in awardCurrency.
func NewAwarder(catalog *Catalog, store Store, l *ledger.Ledger, awardCurrency domain.Currency, clock clockwork.Clock, logger *slog.Logger) *Awarder {
	if awardCurrency == "" {
		awardCurrency = domain.CurrencyLaxCredit
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Awarder{
		catalog:       catalog,
		store:         store,
		ledger:        l,
		awardCurrency: awardCurrency,
		clock:         clock,
		logger:        logger,
	}
}

// Catalog returns the definitions the awarder checks against
func (a *Awarder) Catalog() *Catalog {
	return a.catalog
}

// AwardIfEligible re-checks the requirement and grants the badge once.
// Awarding an already held badge returns Awarded=false and credits nothing.
func (a *Awarder) AwardIfEligible(ctx context.Context, stats domain.UserStats, badgeKey string) (domain.BadgeAward, error) {
	def, err := a.catalog.Get(badgeKey)
	if err != nil {
		return domain.BadgeAward{}, err
	}
	if !def.IsActive || !Check(stats, def).RequirementMet {
		return domain.BadgeAward{Badge: def}, nil
	}

	inserted, err := a.store.InsertUserBadge(ctx, domain.UserBadge{
		ID:        uuid.New().String(),
		UserID:    stats.UserID,
		BadgeKey:  def.BadgeKey,
		AwardedAt: a.clock.Now(),
		Source:    domain.SourceWorkoutCompletion,
	})
	if err != nil {
		return domain.BadgeAward{}, fmt.Errorf("inserting badge %s: %w", def.BadgeKey, err)
	}
	if !inserted {
		return domain.BadgeAward{Badge: def}, nil
	}

	if def.PointsAward > 0 {
		if _, err := a.ledger.Earn(ctx, stats.UserID, a.awardCurrency, def.PointsAward, domain.SourceBadgeAward, def.BadgeKey); err != nil {
			return domain.BadgeAward{}, fmt.Errorf("crediting badge %s: %w", def.BadgeKey, err)
		}
	}
	a.logger.Info("badge awarded", "user_id", stats.UserID, "badge_key", def.BadgeKey, "points", def.PointsAward)
	return domain.BadgeAward{Awarded: true, Badge: def}, nil
}

// AwardEligible evaluates the catalog for a user and grants everything
// newly met, stopping at the first storage error.
func (a *Awarder) AwardEligible(ctx context.Context, userID string) ([]domain.BadgeDefinition, error) {
	stats, err := a.store.UserStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading user stats: %w", err)
	}
	stats.UserID = userID
	earned, err := a.store.EarnedBadgeKeys(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading earned badges: %w", err)
	}

	var granted []domain.BadgeDefinition
	for _, e := range Evaluate(stats, a.catalog.Active(), earned) {
		if !e.RequirementMet {
			continue
		}
		award, err := a.AwardIfEligible(ctx, stats, e.Badge.BadgeKey)
		if err != nil {
			return granted, err
		}
		if award.Awarded {
			granted = append(granted, award.Badge)
		}
	}
	return granted, nil
}
